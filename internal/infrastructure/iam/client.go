// Package iam contains the HTTP adapter for the identity service.
package iam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/integration"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	maxResponseSize   = 1 << 20
	internalKeyHeader = "X-Internal-Key"
	defaultTimeout    = 10 * time.Second
)

// Client implements integration.IAMClient over the IAM REST API
type Client struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates an IAM client; requests are traced through otelhttp
func NewClient(cfg config.IAMConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		internalKey: cfg.InternalKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// envelope is the response body shape of the IAM API
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Health checks GET / on the IAM service
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("iam: failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrIAMUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned HTTP %d", integration.ErrIAMUnavailable, resp.StatusCode)
	}
	return nil
}

// CreateUser provisions an account through POST /internal/users
func (c *Client) CreateUser(ctx context.Context, account integration.NewAccount) (*integration.Account, error) {
	var out integration.Account
	if err := c.do(ctx, http.MethodPost, "/internal/users", "", account, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRegistrations returns pending registrations; token must belong to an admin
func (c *Client) ListRegistrations(ctx context.Context, token string) ([]integration.PendingRegistration, error) {
	var out []integration.PendingRegistration
	if err := c.do(ctx, http.MethodGet, "/admin/registrations", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveRegistration turns a pending registration into an account
func (c *Client) ApproveRegistration(ctx context.Context, token string, requestID uuid.UUID) (*integration.Account, error) {
	var out integration.Account
	if err := c.do(ctx, http.MethodPost, "/admin/registrations/approve/"+requestID.String(), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeactivateUser disables an account and revokes its tokens
func (c *Client) DeactivateUser(ctx context.Context, token string, userID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/admin/users/"+userID.String()+"/deactivate", token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("iam: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("iam: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.internalKey != "" {
		req.Header.Set(internalKeyHeader, c.internalKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrIAMUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("iam: failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		iamErr := &integration.IAMError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			iamErr.Code = env.Error.Code
			if env.Error.Message != "" {
				iamErr.Message = env.Error.Message
			}
		}
		c.logger.Warn("IAM request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", iamErr.Message))
		return iamErr
	}

	if out == nil {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %v", integration.ErrIAMInvalidResponse, decodeErr)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrIAMInvalidResponse, err)
	}
	return nil
}

var _ integration.IAMClient = (*Client)(nil)
