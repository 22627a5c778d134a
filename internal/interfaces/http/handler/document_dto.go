package handler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/document"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// DocumentForm holds the metadata fields of a multipart upload. Tags are
// comma separated and metadata is a JSON object of strings.
type DocumentForm struct {
	Title       string `form:"title" binding:"required,max=200"`
	Description string `form:"description" binding:"max=5000"`
	Category    string `form:"category" binding:"max=100"`
	Tags        string `form:"tags" binding:"max=500"`
	IsPublic    bool   `form:"is_public"`
	Department  string `form:"department" binding:"max=100"`
	Metadata    string `form:"metadata"`
}

func (f DocumentForm) details() (document.Details, error) {
	d := document.Details{
		Title:       f.Title,
		Description: f.Description,
		Category:    f.Category,
		IsPublic:    f.IsPublic,
		Department:  f.Department,
	}
	for _, tag := range strings.Split(f.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			d.Tags = append(d.Tags, tag)
		}
	}
	if f.Metadata != "" {
		if err := json.Unmarshal([]byte(f.Metadata), &d.Metadata); err != nil {
			return d, shared.NewValidationError("metadata must be a JSON object of strings")
		}
	}
	return d, nil
}

// DocumentUpdateRequest is the body of PUT /documents/:id
type DocumentUpdateRequest struct {
	Title       string            `json:"title" binding:"required,max=200"`
	Description string            `json:"description" binding:"max=5000"`
	Category    string            `json:"category" binding:"max=100"`
	Tags        []string          `json:"tags" binding:"max=20,dive,max=50"`
	IsPublic    bool              `json:"is_public"`
	Department  string            `json:"department" binding:"max=100"`
	Metadata    map[string]string `json:"metadata"`
}

func (r DocumentUpdateRequest) details() document.Details {
	return document.Details{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Tags:        r.Tags,
		IsPublic:    r.IsPublic,
		Department:  r.Department,
		Metadata:    r.Metadata,
	}
}

// DocumentListRequest holds the document list query
type DocumentListRequest struct {
	Category string `form:"category" binding:"max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=draft active archived deleted"`
	Search   string `form:"search" binding:"max=100"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// GrantRequest is the body of POST /documents/:id/access
type GrantRequest struct {
	UserID      *uuid.UUID `json:"user_id"`
	Department  string     `json:"department" binding:"max=100"`
	AccessLevel string     `json:"access_level" binding:"required,oneof=view edit delete share"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (r GrantRequest) grant() document.Grant {
	return document.Grant{
		UserID:     r.UserID,
		Department: r.Department,
		Level:      document.AccessLevel(r.AccessLevel),
		ExpiresAt:  r.ExpiresAt,
	}
}

// PreviewResponse carries rendered markdown
type PreviewResponse struct {
	HTML string `json:"html"`
}
