// Package document implements electronic document management: uploads,
// versions, access grants, downloads and the activity log.
package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/document"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
)

// AllowedContentTypes is the upload whitelist. Scripts and SVG are excluded.
var AllowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.oasis.opendocument.text":                           true,
	"application/vnd.oasis.opendocument.spreadsheet":                    true,
	"application/zip": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
	"text/plain":      true,
	"text/csv":        true,
	"text/markdown":   true,
}

// ObjectStorage stores the uploaded bytes
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// PresignGet returns an empty URL when the backend cannot presign
	PresignGet(ctx context.Context, key, fileName string) (string, time.Time, error)
	Delete(ctx context.Context, key string) error
}

// DepartmentDirectory resolves the department of a user for department grants
type DepartmentDirectory interface {
	DepartmentOf(ctx context.Context, userID uuid.UUID) (string, error)
}

// Repositories groups the document persistence ports
type Repositories struct {
	Documents document.Repository
	Versions  document.VersionRepository
	Access    document.AccessRepository
	Logs      document.LogRepository
}

// Caller identifies who is acting and from where
type Caller struct {
	UserID uuid.UUID
	Role   string
	IP     string
}

// Upload is a received file
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Download is either a presigned URL or an open stream of the file
type Download struct {
	URL       string        `json:"url,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
	FileName  string        `json:"file_name"`
	MimeType  string        `json:"mime_type"`
	Size      int64         `json:"file_size"`
	Body      io.ReadCloser `json:"-"`
}

const activityLimit = 200

// Service manages documents
type Service struct {
	repos       Repositories
	storage     ObjectStorage
	departments DepartmentDirectory
	markdown    goldmark.Markdown
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new document service
func NewService(repos Repositories, storage ObjectStorage, departments DepartmentDirectory, metrics *telemetry.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repos:       repos,
		storage:     storage,
		departments: departments,
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores a new document and its first version
func (s *Service) Upload(ctx context.Context, caller Caller, details document.Details, up Upload) (doc *document.Document, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, "document", "upload", started, err)
	}(time.Now())

	file, err := describe(up)
	if err != nil {
		return nil, err
	}
	exists, err := s.repos.Documents.ExistsByHash(ctx, file.Hash, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewConflictError("A document with the same content already exists")
	}

	doc, version, err := document.NewDocument(details, file, caller.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.storage.Put(ctx, doc.StorageKey, up.Data, file.MimeType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if err := s.repos.Documents.Create(ctx, doc, version); err != nil {
		s.discard(ctx, doc.StorageKey)
		return nil, err
	}
	s.record(ctx, doc.ID, caller, document.ActionCreated, doc.FileName)

	s.logger.Info("Document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.Int64("size", doc.FileSize))
	return doc, nil
}

// List returns the documents the caller may see
func (s *Service) List(ctx context.Context, caller Caller, filter document.Filter) (shared.Paginated[document.Document], error) {
	viewer, err := s.viewer(ctx, caller)
	if err != nil {
		return shared.Paginated[document.Document]{}, err
	}
	filter.Filter = filter.Filter.Normalize()
	filter.VisibleTo = &viewer
	filter.At = s.now()
	docs, total, err := s.repos.Documents.List(ctx, filter)
	if err != nil {
		return shared.Paginated[document.Document]{}, err
	}
	return shared.NewPaginated(docs, total, filter.Page, filter.PageSize), nil
}

// Get returns a document and logs the view
func (s *Service) Get(ctx context.Context, caller Caller, id uuid.UUID) (*document.Document, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessView)
	if err != nil {
		return nil, err
	}
	s.record(ctx, doc.ID, caller, document.ActionViewed, "")
	return doc, nil
}

// Update replaces the metadata of a document
func (s *Service) Update(ctx context.Context, caller Caller, id uuid.UUID, details document.Details) (*document.Document, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessEdit)
	if err != nil {
		return nil, err
	}
	if err := doc.Update(details); err != nil {
		return nil, err
	}
	if err := s.repos.Documents.Update(ctx, doc); err != nil {
		return nil, err
	}
	s.record(ctx, doc.ID, caller, document.ActionEdited, "")
	return doc, nil
}

// Archive moves a document to the archive
func (s *Service) Archive(ctx context.Context, caller Caller, id uuid.UUID) (*document.Document, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessEdit)
	if err != nil {
		return nil, err
	}
	if err := doc.Archive(); err != nil {
		return nil, err
	}
	if err := s.repos.Documents.Update(ctx, doc); err != nil {
		return nil, err
	}
	s.record(ctx, doc.ID, caller, document.ActionArchived, "")
	return doc, nil
}

// Delete marks a document deleted
func (s *Service) Delete(ctx context.Context, caller Caller, id uuid.UUID) error {
	doc, err := s.authorize(ctx, caller, id, document.AccessDelete)
	if err != nil {
		return err
	}
	if err := doc.Delete(); err != nil {
		return err
	}
	if err := s.repos.Documents.Update(ctx, doc); err != nil {
		return err
	}
	s.record(ctx, doc.ID, caller, document.ActionDeleted, "")
	s.logger.Info("Document deleted", zap.String("document_id", doc.ID.String()))
	return nil
}

// Download returns a presigned URL for a version (0 = current) or, when the
// storage cannot presign, an open stream the caller must close
func (s *Service) Download(ctx context.Context, caller Caller, id uuid.UUID, versionNumber int) (*Download, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessView)
	if err != nil {
		return nil, err
	}
	out := &Download{FileName: doc.FileName, MimeType: doc.MimeType, Size: doc.FileSize}
	key := doc.StorageKey
	if versionNumber > 0 && versionNumber != doc.Version {
		v, err := s.repos.Versions.FindByNumber(ctx, doc.ID, versionNumber)
		if err != nil {
			return nil, notFoundAs(err, "Document version")
		}
		key, out.FileName, out.Size = v.StorageKey, v.FileName, v.FileSize
		out.MimeType = mimeOf(v.FileName, "")
	}

	url, expires, err := s.storage.PresignGet(ctx, key, out.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare download: %w", err)
	}
	if url != "" {
		out.URL, out.ExpiresAt = url, expires
	} else if out.Body, err = s.storage.Open(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	s.record(ctx, doc.ID, caller, document.ActionDownloaded, out.FileName)
	return out, nil
}

// AddVersion stores new content for a document
func (s *Service) AddVersion(ctx context.Context, caller Caller, id uuid.UUID, up Upload, note string) (*document.Version, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessEdit)
	if err != nil {
		return nil, err
	}
	file, err := describe(up)
	if err != nil {
		return nil, err
	}
	exists, err := s.repos.Documents.ExistsByHash(ctx, file.Hash, doc.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewConflictError("Another document already holds this content")
	}
	version, err := doc.AddVersion(file, note, caller.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.storage.Put(ctx, doc.StorageKey, up.Data, file.MimeType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if err := s.repos.Documents.AddVersion(ctx, doc, version); err != nil {
		s.discard(ctx, doc.StorageKey)
		return nil, err
	}
	s.record(ctx, doc.ID, caller, document.ActionVersionAdded, fmt.Sprintf("v%d", version.VersionNumber))
	return version, nil
}

// Versions lists the versions of a document, newest first
func (s *Service) Versions(ctx context.Context, caller Caller, id uuid.UUID) ([]document.Version, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessView)
	if err != nil {
		return nil, err
	}
	return s.repos.Versions.ListByDocument(ctx, doc.ID)
}

// GrantAccess shares a document with a user or a department
func (s *Service) GrantAccess(ctx context.Context, caller Caller, id uuid.UUID, grant document.Grant) (*document.Access, error) {
	doc, err := s.manage(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	access, err := document.NewAccess(doc.ID, grant, caller.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repos.Access.Create(ctx, access); err != nil {
		return nil, err
	}
	target := access.Department
	if access.UserID != nil {
		target = access.UserID.String()
	}
	s.record(ctx, doc.ID, caller, document.ActionShared, fmt.Sprintf("%s:%s", target, access.Level))
	return access, nil
}

// ListAccess lists the grants of a document
func (s *Service) ListAccess(ctx context.Context, caller Caller, id uuid.UUID) ([]document.Access, error) {
	doc, err := s.manage(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.repos.Access.ListByDocument(ctx, doc.ID)
}

// RevokeAccess removes a grant
func (s *Service) RevokeAccess(ctx context.Context, caller Caller, id, accessID uuid.UUID) error {
	doc, err := s.manage(ctx, caller, id)
	if err != nil {
		return err
	}
	return notFoundAs(s.repos.Access.Delete(ctx, doc.ID, accessID), "Access grant")
}

// Activity returns the latest log entries of a document
func (s *Service) Activity(ctx context.Context, caller Caller, id uuid.UUID) ([]document.Log, error) {
	doc, err := s.manage(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.repos.Logs.ListByDocument(ctx, doc.ID, activityLimit)
}

// Preview renders a markdown file, or the description of any other document,
// to HTML. Raw HTML in the source is not passed through.
func (s *Service) Preview(ctx context.Context, caller Caller, id uuid.UUID) (string, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessView)
	if err != nil {
		return "", err
	}
	source := []byte(doc.Description)
	if doc.IsMarkdown() {
		body, err := s.storage.Open(ctx, doc.StorageKey)
		if err != nil {
			return "", fmt.Errorf("failed to open file: %w", err)
		}
		defer body.Close()
		if source, err = io.ReadAll(io.LimitReader(body, document.MaxFileSize)); err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// Activate marks a document approved; workflows call it on completion
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repos.Documents.FindByID(ctx, id)
	if err != nil {
		return notFoundAs(err, "Document")
	}
	if err := doc.Activate(); err != nil {
		return err
	}
	return s.repos.Documents.Update(ctx, doc)
}

// Exists reports whether a not deleted document exists
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	doc, err := s.repos.Documents.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.Status != document.StatusDeleted, nil
}

func (s *Service) viewer(ctx context.Context, caller Caller) (document.Viewer, error) {
	v := document.Viewer{UserID: caller.UserID, Role: caller.Role}
	if v.IsAdmin() || s.departments == nil {
		return v, nil
	}
	dept, err := s.departments.DepartmentOf(ctx, caller.UserID)
	if err != nil {
		return v, err
	}
	v.Department = dept
	return v, nil
}

// authorize loads a document and checks that caller holds level on it.
// A document the caller may not see is reported as missing.
func (s *Service) authorize(ctx context.Context, caller Caller, id uuid.UUID, level document.AccessLevel) (*document.Document, error) {
	doc, err := s.repos.Documents.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Document")
	}
	viewer, err := s.viewer(ctx, caller)
	if err != nil {
		return nil, err
	}
	if viewer.Manages(doc) {
		return doc, nil
	}
	grants, err := s.repos.Access.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if document.CanAccess(viewer, doc, grants, level, s.now()) {
		return doc, nil
	}
	if level != document.AccessView && document.CanAccess(viewer, doc, grants, document.AccessView, s.now()) {
		return nil, shared.NewForbiddenError(fmt.Sprintf("You need %s access to this document", level))
	}
	return nil, shared.NewNotFoundError("Document")
}

func (s *Service) manage(ctx context.Context, caller Caller, id uuid.UUID) (*document.Document, error) {
	doc, err := s.authorize(ctx, caller, id, document.AccessView)
	if err != nil {
		return nil, err
	}
	if caller.Role != "admin" && doc.CreatedBy != caller.UserID {
		return nil, shared.NewForbiddenError("Only the owner or an admin can manage access")
	}
	return doc, nil
}

func (s *Service) record(ctx context.Context, documentID uuid.UUID, caller Caller, action document.Action, details string) {
	entry := document.NewLog(documentID, caller.UserID, action, details, caller.IP)
	if err := s.repos.Logs.Create(ctx, entry); err != nil {
		s.logger.Warn("Failed to write document log",
			zap.String("document_id", documentID.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to remove orphaned file", zap.String("key", key), zap.Error(err))
	}
}

// describe hashes an upload and checks its content type
func describe(up Upload) (document.File, error) {
	contentType := mimeOf(up.FileName, up.ContentType)
	if !AllowedContentTypes[contentType] {
		return document.File{}, shared.NewValidationError(fmt.Sprintf("File type %q is not allowed", contentType))
	}
	sum := sha256.Sum256(up.Data)
	return document.File{
		Name:     up.FileName,
		Size:     int64(len(up.Data)),
		MimeType: contentType,
		Hash:     hex.EncodeToString(sum[:]),
	}, nil
}

// mimeOf returns the media type without parameters, guessing from the
// extension when the client sent none or a generic one
func mimeOf(fileName, contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
		return mt
	}
	switch strings.ToLower(path.Ext(fileName)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	}
	if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(path.Ext(fileName))); err == nil {
		return mt
	}
	return "application/octet-stream"
}

func notFoundAs(err error, resource string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(resource)
	}
	return err
}
