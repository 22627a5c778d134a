package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/document"
	"github.com/municipal/backoffice/internal/domain/shared"
	"gorm.io/gorm"
)

// DocumentSortFields contains allowed sort fields for documents
var DocumentSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"title":      true,
	"category":   true,
	"file_size":  true,
}

// GormDocumentRepository implements document.Repository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// Create saves a new document and its first version
func (r *GormDocumentRepository) Create(ctx context.Context, doc *document.Document, first *document.Version) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return translateWriteError(err, "A document with the same content already exists")
		}
		return createVersion(tx, first)
	})
}

// Update saves changes to a document
func (r *GormDocumentRepository) Update(ctx context.Context, doc *document.Document) error {
	return saveDocument(r.db.WithContext(ctx), doc)
}

// AddVersion saves doc with its bumped version number and the version row
func (r *GormDocumentRepository) AddVersion(ctx context.Context, doc *document.Document, v *document.Version) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createVersion(tx, v); err != nil {
			return err
		}
		return saveDocument(tx, doc)
	})
}

func saveDocument(db *gorm.DB, doc *document.Document) error {
	result := db.Save(doc)
	if result.Error != nil {
		return translateWriteError(result.Error, "A document with the same content already exists")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func createVersion(db *gorm.DB, v *document.Version) error {
	return translateWriteError(db.Create(v).Error, "This version number already exists")
}

// FindByID finds a document by ID
func (r *GormDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	var doc document.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

// ExistsByHash reports whether a document other than exclude holds hash
func (r *GormDocumentRepository) ExistsByHash(ctx context.Context, hash string, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&document.Document{}).
		Where("file_hash = ? AND id <> ?", hash, exclude).
		Count(&count).Error
	return count > 0, err
}

// List returns a filtered page of documents. Deleted documents only show up
// when asked for by status.
func (r *GormDocumentRepository) List(ctx context.Context, filter document.Filter) ([]document.Document, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&document.Document{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	} else {
		query = query.Where("status <> ?", document.StatusDeleted)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(file_name) LIKE ?",
			pattern, pattern, pattern)
	}
	if v := filter.VisibleTo; v != nil && !v.IsAdmin() {
		granted := r.db.Model(&document.Access{}).Select("document_id").
			Where("(user_id = ? OR (department <> '' AND LOWER(department) = LOWER(?)))", v.UserID, v.Department).
			Where("expires_at IS NULL OR expires_at > ?", filter.At)
		query = query.Where("created_by = ? OR is_public = ? OR id IN (?)", v.UserID, true, granted)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var docs []document.Document
	query = orderBy(query, filter.Filter, DocumentSortFields, "created_at")
	if err := paginate(query, filter.Filter).Find(&docs).Error; err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// GormDocumentVersionRepository implements document.VersionRepository using GORM
type GormDocumentVersionRepository struct {
	db *gorm.DB
}

// NewGormDocumentVersionRepository creates a new GormDocumentVersionRepository
func NewGormDocumentVersionRepository(db *gorm.DB) *GormDocumentVersionRepository {
	return &GormDocumentVersionRepository{db: db}
}

// FindByNumber finds a version of a document by its number
func (r *GormDocumentVersionRepository) FindByNumber(ctx context.Context, documentID uuid.UUID, number int) (*document.Version, error) {
	var v document.Version
	if err := r.db.WithContext(ctx).
		Where("document_id = ? AND version_number = ?", documentID, number).
		First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// ListByDocument lists the versions of a document, newest first
func (r *GormDocumentVersionRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]document.Version, error) {
	var versions []document.Version
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("version_number DESC").
		Find(&versions).Error
	return versions, err
}

// GormDocumentAccessRepository implements document.AccessRepository using GORM
type GormDocumentAccessRepository struct {
	db *gorm.DB
}

// NewGormDocumentAccessRepository creates a new GormDocumentAccessRepository
func NewGormDocumentAccessRepository(db *gorm.DB) *GormDocumentAccessRepository {
	return &GormDocumentAccessRepository{db: db}
}

// Create saves a new grant
func (r *GormDocumentAccessRepository) Create(ctx context.Context, a *document.Access) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// Delete removes a grant of a document
func (r *GormDocumentAccessRepository) Delete(ctx context.Context, documentID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND document_id = ?", id, documentID).
		Delete(&document.Access{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListByDocument lists every grant of a document, expired ones included
func (r *GormDocumentAccessRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]document.Access, error) {
	var grants []document.Access
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at").
		Find(&grants).Error
	return grants, err
}

// GormDocumentLogRepository implements document.LogRepository using GORM
type GormDocumentLogRepository struct {
	db *gorm.DB
}

// NewGormDocumentLogRepository creates a new GormDocumentLogRepository
func NewGormDocumentLogRepository(db *gorm.DB) *GormDocumentLogRepository {
	return &GormDocumentLogRepository{db: db}
}

// Create appends a log entry
func (r *GormDocumentLogRepository) Create(ctx context.Context, l *document.Log) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// ListByDocument returns the latest entries of a document, newest first
func (r *GormDocumentLogRepository) ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]document.Log, error) {
	var logs []document.Log
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

var (
	_ document.Repository        = (*GormDocumentRepository)(nil)
	_ document.VersionRepository = (*GormDocumentVersionRepository)(nil)
	_ document.AccessRepository  = (*GormDocumentAccessRepository)(nil)
	_ document.LogRepository     = (*GormDocumentLogRepository)(nil)
)
