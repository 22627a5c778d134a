package document

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// Filter narrows document lists. A nil VisibleTo lists every document.
type Filter struct {
	shared.Filter
	Category  string
	Status    Status
	VisibleTo *Viewer
	At        time.Time
}

// Repository persists documents
type Repository interface {
	// Create saves a new document together with its first version
	Create(ctx context.Context, doc *Document, first *Version) error
	Update(ctx context.Context, doc *Document) error
	// AddVersion saves the document and its new version in one transaction
	AddVersion(ctx context.Context, doc *Document, v *Version) error
	FindByID(ctx context.Context, id uuid.UUID) (*Document, error)
	// ExistsByHash reports whether another document already holds the content
	ExistsByHash(ctx context.Context, hash string, exclude uuid.UUID) (bool, error)
	List(ctx context.Context, filter Filter) ([]Document, int64, error)
}

// VersionRepository persists document versions
type VersionRepository interface {
	FindByNumber(ctx context.Context, documentID uuid.UUID, number int) (*Version, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]Version, error)
}

// AccessRepository persists access grants
type AccessRepository interface {
	Create(ctx context.Context, a *Access) error
	Delete(ctx context.Context, documentID, id uuid.UUID) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]Access, error)
}

// LogRepository persists the activity log
type LogRepository interface {
	Create(ctx context.Context, l *Log) error
	ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]Log, error)
}
