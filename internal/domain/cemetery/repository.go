package cemetery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// CemeteryFilter narrows cemetery listings; Search matches the name
type CemeteryFilter struct {
	shared.Filter
	Province        string
	District        string
	IncludeInactive bool
}

// CemeteryRepository defines persistence for cemeteries
type CemeteryRepository interface {
	Create(ctx context.Context, cemetery *Cemetery) error
	Update(ctx context.Context, cemetery *Cemetery) error
	FindByID(ctx context.Context, id uuid.UUID) (*Cemetery, error)
	List(ctx context.Context, filter CemeteryFilter) ([]Cemetery, int64, error)
}

// BlockRepository defines persistence for blocks
type BlockRepository interface {
	Create(ctx context.Context, block *Block) error
	FindByID(ctx context.Context, id uuid.UUID) (*Block, error)
	// ListByCemetery returns the blocks ordered by number
	ListByCemetery(ctx context.Context, cemeteryID uuid.UUID) ([]Block, error)
}

// GraveFilter narrows grave listings
type GraveFilter struct {
	shared.Filter
	BlockID    *uuid.UUID
	CemeteryID *uuid.UUID
	Status     GraveStatus
}

// GraveRepository defines persistence for graves
type GraveRepository interface {
	Create(ctx context.Context, grave *Grave) error
	Update(ctx context.Context, grave *Grave) error
	FindByID(ctx context.Context, id uuid.UUID) (*Grave, error)
	List(ctx context.Context, filter GraveFilter) ([]Grave, int64, error)
	CountByBlock(ctx context.Context, blockID uuid.UUID) (int64, error)
	// CountByStatus counts graves, optionally of one cemetery
	CountByStatus(ctx context.Context, cemeteryID *uuid.UUID) (map[GraveStatus]int64, error)
}

// BurialFilter narrows burial listings. Search matches the deceased name
// case-insensitively or the national ID exactly.
type BurialFilter struct {
	shared.Filter
	CemeteryID *uuid.UUID
	GraveID    *uuid.UUID
	FatherName string
	MotherName string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// BurialRepository defines persistence for burial records
type BurialRepository interface {
	// Record inserts the burial, marks its grave occupied and increments the
	// occupied counts of the grave's block and cemetery in one transaction.
	// It fails with a business rule error when the grave was occupied
	// concurrently.
	Record(ctx context.Context, burial *Burial) error
	Update(ctx context.Context, burial *Burial) error
	FindByID(ctx context.Context, id uuid.UUID) (*Burial, error)
	List(ctx context.Context, filter BurialFilter) ([]Burial, int64, error)
	// BurialDates returns the burial dates falling in [from, to)
	BurialDates(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// VisitorFilter narrows visitor log listings. DateTo is exclusive.
type VisitorFilter struct {
	shared.Filter
	CemeteryID *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
}

// VisitorRepository defines persistence for the visitor log
type VisitorRepository interface {
	Create(ctx context.Context, log *VisitorLog) error
	List(ctx context.Context, filter VisitorFilter) ([]VisitorLog, int64, error)
}
