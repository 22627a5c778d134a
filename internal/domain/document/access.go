package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// AccessLevel is what a grant allows; each level includes the ones below it
type AccessLevel string

const (
	AccessView   AccessLevel = "view"
	AccessEdit   AccessLevel = "edit"
	AccessDelete AccessLevel = "delete"
	AccessShare  AccessLevel = "share"
)

var accessRank = map[AccessLevel]int{
	AccessView:   1,
	AccessEdit:   2,
	AccessDelete: 3,
	AccessShare:  4,
}

// IsValid reports whether l is a known access level
func (l AccessLevel) IsValid() bool {
	_, ok := accessRank[l]
	return ok
}

// Covers reports whether l grants at least required
func (l AccessLevel) Covers(required AccessLevel) bool {
	return accessRank[l] >= accessRank[required]
}

// Access grants a user or a whole department rights on a document
type Access struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID   `gorm:"type:uuid;not null;index" json:"document_id"`
	UserID     *uuid.UUID  `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Department string      `gorm:"size:100;index" json:"department,omitempty"`
	Level      AccessLevel `gorm:"size:10;not null" json:"access_level"`
	GrantedBy  uuid.UUID   `gorm:"type:uuid;not null" json:"granted_by"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
	CreatedAt  time.Time   `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (Access) TableName() string {
	return "document_accesses"
}

// Grant is the input of NewAccess
type Grant struct {
	UserID     *uuid.UUID
	Department string
	Level      AccessLevel
	ExpiresAt  *time.Time
}

// NewAccess creates a grant for exactly one user or one department
func NewAccess(documentID uuid.UUID, g Grant, grantedBy uuid.UUID, now time.Time) (*Access, error) {
	g.Department = strings.TrimSpace(g.Department)
	if (g.UserID == nil) == (g.Department == "") {
		return nil, shared.NewValidationError("Grant access to either a user or a department")
	}
	if !g.Level.IsValid() {
		return nil, shared.NewValidationError("Access level must be one of view, edit, delete, share")
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return nil, shared.NewValidationError("Expiry must be in the future")
	}
	return &Access{
		ID:         uuid.New(),
		DocumentID: documentID,
		UserID:     g.UserID,
		Department: g.Department,
		Level:      g.Level,
		GrantedBy:  grantedBy,
		ExpiresAt:  g.ExpiresAt,
		CreatedAt:  now,
	}, nil
}

// ActiveAt reports whether the grant is not expired at t
func (a *Access) ActiveAt(t time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

// AppliesTo reports whether the grant targets the user or the user's department
func (a *Access) AppliesTo(userID uuid.UUID, department string) bool {
	if a.UserID != nil {
		return *a.UserID == userID
	}
	return department != "" && strings.EqualFold(a.Department, department)
}

// Viewer is the user a document is accessed by
type Viewer struct {
	UserID     uuid.UUID
	Role       string
	Department string
}

// IsAdmin reports whether the viewer has the admin role
func (v Viewer) IsAdmin() bool {
	return v.Role == "admin"
}

// Manages reports whether v is the owner of d or an admin
func (v Viewer) Manages(d *Document) bool {
	return v.IsAdmin() || d.CreatedBy == v.UserID
}

// CanAccess decides whether v holds level on d given the document's grants.
// Public documents are viewable by everyone.
func CanAccess(v Viewer, d *Document, grants []Access, level AccessLevel, now time.Time) bool {
	if v.Manages(d) {
		return true
	}
	if d.Status == StatusDeleted {
		return false
	}
	if d.IsPublic && level == AccessView {
		return true
	}
	for i := range grants {
		g := &grants[i]
		if g.DocumentID == d.ID && g.ActiveAt(now) && g.AppliesTo(v.UserID, v.Department) && g.Level.Covers(level) {
			return true
		}
	}
	return false
}
