// Package document holds electronic documents, their versions, access grants
// and the per-document activity log.
package document

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// Status is the lifecycle state of a document
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// IsValid reports whether s is a known document status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// MaxFileSize is the largest accepted upload
const MaxFileSize = 50 << 20

// Document is an uploaded file with its metadata. FileName, FileSize,
// StorageKey and FileHash always describe the latest version.
type Document struct {
	shared.BaseEntity
	Title       string            `gorm:"size:200;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	FileName    string            `gorm:"size:255;not null" json:"file_name"`
	FileSize    int64             `gorm:"not null" json:"file_size"`
	MimeType    string            `gorm:"size:100" json:"mime_type"`
	StorageKey  string            `gorm:"size:500;not null" json:"-"`
	FileHash    string            `gorm:"size:64;not null;uniqueIndex" json:"file_hash"`
	Category    string            `gorm:"size:100;index" json:"category"`
	Tags        []string          `gorm:"type:text;serializer:json" json:"tags"`
	Status      Status            `gorm:"size:20;not null;index" json:"status"`
	Version     int               `gorm:"not null;default:1" json:"version"`
	IsPublic    bool              `gorm:"not null;default:false" json:"is_public"`
	CreatedBy   uuid.UUID         `gorm:"type:uuid;not null;index" json:"created_by"`
	Department  string            `gorm:"size:100;index" json:"department"`
	Metadata    map[string]string `gorm:"type:text;serializer:json" json:"metadata"`
}

// TableName returns the table name for GORM
func (Document) TableName() string {
	return "documents"
}

// Details are the editable metadata of a document
type Details struct {
	Title       string
	Description string
	Category    string
	Tags        []string
	IsPublic    bool
	Department  string
	Metadata    map[string]string
}

func (d Details) normalize() (Details, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return d, shared.NewValidationError("Title is required")
	}
	if len(d.Title) > 200 {
		return d, shared.NewValidationError("Title must be at most 200 characters")
	}
	d.Category = strings.TrimSpace(d.Category)
	d.Department = strings.TrimSpace(d.Department)
	tags := make([]string, 0, len(d.Tags))
	seen := make(map[string]bool, len(d.Tags))
	for _, t := range d.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	d.Tags = tags
	if d.Metadata == nil {
		d.Metadata = map[string]string{}
	}
	return d, nil
}

// File describes the stored bytes of one version
type File struct {
	Name     string
	Size     int64
	MimeType string
	Hash     string
}

func (f File) validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return shared.NewValidationError("File name is required")
	}
	if f.Size <= 0 {
		return shared.NewValidationError("File is empty")
	}
	if f.Size > MaxFileSize {
		return shared.NewValidationError(fmt.Sprintf("File exceeds the %d MB limit", MaxFileSize>>20))
	}
	if len(f.Hash) != 64 {
		return shared.NewValidationError("File hash must be a hex sha256 digest")
	}
	return nil
}

// StorageKey returns the object key of version n of a document
func StorageKey(documentID uuid.UUID, version int, fileName string) string {
	return fmt.Sprintf("documents/%s/v%d/%s", documentID, version, path.Base(strings.ReplaceAll(fileName, "\\", "/")))
}

// NewDocument creates a draft document holding its first version
func NewDocument(details Details, file File, createdBy uuid.UUID) (*Document, *Version, error) {
	details, err := details.normalize()
	if err != nil {
		return nil, nil, err
	}
	if err := file.validate(); err != nil {
		return nil, nil, err
	}
	doc := &Document{
		BaseEntity: shared.NewBaseEntity(),
		Status:     StatusDraft,
		Version:    1,
		CreatedBy:  createdBy,
	}
	doc.apply(details)
	doc.setFile(file)
	return doc, doc.newVersion(file, "", createdBy), nil
}

func (d *Document) apply(details Details) {
	d.Title = details.Title
	d.Description = details.Description
	d.Category = details.Category
	d.Tags = details.Tags
	d.IsPublic = details.IsPublic
	d.Department = details.Department
	d.Metadata = details.Metadata
}

func (d *Document) setFile(file File) {
	d.FileName = path.Base(strings.ReplaceAll(file.Name, "\\", "/"))
	d.FileSize = file.Size
	d.MimeType = file.MimeType
	d.FileHash = file.Hash
	d.StorageKey = StorageKey(d.ID, d.Version, d.FileName)
}

func (d *Document) newVersion(file File, note string, by uuid.UUID) *Version {
	return &Version{
		BaseEntity:    shared.NewBaseEntity(),
		DocumentID:    d.ID,
		VersionNumber: d.Version,
		FileName:      d.FileName,
		FileSize:      file.Size,
		StorageKey:    d.StorageKey,
		FileHash:      file.Hash,
		ChangeNote:    strings.TrimSpace(note),
		CreatedBy:     by,
	}
}

func (d *Document) ensureNotDeleted() error {
	if d.Status == StatusDeleted {
		return shared.NewStateError("Document is deleted")
	}
	return nil
}

// Update replaces the metadata of the document
func (d *Document) Update(details Details) error {
	if err := d.ensureNotDeleted(); err != nil {
		return err
	}
	details, err := details.normalize()
	if err != nil {
		return err
	}
	d.apply(details)
	d.Touch()
	return nil
}

// AddVersion makes file the current content and returns the new version row
func (d *Document) AddVersion(file File, note string, by uuid.UUID) (*Version, error) {
	if err := d.ensureNotDeleted(); err != nil {
		return nil, err
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	if file.Hash == d.FileHash {
		return nil, shared.NewValidationError("File is identical to the current version")
	}
	d.Version++
	d.setFile(file)
	d.Touch()
	return d.newVersion(file, note, by), nil
}

// Activate marks the document approved
func (d *Document) Activate() error {
	if err := d.ensureNotDeleted(); err != nil {
		return err
	}
	d.Status = StatusActive
	d.Touch()
	return nil
}

// Archive moves the document out of daily use
func (d *Document) Archive() error {
	if err := d.ensureNotDeleted(); err != nil {
		return err
	}
	if d.Status == StatusArchived {
		return shared.NewStateError("Document is already archived")
	}
	d.Status = StatusArchived
	d.Touch()
	return nil
}

// Delete marks the document deleted; the stored files are kept
func (d *Document) Delete() error {
	if err := d.ensureNotDeleted(); err != nil {
		return err
	}
	d.Status = StatusDeleted
	d.Touch()
	return nil
}

// IsMarkdown reports whether the current file is a markdown text
func (d *Document) IsMarkdown() bool {
	if strings.HasPrefix(d.MimeType, "text/markdown") {
		return true
	}
	ext := strings.ToLower(path.Ext(d.FileName))
	return ext == ".md" || ext == ".markdown"
}

// Version is one stored revision of a document
type Version struct {
	shared.BaseEntity
	DocumentID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_document_version" json:"document_id"`
	VersionNumber int       `gorm:"not null;uniqueIndex:idx_document_version" json:"version_number"`
	FileName      string    `gorm:"size:255;not null" json:"file_name"`
	FileSize      int64     `gorm:"not null" json:"file_size"`
	StorageKey    string    `gorm:"size:500;not null" json:"-"`
	FileHash      string    `gorm:"size:64;not null" json:"file_hash"`
	ChangeNote    string    `gorm:"type:text" json:"change_note"`
	CreatedBy     uuid.UUID `gorm:"type:uuid;not null" json:"created_by"`
}

// TableName returns the table name for GORM
func (Version) TableName() string {
	return "document_versions"
}

// Action is an entry type of the document activity log
type Action string

const (
	ActionCreated      Action = "created"
	ActionViewed       Action = "viewed"
	ActionDownloaded   Action = "downloaded"
	ActionEdited       Action = "edited"
	ActionDeleted      Action = "deleted"
	ActionShared       Action = "shared"
	ActionArchived     Action = "archived"
	ActionVersionAdded Action = "version_added"
)

// Log is one activity log entry
type Log struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	Action     Action    `gorm:"size:20;not null" json:"action"`
	Details    string    `gorm:"type:text" json:"details"`
	IP         string    `gorm:"size:45" json:"ip"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName returns the table name for GORM
func (Log) TableName() string {
	return "document_logs"
}

// NewLog creates an activity log entry
func NewLog(documentID, userID uuid.UUID, action Action, details, ip string) *Log {
	return &Log{
		ID:         uuid.New(),
		DocumentID: documentID,
		UserID:     userID,
		Action:     action,
		Details:    details,
		IP:         ip,
		CreatedAt:  time.Now(),
	}
}
