// Package library holds the public library: the catalogue of books and their
// physical copies, members, loans, reservations and fines.
package library

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

var isbnPattern = regexp.MustCompile(`^\d{13}$`)

// Book is a catalogue entry
type Book struct {
	shared.BaseEntity
	ISBN          string `gorm:"size:13;not null;uniqueIndex" json:"isbn"`
	Title         string `gorm:"size:300;not null;index" json:"title"`
	Author        string `gorm:"size:200;not null" json:"author"`
	Publisher     string `gorm:"size:200" json:"publisher"`
	PublishYear   int    `json:"publish_year"`
	Category      string `gorm:"size:100;index" json:"category"`
	Language      string `gorm:"size:10;not null;default:'TR'" json:"language"`
	PageCount     int    `json:"page_count"`
	Description   string `gorm:"type:text" json:"description"`
	ShelfLocation string `gorm:"size:50" json:"shelf_location"`
}

// TableName returns the table name for GORM
func (Book) TableName() string {
	return "library_books"
}

// BookDetails are the editable attributes of a book
type BookDetails struct {
	ISBN          string
	Title         string
	Author        string
	Publisher     string
	PublishYear   int
	Category      string
	Language      string
	PageCount     int
	Description   string
	ShelfLocation string
}

// NewBook validates details and creates a book
func NewBook(d BookDetails) (*Book, error) {
	b := &Book{BaseEntity: shared.NewBaseEntity()}
	if err := b.Update(d); err != nil {
		return nil, err
	}
	return b, nil
}

// Update replaces the attributes of the book
func (b *Book) Update(d BookDetails) error {
	d.ISBN = strings.ReplaceAll(strings.TrimSpace(d.ISBN), "-", "")
	if !isbnPattern.MatchString(d.ISBN) {
		return shared.NewValidationError("ISBN must be 13 digits")
	}
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return shared.NewValidationError("Title is required")
	}
	d.Author = strings.TrimSpace(d.Author)
	if d.Author == "" {
		return shared.NewValidationError("Author is required")
	}
	if d.PublishYear != 0 && (d.PublishYear < 1000 || d.PublishYear > time.Now().Year()+1) {
		return shared.NewValidationError("Publish year is out of range")
	}
	if d.PageCount < 0 {
		return shared.NewValidationError("Page count cannot be negative")
	}
	if d.Language == "" {
		d.Language = "TR"
	}

	b.ISBN = d.ISBN
	b.Title = d.Title
	b.Author = d.Author
	b.Publisher = strings.TrimSpace(d.Publisher)
	b.PublishYear = d.PublishYear
	b.Category = strings.TrimSpace(d.Category)
	b.Language = strings.ToUpper(d.Language)
	b.PageCount = d.PageCount
	b.Description = d.Description
	b.ShelfLocation = strings.TrimSpace(d.ShelfLocation)
	b.Touch()
	return nil
}

// CopyStatus is the circulation state of a copy
type CopyStatus string

const (
	CopyAvailable   CopyStatus = "AVAILABLE"
	CopyBorrowed    CopyStatus = "BORROWED"
	CopyReserved    CopyStatus = "RESERVED"
	CopyLost        CopyStatus = "LOST"
	CopyDamaged     CopyStatus = "DAMAGED"
	CopyMaintenance CopyStatus = "MAINTENANCE"
)

// IsValid reports whether s is a known copy status
func (s CopyStatus) IsValid() bool {
	switch s {
	case CopyAvailable, CopyBorrowed, CopyReserved, CopyLost, CopyDamaged, CopyMaintenance:
		return true
	}
	return false
}

// Copy is a physical copy of a book
type Copy struct {
	shared.BaseEntity
	BookID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"book_id"`
	CopyNumber   string     `gorm:"size:20;not null;uniqueIndex" json:"copy_number"`
	Status       CopyStatus `gorm:"size:20;not null;index" json:"status"`
	Condition    string     `gorm:"type:text" json:"condition"`
	AcquiredDate time.Time  `gorm:"type:date;not null" json:"acquired_date"`
}

// TableName returns the table name for GORM
func (Copy) TableName() string {
	return "library_book_copies"
}

// NewCopy creates the seq-th copy of a book, numbered "<isbn>-NNN"
func NewCopy(book *Book, seq int, condition string, acquired time.Time) *Copy {
	return &Copy{
		BaseEntity:   shared.NewBaseEntity(),
		BookID:       book.ID,
		CopyNumber:   fmt.Sprintf("%s-%03d", book.ISBN, seq),
		Status:       CopyAvailable,
		Condition:    strings.TrimSpace(condition),
		AcquiredDate: dateOf(acquired),
	}
}

// SetStatus changes the status by hand. Borrowed copies change only through
// loans.
func (c *Copy) SetStatus(status CopyStatus, condition string) error {
	if !status.IsValid() {
		return shared.NewValidationError("Unknown copy status")
	}
	if c.Status == CopyBorrowed || status == CopyBorrowed {
		return shared.NewStateError("Borrowed copies change status through loans")
	}
	c.Status = status
	if condition = strings.TrimSpace(condition); condition != "" {
		c.Condition = condition
	}
	c.Touch()
	return nil
}

func (c *Copy) lend() error {
	if c.Status != CopyAvailable {
		return shared.NewStateError(fmt.Sprintf("Copy %s is %s", c.CopyNumber, c.Status))
	}
	c.Status = CopyBorrowed
	c.Touch()
	return nil
}

func (c *Copy) shelve() {
	c.Status = CopyAvailable
	c.Touch()
}

// dateOf truncates t to midnight UTC
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
