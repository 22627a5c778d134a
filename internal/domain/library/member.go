package library

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/municipal/backoffice/internal/domain/shared"
)

var (
	tcNoPattern  = regexp.MustCompile(`^\d{11}$`)
	phonePattern = regexp.MustCompile(`^\+?\d{9,15}$`)
)

// MemberType is the membership category
type MemberType string

const (
	MemberStudent MemberType = "STUDENT"
	MemberTeacher MemberType = "TEACHER"
	MemberStaff   MemberType = "STAFF"
	MemberPublic  MemberType = "PUBLIC"
)

// IsValid reports whether t is a known member type
func (t MemberType) IsValid() bool {
	switch t {
	case MemberStudent, MemberTeacher, MemberStaff, MemberPublic:
		return true
	}
	return false
}

// MemberStatus is the state of a membership
type MemberStatus string

const (
	MemberActive    MemberStatus = "ACTIVE"
	MemberSuspended MemberStatus = "SUSPENDED"
	MemberExpired   MemberStatus = "EXPIRED"
	MemberBlocked   MemberStatus = "BLOCKED"
)

// IsValid reports whether s is a known member status
func (s MemberStatus) IsValid() bool {
	switch s {
	case MemberActive, MemberSuspended, MemberExpired, MemberBlocked:
		return true
	}
	return false
}

// Member is a library patron
type Member struct {
	shared.BaseEntity
	MemberNumber     string       `gorm:"size:20;not null;uniqueIndex" json:"member_number"`
	FirstName        string       `gorm:"size:100;not null" json:"first_name"`
	LastName         string       `gorm:"size:100;not null" json:"last_name"`
	Email            string       `gorm:"size:254;not null;uniqueIndex" json:"email"`
	Phone            string       `gorm:"size:15" json:"phone"`
	TCNo             string       `gorm:"column:tc_no;size:11;not null;uniqueIndex" json:"tc_no"`
	Address          string       `gorm:"type:text" json:"address"`
	BirthDate        *time.Time   `gorm:"type:date" json:"birth_date,omitempty"`
	MemberType       MemberType   `gorm:"size:20;not null;index" json:"member_type"`
	Status           MemberStatus `gorm:"size:20;not null;index" json:"status"`
	RegistrationDate time.Time    `gorm:"not null" json:"registration_date"`
	ExpiryDate       time.Time    `gorm:"type:date;not null" json:"expiry_date"`
}

// TableName returns the table name for GORM
func (Member) TableName() string {
	return "library_members"
}

// MemberDetails are the editable attributes of a member. A zero ExpiryDate
// means one year after registration.
type MemberDetails struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	TCNo       string
	Address    string
	BirthDate  *time.Time
	MemberType MemberType
	Status     MemberStatus
	ExpiryDate time.Time
}

// MemberNumberPrefix returns the prefix shared by members of a type
// registered in a year, e.g. "S2025"
func MemberNumberPrefix(t MemberType, year int) string {
	return fmt.Sprintf("%s%d", string(t)[:1], year)
}

// NextMemberSequence returns the sequence that follows last, the highest
// member number issued under prefix. An empty last starts at 1.
func NextMemberSequence(prefix, last string) (int, error) {
	if last == "" {
		return 1, nil
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
	if err != nil || !strings.HasPrefix(last, prefix) {
		return 0, fmt.Errorf("malformed member number %q", last)
	}
	return seq + 1, nil
}

// NewMember registers a member. seq is the 1-based position among members
// with the same number prefix.
func NewMember(d MemberDetails, seq int, now time.Time) (*Member, error) {
	if !d.MemberType.IsValid() {
		return nil, shared.NewValidationError("Member type must be one of STUDENT, TEACHER, STAFF, PUBLIC")
	}
	m := &Member{
		BaseEntity:       shared.NewBaseEntity(),
		MemberType:       d.MemberType,
		Status:           MemberActive,
		RegistrationDate: now,
	}
	if d.Status == "" {
		d.Status = MemberActive
	}
	if d.ExpiryDate.IsZero() {
		d.ExpiryDate = now.AddDate(1, 0, 0)
	}
	if err := m.Update(d); err != nil {
		return nil, err
	}
	m.MemberNumber = fmt.Sprintf("%s%05d", MemberNumberPrefix(d.MemberType, now.Year()), seq)
	return m, nil
}

// Update replaces the attributes of the member; the number never changes
func (m *Member) Update(d MemberDetails) error {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	if d.FirstName == "" || d.LastName == "" {
		return shared.NewValidationError("First and last name are required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(d.Email))
	if err != nil {
		return shared.NewValidationError("Email is invalid")
	}
	if !tcNoPattern.MatchString(d.TCNo) {
		return shared.NewValidationError("TC number must be 11 digits")
	}
	if d.Phone != "" && !phonePattern.MatchString(d.Phone) {
		return shared.NewValidationError("Phone number is invalid")
	}
	if d.MemberType == "" {
		d.MemberType = m.MemberType
	}
	if !d.MemberType.IsValid() {
		return shared.NewValidationError("Unknown member type")
	}
	if d.Status == "" {
		d.Status = m.Status
	}
	if !d.Status.IsValid() {
		return shared.NewValidationError("Unknown member status")
	}
	if d.ExpiryDate.IsZero() {
		d.ExpiryDate = m.ExpiryDate
	}

	m.FirstName = d.FirstName
	m.LastName = d.LastName
	m.Email = strings.ToLower(addr.Address)
	m.Phone = d.Phone
	m.TCNo = d.TCNo
	m.Address = strings.TrimSpace(d.Address)
	m.BirthDate = d.BirthDate
	m.MemberType = d.MemberType
	m.Status = d.Status
	m.ExpiryDate = dateOf(d.ExpiryDate)
	m.Touch()
	return nil
}

// FullName returns first and last name
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// IsActive reports whether the membership is ACTIVE and not past its expiry
func (m *Member) IsActive(now time.Time) bool {
	return m.Status == MemberActive && !dateOf(now).After(m.ExpiryDate)
}

// Eligibility explains whether a member may borrow
type Eligibility struct {
	CanBorrow   bool   `json:"can_borrow"`
	ActiveLoans int64  `json:"active_loans"`
	MaxLoans    int    `json:"max_loans"`
	Reason      string `json:"reason,omitempty"`
}

// Eligibility checks the borrowing rules given the member's open loans
func (m *Member) Eligibility(openLoans int64, rules Rules, now time.Time) Eligibility {
	e := Eligibility{CanBorrow: true, ActiveLoans: openLoans, MaxLoans: rules.MaxLoansPerMember}
	switch {
	case m.Status != MemberActive:
		e.CanBorrow, e.Reason = false, fmt.Sprintf("Membership is %s", m.Status)
	case !m.IsActive(now):
		e.CanBorrow, e.Reason = false, "Membership has expired"
	case openLoans >= int64(rules.MaxLoansPerMember):
		e.CanBorrow, e.Reason = false, fmt.Sprintf("Member already has %d open loans", openLoans)
	}
	return e
}
