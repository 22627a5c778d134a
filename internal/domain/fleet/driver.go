package fleet

import (
	"regexp"
	"strings"
	"time"

	"github.com/municipal/backoffice/internal/domain/shared"
)

var nationalIDPattern = regexp.MustCompile(`^[0-9]{11}$`)

// Driver is a municipal employee licensed to drive fleet vehicles
type Driver struct {
	shared.BaseEntity
	FirstName     string     `gorm:"size:50;not null" json:"first_name"`
	LastName      string     `gorm:"size:50;not null" json:"last_name"`
	NationalID    string     `gorm:"size:11;not null;uniqueIndex" json:"national_id"`
	LicenseNumber string     `gorm:"size:20;not null;uniqueIndex" json:"license_number"`
	LicenseClass  string     `gorm:"size:10" json:"license_class"`
	LicenseExpiry *time.Time `gorm:"type:date" json:"license_expiry,omitempty"`
	Phone         string     `gorm:"size:20" json:"phone"`
	Department    string     `gorm:"size:100;index" json:"department"`
	IsActive      bool       `gorm:"not null;index" json:"is_active"`
}

// TableName returns the table name for GORM
func (Driver) TableName() string {
	return "drivers"
}

// FullName returns "first last"
func (d *Driver) FullName() string {
	return d.FirstName + " " + d.LastName
}

// DriverDetails are the editable attributes of a driver
type DriverDetails struct {
	FirstName     string
	LastName      string
	NationalID    string
	LicenseNumber string
	LicenseClass  string
	LicenseExpiry *time.Time
	Phone         string
	Department    string
}

func (d DriverDetails) normalize() (DriverDetails, error) {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.NationalID = strings.TrimSpace(d.NationalID)
	d.LicenseNumber = strings.ToUpper(strings.TrimSpace(d.LicenseNumber))
	d.LicenseClass = strings.ToUpper(strings.TrimSpace(d.LicenseClass))

	if d.FirstName == "" || d.LastName == "" {
		return d, shared.NewValidationError("First and last name are required")
	}
	if !nationalIDPattern.MatchString(d.NationalID) {
		return d, shared.NewValidationError("National ID must be exactly 11 digits")
	}
	if d.LicenseNumber == "" {
		return d, shared.NewValidationError("License number is required")
	}
	return d, nil
}

// NewDriver registers a driver
func NewDriver(details DriverDetails) (*Driver, error) {
	details, err := details.normalize()
	if err != nil {
		return nil, err
	}
	d := &Driver{BaseEntity: shared.NewBaseEntity(), IsActive: true}
	d.apply(details)
	return d, nil
}

// Update replaces the editable attributes
func (d *Driver) Update(details DriverDetails) error {
	details, err := details.normalize()
	if err != nil {
		return err
	}
	d.apply(details)
	d.Touch()
	return nil
}

func (d *Driver) apply(details DriverDetails) {
	d.FirstName = details.FirstName
	d.LastName = details.LastName
	d.NationalID = details.NationalID
	d.LicenseNumber = details.LicenseNumber
	d.LicenseClass = details.LicenseClass
	d.LicenseExpiry = details.LicenseExpiry
	d.Phone = details.Phone
	d.Department = details.Department
}

// Deactivate soft deletes the driver
func (d *Driver) Deactivate() error {
	if !d.IsActive {
		return shared.NewStateError("Driver is already inactive")
	}
	d.IsActive = false
	d.Touch()
	return nil
}
