// Package fleet holds the municipal vehicle fleet: vehicles, drivers, their
// assignments, maintenance history and fuel consumption.
package fleet

import (
	"regexp"
	"strings"
	"time"

	"github.com/municipal/backoffice/internal/domain/shared"
)

// province code 01-81, 1-3 letters, 2-4 digits
var platePattern = regexp.MustCompile(`^(0[1-9]|[1-7][0-9]|8[01]) ?[A-Z]{1,3} ?[0-9]{2,4}$`)

// NormalizePlate upper-cases a plate and collapses its whitespace
func NormalizePlate(plate string) string {
	return strings.Join(strings.Fields(strings.ToUpper(plate)), " ")
}

// VehicleStatus is the operational state of a vehicle
type VehicleStatus string

const (
	VehicleStatusActive       VehicleStatus = "active"
	VehicleStatusMaintenance  VehicleStatus = "maintenance"
	VehicleStatusOutOfService VehicleStatus = "out_of_service"
	VehicleStatusSold         VehicleStatus = "sold"
)

// IsValid reports whether s is a known vehicle status
func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleStatusActive, VehicleStatusMaintenance, VehicleStatusOutOfService, VehicleStatusSold:
		return true
	}
	return false
}

// VehicleStatuses lists every status, in dashboard order
var VehicleStatuses = []VehicleStatus{
	VehicleStatusActive, VehicleStatusMaintenance, VehicleStatusOutOfService, VehicleStatusSold,
}

// Vehicle is a municipal vehicle. Deleting a vehicle only clears IsActive.
type Vehicle struct {
	shared.BaseEntity
	Plate            string        `gorm:"size:20;not null;uniqueIndex" json:"plate"`
	Brand            string        `gorm:"size:50;not null" json:"brand"`
	Model            string        `gorm:"size:50;not null" json:"model"`
	Year             int           `gorm:"not null" json:"year"`
	VehicleType      string        `gorm:"size:30" json:"vehicle_type"`
	FuelType         string        `gorm:"size:20" json:"fuel_type"`
	Department       string        `gorm:"size:100;index" json:"department"`
	Status           VehicleStatus `gorm:"size:20;not null;index" json:"status"`
	CurrentKm        int           `gorm:"not null;default:0" json:"current_km"`
	PurchaseDate     *time.Time    `gorm:"type:date" json:"purchase_date,omitempty"`
	InsuranceExpiry  *time.Time    `gorm:"type:date" json:"insurance_expiry,omitempty"`
	InspectionExpiry *time.Time    `gorm:"type:date" json:"inspection_expiry,omitempty"`
	IsActive         bool          `gorm:"not null;index" json:"is_active"`
}

// TableName returns the table name for GORM
func (Vehicle) TableName() string {
	return "vehicles"
}

// VehicleDetails are the editable attributes of a vehicle
type VehicleDetails struct {
	Plate            string
	Brand            string
	Model            string
	Year             int
	VehicleType      string
	FuelType         string
	Department       string
	Status           VehicleStatus
	CurrentKm        int
	PurchaseDate     *time.Time
	InsuranceExpiry  *time.Time
	InspectionExpiry *time.Time
}

func (d VehicleDetails) normalize() (VehicleDetails, error) {
	d.Plate = NormalizePlate(d.Plate)
	d.Brand = strings.TrimSpace(d.Brand)
	d.Model = strings.TrimSpace(d.Model)
	d.Department = strings.TrimSpace(d.Department)

	if !platePattern.MatchString(d.Plate) {
		return d, shared.NewValidationError("Plate must look like 34 ABC 123")
	}
	if d.Brand == "" || d.Model == "" {
		return d, shared.NewValidationError("Brand and model are required")
	}
	if d.Year < 1950 || d.Year > time.Now().Year()+1 {
		return d, shared.NewValidationError("Model year is out of range")
	}
	if d.Status == "" {
		d.Status = VehicleStatusActive
	}
	if !d.Status.IsValid() {
		return d, shared.NewValidationError("Unknown vehicle status")
	}
	if d.CurrentKm < 0 {
		return d, shared.NewValidationError("Kilometers cannot be negative")
	}
	return d, nil
}

// NewVehicle registers a vehicle
func NewVehicle(details VehicleDetails) (*Vehicle, error) {
	details, err := details.normalize()
	if err != nil {
		return nil, err
	}
	v := &Vehicle{BaseEntity: shared.NewBaseEntity(), IsActive: true}
	v.apply(details)
	return v, nil
}

// Update replaces the editable attributes. The odometer never goes back.
func (v *Vehicle) Update(details VehicleDetails) error {
	details, err := details.normalize()
	if err != nil {
		return err
	}
	if details.CurrentKm < v.CurrentKm {
		return shared.NewValidationError("Kilometers cannot be lower than the current reading")
	}
	v.apply(details)
	v.Touch()
	return nil
}

func (v *Vehicle) apply(d VehicleDetails) {
	v.Plate = d.Plate
	v.Brand = d.Brand
	v.Model = d.Model
	v.Year = d.Year
	v.VehicleType = d.VehicleType
	v.FuelType = d.FuelType
	v.Department = d.Department
	v.Status = d.Status
	v.CurrentKm = d.CurrentKm
	v.PurchaseDate = d.PurchaseDate
	v.InsuranceExpiry = d.InsuranceExpiry
	v.InspectionExpiry = d.InspectionExpiry
}

// RecordKm bumps the odometer when km is ahead of it and reports whether it moved
func (v *Vehicle) RecordKm(km int) bool {
	if km <= v.CurrentKm {
		return false
	}
	v.CurrentKm = km
	v.Touch()
	return true
}

// Deactivate soft deletes the vehicle
func (v *Vehicle) Deactivate() error {
	if !v.IsActive {
		return shared.NewStateError("Vehicle is already deleted")
	}
	v.IsActive = false
	v.Touch()
	return nil
}
