package fleet

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// VehicleAssignment hands a vehicle to a driver; an open assignment has no EndDate
type VehicleAssignment struct {
	shared.BaseEntity
	VehicleID uuid.UUID  `gorm:"type:uuid;not null;index" json:"vehicle_id"`
	DriverID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"driver_id"`
	StartDate time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate   *time.Time `gorm:"type:date" json:"end_date,omitempty"`
	Purpose   string     `gorm:"size:200" json:"purpose"`
}

// TableName returns the table name for GORM
func (VehicleAssignment) TableName() string {
	return "vehicle_assignments"
}

// NewAssignment assigns an active vehicle to an active driver
func NewAssignment(vehicle *Vehicle, driver *Driver, start time.Time, purpose string) (*VehicleAssignment, error) {
	if !vehicle.IsActive || vehicle.Status != VehicleStatusActive {
		return nil, shared.NewStateError("Only active vehicles can be assigned")
	}
	if !driver.IsActive {
		return nil, shared.NewStateError("Driver is inactive")
	}
	if start.IsZero() {
		return nil, shared.NewValidationError("Start date is required")
	}
	return &VehicleAssignment{
		BaseEntity: shared.NewBaseEntity(),
		VehicleID:  vehicle.ID,
		DriverID:   driver.ID,
		StartDate:  start,
		Purpose:    strings.TrimSpace(purpose),
	}, nil
}

// IsOpen reports whether the assignment is still running
func (a *VehicleAssignment) IsOpen() bool {
	return a.EndDate == nil
}

// End closes the assignment on date
func (a *VehicleAssignment) End(date time.Time) error {
	if !a.IsOpen() {
		return shared.NewStateError("Assignment has already ended")
	}
	if date.Before(a.StartDate) {
		return shared.NewValidationError("End date cannot be before the start date")
	}
	a.EndDate = &date
	a.Touch()
	return nil
}

// MaintenanceRecord is a service performed on a vehicle
type MaintenanceRecord struct {
	shared.BaseEntity
	VehicleID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"vehicle_id"`
	Type            string          `gorm:"size:50;not null" json:"maintenance_type"`
	Description     string          `gorm:"type:text" json:"description"`
	ServiceDate     time.Time       `gorm:"type:date;not null;index" json:"service_date"`
	NextServiceDate *time.Time      `gorm:"type:date;index" json:"next_service_date,omitempty"`
	Km              int             `gorm:"not null;default:0" json:"km"`
	Cost            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"cost"`
	ServiceProvider string          `gorm:"size:100" json:"service_provider"`
}

// TableName returns the table name for GORM
func (MaintenanceRecord) TableName() string {
	return "maintenance_records"
}

// MaintenanceDetails are the editable attributes of a maintenance record
type MaintenanceDetails struct {
	Type            string
	Description     string
	ServiceDate     time.Time
	NextServiceDate *time.Time
	Km              int
	Cost            decimal.Decimal
	ServiceProvider string
}

func (d MaintenanceDetails) validate() error {
	if strings.TrimSpace(d.Type) == "" {
		return shared.NewValidationError("Maintenance type is required")
	}
	if d.ServiceDate.IsZero() {
		return shared.NewValidationError("Service date is required")
	}
	if d.NextServiceDate != nil && d.NextServiceDate.Before(d.ServiceDate) {
		return shared.NewValidationError("Next service date cannot be before the service date")
	}
	if d.Cost.IsNegative() || d.Km < 0 {
		return shared.NewValidationError("Cost and kilometers cannot be negative")
	}
	return nil
}

// NewMaintenanceRecord records a service on vehicleID
func NewMaintenanceRecord(vehicleID uuid.UUID, details MaintenanceDetails) (*MaintenanceRecord, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}
	m := &MaintenanceRecord{BaseEntity: shared.NewBaseEntity(), VehicleID: vehicleID}
	m.apply(details)
	return m, nil
}

// Update replaces the editable attributes
func (m *MaintenanceRecord) Update(details MaintenanceDetails) error {
	if err := details.validate(); err != nil {
		return err
	}
	m.apply(details)
	m.Touch()
	return nil
}

func (m *MaintenanceRecord) apply(d MaintenanceDetails) {
	m.Type = strings.TrimSpace(d.Type)
	m.Description = d.Description
	m.ServiceDate = d.ServiceDate
	m.NextServiceDate = d.NextServiceDate
	m.Km = d.Km
	m.Cost = d.Cost.Round(2)
	m.ServiceProvider = d.ServiceProvider
}

// FuelRecord is one refuelling of a vehicle
type FuelRecord struct {
	shared.BaseEntity
	VehicleID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"vehicle_id"`
	DriverID      *uuid.UUID      `gorm:"type:uuid;index" json:"driver_id,omitempty"`
	FuelDate      time.Time       `gorm:"type:date;not null;index" json:"fuel_date"`
	Liters        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"liters"`
	PricePerLiter decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price_per_liter"`
	TotalCost     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_cost"`
	KmAtFueling   int             `gorm:"not null" json:"km_at_fueling"`
	Station       string          `gorm:"size:100" json:"station"`
}

// TableName returns the table name for GORM
func (FuelRecord) TableName() string {
	return "fuel_records"
}

// FuelDetails describe a refuelling
type FuelDetails struct {
	DriverID      *uuid.UUID
	FuelDate      time.Time
	Liters        decimal.Decimal
	PricePerLiter decimal.Decimal
	KmAtFueling   int
	Station       string
}

// NewFuelRecord records a refuelling; the total is liters times price
func NewFuelRecord(vehicleID uuid.UUID, d FuelDetails) (*FuelRecord, error) {
	if !d.Liters.IsPositive() || !d.PricePerLiter.IsPositive() {
		return nil, shared.NewValidationError("Liters and price per liter must be greater than zero")
	}
	if d.KmAtFueling < 0 {
		return nil, shared.NewValidationError("Kilometers cannot be negative")
	}
	if d.FuelDate.IsZero() {
		return nil, shared.NewValidationError("Fuel date is required")
	}
	return &FuelRecord{
		BaseEntity:    shared.NewBaseEntity(),
		VehicleID:     vehicleID,
		DriverID:      d.DriverID,
		FuelDate:      d.FuelDate,
		Liters:        d.Liters.Round(2),
		PricePerLiter: d.PricePerLiter.Round(2),
		TotalCost:     d.Liters.Mul(d.PricePerLiter).Round(2),
		KmAtFueling:   d.KmAtFueling,
		Station:       strings.TrimSpace(d.Station),
	}, nil
}
