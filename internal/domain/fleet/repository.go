package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// VehicleFilter narrows vehicle listings; Search matches plate, brand and model
type VehicleFilter struct {
	shared.Filter
	Status          VehicleStatus
	Department      string
	IncludeInactive bool
}

// VehicleRepository defines persistence for vehicles
type VehicleRepository interface {
	Create(ctx context.Context, vehicle *Vehicle) error
	Update(ctx context.Context, vehicle *Vehicle) error
	FindByID(ctx context.Context, id uuid.UUID) (*Vehicle, error)
	List(ctx context.Context, filter VehicleFilter) ([]Vehicle, int64, error)
	CountByStatus(ctx context.Context) (map[VehicleStatus]int64, error)
	// CountInsuranceExpiring counts active vehicles whose insurance ends in [from, to]
	CountInsuranceExpiring(ctx context.Context, from, to time.Time) (int64, error)
}

// DriverFilter narrows driver listings
type DriverFilter struct {
	shared.Filter
	Department string
	IsActive   *bool
}

// DriverRepository defines persistence for drivers
type DriverRepository interface {
	Create(ctx context.Context, driver *Driver) error
	Update(ctx context.Context, driver *Driver) error
	FindByID(ctx context.Context, id uuid.UUID) (*Driver, error)
	List(ctx context.Context, filter DriverFilter) ([]Driver, int64, error)
}

// AssignmentRepository defines persistence for vehicle assignments
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *VehicleAssignment) error
	Update(ctx context.Context, assignment *VehicleAssignment) error
	FindByID(ctx context.Context, id uuid.UUID) (*VehicleAssignment, error)
	FindOpenByVehicle(ctx context.Context, vehicleID uuid.UUID) (*VehicleAssignment, error)
	List(ctx context.Context, vehicleID, driverID *uuid.UUID, openOnly bool) ([]VehicleAssignment, error)
}

// MaintenanceRepository defines persistence for maintenance records
type MaintenanceRepository interface {
	Create(ctx context.Context, record *MaintenanceRecord) error
	Update(ctx context.Context, record *MaintenanceRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*MaintenanceRecord, error)
	List(ctx context.Context, vehicleID *uuid.UUID) ([]MaintenanceRecord, error)
	// Upcoming returns records whose next service date falls in [from, to]
	Upcoming(ctx context.Context, from, to time.Time) ([]MaintenanceRecord, error)
}

// FuelFilter narrows fuel record listings
type FuelFilter struct {
	VehicleID *uuid.UUID
	DriverID  *uuid.UUID
	DateFrom  *time.Time
	DateTo    *time.Time
}

// FuelRepository defines persistence for fuel records
type FuelRepository interface {
	Create(ctx context.Context, record *FuelRecord) error
	List(ctx context.Context, filter FuelFilter) ([]FuelRecord, error)
}

// MonthlyCost is the spending of one calendar month
type MonthlyCost struct {
	Month       int             `json:"month"`
	Fuel        decimal.Decimal `json:"fuel"`
	Maintenance decimal.Decimal `json:"maintenance"`
	Total       decimal.Decimal `json:"total"`
}

// CostRepository sums spending for reports
type CostRepository interface {
	FuelCost(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	MaintenanceCost(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	// MonthlyCosts returns twelve rows for year, January first
	MonthlyCosts(ctx context.Context, year int) ([]MonthlyCost, error)
}
