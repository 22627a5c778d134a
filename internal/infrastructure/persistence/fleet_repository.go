package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/fleet"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VehicleSortFields contains allowed sort fields for vehicles
var VehicleSortFields = map[string]bool{
	"created_at": true,
	"plate":      true,
	"brand":      true,
	"year":       true,
	"current_km": true,
	"status":     true,
}

// DriverSortFields contains allowed sort fields for drivers
var DriverSortFields = map[string]bool{
	"created_at":     true,
	"first_name":     true,
	"last_name":      true,
	"license_expiry": true,
}

// GormVehicleRepository implements fleet.VehicleRepository using GORM
type GormVehicleRepository struct {
	db *gorm.DB
}

// NewGormVehicleRepository creates a new GormVehicleRepository
func NewGormVehicleRepository(db *gorm.DB) *GormVehicleRepository {
	return &GormVehicleRepository{db: db}
}

// Create saves a new vehicle
func (r *GormVehicleRepository) Create(ctx context.Context, vehicle *fleet.Vehicle) error {
	return translateWriteError(r.db.WithContext(ctx).Create(vehicle).Error, "A vehicle with this plate already exists")
}

// Update saves changes to a vehicle
func (r *GormVehicleRepository) Update(ctx context.Context, vehicle *fleet.Vehicle) error {
	result := r.db.WithContext(ctx).Save(vehicle)
	if result.Error != nil {
		return translateWriteError(result.Error, "A vehicle with this plate already exists")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a vehicle by ID
func (r *GormVehicleRepository) FindByID(ctx context.Context, id uuid.UUID) (*fleet.Vehicle, error) {
	var v fleet.Vehicle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// List returns a filtered page of vehicles
func (r *GormVehicleRepository) List(ctx context.Context, filter fleet.VehicleFilter) ([]fleet.Vehicle, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&fleet.Vehicle{})

	if !filter.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(plate) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(model) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var vehicles []fleet.Vehicle
	query = orderBy(query, filter.Filter, VehicleSortFields, "created_at")
	if err := paginate(query, filter.Filter).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// CountByStatus counts active vehicles per status
func (r *GormVehicleRepository) CountByStatus(ctx context.Context) (map[fleet.VehicleStatus]int64, error) {
	var rows []struct {
		Status fleet.VehicleStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&fleet.Vehicle{}).
		Select("status, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[fleet.VehicleStatus]int64, len(fleet.VehicleStatuses))
	for _, s := range fleet.VehicleStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountInsuranceExpiring counts active vehicles whose insurance ends in [from, to]
func (r *GormVehicleRepository) CountInsuranceExpiring(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&fleet.Vehicle{}).
		Where("is_active = ? AND insurance_expiry >= ? AND insurance_expiry <= ?", true, from, to).
		Count(&count).Error
	return count, err
}

// GormDriverRepository implements fleet.DriverRepository using GORM
type GormDriverRepository struct {
	db *gorm.DB
}

// NewGormDriverRepository creates a new GormDriverRepository
func NewGormDriverRepository(db *gorm.DB) *GormDriverRepository {
	return &GormDriverRepository{db: db}
}

// Create saves a new driver
func (r *GormDriverRepository) Create(ctx context.Context, driver *fleet.Driver) error {
	return translateWriteError(r.db.WithContext(ctx).Create(driver).Error,
		"A driver with this national ID or license number already exists")
}

// Update saves changes to a driver
func (r *GormDriverRepository) Update(ctx context.Context, driver *fleet.Driver) error {
	result := r.db.WithContext(ctx).Save(driver)
	if result.Error != nil {
		return translateWriteError(result.Error, "A driver with this national ID or license number already exists")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a driver by ID
func (r *GormDriverRepository) FindByID(ctx context.Context, id uuid.UUID) (*fleet.Driver, error) {
	var d fleet.Driver
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// List returns a filtered page of drivers
func (r *GormDriverRepository) List(ctx context.Context, filter fleet.DriverFilter) ([]fleet.Driver, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&fleet.Driver{})

	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(license_number) LIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var drivers []fleet.Driver
	query = orderBy(query, filter.Filter, DriverSortFields, "created_at")
	if err := paginate(query, filter.Filter).Find(&drivers).Error; err != nil {
		return nil, 0, err
	}
	return drivers, total, nil
}

// GormAssignmentRepository implements fleet.AssignmentRepository using GORM
type GormAssignmentRepository struct {
	db *gorm.DB
}

// NewGormAssignmentRepository creates a new GormAssignmentRepository
func NewGormAssignmentRepository(db *gorm.DB) *GormAssignmentRepository {
	return &GormAssignmentRepository{db: db}
}

// Create saves a new assignment
func (r *GormAssignmentRepository) Create(ctx context.Context, a *fleet.VehicleAssignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// Update saves changes to an assignment
func (r *GormAssignmentRepository) Update(ctx context.Context, a *fleet.VehicleAssignment) error {
	return r.db.WithContext(ctx).Save(a).Error
}

// FindByID finds an assignment by ID
func (r *GormAssignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*fleet.VehicleAssignment, error) {
	var a fleet.VehicleAssignment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// FindOpenByVehicle returns the running assignment of a vehicle
func (r *GormAssignmentRepository) FindOpenByVehicle(ctx context.Context, vehicleID uuid.UUID) (*fleet.VehicleAssignment, error) {
	var a fleet.VehicleAssignment
	if err := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND end_date IS NULL", vehicleID).
		First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// List returns assignments, newest first
func (r *GormAssignmentRepository) List(ctx context.Context, vehicleID, driverID *uuid.UUID, openOnly bool) ([]fleet.VehicleAssignment, error) {
	query := r.db.WithContext(ctx).Model(&fleet.VehicleAssignment{})
	if vehicleID != nil {
		query = query.Where("vehicle_id = ?", *vehicleID)
	}
	if driverID != nil {
		query = query.Where("driver_id = ?", *driverID)
	}
	if openOnly {
		query = query.Where("end_date IS NULL")
	}
	var out []fleet.VehicleAssignment
	err := query.Order("start_date DESC").Find(&out).Error
	return out, err
}

// GormMaintenanceRepository implements fleet.MaintenanceRepository using GORM
type GormMaintenanceRepository struct {
	db *gorm.DB
}

// NewGormMaintenanceRepository creates a new GormMaintenanceRepository
func NewGormMaintenanceRepository(db *gorm.DB) *GormMaintenanceRepository {
	return &GormMaintenanceRepository{db: db}
}

// Create saves a new maintenance record
func (r *GormMaintenanceRepository) Create(ctx context.Context, m *fleet.MaintenanceRecord) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Update saves changes to a maintenance record
func (r *GormMaintenanceRepository) Update(ctx context.Context, m *fleet.MaintenanceRecord) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// Delete removes a maintenance record
func (r *GormMaintenanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&fleet.MaintenanceRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a maintenance record by ID
func (r *GormMaintenanceRepository) FindByID(ctx context.Context, id uuid.UUID) (*fleet.MaintenanceRecord, error) {
	var m fleet.MaintenanceRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// List returns maintenance records, latest service first
func (r *GormMaintenanceRepository) List(ctx context.Context, vehicleID *uuid.UUID) ([]fleet.MaintenanceRecord, error) {
	query := r.db.WithContext(ctx).Model(&fleet.MaintenanceRecord{})
	if vehicleID != nil {
		query = query.Where("vehicle_id = ?", *vehicleID)
	}
	var out []fleet.MaintenanceRecord
	err := query.Order("service_date DESC").Find(&out).Error
	return out, err
}

// Upcoming returns records of active vehicles whose next service date is in [from, to]
func (r *GormMaintenanceRepository) Upcoming(ctx context.Context, from, to time.Time) ([]fleet.MaintenanceRecord, error) {
	var out []fleet.MaintenanceRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN vehicles ON vehicles.id = maintenance_records.vehicle_id").
		Where("vehicles.is_active = ?", true).
		Where("maintenance_records.next_service_date >= ? AND maintenance_records.next_service_date <= ?", from, to).
		Order("maintenance_records.next_service_date ASC").
		Find(&out).Error
	return out, err
}

// GormFuelRepository implements fleet.FuelRepository and fleet.CostRepository using GORM
type GormFuelRepository struct {
	db *gorm.DB
}

// NewGormFuelRepository creates a new GormFuelRepository
func NewGormFuelRepository(db *gorm.DB) *GormFuelRepository {
	return &GormFuelRepository{db: db}
}

// Create saves a fuel record
func (r *GormFuelRepository) Create(ctx context.Context, f *fleet.FuelRecord) error {
	return r.db.WithContext(ctx).Create(f).Error
}

// List returns fuel records, latest first
func (r *GormFuelRepository) List(ctx context.Context, filter fleet.FuelFilter) ([]fleet.FuelRecord, error) {
	query := r.db.WithContext(ctx).Model(&fleet.FuelRecord{})
	if filter.VehicleID != nil {
		query = query.Where("vehicle_id = ?", *filter.VehicleID)
	}
	if filter.DriverID != nil {
		query = query.Where("driver_id = ?", *filter.DriverID)
	}
	if filter.DateFrom != nil {
		query = query.Where("fuel_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("fuel_date <= ?", *filter.DateTo)
	}
	var out []fleet.FuelRecord
	err := query.Order("fuel_date DESC, km_at_fueling DESC").Find(&out).Error
	return out, err
}

// FuelCost sums fuel spending with fuel_date in [from, to)
func (r *GormFuelRepository) FuelCost(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return r.sum(ctx, &fleet.FuelRecord{}, "total_cost", "fuel_date", from, to)
}

// MaintenanceCost sums maintenance spending with service_date in [from, to)
func (r *GormFuelRepository) MaintenanceCost(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return r.sum(ctx, &fleet.MaintenanceRecord{}, "cost", "service_date", from, to)
}

func (r *GormFuelRepository) sum(ctx context.Context, model any, amount, dateCol string, from, to time.Time) (decimal.Decimal, error) {
	var row struct{ Total decimal.NullDecimal }
	if err := r.db.WithContext(ctx).Model(model).
		Select("SUM("+amount+") AS total").
		Where(dateCol+" >= ? AND "+dateCol+" < ?", from, to).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Decimal, nil
}

// MonthlyCosts sums fuel and maintenance per month of year. Rows are summed
// in Go so the query stays portable between postgres and sqlite.
func (r *GormFuelRepository) MonthlyCosts(ctx context.Context, year int) ([]fleet.MonthlyCost, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	months := make([]fleet.MonthlyCost, 12)
	for i := range months {
		months[i] = fleet.MonthlyCost{Month: i + 1, Fuel: decimal.Zero, Maintenance: decimal.Zero, Total: decimal.Zero}
	}

	var fuel []fleet.FuelRecord
	if err := r.db.WithContext(ctx).Select("fuel_date, total_cost").
		Where("fuel_date >= ? AND fuel_date < ?", from, to).Find(&fuel).Error; err != nil {
		return nil, err
	}
	for _, f := range fuel {
		m := &months[f.FuelDate.Month()-1]
		m.Fuel = m.Fuel.Add(f.TotalCost)
	}

	var maintenance []fleet.MaintenanceRecord
	if err := r.db.WithContext(ctx).Select("service_date, cost").
		Where("service_date >= ? AND service_date < ?", from, to).Find(&maintenance).Error; err != nil {
		return nil, err
	}
	for _, rec := range maintenance {
		m := &months[rec.ServiceDate.Month()-1]
		m.Maintenance = m.Maintenance.Add(rec.Cost)
	}

	for i := range months {
		months[i].Total = months[i].Fuel.Add(months[i].Maintenance)
	}
	return months, nil
}

var (
	_ fleet.VehicleRepository     = (*GormVehicleRepository)(nil)
	_ fleet.DriverRepository      = (*GormDriverRepository)(nil)
	_ fleet.AssignmentRepository  = (*GormAssignmentRepository)(nil)
	_ fleet.MaintenanceRepository = (*GormMaintenanceRepository)(nil)
	_ fleet.FuelRepository        = (*GormFuelRepository)(nil)
	_ fleet.CostRepository        = (*GormFuelRepository)(nil)
)
