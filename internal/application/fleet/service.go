// Package fleet implements the vehicle fleet use cases.
package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/fleet"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const metricsModule = "fleet"

// Repositories groups the fleet persistence ports
type Repositories struct {
	Vehicles    fleet.VehicleRepository
	Drivers     fleet.DriverRepository
	Assignments fleet.AssignmentRepository
	Maintenance fleet.MaintenanceRepository
	Fuel        fleet.FuelRepository
	Costs       fleet.CostRepository
}

// Service manages vehicles, drivers, assignments, maintenance and fuel
type Service struct {
	repos   Repositories
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a fleet service; metrics may be nil
func NewService(repos Repositories, metrics *telemetry.Metrics, logger *zap.Logger) *Service {
	return &Service{repos: repos, metrics: metrics, logger: logger, now: time.Now}
}

// CreateVehicle registers a vehicle; the plate must be unique
func (s *Service) CreateVehicle(ctx context.Context, details fleet.VehicleDetails) (*fleet.Vehicle, error) {
	v, err := fleet.NewVehicle(details)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Vehicles.Create(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info("Vehicle registered", zap.String("vehicle_id", v.ID.String()), zap.String("plate", v.Plate))
	return v, nil
}

// GetVehicle returns a vehicle
func (s *Service) GetVehicle(ctx context.Context, id uuid.UUID) (*fleet.Vehicle, error) {
	return s.vehicle(ctx, id)
}

// ListVehicles returns a page of vehicles
func (s *Service) ListVehicles(ctx context.Context, filter fleet.VehicleFilter) (shared.Paginated[fleet.Vehicle], error) {
	items, total, err := s.repos.Vehicles.List(ctx, filter)
	if err != nil {
		return shared.Paginated[fleet.Vehicle]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// UpdateVehicle replaces the editable attributes of a vehicle
func (s *Service) UpdateVehicle(ctx context.Context, id uuid.UUID, details fleet.VehicleDetails) (*fleet.Vehicle, error) {
	v, err := s.vehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := v.Update(details); err != nil {
		return nil, err
	}
	if err := s.repos.Vehicles.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteVehicle soft deletes a vehicle and ends its running assignment
func (s *Service) DeleteVehicle(ctx context.Context, id uuid.UUID) error {
	v, err := s.vehicle(ctx, id)
	if err != nil {
		return err
	}
	if err := v.Deactivate(); err != nil {
		return err
	}
	if err := s.repos.Vehicles.Update(ctx, v); err != nil {
		return err
	}
	if open, err := s.repos.Assignments.FindOpenByVehicle(ctx, id); err == nil {
		if err := open.End(dateOnly(s.now())); err == nil {
			if err := s.repos.Assignments.Update(ctx, open); err != nil {
				s.logger.Warn("Failed to end assignment of deleted vehicle", zap.Error(err))
			}
		}
	}
	s.logger.Info("Vehicle deleted", zap.String("vehicle_id", id.String()))
	return nil
}

// CreateDriver registers a driver
func (s *Service) CreateDriver(ctx context.Context, details fleet.DriverDetails) (*fleet.Driver, error) {
	d, err := fleet.NewDriver(details)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Drivers.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDriver returns a driver
func (s *Service) GetDriver(ctx context.Context, id uuid.UUID) (*fleet.Driver, error) {
	return s.driver(ctx, id)
}

// ListDrivers returns a page of drivers
func (s *Service) ListDrivers(ctx context.Context, filter fleet.DriverFilter) (shared.Paginated[fleet.Driver], error) {
	items, total, err := s.repos.Drivers.List(ctx, filter)
	if err != nil {
		return shared.Paginated[fleet.Driver]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// UpdateDriver replaces the editable attributes of a driver
func (s *Service) UpdateDriver(ctx context.Context, id uuid.UUID, details fleet.DriverDetails) (*fleet.Driver, error) {
	d, err := s.driver(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.Update(details); err != nil {
		return nil, err
	}
	if err := s.repos.Drivers.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDriver soft deletes a driver
func (s *Service) DeleteDriver(ctx context.Context, id uuid.UUID) error {
	d, err := s.driver(ctx, id)
	if err != nil {
		return err
	}
	if err := d.Deactivate(); err != nil {
		return err
	}
	return s.repos.Drivers.Update(ctx, d)
}

// Assign gives a vehicle to a driver. A vehicle has at most one running assignment.
func (s *Service) Assign(ctx context.Context, vehicleID, driverID uuid.UUID, start time.Time, purpose string) (a *fleet.VehicleAssignment, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "assign_vehicle", started, err)
	}(time.Now())

	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	d, err := s.driver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Assignments.FindOpenByVehicle(ctx, vehicleID); err == nil {
		return nil, shared.NewConflictError("Vehicle already has an open assignment")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if start.IsZero() {
		start = s.now()
	}
	a, err = fleet.NewAssignment(v, d, dateOnly(start), purpose)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Assignments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// EndAssignment closes a running assignment; a zero date means today
func (s *Service) EndAssignment(ctx context.Context, id uuid.UUID, end time.Time) (*fleet.VehicleAssignment, error) {
	a, err := s.repos.Assignments.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Assignment")
	}
	if end.IsZero() {
		end = s.now()
	}
	if err := a.End(dateOnly(end)); err != nil {
		return nil, err
	}
	if err := s.repos.Assignments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAssignments lists assignments of a vehicle and/or driver
func (s *Service) ListAssignments(ctx context.Context, vehicleID, driverID *uuid.UUID, openOnly bool) ([]fleet.VehicleAssignment, error) {
	return s.repos.Assignments.List(ctx, vehicleID, driverID, openOnly)
}

// AddMaintenance records a service on a vehicle
func (s *Service) AddMaintenance(ctx context.Context, vehicleID uuid.UUID, details fleet.MaintenanceDetails) (*fleet.MaintenanceRecord, error) {
	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	m, err := fleet.NewMaintenanceRecord(v.ID, details)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Maintenance.Create(ctx, m); err != nil {
		return nil, err
	}
	if v.RecordKm(m.Km) {
		if err := s.repos.Vehicles.Update(ctx, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// GetMaintenance returns a maintenance record
func (s *Service) GetMaintenance(ctx context.Context, id uuid.UUID) (*fleet.MaintenanceRecord, error) {
	m, err := s.repos.Maintenance.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Maintenance record")
	}
	return m, nil
}

// UpdateMaintenance replaces a maintenance record's attributes
func (s *Service) UpdateMaintenance(ctx context.Context, id uuid.UUID, details fleet.MaintenanceDetails) (*fleet.MaintenanceRecord, error) {
	m, err := s.GetMaintenance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Update(details); err != nil {
		return nil, err
	}
	if err := s.repos.Maintenance.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMaintenance removes a maintenance record
func (s *Service) DeleteMaintenance(ctx context.Context, id uuid.UUID) error {
	return notFoundAs(s.repos.Maintenance.Delete(ctx, id), "Maintenance record")
}

// ListMaintenance lists maintenance records, optionally for one vehicle
func (s *Service) ListMaintenance(ctx context.Context, vehicleID *uuid.UUID) ([]fleet.MaintenanceRecord, error) {
	return s.repos.Maintenance.List(ctx, vehicleID)
}

// UpcomingMaintenance lists services due within days from today
func (s *Service) UpcomingMaintenance(ctx context.Context, days int) ([]fleet.MaintenanceRecord, error) {
	if days <= 0 {
		days = 30
	}
	today := dateOnly(s.now())
	return s.repos.Maintenance.Upcoming(ctx, today, today.AddDate(0, 0, days))
}

// AddFuel records a refuelling and moves the vehicle's odometer forward
func (s *Service) AddFuel(ctx context.Context, vehicleID uuid.UUID, details fleet.FuelDetails) (rec *fleet.FuelRecord, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "record_fuel", started, err)
	}(time.Now())

	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if details.DriverID != nil {
		if _, err := s.driver(ctx, *details.DriverID); err != nil {
			return nil, err
		}
	}
	if details.FuelDate.IsZero() {
		details.FuelDate = s.now()
	}
	details.FuelDate = dateOnly(details.FuelDate)

	rec, err = fleet.NewFuelRecord(v.ID, details)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Fuel.Create(ctx, rec); err != nil {
		return nil, err
	}
	if v.RecordKm(rec.KmAtFueling) {
		if err := s.repos.Vehicles.Update(ctx, v); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// ListFuel lists fuel records
func (s *Service) ListFuel(ctx context.Context, filter fleet.FuelFilter) ([]fleet.FuelRecord, error) {
	return s.repos.Fuel.List(ctx, filter)
}

// FuelStats summarizes the fuel history of a vehicle
func (s *Service) FuelStats(ctx context.Context, vehicleID uuid.UUID) (*fleet.FuelStats, error) {
	if _, err := s.vehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	records, err := s.repos.Fuel.List(ctx, fleet.FuelFilter{VehicleID: &vehicleID})
	if err != nil {
		return nil, err
	}
	stats := fleet.ComputeFuelStats(records)
	return &stats, nil
}

func (s *Service) vehicle(ctx context.Context, id uuid.UUID) (*fleet.Vehicle, error) {
	v, err := s.repos.Vehicles.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Vehicle")
	}
	return v, nil
}

func (s *Service) driver(ctx context.Context, id uuid.UUID) (*fleet.Driver, error) {
	d, err := s.repos.Drivers.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Driver")
	}
	return d, nil
}

func notFoundAs(err error, resource string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(resource)
	}
	return err
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
