package fleet

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/fleet"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Dashboard is the fleet overview
type Dashboard struct {
	VehiclesByStatus         map[fleet.VehicleStatus]int64 `json:"vehicles_by_status"`
	TotalVehicles            int64                         `json:"total_vehicles"`
	MonthlyFuelCost          decimal.Decimal               `json:"monthly_fuel_cost"`
	MonthlyMaintenanceCost   decimal.Decimal               `json:"monthly_maintenance_cost"`
	UpcomingMaintenanceCount int                           `json:"upcoming_maintenance_count"`
	ExpiringInsuranceCount   int64                         `json:"expiring_insurance_count"`
}

// VehicleUtilization is one row of the utilization report
type VehicleUtilization struct {
	VehicleID           uuid.UUID        `json:"vehicle_id"`
	Plate               string           `json:"plate"`
	KmDriven            int              `json:"km_driven"`
	Liters              decimal.Decimal  `json:"liters"`
	FuelCost            decimal.Decimal  `json:"fuel_cost"`
	ConsumptionPer100Km *decimal.Decimal `json:"consumption_per_100km,omitempty"`
}

// DriverReport is one row of the driver report
type DriverReport struct {
	DriverID  uuid.UUID       `json:"driver_id"`
	FullName  string          `json:"full_name"`
	Fuelings  int             `json:"fuelings"`
	Liters    decimal.Decimal `json:"liters"`
	TotalCost decimal.Decimal `json:"total_cost"`
	KmDriven  int             `json:"km_driven"`
}

// CostReport lists monthly spending of a year
type CostReport struct {
	Year             int                 `json:"year"`
	Months           []fleet.MonthlyCost `json:"months"`
	TotalFuel        decimal.Decimal     `json:"total_fuel"`
	TotalMaintenance decimal.Decimal     `json:"total_maintenance"`
	Total            decimal.Decimal     `json:"total"`
}

// upcomingWindow is how far ahead the dashboard looks for due services and insurance
const upcomingWindow = 30

// Dashboard builds the fleet overview for the current month
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	counts, err := s.repos.Vehicles.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	dash := &Dashboard{VehiclesByStatus: counts}
	for _, c := range counts {
		dash.TotalVehicles += c
	}

	today := dateOnly(s.now())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	if dash.MonthlyFuelCost, err = s.repos.Costs.FuelCost(ctx, monthStart, monthEnd); err != nil {
		return nil, err
	}
	if dash.MonthlyMaintenanceCost, err = s.repos.Costs.MaintenanceCost(ctx, monthStart, monthEnd); err != nil {
		return nil, err
	}
	upcoming, err := s.repos.Maintenance.Upcoming(ctx, today, today.AddDate(0, 0, upcomingWindow))
	if err != nil {
		return nil, err
	}
	dash.UpcomingMaintenanceCount = len(upcoming)
	if dash.ExpiringInsuranceCount, err = s.repos.Vehicles.CountInsuranceExpiring(ctx, today, today.AddDate(0, 0, upcomingWindow)); err != nil {
		return nil, err
	}
	return dash, nil
}

// Utilization reports distance and fuel per active vehicle in [from, to]
func (s *Service) Utilization(ctx context.Context, from, to *time.Time) ([]VehicleUtilization, error) {
	page, err := s.ListVehicles(ctx, fleet.VehicleFilter{Filter: pageFilter(1)})
	if err != nil {
		return nil, err
	}
	vehicles := page.Items
	for p := 2; p <= page.TotalPages; p++ {
		next, err := s.ListVehicles(ctx, fleet.VehicleFilter{Filter: pageFilter(p)})
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, next.Items...)
	}

	out := make([]VehicleUtilization, 0, len(vehicles))
	for _, v := range vehicles {
		id := v.ID
		records, err := s.repos.Fuel.List(ctx, fleet.FuelFilter{VehicleID: &id, DateFrom: from, DateTo: to})
		if err != nil {
			return nil, err
		}
		stats := fleet.ComputeFuelStats(records)
		out = append(out, VehicleUtilization{
			VehicleID:           v.ID,
			Plate:               v.Plate,
			KmDriven:            stats.KmDriven,
			Liters:              stats.TotalLiters,
			FuelCost:            stats.TotalCost,
			ConsumptionPer100Km: stats.ConsumptionPer100Km,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].KmDriven > out[j].KmDriven })
	return out, nil
}

// Costs reports monthly fuel and maintenance spending of year
func (s *Service) Costs(ctx context.Context, year int) (*CostReport, error) {
	if year == 0 {
		year = s.now().Year()
	}
	months, err := s.repos.Costs.MonthlyCosts(ctx, year)
	if err != nil {
		return nil, err
	}
	report := &CostReport{Year: year, Months: months, TotalFuel: decimal.Zero, TotalMaintenance: decimal.Zero}
	for _, m := range months {
		report.TotalFuel = report.TotalFuel.Add(m.Fuel)
		report.TotalMaintenance = report.TotalMaintenance.Add(m.Maintenance)
	}
	report.Total = report.TotalFuel.Add(report.TotalMaintenance)
	return report, nil
}

// Drivers reports fuelings per driver in [from, to]; km is the odometer
// distance between the driver's first and last fueling of each vehicle
func (s *Service) Drivers(ctx context.Context, from, to *time.Time) ([]DriverReport, error) {
	records, err := s.repos.Fuel.List(ctx, fleet.FuelFilter{DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}

	byDriver := make(map[uuid.UUID][]fleet.FuelRecord)
	for _, r := range records {
		if r.DriverID != nil {
			byDriver[*r.DriverID] = append(byDriver[*r.DriverID], r)
		}
	}

	out := make([]DriverReport, 0, len(byDriver))
	for driverID, recs := range byDriver {
		row := DriverReport{DriverID: driverID, Fuelings: len(recs), Liters: decimal.Zero, TotalCost: decimal.Zero}
		if d, err := s.repos.Drivers.FindByID(ctx, driverID); err == nil {
			row.FullName = d.FullName()
		}
		span := make(map[uuid.UUID][2]int)
		for _, r := range recs {
			row.Liters = row.Liters.Add(r.Liters)
			row.TotalCost = row.TotalCost.Add(r.TotalCost)
			if km, ok := span[r.VehicleID]; ok {
				span[r.VehicleID] = [2]int{min(km[0], r.KmAtFueling), max(km[1], r.KmAtFueling)}
			} else {
				span[r.VehicleID] = [2]int{r.KmAtFueling, r.KmAtFueling}
			}
		}
		for _, km := range span {
			row.KmDriven += km[1] - km[0]
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TotalCost.Equal(out[j].TotalCost) {
			return out[i].TotalCost.GreaterThan(out[j].TotalCost)
		}
		return out[i].FullName < out[j].FullName
	})
	return out, nil
}

func pageFilter(page int) shared.Filter {
	return shared.Filter{Page: page, PageSize: 100, OrderBy: "plate", OrderDir: "asc"}
}
