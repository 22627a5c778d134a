package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/fleet"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var today = testutil.Date(2025, 6, 15)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewSQLiteDB(t,
		&fleet.Vehicle{}, &fleet.Driver{}, &fleet.VehicleAssignment{},
		&fleet.MaintenanceRecord{}, &fleet.FuelRecord{})
	fuel := persistence.NewGormFuelRepository(db)
	svc := NewService(Repositories{
		Vehicles:    persistence.NewGormVehicleRepository(db),
		Drivers:     persistence.NewGormDriverRepository(db),
		Assignments: persistence.NewGormAssignmentRepository(db),
		Maintenance: persistence.NewGormMaintenanceRepository(db),
		Fuel:        fuel,
		Costs:       fuel,
	}, nil, zap.NewNop())
	svc.now = func() time.Time { return today.Add(10 * time.Hour) }
	return svc
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func addVehicle(t *testing.T, svc *Service, plate string, km int) *fleet.Vehicle {
	t.Helper()
	v, err := svc.CreateVehicle(context.Background(), fleet.VehicleDetails{
		Plate: plate, Brand: "Fiat", Model: "Doblo", Year: 2021, Department: "Parks", CurrentKm: km,
	})
	require.NoError(t, err)
	return v
}

func addDriver(t *testing.T, svc *Service, nationalID, license string) *fleet.Driver {
	t.Helper()
	d, err := svc.CreateDriver(context.Background(), fleet.DriverDetails{
		FirstName: "Murat", LastName: "Kılıç", NationalID: nationalID, LicenseNumber: license, Department: "Parks",
	})
	require.NoError(t, err)
	return d
}

func TestVehicles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	v := addVehicle(t, svc, "06 abc 101", 5000)
	addVehicle(t, svc, "34 XY 2020", 100)

	_, err := svc.CreateVehicle(ctx, fleet.VehicleDetails{Plate: "06 ABC 101", Brand: "Fiat", Model: "Egea", Year: 2022})
	assertCode(t, err, "ALREADY_EXISTS")

	page, err := svc.ListVehicles(ctx, fleet.VehicleFilter{Filter: shared.Filter{Search: "abc"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "06 ABC 101", page.Items[0].Plate)

	require.NoError(t, svc.DeleteVehicle(ctx, v.ID))
	page, err = svc.ListVehicles(ctx, fleet.VehicleFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = svc.ListVehicles(ctx, fleet.VehicleFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	_, err = svc.GetVehicle(ctx, uuid.New())
	assertCode(t, err, "NOT_FOUND")
}

func TestAssignments(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	v := addVehicle(t, svc, "06 ABC 101", 0)
	d := addDriver(t, svc, "12345678901", "L-1")

	a, err := svc.Assign(ctx, v.ID, d.ID, time.Time{}, "Garbage collection")
	require.NoError(t, err)
	assert.Equal(t, today, a.StartDate)

	_, err = svc.Assign(ctx, v.ID, d.ID, today, "")
	assertCode(t, err, "ALREADY_EXISTS")

	ended, err := svc.EndAssignment(ctx, a.ID, time.Time{})
	require.NoError(t, err)
	assert.False(t, ended.IsOpen())

	open, err := svc.ListAssignments(ctx, &v.ID, nil, true)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = svc.Assign(ctx, v.ID, d.ID, today, "second shift")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteVehicle(ctx, v.ID))
	open, err = svc.ListAssignments(ctx, &v.ID, nil, true)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestFuelAndStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	v := addVehicle(t, svc, "06 ABC 101", 10000)
	d := addDriver(t, svc, "12345678901", "L-1")

	_, err := svc.AddFuel(ctx, v.ID, fleet.FuelDetails{
		DriverID: &d.ID, FuelDate: testutil.Date(2025, 6, 1), Liters: testutil.Dec("40"), PricePerLiter: testutil.Dec("40"), KmAtFueling: 10000,
	})
	require.NoError(t, err)
	rec, err := svc.AddFuel(ctx, v.ID, fleet.FuelDetails{
		DriverID: &d.ID, FuelDate: testutil.Date(2025, 6, 10), Liters: testutil.Dec("30"), PricePerLiter: testutil.Dec("42"), KmAtFueling: 10500,
	})
	require.NoError(t, err)
	assert.True(t, testutil.Dec("1260").Equal(rec.TotalCost))

	got, err := svc.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 10500, got.CurrentKm)

	// an older odometer reading does not move the vehicle back
	_, err = svc.AddFuel(ctx, v.ID, fleet.FuelDetails{
		FuelDate: testutil.Date(2025, 6, 12), Liters: testutil.Dec("10"), PricePerLiter: testutil.Dec("40"), KmAtFueling: 10400,
	})
	require.NoError(t, err)
	got, _ = svc.GetVehicle(ctx, v.ID)
	assert.Equal(t, 10500, got.CurrentKm)

	stranger := uuid.New()
	_, err = svc.AddFuel(ctx, v.ID, fleet.FuelDetails{DriverID: &stranger, Liters: testutil.Dec("1"), PricePerLiter: testutil.Dec("1")})
	assertCode(t, err, "NOT_FOUND")

	stats, err := svc.FuelStats(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RecordCount)
	assert.True(t, testutil.Dec("80").Equal(stats.TotalLiters))
	assert.Equal(t, 500, stats.KmDriven)
	// (10 + 30) / 500 * 100
	require.NotNil(t, stats.ConsumptionPer100Km)
	assert.True(t, testutil.Dec("8").Equal(*stats.ConsumptionPer100Km))

	drivers, err := svc.Drivers(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, "Murat Kılıç", drivers[0].FullName)
	assert.Equal(t, 2, drivers[0].Fuelings)
	assert.Equal(t, 500, drivers[0].KmDriven)
	assert.True(t, testutil.Dec("2860").Equal(drivers[0].TotalCost))
}

func TestMaintenanceAndReports(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	v := addVehicle(t, svc, "06 ABC 101", 1000)
	next := testutil.Date(2025, 7, 1)

	m, err := svc.AddMaintenance(ctx, v.ID, fleet.MaintenanceDetails{
		Type: "oil_change", ServiceDate: testutil.Date(2025, 6, 5), NextServiceDate: &next,
		Km: 1200, Cost: testutil.Dec("2500"),
	})
	require.NoError(t, err)
	got, _ := svc.GetVehicle(ctx, v.ID)
	assert.Equal(t, 1200, got.CurrentKm)

	far := testutil.Date(2026, 1, 1)
	_, err = svc.AddMaintenance(ctx, v.ID, fleet.MaintenanceDetails{
		Type: "tyres", ServiceDate: testutil.Date(2025, 2, 5), NextServiceDate: &far, Cost: testutil.Dec("8000"),
	})
	require.NoError(t, err)

	upcoming, err := svc.UpcomingMaintenance(ctx, 30)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, m.ID, upcoming[0].ID)

	_, err = svc.AddFuel(ctx, v.ID, fleet.FuelDetails{
		FuelDate: testutil.Date(2025, 6, 2), Liters: testutil.Dec("10"), PricePerLiter: testutil.Dec("50"), KmAtFueling: 1100,
	})
	require.NoError(t, err)

	dash, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.VehiclesByStatus[fleet.VehicleStatusActive])
	assert.Equal(t, int64(0), dash.VehiclesByStatus[fleet.VehicleStatusSold])
	assert.Equal(t, int64(1), dash.TotalVehicles)
	assert.True(t, testutil.Dec("500").Equal(dash.MonthlyFuelCost))
	assert.True(t, testutil.Dec("2500").Equal(dash.MonthlyMaintenanceCost))
	assert.Equal(t, 1, dash.UpcomingMaintenanceCount)

	costs, err := svc.Costs(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, costs.Months, 12)
	assert.True(t, testutil.Dec("8000").Equal(costs.Months[1].Maintenance))
	assert.True(t, testutil.Dec("3000").Equal(costs.Months[5].Total))
	assert.True(t, testutil.Dec("11000").Equal(costs.Total))

	require.NoError(t, svc.DeleteMaintenance(ctx, m.ID))
	assertCode(t, svc.DeleteMaintenance(ctx, m.ID), "NOT_FOUND")
}

func TestUtilization(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	busy := addVehicle(t, svc, "06 ABC 101", 0)
	addVehicle(t, svc, "06 ABC 102", 0)

	for _, km := range []int{100, 400} {
		_, err := svc.AddFuel(ctx, busy.ID, fleet.FuelDetails{
			FuelDate: testutil.Date(2025, 6, 1), Liters: testutil.Dec("20"), PricePerLiter: testutil.Dec("40"), KmAtFueling: km,
		})
		require.NoError(t, err)
	}

	rows, err := svc.Utilization(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, busy.ID, rows[0].VehicleID)
	assert.Equal(t, 300, rows[0].KmDriven)
	assert.Zero(t, rows[1].KmDriven)
}
