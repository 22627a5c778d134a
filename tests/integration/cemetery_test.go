//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cemeteryapp "github.com/municipal/backoffice/internal/application/cemetery"
	"github.com/municipal/backoffice/internal/domain/cemetery"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
)

func newCemeteryService(tdb *TestDB) *cemeteryapp.Service {
	return cemeteryapp.NewService(cemeteryapp.Repositories{
		Cemeteries: persistence.NewGormCemeteryRepository(tdb.DB),
		Blocks:     persistence.NewGormBlockRepository(tdb.DB),
		Graves:     persistence.NewGormGraveRepository(tdb.DB),
		Burials:    persistence.NewGormBurialRepository(tdb.DB),
		Visitors:   persistence.NewGormVisitorRepository(tdb.DB),
	}, nil, zap.NewNop())
}

func TestCemetery_ConcurrentBurialsOccupyAGraveOnce(t *testing.T) {
	tdb := NewTestDB(t)
	svc := newCemeteryService(tdb)
	ctx := context.Background()

	c, err := svc.CreateCemetery(ctx, cemetery.CemeteryDetails{Name: "Karşıyaka Mezarlığı", Province: "Ankara", TotalCapacity: 10})
	require.NoError(t, err)
	b, err := svc.CreateBlock(ctx, c.ID, "a", 10)
	require.NoError(t, err)
	g, err := svc.CreateGrave(ctx, cemeteryapp.GraveInput{BlockID: b.ID, Number: "1"})
	require.NoError(t, err)

	death := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	const attempts = 5
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RecordBurial(ctx, uuid.New(), g.ID, cemetery.BurialDetails{
				DeceasedName: "mehmet yılmaz",
				DeathDate:    death,
				BurialDate:   death.AddDate(0, 0, 1),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "BUSINESS_RULE", de.Code)
	}
	assert.Equal(t, 1, succeeded)

	report, err := svc.OccupancyReport(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Occupied)
	require.Len(t, report.Blocks, 1)
	assert.Equal(t, 1, report.Blocks[0].Occupied)
	assert.Equal(t, "A", report.Blocks[0].BlockNumber)

	grave, err := svc.GetGrave(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, cemetery.GraveOccupied, grave.Status)
}

func TestCemetery_SearchAndUniqueNumbers(t *testing.T) {
	tdb := NewTestDB(t)
	svc := newCemeteryService(tdb)
	ctx := context.Background()

	c, err := svc.CreateCemetery(ctx, cemetery.CemeteryDetails{Name: "Zincirlikuyu", Province: "İstanbul"})
	require.NoError(t, err)
	b, err := svc.CreateBlock(ctx, c.ID, "B", 0)
	require.NoError(t, err)

	_, err = svc.CreateBlock(ctx, c.ID, "b", 0)
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "ALREADY_EXISTS", de.Code)

	g, err := svc.CreateGrave(ctx, cemeteryapp.GraveInput{BlockID: b.ID, Number: "7"})
	require.NoError(t, err)
	death := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	_, err = svc.RecordBurial(ctx, uuid.New(), g.ID, cemetery.BurialDetails{
		DeceasedName: "Zeynep Arslan",
		NationalID:   "10000000146",
		DeathDate:    death,
		BurialDate:   death,
	})
	require.NoError(t, err)

	byName, err := svc.SearchBurials(ctx, cemetery.BurialFilter{Filter: shared.Filter{Search: "arslan"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byName.Total)

	byID, err := svc.SearchBurials(ctx, cemetery.BurialFilter{Filter: shared.Filter{Search: "10000000146"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byID.Total)

	report, err := svc.BurialReport(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.ThisYear)
}
