package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	cemeteryapp "github.com/municipal/backoffice/internal/application/cemetery"
	"github.com/municipal/backoffice/internal/domain/cemetery"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cemeteryEnv struct {
	engine *gin.Engine
	admin  map[string]string
	clerk  map[string]string
}

func newCemeteryEnv(t *testing.T) *cemeteryEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t,
		&cemetery.Cemetery{}, &cemetery.Block{}, &cemetery.Grave{},
		&cemetery.Burial{}, &cemetery.VisitorLog{})
	svc := cemeteryapp.NewService(cemeteryapp.Repositories{
		Cemeteries: persistence.NewGormCemeteryRepository(db),
		Blocks:     persistence.NewGormBlockRepository(db),
		Graves:     persistence.NewGormGraveRepository(db),
		Burials:    persistence.NewGormBurialRepository(db),
		Visitors:   persistence.NewGormVisitorRepository(db),
	}, nil, zap.NewNop())

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "cemetery-handler-test-secret",
		AccessTokenExpiration: 30 * time.Minute,
		Issuer:                "iam",
	})
	engine := gin.New()
	r := router.NewRouter(engine)
	r.Register(NewCemeteryHandler(svc).Routes(middleware.JWTAuthMiddleware(jwtService)))
	r.Setup()

	return &cemeteryEnv{
		engine: engine,
		admin:  bearer(t, jwtService, uuid.New(), "admin"),
		clerk:  bearer(t, jwtService, uuid.New(), "clerk"),
	}
}

// layout creates a cemetery with one block holding n graves
func (e *cemeteryEnv) layout(t *testing.T, name string, n int) (cemetery.Cemetery, []cemetery.Grave) {
	t.Helper()
	w := testutil.DoJSON(t, e.engine, http.MethodPost, "/api/v1/cemetery/cemeteries", map[string]any{
		"name": name, "province": "Ankara", "district": "Çankaya", "total_capacity": 100,
		"latitude": 39.92, "longitude": 32.85,
	}, e.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cem := testutil.DecodeData[cemetery.Cemetery](t, w)

	w = testutil.DoJSON(t, e.engine, http.MethodPost, "/api/v1/cemetery/cemeteries/"+cem.ID.String()+"/blocks",
		map[string]any{"block_number": "A", "capacity": 50}, e.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	block := testutil.DecodeData[cemetery.Block](t, w)

	graves := make([]cemetery.Grave, 0, n)
	for i := 0; i < n; i++ {
		w = testutil.DoJSON(t, e.engine, http.MethodPost, "/api/v1/cemetery/graves", map[string]any{
			"block_id": block.ID, "grave_number": string(rune('1' + i)), "grave_type": "single",
		}, e.admin)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		graves = append(graves, testutil.DecodeData[cemetery.Grave](t, w))
	}
	return cem, graves
}

func burialBody(graveID uuid.UUID, name, nationalID string) map[string]any {
	return map[string]any{
		"grave_id": graveID, "deceased_name": name, "national_id": nationalID,
		"father_name": "hüseyin", "death_date": "2025-02-10", "burial_date": "2025-02-11",
		"relative_name": "zehra doğan", "relative_phone": "05321234567",
	}
}

func TestCemeteryHandler_Layout(t *testing.T) {
	env := newCemeteryEnv(t)

	w := testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/cemeteries", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/cemeteries",
		map[string]any{"name": "Karşıyaka"}, env.clerk)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/cemeteries",
		map[string]any{"name": "Karşıyaka", "latitude": 120.0, "longitude": 32.0}, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, testutil.ErrorCode(t, w))

	cem, graves := env.layout(t, "Karşıyaka", 2)
	assert.True(t, cem.IsActive)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/cemeteries/"+cem.ID.String()+"/blocks",
		map[string]any{"block_number": "a"}, env.admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/cemeteries/"+cem.ID.String()+"/blocks", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]cemetery.Block](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/graves/"+graves[0].ID.String()+"/reserve", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, cemetery.GraveReserved, testutil.DecodeData[cemetery.Grave](t, w).Status)
	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/graves/"+graves[1].ID.String()+"/release", nil, env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/cemeteries/"+cem.ID.String()+"/graves?status=empty", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	empty := testutil.DecodeData[[]cemetery.Grave](t, w)
	require.Len(t, empty, 1)
	assert.Equal(t, graves[1].ID, empty[0].ID)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/cemeteries/"+cem.ID.String()+"/graves?status=full", nil, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/cemeteries/"+uuid.NewString()+"/graves", nil, env.clerk)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPut, "/api/v1/cemetery/cemeteries/"+cem.ID.String(),
		map[string]any{"name": "Karşıyaka Asri", "total_capacity": 120}, env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 120, testutil.DecodeData[cemetery.Cemetery](t, w).TotalCapacity)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, "/api/v1/cemetery/cemeteries/"+cem.ID.String(), nil, env.admin)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/cemeteries", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutil.DecodeData[[]cemetery.Cemetery](t, w))
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/cemeteries?include_inactive=true", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]cemetery.Cemetery](t, w), 1)
}

func TestCemeteryHandler_Burials(t *testing.T) {
	env := newCemeteryEnv(t)
	cem, graves := env.layout(t, "Cebeci Asri", 2)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/burials",
		burialBody(graves[0].ID, "mustafa doğan", "123"), env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := burialBody(graves[0].ID, "mustafa doğan", "10000000146")
	body["burial_date"] = "2025-02-01"
	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/burials", body, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/burials",
		burialBody(uuid.New(), "mustafa doğan", "10000000146"), env.clerk)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/burials",
		burialBody(graves[0].ID, "mustafa doğan", "10000000146"), env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	burial := testutil.DecodeData[cemetery.Burial](t, w)
	assert.Equal(t, "Mustafa Doğan", burial.DeceasedName)
	assert.Equal(t, "Hüseyin", burial.FatherName)
	assert.Equal(t, "Zehra Doğan", burial.RelativeName)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/burials",
		burialBody(graves[0].ID, "başka biri", ""), env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/burials",
		burialBody(graves[1].ID, "leyla şahin", "20000000046"), env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/burials/search", nil, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/burials/search?q=mustafa", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	found := testutil.DecodeData[[]cemetery.Burial](t, w)
	require.Len(t, found, 1)
	assert.Equal(t, burial.ID, found[0].ID)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/burials/search?q=20000000046", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]cemetery.Burial](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/burials?cemetery_id="+cem.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]cemetery.Burial](t, w), 2)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/burials?grave_id=bad", nil, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	update := burialBody(graves[0].ID, "mustafa doğan", "10000000146")
	update["cause_of_death"] = "kalp yetmezliği"
	w = testutil.DoJSON(t, env.engine, http.MethodPut, "/api/v1/cemetery/burials/"+burial.ID.String(), update, env.clerk)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/burials/"+burial.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kalp yetmezliği", testutil.DecodeData[cemetery.Burial](t, w).CauseOfDeath)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/reports/occupancy/"+cem.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	occupancy := testutil.DecodeData[cemeteryapp.OccupancyReport](t, w)
	assert.Equal(t, 2, occupancy.Occupied)
	assert.Equal(t, 2.0, occupancy.OccupancyRate)
	require.Len(t, occupancy.Blocks, 1)
	assert.Equal(t, 4.0, occupancy.Blocks[0].OccupancyRate)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/reports/status", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	status := testutil.DecodeData[cemeteryapp.StatusReport](t, w)
	assert.Equal(t, int64(2), status.Occupied)
	assert.Equal(t, int64(2), status.GravesByStatus[cemetery.GraveOccupied])

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/reports/burials?year=2025", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	burials := testutil.DecodeData[cemeteryapp.BurialReport](t, w)
	assert.Equal(t, int64(2), burials.ThisYear)
	assert.Equal(t, int64(2), burials.Monthly[1].Count)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/reports/burials?year=1066", nil, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCemeteryHandler_Visitors(t *testing.T) {
	env := newCemeteryEnv(t)
	cem, graves := env.layout(t, "Zincirlikuyu", 1)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/visitors",
		map[string]any{"cemetery_id": cem.ID}, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/cemetery/visitors", map[string]any{
		"cemetery_id": cem.ID, "visitor_name": "Selin Aksoy", "sought_name": "mustafa doğan", "grave_id": graves[0].ID,
	}, env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := testutil.DecodeData[cemetery.VisitorLog](t, w)
	assert.True(t, entry.Found)
	assert.Equal(t, "Mustafa Doğan", entry.SoughtName)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/visitors?cemetery_id="+cem.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]cemetery.VisitorLog](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/cemetery/visitors?search=selin", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]cemetery.VisitorLog](t, w), 1)
}
