package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	workflowapp "github.com/municipal/backoffice/internal/application/workflow"
	"github.com/municipal/backoffice/internal/domain/workflow"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type knownDocuments map[uuid.UUID]bool

func (d knownDocuments) Exists(_ context.Context, id uuid.UUID) (bool, error) { return d[id], nil }
func (d knownDocuments) Activate(context.Context, uuid.UUID) error            { return nil }

type workflowEnv struct {
	engine *gin.Engine
	doc    uuid.UUID
	admin  map[string]string
	lawyer map[string]string
	clerk  map[string]string
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t, &workflow.Template{}, &workflow.Step{}, &workflow.Workflow{}, &workflow.Action{})
	doc := uuid.New()
	svc := workflowapp.NewService(
		persistence.NewGormWorkflowTemplateRepository(db),
		persistence.NewGormWorkflowRepository(db),
		persistence.NewGormWorkflowActionRepository(db),
		knownDocuments{doc: true},
		nil,
		nil,
		zap.NewNop(),
	)

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "workflow-handler-test-secret",
		AccessTokenExpiration: 30 * time.Minute,
		Issuer:                "iam",
	})
	engine := gin.New()
	r := router.NewRouter(engine)
	r.Register(NewWorkflowHandler(svc).Routes(middleware.JWTAuthMiddleware(jwtService)))
	r.Setup()

	return &workflowEnv{
		engine: engine,
		doc:    doc,
		admin:  bearer(t, jwtService, uuid.New(), "admin"),
		lawyer: bearer(t, jwtService, uuid.New(), "lawyer"),
		clerk:  bearer(t, jwtService, uuid.New(), "employee"),
	}
}

func TestWorkflowHandler_Templates(t *testing.T) {
	env := newWorkflowEnv(t)
	body := map[string]any{
		"name": "Contract approval",
		"steps": []map[string]any{
			{"name": "Legal", "step_order": 2, "step_type": "approval", "assigned_role": "lawyer"},
			{"name": "Finance", "step_order": 1, "step_type": "review", "assigned_role": "accountant", "deadline_days": 5},
		},
	}

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows/templates", body, env.clerk)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows/templates", map[string]any{
		"name": "Bad", "steps": []map[string]any{{"name": "x", "step_type": "vote", "assigned_role": "a"}},
	}, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows/templates", body, env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tmpl := testutil.DecodeData[workflow.Template](t, w)
	require.Len(t, tmpl.Steps, 2)
	assert.Equal(t, "Finance", tmpl.Steps[0].Name)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/workflows/templates?active=true", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]workflow.Template](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodPut, "/api/v1/workflows/templates/"+tmpl.ID.String(), map[string]any{
		"name": "Contract approval", "description": "over 100k",
	}, env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, testutil.DecodeData[workflow.Template](t, w).Steps, 2)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, "/api/v1/workflows/templates/"+tmpl.ID.String(), nil, env.admin)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/workflows/templates/"+tmpl.ID.String(), nil, env.admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkflowHandler_Run(t *testing.T) {
	env := newWorkflowEnv(t)
	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows/templates", map[string]any{
		"name": "Contract approval",
		"steps": []map[string]any{
			{"name": "Legal", "step_type": "approval", "assigned_role": "lawyer"},
		},
	}, env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tmpl := testutil.DecodeData[workflow.Template](t, w)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows", map[string]any{
		"template_id": tmpl.ID, "document_id": uuid.New(),
	}, env.clerk)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows", map[string]any{
		"template_id": tmpl.ID, "document_id": env.doc,
	}, env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := testutil.DecodeData[workflowapp.View](t, w)
	require.NotNil(t, started.Workflow)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/workflows?mine=true", nil, env.lawyer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]workflowapp.View](t, w), 1)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/workflows?mine=true", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutil.DecodeData[[]workflowapp.View](t, w))
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/workflows?document_id=nope", nil, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := "/api/v1/workflows/" + started.ID.String() + "/actions"
	w = testutil.DoJSON(t, env.engine, http.MethodPost, path, map[string]any{"action": "approved"}, env.clerk)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodPost, path, map[string]any{"action": "vetoed"}, env.lawyer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, path, map[string]any{"action": "approved", "comment": "fine"}, env.lawyer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := testutil.DecodeData[workflowapp.View](t, w)
	assert.Equal(t, workflow.StatusCompleted, done.Status)
	assert.Len(t, done.Actions, 1)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, path, map[string]any{"action": "approved"}, env.admin)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/workflows/"+started.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows/expire", nil, env.clerk)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/workflows/expire", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, testutil.DecodeData[ExpireResponse](t, w).Processed)
}
