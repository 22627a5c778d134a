package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/domain/workflow"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDocuments struct {
	known     map[uuid.UUID]bool
	activated []uuid.UUID
}

func (d *fakeDocuments) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return d.known[id], nil
}

func (d *fakeDocuments) Activate(_ context.Context, id uuid.UUID) error {
	d.activated = append(d.activated, id)
	return nil
}

type staticDepartments map[uuid.UUID]string

func (d staticDepartments) DepartmentOf(_ context.Context, userID uuid.UUID) (string, error) {
	return d[userID], nil
}

type fixture struct {
	svc     *Service
	docs    *fakeDocuments
	doc     uuid.UUID
	admin   Caller
	planner Caller
	lawyer  Caller
	clerk   Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t, &workflow.Template{}, &workflow.Step{}, &workflow.Workflow{}, &workflow.Action{})
	f := &fixture{
		doc:     uuid.New(),
		admin:   Caller{UserID: uuid.New(), Role: "admin"},
		planner: Caller{UserID: uuid.New(), Role: "employee"},
		lawyer:  Caller{UserID: uuid.New(), Role: "lawyer"},
		clerk:   Caller{UserID: uuid.New(), Role: "employee"},
	}
	f.docs = &fakeDocuments{known: map[uuid.UUID]bool{f.doc: true}}
	f.svc = NewService(
		persistence.NewGormWorkflowTemplateRepository(db),
		persistence.NewGormWorkflowRepository(db),
		persistence.NewGormWorkflowActionRepository(db),
		f.docs,
		staticDepartments{f.planner.UserID: "Imar"},
		nil,
		zap.NewNop(),
	)
	return f
}

func (f *fixture) template(t *testing.T) *workflow.Template {
	t.Helper()
	tmpl, err := f.svc.CreateTemplate(context.Background(), TemplateInput{
		Name: "Building permit",
		Steps: []workflow.StepInput{
			{Name: "Zoning review", Type: workflow.StepReview, AssignedDepartment: "imar", DeadlineDays: 3},
			{Name: "Legal approval", Type: workflow.StepApproval, AssignedRole: "lawyer"},
		},
	})
	require.NoError(t, err)
	return tmpl
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)

	_, err := f.svc.CreateTemplate(ctx, TemplateInput{Name: "Building permit",
		Steps: []workflow.StepInput{{Name: "x", Type: workflow.StepReview, AssignedRole: "clerk"}}})
	assertCode(t, err, "ALREADY_EXISTS")

	loaded, err := f.svc.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "Zoning review", loaded.Steps[0].Name)

	inactive := false
	updated, err := f.svc.UpdateTemplate(ctx, tmpl.ID, TemplateInput{
		Name:     "Building permit v2",
		IsActive: &inactive,
		Steps:    []workflow.StepInput{{Name: "Mayor", Type: workflow.StepSignature, AssignedRole: "mayor"}},
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	loaded, err = f.svc.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "Mayor", loaded.Steps[0].Name)

	active, err := f.svc.ListTemplates(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, f.svc.DeleteTemplate(ctx, tmpl.ID))
	_, err = f.svc.GetTemplate(ctx, tmpl.ID)
	assertCode(t, err, "NOT_FOUND")
	assertCode(t, f.svc.DeleteTemplate(ctx, tmpl.ID), "NOT_FOUND")
}

func TestStartAndAct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)

	_, err := f.svc.Start(ctx, f.clerk, tmpl.ID, uuid.New())
	assertCode(t, err, "NOT_FOUND")

	view, err := f.svc.Start(ctx, f.clerk, tmpl.ID, f.doc)
	require.NoError(t, err)
	require.NotNil(t, view.CurrentStep)
	assert.Equal(t, "Zoning review", view.CurrentStep.Name)
	assert.NotNil(t, view.DueAt)

	_, err = f.svc.Start(ctx, f.clerk, tmpl.ID, f.doc)
	assertCode(t, err, "ALREADY_EXISTS")

	assertCode(t, f.svc.DeleteTemplate(ctx, tmpl.ID), "BUSINESS_RULE")
	_, err = f.svc.UpdateTemplate(ctx, tmpl.ID, TemplateInput{Name: "x",
		Steps: []workflow.StepInput{{Name: "y", Type: workflow.StepReview, AssignedRole: "clerk"}}})
	assertCode(t, err, "BUSINESS_RULE")

	mine, err := f.svc.List(ctx, f.planner, workflow.Filter{}, true)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	mine, err = f.svc.List(ctx, f.lawyer, workflow.Filter{}, true)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = f.svc.Act(ctx, f.clerk, view.ID, workflow.ActionReviewed, "")
	assertCode(t, err, "FORBIDDEN")

	view, err = f.svc.Act(ctx, f.planner, view.ID, workflow.ActionCommented, "needs parcel map")
	require.NoError(t, err)
	assert.Equal(t, "Zoning review", view.CurrentStep.Name)

	view, err = f.svc.Act(ctx, f.planner, view.ID, workflow.ActionReviewed, "ok")
	require.NoError(t, err)
	assert.Equal(t, "Legal approval", view.CurrentStep.Name)
	assert.Nil(t, view.DueAt)
	assert.Empty(t, f.docs.activated)

	view, err = f.svc.Act(ctx, f.lawyer, view.ID, workflow.ActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, view.Status)
	assert.Nil(t, view.CurrentStep)
	require.Len(t, view.Actions, 3)
	assert.Equal(t, "needs parcel map", view.Actions[0].Comment)
	assert.Equal(t, []uuid.UUID{f.doc}, f.docs.activated)

	_, err = f.svc.Act(ctx, f.admin, view.ID, workflow.ActionApproved, "")
	assertCode(t, err, "INVALID_STATE")

	// a completed workflow no longer blocks a new one
	_, err = f.svc.Start(ctx, f.clerk, tmpl.ID, f.doc)
	require.NoError(t, err)
	all, err := f.svc.List(ctx, f.admin, workflow.Filter{DocumentID: &f.doc}, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)

	view, err := f.svc.Start(ctx, f.clerk, tmpl.ID, f.doc)
	require.NoError(t, err)
	view, err = f.svc.Act(ctx, f.admin, view.ID, workflow.ActionRejected, "incomplete")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCancelled, view.Status)
	assert.Empty(t, f.docs.activated)

	_, err = f.svc.Get(ctx, uuid.New())
	assertCode(t, err, "NOT_FOUND")
}

func TestExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)

	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return start }
	view, err := f.svc.Start(ctx, f.clerk, tmpl.ID, f.doc)
	require.NoError(t, err)

	n, err := f.svc.Expire(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.now = func() time.Time { return start.AddDate(0, 0, 4) }
	n, err = f.svc.Expire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusExpired, got.Status)
}
