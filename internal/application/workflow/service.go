// Package workflow runs document approval workflows.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/domain/workflow"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Documents is the part of the document service workflows depend on
type Documents interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Activate(ctx context.Context, id uuid.UUID) error
}

// DepartmentDirectory resolves the department of a user
type DepartmentDirectory interface {
	DepartmentOf(ctx context.Context, userID uuid.UUID) (string, error)
}

// Caller is the authenticated user
type Caller struct {
	UserID uuid.UUID
	Role   string
}

// TemplateInput creates or updates a template
type TemplateInput struct {
	Name        string
	Description string
	IsActive    *bool
	Steps       []workflow.StepInput
}

// View is a workflow with its current step, deadline and history
type View struct {
	*workflow.Workflow
	TemplateName string            `json:"template_name"`
	CurrentStep  *workflow.Step    `json:"current_step,omitempty"`
	DueAt        *time.Time        `json:"due_at,omitempty"`
	Actions      []workflow.Action `json:"actions,omitempty"`
}

// Service manages templates and running workflows
type Service struct {
	templates   workflow.TemplateRepository
	workflows   workflow.Repository
	actions     workflow.ActionRepository
	documents   Documents
	departments DepartmentDirectory
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new workflow service
func NewService(
	templates workflow.TemplateRepository,
	workflows workflow.Repository,
	actions workflow.ActionRepository,
	documents Documents,
	departments DepartmentDirectory,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		templates:   templates,
		workflows:   workflows,
		actions:     actions,
		documents:   documents,
		departments: departments,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateTemplate validates and stores a template
func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*workflow.Template, error) {
	t, err := workflow.NewTemplate(in.Name, in.Description, in.Steps)
	if err != nil {
		return nil, err
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("Workflow template created", zap.String("template_id", t.ID.String()), zap.Int("steps", len(t.Steps)))
	return t, nil
}

// GetTemplate returns a template with its steps
func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*workflow.Template, error) {
	t, err := s.templates.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Workflow template")
	}
	return t, nil
}

// ListTemplates returns all templates, or only active ones
func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]workflow.Template, error) {
	return s.templates.List(ctx, activeOnly)
}

// UpdateTemplate changes a template. Steps are replaced only when given, and
// only while no workflow has been started from the template.
func (s *Service) UpdateTemplate(ctx context.Context, id uuid.UUID, in TemplateInput) (*workflow.Template, error) {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	active := t.IsActive
	if in.IsActive != nil {
		active = *in.IsActive
	}
	if err := t.Update(in.Name, in.Description, active); err != nil {
		return nil, err
	}
	if in.Steps != nil {
		used, err := s.workflows.CountByTemplate(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if used > 0 {
			return nil, shared.NewBusinessRuleError("Steps cannot change once workflows use the template")
		}
		if err := t.ReplaceSteps(in.Steps); err != nil {
			return nil, err
		}
	}
	if err := s.templates.Update(ctx, t); err != nil {
		return nil, notFoundAs(err, "Workflow template")
	}
	return t, nil
}

// DeleteTemplate removes a template no workflow refers to
func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	used, err := s.workflows.CountByTemplate(ctx, id)
	if err != nil {
		return err
	}
	if used > 0 {
		return shared.NewBusinessRuleError("Template is used by workflows; deactivate it instead")
	}
	return notFoundAs(s.templates.Delete(ctx, id), "Workflow template")
}

// Start begins a workflow on a document at the template's first step
func (s *Service) Start(ctx context.Context, caller Caller, templateID, documentID uuid.UUID) (view *View, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, "workflow", "start", started, err)
	}(time.Now())

	t, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	exists, err := s.documents.Exists(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.NewNotFoundError("Document")
	}
	running, err := s.workflows.List(ctx, workflow.Filter{DocumentID: &documentID, Status: workflow.StatusActive})
	if err != nil {
		return nil, err
	}
	if len(running) > 0 {
		return nil, shared.NewConflictError("The document already has an active workflow")
	}

	w, err := workflow.Start(t, documentID, caller.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.workflows.Create(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("Workflow started",
		zap.String("workflow_id", w.ID.String()),
		zap.String("document_id", documentID.String()),
		zap.String("template", t.Name))
	return s.view(t, w, nil), nil
}

// Get returns a workflow with its history
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	w, err := s.workflows.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Workflow")
	}
	t, err := s.GetTemplate(ctx, w.TemplateID)
	if err != nil {
		return nil, err
	}
	actions, err := s.actions.ListByWorkflow(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	return s.view(t, w, actions), nil
}

// List returns workflows matching filter. With mine set, only active
// workflows whose current step the caller may act on are returned.
func (s *Service) List(ctx context.Context, caller Caller, filter workflow.Filter, mine bool) ([]View, error) {
	if mine {
		filter.Status = workflow.StatusActive
	}
	workflows, err := s.workflows.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	var assignee workflow.Assignee
	if mine {
		if assignee, err = s.assignee(ctx, caller); err != nil {
			return nil, err
		}
	}

	templates := make(map[uuid.UUID]*workflow.Template)
	views := make([]View, 0, len(workflows))
	for i := range workflows {
		w := &workflows[i]
		t, ok := templates[w.TemplateID]
		if !ok {
			if t, err = s.GetTemplate(ctx, w.TemplateID); err != nil {
				return nil, err
			}
			templates[w.TemplateID] = t
		}
		if mine {
			step := w.CurrentStep(t)
			if step == nil || !step.Permits(assignee) {
				continue
			}
		}
		views = append(views, *s.view(t, w, nil))
	}
	return views, nil
}

// Act records what the caller did on the current step and moves the workflow
// on. The document is activated when the last step completes.
func (s *Service) Act(ctx context.Context, caller Caller, id uuid.UUID, kind workflow.ActionKind, comment string) (view *View, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, "workflow", "act", started, err)
	}(time.Now())

	w, err := s.workflows.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Workflow")
	}
	t, err := s.GetTemplate(ctx, w.TemplateID)
	if err != nil {
		return nil, err
	}
	assignee, err := s.assignee(ctx, caller)
	if err != nil {
		return nil, err
	}

	now := s.now()
	step, err := w.Apply(t, assignee, kind, now)
	if err != nil {
		return nil, err
	}
	if err := s.actions.Create(ctx, workflow.NewAction(w, step, caller.UserID, kind, comment, now)); err != nil {
		return nil, err
	}
	if err := s.workflows.Update(ctx, w); err != nil {
		return nil, err
	}
	if w.Status == workflow.StatusCompleted {
		if err := s.documents.Activate(ctx, w.DocumentID); err != nil {
			s.logger.Error("Failed to activate document after workflow",
				zap.String("workflow_id", w.ID.String()),
				zap.String("document_id", w.DocumentID.String()),
				zap.Error(err))
			return nil, err
		}
	}

	s.logger.Info("Workflow action recorded",
		zap.String("workflow_id", w.ID.String()),
		zap.String("step", step.Name),
		zap.String("action", string(kind)),
		zap.String("status", string(w.Status)))
	return s.Get(ctx, w.ID)
}

// Expire handles every active workflow whose current step is overdue and
// returns how many changed
func (s *Service) Expire(ctx context.Context) (int, error) {
	active, err := s.workflows.List(ctx, workflow.Filter{Status: workflow.StatusActive})
	if err != nil {
		return 0, err
	}
	now := s.now()
	changed := 0
	for i := range active {
		w := &active[i]
		t, err := s.templates.FindByID(ctx, w.TemplateID)
		if err != nil {
			return changed, notFoundAs(err, "Workflow template")
		}
		if !w.Expire(t, now) {
			continue
		}
		if err := s.workflows.Update(ctx, w); err != nil {
			return changed, err
		}
		changed++
	}
	if changed > 0 {
		s.logger.Info("Overdue workflows processed", zap.Int("count", changed))
	}
	return changed, nil
}

func (s *Service) assignee(ctx context.Context, caller Caller) (workflow.Assignee, error) {
	a := workflow.Assignee{UserID: caller.UserID, Role: caller.Role}
	if caller.Role == "admin" || s.departments == nil {
		return a, nil
	}
	dept, err := s.departments.DepartmentOf(ctx, caller.UserID)
	if err != nil {
		return a, err
	}
	a.Department = dept
	return a, nil
}

func (s *Service) view(t *workflow.Template, w *workflow.Workflow, actions []workflow.Action) *View {
	return &View{
		Workflow:     w,
		TemplateName: t.Name,
		CurrentStep:  w.CurrentStep(t),
		DueAt:        w.Deadline(t),
		Actions:      actions,
	}
}

func notFoundAs(err error, resource string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(resource)
	}
	return err
}
