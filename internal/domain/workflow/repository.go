package workflow

import (
	"context"

	"github.com/google/uuid"
)

// TemplateRepository persists templates together with their steps
type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	// Update saves the template and replaces its steps
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*Template, error)
	List(ctx context.Context, activeOnly bool) ([]Template, error)
}

// Filter narrows workflow lists
type Filter struct {
	DocumentID *uuid.UUID
	TemplateID *uuid.UUID
	Status     Status
}

// Repository persists running workflows
type Repository interface {
	Create(ctx context.Context, w *Workflow) error
	Update(ctx context.Context, w *Workflow) error
	FindByID(ctx context.Context, id uuid.UUID) (*Workflow, error)
	List(ctx context.Context, filter Filter) ([]Workflow, error)
	CountByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error)
}

// ActionRepository persists the workflow history
type ActionRepository interface {
	Create(ctx context.Context, a *Action) error
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]Action, error)
}
