package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/domain/workflow"
	"gorm.io/gorm"
)

// GormWorkflowTemplateRepository implements workflow.TemplateRepository using GORM
type GormWorkflowTemplateRepository struct {
	db *gorm.DB
}

// NewGormWorkflowTemplateRepository creates a new GormWorkflowTemplateRepository
func NewGormWorkflowTemplateRepository(db *gorm.DB) *GormWorkflowTemplateRepository {
	return &GormWorkflowTemplateRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("step_order")
}

// Create saves a template and its steps
func (r *GormWorkflowTemplateRepository) Create(ctx context.Context, t *workflow.Template) error {
	return translateWriteError(r.db.WithContext(ctx).Create(t).Error, "A template with this name already exists")
}

// Update saves the template and replaces its steps in one transaction
func (r *GormWorkflowTemplateRepository) Update(ctx context.Context, t *workflow.Template) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Omit("Steps").Save(t)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		if err := tx.Where("template_id = ?", t.ID).Delete(&workflow.Step{}).Error; err != nil {
			return err
		}
		if len(t.Steps) == 0 {
			return nil
		}
		return tx.Create(&t.Steps).Error
	})
	return translateWriteError(err, "A template with this name already exists")
}

// Delete removes a template and its steps
func (r *GormWorkflowTemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", id).Delete(&workflow.Step{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&workflow.Template{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// FindByID finds a template with its steps in order
func (r *GormWorkflowTemplateRepository) FindByID(ctx context.Context, id uuid.UUID) (*workflow.Template, error) {
	var t workflow.Template
	if err := r.db.WithContext(ctx).Preload("Steps", orderedSteps).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// List returns templates by name
func (r *GormWorkflowTemplateRepository) List(ctx context.Context, activeOnly bool) ([]workflow.Template, error) {
	query := r.db.WithContext(ctx).Preload("Steps", orderedSteps).Order("name")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var templates []workflow.Template
	err := query.Find(&templates).Error
	return templates, err
}

// GormWorkflowRepository implements workflow.Repository using GORM
type GormWorkflowRepository struct {
	db *gorm.DB
}

// NewGormWorkflowRepository creates a new GormWorkflowRepository
func NewGormWorkflowRepository(db *gorm.DB) *GormWorkflowRepository {
	return &GormWorkflowRepository{db: db}
}

// Create saves a new workflow
func (r *GormWorkflowRepository) Create(ctx context.Context, w *workflow.Workflow) error {
	return r.db.WithContext(ctx).Create(w).Error
}

// Update saves changes to a workflow
func (r *GormWorkflowRepository) Update(ctx context.Context, w *workflow.Workflow) error {
	result := r.db.WithContext(ctx).Save(w)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a workflow by ID
func (r *GormWorkflowRepository) FindByID(ctx context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	var w workflow.Workflow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// List returns workflows, newest first
func (r *GormWorkflowRepository) List(ctx context.Context, filter workflow.Filter) ([]workflow.Workflow, error) {
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if filter.DocumentID != nil {
		query = query.Where("document_id = ?", *filter.DocumentID)
	}
	if filter.TemplateID != nil {
		query = query.Where("template_id = ?", *filter.TemplateID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var workflows []workflow.Workflow
	err := query.Find(&workflows).Error
	return workflows, err
}

// CountByTemplate counts workflows of any status started from a template
func (r *GormWorkflowRepository) CountByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&workflow.Workflow{}).Where("template_id = ?", templateID).Count(&count).Error
	return count, err
}

// GormWorkflowActionRepository implements workflow.ActionRepository using GORM
type GormWorkflowActionRepository struct {
	db *gorm.DB
}

// NewGormWorkflowActionRepository creates a new GormWorkflowActionRepository
func NewGormWorkflowActionRepository(db *gorm.DB) *GormWorkflowActionRepository {
	return &GormWorkflowActionRepository{db: db}
}

// Create appends a history entry
func (r *GormWorkflowActionRepository) Create(ctx context.Context, a *workflow.Action) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// ListByWorkflow returns the history of a workflow in order
func (r *GormWorkflowActionRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]workflow.Action, error) {
	var actions []workflow.Action
	err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Order("created_at").Find(&actions).Error
	return actions, err
}

var (
	_ workflow.TemplateRepository = (*GormWorkflowTemplateRepository)(nil)
	_ workflow.Repository         = (*GormWorkflowRepository)(nil)
	_ workflow.ActionRepository   = (*GormWorkflowActionRepository)(nil)
)
