// Package workflow holds document approval workflows: reusable templates of
// ordered steps and the running workflows that walk through them.
package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// StepType is what a step asks of its assignee
type StepType string

const (
	StepApproval     StepType = "approval"
	StepReview       StepType = "review"
	StepSignature    StepType = "signature"
	StepNotification StepType = "notification"
)

// IsValid reports whether t is a known step type
func (t StepType) IsValid() bool {
	switch t {
	case StepApproval, StepReview, StepSignature, StepNotification:
		return true
	}
	return false
}

// Status is the state of a running workflow
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ActionKind is what an assignee did on a step
type ActionKind string

const (
	ActionApproved  ActionKind = "approved"
	ActionRejected  ActionKind = "rejected"
	ActionReviewed  ActionKind = "reviewed"
	ActionSigned    ActionKind = "signed"
	ActionCommented ActionKind = "commented"
)

// IsValid reports whether k is a known action
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionApproved, ActionRejected, ActionReviewed, ActionSigned, ActionCommented:
		return true
	}
	return false
}

// advances reports whether the action completes the current step
func (k ActionKind) advances() bool {
	return k == ActionApproved || k == ActionReviewed || k == ActionSigned
}

// Template is a reusable sequence of steps
type Template struct {
	shared.BaseEntity
	Name        string `gorm:"size:200;not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`
	Steps       []Step `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"steps"`
}

// TableName returns the table name for GORM
func (Template) TableName() string {
	return "workflow_templates"
}

// Step is one stage of a template
type Step struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID         uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"`
	Name               string    `gorm:"size:200;not null" json:"name"`
	Order              int       `gorm:"column:step_order;not null" json:"step_order"`
	Type               StepType  `gorm:"size:20;not null" json:"step_type"`
	AssignedRole       string    `gorm:"size:50" json:"assigned_role,omitempty"`
	AssignedDepartment string    `gorm:"size:100" json:"assigned_department,omitempty"`
	DeadlineDays       int       `gorm:"not null;default:0" json:"deadline_days"`
	IsOptional         bool      `gorm:"not null;default:false" json:"is_optional"`
}

// TableName returns the table name for GORM
func (Step) TableName() string {
	return "workflow_steps"
}

// Assignee is the user acting on a workflow
type Assignee struct {
	UserID     uuid.UUID
	Role       string
	Department string
}

// Permits reports whether a may act on the step
func (s *Step) Permits(a Assignee) bool {
	if a.Role == "admin" {
		return true
	}
	if s.AssignedRole != "" && s.AssignedRole == a.Role {
		return true
	}
	return s.AssignedDepartment != "" && strings.EqualFold(s.AssignedDepartment, a.Department)
}

// StepInput describes a step of a new or updated template. A zero Order
// keeps the position in the list.
type StepInput struct {
	Name               string
	Order              int
	Type               StepType
	AssignedRole       string
	AssignedDepartment string
	DeadlineDays       int
	IsOptional         bool
}

// NewTemplate validates and creates a template
func NewTemplate(name, description string, steps []StepInput) (*Template, error) {
	t := &Template{BaseEntity: shared.NewBaseEntity(), IsActive: true}
	if err := t.Update(name, description, true); err != nil {
		return nil, err
	}
	if err := t.ReplaceSteps(steps); err != nil {
		return nil, err
	}
	return t, nil
}

// Update changes the name, description and active flag
func (t *Template) Update(name, description string, active bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewValidationError("Template name is required")
	}
	t.Name = name
	t.Description = strings.TrimSpace(description)
	t.IsActive = active
	t.Touch()
	return nil
}

// ReplaceSteps validates inputs and replaces every step of the template
func (t *Template) ReplaceSteps(inputs []StepInput) error {
	if len(inputs) == 0 {
		return shared.NewValidationError("A template needs at least one step")
	}
	steps := make([]Step, len(inputs))
	seen := make(map[int]bool, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in.Name) == "" {
			return shared.NewValidationError(fmt.Sprintf("Step %d needs a name", i+1))
		}
		if !in.Type.IsValid() {
			return shared.NewValidationError(fmt.Sprintf("Step %d has an unknown type", i+1))
		}
		if in.AssignedRole == "" && in.AssignedDepartment == "" {
			return shared.NewValidationError(fmt.Sprintf("Step %d needs an assigned role or department", i+1))
		}
		if in.DeadlineDays < 0 {
			return shared.NewValidationError("Deadline days cannot be negative")
		}
		order := in.Order
		if order == 0 {
			order = i + 1
		}
		if seen[order] {
			return shared.NewValidationError(fmt.Sprintf("Step order %d is used twice", order))
		}
		seen[order] = true
		steps[i] = Step{
			ID:                 uuid.New(),
			TemplateID:         t.ID,
			Name:               strings.TrimSpace(in.Name),
			Order:              order,
			Type:               in.Type,
			AssignedRole:       strings.TrimSpace(in.AssignedRole),
			AssignedDepartment: strings.TrimSpace(in.AssignedDepartment),
			DeadlineDays:       in.DeadlineDays,
			IsOptional:         in.IsOptional,
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	t.Steps = steps
	t.Touch()
	return nil
}

// Step returns the step with id
func (t *Template) Step(id uuid.UUID) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

// FirstStep returns the step with the lowest order
func (t *Template) FirstStep() *Step {
	var first *Step
	for i := range t.Steps {
		if first == nil || t.Steps[i].Order < first.Order {
			first = &t.Steps[i]
		}
	}
	return first
}

// NextStep returns the step following current by order, or nil at the end
func (t *Template) NextStep(current *Step) *Step {
	var next *Step
	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Order > current.Order && (next == nil || s.Order < next.Order) {
			next = s
		}
	}
	return next
}

// Workflow is a template running on a document
type Workflow struct {
	shared.BaseEntity
	DocumentID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	TemplateID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"template_id"`
	Status               Status     `gorm:"size:20;not null;index" json:"status"`
	CurrentStepID        *uuid.UUID `gorm:"type:uuid" json:"current_step_id,omitempty"`
	CurrentStepStartedAt *time.Time `json:"current_step_started_at,omitempty"`
	StartedBy            uuid.UUID  `gorm:"type:uuid;not null" json:"started_by"`
	StartedAt            time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for GORM
func (Workflow) TableName() string {
	return "workflows"
}

// Start begins a workflow of an active template on a document
func Start(t *Template, documentID, startedBy uuid.UUID, now time.Time) (*Workflow, error) {
	if !t.IsActive {
		return nil, shared.NewStateError("Template is not active")
	}
	first := t.FirstStep()
	if first == nil {
		return nil, shared.NewStateError("Template has no steps")
	}
	w := &Workflow{
		BaseEntity: shared.NewBaseEntity(),
		DocumentID: documentID,
		TemplateID: t.ID,
		Status:     StatusActive,
		StartedBy:  startedBy,
		StartedAt:  now,
	}
	w.moveTo(first, now)
	return w, nil
}

func (w *Workflow) moveTo(step *Step, now time.Time) {
	id := step.ID
	w.CurrentStepID = &id
	w.CurrentStepStartedAt = &now
	w.Touch()
}

func (w *Workflow) finish(status Status, now time.Time) {
	w.Status = status
	w.CurrentStepID = nil
	w.CompletedAt = &now
	w.Touch()
}

// CurrentStep returns the step the workflow waits on
func (w *Workflow) CurrentStep(t *Template) *Step {
	if w.CurrentStepID == nil {
		return nil
	}
	return t.Step(*w.CurrentStepID)
}

// Apply records the effect of kind on the current step. It returns the step
// acted on; the workflow is completed when no step follows.
func (w *Workflow) Apply(t *Template, by Assignee, kind ActionKind, now time.Time) (*Step, error) {
	if !kind.IsValid() {
		return nil, shared.NewValidationError("Unknown workflow action")
	}
	if w.Status != StatusActive {
		return nil, shared.NewStateError(fmt.Sprintf("Workflow is %s", w.Status))
	}
	step := w.CurrentStep(t)
	if step == nil {
		return nil, shared.NewStateError("Workflow has no current step")
	}
	if !step.Permits(by) {
		return nil, shared.NewForbiddenError("You are not assigned to the current step")
	}

	switch {
	case kind == ActionRejected:
		w.finish(StatusCancelled, now)
	case kind.advances():
		w.advance(t, step, now)
	}
	return step, nil
}

func (w *Workflow) advance(t *Template, step *Step, now time.Time) {
	if next := t.NextStep(step); next != nil {
		w.moveTo(next, now)
		return
	}
	w.finish(StatusCompleted, now)
}

// Deadline returns when the current step is due, or nil if it has none
func (w *Workflow) Deadline(t *Template) *time.Time {
	step := w.CurrentStep(t)
	if step == nil || step.DeadlineDays == 0 || w.CurrentStepStartedAt == nil {
		return nil
	}
	due := w.CurrentStepStartedAt.AddDate(0, 0, step.DeadlineDays)
	return &due
}

// Expire handles an overdue current step: an optional step is skipped, any
// other step expires the workflow. It reports whether anything changed.
func (w *Workflow) Expire(t *Template, now time.Time) bool {
	if w.Status != StatusActive {
		return false
	}
	due := w.Deadline(t)
	if due == nil || !now.After(*due) {
		return false
	}
	step := w.CurrentStep(t)
	if step.IsOptional {
		w.advance(t, step, now)
	} else {
		w.finish(StatusExpired, now)
	}
	return true
}

// Action is an entry of a workflow's history
type Action struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID uuid.UUID  `gorm:"type:uuid;not null;index" json:"workflow_id"`
	StepID     uuid.UUID  `gorm:"type:uuid;not null" json:"step_id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null" json:"user_id"`
	Action     ActionKind `gorm:"size:20;not null" json:"action"`
	Comment    string     `gorm:"type:text" json:"comment"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (Action) TableName() string {
	return "workflow_actions"
}

// NewAction creates a history entry
func NewAction(w *Workflow, step *Step, userID uuid.UUID, kind ActionKind, comment string, now time.Time) *Action {
	return &Action{
		ID:         uuid.New(),
		WorkflowID: w.ID,
		StepID:     step.ID,
		UserID:     userID,
		Action:     kind,
		Comment:    strings.TrimSpace(comment),
		CreatedAt:  now,
	}
}
