package handler

import (
	"github.com/google/uuid"
	workflowapp "github.com/municipal/backoffice/internal/application/workflow"
	"github.com/municipal/backoffice/internal/domain/workflow"
)

// StepRequest is one step of a workflow template
type StepRequest struct {
	Name               string `json:"name" binding:"required,max=200"`
	StepOrder          int    `json:"step_order" binding:"min=0"`
	StepType           string `json:"step_type" binding:"required,oneof=approval review signature notification"`
	AssignedRole       string `json:"assigned_role" binding:"max=50"`
	AssignedDepartment string `json:"assigned_department" binding:"max=100"`
	DeadlineDays       int    `json:"deadline_days" binding:"min=0,max=365"`
	IsOptional         bool   `json:"is_optional"`
}

// TemplateRequest is the body of POST and PUT /workflows/templates. On update
// the steps are left untouched when omitted.
type TemplateRequest struct {
	Name        string        `json:"name" binding:"required,max=200"`
	Description string        `json:"description"`
	IsActive    *bool         `json:"is_active"`
	Steps       []StepRequest `json:"steps" binding:"omitempty,dive"`
}

func (r TemplateRequest) input() workflowapp.TemplateInput {
	in := workflowapp.TemplateInput{Name: r.Name, Description: r.Description, IsActive: r.IsActive}
	if r.Steps != nil {
		in.Steps = make([]workflow.StepInput, len(r.Steps))
		for i, s := range r.Steps {
			in.Steps[i] = workflow.StepInput{
				Name:               s.Name,
				Order:              s.StepOrder,
				Type:               workflow.StepType(s.StepType),
				AssignedRole:       s.AssignedRole,
				AssignedDepartment: s.AssignedDepartment,
				DeadlineDays:       s.DeadlineDays,
				IsOptional:         s.IsOptional,
			}
		}
	}
	return in
}

// StartWorkflowRequest is the body of POST /workflows
type StartWorkflowRequest struct {
	TemplateID uuid.UUID `json:"template_id" binding:"required"`
	DocumentID uuid.UUID `json:"document_id" binding:"required"`
}

// WorkflowActionRequest is the body of POST /workflows/:id/actions
type WorkflowActionRequest struct {
	Action  string `json:"action" binding:"required,oneof=approved rejected reviewed signed commented"`
	Comment string `json:"comment" binding:"max=2000"`
}

// WorkflowListRequest holds the workflow list query
type WorkflowListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=active completed cancelled expired"`
	Mine   bool   `form:"mine"`
}

// ExpireResponse reports how many workflows an expiry run changed
type ExpireResponse struct {
	Processed int `json:"processed"`
}
