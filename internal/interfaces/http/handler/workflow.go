package handler

import (
	"github.com/gin-gonic/gin"
	workflowapp "github.com/municipal/backoffice/internal/application/workflow"
	"github.com/municipal/backoffice/internal/domain/workflow"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
)

// WorkflowHandler serves document approval workflows
type WorkflowHandler struct {
	BaseHandler
	svc *workflowapp.Service
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(svc *workflowapp.Service) *WorkflowHandler {
	return &WorkflowHandler{svc: svc}
}

// Routes builds the /workflows route group
func (h *WorkflowHandler) Routes(authn gin.HandlerFunc) *router.DomainGroup {
	admin := middleware.RequireRole("admin")

	g := router.NewDomainGroup("workflow", "/workflows")
	g.Use(authn)

	g.GET("/templates", h.ListTemplates)
	g.POST("/templates", admin, h.CreateTemplate)
	g.GET("/templates/:id", h.GetTemplate)
	g.PUT("/templates/:id", admin, h.UpdateTemplate)
	g.DELETE("/templates/:id", admin, h.DeleteTemplate)

	g.GET("", h.List)
	g.POST("", h.Start)
	g.POST("/expire", admin, h.Expire)
	g.GET("/:id", h.Get)
	g.POST("/:id/actions", h.Act)

	return g
}

func (h *WorkflowHandler) caller(c *gin.Context) (workflowapp.Caller, bool) {
	caller, ok := h.BaseHandler.caller(c)
	if !ok {
		return workflowapp.Caller{}, false
	}
	return workflowapp.Caller{UserID: caller.UserID, Role: caller.Role}, true
}

// CreateTemplate godoc
// @Summary      Create workflow template
// @Tags         workflows
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body TemplateRequest true "Template with steps"
// @Success      201 {object} dto.Response{data=workflow.Template}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /workflows/templates [post]
func (h *WorkflowHandler) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.svc.CreateTemplate(c.Request.Context(), req.input())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, t)
}

// ListTemplates godoc
// @Summary      List workflow templates
// @Tags         workflows
// @Security     BearerAuth
// @Produce      json
// @Param        active query bool false "Only active templates"
// @Success      200 {object} dto.Response{data=[]workflow.Template}
// @Router       /workflows/templates [get]
func (h *WorkflowHandler) ListTemplates(c *gin.Context) {
	templates, err := h.svc.ListTemplates(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, templates)
}

// GetTemplate godoc
// @Summary      Get workflow template
// @Tags         workflows
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Template ID"
// @Success      200 {object} dto.Response{data=workflow.Template}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /workflows/templates/{id} [get]
func (h *WorkflowHandler) GetTemplate(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// UpdateTemplate godoc
// @Summary      Update workflow template
// @Description  Steps are replaced when given; this is refused once workflows use the template
// @Tags         workflows
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Template ID"
// @Param        request body TemplateRequest true "Template"
// @Success      200 {object} dto.Response{data=workflow.Template}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /workflows/templates/{id} [put]
func (h *WorkflowHandler) UpdateTemplate(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req TemplateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.svc.UpdateTemplate(c.Request.Context(), id, req.input())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// DeleteTemplate godoc
// @Summary      Delete workflow template
// @Tags         workflows
// @Security     BearerAuth
// @Param        id path string true "Template ID"
// @Success      204
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /workflows/templates/{id} [delete]
func (h *WorkflowHandler) DeleteTemplate(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteTemplate(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Start godoc
// @Summary      Start workflow
// @Tags         workflows
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body StartWorkflowRequest true "Template and document"
// @Success      201 {object} dto.Response{data=workflowapp.View}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /workflows [post]
func (h *WorkflowHandler) Start(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req StartWorkflowRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.svc.Start(c.Request.Context(), caller, req.TemplateID, req.DocumentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}

// List godoc
// @Summary      List workflows
// @Tags         workflows
// @Security     BearerAuth
// @Produce      json
// @Param        status query string false "Status"
// @Param        document_id query string false "Document ID"
// @Param        template_id query string false "Template ID"
// @Param        mine query bool false "Only workflows waiting on the caller"
// @Success      200 {object} dto.Response{data=[]workflowapp.View}
// @Router       /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req WorkflowListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	documentID, ok := h.optionalUUIDQuery(c, "document_id")
	if !ok {
		return
	}
	templateID, ok := h.optionalUUIDQuery(c, "template_id")
	if !ok {
		return
	}
	views, err := h.svc.List(c.Request.Context(), caller, workflow.Filter{
		DocumentID: documentID,
		TemplateID: templateID,
		Status:     workflow.Status(req.Status),
	}, req.Mine)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, views)
}

// Get godoc
// @Summary      Get workflow with history
// @Tags         workflows
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Workflow ID"
// @Success      200 {object} dto.Response{data=workflowapp.View}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Act godoc
// @Summary      Act on the current step
// @Tags         workflows
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Workflow ID"
// @Param        request body WorkflowActionRequest true "Action"
// @Success      200 {object} dto.Response{data=workflowapp.View}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /workflows/{id}/actions [post]
func (h *WorkflowHandler) Act(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req WorkflowActionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.svc.Act(c.Request.Context(), caller, id, workflow.ActionKind(req.Action), req.Comment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Expire godoc
// @Summary      Process overdue workflows
// @Tags         workflows
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=ExpireResponse}
// @Router       /workflows/expire [post]
func (h *WorkflowHandler) Expire(c *gin.Context) {
	n, err := h.svc.Expire(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ExpireResponse{Processed: n})
}
