package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/municipal/backoffice/internal/application/orchestration"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"github.com/shopspring/decimal"
)

// EmployeeDetailsRequest carries the payroll attributes of a provisioned employee
type EmployeeDetailsRequest struct {
	NationalID  string          `json:"national_id" binding:"required,national_id"`
	Title       string          `json:"title" binding:"max=100"`
	Department  string          `json:"department" binding:"max=100"`
	HireDate    string          `json:"hire_date" binding:"required,datetime=2006-01-02"`
	GrossSalary decimal.Decimal `json:"gross_salary"`
}

// ProvisionEmployeeRequest is the body of POST /orchestration/employees
type ProvisionEmployeeRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	EmployeeDetailsRequest
}

// OrchestrationHandler serves the cross-service workflows between IAM and payroll
type OrchestrationHandler struct {
	BaseHandler
	svc *orchestration.Service
}

// NewOrchestrationHandler creates a new orchestration handler
func NewOrchestrationHandler(svc *orchestration.Service) *OrchestrationHandler {
	return &OrchestrationHandler{svc: svc}
}

// Routes builds the /orchestration route group
func (h *OrchestrationHandler) Routes(authn gin.HandlerFunc) *router.DomainGroup {
	admin := middleware.RequireRole("admin")

	g := router.NewDomainGroup("orchestration", "/orchestration")
	g.GET("/health", h.Health)
	g.POST("/employees", authn, admin, h.CreateEmployee)
	g.POST("/registrations/:request_id/approve", authn, admin, h.ApproveRegistration)
	g.POST("/employees/:id/deactivate", authn, admin, h.DeactivateEmployee)
	return g
}

func (h *OrchestrationHandler) details(c *gin.Context, req EmployeeDetailsRequest) (orchestration.EmployeeDetails, bool) {
	hireDate, err := parseDate(req.HireDate)
	if err != nil {
		h.HandleError(c, err)
		return orchestration.EmployeeDetails{}, false
	}
	return orchestration.EmployeeDetails{
		NationalID:  req.NationalID,
		Title:       req.Title,
		Department:  req.Department,
		HireDate:    hireDate,
		GrossSalary: req.GrossSalary,
	}, true
}

// CreateEmployee godoc
// @Summary      Create an IAM account and employee together
// @Tags         orchestration
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body ProvisionEmployeeRequest true "Account and employee"
// @Success      201 {object} dto.Response{data=orchestration.EmployeeAccount}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orchestration/employees [post]
func (h *OrchestrationHandler) CreateEmployee(c *gin.Context) {
	var req ProvisionEmployeeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, ok := h.details(c, req.EmployeeDetailsRequest)
	if !ok {
		return
	}

	result, err := h.svc.CreateEmployeeWithAccount(c.Request.Context(), orchestration.CreateEmployeeInput{
		Email:           req.Email,
		Password:        req.Password,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		EmployeeDetails: details,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ApproveRegistration godoc
// @Summary      Approve an IAM registration and create the employee
// @Tags         orchestration
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request_id path string true "Registration request ID"
// @Param        request body EmployeeDetailsRequest true "Employee details"
// @Success      201 {object} dto.Response{data=orchestration.EmployeeAccount}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orchestration/registrations/{request_id}/approve [post]
func (h *OrchestrationHandler) ApproveRegistration(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	requestID, ok := h.parseUUIDParam(c, "request_id")
	if !ok {
		return
	}
	var req EmployeeDetailsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, ok := h.details(c, req)
	if !ok {
		return
	}

	result, err := h.svc.ApproveRegistration(c.Request.Context(), caller.Token, requestID, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// DeactivateEmployee godoc
// @Summary      Deactivate an employee and the linked IAM account
// @Tags         orchestration
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Employee ID"
// @Success      200 {object} dto.Response{data=orchestration.DeactivationResult}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orchestration/employees/{id}/deactivate [post]
func (h *OrchestrationHandler) DeactivateEmployee(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.DeactivateEmployee(c.Request.Context(), caller.Token, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Health godoc
// @Summary      Combined IAM and database health
// @Tags         orchestration
// @Produce      json
// @Success      200 {object} dto.Response{data=orchestration.Health}
// @Router       /orchestration/health [get]
func (h *OrchestrationHandler) Health(c *gin.Context) {
	h.Success(c, h.svc.Health(c.Request.Context()))
}
