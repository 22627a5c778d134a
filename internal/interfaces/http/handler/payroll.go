package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	payrollapp "github.com/municipal/backoffice/internal/application/payroll"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
)

// PayrollHandler serves the salary management API
type PayrollHandler struct {
	BaseHandler
	employees *payrollapp.EmployeeService
	settings  *payrollapp.SettingsService
	payrolls  *payrollapp.PayrollService
	dashboard *payrollapp.DashboardService
	payslips  *payrollapp.PayslipService
}

// NewPayrollHandler creates a new payroll handler
func NewPayrollHandler(
	employees *payrollapp.EmployeeService,
	settings *payrollapp.SettingsService,
	payrolls *payrollapp.PayrollService,
	dashboard *payrollapp.DashboardService,
	payslips *payrollapp.PayslipService,
) *PayrollHandler {
	return &PayrollHandler{
		employees: employees,
		settings:  settings,
		payrolls:  payrolls,
		dashboard: dashboard,
		payslips:  payslips,
	}
}

// Routes builds the /payroll route group; authn is the JWT middleware
func (h *PayrollHandler) Routes(authn gin.HandlerFunc) *router.DomainGroup {
	admin := middleware.RequireRole("admin")

	g := router.NewDomainGroup("payroll", "/payroll")
	g.Use(authn)

	g.GET("/employees/me", h.MyEmployee)
	g.GET("/employees", admin, h.ListEmployees)
	g.POST("/employees", admin, h.CreateEmployee)
	g.GET("/employees/:id", h.GetEmployee)
	g.PUT("/employees/:id", admin, h.UpdateEmployee)
	g.DELETE("/employees/:id", admin, h.DeactivateEmployee)

	g.GET("/financial-settings", h.ListSettings)
	g.POST("/financial-settings", admin, h.CreateSettings)
	g.POST("/financial-settings/defaults", admin, h.SeedSettings)
	g.GET("/financial-settings/effective", h.EffectiveSettings)
	g.GET("/financial-settings/:id", h.GetSettings)

	g.POST("/calculate", h.Calculate)

	g.GET("/payrolls", h.ListPayrolls)
	g.POST("/payrolls", admin, h.CreatePayroll)
	g.GET("/payrolls/:id", h.GetPayroll)
	g.DELETE("/payrolls/:id", admin, h.DeletePayroll)
	g.POST("/payrolls/:id/approve", admin, h.ApprovePayroll)
	g.POST("/payrolls/:id/pay", admin, h.PayPayroll)
	g.POST("/payrolls/:id/cancel", admin, h.CancelPayroll)
	g.GET("/payrolls/:id/payslip", h.Payslip)

	g.GET("/dashboard", h.Dashboard)
	g.GET("/activities", admin, h.Activities)

	return g
}

func (h *PayrollHandler) actor(c *gin.Context) (payrollapp.Actor, bool) {
	caller, ok := h.caller(c)
	if !ok {
		return payrollapp.Actor{}, false
	}
	return payrollapp.Actor{UserID: caller.UserID, IsAdmin: caller.IsAdmin()}, true
}

func (h *PayrollHandler) employeeInput(c *gin.Context) (payrollapp.EmployeeInput, bool) {
	var req EmployeeRequest
	if !h.bindJSON(c, &req) {
		return payrollapp.EmployeeInput{}, false
	}
	hireDate, err := parseDate(req.HireDate)
	if err != nil {
		h.HandleError(c, err)
		return payrollapp.EmployeeInput{}, false
	}
	return payrollapp.EmployeeInput{
		NationalID:  req.NationalID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Title:       req.Title,
		Department:  req.Department,
		HireDate:    hireDate,
		GrossSalary: req.GrossSalary,
		UserID:      req.UserID,
	}, true
}

// CreateEmployee godoc
// @Summary      Create employee
// @Tags         payroll
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body EmployeeRequest true "Employee"
// @Success      201 {object} dto.Response{data=payrollapp.EmployeeResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/employees [post]
func (h *PayrollHandler) CreateEmployee(c *gin.Context) {
	input, ok := h.employeeInput(c)
	if !ok {
		return
	}
	emp, err := h.employees.Create(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, emp)
}

// ListEmployees godoc
// @Summary      List employees
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        include_inactive query bool   false "Include deactivated employees"
// @Param        search           query string false "Name or national ID"
// @Param        department       query string false "Department"
// @Param        page             query int    false "Page" default(1)
// @Param        page_size        query int    false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]payrollapp.EmployeeResponse,meta=dto.Meta}
// @Router       /payroll/employees [get]
func (h *PayrollHandler) ListEmployees(c *gin.Context) {
	var req EmployeeListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.employees.List(c.Request.Context(), payrollapp.EmployeeListQuery{
		IncludeInactive: req.IncludeInactive,
		Search:          req.Search,
		Department:      req.Department,
		Page:            req.Page,
		PageSize:        req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// MyEmployee godoc
// @Summary      Own employee record
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=payrollapp.EmployeeResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/employees/me [get]
func (h *PayrollHandler) MyEmployee(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	emp, err := h.employees.Me(c.Request.Context(), actor.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, emp)
}

// GetEmployee godoc
// @Summary      Get employee
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Employee ID"
// @Success      200 {object} dto.Response{data=payrollapp.EmployeeResponse}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/employees/{id} [get]
func (h *PayrollHandler) GetEmployee(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	emp, err := h.employees.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, emp)
}

// UpdateEmployee godoc
// @Summary      Update employee
// @Tags         payroll
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id      path string          true "Employee ID"
// @Param        request body EmployeeRequest true "Employee"
// @Success      200 {object} dto.Response{data=payrollapp.EmployeeResponse}
// @Router       /payroll/employees/{id} [put]
func (h *PayrollHandler) UpdateEmployee(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	input, ok := h.employeeInput(c)
	if !ok {
		return
	}
	emp, err := h.employees.Update(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, emp)
}

// DeactivateEmployee godoc
// @Summary      Deactivate employee
// @Description  Soft delete; the record is kept with is_active=false
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Employee ID"
// @Success      200 {object} dto.Response{data=payrollapp.EmployeeResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/employees/{id} [delete]
func (h *PayrollHandler) DeactivateEmployee(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	emp, err := h.employees.Deactivate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, emp)
}

// CreateSettings godoc
// @Summary      Create financial settings
// @Description  Deactivates the other active settings of the same year
// @Tags         payroll
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body SettingsRequest true "Settings"
// @Success      201 {object} dto.Response{data=payrollapp.SettingsResponse}
// @Router       /payroll/financial-settings [post]
func (h *PayrollHandler) CreateSettings(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req SettingsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	effective, err := parseDate(req.EffectiveDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	brackets := make([]payrollapp.BracketInput, len(req.Brackets))
	for i, b := range req.Brackets {
		brackets[i] = payrollapp.BracketInput{MinAmount: b.MinAmount, MaxAmount: b.MaxAmount, Rate: b.Rate}
	}
	settings, err := h.settings.Create(c.Request.Context(), payrollapp.SettingsInput{
		EffectiveYear:            req.EffectiveYear,
		EffectiveDate:            effective,
		MinimumWage:              req.MinimumWage,
		SGKEmployeeRate:          req.SGKEmployeeRate,
		SGKEmployerRate:          req.SGKEmployerRate,
		UnemploymentEmployeeRate: req.UnemploymentEmployeeRate,
		UnemploymentEmployerRate: req.UnemploymentEmployerRate,
		StampTaxRate:             req.StampTaxRate,
		Brackets:                 brackets,
	}, actor.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, settings)
}

// SeedSettings godoc
// @Summary      Seed default financial settings
// @Tags         payroll
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body SeedSettingsRequest false "Year, defaults to the current year"
// @Success      201 {object} dto.Response{data=payrollapp.SettingsResponse}
// @Router       /payroll/financial-settings/defaults [post]
func (h *PayrollHandler) SeedSettings(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req SeedSettingsRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	settings, err := h.settings.SeedDefaults(c.Request.Context(), req.Year, actor.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, settings)
}

// ListSettings godoc
// @Summary      List financial settings
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        year query int false "Effective year"
// @Success      200 {object} dto.Response{data=[]payrollapp.SettingsResponse}
// @Router       /payroll/financial-settings [get]
func (h *PayrollHandler) ListSettings(c *gin.Context) {
	list, err := h.settings.List(c.Request.Context(), queryInt(c, "year", 0))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// EffectiveSettings godoc
// @Summary      Settings in force on a date
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        date query string false "YYYY-MM-DD, defaults to today"
// @Success      200 {object} dto.Response{data=payrollapp.SettingsResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/financial-settings/effective [get]
func (h *PayrollHandler) EffectiveSettings(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	settings, err := h.settings.Effective(c.Request.Context(), date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, settings)
}

// GetSettings godoc
// @Summary      Get financial settings
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Settings ID"
// @Success      200 {object} dto.Response{data=payrollapp.SettingsResponse}
// @Router       /payroll/financial-settings/{id} [get]
func (h *PayrollHandler) GetSettings(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	settings, err := h.settings.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, settings)
}

// Calculate godoc
// @Summary      Calculate deductions
// @Description  Uses the settings in force on date, or the fallback rates when none exist
// @Tags         payroll
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CalculateRequest true "Gross salary and optional date"
// @Success      200 {object} dto.Response{data=payroll.Breakdown}
// @Router       /payroll/calculate [post]
func (h *PayrollHandler) Calculate(c *gin.Context) {
	var req CalculateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	breakdown, err := h.settings.Calculate(c.Request.Context(), req.GrossSalary, date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, breakdown)
}

// CreatePayroll godoc
// @Summary      Create payroll
// @Tags         payroll
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CreatePayrollRequest true "Payroll"
// @Success      201 {object} dto.Response{data=payrollapp.PayrollResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/payrolls [post]
func (h *PayrollHandler) CreatePayroll(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreatePayrollRequest
	if !h.bindJSON(c, &req) {
		return
	}
	start, err := parseDate(req.PeriodStart)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	end, err := parseDate(req.PeriodEnd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	p, err := h.payrolls.Create(c.Request.Context(), actor, payrollapp.CreatePayrollInput{
		EmployeeID:  req.EmployeeID,
		PeriodStart: start,
		PeriodEnd:   end,
		GrossSalary: req.GrossSalary,
		Notes:       req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, p)
}

// ListPayrolls godoc
// @Summary      List payrolls
// @Description  Employees only see their own payrolls
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        include_inactive query bool   false "Include deactivated employees"
// @Param        search           query string false "Employee name"
// @Param        status           query string false "DRAFT, APPROVED, PAID or CANCELLED"
// @Param        date_from        query string false "Period start from (YYYY-MM-DD)"
// @Param        date_to          query string false "Period start to (YYYY-MM-DD)"
// @Param        page             query int    false "Page" default(1)
// @Param        page_size        query int    false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]payroll.PayrollSummary,meta=dto.Meta}
// @Router       /payroll/payrolls [get]
func (h *PayrollHandler) ListPayrolls(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req PayrollListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	from, err := parseOptionalDate(req.DateFrom)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	to, err := parseOptionalDate(req.DateTo)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.payrolls.List(c.Request.Context(), actor, payrollapp.PayrollListQuery{
		IncludeInactive: req.IncludeInactive,
		Search:          req.Search,
		Status:          req.Status,
		DateFrom:        from,
		DateTo:          to,
		Page:            req.Page,
		PageSize:        req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// GetPayroll godoc
// @Summary      Get payroll
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payroll ID"
// @Success      200 {object} dto.Response{data=payrollapp.PayrollResponse}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/payrolls/{id} [get]
func (h *PayrollHandler) GetPayroll(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	p, err := h.payrolls.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

func (h *PayrollHandler) transition(c *gin.Context, apply func(context.Context, payrollapp.Actor, uuid.UUID) (*payrollapp.PayrollResponse, error)) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	p, err := apply(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// ApprovePayroll godoc
// @Summary      Approve payroll
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payroll ID"
// @Success      200 {object} dto.Response{data=payrollapp.PayrollResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/payrolls/{id}/approve [post]
func (h *PayrollHandler) ApprovePayroll(c *gin.Context) {
	h.transition(c, h.payrolls.Approve)
}

// PayPayroll godoc
// @Summary      Mark payroll paid
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payroll ID"
// @Success      200 {object} dto.Response{data=payrollapp.PayrollResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/payrolls/{id}/pay [post]
func (h *PayrollHandler) PayPayroll(c *gin.Context) {
	h.transition(c, h.payrolls.Pay)
}

// CancelPayroll godoc
// @Summary      Cancel payroll
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payroll ID"
// @Success      200 {object} dto.Response{data=payrollapp.PayrollResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/payrolls/{id}/cancel [post]
func (h *PayrollHandler) CancelPayroll(c *gin.Context) {
	h.transition(c, h.payrolls.Cancel)
}

// DeletePayroll godoc
// @Summary      Delete payroll
// @Description  Only DRAFT or CANCELLED payrolls can be deleted
// @Tags         payroll
// @Security     BearerAuth
// @Param        id path string true "Payroll ID"
// @Success      204
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/payrolls/{id} [delete]
func (h *PayrollHandler) DeletePayroll(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.payrolls.Delete(c.Request.Context(), actor, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Payslip godoc
// @Summary      Payslip document
// @Tags         payroll
// @Security     BearerAuth
// @Produce      html
// @Produce      application/pdf
// @Param        id     path  string true  "Payroll ID"
// @Param        format query string false "html or pdf" default(html)
// @Success      200
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payroll/payrolls/{id}/payslip [get]
func (h *PayrollHandler) Payslip(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var slip *payrollapp.Payslip
	var err error
	switch c.DefaultQuery("format", "html") {
	case "html":
		slip, err = h.payslips.HTML(c.Request.Context(), actor, id)
	case "pdf":
		slip, err = h.payslips.PDF(c.Request.Context(), actor, id)
	default:
		h.BadRequest(c, "format must be html or pdf")
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	disposition := "inline"
	if slip.ContentType == "application/pdf" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition+"; filename="+strconv.Quote(slip.FileName))
	c.Data(http.StatusOK, slip.ContentType, slip.Data)
}

// Dashboard godoc
// @Summary      Payroll dashboard
// @Description  System-wide figures for admins, own figures for employees
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=payrollapp.DashboardStats}
// @Router       /payroll/dashboard [get]
func (h *PayrollHandler) Dashboard(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	stats, err := h.dashboard.Stats(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// Activities godoc
// @Summary      Recent payroll activity
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        limit query int false "Entries" default(10)
// @Success      200 {object} dto.Response{data=[]payroll.ActivityLog}
// @Router       /payroll/activities [get]
func (h *PayrollHandler) Activities(c *gin.Context) {
	entries, err := h.dashboard.RecentActivities(c.Request.Context(), queryInt(c, "limit", payrollapp.RecentActivityLimit))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}
