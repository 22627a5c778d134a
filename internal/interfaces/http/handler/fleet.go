package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	fleetapp "github.com/municipal/backoffice/internal/application/fleet"
	"github.com/municipal/backoffice/internal/domain/fleet"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
)

// FleetHandler serves the vehicle fleet API
type FleetHandler struct {
	BaseHandler
	svc *fleetapp.Service
}

// NewFleetHandler creates a new fleet handler
func NewFleetHandler(svc *fleetapp.Service) *FleetHandler {
	return &FleetHandler{svc: svc}
}

// Routes builds the /fleet route group; reads need a login, writes the admin role
func (h *FleetHandler) Routes(authn gin.HandlerFunc) *router.DomainGroup {
	admin := middleware.RequireRole("admin")

	g := router.NewDomainGroup("fleet", "/fleet")
	g.Use(authn)

	g.GET("/vehicles", h.ListVehicles)
	g.POST("/vehicles", admin, h.CreateVehicle)
	g.GET("/vehicles/:id", h.GetVehicle)
	g.PUT("/vehicles/:id", admin, h.UpdateVehicle)
	g.DELETE("/vehicles/:id", admin, h.DeleteVehicle)
	g.GET("/vehicles/:id/fuel-stats", h.FuelStats)

	g.GET("/drivers", h.ListDrivers)
	g.POST("/drivers", admin, h.CreateDriver)
	g.GET("/drivers/:id", h.GetDriver)
	g.PUT("/drivers/:id", admin, h.UpdateDriver)
	g.DELETE("/drivers/:id", admin, h.DeleteDriver)

	g.GET("/assignments", h.ListAssignments)
	g.POST("/assignments", admin, h.Assign)
	g.POST("/assignments/:id/end", admin, h.EndAssignment)

	g.GET("/maintenance", h.ListMaintenance)
	g.GET("/maintenance/upcoming", h.UpcomingMaintenance)
	g.POST("/maintenance", admin, h.CreateMaintenance)
	g.GET("/maintenance/:id", h.GetMaintenance)
	g.PUT("/maintenance/:id", admin, h.UpdateMaintenance)
	g.DELETE("/maintenance/:id", admin, h.DeleteMaintenance)

	g.GET("/fuel", h.ListFuel)
	g.POST("/fuel", admin, h.CreateFuel)

	g.GET("/reports/dashboard", h.Dashboard)
	g.GET("/reports/utilization", h.Utilization)
	g.GET("/reports/costs", h.Costs)
	g.GET("/reports/drivers", h.DriverReport)

	return g
}

// CreateVehicle godoc
// @Summary      Register vehicle
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body VehicleRequest true "Vehicle"
// @Success      201 {object} dto.Response{data=fleet.Vehicle}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /fleet/vehicles [post]
func (h *FleetHandler) CreateVehicle(c *gin.Context) {
	var req VehicleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	v, err := h.svc.CreateVehicle(c.Request.Context(), details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, v)
}

// ListVehicles godoc
// @Summary      List vehicles
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        status query string false "Status"
// @Param        department query string false "Department"
// @Param        search query string false "Plate, brand or model"
// @Success      200 {object} dto.Response{data=[]fleet.Vehicle,meta=dto.Meta}
// @Router       /fleet/vehicles [get]
func (h *FleetHandler) ListVehicles(c *gin.Context) {
	var req VehicleListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.svc.ListVehicles(c.Request.Context(), fleet.VehicleFilter{
		Filter: shared.Filter{
			Page: req.Page, PageSize: req.PageSize, Search: req.Search,
			OrderBy: req.OrderBy, OrderDir: req.OrderDir,
		},
		Status:          fleet.VehicleStatus(req.Status),
		Department:      req.Department,
		IncludeInactive: req.IncludeInactive,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// GetVehicle godoc
// @Summary      Get vehicle
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Vehicle ID"
// @Success      200 {object} dto.Response{data=fleet.Vehicle}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /fleet/vehicles/{id} [get]
func (h *FleetHandler) GetVehicle(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.GetVehicle(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, v)
}

// UpdateVehicle godoc
// @Summary      Update vehicle
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Vehicle ID"
// @Param        request body VehicleRequest true "Vehicle"
// @Success      200 {object} dto.Response{data=fleet.Vehicle}
// @Router       /fleet/vehicles/{id} [put]
func (h *FleetHandler) UpdateVehicle(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req VehicleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	v, err := h.svc.UpdateVehicle(c.Request.Context(), id, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, v)
}

// DeleteVehicle godoc
// @Summary      Delete vehicle (soft)
// @Tags         fleet
// @Security     BearerAuth
// @Param        id path string true "Vehicle ID"
// @Success      204
// @Router       /fleet/vehicles/{id} [delete]
func (h *FleetHandler) DeleteVehicle(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteVehicle(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// FuelStats godoc
// @Summary      Fuel statistics of a vehicle
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Vehicle ID"
// @Success      200 {object} dto.Response{data=fleet.FuelStats}
// @Router       /fleet/vehicles/{id}/fuel-stats [get]
func (h *FleetHandler) FuelStats(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	stats, err := h.svc.FuelStats(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// CreateDriver godoc
// @Summary      Register driver
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body DriverRequest true "Driver"
// @Success      201 {object} dto.Response{data=fleet.Driver}
// @Router       /fleet/drivers [post]
func (h *FleetHandler) CreateDriver(c *gin.Context) {
	var req DriverRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	d, err := h.svc.CreateDriver(c.Request.Context(), details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, d)
}

// ListDrivers godoc
// @Summary      List drivers
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        department query string false "Department"
// @Param        is_active query bool false "Active flag"
// @Success      200 {object} dto.Response{data=[]fleet.Driver,meta=dto.Meta}
// @Router       /fleet/drivers [get]
func (h *FleetHandler) ListDrivers(c *gin.Context) {
	var req DriverListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.svc.ListDrivers(c.Request.Context(), fleet.DriverFilter{
		Filter:     shared.Filter{Page: req.Page, PageSize: req.PageSize, Search: req.Search},
		Department: req.Department,
		IsActive:   req.IsActive,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// GetDriver godoc
// @Summary      Get driver
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Driver ID"
// @Success      200 {object} dto.Response{data=fleet.Driver}
// @Router       /fleet/drivers/{id} [get]
func (h *FleetHandler) GetDriver(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetDriver(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, d)
}

// UpdateDriver godoc
// @Summary      Update driver
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Driver ID"
// @Param        request body DriverRequest true "Driver"
// @Success      200 {object} dto.Response{data=fleet.Driver}
// @Router       /fleet/drivers/{id} [put]
func (h *FleetHandler) UpdateDriver(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req DriverRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	d, err := h.svc.UpdateDriver(c.Request.Context(), id, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, d)
}

// DeleteDriver godoc
// @Summary      Deactivate driver
// @Tags         fleet
// @Security     BearerAuth
// @Param        id path string true "Driver ID"
// @Success      204
// @Router       /fleet/drivers/{id} [delete]
func (h *FleetHandler) DeleteDriver(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteDriver(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Assign godoc
// @Summary      Assign a vehicle to a driver
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body AssignmentRequest true "Assignment"
// @Success      201 {object} dto.Response{data=fleet.VehicleAssignment}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /fleet/assignments [post]
func (h *FleetHandler) Assign(c *gin.Context) {
	var req AssignmentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	a, err := h.svc.Assign(c.Request.Context(), req.VehicleID, req.DriverID, start, req.Purpose)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, a)
}

// EndAssignment godoc
// @Summary      End an assignment
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Assignment ID"
// @Param        request body EndAssignmentRequest false "End date"
// @Success      200 {object} dto.Response{data=fleet.VehicleAssignment}
// @Router       /fleet/assignments/{id}/end [post]
func (h *FleetHandler) EndAssignment(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req EndAssignmentRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	a, err := h.svc.EndAssignment(c.Request.Context(), id, end)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, a)
}

// ListAssignments godoc
// @Summary      List assignments
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        vehicle_id query string false "Vehicle ID"
// @Param        driver_id query string false "Driver ID"
// @Param        open query bool false "Only running assignments"
// @Success      200 {object} dto.Response{data=[]fleet.VehicleAssignment}
// @Router       /fleet/assignments [get]
func (h *FleetHandler) ListAssignments(c *gin.Context) {
	vehicleID, ok := h.optionalUUIDQuery(c, "vehicle_id")
	if !ok {
		return
	}
	driverID, ok := h.optionalUUIDQuery(c, "driver_id")
	if !ok {
		return
	}
	items, err := h.svc.ListAssignments(c.Request.Context(), vehicleID, driverID, c.Query("open") == "true")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// CreateMaintenance godoc
// @Summary      Record maintenance
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body MaintenanceRequest true "Maintenance"
// @Success      201 {object} dto.Response{data=fleet.MaintenanceRecord}
// @Router       /fleet/maintenance [post]
func (h *FleetHandler) CreateMaintenance(c *gin.Context) {
	var req MaintenanceRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.VehicleID == uuid.Nil {
		h.BadRequest(c, "vehicle_id is required")
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	m, err := h.svc.AddMaintenance(c.Request.Context(), req.VehicleID, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, m)
}

// GetMaintenance godoc
// @Summary      Get maintenance record
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Maintenance ID"
// @Success      200 {object} dto.Response{data=fleet.MaintenanceRecord}
// @Router       /fleet/maintenance/{id} [get]
func (h *FleetHandler) GetMaintenance(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	m, err := h.svc.GetMaintenance(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, m)
}

// UpdateMaintenance godoc
// @Summary      Update maintenance record
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Maintenance ID"
// @Param        request body MaintenanceRequest true "Maintenance"
// @Success      200 {object} dto.Response{data=fleet.MaintenanceRecord}
// @Router       /fleet/maintenance/{id} [put]
func (h *FleetHandler) UpdateMaintenance(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req MaintenanceRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	m, err := h.svc.UpdateMaintenance(c.Request.Context(), id, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, m)
}

// DeleteMaintenance godoc
// @Summary      Delete maintenance record
// @Tags         fleet
// @Security     BearerAuth
// @Param        id path string true "Maintenance ID"
// @Success      204
// @Router       /fleet/maintenance/{id} [delete]
func (h *FleetHandler) DeleteMaintenance(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteMaintenance(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListMaintenance godoc
// @Summary      List maintenance records
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        vehicle_id query string false "Vehicle ID"
// @Success      200 {object} dto.Response{data=[]fleet.MaintenanceRecord}
// @Router       /fleet/maintenance [get]
func (h *FleetHandler) ListMaintenance(c *gin.Context) {
	vehicleID, ok := h.optionalUUIDQuery(c, "vehicle_id")
	if !ok {
		return
	}
	items, err := h.svc.ListMaintenance(c.Request.Context(), vehicleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// UpcomingMaintenance godoc
// @Summary      Maintenance due soon
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        days query int false "Window in days" default(30)
// @Success      200 {object} dto.Response{data=[]fleet.MaintenanceRecord}
// @Router       /fleet/maintenance/upcoming [get]
func (h *FleetHandler) UpcomingMaintenance(c *gin.Context) {
	items, err := h.svc.UpcomingMaintenance(c.Request.Context(), queryInt(c, "days", 30))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// CreateFuel godoc
// @Summary      Record fuel
// @Tags         fleet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body FuelRequest true "Fuel record"
// @Success      201 {object} dto.Response{data=fleet.FuelRecord}
// @Router       /fleet/fuel [post]
func (h *FleetHandler) CreateFuel(c *gin.Context) {
	var req FuelRequest
	if !h.bindJSON(c, &req) {
		return
	}
	date, err := parseDate(req.FuelDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	rec, err := h.svc.AddFuel(c.Request.Context(), req.VehicleID, fleet.FuelDetails{
		DriverID:      req.DriverID,
		FuelDate:      date,
		Liters:        req.Liters,
		PricePerLiter: req.PricePerLiter,
		KmAtFueling:   req.KmAtFueling,
		Station:       req.Station,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rec)
}

// ListFuel godoc
// @Summary      List fuel records
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        vehicle_id query string false "Vehicle ID"
// @Param        driver_id query string false "Driver ID"
// @Param        date_from query string false "From (YYYY-MM-DD)"
// @Param        date_to query string false "To (YYYY-MM-DD)"
// @Success      200 {object} dto.Response{data=[]fleet.FuelRecord}
// @Router       /fleet/fuel [get]
func (h *FleetHandler) ListFuel(c *gin.Context) {
	vehicleID, ok := h.optionalUUIDQuery(c, "vehicle_id")
	if !ok {
		return
	}
	driverID, ok := h.optionalUUIDQuery(c, "driver_id")
	if !ok {
		return
	}
	from, to, ok := h.dateRange(c)
	if !ok {
		return
	}
	items, err := h.svc.ListFuel(c.Request.Context(), fleet.FuelFilter{
		VehicleID: vehicleID, DriverID: driverID, DateFrom: from, DateTo: to,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// Dashboard godoc
// @Summary      Fleet dashboard
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=fleetapp.Dashboard}
// @Router       /fleet/reports/dashboard [get]
func (h *FleetHandler) Dashboard(c *gin.Context) {
	dash, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dash)
}

// Utilization godoc
// @Summary      Vehicle utilization
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        date_from query string false "From (YYYY-MM-DD)"
// @Param        date_to query string false "To (YYYY-MM-DD)"
// @Success      200 {object} dto.Response{data=[]fleetapp.VehicleUtilization}
// @Router       /fleet/reports/utilization [get]
func (h *FleetHandler) Utilization(c *gin.Context) {
	from, to, ok := h.dateRange(c)
	if !ok {
		return
	}
	rows, err := h.svc.Utilization(c.Request.Context(), from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// Costs godoc
// @Summary      Monthly fleet costs
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        year query int false "Year"
// @Success      200 {object} dto.Response{data=fleetapp.CostReport}
// @Router       /fleet/reports/costs [get]
func (h *FleetHandler) Costs(c *gin.Context) {
	report, err := h.svc.Costs(c.Request.Context(), queryInt(c, "year", 0))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// DriverReport godoc
// @Summary      Per driver fuel report
// @Tags         fleet
// @Security     BearerAuth
// @Produce      json
// @Param        date_from query string false "From (YYYY-MM-DD)"
// @Param        date_to query string false "To (YYYY-MM-DD)"
// @Success      200 {object} dto.Response{data=[]fleetapp.DriverReport}
// @Router       /fleet/reports/drivers [get]
func (h *FleetHandler) DriverReport(c *gin.Context) {
	from, to, ok := h.dateRange(c)
	if !ok {
		return
	}
	rows, err := h.svc.Drivers(c.Request.Context(), from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

func (h *FleetHandler) dateRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	var req DateRangeRequest
	if !h.bindQuery(c, &req) {
		return nil, nil, false
	}
	from, err := parseOptionalDate(req.DateFrom)
	if err != nil {
		h.HandleError(c, err)
		return nil, nil, false
	}
	to, err := parseOptionalDate(req.DateTo)
	if err != nil {
		h.HandleError(c, err)
		return nil, nil, false
	}
	return from, to, true
}
