package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	cemeteryapp "github.com/municipal/backoffice/internal/application/cemetery"
	"github.com/municipal/backoffice/internal/domain/cemetery"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
)

// CemeteryHandler serves the cemetery registry API
type CemeteryHandler struct {
	BaseHandler
	svc *cemeteryapp.Service
}

// NewCemeteryHandler creates a new cemetery handler
func NewCemeteryHandler(svc *cemeteryapp.Service) *CemeteryHandler {
	return &CemeteryHandler{svc: svc}
}

// Routes builds the /cemetery route group. Clerks record burials, grave
// reservations and visits; the layout of cemeteries, blocks and graves is
// kept by admins.
func (h *CemeteryHandler) Routes(authn gin.HandlerFunc) *router.DomainGroup {
	admin := middleware.RequireRole("admin")

	g := router.NewDomainGroup("cemetery", "/cemetery")
	g.Use(authn)

	g.GET("/cemeteries", h.ListCemeteries)
	g.POST("/cemeteries", admin, h.CreateCemetery)
	g.GET("/cemeteries/:id", h.GetCemetery)
	g.PUT("/cemeteries/:id", admin, h.UpdateCemetery)
	g.DELETE("/cemeteries/:id", admin, h.DeleteCemetery)
	g.GET("/cemeteries/:id/blocks", h.ListBlocks)
	g.POST("/cemeteries/:id/blocks", admin, h.CreateBlock)
	g.GET("/cemeteries/:id/graves", h.ListCemeteryGraves)

	g.GET("/blocks/:id/graves", h.ListBlockGraves)
	g.POST("/graves", admin, h.CreateGrave)
	g.GET("/graves/:id", h.GetGrave)
	g.POST("/graves/:id/reserve", h.ReserveGrave)
	g.POST("/graves/:id/release", h.ReleaseGrave)

	g.GET("/burials", h.ListBurials)
	g.GET("/burials/search", h.SearchBurials)
	g.POST("/burials", h.RecordBurial)
	g.GET("/burials/:id", h.GetBurial)
	g.PUT("/burials/:id", h.UpdateBurial)

	g.GET("/visitors", h.ListVisits)
	g.POST("/visitors", h.LogVisit)

	g.GET("/reports/status", h.StatusReport)
	g.GET("/reports/burials", h.BurialReport)
	g.GET("/reports/occupancy/:cemetery_id", h.OccupancyReport)

	return g
}

// CreateCemetery godoc
// @Summary      Register cemetery
// @Tags         cemetery
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CemeteryRequest true "Cemetery"
// @Success      201 {object} dto.Response{data=cemetery.Cemetery}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/cemeteries [post]
func (h *CemeteryHandler) CreateCemetery(c *gin.Context) {
	var req CemeteryRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cem, err := h.svc.CreateCemetery(c.Request.Context(), req.details())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, cem)
}

// ListCemeteries godoc
// @Summary      List cemeteries
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        search query string false "Name"
// @Param        province query string false "Province"
// @Param        district query string false "District"
// @Param        include_inactive query bool false "Include deactivated cemeteries"
// @Success      200 {object} dto.Response{data=[]cemetery.Cemetery,meta=dto.Meta}
// @Router       /cemetery/cemeteries [get]
func (h *CemeteryHandler) ListCemeteries(c *gin.Context) {
	var req CemeteryListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.svc.ListCemeteries(c.Request.Context(), cemetery.CemeteryFilter{
		Filter: shared.Filter{
			Page: req.Page, PageSize: req.PageSize, Search: req.Search,
			OrderBy: req.OrderBy, OrderDir: req.OrderDir,
		},
		Province:        req.Province,
		District:        req.District,
		IncludeInactive: req.IncludeInactive,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// GetCemetery godoc
// @Summary      Get cemetery
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Cemetery ID"
// @Success      200 {object} dto.Response{data=cemetery.Cemetery}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/cemeteries/{id} [get]
func (h *CemeteryHandler) GetCemetery(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	cem, err := h.svc.GetCemetery(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cem)
}

// UpdateCemetery godoc
// @Summary      Update cemetery
// @Tags         cemetery
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Cemetery ID"
// @Param        request body CemeteryRequest true "Cemetery"
// @Success      200 {object} dto.Response{data=cemetery.Cemetery}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/cemeteries/{id} [put]
func (h *CemeteryHandler) UpdateCemetery(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req CemeteryRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cem, err := h.svc.UpdateCemetery(c.Request.Context(), id, req.details())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cem)
}

// DeleteCemetery godoc
// @Summary      Deactivate cemetery
// @Tags         cemetery
// @Security     BearerAuth
// @Param        id path string true "Cemetery ID"
// @Success      204
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/cemeteries/{id} [delete]
func (h *CemeteryHandler) DeleteCemetery(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteCemetery(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// CreateBlock godoc
// @Summary      Add block
// @Tags         cemetery
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Cemetery ID"
// @Param        request body BlockRequest true "Block"
// @Success      201 {object} dto.Response{data=cemetery.Block}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/cemeteries/{id}/blocks [post]
func (h *CemeteryHandler) CreateBlock(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req BlockRequest
	if !h.bindJSON(c, &req) {
		return
	}
	block, err := h.svc.CreateBlock(c.Request.Context(), id, req.BlockNumber, req.Capacity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, block)
}

// ListBlocks godoc
// @Summary      List blocks of a cemetery
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Cemetery ID"
// @Success      200 {object} dto.Response{data=[]cemetery.Block}
// @Router       /cemetery/cemeteries/{id}/blocks [get]
func (h *CemeteryHandler) ListBlocks(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	blocks, err := h.svc.ListBlocks(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, blocks)
}

// ListCemeteryGraves godoc
// @Summary      List graves of a cemetery
// @Description  With status=empty this is the list of free graves.
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Cemetery ID"
// @Param        status query string false "empty, occupied or reserved"
// @Success      200 {object} dto.Response{data=[]cemetery.Grave,meta=dto.Meta}
// @Router       /cemetery/cemeteries/{id}/graves [get]
func (h *CemeteryHandler) ListCemeteryGraves(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.svc.GetCemetery(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.listGraves(c, cemetery.GraveFilter{CemeteryID: &id})
}

// ListBlockGraves godoc
// @Summary      List graves of a block
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Block ID"
// @Param        status query string false "empty, occupied or reserved"
// @Success      200 {object} dto.Response{data=[]cemetery.Grave,meta=dto.Meta}
// @Router       /cemetery/blocks/{id}/graves [get]
func (h *CemeteryHandler) ListBlockGraves(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	h.listGraves(c, cemetery.GraveFilter{BlockID: &id})
}

func (h *CemeteryHandler) listGraves(c *gin.Context, filter cemetery.GraveFilter) {
	var req GraveListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	filter.Filter = shared.Filter{Page: req.Page, PageSize: req.PageSize, OrderBy: req.OrderBy, OrderDir: req.OrderDir}
	filter.Status = cemetery.GraveStatus(req.Status)
	page, err := h.svc.ListGraves(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// CreateGrave godoc
// @Summary      Lay out grave
// @Tags         cemetery
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body GraveRequest true "Grave"
// @Success      201 {object} dto.Response{data=cemetery.Grave}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/graves [post]
func (h *CemeteryHandler) CreateGrave(c *gin.Context) {
	var req GraveRequest
	if !h.bindJSON(c, &req) {
		return
	}
	grave, err := h.svc.CreateGrave(c.Request.Context(), req.input())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, grave)
}

// GetGrave godoc
// @Summary      Get grave
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Grave ID"
// @Success      200 {object} dto.Response{data=cemetery.Grave}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/graves/{id} [get]
func (h *CemeteryHandler) GetGrave(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	grave, err := h.svc.GetGrave(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, grave)
}

// ReserveGrave godoc
// @Summary      Reserve grave
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Grave ID"
// @Success      200 {object} dto.Response{data=cemetery.Grave}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/graves/{id}/reserve [post]
func (h *CemeteryHandler) ReserveGrave(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	grave, err := h.svc.ReserveGrave(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, grave)
}

// ReleaseGrave godoc
// @Summary      Release grave reservation
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Grave ID"
// @Success      200 {object} dto.Response{data=cemetery.Grave}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/graves/{id}/release [post]
func (h *CemeteryHandler) ReleaseGrave(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	grave, err := h.svc.ReleaseGrave(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, grave)
}

// RecordBurial godoc
// @Summary      Record burial
// @Tags         cemetery
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body BurialRequest true "Burial"
// @Success      201 {object} dto.Response{data=cemetery.Burial}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/burials [post]
func (h *CemeteryHandler) RecordBurial(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req BurialRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.GraveID == uuid.Nil {
		h.BadRequest(c, "grave_id is required")
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	burial, err := h.svc.RecordBurial(c.Request.Context(), caller.UserID, req.GraveID, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, burial)
}

// UpdateBurial godoc
// @Summary      Correct burial record
// @Tags         cemetery
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Burial ID"
// @Param        request body BurialRequest true "Burial"
// @Success      200 {object} dto.Response{data=cemetery.Burial}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/burials/{id} [put]
func (h *CemeteryHandler) UpdateBurial(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req BurialRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	burial, err := h.svc.UpdateBurial(c.Request.Context(), id, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, burial)
}

// GetBurial godoc
// @Summary      Get burial record
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Burial ID"
// @Success      200 {object} dto.Response{data=cemetery.Burial}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/burials/{id} [get]
func (h *CemeteryHandler) GetBurial(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	burial, err := h.svc.GetBurial(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, burial)
}

// ListBurials godoc
// @Summary      List burial records
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        cemetery_id query string false "Cemetery ID"
// @Param        grave_id query string false "Grave ID"
// @Param        q query string false "Name or national ID"
// @Param        father_name query string false "Father's name"
// @Param        mother_name query string false "Mother's name"
// @Param        date_from query string false "Burial date from (YYYY-MM-DD)"
// @Param        date_to query string false "Burial date to (YYYY-MM-DD)"
// @Success      200 {object} dto.Response{data=[]cemetery.Burial,meta=dto.Meta}
// @Router       /cemetery/burials [get]
func (h *CemeteryHandler) ListBurials(c *gin.Context) {
	filter, ok := h.burialFilter(c)
	if !ok {
		return
	}
	page, err := h.svc.ListBurials(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// SearchBurials godoc
// @Summary      Search burial records
// @Description  Matches the name of the deceased or the exact national ID.
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        q query string true "Name or national ID"
// @Param        father_name query string false "Father's name"
// @Param        mother_name query string false "Mother's name"
// @Success      200 {object} dto.Response{data=[]cemetery.Burial,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/burials/search [get]
func (h *CemeteryHandler) SearchBurials(c *gin.Context) {
	filter, ok := h.burialFilter(c)
	if !ok {
		return
	}
	page, err := h.svc.SearchBurials(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

func (h *CemeteryHandler) burialFilter(c *gin.Context) (cemetery.BurialFilter, bool) {
	var req BurialListRequest
	if !h.bindQuery(c, &req) {
		return cemetery.BurialFilter{}, false
	}
	cemeteryID, ok := h.optionalUUIDQuery(c, "cemetery_id")
	if !ok {
		return cemetery.BurialFilter{}, false
	}
	graveID, ok := h.optionalUUIDQuery(c, "grave_id")
	if !ok {
		return cemetery.BurialFilter{}, false
	}
	from, err := parseOptionalDate(req.DateFrom)
	if err != nil {
		h.HandleError(c, err)
		return cemetery.BurialFilter{}, false
	}
	to, err := parseOptionalDate(req.DateTo)
	if err != nil {
		h.HandleError(c, err)
		return cemetery.BurialFilter{}, false
	}
	return cemetery.BurialFilter{
		Filter: shared.Filter{
			Page: req.Page, PageSize: req.PageSize, Search: req.Query,
			OrderBy: req.OrderBy, OrderDir: req.OrderDir,
		},
		CemeteryID: cemeteryID,
		GraveID:    graveID,
		FatherName: req.FatherName,
		MotherName: req.MotherName,
		DateFrom:   from,
		DateTo:     to,
	}, true
}

// LogVisit godoc
// @Summary      Log visitor
// @Tags         cemetery
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body VisitRequest true "Visit"
// @Success      201 {object} dto.Response{data=cemetery.VisitorLog}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/visitors [post]
func (h *CemeteryHandler) LogVisit(c *gin.Context) {
	var req VisitRequest
	if !h.bindJSON(c, &req) {
		return
	}
	entry, err := h.svc.LogVisit(c.Request.Context(), req.input())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, entry)
}

// ListVisits godoc
// @Summary      List visitor log
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        cemetery_id query string false "Cemetery ID"
// @Param        search query string false "Visitor or sought name"
// @Param        date_from query string false "From (YYYY-MM-DD)"
// @Param        date_to query string false "To, inclusive (YYYY-MM-DD)"
// @Success      200 {object} dto.Response{data=[]cemetery.VisitorLog,meta=dto.Meta}
// @Router       /cemetery/visitors [get]
func (h *CemeteryHandler) ListVisits(c *gin.Context) {
	var req VisitListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	cemeteryID, ok := h.optionalUUIDQuery(c, "cemetery_id")
	if !ok {
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
	if to != nil {
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	page, err := h.svc.ListVisits(c.Request.Context(), cemetery.VisitorFilter{
		Filter:     shared.Filter{Page: req.Page, PageSize: req.PageSize, Search: req.Search},
		CemeteryID: cemeteryID,
		DateFrom:   from,
		DateTo:     to,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// StatusReport godoc
// @Summary      Capacity and occupancy of all cemeteries
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=cemeteryapp.StatusReport}
// @Router       /cemetery/reports/status [get]
func (h *CemeteryHandler) StatusReport(c *gin.Context) {
	report, err := h.svc.StatusReport(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// BurialReport godoc
// @Summary      Burials per month
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        year query int false "Year, default current"
// @Success      200 {object} dto.Response{data=cemeteryapp.BurialReport}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/reports/burials [get]
func (h *CemeteryHandler) BurialReport(c *gin.Context) {
	report, err := h.svc.BurialReport(c.Request.Context(), queryInt(c, "year", 0))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// OccupancyReport godoc
// @Summary      Occupancy of a cemetery by block
// @Tags         cemetery
// @Security     BearerAuth
// @Produce      json
// @Param        cemetery_id path string true "Cemetery ID"
// @Success      200 {object} dto.Response{data=cemeteryapp.OccupancyReport}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cemetery/reports/occupancy/{cemetery_id} [get]
func (h *CemeteryHandler) OccupancyReport(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "cemetery_id")
	if !ok {
		return
	}
	report, err := h.svc.OccupancyReport(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
