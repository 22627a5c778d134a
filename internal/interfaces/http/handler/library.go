package handler

import (
	"github.com/gin-gonic/gin"
	libraryapp "github.com/municipal/backoffice/internal/application/library"
	"github.com/municipal/backoffice/internal/domain/library"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
)

// LibraryHandler serves the public library API
type LibraryHandler struct {
	BaseHandler
	svc *libraryapp.Service
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(svc *libraryapp.Service) *LibraryHandler {
	return &LibraryHandler{svc: svc}
}

// Routes builds the /library route group. Any logged in user works the
// desk; deletions need the admin role.
func (h *LibraryHandler) Routes(authn gin.HandlerFunc) *router.DomainGroup {
	admin := middleware.RequireRole("admin")

	g := router.NewDomainGroup("library", "/library")
	g.Use(authn)

	g.GET("/books", h.ListBooks)
	g.POST("/books", h.CreateBook)
	g.GET("/books/:id", h.GetBook)
	g.PUT("/books/:id", h.UpdateBook)
	g.DELETE("/books/:id", admin, h.DeleteBook)
	g.GET("/books/:id/copies", h.ListCopies)
	g.POST("/books/:id/copies", h.AddCopy)
	g.PUT("/copies/:id/status", h.SetCopyStatus)

	g.GET("/members", h.ListMembers)
	g.POST("/members", h.CreateMember)
	g.GET("/members/:id", h.GetMember)
	g.PUT("/members/:id", h.UpdateMember)
	g.DELETE("/members/:id", admin, h.DeleteMember)
	g.GET("/members/:id/eligibility", h.Eligibility)

	g.GET("/loans", h.ListLoans)
	g.POST("/loans", h.Borrow)
	g.GET("/loans/overdue", h.Overdue)
	g.GET("/loans/:id", h.GetLoan)
	g.POST("/loans/:id/return", h.Return)
	g.POST("/loans/:id/renew", h.Renew)

	g.GET("/reservations", h.ListReservations)
	g.POST("/reservations", h.Reserve)
	g.POST("/reservations/:id/cancel", h.CancelReservation)
	g.POST("/reservations/:id/fulfill", h.FulfillReservation)

	g.GET("/fines", h.ListFines)
	g.POST("/fines", h.CreateFine)
	g.POST("/fines/:id/pay", h.PayFine)

	g.GET("/statistics", h.Statistics)

	return g
}

// CreateBook godoc
// @Summary      Add book
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body BookRequest true "Book"
// @Success      201 {object} dto.Response{data=library.Book}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/books [post]
func (h *LibraryHandler) CreateBook(c *gin.Context) {
	var req BookRequest
	if !h.bindJSON(c, &req) {
		return
	}
	b, err := h.svc.CreateBook(c.Request.Context(), req.details())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, b)
}

// ListBooks godoc
// @Summary      Search books
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        search query string false "Title, author or ISBN"
// @Param        category query string false "Category"
// @Success      200 {object} dto.Response{data=[]library.Book,meta=dto.Meta}
// @Router       /library/books [get]
func (h *LibraryHandler) ListBooks(c *gin.Context) {
	var req BookListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.svc.ListBooks(c.Request.Context(), library.BookFilter{
		Filter: shared.Filter{
			Page: req.Page, PageSize: req.PageSize, Search: req.Search,
			OrderBy: req.OrderBy, OrderDir: req.OrderDir,
		},
		Category: req.Category,
		Language: req.Language,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// GetBook godoc
// @Summary      Get book with copies
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Book ID"
// @Success      200 {object} dto.Response{data=libraryapp.BookView}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/books/{id} [get]
func (h *LibraryHandler) GetBook(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// UpdateBook godoc
// @Summary      Update book
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Book ID"
// @Param        request body BookRequest true "Book"
// @Success      200 {object} dto.Response{data=library.Book}
// @Router       /library/books/{id} [put]
func (h *LibraryHandler) UpdateBook(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req BookRequest
	if !h.bindJSON(c, &req) {
		return
	}
	b, err := h.svc.UpdateBook(c.Request.Context(), id, req.details())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, b)
}

// DeleteBook godoc
// @Summary      Delete book
// @Tags         library
// @Security     BearerAuth
// @Param        id path string true "Book ID"
// @Success      204
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/books/{id} [delete]
func (h *LibraryHandler) DeleteBook(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListCopies godoc
// @Summary      List copies of a book
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Book ID"
// @Success      200 {object} dto.Response{data=[]library.Copy}
// @Router       /library/books/{id}/copies [get]
func (h *LibraryHandler) ListCopies(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	copies, err := h.svc.ListCopies(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, copies)
}

// AddCopy godoc
// @Summary      Add copy
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Book ID"
// @Param        request body CopyRequest false "Copy"
// @Success      201 {object} dto.Response{data=library.Copy}
// @Router       /library/books/{id}/copies [post]
func (h *LibraryHandler) AddCopy(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req CopyRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	acquired, err := parseOptionalDate(req.AcquiredDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	item, err := h.svc.AddCopy(c.Request.Context(), id, req.Condition, acquired)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, item)
}

// SetCopyStatus godoc
// @Summary      Change copy status
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Copy ID"
// @Param        request body CopyStatusRequest true "Status"
// @Success      200 {object} dto.Response{data=library.Copy}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/copies/{id}/status [put]
func (h *LibraryHandler) SetCopyStatus(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req CopyStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	item, err := h.svc.SetCopyStatus(c.Request.Context(), id, library.CopyStatus(req.Status), req.Condition)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// CreateMember godoc
// @Summary      Register member
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body MemberRequest true "Member"
// @Success      201 {object} dto.Response{data=library.Member}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/members [post]
func (h *LibraryHandler) CreateMember(c *gin.Context) {
	var req MemberRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.MemberType == "" {
		h.BadRequest(c, "member_type is required")
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	m, err := h.svc.RegisterMember(c.Request.Context(), details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, m)
}

// ListMembers godoc
// @Summary      List members
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        search query string false "Name, number, email or TC number"
// @Param        member_type query string false "Member type"
// @Param        status query string false "Status"
// @Success      200 {object} dto.Response{data=[]library.Member,meta=dto.Meta}
// @Router       /library/members [get]
func (h *LibraryHandler) ListMembers(c *gin.Context) {
	var req MemberListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.svc.ListMembers(c.Request.Context(), library.MemberFilter{
		Filter: shared.Filter{
			Page: req.Page, PageSize: req.PageSize, Search: req.Search,
			OrderBy: req.OrderBy, OrderDir: req.OrderDir,
		},
		MemberType: library.MemberType(req.MemberType),
		Status:     library.MemberStatus(req.Status),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// GetMember godoc
// @Summary      Get member
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Member ID"
// @Success      200 {object} dto.Response{data=library.Member}
// @Router       /library/members/{id} [get]
func (h *LibraryHandler) GetMember(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	m, err := h.svc.GetMember(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, m)
}

// UpdateMember godoc
// @Summary      Update member
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Member ID"
// @Param        request body MemberRequest true "Member"
// @Success      200 {object} dto.Response{data=library.Member}
// @Router       /library/members/{id} [put]
func (h *LibraryHandler) UpdateMember(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req MemberRequest
	if !h.bindJSON(c, &req) {
		return
	}
	details, err := req.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	m, err := h.svc.UpdateMember(c.Request.Context(), id, details)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, m)
}

// DeleteMember godoc
// @Summary      Delete member
// @Tags         library
// @Security     BearerAuth
// @Param        id path string true "Member ID"
// @Success      204
// @Router       /library/members/{id} [delete]
func (h *LibraryHandler) DeleteMember(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteMember(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Eligibility godoc
// @Summary      Check whether a member may borrow
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Member ID"
// @Success      200 {object} dto.Response{data=library.Eligibility}
// @Router       /library/members/{id}/eligibility [get]
func (h *LibraryHandler) Eligibility(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.Eligibility(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, e)
}

// Borrow godoc
// @Summary      Lend a copy
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body BorrowRequest true "Loan"
// @Success      201 {object} dto.Response{data=library.Loan}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/loans [post]
func (h *LibraryHandler) Borrow(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req BorrowRequest
	if !h.bindJSON(c, &req) {
		return
	}
	loan, err := h.svc.Borrow(c.Request.Context(), caller.UserID, req.MemberID, req.CopyID, req.Notes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, loan)
}

// ListLoans godoc
// @Summary      List loans
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        member_id query string false "Member ID"
// @Param        copy_id query string false "Copy ID"
// @Param        status query string false "Status"
// @Success      200 {object} dto.Response{data=[]library.Loan,meta=dto.Meta}
// @Router       /library/loans [get]
func (h *LibraryHandler) ListLoans(c *gin.Context) {
	var req LoanListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	memberID, ok := h.optionalUUIDQuery(c, "member_id")
	if !ok {
		return
	}
	copyID, ok := h.optionalUUIDQuery(c, "copy_id")
	if !ok {
		return
	}
	page, err := h.svc.ListLoans(c.Request.Context(), library.LoanFilter{
		Filter: shared.Filter{
			Page: req.Page, PageSize: req.PageSize,
			OrderBy: req.OrderBy, OrderDir: req.OrderDir,
		},
		MemberID: memberID,
		CopyID:   copyID,
		Status:   library.LoanStatus(req.Status),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// Overdue godoc
// @Summary      Refresh and list overdue loans
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=[]library.Loan,meta=dto.Meta}
// @Router       /library/loans/overdue [get]
func (h *LibraryHandler) Overdue(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	page, err := h.svc.Overdue(c.Request.Context(), caller.UserID, shared.Filter{
		Page: queryInt(c, "page", 1), PageSize: queryInt(c, "page_size", 20),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// GetLoan godoc
// @Summary      Get loan with history
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Loan ID"
// @Success      200 {object} dto.Response{data=libraryapp.LoanView}
// @Router       /library/loans/{id} [get]
func (h *LibraryHandler) GetLoan(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.GetLoan(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Return godoc
// @Summary      Return a loan
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Loan ID"
// @Param        request body ReturnRequest false "Notes"
// @Success      200 {object} dto.Response{data=libraryapp.LoanView}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/loans/{id}/return [post]
func (h *LibraryHandler) Return(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req ReturnRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	view, err := h.svc.Return(c.Request.Context(), caller.UserID, id, req.Notes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Renew godoc
// @Summary      Renew a loan
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Loan ID"
// @Success      200 {object} dto.Response{data=libraryapp.LoanView}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/loans/{id}/renew [post]
func (h *LibraryHandler) Renew(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.Renew(c.Request.Context(), caller.UserID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Reserve godoc
// @Summary      Reserve a book
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body ReservationRequest true "Reservation"
// @Success      201 {object} dto.Response{data=library.Reservation}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/reservations [post]
func (h *LibraryHandler) Reserve(c *gin.Context) {
	var req ReservationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	r, err := h.svc.Reserve(c.Request.Context(), req.MemberID, req.BookID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, r)
}

// ListReservations godoc
// @Summary      List reservations with queue positions
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        member_id query string false "Member ID"
// @Param        book_id query string false "Book ID"
// @Param        status query string false "Status"
// @Success      200 {object} dto.Response{data=[]library.Reservation}
// @Router       /library/reservations [get]
func (h *LibraryHandler) ListReservations(c *gin.Context) {
	var req ReservationListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	memberID, ok := h.optionalUUIDQuery(c, "member_id")
	if !ok {
		return
	}
	bookID, ok := h.optionalUUIDQuery(c, "book_id")
	if !ok {
		return
	}
	items, err := h.svc.ListReservations(c.Request.Context(), library.ReservationFilter{
		MemberID: memberID,
		BookID:   bookID,
		Status:   library.ReservationStatus(req.Status),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// CancelReservation godoc
// @Summary      Cancel reservation
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Reservation ID"
// @Success      200 {object} dto.Response{data=library.Reservation}
// @Router       /library/reservations/{id}/cancel [post]
func (h *LibraryHandler) CancelReservation(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	r, err := h.svc.CancelReservation(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, r)
}

// FulfillReservation godoc
// @Summary      Fulfill reservation with an available copy
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Reservation ID"
// @Success      201 {object} dto.Response{data=library.Loan}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/reservations/{id}/fulfill [post]
func (h *LibraryHandler) FulfillReservation(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	loan, err := h.svc.FulfillReservation(c.Request.Context(), caller.UserID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, loan)
}

// ListFines godoc
// @Summary      List fines
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        member_id query string false "Member ID"
// @Param        fine_type query string false "Fine type"
// @Param        is_paid query bool false "Paid"
// @Success      200 {object} dto.Response{data=[]library.Fine}
// @Router       /library/fines [get]
func (h *LibraryHandler) ListFines(c *gin.Context) {
	var req FineListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	memberID, ok := h.optionalUUIDQuery(c, "member_id")
	if !ok {
		return
	}
	fines, err := h.svc.ListFines(c.Request.Context(), library.FineFilter{
		MemberID: memberID,
		Type:     library.FineType(req.Type),
		IsPaid:   req.IsPaid,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, fines)
}

// CreateFine godoc
// @Summary      Charge a fine
// @Tags         library
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body FineRequest true "Fine"
// @Success      201 {object} dto.Response{data=library.Fine}
// @Router       /library/fines [post]
func (h *LibraryHandler) CreateFine(c *gin.Context) {
	var req FineRequest
	if !h.bindJSON(c, &req) {
		return
	}
	f, err := h.svc.CreateFine(c.Request.Context(), req.input())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, f)
}

// PayFine godoc
// @Summary      Pay a fine
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Fine ID"
// @Success      200 {object} dto.Response{data=library.Fine}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /library/fines/{id}/pay [post]
func (h *LibraryHandler) PayFine(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	f, err := h.svc.PayFine(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, f)
}

// Statistics godoc
// @Summary      Library statistics
// @Tags         library
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=library.Statistics}
// @Router       /library/statistics [get]
func (h *LibraryHandler) Statistics(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
