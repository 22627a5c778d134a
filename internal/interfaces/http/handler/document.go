package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	documentapp "github.com/municipal/backoffice/internal/application/document"
	"github.com/municipal/backoffice/internal/domain/document"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
)

// DocumentHandler serves electronic document management
type DocumentHandler struct {
	BaseHandler
	svc *documentapp.Service
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(svc *documentapp.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Routes builds the /documents route group. Access is decided per document.
func (h *DocumentHandler) Routes(authn gin.HandlerFunc) *router.DomainGroup {
	g := router.NewDomainGroup("document", "/documents")
	g.Use(authn)

	g.POST("", h.Upload)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/archive", h.Archive)
	g.GET("/:id/download", h.Download)
	g.GET("/:id/preview", h.Preview)
	g.GET("/:id/versions", h.Versions)
	g.POST("/:id/versions", h.AddVersion)
	g.GET("/:id/access", h.ListAccess)
	g.POST("/:id/access", h.GrantAccess)
	g.DELETE("/:id/access/:access_id", h.RevokeAccess)
	g.GET("/:id/activity", h.Activity)

	return g
}

func (h *DocumentHandler) caller(c *gin.Context) (documentapp.Caller, bool) {
	caller, ok := h.BaseHandler.caller(c)
	if !ok {
		return documentapp.Caller{}, false
	}
	return documentapp.Caller{UserID: caller.UserID, Role: caller.Role, IP: c.ClientIP()}, true
}

// readUpload reads the "file" part of a multipart request
func (h *DocumentHandler) readUpload(c *gin.Context) (documentapp.Upload, bool) {
	header, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "request body exceeds maximum allowed size")
		return documentapp.Upload{}, false
	}
	if err != nil {
		h.BadRequest(c, "file is required")
		return documentapp.Upload{}, false
	}
	if header.Size > document.MaxFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation, "file exceeds maximum size of 50MB")
		return documentapp.Upload{}, false
	}
	file, err := header.Open()
	if err != nil {
		h.BadRequest(c, "file could not be read")
		return documentapp.Upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, document.MaxFileSize+1))
	if err != nil {
		h.BadRequest(c, "file could not be read")
		return documentapp.Upload{}, false
	}
	if int64(len(data)) > document.MaxFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation, "file exceeds maximum size of 50MB")
		return documentapp.Upload{}, false
	}
	return documentapp.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

// Upload godoc
// @Summary      Upload document
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "File"
// @Param        title formData string true "Title"
// @Param        description formData string false "Description"
// @Param        category formData string false "Category"
// @Param        tags formData string false "Comma separated tags"
// @Param        is_public formData bool false "Visible to every user"
// @Param        metadata formData string false "JSON object of strings"
// @Success      201 {object} dto.Response{data=document.Document}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      413 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var form DocumentForm
	if err := c.ShouldBind(&form); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	details, err := form.details()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	up, ok := h.readUpload(c)
	if !ok {
		return
	}
	doc, err := h.svc.Upload(c.Request.Context(), caller, details, up)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, doc)
}

// List godoc
// @Summary      List documents
// @Description  Non-admins see their own, public and shared documents
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        category query string false "Category"
// @Param        status query string false "Status"
// @Param        search query string false "Title, description or file name"
// @Success      200 {object} dto.Response{data=[]document.Document,meta=dto.Meta}
// @Router       /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req DocumentListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.svc.List(c.Request.Context(), caller, document.Filter{
		Filter: shared.Filter{
			Page: req.Page, PageSize: req.PageSize, Search: req.Search,
			OrderBy: req.OrderBy, OrderDir: req.OrderDir,
		},
		Category: req.Category,
		Status:   document.Status(req.Status),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// Get godoc
// @Summary      Get document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Document ID"
// @Success      200 {object} dto.Response{data=document.Document}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	doc, err := h.svc.Get(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// Update godoc
// @Summary      Update document metadata
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Document ID"
// @Param        request body DocumentUpdateRequest true "Metadata"
// @Success      200 {object} dto.Response{data=document.Document}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /documents/{id} [put]
func (h *DocumentHandler) Update(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req DocumentUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	doc, err := h.svc.Update(c.Request.Context(), caller, id, req.details())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// Archive godoc
// @Summary      Archive document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Document ID"
// @Success      200 {object} dto.Response{data=document.Document}
// @Router       /documents/{id}/archive [post]
func (h *DocumentHandler) Archive(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	doc, err := h.svc.Archive(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// Delete godoc
// @Summary      Delete document
// @Description  Marks the document deleted; the stored files are kept
// @Tags         documents
// @Security     BearerAuth
// @Param        id path string true "Document ID"
// @Success      204
// @Router       /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), caller, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Download godoc
// @Summary      Download document
// @Description  Returns a presigned URL, or the file itself when storage cannot presign
// @Tags         documents
// @Security     BearerAuth
// @Produce      json,octet-stream
// @Param        id path string true "Document ID"
// @Param        version query int false "Version number, current when omitted"
// @Success      200 {object} dto.Response{data=documentapp.Download}
// @Router       /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	dl, err := h.svc.Download(c.Request.Context(), caller, id, queryInt(c, "version", 0))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if dl.Body == nil {
		h.Success(c, dl)
		return
	}
	defer dl.Body.Close()
	c.DataFromReader(http.StatusOK, dl.Size, dl.MimeType, dl.Body, map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(dl.FileName),
	})
}

// Preview godoc
// @Summary      Render markdown preview
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Document ID"
// @Success      200 {object} dto.Response{data=PreviewResponse}
// @Router       /documents/{id}/preview [get]
func (h *DocumentHandler) Preview(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	html, err := h.svc.Preview(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, PreviewResponse{HTML: html})
}

// Versions godoc
// @Summary      List document versions
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Document ID"
// @Success      200 {object} dto.Response{data=[]document.Version}
// @Router       /documents/{id}/versions [get]
func (h *DocumentHandler) Versions(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	versions, err := h.svc.Versions(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, versions)
}

// AddVersion godoc
// @Summary      Upload a new version
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id path string true "Document ID"
// @Param        file formData file true "File"
// @Param        change_note formData string false "What changed"
// @Success      201 {object} dto.Response{data=document.Version}
// @Router       /documents/{id}/versions [post]
func (h *DocumentHandler) AddVersion(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	up, ok := h.readUpload(c)
	if !ok {
		return
	}
	v, err := h.svc.AddVersion(c.Request.Context(), caller, id, up, c.PostForm("change_note"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, v)
}

// ListAccess godoc
// @Summary      List access grants
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Document ID"
// @Success      200 {object} dto.Response{data=[]document.Access}
// @Router       /documents/{id}/access [get]
func (h *DocumentHandler) ListAccess(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	grants, err := h.svc.ListAccess(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, grants)
}

// GrantAccess godoc
// @Summary      Share document
// @Description  Only the owner or an admin can share
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Document ID"
// @Param        request body GrantRequest true "Grant"
// @Success      201 {object} dto.Response{data=document.Access}
// @Router       /documents/{id}/access [post]
func (h *DocumentHandler) GrantAccess(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req GrantRequest
	if !h.bindJSON(c, &req) {
		return
	}
	access, err := h.svc.GrantAccess(c.Request.Context(), caller, id, req.grant())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, access)
}

// RevokeAccess godoc
// @Summary      Revoke access grant
// @Tags         documents
// @Security     BearerAuth
// @Param        id path string true "Document ID"
// @Param        access_id path string true "Grant ID"
// @Success      204
// @Router       /documents/{id}/access/{access_id} [delete]
func (h *DocumentHandler) RevokeAccess(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	accessID, ok := h.parseUUIDParam(c, "access_id")
	if !ok {
		return
	}
	if err := h.svc.RevokeAccess(c.Request.Context(), caller, id, accessID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Activity godoc
// @Summary      Document activity log
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Document ID"
// @Success      200 {object} dto.Response{data=[]document.Log}
// @Router       /documents/{id}/activity [get]
func (h *DocumentHandler) Activity(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	logs, err := h.svc.Activity(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, logs)
}
