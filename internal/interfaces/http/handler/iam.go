package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/municipal/backoffice/internal/application/identity"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
)

// IAMHandler serves the IAM service API
type IAMHandler struct {
	BaseHandler
	users         *identity.UserService
	registrations *identity.RegistrationService
}

// NewIAMHandler creates a new IAM handler
func NewIAMHandler(users *identity.UserService, registrations *identity.RegistrationService) *IAMHandler {
	return &IAMHandler{users: users, registrations: registrations}
}

// Routes builds the IAM route groups. They are mounted without a version
// prefix; authn is the JWT middleware.
func (h *IAMHandler) Routes(authn gin.HandlerFunc, internalKey string) []*router.DomainGroup {
	admin := middleware.RequireRole("admin")

	public := router.NewDomainGroup("iam-public", "")
	public.GET("/", h.Health)
	public.POST("/users", h.CreateUser)
	public.POST("/token", h.Login)
	public.POST("/register", h.Register)

	internal := router.NewDomainGroup("iam-internal", "/internal")
	internal.Use(middleware.RequireInternalKey(internalKey))
	internal.POST("/users", h.CreateInternalUser)

	account := router.NewDomainGroup("iam-account", "")
	account.Use(authn, h.activeAccount)
	account.POST("/logout", h.Logout)
	account.GET("/users/me", h.Me)
	account.GET("/users", admin, h.ListUsers)
	account.PUT("/users/:id/role", admin, h.UpdateRole)

	adminGroup := router.NewDomainGroup("iam-admin", "/admin")
	adminGroup.Use(authn, h.activeAccount, admin)
	adminGroup.GET("/registrations", h.ListRegistrations)
	adminGroup.POST("/registrations/approve/:id", h.ApproveRegistration)
	adminGroup.POST("/registrations/reject/:id", h.RejectRegistration)
	adminGroup.POST("/users/:id/deactivate", h.DeactivateUser)

	return []*router.DomainGroup{public, internal, account, adminGroup}
}

// activeAccount rejects tokens whose user was deactivated or removed
func (h *IAMHandler) activeAccount(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		c.Abort()
		return
	}
	if err := h.users.RequireActive(c.Request.Context(), caller.UserID); err != nil {
		h.HandleError(c, err)
		c.Abort()
		return
	}
	c.Next()
}

// HealthResponse is the IAM liveness answer
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Service string `json:"service" example:"iam"`
}

// Health godoc
// @Summary      IAM health check
// @Tags         iam
// @Produce      json
// @Success      200 {object} HealthResponse
// @Router       / [get]
func (h *IAMHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "iam"})
}

// CreateUser godoc
// @Summary      Create user
// @Tags         iam
// @Accept       json
// @Produce      json
// @Param        request body CreateUserRequest true "User"
// @Success      201 {object} dto.Response{data=identity.UserResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /users [post]
func (h *IAMHandler) CreateUser(c *gin.Context) {
	h.createUser(c)
}

// CreateInternalUser godoc
// @Summary      Create user (service to service)
// @Description  Requires the X-Internal-Key header; the role defaults to employee
// @Tags         iam
// @Accept       json
// @Produce      json
// @Param        X-Internal-Key header string true "Internal key"
// @Param        request body CreateUserRequest true "User"
// @Success      201 {object} dto.Response{data=identity.UserResponse}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /internal/users [post]
func (h *IAMHandler) CreateInternalUser(c *gin.Context) {
	h.createUser(c)
}

func (h *IAMHandler) createUser(c *gin.Context) {
	var req CreateUserRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = "employee"
	}

	user, err := h.users.Create(c.Request.Context(), identity.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, user)
}

// Login godoc
// @Summary      Issue an access token
// @Description  Accepts JSON {email, password} or an OAuth2 password form (username, password)
// @Tags         iam
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Credentials"
// @Success      200 {object} dto.Response{data=auth.IssuedToken}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /token [post]
func (h *IAMHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	token, err := h.users.Login(c.Request.Context(), identity.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, token)
}

// Logout godoc
// @Summary      Revoke the presented token
// @Tags         iam
// @Security     BearerAuth
// @Success      204
// @Router       /logout [post]
func (h *IAMHandler) Logout(c *gin.Context) {
	if err := h.users.Logout(c.Request.Context(), middleware.GetJWTClaims(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Me godoc
// @Summary      Current user
// @Tags         iam
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=identity.UserResponse}
// @Router       /users/me [get]
func (h *IAMHandler) Me(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	user, err := h.users.Me(c.Request.Context(), caller.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, user)
}

// ListUsers godoc
// @Summary      List users
// @Tags         iam
// @Security     BearerAuth
// @Produce      json
// @Param        skip  query int false "Offset"
// @Param        limit query int false "Page size" default(100)
// @Success      200 {object} dto.Response{data=identity.UserListResponse}
// @Router       /users [get]
func (h *IAMHandler) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context(), queryInt(c, "skip", 0), queryInt(c, "limit", identity.DefaultUserListLimit))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// UpdateRole godoc
// @Summary      Change a user's role
// @Tags         iam
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id      path string            true "User ID"
// @Param        request body UpdateRoleRequest true "Role"
// @Success      200 {object} dto.Response{data=identity.UserResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /users/{id}/role [put]
func (h *IAMHandler) UpdateRole(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	user, err := h.users.UpdateRole(c.Request.Context(), id, req.Role)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, user)
}

// DeactivateUser godoc
// @Summary      Deactivate a user and revoke their tokens
// @Tags         iam
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} dto.Response{data=identity.UserResponse}
// @Router       /admin/users/{id}/deactivate [post]
func (h *IAMHandler) DeactivateUser(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	user, err := h.users.Deactivate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, user)
}

// Register godoc
// @Summary      Request an account
// @Tags         iam
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration"
// @Success      201 {object} dto.Response{data=identity.RegistrationResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /register [post]
func (h *IAMHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = "employee"
	}
	resp, err := h.registrations.Register(c.Request.Context(), identity.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListRegistrations godoc
// @Summary      Pending registration requests
// @Tags         iam
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} dto.Response{data=[]identity.RegistrationResponse}
// @Router       /admin/registrations [get]
func (h *IAMHandler) ListRegistrations(c *gin.Context) {
	list, err := h.registrations.ListPending(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// ApproveRegistration godoc
// @Summary      Approve a registration request
// @Tags         iam
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Request ID"
// @Success      200 {object} dto.Response{data=identity.UserResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /admin/registrations/approve/{id} [post]
func (h *IAMHandler) ApproveRegistration(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	user, err := h.registrations.Approve(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, user)
}

// RejectRegistration godoc
// @Summary      Reject a registration request
// @Tags         iam
// @Security     BearerAuth
// @Param        id path string true "Request ID"
// @Success      204
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /admin/registrations/reject/{id} [post]
func (h *IAMHandler) RejectRegistration(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.registrations.Reject(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
