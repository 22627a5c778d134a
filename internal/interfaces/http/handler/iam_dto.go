package handler

// CreateUserRequest is the body of POST /users and POST /internal/users
type CreateUserRequest struct {
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Role      string `json:"role" binding:"omitempty"`
}

// LoginRequest holds login credentials. Form posts use the OAuth2
// password-grant field name "username" for the email.
type LoginRequest struct {
	Email    string `json:"email" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Role      string `json:"role" binding:"omitempty"`
}

// UpdateRoleRequest is the body of PUT /users/{id}/role
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}
