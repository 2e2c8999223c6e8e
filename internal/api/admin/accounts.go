// accounts.go implements HTTP handlers for account registration, login, and profile management.
package admin

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/secretdrop/secretdrop/internal/auth"
	"github.com/secretdrop/secretdrop/internal/config"
	"github.com/secretdrop/secretdrop/internal/db/models"
	"github.com/secretdrop/secretdrop/internal/db/repositories"
)

// AccountHandlers handles account-related endpoints
type AccountHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
}

// NewAccountHandlers creates a new AccountHandlers instance
func NewAccountHandlers(cfg *config.Config, db *sql.DB) *AccountHandlers {
	return &AccountHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(db),
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// userResponse is the public shape of a user record; password hashes never leave the API
func userResponse(id, email, name string) gin.H {
	return gin.H{
		"id":    id,
		"email": email,
		"name":  name,
	}
}

// @Summary      Register a new account
// @Description  Create an account with email, name, and password, and return a JWT for the new user
// @Tags         Accounts
// @Accept       json
// @Produce      json
// @Param        body  body  registerRequest  true  "Registration details"
// @Success      201  {object}  map[string]interface{}  "Created user and JWT token"
// @Failure      400  {object}  map[string]interface{}  "Missing or invalid fields"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/auth/register [post]
// RegisterHandler creates a new account
// POST /api/v1/auth/register
func (h *AccountHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "email, name, and password are required",
			})
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if !strings.Contains(req.Email, "@") {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid email address",
			})
			return
		}

		if len(req.Password) < h.cfg.Auth.MinPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Password too short",
			})
			return
		}

		existing, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing accounts",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Email already registered",
			})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to hash password",
			})
			return
		}

		user := &models.User{
			Email:        req.Email,
			Name:         strings.TrimSpace(req.Name),
			PasswordHash: hash,
		}
		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create account",
			})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Email, h.cfg.Auth.SessionTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user":       userResponse(user.ID, user.Email, user.Name),
			"token":      token,
			"expires_in": int(h.cfg.Auth.SessionTTL.Seconds()),
		})
	}
}

// @Summary      Log in
// @Description  Exchange email and password for a JWT token
// @Tags         Accounts
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Login credentials"
// @Success      200  {object}  map[string]interface{}  "User and JWT token"
// @Failure      400  {object}  map[string]interface{}  "Missing fields"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates an existing account
// POST /api/v1/auth/login
func (h *AccountHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "email and password are required",
			})
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up account",
			})
			return
		}

		// A missing account and a wrong password return the same error so the
		// login endpoint cannot be used to enumerate registered emails.
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid email or password",
			})
			return
		}

		ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to verify password",
			})
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid email or password",
			})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Email, h.cfg.Auth.SessionTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":       userResponse(user.ID, user.Email, user.Name),
			"token":      token,
			"expires_in": int(h.cfg.Auth.SessionTTL.Seconds()),
		})
	}
}

// @Summary      Get current user
// @Description  Retrieve information about the currently authenticated user
// @Tags         Accounts
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "Current user information"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the current authenticated user's information
// GET /api/v1/auth/me
func (h *AccountHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get user information",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": gin.H{
				"id":         user.ID,
				"email":      user.Email,
				"name":       user.Name,
				"created_at": user.CreatedAt,
				"updated_at": user.UpdatedAt,
			},
		})
	}
}

type updateProfileRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

// @Summary      Update profile
// @Description  Update the current user's email and display name
// @Tags         Accounts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  updateProfileRequest  true  "New profile details"
// @Success      200  {object}  map[string]interface{}  "Updated user"
// @Failure      400  {object}  map[string]interface{}  "Missing or invalid fields"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Email already registered to another account"
// @Router       /api/v1/auth/profile [put]
// UpdateProfileHandler updates the current user's profile
// PUT /api/v1/auth/profile
func (h *AccountHandlers) UpdateProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "email and name are required",
			})
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if !strings.Contains(req.Email, "@") {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid email address",
			})
			return
		}

		existing, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing accounts",
			})
			return
		}
		if existing != nil && existing.ID != userID {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Email already registered to another account",
			})
			return
		}

		if err := h.userRepo.UpdateUser(c.Request.Context(), userID, req.Email, strings.TrimSpace(req.Name)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update profile",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": userResponse(userID, req.Email, strings.TrimSpace(req.Name)),
		})
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// @Summary      Change password
// @Description  Change the current user's password after verifying the current one
// @Tags         Accounts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      200  {object}  map[string]interface{}  "Password changed"
// @Failure      400  {object}  map[string]interface{}  "Missing fields or new password too short"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized or current password incorrect"
// @Router       /api/v1/auth/password [put]
// ChangePasswordHandler changes the current user's password
// PUT /api/v1/auth/password
func (h *AccountHandlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "current_password and new_password are required",
			})
			return
		}

		if len(req.NewPassword) < h.cfg.Auth.MinPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "New password too short",
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil || user == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get user information",
			})
			return
		}

		ok, err = auth.VerifyPassword(req.CurrentPassword, user.PasswordHash)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to verify password",
			})
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Current password is incorrect",
			})
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to hash password",
			})
			return
		}

		if err := h.userRepo.UpdateUserPassword(c.Request.Context(), userID, hash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to change password",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Password changed",
		})
	}
}

// currentUserID reads the user ID placed in the context by the auth middleware
func currentUserID(c *gin.Context) (string, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}
