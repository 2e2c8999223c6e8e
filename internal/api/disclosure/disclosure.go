// Package disclosure implements the public, unauthenticated endpoints a secret
// recipient uses: fetching the metadata needed to render the view page and
// submitting the actual view request. These routes sit behind the strict view
// rate limiter because each request may cost a bcrypt comparison.
package disclosure

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/secretdrop/secretdrop/internal/secrets"
	"github.com/secretdrop/secretdrop/internal/telemetry"
)

// Handlers serves the public disclosure endpoints
type Handlers struct {
	lifecycle *secrets.Lifecycle
}

// NewHandlers creates disclosure handlers over the lifecycle service
func NewHandlers(lifecycle *secrets.Lifecycle) *Handlers {
	return &Handlers{lifecycle: lifecycle}
}

type viewRequest struct {
	Password *string `json:"password"`
}

// @Summary      Get secret metadata
// @Description  Returns the gates that apply to a secret (password, one-time, expiry) without revealing its content. A dead secret fails the same way viewing would, so an expired or consumed secret never even offers a password prompt.
// @Tags         Disclosure
// @Produce      json
// @Param        id  path  string  true  "Secret ID"
// @Success      200  {object}  secrets.Meta
// @Failure      404  {object}  map[string]interface{}  "Secret not found"
// @Failure      410  {object}  map[string]interface{}  "Secret expired or already viewed"
// @Router       /v1/secrets/{id} [get]
// GetMeta returns the public metadata for a secret
// GET /v1/secrets/:id
func (h *Handlers) GetMeta(c *gin.Context) {
	meta, err := h.lifecycle.GetMeta(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, secrets.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Secret not found"})
		case errors.Is(err, secrets.ErrExpired):
			c.JSON(http.StatusGone, gin.H{"error": "Secret has expired"})
		case errors.Is(err, secrets.ErrAlreadyConsumed):
			c.JSON(http.StatusGone, gin.H{"error": "Secret has already been viewed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load secret"})
		}
		return
	}

	c.JSON(http.StatusOK, meta)
}

// @Summary      View a secret
// @Description  Reveals the secret content. Checks run in a fixed order (existence, expiry, prior consumption, password) and for one-time secrets at most one caller ever receives the content.
// @Tags         Disclosure
// @Accept       json
// @Produce      json
// @Param        id       path  string       true   "Secret ID"
// @Param        request  body  viewRequest  false  "Password, when the secret is protected"
// @Success      200  {object}  map[string]interface{}  "content, consumed, viewed_at"
// @Failure      401  {object}  map[string]interface{}  "Password required or invalid"
// @Failure      404  {object}  map[string]interface{}  "Secret not found"
// @Failure      410  {object}  map[string]interface{}  "Secret expired or already viewed"
// @Router       /v1/secrets/{id}/view [post]
// View processes a view attempt against the lifecycle gates
// POST /v1/secrets/:id/view
func (h *Handlers) View(c *gin.Context) {
	var req viewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	secret, err := h.lifecycle.Disclose(c.Request.Context(), c.Param("id"), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, secrets.ErrNotFound):
			telemetry.SecretDisclosuresTotal.WithLabelValues("not_found").Inc()
			c.JSON(http.StatusNotFound, gin.H{"error": "Secret not found"})
		case errors.Is(err, secrets.ErrExpired):
			telemetry.SecretDisclosuresTotal.WithLabelValues("expired").Inc()
			c.JSON(http.StatusGone, gin.H{"error": "Secret has expired"})
		case errors.Is(err, secrets.ErrAlreadyConsumed):
			telemetry.SecretDisclosuresTotal.WithLabelValues("consumed").Inc()
			c.JSON(http.StatusGone, gin.H{"error": "Secret has already been viewed"})
		case errors.Is(err, secrets.ErrPasswordRequired):
			telemetry.SecretDisclosuresTotal.WithLabelValues("password_required").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Password required"})
		case errors.Is(err, secrets.ErrInvalidPassword):
			telemetry.SecretDisclosuresTotal.WithLabelValues("invalid_password").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to view secret"})
		}
		return
	}

	telemetry.SecretDisclosuresTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{
		"content":   secret.Content,
		"consumed":  secret.OneTimeAccess,
		"viewed_at": secret.ViewedAt,
	})
}
