// secrets.go implements HTTP handlers for owner-scoped secret management and dashboard stats.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/secretdrop/secretdrop/internal/db/models"
	"github.com/secretdrop/secretdrop/internal/secrets"
	"github.com/secretdrop/secretdrop/internal/telemetry"
)

// SecretHandlers handles secret management endpoints for authenticated owners
type SecretHandlers struct {
	lifecycle *secrets.Lifecycle
}

// NewSecretHandlers creates a new SecretHandlers instance
func NewSecretHandlers(lifecycle *secrets.Lifecycle) *SecretHandlers {
	return &SecretHandlers{lifecycle: lifecycle}
}

type createSecretRequest struct {
	Content       string     `json:"content" binding:"required"`
	Password      *string    `json:"password"`
	OneTimeAccess bool       `json:"one_time_access"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// nullableTime distinguishes an absent JSON field from an explicit null. A
// plain *time.Time cannot: both decode to nil, but for expires_at the two mean
// different things (leave unchanged vs remove the expiry).
type nullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *nullableTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	n.Value = &t
	return nil
}

type updateSecretRequest struct {
	Content       *string      `json:"content"`
	Password      *string      `json:"password"`
	OneTimeAccess *bool        `json:"one_time_access"`
	ExpiresAt     nullableTime `json:"expires_at"`
}

// secretListItem is a stored secret augmented with the derived fields the
// dashboard renders without recomputing them: has_password and status.
type secretListItem struct {
	models.Secret
	HasPassword bool                `json:"has_password"`
	Status      models.SecretStatus `json:"status"`
}

// boolLabel renders a bool as a Prometheus label value
func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// @Summary      Create a secret
// @Description  Store a new secret for the authenticated owner, optionally password-protected, one-time, or expiring
// @Tags         Secrets
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  createSecretRequest  true  "Secret details"
// @Success      201  {object}  models.Secret
// @Failure      400  {object}  map[string]interface{}  "Missing content or invalid fields"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/secrets [post]
// CreateSecretHandler creates a new secret
// POST /api/v1/secrets
func (h *SecretHandlers) CreateSecretHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		var req createSecretRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "content is required",
			})
			return
		}

		secret, err := h.lifecycle.Create(c.Request.Context(), ownerID, secrets.CreateInput{
			Content:       req.Content,
			Password:      req.Password,
			OneTimeAccess: req.OneTimeAccess,
			ExpiresAt:     req.ExpiresAt,
		})
		if err != nil {
			if secrets.IsValidation(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create secret",
			})
			return
		}

		telemetry.SecretsCreatedTotal.WithLabelValues(
			boolLabel(secret.OneTimeAccess),
			boolLabel(secret.HasPassword()),
		).Inc()

		c.JSON(http.StatusCreated, secret)
	}
}

// @Summary      List secrets
// @Description  List the authenticated owner's secrets with optional search, status filter, sorting, and pagination
// @Tags         Secrets
// @Security     Bearer
// @Produce      json
// @Param        search      query  string  false  "Substring match on content"
// @Param        status      query  string  false  "Filter by status: active, viewed, or expired"
// @Param        sort_by     query  string  false  "Sort column: created_at or expires_at (default created_at)"
// @Param        sort_order  query  string  false  "asc or desc (default desc)"
// @Param        page        query  int     false  "Page number, starting at 1"
// @Param        per_page    query  int     false  "Results per page"
// @Success      200  {object}  map[string]interface{}  "Secrets with pagination metadata"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/secrets [get]
// ListSecretsHandler lists the owner's secrets
// GET /api/v1/secrets
func (h *SecretHandlers) ListSecretsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "0"))

		filter := models.SecretFilter{
			Search:    c.Query("search"),
			Status:    models.SecretStatus(c.Query("status")),
			SortBy:    c.Query("sort_by"),
			SortOrder: c.Query("sort_order"),
			Limit:     perPage,
			Offset:    (page - 1) * perPage,
		}

		list, total, err := h.lifecycle.List(c.Request.Context(), ownerID, filter)
		if err != nil {
			if secrets.IsValidation(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list secrets",
			})
			return
		}

		now := time.Now()
		items := make([]secretListItem, len(list))
		for i := range list {
			items[i] = secretListItem{
				Secret:      list[i],
				HasPassword: list[i].HasPassword(),
				Status:      list[i].Status(now),
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"secrets": items,
			"total":   total,
			"page":    page,
		})
	}
}

// @Summary      Get a secret
// @Description  Retrieve one of the authenticated owner's secrets, including its content
// @Tags         Secrets
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Secret ID"
// @Success      200  {object}  models.Secret
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Secret not found"
// @Router       /api/v1/secrets/{id} [get]
// GetSecretHandler returns a single owned secret
// GET /api/v1/secrets/:id
func (h *SecretHandlers) GetSecretHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		secret, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"), ownerID)
		if err != nil {
			if errors.Is(err, secrets.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Secret not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get secret",
			})
			return
		}

		c.JSON(http.StatusOK, secret)
	}
}

// @Summary      Update a secret
// @Description  Apply a partial update to one of the authenticated owner's secrets. An empty password clears the password gate; an explicit null expires_at removes the expiry; an absent expires_at leaves it unchanged.
// @Tags         Secrets
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "Secret ID"
// @Param        body  body  updateSecretRequest  true  "Fields to update"
// @Success      200  {object}  models.Secret
// @Failure      400  {object}  map[string]interface{}  "Invalid fields"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Secret has been viewed and is immutable"
// @Failure      404  {object}  map[string]interface{}  "Secret not found"
// @Router       /api/v1/secrets/{id} [put]
// UpdateSecretHandler updates an owned secret
// PUT /api/v1/secrets/:id
func (h *SecretHandlers) UpdateSecretHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		var req updateSecretRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		in := secrets.UpdateInput{
			Content:       req.Content,
			Password:      req.Password,
			OneTimeAccess: req.OneTimeAccess,
		}
		if req.ExpiresAt.Set {
			if req.ExpiresAt.Value == nil {
				in.ClearExpiry = true
			} else {
				in.ExpiresAt = req.ExpiresAt.Value
			}
		}

		secret, err := h.lifecycle.Update(c.Request.Context(), c.Param("id"), ownerID, in)
		if err != nil {
			switch {
			case secrets.IsValidation(err):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, secrets.ErrForbidden):
				c.JSON(http.StatusForbidden, gin.H{"error": "Secret has already been viewed and can no longer be modified"})
			case errors.Is(err, secrets.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Secret not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to update secret",
				})
			}
			return
		}

		c.JSON(http.StatusOK, secret)
	}
}

// @Summary      Delete a secret
// @Description  Permanently delete one of the authenticated owner's secrets
// @Tags         Secrets
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Secret ID"
// @Success      200  {object}  map[string]interface{}  "Deleted"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Secret not found"
// @Router       /api/v1/secrets/{id} [delete]
// DeleteSecretHandler deletes an owned secret
// DELETE /api/v1/secrets/:id
func (h *SecretHandlers) DeleteSecretHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		err := h.lifecycle.Delete(c.Request.Context(), c.Param("id"), ownerID)
		if err != nil {
			if errors.Is(err, secrets.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Secret not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete secret",
			})
			return
		}

		telemetry.SecretsDeletedTotal.Inc()

		c.JSON(http.StatusOK, gin.H{
			"message": "Secret deleted",
		})
	}
}

// @Summary      Dashboard stats
// @Description  Aggregate counts of the authenticated owner's secrets plus their most recent secrets. The buckets overlap: a viewed one-time secret counts in both viewed and one_time_access.
// @Tags         Secrets
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  secrets.Dashboard
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/secrets/stats [get]
// StatsHandler returns dashboard statistics for the owner
// GET /api/v1/secrets/stats
func (h *SecretHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		dashboard, err := h.lifecycle.Stats(c.Request.Context(), ownerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load stats",
			})
			return
		}

		c.JSON(http.StatusOK, dashboard)
	}
}
