package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openwebui-monitor/server/internal/models"
	"github.com/openwebui-monitor/server/internal/users"
)

// UserHandler serves provisioning and the admin user editor.
type UserHandler struct {
	store *users.Store
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(store *users.Store) *UserHandler {
	return &UserHandler{store: store}
}

// ensureRequest is the provisioning payload sent before a user's first turn.
type ensureRequest struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}

// Ensure provisions the account if needed and returns its balance. Repeated
// calls refresh email and name but never the balance.
func (h *UserHandler) Ensure(c *gin.Context) {
	var body ensureRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.User.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	user, errEnsure := h.store.Ensure(c.Request.Context(), body.User.ID, body.User.Email, body.User.Name, body.User.Role)
	if errEnsure != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "provision user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      user.ID,
		"balance": user.Balance(),
	})
}

// formatUser shapes a user row for the panel.
func formatUser(u *models.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"email":      u.Email,
		"name":       u.Name,
		"role":       u.Role,
		"balance":    u.Balance(),
		"deleted":    u.Deleted,
		"created_at": u.CreatedAt.UTC(),
	}
}

// List returns a page of non-deleted users for the admin table.
func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	rows, total, errList := h.store.List(c.Request.Context(), users.ListOptions{
		Page:      page,
		PageSize:  pageSize,
		SortField: c.Query("sortField"),
		SortOrder: c.Query("sortOrder"),
		Search:    c.Query("search"),
	})
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query users failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatUser(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": total})
}

// Delete soft-deletes a user. Ledger rows keep the id.
func (h *UserHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}
	if errDelete := h.store.SoftDelete(c.Request.Context(), id); errDelete != nil {
		if errors.Is(errDelete, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// setBalanceRequest is the admin balance editor payload.
type setBalanceRequest struct {
	Balance *float64 `json:"balance"`
}

// SetBalance sets an absolute balance for a user.
func (h *UserHandler) SetBalance(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	var body setBalanceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Balance == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "balance must be a number"})
		return
	}
	if math.IsNaN(*body.Balance) || math.IsInf(*body.Balance, 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "balance must be finite"})
		return
	}

	user, errSet := h.store.SetBalance(c.Request.Context(), id, int64(math.Round(*body.Balance*1_000_000)))
	if errSet != nil {
		if errors.Is(errSet, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update balance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      user.ID,
		"email":   user.Email,
		"balance": user.Balance(),
	})
}
