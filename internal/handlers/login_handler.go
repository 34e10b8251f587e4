package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/auth"
	"go-inventory-agent/internal/middleware"
	"go-inventory-agent/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).Where("username = ?", input.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "kind": "Unauthorized"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, input.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "kind": "Unauthorized"})
		return
	}

	token, err := h.issuer.GenerateToken(user.ID, user.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"role":     user.Role,
		"username": user.Username,
	})
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=admin client"`
}

// RegisterUser is only mounted when registration is switched on.
func (h *Handler) RegisterUser(c *gin.Context) {
	var input RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "username and a password of at least 8 characters are required")
		return
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	role := input.Role
	if role == "" {
		role = models.RoleClient
	}
	user := models.User{
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: hash,
		Role:         role,
	}

	db := h.db.WithContext(c.Request.Context())
	var taken int64
	if err := db.Model(&models.User{}).Where("username = ?", user.Username).Count(&taken).Error; err != nil {
		h.respondError(c, err)
		return
	}
	if taken > 0 {
		h.badRequest(c, "username is already taken")
		return
	}
	if err := db.Create(&user).Error; err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, error) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return nil, apperr.NotFound("user", 0)
	}
	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", uid)
		}
		return nil, err
	}
	return &user, nil
}

func (h *Handler) GetMe(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type notificationRequest struct {
	NotificationEmail string `json:"notificationEmail" binding:"omitempty,email"`
	LowStockAlerts    bool   `json:"lowStockAlerts"`
}

// --- PUT: /api/users/me/notifications ---
// Where low-stock alerts for the caller's categories go.
func (h *Handler) UpdateNotifications(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "notificationEmail must be a valid email address")
		return
	}
	if req.LowStockAlerts && req.NotificationEmail == "" {
		h.badRequest(c, "notificationEmail is required when lowStockAlerts is on")
		return
	}

	user, err := h.currentUser(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	err = h.db.WithContext(c.Request.Context()).Model(user).Updates(map[string]any{
		"notification_email": req.NotificationEmail,
		"low_stock_alerts":   req.LowStockAlerts,
	}).Error
	if err != nil {
		h.respondError(c, err)
		return
	}
	user.NotificationEmail = req.NotificationEmail
	user.LowStockAlerts = req.LowStockAlerts
	c.JSON(http.StatusOK, user)
}
