// Package handlers is the REST surface. Handlers bind and validate input,
// call the services and translate their errors in one place.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/auth"
	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/lowstock"
	"go-inventory-agent/internal/orders"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Assistant answers free-form inventory questions.
type Assistant interface {
	Run(ctx context.Context, message string) (string, error)
}

// Deps are the services the handlers sit on.
type Deps struct {
	DB        *gorm.DB
	Catalog   *catalog.Service
	Orders    *orders.Service
	Monitor   *lowstock.Monitor
	Issuer    *auth.Issuer
	Assistant Assistant // nil disables /api/ask
	Log       *zap.Logger
}

type Handler struct {
	db        *gorm.DB
	catalog   *catalog.Service
	orders    *orders.Service
	monitor   *lowstock.Monitor
	issuer    *auth.Issuer
	assistant Assistant
	log       *zap.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		db:        d.DB,
		catalog:   d.Catalog,
		orders:    d.Orders,
		monitor:   d.Monitor,
		issuer:    d.Issuer,
		assistant: d.Assistant,
		log:       d.Log,
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindEmptyOrder, apperr.KindInvalidQuantity:
		return http.StatusBadRequest
	case apperr.KindInvalidBundleComposition:
		return http.StatusUnprocessableEntity
	case apperr.KindProductNotFound, apperr.KindOrderNotFound, apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInsufficientStock, apperr.KindInvalidStatusTransition:
		return http.StatusConflict
	case apperr.KindAlertDispatchFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes {"error", "kind"} plus productId/shortfall when the error names them.
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "kind": apperr.KindInternal})
		return
	}

	body := gin.H{"error": ae.Error(), "kind": ae.Kind}
	if ae.ProductID != 0 {
		body["productId"] = ae.ProductID
	}
	if ae.Kind == apperr.KindInsufficientStock {
		body["requested"] = ae.Requested
		body["available"] = ae.Available
		body["shortfall"] = ae.Shortfall
	}
	c.JSON(statusFor(ae.Kind), body)
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	h.respondError(c, apperr.Validation("%s", msg))
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "online"})
}
