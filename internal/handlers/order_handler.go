package handlers

import (
	"encoding/json"
	"net/http"

	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/middleware"
	"go-inventory-agent/internal/models"
	"go-inventory-agent/internal/orders"

	"github.com/gin-gonic/gin"
)

type placeOrderRequest struct {
	ClientName    string               `json:"clientName"`
	ClientAddress string               `json:"clientAddress"`
	Products      []orders.LineRequest `json:"products"`
}

// --- POST: /api/orders/place ---
// All products are taken from stock together or the order is refused.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}

	place := orders.PlaceRequest{
		ClientName:    req.ClientName,
		ClientAddress: req.ClientAddress,
		Items:         req.Products,
	}
	if uid, ok := middleware.UserID(c); ok {
		place.PlacedBy = &uid
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), place)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// ownerScope is nil for admins; clients only see their own orders.
func ownerScope(c *gin.Context) *uint {
	if middleware.Role(c) == models.RoleAdmin {
		return nil
	}
	uid, _ := middleware.UserID(c)
	return &uid
}

func (h *Handler) GetOrders(c *gin.Context) {
	out, err := h.orders.ListOrders(c.Request.Context(), ownerScope(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Order ID")
		return
	}
	o, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if owner := ownerScope(c); owner != nil && (o.PlacedByID == nil || *o.PlacedByID != *owner) {
		h.respondError(c, apperr.OrderNotFound(id))
		return
	}
	c.JSON(http.StatusOK, o)
}

type updateOrderRequest struct {
	Status        *models.OrderStatus `json:"status"`
	ClientName    *string             `json:"clientName"`
	ClientAddress *string             `json:"clientAddress"`

	// Present only to refuse them.
	Products   json.RawMessage `json:"products"`
	TotalPrice json.RawMessage `json:"totalPrice"`
}

// --- PUT: /api/orders/:id ---
// Only status and client details can change; line items and total are fixed at placement.
func (h *Handler) UpdateOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Order ID")
		return
	}
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	if len(req.Products) > 0 || len(req.TotalPrice) > 0 {
		h.badRequest(c, "products and totalPrice cannot be changed after placement")
		return
	}

	o, err := h.orders.UpdateOrder(c.Request.Context(), id, orders.Update{
		Status:        req.Status,
		ClientName:    req.ClientName,
		ClientAddress: req.ClientAddress,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// --- DELETE: /api/orders/:id ---
// Deleting an order that still holds stock gives it back.
func (h *Handler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Order ID")
		return
	}
	if err := h.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}
