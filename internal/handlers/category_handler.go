package handlers

import (
	"net/http"

	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/middleware"

	"github.com/gin-gonic/gin"
)

type categoryRequest struct {
	Name                     string `json:"name"`
	DefaultLowStockThreshold *int   `json:"defaultLowStockThreshold"`
	Owner                    *uint  `json:"owner"`
}

func (r categoryRequest) input() catalog.CategoryInput {
	return catalog.CategoryInput{Name: r.Name, DefaultLowStockThreshold: r.DefaultLowStockThreshold, OwnerID: r.Owner}
}

func (h *Handler) GetCategories(c *gin.Context) {
	out, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// AddCategory creates a category. Without an explicit owner the caller owns it.
func (h *Handler) AddCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	if req.Owner == nil {
		if uid, ok := middleware.UserID(c); ok {
			req.Owner = &uid
		}
	}
	out, err := h.catalog.CreateCategory(c.Request.Context(), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Category ID")
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	out, err := h.catalog.UpdateCategory(c.Request.Context(), id, req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Category ID")
		return
	}
	if err := h.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted"})
}

type supplierRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contactEmail" binding:"omitempty,email"`
	Phone        string `json:"phone"`
}

func (r supplierRequest) input() catalog.SupplierInput {
	return catalog.SupplierInput{Name: r.Name, ContactEmail: r.ContactEmail, Phone: r.Phone}
}

func (h *Handler) GetSuppliers(c *gin.Context) {
	out, err := h.catalog.ListSuppliers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AddSupplier(c *gin.Context) {
	var req supplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	out, err := h.catalog.CreateSupplier(c.Request.Context(), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateSupplier(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Supplier ID")
		return
	}
	var req supplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	out, err := h.catalog.UpdateSupplier(c.Request.Context(), id, req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteSupplier(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Supplier ID")
		return
	}
	if err := h.catalog.DeleteSupplier(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Supplier deleted"})
}
