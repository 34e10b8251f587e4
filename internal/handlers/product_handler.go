package handlers

import (
	"net/http"

	"go-inventory-agent/internal/catalog"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type productRequest struct {
	Name              string                   `json:"name"`
	SKU               string                   `json:"sku"`
	CategoryID        *uint                    `json:"categoryId"`
	SupplierID        *uint                    `json:"supplierId"`
	IsBundle          bool                     `json:"isBundle"`
	Stock             int                      `json:"stock"`
	Price             decimal.Decimal          `json:"price"`
	LowStockThreshold *int                     `json:"lowStockThreshold"`
	BinLocation       string                   `json:"binLocation"`
	BundleComponents  []catalog.ComponentInput `json:"bundleComponents"`
}

func (r productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Name:              r.Name,
		SKU:               r.SKU,
		CategoryID:        r.CategoryID,
		SupplierID:        r.SupplierID,
		IsBundle:          r.IsBundle,
		Stock:             r.Stock,
		Price:             r.Price,
		LowStockThreshold: r.LowStockThreshold,
		BinLocation:       r.BinLocation,
		Components:        r.BundleComponents,
	}
}

// --- GET: /api/products ---
func (h *Handler) GetProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- GET: /api/products/:id ---
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	p, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// --- POST: /api/products ---
func (h *Handler) AddProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// --- PUT: /api/products/:id ---
// The body replaces the whole product, composition included.
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	p, err := h.catalog.UpdateProduct(c.Request.Context(), id, req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type stockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// --- POST: /api/products/:id/stock ---
// Restock (positive delta) or write off (negative delta) a simple product.
func (h *Handler) AdjustStock(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "delta is required and must be non-zero")
		return
	}
	p, err := h.catalog.AdjustStock(c.Request.Context(), id, req.Delta)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if req.Delta < 0 {
		if _, err := h.monitor.EvaluateAfterOrder(c.Request.Context(), []uint{id}); err != nil {
			h.log.Warn("low-stock check after adjustment failed", zap.Uint("product_id", id), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, p)
}

// --- DELETE: /api/products/:id ---
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}
