package handlers

import (
	"go-inventory-agent/internal/middleware"
	"go-inventory-agent/internal/models"

	"github.com/gin-gonic/gin"
)

// Options switches optional routes on.
type Options struct {
	AllowRegistration bool
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine, opts Options) {
	r.GET("/health", h.Health)
	r.POST("/login", h.Login)
	if opts.AllowRegistration {
		r.POST("/register", h.RegisterUser)
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(h.issuer))
	{
		// Admins and clients
		api.GET("/products", h.GetProducts)
		api.GET("/products/:id", h.GetProduct)
		api.GET("/categories", h.GetCategories)
		api.GET("/suppliers", h.GetSuppliers)

		api.POST("/orders/place", h.PlaceOrder)
		api.GET("/orders", h.GetOrders)
		api.GET("/orders/:id", h.GetOrder)

		api.GET("/users/me", h.GetMe)

		// Admins only
		admin := api.Group("/")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/products", h.AddProduct)
			admin.PUT("/products/:id", h.UpdateProduct)
			admin.POST("/products/:id/stock", h.AdjustStock)
			admin.DELETE("/products/:id", h.DeleteProduct)

			admin.PUT("/orders/:id", h.UpdateOrder)
			admin.DELETE("/orders/:id", h.DeleteOrder)

			admin.POST("/categories", h.AddCategory)
			admin.PUT("/categories/:id", h.UpdateCategory)
			admin.DELETE("/categories/:id", h.DeleteCategory)
			admin.POST("/suppliers", h.AddSupplier)
			admin.PUT("/suppliers/:id", h.UpdateSupplier)
			admin.DELETE("/suppliers/:id", h.DeleteSupplier)

			admin.PUT("/users/me/notifications", h.UpdateNotifications)

			admin.GET("/reports", h.GetSalesReport)
			admin.GET("/reports/valuation", h.GetStockValuation)
			admin.GET("/reports/low-stock", h.GetLowStock)
			admin.GET("/reports/low-stock/export", h.ExportLowStock)
			admin.POST("/reports/low-stock/alert/:productId", h.SendLowStockAlert)

			admin.POST("/ask", h.AskAI)
		}
	}
}
