package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go-inventory-agent/internal/database"
	"go-inventory-agent/internal/lowstock"
	"go-inventory-agent/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type TopSeller struct {
	ProductID   uint            `json:"productId"`
	ProductName string          `json:"productName"`
	Sold        int             `json:"sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// ReportData defines the shape of the sales summary
type ReportData struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TotalOrders  int64           `json:"totalOrders"`
	TopSelling   []TopSeller     `json:"topSelling"`
	RecentOrders []models.Order  `json:"recentOrders"`
}

// reportRange reads ?from=&to= (YYYY-MM-DD, both inclusive). Missing bounds mean all time.
func reportRange(c *gin.Context) (time.Time, time.Time, error) {
	start := time.Unix(0, 0).UTC()
	end := time.Now().UTC()
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return start, end, errors.New("from must be YYYY-MM-DD")
		}
		start = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return start, end, errors.New("to must be YYYY-MM-DD")
		}
		end = t.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

// --- GET: /api/reports ---
// Cancelled orders are left out of every figure.
func (h *Handler) GetSalesReport(c *gin.Context) {
	start, end, err := reportRange(c)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	db := h.db.WithContext(c.Request.Context())

	totals, err := database.GetSalesReport(db, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := ReportData{
		From:         start.Format(dateLayout),
		To:           end.Format(dateLayout),
		TotalRevenue: totals.TotalRevenue,
		TotalOrders:  totals.TotalCount,
		TopSelling:   []TopSeller{},
		RecentOrders: []models.Order{},
	}

	err = db.Table("order_line_items").
		Select("order_line_items.product_id, order_line_items.name as product_name, SUM(order_line_items.quantity) as sold, SUM(order_line_items.line_total) as revenue").
		Joins("JOIN orders ON orders.id = order_line_items.order_id").
		Where("orders.status <> ? AND orders.order_date BETWEEN ? AND ?", models.StatusCancelled, start, end).
		Group("order_line_items.product_id, order_line_items.name").
		Order("sold desc").
		Limit(5).
		Scan(&data.TopSelling).Error
	if err != nil {
		h.respondError(c, err)
		return
	}

	err = db.Preload("Products").
		Where("status <> ? AND order_date BETWEEN ? AND ?", models.StatusCancelled, start, end).
		Order("order_date desc, id desc").
		Limit(10).
		Find(&data.RecentOrders).Error
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// ValuationItem is one simple product's stock value.
type ValuationItem struct {
	ID        uint            `json:"_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Total     decimal.Decimal `json:"total"`
}

// CategoryGroup is the valuation of one category.
type CategoryGroup struct {
	CategoryName string          `json:"categoryName"`
	Items        []ValuationItem `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type ValuationResponse struct {
	Categories []CategoryGroup `json:"categories"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// --- GET: /api/reports/valuation ---
// Values physical stock only. Bundles hold no stock of their own, so they are skipped.
func (h *Handler) GetStockValuation(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	grandTotal := decimal.Zero
	groupedMap := make(map[string]*CategoryGroup)

	for _, p := range products {
		if p.IsBundle {
			continue
		}
		catName := "Uncategorized"
		if p.Category != nil && p.Category.Name != "" {
			catName = p.Category.Name
		}
		group, exists := groupedMap[catName]
		if !exists {
			group = &CategoryGroup{CategoryName: catName, Items: []ValuationItem{}, Subtotal: decimal.Zero}
			groupedMap[catName] = group
		}

		itemTotal := p.Price.Mul(decimal.NewFromInt(int64(p.Stock)))
		group.Items = append(group.Items, ValuationItem{
			ID:        p.ID,
			Name:      p.Name,
			SKU:       p.SKU,
			Quantity:  p.Stock,
			UnitPrice: p.Price,
			Total:     itemTotal,
		})
		group.Subtotal = group.Subtotal.Add(itemTotal)
		grandTotal = grandTotal.Add(itemTotal)
	}

	response := ValuationResponse{Categories: []CategoryGroup{}, GrandTotal: grandTotal}
	for _, group := range groupedMap {
		response.Categories = append(response.Categories, *group)
	}
	sort.Slice(response.Categories, func(i, j int) bool {
		return response.Categories[i].CategoryName < response.Categories[j].CategoryName
	})

	c.JSON(http.StatusOK, response)
}

// --- GET: /api/reports/low-stock ---
func (h *Handler) GetLowStock(c *gin.Context) {
	items, err := h.monitor.ListLowStock(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []lowstock.Item{}
	}
	c.JSON(http.StatusOK, items)
}

// --- GET: /api/reports/low-stock/export ---
func (h *Handler) ExportLowStock(c *gin.Context) {
	items, err := h.monitor.ListLowStock(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := lowstock.WriteXLSX(&buf, items); err != nil {
		h.respondError(c, err)
		return
	}
	filename := fmt.Sprintf("low-stock-%s.xlsx", time.Now().UTC().Format(dateLayout))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// --- POST: /api/reports/low-stock/alert/:productId ---
func (h *Handler) SendLowStockAlert(c *gin.Context) {
	id, ok := parseID(c, "productId")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	alert, err := h.monitor.SendAlert(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert sent", "alert": alert})
}
