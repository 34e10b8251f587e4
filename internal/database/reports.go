package database

import (
	"time"

	"go-inventory-agent/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesReportResult holds order revenue and volume for a period.
type SalesReportResult struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TotalCount   int64           `json:"totalOrders"`
}

// GetSalesReport sums non-cancelled orders placed between start and end (inclusive).
func GetSalesReport(db *gorm.DB, start, end time.Time) (*SalesReportResult, error) {
	var result SalesReportResult

	scope := db.Model(&models.Order{}).
		Where("order_date BETWEEN ? AND ?", start, end).
		Where("status <> ?", models.StatusCancelled).
		Session(&gorm.Session{})

	// COALESCE ensures we get 0 instead of NULL if no orders exist
	var revenue float64
	if err := scope.
		Select("COALESCE(SUM(total_price), 0)").
		Scan(&revenue).Error; err != nil {
		return nil, err
	}
	result.TotalRevenue = decimal.NewFromFloat(revenue).Round(2)

	if err := scope.Count(&result.TotalCount).Error; err != nil {
		return nil, err
	}

	return &result, nil
}
