// Package lowstock flags products whose effective stock has fallen to their
// effective threshold and sends manual alerts about them.
package lowstock

import (
	"context"
	"errors"
	"fmt"

	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/models"
	"go-inventory-agent/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultThreshold applies when neither the product nor its category sets one.
const DefaultThreshold = 100

// Where an effective threshold came from.
const (
	SourceProduct  = "product"
	SourceCategory = "category"
	SourceDefault  = "default"
)

// Item is one row of the low-stock report.
type Item struct {
	ID                uint   `json:"_id"`
	Name              string `json:"name"`
	SKU               string `json:"sku"`
	IsBundle          bool   `json:"isBundle"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	ThresholdSource   string `json:"thresholdSource"`
	Category          string `json:"category"`
	BinLocation       string `json:"binLocation"`
}

// Monitor is the Low-Stock Monitor.
type Monitor struct {
	db                *gorm.DB
	catalog           *catalog.Service
	notifier          notify.Notifier
	fallbackThreshold int
	fallbackRecipient string
	log               *zap.Logger
}

// Options tunes the system-wide fallbacks.
type Options struct {
	DefaultThreshold  int    // 0 means DefaultThreshold
	FallbackRecipient string // used when the category owner has no email preference
}

func NewMonitor(db *gorm.DB, cat *catalog.Service, notifier notify.Notifier, opts Options, log *zap.Logger) *Monitor {
	threshold := opts.DefaultThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{
		db:                db,
		catalog:           cat,
		notifier:          notifier,
		fallbackThreshold: threshold,
		fallbackRecipient: opts.FallbackRecipient,
		log:               log,
	}
}

// EffectiveThreshold resolves product override → category default → fallback.
func EffectiveThreshold(p *models.Product, fallback int) (int, string) {
	if p.LowStockThreshold != nil {
		return *p.LowStockThreshold, SourceProduct
	}
	if p.Category != nil && p.Category.DefaultLowStockThreshold != nil {
		return *p.Category.DefaultLowStockThreshold, SourceCategory
	}
	return fallback, SourceDefault
}

// Evaluate returns the report row for a resolved product and whether it is low.
func (m *Monitor) Evaluate(p *models.Product) (Item, bool) {
	threshold, source := EffectiveThreshold(p, m.fallbackThreshold)
	item := Item{
		ID:                p.ID,
		Name:              p.Name,
		SKU:               p.SKU,
		IsBundle:          p.IsBundle,
		Stock:             p.Stock,
		LowStockThreshold: threshold,
		ThresholdSource:   source,
		BinLocation:       p.BinLocation,
	}
	if p.Category != nil {
		item.Category = p.Category.Name
	}
	return item, p.Stock <= threshold
}

// ListLowStock returns every product at or below its effective threshold.
func (m *Monitor) ListLowStock(ctx context.Context) ([]Item, error) {
	products, err := m.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0)
	for i := range products {
		if item, low := m.Evaluate(&products[i]); low {
			items = append(items, item)
		}
	}
	return items, nil
}

// SendAlert builds the alert for one product and hands it to the notifier.
// Delivery failures come back as AlertDispatchFailed and are not retried.
func (m *Monitor) SendAlert(ctx context.Context, productID uint) (*notify.Alert, error) {
	p, err := m.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	recipient, err := m.recipientFor(ctx, p)
	if err != nil {
		return nil, err
	}

	item, low := m.Evaluate(p)
	alert := notify.Alert{
		ID:           uuid.NewString(),
		Recipient:    recipient,
		ProductID:    p.ID,
		ProductName:  p.Name,
		SKU:          p.SKU,
		Category:     item.Category,
		CurrentStock: item.Stock,
		Threshold:    item.LowStockThreshold,
	}

	if err := m.notifier.Send(ctx, alert); err != nil {
		m.log.Error("low-stock alert failed",
			zap.Uint("product_id", p.ID), zap.String("alert_id", alert.ID), zap.Error(err))
		return nil, apperr.AlertDispatchFailed(p.ID, err)
	}

	m.log.Info("low-stock alert dispatched",
		zap.Uint("product_id", p.ID), zap.String("alert_id", alert.ID), zap.Bool("below_threshold", low))
	return &alert, nil
}

// recipientFor picks the owning admin's address when they opted in,
// otherwise the configured fallback.
func (m *Monitor) recipientFor(ctx context.Context, p *models.Product) (string, error) {
	if p.Category != nil && p.Category.OwnerID != nil {
		var owner models.User
		err := m.db.WithContext(ctx).First(&owner, *p.Category.OwnerID).Error
		switch {
		case err == nil:
			if owner.LowStockAlerts && owner.NotificationEmail != "" {
				return owner.NotificationEmail, nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return "", fmt.Errorf("load category owner: %w", err)
		}
	}
	if m.fallbackRecipient != "" {
		return m.fallbackRecipient, nil
	}
	return "", apperr.Validation("no alert recipient configured for product %d", p.ID)
}

// EvaluateAfterOrder checks the given simple products and every bundle built
// from them, logging the ones now at or below threshold. It never sends mail.
func (m *Monitor) EvaluateAfterOrder(ctx context.Context, productIDs []uint) ([]Item, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	graph, err := catalog.LoadGraph(m.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(productIDs))
	seen := make(map[uint]struct{})
	add := func(id uint) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, id := range productIDs {
		add(id)
		for _, b := range graph.Dependents(id) {
			add(b)
		}
	}

	var products []models.Product
	if err := catalog.WithComposition(m.db.WithContext(ctx)).Where("id IN ?", ids).Order("id ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products for threshold check: %w", err)
	}

	var flagged []Item
	for i := range products {
		if err := m.catalog.Resolver().Apply(&products[i]); err != nil {
			return nil, err
		}
		if item, low := m.Evaluate(&products[i]); low {
			flagged = append(flagged, item)
			m.log.Warn("product at or below low-stock threshold",
				zap.Uint("product_id", item.ID),
				zap.String("sku", item.SKU),
				zap.Int("stock", item.Stock),
				zap.Int("threshold", item.LowStockThreshold),
				zap.String("threshold_source", item.ThresholdSource))
		}
	}
	return flagged, nil
}
