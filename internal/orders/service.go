// Package orders places orders as a single all-or-nothing stock transaction
// and keeps order edits and deletions symmetric with placement.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LineRequest is one (product, quantity) pair of a cart.
type LineRequest struct {
	ProductID uint `json:"productId"`
	Quantity  int  `json:"quantity"`
}

// PlaceRequest is a cart submitted for placement.
type PlaceRequest struct {
	ClientName    string
	ClientAddress string
	Items         []LineRequest
	PlacedBy      *uint
}

// Update holds the only fields that may change after placement. Nil means unchanged.
type Update struct {
	Status        *models.OrderStatus
	ClientName    *string
	ClientAddress *string
}

// StockChangedFunc is called after a commit that lowered stock, outside the transaction.
type StockChangedFunc func(ctx context.Context, productIDs []uint)

// Service is the Order Placement Engine.
type Service struct {
	db             *gorm.DB
	resolver       *catalog.Resolver
	log            *zap.Logger
	onStockChanged StockChangedFunc
	now            func() time.Time
}

func NewService(db *gorm.DB, resolver *catalog.Resolver, log *zap.Logger) *Service {
	return &Service{db: db, resolver: resolver, log: log, now: time.Now}
}

// OnStockChanged registers the post-commit hook (the low-stock evaluation).
func (s *Service) OnStockChanged(fn StockChangedFunc) {
	s.onStockChanged = fn
}

// PlaceOrder expands bundles into simple-product deductions, decrements all of
// them in one transaction, snapshots prices and stores the order as Pending.
// Any failure rolls back every decrement.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (*models.Order, error) {
	if err := validatePlace(req); err != nil {
		return nil, err
	}

	var order models.Order
	var deducted []uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := loadProducts(tx, req.Items)
		if err != nil {
			return err
		}

		plan, err := expand(req.Items, products)
		if err != nil {
			return err
		}

		for _, d := range plan {
			if err := decrement(tx, d); err != nil {
				return err
			}
			deducted = append(deducted, d.ProductID)
		}

		lines, total, err := s.snapshot(req.Items, products)
		if err != nil {
			return err
		}

		order = models.Order{
			ClientName:    strings.TrimSpace(req.ClientName),
			ClientAddress: strings.TrimSpace(req.ClientAddress),
			Products:      lines,
			TotalPrice:    total,
			Status:        models.StatusPending,
			OrderDate:     s.now().UTC(),
			PlacedByID:    req.PlacedBy,
			Deductions:    plan,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("persist order: %w", err)
		}
		return nil
	})
	if err != nil {
		if kind := apperr.KindOf(err); kind != apperr.KindInternal {
			s.log.Info("order rejected", zap.String("kind", string(kind)), zap.String("reason", err.Error()))
		}
		return nil, err
	}

	s.log.Info("order placed",
		zap.Uint("order_id", order.ID),
		zap.Int("lines", len(order.Products)),
		zap.String("total", order.TotalPrice.StringFixed(2)))

	if s.onStockChanged != nil {
		s.onStockChanged(ctx, deducted)
	}
	return &order, nil
}

func validatePlace(req PlaceRequest) error {
	if strings.TrimSpace(req.ClientName) == "" {
		return apperr.Validation("clientName is required")
	}
	if strings.TrimSpace(req.ClientAddress) == "" {
		return apperr.Validation("clientAddress is required")
	}
	if len(req.Items) == 0 {
		return apperr.EmptyOrder()
	}
	for _, it := range req.Items {
		if it.ProductID == 0 {
			return apperr.Validation("productId is required on every line")
		}
		if it.Quantity <= 0 {
			return apperr.InvalidQuantity(it.ProductID, it.Quantity)
		}
		if it.Quantity > models.MaxQuantity {
			return apperr.QuantityTooLarge(it.ProductID, it.Quantity, models.MaxQuantity)
		}
	}
	return nil
}

// loadProducts reads every ordered product with its components, inside tx.
func loadProducts(tx *gorm.DB, items []LineRequest) (map[uint]*models.Product, error) {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	var rows []models.Product
	err := tx.
		Preload("Category").
		Preload("BundleComponents", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("BundleComponents.Component").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load ordered products: %w", err)
	}

	byID := make(map[uint]*models.Product, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	for _, it := range items {
		if _, ok := byID[it.ProductID]; !ok {
			return nil, apperr.ProductNotFound(it.ProductID)
		}
	}
	return byID, nil
}

// expand turns the cart into merged simple-product deductions, sorted by
// product id so concurrent orders always touch rows in the same order.
func expand(items []LineRequest, products map[uint]*models.Product) ([]models.OrderDeduction, error) {
	need := make(map[uint]int)
	for _, it := range items {
		p := products[it.ProductID]
		if !p.IsBundle {
			if err := addNeed(need, p.ID, it.Quantity); err != nil {
				return nil, err
			}
			continue
		}
		if len(p.BundleComponents) == 0 {
			return nil, apperr.InvalidBundleFor(p.ID, "bundle %d has no components", p.ID)
		}
		for _, bc := range p.BundleComponents {
			if bc.Component == nil {
				return nil, apperr.ProductNotFound(bc.ComponentID)
			}
			if bc.Component.IsBundle {
				return nil, apperr.InvalidBundleFor(bc.ComponentID, "bundle %d contains bundle %d", p.ID, bc.ComponentID)
			}
			if bc.Quantity <= 0 {
				return nil, apperr.InvalidBundleFor(p.ID, "bundle %d holds %d of product %d", p.ID, bc.Quantity, bc.ComponentID)
			}
			if it.Quantity > math.MaxInt/bc.Quantity {
				return nil, apperr.QuantityTooLarge(bc.ComponentID, it.Quantity, models.MaxQuantity)
			}
			if err := addNeed(need, bc.ComponentID, it.Quantity*bc.Quantity); err != nil {
				return nil, err
			}
		}
	}

	plan := make([]models.OrderDeduction, 0, len(need))
	for id, qty := range need {
		plan = append(plan, models.OrderDeduction{ProductID: id, Quantity: qty})
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].ProductID < plan[j].ProductID })
	return plan, nil
}

// addNeed adds qty to the running deduction for id, refusing totals that
// would leave the range any stock level can hold.
func addNeed(need map[uint]int, id uint, qty int) error {
	cur := need[id]
	if qty > models.MaxQuantity || cur > models.MaxQuantity-qty {
		return apperr.QuantityTooLarge(id, qty, models.MaxQuantity)
	}
	need[id] = cur + qty
	return nil
}

// decrement is the compare-and-decrement step: the row only changes if it
// still holds enough stock at the moment of the update.
func decrement(tx *gorm.DB, d models.OrderDeduction) error {
	if d.Quantity <= 0 {
		return apperr.InvalidQuantity(d.ProductID, d.Quantity)
	}
	res := tx.Model(&models.Product{}).
		Where("id = ? AND is_bundle = ? AND stock >= ?", d.ProductID, false, d.Quantity).
		Update("stock", gorm.Expr("stock - ?", d.Quantity))
	if res.Error != nil {
		return fmt.Errorf("decrement stock of %d: %w", d.ProductID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var cur models.Product
	if err := tx.Select("id", "name", "stock").First(&cur, d.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ProductNotFound(d.ProductID)
		}
		return fmt.Errorf("read stock of %d: %w", d.ProductID, err)
	}
	return apperr.InsufficientStock(cur.ID, cur.Name, d.Quantity, cur.Stock)
}

// snapshot prices every requested line at this moment; bundles go through the resolver.
func (s *Service) snapshot(items []LineRequest, products map[uint]*models.Product) ([]models.OrderLineItem, decimal.Decimal, error) {
	lines := make([]models.OrderLineItem, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		p := products[it.ProductID]
		res, err := s.resolver.Resolve(p)
		if err != nil {
			return nil, decimal.Zero, err
		}
		qty := decimal.NewFromInt(int64(it.Quantity))
		lineTotal := res.Price.Mul(qty).Round(2)

		line := models.OrderLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			SKU:       p.SKU,
			IsBundle:  p.IsBundle,
			Quantity:  it.Quantity,
			UnitPrice: res.Price,
			LineTotal: lineTotal,
		}
		if p.Category != nil {
			line.Category = p.Category.Name
		}
		lines = append(lines, line)
		total = total.Add(lineTotal)
	}
	return lines, total, nil
}

// GetOrder returns one order with its line items.
func (s *Service) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	return getOrder(s.db.WithContext(ctx), id)
}

func getOrder(db *gorm.DB, id uint) (*models.Order, error) {
	var o models.Order
	err := db.Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.OrderNotFound(id)
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &o, nil
}

// ListOrders returns orders newest first. A non-nil placedBy keeps only the
// orders that user placed.
func (s *Service) ListOrders(ctx context.Context, placedBy *uint) ([]models.Order, error) {
	q := s.db.WithContext(ctx)
	if placedBy != nil {
		q = q.Where("placed_by_id = ?", *placedBy)
	}
	var out []models.Order
	err := q.
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("order_date DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// UpdateOrder changes status and client details. Line items and the total
// never change. Moving to Cancelled gives the stock back; Cancelled is final.
func (s *Service) UpdateOrder(ctx context.Context, id uint, upd Update) (*models.Order, error) {
	changes := map[string]any{}
	if upd.ClientName != nil {
		name := strings.TrimSpace(*upd.ClientName)
		if name == "" {
			return nil, apperr.Validation("clientName cannot be empty")
		}
		changes["client_name"] = name
	}
	if upd.ClientAddress != nil {
		addr := strings.TrimSpace(*upd.ClientAddress)
		if addr == "" {
			return nil, apperr.Validation("clientAddress cannot be empty")
		}
		changes["client_address"] = addr
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, apperr.Validation("unknown order status %q", *upd.Status)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, id)
		if err != nil {
			return err
		}

		if upd.Status != nil && *upd.Status != o.Status {
			if o.Status == models.StatusCancelled {
				return apperr.InvalidStatusTransition(string(o.Status), string(*upd.Status))
			}
			if *upd.Status == models.StatusCancelled {
				if err := s.restoreOnce(tx, o); err != nil {
					return err
				}
			}
			changes["status"] = *upd.Status
		}

		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return fmt.Errorf("update order %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order updated", zap.Uint("order_id", id), zap.Any("changes", changes))
	return s.GetOrder(ctx, id)
}

// DeleteOrder gives back the stock the order took (unless a cancellation
// already did) and removes the order.
func (s *Service) DeleteOrder(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		if err := s.restoreOnce(tx, o); err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderLineItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderDeduction{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Order{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.OrderNotFound(id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("order deleted", zap.Uint("order_id", id))
	return nil
}

// lockOrder reads the order row FOR UPDATE (a no-op on SQLite, which
// serializes writers anyway) together with its deductions.
func lockOrder(tx *gorm.DB, id uint) (*models.Order, error) {
	var o models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.OrderNotFound(id)
		}
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}
	if err := tx.Where("order_id = ?", id).Find(&o.Deductions).Error; err != nil {
		return nil, fmt.Errorf("load deductions of order %d: %w", id, err)
	}
	return &o, nil
}

// claimRestore flips stock_restored from false to true and reports whether
// this call flipped it. Only the claimant gives stock back.
func claimRestore(tx *gorm.DB, id uint) (bool, error) {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND stock_restored = ?", id, false).
		Update("stock_restored", true)
	if res.Error != nil {
		return false, fmt.Errorf("claim restore of order %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) restoreOnce(tx *gorm.DB, o *models.Order) error {
	if o.StockRestored {
		return nil
	}
	claimed, err := claimRestore(tx, o.ID)
	if err != nil || !claimed {
		return err
	}
	o.StockRestored = true
	return s.restore(tx, o.Deductions)
}

// restore adds deducted quantities back. Products deleted since placement are skipped.
func (s *Service) restore(tx *gorm.DB, deductions []models.OrderDeduction) error {
	sorted := append([]models.OrderDeduction(nil), deductions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, d := range sorted {
		res := tx.Model(&models.Product{}).
			Where("id = ? AND is_bundle = ?", d.ProductID, false).
			Update("stock", gorm.Expr("stock + ?", d.Quantity))
		if res.Error != nil {
			return fmt.Errorf("restore stock of %d: %w", d.ProductID, res.Error)
		}
		if res.RowsAffected == 0 {
			s.log.Warn("stock not restored, product no longer stocked",
				zap.Uint("product_id", d.ProductID), zap.Int("quantity", d.Quantity))
		}
	}
	return nil
}
