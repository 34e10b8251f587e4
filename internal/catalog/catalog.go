// Package catalog owns products, categories and suppliers, and resolves
// bundle products against their components.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductInput is the editable part of a product. PUT replaces all of it.
type ProductInput struct {
	Name              string
	SKU               string
	CategoryID        *uint
	SupplierID        *uint
	IsBundle          bool
	Stock             int
	Price             decimal.Decimal
	LowStockThreshold *int
	BinLocation       string
	Components        []ComponentInput
}

// Service is the Product Catalog.
type Service struct {
	db       *gorm.DB
	resolver *Resolver
	log      *zap.Logger
}

func NewService(db *gorm.DB, resolver *Resolver, log *zap.Logger) *Service {
	return &Service{db: db, resolver: resolver, log: log}
}

// Resolver exposes the bundle resolver the catalog reads through.
func (s *Service) Resolver() *Resolver { return s.resolver }

// WithComposition preloads everything a product read needs: category,
// supplier and bundle components (in position order) with their products.
func WithComposition(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Category").
		Preload("Supplier").
		Preload("BundleComponents", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("BundleComponents.Component")
}

// ListProducts returns every product with bundle stock and price resolved.
func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := WithComposition(s.db.WithContext(ctx)).Order("id ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	for i := range products {
		if err := s.resolver.Apply(&products[i]); err != nil {
			return nil, fmt.Errorf("resolve product %d: %w", products[i].ID, err)
		}
	}
	return products, nil
}

// GetProduct returns one product with bundle stock and price resolved.
func (s *Service) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	return s.getProduct(s.db.WithContext(ctx), id)
}

func (s *Service) getProduct(db *gorm.DB, id uint) (*models.Product, error) {
	var p models.Product
	if err := WithComposition(db).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ProductNotFound(id)
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	if err := s.resolver.Apply(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct validates and stores a new simple or bundle product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockProducts(tx, lockSet(0, in))
		if err != nil {
			return err
		}
		if err := s.validateInput(tx, 0, in, locked); err != nil {
			return err
		}

		p := models.Product{}
		assign(&p, in)
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		if err := replaceComponents(tx, p.ID, in); err != nil {
			return err
		}
		id = p.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created", zap.Uint("product_id", id), zap.String("sku", in.SKU), zap.Bool("bundle", in.IsBundle))
	return s.GetProduct(ctx, id)
}

// UpdateProduct replaces the editable fields of an existing product.
func (s *Service) UpdateProduct(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockProducts(tx, lockSet(id, in))
		if err != nil {
			return err
		}
		p, ok := locked[id]
		if !ok {
			return apperr.ProductNotFound(id)
		}

		if err := s.validateInput(tx, id, in, locked); err != nil {
			return err
		}

		if in.IsBundle && !p.IsBundle {
			var usedBy []uint
			err := tx.Model(&models.BundleComponent{}).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("component_id = ?", id).
				Pluck("bundle_id", &usedBy).Error
			if err != nil {
				return fmt.Errorf("check bundle usage: %w", err)
			}
			if len(usedBy) > 0 {
				return apperr.InvalidBundleFor(id, "product %d is a component of bundle %d and cannot become a bundle", id, usedBy[0])
			}
		}

		assign(&p, in)
		// Save writes zero values too (stock 0, cleared threshold).
		if err := tx.Omit(clause.Associations).Save(&p).Error; err != nil {
			return fmt.Errorf("update product %d: %w", id, err)
		}
		return replaceComponents(tx, id, in)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product updated", zap.Uint("product_id", id), zap.Bool("bundle", in.IsBundle))
	return s.GetProduct(ctx, id)
}

// AdjustStock adds delta (which may be negative) to a simple product's stock.
// The update is conditional, so stock stays within [0, models.MaxQuantity].
func (s *Service) AdjustStock(ctx context.Context, id uint, delta int) (*models.Product, error) {
	if delta == 0 {
		return nil, apperr.Validation("stock adjustment must be non-zero")
	}
	if delta > models.MaxQuantity || delta < -models.MaxQuantity {
		return nil, apperr.Validation("stock adjustment must be within ±%d", models.MaxQuantity)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ProductNotFound(id)
			}
			return err
		}
		if p.IsBundle {
			return apperr.Validation("bundle stock is derived from its components and cannot be adjusted")
		}
		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock + ? >= 0 AND stock + ? <= ?", id, delta, delta, models.MaxQuantity).
			Update("stock", gorm.Expr("stock + ?", delta))
		if res.Error != nil {
			return fmt.Errorf("adjust stock %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			if delta > 0 {
				return apperr.Validation("stock of product %d cannot exceed %d", id, models.MaxQuantity)
			}
			return apperr.InsufficientStock(id, p.Name, -delta, p.Stock)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stock adjusted", zap.Uint("product_id", id), zap.Int("delta", delta))
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product unless a bundle still uses it.
// Orders keep their own snapshots, so they are unaffected.
func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ProductNotFound(id)
			}
			return err
		}

		var usedBy []uint
		if err := tx.Model(&models.BundleComponent{}).Where("component_id = ?", id).Pluck("bundle_id", &usedBy).Error; err != nil {
			return err
		}
		if len(usedBy) > 0 {
			return apperr.Validation("product %d is a component of bundle %d; remove it from the bundle first", id, usedBy[0])
		}

		if err := tx.Where("bundle_id = ?", id).Delete(&models.BundleComponent{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Product{}, id).Error; err != nil {
			return fmt.Errorf("delete product %d: %w", id, err)
		}
		s.log.Info("product deleted", zap.Uint("product_id", id))
		return nil
	})
}

// LoadGraph reads the whole composition graph.
func LoadGraph(db *gorm.DB) (*CompositionGraph, error) {
	var nodes []GraphNode
	if err := db.Model(&models.Product{}).Select("id", "is_bundle").Scan(&nodes).Error; err != nil {
		return nil, fmt.Errorf("load product graph: %w", err)
	}
	var edges []GraphEdge
	if err := db.Model(&models.BundleComponent{}).Select("bundle_id", "component_id").Scan(&edges).Error; err != nil {
		return nil, fmt.Errorf("load bundle edges: %w", err)
	}
	return NewCompositionGraph(nodes, edges), nil
}

// lockSet lists the product rows a create or update must hold: the product
// itself and, for bundles, every component.
func lockSet(id uint, in ProductInput) []uint {
	ids := make([]uint, 0, len(in.Components)+1)
	if id != 0 {
		ids = append(ids, id)
	}
	if in.IsBundle {
		for _, c := range in.Components {
			ids = append(ids, c.ProductID)
		}
	}
	return ids
}

// lockProducts reads ids FOR UPDATE in ascending order, so two writers
// touching overlapping products queue instead of deadlocking. SQLite ignores
// the clause and serializes writers on its own.
func lockProducts(tx *gorm.DB, ids []uint) (map[uint]models.Product, error) {
	out := make(map[uint]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var rows []models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func (s *Service) validateInput(tx *gorm.DB, id uint, in ProductInput, locked map[uint]models.Product) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("name is required")
	}
	if strings.TrimSpace(in.SKU) == "" {
		return apperr.Validation("sku is required")
	}
	if in.LowStockThreshold != nil && *in.LowStockThreshold < 0 {
		return apperr.Validation("lowStockThreshold cannot be negative")
	}

	var clash int64
	if err := tx.Model(&models.Product{}).Where("sku = ? AND id <> ?", strings.TrimSpace(in.SKU), id).Count(&clash).Error; err != nil {
		return err
	}
	if clash > 0 {
		return apperr.Validation("sku %q is already in use", in.SKU)
	}

	if in.CategoryID != nil {
		if err := exists(tx, &models.Category{}, *in.CategoryID, "category"); err != nil {
			return err
		}
	}
	if in.SupplierID != nil {
		if err := exists(tx, &models.Supplier{}, *in.SupplierID, "supplier"); err != nil {
			return err
		}
	}

	if !in.IsBundle {
		if len(in.Components) > 0 {
			return apperr.InvalidBundle("only bundles can have components")
		}
		if in.Stock < 0 {
			return apperr.Validation("stock cannot be negative")
		}
		if in.Stock > models.MaxQuantity {
			return apperr.Validation("stock cannot exceed %d", models.MaxQuantity)
		}
		if in.Price.IsNegative() {
			return apperr.Validation("price cannot be negative")
		}
		return nil
	}

	graph, err := LoadGraph(tx)
	if err != nil {
		return err
	}
	if err := ValidateComposition(id, in.Components, graph); err != nil {
		return err
	}
	// The locked rows are authoritative: a component may have turned into a
	// bundle after the graph was read.
	for _, c := range in.Components {
		comp, ok := locked[c.ProductID]
		if !ok {
			return apperr.ProductNotFound(c.ProductID)
		}
		if comp.IsBundle {
			return apperr.InvalidBundleFor(c.ProductID, "component %d is itself a bundle; bundles of bundles are not allowed", c.ProductID)
		}
	}
	return nil
}

func exists(tx *gorm.DB, model any, id uint, what string) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(what, id)
	}
	return nil
}

func assign(p *models.Product, in ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.SKU = strings.TrimSpace(in.SKU)
	p.CategoryID = in.CategoryID
	p.SupplierID = in.SupplierID
	p.IsBundle = in.IsBundle
	p.LowStockThreshold = in.LowStockThreshold
	p.BinLocation = strings.TrimSpace(in.BinLocation)
	if in.IsBundle {
		// Derived on read; never stored.
		p.Stock = 0
		p.Price = decimal.Zero
	} else {
		p.Stock = in.Stock
		p.Price = in.Price.Round(2)
	}
}

func replaceComponents(tx *gorm.DB, bundleID uint, in ProductInput) error {
	if err := tx.Where("bundle_id = ?", bundleID).Delete(&models.BundleComponent{}).Error; err != nil {
		return fmt.Errorf("clear components of %d: %w", bundleID, err)
	}
	if !in.IsBundle {
		return nil
	}
	rows := make([]models.BundleComponent, 0, len(in.Components))
	for i, c := range in.Components {
		rows = append(rows, models.BundleComponent{
			BundleID:    bundleID,
			ComponentID: c.ProductID,
			Position:    i,
			Quantity:    c.Quantity,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("store components of %d: %w", bundleID, err)
	}
	return nil
}
