package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-inventory-agent/internal/apperr"
	"go-inventory-agent/internal/models"

	"gorm.io/gorm"
)

// CategoryInput is the editable part of a category.
type CategoryInput struct {
	Name                     string
	DefaultLowStockThreshold *int
	OwnerID                  *uint
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	c := models.Category{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := validateCategory(tx, 0, in); err != nil {
			return err
		}
		c.Name = strings.TrimSpace(in.Name)
		c.DefaultLowStockThreshold = in.DefaultLowStockThreshold
		c.OwnerID = in.OwnerID
		return tx.Create(&c).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id uint, in CategoryInput) (*models.Category, error) {
	var c models.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("category", id)
			}
			return err
		}
		if err := validateCategory(tx, id, in); err != nil {
			return err
		}
		c.Name = strings.TrimSpace(in.Name)
		c.DefaultLowStockThreshold = in.DefaultLowStockThreshold
		c.OwnerID = in.OwnerID
		return tx.Save(&c).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCategory refuses while products still point at the category.
func (s *Service) DeleteCategory(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Category{}, id, "category"); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.Product{}).Where("category_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Validation("category %d still has %d products", id, n)
		}
		return tx.Delete(&models.Category{}, id).Error
	})
}

func validateCategory(tx *gorm.DB, id uint, in CategoryInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("category name is required")
	}
	if in.DefaultLowStockThreshold != nil && *in.DefaultLowStockThreshold < 0 {
		return apperr.Validation("defaultLowStockThreshold cannot be negative")
	}
	var clash int64
	if err := tx.Model(&models.Category{}).Where("name = ? AND id <> ?", strings.TrimSpace(in.Name), id).Count(&clash).Error; err != nil {
		return err
	}
	if clash > 0 {
		return apperr.Validation("category %q already exists", in.Name)
	}
	if in.OwnerID != nil {
		var owner models.User
		if err := tx.First(&owner, *in.OwnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user", *in.OwnerID)
			}
			return err
		}
		if owner.Role != models.RoleAdmin {
			return apperr.Validation("category owner must be an admin")
		}
	}
	return nil
}

// SupplierInput is the editable part of a supplier.
type SupplierInput struct {
	Name         string
	ContactEmail string
	Phone        string
}

func (s *Service) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	var out []models.Supplier
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	return out, nil
}

func (s *Service) CreateSupplier(ctx context.Context, in SupplierInput) (*models.Supplier, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Validation("supplier name is required")
	}
	sup := models.Supplier{
		Name:         strings.TrimSpace(in.Name),
		ContactEmail: strings.TrimSpace(in.ContactEmail),
		Phone:        strings.TrimSpace(in.Phone),
	}
	if err := s.db.WithContext(ctx).Create(&sup).Error; err != nil {
		return nil, fmt.Errorf("create supplier: %w", err)
	}
	return &sup, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id uint, in SupplierInput) (*models.Supplier, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Validation("supplier name is required")
	}
	var sup models.Supplier
	if err := s.db.WithContext(ctx).First(&sup, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("supplier", id)
		}
		return nil, err
	}
	sup.Name = strings.TrimSpace(in.Name)
	sup.ContactEmail = strings.TrimSpace(in.ContactEmail)
	sup.Phone = strings.TrimSpace(in.Phone)
	if err := s.db.WithContext(ctx).Save(&sup).Error; err != nil {
		return nil, fmt.Errorf("update supplier %d: %w", id, err)
	}
	return &sup, nil
}

// DeleteSupplier detaches the supplier from its products before removing it.
func (s *Service) DeleteSupplier(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Supplier{}, id, "supplier"); err != nil {
			return err
		}
		if err := tx.Model(&models.Product{}).Where("supplier_id = ?", id).Update("supplier_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Supplier{}, id).Error
	})
}
