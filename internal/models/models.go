package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The UI reads prices as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// MaxQuantity bounds every stock level, order line and component quantity.
// Products of two bounded quantities still fit in an int64.
const MaxQuantity = 1_000_000_000

// Roles understood by the auth middleware.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// User - An admin or client account. Admins own categories and receive their low-stock alerts.
type User struct {
	ID                uint      `gorm:"primaryKey" json:"_id"`
	Username          string    `gorm:"uniqueIndex;size:50" json:"username"`
	PasswordHash      string    `json:"-"`    // Never return this in JSON
	Role              string    `json:"role"` // 'admin', 'client'
	NotificationEmail string    `gorm:"size:255" json:"notificationEmail"`
	LowStockAlerts    bool      `json:"lowStockAlerts"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Category - Groups products and supplies the fallback low-stock threshold.
type Category struct {
	ID                       uint      `gorm:"primaryKey" json:"_id"`
	Name                     string    `gorm:"uniqueIndex;size:100" json:"name"`
	DefaultLowStockThreshold *int      `json:"defaultLowStockThreshold"`
	OwnerID                  *uint     `json:"owner"`
	Owner                    *User     `gorm:"foreignKey:OwnerID" json:"-"`
	CreatedAt                time.Time `json:"createdAt"`
}

// Supplier - Who we restock simple products from.
type Supplier struct {
	ID           uint      `gorm:"primaryKey" json:"_id"`
	Name         string    `gorm:"size:150" json:"name"`
	ContactEmail string    `gorm:"size:255" json:"contactEmail"`
	Phone        string    `gorm:"size:50" json:"phone"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Product - The Inventory.
// Stock and Price are authoritative only when IsBundle is false; bundle rows
// keep zeros in the database and get both values filled in by the resolver.
type Product struct {
	ID                uint              `gorm:"primaryKey" json:"_id"`
	Name              string            `gorm:"size:200" json:"name"`
	SKU               string            `gorm:"uniqueIndex;size:64" json:"sku"`
	CategoryID        *uint             `json:"categoryId"`
	Category          *Category         `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	SupplierID        *uint             `json:"supplierId"`
	Supplier          *Supplier         `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	IsBundle          bool              `gorm:"index" json:"isBundle"`
	Stock             int               `json:"stock"`
	Price             decimal.Decimal   `gorm:"type:decimal(12,2)" json:"price"`
	LowStockThreshold *int              `json:"lowStockThreshold"`
	BinLocation       string            `gorm:"size:50" json:"binLocation"`
	BundleComponents  []BundleComponent `gorm:"foreignKey:BundleID;constraint:OnDelete:CASCADE" json:"bundleComponents"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// BundleComponent - One entry of a bundle's composition.
type BundleComponent struct {
	ID          uint     `gorm:"primaryKey" json:"-"`
	BundleID    uint     `gorm:"uniqueIndex:idx_bundle_component;not null" json:"-"`
	ComponentID uint     `gorm:"uniqueIndex:idx_bundle_component;index;not null" json:"product"`
	Component   *Product `gorm:"foreignKey:ComponentID" json:"-"`
	Position    int      `json:"-"`
	Quantity    int      `json:"quantity"`

	// Filled in on read.
	ComponentName string `gorm:"-" json:"name,omitempty"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Order - The Transaction Header
type Order struct {
	ID            uint             `gorm:"primaryKey" json:"_id"`
	ClientName    string           `gorm:"size:200" json:"clientName"`
	ClientAddress string           `gorm:"size:500" json:"clientAddress"`
	Products      []OrderLineItem  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"products"`
	TotalPrice    decimal.Decimal  `gorm:"type:decimal(14,2)" json:"totalPrice"`
	Status        OrderStatus      `gorm:"size:20;index" json:"status"`
	OrderDate     time.Time        `gorm:"index" json:"orderDate"`
	PlacedByID    *uint            `json:"placedBy,omitempty"`
	StockRestored bool             `json:"-"`
	Deductions    []OrderDeduction `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// OrderLineItem - Snapshot of a product at the moment it was ordered.
// Never joined back to the live catalog.
type OrderLineItem struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	OrderID   uint            `gorm:"index" json:"-"`
	ProductID uint            `json:"productId"`
	Name      string          `gorm:"size:200" json:"name"`
	SKU       string          `gorm:"size:64" json:"sku"`
	Category  string          `gorm:"size:100" json:"category"`
	IsBundle  bool            `json:"isBundle"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"` // Snapshot of price at time of order
	LineTotal decimal.Decimal `gorm:"type:decimal(14,2)" json:"lineTotal"`
}

// OrderDeduction - How much stock an order took from one simple product.
// Kept so delete/cancel gives back exactly what placement removed.
type OrderDeduction struct {
	ID        uint `gorm:"primaryKey"`
	OrderID   uint `gorm:"index"`
	ProductID uint `gorm:"index"`
	Quantity  int
}
