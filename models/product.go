package models

import (
	"time"

	"gorm.io/gorm"
)

// Product represents a catalog product. Stock is the total number of units
// owned; ReservedStock is the portion tentatively allocated to pending
// orders. The invariant reserved_stock <= stock is enforced by the
// conditional updates in services.ReserveProductStock.
type Product struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	Name          string           `gorm:"not null" json:"name"`
	Description   string           `gorm:"type:text" json:"description"`
	Price         float64          `gorm:"not null;check:price >= 0" json:"price"`
	Stock         int              `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	ReservedStock int              `gorm:"not null;default:0" json:"reserved_stock"`
	IsActive      bool             `gorm:"not null;default:true" json:"is_active"`
	Variants      []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// AvailableStock is the number of units not yet reserved by pending orders.
func (p *Product) AvailableStock() int {
	return p.Stock - p.ReservedStock
}

// ProductVariant is a sellable SKU of a product with its own price and stock.
type ProductVariant struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ProductID     uint           `gorm:"not null;index" json:"product_id"`
	SKU           string         `gorm:"uniqueIndex;not null" json:"sku"`
	Name          string         `gorm:"not null" json:"name"`
	Price         float64        `gorm:"not null;check:price >= 0" json:"price"`
	Stock         int            `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	ReservedStock int            `gorm:"not null;default:0" json:"reserved_stock"`
	IsActive      bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the ProductVariant model
func (ProductVariant) TableName() string {
	return "product_variants"
}

// AvailableStock is the number of variant units not yet reserved.
func (v *ProductVariant) AvailableStock() int {
	return v.Stock - v.ReservedStock
}
