package models

import (
	"time"

	"gorm.io/gorm"
)

// CartItem is one line in a user's pre-checkout basket. A nil VariantID means
// the line refers to the base product; it never matches a variant line of the
// same product.
type CartItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	ProductID uint            `gorm:"not null;index" json:"product_id"`
	Product   Product         `gorm:"foreignKey:ProductID" json:"product"`
	VariantID *uint           `gorm:"index" json:"variant_id,omitempty"`
	Variant   *ProductVariant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
	Quantity  int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	AddedAt   time.Time       `gorm:"not null" json:"added_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the CartItem model
func (CartItem) TableName() string {
	return "cart_items"
}
