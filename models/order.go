package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment methods accepted at checkout.
const (
	PaymentMethodCOD          = "COD"
	PaymentMethodOnlineUpload = "OnlineUpload"
)

// Payment statuses.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSubmitted = "submitted"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
)

// Order statuses. "pending" is the only status from which the owning user may
// cancel or delete the order.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// DeliveryInfo is the shipping destination captured at checkout.
type DeliveryInfo struct {
	Name         string `gorm:"not null" json:"name"`
	Phone        string `gorm:"not null" json:"phone"`
	Address      string `gorm:"not null" json:"address"`
	City         string `gorm:"not null" json:"city"`
	PostalCode   string `gorm:"not null" json:"postal_code"`
	Country      string `gorm:"not null" json:"country"`
	Instructions string `json:"instructions,omitempty"`
}

// Order is a placed order with server-computed prices. Stock reserved at
// creation must be released when the order is cancelled, deleted or expires
// past ExpiresAt.
type Order struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UserID              uint           `gorm:"not null;index" json:"user_id"`
	User                User           `gorm:"foreignKey:UserID" json:"user"`
	Items               []OrderItem    `gorm:"foreignKey:OrderID" json:"order_items"`
	TotalPrice          float64        `gorm:"not null" json:"total_price"`
	PaymentMethod       string         `gorm:"not null" json:"payment_method"`
	PaymentStatus       string         `gorm:"not null;default:'pending'" json:"payment_status"`
	OrderStatus         string         `gorm:"not null;default:'pending'" json:"order_status"`
	ReservationReleased bool           `gorm:"not null;default:false" json:"-"` // set once the reserved units were given back or consumed
	Delivery            DeliveryInfo   `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery_info"`
	PaymentProofKey     *string        `json:"payment_proof_key,omitempty"`          // S3 key of the uploaded payment slip
	PaymentProofURL     *string        `gorm:"-" json:"payment_proof_url,omitempty"` // computed, presigned URL
	ExpiresAt           time.Time      `gorm:"not null;index" json:"expires_at"`     // reservation deadline
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// OrderItem is one line of an order. Price is always the authoritative unit
// price resolved from the catalog at order-creation time, never the value
// submitted by the client.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	ProductID uint            `gorm:"not null;index" json:"product_id"`
	Product   Product         `gorm:"foreignKey:ProductID" json:"product"`
	VariantID *uint           `gorm:"index" json:"variant_id,omitempty"`
	Variant   *ProductVariant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
	Quantity  int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	Price     float64         `gorm:"not null" json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}
