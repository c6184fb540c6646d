package models

import (
	"time"

	"gorm.io/gorm"
)

// Build request statuses. User edits are allowed only while the request is in
// a pre-review status; every later transition is admin-driven, except
// checkout which is performed by the owner on an approved build.
const (
	BuildStatusDraft      = "draft"
	BuildStatusSubmitted  = "submitted"
	BuildStatusReviewed   = "reviewed"
	BuildStatusApproved   = "approved"
	BuildStatusRejected   = "rejected"
	BuildStatusCheckedOut = "checked_out"
)

// Compatibility check outcomes, an informational axis set by admins.
const (
	CompatibilityPending = "pending"
	CompatibilityPassed  = "passed"
	CompatibilityFailed  = "failed"
)

// BuildRequest is a user-submitted PC configuration that must be approved by
// an admin before it can be checked out as an order.
type BuildRequest struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UserID              uint           `gorm:"not null;index" json:"user_id"`
	User                User           `gorm:"foreignKey:UserID" json:"user"`
	Parts               []BuildPart    `gorm:"foreignKey:BuildRequestID" json:"parts"`
	Budget              float64        `gorm:"not null;check:budget > 0" json:"budget"`
	Subtotal            float64        `gorm:"not null" json:"subtotal"`
	GrandTotal          float64        `gorm:"not null" json:"grand_total"`
	Status              string         `gorm:"not null;default:'draft'" json:"status"`
	CompatibilityStatus string         `gorm:"not null;default:'pending'" json:"compatibility_status"`
	AdminNotes          *string        `gorm:"type:text" json:"admin_notes,omitempty"`
	OrderID             *uint          `gorm:"index" json:"order_id,omitempty"` // set exactly once at checkout
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the BuildRequest model
func (BuildRequest) TableName() string {
	return "build_requests"
}

// UserEditable reports whether the owning user may still modify or delete the
// request. Once an admin has acted the build is locked for the user.
func (b *BuildRequest) UserEditable() bool {
	return b.Status == BuildStatusDraft || b.Status == BuildStatusSubmitted
}

// BuildPart is one component line of a build request. Name and Price are
// copied from the catalog at submission time so the quote survives later
// catalog edits.
type BuildPart struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	BuildRequestID uint           `gorm:"not null;index" json:"build_request_id"`
	ProductID      uint           `gorm:"not null;index" json:"product_id"`
	Product        Product        `gorm:"foreignKey:ProductID" json:"-"`
	Type           string         `gorm:"not null" json:"type"` // cpu, gpu, ram, storage, ...
	Name           string         `gorm:"not null" json:"name"`
	Price          float64        `gorm:"not null" json:"price"`
	Quantity       int            `gorm:"not null;check:quantity > 0" json:"quantity"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the BuildPart model
func (BuildPart) TableName() string {
	return "build_parts"
}
