package services

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/models"
	"gorm.io/gorm"
)

// OrderLineInput is one candidate line item submitted at checkout. Price is
// advisory only: it is compared against the catalog for tamper detection and
// then discarded in favor of the authoritative price.
type OrderLineInput struct {
	ProductID uint     `json:"product" binding:"required"`
	VariantID *uint    `json:"variant,omitempty"`
	Quantity  int      `json:"quantity" binding:"required"`
	Price     *float64 `json:"price,omitempty"`
}

// OrderError is a typed placement failure carrying the HTTP status and error
// code the controller should surface.
type OrderError struct {
	Status  int
	Code    string
	Message string
}

func (e *OrderError) Error() string {
	return e.Message
}

var deliveryRequiredFields = []string{"name", "phone", "address", "city", "postalCode", "country"}

// PlaceOrder validates and prices the candidate line items against the live
// catalog, reserves stock and persists a new pending order for the user.
//
// The whole per-item pass runs inside one transaction: each reservation is an
// atomic conditional increment, so a failure on a later item rolls back every
// increment already made for earlier items, and two concurrent placements can
// never jointly oversell a product. Returns *OrderError for every validation
// or state-conflict failure.
func PlaceOrder(db *gorm.DB, cfg *config.Config, user *models.User, items []OrderLineInput, delivery models.DeliveryInfo, paymentMethod string) (*models.Order, error) {
	if len(items) == 0 {
		return nil, &OrderError{
			Status:  http.StatusBadRequest,
			Code:    "EMPTY_ORDER",
			Message: "Order must contain at least one item",
		}
	}

	if paymentMethod != models.PaymentMethodCOD && paymentMethod != models.PaymentMethodOnlineUpload {
		return nil, &OrderError{
			Status:  http.StatusBadRequest,
			Code:    "INVALID_PAYMENT_METHOD",
			Message: fmt.Sprintf("Payment method must be %q or %q", models.PaymentMethodCOD, models.PaymentMethodOnlineUpload),
		}
	}

	if missing := missingDeliveryFields(delivery); len(missing) > 0 {
		return nil, &OrderError{
			Status:  http.StatusBadRequest,
			Code:    "INCOMPLETE_DELIVERY_INFO",
			Message: "Missing delivery fields: " + strings.Join(missing, ", "),
		}
	}

	dup, err := hasDuplicatePendingOrder(db, user.ID, items)
	if err != nil {
		return nil, &OrderError{
			Status:  http.StatusInternalServerError,
			Code:    "DATABASE_ERROR",
			Message: "Failed to check existing orders",
		}
	}
	if dup {
		return nil, &OrderError{
			Status:  http.StatusConflict,
			Code:    "DUPLICATE_PENDING_ORDER",
			Message: "You already have a pending order for these products",
		}
	}

	var order *models.Order

	err = db.Transaction(func(tx *gorm.DB) error {
		var (
			orderItems []models.OrderItem
			totalPrice float64
		)

		for i, item := range items {
			if item.Quantity < cfg.MinQtyPerItem {
				return &OrderError{
					Status:  http.StatusBadRequest,
					Code:    "INVALID_QUANTITY",
					Message: fmt.Sprintf("Item %d: quantity must be at least %d", i+1, cfg.MinQtyPerItem),
				}
			}

			var product models.Product
			if err := tx.Preload("Variants").First(&product, item.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &OrderError{
						Status:  http.StatusNotFound,
						Code:    "PRODUCT_UNAVAILABLE",
						Message: fmt.Sprintf("Product %d is not available", item.ProductID),
					}
				}
				return err
			}
			if !product.IsActive {
				return &OrderError{
					Status:  http.StatusNotFound,
					Code:    "PRODUCT_UNAVAILABLE",
					Message: fmt.Sprintf("Product %q is not available", product.Name),
				}
			}

			// Resolve the authoritative unit price and the stock row the
			// line reserves against.
			unitPrice := product.Price
			available := product.AvailableStock()
			var variant *models.ProductVariant
			if item.VariantID != nil {
				for vi := range product.Variants {
					if product.Variants[vi].ID == *item.VariantID {
						variant = &product.Variants[vi]
						break
					}
				}
				if variant == nil || !variant.IsActive {
					return &OrderError{
						Status:  http.StatusBadRequest,
						Code:    "INVALID_VARIANT",
						Message: fmt.Sprintf("Product %q has no such active variant", product.Name),
					}
				}
				unitPrice = variant.Price
				available = variant.AvailableStock()
			}

			if available < item.Quantity {
				return &OrderError{
					Status:  http.StatusBadRequest,
					Code:    "INSUFFICIENT_STOCK",
					Message: fmt.Sprintf("Not enough stock for %q: %d left in stock", product.Name, available),
				}
			}

			// The client-submitted price never survives; a mismatch is
			// recorded as a tamper warning only.
			if item.Price != nil && *item.Price != unitPrice {
				log.Printf("Price tamper warning: user %d submitted %.2f for product %d, authoritative price is %.2f",
					user.ID, *item.Price, product.ID, unitPrice)
			}

			// Atomic conditional increment is the oversell authority; the
			// availability check above only produces the friendly message.
			var (
				reserved bool
				rerr     error
			)
			if variant != nil {
				reserved, rerr = ReserveVariantStock(tx, variant.ID, item.Quantity)
			} else {
				reserved, rerr = ReserveProductStock(tx, product.ID, item.Quantity)
			}
			if rerr != nil {
				return rerr
			}
			if !reserved {
				return &OrderError{
					Status:  http.StatusBadRequest,
					Code:    "INSUFFICIENT_STOCK",
					Message: fmt.Sprintf("Not enough stock for %q: %d left in stock", product.Name, available),
				}
			}

			totalPrice += unitPrice * float64(item.Quantity)
			orderItems = append(orderItems, models.OrderItem{
				ProductID: product.ID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				Price:     unitPrice,
			})
		}

		order = &models.Order{
			UserID:        user.ID,
			Items:         orderItems,
			TotalPrice:    totalPrice,
			PaymentMethod: paymentMethod,
			PaymentStatus: models.PaymentStatusPending,
			OrderStatus:   models.OrderStatusPending,
			Delivery:      delivery,
			ExpiresAt:     time.Now().Add(time.Duration(cfg.OrderExpiryHours) * time.Hour),
		}

		return tx.Create(order).Error
	})

	if err != nil {
		var oerr *OrderError
		if errors.As(err, &oerr) {
			return nil, oerr
		}
		log.Printf("Order placement failed for user %d: %v", user.ID, err)
		return nil, &OrderError{
			Status:  http.StatusInternalServerError,
			Code:    "DATABASE_ERROR",
			Message: "Failed to create order",
		}
	}

	// Populate catalog references for immediate UI display.
	if err := db.Preload("Items.Product").Preload("Items.Variant").Preload("User").First(order, order.ID).Error; err != nil {
		log.Printf("Failed to reload order %d: %v", order.ID, err)
	}

	// Confirmation email is fire-and-forget: a delivery failure is logged
	// and never rolls back the order.
	if mailer := GetMailer(); mailer != nil {
		go func(o models.Order, email string, hours int) {
			if err := mailer.SendOrderConfirmation(email, &o, hours); err != nil {
				log.Printf("Failed to send confirmation email for order %d: %v", o.ID, err)
			}
		}(*order, order.User.Email, cfg.OrderExpiryHours)
	}

	return order, nil
}

// missingDeliveryFields returns the names of required delivery fields that
// are empty or blank.
func missingDeliveryFields(d models.DeliveryInfo) []string {
	values := []string{d.Name, d.Phone, d.Address, d.City, d.PostalCode, d.Country}

	var missing []string
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, deliveryRequiredFields[i])
		}
	}
	return missing
}

// hasDuplicatePendingOrder reports whether the user already has an order
// awaiting payment that references the exact same set of product ids.
// Variants and quantities are deliberately ignored: the guard exists to
// absorb double-submits from slow networks and double-clicks.
func hasDuplicatePendingOrder(db *gorm.DB, userID uint, items []OrderLineInput) (bool, error) {
	submitted := make(map[uint]struct{}, len(items))
	for _, it := range items {
		submitted[it.ProductID] = struct{}{}
	}

	// Keyed on payment status alone: an order an admin already moved to
	// processing still suppresses a double-submit while its payment is
	// outstanding. Every cancel path flips payment_status off pending, so
	// cancelled orders fall out of the guard.
	var pending []models.Order
	if err := db.Preload("Items").
		Where("user_id = ? AND payment_status = ?",
			userID, models.PaymentStatusPending).
		Find(&pending).Error; err != nil {
		return false, err
	}

	for i := range pending {
		existing := make(map[uint]struct{}, len(pending[i].Items))
		for _, it := range pending[i].Items {
			existing[it.ProductID] = struct{}{}
		}
		if len(existing) != len(submitted) {
			continue
		}
		match := true
		for id := range submitted {
			if _, ok := existing[id]; !ok {
				match = false
				break
			}
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
