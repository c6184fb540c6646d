package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/models"
	"github.com/everestmart/everestmart-api/services"
	"github.com/everestmart/everestmart-api/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateOrderRequest represents the request body for placing an order
type CreateOrderRequest struct {
	OrderItems    []services.OrderLineInput `json:"order_items"`
	DeliveryInfo  models.DeliveryInfo       `json:"delivery_info"`
	PaymentMethod string                    `json:"payment_method"`
}

// UpdateOrderStatusRequest represents the admin request body for moving an
// order through its lifecycle
type UpdateOrderStatusRequest struct {
	OrderStatus   *string `json:"order_status"`
	PaymentStatus *string `json:"payment_status"`
}

var validOrderStatuses = map[string]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
	models.OrderStatusCancelled:  true,
}

var validPaymentStatuses = map[string]bool{
	models.PaymentStatusPending:   true,
	models.PaymentStatusSubmitted: true,
	models.PaymentStatusPaid:      true,
	models.PaymentStatusFailed:    true,
}

// CreateOrder handles POST /api/v1/orders - places a new order from the
// submitted line items
func CreateOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	order, err := services.PlaceOrder(config.GetDB(), config.GetConfig(), user, req.OrderItems, req.DeliveryInfo, req.PaymentMethod)
	if err != nil {
		var oerr *services.OrderError
		if errors.As(err, &oerr) {
			c.JSON(oerr.Status, gin.H{
				"success": false,
				"error": gin.H{
					"code":    oerr.Code,
					"message": oerr.Message,
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create order",
			},
		})
		return
	}

	clearOrderedCartLines(config.GetDB(), user.ID, order)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order placed successfully",
		"data":    order,
	})
}

// clearOrderedCartLines drops the cart lines covered by a freshly placed
// order. Direct checkouts simply have no matching lines.
func clearOrderedCartLines(db *gorm.DB, userID uint, order *models.Order) {
	for _, item := range order.Items {
		query := db.Where("user_id = ? AND product_id = ?", userID, item.ProductID)
		if item.VariantID != nil {
			query = query.Where("variant_id = ?", *item.VariantID)
		} else {
			query = query.Where("variant_id IS NULL")
		}
		if err := query.Delete(&models.CartItem{}).Error; err != nil {
			log.Printf("Failed to clear cart line for user %d product %d: %v", userID, item.ProductID, err)
		}
	}
}

// ListOrders handles GET /api/v1/orders - own orders for customers, all
// orders for admins. Due reservations are expired lazily before reading so
// a long-idle deployment never serves stale pending orders.
func ListOrders(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	if _, err := services.ExpireDueOrders(db); err != nil {
		log.Printf("Lazy order expiry failed: %v", err)
	}

	query := db.Preload("Items.Product").Preload("Items.Variant").Preload("User").Order("created_at DESC")
	if !user.IsAdmin() {
		query = query.Where("user_id = ?", user.ID)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch orders",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// GetOrder handles GET /api/v1/orders/:id - order detail for the owner or an
// admin, with a short-lived download URL for the payment slip when one exists
func GetOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	if _, err := services.ExpireDueOrders(db); err != nil {
		log.Printf("Lazy order expiry failed: %v", err)
	}

	order, ok := fetchOrder(c, db, user)
	if !ok {
		return
	}

	if order.PaymentProofKey != nil {
		if s3 := services.GetS3Service(); s3 != nil {
			url, err := s3.GetPresignedURL(*order.PaymentProofKey)
			if err != nil {
				log.Printf("Failed to presign payment proof for order %d: %v", order.ID, err)
			} else {
				order.PaymentProofURL = &url
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// CancelOrder handles POST /api/v1/orders/:id/cancel - the owner voids a
// still-pending order and its stock reservations come back.
func CancelOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	order, ok := fetchOrder(c, db, user)
	if !ok {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		// Guarded update so a concurrent cancel, expiry sweep or admin
		// transition can never flip the same order twice.
		result := tx.Model(&models.Order{}).
			Where("id = ? AND order_status = ?", order.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"order_status":   models.OrderStatusCancelled,
				"payment_status": models.PaymentStatusFailed,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &services.OrderError{
				Status:  http.StatusConflict,
				Code:    "ORDER_NOT_CANCELLABLE",
				Message: "Only pending orders can be cancelled",
			}
		}
		released, err := services.MarkReservationReleased(tx, order.ID)
		if err != nil {
			return err
		}
		if !released {
			return nil
		}
		return services.ReleaseOrderReservations(tx, order)
	})
	if err != nil {
		respondOrderMutationError(c, err, "Failed to cancel order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order cancelled",
	})
}

// DeleteOrder handles DELETE /api/v1/orders/:id - the owner removes a
// still-pending order entirely, releasing its reservations
func DeleteOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	order, ok := fetchOrder(c, db, user)
	if !ok {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		// Settle the reservation before the soft delete hides the row from
		// the default query scope.
		released, err := services.MarkReservationReleased(tx, order.ID)
		if err != nil {
			return err
		}

		result := tx.Where("id = ? AND order_status = ?", order.ID, models.OrderStatusPending).
			Delete(&models.Order{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &services.OrderError{
				Status:  http.StatusConflict,
				Code:    "ORDER_NOT_DELETABLE",
				Message: "Only pending orders can be deleted",
			}
		}
		if !released {
			return nil
		}
		return services.ReleaseOrderReservations(tx, order)
	})
	if err != nil {
		respondOrderMutationError(c, err, "Failed to delete order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order deleted",
	})
}

// UpdateOrderStatus handles PUT /api/v1/orders/:id/status - admin-only
// lifecycle transitions. Cancelling a pending order through here releases
// its reservations the same way an owner cancel does.
func UpdateOrderStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if !requireAdmin(c, user) {
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.OrderStatus == nil && req.PaymentStatus == nil) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Provide order_status and/or payment_status",
			},
		})
		return
	}
	if req.OrderStatus != nil && !validOrderStatuses[*req.OrderStatus] {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ORDER_STATUS",
				"message": "Unknown order status: " + *req.OrderStatus,
			},
		})
		return
	}
	if req.PaymentStatus != nil && !validPaymentStatuses[*req.PaymentStatus] {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_PAYMENT_STATUS",
				"message": "Unknown payment status: " + *req.PaymentStatus,
			},
		})
		return
	}

	db := config.GetDB()
	order, ok := fetchOrder(c, db, user)
	if !ok {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if req.OrderStatus != nil {
			updates["order_status"] = *req.OrderStatus
		}
		if req.PaymentStatus != nil {
			updates["payment_status"] = *req.PaymentStatus
		}

		// Cancellation releases the reserved units no matter how far the
		// order had progressed; delivery consumes them into a real stock
		// decrement. The reservation_released gate makes either settlement
		// happen at most once per order.
		cancelling := req.OrderStatus != nil && *req.OrderStatus == models.OrderStatusCancelled
		delivering := req.OrderStatus != nil && *req.OrderStatus == models.OrderStatusDelivered
		if cancelling && req.PaymentStatus == nil &&
			order.PaymentStatus == models.PaymentStatusPending {
			updates["payment_status"] = models.PaymentStatusFailed
		}

		result := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}

		if cancelling || delivering {
			released, err := services.MarkReservationReleased(tx, order.ID)
			if err != nil {
				return err
			}
			if !released {
				return nil
			}
			if delivering {
				return services.ConsumeOrderReservations(tx, order)
			}
			return services.ReleaseOrderReservations(tx, order)
		}
		return nil
	})
	if err != nil {
		respondOrderMutationError(c, err, "Failed to update order status")
		return
	}

	var updated models.Order
	if err := db.Preload("Items.Product").Preload("Items.Variant").Preload("User").First(&updated, order.ID).Error; err != nil {
		log.Printf("Failed to reload order %d: %v", order.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order status updated",
		"data":    updated,
	})
}

// UploadPaymentProof handles POST /api/v1/orders/:id/payment-proof - the
// owner of an OnlineUpload order attaches a payment slip image. Re-uploading
// replaces the previous slip.
func UploadPaymentProof(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	order, ok := fetchOrder(c, db, user)
	if !ok {
		return
	}

	if order.PaymentMethod != models.PaymentMethodOnlineUpload {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_PAYMENT_STATE",
				"message": "Payment proof can only be uploaded for online payment orders",
			},
		})
		return
	}
	if order.OrderStatus != models.OrderStatusPending {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_PAYMENT_STATE",
				"message": "Payment proof can only be uploaded while the order is pending",
			},
		})
		return
	}

	fileHeader, err := c.FormFile("proof")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "A proof file is required",
			},
		})
		return
	}
	if err := utils.ValidateProofFile(fileHeader); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE",
				"message": err.Error(),
			},
		})
		return
	}

	s3 := services.GetS3Service()
	if s3 == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "File storage is not configured",
			},
		})
		return
	}

	key, err := s3.UploadPaymentProof(fileHeader, order.ID)
	if err != nil {
		log.Printf("Payment proof upload failed for order %d: %v", order.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": "Failed to store payment proof",
			},
		})
		return
	}

	oldKey := order.PaymentProofKey
	if err := db.Model(order).Updates(map[string]interface{}{
		"payment_proof_key": key,
		"payment_status":    models.PaymentStatusSubmitted,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to record payment proof",
			},
		})
		return
	}

	if oldKey != nil && *oldKey != key {
		if err := s3.DeleteFile(*oldKey); err != nil {
			log.Printf("Failed to delete replaced payment proof %s: %v", *oldKey, err)
		}
	}

	url, err := s3.GetPresignedURL(key)
	if err != nil {
		log.Printf("Failed to presign payment proof for order %d: %v", order.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment proof uploaded",
		"data": gin.H{
			"payment_proof_key": key,
			"payment_proof_url": url,
			"payment_status":    models.PaymentStatusSubmitted,
		},
	})
}

// fetchOrder loads the order in the :id path param with its items and
// enforces owner-or-admin access. On failure it writes the error response
// and returns false.
func fetchOrder(c *gin.Context, db *gorm.DB, user *models.User) (*models.Order, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid order ID",
			},
		})
		return nil, false
	}

	var order models.Order
	if err := db.Preload("Items.Product").Preload("Items.Variant").Preload("User").First(&order, uint(id)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return nil, false
	}

	if order.UserID != user.ID && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have access to this order",
			},
		})
		return nil, false
	}
	return &order, true
}

// respondOrderMutationError maps a typed placement/lifecycle error onto the
// response, falling back to a 500 for anything else.
func respondOrderMutationError(c *gin.Context, err error, fallback string) {
	var oerr *services.OrderError
	if errors.As(err, &oerr) {
		c.JSON(oerr.Status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    oerr.Code,
				"message": oerr.Message,
			},
		})
		return
	}
	log.Printf("%s: %v", fallback, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "DATABASE_ERROR",
			"message": fallback,
		},
	})
}
