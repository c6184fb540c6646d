package services

import (
	"context"
	"log"
	"time"

	"github.com/everestmart/everestmart-api/models"
	"gorm.io/gorm"
)

// Reservation expiry. Without it, reserved stock of abandoned orders leaks
// and inventory becomes permanently unavailable. ExpireDueOrders is invoked
// lazily from order read paths and periodically from the sweeper below; both
// release reservations through the same conditional primitive the placement
// engine uses.

// ExpireDueOrders cancels every order still pending past its expiry deadline
// and releases its reserved stock. Each order is handled in its own
// transaction so one bad row cannot block the rest. Returns the number of
// orders expired.
func ExpireDueOrders(db *gorm.DB) (int, error) {
	var due []models.Order
	if err := db.Preload("Items").
		Where("order_status = ? AND expires_at < ?", models.OrderStatusPending, time.Now()).
		Find(&due).Error; err != nil {
		return 0, err
	}

	expired := 0
	for i := range due {
		order := &due[i]

		won := false
		err := db.Transaction(func(tx *gorm.DB) error {
			// Re-check under the transaction; a concurrent cancel may have
			// released the reservation already.
			res := tx.Model(&models.Order{}).
				Where("id = ? AND order_status = ?", order.ID, models.OrderStatusPending).
				Updates(map[string]interface{}{
					"order_status":   models.OrderStatusCancelled,
					"payment_status": models.PaymentStatusFailed,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			won = true

			released, err := MarkReservationReleased(tx, order.ID)
			if err != nil {
				return err
			}
			if !released {
				return nil
			}
			return ReleaseOrderReservations(tx, order)
		})
		if err != nil {
			log.Printf("Failed to expire order %d: %v", order.ID, err)
			continue
		}
		if won {
			expired++
		}
	}

	if expired > 0 {
		log.Printf("Expired %d stale pending orders", expired)
	}
	return expired, nil
}

// ExpirySweeper periodically expires stale pending orders in the background.
type ExpirySweeper struct {
	db       *gorm.DB
	interval time.Duration
	stopCh   chan struct{}
}

// NewExpirySweeper creates a sweeper running at the given interval.
func NewExpirySweeper(db *gorm.DB, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. It runs one sweep immediately, then ticks
// until Stop is called or the context is cancelled.
func (s *ExpirySweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		if _, err := ExpireDueOrders(s.db); err != nil {
			log.Printf("Initial expiry sweep failed: %v", err)
		}

		for {
			select {
			case <-ticker.C:
				if _, err := ExpireDueOrders(s.db); err != nil {
					log.Printf("Expiry sweep failed: %v", err)
				}
			case <-s.stopCh:
				log.Println("Expiry sweeper stopped")
				return
			case <-ctx.Done():
				log.Println("Expiry sweeper cancelled")
				return
			}
		}
	}()
}

// Stop stops the sweep loop.
func (s *ExpirySweeper) Stop() {
	close(s.stopCh)
}
