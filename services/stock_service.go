package services

import (
	"fmt"

	"github.com/everestmart/everestmart-api/models"
	"gorm.io/gorm"
)

// Stock reservation primitives. reserved_stock on products and variants is
// contended by concurrent order placements, user cancel/delete and the expiry
// sweeper, so every mutation goes through the same conditional UPDATE: the
// row changes only if the invariant reserved_stock <= stock still holds after
// the change. Callers check the returned bool (rows affected) instead of
// re-reading, which closes the check-then-act race between concurrent
// placements.

// ReserveProductStock atomically increments a product's reserved stock by qty
// if enough unreserved units remain. Returns false when the reservation would
// oversell.
func ReserveProductStock(db *gorm.DB, productID uint, qty int) (bool, error) {
	tx := db.Exec(
		"UPDATE products SET reserved_stock = reserved_stock + ? WHERE id = ? AND reserved_stock + ? <= stock",
		qty, productID, qty,
	)
	return tx.RowsAffected > 0, tx.Error
}

// ReleaseProductStock atomically decrements a product's reserved stock by
// qty. Returns false when the product holds fewer reserved units than qty,
// which would drive reserved_stock negative.
func ReleaseProductStock(db *gorm.DB, productID uint, qty int) (bool, error) {
	tx := db.Exec(
		"UPDATE products SET reserved_stock = reserved_stock - ? WHERE id = ? AND reserved_stock >= ?",
		qty, productID, qty,
	)
	return tx.RowsAffected > 0, tx.Error
}

// ReserveVariantStock is ReserveProductStock for a variant SKU. A line that
// names a variant reserves against the variant row, not the parent product.
func ReserveVariantStock(db *gorm.DB, variantID uint, qty int) (bool, error) {
	tx := db.Exec(
		"UPDATE product_variants SET reserved_stock = reserved_stock + ? WHERE id = ? AND reserved_stock + ? <= stock",
		qty, variantID, qty,
	)
	return tx.RowsAffected > 0, tx.Error
}

// ReleaseVariantStock is ReleaseProductStock for a variant SKU.
func ReleaseVariantStock(db *gorm.DB, variantID uint, qty int) (bool, error) {
	tx := db.Exec(
		"UPDATE product_variants SET reserved_stock = reserved_stock - ? WHERE id = ? AND reserved_stock >= ?",
		qty, variantID, qty,
	)
	return tx.RowsAffected > 0, tx.Error
}

// ConsumeProductStock atomically converts qty reserved units of a product
// into shipped units: both stock and reserved_stock drop by qty. Returns
// false when fewer than qty units are reserved.
func ConsumeProductStock(db *gorm.DB, productID uint, qty int) (bool, error) {
	tx := db.Exec(
		"UPDATE products SET stock = stock - ?, reserved_stock = reserved_stock - ? WHERE id = ? AND reserved_stock >= ?",
		qty, qty, productID, qty,
	)
	return tx.RowsAffected > 0, tx.Error
}

// ConsumeVariantStock is ConsumeProductStock for a variant SKU.
func ConsumeVariantStock(db *gorm.DB, variantID uint, qty int) (bool, error) {
	tx := db.Exec(
		"UPDATE product_variants SET stock = stock - ?, reserved_stock = reserved_stock - ? WHERE id = ? AND reserved_stock >= ?",
		qty, qty, variantID, qty,
	)
	return tx.RowsAffected > 0, tx.Error
}

// MarkReservationReleased flips the order's reservation_released flag and
// reports whether this caller won the flip. Cancel, delete, delivery and
// expiry all settle the reservation through this gate, inside the same
// transaction as the release itself, so an order that bounced through
// several statuses can never have its units given back twice.
func MarkReservationReleased(db *gorm.DB, orderID uint) (bool, error) {
	tx := db.Model(&models.Order{}).
		Where("id = ? AND reservation_released = ?", orderID, false).
		Update("reservation_released", true)
	return tx.RowsAffected > 0, tx.Error
}

// ReleaseOrderReservations gives back every unit reserved by the order's
// line items. Used by cancel, delete and expiry; callers run it inside the
// same transaction that flips the order status so a crash cannot release
// twice or not at all.
func ReleaseOrderReservations(db *gorm.DB, order *models.Order) error {
	for i := range order.Items {
		item := &order.Items[i]

		var (
			ok  bool
			err error
		)
		if item.VariantID != nil {
			ok, err = ReleaseVariantStock(db, *item.VariantID, item.Quantity)
		} else {
			ok, err = ReleaseProductStock(db, item.ProductID, item.Quantity)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reservation underflow releasing %d units of product %d for order %d",
				item.Quantity, item.ProductID, order.ID)
		}
	}
	return nil
}

// ConsumeOrderReservations turns every unit reserved by a delivered order's
// line items into a real stock decrement, so fulfilled orders stop pinning
// inventory without ever handing the units back to the catalog.
func ConsumeOrderReservations(db *gorm.DB, order *models.Order) error {
	for i := range order.Items {
		item := &order.Items[i]

		var (
			ok  bool
			err error
		)
		if item.VariantID != nil {
			ok, err = ConsumeVariantStock(db, *item.VariantID, item.Quantity)
		} else {
			ok, err = ConsumeProductStock(db, item.ProductID, item.Quantity)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reservation underflow consuming %d units of product %d for order %d",
				item.Quantity, item.ProductID, order.ID)
		}
	}
	return nil
}
