package services

import (
	"sync"
	"testing"
	"time"

	"github.com/everestmart/everestmart-api/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.ProductVariant{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func TestReserveProductStock(t *testing.T) {
	db := setupServiceTestDB(t)

	product := models.Product{Name: "Test SSD", Price: 9000, Stock: 5, IsActive: true}
	db.Create(&product)

	t.Run("reserves within stock", func(t *testing.T) {
		ok, err := ReserveProductStock(db, product.ID, 3)
		assert.NoError(t, err)
		assert.True(t, ok)

		var stored models.Product
		db.First(&stored, product.ID)
		assert.Equal(t, 3, stored.ReservedStock)
	})

	t.Run("refuses to oversell", func(t *testing.T) {
		ok, err := ReserveProductStock(db, product.ID, 3)
		assert.NoError(t, err)
		assert.False(t, ok)

		var stored models.Product
		db.First(&stored, product.ID)
		assert.Equal(t, 3, stored.ReservedStock)
	})

	t.Run("fills stock exactly", func(t *testing.T) {
		ok, err := ReserveProductStock(db, product.ID, 2)
		assert.NoError(t, err)
		assert.True(t, ok)

		var stored models.Product
		db.First(&stored, product.ID)
		assert.Equal(t, 5, stored.ReservedStock)
		assert.Equal(t, 0, stored.AvailableStock())
	})
}

func TestReleaseProductStock(t *testing.T) {
	db := setupServiceTestDB(t)

	product := models.Product{Name: "Test PSU", Price: 12000, Stock: 10, ReservedStock: 4, IsActive: true}
	db.Create(&product)

	t.Run("releases reserved units", func(t *testing.T) {
		ok, err := ReleaseProductStock(db, product.ID, 4)
		assert.NoError(t, err)
		assert.True(t, ok)

		var stored models.Product
		db.First(&stored, product.ID)
		assert.Equal(t, 0, stored.ReservedStock)
	})

	t.Run("refuses to underflow", func(t *testing.T) {
		ok, err := ReleaseProductStock(db, product.ID, 1)
		assert.NoError(t, err)
		assert.False(t, ok)

		var stored models.Product
		db.First(&stored, product.ID)
		assert.Equal(t, 0, stored.ReservedStock)
	})
}

func TestVariantStockIndependentOfProduct(t *testing.T) {
	db := setupServiceTestDB(t)

	product := models.Product{Name: "Test Monitor", Price: 40000, Stock: 10, IsActive: true}
	db.Create(&product)
	variant := models.ProductVariant{ProductID: product.ID, SKU: "M-144", Name: "144Hz", Price: 43000, Stock: 2, IsActive: true}
	db.Create(&variant)

	ok, err := ReserveVariantStock(db, variant.ID, 2)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, _ = ReserveVariantStock(db, variant.ID, 1)
	assert.False(t, ok)

	var storedProduct models.Product
	db.First(&storedProduct, product.ID)
	assert.Equal(t, 0, storedProduct.ReservedStock)

	ok, err = ReleaseVariantStock(db, variant.ID, 2)
	assert.NoError(t, err)
	assert.True(t, ok)
}

// Twenty goroutines race for five units; the conditional update must hand out
// exactly five reservations no matter the interleaving.
func TestReserveProductStock_ConcurrentNoOversell(t *testing.T) {
	db, err := gorm.Open(
		sqlite.Open("file:concurrent_reserve?mode=memory&cache=shared&_busy_timeout=10000"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serializes writers the way a server-side database would.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	product := models.Product{Name: "Contended GPU", Price: 100000, Stock: 5, IsActive: true}
	db.Create(&product)

	const workers = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ReserveProductStock(db, product.ID, 1)
			if err != nil {
				t.Errorf("ReserveProductStock failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)

	var stored models.Product
	db.First(&stored, product.ID)
	assert.Equal(t, 5, stored.ReservedStock)
	assert.LessOrEqual(t, stored.ReservedStock, stored.Stock)
}

func TestReleaseOrderReservations(t *testing.T) {
	db := setupServiceTestDB(t)

	product := models.Product{Name: "Test Case", Price: 8000, Stock: 6, ReservedStock: 3, IsActive: true}
	db.Create(&product)
	variant := models.ProductVariant{ProductID: product.ID, SKU: "C-W", Name: "White", Price: 8500, Stock: 4, ReservedStock: 2, IsActive: true}
	db.Create(&variant)

	order := models.Order{
		Items: []models.OrderItem{
			{ProductID: product.ID, Quantity: 3, Price: 8000},
			{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2, Price: 8500},
		},
	}

	err := ReleaseOrderReservations(db, &order)
	assert.NoError(t, err)

	var storedProduct models.Product
	db.First(&storedProduct, product.ID)
	assert.Equal(t, 0, storedProduct.ReservedStock)

	var storedVariant models.ProductVariant
	db.First(&storedVariant, variant.ID)
	assert.Equal(t, 0, storedVariant.ReservedStock)

	t.Run("second release reports underflow", func(t *testing.T) {
		err := ReleaseOrderReservations(db, &order)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "underflow")
	})
}

func TestConsumeOrderReservations(t *testing.T) {
	db := setupServiceTestDB(t)

	product := models.Product{Name: "Shipped Case", Price: 8000, Stock: 6, ReservedStock: 3, IsActive: true}
	db.Create(&product)
	variant := models.ProductVariant{ProductID: product.ID, SKU: "SC-B", Name: "Black", Price: 8500, Stock: 4, ReservedStock: 2, IsActive: true}
	db.Create(&variant)

	order := models.Order{
		Items: []models.OrderItem{
			{ProductID: product.ID, Quantity: 3, Price: 8000},
			{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2, Price: 8500},
		},
	}

	err := ConsumeOrderReservations(db, &order)
	assert.NoError(t, err)

	// Shipped units leave stock entirely instead of returning to the pool.
	var storedProduct models.Product
	db.First(&storedProduct, product.ID)
	assert.Equal(t, 3, storedProduct.Stock)
	assert.Equal(t, 0, storedProduct.ReservedStock)

	var storedVariant models.ProductVariant
	db.First(&storedVariant, variant.ID)
	assert.Equal(t, 2, storedVariant.Stock)
	assert.Equal(t, 0, storedVariant.ReservedStock)

	t.Run("second consume reports underflow", func(t *testing.T) {
		err := ConsumeOrderReservations(db, &order)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "underflow")
	})
}

func TestMarkReservationReleased_WinsOnce(t *testing.T) {
	db := setupServiceTestDB(t)

	order := models.Order{
		UserID:        1,
		TotalPrice:    1000,
		PaymentMethod: models.PaymentMethodCOD,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	db.Create(&order)

	won, err := MarkReservationReleased(db, order.ID)
	assert.NoError(t, err)
	assert.True(t, won, "first settlement should win the flip")

	won, err = MarkReservationReleased(db, order.ID)
	assert.NoError(t, err)
	assert.False(t, won, "second settlement must lose the flip")
}
