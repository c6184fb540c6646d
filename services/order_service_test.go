package services

import (
	"net/http"
	"testing"
	"time"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func orderTestConfig() *config.Config {
	return &config.Config{
		MinQtyPerItem:    1,
		OrderExpiryHours: 24,
	}
}

func createOrderTestUser(t *testing.T, db *gorm.DB) *models.User {
	user := models.User{
		Auth0ID: "auth0|ordertest",
		Name:    "Order Tester",
		Email:   "ordertest@example.com",
		Role:    "customer",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return &user
}

func TestPlaceOrder_Success(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	user := createOrderTestUser(t, db)

	product := models.Product{Name: "Gigabyte B760M", Price: 19500, Stock: 8, IsActive: true}
	db.Create(&product)

	before := time.Now()
	order, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 2},
	}, testDelivery(), models.PaymentMethodCOD)

	assert.NoError(t, err)
	assert.NotNil(t, order)
	assert.Equal(t, 39000.0, order.TotalPrice)
	assert.Equal(t, models.OrderStatusPending, order.OrderStatus)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)

	// Expiry deadline honors the configured reservation lifetime.
	assert.WithinDuration(t, before.Add(24*time.Hour), order.ExpiresAt, time.Minute)

	var stored models.Product
	db.First(&stored, product.ID)
	assert.Equal(t, 2, stored.ReservedStock)
}

func TestPlaceOrder_MinimumQuantity(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	cfg.MinQtyPerItem = 2
	user := createOrderTestUser(t, db)

	product := models.Product{Name: "Thermal Paste", Price: 900, Stock: 50, IsActive: true}
	db.Create(&product)

	_, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)

	var oerr *OrderError
	assert.ErrorAs(t, err, &oerr)
	assert.Equal(t, "INVALID_QUANTITY", oerr.Code)
	assert.Equal(t, http.StatusBadRequest, oerr.Status)
}

func TestPlaceOrder_DuplicateIgnoresQuantities(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	user := createOrderTestUser(t, db)

	product := models.Product{Name: "Arctic P12 Fan", Price: 1500, Stock: 30, IsActive: true}
	db.Create(&product)

	_, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 2},
	}, testDelivery(), models.PaymentMethodCOD)
	assert.NoError(t, err)

	// Same product set with a different quantity is still a duplicate.
	_, err = PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 5},
	}, testDelivery(), models.PaymentMethodCOD)

	var oerr *OrderError
	assert.ErrorAs(t, err, &oerr)
	assert.Equal(t, "DUPLICATE_PENDING_ORDER", oerr.Code)
	assert.Equal(t, http.StatusConflict, oerr.Status)
}

func TestPlaceOrder_ProcessingOrderStillSuppressesResubmission(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	user := createOrderTestUser(t, db)

	product := models.Product{Name: "Keychron K8", Price: 9800, Stock: 10, IsActive: true}
	db.Create(&product)

	first, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)
	assert.NoError(t, err)

	// An admin picking the order up for processing does not end the wait
	// for payment, so the duplicate guard stays armed.
	db.Model(first).Update("order_status", models.OrderStatusProcessing)

	_, err = PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)

	var oerr *OrderError
	assert.ErrorAs(t, err, &oerr)
	assert.Equal(t, "DUPLICATE_PENDING_ORDER", oerr.Code)
}

func TestPlaceOrder_CancelledOrderDoesNotSuppressResubmission(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	user := createOrderTestUser(t, db)

	product := models.Product{Name: "HyperX Mouse", Price: 4500, Stock: 10, IsActive: true}
	db.Create(&product)

	first, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)
	assert.NoError(t, err)

	db.Model(first).Updates(map[string]interface{}{
		"order_status":   models.OrderStatusCancelled,
		"payment_status": models.PaymentStatusFailed,
	})
	ReleaseOrderReservations(db, first)

	second, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)
	assert.NoError(t, err)
	assert.NotNil(t, second)
}

func TestPlaceOrder_DifferentUsersNoInterference(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	user := createOrderTestUser(t, db)

	other := models.User{Auth0ID: "auth0|other", Name: "Other", Email: "other@example.com", Role: "customer"}
	db.Create(&other)

	product := models.Product{Name: "Logitech G Pro", Price: 13500, Stock: 10, IsActive: true}
	db.Create(&product)

	_, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)
	assert.NoError(t, err)

	// A different user ordering the same product is not a duplicate.
	_, err = PlaceOrder(db, cfg, &other, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)
	assert.NoError(t, err)
}

func TestPlaceOrder_SequentialItemsSeeEarlierReservations(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	user := createOrderTestUser(t, db)

	product := models.Product{Name: "Last Unit Cooler", Price: 5200, Stock: 3, IsActive: true}
	db.Create(&product)

	// Two lines for the same product; the second must see the first line's
	// reservation and fail, rolling back the whole order.
	_, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 2},
		{ProductID: product.ID, Quantity: 2},
	}, testDelivery(), models.PaymentMethodCOD)

	var oerr *OrderError
	assert.ErrorAs(t, err, &oerr)
	assert.Equal(t, "INSUFFICIENT_STOCK", oerr.Code)

	var stored models.Product
	db.First(&stored, product.ID)
	assert.Equal(t, 0, stored.ReservedStock)
}

func TestPlaceOrder_SendsConfirmationEmail(t *testing.T) {
	db := setupServiceTestDB(t)
	cfg := orderTestConfig()
	user := createOrderTestUser(t, db)

	mailer := NewMockMailer()
	mailer.SetAsMockForTesting()
	defer SetMailer(nil)

	product := models.Product{Name: "Ergo Chair", Price: 25000, Stock: 4, IsActive: true}
	db.Create(&product)

	_, err := PlaceOrder(db, cfg, user, []OrderLineInput{
		{ProductID: product.ID, Quantity: 1},
	}, testDelivery(), models.PaymentMethodCOD)
	assert.NoError(t, err)

	// Delivery is fire-and-forget; wait for the goroutine.
	assert.Eventually(t, func() bool {
		sent := mailer.Sent()
		return len(sent) == 1 && sent[0].To == "ordertest@example.com"
	}, 2*time.Second, 10*time.Millisecond)
}

func testDelivery() models.DeliveryInfo {
	return models.DeliveryInfo{
		Name:       "Order Tester",
		Phone:      "+977-9841000000",
		Address:    "Patan Dhoka",
		City:       "Lalitpur",
		PostalCode: "44700",
		Country:    "Nepal",
	}
}
