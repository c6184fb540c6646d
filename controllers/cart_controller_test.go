package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/models"
	"github.com/stretchr/testify/assert"
)

func addToCart(t *testing.T, router http.Handler, payload AddCartItemRequest) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAddCartItem(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	createTestUser(t, db, "auth0|shopper", "customer")
	product := createTestProduct(t, db, "Samsung 990 Pro 1TB", 16500, 10)

	router := setupTestRouter()
	router.POST("/cart/items", mockAuthMiddleware("auth0|shopper", "customer", "token"), AddCartItem)

	t.Run("creates a new line", func(t *testing.T) {
		w := addToCart(t, router, AddCartItemRequest{ProductID: product.ID, Quantity: 2})

		assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.True(t, response["success"].(bool))
		data := response["data"].([]interface{})
		assert.Len(t, data, 1)
		line := data[0].(map[string]interface{})
		assert.Equal(t, float64(2), line["quantity"])
		assert.Equal(t, float64(8), line["remaining_stock"])
	})

	t.Run("increments the existing line", func(t *testing.T) {
		w := addToCart(t, router, AddCartItemRequest{ProductID: product.ID, Quantity: 3})

		assert.Equal(t, http.StatusOK, w.Code)

		var count int64
		db.Model(&models.CartItem{}).Count(&count)
		assert.Equal(t, int64(1), count)

		var line models.CartItem
		db.First(&line)
		assert.Equal(t, 5, line.Quantity)
	})

	t.Run("rejects unknown product", func(t *testing.T) {
		w := addToCart(t, router, AddCartItemRequest{ProductID: 99999, Quantity: 1})

		assert.Equal(t, http.StatusNotFound, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		errorData := response["error"].(map[string]interface{})
		assert.Equal(t, "PRODUCT_UNAVAILABLE", errorData["code"])
	})
}

func TestAddCartItem_StockCeiling(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	user := createTestUser(t, db, "auth0|ceiling", "customer")
	product := createTestProduct(t, db, "Noctua NH-D15", 14000, 2)

	db.Create(&models.CartItem{UserID: user.ID, ProductID: product.ID, Quantity: 2})

	router := setupTestRouter()
	router.POST("/cart/items", mockAuthMiddleware("auth0|ceiling", "customer", "token"), AddCartItem)

	w := addToCart(t, router, AddCartItemRequest{ProductID: product.ID, Quantity: 1})

	assert.Equal(t, http.StatusConflict, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	errorData := response["error"].(map[string]interface{})
	assert.Equal(t, "STOCK_EXCEEDED", errorData["code"])
	assert.Contains(t, errorData["message"], "0 remaining")
}

func TestAddCartItem_VariantLines(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	createTestUser(t, db, "auth0|variants", "customer")
	product := createTestProduct(t, db, "LG UltraGear 27", 52000, 4)
	variant := models.ProductVariant{
		ProductID: product.ID,
		SKU:       "LG27-165",
		Name:      "165Hz",
		Price:     52000,
		Stock:     3,
		IsActive:  true,
	}
	db.Create(&variant)

	router := setupTestRouter()
	router.POST("/cart/items", mockAuthMiddleware("auth0|variants", "customer", "token"), AddCartItem)

	// Base-product line and variant line are distinct.
	w := addToCart(t, router, AddCartItemRequest{ProductID: product.ID, Quantity: 1})
	assert.Equal(t, http.StatusOK, w.Code)

	w = addToCart(t, router, AddCartItemRequest{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2})
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.CartItem{}).Count(&count)
	assert.Equal(t, int64(2), count)

	t.Run("variant ceiling uses variant stock", func(t *testing.T) {
		w := addToCart(t, router, AddCartItemRequest{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2})
		assert.Equal(t, http.StatusConflict, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		errorData := response["error"].(map[string]interface{})
		assert.Equal(t, "STOCK_EXCEEDED", errorData["code"])
		assert.Contains(t, errorData["message"], "1 remaining")
	})

	t.Run("invalid variant rejected", func(t *testing.T) {
		bogus := uint(4242)
		w := addToCart(t, router, AddCartItemRequest{ProductID: product.ID, VariantID: &bogus, Quantity: 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		errorData := response["error"].(map[string]interface{})
		assert.Equal(t, "INVALID_VARIANT", errorData["code"])
	})
}

func TestUpdateCartItem(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	user := createTestUser(t, db, "auth0|updater", "customer")
	product := createTestProduct(t, db, "be quiet! 750W", 13500, 5)
	db.Create(&models.CartItem{UserID: user.ID, ProductID: product.ID, Quantity: 1})

	router := setupTestRouter()
	router.PUT("/cart/items", mockAuthMiddleware("auth0|updater", "customer", "token"), UpdateCartItem)

	send := func(payload interface{}) *httptest.ResponseRecorder {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPut, "/cart/items", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("replaces the quantity", func(t *testing.T) {
		w := send(UpdateCartItemRequest{ProductID: product.ID, Quantity: 4})
		assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

		var line models.CartItem
		db.First(&line)
		assert.Equal(t, 4, line.Quantity)
	})

	t.Run("rejects quantity below one", func(t *testing.T) {
		w := send(map[string]interface{}{"product_id": product.ID, "quantity": 0})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects quantity above stock", func(t *testing.T) {
		w := send(UpdateCartItemRequest{ProductID: product.ID, Quantity: 6})
		assert.Equal(t, http.StatusConflict, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		errorData := response["error"].(map[string]interface{})
		assert.Equal(t, "STOCK_EXCEEDED", errorData["code"])
	})

	t.Run("rejects missing line", func(t *testing.T) {
		other := createTestProduct(t, db, "Spare Part", 100, 5)
		w := send(UpdateCartItemRequest{ProductID: other.ID, Quantity: 1})
		assert.Equal(t, http.StatusNotFound, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		errorData := response["error"].(map[string]interface{})
		assert.Equal(t, "CART_ITEM_NOT_FOUND", errorData["code"])
	})

	t.Run("reports a failed lookup as a server error", func(t *testing.T) {
		// A broken cart table is a 500, not a missing line.
		assert.NoError(t, db.Migrator().DropTable(&models.CartItem{}))

		w := send(UpdateCartItemRequest{ProductID: product.ID, Quantity: 2})
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		errorData := response["error"].(map[string]interface{})
		assert.Equal(t, "DATABASE_ERROR", errorData["code"])
	})
}

func TestRemoveCartItem_ExactPairMatch(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	user := createTestUser(t, db, "auth0|remover", "customer")
	product := createTestProduct(t, db, "Keychron K8", 9500, 10)
	variant := models.ProductVariant{
		ProductID: product.ID,
		SKU:       "K8-RED",
		Name:      "Red switches",
		Price:     9500,
		Stock:     5,
		IsActive:  true,
	}
	db.Create(&variant)

	db.Create(&models.CartItem{UserID: user.ID, ProductID: product.ID, Quantity: 1})
	db.Create(&models.CartItem{UserID: user.ID, ProductID: product.ID, VariantID: &variant.ID, Quantity: 2})

	router := setupTestRouter()
	router.DELETE("/cart/items", mockAuthMiddleware("auth0|remover", "customer", "token"), RemoveCartItem)

	// Removing without variant_id only removes the variant-less line.
	req := httptest.NewRequest(http.MethodDelete, "/cart/items?product_id="+itoa(product.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var remaining []models.CartItem
	db.Find(&remaining)
	assert.Len(t, remaining, 1)
	assert.NotNil(t, remaining[0].VariantID)

	// Retry of the same removal is a no-op success.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/cart/items?product_id="+itoa(product.ID), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Removing with variant_id removes the variant line.
	req = httptest.NewRequest(http.MethodDelete, "/cart/items?product_id="+itoa(product.ID)+"&variant_id="+itoa(variant.ID), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.CartItem{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestClearCart(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	user := createTestUser(t, db, "auth0|clearer", "customer")
	p1 := createTestProduct(t, db, "Item A", 100, 5)
	p2 := createTestProduct(t, db, "Item B", 200, 5)
	db.Create(&models.CartItem{UserID: user.ID, ProductID: p1.ID, Quantity: 1})
	db.Create(&models.CartItem{UserID: user.ID, ProductID: p2.ID, Quantity: 2})

	router := setupTestRouter()
	router.DELETE("/cart", mockAuthMiddleware("auth0|clearer", "customer", "token"), ClearCart)

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.True(t, response["success"].(bool))
	assert.Len(t, response["data"].([]interface{}), 0)

	var count int64
	db.Model(&models.CartItem{}).Where("user_id = ?", user.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestListCart_RemainingStock(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	user := createTestUser(t, db, "auth0|lister", "customer")
	product := createTestProduct(t, db, "WD Blue 2TB", 8700, 3)
	db.Create(&models.CartItem{UserID: user.ID, ProductID: product.ID, Quantity: 3})

	router := setupTestRouter()
	router.GET("/cart", mockAuthMiddleware("auth0|lister", "customer", "token"), ListCart)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	data := response["data"].([]interface{})
	assert.Len(t, data, 1)
	line := data[0].(map[string]interface{})
	// Quantity equals stock, so nothing remains; never negative.
	assert.Equal(t, float64(0), line["remaining_stock"])
}
