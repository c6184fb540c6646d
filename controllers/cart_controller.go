package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AddCartItemRequest represents the request body for adding a cart line
type AddCartItemRequest struct {
	ProductID uint  `json:"product_id" binding:"required"`
	VariantID *uint `json:"variant_id"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

// UpdateCartItemRequest represents the request body for changing a line's quantity
type UpdateCartItemRequest struct {
	ProductID uint  `json:"product_id" binding:"required"`
	VariantID *uint `json:"variant_id"`
	Quantity  int   `json:"quantity" binding:"required"`
}

// cartLine is a cart item enriched with the remaining stock for UI display
type cartLine struct {
	models.CartItem
	RemainingStock int `json:"remaining_stock"`
}

// AddCartItem handles POST /api/v1/cart/items - adds a product (or variant)
// to the user's cart, or increments the existing line.
func AddCartItem(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req AddCartItemRequest
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

	db := config.GetDB()
	available, ok := resolveAvailableStock(c, db, req.ProductID, req.VariantID)
	if !ok {
		return
	}

	existing, err := findCartLine(db, user.ID, req.ProductID, req.VariantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to read cart",
			},
		})
		return
	}

	currentQty := 0
	if existing != nil {
		currentQty = existing.Quantity
	}

	// Best-effort ceiling; the order engine re-validates authoritatively.
	if currentQty+req.Quantity > available {
		remaining := available - currentQty
		if remaining < 0 {
			remaining = 0
		}
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STOCK_EXCEEDED",
				"message": "Cannot add that many: " + strconv.Itoa(remaining) + " remaining in stock",
			},
		})
		return
	}

	if existing != nil {
		if err := db.Model(existing).Update("quantity", currentQty+req.Quantity).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to update cart",
				},
			})
			return
		}
	} else {
		line := models.CartItem{
			UserID:    user.ID,
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
			AddedAt:   time.Now(),
		}
		if err := db.Create(&line).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to add to cart",
				},
			})
			return
		}
	}

	respondWithCart(c, db, user.ID, "Item added to cart")
}

// UpdateCartItem handles PUT /api/v1/cart/items - replaces a line's quantity
func UpdateCartItem(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateCartItemRequest
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

	if req.Quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_QUANTITY",
				"message": "Quantity must be at least 1",
			},
		})
		return
	}

	db := config.GetDB()
	available, ok := resolveAvailableStock(c, db, req.ProductID, req.VariantID)
	if !ok {
		return
	}

	existing, err := findCartLine(db, user.ID, req.ProductID, req.VariantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch cart item",
			},
		})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CART_ITEM_NOT_FOUND",
				"message": "No matching item in your cart",
			},
		})
		return
	}

	if req.Quantity > available {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STOCK_EXCEEDED",
				"message": "Only " + strconv.Itoa(available) + " remaining in stock",
			},
		})
		return
	}

	if err := db.Model(existing).Update("quantity", req.Quantity).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update cart",
			},
		})
		return
	}

	respondWithCart(c, db, user.ID, "Cart updated")
}

// RemoveCartItem handles DELETE /api/v1/cart/items - removes the line
// matching the exact (product, variant) pair. A missing variant_id only
// matches a line without a variant, never "any variant of this product".
// Removing an absent line is not an error, so retries are harmless.
func RemoveCartItem(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	productID, err := strconv.ParseUint(c.Query("product_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "product_id query parameter is required",
			},
		})
		return
	}

	var variantID *uint
	if raw := c.Query("variant_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "variant_id must be a number",
				},
			})
			return
		}
		id := uint(v)
		variantID = &id
	}

	db := config.GetDB()
	query := db.Where("user_id = ? AND product_id = ?", user.ID, uint(productID))
	if variantID != nil {
		query = query.Where("variant_id = ?", *variantID)
	} else {
		query = query.Where("variant_id IS NULL")
	}
	if err := query.Delete(&models.CartItem{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to remove item",
			},
		})
		return
	}

	respondWithCart(c, db, user.ID, "Item removed from cart")
}

// ClearCart handles DELETE /api/v1/cart - empties the user's cart
func ClearCart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	if err := db.Where("user_id = ?", user.ID).Delete(&models.CartItem{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to clear cart",
			},
		})
		return
	}

	respondWithCart(c, db, user.ID, "Cart cleared")
}

// ListCart handles GET /api/v1/cart - returns the user's cart lines with
// remaining stock per line; never mutates state.
func ListCart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	respondWithCart(c, config.GetDB(), user.ID, "")
}

// respondWithCart returns the user's full cart so the client can
// resynchronize its local cache after every mutation.
func respondWithCart(c *gin.Context, db *gorm.DB, userID uint, message string) {
	var items []models.CartItem
	if err := db.Where("user_id = ?", userID).
		Preload("Product").
		Preload("Variant").
		Order("added_at ASC").
		Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch cart",
			},
		})
		return
	}

	lines := make([]cartLine, 0, len(items))
	for _, item := range items {
		stock := item.Product.Stock
		if item.Variant != nil {
			stock = item.Variant.Stock
		}
		remaining := stock - item.Quantity
		if remaining < 0 {
			remaining = 0
		}
		lines = append(lines, cartLine{CartItem: item, RemainingStock: remaining})
	}

	resp := gin.H{
		"success": true,
		"data":    lines,
	}
	if message != "" {
		resp["message"] = message
	}
	c.JSON(http.StatusOK, resp)
}

// resolveAvailableStock loads the product (and variant, when given) and
// returns its unreserved stock. On failure it writes the error response and
// returns false.
func resolveAvailableStock(c *gin.Context, db *gorm.DB, productID uint, variantID *uint) (int, bool) {
	var product models.Product
	if err := db.First(&product, productID).Error; err != nil || !product.IsActive {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRODUCT_UNAVAILABLE",
				"message": "Product is not available",
			},
		})
		return 0, false
	}

	if variantID == nil {
		return product.AvailableStock(), true
	}

	var variant models.ProductVariant
	if err := db.First(&variant, "id = ? AND product_id = ?", *variantID, productID).Error; err != nil || !variant.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_VARIANT",
				"message": "Product has no such active variant",
			},
		})
		return 0, false
	}
	return variant.AvailableStock(), true
}

// findCartLine fetches the user's line for the exact (product, variant)
// pair; nil when absent.
func findCartLine(db *gorm.DB, userID, productID uint, variantID *uint) (*models.CartItem, error) {
	query := db.Where("user_id = ? AND product_id = ?", userID, productID)
	if variantID != nil {
		query = query.Where("variant_id = ?", *variantID)
	} else {
		query = query.Where("variant_id IS NULL")
	}

	var line models.CartItem
	err := query.First(&line).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}
