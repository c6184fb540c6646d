package controllers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/models"
	"github.com/everestmart/everestmart-api/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BuildPartRequest is one component line submitted with a build request
type BuildPartRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Type      string `json:"type" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

// CreateBuildRequestRequest represents the request body for submitting a
// build configuration. Draft keeps the request editable without entering the
// review queue.
type CreateBuildRequestRequest struct {
	Parts  []BuildPartRequest `json:"parts" binding:"required,min=1,dive"`
	Budget float64            `json:"budget" binding:"required,gt=0"`
	Draft  bool               `json:"draft"`
}

// ReviewBuildRequest represents the admin review body
type ReviewBuildRequest struct {
	Status              *string `json:"status"`
	AdminNotes          *string `json:"admin_notes"`
	CompatibilityStatus *string `json:"compatibility_status"`
}

// CheckoutBuildRequest represents the request body for converting an
// approved build into an order
type CheckoutBuildRequest struct {
	DeliveryInfo  models.DeliveryInfo `json:"delivery_info"`
	PaymentMethod string              `json:"payment_method"`
}

// Admin review transitions. Approval may follow either directly from
// submission or after an intermediate reviewed pass.
var buildReviewTransitions = map[string]map[string]bool{
	models.BuildStatusSubmitted: {
		models.BuildStatusReviewed: true,
		models.BuildStatusApproved: true,
		models.BuildStatusRejected: true,
	},
	models.BuildStatusReviewed: {
		models.BuildStatusApproved: true,
		models.BuildStatusRejected: true,
	},
}

var validCompatibilityStatuses = map[string]bool{
	models.CompatibilityPending: true,
	models.CompatibilityPassed:  true,
	models.CompatibilityFailed:  true,
}

// CreateBuildRequest handles POST /api/v1/builds - a user submits a PC
// configuration. Part names and prices are resolved from the live catalog so
// the stored quote cannot be tampered with.
func CreateBuildRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateBuildRequestRequest
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
	parts, subtotal, ok := resolveBuildParts(c, db, req.Parts)
	if !ok {
		return
	}

	status := models.BuildStatusSubmitted
	if req.Draft {
		status = models.BuildStatusDraft
	}

	build := models.BuildRequest{
		UserID:              user.ID,
		Parts:               parts,
		Budget:              req.Budget,
		Subtotal:            subtotal,
		GrandTotal:          subtotal,
		Status:              status,
		CompatibilityStatus: models.CompatibilityPending,
	}
	if err := db.Create(&build).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create build request",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Build request created",
		"data":    build,
	})
}

// ListBuilds handles GET /api/v1/builds - own builds for customers, all
// builds for admins, newest first
func ListBuilds(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	query := db.Preload("Parts").Preload("User").Order("created_at DESC")
	if !user.IsAdmin() {
		query = query.Where("user_id = ?", user.ID)
	}

	var builds []models.BuildRequest
	if err := query.Find(&builds).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch build requests",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    builds,
	})
}

// GetBuild handles GET /api/v1/builds/:id - build detail for the owner or
// an admin
func GetBuild(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	build, ok := fetchBuild(c, config.GetDB(), user)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    build,
	})
}

// UpdateBuildRequest handles PUT /api/v1/builds/:id - the owner replaces the
// configuration while the build is still pre-review
func UpdateBuildRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	build, ok := fetchBuild(c, db, user)
	if !ok {
		return
	}
	if !build.UserEditable() {
		respondBuildLocked(c)
		return
	}

	var req CreateBuildRequestRequest
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

	parts, subtotal, ok := resolveBuildParts(c, db, req.Parts)
	if !ok {
		return
	}

	status := models.BuildStatusSubmitted
	if req.Draft {
		status = models.BuildStatusDraft
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("build_request_id = ?", build.ID).Delete(&models.BuildPart{}).Error; err != nil {
			return err
		}
		for i := range parts {
			parts[i].BuildRequestID = build.ID
		}
		if err := tx.Create(&parts).Error; err != nil {
			return err
		}
		return tx.Model(build).Updates(map[string]interface{}{
			"budget":      req.Budget,
			"subtotal":    subtotal,
			"grand_total": subtotal,
			"status":      status,
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update build request",
			},
		})
		return
	}

	var updated models.BuildRequest
	if err := db.Preload("Parts").First(&updated, build.ID).Error; err != nil {
		log.Printf("Failed to reload build %d: %v", build.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Build request updated",
		"data":    updated,
	})
}

// DeleteBuildRequest handles DELETE /api/v1/builds/:id - the owner removes a
// pre-review build
func DeleteBuildRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	build, ok := fetchBuild(c, db, user)
	if !ok {
		return
	}
	if !build.UserEditable() {
		respondBuildLocked(c)
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("build_request_id = ?", build.ID).Delete(&models.BuildPart{}).Error; err != nil {
			return err
		}
		return tx.Delete(build).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to delete build request",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Build request deleted",
	})
}

// ReviewBuild handles PUT /api/v1/builds/:id/review - admin-only review
// actions: status transitions, notes and the compatibility badge
func ReviewBuild(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if !requireAdmin(c, user) {
		return
	}

	var req ReviewBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		(req.Status == nil && req.AdminNotes == nil && req.CompatibilityStatus == nil) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Provide status, admin_notes and/or compatibility_status",
			},
		})
		return
	}
	if req.CompatibilityStatus != nil && !validCompatibilityStatuses[*req.CompatibilityStatus] {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_COMPATIBILITY_STATUS",
				"message": "Unknown compatibility status: " + *req.CompatibilityStatus,
			},
		})
		return
	}

	db := config.GetDB()
	build, ok := fetchBuild(c, db, user)
	if !ok {
		return
	}

	updates := map[string]interface{}{}
	if req.Status != nil {
		if !buildReviewTransitions[build.Status][*req.Status] {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_STATUS_TRANSITION",
					"message": "Cannot move build from " + build.Status + " to " + *req.Status,
				},
			})
			return
		}
		updates["status"] = *req.Status
	}
	if req.AdminNotes != nil {
		updates["admin_notes"] = *req.AdminNotes
	}
	if req.CompatibilityStatus != nil {
		updates["compatibility_status"] = *req.CompatibilityStatus
	}

	if err := db.Model(build).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to review build request",
			},
		})
		return
	}

	var updated models.BuildRequest
	if err := db.Preload("Parts").Preload("User").First(&updated, build.ID).Error; err != nil {
		log.Printf("Failed to reload build %d: %v", build.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Build request reviewed",
		"data":    updated,
	})
}

// CheckoutBuild handles POST /api/v1/builds/:id/checkout - converts an
// approved build into an order through the regular placement engine, then
// marks the build checked out exactly once.
func CheckoutBuild(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	build, ok := fetchBuild(c, db, user)
	if !ok {
		return
	}
	if build.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only the build owner can check it out",
			},
		})
		return
	}
	if build.Status != models.BuildStatusApproved {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BUILD_NOT_APPROVED",
				"message": "Build must be approved before checkout",
			},
		})
		return
	}

	var req CheckoutBuildRequest
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

	items := make([]services.OrderLineInput, 0, len(build.Parts))
	for _, part := range build.Parts {
		price := part.Price
		items = append(items, services.OrderLineInput{
			ProductID: part.ProductID,
			Quantity:  part.Quantity,
			Price:     &price,
		})
	}

	order, err := services.PlaceOrder(db, config.GetConfig(), user, items, req.DeliveryInfo, req.PaymentMethod)
	if err != nil {
		respondOrderMutationError(c, err, "Failed to place order for build")
		return
	}

	result := db.Model(&models.BuildRequest{}).
		Where("id = ? AND status = ?", build.ID, models.BuildStatusApproved).
		Updates(map[string]interface{}{
			"status":   models.BuildStatusCheckedOut,
			"order_id": order.ID,
		})
	if result.Error != nil {
		log.Printf("Failed to mark build %d checked out: %v", build.ID, result.Error)
	} else if result.RowsAffected == 0 {
		log.Printf("Build %d was no longer approved when marking checked out", build.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Build checked out",
		"data": gin.H{
			"order":    order,
			"build_id": build.ID,
		},
	})
}

// resolveBuildParts validates the submitted parts against the catalog and
// returns persisted-ready rows with authoritative names and prices plus the
// configuration subtotal. On failure it writes the error response and
// returns false.
func resolveBuildParts(c *gin.Context, db *gorm.DB, reqs []BuildPartRequest) ([]models.BuildPart, float64, bool) {
	parts := make([]models.BuildPart, 0, len(reqs))
	var subtotal float64
	for _, pr := range reqs {
		var product models.Product
		if err := db.First(&product, pr.ProductID).Error; err != nil || !product.IsActive {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "PRODUCT_UNAVAILABLE",
					"message": "Part product " + strconv.Itoa(int(pr.ProductID)) + " is not available",
				},
			})
			return nil, 0, false
		}
		parts = append(parts, models.BuildPart{
			ProductID: product.ID,
			Type:      pr.Type,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  pr.Quantity,
		})
		subtotal += product.Price * float64(pr.Quantity)
	}
	return parts, subtotal, true
}

// fetchBuild loads the build in the :id path param with its parts and
// enforces owner-or-admin access. On failure it writes the error response
// and returns false.
func fetchBuild(c *gin.Context, db *gorm.DB, user *models.User) (*models.BuildRequest, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid build request ID",
			},
		})
		return nil, false
	}

	var build models.BuildRequest
	if err := db.Preload("Parts").First(&build, uint(id)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BUILD_NOT_FOUND",
				"message": "Build request not found",
			},
		})
		return nil, false
	}

	if build.UserID != user.ID && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have access to this build request",
			},
		})
		return nil, false
	}
	return &build, true
}

func respondBuildLocked(c *gin.Context) {
	c.JSON(http.StatusConflict, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "BUILD_LOCKED",
			"message": "Build request can no longer be modified",
		},
	})
}
