package controllers

import (
	"log"
	"net/http"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/middleware"
	"github.com/everestmart/everestmart-api/models"
	"github.com/everestmart/everestmart-api/services"
	"github.com/gin-gonic/gin"
)

// UpdateProfileRequest represents the request body for updating the
// caller's own profile
type UpdateProfileRequest struct {
	Name *string `json:"name"`
}

// CreateUser handles POST /api/v1/users - bootstraps a local profile for the
// authenticated Auth0 identity. Name and email come from the userinfo
// endpoint, never from the request body; the role comes from the token's
// custom claim.
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Authentication required",
			},
		})
		return
	}

	db := config.GetDB()
	var existing models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_EXISTS",
				"message": "Profile already exists",
			},
		})
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_TOKEN",
				"message": "Access token required to fetch profile",
			},
		})
		return
	}

	info, err := services.NewAuth0Service(config.GetConfig()).GetUserInfo(accessToken)
	if err != nil {
		log.Printf("Failed to fetch userinfo for %s: %v", auth0ID, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USERINFO_FAILED",
				"message": "Failed to fetch profile from identity provider",
			},
		})
		return
	}

	role := "customer"
	if claims, err := middleware.GetClaims(c); err == nil {
		if custom, ok := claims.CustomClaims.(*middleware.CustomClaims); ok && custom.Role != "" {
			role = custom.Role
		}
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    info.Name,
		Email:   info.Email,
		Role:    role,
	}
	if err := db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create profile",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Profile created",
		"data":    user,
	})
}

// GetMyProfile handles GET /api/v1/users/me
func GetMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// UpdateMyProfile handles PUT /api/v1/users/me - only the display name is
// user-editable; email and role are owned by the identity provider and
// admins respectively.
func UpdateMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == nil || *req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "A non-empty name is required",
			},
		})
		return
	}

	if err := config.GetDB().Model(user).Update("name", *req.Name).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update profile",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Profile updated",
		"data":    user,
	})
}
