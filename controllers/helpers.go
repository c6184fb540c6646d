package controllers

import (
	"net/http"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/middleware"
	"github.com/everestmart/everestmart-api/models"
	"github.com/gin-gonic/gin"
)

// currentUser resolves the authenticated user's profile from the JWT subject.
// On failure it writes the error response and returns false; handlers should
// simply return. The caller identity always comes from the validated token,
// never from the request body.
func currentUser(c *gin.Context) (*models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	db := config.GetDB()
	var user models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User profile not found. Please create a profile first.",
			},
		})
		return nil, false
	}

	return &user, true
}

// requireAdmin writes a FORBIDDEN response and returns false when the user is
// not an admin.
func requireAdmin(c *gin.Context, user *models.User) bool {
	if !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Admin access required",
			},
		})
		return false
	}
	return true
}
