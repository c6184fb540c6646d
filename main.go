package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/controllers"
	"github.com/everestmart/everestmart-api/middleware"
	"github.com/everestmart/everestmart-api/models"
	"github.com/everestmart/everestmart-api/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting EverestMart API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.ProductVariant{},
		&models.CartItem{},
		&models.BuildRequest{},
		&models.BuildPart{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// External collaborators. The server still runs without them: orders
	// work without email, and proof uploads report storage unavailable.
	if _, err := services.InitS3Service(); err != nil {
		log.Printf("S3 service not available: %v", err)
	}
	if services.InitMailer(cfg) == nil {
		log.Println("SMTP not configured, order confirmation emails disabled")
	}

	// Background reservation expiry; order reads also expire lazily.
	sweeper := services.NewExpirySweeper(db, time.Duration(cfg.OrderSweepIntervalMin)*time.Minute)
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	router := setupRouter(cfg)

	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the Gin engine with CORS and all API routes
func setupRouter(cfg *config.Config) *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	if cfg.CORSAllowOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowOrigins, ",")
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)

		// Public catalog
		v1.GET("/products", controllers.ListProducts)
		v1.GET("/products/:id", controllers.GetProduct)
	}

	authed := v1.Group("")
	authed.Use(middleware.EnsureValidToken(cfg))
	{
		// Profile
		authed.POST("/users", controllers.CreateUser)
		authed.GET("/users/me", controllers.GetMyProfile)
		authed.PUT("/users/me", controllers.UpdateMyProfile)

		// Catalog admin
		authed.POST("/products", controllers.CreateProduct)
		authed.PUT("/products/:id", controllers.UpdateProduct)

		// Cart
		authed.GET("/cart", controllers.ListCart)
		authed.POST("/cart/items", controllers.AddCartItem)
		authed.PUT("/cart/items", controllers.UpdateCartItem)
		authed.DELETE("/cart/items", controllers.RemoveCartItem)
		authed.DELETE("/cart", controllers.ClearCart)

		// Orders
		authed.POST("/orders", controllers.CreateOrder)
		authed.GET("/orders", controllers.ListOrders)
		authed.GET("/orders/:id", controllers.GetOrder)
		authed.POST("/orders/:id/cancel", controllers.CancelOrder)
		authed.DELETE("/orders/:id", controllers.DeleteOrder)
		authed.PUT("/orders/:id/status", controllers.UpdateOrderStatus)
		authed.POST("/orders/:id/payment-proof", controllers.UploadPaymentProof)

		// Build My PC
		authed.POST("/builds", controllers.CreateBuildRequest)
		authed.GET("/builds", controllers.ListBuilds)
		authed.GET("/builds/:id", controllers.GetBuild)
		authed.PUT("/builds/:id", controllers.UpdateBuildRequest)
		authed.DELETE("/builds/:id", controllers.DeleteBuildRequest)
		authed.PUT("/builds/:id/review", controllers.ReviewBuild)
		authed.POST("/builds/:id/checkout", controllers.CheckoutBuild)
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "EverestMart API is running",
	})
}
