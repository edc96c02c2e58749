package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"stockrecon/internal/caching"
	"stockrecon/internal/handlers"
	"stockrecon/internal/jobs"
	"stockrecon/internal/jobs/background"
	"stockrecon/internal/repositories"
	"stockrecon/internal/services"
	"stockrecon/pkg/database"
)

const version = "1.0.0"

func main() {
	// Local development settings; missing .env is fine in production
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379" // Default Redis address
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDBStr := os.Getenv("REDIS_DB")
	redisDB := 0 // Default DB
	if redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// MinIO configuration
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		minioEndpoint = "localhost:9000" // Default MinIO endpoint
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	if minioAccessKey == "" {
		minioAccessKey = "minioadmin" // Default for development
	}
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioSecretKey == "" {
		minioSecretKey = "minioadmin" // Default for development
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	reportBucket := os.Getenv("REPORT_BUCKET")
	if reportBucket == "" {
		reportBucket = "reconciliation-reports"
	}

	staleMaxAge := 24 * time.Hour
	if s := os.Getenv("STALE_SESSION_MAX_AGE"); s != "" {
		if parsed, err := time.ParseDuration(s); err == nil {
			staleMaxAge = parsed
		} else {
			log.Printf("Invalid STALE_SESSION_MAX_AGE %q, using default: %v", s, err)
		}
	}

	// Initialize MinIO service
	minioSvc, err := services.NewMinioService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO service: %v", err)
	}

	// Create repositories
	movementRepo := repositories.NewMovementRepo(pool)
	validationRepo := repositories.NewValidationRepo(pool)
	scanEventRepo := repositories.NewScanEventRepo(pool)

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Create services
	manifestSvc := services.NewManifestService(movementRepo)
	validationSvc := services.NewValidationService(manifestSvc, validationRepo, scanEventRepo, cacheSvc, minioSvc, reportBucket)

	// Create handlers
	movementHandlers := handlers.NewMovementHandlers(manifestSvc)
	validationHandlers := handlers.NewValidationHandlers(validationSvc)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc)

	// Background jobs
	staleAlerts := jobs.NewStaleSessionAlertService(validationRepo)
	scheduler := background.NewJobScheduler(staleAlerts, scanEventRepo, staleMaxAge)
	if err := scheduler.Start(); err != nil {
		log.Printf("Failed to start job scheduler: %v", err)
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Printf("Failed to stop job scheduler: %v", err)
		}
	}()

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	// API routes
	v1 := e.Group("/v1")

	// Movement manifest (read-only)
	v1.GET("/movements/:movementId", movementHandlers.GetMovement)
	v1.GET("/movements/:movementId/manifest", movementHandlers.GetManifest)

	// Validation sessions
	v1.POST("/movements/:movementId/validation", validationHandlers.StartValidation)
	v1.GET("/movements/:movementId/validation", validationHandlers.GetExistingValidation)
	v1.GET("/movements/:movementId/validation/:validationId", validationHandlers.GetValidation)
	v1.POST("/movements/:movementId/validation/:validationId/scan", validationHandlers.Scan)
	v1.POST("/movements/:movementId/validation/:validationId/complete", validationHandlers.CompleteValidation)
	v1.GET("/movements/:movementId/validation/:validationId/report", validationHandlers.GetReport)
	v1.GET("/movements/:movementId/validation/:validationId/scans", validationHandlers.GetScanHistory)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("Stockrecon server v%s starting on port %d", version, port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
