package main

import (
	"log"
	"os"

	"quizdeck/config"
	"quizdeck/handlers"
	"quizdeck/middleware"
	"quizdeck/models"
	"quizdeck/routes"
	"quizdeck/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := newLogger()
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.Quiz{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
		&models.Response{},
	)
	if err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	quizService := services.NewQuizService(db, logger)
	attemptService := services.NewAttemptService(db, logger)
	sessionStore := services.NewRedisSessionStore(redisClient)
	attemptEngine := services.NewAttemptEngine(quizService, attemptService, sessionStore, logger)
	generator := services.NewHTTPGenerator(cfg.GeneratorURL, cfg.GeneratorAPIKey, cfg.GeneratorTimeout)
	generatorService := services.NewGeneratorService(generator, quizService, logger)

	// Initialize handlers
	quizHandler := handlers.NewQuizHandler(quizService, generatorService, logger)
	attemptHandler := handlers.NewAttemptHandler(attemptEngine, attemptService, logger)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, quizHandler, attemptHandler, cfg.JWTSecret)

	// Start server
	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("GIN_MODE") == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
