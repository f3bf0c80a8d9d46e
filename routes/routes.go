package routes

import (
	"net/http"

	"quizdeck/handlers"
	"quizdeck/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	quizHandler *handlers.QuizHandler,
	attemptHandler *handlers.AttemptHandler,
	jwtSecret string,
) {
	// API routes
	api := router.Group("/api")
	{
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			// Quiz authoring routes
			quizzes := protected.Group("/quizzes")
			{
				quizzes.GET("", quizHandler.ListQuizzes)
				quizzes.POST("", quizHandler.CreateQuiz)
				quizzes.POST("/generate", quizHandler.GenerateQuiz)
				quizzes.GET("/:id", quizHandler.GetQuizByID)
				quizzes.PUT("/:id", quizHandler.UpdateQuiz)
				quizzes.DELETE("/:id", quizHandler.DeleteQuiz)
				quizzes.POST("/:id/publish", quizHandler.PublishQuiz)
				quizzes.POST("/:id/unpublish", quizHandler.UnpublishQuiz)
				quizzes.POST("/:id/status", quizHandler.ChangeQuizStatus)
			}

			// Quiz-taking routes
			attempts := protected.Group("/attempts")
			{
				attempts.POST("", attemptHandler.StartAttempt)
				attempts.GET("", attemptHandler.ListAttempts)
				attempts.GET("/:id", attemptHandler.GetAttemptState)
				attempts.GET("/:id/record", attemptHandler.GetAttemptRecord)
				attempts.POST("/:id/answer", attemptHandler.SelectOption)
				attempts.POST("/:id/next", attemptHandler.NextQuestion)
				attempts.POST("/:id/previous", attemptHandler.PreviousQuestion)
				attempts.POST("/:id/submit", attemptHandler.SubmitAttempt)
				attempts.POST("/:id/retry", attemptHandler.RetryAttempt)
			}
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
