package handlers

import (
	"errors"
	"net/http"

	"quizdeck/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requesterID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return "", false
	}
	id, ok := userID.(string)
	if !ok || id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return "", false
	}
	return id, true
}

// respondError maps the service error taxonomy onto HTTP statuses. Backend
// failures are logged in full here and reach the client as a generic message
// plus a non-sensitive code.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var validationErr *services.ValidationError
	var unprocessableErr *services.UnprocessableError
	var backendErr *services.BackendError

	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this resource"})
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": validationErr.Errors})
	case errors.As(err, &unprocessableErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": unprocessableErr.Message, "details": unprocessableErr.Details})
	case errors.As(err, &backendErr):
		logger.Error("backend failure", zap.String("code", backendErr.Code), zap.Error(backendErr.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong", "code": backendErr.Code})
	default:
		logger.Error("unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}
