package handlers

import (
	"net/http"

	"quizdeck/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type QuizHandler struct {
	quizService      *services.QuizService
	generatorService *services.GeneratorService
	logger           *zap.Logger
}

func NewQuizHandler(quizService *services.QuizService, generatorService *services.GeneratorService, logger *zap.Logger) *QuizHandler {
	return &QuizHandler{
		quizService:      quizService,
		generatorService: generatorService,
		logger:           logger,
	}
}

func quizIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quiz ID"})
		return "", false
	}
	return id, true
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req services.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.quizService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) GenerateQuiz(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req services.GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.generatorService.GenerateQuiz(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var query services.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quizzes, pagination, err := h.quizService.List(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes, "pagination": pagination})
}

func (h *QuizHandler) GetQuizByID(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) UpdateQuiz(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	var req services.UpdateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.quizService.Update(c.Request.Context(), quizID, userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	if err := h.quizService.Delete(c.Request.Context(), quizID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Quiz deleted successfully"})
}

func (h *QuizHandler) PublishQuiz(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	quiz, err := h.quizService.Publish(c.Request.Context(), quizID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) UnpublishQuiz(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	quiz, err := h.quizService.Unpublish(c.Request.Context(), quizID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

type changeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *QuizHandler) ChangeQuizStatus(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.quizService.ChangeStatus(c.Request.Context(), quizID, userID, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}
