package handlers

import (
	"net/http"
	"time"

	"quizdeck/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AttemptHandler struct {
	engine         *services.AttemptEngine
	attemptService *services.AttemptService
	logger         *zap.Logger
}

func NewAttemptHandler(engine *services.AttemptEngine, attemptService *services.AttemptService, logger *zap.Logger) *AttemptHandler {
	return &AttemptHandler{
		engine:         engine,
		attemptService: attemptService,
		logger:         logger,
	}
}

type startAttemptRequest struct {
	QuizID string `json:"quiz_id" binding:"required"`
	Demo   bool   `json:"demo"`
}

func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req startAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.engine.Start(c.Request.Context(), userID, req.QuizID, req.Demo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, state)
}

func (h *AttemptHandler) GetAttemptState(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	state, err := h.engine.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

type selectOptionRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	OptionID   string `json:"option_id" binding:"required"`
}

func (h *AttemptHandler) SelectOption(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req selectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.engine.SelectOption(c.Request.Context(), userID, c.Param("id"), req.QuestionID, req.OptionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *AttemptHandler) NextQuestion(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	state, err := h.engine.Next(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *AttemptHandler) PreviousQuestion(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	state, err := h.engine.Previous(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	state, err := h.engine.Submit(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *AttemptHandler) RetryAttempt(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	state, err := h.engine.Retry(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// ListAttempts is the requester's attempt history with derived statuses.
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListUserAttempts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	type attemptView struct {
		ID             string `json:"id"`
		QuizID         string `json:"quiz_id"`
		Status         string `json:"status"`
		Score          *int   `json:"score"`
		TotalQuestions int    `json:"total_questions"`
		StartedAt      string `json:"started_at"`
		CompletedAt    string `json:"completed_at,omitempty"`
	}
	views := make([]attemptView, 0, len(attempts))
	for _, attempt := range attempts {
		view := attemptView{
			ID:             attempt.ID,
			QuizID:         attempt.QuizID,
			Status:         attempt.Status(),
			Score:          attempt.Score,
			TotalQuestions: attempt.TotalQuestions,
			StartedAt:      attempt.StartedAt.Format(time.RFC3339),
		}
		if attempt.CompletedAt != nil {
			view.CompletedAt = attempt.CompletedAt.Format(time.RFC3339)
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"attempts": views})
}

// GetAttemptRecord returns the persisted attempt row, responses included.
func (h *AttemptHandler) GetAttemptRecord(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if attempt.UserID != userID {
		respondError(c, h.logger, services.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempt": attempt, "status": attempt.Status()})
}
