package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"quizdeck/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type QuizService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewQuizService(db *gorm.DB, logger *zap.Logger) *QuizService {
	return &QuizService{db: db, logger: logger}
}

type CreateQuizRequest struct {
	Title         string                  `json:"title" binding:"required,max=200"`
	Description   string                  `json:"description" binding:"max=1000"`
	Source        string                  `json:"source" binding:"omitempty,oneof=manual ai_generated"`
	AIModel       string                  `json:"ai_model"`
	AIPrompt      string                  `json:"ai_prompt"`
	AITemperature *float64                `json:"ai_temperature"`
	Questions     []CreateQuestionRequest `json:"questions" binding:"required,min=1,max=50,dive"`
}

type CreateQuestionRequest struct {
	Content     string                `json:"content" binding:"required"`
	Explanation string                `json:"explanation"`
	Position    int                   `json:"position" binding:"omitempty,min=1"`
	Options     []CreateOptionRequest `json:"options" binding:"required,min=2,max=10,dive"`
}

type CreateOptionRequest struct {
	Content   string `json:"content" binding:"required"`
	IsCorrect bool   `json:"is_correct"`
	Position  int    `json:"position" binding:"omitempty,min=1"`
}

type UpdateQuizRequest struct {
	Title       string                  `json:"title" binding:"required,max=200"`
	Description string                  `json:"description" binding:"max=1000"`
	Questions   []CreateQuestionRequest `json:"questions" binding:"required,min=1,max=50,dive"`
}

// validatePayload re-checks the contract the binding tags enforce at the HTTP
// edge, so the service holds its own invariants when called directly.
func validatePayload(title string, questions []CreateQuestionRequest) error {
	var errs []string

	if strings.TrimSpace(title) == "" {
		errs = append(errs, "title must not be blank")
	}
	if len(title) > 200 {
		errs = append(errs, "title must be at most 200 characters")
	}
	if len(questions) == 0 {
		errs = append(errs, "quiz must have at least one question")
	}
	if len(questions) > 50 {
		errs = append(errs, "quiz must have at most 50 questions")
	}

	for i, q := range questions {
		if strings.TrimSpace(q.Content) == "" {
			errs = append(errs, fmt.Sprintf("question %d must have content", i+1))
		}
		if len(q.Options) < 2 || len(q.Options) > 10 {
			errs = append(errs, fmt.Sprintf("question %d must have between 2 and 10 options", i+1))
		}
		correct := 0
		for j, o := range q.Options {
			if strings.TrimSpace(o.Content) == "" {
				errs = append(errs, fmt.Sprintf("question %d, option %d must have content", i+1, j+1))
			}
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			errs = append(errs, fmt.Sprintf("question %d must have at least one correct option", i+1))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Create inserts a quiz with its full question/option tree. It prefers the
// server-side quiz_create_tree function (one commit); when that function is
// not installed it falls back to sequential inserts with best-effort cleanup.
func (s *QuizService) Create(ctx context.Context, ownerID string, req *CreateQuizRequest) (*models.Quiz, error) {
	if err := validatePayload(req.Title, req.Questions); err != nil {
		return nil, err
	}

	quizID, err := s.createAtomic(ctx, ownerID, req)
	if err == nil {
		return s.GetByID(ctx, quizID, ownerID)
	}
	if !atomicUnavailable(err) {
		return nil, backendErr("quiz_create", err)
	}
	s.logger.Debug("atomic quiz create unavailable, using fallback", zap.Error(err))

	return s.createFallback(ctx, ownerID, req)
}

type quizTreePayload struct {
	OwnerID       string                `json:"owner_id,omitempty"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Source        string                `json:"source,omitempty"`
	AIModel       string                `json:"ai_model,omitempty"`
	AIPrompt      string                `json:"ai_prompt,omitempty"`
	AITemperature *float64              `json:"ai_temperature,omitempty"`
	Questions     []questionTreePayload `json:"questions"`
}

type questionTreePayload struct {
	Content     string              `json:"content"`
	Explanation string              `json:"explanation"`
	Position    int                 `json:"position"`
	Options     []optionTreePayload `json:"options"`
}

type optionTreePayload struct {
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct"`
	Position  int    `json:"position"`
}

func buildTreePayload(ownerID string, req *CreateQuizRequest) quizTreePayload {
	payload := quizTreePayload{
		OwnerID:       ownerID,
		Title:         req.Title,
		Description:   req.Description,
		Source:        req.Source,
		AIModel:       req.AIModel,
		AIPrompt:      req.AIPrompt,
		AITemperature: req.AITemperature,
	}
	if payload.Source == "" {
		payload.Source = models.SourceManual
	}
	// Positions are renumbered from input order; gaps in the declared
	// positions never survive a write.
	for i, q := range req.Questions {
		pq := questionTreePayload{
			Content:     q.Content,
			Explanation: q.Explanation,
			Position:    i + 1,
		}
		for j, o := range q.Options {
			pq.Options = append(pq.Options, optionTreePayload{
				Content:   o.Content,
				IsCorrect: o.IsCorrect,
				Position:  j + 1,
			})
		}
		payload.Questions = append(payload.Questions, pq)
	}
	return payload
}

func (s *QuizService) createAtomic(ctx context.Context, ownerID string, req *CreateQuizRequest) (string, error) {
	payload, err := json.Marshal(buildTreePayload(ownerID, req))
	if err != nil {
		return "", err
	}

	var created struct{ ID string }
	res := s.db.WithContext(ctx).
		Raw("SELECT quiz_create_tree(?) AS id", string(payload)).
		Scan(&created)
	if res.Error != nil {
		return "", res.Error
	}
	return created.ID, nil
}

// atomicUnavailable distinguishes "the server-side function is not installed"
// from real failures like constraint violations, which must propagate as-is.
func atomicUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "42883") || // postgres undefined_function
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "no such function")
}

func (s *QuizService) createFallback(ctx context.Context, ownerID string, req *CreateQuizRequest) (*models.Quiz, error) {
	source := req.Source
	if source == "" {
		source = models.SourceManual
	}

	quiz := models.Quiz{
		OwnerID:       ownerID,
		Title:         req.Title,
		Description:   req.Description,
		Status:        models.StatusDraft,
		Source:        source,
		AIModel:       req.AIModel,
		AIPrompt:      req.AIPrompt,
		AITemperature: req.AITemperature,
	}
	if err := s.db.WithContext(ctx).Create(&quiz).Error; err != nil {
		return nil, backendErr("quiz_create", err)
	}

	if err := s.insertQuestionTree(ctx, quiz.ID, req.Questions); err != nil {
		// best effort: remove the quiz row so a half-written tree is never
		// visible; the original insert error is what the caller sees
		s.cleanupQuiz(ctx, quiz.ID)
		return nil, backendErr("quiz_create", err)
	}

	return s.GetByID(ctx, quiz.ID, ownerID)
}

// insertQuestionTree writes questions and options sequentially in input
// order. Order matters: cleanup after a mid-tree failure relies on knowing
// the quiz row was committed first.
func (s *QuizService) insertQuestionTree(ctx context.Context, quizID string, questions []CreateQuestionRequest) error {
	for i, qReq := range questions {
		question := models.Question{
			QuizID:      quizID,
			Content:     qReq.Content,
			Explanation: qReq.Explanation,
			Position:    i + 1,
		}
		if err := s.db.WithContext(ctx).Create(&question).Error; err != nil {
			return err
		}

		for j, oReq := range qReq.Options {
			option := models.Option{
				QuestionID: question.ID,
				Content:    oReq.Content,
				IsCorrect:  oReq.IsCorrect,
				Position:   j + 1,
			}
			if err := s.db.WithContext(ctx).Create(&option).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanupQuiz hard-deletes a quiz and whatever children made it in. Failures
// here are logged and swallowed so they can never mask the error that
// triggered the cleanup.
func (s *QuizService) cleanupQuiz(ctx context.Context, quizID string) {
	db := s.db.WithContext(ctx)

	questionIDs := db.Unscoped().Model(&models.Question{}).Select("id").Where("quiz_id = ?", quizID)
	if err := db.Unscoped().Where("question_id IN (?)", questionIDs).Delete(&models.Option{}).Error; err != nil {
		s.logger.Warn("quiz cleanup: failed to delete options", zap.String("quiz_id", quizID), zap.Error(err))
	}
	if err := db.Unscoped().Where("quiz_id = ?", quizID).Delete(&models.Question{}).Error; err != nil {
		s.logger.Warn("quiz cleanup: failed to delete questions", zap.String("quiz_id", quizID), zap.Error(err))
	}
	if err := db.Unscoped().Delete(&models.Quiz{}, "id = ?", quizID).Error; err != nil {
		s.logger.Warn("quiz cleanup: failed to delete quiz", zap.String("quiz_id", quizID), zap.Error(err))
	}
}

// Update is a full replacement: the caller submits the complete desired
// question set and every existing child row is discarded. Last write wins;
// there is no version check for concurrent editors.
func (s *QuizService) Update(ctx context.Context, quizID, ownerID string, req *UpdateQuizRequest) (*models.Quiz, error) {
	if err := validatePayload(req.Title, req.Questions); err != nil {
		return nil, err
	}
	if _, err := s.fetchOwned(ctx, quizID, ownerID); err != nil {
		return nil, err
	}

	err := s.updateAtomic(ctx, quizID, ownerID, req)
	if err == nil {
		return s.GetByID(ctx, quizID, ownerID)
	}
	if !atomicUnavailable(err) {
		return nil, backendErr("quiz_update", err)
	}
	s.logger.Debug("atomic quiz update unavailable, using fallback", zap.Error(err))

	return s.updateFallback(ctx, quizID, ownerID, req)
}

func (s *QuizService) updateAtomic(ctx context.Context, quizID, ownerID string, req *UpdateQuizRequest) error {
	payload, err := json.Marshal(buildTreePayload("", &CreateQuizRequest{
		Title:       req.Title,
		Description: req.Description,
		Questions:   req.Questions,
	}))
	if err != nil {
		return err
	}

	var replaced struct{ ID string }
	return s.db.WithContext(ctx).
		Raw("SELECT quiz_replace_tree(?, ?, ?) AS id", quizID, ownerID, string(payload)).
		Scan(&replaced).Error
}

func (s *QuizService) updateFallback(ctx context.Context, quizID, ownerID string, req *UpdateQuizRequest) (*models.Quiz, error) {
	db := s.db.WithContext(ctx)

	// drop every existing child, then rebuild from the request
	questionIDs := s.db.Model(&models.Question{}).Select("id").Where("quiz_id = ?", quizID)
	if err := db.Where("question_id IN (?)", questionIDs).Delete(&models.Option{}).Error; err != nil {
		return nil, backendErr("quiz_update", err)
	}
	if err := db.Where("quiz_id = ?", quizID).Delete(&models.Question{}).Error; err != nil {
		return nil, backendErr("quiz_update", err)
	}

	if err := s.insertQuestionTree(ctx, quizID, req.Questions); err != nil {
		s.logger.Error("quiz update fallback failed mid-replace, quiz left partially written",
			zap.String("quiz_id", quizID), zap.Error(err))
		return nil, backendErr("quiz_update", err)
	}

	updates := map[string]interface{}{
		"title":       req.Title,
		"description": req.Description,
	}
	if err := db.Model(&models.Quiz{}).Where("id = ?", quizID).Updates(updates).Error; err != nil {
		return nil, backendErr("quiz_update", err)
	}

	return s.GetByID(ctx, quizID, ownerID)
}

// fetchOwned loads a live quiz row and enforces ownership. Missing and
// soft-deleted are both NotFound; visible-but-not-owned is Forbidden.
func (s *QuizService) fetchOwned(ctx context.Context, quizID, ownerID string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.db.WithContext(ctx).First(&quiz, "id = ?", quizID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("quiz_fetch", err)
	}
	if quiz.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return &quiz, nil
}

// GetByID returns the composed quiz for the owner, or for anyone while the
// quiz is public. Everything else is NotFound, including a quiz whose
// question data no longer passes shape checks.
func (s *QuizService) GetByID(ctx context.Context, quizID, requesterID string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.position")
		}).
		First(&quiz, "id = ?", quizID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("quiz_fetch", err)
	}

	if quiz.OwnerID != requesterID && quiz.Status != models.StatusPublic {
		return nil, ErrNotFound
	}

	quiz.Questions = sanitizeQuestions(quiz.Questions)
	if len(quiz.Questions) == 0 {
		return nil, ErrNotFound
	}
	return &quiz, nil
}

// sanitizeQuestions drops rows that fail basic shape checks and keeps
// everything in position order. Soft-deleted rows never reach here; the ORM
// scope filters them.
func sanitizeQuestions(questions []models.Question) []models.Question {
	valid := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if strings.TrimSpace(q.Content) == "" {
			continue
		}
		options := make([]models.Option, 0, len(q.Options))
		for _, o := range q.Options {
			if strings.TrimSpace(o.Content) == "" {
				continue
			}
			options = append(options, o)
		}
		sort.SliceStable(options, func(i, j int) bool { return options[i].Position < options[j].Position })
		q.Options = options
		valid = append(valid, q)
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Position < valid[j].Position })
	return valid
}

type ListQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Sort   string `form:"sort"`
	Order  string `form:"order"`
	Status string `form:"status"`
	Owned  *bool  `form:"owned"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

var listSortColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"title":      true,
}

var listStatuses = map[string]bool{
	models.StatusDraft:    true,
	models.StatusPublic:   true,
	models.StatusPrivate:  true,
	models.StatusArchived: true,
}

func (q *ListQuery) normalize() error {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if !listSortColumns[q.Sort] {
		q.Sort = "created_at"
	}
	if q.Order != "asc" && q.Order != "desc" {
		q.Order = "desc"
	}
	if q.Status != "" && !listStatuses[q.Status] {
		return &ValidationError{Errors: []string{"status must be one of draft, public, private, archived"}}
	}
	return nil
}

// List pages through quizzes the requester may see. With no filters that is
// their own quizzes in any status plus other users' public ones. An
// out-of-range page is clamped, never an error.
func (s *QuizService) List(ctx context.Context, requesterID string, query ListQuery) ([]models.Quiz, Pagination, error) {
	if err := query.normalize(); err != nil {
		return nil, Pagination{}, err
	}

	db := s.db.WithContext(ctx).Model(&models.Quiz{})
	switch {
	case query.Owned != nil && *query.Owned:
		db = db.Where("owner_id = ?", requesterID)
	case query.Owned != nil && !*query.Owned:
		db = db.Where("owner_id <> ? AND status = ?", requesterID, models.StatusPublic)
	default:
		db = db.Where("owner_id = ? OR status = ?", requesterID, models.StatusPublic)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, Pagination{}, backendErr("quiz_list", err)
	}

	totalPages := int((total + int64(query.Limit) - 1) / int64(query.Limit))
	if totalPages < 1 {
		totalPages = 1
	}
	if query.Page > totalPages {
		query.Page = totalPages
	}

	var quizzes []models.Quiz
	err := db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.position")
		}).
		Order(fmt.Sprintf("%s %s", query.Sort, query.Order)).
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&quizzes).Error
	if err != nil {
		return nil, Pagination{}, backendErr("quiz_list", err)
	}

	pagination := Pagination{
		Page:       query.Page,
		Limit:      query.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
	return quizzes, pagination, nil
}

// Delete soft-deletes the quiz; children stay in place but become invisible
// through the quiz.
func (s *QuizService) Delete(ctx context.Context, quizID, ownerID string) error {
	if _, err := s.fetchOwned(ctx, quizID, ownerID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Quiz{}, "id = ?", quizID).Error; err != nil {
		return backendErr("quiz_delete", err)
	}
	return nil
}

// Publish moves draft→public after the quiz passes publish validation.
func (s *QuizService) Publish(ctx context.Context, quizID, ownerID string) (*models.Quiz, error) {
	quiz, err := s.fetchOwnedWithChildren(ctx, quizID, ownerID)
	if err != nil {
		return nil, err
	}

	if quiz.Status != models.StatusDraft || !IsValidStatusTransition(quiz.Status, models.StatusPublic) {
		return nil, &UnprocessableError{
			Message: fmt.Sprintf("cannot publish a %s quiz, only drafts can be published", quiz.Status),
		}
	}

	validation := ValidateForPublishing(quiz)
	if !validation.Valid {
		return nil, &UnprocessableError{
			Message: "quiz is not ready to publish",
			Details: validation.Errors,
		}
	}

	return s.setStatus(ctx, quiz, models.StatusPublic)
}

// Unpublish moves public|private→draft.
func (s *QuizService) Unpublish(ctx context.Context, quizID, ownerID string) (*models.Quiz, error) {
	quiz, err := s.fetchOwnedWithChildren(ctx, quizID, ownerID)
	if err != nil {
		return nil, err
	}

	if quiz.Status != models.StatusPublic && quiz.Status != models.StatusPrivate {
		return nil, &UnprocessableError{
			Message: fmt.Sprintf("cannot unpublish a %s quiz", quiz.Status),
		}
	}

	return s.setStatus(ctx, quiz, models.StatusDraft)
}

// ChangeStatus applies any transition the lifecycle state machine allows.
// Entering public re-runs publish validation regardless of the origin state.
func (s *QuizService) ChangeStatus(ctx context.Context, quizID, ownerID, to string) (*models.Quiz, error) {
	quiz, err := s.fetchOwnedWithChildren(ctx, quizID, ownerID)
	if err != nil {
		return nil, err
	}

	if !IsValidStatusTransition(quiz.Status, to) {
		return nil, &UnprocessableError{
			Message: fmt.Sprintf("cannot change status from %s to %s", quiz.Status, to),
		}
	}

	if to == models.StatusPublic {
		validation := ValidateForPublishing(quiz)
		if !validation.Valid {
			return nil, &UnprocessableError{
				Message: "quiz is not ready to publish",
				Details: validation.Errors,
			}
		}
	}

	return s.setStatus(ctx, quiz, to)
}

func (s *QuizService) fetchOwnedWithChildren(ctx context.Context, quizID, ownerID string) (*models.Quiz, error) {
	quiz, err := s.fetchOwned(ctx, quizID, ownerID)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.position")
		}).
		Where("quiz_id = ?", quizID).
		Order("questions.position").
		Find(&quiz.Questions).Error
	if err != nil {
		return nil, backendErr("quiz_fetch", err)
	}
	return quiz, nil
}

func (s *QuizService) setStatus(ctx context.Context, quiz *models.Quiz, to string) (*models.Quiz, error) {
	if err := s.db.WithContext(ctx).Model(&models.Quiz{}).Where("id = ?", quiz.ID).
		Update("status", to).Error; err != nil {
		return nil, backendErr("quiz_status", err)
	}
	quiz.Status = to
	return quiz, nil
}
