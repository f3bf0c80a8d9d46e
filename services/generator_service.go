package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quizdeck/models"

	"go.uber.org/zap"
)

// GeneratedQuiz is the structured content the AI collaborator returns. The
// raw provider response never leaves this boundary.
type GeneratedQuiz struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Questions   []GeneratedQuestion `json:"questions"`
}

type GeneratedQuestion struct {
	Content     string            `json:"content"`
	Explanation string            `json:"explanation"`
	Options     []GeneratedOption `json:"options"`
}

type GeneratedOption struct {
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct"`
}

type QuizGenerator interface {
	Generate(ctx context.Context, prompt, model string, temperature float64) (*GeneratedQuiz, error)
}

// HTTPGenerator posts the generation request to a provider-agnostic endpoint
// that answers with a GeneratedQuiz document.
type HTTPGenerator struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPGenerator(url, apiKey string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt, model string, temperature float64) (*GeneratedQuiz, error) {
	if g.url == "" {
		return nil, errors.New("quiz generator is not configured")
	}

	body, err := json.Marshal(map[string]interface{}{
		"prompt":      prompt,
		"model":       model,
		"temperature": temperature,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var generated GeneratedQuiz
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return nil, fmt.Errorf("generator returned malformed content: %w", err)
	}
	return &generated, nil
}

type GeneratorService struct {
	generator QuizGenerator
	quizzes   *QuizService
	logger    *zap.Logger
}

func NewGeneratorService(generator QuizGenerator, quizzes *QuizService, logger *zap.Logger) *GeneratorService {
	return &GeneratorService{generator: generator, quizzes: quizzes, logger: logger}
}

type GenerateQuizRequest struct {
	Prompt      string  `json:"prompt" binding:"required,max=2000"`
	Model       string  `json:"model" binding:"required,max=100"`
	Temperature float64 `json:"temperature" binding:"min=0,max=2"`
}

// GenerateQuiz asks the collaborator for content, validates it against the
// AI schema, and persists it as a draft with provenance fields filled in.
func (s *GeneratorService) GenerateQuiz(ctx context.Context, ownerID string, req *GenerateQuizRequest) (*models.Quiz, error) {
	generated, err := s.generator.Generate(ctx, req.Prompt, req.Model, req.Temperature)
	if err != nil {
		s.logger.Error("quiz generation failed", zap.String("model", req.Model), zap.Error(err))
		return nil, backendErr("quiz_generate", err)
	}

	if err := validateGenerated(generated); err != nil {
		s.logger.Warn("generator returned invalid quiz content", zap.Error(err))
		return nil, err
	}

	temperature := req.Temperature
	create := &CreateQuizRequest{
		Title:         generated.Title,
		Description:   generated.Description,
		Source:        models.SourceAIGenerated,
		AIModel:       req.Model,
		AIPrompt:      req.Prompt,
		AITemperature: &temperature,
	}
	for _, q := range generated.Questions {
		question := CreateQuestionRequest{
			Content:     q.Content,
			Explanation: q.Explanation,
		}
		for _, o := range q.Options {
			question.Options = append(question.Options, CreateOptionRequest{
				Content:   o.Content,
				IsCorrect: o.IsCorrect,
			})
		}
		create.Questions = append(create.Questions, question)
	}

	return s.quizzes.Create(ctx, ownerID, create)
}

// validateGenerated enforces the stricter AI schema: exactly one correct
// option per question. Manual content only needs at least one.
func validateGenerated(generated *GeneratedQuiz) error {
	var errs []string

	if strings.TrimSpace(generated.Title) == "" {
		errs = append(errs, "generated quiz must have a title")
	}
	if len(generated.Questions) == 0 || len(generated.Questions) > 50 {
		errs = append(errs, "generated quiz must have between 1 and 50 questions")
	}
	for i, q := range generated.Questions {
		if strings.TrimSpace(q.Content) == "" {
			errs = append(errs, fmt.Sprintf("generated question %d must have content", i+1))
		}
		if len(q.Options) < 2 || len(q.Options) > 10 {
			errs = append(errs, fmt.Sprintf("generated question %d must have between 2 and 10 options", i+1))
		}
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			errs = append(errs, fmt.Sprintf("generated question %d must have exactly one correct option", i+1))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
