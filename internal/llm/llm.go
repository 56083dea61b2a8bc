package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/recap/internal/llm/prompts"
	"github.com/pavelanni/recap/internal/media"
	"github.com/pavelanni/recap/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

var (
	// ErrNotConfigured is returned by every send while no API key is set.
	ErrNotConfigured = errors.New("model gateway not configured: set an API key")
	// ErrBusy is returned when a request is already in flight.
	ErrBusy = errors.New("model gateway busy: a request is already in flight")
	// ErrUnknownModel is returned by Configure for a model outside the allow-list.
	ErrUnknownModel = errors.New("unknown model")

	errEmptyReply = errors.New("model returned an empty reply")
)

// TransportError wraps a failed call to the model service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config holds the gateway's connection settings.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration // zero disables the per-request timeout
	Temperature float32
	JSONMode    bool // ask the endpoint for a JSON object response
}

// GenerateRequest is the input of one quiz generation call.
type GenerateRequest struct {
	Text          string
	URLs          []string
	Images        []media.Image
	QuestionCount int
	Language      string
	QuizMode      bool
}

// Conversation is one chat context. Grading calls made in a conversation
// see the quiz generated in it. The zero value is an empty conversation.
type Conversation struct {
	mu       sync.Mutex
	history  []openai.ChatCompletionMessage
	language string
	epoch    uint64
}

// Reset discards the history. A reply still in flight is not added to it.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.language = ""
	c.epoch++
}

// Len returns the number of messages in the conversation.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

func (c *Conversation) begin(msg openai.ChatCompletionMessage) ([]openai.ChatCompletionMessage, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]openai.ChatCompletionMessage, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	msgs = append(msgs, msg)
	return msgs, c.epoch
}

// commit appends a turn unless the conversation was reset since epoch.
func (c *Conversation) commit(epoch uint64, msg openai.ChatCompletionMessage, reply, language string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.history = append(c.history, msg, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	if language != "" {
		c.language = language
	}
	return true
}

// Gateway sends quiz generation and grading requests to the model. It owns a
// default conversation; callers running several quizzes use their own
// Conversation through Chat.
type Gateway struct {
	mu   sync.Mutex
	cfg  Config
	api  *openai.Client // nil until an API key is configured
	conv *Conversation
	busy bool
}

// New creates a gateway. A blank API key leaves it not ready.
func New(cfg Config) *Gateway {
	if cfg.Model == "" {
		cfg.Model = model.DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	g := &Gateway{cfg: cfg, conv: &Conversation{}}
	g.api = newClient(cfg)
	return g
}

func newClient(cfg Config) *openai.Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL
	return openai.NewClientWithConfig(config)
}

// Configure replaces the credentials and model and starts a new default
// conversation. A blank key always leaves the gateway not configured, even
// when the model is rejected. Configure fails with ErrBusy while a request
// is in flight.
func (g *Gateway) Configure(apiKey, modelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return ErrBusy
	}

	if strings.TrimSpace(apiKey) == "" {
		g.cfg.APIKey = ""
		g.api = nil
		g.conv.Reset()
		slog.Info("model gateway cleared")
		if modelID == "" {
			return nil
		}
		if !model.IsAllowedModel(modelID) {
			return fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
		}
		g.cfg.Model = modelID
		return nil
	}

	if modelID == "" {
		modelID = model.DefaultModel
	}
	if !model.IsAllowedModel(modelID) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	g.cfg.APIKey = apiKey
	g.cfg.Model = modelID
	g.api = newClient(g.cfg)
	g.conv.Reset()
	slog.Info("model gateway configured", "model", modelID)
	return nil
}

// IsReady reports whether an API key is set.
func (g *Gateway) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.api != nil
}

// Model returns the configured model identifier.
func (g *Gateway) Model() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.Model
}

// ResetConversation discards the default conversation. A reply still in
// flight is not added to the new one.
func (g *Gateway) ResetConversation() {
	g.conv.Reset()
}

// GenerateQuiz sends the user's material in the default conversation.
func (g *Gateway) GenerateQuiz(ctx context.Context, req GenerateRequest) (string, error) {
	return g.Chat(g.conv).GenerateQuiz(ctx, req)
}

// GradeFreeAnswer grades a free answer in the default conversation.
func (g *Gateway) GradeFreeAnswer(ctx context.Context, q model.Question, answer string) (string, error) {
	return g.Chat(g.conv).GradeFreeAnswer(ctx, q, answer)
}

// Chat binds the gateway to a conversation.
func (g *Gateway) Chat(c *Conversation) *Chat {
	return &Chat{g: g, conv: c}
}

// Chat sends requests through a gateway within one conversation.
type Chat struct {
	g    *Gateway
	conv *Conversation
}

// GenerateQuiz sends the user's material and returns the raw model reply.
func (c *Chat) GenerateQuiz(ctx context.Context, req GenerateRequest) (string, error) {
	raw, err := c.generate(ctx, "generate quiz", req)
	if err != nil {
		return "", err
	}
	slog.Info("quiz reply received", "images", len(req.Images), "urls", len(req.URLs), "bytes", len(raw))
	return raw, nil
}

// GradeFreeAnswer asks the model to grade one free answer and returns the
// raw reply. The grading prompt carries its own JSON example and is sent
// as a follow request, in the language of the conversation's quiz.
func (c *Chat) GradeFreeAnswer(ctx context.Context, q model.Question, answer string) (string, error) {
	c.conv.mu.Lock()
	lang := c.conv.language
	c.conv.mu.Unlock()

	prompt, err := prompts.BuildGradePrompt(q, answer, lang)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}
	return c.generate(ctx, "grade answer", GenerateRequest{Text: prompt})
}

func (c *Chat) generate(ctx context.Context, op string, req GenerateRequest) (string, error) {
	if len(req.Images) > media.MaxImages {
		return "", media.ErrTooManyImages
	}

	data := prompts.QuizData{
		Notes:         req.Text,
		URLs:          req.URLs,
		ImageCount:    len(req.Images),
		Language:      req.Language,
		QuestionCount: req.QuestionCount,
	}
	var (
		prompt   string
		language string
		err      error
	)
	if req.QuizMode {
		prompt, err = prompts.BuildQuizPrompt(data)
		language = req.Language
	} else {
		prompt, err = prompts.BuildFollowPrompt(data)
	}
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}
	return c.g.send(ctx, c.conv, op, userMessage(prompt, req.Images), language)
}

// Ping checks that the endpoint accepts the configured key.
func (g *Gateway) Ping(ctx context.Context) error {
	g.mu.Lock()
	api := g.api
	g.mu.Unlock()
	if api == nil {
		return ErrNotConfigured
	}
	if _, err := api.ListModels(ctx); err != nil {
		return &TransportError{Op: "list models", Err: err}
	}
	return nil
}

// send runs one chat turn in conv. A non-empty language is recorded on the
// conversation when the reply is kept.
func (g *Gateway) send(ctx context.Context, conv *Conversation, op string, msg openai.ChatCompletionMessage, language string) (string, error) {
	g.mu.Lock()
	if g.api == nil {
		g.mu.Unlock()
		return "", ErrNotConfigured
	}
	if g.busy {
		g.mu.Unlock()
		return "", ErrBusy
	}
	g.busy = true
	api := g.api
	cfg := g.cfg
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.busy = false
		g.mu.Unlock()
	}()

	msgs, epoch := conv.begin(msg)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    msgs,
		Temperature: cfg.Temperature,
	}
	if cfg.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("model call failed", "op", op, "model", cfg.Model, "error", err)
		return "", &TransportError{Op: op, Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &TransportError{Op: op, Err: errEmptyReply}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("model reply", "op", op, "elapsed", time.Since(start), "raw", raw)

	if !conv.commit(epoch, msg, raw, language) {
		slog.Debug("conversation reset during request, reply not kept", "op", op)
	}
	return raw, nil
}

func userMessage(text string, images []media.Image) openai.ChatCompletionMessage {
	if len(images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURL(),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}
