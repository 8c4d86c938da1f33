package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"github.com/repteam/rep/internal/shared"
)

// Default generation settings.
const (
	DefaultTemperature     float32 = 0.7
	DefaultMaxOutputTokens int32   = 500
	DefaultAPIVersion              = "v1alpha"
)

// DefaultModels is the fallback order for text generation.
var DefaultModels = []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-1.5-flash", "gemini-flash-latest"}

// DefaultATSModels is the fallback order for the ATS analysis layers.
var DefaultATSModels = []string{"gemini-2.0-flash-exp", "gemini-2.0-flash", "gemini-1.5-pro-latest", "gemini-pro"}

var (
	leadingFence  = regexp.MustCompile("^```[a-zA-Z]*\\s*\\n?")
	trailingFence = regexp.MustCompile("\\n?```\\s*$")
)

// ModelClient generates text with one specific model.
type ModelClient interface {
	GenerateContent(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error)
}

// GenAIClient implements [ModelClient] with the Gemini API.
type GenAIClient struct {
	client *genai.Client
}

// NewGenAIClient creates a Gemini client for cfg. An empty API key is [shared.ErrMissingCredentials].
func NewGenAIClient(ctx context.Context, cfg shared.AIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", shared.ErrMissingCredentials)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: shared.FirstNonEmpty(cfg.APIVersion, DefaultAPIVersion),
			BaseURL:    cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIClient{client: client}, nil
}

func (g *GenAIClient) GenerateContent(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(opts.Temperature),
		MaxOutputTokens: opts.MaxOutputTokens,
	}
	if opts.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// FallbackGenerator implements [Generator] by trying each model in order until one returns text.
type FallbackGenerator struct {
	client          ModelClient
	models          []string
	temperature     float32
	maxOutputTokens int32
	logger          *log.Logger
}

// NewFallbackGenerator creates a generator over client using the models and defaults in cfg.
// A nil client is allowed and makes every call fail with [shared.ErrMissingCredentials].
func NewFallbackGenerator(client ModelClient, cfg shared.AIConfig, logger *log.Logger) *FallbackGenerator {
	g := &FallbackGenerator{
		client:          client,
		models:          cfg.Models,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		logger:          logger,
	}
	if len(g.models) == 0 {
		g.models = DefaultModels
	}
	if g.temperature == 0 {
		g.temperature = DefaultTemperature
	}
	if g.maxOutputTokens == 0 {
		g.maxOutputTokens = DefaultMaxOutputTokens
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	return g
}

// Generate returns the fence-stripped text of the first model that answers.
//
// An invalid API key stops immediately. Any other error, or an empty answer, moves on to the next model.
func (g *FallbackGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is not set", shared.ErrMissingCredentials)
	}

	models := opts.Models
	if len(models) == 0 {
		models = g.models
	}
	if opts.Temperature == 0 {
		opts.Temperature = g.temperature
	}
	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = g.maxOutputTokens
	}

	var lastErr error
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		g.logger.Debug("attempting generation", "model", model)

		text, err := g.client.GenerateContent(ctx, model, prompt, opts)
		if err != nil {
			if strings.Contains(err.Error(), "API_KEY_INVALID") {
				return "", fmt.Errorf("%w: %w", shared.ErrInvalidAPIKey, err)
			}
			g.logger.Warn("generation failed", "model", model, "error", err)
			lastErr = err
			continue
		}

		text = StripFences(text)
		if text == "" {
			g.logger.Warn("generation returned no text", "model", model)
			lastErr = shared.ErrEmptyResponse
			continue
		}
		return text, nil
	}

	if lastErr == nil {
		lastErr = shared.ErrEmptyResponse
	}
	return "", fmt.Errorf("%w: tried %d models: %w", shared.ErrAllModelsFailed, len(models), lastErr)
}

// StripFences removes a leading markdown fence (with optional language tag) and a trailing fence.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// IsInvalidKey reports whether err came from a rejected API key.
func IsInvalidKey(err error) bool {
	return errors.Is(err, shared.ErrInvalidAPIKey)
}
