package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	kerrors "github.com/keepstack/keeprag/internal/errors"
)

// Generation parameters for answer synthesis.
const (
	defaultTemperature     = 0.7
	defaultMaxOutputTokens = 30000
)

// GeminiConfig configures the Gemini model client.
type GeminiConfig struct {
	// BaseURL is the API endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey authenticates requests. Required.
	APIKey string

	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string

	// GenerationModel is the model used by Generate.
	GenerationModel string

	// Dimensions is the embedding dimension. Defaults to DefaultDimensions.
	Dimensions int

	// Retry is the per-call retry policy. Defaults to the fixed
	// 3-attempt / 1-second policy.
	Retry kerrors.RetryConfig
}

// GeminiClient talks to the Google Generative Language HTTP API.
// Each outbound call applies the configured retry policy locally; after
// exhausting attempts the last error is raised to the caller. There is no
// circuit breaker across calls and no explicit per-call timeout beyond
// transport defaults.
type GeminiClient struct {
	client *http.Client
	config GeminiConfig
}

// Verify interface implementations at compile time
var (
	_ Embedder  = (*GeminiClient)(nil)
	_ Generator = (*GeminiClient)(nil)
)

// NewGeminiClient creates a model client with defaults applied.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, kerrors.New(kerrors.ErrCodeConfigInvalid, "model API key is required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = kerrors.FixedRetryConfig()
	}

	return &GeminiClient{
		client: &http.Client{},
		config: cfg,
	}, nil
}

// Embed generates an embedding for a single text with the given intent.
// A missing or empty vector in a 200 response is treated as retryable.
func (c *GeminiClient) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	return kerrors.RetryWithResult(ctx, c.config.Retry, func() ([]float32, error) {
		vec, err := c.doEmbed(ctx, text, task)
		if err != nil {
			slog.Debug("embed_attempt_failed",
				slog.String("model", c.config.EmbeddingModel),
				slog.String("task", string(task)),
				slog.String("error", err.Error()))
		}
		return vec, err
	})
}

func (c *GeminiClient) doEmbed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	reqBody := embedRequest{
		Model:    "models/" + c.config.EmbeddingModel,
		Content:  apiContent{Parts: []apiPart{{Text: text}}},
		TaskType: task,
	}

	var result embedResponse
	if err := c.post(ctx, c.config.EmbeddingModel, "embedContent", reqBody, &result); err != nil {
		return nil, kerrors.Wrap(kerrors.ErrCodeEmbedFailed, err)
	}

	if len(result.Embedding.Values) == 0 {
		return nil, kerrors.New(kerrors.ErrCodeEmptyVector, "embedding response carried no vector", nil)
	}

	vec := make([]float32, len(result.Embedding.Values))
	for i, v := range result.Embedding.Values {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Generate produces text from a prompt using the generation model.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generateWith(ctx, c.config.GenerationModel, prompt)
}

// GeneratorFor returns a Generator view bound to a specific model, e.g. the
// cheaper summary model used during section compression.
func (c *GeminiClient) GeneratorFor(model string) Generator {
	return &boundGenerator{client: c, model: model}
}

type boundGenerator struct {
	client *GeminiClient
	model  string
}

func (g *boundGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.generateWith(ctx, g.model, prompt)
}

func (c *GeminiClient) generateWith(ctx context.Context, model, prompt string) (string, error) {
	return kerrors.RetryWithResult(ctx, c.config.Retry, func() (string, error) {
		text, err := c.doGenerate(ctx, model, prompt)
		if err != nil {
			slog.Debug("generate_attempt_failed",
				slog.String("model", model),
				slog.String("error", err.Error()))
		}
		return text, err
	})
}

func (c *GeminiClient) doGenerate(ctx context.Context, model, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []apiContent{{Parts: []apiPart{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
	}

	var result generateResponse
	if err := c.post(ctx, model, "generateContent", reqBody, &result); err != nil {
		return "", kerrors.Wrap(kerrors.ErrCodeGenerateFailed, err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", kerrors.New(kerrors.ErrCodeGenerateFailed, "generation response carried no candidates", nil)
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

// post sends one API call and decodes the response into out.
func (c *GeminiClient) post(ctx context.Context, model, method string, in, out any) error {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s",
		c.config.BaseURL, model, method, url.QueryEscape(c.config.APIKey))

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed with status %d: %s", method, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (c *GeminiClient) Dimensions() int {
	return c.config.Dimensions
}

// ModelName returns the embedding model identifier.
func (c *GeminiClient) ModelName() string {
	return c.config.EmbeddingModel
}
