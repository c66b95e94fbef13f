// Package embed wraps the external model service: embedding generation for
// ingestion and queries, and text generation for summaries and answers.
package embed

import (
	"context"
)

// TaskType tags an embedding request with its asymmetric intent. Documents
// and queries share a vector space but use different internal weighting, so
// the tag must match how the vector will be used.
type TaskType string

const (
	// TaskDocument is the intent for ingestion-time chunk embeddings.
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
	// TaskQuery is the intent for query-time question embeddings.
	TaskQuery TaskType = "RETRIEVAL_QUERY"
)

// Default model configuration.
const (
	// DefaultBaseURL is the Google Generative Language API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultEmbeddingModel produces 768-dimension vectors.
	DefaultEmbeddingModel = "text-embedding-004"

	// DefaultGenerationModel is used for answer synthesis.
	DefaultGenerationModel = "gemini-2.5-pro"

	// DefaultSummaryModel is used for section compression.
	DefaultSummaryModel = "gemini-2.5-flash"

	// DefaultDimensions is the embedding dimension for the default model.
	DefaultDimensions = 768
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	// Embed generates an embedding for a single text with the given intent.
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string
}

// Generator produces free-form text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request/response shapes for the generative language API.

type apiPart struct {
	Text string `json:"text"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type embedRequest struct {
	Model    string     `json:"model"`
	Content  apiContent `json:"content"`
	TaskType TaskType   `json:"taskType"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []apiContent      `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content apiContent `json:"content"`
	} `json:"candidates"`
}
