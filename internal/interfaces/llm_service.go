package interfaces

import (
	"context"
)

// LLMService defines the interface for language model operations: chat
// completions, schema-constrained structured output, and embeddings.
// Implementations may use Gemini or Claude; embeddings use a fixed
// dimensionality that must stay consistent across a session.
type LLMService interface {
	// Complete generates a free-form text completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteStructured generates a completion constrained by a JSON
	// schema (expressed as a generic map so schemas can live in config).
	// Providers without native schema support return raw text which the
	// caller must parse; the caller is responsible for treating an
	// unparsable response as a ParsingError.
	CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error)

	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedDimension returns the fixed dimensionality of produced vectors.
	EmbedDimension() int

	// Close releases provider clients.
	Close() error
}
