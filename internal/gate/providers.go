package gate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
)

// Provider names used for fingerprinting, rate limiting and cache TTLs.
const (
	ProviderSearch = "search"
	ProviderFetch  = "fetch"
	ProviderLLM    = "llm"
	ProviderEmbed  = "embed"
)

// GatedSearch routes a search provider through the gate.
type GatedSearch struct {
	gate     *Gate
	upstream interfaces.SearchProvider
}

var _ interfaces.SearchProvider = (*GatedSearch)(nil)

func NewGatedSearch(gate *Gate, upstream interfaces.SearchProvider) *GatedSearch {
	return &GatedSearch{gate: gate, upstream: upstream}
}

func (s *GatedSearch) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	request := map[string]interface{}{
		"op":          "search",
		"query":       query,
		"max_results": maxResults,
	}

	raw, err := s.gate.Call(ctx, ProviderSearch, request, func(ctx context.Context) ([]byte, error) {
		results, err := s.upstream.Search(ctx, query, maxResults)
		if err != nil {
			return nil, err
		}
		return json.Marshal(results)
	})
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("failed to decode cached search results: %w", err)
	}
	return results, nil
}

// GatedFetch routes page fetches through the gate.
type GatedFetch struct {
	gate     *Gate
	upstream interfaces.FetchProvider
}

var _ interfaces.FetchProvider = (*GatedFetch)(nil)

func NewGatedFetch(gate *Gate, upstream interfaces.FetchProvider) *GatedFetch {
	return &GatedFetch{gate: gate, upstream: upstream}
}

func (f *GatedFetch) Fetch(ctx context.Context, url string) (*models.FetchResult, error) {
	request := map[string]interface{}{
		"op":  "fetch",
		"url": url,
	}

	raw, err := f.gate.Call(ctx, ProviderFetch, request, func(ctx context.Context) ([]byte, error) {
		result, err := f.upstream.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		return nil, err
	}

	var result models.FetchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached fetch result: %w", err)
	}
	return &result, nil
}

// GatedLLM routes completions, structured completions and embeddings
// through the gate. Completions and embeddings use separate provider
// buckets since upstream rate limits differ.
type GatedLLM struct {
	gate     *Gate
	upstream interfaces.LLMService
	model    string
}

var _ interfaces.LLMService = (*GatedLLM)(nil)

// NewGatedLLM wraps an LLM service. The model name participates in the
// fingerprint so switching models never serves stale responses.
func NewGatedLLM(gate *Gate, upstream interfaces.LLMService, model string) *GatedLLM {
	return &GatedLLM{gate: gate, upstream: upstream, model: model}
}

func (l *GatedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	request := map[string]interface{}{
		"op":     "complete",
		"model":  l.model,
		"prompt": prompt,
	}

	raw, err := l.gate.Call(ctx, ProviderLLM, request, func(ctx context.Context) ([]byte, error) {
		text, err := l.upstream.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return json.Marshal(text)
	})
	if err != nil {
		return "", err
	}

	return decodeString(raw)
}

func (l *GatedLLM) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error) {
	request := map[string]interface{}{
		"op":     "complete_structured",
		"model":  l.model,
		"prompt": prompt,
		"schema": schema,
	}

	raw, err := l.gate.Call(ctx, ProviderLLM, request, func(ctx context.Context) ([]byte, error) {
		text, err := l.upstream.CompleteStructured(ctx, prompt, schema)
		if err != nil {
			return nil, err
		}
		return json.Marshal(text)
	})
	if err != nil {
		return "", err
	}

	return decodeString(raw)
}

func (l *GatedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]interface{}{
		"op":    "embed",
		"model": l.model,
		"text":  text,
	}

	raw, err := l.gate.Call(ctx, ProviderEmbed, request, func(ctx context.Context) ([]byte, error) {
		vector, err := l.upstream.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(vector)
	})
	if err != nil {
		return nil, err
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return vector, nil
}

func (l *GatedLLM) EmbedDimension() int {
	return l.upstream.EmbedDimension()
}

func (l *GatedLLM) Close() error {
	return l.upstream.Close()
}

func decodeString(raw []byte) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("failed to decode cached completion: %w", err)
	}
	return text, nil
}
