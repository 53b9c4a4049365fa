package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
)

// Service downloads documents over HTTP with browser-like headers, a
// body size cap and per-domain politeness delays.
type Service struct {
	logger      arbor.ILogger
	client      *http.Client
	limiter     *RateLimiter
	userAgent   string
	maxBodySize int64
}

var _ interfaces.FetchProvider = (*Service)(nil)

// NewService creates a fetch provider from configuration.
func NewService(config *common.FetchConfig, logger arbor.ILogger) *Service {
	maxBody := int64(config.MaxBodySize)
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}

	return &Service{
		logger: logger,
		client: &http.Client{
			Timeout: common.Duration(config.Timeout, 30*time.Second),
		},
		limiter:     NewRateLimiter(common.Duration(config.DomainDelay, 500*time.Millisecond)),
		userAgent:   config.UserAgent,
		maxBodySize: maxBody,
	}
}

// Fetch downloads one URL. Failures are classified so callers can tell
// dead links from timeouts and blocked hosts apart.
func (s *Service) Fetch(ctx context.Context, url string) (*models.FetchResult, error) {
	if err := s.limiter.Wait(ctx, url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.FetchError{URL: url, Kind: models.FetchErrorNotFound, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	startTime := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		kind := classifyStatus(resp.StatusCode)
		s.logger.Debug().
			Str("url", url).
			Int("status", resp.StatusCode).
			Str("kind", string(kind)).
			Msg("Fetch rejected by server")
		return nil, &models.FetchError{
			URL:        url,
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server returned %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, classifyTransportError(url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	s.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Str("content_type", contentType).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched document")

	return &models.FetchResult{
		URL:         url,
		Body:        body,
		ContentType: normalizeContentType(contentType),
		StatusCode:  resp.StatusCode,
	}, nil
}

func classifyStatus(status int) models.FetchErrorKind {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return models.FetchErrorNotFound
	case status == http.StatusForbidden || status == http.StatusUnauthorized || status == http.StatusTooManyRequests:
		return models.FetchErrorBlocked
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.FetchErrorTimeout
	default:
		return models.FetchErrorBlocked
	}
}

func classifyTransportError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &models.FetchError{URL: url, Kind: models.FetchErrorTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &models.TransportError{Op: "fetch", URL: url, Err: err}
}

// normalizeContentType strips parameters like charset, keeping just the
// media type.
func normalizeContentType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}
