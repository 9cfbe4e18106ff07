package ical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultUserAgent identifies this engine to remote calendar hosts.
const DefaultUserAgent = "FamilyHub-Calendar/1.0"

// Fetcher retrieves raw iCalendar documents over HTTP(S). Feeds are assumed
// to be public; no authentication is attempted. Retries are the caller's
// responsibility.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewFetcher builds a fetcher with a bounded request timeout.
func NewFetcher(timeout time.Duration, userAgent string, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch downloads the feed body. A non-2xx status is a fatal error for this
// attempt and transport errors propagate unchanged.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("feed URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch calendar: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read calendar body: %w", err)
	}

	f.logger.Debug("feed fetched", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, nil
}
