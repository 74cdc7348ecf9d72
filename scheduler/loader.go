package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hupe1980/mediacache/cache"
	"github.com/hupe1980/mediacache/internal/resource"
)

// Loader fetches the bytes behind a media URL. Implementations must honor
// context cancellation and return the payload for the URL as served, without
// any further transformation.
type Loader interface {
	Load(ctx context.Context, url string) (cache.Payload, error)
}

// LoaderFunc is an adapter to allow the use of ordinary functions as loaders.
type LoaderFunc func(ctx context.Context, url string) (cache.Payload, error)

// Load calls f(ctx, url).
func (f LoaderFunc) Load(ctx context.Context, url string) (cache.Payload, error) {
	return f(ctx, url)
}

// HTTPLoader loads media over HTTP. The response body is read through the
// resource controller's rate limiter, so prefetch traffic stays within the
// configured IO budget.
type HTTPLoader struct {
	client *http.Client
	rc     *resource.Controller
}

// NewHTTPLoader creates a new HTTPLoader. A nil client falls back to
// http.DefaultClient, a nil controller disables rate limiting.
func NewHTTPLoader(client *http.Client, rc *resource.Controller) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPLoader{
		client: client,
		rc:     rc,
	}
}

// Load fetches the URL and returns its body.
func (l *HTTPLoader) Load(ctx context.Context, url string) (cache.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cache.Payload{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return cache.Payload{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cache.Payload{}, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resource.NewRateLimitedReader(ctx, resp.Body, l.rc))
	if err != nil {
		return cache.Payload{}, fmt.Errorf("read body: %w", err)
	}

	return cache.Payload{Data: data}, nil
}
