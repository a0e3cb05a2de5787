package sources

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackzampolin/syncbridge/internal/ratelimit"
)

// HTTPESAdapter talks to the ebook sync service over its progress API.
type HTTPESAdapter struct {
	cfg httpConfig
}

// NewHTTPESAdapter creates an ESAdapter against baseURL using a bearer
// token. httpClient and limiter are optional (nil uses sane defaults).
func NewHTTPESAdapter(baseURL, token string, httpClient *http.Client, limiter *ratelimit.Limiter) *HTTPESAdapter {
	return &HTTPESAdapter{cfg: httpConfig{BaseURL: baseURL, Token: token, HTTPClient: httpClient, Limiter: limiter}}
}

type esProgressResponse struct {
	Percentage float64 `json:"percentage"`
}

type esProgressRequest struct {
	Percentage float64 `json:"percentage"`
	Locator    string  `json:"locator,omitempty"`
}

// GetProgress returns the ebook's current position as a fraction in [0,1].
func (e *HTTPESAdapter) GetProgress(ctx context.Context, esDocID string) (float64, error) {
	var resp esProgressResponse
	path := fmt.Sprintf("/syncs/progress/%s", esDocID)
	if err := e.cfg.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Percentage, nil
}

// UpdateProgress writes the ebook's position as a fraction plus its
// document locator.
func (e *HTTPESAdapter) UpdateProgress(ctx context.Context, esDocID string, fraction float64, locator string) error {
	path := fmt.Sprintf("/syncs/progress/%s", esDocID)
	return e.cfg.doJSON(ctx, http.MethodPut, path, esProgressRequest{Percentage: fraction, Locator: locator}, nil)
}
