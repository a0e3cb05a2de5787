package sources

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackzampolin/syncbridge/internal/ratelimit"
)

// HTTPABAdapter talks to the audiobook server over its progress API.
type HTTPABAdapter struct {
	cfg httpConfig
}

// NewHTTPABAdapter creates an ABAdapter against baseURL using a bearer
// token. httpClient and limiter are optional (nil uses sane defaults).
func NewHTTPABAdapter(baseURL, token string, httpClient *http.Client, limiter *ratelimit.Limiter) *HTTPABAdapter {
	return &HTTPABAdapter{cfg: httpConfig{BaseURL: baseURL, Token: token, HTTPClient: httpClient, Limiter: limiter}}
}

type abProgressResponse struct {
	Seconds float64 `json:"seconds"`
}

type abProgressRequest struct {
	Seconds float64 `json:"seconds"`
}

type abItemResponse struct {
	Media struct {
		AudioFiles []struct {
			Path string `json:"path"`
		} `json:"audioFiles"`
	} `json:"media"`
}

// GetProgress returns the audiobook's current position in seconds.
func (a *HTTPABAdapter) GetProgress(ctx context.Context, abID string) (float64, error) {
	var resp abProgressResponse
	path := fmt.Sprintf("/api/items/%s/progress", abID)
	if err := a.cfg.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Seconds, nil
}

// UpdateProgress writes the audiobook's position in seconds.
func (a *HTTPABAdapter) UpdateProgress(ctx context.Context, abID string, seconds float64) error {
	path := fmt.Sprintf("/api/items/%s/progress", abID)
	return a.cfg.doJSON(ctx, http.MethodPut, path, abProgressRequest{Seconds: seconds}, nil)
}

// ListAudioFiles returns the on-disk paths of an audiobook's audio files,
// in library order, the jobctl.AudioSource contract transcription needs.
func (a *HTTPABAdapter) ListAudioFiles(ctx context.Context, abID string) ([]string, error) {
	var resp abItemResponse
	path := fmt.Sprintf("/api/items/%s", abID)
	if err := a.cfg.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(resp.Media.AudioFiles))
	for _, f := range resp.Media.AudioFiles {
		paths = append(paths, f.Path)
	}
	return paths, nil
}
