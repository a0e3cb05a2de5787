package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/syncbridge/internal/ratelimit"
	"github.com/jackzampolin/syncbridge/internal/syncerr"
)

// httpConfig is the shared shape for AB/ES's bearer-token HTTP clients.
type httpConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
	MaxRetries uint
}

func (c *httpConfig) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *httpConfig) attempts() uint {
	if c.MaxRetries == 0 {
		return 3
	}
	return c.MaxRetries
}

// doJSON issues method against path with an optional JSON body, retrying
// transient failures, and decodes the response into out (if non-nil).
func (c *httpConfig) doJSON(ctx context.Context, method, path string, body, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return syncerr.New(syncerr.KindTransientIO, "rate limiter wait failed", err)
		}
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(bodyBytes))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if c.Token != "" {
				req.Header.Set("Authorization", "Bearer "+c.Token)
			}
			if bodyBytes != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.client().Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			if resp.StatusCode >= 500 {
				return fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("request error %d: %s", resp.StatusCode, respBody))
			}

			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts()),
		retry.Delay(500*time.Millisecond),
	)
	if err != nil {
		return syncerr.New(syncerr.KindTransientIO, fmt.Sprintf("%s %s failed", method, path), err)
	}
	return nil
}
