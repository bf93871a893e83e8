// Package textgen provides text-generation backends behind one interface.
package textgen

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Generator produces free text from a natural-language prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

// retryAfter parses a Retry-After header in seconds, 0 when absent.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
