package textgen

import (
	"context"
	"fmt"

	"top10-pipeline/logging"
	"top10-pipeline/services"
)

// Fallback tries a primary backend and switches to a secondary one when
// the primary fails through the retry layer.
type Fallback struct {
	primary   Generator
	secondary Generator
	adapter   *services.Adapter
	retries   int
}

// NewFallback wires two backends behind the shared retry adapter.
func NewFallback(primary, secondary Generator, adapter *services.Adapter, retries int) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, adapter: adapter, retries: retries}
}

func (f *Fallback) Name() string { return f.primary.Name() }

// Generate runs the prompt through the primary backend with retries, then
// the secondary. Both failing is a hard error carrying the last cause.
func (f *Fallback) Generate(ctx context.Context, prompt string) (string, error) {
	log := logging.For("textgen")

	text, err := services.Call(ctx, f.adapter, f.primary.Name(), f.retries, func(ctx context.Context) (string, error) {
		return f.primary.Generate(ctx, prompt)
	})
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if f.secondary == nil {
		return "", err
	}

	log.Warn().Str("primary", f.primary.Name()).Err(err).Msg("primary backend failed, switching")
	text, err2 := services.Call(ctx, f.adapter, f.secondary.Name(), f.retries, func(ctx context.Context) (string, error) {
		return f.secondary.Generate(ctx, prompt)
	})
	if err2 != nil {
		return "", fmt.Errorf("all text backends failed: %w", err2)
	}
	return text, nil
}
