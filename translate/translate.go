// Package translate localizes short phrases through the public Google
// translate endpoint. Failures degrade to the untranslated input since a
// translated prefix is nice to have, never required.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"top10-pipeline/cache"
	"top10-pipeline/logging"
)

const endpoint = "https://translate.googleapis.com/translate_a/single"

var langCodes = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"hindi":      "hi",
	"japanese":   "ja",
	"korean":     "ko",
	"arabic":     "ar",
	"russian":    "ru",
	"turkish":    "tr",
}

// Translator turns short English phrases into the target language.
type Translator struct {
	httpClient *http.Client
	store      *cache.Store
}

// New builds a Translator. The cache store may be nil.
func New(store *cache.Store) *Translator {
	return &Translator{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		store:      store,
	}
}

// Translate returns text in the named language, or text unchanged when the
// language is English, unknown, or the service is unreachable.
func (t *Translator) Translate(ctx context.Context, text, language string) string {
	code, ok := langCodes[strings.ToLower(strings.TrimSpace(language))]
	if !ok || code == "en" {
		return text
	}

	key := map[string]any{"text": text, "lang": code}
	if t.store != nil {
		var cached string
		if hit, _ := t.store.Get(key, "translations", &cached); hit && cached != "" {
			return cached
		}
	}

	out, err := t.fetch(ctx, text, code)
	if err != nil {
		log := logging.For("translate")
		log.Warn().Str("lang", code).Err(err).Msg("translation failed, keeping original")
		return text
	}
	if t.store != nil {
		t.store.Set(key, out, "translations")
	}
	return out
}

func (t *Translator) fetch(ctx context.Context, text, code string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "en")
	q.Set("tl", code)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate returned HTTP %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	// Response shape: [[["translated","source",...],...],...]
	var payload []any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("parse translate response: %w", err)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("empty translate response")
	}
	chunks, ok := payload[0].([]any)
	if !ok {
		return "", fmt.Errorf("unexpected translate response shape")
	}
	var sb strings.Builder
	for _, c := range chunks {
		pair, ok := c.([]any)
		if !ok || len(pair) == 0 {
			continue
		}
		if s, ok := pair[0].(string); ok {
			sb.WriteString(s)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("translate returned no text")
	}
	return sb.String(), nil
}
