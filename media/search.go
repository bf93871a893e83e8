// Package media finds and downloads visual assets for segments.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"top10-pipeline/cache"
	"top10-pipeline/logging"
	"top10-pipeline/services"
)

// Searcher finds remote asset URLs for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Name() string
}

// BingImages scrapes the Bing image results page for full-size image URLs.
type BingImages struct {
	httpClient *http.Client
	store      *cache.Store
}

// NewBingImages builds an HTML-scraping image searcher. store may be nil.
func NewBingImages(store *cache.Store) *BingImages {
	return &BingImages{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
	}
}

func (b *BingImages) Name() string { return "bing" }

// Search returns up to limit image URLs for query.
func (b *BingImages) Search(ctx context.Context, query string, limit int) ([]string, error) {
	key := map[string]any{"engine": "bing", "q": query, "n": limit}
	if b.store != nil {
		var cached []string
		if hit, _ := b.store.Get(key, "media_search", &cached); hit && len(cached) > 0 {
			return cached, nil
		}
	}

	searchURL := "https://www.bing.com/images/search?q=" + url.QueryEscape(query) + "&form=HDRSC2"
	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &services.HTTPError{Service: "bing", StatusCode: resp.StatusCode, Body: string(body)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse bing page: %w", err)
	}

	urls := extractBingURLs(doc, limit)
	if len(urls) == 0 {
		return nil, fmt.Errorf("bing returned no images for %q", query)
	}
	if b.store != nil {
		b.store.Set(key, urls, "media_search")
	}
	return urls, nil
}

// extractBingURLs pulls full-size URLs from the `m` metadata attribute of
// each result tile.
func extractBingURLs(doc *goquery.Document, limit int) []string {
	var urls []string
	seen := make(map[string]bool)

	doc.Find("a.iusc").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		meta, ok := sel.Attr("m")
		if !ok {
			return true
		}
		var payload struct {
			MediaURL string `json:"murl"`
		}
		if err := json.Unmarshal([]byte(meta), &payload); err != nil {
			return true
		}
		u := strings.TrimSpace(payload.MediaURL)
		if u == "" || seen[u] || !strings.HasPrefix(u, "http") {
			return true
		}
		seen[u] = true
		urls = append(urls, u)
		return len(urls) < limit
	})
	return urls
}

const pexelsEndpoint = "https://api.pexels.com/videos/search"

// PexelsVideos queries the Pexels video search API.
type PexelsVideos struct {
	apiKey     string
	httpClient *http.Client
	store      *cache.Store
}

// NewPexelsVideos builds a Pexels searcher. store may be nil.
func NewPexelsVideos(apiKey string, store *cache.Store) *PexelsVideos {
	return &PexelsVideos{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
	}
}

func (p *PexelsVideos) Name() string { return "pexels" }

type pexelsResponse struct {
	Videos []struct {
		VideoFiles []struct {
			Link   string `json:"link"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"video_files"`
	} `json:"videos"`
}

// Search returns up to limit downloadable video URLs for query.
func (p *PexelsVideos) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("PEXELS_API_KEY not set")
	}

	key := map[string]any{"engine": "pexels", "q": query, "n": limit}
	if p.store != nil {
		var cached []string
		if hit, _ := p.store.Get(key, "media_search", &cached); hit && len(cached) > 0 {
			return cached, nil
		}
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", fmt.Sprint(limit))
	q.Set("orientation", "landscape")

	req, err := http.NewRequestWithContext(ctx, "GET", pexelsEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &services.HTTPError{Service: "pexels", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out pexelsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse pexels response: %w", err)
	}

	var urls []string
	for _, v := range out.Videos {
		best := ""
		bestWidth := 0
		for _, f := range v.VideoFiles {
			// Prefer the widest file that is still HD-ish, not 4K.
			if f.Width > bestWidth && f.Width <= 1920 {
				best = f.Link
				bestWidth = f.Width
			}
		}
		if best != "" {
			urls = append(urls, best)
		}
		if len(urls) >= limit {
			break
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("pexels returned no videos for %q", query)
	}
	if p.store != nil {
		p.store.Set(key, urls, "media_search")
	}
	log := logging.For("media")
	log.Debug().Str("query", query).Int("found", len(urls)).Msg("pexels search done")
	return urls, nil
}
