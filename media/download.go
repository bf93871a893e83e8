package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"top10-pipeline/logging"
)

// minAssetBytes rejects error pages and tracking pixels masquerading as
// media files.
const minAssetBytes = 1024

// Downloader streams remote assets into a segment's working directory.
type Downloader struct {
	httpClient *http.Client
}

// NewDownloader builds a Downloader with the given per-file timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Downloader{httpClient: &http.Client{Timeout: timeout}}
}

// Fetch downloads url into destPath, creating parent directories. Files
// smaller than a sane minimum are discarded as junk.
func (d *Downloader) Fetch(ctx context.Context, rawURL, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create asset dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", rawURL, resp.StatusCode)
	}

	tmp := destPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	if n < minAssetBytes {
		os.Remove(tmp)
		return fmt.Errorf("download %s: suspiciously small file (%d bytes)", rawURL, n)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return err
	}
	log := logging.For("media")
	log.Debug().Str("file", filepath.Base(destPath)).Int64("bytes", n).Msg("downloaded")
	return nil
}

// FetchFirst tries each url in order and keeps the first want successes.
// It returns the local paths written; fewer than want is not an error as
// long as at least one file landed.
func (d *Downloader) FetchFirst(ctx context.Context, urls []string, dir, prefix string, want int) ([]string, error) {
	var paths []string
	var lastErr error
	for i, u := range urls {
		if len(paths) >= want {
			break
		}
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		dest := filepath.Join(dir, fmt.Sprintf("%s_%02d%s", prefix, i, extFor(u)))
		if err := d.Fetch(ctx, u, dest); err != nil {
			lastErr = err
			continue
		}
		paths = append(paths, dest)
	}
	if len(paths) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no urls to download")
		}
		return nil, lastErr
	}
	return paths, nil
}

func extFor(rawURL string) string {
	ext := filepath.Ext(rawURL)
	if i := len(ext); i > 5 || i == 0 {
		return ".jpg"
	}
	// Strip query strings that leaked into the extension.
	for i, r := range ext {
		if r == '?' || r == '&' {
			ext = ext[:i]
			break
		}
	}
	if ext == "." || ext == "" {
		return ".jpg"
	}
	return ext
}
