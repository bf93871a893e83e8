// Package publish uploads finished videos to YouTube.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"top10-pipeline/config"
	"top10-pipeline/logging"
	"top10-pipeline/types"
)

// Metadata is what the watch page shows for an uploaded video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Visibility  string
}

// Uploader drives the YouTube Data API with a refresh-token OAuth flow.
type Uploader struct {
	cfg *config.UploadConfig
	log zerolog.Logger
}

// New builds an Uploader.
func New(cfg *config.UploadConfig) *Uploader {
	return &Uploader{cfg: cfg, log: logging.For("publish")}
}

// BuildMetadata derives upload metadata from the topic and bundle.
func BuildMetadata(topic types.Topic, bundle *types.ScriptBundle, cfg *config.UploadConfig) Metadata {
	titled := cases.Title(language.English).String(topic.Title)
	title := fmt.Sprintf("Top 10 %s", titled)
	if bundle.Kind == types.KindShort {
		title = titled + " #shorts"
	}
	if len(title) > 100 {
		title = title[:100]
	}

	var desc strings.Builder
	if bundle.Hooks.Intro != "" {
		desc.WriteString(bundle.Hooks.Intro)
		desc.WriteString("\n\n")
	}
	if bundle.Kind == types.KindLong {
		desc.WriteString("In this video:\n")
		for _, item := range bundle.Items {
			fmt.Fprintf(&desc, "%d. %s\n", item.Rank, item.Title)
		}
	}

	tags := []string{"top 10", topic.Title, topic.Genre}
	for _, item := range bundle.Items {
		if len(tags) >= 15 {
			break
		}
		tags = append(tags, item.Title)
	}

	return Metadata{
		Title:       title,
		Description: desc.String(),
		Tags:        tags,
		CategoryID:  cfg.CategoryID,
		Visibility:  cfg.Visibility,
	}
}

// Run uploads videoFile and returns the video ID and watch URL.
func (u *Uploader) Run(ctx context.Context, videoFile string, meta Metadata) (string, string, error) {
	client, err := oauthClient(ctx)
	if err != nil {
		return "", "", fmt.Errorf("youtube auth: %w", err)
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	u.log.Info().Str("title", meta.Title).Msg("uploading video")

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.Visibility,
			SelfDeclaredMadeForKids: u.cfg.MadeForKids,
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.NotifySubscribers(u.cfg.NotifySubscribers)
	call.Media(f)

	uploaded, err := call.Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	videoURL := "https://www.youtube.com/watch?v=" + uploaded.Id
	u.log.Info().Str("video_id", uploaded.Id).Str("url", videoURL).Msg("✅ upload complete")
	return uploaded.Id, videoURL, nil
}

// oauthClient builds an HTTP client from env refresh-token credentials.
func oauthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		// Expired on purpose so the first request refreshes.
		Expiry: time.Now().Add(-time.Hour),
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

// LogUpload records the upload outcome next to the other run logs.
func LogUpload(videoID, videoURL, videoFile, logsDir string, meta Metadata) error {
	entry := map[string]any{
		"video_id":    videoID,
		"video_url":   videoURL,
		"title":       meta.Title,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
		"video_file":  videoFile,
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return err
	}
	logFile := filepath.Join(logsDir, "upload_"+time.Now().Format("20060102_150405")+".json")
	data, _ := json.MarshalIndent(entry, "", "  ")
	return os.WriteFile(logFile, data, 0o644)
}
