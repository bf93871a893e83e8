package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Video      VideoConfig      `yaml:"video"`
	Generation GenerationConfig `yaml:"generation"`
	Media      MediaConfig      `yaml:"media"`
	Voice      VoiceConfig      `yaml:"voice"`
	Topics     TopicsConfig     `yaml:"topics"`
	Upload     UploadConfig     `yaml:"upload"`
	Paths      PathsConfig      `yaml:"paths"`
}

type VideoConfig struct {
	Topic            string `yaml:"topic"`
	Genre            string `yaml:"genre"`
	Language         string `yaml:"language" validate:"required"`
	DurationMinutes  int    `yaml:"duration_minutes" validate:"gte=0,lte=60"`
	ShortDurationSec int    `yaml:"short_duration_sec" validate:"gte=0,lte=180"`
	Mode             string `yaml:"mode" validate:"oneof=long short"`
	IntroUsesVideo   bool   `yaml:"intro_uses_video"`
}

type GenerationConfig struct {
	// Preferred text backend; the alternate backend is tried on failure.
	Backend     string  `yaml:"backend" validate:"oneof=gemini claude"`
	GeminiModel string  `yaml:"gemini_model"`
	ClaudeModel string  `yaml:"claude_model"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxRetries  int     `yaml:"max_retries" validate:"gte=0,lte=10"`
}

type MediaConfig struct {
	ImagesPerSegment int `yaml:"images_per_segment" validate:"gte=1,lte=30"`
	DownloadTimeout  int `yaml:"download_timeout_sec" validate:"gte=1"`
}

type VoiceConfig struct {
	Engine       string `yaml:"engine" validate:"oneof=edge gemini"`
	MultiSpeaker bool   `yaml:"multi_speaker"`
	Subtitles    bool   `yaml:"subtitles"`
}

type TopicsConfig struct {
	Subreddits    []string `yaml:"subreddits"`
	MinScore      int      `yaml:"min_score"`
	MinComments   int      `yaml:"min_comments"`
	LookbackDays  int      `yaml:"lookback_days" validate:"gte=1"`
	UsedTopicsLog string   `yaml:"used_topics_log"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility" validate:"omitempty,oneof=public unlisted private"`
	CategoryID        string `yaml:"category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
}

type PathsConfig struct {
	Output    string `yaml:"output" validate:"required"`
	Cache     string `yaml:"cache" validate:"required"`
	MusicList string `yaml:"music_list"`
	Logs      string `yaml:"logs"`
}

// Load reads a YAML config file, applies defaults and validates the result.
// The returned snapshot is immutable for the lifetime of a pipeline run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Video.Language == "" {
		c.Video.Language = "english"
	}
	if c.Video.Mode == "" {
		c.Video.Mode = "long"
	}
	if c.Video.DurationMinutes == 0 {
		c.Video.DurationMinutes = 5
	}
	if c.Video.ShortDurationSec == 0 {
		c.Video.ShortDurationSec = 30
	}
	if c.Generation.Backend == "" {
		c.Generation.Backend = "gemini"
	}
	if c.Generation.GeminiModel == "" {
		c.Generation.GeminiModel = "gemini-1.5-flash-latest"
	}
	if c.Generation.ClaudeModel == "" {
		c.Generation.ClaudeModel = "claude-3-haiku-20240307"
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.7
	}
	if c.Generation.MaxRetries == 0 {
		c.Generation.MaxRetries = 2
	}
	if c.Media.ImagesPerSegment == 0 {
		c.Media.ImagesPerSegment = 8
	}
	if c.Media.DownloadTimeout == 0 {
		c.Media.DownloadTimeout = 30
	}
	if c.Voice.Engine == "" {
		c.Voice.Engine = "edge"
	}
	if c.Topics.LookbackDays == 0 {
		c.Topics.LookbackDays = 7
	}
	if c.Topics.UsedTopicsLog == "" {
		c.Topics.UsedTopicsLog = "logs/used_topics.json"
	}
	if c.Upload.Visibility == "" {
		c.Upload.Visibility = "unlisted"
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "output"
	}
	if c.Paths.Cache == "" {
		c.Paths.Cache = "cache"
	}
	if c.Paths.Logs == "" {
		c.Paths.Logs = "logs"
	}
}

// GeminiKey returns the Gemini API key from the environment.
func GeminiKey() string { return os.Getenv("GEMINI_API_KEY") }

// ClaudeKey returns the Claude API key from the environment.
func ClaudeKey() string { return os.Getenv("CLAUDE_API_KEY") }

// PexelsKey returns the Pexels API key from the environment.
func PexelsKey() string { return os.Getenv("PEXELS_API_KEY") }
