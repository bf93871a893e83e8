// Package topics suggests a video topic from trending subreddit posts
// when none is configured.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vartanbeno/go-reddit/v2/reddit"

	"top10-pipeline/config"
	"top10-pipeline/logging"
	"top10-pipeline/types"
)

// listKeywords boost posts that already read like a ranking idea.
var listKeywords = []string{
	"top 10", "top ten", "best", "worst", "most", "ranked",
	"ranking", "greatest", "craziest", "rarest", "deadliest",
}

// redditLister is the slice of the reddit client the suggester needs.
type redditLister interface {
	HotPosts(ctx context.Context, subreddit string, opts *reddit.ListOptions) ([]*reddit.Post, *reddit.Response, error)
}

// Suggester scores trending posts and proposes the best unused one.
type Suggester struct {
	cfg    *config.TopicsConfig
	lister redditLister
	used   map[string]bool
	log    zerolog.Logger
}

// New builds a Suggester with a read-only reddit client.
func New(cfg *config.TopicsConfig) (*Suggester, error) {
	client, err := reddit.NewReadonlyClient()
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &Suggester{
		cfg:    cfg,
		lister: client.Subreddit,
		used:   loadUsedTopics(cfg.UsedTopicsLog),
		log:    logging.For("topics"),
	}, nil
}

type candidate struct {
	title     string
	subreddit string
	score     int
}

// Suggest returns the highest-scoring unused topic across the configured
// subreddits, with its originating subreddit as genre.
func (s *Suggester) Suggest(ctx context.Context, language string) (types.Topic, error) {
	if len(s.cfg.Subreddits) == 0 {
		return types.Topic{}, fmt.Errorf("no subreddits configured")
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.LookbackDays)
	var candidates []candidate

	for _, sub := range s.cfg.Subreddits {
		posts, _, err := s.lister.HotPosts(ctx, sub, &reddit.ListOptions{Limit: 25})
		if err != nil {
			s.log.Warn().Str("subreddit", sub).Err(err).Msg("listing failed")
			continue
		}
		for _, post := range posts {
			if post.Created != nil && post.Created.Before(cutoff) {
				continue
			}
			if post.Score < s.cfg.MinScore || post.NumberOfComments < s.cfg.MinComments {
				continue
			}
			candidates = append(candidates, candidate{
				title:     post.Title,
				subreddit: sub,
				score:     scorePost(post),
			})
		}
	}
	if len(candidates) == 0 {
		return types.Topic{}, fmt.Errorf("no trending posts matched the filters")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	for _, c := range candidates {
		key := topicKey(c.title)
		if s.used[key] {
			continue
		}
		s.markUsed(key)
		s.log.Info().Str("topic", c.title).Int("score", c.score).Str("subreddit", c.subreddit).Msg("✅ topic selected")
		return types.Topic{Title: c.title, Genre: c.subreddit, Language: language}, nil
	}
	return types.Topic{}, fmt.Errorf("all trending topics already used")
}

func scorePost(post *reddit.Post) int {
	score := post.Score + post.NumberOfComments*3

	lower := strings.ToLower(post.Title)
	for _, kw := range listKeywords {
		if strings.Contains(lower, kw) {
			score += 150
		}
	}
	if post.Created != nil && time.Since(post.Created.Time) < 48*time.Hour {
		score += 200
	}
	// Short punchy titles make better video titles.
	if len(post.Title) < 80 {
		score += 50
	}
	return score
}

func topicKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func loadUsedTopics(path string) map[string]bool {
	used := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return used
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return used
	}
	for _, k := range keys {
		used[k] = true
	}
	return used
}

func (s *Suggester) markUsed(key string) {
	s.used[key] = true
	keys := make([]string, 0, len(s.used))
	for k := range s.used {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, _ := json.MarshalIndent(keys, "", "  ")
	os.MkdirAll(filepath.Dir(s.cfg.UsedTopicsLog), 0o755)
	os.WriteFile(s.cfg.UsedTopicsLog, data, 0o644)
}
