// Package content runs the ordered generation chain that turns a topic
// into a complete ScriptBundle.
package content

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"top10-pipeline/cache"
	"top10-pipeline/logging"
	"top10-pipeline/textgen"
	"top10-pipeline/types"
)

// Chain produces scripts step by step, each step feeding the next. Steps
// never run concurrently; every step degrades to a synthetic fallback
// instead of failing the run. The only fatal case is an outline step that
// cannot reach the generation service at all.
type Chain struct {
	gen        textgen.Generator
	store      *cache.Store
	maxRetries int
	log        zerolog.Logger

	// TargetMinutes sizes the long-form narration. Zero keeps the
	// default pacing.
	TargetMinutes int
}

// New builds a Chain. store may be nil to disable caching.
func New(gen textgen.Generator, store *cache.Store, maxRetries int) *Chain {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Chain{
		gen:        gen,
		store:      store,
		maxRetries: maxRetries,
		log:        logging.For("content"),
	}
}

// Intermediate step shapes. These mirror what the prompts ask for.

type outlineItem struct {
	Rank        int    `json:"rank"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type outlineResult struct {
	Hook       string        `json:"hook"`
	Thesis     string        `json:"thesis"`
	Items      []outlineItem `json:"items"`
	Conclusion string        `json:"conclusion"`
}

type scriptItem struct {
	Rank   int    `json:"rank"`
	Script string `json:"script"`
}

type scriptResult struct {
	Intro      string       `json:"intro"`
	Items      []scriptItem `json:"items"`
	Conclusion string       `json:"conclusion"`
}

type searchTermItem struct {
	Rank  int      `json:"rank"`
	Terms []string `json:"terms"`
}

type searchTermsResult struct {
	Items []searchTermItem `json:"items"`
	Extra []string         `json:"extra"`
}

type sceneResult struct {
	Scenes []struct {
		Text              string   `json:"text"`
		VisualDescription string   `json:"visual_description"`
		SearchTerms       []string `json:"search_terms"`
	} `json:"scenes"`
}

// BuildLong runs the five-step long-form chain:
// research, outline, full script, hooks, search terms.
// It fails only when the generation service never answers the outline
// prompt; unusable answers degrade to synthetic content.
func (c *Chain) BuildLong(ctx context.Context, topic types.Topic) (*types.ScriptBundle, error) {
	c.log.Info().Str("topic", topic.Title).Msg("starting long-form chain")

	research := c.stepResearch(ctx, topic)

	outline, err := c.stepOutline(ctx, topic, research)
	if err != nil {
		return nil, fmt.Errorf("outline step: %w", err)
	}

	script := c.stepFullScript(ctx, topic, research, outline)
	hooks := c.stepHooks(ctx, topic, outline)
	terms := c.stepSearchTerms(ctx, topic, outline)

	bundle := compileLong(topic, research, outline, script, hooks, terms)
	c.log.Info().Int("items", len(bundle.Items)).Msg("long-form chain complete")
	return bundle, nil
}

// BuildShort runs the three-step short-form chain:
// outline (scene list), script text, search terms.
func (c *Chain) BuildShort(ctx context.Context, topic types.Topic, durationSec int) (*types.ScriptBundle, error) {
	c.log.Info().Str("topic", topic.Title).Msg("starting short-form chain")

	scenes, err := c.stepScenes(ctx, topic, durationSec)
	if err != nil {
		return nil, fmt.Errorf("scene outline step: %w", err)
	}

	scenes = c.stepSceneScripts(ctx, topic, scenes)
	scenes = c.stepSceneSearchTerms(ctx, topic, scenes)

	bundle := compileShort(topic, scenes)
	c.log.Info().Int("scenes", len(bundle.Scenes)).Msg("short-form chain complete")
	return bundle, nil
}

// generate runs one prompt through the backend with step-level caching.
func (c *Chain) generate(ctx context.Context, step, prompt string) (string, error) {
	key := map[string]any{"step": step, "prompt": prompt}
	if c.store != nil {
		var cached string
		if hit, _ := c.store.Get(key, "content", &cached); hit && cached != "" {
			c.log.Debug().Str("step", step).Msg("cache hit")
			return cached, nil
		}
	}
	text, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if c.store != nil {
		c.store.Set(key, text, "content")
	}
	return text, nil
}

// --- long-form steps ---

func (c *Chain) stepResearch(ctx context.Context, topic types.Topic) string {
	prompt := fmt.Sprintf(
		"You are researching for a YouTube top-10 video titled %q in the %s genre.\n"+
			"Write a dense factual briefing (300-500 words) covering the strongest candidate entries, "+
			"what makes each notable, and any surprising facts. Plain text, no formatting.",
		topic.Title, topic.Genre)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		text, err := c.generate(ctx, "research", prompt)
		if err == nil && len(strings.TrimSpace(text)) > 50 {
			return strings.TrimSpace(text)
		}
		if ctx.Err() != nil {
			break
		}
		c.log.Warn().Int("attempt", attempt+1).Err(err).Msg("research step unusable")
	}
	c.log.Warn().Msg("research degraded to fallback")
	return fallbackResearch(topic)
}

func (c *Chain) stepOutline(ctx context.Context, topic types.Topic, research string) (*outlineResult, error) {
	prompt := fmt.Sprintf(
		"Using this research:\n\n%s\n\n"+
			"Create the outline for a top-10 video titled %q (%s genre).\n"+
			"Respond with ONLY valid JSON:\n"+
			`{"hook": "...", "thesis": "...", "items": [{"rank": 10, "title": "...", "description": "..."}], "conclusion": "..."}`+"\n"+
			"items must contain exactly 10 entries ranked 10 down to 1.",
		research, topic.Title, topic.Genre)

	var lastErr error
	answered := false
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.generate(ctx, "outline", prompt)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		answered = true
		if out, ok := parseOutline(raw); ok {
			return out, nil
		}
		c.log.Warn().Int("attempt", attempt+1).Msg("outline response unusable, retrying")
	}
	// The service answered but never produced a usable outline: degrade to
	// the synthetic countdown. Only an unreachable service is fatal.
	if answered {
		c.log.Warn().Msg("outline degraded to fallback")
		return fallbackOutline(topic), nil
	}
	return nil, lastErr
}

// parseOutline accepts strict JSON, repaired JSON, then a numbered-list
// reading of the raw text. The outline is valid with hook, thesis, at
// least five items and a conclusion.
func parseOutline(raw string) (*outlineResult, bool) {
	var out outlineResult
	if decodeJSON(raw, &out) && outlineValid(&out) {
		return &out, true
	}

	entries := extractNumberedList(raw)
	if len(entries) < 5 {
		return nil, false
	}
	heuristic := outlineResult{
		Hook:       extractLabeledLine(raw, "hook"),
		Thesis:     extractLabeledLine(raw, "thesis"),
		Conclusion: extractLabeledLine(raw, "conclusion"),
	}
	for _, e := range entries {
		title, desc := splitTitleDescription(e.Text)
		heuristic.Items = append(heuristic.Items, outlineItem{Rank: e.Number, Title: title, Description: desc})
	}
	if heuristic.Hook == "" {
		heuristic.Hook = firstSentence(raw)
	}
	if outlineValid(&heuristic) {
		return &heuristic, true
	}
	return nil, false
}

func outlineValid(o *outlineResult) bool {
	if strings.TrimSpace(o.Hook) == "" || len(o.Items) < 5 {
		return false
	}
	for _, it := range o.Items {
		if it.Rank < 1 || strings.TrimSpace(it.Title) == "" {
			return false
		}
	}
	return true
}

func firstSentence(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.IndexAny(raw, ".!?\n"); idx > 0 && idx < 200 {
		return strings.TrimSpace(raw[:idx+1])
	}
	if len(raw) > 120 {
		return raw[:120]
	}
	return raw
}

func (c *Chain) stepFullScript(ctx context.Context, topic types.Topic, research string, outline *outlineResult) *scriptResult {
	var itemList strings.Builder
	for _, it := range outline.Items {
		fmt.Fprintf(&itemList, "%d. %s — %s\n", it.Rank, it.Title, it.Description)
	}

	// ~140 spoken words per minute spread over intro, ten items and outro.
	wordsPerItem := 90
	if c.TargetMinutes > 0 {
		wordsPerItem = c.TargetMinutes * 140 / 12
		if wordsPerItem < 40 {
			wordsPerItem = 40
		}
	}

	prompt := fmt.Sprintf(
		"Research:\n%s\n\nOutline for %q:\nHook: %s\nItems:\n%s\n"+
			"Write the full narration script. Respond with ONLY valid JSON:\n"+
			`{"intro": "...", "items": [{"rank": 10, "script": "..."}], "conclusion": "..."}`+"\n"+
			"Each item script is about %d spoken words, energetic countdown style, no stage directions.",
		research, topic.Title, outline.Hook, itemList.String(), wordsPerItem)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.generate(ctx, "full_script", prompt)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		var out scriptResult
		if decodeJSON(raw, &out) && len(out.Items) > 0 {
			return &out
		}
		if entries := extractNumberedList(raw); len(entries) >= 5 {
			out = scriptResult{}
			for _, e := range entries {
				out.Items = append(out.Items, scriptItem{Rank: e.Number, Script: e.Text})
			}
			return &out
		}
		c.log.Warn().Int("attempt", attempt+1).Msg("script response unusable, retrying")
	}

	c.log.Warn().Msg("full script degraded to fallback")
	out := &scriptResult{Intro: fallbackIntro(topic), Conclusion: fallbackConclusion(topic)}
	for _, it := range outline.Items {
		out.Items = append(out.Items, scriptItem{Rank: it.Rank, Script: fallbackScript(it.Rank, it.Title, topic.Title)})
	}
	return out
}

func (c *Chain) stepHooks(ctx context.Context, topic types.Topic, outline *outlineResult) types.Hooks {
	prompt := fmt.Sprintf(
		"For a top-10 video titled %q with hook %q, write five short engagement lines.\n"+
			"Respond with ONLY valid JSON:\n"+
			`{"opening": "...", "intro": "...", "midpoint": "...", "finale": "...", "subscription": "..."}`,
		topic.Title, outline.Hook)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.generate(ctx, "hooks", prompt)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		var out types.Hooks
		if decodeJSON(raw, &out) && out.Opening != "" {
			return out
		}
	}
	c.log.Warn().Msg("hooks degraded to fallback")
	return fallbackHooks(topic)
}

func (c *Chain) stepSearchTerms(ctx context.Context, topic types.Topic, outline *outlineResult) *searchTermsResult {
	var itemList strings.Builder
	for _, it := range outline.Items {
		fmt.Fprintf(&itemList, "%d. %s\n", it.Rank, it.Title)
	}

	prompt := fmt.Sprintf(
		"For each item in this top-10 list about %q (%s genre):\n%s\n"+
			"Suggest 2-3 stock-footage search terms per item. Respond with ONLY valid JSON:\n"+
			`{"items": [{"rank": 10, "terms": ["...", "..."]}], "extra": ["..."]}`,
		topic.Title, topic.Genre, itemList.String())

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.generate(ctx, "search_terms", prompt)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		var out searchTermsResult
		if decodeJSON(raw, &out) && len(out.Items) > 0 {
			return &out
		}
	}
	c.log.Warn().Msg("search terms degraded to fallback")
	return &searchTermsResult{}
}

// --- short-form steps ---

func (c *Chain) stepScenes(ctx context.Context, topic types.Topic, durationSec int) ([]types.Scene, error) {
	sceneCount := durationSec / 6
	if sceneCount < 3 {
		sceneCount = 3
	}
	if sceneCount > 10 {
		sceneCount = 10
	}

	prompt := fmt.Sprintf(
		"Outline a %d-second vertical short about %q (%s genre) as %d scenes.\n"+
			"Respond with ONLY valid JSON:\n"+
			`{"scenes": [{"text": "...", "visual_description": "..."}]}`,
		durationSec, topic.Title, topic.Genre, sceneCount)

	var lastErr error
	answered := false
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.generate(ctx, "short_outline", prompt)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		answered = true
		var out sceneResult
		if decodeJSON(raw, &out) && len(out.Scenes) >= 3 {
			scenes := make([]types.Scene, 0, len(out.Scenes))
			for _, s := range out.Scenes {
				if strings.TrimSpace(s.Text) == "" {
					continue
				}
				scenes = append(scenes, types.Scene{
					Text:              s.Text,
					VisualDescription: s.VisualDescription,
					SearchTerms:       s.SearchTerms,
				})
			}
			if len(scenes) >= 3 {
				return scenes, nil
			}
		}
		if entries := extractNumberedList(raw); len(entries) >= 3 {
			scenes := make([]types.Scene, 0, len(entries))
			for _, e := range entries {
				scenes = append(scenes, types.Scene{Text: e.Text})
			}
			return scenes, nil
		}
		c.log.Warn().Int("attempt", attempt+1).Msg("scene outline unusable, retrying")
	}
	if answered {
		c.log.Warn().Msg("scene outline degraded to fallback")
		return fallbackScenes(topic, sceneCount), nil
	}
	return nil, lastErr
}

func (c *Chain) stepSceneScripts(ctx context.Context, topic types.Topic, scenes []types.Scene) []types.Scene {
	var beats strings.Builder
	for i, s := range scenes {
		fmt.Fprintf(&beats, "%d. %s\n", i+1, s.Text)
	}

	prompt := fmt.Sprintf(
		"Polish these short-video beats about %q into punchy spoken lines (max 20 words each):\n%s\n"+
			"Respond with ONLY valid JSON:\n"+
			`{"scenes": [{"text": "...", "visual_description": "..."}]}`+"\n"+
			"Keep exactly %d scenes in order.",
		topic.Title, beats.String(), len(scenes))

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.generate(ctx, "short_script", prompt)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		var out sceneResult
		if decodeJSON(raw, &out) && len(out.Scenes) == len(scenes) {
			for i := range scenes {
				if t := strings.TrimSpace(out.Scenes[i].Text); t != "" {
					scenes[i].Text = t
				}
				if v := strings.TrimSpace(out.Scenes[i].VisualDescription); v != "" {
					scenes[i].VisualDescription = v
				}
			}
			return scenes
		}
	}
	c.log.Warn().Msg("scene scripts kept from outline text")
	return scenes
}

func (c *Chain) stepSceneSearchTerms(ctx context.Context, topic types.Topic, scenes []types.Scene) []types.Scene {
	var beats strings.Builder
	for i, s := range scenes {
		fmt.Fprintf(&beats, "%d. %s\n", i+1, s.Text)
	}

	prompt := fmt.Sprintf(
		"For each scene of a short about %q:\n%s\n"+
			"Suggest 1-2 stock-footage search terms per scene. Respond with ONLY valid JSON:\n"+
			`{"scenes": [{"search_terms": ["..."]}]}`+"\n"+
			"Keep exactly %d scenes in order.",
		topic.Title, beats.String(), len(scenes))

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.generate(ctx, "short_terms", prompt)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		var out sceneResult
		if decodeJSON(raw, &out) && len(out.Scenes) == len(scenes) {
			for i := range scenes {
				if len(out.Scenes[i].SearchTerms) > 0 {
					scenes[i].SearchTerms = out.Scenes[i].SearchTerms
				}
			}
			return scenes
		}
	}

	for i := range scenes {
		if len(scenes[i].SearchTerms) == 0 {
			scenes[i].SearchTerms = fallbackSearchTerms(topic.Title, topic.Genre)
		}
	}
	return scenes
}

// --- compile ---

// compileLong merges all step results into the final bundle. Items are
// re-ordered by descending rank, truncated past ten and padded with
// synthetic entries when short. Leftover search terms are distributed
// round-robin to items without their own.
func compileLong(topic types.Topic, research string, outline *outlineResult, script *scriptResult, hooks types.Hooks, terms *searchTermsResult) *types.ScriptBundle {
	items := make([]outlineItem, len(outline.Items))
	copy(items, outline.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Rank > items[j].Rank })

	if len(items) > 10 {
		items = items[:10]
	}
	if len(items) < 10 {
		// Pad only with ranks the outline left unused so the countdown
		// stays strictly descending after the re-sort.
		used := make(map[int]bool, len(items))
		for _, it := range items {
			used[it.Rank] = true
		}
		for _, pad := range fallbackItems(topic) {
			if len(items) == 10 {
				break
			}
			if used[pad.Rank] {
				continue
			}
			items = append(items, pad)
			used[pad.Rank] = true
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].Rank > items[j].Rank })
	}

	scriptByRank := make(map[int]string, len(script.Items))
	for _, s := range script.Items {
		scriptByRank[s.Rank] = s.Script
	}
	termsByRank := make(map[int][]string)
	if terms != nil {
		for _, t := range terms.Items {
			termsByRank[t.Rank] = t.Terms
		}
	}

	bundle := &types.ScriptBundle{
		Kind:     types.KindLong,
		Hooks:    hooks,
		Research: research,
	}

	bundle.IntroText = script.Intro
	if bundle.IntroText == "" {
		bundle.IntroText = fallbackIntro(topic)
	}
	bundle.Conclusion = script.Conclusion
	if bundle.Conclusion == "" {
		bundle.Conclusion = outline.Conclusion
	}
	if bundle.Conclusion == "" {
		bundle.Conclusion = fallbackConclusion(topic)
	}

	for _, it := range items {
		text := scriptByRank[it.Rank]
		if text == "" {
			text = fallbackScript(it.Rank, it.Title, topic.Title)
		}
		bundle.Items = append(bundle.Items, types.Item{
			Rank:        it.Rank,
			Title:       it.Title,
			Script:      text,
			SearchTerms: termsByRank[it.Rank],
		})
	}

	var extra []string
	if terms != nil {
		extra = terms.Extra
	}
	distributeExtraTerms(bundle.Items, extra)

	var full strings.Builder
	full.WriteString(bundle.IntroText)
	for _, it := range bundle.Items {
		full.WriteString("\n\n")
		full.WriteString(it.Script)
	}
	full.WriteString("\n\n")
	full.WriteString(bundle.Conclusion)
	bundle.FullScript = full.String()

	return bundle
}

// distributeExtraTerms hands leftover terms round-robin to items that have
// none of their own.
func distributeExtraTerms(items []types.Item, extra []string) {
	if len(extra) == 0 {
		return
	}
	var bare []int
	for i := range items {
		if len(items[i].SearchTerms) == 0 {
			bare = append(bare, i)
		}
	}
	if len(bare) == 0 {
		return
	}
	for i, term := range extra {
		idx := bare[i%len(bare)]
		items[idx].SearchTerms = append(items[idx].SearchTerms, term)
	}
}

func compileShort(topic types.Topic, scenes []types.Scene) *types.ScriptBundle {
	if len(scenes) > 10 {
		scenes = scenes[:10]
	}
	for len(scenes) < 3 {
		pad := fallbackScenes(topic, 3)
		scenes = append(scenes, pad[len(scenes)])
	}

	var full strings.Builder
	for i, s := range scenes {
		if i > 0 {
			full.WriteString("\n")
		}
		full.WriteString(s.Text)
	}
	return &types.ScriptBundle{
		Kind:       types.KindShort,
		Scenes:     scenes,
		FullScript: full.String(),
	}
}
