package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"top10-pipeline/types"
)

// stubGen answers prompts by matching per-step markers embedded in them.
type stubGen struct {
	responses map[string]string
	fail      map[string]error
	calls     []string
	prompts   map[string]string
}

func (s *stubGen) Name() string { return "stub" }

func (s *stubGen) Generate(_ context.Context, prompt string) (string, error) {
	step := stepFor(prompt)
	s.calls = append(s.calls, step)
	if s.prompts != nil {
		s.prompts[step] = prompt
	}
	if err, ok := s.fail[step]; ok {
		return "", err
	}
	if resp, ok := s.responses[step]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no stub response for step %s", step)
}

func stepFor(prompt string) string {
	switch {
	case strings.Contains(prompt, "factual briefing"):
		return "research"
	case strings.Contains(prompt, "Create the outline"):
		return "outline"
	case strings.Contains(prompt, "full narration script"):
		return "full_script"
	case strings.Contains(prompt, "engagement lines"):
		return "hooks"
	case strings.Contains(prompt, "stock-footage search terms per item"):
		return "search_terms"
	case strings.Contains(prompt, "Outline a"):
		return "short_outline"
	case strings.Contains(prompt, "Polish these"):
		return "short_script"
	case strings.Contains(prompt, "search terms per scene"):
		return "short_terms"
	}
	return "unknown"
}

func tenItemOutline() string {
	var items []string
	for rank := 10; rank >= 1; rank-- {
		items = append(items, fmt.Sprintf(`{"rank":%d,"title":"Item %d","description":"d%d"}`, rank, rank, rank))
	}
	return fmt.Sprintf(`{"hook":"the hook","thesis":"the thesis","items":[%s],"conclusion":"the end"}`,
		strings.Join(items, ","))
}

func tenItemScript() string {
	var items []string
	for rank := 10; rank >= 1; rank-- {
		items = append(items, fmt.Sprintf(`{"rank":%d,"script":"Narration for item %d."}`, rank, rank))
	}
	return fmt.Sprintf(`{"intro":"Welcome to the countdown.","items":[%s],"conclusion":"Thanks for watching."}`,
		strings.Join(items, ","))
}

func happyPathGen() *stubGen {
	return &stubGen{
		responses: map[string]string{
			"research":     strings.Repeat("Research fact. ", 20),
			"outline":      tenItemOutline(),
			"full_script":  tenItemScript(),
			"hooks":        `{"opening":"o","intro":"i","midpoint":"m","finale":"f","subscription":"s"}`,
			"search_terms": `{"items":[{"rank":10,"terms":["term a","term b"]}],"extra":["spare one","spare two"]}`,
		},
		fail: map[string]error{},
	}
}

var testTopic = types.Topic{Title: "deadliest sharks", Genre: "nature", Language: "english"}

func TestBuildLongHappyPath(t *testing.T) {
	gen := happyPathGen()
	chain := New(gen, nil, 2)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)

	assert.Equal(t, types.KindLong, bundle.Kind)
	require.Len(t, bundle.Items, 10)
	// Descending rank order is re-imposed at compile time.
	for i, it := range bundle.Items {
		assert.Equal(t, 10-i, it.Rank)
	}
	assert.Equal(t, "Welcome to the countdown.", bundle.IntroText)
	assert.Equal(t, "Thanks for watching.", bundle.Conclusion)
	assert.Equal(t, "o", bundle.Hooks.Opening)
	assert.Equal(t, []string{"term a", "term b"}, bundle.Items[0].SearchTerms)
	assert.NotEmpty(t, bundle.FullScript)
	assert.Equal(t, 12, bundle.SegmentCount())
}

func TestBuildLongStepsRunInOrder(t *testing.T) {
	gen := happyPathGen()
	chain := New(gen, nil, 2)

	_, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	assert.Equal(t, []string{"research", "outline", "full_script", "hooks", "search_terms"}, gen.calls)
}

func TestBuildLongOutlineFailureIsFatal(t *testing.T) {
	gen := happyPathGen()
	gen.fail["outline"] = errors.New("connection refused")
	chain := New(gen, nil, 1)

	_, err := chain.BuildLong(context.Background(), testTopic)
	assert.Error(t, err)
}

func TestBuildLongUnusableOutlineDegrades(t *testing.T) {
	gen := happyPathGen()
	gen.responses["outline"] = "Sorry, I cannot format that as requested today."
	chain := New(gen, nil, 1)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	require.Len(t, bundle.Items, 10)
	for i, it := range bundle.Items {
		assert.Equal(t, 10-i, it.Rank)
		assert.NotEmpty(t, it.Title)
		assert.NotEmpty(t, it.Script)
	}
	assert.NotEmpty(t, bundle.Conclusion)
}

func TestBuildLongScriptFailureDegrades(t *testing.T) {
	gen := happyPathGen()
	gen.fail["full_script"] = errors.New("service exploded")
	chain := New(gen, nil, 1)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	require.Len(t, bundle.Items, 10)
	for _, it := range bundle.Items {
		assert.NotEmpty(t, it.Script, "rank %d must carry fallback narration", it.Rank)
	}
}

func TestBuildLongHooksFailureDegrades(t *testing.T) {
	gen := happyPathGen()
	gen.fail["hooks"] = errors.New("timeout")
	chain := New(gen, nil, 1)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Hooks.Opening)
	assert.NotEmpty(t, bundle.Hooks.Subscription)
}

func TestBuildLongResearchFailureDegrades(t *testing.T) {
	gen := happyPathGen()
	gen.fail["research"] = errors.New("timeout")
	chain := New(gen, nil, 1)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	assert.Contains(t, bundle.Research, testTopic.Title)
}

func TestBuildLongPadsShortOutline(t *testing.T) {
	gen := happyPathGen()
	gen.responses["outline"] = `{"hook":"h","thesis":"t","items":[
		{"rank":10,"title":"A","description":"d"},
		{"rank":9,"title":"B","description":"d"},
		{"rank":8,"title":"C","description":"d"},
		{"rank":7,"title":"D","description":"d"},
		{"rank":6,"title":"E","description":"d"}
	],"conclusion":"c"}`
	chain := New(gen, nil, 2)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	assert.Len(t, bundle.Items, 10)
}

func TestBuildLongPaddingKeepsRanksUnique(t *testing.T) {
	gen := happyPathGen()
	gen.responses["outline"] = `{"hook":"h","thesis":"t","items":[
		{"rank":10,"title":"A","description":"d"},
		{"rank":8,"title":"B","description":"d"},
		{"rank":6,"title":"C","description":"d"},
		{"rank":4,"title":"D","description":"d"},
		{"rank":2,"title":"E","description":"d"}
	],"conclusion":"c"}`
	chain := New(gen, nil, 2)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	require.Len(t, bundle.Items, 10)
	seen := make(map[int]bool)
	for i, it := range bundle.Items {
		assert.False(t, seen[it.Rank], "rank %d appears twice", it.Rank)
		seen[it.Rank] = true
		if i > 0 {
			assert.Greater(t, bundle.Items[i-1].Rank, it.Rank)
		}
	}
	assert.Equal(t, "A", bundle.Items[0].Title)
}

func TestBuildLongTruncatesOversizedOutline(t *testing.T) {
	var items []string
	for rank := 14; rank >= 1; rank-- {
		items = append(items, fmt.Sprintf(`{"rank":%d,"title":"Item %d","description":"d"}`, rank, rank))
	}
	gen := happyPathGen()
	gen.responses["outline"] = fmt.Sprintf(`{"hook":"h","thesis":"t","items":[%s],"conclusion":"c"}`,
		strings.Join(items, ","))
	chain := New(gen, nil, 2)

	bundle, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	require.Len(t, bundle.Items, 10)
	assert.Equal(t, 14, bundle.Items[0].Rank)
}

func TestBuildLongScriptPromptSizedToTarget(t *testing.T) {
	gen := happyPathGen()
	gen.prompts = map[string]string{}
	chain := New(gen, nil, 2)
	chain.TargetMinutes = 24

	_, err := chain.BuildLong(context.Background(), testTopic)
	require.NoError(t, err)
	// 24 minutes at ~140 wpm over twelve segments.
	assert.Contains(t, gen.prompts["full_script"], "about 280 spoken words")
}

func TestDistributeExtraTerms(t *testing.T) {
	items := []types.Item{
		{Rank: 10, SearchTerms: []string{"own term"}},
		{Rank: 9},
		{Rank: 8},
	}
	distributeExtraTerms(items, []string{"a", "b", "c"})

	assert.Equal(t, []string{"own term"}, items[0].SearchTerms)
	assert.Equal(t, []string{"a", "c"}, items[1].SearchTerms)
	assert.Equal(t, []string{"b"}, items[2].SearchTerms)
}

func TestBuildShortHappyPath(t *testing.T) {
	gen := &stubGen{
		responses: map[string]string{
			"short_outline": `{"scenes":[
				{"text":"Beat one","visual_description":"v1"},
				{"text":"Beat two","visual_description":"v2"},
				{"text":"Beat three","visual_description":"v3"},
				{"text":"Beat four","visual_description":"v4"}
			]}`,
			"short_script": `{"scenes":[
				{"text":"Polished one"},{"text":"Polished two"},
				{"text":"Polished three"},{"text":"Polished four"}
			]}`,
			"short_terms": `{"scenes":[
				{"search_terms":["t1"]},{"search_terms":["t2"]},
				{"search_terms":["t3"]},{"search_terms":["t4"]}
			]}`,
		},
		fail: map[string]error{},
	}
	chain := New(gen, nil, 2)

	bundle, err := chain.BuildShort(context.Background(), testTopic, 30)
	require.NoError(t, err)
	assert.Equal(t, types.KindShort, bundle.Kind)
	require.Len(t, bundle.Scenes, 4)
	assert.Equal(t, "Polished one", bundle.Scenes[0].Text)
	assert.Equal(t, []string{"t1"}, bundle.Scenes[0].SearchTerms)
}

func TestBuildShortOutlineFailureIsFatal(t *testing.T) {
	gen := &stubGen{responses: map[string]string{}, fail: map[string]error{
		"short_outline": errors.New("connection refused"),
	}}
	chain := New(gen, nil, 1)

	_, err := chain.BuildShort(context.Background(), testTopic, 30)
	assert.Error(t, err)
}

func TestBuildShortUnusableOutlineDegrades(t *testing.T) {
	gen := &stubGen{
		responses: map[string]string{
			"short_outline": "Sorry, I cannot format that as requested today.",
		},
		fail: map[string]error{
			"short_script": errors.New("boom"),
			"short_terms":  errors.New("boom"),
		},
	}
	chain := New(gen, nil, 1)

	bundle, err := chain.BuildShort(context.Background(), testTopic, 30)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(bundle.Scenes), 3)
	for _, s := range bundle.Scenes {
		assert.NotEmpty(t, s.Text)
		assert.NotEmpty(t, s.SearchTerms)
	}
}

func TestBuildShortLaterStepsDegrade(t *testing.T) {
	gen := &stubGen{
		responses: map[string]string{
			"short_outline": `{"scenes":[
				{"text":"Beat one"},{"text":"Beat two"},{"text":"Beat three"}
			]}`,
		},
		fail: map[string]error{
			"short_script": errors.New("boom"),
			"short_terms":  errors.New("boom"),
		},
	}
	chain := New(gen, nil, 1)

	bundle, err := chain.BuildShort(context.Background(), testTopic, 30)
	require.NoError(t, err)
	require.Len(t, bundle.Scenes, 3)
	assert.Equal(t, "Beat one", bundle.Scenes[0].Text)
	for _, s := range bundle.Scenes {
		assert.NotEmpty(t, s.SearchTerms)
	}
}
