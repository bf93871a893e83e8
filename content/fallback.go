package content

import (
	"fmt"

	"top10-pipeline/types"
)

// Synthetic fallbacks used when a non-fatal step keeps producing unusable
// output. Bland on purpose: a generic line beats an aborted video.

func fallbackResearch(topic types.Topic) string {
	return fmt.Sprintf(
		"%s is a popular subject in the %s space with a wide range of notable entries. "+
			"Rankings typically weigh impact, popularity and lasting appeal.",
		topic.Title, topic.Genre)
}

func fallbackScript(rank int, title, topic string) string {
	return fmt.Sprintf(
		"At number %d we have %s. A standout entry in any ranking of %s, "+
			"it has earned its place here through sheer popularity and staying power.",
		rank, title, topic)
}

func fallbackItems(topic types.Topic) []outlineItem {
	items := make([]outlineItem, 0, 10)
	for rank := 10; rank >= 1; rank-- {
		items = append(items, outlineItem{
			Rank:        rank,
			Title:       fmt.Sprintf("Item #%d for %s", rank, topic.Title),
			Description: fmt.Sprintf("A notable entry in %s.", topic.Title),
		})
	}
	return items
}

func fallbackOutline(topic types.Topic) *outlineResult {
	return &outlineResult{
		Hook:       fmt.Sprintf("You won't believe what made number one in %s.", topic.Title),
		Thesis:     fmt.Sprintf("Counting down the ten most notable entries in %s.", topic.Title),
		Items:      fallbackItems(topic),
		Conclusion: fallbackConclusion(topic),
	}
}

func fallbackHooks(topic types.Topic) types.Hooks {
	return types.Hooks{
		Opening:      fmt.Sprintf("You won't believe what made number one in %s.", topic.Title),
		Intro:        fmt.Sprintf("Today we're counting down the top 10 %s.", topic.Title),
		Midpoint:     "We're halfway there, and the best is yet to come.",
		Finale:       "And now, the moment you've been waiting for.",
		Subscription: "If you're enjoying this countdown, subscribe for more.",
	}
}

func fallbackIntro(topic types.Topic) string {
	return fmt.Sprintf(
		"Welcome back! Today we're counting down the top 10 %s. "+
			"Stick around, because number one might surprise you.",
		topic.Title)
}

func fallbackConclusion(topic types.Topic) string {
	return fmt.Sprintf(
		"And that wraps up our top 10 %s. Did your favorite make the list? "+
			"Let us know in the comments, and we'll see you in the next one.",
		topic.Title)
}

func fallbackSearchTerms(title, genre string) []string {
	return []string{fmt.Sprintf("%s %s", title, genre)}
}

func fallbackScenes(topic types.Topic, n int) []types.Scene {
	if n < 3 {
		n = 3
	}
	scenes := make([]types.Scene, 0, n)
	for i := 0; i < n; i++ {
		scenes = append(scenes, types.Scene{
			Text:              fmt.Sprintf("Here's fact %d about %s you probably didn't know.", i+1, topic.Title),
			VisualDescription: topic.Title,
			SearchTerms:       fallbackSearchTerms(topic.Title, topic.Genre),
		})
	}
	return scenes
}
