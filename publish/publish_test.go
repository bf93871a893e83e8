package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"top10-pipeline/config"
	"top10-pipeline/types"
)

func TestBuildMetadataLongForm(t *testing.T) {
	topic := types.Topic{Title: "deadliest sharks", Genre: "nature"}
	bundle := &types.ScriptBundle{
		Kind:  types.KindLong,
		Hooks: types.Hooks{Intro: "Counting down the deadliest sharks."},
		Items: []types.Item{
			{Rank: 10, Title: "Blue Shark"},
			{Rank: 9, Title: "Mako"},
		},
	}
	cfg := &config.UploadConfig{Visibility: "unlisted", CategoryID: "24"}

	meta := BuildMetadata(topic, bundle, cfg)
	assert.Equal(t, "Top 10 Deadliest Sharks", meta.Title)
	assert.Contains(t, meta.Description, "10. Blue Shark")
	assert.Contains(t, meta.Description, "Counting down")
	assert.Contains(t, meta.Tags, "top 10")
	assert.Contains(t, meta.Tags, "Mako")
	assert.Equal(t, "unlisted", meta.Visibility)
	assert.Equal(t, "24", meta.CategoryID)
}

func TestBuildMetadataShortForm(t *testing.T) {
	topic := types.Topic{Title: "shark facts", Genre: "nature"}
	bundle := &types.ScriptBundle{Kind: types.KindShort}
	cfg := &config.UploadConfig{Visibility: "public"}

	meta := BuildMetadata(topic, bundle, cfg)
	assert.Contains(t, meta.Title, "#shorts")
	assert.NotContains(t, meta.Description, "In this video")
}

func TestBuildMetadataTitleClamped(t *testing.T) {
	topic := types.Topic{Title: string(make([]byte, 150)), Genre: "nature"}
	bundle := &types.ScriptBundle{Kind: types.KindLong}
	meta := BuildMetadata(topic, bundle, &config.UploadConfig{})
	assert.LessOrEqual(t, len(meta.Title), 100)
}
