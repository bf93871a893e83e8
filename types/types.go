// Package types holds the data model shared by every pipeline stage.
package types

// Topic is the subject a video run is built around.
type Topic struct {
	Title    string `json:"title"`
	Genre    string `json:"genre"`
	Language string `json:"language"`
}

// Item is a single ranked entry of a long-form top-10 video.
type Item struct {
	Rank        int      `json:"rank"`
	Title       string   `json:"title"`
	Script      string   `json:"script"`
	SearchTerms []string `json:"search_terms,omitempty"`
}

// Hooks are the short engagement lines spliced between countdown items.
type Hooks struct {
	Opening      string `json:"opening,omitempty"`
	Intro        string `json:"intro,omitempty"`
	Midpoint     string `json:"midpoint,omitempty"`
	Finale       string `json:"finale,omitempty"`
	Subscription string `json:"subscription,omitempty"`
}

// Scene is a single beat of a short-form video.
type Scene struct {
	Text              string   `json:"text"`
	VisualDescription string   `json:"visual_description,omitempty"`
	SearchTerms       []string `json:"search_terms,omitempty"`
}

// BundleKind distinguishes long-form countdowns from short-form scripts.
type BundleKind string

const (
	KindLong  BundleKind = "long"
	KindShort BundleKind = "short"
)

// ScriptBundle is the complete generated script for one video.
// Long-form bundles carry exactly ten Items ordered rank 10 down to 1.
// Short-form bundles carry between three and ten Scenes.
type ScriptBundle struct {
	Kind       BundleKind `json:"kind"`
	IntroText  string     `json:"intro_text,omitempty"`
	Items      []Item     `json:"items,omitempty"`
	Conclusion string     `json:"conclusion,omitempty"`
	Hooks      Hooks      `json:"hooks,omitempty"`
	FullScript string     `json:"full_script,omitempty"`
	Research   string     `json:"research,omitempty"`
	Scenes     []Scene    `json:"scenes,omitempty"`
}

// SegmentCount reports how many renderable segments the bundle yields.
func (b *ScriptBundle) SegmentCount() int {
	if b.Kind == KindShort {
		return len(b.Scenes)
	}
	n := len(b.Items)
	if b.IntroText != "" {
		n++
	}
	if b.Conclusion != "" {
		n++
	}
	return n
}

// SegmentKind tells the processor which narration rules apply.
type SegmentKind string

const (
	SegmentIntro      SegmentKind = "intro"
	SegmentItem       SegmentKind = "item"
	SegmentConclusion SegmentKind = "conclusion"
	SegmentScene      SegmentKind = "scene"
)

// SegmentTask is one independently processable unit of a video.
type SegmentTask struct {
	Kind        SegmentKind `json:"kind"`
	Index       int         `json:"index"`
	Rank        int         `json:"rank,omitempty"`
	Title       string      `json:"title,omitempty"`
	Text        string      `json:"text"`
	SearchTerms []string    `json:"search_terms,omitempty"`
	Dir         string      `json:"dir"`
}

// ResourceStatus records how a per-segment resource was produced.
type ResourceStatus string

const (
	StatusOK       ResourceStatus = "ok"
	StatusDegraded ResourceStatus = "degraded"
	StatusFailed   ResourceStatus = "failed"
)

// SegmentArtifacts is the output of processing one segment. AudioPath and
// MediaPath always point at playable files, placeholders included.
type SegmentArtifacts struct {
	Index       int            `json:"index"`
	Kind        SegmentKind    `json:"kind"`
	AudioPath   string         `json:"audio_path"`
	MediaPaths  []string       `json:"media_paths"`
	AudioStatus ResourceStatus `json:"audio_status"`
	MediaStatus ResourceStatus `json:"media_status"`
	DurationSec float64        `json:"duration_sec,omitempty"`
}

// PipelineState is the snapshot persisted between stages of a run.
type PipelineState struct {
	RunID     string            `json:"run_id"`
	Topic     Topic             `json:"topic"`
	Stage     string            `json:"stage"`
	Bundle    *ScriptBundle     `json:"bundle,omitempty"`
	Artifacts []SegmentArtifacts `json:"artifacts,omitempty"`
	VideoPath string            `json:"video_path,omitempty"`
}
