// Package oracle provides face recognition capabilities for VisionAvatar.
// Two implementations exist: a Remote client backed by the recognition
// service, and a Simulated in-process model for demo mode.
package oracle

import (
	"context"
	"time"
)

// ResultSource indicates whether a face was matched against an existing
// identity or indexed as a new one.
type ResultSource string

const (
	SourceMatched ResultSource = "Matched"
	SourceIndexed ResultSource = "Indexed"
)

// FaceResult is the outcome of a search-or-index call.
type FaceResult struct {
	Source     ResultSource `json:"resultSource"`
	IdentityID string       `json:"identityId"`
	Similarity float64      `json:"similarity"` // 0..1, zero when indexed
}

// AgeEstimate is a point estimate with an uncertainty band.
type AgeEstimate struct {
	Estimate float64 `json:"estimate"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// GenderEstimate is a label with confidence.
type GenderEstimate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Demographics bundles the per-frame demographic estimates.
type Demographics struct {
	Age    *AgeEstimate    `json:"age,omitempty"`
	Gender *GenderEstimate `json:"gender,omitempty"`
}

// AttentionLevel buckets the derived attention score.
type AttentionLevel string

const (
	AttentionHigh   AttentionLevel = "high"
	AttentionMedium AttentionLevel = "medium"
	AttentionLow    AttentionLevel = "low"
)

// BucketAttention converts a 0..1 attention score into a level.
func BucketAttention(score float64) AttentionLevel {
	switch {
	case score > 0.7:
		return AttentionHigh
	case score > 0.4:
		return AttentionMedium
	default:
		return AttentionLow
	}
}

// EmotionAttention holds per-frame emotion scores and attention flags.
type EmotionAttention struct {
	Scores       map[string]float64 `json:"scores"`
	HasFace      bool               `json:"hasFace"`
	Presence     bool               `json:"presence"`
	EyesOnScreen bool               `json:"eyesOnScreen"`
	Attention    bool               `json:"attention"`
}

// Dominant returns the emotion label with the highest score. Auxiliary flags
// are never part of Scores, so the comparison runs over emotion keys only.
// Returns "neutral" when no scores are present.
func (e *EmotionAttention) Dominant() string {
	dominant := "neutral"
	best := 0.0
	for label, score := range e.Scores {
		if score > best {
			dominant = label
			best = score
		}
	}
	return dominant
}

// AttentionScore derives a 0..1 score from the boolean flags: full credit for
// the attention flag, half for eyes-on-screen, zero otherwise.
func (e *EmotionAttention) AttentionScore() float64 {
	if e.Attention {
		return 1.0
	}
	if e.EyesOnScreen {
		return 0.5
	}
	return 0
}

// Liveness is the verdict of a liveness check on a short video sample.
type Liveness struct {
	IsLive     bool    `json:"isLive"`
	Confidence float64 `json:"confidence"`
}

// Oracle is the face recognition capability consumed by the controller.
//
// SearchOrIndex returns (nil, nil) when no face is found in the frame:
// expected absence is not an error. Transport failures return an error and
// the caller discards the tick.
type Oracle interface {
	// CreateCollection ensures the named collection exists. "Already exists"
	// is a success outcome.
	CreateCollection(ctx context.Context, collectionID, description string) error

	// SearchOrIndex searches for the face in the collection, indexing it as a
	// new identity if no match clears the threshold (0-100).
	SearchOrIndex(ctx context.Context, frame []byte, collectionID string, threshold int) (*FaceResult, error)

	// EstimateDemographics returns age and gender estimates for the frame.
	EstimateDemographics(ctx context.Context, frame []byte) (*Demographics, error)

	// DetectEmotionAttention returns emotion scores and attention flags.
	DetectEmotionAttention(ctx context.Context, frame []byte) (*EmotionAttention, error)

	// CheckLiveness runs a liveness check over a short video sample.
	CheckLiveness(ctx context.Context, video []byte, duration time.Duration) (*Liveness, error)
}

// HealthChecker is implemented by oracles that can report backend status.
type HealthChecker interface {
	// CheckHealth probes the backend; the returned bool reports demo mode.
	CheckHealth(ctx context.Context) (demoMode bool, err error)
}
