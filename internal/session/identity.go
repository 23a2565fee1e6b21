// Package session fuses noisy recognition signals into one coherent session
// identity and decides when user-facing announcements may fire.
package session

import (
	"time"

	"github.com/normanking/visionavatar/internal/oracle"
)

// Identity is the controller's current best understanding of who is present,
// fused from all recognition signals. It is owned exclusively by the
// Controller; callers receive copies.
type Identity struct {
	// IdentityID is the stable oracle-assigned id, or "" if never resolved.
	IdentityID string `json:"identityId,omitempty"`
	// DisplayName is a user-chosen name; "" means no real name is known.
	// Once set within a session it is never regressed to empty by a tick
	// that fails to resolve a name.
	DisplayName     string  `json:"displayName,omitempty"`
	MatchConfidence float64 `json:"matchConfidence"`
	// IsLive is the last liveness verdict; defaults to true (fail-open).
	IsLive       bool                  `json:"isLive"`
	Demographics *oracle.Demographics  `json:"demographics,omitempty"`
	Emotion      string                `json:"emotion,omitempty"`
	Attention    oracle.AttentionLevel `json:"attention,omitempty"`
	// IsNewlyIndexed is true only for the tick in which the oracle reported
	// Indexed rather than Matched.
	IsNewlyIndexed bool      `json:"isNewlyIndexed"`
	LastUpdatedAt  time.Time `json:"lastUpdatedAt"`
}

// newIdentity returns the session-start state: everything unset, liveness
// defaulting to live.
func newIdentity() Identity {
	return Identity{
		IsLive:        true,
		LastUpdatedAt: time.Now(),
	}
}

// ageEstimate returns the current age estimate, or nil.
func (id *Identity) ageEstimate() *oracle.AgeEstimate {
	if id.Demographics == nil {
		return nil
	}
	return id.Demographics.Age
}
