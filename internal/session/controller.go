package session

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/visionavatar/internal/bus"
	"github.com/normanking/visionavatar/internal/intent"
	"github.com/normanking/visionavatar/internal/oracle"
	"github.com/normanking/visionavatar/internal/profile"
)

// Config configures the controller's announcement behavior
type Config struct {
	// ChangeCooldown gates unknown-to-recognized and demographics-jump
	// announcements (default: 60s)
	ChangeCooldown time.Duration
	// RecognitionCooldown gates the name correction after a generic
	// greeting (default: 10s)
	RecognitionCooldown time.Duration
	// DemographicJumpYears is the age delta treated as a different person
	// in front of the same camera (default: 10)
	DemographicJumpYears float64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ChangeCooldown:       60 * time.Second,
		RecognitionCooldown:  10 * time.Second,
		DemographicJumpYears: 10,
	}
}

// TickInput carries one capture tick's worth of recognition signals.
// Any field may be nil: signals are sparse and best-effort, never
// authoritative resets.
type TickInput struct {
	// Face is the oracle's search-or-index outcome, or nil when no face was
	// found or the oracle call failed this tick.
	Face *oracle.FaceResult
	// Demographics is this tick's demographic estimate, if any.
	Demographics *oracle.Demographics
	// Emotion is this tick's emotion/attention detection, if any.
	Emotion *oracle.EmotionAttention
	// Now is the tick's wall time; zero means time.Now().
	Now time.Time
}

// Announcement is a user-facing message triggered by a change in recognized
// identity or demographics.
type Announcement struct {
	Message string `json:"message"`
	// Name is the newly recognized name, or "" for the no-name variant.
	Name string `json:"name,omitempty"`
}

// Greeting is the one-shot initial greeting of a session.
type Greeting struct {
	Message      string `json:"message"`
	Name         string `json:"name,omitempty"`
	Personalized bool   `json:"personalized"`
}

// TickResult is the outcome of applying one tick.
type TickResult struct {
	Identity     Identity
	Announcement *Announcement
	Greeting     *Greeting
}

// Controller owns the session identity and decides when announcements and
// greetings fire. All state changes happen under one mutex held for the full
// read-modify-write of a tick, so overlapping ticks apply against current
// state rather than stale snapshots, and the announcement decision is atomic
// with the cooldown update.
type Controller struct {
	config   Config
	store    *profile.Store
	cooldown *Cooldown
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu       sync.Mutex
	identity Identity

	// one-shot greeting latch; greetedWithName is "" after a generic greeting
	hasGreeted      bool
	greetedWithName string

	// external collaborator state gating announcements
	speaking   bool
	thinking   bool
	monitoring bool
}

// NewController creates a session controller
func NewController(cfg Config, store *profile.Store, eventBus *bus.EventBus, logger zerolog.Logger) *Controller {
	if cfg.ChangeCooldown <= 0 {
		cfg.ChangeCooldown = 60 * time.Second
	}
	if cfg.RecognitionCooldown <= 0 {
		cfg.RecognitionCooldown = 10 * time.Second
	}
	if cfg.DemographicJumpYears <= 0 {
		cfg.DemographicJumpYears = 10
	}

	return &Controller{
		config:   cfg,
		store:    store,
		cooldown: NewCooldown(cfg.ChangeCooldown, cfg.RecognitionCooldown),
		eventBus: eventBus,
		logger:   logger.With().Str("component", "session").Logger(),
		identity: newIdentity(),
	}
}

// SetConfig replaces announcement tuning at runtime.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.ChangeCooldown > 0 {
		c.config.ChangeCooldown = cfg.ChangeCooldown
	}
	if cfg.RecognitionCooldown > 0 {
		c.config.RecognitionCooldown = cfg.RecognitionCooldown
	}
	if cfg.DemographicJumpYears > 0 {
		c.config.DemographicJumpYears = cfg.DemographicJumpYears
	}
	c.cooldown.SetIntervals(cfg.ChangeCooldown, cfg.RecognitionCooldown)
}

// Identity returns a copy of the current session identity.
func (c *Controller) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// SetSpeaking records whether the avatar is currently speaking.
func (c *Controller) SetSpeaking(speaking bool) {
	c.mu.Lock()
	c.speaking = speaking
	c.mu.Unlock()

	if c.eventBus != nil {
		evt := bus.EventTypeSpeakingStopped
		if speaking {
			evt = bus.EventTypeSpeakingStarted
		}
		c.eventBus.Publish(bus.Event{Type: evt})
	}
}

// SetThinking records whether a response is being generated.
func (c *Controller) SetThinking(thinking bool) {
	c.mu.Lock()
	c.thinking = thinking
	c.mu.Unlock()

	if c.eventBus != nil {
		evt := bus.EventTypeThinkingStopped
		if thinking {
			evt = bus.EventTypeThinkingStarted
		}
		c.eventBus.Publish(bus.Event{Type: evt})
	}
}

// SetMonitoring records whether vision monitoring is active. The initial
// greeting only fires while monitoring.
func (c *Controller) SetMonitoring(active bool) {
	c.mu.Lock()
	c.monitoring = active
	c.mu.Unlock()
}

// Apply folds one tick's recognition signals into the session identity and
// decides whether an announcement or the initial greeting fires.
func (c *Controller) Apply(tick TickInput) TickResult {
	now := tick.Now
	if now.IsZero() {
		now = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.identity

	// Resolve candidate identity: this tick's oracle id, else retain.
	newID := prev.IdentityID
	if tick.Face != nil && tick.Face.IdentityID != "" {
		newID = tick.Face.IdentityID
	}

	// Profile lookup; placeholder names count as absent.
	var rec *profile.Record
	newName := ""
	if newID != "" && c.store != nil {
		rec = c.store.Get(newID)
		if rec != nil && profile.IsRealName(rec.Name) {
			newName = rec.Name
		}
	}

	isNewlyIndexed := tick.Face != nil && tick.Face.Source == oracle.SourceIndexed

	// Trigger conditions
	wentUnknownToRecognized := prev.IdentityID == "" && newID != "" && newName != ""
	recognizedAfterGenericGreeting := c.hasGreeted && c.greetedWithName == "" && newName != ""
	demographicsJumped := false
	if prevAge, newAge := prev.ageEstimate(), tickAge(tick.Demographics); prevAge != nil && newAge != nil {
		demographicsJumped = math.Abs(prevAge.Estimate-newAge.Estimate) > c.config.DemographicJumpYears
	}

	result := TickResult{}

	// Announcement gate: cooldowns, speech state, and never before the first
	// greeting. The cooldown update is atomic with the decision because both
	// happen under c.mu.
	shouldAnnounce := ((wentUnknownToRecognized || demographicsJumped) && c.cooldown.CanAnnounceChange(now) ||
		recognizedAfterGenericGreeting && c.cooldown.CanAnnounceRecognition(now)) &&
		!c.speaking && !c.thinking && c.hasGreeted

	if shouldAnnounce {
		c.cooldown.MarkAnnounced(now, newName)
		c.greetedWithName = newName

		message := "Oh, hi there! I don't think we've met before."
		if newName != "" {
			message = fmt.Sprintf("Oh, hi %s! Nice to see you.", newName)
		}
		result.Announcement = &Announcement{Message: message, Name: newName}

		c.logger.Info().
			Str("name", newName).
			Bool("unknownToRecognized", wentUnknownToRecognized).
			Bool("demographicsJumped", demographicsJumped).
			Bool("afterGenericGreeting", recognizedAfterGenericGreeting).
			Msg("Announcing recognition")

		if c.eventBus != nil {
			c.eventBus.Publish(bus.Event{
				Type: bus.EventTypeAnnouncement,
				Data: map[string]any{"message": message, "name": newName},
			})
		}
	}

	// One-shot initial greeting; not re-armed by later ticks.
	if !c.hasGreeted && c.monitoring {
		c.hasGreeted = true
		c.greetedWithName = newName

		greeting := &Greeting{Name: newName, Personalized: newName != ""}
		if newName != "" {
			greeting.Message = fmt.Sprintf("Hey %s! Welcome back. What would you like to talk about?", newName)
		} else {
			greeting.Message = "Hi there! I can see you and respond to your expressions. What's your name?"
		}
		result.Greeting = greeting

		c.logger.Info().Str("name", newName).Msg("Initial greeting")

		if c.eventBus != nil {
			c.eventBus.Publish(bus.Event{
				Type: bus.EventTypeGreeting,
				Data: map[string]any{"message": greeting.Message, "name": newName, "personalized": greeting.Personalized},
			})
		}
	}

	// Persist: newly indexed identities get a profile seeded with the
	// browser-wide default name; matched identities refresh last-seen.
	if c.store != nil && tick.Face != nil && tick.Face.IdentityID != "" {
		if isNewlyIndexed {
			name := c.store.DefaultName()
			if name == "" {
				name = profile.PlaceholderName
			}
			c.store.Upsert(&profile.Record{
				ID:          tick.Face.IdentityID,
				Name:        name,
				FirstSeenAt: now,
				LastSeenAt:  now,
			})
		} else if rec != nil {
			rec.LastSeenAt = now
			c.store.Upsert(rec)
		}
	}

	// Merge: missing per-tick signals fall back to the previous value.
	next := prev
	next.IdentityID = newID
	if newName != "" {
		next.DisplayName = newName
	}
	if tick.Face != nil {
		next.MatchConfidence = tick.Face.Similarity
	}
	if tick.Demographics != nil {
		if next.Demographics == nil {
			next.Demographics = &oracle.Demographics{}
		}
		merged := *next.Demographics
		if tick.Demographics.Age != nil {
			merged.Age = tick.Demographics.Age
		}
		if tick.Demographics.Gender != nil {
			merged.Gender = tick.Demographics.Gender
		}
		next.Demographics = &merged
	}
	if tick.Emotion != nil {
		next.Emotion = tick.Emotion.Dominant()
		next.Attention = oracle.BucketAttention(tick.Emotion.AttentionScore())
	}
	next.IsNewlyIndexed = isNewlyIndexed
	next.LastUpdatedAt = now

	c.identity = next
	result.Identity = next

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeIdentityUpdated,
			Data: map[string]any{
				"identityId":     next.IdentityID,
				"displayName":    next.DisplayName,
				"isNewlyIndexed": next.IsNewlyIndexed,
			},
		})
	}

	return result
}

// ApplyLiveness folds a liveness verdict into the session identity. A failed
// check fails open: the user stays live rather than being accused.
func (c *Controller) ApplyLiveness(result *oracle.Liveness, err error) {
	c.mu.Lock()
	if err != nil || result == nil {
		c.identity.IsLive = true
	} else {
		c.identity.IsLive = result.IsLive
	}
	isLive := c.identity.IsLive
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("Liveness check failed, assuming live")
	} else if !isLive {
		c.logger.Warn().Msg("Liveness check negative, might be photo/video")
	}

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeLivenessResult,
			Data: map[string]any{"isLive": isLive},
		})
	}
}

// HandleUtterance classifies a user utterance and executes any voice command
// it carries. The returned intent tells the caller what happened; KindNone
// means the utterance is ordinary conversation.
func (c *Controller) HandleUtterance(text string) intent.Intent {
	in := intent.Classify(text)

	switch in.Kind {
	case intent.KindIntroduction:
		c.handleIntroduction(in.Name)
	case intent.KindEraseMe:
		c.EraseIdentity()
	case intent.KindIdentityQuery:
		c.logger.Debug().Msg("Identity question detected")
	}

	if in.Kind != intent.KindNone && c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeIntentDetected,
			Data: map[string]any{"kind": string(in.Kind), "name": in.Name},
		})
	}

	return in
}

// handleIntroduction records the introduced name: on the session, on every
// profile still carrying the placeholder (recognition may assign different
// ids to the same person), and as the browser-wide default for all future
// first-time indexing.
func (c *Controller) handleIntroduction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		c.store.SetDefaultName(name)

		updated := 0
		for _, rec := range c.store.ListAll() {
			if profile.IsRealName(rec.Name) {
				continue
			}
			rec.Name = name
			if err := c.store.Upsert(rec); err == nil {
				updated++
			}
		}

		// Ensure the current identity has a profile carrying the name
		if id := c.identity.IdentityID; id != "" {
			rec := c.store.Get(id)
			now := time.Now()
			if rec == nil {
				rec = &profile.Record{ID: id, FirstSeenAt: now, LastSeenAt: now}
			}
			rec.Name = name
			c.store.Upsert(rec)
		}

		c.logger.Info().Str("name", name).Int("profilesUpdated", updated).Msg("User introduced themselves")
	}

	c.identity.DisplayName = name
	c.greetedWithName = name
}

// EraseIdentity executes a full identity reset: the current profile is
// deleted, the session identity is cleared, and the browser-wide default
// name and collection id are dropped. Invoking it twice in a row yields the
// same end state.
func (c *Controller) EraseIdentity() {
	c.mu.Lock()

	id := c.identity.IdentityID
	if c.store != nil {
		if id != "" {
			c.store.Delete(id)
		}
		c.store.ClearDefaultName()
		c.store.ClearCollectionID()
	}

	c.identity.IdentityID = ""
	c.identity.DisplayName = ""
	c.identity.MatchConfidence = 0
	c.identity.IsNewlyIndexed = false
	c.greetedWithName = ""

	c.mu.Unlock()

	c.logger.Info().Str("id", id).Msg("Identity erased")

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeIdentityErased})
	}
}

// Reset returns the controller to session-start state. Used on session
// teardown; profiles persist unless explicitly erased.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.identity = newIdentity()
	c.hasGreeted = false
	c.greetedWithName = ""
	c.cooldown.Reset()
}

// HasGreeted reports whether the initial greeting has fired this session.
func (c *Controller) HasGreeted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasGreeted
}

// tickAge extracts the age estimate from a tick's demographics, or nil.
func tickAge(d *oracle.Demographics) *oracle.AgeEstimate {
	if d == nil {
		return nil
	}
	return d.Age
}
