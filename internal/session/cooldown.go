package session

import (
	"sync"
	"time"
)

// Cooldown tracks the last state-changing announcement and enforces minimum
// intervals before the next one. Re-identification announcements carry the
// long cooldown; the name correction after a generic greeting carries the
// short one.
type Cooldown struct {
	mu                  sync.Mutex
	changeCooldown      time.Duration
	recognitionCooldown time.Duration
	lastAnnouncedAt     time.Time
	lastAnnouncedName   string
}

// NewCooldown creates a cooldown scheduler with the given intervals.
func NewCooldown(change, recognition time.Duration) *Cooldown {
	if change <= 0 {
		change = 60 * time.Second
	}
	if recognition <= 0 {
		recognition = 10 * time.Second
	}
	return &Cooldown{
		changeCooldown:      change,
		recognitionCooldown: recognition,
	}
}

// SetIntervals replaces the cooldown durations at runtime.
func (c *Cooldown) SetIntervals(change, recognition time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if change > 0 {
		c.changeCooldown = change
	}
	if recognition > 0 {
		c.recognitionCooldown = recognition
	}
}

// CanAnnounceChange reports whether a re-identification announcement may
// fire at the given time.
func (c *Cooldown) CanAnnounceChange(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastAnnouncedAt) > c.changeCooldown
}

// CanAnnounceRecognition reports whether a post-greeting name correction may
// fire at the given time.
func (c *Cooldown) CanAnnounceRecognition(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastAnnouncedAt) > c.recognitionCooldown
}

// MarkAnnounced records that an announcement fired now with the given name.
func (c *Cooldown) MarkAnnounced(now time.Time, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAnnouncedAt = now
	c.lastAnnouncedName = name
}

// LastAnnouncedName returns the name carried by the last announcement.
func (c *Cooldown) LastAnnouncedName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAnnouncedName
}

// LastAnnouncedAt returns the time of the last announcement.
func (c *Cooldown) LastAnnouncedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAnnouncedAt
}

// Reset clears the cooldown state.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAnnouncedAt = time.Time{}
	c.lastAnnouncedName = ""
}
