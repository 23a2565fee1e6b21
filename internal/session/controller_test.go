package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/visionavatar/internal/intent"
	"github.com/normanking/visionavatar/internal/oracle"
	"github.com/normanking/visionavatar/internal/profile"
)

func newTestController(t *testing.T) (*Controller, *profile.Store) {
	t.Helper()

	store, err := profile.Open(filepath.Join(t.TempDir(), "profiles.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctrl := NewController(DefaultConfig(), store, nil, zerolog.Nop())
	ctrl.SetMonitoring(true)
	return ctrl, store
}

func matchedFace(id string, similarity float64) *oracle.FaceResult {
	return &oracle.FaceResult{Source: oracle.SourceMatched, IdentityID: id, Similarity: similarity}
}

func indexedFace(id string) *oracle.FaceResult {
	return &oracle.FaceResult{Source: oracle.SourceIndexed, IdentityID: id}
}

func demographics(age float64) *oracle.Demographics {
	return &oracle.Demographics{
		Age: &oracle.AgeEstimate{Estimate: age, Min: age - 3, Max: age + 3},
	}
}

func TestController_InitialGreeting_Generic(t *testing.T) {
	ctrl, _ := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := ctrl.Apply(TickInput{Now: now})

	if res.Greeting == nil {
		t.Fatal("expected initial greeting on first tick")
	}
	if res.Greeting.Personalized {
		t.Error("expected generic greeting when no name is known")
	}
	if res.Greeting.Name != "" {
		t.Errorf("expected empty greeting name, got %q", res.Greeting.Name)
	}

	// Never fires again this session
	res = ctrl.Apply(TickInput{Now: now.Add(3 * time.Second)})
	if res.Greeting != nil {
		t.Error("expected greeting to fire exactly once per session")
	}
}

func TestController_InitialGreeting_Personalized(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})

	res := ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now})

	if res.Greeting == nil {
		t.Fatal("expected initial greeting")
	}
	if !res.Greeting.Personalized {
		t.Error("expected personalized greeting for recognized returning user")
	}
	if res.Greeting.Name != "Ana" {
		t.Errorf("expected greeting name Ana, got %q", res.Greeting.Name)
	}
}

func TestController_NoGreetingWithoutMonitoring(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.SetMonitoring(false)

	res := ctrl.Apply(TickInput{Now: time.Now()})
	if res.Greeting != nil {
		t.Error("expected no greeting while monitoring is inactive")
	}
	if ctrl.HasGreeted() {
		t.Error("expected greeting latch unarmed while monitoring is inactive")
	}
}

func TestController_PlaceholderNameNotRecognized(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: profile.PlaceholderName, FirstSeenAt: now, LastSeenAt: now})

	res := ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now})

	if res.Greeting == nil || res.Greeting.Personalized {
		t.Error("expected generic greeting for placeholder-named profile")
	}
	if got := ctrl.Identity().DisplayName; got != "" {
		t.Errorf("expected empty display name for placeholder profile, got %q", got)
	}
}

func TestController_AnnouncesUnknownToRecognized(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})

	// First tick: no face, generic greeting fires
	ctrl.Apply(TickInput{Now: now})

	// Second tick: recognized with a real name
	res := ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.88), Now: now.Add(3 * time.Second)})

	if res.Announcement == nil {
		t.Fatal("expected announcement when identity went unknown to recognized")
	}
	if res.Announcement.Name != "Ana" {
		t.Errorf("expected announcement name Ana, got %q", res.Announcement.Name)
	}
}

func TestController_NoAnnouncementBeforeGreeting(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})

	// Recognition on the very first tick rides the greeting, not an
	// announcement.
	res := ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now})
	if res.Announcement != nil {
		t.Error("expected no announcement on the greeting tick")
	}
	if res.Greeting == nil || !res.Greeting.Personalized {
		t.Error("expected personalized greeting instead of announcement")
	}
}

func TestController_ChangeCooldownSuppressesAnnouncement(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})

	// Personalized greeting, age 30 on record
	ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Demographics: demographics(30), Now: now})

	// First jump announces
	res := ctrl.Apply(TickInput{Demographics: demographics(55), Now: now.Add(3 * time.Second)})
	if res.Announcement == nil {
		t.Fatal("expected first announcement on demographic jump")
	}
	announcedAt := now.Add(3 * time.Second)

	// A second jump inside the window is suppressed, but the new estimate
	// still merges
	res = ctrl.Apply(TickInput{Demographics: demographics(30), Now: announcedAt.Add(30 * time.Second)})
	if res.Announcement != nil {
		t.Error("expected announcement suppressed inside the change cooldown")
	}

	// Outside the window it fires again
	res = ctrl.Apply(TickInput{Demographics: demographics(55), Now: announcedAt.Add(61 * time.Second)})
	if res.Announcement == nil {
		t.Error("expected announcement after the change cooldown elapsed")
	}
}

func TestController_NameCorrectionAfterGenericGreeting(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Generic greeting, then a new face is indexed without a name
	ctrl.Apply(TickInput{Now: now})
	ctrl.Apply(TickInput{Face: indexedFace("face_1"), Now: now.Add(3 * time.Second)})

	// The profile later resolves to a real name
	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})

	res := ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.91), Now: now.Add(15 * time.Second)})
	if res.Announcement == nil {
		t.Fatal("expected name-correction announcement after generic greeting")
	}
	if res.Announcement.Name != "Ana" {
		t.Errorf("expected announcement name Ana, got %q", res.Announcement.Name)
	}

	// Once corrected, the same name does not re-announce
	res = ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.91), Now: now.Add(30 * time.Second)})
	if res.Announcement != nil {
		t.Error("expected no repeat announcement for the same name")
	}
}

func TestController_SpeakingSuppressesAnnouncement(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})

	ctrl.Apply(TickInput{Now: now})
	ctrl.SetSpeaking(true)

	res := ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now.Add(3 * time.Second)})
	if res.Announcement != nil {
		t.Error("expected announcement suppressed while speaking")
	}

	ctrl.SetSpeaking(false)
	res = ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now.Add(6 * time.Second)})
	if res.Announcement == nil {
		t.Error("expected announcement once speaking stopped")
	}
}

func TestController_StickyDisplayName(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})
	ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now})

	// Ticks without a face never regress the name
	ctrl.Apply(TickInput{Now: now.Add(3 * time.Second)})
	ctrl.Apply(TickInput{Now: now.Add(6 * time.Second)})

	id := ctrl.Identity()
	if id.DisplayName != "Ana" {
		t.Errorf("expected display name to stay Ana, got %q", id.DisplayName)
	}
	if id.IdentityID != "face_1" {
		t.Errorf("expected identity id retained, got %q", id.IdentityID)
	}
}

func TestController_IndexedCreatesProfile(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ctrl.Apply(TickInput{Face: indexedFace("face_9"), Now: now})

	rec := store.Get("face_9")
	if rec == nil {
		t.Fatal("expected profile created for newly indexed face")
	}
	if rec.Name != profile.PlaceholderName {
		t.Errorf("expected placeholder name, got %q", rec.Name)
	}
	if !ctrl.Identity().IsNewlyIndexed {
		t.Error("expected IsNewlyIndexed set on the indexing tick")
	}

	// Flag clears on the next tick
	ctrl.Apply(TickInput{Face: matchedFace("face_9", 0.8), Now: now.Add(3 * time.Second)})
	if ctrl.Identity().IsNewlyIndexed {
		t.Error("expected IsNewlyIndexed cleared after a match tick")
	}
}

func TestController_IndexedUsesDefaultName(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.SetDefaultName("Ana")
	ctrl.Apply(TickInput{Face: indexedFace("face_7"), Now: now})

	rec := store.Get("face_7")
	if rec == nil || rec.Name != "Ana" {
		t.Fatalf("expected new profile seeded with default name Ana, got %+v", rec)
	}
}

func TestController_MatchedRefreshesLastSeen(t *testing.T) {
	ctrl, store := newTestController(t)
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := first.Add(2 * time.Hour)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: first, LastSeenAt: first})
	ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: later})

	rec := store.Get("face_1")
	if rec == nil {
		t.Fatal("expected profile to exist")
	}
	if !rec.LastSeenAt.Equal(later) {
		t.Errorf("expected last seen %v, got %v", later, rec.LastSeenAt)
	}
	if !rec.FirstSeenAt.Equal(first) {
		t.Errorf("expected first seen preserved as %v, got %v", first, rec.FirstSeenAt)
	}
}

func TestController_DemographicsJumpAnnounces(t *testing.T) {
	ctrl, _ := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ctrl.Apply(TickInput{Demographics: demographics(30), Now: now})

	// Small drift does not trigger
	res := ctrl.Apply(TickInput{Demographics: demographics(35), Now: now.Add(3 * time.Second)})
	if res.Announcement != nil {
		t.Error("expected no announcement for a 5-year drift")
	}

	// A jump past the threshold reads as a different person
	res = ctrl.Apply(TickInput{Demographics: demographics(55), Now: now.Add(6 * time.Second)})
	if res.Announcement == nil {
		t.Fatal("expected announcement for a 20-year demographic jump")
	}
	if res.Announcement.Name != "" {
		t.Errorf("expected no-name announcement, got %q", res.Announcement.Name)
	}
}

func TestController_MergeRetainsMissingSignals(t *testing.T) {
	ctrl, _ := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	emotion := &oracle.EmotionAttention{
		Scores:    map[string]float64{"happy": 0.8, "neutral": 0.1},
		HasFace:   true,
		Attention: true,
	}
	ctrl.Apply(TickInput{
		Face:         matchedFace("face_1", 0.9),
		Demographics: demographics(30),
		Emotion:      emotion,
		Now:          now,
	})

	// A sparse tick falls back to previous values
	ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.85), Now: now.Add(3 * time.Second)})

	id := ctrl.Identity()
	if id.Demographics == nil || id.Demographics.Age == nil || id.Demographics.Age.Estimate != 30 {
		t.Error("expected demographics retained across sparse tick")
	}
	if id.Emotion != "happy" {
		t.Errorf("expected emotion retained as happy, got %q", id.Emotion)
	}
	if id.Attention != oracle.AttentionHigh {
		t.Errorf("expected attention retained as high, got %q", id.Attention)
	}
	if id.MatchConfidence != 0.85 {
		t.Errorf("expected confidence updated to 0.85, got %v", id.MatchConfidence)
	}
}

func TestController_ApplyLiveness(t *testing.T) {
	ctrl, _ := newTestController(t)

	if !ctrl.Identity().IsLive {
		t.Error("expected liveness to default to live")
	}

	ctrl.ApplyLiveness(&oracle.Liveness{IsLive: false, Confidence: 0.4}, nil)
	if ctrl.Identity().IsLive {
		t.Error("expected negative verdict applied")
	}

	// A failed check fails open
	ctrl.ApplyLiveness(nil, errors.New("liveness backend unreachable"))
	if !ctrl.Identity().IsLive {
		t.Error("expected liveness to fail open on check error")
	}
}

func TestController_HandleUtterance_Introduction(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ctrl.Apply(TickInput{Face: indexedFace("face_1"), Now: now})

	in := ctrl.HandleUtterance("My name is Ana")
	if in.Kind != intent.KindIntroduction {
		t.Fatalf("expected introduction intent, got %q", in.Kind)
	}
	if in.Name != "Ana" {
		t.Errorf("expected extracted name Ana, got %q", in.Name)
	}

	if got := ctrl.Identity().DisplayName; got != "Ana" {
		t.Errorf("expected display name Ana after introduction, got %q", got)
	}
	rec := store.Get("face_1")
	if rec == nil || rec.Name != "Ana" {
		t.Errorf("expected profile renamed to Ana, got %+v", rec)
	}
	if store.DefaultName() != "Ana" {
		t.Error("expected default name recorded for future indexing")
	}
}

func TestController_HandleUtterance_IntroductionRenamesAllPlaceholders(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Recognition can assign several ids to the same person
	store.Upsert(&profile.Record{ID: "face_1", Name: profile.PlaceholderName, FirstSeenAt: now, LastSeenAt: now})
	store.Upsert(&profile.Record{ID: "face_2", Name: profile.PlaceholderName, FirstSeenAt: now, LastSeenAt: now})
	store.Upsert(&profile.Record{ID: "face_3", Name: "Ben", FirstSeenAt: now, LastSeenAt: now})

	ctrl.HandleUtterance("call me Ana")

	if rec := store.Get("face_1"); rec == nil || rec.Name != "Ana" {
		t.Errorf("expected face_1 renamed to Ana, got %+v", rec)
	}
	if rec := store.Get("face_2"); rec == nil || rec.Name != "Ana" {
		t.Errorf("expected face_2 renamed to Ana, got %+v", rec)
	}
	// Real names are never overwritten
	if rec := store.Get("face_3"); rec == nil || rec.Name != "Ben" {
		t.Errorf("expected face_3 to keep its name, got %+v", rec)
	}
}

func TestController_HandleUtterance_EraseMe(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.SetDefaultName("Ana")
	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})
	ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now})

	in := ctrl.HandleUtterance("please forget me")
	if in.Kind != intent.KindEraseMe {
		t.Fatalf("expected erase-me intent, got %q", in.Kind)
	}

	if store.Get("face_1") != nil {
		t.Error("expected profile deleted")
	}
	if store.DefaultName() != "" {
		t.Error("expected default name cleared")
	}
	id := ctrl.Identity()
	if id.IdentityID != "" || id.DisplayName != "" || id.MatchConfidence != 0 {
		t.Errorf("expected identity cleared, got %+v", id)
	}

	// Erasing again yields the same end state
	ctrl.HandleUtterance("forget me")
	id = ctrl.Identity()
	if id.IdentityID != "" || id.DisplayName != "" {
		t.Error("expected erase to be idempotent")
	}
}

func TestController_HandleUtterance_IdentityQueryDoesNotMutate(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Upsert(&profile.Record{ID: "face_1", Name: "Ana", FirstSeenAt: now, LastSeenAt: now})
	ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now})
	before := ctrl.Identity()

	in := ctrl.HandleUtterance("do you know me?")
	if in.Kind != intent.KindIdentityQuery {
		t.Fatalf("expected identity-query intent, got %q", in.Kind)
	}

	after := ctrl.Identity()
	if after.IdentityID != before.IdentityID || after.DisplayName != before.DisplayName {
		t.Error("expected identity unchanged by identity query")
	}
	if store.Get("face_1") == nil {
		t.Error("expected profile untouched by identity query")
	}
}

func TestController_FullSession(t *testing.T) {
	ctrl, store := newTestController(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// First visit: face indexed, generic greeting
	res := ctrl.Apply(TickInput{Face: indexedFace("face_1"), Now: now})
	if res.Greeting == nil || res.Greeting.Personalized {
		t.Fatal("expected generic greeting for first-time visitor")
	}

	// User introduces themselves
	ctrl.HandleUtterance("my name is Ana")

	// Next session starts fresh but remembers the profile
	ctrl.Reset()
	ctrl.SetMonitoring(true)
	res = ctrl.Apply(TickInput{Face: matchedFace("face_1", 0.9), Now: now.Add(time.Hour)})
	if res.Greeting == nil || !res.Greeting.Personalized || res.Greeting.Name != "Ana" {
		t.Fatalf("expected personalized greeting for returning Ana, got %+v", res.Greeting)
	}

	// Privacy request wipes everything
	ctrl.HandleUtterance("forget me")
	if len(store.ListAll()) != 0 {
		t.Error("expected no profiles after erase")
	}

	// The next appearance is a stranger again
	res = ctrl.Apply(TickInput{Face: indexedFace("face_2"), Now: now.Add(2 * time.Hour)})
	if res.Greeting != nil {
		t.Error("expected no second greeting within the session")
	}
	if got := ctrl.Identity().DisplayName; got != "" {
		t.Errorf("expected no display name after erase, got %q", got)
	}
}
