package oracle

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// SimulatedConfig tunes the simulated oracle's probabilistic model
type SimulatedConfig struct {
	// MatchProbability is the chance a non-empty collection yields a match
	MatchProbability float64
	// MaxCollection caps the rolling set of held identities per collection
	MaxCollection int
	// SimilarityMin/Max bound the synthesized match similarity
	SimilarityMin float64
	SimilarityMax float64
	// LiveRate is the chance a liveness check reports live
	LiveRate float64
}

// DefaultSimulatedConfig returns the stock parameters
func DefaultSimulatedConfig() *SimulatedConfig {
	return &SimulatedConfig{
		MatchProbability: 0.7,
		MaxCollection:    5,
		SimilarityMin:    0.75,
		SimilarityMax:    0.95,
		LiveRate:         0.95,
	}
}

// Simulated is an in-process oracle emulating realistic probabilistic
// recognition behavior without a live service. It keeps a small rolling set
// of previously indexed identities per collection; entries persist only for
// the process lifetime.
type Simulated struct {
	config *SimulatedConfig
	logger zerolog.Logger

	mu          sync.Mutex
	collections map[string][]string // collection id -> FIFO of identity keys
	rng         *rand.Rand
}

// NewSimulated creates a simulated oracle
func NewSimulated(cfg *SimulatedConfig, logger zerolog.Logger) *Simulated {
	if cfg == nil {
		cfg = DefaultSimulatedConfig()
	}

	return &Simulated{
		config:      cfg,
		logger:      logger.With().Str("component", "oracle-simulated").Logger(),
		collections: make(map[string][]string),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetConfig replaces the tuning parameters at runtime
func (s *Simulated) SetConfig(cfg *SimulatedConfig) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
}

// newIdentityID mints a fresh identity key. Caller must hold s.mu.
func (s *Simulated) newIdentityID() string {
	return "face_" + ulid.MustNew(ulid.Timestamp(time.Now()), s.rng).String()
}

// CreateCollection registers the collection. Creating an existing collection
// is a no-op success.
func (s *Simulated) CreateCollection(ctx context.Context, collectionID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collectionID]; !ok {
		s.collections[collectionID] = nil
		s.logger.Info().Str("collection", collectionID).Msg("Collection created")
	}
	return nil
}

// SearchOrIndex draws a recognition event. An empty collection always
// indexes; otherwise the outcome is a match with MatchProbability, picking
// uniformly among held identities with a similarity in the configured band.
func (s *Simulated) SearchOrIndex(ctx context.Context, frame []byte, collectionID string, threshold int) (*FaceResult, error) {
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("match threshold %d out of range [0,100]", threshold)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.collections[collectionID]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist", collectionID)
	}

	if len(held) > 0 && s.rng.Float64() < s.config.MatchProbability {
		id := held[s.rng.Intn(len(held))]
		similarity := s.config.SimilarityMin + s.rng.Float64()*(s.config.SimilarityMax-s.config.SimilarityMin)

		s.logger.Debug().Str("identity", id).Float64("similarity", similarity).Msg("Simulated match")
		return &FaceResult{
			Source:     SourceMatched,
			IdentityID: id,
			Similarity: similarity,
		}, nil
	}

	// Index a new identity, evicting the oldest past the cap
	id := s.newIdentityID()
	held = append(held, id)
	if len(held) > s.config.MaxCollection {
		held = held[1:]
	}
	s.collections[collectionID] = held

	s.logger.Debug().Str("identity", id).Int("held", len(held)).Msg("Simulated index")
	return &FaceResult{
		Source:     SourceIndexed,
		IdentityID: id,
		Similarity: 0,
	}, nil
}

// EstimateDemographics synthesizes plausible demographic estimates.
func (s *Simulated) EstimateDemographics(ctx context.Context, frame []byte) (*Demographics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	age := 25 + s.rng.Float64()*20
	uncertainty := 3 + s.rng.Float64()*5

	gender := "Male"
	if s.rng.Float64() < 0.5 {
		gender = "Female"
	}

	min := age - uncertainty
	if min < 0 {
		min = 0
	}

	return &Demographics{
		Age: &AgeEstimate{
			Estimate: age,
			Min:      min,
			Max:      age + uncertainty,
		},
		Gender: &GenderEstimate{Value: gender, Confidence: 1.0},
	}, nil
}

var simulatedEmotions = []string{"happy", "neutral", "surprised", "sad", "confused"}

// DetectEmotionAttention synthesizes emotion scores with one dominant label.
func (s *Simulated) DetectEmotionAttention(ctx context.Context, frame []byte) (*EmotionAttention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dominant := simulatedEmotions[s.rng.Intn(len(simulatedEmotions))]

	scores := make(map[string]float64, len(simulatedEmotions))
	for _, label := range simulatedEmotions {
		if label == dominant {
			scores[label] = 0.6 + s.rng.Float64()*0.3
		} else {
			scores[label] = 0.05 + s.rng.Float64()*0.2
		}
	}

	return &EmotionAttention{
		Scores:       scores,
		HasFace:      true,
		Presence:     true,
		EyesOnScreen: s.rng.Float64() > 0.3,
		Attention:    s.rng.Float64() > 0.4,
	}, nil
}

// CheckLiveness synthesizes a liveness verdict at the configured live rate.
func (s *Simulated) CheckLiveness(ctx context.Context, video []byte, duration time.Duration) (*Liveness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	isLive := s.rng.Float64() < s.config.LiveRate

	confidence := 0.2 + s.rng.Float64()*0.3
	if isLive {
		confidence = 0.85 + s.rng.Float64()*0.14
	}

	return &Liveness{IsLive: isLive, Confidence: confidence}, nil
}

// CheckHealth always reports demo mode for the simulated oracle
func (s *Simulated) CheckHealth(ctx context.Context) (bool, error) {
	return true, nil
}

// CollectionSize reports how many identities a collection currently holds
func (s *Simulated) CollectionSize(collectionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collectionID])
}

// Reset drops all collections
func (s *Simulated) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string][]string)
}
