// Package monitor drives the periodic face recognition and liveness ticks.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/visionavatar/internal/bus"
	"github.com/normanking/visionavatar/internal/oracle"
	"github.com/normanking/visionavatar/internal/session"
	"github.com/normanking/visionavatar/internal/vision"
)

// Config holds monitor loop configuration
type Config struct {
	// TickInterval is the fast recognition cadence (default: 3s)
	TickInterval time.Duration
	// LivenessInterval is the slow liveness cadence (default: 60s)
	LivenessInterval time.Duration
	// LivenessWindow is how far back buffered frames are sampled for a
	// liveness clip (default: 3s)
	LivenessWindow time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		TickInterval:     3 * time.Second,
		LivenessInterval: 60 * time.Second,
		LivenessWindow:   3 * time.Second,
	}
}

// Monitor runs the capture loops: a fast tick that feeds each frame through
// recognition into the session controller, and a slow tick that samples
// buffered frames for a liveness check. Both stop deterministically; results
// from calls in flight at stop time are discarded.
type Monitor struct {
	config     Config
	oracle     oracle.Oracle
	vision     *vision.Manager
	controller *session.Controller
	eventBus   *bus.EventBus
	logger     zerolog.Logger

	// CollectionID scopes recognition; set before Start
	collectionID   string
	matchThreshold int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	// generation invalidates in-flight results from a stopped run
	generation uint64
}

// New creates a monitor
func New(cfg Config, orc oracle.Oracle, vis *vision.Manager, ctrl *session.Controller, eventBus *bus.EventBus, logger zerolog.Logger) *Monitor {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 3 * time.Second
	}
	if cfg.LivenessInterval <= 0 {
		cfg.LivenessInterval = 60 * time.Second
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = 3 * time.Second
	}

	return &Monitor{
		config:     cfg,
		oracle:     orc,
		vision:     vis,
		controller: ctrl,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "monitor").Logger(),
	}
}

// SetCollection sets the recognition collection and match threshold used by
// subsequent ticks.
func (m *Monitor) SetCollection(collectionID string, matchThreshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collectionID = collectionID
	m.matchThreshold = matchThreshold
}

// IsRunning reports whether the loops are active
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the tick loops. Starting while running is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.vision.EnableCamera()
	m.controller.SetMonitoring(true)

	m.wg.Add(2)
	go m.tickLoop(ctx, gen)
	go m.livenessLoop(ctx, gen)

	m.logger.Info().
		Dur("tick", m.config.TickInterval).
		Dur("liveness", m.config.LivenessInterval).
		Msg("Monitoring started")
}

// Stop halts the loops and waits for them to exit. In-flight oracle results
// are discarded. Session identity is left intact.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.controller.SetMonitoring(false)
	m.vision.DisableCamera()

	m.logger.Info().Msg("Monitoring stopped")
}

// tickLoop runs the fast recognition tick. The first tick fires immediately.
func (m *Monitor) tickLoop(ctx context.Context, gen uint64) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	m.runTick(ctx, gen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runTick(ctx, gen)
		}
	}
}

// livenessLoop runs the slow liveness tick. The first check is delayed a full
// interval so the frame buffer has content.
func (m *Monitor) livenessLoop(ctx context.Context, gen uint64) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runLiveness(ctx, gen)
		}
	}
}

// runTick feeds the latest frame through recognition and applies the result.
func (m *Monitor) runTick(ctx context.Context, gen uint64) {
	frame := m.vision.LastFrame()
	if frame == nil {
		m.logger.Debug().Msg("No frame yet, skipping tick")
		return
	}

	m.mu.Lock()
	collectionID := m.collectionID
	threshold := m.matchThreshold
	m.mu.Unlock()

	if collectionID == "" {
		m.logger.Debug().Msg("No collection configured, skipping tick")
		return
	}

	tick := session.TickInput{Now: time.Now()}

	face, err := m.oracle.SearchOrIndex(ctx, frame.Data, collectionID, threshold)
	if err != nil {
		// Transport failure: skip this tick, identity stays as-is
		m.logger.Warn().Err(err).Msg("Face search failed, skipping tick")
		m.publishOracleError("search-or-index", err)
		return
	}
	tick.Face = face

	if demo, err := m.oracle.EstimateDemographics(ctx, frame.Data); err != nil {
		m.logger.Debug().Err(err).Msg("Demographics estimate failed")
		m.publishOracleError("demographics", err)
	} else {
		tick.Demographics = demo
	}

	if emo, err := m.oracle.DetectEmotionAttention(ctx, frame.Data); err != nil {
		m.logger.Debug().Err(err).Msg("Emotion detection failed")
		m.publishOracleError("emotion-attention", err)
	} else {
		tick.Emotion = emo
	}

	if m.stale(gen) {
		return
	}

	m.controller.Apply(tick)
}

// runLiveness samples recent frames and applies the liveness verdict.
func (m *Monitor) runLiveness(ctx context.Context, gen uint64) {
	sample, err := m.vision.Sample(m.config.LivenessWindow)
	if err != nil {
		m.logger.Debug().Err(err).Msg("No frames for liveness check")
		return
	}

	result, err := m.oracle.CheckLiveness(ctx, sample.Data, sample.Duration)

	if m.stale(gen) {
		return
	}
	if err != nil {
		m.publishOracleError("liveness", err)
	}

	m.controller.ApplyLiveness(result, err)
}

// stale reports whether results from generation gen should be discarded.
func (m *Monitor) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.running || m.generation != gen
}

func (m *Monitor) publishOracleError(op string, err error) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(bus.Event{
		Type: bus.EventTypeOracleError,
		Data: map[string]any{"operation": op, "error": err.Error()},
	})
}
