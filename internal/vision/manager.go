package vision

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/visionavatar/internal/bus"
)

// Manager coordinates camera capture.
// Actual capture happens in the browser; this manages state, the last frame,
// and a ring of recent frames for liveness sampling.
type Manager struct {
	config   *Config
	eventBus *bus.EventBus
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	// State
	cameraActive bool
	stateMu      sync.RWMutex

	// Last captured frame and recent-frame ring
	lastFrame *Frame
	recent    []*Frame
	frameMu   sync.RWMutex

	// Callbacks
	onFrame    func(*Frame)
	callbackMu sync.RWMutex
}

// NewManager creates a new vision manager
func NewManager(config *Config, eventBus *bus.EventBus, logger zerolog.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 30
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:   config,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "vision").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start initializes the vision manager
func (m *Manager) Start() error {
	m.logger.Info().Msg("Vision manager started")
	return nil
}

// Stop shuts down the vision manager
func (m *Manager) Stop() {
	m.cancel()
	m.logger.Info().Msg("Vision manager stopped")
}

// IsCameraActive returns whether camera capture is active
func (m *Manager) IsCameraActive() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.cameraActive
}

// EnableCamera enables camera capture
func (m *Manager) EnableCamera() {
	m.stateMu.Lock()
	m.cameraActive = true
	m.stateMu.Unlock()

	m.logger.Info().Msg("Camera enabled")

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeMonitoringStarted,
			Data: map[string]any{"camera_id": m.config.CameraID},
		})
	}
}

// DisableCamera disables camera capture and drops buffered frames
func (m *Manager) DisableCamera() {
	m.stateMu.Lock()
	m.cameraActive = false
	m.stateMu.Unlock()

	m.frameMu.Lock()
	m.lastFrame = nil
	m.recent = nil
	m.frameMu.Unlock()

	m.logger.Info().Msg("Camera disabled")

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeMonitoringStopped,
		})
	}
}

// OnFrame registers a callback invoked for each processed frame
func (m *Manager) OnFrame(callback func(*Frame)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onFrame = callback
}

// ProcessFrame handles an incoming camera frame from the frontend.
// imageBase64 is base64-encoded JPEG image data.
func (m *Manager) ProcessFrame(imageBase64 string, width, height int) {
	if !m.IsCameraActive() {
		return
	}

	imageData, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to decode camera frame")
		return
	}

	frame := &Frame{
		Data:      imageData,
		Width:     width,
		Height:    height,
		Format:    "jpeg",
		Timestamp: time.Now(),
	}

	m.frameMu.Lock()
	m.lastFrame = frame
	m.recent = append(m.recent, frame)
	if len(m.recent) > m.config.BufferSize {
		m.recent = m.recent[len(m.recent)-m.config.BufferSize:]
	}
	m.frameMu.Unlock()

	m.callbackMu.RLock()
	callback := m.onFrame
	m.callbackMu.RUnlock()

	if callback != nil {
		go callback(frame)
	}

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeFrameCaptured,
			Data: map[string]any{
				"width":  width,
				"height": height,
				"size":   len(imageData),
			},
		})
	}

	m.logger.Debug().Int("width", width).Int("height", height).Int("bytes", len(imageData)).Msg("Camera frame processed")
}

// LastFrame returns the most recent camera frame
func (m *Manager) LastFrame() *Frame {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.lastFrame
}

// LastFrameBase64 returns the last camera frame as base64
func (m *Manager) LastFrameBase64() string {
	frame := m.LastFrame()
	if frame == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(frame.Data)
}

// RecentFrames returns buffered frames no older than window
func (m *Manager) RecentFrames(window time.Duration) []*Frame {
	cutoff := time.Now().Add(-window)

	m.frameMu.RLock()
	defer m.frameMu.RUnlock()

	var out []*Frame
	for _, f := range m.recent {
		if f.Timestamp.After(cutoff) {
			out = append(out, f)
		}
	}
	return out
}

// Sample assembles buffered frames from the given window into a liveness
// video sample. Returns ErrNoFrames when the buffer holds nothing recent.
func (m *Manager) Sample(window time.Duration) (*VideoSample, error) {
	frames := m.RecentFrames(window)
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	total := 0
	for _, f := range frames {
		total += len(f.Data)
	}

	data := make([]byte, 0, total)
	for _, f := range frames {
		data = append(data, f.Data...)
	}

	duration := frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp)
	if duration <= 0 {
		duration = time.Second
	}

	return &VideoSample{
		Data:       data,
		FrameCount: len(frames),
		Duration:   duration,
	}, nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// UpdateConfig updates the configuration
func (m *Manager) UpdateConfig(config *Config) {
	m.config = config
	m.logger.Info().Interface("config", config).Msg("Vision config updated")
}
