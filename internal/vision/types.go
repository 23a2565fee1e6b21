// Package vision manages camera frames for VisionAvatar.
package vision

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrCameraNotAvailable = errors.New("camera not available")
	ErrCaptureNotStarted  = errors.New("capture not started")
	ErrNoFrames           = errors.New("no frames captured")
)

// Config holds vision capture configuration
type Config struct {
	CameraEnabled bool   `json:"camera_enabled"`
	CameraID      string `json:"camera_id"` // Camera device ID
	MaxFPS        int    `json:"max_fps"`   // Max frames per second
	Quality       int    `json:"quality"`   // JPEG quality (1-100)
	MaxWidth      int    `json:"max_width"`
	MaxHeight     int    `json:"max_height"`
	BufferSize    int    `json:"buffer_size"` // Recent frames kept for liveness sampling
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		CameraEnabled: false,
		CameraID:      "default",
		MaxFPS:        1,
		Quality:       70,
		MaxWidth:      1280,
		MaxHeight:     720,
		BufferSize:    30,
	}
}

// Frame represents a captured camera frame
type Frame struct {
	Data      []byte    `json:"data"` // Image bytes (JPEG)
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Format    string    `json:"format"` // jpeg, png
	Timestamp time.Time `json:"timestamp"`
}

// VideoSample is a short clip assembled from buffered frames, used for
// liveness checks. Frames are concatenated as motion JPEG.
type VideoSample struct {
	Data       []byte        `json:"data"`
	FrameCount int           `json:"frame_count"`
	Duration   time.Duration `json:"duration"`
}

// CameraInfo describes an available camera
type CameraInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	MaxWidth  int    `json:"max_width"`
	MaxHeight int    `json:"max_height"`
}
