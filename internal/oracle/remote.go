package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RemoteConfig configures the remote oracle client
type RemoteConfig struct {
	BaseURL string        // e.g., "http://localhost:3001/api"
	APIKey  string        // optional, sent as "ApiKey" authorization
	Timeout time.Duration // HTTP request timeout
}

// DefaultRemoteConfig returns sensible defaults
func DefaultRemoteConfig() *RemoteConfig {
	return &RemoteConfig{
		BaseURL: "http://localhost:3001/api",
		Timeout: 30 * time.Second,
	}
}

// Remote delegates recognition calls to the external service.
type Remote struct {
	config     *RemoteConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewRemote creates a new remote oracle client
func NewRemote(cfg *RemoteConfig, logger zerolog.Logger) *Remote {
	if cfg == nil {
		cfg = DefaultRemoteConfig()
	}

	return &Remote{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "oracle-remote").Logger(),
	}
}

// imagePayload wraps an encoded frame for the wire
type imagePayload struct {
	Bytes string `json:"bytes"`
}

// post sends a JSON request and returns the raw response body.
func (r *Remote) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// CreateCollection ensures the collection exists. A conflict response means
// the collection already exists, which is a success outcome.
func (r *Remote) CreateCollection(ctx context.Context, collectionID, description string) error {
	payload := map[string]any{
		"collectionId": collectionID,
		"description":  description,
	}

	body, status, err := r.post(ctx, "/face-recognition/collection/create", payload)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		r.logger.Debug().Str("collection", collectionID).Msg("Collection already exists")
		return nil
	}
	if status != http.StatusOK {
		return fmt.Errorf("collection create failed: %d - %s", status, string(body))
	}

	r.logger.Info().Str("collection", collectionID).Msg("Collection ready")
	return nil
}

// SearchOrIndex searches for the face, indexing it if unmatched.
func (r *Remote) SearchOrIndex(ctx context.Context, frame []byte, collectionID string, threshold int) (*FaceResult, error) {
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("match threshold %d out of range [0,100]", threshold)
	}

	payload := map[string]any{
		"image":              imagePayload{Bytes: base64.StdEncoding.EncodeToString(frame)},
		"collectionId":       collectionID,
		"faceMatchThreshold": threshold,
	}

	body, status, err := r.post(ctx, "/face-recognition/search-or-index", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search-or-index failed: %d - %s", status, string(body))
	}

	result, err := parseFaceResult(body)
	if err != nil {
		return nil, err
	}
	if result == nil {
		r.logger.Debug().Msg("No face found in frame")
		return nil, nil
	}

	r.logger.Debug().
		Str("source", string(result.Source)).
		Str("identity", result.IdentityID).
		Float64("similarity", result.Similarity).
		Msg("Face resolved")
	return result, nil
}

// EstimateDemographics runs the age and gender estimation calls.
func (r *Remote) EstimateDemographics(ctx context.Context, frame []byte) (*Demographics, error) {
	encoded := base64.StdEncoding.EncodeToString(frame)

	ageBody, status, err := r.post(ctx, "/demographic-estimation/get-age", map[string]any{
		"image":        imagePayload{Bytes: encoded},
		"maxFaceCount": 1,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("age estimation failed: %d", status)
	}

	genderBody, status, err := r.post(ctx, "/demographic-estimation/get-gender", map[string]any{
		"image":        imagePayload{Bytes: encoded},
		"maxFaceCount": 1,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("gender estimation failed: %d", status)
	}

	age, err := parseAge(ageBody)
	if err != nil {
		return nil, err
	}
	gender, err := parseGender(genderBody)
	if err != nil {
		return nil, err
	}

	return &Demographics{Age: age, Gender: gender}, nil
}

// DetectEmotionAttention runs the emotion/attention detection call.
func (r *Remote) DetectEmotionAttention(ctx context.Context, frame []byte) (*EmotionAttention, error) {
	body, status, err := r.post(ctx, "/emotion-attention/detect", map[string]any{
		"image": imagePayload{Bytes: base64.StdEncoding.EncodeToString(frame)},
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("emotion detection failed: %d", status)
	}

	return parseEmotionAttention(body)
}

// CheckLiveness runs a liveness check over a short video sample.
func (r *Remote) CheckLiveness(ctx context.Context, video []byte, duration time.Duration) (*Liveness, error) {
	body, status, err := r.post(ctx, "/liveness/check", map[string]any{
		"video":              map[string]string{"bytes": base64.StdEncoding.EncodeToString(video)},
		"durationMs":         duration.Milliseconds(),
		"includeAuditImages": false,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("liveness check failed: %d", status)
	}

	return parseLiveness(body)
}

// CheckHealth probes the backend health endpoint and reports whether the
// service runs in demo mode via the X-Demo-Mode header. A failed probe
// assumes live mode.
func (r *Remote) CheckHealth(ctx context.Context) (bool, error) {
	healthURL := strings.TrimSuffix(r.config.BaseURL, "/api") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	demoMode := resp.Header.Get("X-Demo-Mode") == "true"
	if demoMode {
		r.logger.Warn().Msg("Backend running in demo mode (simulated responses)")
	} else {
		r.logger.Info().Msg("Backend running in live mode")
	}

	return demoMode, nil
}
