package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The recognition service's JSON shapes vary in practice: field casing
// differs between deployments, gender arrives as either a bare string or an
// object, and optional sections go missing. These parsers normalize every
// observed shape into the typed results; anything unparseable is surfaced as
// an error so callers can treat it as a transient transport failure.

// auxiliary flags reported alongside emotion scores, excluded from the
// dominant-emotion comparison
var attentionFlags = map[string]bool{
	"hasface":      true,
	"presence":     true,
	"eyesonscreen": true,
	"attention":    true,
}

// parseEmotionAttention decodes an emotion/attention detection payload.
func parseEmotionAttention(data []byte) (*EmotionAttention, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("decode emotion payload: %w", err)
	}

	var inner json.RawMessage
	for key, raw := range outer {
		if strings.EqualFold(key, "emotionsattention") {
			inner = raw
			break
		}
	}
	if inner == nil {
		return nil, fmt.Errorf("emotion payload missing EmotionsAttention section")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(inner, &fields); err != nil {
		return nil, fmt.Errorf("decode emotion section: %w", err)
	}

	result := &EmotionAttention{Scores: make(map[string]float64)}
	for key, raw := range fields {
		lower := strings.ToLower(key)
		if attentionFlags[lower] {
			// flags arrive as booleans, occasionally as 0/1
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				var n float64
				if err := json.Unmarshal(raw, &n); err != nil {
					continue
				}
				b = n > 0.5
			}
			switch lower {
			case "hasface":
				result.HasFace = b
			case "presence":
				result.Presence = b
			case "eyesonscreen":
				result.EyesOnScreen = b
			case "attention":
				result.Attention = b
			}
			continue
		}

		var score float64
		if err := json.Unmarshal(raw, &score); err != nil {
			continue
		}
		result.Scores[key] = score
	}

	return result, nil
}

// rawFace is one entry of the demographic endpoints' "faces" array.
type rawFace struct {
	Age *struct {
		Prediction  float64 `json:"prediction"`
		Uncertainty float64 `json:"uncertainty"`
	} `json:"age"`
	Gender json.RawMessage `json:"gender"`
}

type rawFacesResponse struct {
	Faces []rawFace `json:"faces"`
}

// parseAge decodes an age estimation payload. Returns (nil, nil) when the
// service found no face.
func parseAge(data []byte) (*AgeEstimate, error) {
	var resp rawFacesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode age payload: %w", err)
	}
	if len(resp.Faces) == 0 || resp.Faces[0].Age == nil {
		return nil, nil
	}

	age := resp.Faces[0].Age
	min := age.Prediction - age.Uncertainty
	if min < 0 {
		min = 0
	}
	return &AgeEstimate{
		Estimate: age.Prediction,
		Min:      min,
		Max:      age.Prediction + age.Uncertainty,
	}, nil
}

// parseGender decodes a gender estimation payload. The service returns either
// a bare enum string ("Male") or an object with prediction and confidence.
// Returns (nil, nil) when the service found no face.
func parseGender(data []byte) (*GenderEstimate, error) {
	var resp rawFacesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode gender payload: %w", err)
	}
	if len(resp.Faces) == 0 || len(resp.Faces[0].Gender) == 0 {
		return nil, nil
	}

	raw := resp.Faces[0].Gender

	var label string
	if err := json.Unmarshal(raw, &label); err == nil {
		return &GenderEstimate{Value: label, Confidence: 1.0}, nil
	}

	var obj struct {
		Prediction string  `json:"prediction"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode gender field: %w", err)
	}
	return &GenderEstimate{Value: obj.Prediction, Confidence: obj.Confidence}, nil
}

// parseFaceResult decodes a search-or-index payload. Returns (nil, nil) when
// the payload carries no face id (no face detected).
func parseFaceResult(data []byte) (*FaceResult, error) {
	var resp struct {
		ResultSource string  `json:"resultSource"`
		FaceID       string  `json:"faceId"`
		Similarity   float64 `json:"similarity"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode face result: %w", err)
	}
	if resp.FaceID == "" {
		return nil, nil
	}

	source, err := normalizeSource(resp.ResultSource)
	if err != nil {
		return nil, err
	}

	return &FaceResult{
		Source:     source,
		IdentityID: resp.FaceID,
		Similarity: resp.Similarity,
	}, nil
}

// normalizeSource maps the service's result source spellings onto the two
// canonical outcomes.
func normalizeSource(s string) (ResultSource, error) {
	switch strings.ToLower(s) {
	case "search", "match", "matched":
		return SourceMatched, nil
	case "index", "indexed":
		return SourceIndexed, nil
	default:
		return "", fmt.Errorf("unknown result source %q", s)
	}
}

// parseLiveness decodes a liveness check payload.
func parseLiveness(data []byte) (*Liveness, error) {
	var resp struct {
		IsLive     *bool   `json:"isLive"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode liveness payload: %w", err)
	}
	if resp.IsLive == nil {
		return nil, fmt.Errorf("liveness payload missing verdict")
	}
	return &Liveness{IsLive: *resp.IsLive, Confidence: resp.Confidence}, nil
}
