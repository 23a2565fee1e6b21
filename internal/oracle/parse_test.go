package oracle

import (
	"testing"
)

func TestParseFaceResult_Matched(t *testing.T) {
	data := []byte(`{"resultSource":"search","faceId":"face_abc","similarity":0.87}`)

	res, err := parseFaceResult(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Source != SourceMatched {
		t.Errorf("expected Matched, got %q", res.Source)
	}
	if res.IdentityID != "face_abc" {
		t.Errorf("expected face_abc, got %q", res.IdentityID)
	}
	if res.Similarity != 0.87 {
		t.Errorf("expected similarity 0.87, got %v", res.Similarity)
	}
}

func TestParseFaceResult_SourceSpellings(t *testing.T) {
	cases := []struct {
		raw  string
		want ResultSource
	}{
		{"search", SourceMatched},
		{"match", SourceMatched},
		{"Matched", SourceMatched},
		{"index", SourceIndexed},
		{"Indexed", SourceIndexed},
		{"INDEX", SourceIndexed},
	}

	for _, c := range cases {
		got, err := normalizeSource(c.raw)
		if err != nil {
			t.Errorf("normalizeSource(%q): %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("normalizeSource(%q) = %q, want %q", c.raw, got, c.want)
		}
	}

	if _, err := normalizeSource("banana"); err == nil {
		t.Error("expected error for unknown source spelling")
	}
}

func TestParseFaceResult_NoFace(t *testing.T) {
	res, err := parseFaceResult([]byte(`{"resultSource":"","faceId":""}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for missing face, got %+v", res)
	}
}

func TestParseAge(t *testing.T) {
	data := []byte(`{"faces":[{"age":{"prediction":31.5,"uncertainty":4}}]}`)

	age, err := parseAge(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if age.Estimate != 31.5 {
		t.Errorf("expected estimate 31.5, got %v", age.Estimate)
	}
	if age.Min != 27.5 || age.Max != 35.5 {
		t.Errorf("expected band [27.5, 35.5], got [%v, %v]", age.Min, age.Max)
	}
}

func TestParseAge_MinClampedAtZero(t *testing.T) {
	data := []byte(`{"faces":[{"age":{"prediction":2,"uncertainty":5}}]}`)

	age, err := parseAge(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if age.Min != 0 {
		t.Errorf("expected min clamped to 0, got %v", age.Min)
	}
}

func TestParseAge_NoFace(t *testing.T) {
	age, err := parseAge([]byte(`{"faces":[]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if age != nil {
		t.Errorf("expected nil for empty faces, got %+v", age)
	}
}

func TestParseGender_BareString(t *testing.T) {
	data := []byte(`{"faces":[{"gender":"Female"}]}`)

	g, err := parseGender(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Value != "Female" {
		t.Errorf("expected Female, got %q", g.Value)
	}
	if g.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 for bare string, got %v", g.Confidence)
	}
}

func TestParseGender_Object(t *testing.T) {
	data := []byte(`{"faces":[{"gender":{"prediction":"Male","confidence":0.92}}]}`)

	g, err := parseGender(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Value != "Male" {
		t.Errorf("expected Male, got %q", g.Value)
	}
	if g.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", g.Confidence)
	}
}

func TestParseGender_NoFace(t *testing.T) {
	g, err := parseGender([]byte(`{"faces":[]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g != nil {
		t.Errorf("expected nil for empty faces, got %+v", g)
	}
}

func TestParseEmotionAttention(t *testing.T) {
	data := []byte(`{"EmotionsAttention":{"happy":0.8,"neutral":0.1,"sad":0.05,"hasFace":true,"presence":true,"eyesOnScreen":true,"attention":false}}`)

	e, err := parseEmotionAttention(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !e.HasFace || !e.Presence || !e.EyesOnScreen {
		t.Error("expected face flags set")
	}
	if e.Attention {
		t.Error("expected attention flag false")
	}
	if e.Dominant() != "happy" {
		t.Errorf("expected dominant happy, got %q", e.Dominant())
	}
	// Flags never leak into the score map
	if _, ok := e.Scores["hasFace"]; ok {
		t.Error("expected hasFace excluded from scores")
	}
	if len(e.Scores) != 3 {
		t.Errorf("expected 3 emotion scores, got %d", len(e.Scores))
	}
}

func TestParseEmotionAttention_CasingAndNumericFlags(t *testing.T) {
	// Some deployments lowercase the section key and report flags as 0/1
	data := []byte(`{"emotionsattention":{"surprised":0.7,"HasFace":1,"Attention":0}}`)

	e, err := parseEmotionAttention(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !e.HasFace {
		t.Error("expected numeric 1 read as true")
	}
	if e.Attention {
		t.Error("expected numeric 0 read as false")
	}
	if e.Dominant() != "surprised" {
		t.Errorf("expected dominant surprised, got %q", e.Dominant())
	}
}

func TestParseEmotionAttention_MissingSection(t *testing.T) {
	if _, err := parseEmotionAttention([]byte(`{"other":{}}`)); err == nil {
		t.Error("expected error when emotion section is missing")
	}
}

func TestParseLiveness(t *testing.T) {
	res, err := parseLiveness([]byte(`{"isLive":true,"confidence":0.93}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !res.IsLive || res.Confidence != 0.93 {
		t.Errorf("unexpected result %+v", res)
	}

	// A missing verdict is a malformed payload, not a quiet default
	if _, err := parseLiveness([]byte(`{"confidence":0.5}`)); err == nil {
		t.Error("expected error for payload missing verdict")
	}
}

func TestDominant_EmptyScores(t *testing.T) {
	e := &EmotionAttention{Scores: map[string]float64{}}
	if e.Dominant() != "neutral" {
		t.Errorf("expected neutral fallback, got %q", e.Dominant())
	}
}

func TestAttentionScore(t *testing.T) {
	cases := []struct {
		name string
		e    EmotionAttention
		want float64
	}{
		{"attention flag", EmotionAttention{Attention: true, EyesOnScreen: true}, 1.0},
		{"eyes only", EmotionAttention{EyesOnScreen: true}, 0.5},
		{"neither", EmotionAttention{}, 0},
	}

	for _, c := range cases {
		if got := c.e.AttentionScore(); got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

func TestBucketAttention(t *testing.T) {
	cases := []struct {
		score float64
		want  AttentionLevel
	}{
		{1.0, AttentionHigh},
		{0.71, AttentionHigh},
		{0.7, AttentionMedium},
		{0.5, AttentionMedium},
		{0.41, AttentionMedium},
		{0.4, AttentionLow},
		{0, AttentionLow},
	}

	for _, c := range cases {
		if got := BucketAttention(c.score); got != c.want {
			t.Errorf("BucketAttention(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}
