package intent

import "testing"

func TestClassify_Introduction(t *testing.T) {
	cases := []struct {
		utterance string
		name      string
	}{
		{"my name is Ana", "Ana"},
		{"My name is Ben", "Ben"},
		{"call me Maria", "Maria"},
		{"Call me Sam", "Sam"},
		{"  my name is Lee  ", "Lee"},
	}

	for _, c := range cases {
		got := Classify(c.utterance)
		if got.Kind != KindIntroduction {
			t.Errorf("Classify(%q) = %q, want introduction", c.utterance, got.Kind)
			continue
		}
		if got.Name != c.name {
			t.Errorf("Classify(%q) name = %q, want %q", c.utterance, got.Name, c.name)
		}
	}
}

func TestClassify_IntroductionIsConservative(t *testing.T) {
	// "I'm X" is too ambiguous to treat as an introduction
	cases := []string{
		"I'm wondering about the weather",
		"I'm Ana",
		"they call me crazy sometimes", // not anchored at start
		"my name is",                   // no name given
	}

	for _, utterance := range cases {
		if got := Classify(utterance); got.Kind == KindIntroduction {
			t.Errorf("Classify(%q) = introduction, want none", utterance)
		}
	}
}

func TestClassify_EraseMe(t *testing.T) {
	cases := []string{
		"forget me",
		"please forget me",
		"Forget about me",
		"delete me",
		"delete my profile",
		"delete my data",
		"remove me",
		"remove my record",
		"clear my profile",
		"don't remember me",
		"don’t remember me", // typographic apostrophe
		"erase me",
	}

	for _, utterance := range cases {
		if got := Classify(utterance); got.Kind != KindEraseMe {
			t.Errorf("Classify(%q) = %q, want erase_me", utterance, got.Kind)
		}
	}
}

func TestClassify_IdentityQuery(t *testing.T) {
	cases := []string{
		"do you know me?",
		"Do you know who I am?",
		"do you know my name",
		"can you recognize me",
		"who am I",
		"what's my name",
		"what’s my name", // typographic apostrophe
		"you know me, right?",
	}

	for _, utterance := range cases {
		if got := Classify(utterance); got.Kind != KindIdentityQuery {
			t.Errorf("Classify(%q) = %q, want identity_query", utterance, got.Kind)
		}
	}
}

func TestClassify_EraseWinsOverIdentityQuery(t *testing.T) {
	// "remember me" appears in both pattern sets; a deletion request must
	// never degrade to a question.
	got := Classify("don't remember me")
	if got.Kind != KindEraseMe {
		t.Errorf("expected erase_me, got %q", got.Kind)
	}
}

func TestClassify_None(t *testing.T) {
	cases := []string{
		"",
		"hello there",
		"what's the weather like",
		"tell me a story about a dragon",
		"my favorite name is Ana",
	}

	for _, utterance := range cases {
		if got := Classify(utterance); got.Kind != KindNone {
			t.Errorf("Classify(%q) = %q, want none", utterance, got.Kind)
		}
	}
}
