// Package intent classifies user utterances into typed voice-command intents.
// The controller depends on intents, not on raw text matching rules, so
// precision work on the patterns stays bounded to this package.
package intent

import (
	"regexp"
	"strings"
)

// Kind identifies a voice-command intent
type Kind string

const (
	// KindNone means the utterance carries no command; it flows to the
	// conversation as ordinary speech.
	KindNone Kind = "none"
	// KindIntroduction is a self-introduction carrying a name.
	KindIntroduction Kind = "introduction"
	// KindEraseMe is a request to delete the user's stored identity.
	KindEraseMe Kind = "erase_me"
	// KindIdentityQuery asks whether the avatar recognizes the user.
	KindIdentityQuery Kind = "identity_query"
)

// Intent is a classified utterance
type Intent struct {
	Kind Kind
	// Name carries the introduced name for KindIntroduction
	Name string
}

// Matching is deliberately conservative: "I'm X" is too ambiguous ("I'm
// wondering", "I'm thinking"), so only explicit introductions count.
var (
	introductionPattern = regexp.MustCompile(`(?i)^(?:my name is|call me)\s+(\w+)`)

	eraseMePattern = regexp.MustCompile(`(?i)(?:forget (?:me|about me)|delete (?:me|my (?:profile|record|data|information))|remove (?:me|my (?:profile|record|data))|clear (?:my |all )?(?:profile|record|data)|don'?t remember me|erase me)`)

	identityQueryPattern = regexp.MustCompile(`(?i)(?:do you know (?:me|my name|who i am)|know my name|recognize me|remember me|who am i|what'?s my name|you know me)`)
)

// Classify maps an utterance to at most one intent. Erase-me wins over the
// other kinds so "forget me" is never mistaken for small talk about memory.
func Classify(utterance string) Intent {
	text := normalize(utterance)

	if eraseMePattern.MatchString(text) {
		return Intent{Kind: KindEraseMe}
	}

	if m := introductionPattern.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindIntroduction, Name: m[1]}
	}

	if identityQueryPattern.MatchString(text) {
		return Intent{Kind: KindIdentityQuery}
	}

	return Intent{Kind: KindNone}
}

// normalize trims whitespace and folds typographic apostrophes so the
// patterns only deal with one spelling.
func normalize(text string) string {
	text = strings.TrimSpace(text)
	return strings.ReplaceAll(text, "’", "'")
}
