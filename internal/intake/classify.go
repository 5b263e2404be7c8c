package intake

import (
	"regexp"
	"strings"
)

// Answer is the local classification of a caller reply to the claim summary
type Answer int

const (
	AnswerUnclear Answer = iota
	AnswerAffirmative
	AnswerNegative
)

func (a Answer) String() string {
	switch a {
	case AnswerAffirmative:
		return "affirmative"
	case AnswerNegative:
		return "negative"
	default:
		return "unclear"
	}
}

var (
	affirmativePattern = regexp.MustCompile(`\b(yes|yep|yeah|correct|confirm|confirmed|that's correct|that is correct|all set|looks good|thank you)\b`)
	// weakAffirmativePattern words also appear inside refusals ("no thanks", "not right")
	weakAffirmativePattern = regexp.MustCompile(`\b(y|right|thanks)\b`)
	negatedPattern         = regexp.MustCompile(`\b(not|isn't|is not|that's not)\s+(quite\s+|exactly\s+|all\s+)?(right|correct)\b`)
	negativePattern        = regexp.MustCompile(`\b(no|nope|not|wrong|incorrect|change|edit|update|needs)\b`)

	emergencyPattern = regexp.MustCompile(`\b(blood|bleeding|can't breathe|cannot breathe|can not breathe|not breathing|unconscious|passed out|heart attack|ambulance|911|on fire|trapped|seriously (hurt|injured)|badly (hurt|injured))\b`)
)

func normalize(text string) string {
	lc := strings.ToLower(strings.TrimSpace(text))
	return strings.ReplaceAll(lc, "’", "'")
}

// ClassifyAnswer matches a review reply against the affirmative and negative
// keyword sets. The affirmative set wins over the negative one, except that a
// negated confirmation ("not right") is negative and the weak affirmatives
// (y, right, thanks) count only when nothing negative was said.
func ClassifyAnswer(text string) Answer {
	lc := normalize(text)
	if lc == "" {
		return AnswerUnclear
	}

	switch {
	case negatedPattern.MatchString(lc):
		return AnswerNegative
	case affirmativePattern.MatchString(lc):
		return AnswerAffirmative
	case negativePattern.MatchString(lc):
		return AnswerNegative
	case weakAffirmativePattern.MatchString(lc):
		return AnswerAffirmative
	default:
		return AnswerUnclear
	}
}

// DetectEmergency reports the first distress phrase in text, if any
func DetectEmergency(text string) (string, bool) {
	phrase := emergencyPattern.FindString(normalize(text))
	return phrase, phrase != ""
}
