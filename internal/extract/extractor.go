// Package extract turns free-form patient and model text into structured
// slots: patient name, recommended specialist, appointment time, and
// confirmation intent. Absence of a match is a normal outcome, never an
// error. Pattern lists are data so new phrasings are additive.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DefaultSpecialistVocabulary is the closed set of specialist names scanned
// when no phrase pattern matches.
var DefaultSpecialistVocabulary = []string{
	"терапевт",
	"хирург",
	"невролог",
	"кардиолог",
	"офтальмолог",
	"отоларинголог",
	"гастроэнтеролог",
	"эндокринолог",
	"дерматолог",
}

// DefaultAffirmativeTokens are the substrings treated as booking consent.
// The check is deliberately permissive: a token inside a longer sentence
// still counts.
var DefaultAffirmativeTokens = []string{
	"да",
	"конечно",
	"подтверждаю",
	"согласен",
	"согласна",
	"подходит",
	"хорошо",
	"ок",
	"ok",
	"запишите",
}

// namePatterns match explicit self-introductions. Tried in order.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)меня зовут\s+([\p{L}-]+)`),
	regexp.MustCompile(`(?i)моё имя\s+([\p{L}-]+)`),
	regexp.MustCompile(`(?i)мое имя\s+([\p{L}-]+)`),
}

// specialistPatterns match recommendation phrasings in model replies.
// Tried in order; the first submatch is the specialist mention.
var specialistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)рекомендуем обратиться к\s+([\p{L}]+)`),
	regexp.MustCompile(`(?i)запись к\s+([\p{L}]+)\s+на`),
	regexp.MustCompile(`(?i)обратиться к\s+([\p{L}]+)`),
	regexp.MustCompile(`(?i)\bк\s+([\p{L}]+у)\b`),
}

// clockRE matches explicit HH:MM time mentions.
var clockRE = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)

// Extractor holds the configurable vocabulary and token sets. The zero value
// is not usable; construct with New.
type Extractor struct {
	vocabulary   []string
	affirmations []string
}

// New builds an extractor. Nil slices select the package defaults.
func New(vocabulary, affirmations []string) *Extractor {
	if len(vocabulary) == 0 {
		vocabulary = DefaultSpecialistVocabulary
	}
	if len(affirmations) == 0 {
		affirmations = DefaultAffirmativeTokens
	}
	lowered := make([]string, len(affirmations))
	for i, tok := range affirmations {
		lowered[i] = strings.ToLower(strings.TrimSpace(tok))
	}
	return &Extractor{vocabulary: vocabulary, affirmations: lowered}
}

// Name extracts a patient name. Explicit "меня зовут X" phrasings win;
// otherwise the first capitalized token is taken. This is a heuristic, not a
// guarantee: sentence-initial words are capitalized too.
func (e *Extractor) Name(text string) (string, bool) {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			return m[1], true
		}
	}
	for _, field := range strings.Fields(text) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		if word == "" {
			continue
		}
		if unicode.IsUpper([]rune(word)[0]) {
			return word, true
		}
	}
	return "", false
}

// Specialist extracts a specialist mention. Phrase patterns are tried first,
// then a scan for vocabulary membership. Captures are normalized to the
// canonical vocabulary form when one matches ("неврологу" -> "невролог").
func (e *Extractor) Specialist(text string) (string, bool) {
	for _, re := range specialistPatterns {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			return e.canonical(strings.ToLower(m[1])), true
		}
	}
	lower := strings.ToLower(text)
	for _, name := range e.vocabulary {
		if strings.Contains(lower, name) {
			return name, true
		}
	}
	return "", false
}

// canonical maps an inflected capture back to its vocabulary entry when the
// entry is a prefix of the capture.
func (e *Extractor) canonical(word string) string {
	for _, name := range e.vocabulary {
		if strings.HasPrefix(word, name) {
			return name
		}
	}
	return word
}

// Datetime resolves an explicit HH:MM mention to its next future occurrence
// relative to now. A clock time already past today rolls forward exactly one
// day. Returns false when no valid time token is present.
func (e *Extractor) Datetime(text string, now time.Time) (time.Time, bool) {
	for _, m := range clockRE.FindAllStringSubmatch(text, -1) {
		hour := atoi2(m[1])
		minute := atoi2(m[2])
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true
	}
	return time.Time{}, false
}

// IsConfirmation reports whether the normalized text contains any affirmative
// token. This is an OR-of-substrings test, not intent classification; a token
// embedded in an unrelated word still counts.
func (e *Extractor) IsConfirmation(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	for _, tok := range e.affirmations {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}

// StripMarkdownFence removes a ``` fence wrapping a model reply, if present.
// Some models wrap structured answers in code fences.
func StripMarkdownFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func atoi2(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
