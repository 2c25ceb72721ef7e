package command

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// TriggerPhrases turn a mutation into an immediate execution when they end
// the command text.
var TriggerPhrases = []string{"go do", "do it", "make it happen"}

// DetectTrigger matches the trailing words against TriggerPhrases, ignoring
// case and trailing punctuation. It returns the text in its original case
// with the phrase and its separators removed.
func DetectTrigger(text string) (string, bool) {
	text = trimTail(text)
	starts := wordStarts(text)
	fold := cases.Fold()
	for _, phrase := range TriggerPhrases {
		n := len(strings.Fields(phrase))
		if n > len(starts) {
			continue
		}
		at := starts[len(starts)-n]
		tail := strings.Join(strings.FieldsFunc(text[at:], isSeparator), " ")
		if fold.String(tail) == phrase {
			return trimTail(text[:at]), true
		}
	}
	return text, false
}

// wordStarts returns the byte offset of every word in s.
func wordStarts(s string) []int {
	var out []int
	inWord := false
	for i, r := range s {
		sep := isSeparator(r)
		if !sep && !inWord {
			out = append(out, i)
		}
		inWord = !sep
	}
	return out
}

func isSeparator(r rune) bool { return unicode.IsSpace(r) || unicode.IsPunct(r) }

func trimTail(s string) string {
	return strings.TrimRightFunc(strings.TrimSpace(s), isSeparator)
}
