package bridge

import "strings"

// Best-effort heuristics over transcript text. These feed the webhook
// payloads only; the relay state machine never depends on them and they can
// be swapped out without touching it.

var namePhrases = []string{
	"my name is ",
	"my name's ",
	"this is ",
}

var bookingPhrases = []string{
	"book",
	"schedule",
	"set up",
	"arrange",
}

var appointmentWords = []string{
	"appointment",
	"meeting",
	"consultation",
	"visit",
}

// foldASCII lowers ASCII letters only, leaving every other rune intact. The
// fold never changes byte length, so offsets found in the folded string are
// valid in the original.
func foldASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// ExtractName scans for a self-introduction phrase and returns the name that
// follows it, trimmed to at most three words.
func ExtractName(text string) (string, bool) {
	lower := strings.Map(foldASCII, text)
	for _, phrase := range namePhrases {
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(phrase):]
		rest = strings.TrimSpace(rest)
		if rest == "" {
			continue
		}
		words := strings.FieldsFunc(rest, func(r rune) bool {
			return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
		})
		if len(words) == 0 {
			continue
		}
		if len(words) > 3 {
			words = words[:3]
		}
		return strings.Join(words, " "), true
	}
	return "", false
}

// ExtractEmail returns the first token containing both '@' and '.', with
// trailing punctuation stripped.
func ExtractEmail(text string) (string, bool) {
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".,;:!?")
		if strings.Contains(token, "@") && strings.Contains(token, ".") {
			return token, true
		}
	}
	return "", false
}

// DetectBookingIntent reports whether the text pairs a booking verb with an
// appointment noun.
func DetectBookingIntent(text string) bool {
	lower := strings.ToLower(text)

	hasBooking := false
	for _, phrase := range bookingPhrases {
		if strings.Contains(lower, phrase) {
			hasBooking = true
			break
		}
	}
	if !hasBooking {
		return false
	}

	for _, word := range appointmentWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
