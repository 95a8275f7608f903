package bridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractName(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{name: "my name is", text: "Hi, my name is Jamie Smith.", want: "Jamie Smith", found: true},
		{name: "contraction", text: "my name's Jamie", want: "Jamie", found: true},
		{name: "this is", text: "Hello, this is Sam Taylor calling about my policy", want: "Sam Taylor calling", found: true},
		{name: "case insensitive match keeps original casing", text: "MY NAME IS Jordan", want: "Jordan", found: true},
		{name: "capped at three words", text: "my name is One Two Three Four", want: "One Two Three", found: true},
		{name: "phrase at end of text", text: "my name is ", found: false},
		{name: "no phrase", text: "I'd like to book a meeting", found: false},
		// U+023A lowercases to a wider UTF-8 sequence; the scan must never
		// read past the end of the original text.
		{name: "length-growing runes before phrase", text: strings.Repeat("Ⱥ", 10) + " my name is Jamie", want: "Jamie", found: true},
		{name: "length-growing runes in name", text: "my name is Ⱥlex", want: "Ⱥlex", found: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractName(tt.text)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{name: "plain address", text: "reach me at jamie@example.com please", want: "jamie@example.com", found: true},
		{name: "trailing punctuation stripped", text: "it's jamie@example.com.", want: "jamie@example.com", found: true},
		{name: "at sign without domain dot", text: "mention @handle here", found: false},
		{name: "no address", text: "call me back tomorrow", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractEmail(tt.text)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDetectBookingIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "book an appointment", text: "I want to book an appointment", want: true},
		{name: "schedule a meeting", text: "Can we schedule a meeting for Tuesday?", want: true},
		{name: "set up a consultation", text: "I'd like to set up a consultation", want: true},
		{name: "verb without noun", text: "I want to book a flight", want: false},
		{name: "noun without verb", text: "the meeting went well", want: false},
		{name: "unrelated", text: "what's my balance?", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectBookingIntent(tt.text))
		})
	}
}
