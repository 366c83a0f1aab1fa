// Package content turns formatted message text into comparable plain text and
// splits or truncates it to fit platform limits.
package content

import (
	"strings"
	"unicode/utf8"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"

	"golang.org/x/net/html"
)

// Platform limits, in characters.
const (
	MessageChunkSize = 4090
	CaptionLimit     = 1020
	CaptionCutMarker = "✂️"
)

const trimSet = " \n\t"

// StripTags removes every tag and unescapes entities, keeping only text nodes.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// unescapeMarkdown drops MarkdownV2 escape backslashes.
func unescapeMarkdown(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize reduces text written in mode to trimmed plain text.
func Normalize(text string, mode chatdomain.ParseMode) string {
	switch mode {
	case chatdomain.ParseHTML:
		text = StripTags(text)
	case chatdomain.ParseMarkdownV2:
		text = unescapeMarkdown(text)
	}
	return strings.Trim(text, trimSet)
}

// Chunk splits text into pieces of at most size characters. Empty text yields
// a single empty chunk.
func Chunk(text string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Overflows reports whether text needs chunking.
func Overflows(text string) bool {
	return utf8.RuneCountInString(text) > MessageChunkSize
}

// TruncateCaption cuts a caption to the platform limit and marks the cut.
func TruncateCaption(text string) string {
	runes := []rune(text)
	if len(runes) <= CaptionLimit {
		return text
	}
	return string(runes[:CaptionLimit]) + CaptionCutMarker
}
