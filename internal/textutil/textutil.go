// Package textutil holds plain-text helpers shared by the chat pipeline.
// Everything the bot stores or sends is plain text, so markdown emitted by
// the models is stripped at every boundary.
package textutil

import (
	"regexp"
	"strings"
	"time"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?(.*?)```")
	inlineCodeRe  = regexp.MustCompile("`([^`]*)`")
	boldRe        = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	emphasisRe    = regexp.MustCompile(`\*([^*\n]+)\*|\b_([^_\n]+)_\b`)
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	linkRe        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
)

// StripMarkdown removes common markdown styling markers, keeping the
// underlying text. It is not a markdown parser; it only has to undo the
// styling a chat model tends to emit.
func StripMarkdown(s string) string {
	s = fencedBlockRe.ReplaceAllString(s, "$1")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1$2")
	s = emphasisRe.ReplaceAllString(s, "$1$2")
	s = headingRe.ReplaceAllString(s, "")
	s = linkRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// FormatTimestamp renders a message timestamp the way it is shown to the
// models: readable, minute precision, no machine formats.
func FormatTimestamp(t time.Time) string {
	return t.Format("Jan 2, 2006 15:04")
}

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
