package textutil

import (
	"testing"
	"time"
)

func TestStripMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "plain text untouched",
			input:  "Hello, I can help with that.",
			expect: "Hello, I can help with that.",
		},
		{
			name:   "bold and italics",
			input:  "Your CV lists **Go** and *Python* experience.",
			expect: "Your CV lists Go and Python experience.",
		},
		{
			name:   "heading and link",
			input:  "## Summary\nSee [the posting](https://example.com/job) for details.",
			expect: "Summary\nSee the posting for details.",
		},
		{
			name:   "inline code",
			input:  "Use the `/connect` command first.",
			expect: "Use the /connect command first.",
		},
		{
			name:   "fenced block",
			input:  "```json\n{\"a\": 1}```",
			expect: "{\"a\": 1}",
		},
		{
			name:   "underscores in identifiers survive",
			input:  "confirm_send is the callback",
			expect: "confirm_send is the callback",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripMarkdown(tc.input); got != tc.expect {
				t.Fatalf("StripMarkdown(%q) = %q, want %q", tc.input, got, tc.expect)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, time.March, 7, 9, 5, 33, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "Mar 7, 2025 09:05" {
		t.Fatalf("unexpected timestamp rendering: %q", got)
	}
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "returns empty when limit non-positive",
			input:  "hello world",
			limit:  0,
			expect: "",
		},
		{
			name:   "shorter than limit",
			input:  "hello",
			limit:  10,
			expect: "hello",
		},
		{
			name:   "truncates and adds ellipsis",
			input:  "hello world",
			limit:  5,
			expect: "hello...",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TruncateForLog(tc.input, tc.limit); got != tc.expect {
				t.Fatalf("TruncateForLog(%q, %d) = %q, want %q", tc.input, tc.limit, got, tc.expect)
			}
		})
	}
}
