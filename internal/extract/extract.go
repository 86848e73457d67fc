// Package extract recovers plain text from uploaded CV documents. It is a
// best-effort byte scanner, not a format parser: the output is approximate
// text with no layout fidelity, suitable as model grounding context only.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Media types accepted for CV uploads.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOC  = "application/msword"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ErrUnsupportedFormat is returned for media types outside the allow-list.
var ErrUnsupportedFormat = errors.New("unsupported document format")

var (
	pdfStreamRe  = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	pdfLiteralRe = regexp.MustCompile(`\(([^)]+)\)`)
	pdfArrayRe   = regexp.MustCompile(`(?s)\[(.*?)\]\s*TJ`)
	pdfArrayItem = regexp.MustCompile(`\(([^)]*)\)`)
	docxRunRe    = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	letterRunRe  = regexp.MustCompile(`[A-Za-z]{3,}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Extractor pulls text out of raw document bytes.
type Extractor struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract returns the recovered text for the given document bytes. It fails
// only for media types outside the allow-list; for supported types it always
// returns, falling back to a letter-run scan when no structural text markers
// are found.
func (e *Extractor) Extract(data []byte, mediaType string) (string, error) {
	switch mediaType {
	case MediaTypePDF:
		return e.extractPDF(data), nil
	case MediaTypeDOC, MediaTypeDOCX:
		// Legacy .doc goes through the same tag scan as .docx. It almost
		// always ends up on the letter-run fallback; a known-weak path.
		return e.extractWordprocessing(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
}

func (e *Extractor) extractPDF(data []byte) string {
	text := string(data)

	var parts []string
	for _, stream := range pdfStreamRe.FindAllStringSubmatch(text, -1) {
		content := stream[1]

		for _, m := range pdfLiteralRe.FindAllStringSubmatch(content, -1) {
			parts = append(parts, m[1])
		}

		for _, arr := range pdfArrayRe.FindAllStringSubmatch(content, -1) {
			for _, item := range pdfArrayItem.FindAllStringSubmatch(arr[1], -1) {
				parts = append(parts, item[1])
			}
		}
	}

	if len(parts) == 0 {
		return e.fallback(text, "pdf")
	}

	joined := strings.Join(parts, " ")
	joined = strings.ReplaceAll(joined, `\n`, "\n")
	joined = strings.ReplaceAll(joined, `\r`, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(joined, " "))
}

func (e *Extractor) extractWordprocessing(data []byte) string {
	text := string(data)

	var parts []string
	for _, m := range docxRunRe.FindAllStringSubmatch(text, -1) {
		parts = append(parts, m[1])
	}

	if len(parts) == 0 {
		return e.fallback(text, "wordprocessing")
	}

	joined := strings.Join(parts, " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(joined, " "))
}

// fallback scans the whole byte stream for runs of three or more Latin
// letters. Word order and boundaries are lost; the result is grounding
// material, nothing more.
func (e *Extractor) fallback(text, format string) string {
	runs := letterRunRe.FindAllString(text, -1)
	e.logger.Warn("structural text markers not found, using letter-run fallback",
		zap.String("format", format),
		zap.Int("runs", len(runs)),
	)
	return strings.Join(runs, " ")
}
