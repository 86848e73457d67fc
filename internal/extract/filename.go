package extract

import (
	"regexp"
	"strings"
)

var (
	unsafeNameRe     = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)
	nameWhitespaceRe = regexp.MustCompile(`\s+`)
	underscoreRunRe  = regexp.MustCompile(`_+`)
)

// ExtensionForMediaType maps a supported media type to a file extension,
// defaulting to pdf for anything unknown.
func ExtensionForMediaType(mediaType string) string {
	switch mediaType {
	case MediaTypePDF:
		return "pdf"
	case MediaTypeDOC:
		return "doc"
	case MediaTypeDOCX:
		return "docx"
	default:
		return "pdf"
	}
}

// NormalizeFilename builds the attachment filename for an outgoing
// application from the candidate's name and the stored CV media type.
func NormalizeFilename(firstName, lastName, mediaType string) string {
	ext := ExtensionForMediaType(mediaType)

	first := sanitizeName(firstName)
	if first == "" {
		first = "Applicant"
	}
	last := sanitizeName(lastName)

	if last != "" {
		return first + "_" + last + "_CV." + ext
	}
	return first + "_CV." + ext
}

func sanitizeName(name string) string {
	name = unsafeNameRe.ReplaceAllString(strings.TrimSpace(name), "")
	name = nameWhitespaceRe.ReplaceAllString(name, "_")
	name = underscoreRunRe.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}
