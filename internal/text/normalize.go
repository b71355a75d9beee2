// Package text provides text normalization and chunking for the audiobook
// pipeline. Cleaning strips markup and layout artifacts that would otherwise
// be narrated; splitting produces bounded, ordered segments aligned to
// paragraph and sentence boundaries.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for normalization, precompiled for performance.
var (
	markdownHeaderRe = regexp.MustCompile(`(?m)^#+[ \t]*`)
	controlCharRe    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	hyphenBreakRe    = regexp.MustCompile(`-\n`)
	paragraphBreakRe = regexp.MustCompile(`\n{2,}`)
	markdownInlineRe = regexp.MustCompile("[*#`_]")
	spaceRunRe       = regexp.MustCompile(`[ \t]+`)
)

// paragraphSep is the canonical paragraph separator after normalization.
const paragraphSep = "\n\n"

// Normalize cleans raw extracted text for synthesis: markdown headers and
// inline markers are stripped, control characters removed, end-of-line
// hyphenation resolved, and whitespace collapsed. Paragraph breaks (blank
// lines) are preserved as exactly one blank line; single line breaks inside
// a paragraph become spaces.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := strings.ReplaceAll(raw, "\r\n", "\n")
	cleaned = markdownHeaderRe.ReplaceAllString(cleaned, "")
	cleaned = controlCharRe.ReplaceAllString(cleaned, "")
	cleaned = hyphenBreakRe.ReplaceAllString(cleaned, "")

	// Protect paragraph breaks before folding the remaining line breaks
	// into spaces.
	const breakMarker = "\x00"

	cleaned = paragraphBreakRe.ReplaceAllString(cleaned, breakMarker)
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, breakMarker, paragraphSep)

	cleaned = markdownInlineRe.ReplaceAllString(cleaned, "")
	cleaned = spaceRunRe.ReplaceAllString(cleaned, " ")

	paragraphs := strings.Split(cleaned, paragraphSep)
	kept := paragraphs[:0]

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, paragraphSep)
}
