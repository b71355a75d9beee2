package text

import (
	"regexp"
	"strings"
)

// sentenceEndRe matches a sentence terminator followed by whitespace. Go's
// regexp has no lookbehind, so boundaries are located by index and the
// terminator stays attached to its sentence.
var sentenceEndRe = regexp.MustCompile(`[.!?…]['")\]]?\s+`)

// clauseEndRe locates secondary split points inside an oversized sentence.
var clauseEndRe = regexp.MustCompile(`[,;:]\s+`)

// Split divides normalized text into ordered chunks no longer than limit
// bytes, preferring paragraph boundaries, then sentence boundaries, then
// clause boundaries, and finally hard-splitting on whitespace. A single
// token longer than the limit is emitted whole; it cannot be split without
// corrupting the word.
//
// Split is deterministic: identical (text, limit) inputs yield identical
// chunk sequences. No characters other than separating whitespace are
// dropped, so joining the chunks with spaces reconstructs the word sequence
// of the input exactly.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if limit <= 0 || len(text) <= limit {
		return []string{collapseBreaks(text)}
	}

	var chunks []string

	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(text, paragraphSep) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		// A paragraph that still fits is packed greedily with its
		// neighbors.
		if len(paragraph) <= limit {
			appendPiece(&current, paragraph, limit, flush)

			continue
		}

		for _, sentence := range splitAfter(paragraph, sentenceEndRe) {
			if len(sentence) <= limit {
				appendPiece(&current, sentence, limit, flush)

				continue
			}

			for _, piece := range splitOversized(sentence, limit) {
				appendPiece(&current, piece, limit, flush)
			}
		}
	}

	flush()

	return chunks
}

// appendPiece adds piece to the current chunk, flushing first when the
// combined length would exceed the limit.
func appendPiece(current *strings.Builder, piece string, limit int, flush func()) {
	if current.Len() > 0 && current.Len()+1+len(piece) > limit {
		flush()
	}

	if current.Len() > 0 {
		current.WriteByte(' ')
	}

	current.WriteString(piece)
}

// splitAfter slices s at the end of every match of re, keeping the matched
// terminator with the preceding piece.
func splitAfter(s string, re *regexp.Regexp) []string {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}

	pieces := make([]string, 0, len(locs)+1)
	start := 0

	for _, loc := range locs {
		piece := strings.TrimSpace(s[start:loc[1]])
		if piece != "" {
			pieces = append(pieces, piece)
		}

		start = loc[1]
	}

	if tail := strings.TrimSpace(s[start:]); tail != "" {
		pieces = append(pieces, tail)
	}

	return pieces
}

// splitOversized breaks a sentence longer than limit at clause boundaries,
// falling back to whitespace. Single tokens longer than limit come back
// unsplit.
func splitOversized(sentence string, limit int) []string {
	var pieces []string

	for _, clause := range splitAfter(sentence, clauseEndRe) {
		if len(clause) <= limit {
			pieces = append(pieces, clause)

			continue
		}

		pieces = append(pieces, hardSplit(clause, limit)...)
	}

	return pieces
}

// hardSplit packs whitespace-separated tokens into pieces of at most limit
// bytes each.
func hardSplit(clause string, limit int) []string {
	var pieces []string

	var current strings.Builder

	for _, token := range strings.Fields(clause) {
		if current.Len() > 0 && current.Len()+1+len(token) > limit {
			pieces = append(pieces, current.String())
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}

		current.WriteString(token)
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}

// collapseBreaks folds paragraph separators into single spaces for a text
// that fits in one chunk.
func collapseBreaks(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
