package chunker

import (
	"bytes"
	"unicode/utf8"
)

// boundary cut preferences for the byte-accurate fallback, strongest first.
var boundaryMarks = []string{"\n\n", "\n"}

var sentenceEnders = map[byte]struct{}{'.': {}, '!': {}, '?': {}}

// resplitBytes advances through the segment in maxBytes-sized windows,
// backing off to the nearest natural boundary inside each window and carrying
// character-level overlap into the next window. A rune wider than the budget
// is emitted whole and flagged rather than corrupted.
func resplitBytes(segment string, maxBytes, overlapChars int) []Piece {
	data := []byte(segment)
	pieces := make([]Piece, 0, len(data)/maxBytes+1)
	pos := 0
	for pos < len(data) {
		if len(data)-pos <= maxBytes {
			pieces = append(pieces, Piece{Text: string(data[pos:])})
			break
		}
		end := pos + maxBytes
		for end > pos && !utf8.RuneStart(data[end]) {
			end--
		}
		if end == pos {
			// single rune wider than the byte budget: indivisible
			_, width := utf8.DecodeRune(data[pos:])
			pieces = append(pieces, Piece{Text: string(data[pos : pos+width]), Oversized: true})
			pos += width
			continue
		}
		if cut := boundaryCut(data[pos:end]); cut > 0 {
			end = pos + cut
		}
		pieces = append(pieces, Piece{Text: string(data[pos:end])})
		pos = advanceWithOverlap(data, pos, end, overlapChars)
	}
	return pieces
}

// boundaryCut finds the latest natural break in the window, requiring it past
// the halfway point so forward progress stays proportional to the budget.
// Returns 0 when no acceptable boundary exists.
func boundaryCut(window []byte) int {
	half := len(window) / 2
	for _, mark := range boundaryMarks {
		if idx := bytes.LastIndex(window, []byte(mark)); idx >= half {
			return idx + len(mark)
		}
	}
	// sentence-ending punctuation followed by a space
	for i := len(window) - 2; i >= half; i-- {
		if _, ok := sentenceEnders[window[i]]; ok && window[i+1] == ' ' {
			return i + 2
		}
	}
	for i := len(window) - 1; i >= half; i-- {
		if window[i] == ' ' {
			return i + 1
		}
	}
	return 0
}

// advanceWithOverlap steps the cursor back by overlapChars runes from the
// window end, never past the window start, so progress is always positive.
func advanceWithOverlap(data []byte, start, end, overlapChars int) int {
	if overlapChars <= 0 {
		return end
	}
	next := end
	for range overlapChars {
		if next <= start+1 {
			break
		}
		r := next - 1
		for r > start && !utf8.RuneStart(data[r]) {
			r--
		}
		if r <= start {
			break
		}
		next = r
	}
	if next <= start {
		return end
	}
	return next
}
