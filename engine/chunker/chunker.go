// Package chunker splits extracted text into byte-bounded pieces. Splitting
// is structural first (format-aware separators), with a byte-accurate
// re-split backstop for segments the structural pass leaves oversized.
package chunker

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// sampleChars bounds how much real content feeds the bytes-per-char ratio.
	sampleChars = 1000
	// sampleMargin is the safety factor applied to the sampled ratio. It is a
	// tunable heuristic: pathological mixed-width content can still overshoot,
	// which the byte-accurate re-split then corrects.
	sampleMargin = 0.8
	// overlapCap limits overlap to a fraction of the computed chunk size.
	overlapCap = 4

	minTargetChars = 16
)

// Piece is one ordered output chunk.
type Piece struct {
	Index int
	Text  string
	// Oversized marks the single-indivisible-token case where the piece
	// could not be brought under the byte budget without corrupting it.
	Oversized bool
}

// Splitter performs deterministic, restartable text chunking.
type Splitter struct {
	maxBytes     int
	overlapChars int
}

// New builds a splitter with validated settings.
func New(maxBytes, overlapChars int) (*Splitter, error) {
	if maxBytes <= 0 {
		return nil, errors.New("chunker: max bytes must be greater than zero")
	}
	if overlapChars < 0 {
		return nil, errors.New("chunker: overlap cannot be negative")
	}
	return &Splitter{maxBytes: maxBytes, overlapChars: overlapChars}, nil
}

// Split chunks text according to the format hint. Every returned piece fits
// the byte budget except a flagged indivisible token.
func (s *Splitter) Split(text string, hint string) ([]Piece, error) {
	if text == "" {
		return nil, nil
	}
	targetChars, overlap := s.targetSize(text)
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(targetChars),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(separatorsFor(hint)),
		textsplitter.WithKeepSeparator(true),
	)
	segments, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("chunker: structural split: %w", err)
	}
	pieces := make([]Piece, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if len(segment) <= s.maxBytes {
			pieces = append(pieces, Piece{Index: len(pieces), Text: segment})
			continue
		}
		for _, part := range resplitBytes(segment, s.maxBytes, overlap) {
			part.Index = len(pieces)
			pieces = append(pieces, part)
		}
	}
	return pieces, nil
}

// targetSize derives the character budget from the byte budget by sampling
// the actual bytes-per-character ratio of the real content, never a fixed
// assumed ratio, and applying the safety margin. Overlap is capped at a
// quarter of the computed size.
func (s *Splitter) targetSize(text string) (int, int) {
	sampleBytes := 0
	sampleRunes := 0
	for _, r := range text {
		sampleRunes++
		sampleBytes += utf8.RuneLen(r)
		if sampleRunes >= sampleChars {
			break
		}
	}
	ratio := float64(sampleBytes) / float64(sampleRunes)
	target := int(float64(s.maxBytes) / ratio * sampleMargin)
	if target < minTargetChars {
		target = minTargetChars
	}
	overlap := s.overlapChars
	if limit := target / overlapCap; overlap > limit {
		overlap = limit
	}
	return target, overlap
}

func separatorsFor(hint string) []string {
	switch hint {
	case "code":
		return []string{"\nfunc ", "\nclass ", "\ndef ", "\n\n", "\n", " ", ""}
	case "markdown":
		return []string{"\n# ", "\n## ", "\n### ", "\n\n", "\n", " ", ""}
	case "markup":
		return []string{">\n<", "\n\n", "\n", " ", ""}
	default:
		return []string{"\n\n", "\n", ". ", " ", ""}
	}
}
