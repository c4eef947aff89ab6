package chunker

import (
	"errors"
)

// ErrInvalidConfig means the chunking configuration can never produce
// forward progress. It is a startup bug, not a runtime condition.
var ErrInvalidConfig = errors.New("invalid chunker config: overlap must be smaller than chunk size")

// Span is one chunk of text addressed by its character offsets in the
// source. End is exclusive. Spans are produced in ordinal order and,
// concatenated with the overlap removed, reconstruct the input exactly.
type Span struct {
	Ordinal int
	Start   int
	End     int
	Text    string
}

// Config controls window sizes, all measured in characters.
// BoundaryLookBack > 0 enables boundary-aware cutting: a cut point is
// pulled back to the nearest sentence or paragraph break found within
// that many characters before the nominal cut; with no break in the
// window the hard cut stands.
type Config struct {
	MaxChunkSize     int
	OverlapSize      int
	BoundaryLookBack int
}

// Chunker splits normalized text into overlapping character windows.
// It holds no state between documents.
type Chunker struct {
	maxSize  int
	overlap  int
	lookBack int
}

func New(cfg Config) (*Chunker, error) {
	if cfg.MaxChunkSize <= 0 || cfg.OverlapSize < 0 || cfg.OverlapSize >= cfg.MaxChunkSize {
		return nil, ErrInvalidConfig
	}
	lookBack := cfg.BoundaryLookBack
	if lookBack < 0 {
		lookBack = 0
	}
	// A look-back reaching past the previous window start would stall
	// the walk; cap it below the step size.
	if step := cfg.MaxChunkSize - cfg.OverlapSize; lookBack >= step {
		lookBack = step - 1
	}
	return &Chunker{
		maxSize:  cfg.MaxChunkSize,
		overlap:  cfg.OverlapSize,
		lookBack: lookBack,
	}, nil
}

// Chunk walks text producing spans of up to maxSize characters, each
// window starting overlap characters before the previous cut. The
// final span is truncated to the remaining text. Empty input produces
// zero spans.
func (c *Chunker) Chunk(text string) []Span {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var spans []Span
	start := 0
	ordinal := 0
	for {
		end := start + c.maxSize
		if end >= len(runes) {
			spans = append(spans, Span{
				Ordinal: ordinal,
				Start:   start,
				End:     len(runes),
				Text:    string(runes[start:len(runes)]),
			})
			return spans
		}

		if c.lookBack > 0 {
			if b := boundaryBefore(runes, end, c.lookBack); b > start {
				end = b
			}
		}

		spans = append(spans, Span{
			Ordinal: ordinal,
			Start:   start,
			End:     end,
			Text:    string(runes[start:end]),
		})
		ordinal++
		start = end - c.overlap
	}
}

// boundaryBefore returns the position just after the last sentence or
// paragraph break within lookBack characters before cut, or 0 when no
// acceptable break exists in the window.
func boundaryBefore(runes []rune, cut, lookBack int) int {
	low := cut - lookBack
	if low < 0 {
		low = 0
	}
	for i := cut - 1; i >= low; i-- {
		switch runes[i] {
		case '\n':
			return i + 1
		case '.', '!', '?':
			// Only treat terminators followed by whitespace as a
			// sentence break; keeps "3.14" and "v1.2" intact.
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
				return i + 2
			}
		}
	}
	return 0
}
