package pixelsort

import (
	"cmp"
	"image/color"
	"slices"
)

// Span is a half-open range [Start, End) of pixel positions within a row.
type Span struct {
	Start, End int
}

// Len returns the number of pixels in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// InBand reports whether the luminance of c falls inside the threshold.
func (t Threshold) InBand(c color.NRGBA) bool {
	return t.Contains(Luminance(c))
}

// pixelAt reads pixel i of a flat RGBA8 row.
func pixelAt(row []uint8, i int) color.NRGBA {
	p := row[4*i : 4*i+4 : 4*i+4]
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// DetectSpans partitions a flat RGBA8 row into maximal runs of in-band
// pixels, left to right. A run still open at the end of the row is closed
// there.
func DetectSpans(row []uint8, t Threshold) []Span {
	return appendSpans(nil, row, t)
}

func appendSpans(spans []Span, row []uint8, t Threshold) []Span {
	n := len(row) / 4
	start := -1
	for i := 0; i < n; i++ {
		if t.InBand(pixelAt(row, i)) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, Span{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Start: start, End: n})
	}
	return spans
}

// spanSorter holds scratch buffers reused across the spans of one worker.
type spanSorter struct {
	mode   SortMode
	invert bool

	keys  []float32
	order []int
	vals  []uint8
}

// SortSpan stably reorders the pixels of sp within row by the ranking
// metric, descending when invert is set. Pixels outside sp are untouched.
func SortSpan(row []uint8, sp Span, mode SortMode, invert bool) {
	ss := spanSorter{mode: mode, invert: invert}
	ss.sort(row, sp)
}

// sort is an indirect sort: keys are computed once from a snapshot of the
// span, indices are stably sorted by key, then values are gathered back in
// rank order. Comparisons never observe already moved pixels.
func (ss *spanSorter) sort(row []uint8, sp Span) {
	n := sp.Len()
	if n < 2 {
		return
	}

	ss.vals = append(ss.vals[:0], row[4*sp.Start:4*sp.End]...)
	ss.keys = ss.keys[:0]
	ss.order = ss.order[:0]
	for i := 0; i < n; i++ {
		ss.keys = append(ss.keys, Metric(pixelAt(ss.vals, i), ss.mode))
		ss.order = append(ss.order, i)
	}

	keys := ss.keys
	if ss.invert {
		slices.SortStableFunc(ss.order, func(a, b int) int {
			return cmp.Compare(keys[b], keys[a])
		})
	} else {
		slices.SortStableFunc(ss.order, func(a, b int) int {
			return cmp.Compare(keys[a], keys[b])
		})
	}

	dst := row[4*sp.Start : 4*sp.End]
	for rank, src := range ss.order {
		copy(dst[4*rank:4*rank+4], ss.vals[4*src:4*src+4])
	}
}
