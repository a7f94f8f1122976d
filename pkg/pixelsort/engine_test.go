package pixelsort

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"slices"
	"testing"
)

// randomImage builds a w×h image from a small palette so that ties in every
// metric are common.
func randomImage(w, h int, seed uint64) *image.NRGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	levels := []uint8{0, 40, 100, 128, 160, 200, 255}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = levels[rng.IntN(len(levels))]
		img.Pix[i+1] = levels[rng.IntN(len(levels))]
		img.Pix[i+2] = levels[rng.IntN(len(levels))]
		img.Pix[i+3] = uint8(rng.IntN(256))
	}
	return img
}

// rotateCW turns img 90° clockwise without going through the engine.
func rotateCW(img *image.NRGBA) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := range w {
		for x := range h {
			dst.SetNRGBA(x, y, img.NRGBAAt(img.Rect.Min.X+y, img.Rect.Min.Y+h-1-x))
		}
	}
	return dst
}

// rotateCCW is the inverse of rotateCW.
func rotateCCW(img *image.NRGBA) *image.NRGBA {
	w, h := img.Rect.Dy(), img.Rect.Dx()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			dst.SetNRGBA(x, y, img.NRGBAAt(h-1-y, x))
		}
	}
	return dst
}

// referenceSort sorts every span of every row with sort.SliceStable-like
// semantics on whole pixel values.
func referenceSort(img *image.NRGBA, s Settings) *image.NRGBA {
	out := cloneImage(img)
	for _, row := range splitRows(out) {
		for _, sp := range DetectSpans(row, s.Threshold) {
			px := make([]color.NRGBA, 0, sp.Len())
			for i := sp.Start; i < sp.End; i++ {
				px = append(px, pixelAt(row, i))
			}
			slices.SortStableFunc(px, func(a, b color.NRGBA) int {
				if s.Invert {
					return cmp.Compare(Metric(b, s.Mode), Metric(a, s.Mode))
				}
				return cmp.Compare(Metric(a, s.Mode), Metric(b, s.Mode))
			})
			for i, c := range px {
				j := 4 * (sp.Start + i)
				row[j], row[j+1], row[j+2], row[j+3] = c.R, c.G, c.B, c.A
			}
		}
	}
	return out
}

func TestSort_Scenario1(t *testing.T) {
	px := []color.NRGBA{
		{50, 50, 50, 255},
		{200, 150, 100, 255}, // lum 150
		{130, 170, 180, 200}, // lum 160
		{130, 140, 150, 100}, // lum 140
		{50, 50, 50, 255},
	}
	img := image.NewNRGBA(image.Rect(0, 0, 5, 1))
	for x, c := range px {
		img.SetNRGBA(x, 0, c)
	}

	s := Settings{Threshold: Threshold{Min: 100, Max: 200}, Mode: Red}
	stats, err := NewEngine(2).Sort(context.Background(), img, s)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if stats.Spans != 1 || stats.Pixels != 3 || stats.Rows != 1 {
		t.Errorf("stats: got %+v, want 1 span of 3 pixels in 1 row", stats)
	}

	want := []color.NRGBA{px[0], px[2], px[3], px[1], px[4]}
	for x, c := range want {
		if got := img.NRGBAAt(x, 0); got != c {
			t.Errorf("pixel %d: got %v, want %v", x, got, c)
		}
	}
}

func TestSort_Scenario2_InvalidThreshold(t *testing.T) {
	img := randomImage(8, 8, 1)
	orig := cloneImage(img)

	s := DefaultSettings()
	s.Threshold = Threshold{Min: 200, Max: 100}

	if _, err := NewEngine(0).Sort(context.Background(), img, s); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected ErrInvalidThreshold, got %v", err)
	}
	if !bytes.Equal(img.Pix, orig.Pix) {
		t.Error("buffer modified after rejected threshold")
	}

	if _, err := ApplyThreshold(img, s); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("ApplyThreshold: expected ErrInvalidThreshold, got %v", err)
	}
}

func TestSort_Scenario3_AllBlack(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 9))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	orig := cloneImage(img)

	for _, vertical := range []bool{false, true} {
		s := Settings{Threshold: Threshold{Min: 1, Max: 255}, Mode: Hue, Vertical: vertical}
		stats, err := NewEngine(4).Sort(context.Background(), img, s)
		if err != nil {
			t.Fatalf("Sort: %v", err)
		}
		if stats.Spans != 0 {
			t.Errorf("vertical=%v: got %d spans, want 0", vertical, stats.Spans)
		}
		if !bytes.Equal(img.Pix, orig.Pix) {
			t.Errorf("vertical=%v: output differs from input", vertical)
		}
	}
}

func TestThreshold_Scenario4(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.SetNRGBA(0, 0, color.NRGBA{100, 100, 100, 10})  // at min
	img.SetNRGBA(1, 0, color.NRGBA{200, 200, 200, 20})  // at max
	img.SetNRGBA(2, 0, color.NRGBA{99, 99, 99, 30})     // min-1
	img.SetNRGBA(3, 0, color.NRGBA{255, 201, 147, 40}) // lum 201
	orig := cloneImage(img)

	s := Settings{Threshold: Threshold{Min: 100, Max: 200}, ShowThresholds: true}
	out, _, err := NewEngine(0).Apply(context.Background(), img, s)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []color.NRGBA{
		{255, 255, 255, 10},
		{255, 255, 255, 20},
		{0, 0, 0, 30},
		{0, 0, 0, 40},
	}
	for x, c := range want {
		if got := out.NRGBAAt(x, 0); got != c {
			t.Errorf("pixel %d: got %v, want %v", x, got, c)
		}
	}
	if !bytes.Equal(img.Pix, orig.Pix) {
		t.Error("threshold preview modified the source image")
	}
}

func TestSort_Properties(t *testing.T) {
	for _, mode := range SortModes() {
		for _, invert := range []bool{false, true} {
			s := Settings{Threshold: Threshold{Min: 60, Max: 190}, Mode: mode, Invert: invert}
			t.Run(mode.String(), func(t *testing.T) {
				img := randomImage(37, 23, uint64(mode)+1)
				orig := cloneImage(img)

				if _, err := NewEngine(3).Sort(context.Background(), img, s); err != nil {
					t.Fatalf("Sort: %v", err)
				}

				if img.Rect != orig.Rect {
					t.Fatalf("bounds changed: %v -> %v", orig.Rect, img.Rect)
				}
				if want := referenceSort(orig, s); !bytes.Equal(img.Pix, want.Pix) {
					t.Fatal("result differs from stable reference sort")
				}

				origRows, outRows := splitRows(orig), splitRows(img)
				for y := range origRows {
					spans := DetectSpans(origRows[y], s.Threshold)
					inSpan := make([]bool, img.Rect.Dx())
					for _, sp := range spans {
						checkSpan(t, origRows[y], outRows[y], sp, s)
						for i := sp.Start; i < sp.End; i++ {
							inSpan[i] = true
						}
					}
					for x, in := range inSpan {
						if !in && pixelAt(origRows[y], x) != pixelAt(outRows[y], x) {
							t.Errorf("row %d: pixel %d outside spans changed", y, x)
						}
					}
				}
			})
		}
	}
}

// checkSpan verifies that the span is a permutation of the original pixels
// and that the ranking metric is monotone in the requested direction.
func checkSpan(t *testing.T, before, after []uint8, sp Span, s Settings) {
	t.Helper()
	var a, b []color.NRGBA
	for i := sp.Start; i < sp.End; i++ {
		a = append(a, pixelAt(before, i))
		b = append(b, pixelAt(after, i))
	}
	for i := 1; i < len(b); i++ {
		prev, cur := Metric(b[i-1], s.Mode), Metric(b[i], s.Mode)
		if (!s.Invert && cur < prev) || (s.Invert && cur > prev) {
			t.Errorf("span %v not monotone at %d: %v then %v", sp, i, prev, cur)
			return
		}
	}
	less := func(x, y color.NRGBA) int {
		return cmp.Or(cmp.Compare(x.R, y.R), cmp.Compare(x.G, y.G), cmp.Compare(x.B, y.B), cmp.Compare(x.A, y.A))
	}
	slices.SortFunc(a, less)
	slices.SortFunc(b, less)
	if !slices.Equal(a, b) {
		t.Errorf("span %v is not a permutation of the original pixels", sp)
	}
}

func TestSort_VerticalMatchesRotatedHorizontal(t *testing.T) {
	s := Settings{Threshold: Threshold{Min: 40, Max: 220}, Mode: Saturation, Vertical: true}
	img := randomImage(19, 31, 7)
	rotated := rotateCW(img)

	if _, err := NewEngine(0).Sort(context.Background(), img, s); err != nil {
		t.Fatalf("vertical Sort: %v", err)
	}
	if img.Rect.Dx() != 19 || img.Rect.Dy() != 31 {
		t.Fatalf("bounds changed: %v", img.Rect)
	}

	s.Vertical = false
	if _, err := NewEngine(0).Sort(context.Background(), rotated, s); err != nil {
		t.Fatalf("horizontal Sort: %v", err)
	}
	if back := rotateCCW(rotated); !bytes.Equal(back.Pix, img.Pix) {
		t.Error("vertical sort differs from horizontal sort of the rotated image")
	}
}

func TestSort_VerticalSubImage(t *testing.T) {
	parent := randomImage(20, 20, 11)
	sub := parent.SubImage(image.Rect(5, 3, 12, 17)).(*image.NRGBA)
	want := rotateCCW(referenceSort(rotateCW(cloneImage(sub)), DefaultSettings()))

	s := DefaultSettings()
	s.Vertical = true
	if _, err := NewEngine(2).Sort(context.Background(), sub, s); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	for y := range sub.Rect.Dy() {
		for x := range sub.Rect.Dx() {
			if got, w := sub.NRGBAAt(sub.Rect.Min.X+x, sub.Rect.Min.Y+y), want.NRGBAAt(x, y); got != w {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, w)
			}
		}
	}
}

func TestSort_WorkerCountIndependent(t *testing.T) {
	s := Settings{Threshold: Threshold{Min: 0, Max: 255}, Mode: Lightness, Invert: true}
	base := randomImage(64, 50, 3)
	var first []uint8
	for _, workers := range []int{1, 2, 7, 64, 200} {
		out, _, err := NewEngine(workers).Apply(context.Background(), base, s)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if first == nil {
			first = out.Pix
			continue
		}
		if !bytes.Equal(first, out.Pix) {
			t.Errorf("workers=%d: result differs", workers)
		}
	}
}

func TestApply_LeavesSourceUntouched(t *testing.T) {
	img := randomImage(12, 12, 5)
	orig := cloneImage(img)
	out, err := ApplySort(img, Settings{Threshold: Threshold{0, 255}, Mode: Blue})
	if err != nil {
		t.Fatalf("ApplySort: %v", err)
	}
	if !bytes.Equal(img.Pix, orig.Pix) {
		t.Error("ApplySort modified its input")
	}
	if out == img {
		t.Error("ApplySort returned its input buffer")
	}
}

func TestSort_EmptyImage(t *testing.T) {
	for _, r := range []image.Rectangle{image.Rect(0, 0, 0, 0), image.Rect(0, 0, 10, 0), image.Rect(0, 0, 0, 10)} {
		img := image.NewNRGBA(r)
		for _, vertical := range []bool{false, true} {
			s := DefaultSettings()
			s.Vertical = vertical
			out, stats, err := NewEngine(0).Apply(context.Background(), img, s)
			if err != nil {
				t.Fatalf("%v vertical=%v: %v", r, vertical, err)
			}
			if out.Rect != r || stats != (Stats{}) {
				t.Errorf("%v vertical=%v: got %v %+v", r, vertical, out.Rect, stats)
			}
		}
	}
}

func TestSort_CanceledContext(t *testing.T) {
	img := randomImage(4, 4, 9)
	orig := cloneImage(img)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewEngine(0).Sort(ctx, img, DefaultSettings()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !bytes.Equal(img.Pix, orig.Pix) {
		t.Error("buffer modified after cancellation")
	}
}

func TestFromImage(t *testing.T) {
	gray := image.NewGray(image.Rect(2, 3, 6, 5))
	gray.SetGray(3, 4, color.Gray{Y: 77})
	img, err := FromImage(gray)
	if err != nil {
		t.Fatalf("FromImage(gray): %v", err)
	}
	if img.Rect != gray.Rect {
		t.Errorf("bounds: got %v, want %v", img.Rect, gray.Rect)
	}
	if got := img.NRGBAAt(3, 4); got != (color.NRGBA{77, 77, 77, 255}) {
		t.Errorf("pixel: got %v", got)
	}

	n := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	if got, err := FromImage(n); err != nil || got != n {
		t.Errorf("FromImage(nrgba): got %p, %v; want the same buffer", got, err)
	}

	bad := []image.Image{
		nil,
		image.NewNRGBA64(image.Rect(0, 0, 2, 2)),
		image.NewGray16(image.Rect(0, 0, 2, 2)),
		&image.NRGBA{Pix: make([]uint8, 4), Stride: 8, Rect: image.Rect(0, 0, 2, 2)},
		&image.NRGBA{Pix: make([]uint8, 16), Stride: 4, Rect: image.Rect(0, 0, 2, 2)},
	}
	for i, src := range bad {
		if _, err := FromImage(src); !errors.Is(err, ErrUnsupportedPixelFormat) {
			t.Errorf("case %d: expected ErrUnsupportedPixelFormat, got %v", i, err)
		}
	}
}

func TestForEachChunk_DisjointCover(t *testing.T) {
	tests := []struct {
		workers, rows int
	}{
		{1, 5},
		{3, 10},
		{4, 4},
		{8, 3},
		{7, 100},
	}
	for _, tt := range tests {
		e := NewEngine(tt.workers)
		rows := make([][]uint8, tt.rows)
		for i := range rows {
			rows[i] = []uint8{uint8(i)}
		}

		seen := make([]int, tt.rows)
		slots := make([]int, e.chunks(tt.rows))
		e.forEachChunk(rows, func(slot int, chunk [][]uint8) {
			slots[slot]++
			for _, row := range chunk {
				seen[row[0]]++
			}
		})

		if len(slots) > tt.workers {
			t.Errorf("workers=%d rows=%d: %d chunks exceed the worker count", tt.workers, tt.rows, len(slots))
		}
		for slot, n := range slots {
			if n > 1 {
				t.Errorf("workers=%d rows=%d: slot %d used %d times", tt.workers, tt.rows, slot, n)
			}
		}
		for i, n := range seen {
			if n != 1 {
				t.Errorf("workers=%d rows=%d: row %d visited %d times", tt.workers, tt.rows, i, n)
			}
		}
	}
}
