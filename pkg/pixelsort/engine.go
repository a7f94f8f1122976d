package pixelsort

import (
	"context"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// Stats summarises one sort pass.
type Stats struct {
	Rows   int // rows processed after orientation
	Spans  int // spans detected
	Pixels int // pixels inside spans
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Rows += o.Rows
	s.Spans += o.Spans
	s.Pixels += o.Pixels
}

// Engine runs the per-row work of a transform on a bounded number of
// goroutines. An Engine holds no per-call state and may be shared.
type Engine struct {
	workers int
}

// NewEngine creates an engine using the given number of workers.
// If workers <= 0, uses GOMAXPROCS.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{workers: workers}
}

// Workers returns the number of workers used for a transform.
func (e *Engine) Workers() int {
	return e.workers
}

var defaultEngine = NewEngine(0)

// ApplySort sorts a copy of img with the default engine. img is not modified.
func ApplySort(img *image.NRGBA, s Settings) (*image.NRGBA, error) {
	s.ShowThresholds = false
	out, _, err := defaultEngine.Apply(context.Background(), img, s)
	return out, err
}

// ApplyThreshold renders the threshold preview of img with the default engine.
func ApplyThreshold(img *image.NRGBA, s Settings) (*image.NRGBA, error) {
	return defaultEngine.Threshold(img, s)
}

// Apply transforms a working copy of img according to s and returns it.
// With ShowThresholds set the copy holds the threshold preview, otherwise
// the sorted image. img itself is never modified, so a caller that gives up
// on the result still holds the original.
func (e *Engine) Apply(ctx context.Context, img *image.NRGBA, s Settings) (*image.NRGBA, Stats, error) {
	if s.ShowThresholds {
		out, err := e.Threshold(img, s)
		return out, Stats{}, err
	}
	if err := s.Validate(); err != nil {
		return nil, Stats{}, err
	}
	if err := checkBuffer(img); err != nil {
		return nil, Stats{}, err
	}
	out := cloneImage(img)
	stats, err := e.Sort(ctx, out, s)
	if err != nil {
		return nil, Stats{}, err
	}
	return out, stats, nil
}

// Sort sorts img in place. All validation happens before any pixel is
// written; once rows are dispatched the call runs to completion. The
// context is only consulted before dispatch.
func (e *Engine) Sort(ctx context.Context, img *image.NRGBA, s Settings) (Stats, error) {
	if err := s.Validate(); err != nil {
		return Stats{}, err
	}
	if err := checkBuffer(img); err != nil {
		return Stats{}, err
	}
	if img.Rect.Empty() {
		return Stats{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	work := img
	if s.Vertical {
		// Rotate270 turns the image clockwise: columns become rows.
		work = imaging.Rotate270(img)
	}

	stats := e.sortRows(splitRows(work), s)

	if s.Vertical {
		restored := imaging.Rotate90(work)
		for y, row := range splitRows(img) {
			copy(row, restored.Pix[y*restored.Stride:])
		}
	}
	return stats, nil
}

func (e *Engine) sortRows(rows [][]uint8, s Settings) Stats {
	slots := make([]Stats, e.chunks(len(rows)))
	e.forEachChunk(rows, func(slot int, chunk [][]uint8) {
		ss := spanSorter{mode: s.Mode, invert: s.Invert}
		var spans []Span
		st := Stats{Rows: len(chunk)}
		for _, row := range chunk {
			spans = appendSpans(spans[:0], row, s.Threshold)
			for _, sp := range spans {
				ss.sort(row, sp)
				st.Pixels += sp.Len()
			}
			st.Spans += len(spans)
		}
		slots[slot] = st
	})

	var total Stats
	for _, st := range slots {
		total.Add(st)
	}
	return total
}

// Threshold returns a black/white copy of img: white where the pixel's
// luminance is inside the band, black elsewhere. Alpha is kept.
func (e *Engine) Threshold(img *image.NRGBA, s Settings) (*image.NRGBA, error) {
	if err := s.Threshold.Validate(); err != nil {
		return nil, err
	}
	if err := checkBuffer(img); err != nil {
		return nil, err
	}
	out := cloneImage(img)
	e.forEachChunk(splitRows(out), func(_ int, chunk [][]uint8) {
		for _, row := range chunk {
			for i := 0; i+4 <= len(row); i += 4 {
				var v uint8
				if s.Threshold.InBand(pixelAt(row, i/4)) {
					v = 255
				}
				row[i], row[i+1], row[i+2] = v, v, v
			}
		}
	})
	return out, nil
}

// chunks returns how many contiguous chunks n rows are split into.
func (e *Engine) chunks(n int) int {
	return max(min(e.workers, n), 1)
}

// forEachChunk splits rows into contiguous, disjoint chunks and calls fn
// for each on its own goroutine. There are never more than e.workers
// chunks, which bounds the goroutine count. slot is the
// chunk index, unique per call, so fn can write results without locking.
// Blocks until all chunks are done.
func (e *Engine) forEachChunk(rows [][]uint8, fn func(slot int, chunk [][]uint8)) {
	n := len(rows)
	if n == 0 {
		return
	}
	workers := e.chunks(n)
	if workers == 1 {
		fn(0, rows)
		return
	}

	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	for i := range workers {
		start := i * chunkSize
		if start >= n {
			break
		}
		end := min(start+chunkSize, n)
		chunk := rows[start:end:end]
		g.Go(func() error {
			fn(i, chunk)
			return nil
		})
	}
	// Row work has no failure path.
	_ = g.Wait()
}
