package processor

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kiesman99/pixelsort/internal/imageio"
	"github.com/kiesman99/pixelsort/pkg/pixelsort"
)

// Options contains all processing parameters
type Options struct {
	Settings pixelsort.Settings

	// Passes is how many times the sort is applied; each pass works on the
	// previous pass's output and flips the orientation, so two passes sort
	// rows and then columns. Values below 1 mean a single pass.
	Passes int

	// OutputFormat selects the encoder. FormatUnknown keeps the input
	// format, falling back to PNG when the input format cannot be written.
	OutputFormat imageio.Format
	Quality      int
}

// Result contains the processing result
type Result struct {
	ImageData   []byte
	Format      imageio.Format
	InputFormat imageio.Format
	Width       int
	Height      int
	Stats       pixelsort.Stats
	Elapsed     time.Duration
}

// InputError reports image data that could not be decoded.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("decoding image: %v", e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Processor decodes, transforms and re-encodes images.
type Processor struct {
	engine *pixelsort.Engine
}

// New creates a processor whose engine uses the given number of workers
// (<= 0 means GOMAXPROCS).
func New(workers int) *Processor {
	return &Processor{engine: pixelsort.NewEngine(workers)}
}

// Engine returns the engine used by p.
func (p *Processor) Engine() *pixelsort.Engine {
	return p.engine
}

// Process runs the transform described by opts on encoded image data.
// Settings are validated before the data is decoded.
func (p *Processor) Process(ctx context.Context, data []byte, opts *Options) (*Result, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if opts.OutputFormat == imageio.FormatWebP {
		return nil, fmt.Errorf("%w: cannot encode %s", imageio.ErrUnknownFormat, opts.OutputFormat)
	}

	start := time.Now()

	img, inFormat, err := imageio.Decode(data)
	if err != nil {
		return nil, &InputError{Err: err}
	}

	out, stats, err := p.Transform(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	format := opts.OutputFormat
	if format == imageio.FormatUnknown {
		format = inFormat
		if !format.CanEncode() {
			format = imageio.FormatPNG
		}
	}

	imageData, err := imageio.EncodeBytes(out, format, imageio.EncodeOptions{Quality: opts.Quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode output image: %w", err)
	}

	return &Result{
		ImageData:   imageData,
		Format:      format,
		InputFormat: inFormat,
		Width:       out.Rect.Dx(),
		Height:      out.Rect.Dy(),
		Stats:       stats,
		Elapsed:     time.Since(start),
	}, nil
}

// Transform applies opts to a copy of img. With ShowThresholds set it
// returns the threshold preview and ignores Passes.
func (p *Processor) Transform(ctx context.Context, img *image.NRGBA, opts *Options) (*image.NRGBA, pixelsort.Stats, error) {
	out, stats, err := p.engine.Apply(ctx, img, opts.Settings)
	if err != nil || opts.Settings.ShowThresholds {
		return out, stats, err
	}

	s := opts.Settings
	for pass := 1; pass < opts.Passes; pass++ {
		s.Vertical = !s.Vertical
		st, err := p.engine.Sort(ctx, out, s)
		if err != nil {
			return nil, pixelsort.Stats{}, err
		}
		stats.Add(st)
	}
	return out, stats, nil
}
