package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiesman99/pixelsort/internal/imageio"
	"github.com/kiesman99/pixelsort/internal/processor"
)

// Stdout as an output name writes the encoded image to standard output.
const Stdout = "-"

// Options contains all configuration for a batch run
type Options struct {
	Processor processor.Options

	// Output is the output file for a single input. Empty means a name
	// derived from the input, Stdout writes to Writer.
	Output string

	Workers   int
	UserAgent string
	Timeout   time.Duration

	Logger *slog.Logger
	Writer io.Writer // used for Stdout; defaults to os.Stdout
}

// Runner handles the file side of sorting: reading inputs, naming and
// writing outputs.
type Runner struct {
	proc    *processor.Processor
	fetcher *imageio.Fetcher
	opts    *Options
	logger  *slog.Logger
}

// New creates a new runner
func New(opts *Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		proc:    processor.New(opts.Workers),
		fetcher: imageio.NewFetcher(opts.UserAgent, opts.Timeout),
		opts:    opts,
		logger:  logger,
	}
}

// Run processes every input. A failing input is logged and does not stop
// the others; the returned error reports how many failed.
func (r *Runner) Run(ctx context.Context, inputs []string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input images given")
	}
	if r.opts.Output != "" && len(inputs) > 1 {
		return fmt.Errorf("--output can only be used with a single input, got %d", len(inputs))
	}
	if err := r.opts.Processor.Settings.Validate(); err != nil {
		return err
	}
	if r.opts.Output == Stdout && r.opts.Writer == nil {
		if stat, _ := os.Stdout.Stat(); stat != nil && (stat.Mode()&os.ModeCharDevice) != 0 {
			return fmt.Errorf("refusing to write image data to a terminal")
		}
	}

	r.logger.Debug("starting run",
		"inputs", len(inputs),
		"workers", r.proc.Engine().Workers(),
		"mode", r.opts.Processor.Settings.Mode,
		"threshold_min", r.opts.Processor.Settings.Threshold.Min,
		"threshold_max", r.opts.Processor.Settings.Threshold.Max,
		"vertical", r.opts.Processor.Settings.Vertical,
		"invert", r.opts.Processor.Settings.Invert,
	)

	failed := 0
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.logger.Debug("processing", "input", input, "index", i+1, "total", len(inputs))
		if err := r.runOne(ctx, input); err != nil {
			r.logger.Error("failed", "input", input, "error", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(inputs))
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, input string) error {
	data, err := r.read(ctx, input)
	if err != nil {
		return err
	}

	popts := r.opts.Processor
	if popts.OutputFormat == imageio.FormatUnknown && r.opts.Output != "" && r.opts.Output != Stdout {
		if f, err := imageio.FormatFromPath(r.opts.Output); err == nil {
			popts.OutputFormat = f
		}
	}

	res, err := r.proc.Process(ctx, data, &popts)
	if err != nil {
		return err
	}

	output := r.opts.Output
	if output == "" {
		output = OutputPath(input, res.Format, popts.Settings.ShowThresholds)
	}
	if err := r.write(output, res.ImageData); err != nil {
		return err
	}

	r.logger.Info("wrote",
		"input", input,
		"output", output,
		"format", res.Format,
		"width", res.Width,
		"height", res.Height,
		"spans", res.Stats.Spans,
		"sorted_pixels", res.Stats.Pixels,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	return nil
}

func (r *Runner) read(ctx context.Context, input string) ([]byte, error) {
	if imageio.IsURL(input) {
		return r.fetcher.Fetch(ctx, input)
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return data, nil
}

func (r *Runner) write(output string, data []byte) error {
	if output == Stdout {
		w := r.opts.Writer
		if w == nil {
			w = os.Stdout
		}
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// OutputPath derives the default output name for input: "sorted_" (or
// "thresholds_" for previews) plus the input's base name with the
// extension of f. File inputs keep their directory; URL inputs are written
// to the working directory.
func OutputPath(input string, f imageio.Format, preview bool) string {
	prefix := "sorted_"
	if preview {
		prefix = "thresholds_"
	}

	dir, base := filepath.Split(input)
	if imageio.IsURL(input) {
		dir, base = "", "image"
		if u, err := url.Parse(input); err == nil {
			if b := path.Base(u.Path); b != "/" && b != "." {
				base = b
			}
		}
	}

	if ext := f.Ext(); ext != "" {
		base = strings.TrimSuffix(base, filepath.Ext(base)) + ext
	}
	return filepath.Join(dir, prefix+base)
}
