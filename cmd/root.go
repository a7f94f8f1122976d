package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/pixelsort/internal/imageio"
	"github.com/kiesman99/pixelsort/internal/processor"
	"github.com/kiesman99/pixelsort/internal/runner"
	"github.com/kiesman99/pixelsort/pkg/pixelsort"
)

// Version is reported by the server health endpoint.
var Version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pixelsort [flags] <input>...",
	Short: "Sort runs of pixels inside a brightness band",
	Long: `pixelsort sorts contiguous runs of pixels whose luminance falls inside
a threshold band, row by row or column by column.

Inputs may be files (png, jpeg, gif, bmp, tiff, webp, rgbz) or http(s) URLs.
Without --output each result is written next to its input as sorted_<name>.

Examples:
  # Sort rows of pixels with luminance 127..223 by lightness
  pixelsort photo.jpg

  # Sort columns by hue, descending, into a specific file
  pixelsort --vertical --mode hue --invert -o out.png photo.jpg

  # Preview which pixels fall inside the band
  pixelsort --min 60 --max 180 --show-thresholds photo.jpg

  # Sort rows, then columns
  pixelsort --passes 2 photo.png

  # Start HTTP server
  pixelsort serve --port 8080`,
	// Inputs are positional; without this cobra treats them as unknown
	// subcommands because serve exists.
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runSort(cmd, args)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pixelsort.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().IntP("workers", "j", 0, "rows sorted in parallel (0 = number of CPUs)")

	// Sort options
	rootCmd.Flags().BoolP("vertical", "V", false, "sort columns instead of rows")
	rootCmd.Flags().Int("min", 127, "lower luminance bound of the threshold band (0-255)")
	rootCmd.Flags().Int("max", 223, "upper luminance bound of the threshold band (0-255)")
	rootCmd.Flags().StringP("mode", "m", "lightness", "sort by (average|red|green|blue|hue|saturation|lightness)")
	rootCmd.Flags().BoolP("invert", "i", false, "sort descending")
	rootCmd.Flags().BoolP("show-thresholds", "t", false, "write the threshold band as black/white instead of sorting")
	rootCmd.Flags().IntP("passes", "p", 1, "number of passes, alternating rows and columns")

	// Output options
	rootCmd.Flags().StringP("output", "o", "", "output file for a single input, - for stdout (default: sorted_<input>)")
	rootCmd.Flags().StringP("format", "f", "", "output format (png|jpeg|gif|bmp|tiff|rgbz; default: from output name or input)")
	rootCmd.Flags().Int("quality", imageio.DefaultQuality, "JPEG quality (1-100)")

	// HTTP options
	rootCmd.Flags().String("user-agent", imageio.DefaultUserAgent, "HTTP User-Agent header for URL inputs")
	rootCmd.Flags().Duration("fetch-timeout", 30*time.Second, "timeout for downloading URL inputs")

	// Bind flags to viper for root command
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("vertical", rootCmd.Flags().Lookup("vertical"))
	viper.BindPFlag("min", rootCmd.Flags().Lookup("min"))
	viper.BindPFlag("max", rootCmd.Flags().Lookup("max"))
	viper.BindPFlag("mode", rootCmd.Flags().Lookup("mode"))
	viper.BindPFlag("invert", rootCmd.Flags().Lookup("invert"))
	viper.BindPFlag("show-thresholds", rootCmd.Flags().Lookup("show-thresholds"))
	viper.BindPFlag("passes", rootCmd.Flags().Lookup("passes"))
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("format", rootCmd.Flags().Lookup("format"))
	viper.BindPFlag("quality", rootCmd.Flags().Lookup("quality"))
	viper.BindPFlag("user-agent", rootCmd.Flags().Lookup("user-agent"))
	viper.BindPFlag("fetch-timeout", rootCmd.Flags().Lookup("fetch-timeout"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".pixelsort" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pixelsort")
	}

	// PIXELSORT_SHOW_THRESHOLDS, PIXELSORT_SERVER_PORT, ...
	viper.SetEnvPrefix("pixelsort")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the stderr logger for the configured level.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", viper.GetString("log-level"))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// settingsFromConfig reads the sort settings shared by the CLI and config file.
func settingsFromConfig() (pixelsort.Settings, error) {
	s := pixelsort.DefaultSettings()

	minV, maxV := viper.GetInt("min"), viper.GetInt("max")
	if minV < 0 || minV > 255 {
		return s, fmt.Errorf("--min must be between 0 and 255, got %d", minV)
	}
	if maxV < 0 || maxV > 255 {
		return s, fmt.Errorf("--max must be between 0 and 255, got %d", maxV)
	}
	s.Threshold = pixelsort.Threshold{Min: uint8(minV), Max: uint8(maxV)}

	mode, err := pixelsort.ParseSortMode(viper.GetString("mode"))
	if err != nil {
		return s, err
	}
	s.Mode = mode
	s.Vertical = viper.GetBool("vertical")
	s.Invert = viper.GetBool("invert")
	s.ShowThresholds = viper.GetBool("show-thresholds")
	return s, nil
}

func runSort(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	settings, err := settingsFromConfig()
	if err != nil {
		return err
	}

	var format imageio.Format
	if name := viper.GetString("format"); name != "" {
		if format, err = imageio.ParseFormat(name); err != nil {
			return err
		}
		if !format.CanEncode() {
			return fmt.Errorf("cannot write %s output", format)
		}
	}

	passes := viper.GetInt("passes")
	if passes < 1 {
		return fmt.Errorf("--passes must be at least 1, got %d", passes)
	}

	quality := viper.GetInt("quality")
	if quality < 1 || quality > 100 {
		return fmt.Errorf("--quality must be between 1 and 100, got %d", quality)
	}

	r := runner.New(&runner.Options{
		Processor: processor.Options{
			Settings:     settings,
			Passes:       passes,
			OutputFormat: format,
			Quality:      quality,
		},
		Output:    viper.GetString("output"),
		Workers:   viper.GetInt("workers"),
		UserAgent: viper.GetString("user-agent"),
		Timeout:   viper.GetDuration("fetch-timeout"),
		Logger:    logger,
	})

	return r.Run(cmd.Context(), args)
}
