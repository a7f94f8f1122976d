// Package pixelsort reorders pixels inside contiguous runs of a raster
// image. A run (span) is a maximal stretch of a row whose luminance lies in
// an inclusive threshold band; pixels inside a span are stably sorted by a
// selectable ranking metric, everything else stays where it is.
package pixelsort

import (
	"fmt"
	"strings"
)

// SortMode selects the ranking metric used to order pixels within a span.
type SortMode int

// Sort modes
const (
	Average SortMode = iota
	Red
	Green
	Blue
	Hue
	Saturation
	Lightness
)

var sortModeNames = [...]string{
	Average:    "average",
	Red:        "red",
	Green:      "green",
	Blue:       "blue",
	Hue:        "hue",
	Saturation: "saturation",
	Lightness:  "lightness",
}

func (m SortMode) String() string {
	if m < 0 || int(m) >= len(sortModeNames) {
		return fmt.Sprintf("SortMode(%d)", int(m))
	}
	return sortModeNames[m]
}

// Valid reports whether m is one of the defined sort modes.
func (m SortMode) Valid() bool {
	return m >= Average && m <= Lightness
}

// ParseSortMode converts a case-insensitive mode name into a SortMode.
// "luminance" is accepted as an alias for Average.
func ParseSortMode(s string) (SortMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "luminance" {
		return Average, nil
	}
	for i, n := range sortModeNames {
		if n == name {
			return SortMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSortMode, s)
}

// SortModes returns all sort modes in declaration order.
func SortModes() []SortMode {
	modes := make([]SortMode, len(sortModeNames))
	for i := range modes {
		modes[i] = SortMode(i)
	}
	return modes
}

// Threshold is an inclusive [Min, Max] band over the selection metric.
type Threshold struct {
	Min, Max uint8
}

// Validate fails with ErrInvalidThreshold when Min > Max.
func (t Threshold) Validate() error {
	if t.Min > t.Max {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidThreshold, t.Min, t.Max)
	}
	return nil
}

// Contains reports whether v lies within the band, both ends included.
func (t Threshold) Contains(v uint8) bool {
	return v >= t.Min && v <= t.Max
}

// Settings is the configuration consumed by one transform. It must not be
// modified while a transform is running.
type Settings struct {
	// Vertical sorts columns instead of rows.
	Vertical bool
	Threshold Threshold
	Mode      SortMode
	// Invert sorts descending.
	Invert bool
	// ShowThresholds makes Apply render the black/white threshold preview
	// instead of sorting.
	ShowThresholds bool
}

// DefaultSettings returns the settings a fresh session starts with.
func DefaultSettings() Settings {
	return Settings{
		Threshold: Threshold{Min: 127, Max: 223},
		Mode:      Lightness,
	}
}

// Validate checks the settings before any pixel is touched.
func (s Settings) Validate() error {
	if err := s.Threshold.Validate(); err != nil {
		return err
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSortMode, int(s.Mode))
	}
	return nil
}
