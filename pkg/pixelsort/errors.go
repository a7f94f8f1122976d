package pixelsort

import "errors"

var (
	// ErrInvalidThreshold is returned when the threshold minimum exceeds the maximum.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrUnsupportedPixelFormat is returned for buffers that are not usable
	// as 8-bit-per-channel RGBA.
	ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")

	// ErrInvalidSortMode is returned for unknown sort mode names or values.
	ErrInvalidSortMode = errors.New("invalid sort mode")
)
