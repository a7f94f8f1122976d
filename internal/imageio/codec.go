package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kiesman99/pixelsort/pkg/pixelsort"
)

// MaxPixels bounds the size of images accepted by Decode.
const MaxPixels = 10000 * 10000

// DefaultQuality is the JPEG quality used when none is given.
const DefaultQuality = 90

// ErrTooLarge is returned for images with more than MaxPixels pixels.
var ErrTooLarge = errors.New("image too large")

// EncodeOptions tunes lossy encoders.
type EncodeOptions struct {
	// Quality is the JPEG quality in 1..100; 0 means DefaultQuality.
	Quality int
}

// Decode detects the image format and decodes data into an 8-bit NRGBA
// buffer. Sources with 16 bits per channel are narrowed to 8 bits.
func Decode(data []byte) (*image.NRGBA, Format, error) {
	if isRGBZ(data) {
		img, err := decodeRGBZ(data)
		return img, FormatRGBZ, err
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, FormatUnknown, ErrUnknownFormat
		}
		return nil, FormatUnknown, err
	}
	format, err := ParseFormat(name)
	if err != nil {
		return nil, FormatUnknown, err
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, err
	}

	img, err := pixelsort.FromImage(src)
	if errors.Is(err, pixelsort.ErrUnsupportedPixelFormat) {
		// Deep images are narrowed here; the engine only takes 8-bit buffers.
		img, err = imaging.Clone(src), nil
	}
	return img, format, err
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format, opts EncodeOptions) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		quality := opts.Quality
		if quality <= 0 {
			quality = DefaultQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: min(quality, 100)})
	case FormatGIF:
		return gif.Encode(w, img, &gif.Options{NumColors: 256})
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatRGBZ:
		return encodeRGBZ(w, img)
	}
	return fmt.Errorf("%w: cannot encode %s", ErrUnknownFormat, f)
}

// EncodeBytes encodes img into a new byte slice.
func EncodeBytes(img image.Image, f Format, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
