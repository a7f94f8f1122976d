package pixelsort

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// FromImage returns src as an 8-bit NRGBA buffer. An *image.NRGBA is
// returned as is after a structural check; other 8-bit images are copied
// into a new buffer with the same bounds. Sources with 16 bits per channel
// are rejected rather than silently narrowed.
func FromImage(src image.Image) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil image", ErrUnsupportedPixelFormat)
	}

	if img, ok := src.(*image.NRGBA); ok {
		if err := checkBuffer(img); err != nil {
			return nil, err
		}
		return img, nil
	}

	switch src.ColorModel() {
	case color.NRGBA64Model, color.RGBA64Model, color.Gray16Model, color.Alpha16Model:
		return nil, fmt.Errorf("%w: %T has 16 bits per channel", ErrUnsupportedPixelFormat, src)
	}

	b := src.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst, nil
}

// checkBuffer verifies that img's pixel slice covers its bounds.
func checkBuffer(img *image.NRGBA) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrUnsupportedPixelFormat)
	}
	r := img.Rect
	if r.Empty() {
		return nil
	}
	if img.Stride < 4*r.Dx() {
		return fmt.Errorf("%w: stride %d too small for width %d", ErrUnsupportedPixelFormat, img.Stride, r.Dx())
	}
	end := (r.Dy()-1)*img.Stride + 4*r.Dx()
	if len(img.Pix) < end {
		return fmt.Errorf("%w: %d bytes of pixel data for %dx%d image", ErrUnsupportedPixelFormat, len(img.Pix), r.Dx(), r.Dy())
	}
	return nil
}

// splitRows partitions img into one slice per row. The slices are capped
// at the row end so that no two of them alias the same bytes.
func splitRows(img *image.NRGBA) [][]uint8 {
	r := img.Rect
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	rows := make([][]uint8, h)
	for y := range h {
		off := y * img.Stride
		rows[y] = img.Pix[off : off+4*w : off+4*w]
	}
	return rows
}

// cloneImage copies img into a new tightly packed buffer with the same
// bounds.
func cloneImage(img *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(img.Rect)
	w := 4 * img.Rect.Dx()
	for y, row := range splitRows(img) {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], row)
	}
	return dst
}
