package imageio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/kiesman99/pixelsort/pkg/pixelsort"
)

// RGBZ is a lossless raw container for NRGBA buffers:
//
//	magic  "RGBZ"
//	width  uint32, big endian
//	height uint32, big endian
//	pixels zstd stream of width*height*4 bytes, row-major R,G,B,A
const rgbzMagic = "RGBZ"

const rgbzHeaderSize = len(rgbzMagic) + 8

func isRGBZ(data []byte) bool {
	return len(data) >= len(rgbzMagic) && string(data[:len(rgbzMagic)]) == rgbzMagic
}

func encodeRGBZ(w io.Writer, src image.Image) error {
	img, err := pixelsort.FromImage(src)
	if err != nil {
		return err
	}
	b := img.Rect

	var hdr [rgbzHeaderSize]byte
	copy(hdr[:], rgbzMagic)
	binary.BigEndian.PutUint32(hdr[4:], uint32(b.Dx()))
	binary.BigEndian.PutUint32(hdr[8:], uint32(b.Dy()))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := enc.Write(img.Pix[off : off+4*b.Dx()]); err != nil {
			enc.Close()
			return err
		}
	}
	return enc.Close()
}

func decodeRGBZ(data []byte) (*image.NRGBA, error) {
	if len(data) < rgbzHeaderSize {
		return nil, fmt.Errorf("rgbz: truncated header")
	}
	width := binary.BigEndian.Uint32(data[4:])
	height := binary.BigEndian.Uint32(data[8:])
	if uint64(width)*uint64(height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, width, height)
	}

	dec, err := zstd.NewReader(bytes.NewReader(data[rgbzHeaderSize:]), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	// The buffer grows with the decompressed data, so a header claiming a
	// large image costs nothing until the pixels actually arrive.
	want := int64(width) * int64(height) * 4
	var pix bytes.Buffer
	n, err := io.Copy(&pix, io.LimitReader(dec, want+1))
	if err != nil {
		return nil, fmt.Errorf("rgbz: reading pixels: %w", err)
	}
	if n < want {
		return nil, fmt.Errorf("rgbz: reading pixels: %w", io.ErrUnexpectedEOF)
	}
	if n > want {
		return nil, fmt.Errorf("rgbz: trailing pixel data")
	}

	img := &image.NRGBA{
		Pix:    pix.Bytes()[:want:want],
		Stride: 4 * int(width),
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}
	return img, nil
}
