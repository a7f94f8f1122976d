package pixelsort

import (
	"image/color"
	"math"
)

// Luminance is the selection metric: the integer mean of the three color
// channels. Alpha is ignored.
func Luminance(c color.NRGBA) uint8 {
	return uint8((uint32(c.R) + uint32(c.G) + uint32(c.B)) / 3)
}

// Metric returns the ranking value of c under mode. Hue is in degrees
// [0, 360), saturation and lightness in [0, 100], everything else in
// [0, 255]. Unknown modes rank by lightness.
func Metric(c color.NRGBA, mode SortMode) float32 {
	switch mode {
	case Average:
		return float32(Luminance(c))
	case Red:
		return float32(c.R)
	case Green:
		return float32(c.G)
	case Blue:
		return float32(c.B)
	case Hue:
		h, _, _ := HSL(c)
		return h
	case Saturation:
		_, s, _ := HSL(c)
		return s
	default:
		_, _, l := HSL(c)
		return l
	}
}

// HSL converts c to hue in degrees [0, 360) and saturation and lightness
// in [0, 100]. Gray pixels have hue and saturation 0.
func HSL(c color.NRGBA) (h, s, l float32) {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	cmax := max(r, g, b)
	cmin := min(r, g, b)
	delta := cmax - cmin

	light := (cmax + cmin) / 2
	if delta == 0 {
		return 0, 0, float32(light * 100)
	}

	var hue float64
	switch cmax {
	case r:
		hue = math.Mod((g-b)/delta, 6)
		if hue < 0 {
			hue += 6
		}
	case g:
		hue = (b-r)/delta + 2
	default:
		hue = (r-g)/delta + 4
	}
	hue *= 60
	if hue >= 360 {
		hue -= 360
	}

	var sat float64
	if light > 0 && light < 1 {
		sat = delta / (1 - math.Abs(2*light-1))
	}

	return float32(hue), float32(sat * 100), float32(light * 100)
}
