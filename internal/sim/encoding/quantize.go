package encoding

import "math"

// Quantize maps concentrations in [0, max] onto levels 0..levels-1 (rounded).
func Quantize(values []float64, max float64, levels int) []uint16 {
	if levels < 2 {
		levels = 2
	}
	if levels > 1<<16 {
		levels = 1 << 16
	}
	out := make([]uint16, len(values))
	if !(max > 0) {
		return out
	}
	top := float64(levels - 1)
	for i, v := range values {
		if !(v > 0) {
			continue
		}
		q := math.Round(v / max * top)
		if q > top {
			q = top
		}
		out[i] = uint16(q)
	}
	return out
}

// Dequantize is the inverse of Quantize up to rounding.
func Dequantize(levels []uint16, max float64, n int) []float64 {
	out := make([]float64, len(levels))
	if n < 2 {
		return out
	}
	top := float64(n - 1)
	for i, lv := range levels {
		out[i] = float64(lv) / top * max
	}
	return out
}
