package colony

import (
	"math"

	"antcolony.ai/internal/sim/mathx"
)

// FieldOptions configures concentration clamping and trail sensing.
type FieldOptions struct {
	Max float64

	// Directions is the number of evenly spaced rays scanned by StrongestDirection.
	Directions int
	// Threshold is the level a cell must exceed to count as a trail.
	Threshold float64
}

// PheromoneField is a two-channel concentration grid stored row-major (x + y*width).
// Cells are only mutated through Deposit, Mark, Decay, Diffuse and Clear.
type PheromoneField struct {
	width  int
	height int
	opts   FieldOptions

	cells   [2][]float64
	scratch []float64
}

func NewPheromoneField(width, height int, opts FieldOptions) *PheromoneField {
	if opts.Max == 0 {
		opts.Max = 5
	}
	if opts.Directions == 0 {
		opts.Directions = 16
	}
	n := width * height
	return &PheromoneField{
		width:   width,
		height:  height,
		opts:    opts,
		cells:   [2][]float64{make([]float64, n), make([]float64, n)},
		scratch: make([]float64, n),
	}
}

func (f *PheromoneField) Width() int   { return f.width }
func (f *PheromoneField) Height() int  { return f.height }
func (f *PheromoneField) Max() float64 { return f.opts.Max }

func (f *PheromoneField) cellIndex(cx, cy int) (int, bool) {
	if cx < 0 || cy < 0 || cx >= f.width || cy >= f.height {
		return 0, false
	}
	return cx + cy*f.width, true
}

func (f *PheromoneField) index(x, y float64) (int, bool) {
	if !mathx.IsFinite(x) || !mathx.IsFinite(y) {
		return 0, false
	}
	return f.cellIndex(mathx.Cell(x), mathx.Cell(y))
}

// Deposit adds amount to the cell containing (x, y), clamped to the field maximum.
// Coordinates outside the grid are ignored.
func (f *PheromoneField) Deposit(x, y, amount float64, ch Channel) {
	if !(amount > 0) || int(ch) >= len(f.cells) {
		return
	}
	i, ok := f.index(x, y)
	if !ok {
		return
	}
	v := f.cells[ch][i] + amount
	if v > f.opts.Max {
		v = f.opts.Max
	}
	f.cells[ch][i] = v
}

// Mark raises the cell containing (x, y) to at least level.
func (f *PheromoneField) Mark(x, y, level float64, ch Channel) {
	if !(level > 0) || int(ch) >= len(f.cells) {
		return
	}
	i, ok := f.index(x, y)
	if !ok {
		return
	}
	if level > f.opts.Max {
		level = f.opts.Max
	}
	if level > f.cells[ch][i] {
		f.cells[ch][i] = level
	}
}

// Decay evaporates every cell on both channels by rate.
func (f *PheromoneField) Decay(rate float64) {
	if rate <= 0 {
		return
	}
	keep := 1 - rate
	for ch := range f.cells {
		c := f.cells[ch]
		for i := range c {
			c[i] *= keep
		}
	}
}

// Diffuse blends each cell toward the mean of its in-grid 8-neighbourhood. Reads come
// from the current grid and writes go to a scratch grid that is swapped in afterwards.
func (f *PheromoneField) Diffuse(rate float64) {
	if rate <= 0 {
		return
	}
	for ch := range f.cells {
		cur := f.cells[ch]
		next := f.scratch
		for y := 0; y < f.height; y++ {
			for x := 0; x < f.width; x++ {
				sum := 0.0
				n := 0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						j, ok := f.cellIndex(x+dx, y+dy)
						if !ok {
							continue
						}
						sum += cur[j]
						n++
					}
				}
				i := x + y*f.width
				if n == 0 {
					next[i] = cur[i]
					continue
				}
				next[i] = (1-rate)*cur[i] + rate*(sum/float64(n))
			}
		}
		f.cells[ch], f.scratch = next, cur
	}
}

// Sample returns the concentration of the cell containing (x, y), or 0 outside the grid.
func (f *PheromoneField) Sample(x, y float64, ch Channel) float64 {
	if int(ch) >= len(f.cells) {
		return 0
	}
	i, ok := f.index(x, y)
	if !ok {
		return 0
	}
	return f.cells[ch][i]
}

// StrongestDirection scans Directions rays from (x, y) for steps 1..radius and returns the
// angle of the strongest cell above the threshold. Ties keep the first ray scanned.
//
// Only cells under a ray sample point are seen. With 16 rays and radius 3 a few cells
// inside the radius fall between rays (from (50,50): (52,49), (49,52), (47,49), (49,47));
// a trail there is invisible until diffusion spreads it onto a sampled cell.
func (f *PheromoneField) StrongestDirection(x, y float64, radius int, ch Channel) (angle, strength float64, ok bool) {
	best := f.opts.Threshold
	for i := 0; i < f.opts.Directions; i++ {
		a := mathx.TwoPi * float64(i) / float64(f.opts.Directions)
		cos, sin := math.Cos(a), math.Sin(a)
		for r := 1; r <= radius; r++ {
			v := f.Sample(x+float64(r)*cos, y+float64(r)*sin, ch)
			if v > best {
				best = v
				angle = a
				ok = true
			}
		}
	}
	if !ok {
		return 0, 0, false
	}
	return angle, best, true
}

func (f *PheromoneField) Clear() {
	for ch := range f.cells {
		c := f.cells[ch]
		for i := range c {
			c[i] = 0
		}
	}
}

// Values returns a copy of one channel.
func (f *PheromoneField) Values(ch Channel) []float64 {
	if int(ch) >= len(f.cells) {
		return nil
	}
	out := make([]float64, len(f.cells[ch]))
	copy(out, f.cells[ch])
	return out
}

// Total sums one channel.
func (f *PheromoneField) Total(ch Channel) float64 {
	if int(ch) >= len(f.cells) {
		return 0
	}
	sum := 0.0
	for _, v := range f.cells[ch] {
		sum += v
	}
	return sum
}
