/*
Copyright © 2025 the WindFlow authors.
This file is part of WindFlow.

WindFlow is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WindFlow is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WindFlow.  If not, see <http://www.gnu.org/licenses/>.
*/

package windflow

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Default sampling parameters.
const (
	// DefaultBuffer is the default width in cells of the border zone
	// that flow statistics exclude, discounting inlet and outlet edge
	// artifacts.
	DefaultBuffer = 10

	// DefaultStride is the default vector-field sampling stride.
	DefaultStride = 5

	// DefaultPrecision is the default number of decimal places in
	// sampled output.
	DefaultPrecision = 4
)

// A Sampler derives reporting artifacts from a finished velocity field:
// summary statistics, a strided vector-field sample, and the full speed
// grid.
type Sampler struct {
	// Buffer is the width in cells of the border zone excluded from
	// flow statistics. When the buffer swallows the whole grid the
	// statistics fall back to covering the full grid instead.
	Buffer int

	// Stride is the vector-field sampling interval in cells, applied
	// to both rows and columns.
	Stride int

	// Precision is the number of decimal places that sampled values
	// are rounded to.
	Precision int

	// Vorticity specifies whether flow statistics should include the
	// mean absolute vorticity and the turbulence intensity.
	Vorticity bool
}

// NewSampler creates a Sampler with the default buffer, stride, and
// precision.
func NewSampler() *Sampler {
	return &Sampler{
		Buffer:    DefaultBuffer,
		Stride:    DefaultStride,
		Precision: DefaultPrecision,
	}
}

func (s *Sampler) check() error {
	if s.Buffer < 0 {
		return fmt.Errorf("windflow: statistics buffer must be ≥ 0 but is %d", s.Buffer)
	}
	if s.Stride < 1 {
		return fmt.Errorf("windflow: vector-field stride must be ≥ 1 but is %d", s.Stride)
	}
	if s.Precision < 0 {
		return fmt.Errorf("windflow: output precision must be ≥ 0 but is %d", s.Precision)
	}
	return nil
}

// FlowStatistics summarizes the speed distribution over the interior of
// a velocity field. MeanVorticity and TurbulenceIntensity are only
// present when the sampler was asked for them.
type FlowStatistics struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	P5     float64 `json:"p5"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`

	MeanVorticity       *float64 `json:"mean_vorticity,omitempty"`
	TurbulenceIntensity *float64 `json:"turbulence_intensity,omitempty"`
}

// Statistics calculates summary statistics of the wind speed over the
// grid interior, excluding the sampler's border buffer on all four
// sides. The standard deviation is the population standard deviation and
// the quantiles are linearly interpolated.
func (s *Sampler) Statistics(f *Field) (*FlowStatistics, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	core := s.coreMagnitudes(f)
	if len(core) == 0 {
		return nil, fmt.Errorf("windflow: cannot calculate statistics of an empty %d×%d field", f.Ny, f.Nx)
	}

	mean := stat.Mean(core, nil)
	std := math.Sqrt(stat.MomentAbout(2, core, mean, nil))

	sorted := make([]float64, len(core))
	copy(sorted, core)
	sort.Float64s(sorted)

	o := &FlowStatistics{
		Min:    roundTo(floats.Min(core), s.Precision),
		Max:    roundTo(floats.Max(core), s.Precision),
		Mean:   roundTo(mean, s.Precision),
		Std:    roundTo(std, s.Precision),
		Median: roundTo(stat.Quantile(0.5, stat.LinInterp, sorted, nil), s.Precision),
		P5:     roundTo(stat.Quantile(0.05, stat.LinInterp, sorted, nil), s.Precision),
		P25:    roundTo(stat.Quantile(0.25, stat.LinInterp, sorted, nil), s.Precision),
		P75:    roundTo(stat.Quantile(0.75, stat.LinInterp, sorted, nil), s.Precision),
		P95:    roundTo(stat.Quantile(0.95, stat.LinInterp, sorted, nil), s.Precision),
	}

	if s.Vorticity {
		mv := roundTo(meanAbsVorticity(f), s.Precision)
		ti := 0.
		if mean != 0 {
			ti = std / mean
		}
		ti = roundTo(ti, s.Precision)
		o.MeanVorticity = &mv
		o.TurbulenceIntensity = &ti
	}
	return o, nil
}

// coreMagnitudes collects the wind speed of every cell outside the
// border buffer, falling back to the whole grid when the buffer leaves
// no interior. Obstacle cells are included; their near-zero speeds are
// part of the flow picture.
func (s *Sampler) coreMagnitudes(f *Field) []float64 {
	j0, j1 := s.Buffer, f.Ny-s.Buffer
	i0, i1 := s.Buffer, f.Nx-s.Buffer
	if j1-j0 < 1 || i1-i0 < 1 {
		j0, j1 = 0, f.Ny
		i0, i1 = 0, f.Nx
	}
	core := make([]float64, 0, (j1-j0)*(i1-i0))
	for j := j0; j < j1; j++ {
		for i := i0; i < i1; i++ {
			core = append(core, f.Speed(j, i))
		}
	}
	return core
}

// meanAbsVorticity calculates the grid mean of the absolute vorticity
// ∂uy/∂x − ∂ux/∂y using centered differences over the interior cells.
func meanAbsVorticity(f *Field) float64 {
	if f.Ny < 3 || f.Nx < 3 {
		return 0
	}
	var sum float64
	for j := 1; j < f.Ny-1; j++ {
		for i := 1; i < f.Nx-1; i++ {
			dvydx := (f.Uy.Get(j, i+1) - f.Uy.Get(j, i-1)) / 2
			dvxdy := (f.Ux.Get(j+1, i) - f.Ux.Get(j-1, i)) / 2
			sum += math.Abs(dvydx - dvxdy)
		}
	}
	return sum / float64((f.Ny-2)*(f.Nx-2))
}

// A VectorSample is one point of the strided vector-field sample. X and
// Y are the column and row of the sampled cell.
type VectorSample struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Vx        float64 `json:"vx"`
	Vy        float64 `json:"vy"`
	Magnitude float64 `json:"magnitude"`
}

// VectorField samples the velocity field on the sampler's stride in
// both directions, skipping obstacle cells. The samples are rounded to
// the sampler's precision.
func (s *Sampler) VectorField(f *Field) ([]VectorSample, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var o []VectorSample
	for j := 0; j < f.Ny; j += s.Stride {
		for i := 0; i < f.Nx; i += s.Stride {
			if f.Mask != nil && f.Mask.Solid(j, i) {
				continue
			}
			o = append(o, VectorSample{
				X:         i,
				Y:         j,
				Vx:        roundTo(f.Ux.Get(j, i), s.Precision),
				Vy:        roundTo(f.Uy.Get(j, i), s.Precision),
				Magnitude: roundTo(f.Speed(j, i), s.Precision),
			})
		}
	}
	return o, nil
}

// MagnitudeGrid returns the wind speed of every cell, rounded to the
// sampler's precision.
func (s *Sampler) MagnitudeGrid(f *Field) (*sparse.DenseArray, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	m := f.Magnitude()
	for n, v := range m.Elements {
		m.Elements[n] = roundTo(v, s.Precision)
	}
	return m, nil
}

// roundTo rounds v to the given number of decimal places, matching the
// half-away-from-zero rounding of the exported artifacts.
func roundTo(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
