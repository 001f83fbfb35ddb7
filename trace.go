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
	"runtime"
	"sync"

	"github.com/ctessum/geom"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// minStreamlinePoints is the shortest streamline worth keeping.
	minStreamlinePoints = 5

	// minParticlePoints is the shortest particle path worth keeping.
	minParticlePoints = 3
)

// StreamlineConfig configures streamline tracing.
type StreamlineConfig struct {
	// N is the number of random seed points.
	N int
	// MaxPoints caps the number of points per line.
	MaxPoints int
	// Step is the Euler integration step in cell widths.
	Step float64
	// MinSpeed stops a line once the local speed drops below it [m/s].
	MinSpeed float64
	// Seed seeds the random placement of the starting points.
	Seed uint64
}

// DefaultStreamlineConfig returns the standard streamline tracing
// parameters.
func DefaultStreamlineConfig() StreamlineConfig {
	return StreamlineConfig{
		N:         20,
		MaxPoints: 200,
		Step:      0.5,
		MinSpeed:  1.e-3,
		Seed:      1,
	}
}

func (c StreamlineConfig) check() error {
	if c.N < 0 {
		return fmt.Errorf("windflow: streamline seed count must be ≥ 0 but is %d", c.N)
	}
	if c.MaxPoints < 1 {
		return fmt.Errorf("windflow: streamline point cap must be ≥ 1 but is %d", c.MaxPoints)
	}
	if !(c.Step > 0) {
		return fmt.Errorf("windflow: streamline step must be > 0 but is %g", c.Step)
	}
	if !(c.MinSpeed >= 0) {
		return fmt.Errorf("windflow: streamline speed threshold must be ≥ 0 but is %g", c.MinSpeed)
	}
	return nil
}

// ParticleConfig configures particle tracing.
type ParticleConfig struct {
	// N is the number of particles released.
	N int
	// MaxSteps caps the number of steps per particle.
	MaxSteps int
	// Dt is the time step each velocity is applied for.
	Dt float64
	// MinSpeed stops a particle once the local speed drops below it [m/s].
	MinSpeed float64
	// NoiseSigma is the standard deviation of the Gaussian velocity
	// perturbation applied at every step, modeling subgrid turbulence.
	NoiseSigma float64
	// Seed seeds the particle placement and the noise streams.
	Seed uint64
}

// DefaultParticleConfig returns the standard particle tracing
// parameters.
func DefaultParticleConfig() ParticleConfig {
	return ParticleConfig{
		N:          40,
		MaxSteps:   150,
		Dt:         0.5,
		MinSpeed:   1.e-3,
		NoiseSigma: 0.05,
		Seed:       1,
	}
}

func (c ParticleConfig) check() error {
	if c.N < 0 {
		return fmt.Errorf("windflow: particle count must be ≥ 0 but is %d", c.N)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("windflow: particle step cap must be ≥ 1 but is %d", c.MaxSteps)
	}
	if !(c.Dt > 0) {
		return fmt.Errorf("windflow: particle time step must be > 0 but is %g", c.Dt)
	}
	if !(c.MinSpeed >= 0) {
		return fmt.Errorf("windflow: particle speed threshold must be ≥ 0 but is %g", c.MinSpeed)
	}
	if !(c.NoiseSigma >= 0) {
		return fmt.Errorf("windflow: particle noise must be ≥ 0 but is %g", c.NoiseSigma)
	}
	return nil
}

// A StreamlinePoint is one point along a streamline, in grid
// coordinates.
type StreamlinePoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Speed float64 `json:"speed"`
}

// A Streamline is one path traced through the velocity field.
type Streamline []StreamlinePoint

// LineString returns the streamline as a geometry in grid coordinates.
func (s Streamline) LineString() geom.LineString {
	o := make(geom.LineString, len(s))
	for i, p := range s {
		o[i] = geom.Point{X: p.X, Y: p.Y}
	}
	return o
}

// A ParticlePoint is one recorded position of a traced particle. Age is
// the number of steps the particle had taken when the point was
// recorded, and Vx and Vy are the noise-perturbed velocity the particle
// moved on from here with.
type ParticlePoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Vx    float64 `json:"vx"`
	Vy    float64 `json:"vy"`
	Speed float64 `json:"speed"`
	Age   int     `json:"age"`
}

// A ParticlePath is the trajectory of one traced particle.
type ParticlePath []ParticlePoint

// LineString returns the particle trajectory as a geometry in grid
// coordinates.
func (p ParticlePath) LineString() geom.LineString {
	o := make(geom.LineString, len(p))
	for i, pt := range p {
		o[i] = geom.Point{X: pt.X, Y: pt.Y}
	}
	return o
}

// Streamlines traces streamlines through the velocity field from
// randomly placed seed points. Each step bilinearly interpolates the
// velocity at the current position and advances by velocity × step in a
// single Euler stage; a line ends when it leaves the grid, stalls below
// the speed threshold, or reaches the point cap. Lines shorter than 5
// points are dropped. Tracing is independent per seed and runs in
// parallel; the result only depends on the configuration.
func (s *Sampler) Streamlines(f *Field, c StreamlineConfig) ([]Streamline, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	seeds := randomSeeds(f, c.N, c.Seed)
	lines := make([]Streamline, len(seeds))

	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for n := pp; n < len(seeds); n += nprocs {
				lines[n] = s.traceStreamline(f, seeds[n], c)
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()

	o := make([]Streamline, 0, len(lines))
	for _, ln := range lines {
		if len(ln) >= minStreamlinePoints {
			o = append(o, ln)
		}
	}
	return o, nil
}

func (s *Sampler) traceStreamline(f *Field, seed geom.Point, c StreamlineConfig) Streamline {
	var line Streamline
	x, y := seed.X, seed.Y
	for len(line) < c.MaxPoints {
		vx, vy, ok := f.Interp(x, y)
		if !ok {
			break
		}
		speed := math.Hypot(vx, vy)
		if speed < c.MinSpeed {
			break
		}
		line = append(line, StreamlinePoint{
			X:     roundTo(x, s.Precision),
			Y:     roundTo(y, s.Precision),
			Speed: roundTo(speed, s.Precision),
		})
		x += vx * c.Step
		y += vy * c.Step
	}
	return line
}

// Particles releases virtual particles at random positions and traces
// them through the velocity field. Movement follows the streamline rule,
// except that the interpolated velocity is perturbed with independent
// Gaussian noise before each step and every recorded point carries the
// particle's age. Paths shorter than 3 points are dropped. Each particle
// carries its own noise stream, so the result does not depend on how the
// particles are divided among the processors.
func (s *Sampler) Particles(f *Field, c ParticleConfig) ([]ParticlePath, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	seeds := randomSeeds(f, c.N, c.Seed)
	paths := make([]ParticlePath, len(seeds))

	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for n := pp; n < len(seeds); n += nprocs {
				paths[n] = s.traceParticle(f, seeds[n], c, rand.NewSource(c.Seed+uint64(n)+1))
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()

	o := make([]ParticlePath, 0, len(paths))
	for _, p := range paths {
		if len(p) >= minParticlePoints {
			o = append(o, p)
		}
	}
	return o, nil
}

func (s *Sampler) traceParticle(f *Field, seed geom.Point, c ParticleConfig, src rand.Source) ParticlePath {
	noise := distuv.Normal{Mu: 0, Sigma: c.NoiseSigma, Src: src}
	var path ParticlePath
	x, y := seed.X, seed.Y
	for age := 0; age < c.MaxSteps; age++ {
		vx, vy, ok := f.Interp(x, y)
		if !ok {
			break
		}
		if math.Hypot(vx, vy) < c.MinSpeed {
			break
		}
		vx += noise.Rand()
		vy += noise.Rand()
		path = append(path, ParticlePoint{
			X:     roundTo(x, s.Precision),
			Y:     roundTo(y, s.Precision),
			Vx:    roundTo(vx, s.Precision),
			Vy:    roundTo(vy, s.Precision),
			Speed: roundTo(math.Hypot(vx, vy), s.Precision),
			Age:   age,
		})
		x += vx * c.Dt
		y += vy * c.Dt
	}
	return path
}

// randomSeeds draws n uniformly distributed starting points over the
// interpolable part of the field.
func randomSeeds(f *Field, n int, seed uint64) []geom.Point {
	rng := rand.New(rand.NewSource(seed))
	seeds := make([]geom.Point, n)
	for i := range seeds {
		seeds[i] = geom.Point{
			X: rng.Float64() * float64(f.Nx-1),
			Y: rng.Float64() * float64(f.Ny-1),
		}
	}
	return seeds
}
