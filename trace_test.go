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
	"reflect"
	"testing"
)

// uniformField is a 20×20 field moving uniformly in +x at unit speed.
func uniformField() *Field {
	return testField(20, 20,
		func(j, i int) float64 { return 1 },
		func(j, i int) float64 { return 0 })
}

// Test whether streamlines in a uniform flow are straight lines with
// evenly spaced points at the flow speed.
func TestStreamlines(t *testing.T) {
	f := uniformField()
	s := NewSampler()
	c := DefaultStreamlineConfig()

	lines, err := s.Streamlines(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) == 0 {
		t.Fatal("uniform flow should produce streamlines")
	}
	for _, line := range lines {
		if len(line) < minStreamlinePoints {
			t.Errorf("kept a line with only %d points", len(line))
		}
		if len(line) > c.MaxPoints {
			t.Errorf("line has %d points, cap is %d", len(line), c.MaxPoints)
		}
		for n, p := range line {
			if different(p.Speed, 1, testTolerance) {
				t.Errorf("point %d has speed %g, want 1", n, p.Speed)
			}
			if absDifferent(p.Y, line[0].Y, 1.e-3) {
				t.Errorf("line wanders from y=%g to y=%g", line[0].Y, p.Y)
			}
			if n > 0 && absDifferent(p.X-line[n-1].X, c.Step, 1.e-3) {
				t.Errorf("points %d and %d are %g apart, want %g", n-1, n, p.X-line[n-1].X, c.Step)
			}
		}
		g := line.LineString()
		if len(g) != len(line) {
			t.Errorf("geometry has %d points, line has %d", len(g), len(line))
		}
	}

	// The same configuration gives the same lines.
	again, err := s.Streamlines(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lines, again) {
		t.Error("repeated tracing should reproduce the same lines")
	}

	// A different seed places different lines.
	c.Seed = 2
	moved, err := s.Streamlines(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(lines, moved) {
		t.Error("a different seed should move the streamlines")
	}
}

// Test whether short lines are dropped: with a point cap below the
// minimum length no line survives.
func TestStreamlinesShort(t *testing.T) {
	f := uniformField()
	s := NewSampler()
	c := DefaultStreamlineConfig()
	c.MaxPoints = minStreamlinePoints - 1

	lines, err := s.Streamlines(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Errorf("want no lines but have %d", len(lines))
	}
}

// Test whether stagnant flow produces no streamlines.
func TestStreamlinesStagnant(t *testing.T) {
	f := testField(20, 20,
		func(j, i int) float64 { return 0 },
		func(j, i int) float64 { return 0 })
	s := NewSampler()
	lines, err := s.Streamlines(f, DefaultStreamlineConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Errorf("want no lines but have %d", len(lines))
	}
}

func TestStreamlineConfigCheck(t *testing.T) {
	base := DefaultStreamlineConfig()
	bad := []func(c *StreamlineConfig){
		func(c *StreamlineConfig) { c.N = -1 },
		func(c *StreamlineConfig) { c.MaxPoints = 0 },
		func(c *StreamlineConfig) { c.Step = 0 },
		func(c *StreamlineConfig) { c.Step = -0.5 },
		func(c *StreamlineConfig) { c.MinSpeed = -1 },
	}
	f := uniformField()
	s := NewSampler()
	for i, mod := range bad {
		c := base
		mod(&c)
		if _, err := s.Streamlines(f, c); err == nil {
			t.Errorf("test %d: should be an error", i)
		}
	}

	// Zero seeds is allowed and yields nothing.
	c := base
	c.N = 0
	lines, err := s.Streamlines(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Errorf("want no lines but have %d", len(lines))
	}
}

// Test whether noiseless particles follow the deterministic Euler path
// with consecutive ages.
func TestParticles(t *testing.T) {
	f := uniformField()
	s := NewSampler()
	c := DefaultParticleConfig()
	c.NoiseSigma = 0

	paths, err := s.Particles(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("uniform flow should produce particle paths")
	}
	for _, path := range paths {
		if len(path) < minParticlePoints {
			t.Errorf("kept a path with only %d points", len(path))
		}
		if len(path) > c.MaxSteps {
			t.Errorf("path has %d points, cap is %d", len(path), c.MaxSteps)
		}
		for n, p := range path {
			if p.Age != n {
				t.Errorf("point %d has age %d", n, p.Age)
			}
			if different(p.Vx, 1, testTolerance) || p.Vy != 0 {
				t.Errorf("point %d moves with (%g,%g), want (1,0)", n, p.Vx, p.Vy)
			}
			if n > 0 && absDifferent(p.X-path[n-1].X, c.Dt, 1.e-3) {
				t.Errorf("points %d and %d are %g apart, want %g", n-1, n, p.X-path[n-1].X, c.Dt)
			}
		}
		g := path.LineString()
		if len(g) != len(path) {
			t.Errorf("geometry has %d points, path has %d", len(g), len(path))
		}
	}
}

// Test whether noisy tracing is reproducible: each particle carries its
// own noise stream keyed to the configuration seed.
func TestParticlesNoise(t *testing.T) {
	f := uniformField()
	s := NewSampler()
	c := DefaultParticleConfig()

	a, err := s.Particles(f, c)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Particles(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("repeated tracing should reproduce the same paths")
	}

	// The noise visibly bends the paths.
	var bent bool
	for _, path := range a {
		for _, p := range path {
			if p.Vy != 0 {
				bent = true
			}
		}
	}
	if !bent {
		t.Error("noisy particles should deviate from the mean flow")
	}

	c.Seed = 7
	moved, err := s.Particles(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a, moved) {
		t.Error("a different seed should move the particles")
	}
}

// Test whether short paths are dropped: with a step cap below the
// minimum length no path survives.
func TestParticlesShort(t *testing.T) {
	f := uniformField()
	s := NewSampler()
	c := DefaultParticleConfig()
	c.NoiseSigma = 0
	c.MaxSteps = minParticlePoints - 1

	paths, err := s.Particles(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Errorf("want no paths but have %d", len(paths))
	}
}

func TestParticleConfigCheck(t *testing.T) {
	base := DefaultParticleConfig()
	bad := []func(c *ParticleConfig){
		func(c *ParticleConfig) { c.N = -1 },
		func(c *ParticleConfig) { c.MaxSteps = 0 },
		func(c *ParticleConfig) { c.Dt = 0 },
		func(c *ParticleConfig) { c.MinSpeed = -1 },
		func(c *ParticleConfig) { c.NoiseSigma = -0.1 },
	}
	f := uniformField()
	s := NewSampler()
	for i, mod := range bad {
		c := base
		mod(&c)
		if _, err := s.Particles(f, c); err == nil {
			t.Errorf("test %d: should be an error", i)
		}
	}
}
