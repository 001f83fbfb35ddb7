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

package windutil

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
	"github.com/lnashier/viper"
)

func TestCheckOutputVars(t *testing.T) {
	os.Setenv("WINDFLOW_TEST_EXPR", "magnitude")
	defer os.Unsetenv("WINDFLOW_TEST_EXPR")
	vars := checkOutputVars(map[string]string{
		"PeakSpeed": "max(\r\nmagnitude)",
		"MeanUx":    "mean(\nux)",
		"Env":       "mean(${WINDFLOW_TEST_EXPR})",
	})
	want := map[string]string{
		"PeakSpeed": "max( magnitude)",
		"MeanUx":    "mean( ux)",
		"Env":       "mean(magnitude)",
	}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("%v != %v", vars, want)
	}
}

func TestCheckOutputFile(t *testing.T) {
	if _, err := checkOutputFile(""); err == nil {
		t.Error("an empty output file name should be an error")
	}
	if _, err := checkOutputFile("no_such_dir/out.json"); err == nil {
		t.Error("a missing output directory should be an error")
	}
	f, err := checkOutputFile("windflow_output.json")
	if err != nil {
		t.Fatal(err)
	}
	if f != "windflow_output.json" {
		t.Errorf("%s != windflow_output.json", f)
	}
}

func TestCheckLogFile(t *testing.T) {
	tests := []struct {
		logFile, outputFile, want string
	}{
		{"", "windflow_output.json", "windflow_output.log"},
		{"", "out/result.json", "out/result.log"},
		{"", "result", "result.log"},
		{"custom.log", "windflow_output.json", "custom.log"},
	}
	for _, test := range tests {
		if f := checkLogFile(test.logFile, test.outputFile); f != test.want {
			t.Errorf("checkLogFile(%q, %q) = %q, want %q",
				test.logFile, test.outputFile, f, test.want)
		}
	}
}

func TestAmbientFromConfig(t *testing.T) {
	cfg := viper.New()
	cfg.Set("Wind.Speed", 36.0)
	cfg.Set("Wind.Direction", 90.0)
	cfg.Set("Wind.Temperature", 15.0)
	cfg.Set("Wind.Humidity", 70.0)
	cfg.Set("Wind.Source", "tower-3")
	cfg.Set("Wind.Units", "km/h")
	a, err := ambientFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(a.WindSpeed-10) > 1.e-9 {
		t.Errorf("36 km/h is %g m/s, want 10", a.WindSpeed)
	}
	if a.WindDirection != 90 {
		t.Errorf("direction: %g != 90", a.WindDirection)
	}
	if a.Temperature != 15 || a.Humidity != 70 || a.Source != "tower-3" {
		t.Errorf("unexpected observation %+v", a)
	}

	cfg.Set("Wind.Units", "m/s")
	cfg.Set("Wind.Speed", 5.0)
	a, err = ambientFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if a.WindSpeed != 5 {
		t.Errorf("m/s speed shouldn't be converted: %g != 5", a.WindSpeed)
	}

	errTests := []struct {
		name       string
		units      string
		speed, dir float64
	}{
		{name: "no units", units: "", speed: 5, dir: 90},
		{name: "bad units", units: "knots", speed: 5, dir: 90},
		{name: "negative speed", units: "m/s", speed: -1, dir: 90},
		{name: "bad direction", units: "m/s", speed: 5, dir: 360},
	}
	for _, test := range errTests {
		t.Run(test.name, func(t *testing.T) {
			cfg := viper.New()
			cfg.Set("Wind.Units", test.units)
			cfg.Set("Wind.Speed", test.speed)
			cfg.Set("Wind.Direction", test.dir)
			if _, err := ambientFromConfig(cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestMaskFromConfig(t *testing.T) {
	cfg := viper.New()
	cfg.Set("Grid.Ny", 8)
	cfg.Set("Grid.Nx", 10)
	mask, err := maskFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if mask.Ny != 8 || mask.Nx != 10 {
		t.Fatalf("mask shape: %d×%d != 8×10", mask.Ny, mask.Nx)
	}
	if n := mask.Count(); n != 0 {
		t.Errorf("an empty configuration should give an open mask; %d cells are solid", n)
	}

	f, err := os.Create("tmp_obstacles.toml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove("tmp_obstacles.toml")
	fmt.Fprint(f, "[[Rectangles]]\nX0 = 1.5\nY0 = 1.5\nX1 = 3.5\nY1 = 3.5\n")
	f.Close()
	cfg.Set("Grid.ObstacleFile", "tmp_obstacles.toml")
	mask, err = maskFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n := mask.Count(); n != 4 {
		t.Errorf("obstacle file: %d solid cells != 4", n)
	}

	f, err = os.Create("tmp_mask.json")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove("tmp_mask.json")
	fmt.Fprint(f, `{"type": "Polygon","coordinates": [ [ [5.5, 0.5], [7.5, 0.5], [7.5, 2.5], [5.5, 2.5], [5.5, 0.5] ] ] }`)
	f.Close()
	cfg.Set("Grid.MaskFile", "tmp_mask.json")
	mask, err = maskFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n := mask.Count(); n != 8 {
		t.Errorf("mask and obstacle files: %d solid cells != 8", n)
	}
	for _, cell := range [][2]int{{2, 2}, {2, 3}, {3, 2}, {3, 3}, {1, 6}, {1, 7}, {2, 6}, {2, 7}} {
		if !mask.Solid(cell[0], cell[1]) {
			t.Errorf("cell (%d, %d) should be solid", cell[0], cell[1])
		}
	}

	cfg.Set("Grid.MaskFile", "no_such_mask.json")
	if _, err := maskFromConfig(cfg); err == nil {
		t.Error("a missing mask file should be an error")
	}

	cfg = viper.New()
	cfg.Set("Grid.Ny", 0)
	cfg.Set("Grid.Nx", 10)
	if _, err := maskFromConfig(cfg); err == nil {
		t.Error("a zero-height grid should be an error")
	}
}

func TestParseMask(t *testing.T) {
	t.Run("polygon", func(t *testing.T) {
		f, err := os.Create("tmp_mask.json")
		if err != nil {
			t.Fatal(err)
		}
		defer os.Remove("tmp_mask.json")
		fmt.Fprint(f, `{"type": "Polygon","coordinates": [ [ [1, 1], [4, 1], [4, 3], [1, 3], [1, 1] ] ] }`)
		mask, err := parseMask("tmp_mask.json")
		if err != nil {
			t.Fatal(err)
		}
		want := []geom.Polygonal{geom.Polygon{geom.Path{
			geom.Point{X: 1, Y: 1}, geom.Point{X: 4, Y: 1},
			geom.Point{X: 4, Y: 3}, geom.Point{X: 1, Y: 3},
			geom.Point{X: 1, Y: 1},
		}}}
		if !reflect.DeepEqual(mask, want) {
			t.Errorf("%v != %v", mask, want)
		}
	})
	t.Run("multipolygon", func(t *testing.T) {
		f, err := os.Create("tmp_mask.json")
		if err != nil {
			t.Fatal(err)
		}
		defer os.Remove("tmp_mask.json")
		fmt.Fprint(f, `{"type": "MultiPolygon","coordinates": [ [ [ [1, 1], [2, 1], [2, 2], [1, 1] ] ], [ [ [5, 5], [6, 5], [6, 6], [5, 5] ] ] ] }`)
		mask, err := parseMask("tmp_mask.json")
		if err != nil {
			t.Fatal(err)
		}
		want := []geom.Polygonal{
			geom.Polygon{geom.Path{
				geom.Point{X: 1, Y: 1}, geom.Point{X: 2, Y: 1},
				geom.Point{X: 2, Y: 2}, geom.Point{X: 1, Y: 1},
			}},
			geom.Polygon{geom.Path{
				geom.Point{X: 5, Y: 5}, geom.Point{X: 6, Y: 5},
				geom.Point{X: 6, Y: 6}, geom.Point{X: 5, Y: 5},
			}},
		}
		if !reflect.DeepEqual(mask, want) {
			t.Errorf("%v != %v", mask, want)
		}
	})
	t.Run("invalid geometry", func(t *testing.T) {
		f, err := os.Create("tmp_mask.json")
		if err != nil {
			t.Fatal(err)
		}
		defer os.Remove("tmp_mask.json")
		fmt.Fprint(f, `{"type": "Point","coordinates": [1, 1] }`)
		if _, err := parseMask("tmp_mask.json"); err == nil {
			t.Error("a point mask should be an error")
		}
	})
	t.Run("missing file", func(t *testing.T) {
		if _, err := parseMask("no_such_mask.json"); err == nil {
			t.Error("a missing mask file should be an error")
		}
	})
	t.Run("unset", func(t *testing.T) {
		mask, err := parseMask("")
		if err != nil {
			t.Fatal(err)
		}
		if mask != nil {
			t.Errorf("an unset mask file should give a nil mask, not %v", mask)
		}
	})
}

func TestParseObstacles(t *testing.T) {
	o, err := parseObstacles("")
	if err != nil {
		t.Fatal(err)
	}
	if o != nil {
		t.Errorf("an unset obstacle file should give nil shapes, not %v", o)
	}
	if _, err := parseObstacles("no_such_obstacles.toml"); err == nil {
		t.Error("a missing obstacle file should be an error")
	}
}

func TestSamplerFromConfig(t *testing.T) {
	cfg := viper.New()
	cfg.Set("BufferSize", 7)
	cfg.Set("VectorStride", 3)
	cfg.Set("OutputPrecision", 6)
	cfg.Set("Vorticity", true)
	s := samplerFromConfig(cfg)
	if s.Buffer != 7 || s.Stride != 3 || s.Precision != 6 || !s.Vorticity {
		t.Errorf("unexpected sampler %+v", s)
	}
}

func TestTraceConfigs(t *testing.T) {
	cfg := viper.New()
	if c := streamlineConfig(cfg); c != nil {
		t.Errorf("streamline tracing should default to off, got %+v", c)
	}
	if c := particleConfig(cfg); c != nil {
		t.Errorf("particle tracing should default to off, got %+v", c)
	}

	cfg.Set("TraceStreamlines", true)
	cfg.Set("Streamlines.Number", 5)
	cfg.Set("Streamlines.MaxPoints", 99)
	cfg.Set("Streamlines.Step", 0.25)
	cfg.Set("Streamlines.MinSpeed", 0.01)
	cfg.Set("RandomSeed", 42)
	c := streamlineConfig(cfg)
	if c == nil {
		t.Fatal("expected a streamline configuration")
	}
	if c.N != 5 || c.MaxPoints != 99 || c.Step != 0.25 || c.MinSpeed != 0.01 || c.Seed != 42 {
		t.Errorf("unexpected streamline configuration %+v", c)
	}

	cfg.Set("TraceParticles", true)
	cfg.Set("Particles.Number", 6)
	cfg.Set("Particles.MaxSteps", 77)
	cfg.Set("Particles.Dt", 0.125)
	cfg.Set("Particles.MinSpeed", 0.02)
	cfg.Set("Particles.NoiseSigma", 0.3)
	p := particleConfig(cfg)
	if p == nil {
		t.Fatal("expected a particle configuration")
	}
	if p.N != 6 || p.MaxSteps != 77 || p.Dt != 0.125 || p.MinSpeed != 0.02 ||
		p.NoiseSigma != 0.3 || p.Seed != 42 {
		t.Errorf("unexpected particle configuration %+v", p)
	}
}

func TestConvergenceInterval(t *testing.T) {
	cfg := viper.New()
	cfg.Set("Convergence.Interval", 25)
	if n := convergenceInterval(cfg); n != 0 {
		t.Errorf("convergence tracking should default to off, got interval %d", n)
	}
	cfg.Set("TrackConvergence", true)
	if n := convergenceInterval(cfg); n != 25 {
		t.Errorf("interval: %d != 25", n)
	}
}

func TestGetStringMapString(t *testing.T) {
	cfg := viper.New()
	cfg.Set("OutputVariables", map[string]string{"peak": "max(magnitude)"})
	got := GetStringMapString("OutputVariables", cfg)
	want := map[string]string{"peak": "max(magnitude)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%v != %v", got, want)
	}

	// Command-line arguments arrive JSON-encoded.
	cfg.Set("OutputVariables", `{"PeakSpeed": "max(magnitude)", "MeanUx": "mean(ux)"}`)
	got = GetStringMapString("OutputVariables", cfg)
	want = map[string]string{"PeakSpeed": "max(magnitude)", "MeanUx": "mean(ux)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%v != %v", got, want)
	}

	cfg.Set("OutputVariables", map[string]interface{}{"peak": "max(magnitude)"})
	got = GetStringMapString("OutputVariables", cfg)
	want = map[string]string{"peak": "max(magnitude)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%v != %v", got, want)
	}
}

func TestCheckCache(t *testing.T) {
	cfg := viper.New()
	cfg.Set("Cache", "")
	cfg.Set("MaxCacheEntries", 4)
	c, err := checkCache(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("expected a memory-only cache")
	}

	cfg.Set("Cache", "tmp_cache")
	defer os.RemoveAll("tmp_cache")
	if _, err := checkCache(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat("tmp_cache"); err != nil {
		t.Errorf("the cache directory wasn't created: %v", err)
	}
}
