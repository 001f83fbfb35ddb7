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
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/windflow"
	"github.com/spf13/cast"
)

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) map[string]string {
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		vars[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return vars
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="windflow_output.json")`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("windflow: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// checkCache prepares the velocity field cache specified by the
// configuration, creating the cache directory if it doesn't already
// exist.
func checkCache(cfg *viper.Viper) (*FieldCache, error) {
	loc := os.ExpandEnv(cfg.GetString("Cache"))
	if loc != "" {
		if err := os.MkdirAll(loc, os.ModePerm); err != nil {
			return nil, fmt.Errorf("windflow: preparing cache directory: %v", err)
		}
	}
	return NewFieldCache(loc, cfg.GetInt("MaxCacheEntries")), nil
}

// ambientFromConfig unmarshals a viper configuration for a weather
// observation, converting the wind speed to m/s if necessary.
func ambientFromConfig(cfg *viper.Viper) (windflow.AmbientConditions, error) {
	a := windflow.DefaultAmbient()
	a.WindSpeed = cfg.GetFloat64("Wind.Speed")
	a.WindDirection = cfg.GetFloat64("Wind.Direction")
	a.Temperature = cfg.GetFloat64("Wind.Temperature")
	a.Humidity = cfg.GetFloat64("Wind.Humidity")
	a.Source = os.ExpandEnv(cfg.GetString("Wind.Source"))

	switch units := os.ExpandEnv(cfg.GetString("Wind.Units")); units {
	case "m/s":
	case "km/h":
		w, err := windflow.WindFromKMH(a.WindSpeed, a.WindDirection)
		if err != nil {
			return a, err
		}
		a.WindSpeed = w.Speed
	default:
		return a, fmt.Errorf("the Wind.Units variable in the configuration file "+
			"needs to be set to either m/s or km/h, but is currently set to `%s`", units)
	}
	// Validate the wind fields before the simulation starts.
	if _, err := a.Wind(); err != nil {
		return a, err
	}
	return a, nil
}

// maskFromConfig builds the obstacle mask specified by the
// configuration: a Grid.Ny by Grid.Nx domain with the Grid.MaskFile
// geometry and the Grid.ObstacleFile synthetic shapes rasterized onto
// it.
func maskFromConfig(cfg *viper.Viper) (*windflow.Mask, error) {
	mask, err := windflow.NewMask(cfg.GetInt("Grid.Ny"), cfg.GetInt("Grid.Nx"))
	if err != nil {
		return nil, err
	}
	polys, err := parseMask(os.ExpandEnv(cfg.GetString("Grid.MaskFile")))
	if err != nil {
		return nil, err
	}
	shapes, err := parseObstacles(os.ExpandEnv(cfg.GetString("Grid.ObstacleFile")))
	if err != nil {
		return nil, err
	}
	polys = append(polys, shapes...)
	if len(polys) > 0 {
		mask.FillPolygons(polys...)
	}
	return mask, nil
}

// parseObstacles returns the synthetic obstacle polygons described by
// the given TOML shape file.
func parseObstacles(obstacleFile string) ([]geom.Polygonal, error) {
	if obstacleFile == "" {
		return nil, nil
	}
	f, err := os.Open(obstacleFile)
	if err != nil {
		return nil, fmt.Errorf("opening obstacle shape file: %v", err)
	}
	defer f.Close()
	return ReadObstacles(f)
}

// parseMask returns the obstacle polygons represented by the given
// GeoJSON file, in grid cell coordinates.
func parseMask(maskGeoJSONFile string) ([]geom.Polygonal, error) {
	if maskGeoJSONFile == "" {
		return nil, nil
	}
	f, err := os.Open(maskGeoJSONFile)
	if err != nil {
		return nil, fmt.Errorf("opening obstacle mask file: %v", err)
	}
	defer f.Close()
	b, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading obstacle mask file: %v", err)
	}
	j, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding Grid.MaskFile: %v", err)
	}
	switch msk := j.(type) {
	case geom.Polygon:
		return []geom.Polygonal{msk}, nil
	case geom.MultiPolygon:
		polys := make([]geom.Polygonal, len(msk))
		for i, p := range msk {
			polys[i] = p
		}
		return polys, nil
	default:
		return nil, fmt.Errorf("invalid obstacle mask geometry type %T", j)
	}
}

// samplerFromConfig unmarshals a viper configuration for an artifact
// sampler.
func samplerFromConfig(cfg *viper.Viper) *windflow.Sampler {
	s := windflow.NewSampler()
	s.Buffer = cfg.GetInt("BufferSize")
	s.Stride = cfg.GetInt("VectorStride")
	s.Precision = cfg.GetInt("OutputPrecision")
	s.Vorticity = cfg.GetBool("Vorticity")
	return s
}

// streamlineConfig unmarshals a viper configuration for streamline
// tracing. It returns nil if streamline tracing is switched off.
func streamlineConfig(cfg *viper.Viper) *windflow.StreamlineConfig {
	if !cfg.GetBool("TraceStreamlines") {
		return nil
	}
	c := windflow.DefaultStreamlineConfig()
	c.N = cfg.GetInt("Streamlines.Number")
	c.MaxPoints = cfg.GetInt("Streamlines.MaxPoints")
	c.Step = cfg.GetFloat64("Streamlines.Step")
	c.MinSpeed = cfg.GetFloat64("Streamlines.MinSpeed")
	c.Seed = uint64(cfg.GetInt("RandomSeed"))
	return &c
}

// particleConfig unmarshals a viper configuration for particle tracing.
// It returns nil if particle tracing is switched off.
func particleConfig(cfg *viper.Viper) *windflow.ParticleConfig {
	if !cfg.GetBool("TraceParticles") {
		return nil
	}
	c := windflow.DefaultParticleConfig()
	c.N = cfg.GetInt("Particles.Number")
	c.MaxSteps = cfg.GetInt("Particles.MaxSteps")
	c.Dt = cfg.GetFloat64("Particles.Dt")
	c.MinSpeed = cfg.GetFloat64("Particles.MinSpeed")
	c.NoiseSigma = cfg.GetFloat64("Particles.NoiseSigma")
	c.Seed = uint64(cfg.GetInt("RandomSeed"))
	return &c
}

// convergenceInterval returns the number of iterations between
// convergence samples, or 0 if convergence tracking is switched off.
func convergenceInterval(cfg *viper.Viper) int {
	if !cfg.GetBool("TrackConvergence") {
		return 0
	}
	return cfg.GetInt("Convergence.Interval")
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for getStringMapString variable %s: %#v", varName, i))
	}
}
