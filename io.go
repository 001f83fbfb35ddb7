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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// outputModelVars lists the model variables that output expressions can
// reference. Each resolves to the whole-grid array of per-cell values in
// physical units.
var outputModelVars = []string{"ux", "uy", "magnitude"}

// An Outputter collects the artifacts of a finished simulation into a
// results document and writes it out.
//
// fileName contains the path where the JSON document will be saved.
//
// outputVariables maps the names of user-requested derived metrics to
// expressions that define how they are calculated from the model
// variables ux, uy, and magnitude, each of which evaluates to the
// whole-grid array of per-cell values. Expressions must reduce to a
// single number through the output functions.
//
// Functions are defined in the outputFunctions variable.
type Outputter struct {
	fileName        string
	sampler         *Sampler
	ambient         AmbientConditions
	outputVariables map[string]string
	modelVariables  []string
	outputFunctions map[string]govaluate.ExpressionFunction

	// CSVFileName optionally gives a path to also write the
	// vector-field sample to as CSV.
	CSVFileName string

	// Streamlines and Particles optionally enable tracing; the traced
	// paths are included in the results document.
	Streamlines *StreamlineConfig
	Particles   *ParticleConfig

	// Config records the simulation parameters in the results
	// document for downstream consumers.
	Config RunConfig

	results *Results
}

// RunConfig records the parameters a simulation was run with.
type RunConfig struct {
	MaxIterations  int     `json:"max_iterations"`
	RelaxationRate float64 `json:"relaxation_rate"`
	BufferSize     int     `json:"buffer_size"`
	VectorStride   int     `json:"vector_stride"`
	Precision      int     `json:"precision"`
}

// ResultsMetadata identifies a finished simulation run.
type ResultsMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Version   string    `json:"version"`
	// ComputationTime is the iteration-loop wall time in seconds.
	ComputationTime float64 `json:"computation_time"`
}

// GridProperties describes the simulation grid in the results document.
type GridProperties struct {
	Width         int          `json:"width"`
	Height        int          `json:"height"`
	Bounds        *geom.Bounds `json:"bounds,omitempty"`
	ObstacleCount int          `json:"obstacle_count"`
}

// Results is the complete document describing the outcome of one
// simulation.
type Results struct {
	Metadata           ResultsMetadata    `json:"metadata"`
	Configuration      RunConfig          `json:"configuration"`
	WeatherConditions  AmbientConditions  `json:"weather_conditions"`
	GridProperties     GridProperties     `json:"grid_properties"`
	FlowStatistics     *FlowStatistics    `json:"flow_statistics"`
	VectorField        []VectorSample     `json:"vector_field"`
	MagnitudeGrid      [][]float64        `json:"magnitude_grid"`
	Streamlines        []Streamline       `json:"streamlines,omitempty"`
	Particles          []ParticlePath     `json:"particles,omitempty"`
	ConvergenceHistory []float64          `json:"convergence_history,omitempty"`
	DerivedMetrics     map[string]float64 `json:"derived_metrics,omitempty"`
}

// NewOutputter initializes a new Outputter holder and adds a set of
// default output functions. Default functions include:
//
// 'sum(x)', 'mean(x)', 'min(x)', and 'max(x)', which reduce a model
// variable across all grid cells.
//
// 'count(x)' which gives the number of grid cells in a model variable.
//
// 'exp(x)' which applies the exponential function e^x to a number.
func NewOutputter(fileName string, sampler *Sampler, ambient AmbientConditions, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"sum": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("windflow: got %d arguments for function 'sum', but needs 1", len(arg))
			}
			return floats.Sum(arg[0].([]float64)), nil
		},
		"mean": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("windflow: got %d arguments for function 'mean', but needs 1", len(arg))
			}
			return stat.Mean(arg[0].([]float64), nil), nil
		},
		"min": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("windflow: got %d arguments for function 'min', but needs 1", len(arg))
			}
			return floats.Min(arg[0].([]float64)), nil
		},
		"max": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("windflow: got %d arguments for function 'max', but needs 1", len(arg))
			}
			return floats.Max(arg[0].([]float64)), nil
		},
		"count": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("windflow: got %d arguments for function 'count', but needs 1", len(arg))
			}
			return float64(len(arg[0].([]float64))), nil
		},
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("windflow: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			return math.Exp(arg[0].(float64)), nil
		},
	}

	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	o := Outputter{
		fileName:        fileName,
		sampler:         sampler,
		ambient:         ambient,
		outputVariables: outputVariables,
		outputFunctions: defaultOutputFuncs,
	}
	if o.sampler == nil {
		o.sampler = NewSampler()
	}

	err := o.checkExpressions()
	return &o, err
}

// removeDuplicates removes all duplicated strings from a slice,
// returning a slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]string)
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = val
		}
	}
	return result
}

// checkExpressions parses the output variable expressions and records
// the unique model variables they require.
func (o *Outputter) checkExpressions() error {
	o.modelVariables = make([]string, 0, len(o.outputVariables))
	for key, val := range o.outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(val, o.outputFunctions)
		if err != nil {
			return fmt.Errorf("windflow o.outputVariables: %v", err)
		}
		o.modelVariables = append(o.modelVariables, removeDuplicates(expression.Vars())...)
		if err := checkOutputName(key); err != nil {
			return err
		}
	}
	o.modelVariables = removeDuplicates(o.modelVariables)
	return nil
}

// checkModelVars checks whether the model variables required to
// calculate the user-requested output variables exist in the model.
func checkModelVars(g ...string) error {
	mapOutputOps := make(map[string]uint8)
	for _, n := range outputModelVars {
		mapOutputOps[n] = 0
	}
	for _, v := range g {
		if _, ok := mapOutputOps[v]; !ok {
			return fmt.Errorf("windflow: undefined variable name '%s'; valid names are %v", v, outputModelVars)
		}
	}
	return nil
}

// checkOutputName checks whether an output variable name works as a
// JSON object key and a CSV column header.
func checkOutputName(key string) error {
	ok, err := regexp.MatchString("^[A-Za-z]\\w*$", key)
	if err != nil {
		panic(err)
	}
	if !ok {
		return fmt.Errorf("windflow: output variable name '%s' includes unsupported characters", key)
	}
	return nil
}

// CheckOutputVars ensures the output variables can be calculated.
func (o *Outputter) CheckOutputVars() DomainManipulator {
	return func(d *WindFlow) error {
		return checkModelVars(o.modelVariables...)
	}
}

// Results returns the results document produced by Output, or nil
// before the simulation has finished.
func (o *Outputter) Results() *Results {
	return o.results
}

// Output returns a function that derives all requested artifacts from
// the finished velocity field, assembles the results document, and
// writes it to the output file, plus optionally the vector-field sample
// to a CSV file.
func (o *Outputter) Output() DomainManipulator {
	return func(d *WindFlow) error {
		f := d.Field()
		if f == nil {
			return fmt.Errorf("windflow: output requires a finished velocity field")
		}

		stats, err := o.sampler.Statistics(f)
		if err != nil {
			return err
		}
		vectorField, err := o.sampler.VectorField(f)
		if err != nil {
			return err
		}
		magnitude, err := o.sampler.MagnitudeGrid(f)
		if err != nil {
			return err
		}
		grid := make([][]float64, f.Ny)
		for j := range grid {
			grid[j] = magnitude.Elements[j*f.Nx : (j+1)*f.Nx]
		}

		obstacles := 0
		if f.Mask != nil {
			obstacles = f.Mask.Count()
		}

		results := &Results{
			Metadata: ResultsMetadata{
				Timestamp:       time.Now().UTC(),
				Module:          "wind_simulation",
				Version:         Version,
				ComputationTime: roundTo(d.RunTime().Seconds(), 2),
			},
			Configuration:     o.Config,
			WeatherConditions: o.ambient,
			GridProperties: GridProperties{
				Width:         f.Nx,
				Height:        f.Ny,
				Bounds:        f.Bounds,
				ObstacleCount: obstacles,
			},
			FlowStatistics:     stats,
			VectorField:        vectorField,
			MagnitudeGrid:      grid,
			ConvergenceHistory: d.ConvergenceHistory(),
		}

		if o.Streamlines != nil {
			results.Streamlines, err = o.sampler.Streamlines(f, *o.Streamlines)
			if err != nil {
				return err
			}
		}
		if o.Particles != nil {
			results.Particles, err = o.sampler.Particles(f, *o.Particles)
			if err != nil {
				return err
			}
		}

		if len(o.outputVariables) > 0 {
			results.DerivedMetrics, err = o.deriveMetrics(f)
			if err != nil {
				return err
			}
		}

		o.results = results

		if err := o.writeJSON(results); err != nil {
			return err
		}
		if o.CSVFileName != "" {
			if err := o.writeCSV(vectorField); err != nil {
				return err
			}
		}
		return nil
	}
}

// deriveMetrics evaluates the user-requested output expressions against
// the whole-grid model variable arrays.
func (o *Outputter) deriveMetrics(f *Field) (map[string]float64, error) {
	params := map[string]interface{}{
		"ux":        f.Ux.Elements,
		"uy":        f.Uy.Elements,
		"magnitude": f.Magnitude().Elements,
	}
	metrics := make(map[string]float64, len(o.outputVariables))
	for key, val := range o.outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(val, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("windflow o.outputVariables: %v", err)
		}
		result, err := expression.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("windflow: evaluating output variable '%s': %v", key, err)
		}
		v, ok := result.(float64)
		if !ok {
			return nil, fmt.Errorf("windflow: output variable '%s' evaluates to %T; must reduce to a number", key, result)
		}
		metrics[key] = roundTo(v, o.sampler.Precision)
	}
	return metrics, nil
}

func (o *Outputter) writeJSON(results *Results) error {
	w, err := os.Create(o.fileName)
	if err != nil {
		return fmt.Errorf("windflow: problem creating output file: %v", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		w.Close()
		return fmt.Errorf("windflow: problem writing output file: %v", err)
	}
	return w.Close()
}

func (o *Outputter) writeCSV(vectorField []VectorSample) error {
	w, err := os.Create(o.CSVFileName)
	if err != nil {
		return fmt.Errorf("windflow: problem creating CSV output file: %v", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y", "vx", "vy", "magnitude"}); err != nil {
		w.Close()
		return fmt.Errorf("windflow: problem writing CSV output file: %v", err)
	}
	for _, v := range vectorField {
		row := []string{
			strconv.Itoa(v.X),
			strconv.Itoa(v.Y),
			strconv.FormatFloat(v.Vx, 'g', -1, 64),
			strconv.FormatFloat(v.Vy, 'g', -1, 64),
			strconv.FormatFloat(v.Magnitude, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			w.Close()
			return fmt.Errorf("windflow: problem writing CSV output file: %v", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		w.Close()
		return fmt.Errorf("windflow: problem writing CSV output file: %v", err)
	}
	return w.Close()
}
