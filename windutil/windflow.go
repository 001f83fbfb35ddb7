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

// Package windutil provides a command-line interface and utility
// functions for the WindFlow model.
package windutil

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/spatialmodel/windflow"
	"github.com/spatialmodel/windflow/science/collision/bgk"
	"github.com/spf13/cobra"
)

// DefaultScienceFuncs returns the physics steps that are run in order
// in each iteration of a typical simulation, where omega is the BGK
// collision relaxation rate.
func DefaultScienceFuncs(omega float64) ([]windflow.DomainManipulator, error) {
	mech, err := bgk.NewMechanism(omega)
	if err != nil {
		return nil, err
	}
	return []windflow.DomainManipulator{
		windflow.Streaming(),
		windflow.BounceBack(),
		windflow.Outflow(),
		windflow.Macroscopic(),
		windflow.Inflow(),
		windflow.Calculations(mech.Collision()),
	}, nil
}

// Run runs the model.
//
// CobraCommand is the cobra.Command instance where Run is called from.
//
// LogFile is the path to the desired logfile location. It can include
// environment variables.
//
// OutputFile is the path to the desired JSON results file location.
//
// CSVFile is the path where the sampled vector field should additionally
// be written in CSV form; no CSV file is written if it is empty.
//
// SaveFile is the path where the computed velocity field should be saved
// in gob form for later reuse; the field is not saved if it is empty.
//
// OutputVariables maps the names of derived metrics to be included in the
// results document to expressions defining how they are calculated.
//
// ambient gives the weather observation the simulation is run for. Its
// wind fields set the inflow; the rest is carried through to the results
// document.
//
// mask marks the solid cells of the simulation domain.
//
// NumIterations is the number of lattice iterations to run, and
// RelaxationRate is the BGK relaxation rate the science functions were
// built with; both are recorded in the results document.
//
// sampler configures the statistics, vector field, and magnitude grid
// artifacts. streamlines and particles optionally enable tracing when
// they are non-nil.
//
// convergenceInterval is the number of iterations between convergence
// samples; 0 switches convergence tracking off.
//
// cache holds previously computed velocity fields. If it is nil, a
// memory-only cache is used.
//
// scienceFuncs specifies the physics steps to perform in each iteration.
// addInit, addRun, and addCleanup specify functions beyond the default
// functions to run at initialization, runtime, and cleanup, respectively.
func Run(CobraCommand *cobra.Command, LogFile, OutputFile, CSVFile, SaveFile string,
	OutputVariables map[string]string, ambient windflow.AmbientConditions,
	mask *windflow.Mask, NumIterations int, RelaxationRate float64,
	sampler *windflow.Sampler, streamlines *windflow.StreamlineConfig,
	particles *windflow.ParticleConfig, convergenceInterval int, cache *FieldCache,
	scienceFuncs, addInit, addRun, addCleanup []windflow.DomainManipulator) error {

	startTime := time.Now()

	// Start a function to receive and print log messages.
	logfile, err := os.Create(LogFile)
	if err != nil {
		return fmt.Errorf("windflow: problem creating log file: %v", err)
	}
	mw := io.MultiWriter(CobraCommand.OutOrStdout(), logfile)
	log.SetOutput(mw)
	cConverge := make(chan windflow.ConvergenceStatus)
	cLog := make(chan *windflow.SimulationStatus)
	cLogTick := time.Tick(2 * time.Second)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		for msg := range cConverge {
			log.Println(msg.String())
		}
		wg.Done()
	}()
	go func() {
		for msg := range cLog {
			select {
			case <-cLogTick:
				log.Println(msg.String())
			default:
				runtime.Gosched()
			}
		}
		wg.Done()
	}()

	defer func() { // Wait for the logging to finish.
		close(cConverge)
		close(cLog)
		wg.Wait()
		logfile.Close()
	}()

	o, err := windflow.NewOutputter(OutputFile, sampler, ambient, OutputVariables, nil)
	if err != nil {
		return err
	}
	log.Println("Parsing output variable expressions...")
	o.CSVFileName = CSVFile
	o.Streamlines = streamlines
	o.Particles = particles
	o.Config = windflow.RunConfig{
		MaxIterations:  NumIterations,
		RelaxationRate: RelaxationRate,
		BufferSize:     sampler.Buffer,
		VectorStride:   sampler.Stride,
		Precision:      sampler.Precision,
	}

	wind, err := ambient.Wind()
	if err != nil {
		return err
	}

	cleanupFuncs := []windflow.DomainManipulator{o.Output()}
	if SaveFile != "" {
		w, err := os.Create(SaveFile)
		if err != nil {
			return fmt.Errorf("windflow: problem creating save file: %v", err)
		}
		defer w.Close()
		cleanupFuncs = append(cleanupFuncs, windflow.Save(w))
	}
	d := &windflow.WindFlow{
		InitFuncs:    []windflow.DomainManipulator{o.CheckOutputVars()},
		CleanupFuncs: append(cleanupFuncs, addCleanup...),
	}

	log.Println("Initializing model...")
	if err = d.Init(); err != nil {
		return fmt.Errorf("windflow: problem initializing model: %v", err)
	}

	log.Printf("Simulating a %d×%d grid with %d obstacle cells.", mask.Ny, mask.Nx, mask.Count())
	log.Printf("Inflow: %g m/s from %g° (%v edge).", wind.Speed, wind.Direction, wind.InflowEdge())

	if cache == nil {
		cache = NewFieldCache("", 1)
	}
	res, err := cache.Simulate(context.TODO(), &FieldRequest{
		Spec: SimulationSpec{
			MaskRows:            mask.Rows(),
			WindSpeed:           wind.Speed,
			WindDirection:       wind.Direction,
			NumIterations:       NumIterations,
			RelaxationRate:      RelaxationRate,
			ConvergenceInterval: convergenceInterval,
		},
		Science:  scienceFuncs,
		AddInit:  addInit,
		AddRun:   addRun,
		Log:      cLog,
		Converge: cConverge,
	})
	if err != nil {
		return err
	}
	if err = windflow.UseField(res.Field, res.Convergence, res.RunTime)(d); err != nil {
		return err
	}

	if err = d.Cleanup(); err != nil {
		return fmt.Errorf("windflow: problem shutting down model: %v", err)
	}

	elapsedTime := time.Since(startTime)
	log.Printf("Elapsed time: %g seconds", elapsedTime.Seconds())

	return nil
}
