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

// Package windflow is a steady-state model of near-ground wind flow
// around obstacles such as buildings and terrain. It solves the
// two-dimensional lattice-Boltzmann equations (D2Q9, BGK collision) on a
// regular grid, driven by a single ambient wind condition, and derives
// statistics, vector-field samples, streamlines, and particle traces
// from the resulting velocity field.
//
// The model runs at a fixed subsonic lattice speed and rescales the
// finished field to the physical wind speed, so a simulation is
// specified entirely by an obstacle mask, a wind condition, a relaxation
// rate, and an iteration count.
package windflow

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ctessum/geom"
)

// Version gives the model version.
const Version = "1.0.0"

// WindFlow holds the current state of a simulation. Simulations are
// assembled from composable manipulator functions: InitFuncs set up and
// validate the domain, RunFuncs are applied once per solver iteration
// until Done is set, and CleanupFuncs extract results after the last
// iteration.
type WindFlow struct {
	InitFuncs []DomainManipulator

	RunFuncs []DomainManipulator

	CleanupFuncs []DomainManipulator

	// Lattice is the simulation domain. It is created by the Setup
	// init function and discarded with the WindFlow value; only the
	// physical field produced during cleanup outlives it.
	Lattice *Lattice

	// Wind is the ambient wind condition driving the simulation.
	Wind WindCondition

	// Done specifies whether the simulation is finished.
	Done bool

	field   *Field
	history []float64
	runTime time.Duration
}

// A DomainManipulator is a function that operates on the simulation as a
// whole, for example by running a sweep over all cells, applying a
// boundary condition, or extracting results.
type DomainManipulator func(d *WindFlow) error

// A CellManipulator is a function that operates on a single lattice
// cell. Cell manipulators run in parallel across cells and must only
// write to the cell they are given.
type CellManipulator func(l *Lattice, j, i int)

// Init initializes the simulation by running InitFuncs in order.
func (d *WindFlow) Init() error {
	for _, f := range d.InitFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// Run applies RunFuncs in order, repeatedly, until Done is set.
func (d *WindFlow) Run() error {
	start := time.Now()
	defer func() { d.runTime = time.Since(start) }()
	for !d.Done {
		for _, f := range d.RunFuncs {
			if err := f(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cleanup finishes the simulation by running CleanupFuncs in order.
func (d *WindFlow) Cleanup() error {
	for _, f := range d.CleanupFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// Field returns the physical velocity field produced by ScaleToPhysical,
// or nil before cleanup has run.
func (d *WindFlow) Field() *Field {
	return d.field
}

// ConvergenceHistory returns the mean squared lattice velocity recorded
// by ConvergenceSample, one entry per iteration with zeros at
// iterations that were not sampled. It is nil when convergence tracking
// was not part of the simulation.
func (d *WindFlow) ConvergenceHistory() []float64 {
	return d.history
}

// RunTime returns the wall time the iteration loop took.
func (d *WindFlow) RunTime() time.Duration {
	return d.runTime
}

// Setup returns a function that creates the simulation lattice for the
// given obstacle mask and stores the wind condition, after validating
// all of the inputs. nIterations must match the iteration count given to
// FixedIterations; invalid parameters are rejected here, before any
// iteration runs.
func Setup(mask *Mask, wind WindCondition, nIterations int) DomainManipulator {
	return func(d *WindFlow) error {
		if nIterations < 1 {
			return fmt.Errorf("windflow: number of iterations must be ≥ 1 but is %d", nIterations)
		}
		if _, err := WindFromMS(wind.Speed, wind.Direction); err != nil {
			return err
		}
		l, err := NewLattice(mask)
		if err != nil {
			return err
		}
		d.Lattice = l
		d.Wind = wind
		d.Done = false
		d.field = nil
		d.history = nil
		return nil
	}
}

// Calculations returns a function that concurrently runs a series of
// calculations on all of the lattice cells. Each manipulator writes only
// to its own cell, so the cells are simply divided among the processors
// with no locking.
func Calculations(calculators ...CellManipulator) DomainManipulator {

	nprocs := runtime.GOMAXPROCS(0) // number of processors
	var wg sync.WaitGroup

	return func(d *WindFlow) error {
		l := d.Lattice
		ncells := l.NCells()
		wg.Add(nprocs)
		for pp := 0; pp < nprocs; pp++ {
			go func(pp int) {
				for n := pp; n < ncells; n += nprocs {
					j, i := n/l.Nx, n%l.Nx
					for _, f := range calculators {
						f(l, j, i)
					}
				}
				wg.Done()
			}(pp)
		}
		wg.Wait()
		return nil
	}
}

// FixedIterations returns a function that ends the simulation after
// exactly nIterations iterations have completed. There is no
// convergence-based early exit: convergence is only observed, never used
// to terminate.
func FixedIterations(nIterations int) DomainManipulator {

	iteration := 0

	return func(d *WindFlow) error {
		iteration++
		if iteration >= nIterations {
			d.Done = true
		}
		return nil
	}
}

// A SimulationStatus describes the progress of a running simulation.
type SimulationStatus struct {
	Iteration int
	Walltime  time.Duration
	DeltaWall time.Duration
}

func (s *SimulationStatus) String() string {
	return fmt.Sprintf("Iteration %-4d  walltime=%6.3gh  Δwalltime=%4.2gs",
		s.Iteration, s.Walltime.Hours(), s.DeltaWall.Seconds())
}

// Log returns a function that reports the status of the simulation to c
// once per iteration.
func Log(c chan *SimulationStatus) DomainManipulator {
	startTime := time.Now()
	timeStepTime := time.Now()

	iteration := 0

	return func(d *WindFlow) error {
		iteration++
		c <- &SimulationStatus{
			Iteration: iteration,
			Walltime:  time.Since(startTime),
			DeltaWall: time.Since(timeStepTime),
		}
		timeStepTime = time.Now()
		return nil
	}
}

// A ConvergenceStatus reports one sample of the convergence monitor.
type ConvergenceStatus struct {
	Iteration int
	// MeanSquareVelocity is the grid mean of ux²+uy² in lattice units.
	MeanSquareVelocity float64
	// Delta is the relative change since the previous sample.
	Delta float64
}

func (c ConvergenceStatus) String() string {
	return fmt.Sprintf("iteration %d: mean squared velocity = %.6g (Δ=%+3.2g%%)",
		c.Iteration, c.MeanSquareVelocity, c.Delta*100)
}

// ConvergenceSample returns a function that records the mean squared
// lattice velocity over the whole grid on every interval-th iteration
// (starting with the first) into a history of length nIterations, with
// zeros at unsampled iterations. The samples are purely observational
// and never feed back into the run. If c is non-nil, each sample is
// also reported on it.
func ConvergenceSample(nIterations, interval int, c chan ConvergenceStatus) DomainManipulator {

	iteration := 0
	oldSample := 0.

	return func(d *WindFlow) error {
		if d.history == nil {
			d.history = make([]float64, nIterations)
		}
		if iteration%interval == 0 && iteration < nIterations {
			l := d.Lattice
			var sum float64
			for n := range l.Ux.Elements {
				ux, uy := l.Ux.Elements[n], l.Uy.Elements[n]
				sum += ux*ux + uy*uy
			}
			sample := sum / float64(l.NCells())
			d.history[iteration] = sample

			if c != nil {
				delta := 0.
				if oldSample != 0 {
					delta = (sample - oldSample) / oldSample
				}
				c <- ConvergenceStatus{
					Iteration:          iteration,
					MeanSquareVelocity: sample,
					Delta:              delta,
				}
			}
			oldSample = sample
		}
		iteration++
		return nil
	}
}

// ScaleToPhysical returns a function that converts the finished lattice
// velocity field to physical units, multiplying by the ratio of the
// physical wind speed to the lattice inlet speed. bounds optionally
// georeferences the grid extent for downstream consumers and may be
// nil. The resulting field is available from Field.
func ScaleToPhysical(bounds *geom.Bounds) DomainManipulator {
	return func(d *WindFlow) error {
		l := d.Lattice
		if l == nil {
			return fmt.Errorf("windflow: scaling requires an initialized lattice")
		}
		scale := d.Wind.Scale()
		f := &Field{
			Ny:     l.Ny,
			Nx:     l.Nx,
			Ux:     l.Ux.Copy(),
			Uy:     l.Uy.Copy(),
			Mask:   l.mask,
			Bounds: bounds,
		}
		f.Ux.Scale(scale)
		f.Uy.Scale(scale)
		d.field = f
		return nil
	}
}
