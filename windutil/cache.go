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
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/windflow"
	"github.com/spatialmodel/windflow/internal/hash"
)

// A SimulationSpec holds the parameters that determine a velocity field.
// Two simulations with the same parameters produce the same field, so a
// SimulationSpec serves as the cache key.
type SimulationSpec struct {
	// MaskRows is the obstacle mask in row-major boolean form, where
	// true marks a solid cell.
	MaskRows [][]bool

	// WindSpeed [m/s] and WindDirection [degrees clockwise from North]
	// give the free-stream wind the field is computed for.
	WindSpeed     float64
	WindDirection float64

	// NumIterations is the fixed number of lattice passes to run.
	NumIterations int

	// RelaxationRate is the BGK collision relaxation rate ω.
	RelaxationRate float64

	// ConvergenceInterval is the number of iterations between
	// convergence samples; 0 switches the convergence history off.
	ConvergenceInterval int
}

// A FieldRequest asks for the velocity field described by Spec.
// Science specifies the physics steps to perform in each iteration;
// AddInit and AddRun specify functions beyond the default functions to
// run at initialization and runtime. Log and Converge optionally
// receive progress reports while the simulation runs; they see no
// traffic when the field comes out of the cache.
type FieldRequest struct {
	Spec     SimulationSpec
	Science  []windflow.DomainManipulator
	AddInit  []windflow.DomainManipulator
	AddRun   []windflow.DomainManipulator
	Log      chan *windflow.SimulationStatus
	Converge chan windflow.ConvergenceStatus
}

// A FieldResult is a computed velocity field together with the
// convergence history and wall time of the run that produced it.
type FieldResult struct {
	Field       *windflow.Field
	Convergence []float64
	RunTime     time.Duration
}

// A FieldCache computes velocity fields, caching the results so that
// repeated requests for the same simulation parameters only compute
// the field once.
type FieldCache struct {
	// Location is the directory where computed fields are persisted.
	// If it is empty, fields are only cached in memory.
	Location string

	// MemCacheSize is the maximum number of fields to hold in the
	// memory cache.
	MemCacheSize int

	Log logrus.FieldLogger

	cache     *requestcache.Cache
	cacheOnce sync.Once
}

// NewFieldCache creates a cache that persists computed fields to
// location, or only holds them in memory if location is empty.
func NewFieldCache(location string, memCacheSize int) *FieldCache {
	return &FieldCache{
		Location:     location,
		MemCacheSize: memCacheSize,
		Log:          logrus.StandardLogger(),
	}
}

// Simulate returns the velocity field described by req, either by
// running the simulation or by retrieving a previously computed result.
func (c *FieldCache) Simulate(ctx context.Context, req *FieldRequest) (*FieldResult, error) {
	c.cacheOnce.Do(func() {
		c.cache = loadCacheOnce(c.simulate, 1, c.MemCacheSize, c.Location,
			fieldMarshal, fieldUnmarshal)
	})
	key := "windflow_field_" + hash.Hash(req.Spec)
	c.Log.WithFields(logrus.Fields{
		"key": key,
	}).Info("windflow requesting velocity field")
	r := c.cache.NewRequest(ctx, req, key)
	iface, err := r.Result()
	if err != nil {
		c.Log.WithError(err).Errorf("computing velocity field")
		return nil, err
	}
	res := iface.(*FieldResult)
	c.Log.WithFields(logrus.Fields{
		"key":     key,
		"runtime": res.RunTime,
	}).Info("windflow finished velocity field")
	return res, nil
}

// simulate runs the lattice simulation described by a FieldRequest. It
// is the cache miss path of Simulate.
func (c *FieldCache) simulate(ctx context.Context, request interface{}) (resultPayload interface{}, err error) {
	req := request.(*FieldRequest)

	mask, err := windflow.MaskFromRows(req.Spec.MaskRows)
	if err != nil {
		return nil, err
	}
	wind, err := windflow.WindFromMS(req.Spec.WindSpeed, req.Spec.WindDirection)
	if err != nil {
		return nil, err
	}

	var runFuncs []windflow.DomainManipulator
	if req.Log != nil {
		runFuncs = append(runFuncs, windflow.Log(req.Log))
	}
	runFuncs = append(runFuncs, req.Science...)
	if req.Spec.ConvergenceInterval > 0 {
		runFuncs = append(runFuncs, windflow.ConvergenceSample(
			req.Spec.NumIterations, req.Spec.ConvergenceInterval, req.Converge))
	}
	runFuncs = append(runFuncs, req.AddRun...)
	runFuncs = append(runFuncs, windflow.FixedIterations(req.Spec.NumIterations))

	d := &windflow.WindFlow{
		InitFuncs: append([]windflow.DomainManipulator{
			windflow.Setup(mask, wind, req.Spec.NumIterations),
		}, req.AddInit...),
		RunFuncs: runFuncs,
		CleanupFuncs: []windflow.DomainManipulator{
			windflow.ScaleToPhysical(mask.Bounds()),
		},
	}

	if err := d.Init(); err != nil {
		return nil, fmt.Errorf("windflow: problem initializing model: %v", err)
	}
	if err := d.Run(); err != nil {
		return nil, fmt.Errorf("windflow: problem running simulation: %v", err)
	}
	if err := d.Cleanup(); err != nil {
		return nil, fmt.Errorf("windflow: problem scaling velocity field: %v", err)
	}
	return &FieldResult{
		Field:       d.Field(),
		Convergence: d.ConvergenceHistory(),
		RunTime:     d.RunTime(),
	}, nil
}

func loadCacheOnce(f requestcache.ProcessFunc, workers, memCacheSize int, cacheLoc string, marshal func(interface{}) ([]byte, error), unmarshal func([]byte) (interface{}, error)) *requestcache.Cache {
	if cacheLoc == "" {
		return requestcache.NewCache(f, workers, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize))
	}
	return requestcache.NewCache(f, workers, requestcache.Deduplicate(),
		requestcache.Memory(memCacheSize), requestcache.Disk(cacheLoc, marshal, unmarshal))
}

// cachedField is the wire form of a FieldResult. The obstacle mask
// travels as rows because its cells are not exported.
type cachedField struct {
	Ny, Nx      int
	Ux, Uy      *sparse.DenseArray
	MaskRows    [][]bool
	Bounds      *geom.Bounds
	Convergence []float64
	RunTime     time.Duration
}

// fieldMarshal converts a simulation result to a byte array for storing
// in a cache.
func fieldMarshal(data interface{}) ([]byte, error) {
	i := data.(*interface{})
	res := (*i).(*FieldResult)
	f := res.Field
	g := cachedField{
		Ny:          f.Ny,
		Nx:          f.Nx,
		Ux:          f.Ux,
		Uy:          f.Uy,
		Bounds:      f.Bounds,
		Convergence: res.Convergence,
		RunTime:     res.RunTime,
	}
	if f.Mask != nil {
		g.MaskRows = f.Mask.Rows()
	}
	w := bytes.NewBuffer(nil)
	e := gob.NewEncoder(w)
	if err := e.Encode(g); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// fieldUnmarshal converts a byte array back to a simulation result
// after retrieving it from a cache.
func fieldUnmarshal(b []byte) (interface{}, error) {
	var g cachedField
	d := gob.NewDecoder(bytes.NewBuffer(b))
	if err := d.Decode(&g); err != nil {
		return nil, err
	}
	f := &windflow.Field{Ny: g.Ny, Nx: g.Nx, Ux: g.Ux, Uy: g.Uy, Bounds: g.Bounds}
	// Restore the unexported array internals that gob drops.
	if f.Ux != nil {
		f.Ux.Fix()
	}
	if f.Uy != nil {
		f.Uy.Fix()
	}
	if g.MaskRows != nil {
		m, err := windflow.MaskFromRows(g.MaskRows)
		if err != nil {
			return nil, err
		}
		f.Mask = m
	}
	return &FieldResult{Field: f, Convergence: g.Convergence, RunTime: g.RunTime}, nil
}
