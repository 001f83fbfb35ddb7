package windflow

import (
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// fieldGob is the wire form of a Field. The obstacle mask travels as
// rows because its cells are not exported.
type fieldGob struct {
	Ny, Nx   int
	Ux, Uy   *sparse.DenseArray
	MaskRows [][]bool
	Bounds   *geom.Bounds
}

// Save returns a function that saves the finished velocity field in d
// to a gob file (format description at https://golang.org/pkg/encoding/gob/).
func Save(w io.Writer) DomainManipulator {
	return func(d *WindFlow) error {
		f := d.Field()
		if f == nil {
			return fmt.Errorf("windflow.WindFlow.Save: no velocity field to save")
		}
		g := fieldGob{Ny: f.Ny, Nx: f.Nx, Ux: f.Ux, Uy: f.Uy, Bounds: f.Bounds}
		if f.Mask != nil {
			g.MaskRows = f.Mask.Rows()
		}
		e := gob.NewEncoder(w)

		if err := e.Encode(g); err != nil {
			return fmt.Errorf("windflow.WindFlow.Save: %v", err)
		}
		return nil
	}
}

// Load returns a function that loads the velocity field from a
// previously Saved file into a WindFlow object, making it available
// from Field without rerunning the simulation.
func Load(r io.Reader) DomainManipulator {
	return func(d *WindFlow) error {
		dec := gob.NewDecoder(r)
		var g fieldGob
		if err := dec.Decode(&g); err != nil {
			return fmt.Errorf("windflow.WindFlow.Load: %v", err)
		}
		f := &Field{Ny: g.Ny, Nx: g.Nx, Ux: g.Ux, Uy: g.Uy, Bounds: g.Bounds}
		// Restore the unexported array internals that gob drops.
		if f.Ux != nil {
			f.Ux.Fix()
		}
		if f.Uy != nil {
			f.Uy.Fix()
		}
		if g.MaskRows != nil {
			m, err := MaskFromRows(g.MaskRows)
			if err != nil {
				return fmt.Errorf("windflow.WindFlow.Load: %v", err)
			}
			f.Mask = m
		}
		d.field = f
		return nil
	}
}

// UseField returns a function that installs a previously computed
// velocity field into a WindFlow object, along with its convergence
// history and computation time, making it available from Field without
// rerunning the simulation.
func UseField(f *Field, convergence []float64, runTime time.Duration) DomainManipulator {
	return func(d *WindFlow) error {
		if f == nil {
			return fmt.Errorf("windflow.WindFlow.UseField: no velocity field to install")
		}
		d.field = f
		d.history = convergence
		d.runTime = runTime
		return nil
	}
}
