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

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// NDir is the number of discrete lattice directions in the D2Q9 scheme.
const NDir = 9

// D2Q9 velocity set. Direction 0 is the rest particle, directions 1–4
// are the cardinal directions, and directions 5–8 are the diagonals.
// bounce gives the opposite direction for solid-wall reflection.
var (
	dirX    = [NDir]int{0, 1, 0, -1, 0, 1, -1, -1, 1}
	dirY    = [NDir]int{0, 0, 1, 0, -1, 1, 1, -1, -1}
	weights = [NDir]float64{4. / 9., 1. / 9., 1. / 9., 1. / 9., 1. / 9.,
		1. / 36., 1. / 36., 1. / 36., 1. / 36.}
	bounce = [NDir]int{0, 3, 4, 1, 2, 7, 8, 5, 6}
)

// DefaultRhoFloor is the default density below which a cell's velocity is
// taken to be zero instead of dividing by a vanishing density. It is a
// numerical guard, not a physical constant; override Lattice.RhoFloor to
// tune it.
const DefaultRhoFloor = 1.e-12

// inletSpeed is the fixed lattice-unit speed applied at the inflow edge.
// The solver always runs at this subsonic reference speed for stability;
// results are rescaled to the physical wind speed after the final
// iteration.
const inletSpeed = 0.1

// restState is the population value every cell is initialized to.
const restState = 1.

// A Lattice holds the D2Q9 particle populations and the macroscopic
// fields derived from them. Populations are kept in two buffers: the live
// buffer owns the current state and the scratch buffer is the streaming
// target. Swap exchanges ownership of the two buffers in O(1); the
// contents of the scratch buffer are undefined between iterations.
type Lattice struct {
	Ny, Nx int

	// Rho, Ux, and Uy are the macroscopic density and velocity fields,
	// shape (Ny, Nx), in lattice units. They are recomputed from the
	// populations once per iteration.
	Rho *sparse.DenseArray `desc:"Macroscopic density" units:"lattice"`
	Ux  *sparse.DenseArray `desc:"Macroscopic x-velocity" units:"lattice"`
	Uy  *sparse.DenseArray `desc:"Macroscopic y-velocity" units:"lattice"`

	// RhoFloor is the density below which the velocity of a cell is set
	// to zero. Initialized to DefaultRhoFloor by NewLattice.
	RhoFloor float64

	live, scratch *sparse.DenseArray
	mask          *Mask
}

// NewLattice allocates a lattice matching the shape of mask and
// initializes every population to the uniform rest state. The mask must
// be at least 3×3: the open-boundary edge copies are undefined on
// anything smaller. The boundary rules assume flow can enter and leave
// at the domain edges, so the mask should leave them at least partly
// open.
func NewLattice(mask *Mask) (*Lattice, error) {
	if mask == nil {
		return nil, fmt.Errorf("windflow: lattice requires an obstacle mask")
	}
	ny, nx := mask.Ny, mask.Nx
	if ny < 3 || nx < 3 {
		return nil, fmt.Errorf("windflow: lattice must be at least 3×3 cells but is %d×%d", ny, nx)
	}
	if nx > (math.MaxInt32-1)/ny/NDir {
		return nil, fmt.Errorf("windflow: %d×%d lattice is too large to allocate", ny, nx)
	}
	l := &Lattice{
		Ny:       ny,
		Nx:       nx,
		Rho:      sparse.ZerosDense(ny, nx),
		Ux:       sparse.ZerosDense(ny, nx),
		Uy:       sparse.ZerosDense(ny, nx),
		RhoFloor: DefaultRhoFloor,
		live:     sparse.ZerosDense(ny, nx, NDir),
		scratch:  sparse.ZerosDense(ny, nx, NDir),
		mask:     mask,
	}
	l.Reset()
	return l, nil
}

// Reset returns the lattice to the uniform stationary state that every
// simulation starts from: all populations equal to one, macroscopic
// fields zeroed.
func (l *Lattice) Reset() {
	for n := range l.live.Elements {
		l.live.Elements[n] = restState
	}
	for n := range l.Rho.Elements {
		l.Rho.Elements[n] = 0
		l.Ux.Elements[n] = 0
		l.Uy.Elements[n] = 0
	}
}

// Swap exchanges the live and scratch population buffers. The caller must
// have fully populated the scratch buffer first; after the swap it owns
// the previous live buffer as undefined scratch space.
func (l *Lattice) Swap() {
	l.live, l.scratch = l.scratch, l.live
}

// NCells returns the number of cells in the lattice.
func (l *Lattice) NCells() int {
	return l.Ny * l.Nx
}

// Obstacle reports whether cell (j, i) is solid.
func (l *Lattice) Obstacle(j, i int) bool {
	return l.mask.Solid(j, i)
}

// Mask returns the obstacle mask the lattice was built around.
func (l *Lattice) Mask() *Mask {
	return l.mask
}

// popIndex returns the flat index of population k of cell (j, i),
// matching the row-major layout of the underlying DenseArray.
func (l *Lattice) popIndex(j, i, k int) int {
	if sparse.BoundsCheck {
		if j < 0 || j >= l.Ny || i < 0 || i >= l.Nx || k < 0 || k >= NDir {
			panic(fmt.Errorf("windflow: population index (%d,%d,%d) out of range (%d,%d,%d)",
				j, i, k, l.Ny, l.Nx, NDir))
		}
	}
	return (j*l.Nx+i)*NDir + k
}

// cellIndex returns the flat index of cell (j, i) within the macroscopic
// fields.
func (l *Lattice) cellIndex(j, i int) int {
	if sparse.BoundsCheck {
		if j < 0 || j >= l.Ny || i < 0 || i >= l.Nx {
			panic(fmt.Errorf("windflow: cell index (%d,%d) out of range (%d,%d)", j, i, l.Ny, l.Nx))
		}
	}
	return j*l.Nx + i
}

// Population returns population k of cell (j, i) in the live buffer.
func (l *Lattice) Population(k, j, i int) float64 {
	return l.live.Elements[l.popIndex(j, i, k)]
}

// SetPopulation sets population k of cell (j, i) in the live buffer.
func (l *Lattice) SetPopulation(val float64, k, j, i int) {
	l.live.Elements[l.popIndex(j, i, k)] = val
}

// Macro returns the macroscopic density and velocity of cell (j, i) as
// of the last macroscopic recompute.
func (l *Lattice) Macro(j, i int) (rho, ux, uy float64) {
	n := l.cellIndex(j, i)
	return l.Rho.Elements[n], l.Ux.Elements[n], l.Uy.Elements[n]
}

// TotalMass returns the sum of all populations over the whole lattice.
// Streaming and collision conserve it exactly up to floating-point
// rounding when no boundary rules interfere.
func (l *Lattice) TotalMass() float64 {
	return l.live.Sum()
}

// Equilibrium fills feq with the D2Q9 equilibrium populations for the
// given macroscopic density and velocity, following the standard
// second-order expansion feq_k = ρ w_k (1 + 3cu + 4.5cu² − 1.5u²).
func Equilibrium(rho, ux, uy float64, feq *[NDir]float64) {
	usq := ux*ux + uy*uy
	for k := 0; k < NDir; k++ {
		cu := ux*float64(dirX[k]) + uy*float64(dirY[k])
		feq[k] = rho * weights[k] * (1 + 3*cu + 4.5*cu*cu - 1.5*usq)
	}
}

// A Field is a finished velocity field in physical units (m/s). It is
// the part of a simulation that outlives the lattice: the driver fills
// it during cleanup and all result sampling reads from it.
type Field struct {
	Ny, Nx int

	Ux *sparse.DenseArray `desc:"Wind velocity, west to east" units:"m/s"`
	Uy *sparse.DenseArray `desc:"Wind velocity, reference-frame y" units:"m/s"`

	// Mask is the obstacle mask the field was computed around.
	Mask *Mask

	// Bounds optionally georeferences the grid extent for consumers
	// that overlay the field on maps. It is nil when the caller
	// supplied no georeference.
	Bounds *geom.Bounds
}

// Speed returns the velocity magnitude at cell (j, i).
func (f *Field) Speed(j, i int) float64 {
	n := j*f.Nx + i
	ux, uy := f.Ux.Elements[n], f.Uy.Elements[n]
	return math.Sqrt(ux*ux + uy*uy)
}

// Magnitude returns the velocity magnitude over the whole grid as a new
// array.
func (f *Field) Magnitude() *sparse.DenseArray {
	m := sparse.ZerosDense(f.Ny, f.Nx)
	for n := range m.Elements {
		ux, uy := f.Ux.Elements[n], f.Uy.Elements[n]
		m.Elements[n] = math.Sqrt(ux*ux + uy*uy)
	}
	return m
}

// Interp bilinearly interpolates the velocity at the continuous position
// (x, y), where cell (j, i) is centered at x=i, y=j. The second return
// is false when the position falls outside the interpolable interior.
func (f *Field) Interp(x, y float64) (vx, vy float64, ok bool) {
	if x < 0 || y < 0 || x >= float64(f.Nx-1) || y >= float64(f.Ny-1) {
		return 0, 0, false
	}
	i0, j0 := int(x), int(y)
	fx, fy := x-float64(i0), y-float64(j0)

	n00 := j0*f.Nx + i0
	n01 := n00 + 1
	n10 := n00 + f.Nx
	n11 := n10 + 1

	w00 := (1 - fx) * (1 - fy)
	w01 := fx * (1 - fy)
	w10 := (1 - fx) * fy
	w11 := fx * fy

	vx = w00*f.Ux.Elements[n00] + w01*f.Ux.Elements[n01] +
		w10*f.Ux.Elements[n10] + w11*f.Ux.Elements[n11]
	vy = w00*f.Uy.Elements[n00] + w01*f.Uy.Elements[n01] +
		w10*f.Uy.Elements[n10] + w11*f.Uy.Elements[n11]
	return vx, vy, true
}
