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

// Streaming returns a function that propagates the populations one cell
// along their lattice directions, with toroidal wrap at the domain
// edges. The wrap is a transport artifact only; the outflow boundaries
// overwrite the edges immediately afterwards.
func Streaming() DomainManipulator {

	stream := Calculations(streamCell)

	return func(d *WindFlow) error {
		if err := stream(d); err != nil {
			return err
		}
		d.Lattice.Swap()
		return nil
	}
}

// streamCell gathers the populations arriving at cell (j, i) into the
// scratch buffer. Each population comes from the neighbor one step
// upstream along its own direction.
func streamCell(l *Lattice, j, i int) {
	for k := 0; k < NDir; k++ {
		jj := j - dirY[k]
		if jj < 0 {
			jj += l.Ny
		} else if jj >= l.Ny {
			jj -= l.Ny
		}
		ii := i - dirX[k]
		if ii < 0 {
			ii += l.Nx
		} else if ii >= l.Nx {
			ii -= l.Nx
		}
		l.scratch.Elements[l.popIndex(j, i, k)] = l.live.Elements[l.popIndex(jj, ii, k)]
	}
}

// BounceBack returns a function that applies no-slip boundaries at the
// obstacle cells: every moving population in a solid cell is replaced by
// the population traveling in the opposite direction, so whatever
// streamed in leaves the way it came on the next step. The rest
// population is untouched.
func BounceBack() DomainManipulator {
	return Calculations(bounceCell)
}

func bounceCell(l *Lattice, j, i int) {
	if !l.Obstacle(j, i) {
		return
	}
	var f [NDir]float64
	for k := 1; k < NDir; k++ {
		f[k] = l.live.Elements[l.popIndex(j, i, k)]
	}
	// All pairs reverse simultaneously from the same pre-reflection state.
	for k := 1; k < NDir; k++ {
		l.live.Elements[l.popIndex(j, i, k)] = f[bounce[k]]
	}
}

// Outflow returns a function that applies zero-gradient boundaries at
// the domain edges by copying each edge cell's populations from its
// interior neighbor. The two boundary rows are set first and the two
// boundary columns after that, so the corner cells end up following the
// column rule.
func Outflow() DomainManipulator {
	return func(d *WindFlow) error {
		l := d.Lattice
		for i := 0; i < l.Nx; i++ {
			for k := 0; k < NDir; k++ {
				l.live.Elements[l.popIndex(0, i, k)] = l.live.Elements[l.popIndex(1, i, k)]
				l.live.Elements[l.popIndex(l.Ny-1, i, k)] = l.live.Elements[l.popIndex(l.Ny-2, i, k)]
			}
		}
		for j := 0; j < l.Ny; j++ {
			for k := 0; k < NDir; k++ {
				l.live.Elements[l.popIndex(j, 0, k)] = l.live.Elements[l.popIndex(j, 1, k)]
				l.live.Elements[l.popIndex(j, l.Nx-1, k)] = l.live.Elements[l.popIndex(j, l.Nx-2, k)]
			}
		}
		return nil
	}
}

// Macroscopic returns a function that recomputes the macroscopic
// density and velocity of every cell from its populations. Cells whose
// density has decayed below the lattice density floor get zero velocity
// instead of an ill-conditioned quotient.
func Macroscopic() DomainManipulator {
	return Calculations(macroCell)
}

func macroCell(l *Lattice, j, i int) {
	var rho, ux, uy float64
	for k := 0; k < NDir; k++ {
		f := l.live.Elements[l.popIndex(j, i, k)]
		rho += f
		ux += f * float64(dirX[k])
		uy += f * float64(dirY[k])
	}
	n := l.cellIndex(j, i)
	l.Rho.Elements[n] = rho
	if rho <= l.RhoFloor {
		l.Ux.Elements[n] = 0
		l.Uy.Elements[n] = 0
		return
	}
	l.Ux.Elements[n] = ux / rho
	l.Uy.Elements[n] = uy / rho
}

// Inflow returns a function that forces the lattice inlet velocity on
// the upwind edge of the domain, selected from the wind direction. Only
// the velocity fields are overwritten; the populations relax toward the
// forced velocity through the collision step.
func Inflow() DomainManipulator {
	return func(d *WindFlow) error {
		l := d.Lattice
		u0, v0 := d.Wind.Inlet()
		switch d.Wind.InflowEdge() {
		case EdgeTop:
			for i := 0; i < l.Nx; i++ {
				n := l.cellIndex(0, i)
				l.Ux.Elements[n] = u0
				l.Uy.Elements[n] = v0
			}
		case EdgeRight:
			for j := 0; j < l.Ny; j++ {
				n := l.cellIndex(j, l.Nx-1)
				l.Ux.Elements[n] = u0
				l.Uy.Elements[n] = v0
			}
		case EdgeBottom:
			for i := 0; i < l.Nx; i++ {
				n := l.cellIndex(l.Ny-1, i)
				l.Ux.Elements[n] = u0
				l.Uy.Elements[n] = v0
			}
		default:
			for j := 0; j < l.Ny; j++ {
				n := l.cellIndex(j, 0)
				l.Ux.Elements[n] = u0
				l.Uy.Elements[n] = v0
			}
		}
		return nil
	}
}
