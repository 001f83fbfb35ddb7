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

// Package bgk contains the single-relaxation-time
// Bhatnagar-Gross-Krook collision operator for the D2Q9 lattice.
package bgk

import (
	"fmt"

	"github.com/spatialmodel/windflow"
)

// Mechanism is a BGK collision operator with a fixed relaxation rate.
type Mechanism struct {
	omega float64
}

// NewMechanism creates a collision operator with relaxation rate omega.
// Linear stability of the scheme requires 0 < omega < 2, exclusive on
// both ends; rates outside that interval are rejected.
func NewMechanism(omega float64) (Mechanism, error) {
	if !(omega > 0 && omega < 2) {
		return Mechanism{}, fmt.Errorf("bgk: relaxation rate must be within (0, 2) but is %g", omega)
	}
	return Mechanism{omega: omega}, nil
}

// Omega returns the relaxation rate.
func (m Mechanism) Omega() float64 {
	return m.omega
}

// Viscosity returns the kinematic lattice viscosity implied by the
// relaxation rate, ν = (2/ω − 1)/6 in lattice units.
func (m Mechanism) Viscosity() float64 {
	return (2/m.omega - 1) / 6
}

// Collision returns a function that relaxes the populations of a cell
// toward the local equilibrium for the cell's current macroscopic state.
// Cells with forced velocities (the inflow edge) relax toward the forced
// state, which is how momentum enters the domain.
func (m Mechanism) Collision() windflow.CellManipulator {
	omega := m.omega
	return func(l *windflow.Lattice, j, i int) {
		rho, ux, uy := l.Macro(j, i)
		var feq [windflow.NDir]float64
		windflow.Equilibrium(rho, ux, uy, &feq)
		for k := 0; k < windflow.NDir; k++ {
			f := l.Population(k, j, i)
			l.SetPopulation(f+omega*(feq[k]-f), k, j, i)
		}
	}
}
