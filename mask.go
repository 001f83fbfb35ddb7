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

	"github.com/ctessum/geom"
)

// A Mask marks the solid cells of the simulation domain. It is supplied
// by the caller (typically rasterized from building or terrain data
// upstream of this package) and must not change while a simulation is
// running. The inflow and outflow boundary rules assume at least one
// open cell on each domain edge.
type Mask struct {
	Ny, Nx int
	solid  []bool
}

// NewMask returns an all-open mask with the given shape.
func NewMask(ny, nx int) (*Mask, error) {
	if ny < 1 || nx < 1 {
		return nil, fmt.Errorf("windflow: mask shape must be positive but is %d×%d", ny, nx)
	}
	return &Mask{Ny: ny, Nx: nx, solid: make([]bool, ny*nx)}, nil
}

// MaskFromRows builds a mask from row-major boolean rows, where true
// marks a solid cell. All rows must have the same length.
func MaskFromRows(rows [][]bool) (*Mask, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("windflow: mask rows are empty")
	}
	m, err := NewMask(len(rows), len(rows[0]))
	if err != nil {
		return nil, err
	}
	for j, row := range rows {
		if len(row) != m.Nx {
			return nil, fmt.Errorf("windflow: mask row %d has %d cells; expected %d", j, len(row), m.Nx)
		}
		copy(m.solid[j*m.Nx:(j+1)*m.Nx], row)
	}
	return m, nil
}

// Solid reports whether cell (j, i) is solid.
func (m *Mask) Solid(j, i int) bool {
	return m.solid[j*m.Nx+i]
}

// SetSolid marks cell (j, i) solid or open.
func (m *Mask) SetSolid(j, i int, s bool) {
	m.solid[j*m.Nx+i] = s
}

// Count returns the number of solid cells.
func (m *Mask) Count() int {
	var n int
	for _, s := range m.solid {
		if s {
			n++
		}
	}
	return n
}

// Rows returns the mask as row-major boolean rows.
func (m *Mask) Rows() [][]bool {
	rows := make([][]bool, m.Ny)
	for j := range rows {
		rows[j] = make([]bool, m.Nx)
		copy(rows[j], m.solid[j*m.Nx:(j+1)*m.Nx])
	}
	return rows
}

// FillPolygons marks as solid every cell whose center lies inside (or on
// the edge of) one of the given polygons. Cell (j, i) is centered at the
// point (x, y) = (i, j), matching the coordinate convention of
// Field.Interp. Cells already solid stay solid.
func (m *Mask) FillPolygons(polys ...geom.Polygonal) {
	for j := 0; j < m.Ny; j++ {
		for i := 0; i < m.Nx; i++ {
			if m.solid[j*m.Nx+i] {
				continue
			}
			p := geom.Point{X: float64(i), Y: float64(j)}
			for _, poly := range polys {
				if p.Within(poly) != geom.Outside {
					m.solid[j*m.Nx+i] = true
					break
				}
			}
		}
	}
}

// Bounds returns the extent of the mask in cell-center coordinates.
func (m *Mask) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	b.Extend(geom.Point{X: 0, Y: 0}.Bounds())
	b.Extend(geom.Point{X: float64(m.Nx - 1), Y: float64(m.Ny - 1)}.Bounds())
	return b
}
