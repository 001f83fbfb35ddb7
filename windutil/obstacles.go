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
	"fmt"
	"io"
	"math"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
)

// defaultCircleSegments is the polygon resolution circles are
// rasterized at when the shape doesn't specify one.
const defaultCircleSegments = 24

// A Rectangle is an axis-aligned rectangular obstacle in grid
// cell-center coordinates.
type Rectangle struct {
	X0, Y0, X1, Y1 float64
}

// Polygon returns the rectangle as a closed polygon.
func (r Rectangle) Polygon() geom.Polygon {
	x0, x1 := math.Min(r.X0, r.X1), math.Max(r.X0, r.X1)
	y0, y1 := math.Min(r.Y0, r.Y1), math.Max(r.Y0, r.Y1)
	return geom.Polygon{{
		geom.Point{X: x0, Y: y0},
		geom.Point{X: x1, Y: y0},
		geom.Point{X: x1, Y: y1},
		geom.Point{X: x0, Y: y1},
		geom.Point{X: x0, Y: y0},
	}}
}

// A Circle is a circular obstacle in grid cell-center coordinates,
// approximated by a regular polygon with the given number of segments.
type Circle struct {
	X, Y, R  float64
	Segments int
}

// Polygon returns the circle as a closed polygon.
func (c Circle) Polygon() geom.Polygon {
	n := c.Segments
	if n < 3 {
		n = defaultCircleSegments
	}
	p := make(geom.Path, n+1)
	for k := 0; k < n; k++ {
		theta := 2 * math.Pi * float64(k) / float64(n)
		p[k] = geom.Point{
			X: c.X + c.R*math.Cos(theta),
			Y: c.Y + c.R*math.Sin(theta),
		}
	}
	p[n] = p[0]
	return geom.Polygon{p}
}

// obstacleSpec is the shape list decoded from a TOML obstacle file.
type obstacleSpec struct {
	Rectangles []Rectangle
	Circles    []Circle
}

// ReadObstacles reads a TOML description of synthetic obstacle shapes
// and returns the corresponding polygons in grid cell-center
// coordinates, ready to be rasterized with Mask.FillPolygons. The file
// holds [[Rectangles]] and [[Circles]] tables; for example:
//
//	[[Rectangles]]
//	X0 = 20.0
//	Y0 = 30.0
//	X1 = 28.0
//	Y1 = 50.0
//
//	[[Circles]]
//	X = 60.0
//	Y = 45.0
//	R = 6.0
func ReadObstacles(r io.Reader) ([]geom.Polygonal, error) {
	spec := new(obstacleSpec)
	if _, err := toml.DecodeReader(r, spec); err != nil {
		return nil, fmt.Errorf("windflow: decoding obstacle shape file: %v", err)
	}
	var o []geom.Polygonal
	for i, rect := range spec.Rectangles {
		if rect.X0 == rect.X1 || rect.Y0 == rect.Y1 {
			return nil, fmt.Errorf("windflow: obstacle rectangle %d has zero area", i)
		}
		o = append(o, rect.Polygon())
	}
	for i, circ := range spec.Circles {
		if !(circ.R > 0) {
			return nil, fmt.Errorf("windflow: obstacle circle %d has radius %g; must be > 0", i, circ.R)
		}
		o = append(o, circ.Polygon())
	}
	return o, nil
}
