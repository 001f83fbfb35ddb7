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
	"time"

	"github.com/ctessum/unit"
)

// kmhToMS converts km/h wind observations to SI.
const kmhToMS = 1. / 3.6

// A WindCondition is the ambient wind driving a simulation, in
// meteorological convention: Direction is the bearing the wind blows
// from, in degrees clockwise from North, in [0,360).
type WindCondition struct {
	Speed     float64 `desc:"Wind speed" units:"m/s"`
	Direction float64 `desc:"Bearing the wind blows from" units:"degrees clockwise from North"`
}

// NewWindCondition validates speed and direction and returns the wind
// condition they describe. speed must be a dimensioned quantity in m/s.
func NewWindCondition(speed *unit.Unit, direction float64) (WindCondition, error) {
	if speed == nil {
		return WindCondition{}, fmt.Errorf("windflow: wind speed is not specified")
	}
	if !speed.Dimensions().Matches(unit.MeterPerSecond) {
		return WindCondition{}, fmt.Errorf("windflow: wind speed has dimensions %v; need %v",
			speed.Dimensions(), unit.MeterPerSecond)
	}
	s := speed.Value()
	if s < 0 || math.IsNaN(s) {
		return WindCondition{}, fmt.Errorf("windflow: wind speed must be ≥ 0 m/s but is %g", s)
	}
	if direction < 0 || direction >= 360 || math.IsNaN(direction) {
		return WindCondition{}, fmt.Errorf("windflow: wind direction must be in [0,360) degrees but is %g", direction)
	}
	return WindCondition{Speed: s, Direction: direction}, nil
}

// WindFromMS builds a wind condition from a speed in m/s.
func WindFromMS(speedMS, direction float64) (WindCondition, error) {
	return NewWindCondition(unit.New(speedMS, unit.MeterPerSecond), direction)
}

// WindFromKMH builds a wind condition from a speed in km/h, the unit
// most weather feeds report in.
func WindFromKMH(speedKMH, direction float64) (WindCondition, error) {
	return NewWindCondition(unit.New(speedKMH*kmhToMS, unit.MeterPerSecond), direction)
}

// Inlet returns the lattice-unit inlet velocity for the wind condition.
// The meteorological bearing is converted to a mathematical angle
// (x-right, y-up) with θ = 90° − Direction; the magnitude is the fixed
// lattice reference speed.
func (w WindCondition) Inlet() (u0, v0 float64) {
	theta := (90 - w.Direction) * math.Pi / 180
	return inletSpeed * math.Cos(theta), inletSpeed * math.Sin(theta)
}

// Scale returns the factor that converts lattice velocities to physical
// velocities for this wind condition.
func (w WindCondition) Scale() float64 {
	return w.Speed / inletSpeed
}

// An Edge identifies one edge of the simulation domain.
type Edge int

// Domain edges tied to the grid orientation: the top row is j = 0 and
// the left column is i = 0.
const (
	EdgeTop Edge = iota
	EdgeRight
	EdgeBottom
	EdgeLeft
)

func (e Edge) String() string {
	switch e {
	case EdgeTop:
		return "top"
	case EdgeRight:
		return "right"
	case EdgeBottom:
		return "bottom"
	case EdgeLeft:
		return "left"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// InflowEdge returns the domain edge the wind enters through. The
// sectors are half-open: 45°, 135°, 225°, and 315° each belong to the
// following sector.
func (w WindCondition) InflowEdge() Edge {
	switch {
	case w.Direction >= 315 || w.Direction < 45:
		return EdgeTop
	case w.Direction < 135:
		return EdgeRight
	case w.Direction < 225:
		return EdgeBottom
	default:
		return EdgeLeft
	}
}

// AmbientConditions is a complete weather observation as consumed from
// an upstream data source. Only the wind fields influence the solver;
// the rest is carried through to the results document so downstream
// consumers can see the conditions a field was computed for.
type AmbientConditions struct {
	WindSpeed     float64   `json:"wind_speed_ms"`
	WindDirection float64   `json:"wind_direction_deg"`
	Temperature   float64   `json:"temperature_c"`
	Humidity      float64   `json:"humidity_percent"`
	Timestamp     time.Time `json:"timestamp"`
	// Source names where the observation came from, or "default" for
	// the fallback values.
	Source string `json:"source"`
}

// DefaultAmbient returns the fallback conditions used when no
// observation is available: a moderate westerly wind.
func DefaultAmbient() AmbientConditions {
	return AmbientConditions{
		WindSpeed:     5.0,
		WindDirection: 270.0,
		Temperature:   20.0,
		Humidity:      60.0,
		Timestamp:     time.Now().UTC(),
		Source:        "default",
	}
}

// Wind validates the observation's wind fields and returns them as a
// WindCondition.
func (a AmbientConditions) Wind() (WindCondition, error) {
	return WindFromMS(a.WindSpeed, a.WindDirection)
}
