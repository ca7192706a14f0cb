package game

import "math"

// Positions are angular degrees on the semicircle: 0 is the left extreme,
// 180 the right one.
const (
	MinPosition = 0.0
	MaxPosition = 180.0
)

const (
	PointsBullseye = 30
	PointsMid      = 20
	PointsLow      = 10
	PointsMiss     = 0
)

// Bands describes the concentric scoring zones around a target, in degrees.
// Inner is the half-width of the bullseye; Mid and Outer are the widths of the
// rings that follow it on each side.
type Bands struct {
	Inner float64
	Mid   float64
	Outer float64
}

// DefaultBands is the layout clients draw and the server scores against.
var DefaultBands = Bands{Inner: 4, Mid: 7, Outer: 8}

// Extent is the distance from the target centre to the outer edge of the last band.
func (b Bands) Extent() float64 {
	return b.Inner + b.Mid + b.Outer
}

// Score maps the angular distance between guess and target to points. A
// distance sitting exactly on a boundary belongs to the inner band.
func (b Bands) Score(guess, target float64) int {
	d := math.Abs(guess - target)
	switch {
	case d <= b.Inner:
		return PointsBullseye
	case d <= b.Inner+b.Mid:
		return PointsMid
	case d <= b.Extent():
		return PointsLow
	default:
		return PointsMiss
	}
}

func Score(guess, target float64) int {
	return DefaultBands.Score(guess, target)
}
