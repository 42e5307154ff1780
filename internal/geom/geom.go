// Package geom converts user-drawn reference lines into a pixel-to-metre
// calibration for the sprint course. All functions are pure; the returned
// Calibration is immutable and safe to share across sessions.
package geom

import (
	"fmt"
	"math"
)

// LineRole identifies which end of the course a reference line marks.
type LineRole string

const (
	StartLine  LineRole = "start"
	FinishLine LineRole = "finish"
)

// Point is a position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Line is a user-drawn reference segment in pixel space, oriented roughly
// perpendicular to the direction of travel.
type Line struct {
	Role LineRole `json:"role"`
	P1   Point    `json:"p1"`
	P2   Point    `json:"p2"`
}

// Midpoint returns the segment midpoint.
func (l Line) Midpoint() Point {
	return Point{X: (l.P1.X + l.P2.X) / 2, Y: (l.P1.Y + l.P2.Y) / 2}
}

// Length returns the segment length in pixels.
func (l Line) Length() float64 {
	dx := l.P2.X - l.P1.X
	dy := l.P2.Y - l.P1.Y
	return math.Hypot(dx, dy)
}

// Config holds validation thresholds for calibration input.
type Config struct {
	// MinLineLengthPx rejects degenerate segments caused by misclicks.
	MinLineLengthPx float64
	// MinSeparationPx is the minimum projected distance between the two
	// line midpoints along the travel axis.
	MinSeparationPx float64
}

// DefaultConfig returns the standard calibration thresholds.
func DefaultConfig() Config {
	return Config{
		MinLineLengthPx: 5.0,
		MinSeparationPx: 10.0,
	}
}

// DegenerateLineError reports a reference line too short to define a
// crossing geometry.
type DegenerateLineError struct {
	Role     LineRole
	LengthPx float64
	MinPx    float64
}

func (e *DegenerateLineError) Error() string {
	return fmt.Sprintf("%s line is degenerate: length %.2fpx below minimum %.2fpx", e.Role, e.LengthPx, e.MinPx)
}

// InsufficientSeparationError reports start/finish lines whose projected
// midpoints are too close together to derive a meaningful scale.
type InsufficientSeparationError struct {
	SeparationPx float64
	MinPx        float64
}

func (e *InsufficientSeparationError) Error() string {
	return fmt.Sprintf("start/finish separation %.2fpx below minimum %.2fpx", e.SeparationPx, e.MinPx)
}

// Calibration maps pixel positions to metres along the travel axis.
// Once computed it must not be mutated; a recalibration produces a new value.
type Calibration struct {
	// DistanceMeters is the real-world course length between the lines.
	DistanceMeters float64
	// Scale is metres per pixel along the travel axis.
	Scale float64
	// Direction is +1 when travel runs from lower to higher projected
	// coordinates, -1 otherwise.
	Direction float64
	// StartProj and FinishProj are the projected positions of the line
	// midpoints along the travel axis, in pixels.
	StartProj  float64
	FinishProj float64

	// Unit vector of the travel axis and its pixel origin.
	axisX, axisY     float64
	originX, originY float64
}

// Project returns the signed position of p along the travel axis, in pixels,
// in the same coordinate frame as StartProj and FinishProj.
func (c *Calibration) Project(p Point) float64 {
	return (p.X-c.originX)*c.axisX + (p.Y-c.originY)*c.axisY
}

// PixelSeparation returns the projected distance between the two lines.
func (c *Calibration) PixelSeparation() float64 {
	return math.Abs(c.FinishProj - c.StartProj)
}

// Calibrate derives the course calibration from the two reference lines and
// the known real-world distance between them. The travel axis is the axis
// connecting the two line midpoints; the finish line defines the positive
// travel direction.
func Calibrate(start, finish Line, distanceMeters float64, cfg Config) (*Calibration, error) {
	if distanceMeters <= 0 {
		return nil, fmt.Errorf("distance must be positive, got %v", distanceMeters)
	}
	if l := start.Length(); l < cfg.MinLineLengthPx {
		return nil, &DegenerateLineError{Role: StartLine, LengthPx: l, MinPx: cfg.MinLineLengthPx}
	}
	if l := finish.Length(); l < cfg.MinLineLengthPx {
		return nil, &DegenerateLineError{Role: FinishLine, LengthPx: l, MinPx: cfg.MinLineLengthPx}
	}

	sm := start.Midpoint()
	fm := finish.Midpoint()
	dx := fm.X - sm.X
	dy := fm.Y - sm.Y
	sep := math.Hypot(dx, dy)
	if sep < cfg.MinSeparationPx {
		return nil, &InsufficientSeparationError{SeparationPx: sep, MinPx: cfg.MinSeparationPx}
	}

	// Canonicalise the axis so it always points towards +X (or +Y for a
	// vertical course). Direction then records whether travel runs with or
	// against the canonical axis, which is what the crossing detector folds
	// into its signed offsets.
	ux, uy := dx/sep, dy/sep
	if ux < 0 || (ux == 0 && uy < 0) {
		ux, uy = -ux, -uy
	}

	cal := &Calibration{
		DistanceMeters: distanceMeters,
		axisX:          ux,
		axisY:          uy,
		originX:        sm.X,
		originY:        sm.Y,
	}
	cal.StartProj = cal.Project(sm)
	cal.FinishProj = cal.Project(fm)

	pixelDistance := cal.FinishProj - cal.StartProj
	cal.Direction = math.Copysign(1, pixelDistance)
	cal.Scale = distanceMeters / math.Abs(pixelDistance)
	return cal, nil
}
