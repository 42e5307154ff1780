package timing

import (
	"math"

	"github.com/strideworks/sprintgate/internal/geom"
	"github.com/strideworks/sprintgate/internal/pose"
)

// CrossingEvent records the instant the reference point passed a line.
type CrossingEvent struct {
	Line geom.LineRole `json:"line"`
	// FrameIndex is the frame at which the crossing was confirmed (the
	// later of the two frames bracketing an interpolated crossing).
	FrameIndex int64 `json:"frame_index"`
	// Time is the crossing instant in seconds on the session time source,
	// sub-frame interpolated between the bracketing frames.
	Time float64 `json:"time"`
	// Fraction is the sub-frame offset in [0, 1) within the bracketing
	// interval; 0 for an exact on-the-line observation.
	Fraction float64 `json:"fraction"`
	// X, Y is the interpolated pixel position at the crossing.
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// lineDetector tracks the reference point's signed offset relative to one
// calibration line and decides the crossing instant. State is strictly
// per-session and order-dependent: frames must arrive in sequence.
type lineDetector struct {
	role     geom.LineRole
	lineProj float64
	cal      *geom.Calibration
	cfg      Config

	// Last valid observation. hasLast is false until the first valid frame
	// and after a stale reset.
	hasLast    bool
	lastOffset float64
	lastTime   float64
	lastX      float64
	lastY      float64

	invalidRun int
	fired      bool
}

func newLineDetector(role geom.LineRole, cal *geom.Calibration, cfg Config) *lineDetector {
	d := &lineDetector{role: role, cal: cal, cfg: cfg}
	switch role {
	case geom.StartLine:
		d.lineProj = cal.StartProj
	case geom.FinishLine:
		d.lineProj = cal.FinishProj
	}
	return d
}

// signedOffset is positive once the point has passed the line in the travel
// direction, negative before, zero exactly on the line.
func (d *lineDetector) signedOffset(tp pose.TrackedPoint) float64 {
	p := d.cal.Project(geom.Point{X: tp.X, Y: tp.Y})
	return (p - d.lineProj) * d.cal.Direction
}

// Observe feeds one frame to the detector. It returns a crossing event the
// first time the point transitions from before to after the line, and nil on
// every other frame. A fired detector ignores all further frames.
func (d *lineDetector) Observe(tp pose.TrackedPoint, t float64) *CrossingEvent {
	if d.fired {
		return nil
	}

	if !tp.Valid {
		// Brief detector dropout: keep the last signed offset so the
		// crossing can still be bracketed across the gap. Past the
		// configured gap the old sign is stale and must not pair with a
		// much later frame.
		d.invalidRun++
		if d.invalidRun > d.cfg.MaxInvalidGap {
			d.hasLast = false
		}
		return nil
	}
	d.invalidRun = 0

	offset := d.signedOffset(tp)

	if offset == 0 {
		// Exactly on the line: immediate crossing, no interpolation.
		d.fired = true
		return &CrossingEvent{
			Line:       d.role,
			FrameIndex: tp.FrameIndex,
			Time:       t,
			Fraction:   0,
			X:          tp.X,
			Y:          tp.Y,
		}
	}

	if d.hasLast && d.lastOffset < 0 && offset > 0 {
		d.fired = true
		frac := math.Abs(d.lastOffset) / (math.Abs(d.lastOffset) + math.Abs(offset))
		return &CrossingEvent{
			Line:       d.role,
			FrameIndex: tp.FrameIndex,
			Time:       d.lastTime + (t-d.lastTime)*frac,
			Fraction:   frac,
			X:          d.lastX + (tp.X-d.lastX)*frac,
			Y:          d.lastY + (tp.Y-d.lastY)*frac,
		}
	}

	d.hasLast = true
	d.lastOffset = offset
	d.lastTime = t
	d.lastX = tp.X
	d.lastY = tp.Y
	return nil
}

// Fired reports whether this line's crossing has already been recorded.
func (d *lineDetector) Fired() bool { return d.fired }
