package timing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/sprintgate/internal/geom"
)

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) sink(ev Event) {
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func line(role geom.LineRole, x float64) geom.Line {
	return geom.Line{Role: role, P1: geom.Point{X: x, Y: 0}, P2: geom.Point{X: x, Y: 720}}
}

// armedSession returns a running-ready session calibrated on a horizontal
// course with the given line positions.
func armedSession(t *testing.T, rec *eventRecorder, startX, finishX float64) *Session {
	t.Helper()
	s := NewSession(DefaultConfig(), rec.sink)
	_, err := s.Calibrate(line(geom.StartLine, startX), line(geom.FinishLine, finishX), geom.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, StateArmed, s.State())
	return s
}

func TestSessionLifecycleHappyPath(t *testing.T) {
	rec := &eventRecorder{}
	s := armedSession(t, rec, 100, 1300)

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())

	// Approach and cross the start line.
	s.ProcessFrame(valid(0, 50, 360), 0.90)
	s.ProcessFrame(valid(1, 95, 360), 0.95)
	s.ProcessFrame(valid(2, 105, 360), 1.05)
	require.True(t, s.Status().Started, "start crossing should be recorded")

	// Sprint down the course and cross the finish line.
	s.ProcessFrame(valid(3, 700, 360), 2.90)
	s.ProcessFrame(valid(4, 1295, 360), 4.80)
	state := s.ProcessFrame(valid(5, 1305, 360), 4.90)

	assert.Equal(t, StateFinished, state)
	res := s.Result()
	require.NotNil(t, res)

	// Scenario: 1200px course, start crossing interpolated at t=1.00s,
	// finish at t=4.85s.
	assert.InDelta(t, 3.85, res.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 7.79, res.SpeedMS, 0.005)
	assert.InDelta(t, 28.05, res.SpeedKmh, 0.01)
	assert.Equal(t, 30.0, res.DistanceMeters)
	assert.Equal(t, res.SpeedMS*3.6, res.SpeedKmh)

	assert.Equal(t, []EventType{EventCalibrated, EventArmed, EventStarted, EventFinished}, rec.types())
	require.NotNil(t, rec.events[3].Result)
	assert.Equal(t, res.ElapsedSeconds, rec.events[3].Result.ElapsedSeconds)
}

func TestSessionCalibrationFailureStaysCalibrating(t *testing.T) {
	rec := &eventRecorder{}
	s := NewSession(DefaultConfig(), rec.sink)

	degenerate := geom.Line{Role: geom.FinishLine, P1: geom.Point{X: 500, Y: 300}, P2: geom.Point{X: 500, Y: 300}}
	_, err := s.Calibrate(line(geom.StartLine, 100), degenerate, geom.DefaultConfig())

	var dle *geom.DegenerateLineError
	require.ErrorAs(t, err, &dle)
	assert.Equal(t, StateCalibrating, s.State())
	assert.Empty(t, rec.events, "failed calibration must not emit events")

	// Recovery: a valid calibration from the same session arms it.
	_, err = s.Calibrate(line(geom.StartLine, 100), line(geom.FinishLine, 1300), geom.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StateArmed, s.State())
}

func TestSessionFinishBeforeStartDiscarded(t *testing.T) {
	rec := &eventRecorder{}
	s := armedSession(t, rec, 500, 1000)
	require.NoError(t, s.Start())

	// Detector jitter throws the reference point across the finish line's
	// projected position at t=2, long before any start crossing.
	s.ProcessFrame(valid(0, 900, 360), 1.0)
	s.ProcessFrame(valid(1, 1100, 360), 2.0)
	assert.Equal(t, StateRunning, s.State())
	assert.Nil(t, s.Result(), "discarded finish crossing must not produce a result")
	assert.False(t, s.Status().Started)

	// The subject then actually runs the course: start crossed at t=5.
	s.ProcessFrame(valid(2, 300, 360), 3.0)
	s.ProcessFrame(valid(3, 400, 360), 4.0)
	s.ProcessFrame(valid(4, 550, 360), 5.0)
	require.True(t, s.Status().Started)
	require.Nil(t, s.Result())

	// Only a finish crossing after the start is accepted.
	state := s.ProcessFrame(valid(5, 1100, 360), 8.0)
	assert.Equal(t, StateFinished, state)
	res := s.Result()
	require.NotNil(t, res)
	assert.Greater(t, res.StartTime, 4.0)
	assert.Greater(t, res.FinishTime, res.StartTime)
}

func TestSessionIncompleteRunAborts(t *testing.T) {
	rec := &eventRecorder{}
	s := armedSession(t, rec, 100, 1300)
	require.NoError(t, s.Start())

	// Start crossing happens but the subject never reaches the finish.
	s.ProcessFrame(valid(0, 95, 360), 1.0)
	s.ProcessFrame(valid(1, 105, 360), 1.1)
	s.ProcessFrame(valid(2, 400, 360), 2.0)

	err := s.EndOfFrames()
	var ire *IncompleteRunError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, string(geom.FinishLine), ire.MissingLine)

	assert.Equal(t, StateAborted, s.State())
	assert.Nil(t, s.Result())

	st := s.Status()
	assert.False(t, st.Started, "abort must clear partial crossing events")
	assert.Nil(t, st.StartEvent)
	assert.Equal(t, EventAborted, rec.events[len(rec.events)-1].Type)
}

func TestSessionEndOfFramesBeforeStartCrossing(t *testing.T) {
	rec := &eventRecorder{}
	s := armedSession(t, rec, 100, 1300)
	require.NoError(t, s.Start())

	s.ProcessFrame(valid(0, 50, 360), 1.0)

	err := s.EndOfFrames()
	var ire *IncompleteRunError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, string(geom.StartLine), ire.MissingLine)
}

func TestSessionEndOfFramesNoopWhenNotRunning(t *testing.T) {
	s := NewSession(DefaultConfig(), nil)
	assert.NoError(t, s.EndOfFrames())
}

func TestSessionAbortFromAnyNonTerminalState(t *testing.T) {
	t.Run("from armed", func(t *testing.T) {
		rec := &eventRecorder{}
		s := armedSession(t, rec, 100, 1300)
		s.Abort("user cancelled")
		assert.Equal(t, StateAborted, s.State())
		assert.Equal(t, "user cancelled", s.Status().AbortReason)
	})

	t.Run("from running", func(t *testing.T) {
		rec := &eventRecorder{}
		s := armedSession(t, rec, 100, 1300)
		require.NoError(t, s.Start())
		s.ProcessFrame(valid(0, 95, 360), 1.0)
		s.ProcessFrame(valid(1, 105, 360), 1.1)
		s.Abort("user cancelled")
		assert.Equal(t, StateAborted, s.State())
		assert.Nil(t, s.Status().StartEvent)
	})

	t.Run("abort is idempotent", func(t *testing.T) {
		rec := &eventRecorder{}
		s := armedSession(t, rec, 100, 1300)
		s.Abort("first")
		s.Abort("second")
		assert.Equal(t, "first", s.Status().AbortReason)
	})
}

func TestSessionTerminalIsImmutable(t *testing.T) {
	rec := &eventRecorder{}
	s := armedSession(t, rec, 100, 1300)
	s.Abort("done")

	assert.ErrorIs(t, s.UseCalibration(nil), ErrSessionTerminal)
	_, err := s.Calibrate(line(geom.StartLine, 100), line(geom.FinishLine, 1300), geom.DefaultConfig())
	assert.ErrorIs(t, err, ErrSessionTerminal)

	var ite *InvalidTransitionError
	assert.ErrorAs(t, s.Start(), &ite)

	// Frames are ignored in terminal states.
	state := s.ProcessFrame(valid(0, 95, 360), 1.0)
	assert.Equal(t, StateAborted, state)
}

func TestSessionReuseCalibrationAcrossAttempts(t *testing.T) {
	cal, err := geom.Calibrate(line(geom.StartLine, 100), line(geom.FinishLine, 1300), 30.0, geom.DefaultConfig())
	require.NoError(t, err)

	rec := &eventRecorder{}
	s := NewSession(DefaultConfig(), rec.sink)
	require.NoError(t, s.UseCalibration(cal))
	assert.Equal(t, StateArmed, s.State())
	assert.Equal(t, []EventType{EventArmed}, rec.types())
	assert.NotEmpty(t, s.ID())

	// A second session with the same calibration is fully independent.
	s2 := NewSession(DefaultConfig(), nil)
	require.NoError(t, s2.UseCalibration(cal))
	require.NoError(t, s2.Start())
	s2.ProcessFrame(valid(0, 95, 360), 1.0)
	assert.Equal(t, StateArmed, s.State(), "sibling session must be unaffected")
	assert.NotEqual(t, s.ID(), s2.ID())
}

func TestSessionStartRequiresArmed(t *testing.T) {
	s := NewSession(DefaultConfig(), nil)
	var ite *InvalidTransitionError
	require.ErrorAs(t, s.Start(), &ite)
	assert.Equal(t, StateIdle, ite.From)
}

func TestSessionFramesIgnoredBeforeStart(t *testing.T) {
	rec := &eventRecorder{}
	s := armedSession(t, rec, 100, 1300)

	// Armed but not started: frames must not advance detection.
	s.ProcessFrame(valid(0, 95, 360), 1.0)
	s.ProcessFrame(valid(1, 105, 360), 1.1)
	assert.False(t, s.Status().Started)
	assert.EqualValues(t, 0, s.Status().FramesSeen)
}

func TestComputeResultInvalidTiming(t *testing.T) {
	start := &CrossingEvent{Line: geom.StartLine, Time: 5.0}
	finish := &CrossingEvent{Line: geom.FinishLine, Time: 5.0}

	_, err := computeResult(start, finish, 30.0)
	var ite *InvalidTimingError
	require.ErrorAs(t, err, &ite)

	finish.Time = 4.0
	_, err = computeResult(start, finish, 30.0)
	require.Error(t, err, "negative elapsed must be rejected")
	assert.True(t, errors.As(err, &ite))
}

func TestComputeResultSpeedProperties(t *testing.T) {
	for _, elapsed := range []float64{0.5, 3.85, 10.0, 29.97} {
		start := &CrossingEvent{Line: geom.StartLine, Time: 1.0}
		finish := &CrossingEvent{Line: geom.FinishLine, Time: 1.0 + elapsed}
		res, err := computeResult(start, finish, 30.0)
		require.NoError(t, err)
		assert.Greater(t, res.ElapsedSeconds, 0.0)
		assert.Equal(t, res.SpeedMS*3.6, res.SpeedKmh)
		assert.InDelta(t, 30.0/elapsed, res.SpeedMS, 1e-12)
	}
}
