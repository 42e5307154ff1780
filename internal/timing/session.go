package timing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/strideworks/sprintgate/internal/geom"
	"github.com/strideworks/sprintgate/internal/pose"
)

// State is the lifecycle state of a timing session.
type State string

const (
	StateIdle        State = "idle"
	StateCalibrating State = "calibrating"
	StateArmed       State = "armed"
	StateRunning     State = "running"
	StateFinished    State = "finished"
	StateAborted     State = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateAborted
}

// Session owns one timed run attempt: the calibration in effect, the
// per-line crossing detectors, the crossing log and the final result.
// Frames must be fed strictly in order; methods are mutex-guarded so status
// reads may happen concurrently, but there must be a single frame producer.
type Session struct {
	mu sync.Mutex

	id    string
	state State
	cfg   Config
	cal   *geom.Calibration
	sink  EventSink

	startDet  *lineDetector
	finishDet *lineDetector

	startEvent  *CrossingEvent
	finishEvent *CrossingEvent
	result      *Result
	abortReason string
	framesSeen  int64
}

// Status is a point-in-time snapshot of a session for API consumers.
type Status struct {
	ID          string         `json:"id"`
	State       State          `json:"state"`
	FramesSeen  int64          `json:"frames_seen"`
	Started     bool           `json:"started"`
	Result      *Result        `json:"result,omitempty"`
	AbortReason string         `json:"abort_reason,omitempty"`
	StartEvent  *CrossingEvent `json:"start_event,omitempty"`
	FinishEvent *CrossingEvent `json:"finish_event,omitempty"`
}

// NewSession creates an idle session. sink may be nil.
func NewSession(cfg Config, sink EventSink) *Session {
	return &Session{
		id:    uuid.NewString(),
		state: StateIdle,
		cfg:   cfg,
		sink:  sink,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Calibrate runs line calibration and arms the session on success. On
// failure the session stays in (or enters) the calibrating state and the
// typed calibration error is returned for the caller to surface.
func (s *Session) Calibrate(start, finish geom.Line, geomCfg geom.Config) (*geom.Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil, ErrSessionTerminal
	}
	if s.state == StateRunning {
		return nil, &InvalidTransitionError{From: s.state, Trigger: "calibrate"}
	}
	s.state = StateCalibrating

	cal, err := geom.Calibrate(start, finish, s.cfg.DistanceMeters, geomCfg)
	if err != nil {
		return nil, err
	}

	s.arm(cal)
	s.emit(Event{Type: EventCalibrated, State: s.state})
	s.emit(Event{Type: EventArmed, State: s.state})
	return cal, nil
}

// UseCalibration arms the session with a previously computed calibration,
// the normal path when re-running without recalibrating.
func (s *Session) UseCalibration(cal *geom.Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return ErrSessionTerminal
	}
	if s.state == StateRunning {
		return &InvalidTransitionError{From: s.state, Trigger: "arm"}
	}

	s.arm(cal)
	s.emit(Event{Type: EventArmed, State: s.state})
	return nil
}

// arm installs the calibration and fresh detectors. Caller holds the lock.
func (s *Session) arm(cal *geom.Calibration) {
	s.cal = cal
	s.startDet = newLineDetector(geom.StartLine, cal, s.cfg)
	s.finishDet = newLineDetector(geom.FinishLine, cal, s.cfg)
	s.state = StateArmed
}

// Start moves an armed session into the running state. The trigger comes
// from the mode driver (countdown completion in live mode, immediately in
// batch mode); the "started" event itself fires at the start-line crossing.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateArmed {
		return &InvalidTransitionError{From: s.state, Trigger: "start"}
	}
	s.state = StateRunning
	return nil
}

// ProcessFrame feeds one tracked point at session time t (seconds). It is
// synchronous and non-blocking; frames outside the running state are
// ignored. The returned state lets drivers stop early once terminal.
func (s *Session) ProcessFrame(tp pose.TrackedPoint, t float64) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return s.state
	}
	s.framesSeen++

	if s.startEvent == nil {
		if ev := s.startDet.Observe(tp, t); ev != nil {
			s.startEvent = ev
			s.emit(Event{Type: EventStarted, State: s.state})
		}
	}

	if ev := s.finishDet.Observe(tp, t); ev != nil {
		if s.startEvent == nil && s.cfg.RequireStartBeforeFinish {
			// A finish crossing with no start on record is noise or a
			// false early trigger: discard it and re-track the line.
			s.finishDet = newLineDetector(geom.FinishLine, s.cal, s.cfg)
			return s.state
		}
		s.finishEvent = ev
		s.finish()
	}

	return s.state
}

// finish computes the result and moves to the finished state. A timing
// invariant violation aborts the session instead. Caller holds the lock.
func (s *Session) finish() {
	res, err := computeResult(s.startEvent, s.finishEvent, s.cfg.DistanceMeters)
	if err != nil {
		s.abortLocked(err.Error())
		return
	}
	s.result = res
	s.state = StateFinished
	s.emit(Event{Type: EventFinished, State: s.state, Result: res})
}

// EndOfFrames tells the session its frame source is exhausted. A running
// session that never completed aborts with IncompleteRunError naming the
// missing crossing; in any other state it is a no-op.
func (s *Session) EndOfFrames() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil
	}

	missing := string(geom.StartLine)
	if s.startEvent != nil {
		missing = string(geom.FinishLine)
	}
	err := &IncompleteRunError{MissingLine: missing, FramesSeen: s.framesSeen}
	s.abortLocked(err.Error())
	return err
}

// Abort cancels the session from any non-terminal state. Safe to call
// repeatedly; later calls are no-ops.
func (s *Session) Abort(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.abortLocked(reason)
}

// abortLocked clears partial progress so an aborted session can never be
// misread as complete. Caller holds the lock.
func (s *Session) abortLocked(reason string) {
	s.startEvent = nil
	s.finishEvent = nil
	s.result = nil
	s.abortReason = reason
	s.state = StateAborted
	s.emit(Event{Type: EventAborted, State: s.state, Message: reason})
}

// Result returns the completed result, or nil before completion and after
// abort.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Status returns a snapshot for API consumers.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:          s.id,
		State:       s.state,
		FramesSeen:  s.framesSeen,
		Started:     s.startEvent != nil,
		Result:      s.result,
		AbortReason: s.abortReason,
		StartEvent:  s.startEvent,
		FinishEvent: s.finishEvent,
	}
}

// Emit publishes a driver-originated event (countdown cues) on the session's
// sink with the session identity attached.
func (s *Session) Emit(t EventType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(Event{Type: t, State: s.state, Message: message})
}

// emit stamps and delivers an event. Caller holds the lock.
func (s *Session) emit(ev Event) {
	if s.sink == nil {
		return
	}
	ev.SessionID = s.id
	ev.At = time.Now()
	s.sink(ev)
}
