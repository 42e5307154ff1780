package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/strideworks/sprintgate/internal/geom"
	"github.com/strideworks/sprintgate/internal/pose"
	"github.com/strideworks/sprintgate/internal/run"
	"github.com/strideworks/sprintgate/internal/timing"
)

type calibrateRequest struct {
	Start  geom.Line `json:"start"`
	Finish geom.Line `json:"finish"`
}

type calibrateResponse struct {
	SessionID       string       `json:"session_id"`
	State           timing.State `json:"state"`
	Scale           float64      `json:"scale"`
	Direction       float64      `json:"direction"`
	PixelSeparation float64      `json:"pixel_separation"`
}

// currentSession returns the active session, creating one when none exists
// or the previous attempt reached a terminal state.
func (s *Server) currentSession() *timing.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSessionLocked()
}

func (s *Server) currentSessionLocked() *timing.Session {
	if s.session == nil || s.session.State().Terminal() {
		s.session = timing.NewSession(timing.DefaultConfig(), s.sink)
		s.runner = nil
		s.resultRecorded = false
		if s.cal != nil {
			if err := s.session.UseCalibration(s.cal); err != nil {
				log.Printf("api: failed to arm new session: %v", err)
			}
		}
	}
	return s.session
}

func (s *Server) calibrateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req calibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	session := s.currentSession()
	cal, err := session.Calibrate(req.Start, req.Finish, geom.DefaultConfig())
	if err != nil {
		var degenerate *geom.DegenerateLineError
		var separation *geom.InsufficientSeparationError
		if errors.As(err, &degenerate) || errors.As(err, &separation) {
			// Session stays calibrating; the client redraws and retries.
			s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	s.mu.Lock()
	s.cal = cal
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, calibrateResponse{
		SessionID:       session.ID(),
		State:           session.State(),
		Scale:           cal.Scale,
		Direction:       cal.Direction,
		PixelSeparation: cal.PixelSeparation(),
	})
}

// sessionHandler creates a fresh session on POST and reports the current
// session status on GET.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		if s.session != nil && !s.session.State().Terminal() {
			s.session.Abort("superseded by new session")
		}
		s.session = nil
		session := s.currentSessionLocked()
		s.mu.Unlock()
		s.writeJSON(w, http.StatusCreated, session.Status())

	case http.MethodGet:
		s.mu.Lock()
		session := s.session
		s.mu.Unlock()
		if session == nil {
			s.writeJSONError(w, http.StatusNotFound, "no session")
			return
		}
		s.writeJSON(w, http.StatusOK, session.Status())

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type startRequest struct {
	CountdownSeconds *int `json:"countdown_seconds,omitempty"`
}

// startHandler kicks off the live run. The countdown executes in the
// background; countdown cues and the final "go" arrive on the event stream.
func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req startRequest
	if r.Body != nil {
		// An empty body means default countdown.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	cfg := run.DefaultLiveConfig()
	if req.CountdownSeconds != nil && *req.CountdownSeconds >= 0 {
		cfg.CountdownSeconds = *req.CountdownSeconds
	}

	s.mu.Lock()
	session := s.currentSessionLocked()
	if session.State() != timing.StateArmed {
		state := session.State()
		s.mu.Unlock()
		s.writeJSONError(w, http.StatusConflict, "session not armed (state: "+string(state)+"); calibrate first")
		return
	}
	runner := run.NewLiveRunner(session, s.clock, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	s.runner = runner
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := runner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("api: live start failed for session %s: %v", session.ID(), err)
		}
	}()

	s.writeJSON(w, http.StatusAccepted, session.Status())
}

type framesRequest struct {
	Frames []pose.Frame `json:"frames"`
}

// framesHandler ingests pose frames from the capture collaborator. Frames
// arriving before the countdown completes are ignored by the session.
func (s *Server) framesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req framesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	runner := s.runner
	session := s.session
	s.mu.Unlock()
	if runner == nil || session == nil {
		s.writeJSONError(w, http.StatusConflict, "no live run in progress; start first")
		return
	}

	for _, frame := range req.Frames {
		if runner.ProcessFrame(frame).Terminal() {
			break
		}
	}
	if session.State() == timing.StateFinished && s.claimResult(session) {
		s.recordResult(session.ID(), "live", session.Result())
	}
	s.writeJSON(w, http.StatusOK, session.Status())
}

// claimResult marks the live session's result as persisted, returning true
// for exactly one caller per session.
func (s *Server) claimResult(session *timing.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != session || s.resultRecorded {
		return false
	}
	s.resultRecorded = true
	return true
}

type abortRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) abortHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req abortRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "user reset"
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	session := s.session
	s.mu.Unlock()
	if session == nil {
		s.writeJSONError(w, http.StatusNotFound, "no session")
		return
	}

	session.Abort(req.Reason)
	s.writeJSON(w, http.StatusOK, session.Status())
}

type analyzeRequest struct {
	FPS     float64      `json:"fps"`
	Workers int          `json:"workers,omitempty"`
	Start   *geom.Line   `json:"start,omitempty"`
	Finish  *geom.Line   `json:"finish,omitempty"`
	Frames  []pose.Frame `json:"frames"`
}

// analyzeHandler runs batch analysis over an uploaded frame sequence. The
// request either carries its own reference lines or reuses the live
// calibration. Batch runs use a dedicated session and never disturb the
// live one.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.FPS <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "'fps' must be positive")
		return
	}
	if len(req.Frames) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "no frames provided")
		return
	}

	session := timing.NewSession(timing.DefaultConfig(), s.sink)
	if req.Start != nil && req.Finish != nil {
		if _, err := session.Calibrate(*req.Start, *req.Finish, geom.DefaultConfig()); err != nil {
			s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	} else {
		s.mu.Lock()
		cal := s.cal
		s.mu.Unlock()
		if cal == nil {
			s.writeJSONError(w, http.StatusConflict, "no calibration; provide start/finish lines or calibrate first")
			return
		}
		if err := session.UseCalibration(cal); err != nil {
			s.writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
	}

	cfg := run.DefaultBatchConfig(req.FPS)
	if req.Workers > 0 {
		cfg.Workers = req.Workers
	}
	result, err := run.NewBatchAnalyzer(session, cfg).Analyze(req.Frames)
	if err != nil {
		var incomplete *timing.IncompleteRunError
		if errors.As(err, &incomplete) {
			s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.recordResult(session.ID(), "batch", result)
	s.writeJSON(w, http.StatusOK, result)
}
