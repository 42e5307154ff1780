// Package api exposes the timing pipeline over HTTP: calibration, session
// lifecycle, frame ingestion, batch analysis, stored results and the
// websocket event stream.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/strideworks/sprintgate/internal/db"
	"github.com/strideworks/sprintgate/internal/geom"
	"github.com/strideworks/sprintgate/internal/run"
	"github.com/strideworks/sprintgate/internal/stream"
	"github.com/strideworks/sprintgate/internal/timeutil"
	"github.com/strideworks/sprintgate/internal/timing"
	"github.com/strideworks/sprintgate/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db    *db.DB
	hub   *stream.Hub
	units string
	clock timeutil.Clock

	mu      sync.Mutex
	session *timing.Session
	runner  *run.LiveRunner
	cal     *geom.Calibration
	cancel  context.CancelFunc
	// resultRecorded guards against concurrent frame posts both observing
	// the finishing transition and persisting the result twice.
	resultRecorded bool
}

// NewServer wires the API over the results store and event hub. db may be
// nil for a store-less deployment; results are then not persisted. units is
// the default display unit for results endpoints.
func NewServer(database *db.DB, hub *stream.Hub, defaultUnits string, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		db:    database,
		hub:   hub,
		units: defaultUnits,
		clock: clock,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/calibrate", s.calibrateHandler)
	mux.HandleFunc("/api/session", s.sessionHandler)
	mux.HandleFunc("/api/session/start", s.startHandler)
	mux.HandleFunc("/api/session/frames", s.framesHandler)
	mux.HandleFunc("/api/session/abort", s.abortHandler)
	mux.HandleFunc("/api/analyze", s.analyzeHandler)
	mux.HandleFunc("/api/results", s.listResults)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/charts/results", s.resultsChart)
	if s.hub != nil {
		mux.Handle("/ws/events", s.hub)
	}
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to write response: %v", err)
	}
}

// sink is the event sink installed on every session the server creates.
// It only fans events out over the websocket hub: it runs under the session
// lock, so it must not block or call back into the server. Results are
// persisted by the handlers that observe completion.
func (s *Server) sink(ev timing.Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

// recordResult persists a completed run. Errors are logged, not surfaced:
// a failed insert must not hide the result from the athlete.
func (s *Server) recordResult(sessionID, mode string, res *timing.Result) {
	if s.db == nil || res == nil {
		return
	}
	if _, err := s.db.RecordResult(db.ResultRow{
		SessionID:      sessionID,
		Mode:           mode,
		DistanceMeters: res.DistanceMeters,
		ElapsedSeconds: res.ElapsedSeconds,
		SpeedMS:        res.SpeedMS,
		SpeedKmh:       res.SpeedKmh,
		RecordedAt:     s.clock.Now(),
	}); err != nil {
		log.Printf("api: failed to record %s result for session %s: %v", mode, sessionID, err)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"units":           s.units,
		"distance_meters": timing.CourseDistanceMeters,
	}
	s.writeJSON(w, http.StatusOK, config)
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "results store not configured")
		return
	}

	targetUnits := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusBadRequest,
				"Invalid 'units' parameter; valid values: "+units.ValidUnitsString())
			return
		}
		targetUnits = u
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	rows, err := s.db.ListResults(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to retrieve results: "+err.Error())
		return
	}

	type resultEntry struct {
		db.ResultRow
		Speed float64 `json:"speed"`
		Units string  `json:"units"`
	}
	entries := make([]resultEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, resultEntry{
			ResultRow: row,
			Speed:     units.Convert(row.SpeedMS, targetUnits),
			Units:     targetUnits,
		})
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "results store not configured")
		return
	}

	stats, err := s.db.ResultStats()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to compute stats: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
