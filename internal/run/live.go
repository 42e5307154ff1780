// Package run provides the two thin mode drivers over the shared session
// core: live camera timing and batch video analysis. Both construct a
// calibration, feed frames and react to emitted events; they differ only in
// time source and pacing.
package run

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strideworks/sprintgate/internal/pose"
	"github.com/strideworks/sprintgate/internal/timeutil"
	"github.com/strideworks/sprintgate/internal/timing"
)

// LiveConfig holds live-mode driver settings.
type LiveConfig struct {
	// CountdownSeconds is the 3-2-1-go sequence length before the session
	// starts accepting crossings. Zero skips the countdown; the caller
	// triggers Start directly.
	CountdownSeconds int
	// Adapter extracts the reference point from incoming frames.
	Adapter pose.AdapterConfig
}

// DefaultLiveConfig returns the standard live-mode settings.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		CountdownSeconds: 3,
		Adapter:          pose.DefaultAdapterConfig(),
	}
}

// LiveRunner drives a session from a live camera collaborator. Frames are
// timestamped with the wall clock as they arrive; pacing is whatever the
// camera delivers. Voice cues ride on the session's event sink.
type LiveRunner struct {
	session *timing.Session
	clock   timeutil.Clock
	cfg     LiveConfig

	// base is the wall-clock zero for session time. Start runs in its own
	// goroutine while frames arrive on the ingestion path, so mu covers
	// both publishing base together with the running transition and
	// reading it to timestamp a frame.
	mu   sync.Mutex
	base time.Time
}

// NewLiveRunner wraps an armed session for live frame delivery.
func NewLiveRunner(session *timing.Session, clock timeutil.Clock, cfg LiveConfig) *LiveRunner {
	return &LiveRunner{session: session, clock: clock, cfg: cfg}
}

// Session exposes the underlying session for status queries.
func (r *LiveRunner) Session() *timing.Session { return r.session }

// Start begins the run, preceded by the configured countdown. It blocks
// through the countdown (run it in a goroutine) and is cancellable; a
// cancelled countdown aborts the session.
func (r *LiveRunner) Start(ctx context.Context) error {
	for i := r.cfg.CountdownSeconds; i > 0; i-- {
		// Timer first so a test clock advanced on seeing the cue always
		// finds the timer registered.
		timer := r.clock.NewTimer(time.Second)
		r.session.Emit(timing.EventCountdown, fmt.Sprintf("%d", i))
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			r.session.Abort("countdown cancelled")
			return ctx.Err()
		}
	}

	// Publish the zero point and flip the session to running under the same
	// lock frames are timestamped under: a frame can then never observe the
	// running state while still holding a stale base.
	r.mu.Lock()
	r.base = r.clock.Now()
	err := r.session.Start()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.session.Emit(timing.EventCountdown, "go")
	log.Printf("live session %s running", r.session.ID())
	return nil
}

// ProcessFrame feeds one pose frame at its wall-clock arrival time.
// Synchronous and non-blocking; frames before Start are ignored by the
// session.
func (r *LiveRunner) ProcessFrame(frame pose.Frame) timing.State {
	tp := pose.ExtractReferencePoint(frame, r.cfg.Adapter)
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.clock.Since(r.base).Seconds()
	return r.session.ProcessFrame(tp, t)
}

// Abort cancels the attempt.
func (r *LiveRunner) Abort(reason string) {
	r.session.Abort(reason)
}
