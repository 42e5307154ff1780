package run

import (
	"context"
	"testing"
	"time"

	"github.com/strideworks/sprintgate/internal/geom"
	"github.com/strideworks/sprintgate/internal/pose"
	"github.com/strideworks/sprintgate/internal/timeutil"
	"github.com/strideworks/sprintgate/internal/timing"
)

func calibrated30m(t *testing.T, sink timing.EventSink) *timing.Session {
	t.Helper()
	s := timing.NewSession(timing.DefaultConfig(), sink)
	start := geom.Line{Role: geom.StartLine, P1: geom.Point{X: 100, Y: 0}, P2: geom.Point{X: 100, Y: 720}}
	finish := geom.Line{Role: geom.FinishLine, P1: geom.Point{X: 1300, Y: 0}, P2: geom.Point{X: 1300, Y: 720}}
	if _, err := s.Calibrate(start, finish, geom.DefaultConfig()); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	return s
}

func hipFrame(idx int64, x float64) pose.Frame {
	kps := make([]pose.Keypoint, pose.NumKeypoints)
	kps[pose.LeftHip] = pose.Keypoint{X: x - 10, Y: 360, Confidence: 0.9}
	kps[pose.RightHip] = pose.Keypoint{X: x + 10, Y: 360, Confidence: 0.9}
	return pose.Frame{Index: idx, Keypoints: kps}
}

func TestLiveRunnerCountdownSequence(t *testing.T) {
	events := make(chan timing.Event, 32)
	session := calibrated30m(t, func(ev timing.Event) { events <- ev })
	drainSetupEvents(t, events) // calibrated, armed

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	cfg := DefaultLiveConfig()
	cfg.CountdownSeconds = 3
	runner := NewLiveRunner(session, clock, cfg)

	done := make(chan error, 1)
	go func() { done <- runner.Start(context.Background()) }()

	for _, want := range []string{"3", "2", "1"} {
		ev := recvEvent(t, events)
		if ev.Type != timing.EventCountdown || ev.Message != want {
			t.Fatalf("got event %s %q, want countdown %q", ev.Type, ev.Message, want)
		}
		clock.Advance(time.Second)
	}

	ev := recvEvent(t, events)
	if ev.Type != timing.EventCountdown || ev.Message != "go" {
		t.Fatalf("got event %s %q, want countdown \"go\"", ev.Type, ev.Message)
	}
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if session.State() != timing.StateRunning {
		t.Errorf("state = %s, want running", session.State())
	}
}

func TestLiveRunnerCancelledCountdownAborts(t *testing.T) {
	events := make(chan timing.Event, 32)
	session := calibrated30m(t, func(ev timing.Event) { events <- ev })
	drainSetupEvents(t, events)

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	runner := NewLiveRunner(session, clock, DefaultLiveConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx) }()

	recvEvent(t, events) // first countdown cue
	cancel()

	if err := <-done; err != context.Canceled {
		t.Fatalf("Start = %v, want context.Canceled", err)
	}
	if session.State() != timing.StateAborted {
		t.Errorf("state = %s, want aborted", session.State())
	}
}

func TestLiveRunnerWallClockTiming(t *testing.T) {
	session := calibrated30m(t, nil)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	cfg := DefaultLiveConfig()
	cfg.CountdownSeconds = 0
	runner := NewLiveRunner(session, clock, cfg)

	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Frames arrive at 1s intervals on the wall clock; crossings land on
	// the interpolated midpoints.
	clock.Advance(time.Second)
	runner.ProcessFrame(hipFrame(0, 95)) // t=1.0, 5px before start
	clock.Advance(time.Second)
	runner.ProcessFrame(hipFrame(1, 105)) // t=2.0, 5px after: start at t=1.5
	clock.Advance(time.Second)
	runner.ProcessFrame(hipFrame(2, 1295)) // t=3.0
	clock.Advance(time.Second)
	state := runner.ProcessFrame(hipFrame(3, 1305)) // t=4.0: finish at t=3.5

	if state != timing.StateFinished {
		t.Fatalf("state = %s, want finished", state)
	}
	res := session.Result()
	if res == nil {
		t.Fatal("no result")
	}
	if res.ElapsedSeconds != 2.0 {
		t.Errorf("elapsed = %v, want 2.0", res.ElapsedSeconds)
	}
	if res.SpeedMS != 15.0 {
		t.Errorf("speedMS = %v, want 15.0", res.SpeedMS)
	}
}

func TestLiveRunnerFramesDuringStartTransition(t *testing.T) {
	// Start runs in its own goroutine in the server; frames can land the
	// moment the session turns running. The time base must already be
	// published by then, or those frames get timestamped against a zero
	// base and corrupt the crossing brackets.
	for i := 0; i < 20; i++ {
		session := calibrated30m(t, nil)
		clock := timeutil.NewMockClock(time.Unix(1000, 0))
		cfg := DefaultLiveConfig()
		cfg.CountdownSeconds = 0
		runner := NewLiveRunner(session, clock, cfg)

		done := make(chan error, 1)
		go func() { done <- runner.Start(context.Background()) }()

		// Hammer the ingestion path while Start races to publish the base.
		for session.State() != timing.StateRunning {
			runner.ProcessFrame(hipFrame(0, 95))
		}
		if err := <-done; err != nil {
			t.Fatalf("iteration %d: Start: %v", i, err)
		}

		clock.Advance(time.Second)
		runner.ProcessFrame(hipFrame(1, 95))
		clock.Advance(time.Second)
		runner.ProcessFrame(hipFrame(2, 105)) // start at t=1.5
		clock.Advance(time.Second)
		runner.ProcessFrame(hipFrame(3, 1295))
		clock.Advance(time.Second)
		state := runner.ProcessFrame(hipFrame(4, 1305)) // finish at t=3.5

		if state != timing.StateFinished {
			t.Fatalf("iteration %d: state = %s, want finished (abort reason: %q)",
				i, state, session.Status().AbortReason)
		}
		if res := session.Result(); res.ElapsedSeconds != 2.0 {
			t.Errorf("iteration %d: elapsed = %v, want 2.0", i, res.ElapsedSeconds)
		}
	}
}

func TestLiveRunnerAbort(t *testing.T) {
	session := calibrated30m(t, nil)
	runner := NewLiveRunner(session, timeutil.RealClock{}, DefaultLiveConfig())

	runner.Abort("user reset")
	if session.State() != timing.StateAborted {
		t.Errorf("state = %s, want aborted", session.State())
	}
}

func recvEvent(t *testing.T, events <-chan timing.Event) timing.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return timing.Event{}
	}
}

func drainSetupEvents(t *testing.T, events <-chan timing.Event) {
	t.Helper()
	for i := 0; i < 2; i++ { // calibrated + armed
		recvEvent(t, events)
	}
}
