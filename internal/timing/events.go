package timing

import "time"

// EventType identifies a discrete session notification.
type EventType string

const (
	EventCalibrated EventType = "calibrated"
	EventArmed      EventType = "armed"
	EventCountdown  EventType = "countdown"
	EventStarted    EventType = "started"
	EventFinished   EventType = "finished"
	EventAborted    EventType = "aborted"
)

// Event is a single state-change notification for the voice/UI collaborator.
// Each occurrence is delivered once; events are not a stream of samples.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	// Message carries the countdown cue or abort reason when relevant.
	Message string `json:"message,omitempty"`
	// Result is set on finished events only.
	Result *Result   `json:"result,omitempty"`
	At     time.Time `json:"at"`
}

// EventSink receives session events. Implementations must not block for
// long: events are emitted from the frame-processing path.
type EventSink func(Event)
