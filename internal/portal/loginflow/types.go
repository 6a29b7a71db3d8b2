package loginflow

import "time"

// State is the lifecycle of a view instance.
type State int

const (
	Idle State = iota
	Submitting
	// NavigatingAway is terminal.
	NavigatingAway
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case NavigatingAway:
		return "navigating_away"
	default:
		return "unknown"
	}
}

// Outcome classifies a finished submit attempt.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota + 1
	OutcomeRejected
	OutcomeMalformedResponse
	OutcomeTransportError
	OutcomeStorageFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRejected:
		return "rejected"
	case OutcomeMalformedResponse:
		return "malformed_response"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeStorageFailed:
		return "storage_failed"
	default:
		return "unknown"
	}
}

// Result describes what a submit attempt did.
type Result struct {
	Outcome Outcome
	// Message is the text shown to the user.
	Message string
	// Status is the upstream HTTP status for rejected attempts.
	Status int
	// Destination and Delay are set on success.
	Destination string
	Delay       time.Duration
	// Err is the underlying cause, for logging only.
	Err error
}

// Succeeded reports whether the attempt stored a token and scheduled navigation.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// Tone is the visual variant of a toast.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneError   Tone = "danger"
	ToneInfo    Tone = "info"
)

// Toast is a transient user notification.
type Toast struct {
	Tone    Tone   `json:"tone"`
	Message string `json:"message"`
}
