package session

import "encoding/json"

// State is the submission lifecycle state
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateResulted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateResulted:
		return "resulted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Class is the displayed verdict derived from the probability
type Class string

const (
	ClassAI    Class = "ai-generated"
	ClassHuman Class = "human-written"
)
