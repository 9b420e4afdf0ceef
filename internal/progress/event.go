package progress

import (
	"errors"
	"fmt"
	"time"
)

// Type denotes the traversal milestone represented by an Event.
type Type string

// Supported event types.
const (
	TypeStart   Type = "start"
	TypeVisit   Type = "visit"
	TypeIndexed Type = "indexed"
	TypeFinish  Type = "finish"
)

// Event captures a single traversal milestone. The JSON form is what live
// subscribers receive.
type Event struct {
	// TraversalID groups the events of one traversal.
	TraversalID string `json:"traversal_id,omitempty"`
	// Type is the milestone kind.
	Type Type `json:"type"`
	// Source is the cleaned start URL of the traversal.
	Source string `json:"source"`
	// URL is the page being visited or indexed.
	URL string `json:"url,omitempty"`
	// Title is set on indexed events.
	Title string `json:"title,omitempty"`
	// Count is the number of articles indexed; set on finish events.
	Count int `json:"count"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Dur is the traversal runtime on finish events.
	Dur time.Duration `json:"-"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Source == "" {
		return errors.New("source is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeStart, TypeFinish:
	case TypeVisit, TypeIndexed:
		if e.URL == "" {
			return fmt.Errorf("%s event requires url", e.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Count < 0 {
		return errors.New("count must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
