package watcher

import (
	"time"

	"github.com/rcourtman/license-watcher/internal/license"
)

const (
	// EventAction identifies license diagnostics among other events.
	EventAction = "LicenseCheck"
	// EventTypeWarning is the severity of every license diagnostic.
	EventTypeWarning = "Warning"
	// StateAnnotation carries the license state name on each event.
	StateAnnotation = "csm/license-state"
)

// ObjectReference points at the workload a diagnostic is about.
type ObjectReference struct {
	APIVersion string
	Kind       string
	Namespace  string
	Name       string
}

// Event is one diagnostic emitted for a non-active check outcome.
type Event struct {
	Action      string
	Type        string
	Reason      string
	Note        string
	State       license.State
	Annotations map[string]string
	Regarding   ObjectReference
	// Time has microsecond precision.
	Time time.Time
}

func newEvent(state license.State, d diagnostic, regarding ObjectReference, now time.Time) Event {
	return Event{
		Action:      EventAction,
		Type:        EventTypeWarning,
		Reason:      d.reason,
		Note:        d.note,
		State:       state,
		Annotations: map[string]string{StateAnnotation: state.String()},
		Regarding:   regarding,
		Time:        now.Truncate(time.Microsecond),
	}
}
