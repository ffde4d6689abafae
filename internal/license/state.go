package license

import (
	"fmt"
	"strings"
)

// GracePeriodMonths is how long an expired license keeps working unless its
// deactivation date extends further.
const GracePeriodMonths = 1

// State is the lifecycle verdict for a license on a given day.
type State int

const (
	StateMissing State = iota
	StateFeatureMissing
	StateDateMissing
	StateInactive
	StateActive
	StateGracePeriod

	numStates
)

var stateNames = [...]string{
	StateMissing:        "MISSING",
	StateFeatureMissing: "FEATURE_MISSING",
	StateDateMissing:    "DATE_MISSING",
	StateInactive:       "INACTIVE",
	StateActive:         "ACTIVE",
	StateGracePeriod:    "GRACE_PERIOD",
}

var _ = [1]struct{}{}[len(stateNames)-int(numStates)]

// States lists every state in declaration order.
func States() []State {
	out := make([]State, 0, numStates)
	for s := State(0); s < numStates; s++ {
		out = append(out, s)
	}
	return out
}

// Count is the number of defined states. Tables indexed by State use it to
// assert they are complete.
const Count = int(numStates)

func (s State) String() string {
	if s < 0 || s >= numStates {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Entitled reports whether the product may run in this state.
func (s State) Entitled() bool {
	return s == StateActive || s == StateGracePeriod
}

func (s State) MarshalText() ([]byte, error) {
	if s < 0 || s >= numStates {
		return nil, fmt.Errorf("unknown license state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState maps a state name back to its value.
func ParseState(name string) (State, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for s, n := range stateNames {
		if n == name {
			return State(s), nil
		}
	}
	return 0, fmt.Errorf("unknown license state %q", name)
}

// Evaluate derives the state of l on day today. The first matching rule wins:
// no license, required feature absent, start or expiration date absent,
// not started, within validity, within grace, otherwise inactive. All
// comparisons include the boundary day.
func Evaluate(l *License, today Date, requiredFeature string) State {
	if l == nil {
		return StateMissing
	}
	if !l.HasFeature(requiredFeature) {
		return StateFeatureMissing
	}
	if l.StartDate == nil || l.ExpirationDate == nil {
		return StateDateMissing
	}
	if today.Before(*l.StartDate) {
		return StateInactive
	}
	if !today.After(*l.ExpirationDate) {
		return StateActive
	}
	if !today.After(GracePeriodEnd(l)) {
		return StateGracePeriod
	}
	return StateInactive
}

// GracePeriodEnd is the last day of the grace period: one month after
// expiration, or the deactivation date when that is later. The expiration
// date must be set.
func GracePeriodEnd(l *License) Date {
	end := l.ExpirationDate.AddMonths(GracePeriodMonths)
	if l.DeactivationDate != nil && l.DeactivationDate.After(end) {
		return *l.DeactivationDate
	}
	return end
}
