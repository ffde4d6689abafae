package license

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rcourtman/license-watcher/internal/license/clearsign"
)

// DefaultRequiredFeature is the capability the operator needs to run.
const DefaultRequiredFeature = "K8S_STREAM_CCU"

// Checker verifies license documents against a trust anchor and evaluates
// them for one required feature using an injected clock.
type Checker struct {
	anchor  *TrustAnchor
	feature string
	clock   clockwork.Clock
}

// NewChecker builds a Checker. A nil clock uses the wall clock and an empty
// feature uses DefaultRequiredFeature.
func NewChecker(anchor *TrustAnchor, feature string, clock clockwork.Clock) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if feature == "" {
		feature = DefaultRequiredFeature
	}
	return &Checker{anchor: anchor, feature: feature, clock: clock}
}

// Feature returns the capability the checker requires.
func (c *Checker) Feature() string {
	return c.feature
}

// Verify decodes an armored clear-signed document, checks its signature and
// parses the signed payload.
func (c *Checker) Verify(armored []byte) (*License, error) {
	msg, err := clearsign.Decode(armored)
	if err != nil {
		return nil, err
	}
	if err := VerifyMessage(msg, c.anchor); err != nil {
		return nil, err
	}
	return Parse(msg.Content)
}

// Today is the current calendar day in UTC.
func (c *Checker) Today() Date {
	return DateOf(c.clock.Now().In(time.UTC))
}

// State evaluates l for the checker's feature as of today.
func (c *Checker) State(l *License) State {
	return Evaluate(l, c.Today(), c.feature)
}
