package watcher

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rcourtman/license-watcher/internal/license"
)

type diagnostic struct {
	level  zerolog.Level
	reason string
	note   string
}

// stateDiagnostics is indexed by license.State. ACTIVE never produces an
// event; its entry only drives logging.
var stateDiagnostics = [...]diagnostic{
	license.StateMissing: {
		level:  zerolog.ErrorLevel,
		reason: "No License found.",
		note:   "Please provide a valid License in the License secret.",
	},
	license.StateFeatureMissing: {
		level:  zerolog.ErrorLevel,
		reason: "License has no streaming feature (%s).",
		note:   "Please provide a License with streaming feature.",
	},
	license.StateDateMissing: {
		level:  zerolog.ErrorLevel,
		reason: "License has no start/expiration date.",
		note:   "Please provide a valid License with proper dates.",
	},
	license.StateInactive: {
		level:  zerolog.ErrorLevel,
		reason: "License is inactive.",
		note:   "Please provide a valid License in the License secret.",
	},
	license.StateActive: {
		level:  zerolog.InfoLevel,
		reason: "License is active.",
	},
	license.StateGracePeriod: {
		level:  zerolog.WarnLevel,
		reason: "License is in grace period.",
		note:   "Please provide a newer License in the License secret.",
	},
}

// Adding a license state without a diagnostic fails to compile.
var _ = [1]struct{}{}[len(stateDiagnostics)-license.Count]

// Outcomes that are reported as MISSING but need their own wording.
var (
	noLicenseDiagnostic = diagnostic{
		level:  zerolog.ErrorLevel,
		reason: "No license found.",
		note:   "Please provide a valid license in the license secret.",
	}
	verificationFailedDiagnostic = diagnostic{
		level:  zerolog.ErrorLevel,
		reason: "License verification failed.",
		note:   "Please provide a valid license in the license secret.",
	}
)

func diagnosticFor(state license.State, feature string) diagnostic {
	d := stateDiagnostics[state]
	if state == license.StateFeatureMissing {
		d.reason = fmt.Sprintf(d.reason, feature)
	}
	return d
}
