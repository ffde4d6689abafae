package license

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	licerrors "github.com/rcourtman/license-watcher/internal/errors"
)

// License is the decoded payload of a verified license document. Values are
// built fresh on every verification and never mutated afterwards.
type License struct {
	Version          int       `json:"version"`
	Name             string    `json:"name"`
	UUID             uuid.UUID `json:"uuid"`
	Features         []string  `json:"features,omitempty"`
	StartDate        *Date     `json:"startDate,omitempty"`
	ExpirationDate   *Date     `json:"expirationDate,omitempty"`
	DeactivationDate *Date     `json:"deactivationDate,omitempty"`
}

// HasFeature reports whether the license grants feature. An entry matches
// when it equals feature ignoring case, or when it is a tagged capability of
// the form "feature:value".
func (l *License) HasFeature(feature string) bool {
	if l == nil || feature == "" {
		return false
	}
	tagged := feature + ":"
	for _, f := range l.Features {
		if strings.EqualFold(f, feature) || strings.HasPrefix(f, tagged) {
			return true
		}
	}
	return false
}

// Parse decodes a verified JSON payload. Unknown fields are ignored.
func Parse(payload []byte) (*License, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, licerrors.Decode("parse_license", fmt.Errorf("payload is empty"))
	}

	var l License
	if err := json.Unmarshal(payload, &l); err != nil {
		return nil, licerrors.Decode("parse_license", err)
	}
	return &l, nil
}
