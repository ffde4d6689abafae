package license

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// releaseKeyBlock is the armored keyring licenses are signed with. It holds
// the release signing keys and the unit-test key used by fixtures.
//
//go:embed keys/release.asc
var releaseKeyBlock []byte

var defaultAnchor = sync.OnceValues(func() (*TrustAnchor, error) {
	return ParseTrustAnchor(releaseKeyBlock)
})

// DefaultTrustAnchor returns the embedded release keyring, parsed once per
// process.
func DefaultTrustAnchor() (*TrustAnchor, error) {
	return defaultAnchor()
}

// LoadTrustAnchor returns the keyring at path, or the embedded keyring when
// path is empty. Overriding the anchor is intended for staging issuers.
func LoadTrustAnchor(path string) (*TrustAnchor, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		anchor, err := DefaultTrustAnchor()
		if err == nil {
			log.Debug().Strs("keyIDs", anchor.KeyIDs()).Msg("License trust anchor loaded from embedded key block")
		}
		return anchor, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust anchor %s: %w", path, err)
	}
	anchor, err := ParseTrustAnchor(data)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("path", path).
		Strs("keyIDs", anchor.KeyIDs()).
		Msg("License trust anchor loaded from file")
	return anchor, nil
}
