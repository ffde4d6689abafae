package license

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rcourtman/license-watcher/internal/license/licensetest"
)

func TestDefaultTrustAnchorIsParsedOnce(t *testing.T) {
	first, err := DefaultTrustAnchor()
	if err != nil {
		t.Fatalf("DefaultTrustAnchor: %v", err)
	}
	second, err := DefaultTrustAnchor()
	if err != nil {
		t.Fatalf("DefaultTrustAnchor second call: %v", err)
	}
	if first != second {
		t.Fatal("expected the embedded anchor to be parsed once and shared")
	}

	found := false
	for _, id := range first.KeyIDs() {
		if id == "5AC2D804EDE60A10" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unit-test key in embedded anchor, got %v", first.KeyIDs())
	}
}

func TestLoadTrustAnchor(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		wantErr bool
	}{
		{
			name:  "empty path uses embedded keyring",
			setup: func(t *testing.T) string { return "  " },
		},
		{
			name: "key file",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "anchor.asc")
				if err := os.WriteFile(path, licensetest.NewSigner(t).PublicKeyArmored(t), 0o600); err != nil {
					t.Fatal(err)
				}
				return path
			},
		},
		{
			name:    "missing file",
			setup:   func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.asc") },
			wantErr: true,
		},
		{
			name: "not a key block",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "anchor.asc")
				if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
					t.Fatal(err)
				}
				return path
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anchor, err := LoadTrustAnchor(tt.setup(t))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadTrustAnchor: %v", err)
			}
			if len(anchor.KeyIDs()) == 0 {
				t.Fatal("expected at least one key")
			}
		})
	}
}
