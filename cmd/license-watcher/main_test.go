package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/license-watcher/internal/license"
	"github.com/rcourtman/license-watcher/internal/license/licensetest"
	"github.com/rcourtman/license-watcher/internal/license/watcher"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeCommandWithStderr(t, stdin, args...)
	return out, err
}

func executeCommandWithStderr(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

type verifyFixture struct {
	keyFile string
	dir     string
	signer  *licensetest.Signer
}

func newVerifyFixture(t *testing.T) verifyFixture {
	t.Helper()
	dir := t.TempDir()
	signer := licensetest.NewSigner(t)
	keyFile := filepath.Join(dir, "key.asc")
	require.NoError(t, os.WriteFile(keyFile, signer.PublicKeyArmored(t), 0o600))
	return verifyFixture{keyFile: keyFile, dir: dir, signer: signer}
}

func (f verifyFixture) write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testLicense() map[string]any {
	return map[string]any{
		"version":        1,
		"name":           "Streams test",
		"uuid":           "6f1c2a3e-9c1e-4c55-8d2f-6b1a0e7d4a11",
		"features":       []string{"K8S_STREAM_CCU"},
		"startDate":      "2024-01-01",
		"expirationDate": "2024-12-31",
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "license-watcher dev")
	assert.NotContains(t, out, "Built:")
}

func TestVerifyActiveLicense(t *testing.T) {
	f := newVerifyFixture(t)
	path := f.write(t, "license.asc", f.signer.ClearSignJSON(t, testLicense()))

	out, err := executeCommand(t, "", "verify", "--file", path, "--public-key", f.keyFile, "--date", "2024-06-01")
	require.NoError(t, err)

	var result struct {
		State          string `json:"state"`
		Active         bool   `json:"active"`
		Feature        string `json:"feature"`
		EvaluatedOn    string `json:"evaluatedOn"`
		GracePeriodEnd string `json:"gracePeriodEnd"`
		License        struct {
			Name string `json:"name"`
		} `json:"license"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "ACTIVE", result.State)
	assert.True(t, result.Active)
	assert.Equal(t, "K8S_STREAM_CCU", result.Feature)
	assert.Equal(t, "2024-06-01", result.EvaluatedOn)
	assert.Equal(t, "2025-01-31", result.GracePeriodEnd)
	assert.Equal(t, "Streams test", result.License.Name)
}

func TestVerifyStates(t *testing.T) {
	f := newVerifyFixture(t)
	path := f.write(t, "license.asc", f.signer.ClearSignJSON(t, testLicense()))

	tests := []struct {
		name    string
		args    []string
		state   string
		wantErr bool
	}{
		{name: "grace period", args: []string{"--date", "2025-01-15"}, state: "GRACE_PERIOD"},
		{name: "expired", args: []string{"--date", "2025-02-01"}, state: "INACTIVE", wantErr: true},
		{name: "not started", args: []string{"--date", "2023-12-31"}, state: "INACTIVE", wantErr: true},
		{name: "other feature", args: []string{"--date", "2024-06-01", "--feature", "K8S_BATCH"}, state: "FEATURE_MISSING", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"verify", "-f", path, "--public-key", f.keyFile}, tt.args...)
			out, err := executeCommand(t, "", args...)
			if tt.wantErr {
				require.ErrorIs(t, err, errNotEntitled)
			} else {
				require.NoError(t, err)
			}
			assert.Contains(t, out, `"state": "`+tt.state+`"`)
		})
	}
}

func TestVerifyBase64FromStdin(t *testing.T) {
	f := newVerifyFixture(t)
	value := licensetest.SecretValue(f.signer.ClearSignJSON(t, testLicense()))

	out, err := executeCommand(t, value, "verify", "--file", "-", "--base64", "--public-key", f.keyFile, "--date", "2024-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "ACTIVE"`)
}

func TestVerifyRejectsTamperedLicense(t *testing.T) {
	f := newVerifyFixture(t)
	signed := f.signer.ClearSignJSON(t, testLicense())
	tampered := bytes.Replace(signed, []byte("2024-12-31"), []byte("2099-12-31"), 1)
	path := f.write(t, "tampered.asc", tampered)

	out, err := executeCommand(t, "", "verify", "--file", path, "--public-key", f.keyFile)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errNotEntitled))
	assert.Empty(t, out)
}

func TestVerifyInputErrors(t *testing.T) {
	f := newVerifyFixture(t)
	path := f.write(t, "license.asc", f.signer.ClearSignJSON(t, testLicense()))

	_, err := executeCommand(t, "", "verify")
	require.Error(t, err, "--file is required")

	_, err = executeCommand(t, "", "verify", "--file", filepath.Join(f.dir, "missing"))
	require.ErrorContains(t, err, "read license file")

	_, err = executeCommand(t, "", "verify", "--file", path, "--public-key", f.keyFile, "--date", "01/02/2024")
	require.ErrorContains(t, err, "parse date")

	_, err = executeCommand(t, "not base64!", "verify", "--file", "-", "--base64", "--public-key", f.keyFile)
	require.ErrorContains(t, err, "decode base64 license")

	_, err = executeCommand(t, "", "verify", "--file", path, "--public-key", filepath.Join(f.dir, "nokey"))
	require.ErrorContains(t, err, "load trust anchor")
}

func TestVerifyLogsQuietlyByDefault(t *testing.T) {
	f := newVerifyFixture(t)
	path := f.write(t, "license.asc", f.signer.ClearSignJSON(t, testLicense()))

	_, stderr, err := executeCommandWithStderr(t, "", "verify", "--file", path, "--public-key", f.keyFile, "--date", "2024-06-01")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	_, stderr, err = executeCommandWithStderr(t, "", "--log-level", "debug", "--log-format", "json",
		"verify", "--file", path, "--public-key", f.keyFile, "--date", "2024-06-01")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"component":"license-verify"`)
	assert.Contains(t, stderr, "License trust anchor loaded from file")
}

func TestVerifyRejectsBadLogFlags(t *testing.T) {
	_, err := executeCommand(t, "", "--log-format", "xml", "verify", "--file", "-")
	require.ErrorContains(t, err, `invalid log format "xml"`)

	_, err = executeCommand(t, "", "--log-level", "chatty", "verify", "--file", "-")
	require.ErrorContains(t, err, `invalid log level "chatty"`)
}

func TestLogFlagsResolve(t *testing.T) {
	level, format, err := (&logFlags{}).resolve("info", "auto")
	require.NoError(t, err)
	assert.Equal(t, "info", level)
	assert.Equal(t, "auto", format)

	level, format, err = (&logFlags{level: "DEBUG", format: "Console"}).resolve("info", "auto")
	require.NoError(t, err)
	assert.Equal(t, "debug", level)
	assert.Equal(t, "console", format)
}

func TestVerifyEmbeddedFixture(t *testing.T) {
	out, err := executeCommand(t, "", "verify", "--file", "../../internal/license/testdata/unit-test-key.signed")
	require.ErrorIs(t, err, errNotEntitled)
	assert.Contains(t, out, `"state": "FEATURE_MISSING"`)
}

type stubStatus struct {
	status watcher.Status
	ok     bool
}

func (s stubStatus) Status() (watcher.Status, bool) { return s.status, s.ok }

func TestStatusHandler(t *testing.T) {
	checked := time.Date(2024, 2, 3, 10, 30, 0, 0, time.UTC)
	ready := statusHandler(stubStatus{ok: true, status: watcher.Status{
		State:     license.StateGracePeriod,
		Active:    true,
		Reason:    "License is in grace period.",
		CheckedAt: checked,
	}})
	pending := statusHandler(stubStatus{})

	get := func(h http.Handler, method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := get(ready, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, get(pending, http.MethodGet, "/healthz").Code)

	assert.Equal(t, http.StatusOK, get(ready, http.MethodGet, "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(pending, http.MethodGet, "/readyz").Code)

	rec = get(ready, http.MethodGet, "/license")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "GRACE_PERIOD", body["state"])
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "2024-02-03T10:30:00Z", body["checkedAt"])
	assert.NotContains(t, body, "license")

	assert.Equal(t, http.StatusServiceUnavailable, get(pending, http.MethodGet, "/license").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(ready, http.MethodPost, "/license").Code)

	rec = get(ready, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServeStatusStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveStatus(ctx, addr, statusHandler(stubStatus{}))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serveStatus did not return after cancel")
	}
}

func TestServeStatusListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = serveStatus(context.Background(), ln.Addr().String(), http.NotFoundHandler())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status server")
}
