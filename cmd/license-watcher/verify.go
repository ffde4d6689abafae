package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/rcourtman/license-watcher/internal/license"
	"github.com/rcourtman/license-watcher/internal/logging"
)

type verifyOptions struct {
	file      string
	feature   string
	date      string
	base64    bool
	publicKey string
}

type verifyResult struct {
	License        *license.License `json:"license"`
	State          license.State    `json:"state"`
	Active         bool             `json:"active"`
	Feature        string           `json:"feature"`
	EvaluatedOn    license.Date     `json:"evaluatedOn"`
	GracePeriodEnd *license.Date    `json:"gracePeriodEnd,omitempty"`
}

// Verify only logs warnings unless asked, so stderr stays quiet next to the
// JSON result on stdout.
const verifyLogLevel = "warn"

func newVerifyCmd(logs *logFlags) *cobra.Command {
	opts := verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a license file offline and print its state",
		Long: `Verify checks the signature of a clear-signed license against the trust
anchor, evaluates it for the required feature and prints the result as JSON.
The exit code is 1 unless the license is ACTIVE or in its GRACE_PERIOD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, format, err := logs.resolve(verifyLogLevel, "auto")
			if err != nil {
				return err
			}
			logging.Init(logging.Config{
				Format:    format,
				Level:     level,
				Component: "license-verify",
				Output:    cmd.ErrOrStderr(),
			})
			return runVerify(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", `license file, or "-" for stdin`)
	flags.StringVar(&opts.feature, "feature", license.DefaultRequiredFeature, "feature the license must grant")
	flags.StringVar(&opts.date, "date", "", "evaluate as of this day (YYYY-MM-DD, default today UTC)")
	flags.BoolVar(&opts.base64, "base64", false, "the file holds the base64 secret value")
	flags.StringVar(&opts.publicKey, "public-key", "", "armored keyring overriding the embedded trust anchor")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runVerify(cmd *cobra.Command, opts verifyOptions) error {
	raw, err := readLicenseInput(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}
	if opts.base64 {
		raw, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
		if err != nil {
			return fmt.Errorf("decode base64 license: %w", err)
		}
	}

	clock := clockwork.NewRealClock()
	if opts.date != "" {
		day, err := license.ParseDate(opts.date)
		if err != nil {
			return err
		}
		clock = clockwork.NewFakeClockAt(day.Time())
	}

	anchor, err := license.LoadTrustAnchor(opts.publicKey)
	if err != nil {
		return fmt.Errorf("load trust anchor: %w", err)
	}

	checker := license.NewChecker(anchor, opts.feature, clock)
	l, err := checker.Verify(raw)
	if err != nil {
		return err
	}

	state := checker.State(l)
	result := verifyResult{
		License:     l,
		State:       state,
		Active:      state.Entitled(),
		Feature:     checker.Feature(),
		EvaluatedOn: checker.Today(),
	}
	if l.ExpirationDate != nil {
		end := license.GracePeriodEnd(l)
		result.GracePeriodEnd = &end
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	if !result.Active {
		return errNotEntitled
	}
	return nil
}

func readLicenseInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read license from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read license file: %w", err)
	}
	return data, nil
}
