// Package config loads the license watcher settings from an optional .env
// file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rcourtman/license-watcher/internal/license"
	"github.com/rcourtman/license-watcher/internal/license/watcher"
	"github.com/rcourtman/license-watcher/internal/logging"
)

const (
	DefaultEnvFile        = "./.env"
	DefaultSecretName     = "csm-op-license"
	DefaultDeploymentName = "strimzi-cluster-operator"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "auto"
	DefaultMetricsAddr    = ":9091"
)

// serviceAccountNamespaceFile is where the in-cluster namespace is mounted.
var serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// Config holds the runtime settings.
type Config struct {
	EnvFile string

	SecretName      string
	Namespace       string
	DeploymentName  string
	RequiredFeature string
	CheckInterval   time.Duration
	PublicKeyFile   string

	Kubeconfig  string
	KubeContext string

	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the .env file named by LICENSE_WATCHER_ENV_FILE, if present, and
// then the environment. Variables already set in the environment win over the
// file. The result is validated.
func Load() (*Config, error) {
	envFile := envOr("LICENSE_WATCHER_ENV_FILE", DefaultEnvFile)
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		log.Debug().Str("path", envFile).Msg("Loaded env file")
	}

	cfg := &Config{
		EnvFile:         envFile,
		SecretName:      envOr("LICENSE_SECRET_NAME", DefaultSecretName),
		Namespace:       namespace(),
		DeploymentName:  envOr("OPERATOR_DEPLOYMENT_NAME", DefaultDeploymentName),
		RequiredFeature: envOr("LICENSE_REQUIRED_FEATURE", license.DefaultRequiredFeature),
		CheckInterval:   watcher.DefaultInterval,
		PublicKeyFile:   strings.TrimSpace(os.Getenv("LICENSE_PUBLIC_KEY_FILE")),
		Kubeconfig:      strings.TrimSpace(os.Getenv("KUBECONFIG")),
		KubeContext:     strings.TrimSpace(os.Getenv("KUBE_CONTEXT")),
		LogLevel:        strings.ToLower(envOr("LOG_LEVEL", DefaultLogLevel)),
		LogFormat:       strings.ToLower(envOr("LOG_FORMAT", DefaultLogFormat)),
		MetricsAddr:     DefaultMetricsAddr,
	}

	if val, ok := os.LookupEnv("METRICS_ADDR"); ok {
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if val := strings.TrimSpace(os.Getenv("LICENSE_CHECK_INTERVAL")); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid LICENSE_CHECK_INTERVAL %q: %w", val, err)
		}
		cfg.CheckInterval = interval
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the watcher cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.SecretName == "" {
		errs = append(errs, errors.New("secret name is required"))
	}
	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace is required (set OPERATOR_NAMESPACE)"))
	}
	if c.DeploymentName == "" {
		errs = append(errs, errors.New("deployment name is required"))
	}
	if c.RequiredFeature == "" {
		errs = append(errs, errors.New("required feature is required"))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("check interval must be positive, got %s", c.CheckInterval))
	}
	if !logging.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if !logging.ValidFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Regarding is the workload license events are attached to.
func (c *Config) Regarding() watcher.ObjectReference {
	return watcher.ObjectReference{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Namespace:  c.Namespace,
		Name:       c.DeploymentName,
	}
}

func namespace() string {
	for _, key := range []string{"OPERATOR_NAMESPACE", "POD_NAMESPACE"} {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	data, err := os.ReadFile(serviceAccountNamespaceFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
