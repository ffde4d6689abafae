package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rcourtman/license-watcher/internal/logging"
)

// reloadDebounce gives editors time to finish writing the file.
var reloadDebounce = 100 * time.Millisecond

// ConfigWatcher monitors the .env file and applies LOG_LEVEL changes at
// runtime. Other settings need a restart.
type ConfigWatcher struct {
	config   *Config
	envPath  string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

// NewConfigWatcher creates a new config watcher for cfg.EnvFile.
func NewConfigWatcher(cfg *Config) (*ConfigWatcher, error) {
	envPath := cfg.EnvFile
	if envPath == "" {
		envPath = DefaultEnvFile
	}
	absPath, err := filepath.Abs(envPath)
	if err == nil {
		envPath = absPath
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		config:   cfg,
		envPath:  envPath,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}, nil
}

// Start watches the directory holding the .env file, so the file may be
// created after startup.
func (cw *ConfigWatcher) Start() error {
	dir := filepath.Dir(cw.envPath)
	if err := cw.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory")
		return err
	}

	go cw.handleEvents(cw.watcher.Events, cw.watcher.Errors)
	log.Info().
		Str("env_path", cw.envPath).
		Msg("Started watching config file for changes")
	return nil
}

// Stop stops the config watcher. It is safe to call more than once.
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		if err := cw.watcher.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close config watcher")
		}
	})
}

// ReloadConfig re-reads the .env file immediately, e.g. on SIGHUP.
func (cw *ConfigWatcher) ReloadConfig() {
	cw.reloadConfig()
}

func (cw *ConfigWatcher) handleEvents(events <-chan fsnotify.Event, errors <-chan error) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.envPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Debounce - wait a bit for write to complete
			select {
			case <-time.After(reloadDebounce):
			case <-cw.stopChan:
				return
			}
			log.Info().Str("event", event.Op.String()).Msg("Detected .env file change")
			cw.reloadConfig()

		case err, ok := <-errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) reloadConfig() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	envMap, err := godotenv.Read(cw.envPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Msg("Failed to read .env file")
		}
		return
	}

	raw, ok := envMap["LOG_LEVEL"]
	if !ok {
		log.Debug().Msg("No relevant changes detected in .env file")
		return
	}

	level := strings.ToLower(strings.Trim(strings.TrimSpace(raw), `'"`))
	if level == "" {
		level = DefaultLogLevel
	}
	if !logging.ValidLevel(level) {
		log.Warn().Str("level", level).Msg("Ignoring invalid LOG_LEVEL in .env file")
		return
	}
	if level == cw.config.LogLevel {
		log.Debug().Msg("No relevant changes detected in .env file")
		return
	}

	previous := cw.config.LogLevel
	cw.config.LogLevel = level
	applied, changed := logging.SetLevel(level)
	log.Info().
		Str("previous", previous).
		Str("level", applied.String()).
		Bool("changed", changed).
		Msg("Applied .env file changes to runtime config")
}

// LogLevel returns the level currently applied from configuration.
func (cw *ConfigWatcher) LogLevel() string {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.config.LogLevel
}
