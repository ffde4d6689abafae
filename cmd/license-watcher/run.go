package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rcourtman/license-watcher/internal/config"
	"github.com/rcourtman/license-watcher/internal/kube"
	"github.com/rcourtman/license-watcher/internal/license"
	"github.com/rcourtman/license-watcher/internal/license/watcher"
	"github.com/rcourtman/license-watcher/internal/logging"
)

func runWatcher(ctx context.Context, logs *logFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Initialize logger with baseline defaults for early startup logs
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "license-watcher",
	})

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.LogLevel, cfg.LogFormat, err = logs.resolve(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "license-watcher",
	})

	anchor, err := license.LoadTrustAnchor(cfg.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("load trust anchor: %w", err)
	}

	client, err := kube.NewClient(cfg.Kubeconfig, cfg.KubeContext)
	if err != nil {
		return err
	}

	wcfg := watcher.Config{
		Namespace:  cfg.Namespace,
		SecretName: cfg.SecretName,
		Regarding:  cfg.Regarding(),
		Interval:   cfg.CheckInterval,
	}
	w := watcher.New(wcfg,
		kube.NewSecretStore(client),
		kube.NewEventSink(client, cfg.DeploymentName),
		license.NewChecker(anchor, cfg.RequiredFeature, nil),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cw, err := config.NewConfigWatcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Config file watching disabled")
	} else {
		if err := cw.Start(); err != nil {
			log.Warn().Err(err).Msg("Config file watching disabled")
		}
		defer cw.Stop()
		go reloadOnSIGHUP(ctx, cw)
	}

	log.Info().
		Str("version", Version).
		Str("namespace", cfg.Namespace).
		Str("secret", cfg.SecretName).
		Str("feature", cfg.RequiredFeature).
		Dur("interval", cfg.CheckInterval).
		Msg("Starting license watcher")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Start(ctx)
		<-ctx.Done()
		w.Stop()
		return nil
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveStatus(ctx, cfg.MetricsAddr, statusHandler(w))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("License watcher shut down")
	return nil
}

func reloadOnSIGHUP(ctx context.Context, cw *config.ConfigWatcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info().Msg("Received SIGHUP, reloading configuration")
			cw.ReloadConfig()
		}
	}
}
