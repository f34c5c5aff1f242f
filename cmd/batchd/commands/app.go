package commands

import (
	"context"
	"fmt"

	"github.com/studio233/batchd/billing"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/data"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/logging/observes"
	"github.com/studio233/batchd/version"

	// connection drivers
	_ "github.com/studio233/batchd/data/kafka"
	_ "github.com/studio233/batchd/data/postgres"
	_ "github.com/studio233/batchd/data/rabbitmq"
	_ "github.com/studio233/batchd/data/redis"
	_ "github.com/studio233/batchd/data/sqlite"
)

// app bundles what every subcommand boots: config, logging, error
// reporting, tracing and the data layer.
type app struct {
	cfg      *config.Config
	data     *data.Data
	cleanups []func()
}

func bootstrap(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if configFile != "" {
		config.SetPath(configFile)
	}
	a := &app{cfg: cfg}

	info := version.Get()
	logger.StdLogger().SetVersion(info.Version)
	cleanLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	a.cleanups = append(a.cleanups, cleanLogger)

	if s := cfg.Observes.Sentry; s != nil {
		release := s.Release
		if release == "" {
			release = info.Version
		}
		flush, err := observes.NewSentry(&observes.SentryOptions{
			Dsn:         s.Endpoint,
			Name:        cfg.AppName,
			Release:     release,
			Environment: s.Environment,
			SampleRate:  s.SampleRate,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init sentry: %w", err)
		}
		a.cleanups = append(a.cleanups, flush)
	}

	if t := cfg.Observes.Tracer; t != nil && t.Endpoint != "" {
		shutdown, err := observes.NewTracer(&observes.TracerOption{
			URL:                t.Endpoint,
			Name:               t.ServiceName,
			Version:            info.Version,
			Revision:           info.Revision,
			Environment:        t.Environment,
			SamplingRate:       t.SamplingRate,
			BatchTimeout:       t.BatchTimeout,
			ExportTimeout:      t.ExportTimeout,
			MaxExportBatchSize: t.MaxExportBatchSize,
			MaxQueueSize:       t.MaxQueueSize,
			Insecure:           t.Insecure,
			Headers:            t.Headers,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init tracer: %w", err)
		}
		a.cleanups = append(a.cleanups, func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn(context.Background(), "tracer shutdown", "error", err)
			}
		})
	}

	d, cleanData, err := data.New(ctx, cfg.Data)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to init data: %w", err)
	}
	a.data = d
	a.cleanups = append(a.cleanups, cleanData)
	return a, nil
}

// close runs cleanups in reverse order
func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

func (a *app) quota() (billing.Service, error) {
	return billing.New(a.cfg.Billing, a.data.DB, a.cfg.Data.Database.Driver, a.data.Redis)
}
