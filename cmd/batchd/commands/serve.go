package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/studio233/batchd/batch/data/repository"
	"github.com/studio233/batchd/batch/handler"
	"github.com/studio233/batchd/batch/service"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/billing"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/dispatch"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/net/middleware"
	"github.com/studio233/batchd/notify"
	"github.com/studio233/batchd/oss"
	"github.com/studio233/batchd/registry"
	"github.com/studio233/batchd/security/jwt"
	"github.com/studio233/batchd/version"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the event consumer and the stale job sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, opts.configFile)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, a, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the reference worker in-process")
	return cmd
}

func serve(ctx context.Context, a *app, withWorker bool) error {
	cfg := a.cfg

	if a.data.DB != nil && cfg.Data.Database.Migrate {
		ledger := billing.NewLedger(a.data.DB, cfg.Data.Database.Driver, cfg.Billing.InitialGrant)
		if err := ledger.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	quota, err := a.quota()
	if err != nil {
		return err
	}
	notifier, err := notify.New(cfg.Email)
	if err != nil {
		return err
	}
	store, err := oss.New(cfg.Storage)
	if err != nil {
		logger.Warn(ctx, "blob storage unavailable, uploads disabled", "error", err)
		store = nil
	}

	repo, err := repository.New(cfg.Batch, a.data.Redis)
	if err != nil {
		return err
	}

	callbackURL := ""
	if cfg.Auth.Webhook.Secret != "" {
		callbackURL = cfg.BaseURL() + "/v1/webhooks/jobs"
	}
	svc := service.NewService(
		cfg.Batch,
		repo,
		quota,
		billing.NewCosts(cfg.Billing),
		dispatch.New(a.data.Broker, cfg.Data.Messaging),
		notifier,
		cfg.Gateway.Operations(),
		callbackURL,
	)

	gin.SetMode(cfg.RunMode)
	engine := gin.New()
	engine.Use(middleware.Trace(), middleware.Logger(), middleware.Recovery())

	var limiter *middleware.RateLimiter
	if cfg.Batch.SubmitRate > 0 {
		limiter = middleware.NewRateLimiter(cfg.Batch.SubmitRate, cfg.Batch.SubmitBurst, 10*time.Minute)
		limiter.StartCleanup(time.Minute, ctx.Done())
	}
	h := handler.New(svc, store, cfg.Auth.Webhook, cfg.Storage.MaxUpload, a.data.Health)
	h.Register(engine, jwt.NewTokenManager(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer), limiter)

	if cfg.Viper.ConfigFileUsed() != "" {
		config.Watch(func(c *config.Config) {
			logger.StdLogger().SetLevel(c.Logger.Level)
		})
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper, err := service.NewSweeper(svc, cfg.Batch.SweepSpec)
	if err != nil {
		return err
	}

	consumer := dispatch.NewEventConsumer(a.data.Broker, cfg.Data.Messaging, cfg.AppName+"-events",
		func(ctx context.Context, ev *structs.Event) error {
			res, err := svc.ApplyEvent(ctx, ev)
			if err != nil {
				metrics.EventReceived("bus", metrics.OutcomeError)
				return err
			}
			metrics.EventReceived("bus", res.Outcome)
			return nil
		}, service.IsPermanent)

	reg, err := registry.New(cfg.Consul)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "http server listening", "addr", srv.Addr, "version", version.Get().Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return consumer.Run(gctx) })
	if withWorker {
		g.Go(func() error { return runWorker(gctx, a) })
	}

	sweeper.Start()
	addr := net.JoinHostPort(cfg.Domain, strconv.Itoa(cfg.Port))
	if err := reg.Register(ctx, cfg.AppName, addr, map[string]string{"version": version.Get().Version}); err != nil {
		logger.Warn(ctx, "consul registration failed", "error", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := reg.Deregister(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "consul deregistration failed", "error", err)
		}
		sweeper.Stop(shutdownCtx)
		logger.Info(shutdownCtx, "shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
