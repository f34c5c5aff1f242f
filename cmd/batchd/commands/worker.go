package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/studio233/batchd/dispatch"
	"github.com/studio233/batchd/gateway"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/oss"
	"github.com/studio233/batchd/processor"
	"golang.org/x/sync/errgroup"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the reference worker that processes dispatched jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, opts.configFile)
			if err != nil {
				return err
			}
			defer a.close()

			g, gctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}
			g.Go(func() error { return runWorker(gctx, a) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address, e.g. :9233")
	return cmd
}

// runWorker consumes dispatch messages until ctx is canceled
func runWorker(ctx context.Context, a *app) error {
	cfg := a.cfg
	store, err := oss.New(cfg.Storage)
	if err != nil {
		return err
	}

	var events dispatch.EventPublisher = dispatch.NewBrokerEvents(a.data.Broker, cfg.Data.Messaging)
	if cfg.Worker.CallbackURL != "" {
		if cfg.Auth.Webhook.Secret == "" {
			return errors.New("worker.callback_url requires auth.webhook.secret")
		}
		events = dispatch.NewWebhookEvents(cfg.Worker.CallbackURL, cfg.Auth.Webhook.Secret, 10*time.Second)
	}

	p := processor.New(cfg.Worker, gateway.New(cfg.Gateway), store, events)
	if err := metrics.RegisterPool("processor", p.Stats); err != nil {
		logger.Warn(ctx, "register pool metrics", "error", err)
	}
	p.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		p.Stop(stopCtx)
	}()

	logger.Info(ctx, "worker started", "group", cfg.Worker.Group, "workers", cfg.Worker.MaxWorkers)
	err = dispatch.ConsumeJobs(ctx, a.data.Broker, cfg.Data.Messaging, cfg.Worker.Group, p.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
