// Command plugkit-demo boots a small plugin application and, when DIAG_ADDR
// is set, serves its diagnostics until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/km-arc/go-plugkit/framework/app"
	"github.com/km-arc/go-plugkit/framework/config"
	"github.com/km-arc/go-plugkit/framework/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load() // loads .env automatically

	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, catalog(log),
		app.WithLogger(log),
		app.WithManifestFactories(factories(log)),
	)
	if err := application.Boot(ctx); err != nil {
		return err
	}
	defer application.Shutdown(context.Background())

	if cfg.Diag.Addr == "" {
		return nil
	}
	return serve(ctx, cfg.Diag.Addr, application.Handler(), log)
}

// serve runs the diagnostics server until ctx is cancelled.
func serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving diagnostics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
