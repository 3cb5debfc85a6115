package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fieldsync/internal/app/server/api"
	"fieldsync/internal/infrastructure/storage/postgres"
)

const sessionSweepInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	storage, err := postgres.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе: %w", err)
	}
	defer storage.Close()

	srv := &http.Server{
		Addr:              cfg.Server.RunAddress,
		Handler:           api.New(storage, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server started", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweepSessions(gctx, postgres.NewSessionRepository(storage, log))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func sweepSessions(ctx context.Context, repo *postgres.SessionRepository) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := repo.DeleteExpired(ctx); err != nil {
				log.Warn("session sweep failed", "error", err)
			}
		}
	}
}
