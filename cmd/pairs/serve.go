package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a caching proxy in front of the pairs service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	c, rc, err := a.newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if rc != nil {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			a.logger.Error().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("Failed to connect to Redis")
			return err
		}
		a.logger.Info().Str("addr", a.cfg.Redis.Addr).Msg("Connected to Redis")
	}

	srv := &http.Server{
		Addr: a.cfg.Server.Addr,
		Handler: newRouter(routerDeps{
			Service: c,
			Redis:   rc,
			Logger:  a.logger,
		}),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", srv.Addr).
			Str("upstream", a.cfg.Client.BaseURL).
			Str("user_agent", a.cfg.Client.UserAgent).
			Bool("cache", rc != nil).
			Msg("Starting pairs proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down pairs proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

// readyTimeout bounds the upstream and Redis checks of /ready.
const readyTimeout = 5 * time.Second
