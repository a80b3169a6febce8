package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/api"
	"github.com/sells-group/spectral-cli/internal/spectral"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the spectral analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		svc, err := newService(ctx, serviceOptions{
			source:   true,
			places:   true,
			geocoder: true,
			sampler:  true,
			samples:  st,
			cache:    st,
		})
		if err != nil {
			return err
		}
		vis, err := spectral.LoadVisTable(cfg.Spectral.VisPath)
		if err != nil {
			return err
		}
		dates, err := cfg.Spectral.Dates()
		if err != nil {
			return err
		}

		handler := &api.Server{
			Service:     svc,
			Vis:         vis,
			Store:       st,
			Defaults:    api.Defaults{Dates: dates, MaxCloud: cfg.Spectral.MaxCloud},
			CORSOrigins: cfg.Server.CORSOrigins,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
