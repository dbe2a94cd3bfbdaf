package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storemodel/internal/api"
	"storemodel/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serves oracle sessions over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := cfg.StoreFormat()
		if err != nil {
			return err
		}
		srv := api.NewServer(api.Options{
			Format:     f,
			JournalDir: cfg.JournalDir,
			Logger:     logger,
			Metrics:    metrics.New(),
		})
		defer srv.Close()

		lis, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return err
		}
		hs := &http.Server{
			Handler:           srv,
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx := cmd.Context()
		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			logger.Info("serving API", zap.String("addr", lis.Addr().String()), zap.Stringer("format", f))
			if err := hs.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
		return eg.Wait()
	},
}
