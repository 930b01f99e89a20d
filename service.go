package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/handler"
	"github.com/beaubromley/vimeo-sermon-search/metrics"
	"github.com/beaubromley/vimeo-sermon-search/search"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newServeCommand(a *app) *cobra.Command {
	var ingestFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			m := metrics.New()
			if ingestFirst {
				if _, err := a.runIngest(ctx, store, m); err != nil {
					return err
				}
			}

			logger := a.logger
			srv := &http.Server{
				Addr: fmt.Sprintf(":%d", a.cfg.HTTP.Port),
				Handler: handler.NewServer(logger, map[string]http.Handler{
					"search":  handler.NewSearchAPI(search.New(store, search.WithMetrics(m)), a.cfg.Search.IncludeTitles, a.cfg.Search.MaxResults, logger),
					"video":   handler.NewVideoAPI(store, logger),
					"status":  handler.NewStatusAPI(store, logger),
					"metrics": m.Handler(),
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				errc <- srv.ListenAndServe()
			}()
			logger.Info("http server started", slog.Int("port", a.cfg.HTTP.Port), slog.String("storage", a.cfg.Storage.Driver))

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("service stopped")

			return nil
		},
	}
	cmd.Flags().BoolVar(&ingestFirst, "ingest", false, "Ingest the configured catalog before serving")

	return cmd
}
