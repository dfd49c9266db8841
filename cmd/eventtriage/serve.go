package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"eventtriage/internal/api"
	"eventtriage/internal/logger"
	"eventtriage/internal/scoring"
)

func newServeCmd(withApp appRunner) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the triage API",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides http.addr")

	cmd.RunE = withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hc := a.cfg.EventTriage.HTTP
		if addr != "" {
			hc.Addr = addr
		}
		srv := api.NewServer(a.svc, api.Config{
			Addr:            hc.Addr,
			Mode:            hc.Mode,
			ReadTimeout:     hc.ReadTimeout,
			WriteTimeout:    hc.WriteTimeout,
			DefaultPageSize: a.cfg.EventTriage.Store.DefaultPageSize,
			ExportMaxRows:   a.cfg.EventTriage.Store.ExportMaxRows,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })

		if a.cfg.EventTriage.Input.Redis.Enabled {
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			defer p.Close()
			g.Go(func() error { return p.Run(gctx) })
		}

		sc := a.cfg.EventTriage.Scoring
		if sc.WatchTables && sc.TablesPath != "" {
			watcher, err := scoring.NewTablesWatcher(sc.TablesPath, func(t scoring.Tables) {
				if err := a.svc.ReloadTables(gctx, t); err != nil {
					logger.Warnf("Failed to apply reloaded scoring tables: %v", err)
					return
				}
				logger.Infof("Scoring tables reloaded from %s", sc.TablesPath)
			})
			if err != nil {
				return err
			}
			g.Go(func() error {
				watcher.Run(gctx)
				return nil
			})
		}

		return g.Wait()
	})
	return cmd
}
