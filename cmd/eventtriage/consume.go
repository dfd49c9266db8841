package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"eventtriage/config"
	"eventtriage/internal/alerts"
	inputredis "eventtriage/internal/input/redis"
	"eventtriage/internal/output/alertclickhouse"
	"eventtriage/internal/output/alerthttp"
	"eventtriage/internal/output/alertjson"
	"eventtriage/internal/pipeline"
	"eventtriage/pkg/models"
)

func newConsumeCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Ingest events streamed through the Redis queue",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := a.newPipeline()
		if err != nil {
			return err
		}
		defer p.Close()
		return p.Run(ctx)
	})
	return cmd
}

func (a *app) newPipeline() (*pipeline.IngestPipeline, error) {
	et := a.cfg.EventTriage
	q := et.Input.Redis

	source, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         q.Addr,
		Password:     q.Password,
		DB:           q.DB,
		Key:          q.Key,
		BlockTimeout: q.BlockTimeout,
	})
	if err != nil {
		return nil, err
	}

	var (
		escalator *alerts.Escalator
		writer    pipeline.AlertWriter
	)
	if et.Alerts.Enabled {
		level, ok := models.ParseLevel(et.Alerts.MinLevel)
		if !ok {
			_ = source.Close()
			return nil, fmt.Errorf("invalid alerts.min_level %q", et.Alerts.MinLevel)
		}
		escalator = alerts.NewEscalator(alerts.Config{
			Window:      et.Alerts.Window,
			Threshold:   et.Alerts.Threshold,
			MinLevel:    level,
			MaxEvidence: et.Alerts.MaxEvidence,
			Cooldown:    et.Alerts.Cooldown,
		})
		if writer, err = newAlertWriter(et.Alerts.Output); err != nil {
			_ = source.Close()
			return nil, err
		}
	}

	return pipeline.NewIngestPipeline(source, a.svc, escalator, writer, pipeline.Config{
		Workers:       et.Ingest.Workers,
		BatchSize:     et.Ingest.BatchSize,
		FlushInterval: et.Ingest.FlushInterval,
		MaxRetries:    et.Ingest.MaxRetries,
	}), nil
}

func newAlertWriter(cfg config.AlertOutputConfig) (pipeline.AlertWriter, error) {
	var writers pipeline.MultiAlertWriter
	fail := func(err error) (pipeline.AlertWriter, error) {
		_ = writers.Close()
		return nil, err
	}

	for _, mode := range strings.Split(strings.ReplaceAll(cfg.Mode, "both", "file,http"), ",") {
		switch strings.TrimSpace(mode) {
		case "file":
			w, err := alertjson.NewWriter(cfg.File.Path)
			if err != nil {
				return fail(err)
			}
			writers = append(writers, w)
		case "http":
			w, err := alerthttp.NewWriter(alerthttp.Config{URL: cfg.HTTP.URL, Timeout: cfg.HTTP.Timeout, Headers: cfg.HTTP.Headers})
			if err != nil {
				return fail(err)
			}
			writers = append(writers, w)
		case "clickhouse":
			ch := cfg.ClickHouse
			w, err := alertclickhouse.NewWriter(alertclickhouse.Config{
				URL:      ch.URL,
				Database: ch.Database,
				Table:    ch.Table,
				Username: ch.Username,
				Password: ch.Password,
				Timeout:  ch.Timeout,
				Headers:  ch.Headers,
			})
			if err != nil {
				return fail(err)
			}
			writers = append(writers, w)
		default:
			return fail(fmt.Errorf("unknown alerts.output.mode %q", mode))
		}
	}
	return writers, nil
}
