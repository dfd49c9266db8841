package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"eventtriage/config"
	"eventtriage/internal/logger"
	"eventtriage/internal/priority"
	"eventtriage/internal/scoring"
	"eventtriage/internal/statcache"
	"eventtriage/internal/store"
)

const defaultConfigName = "eventtriage.yml"

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	if exePath, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultConfigName
}

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	store   *store.Store
	backend statcache.Backend
	svc     *priority.Service
}

func loadConfig(configArg string) (*config.Config, error) {
	path := findConfigFile(configArg)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	et := cfg.EventTriage
	if err := logger.Init(et.Logging.Enabled, et.Logging.Level, et.Logging.File, et.Logging.Console); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(store.Config{
		Path:          et.Store.Path,
		QueryTimeout:  et.Store.QueryTimeout,
		MaxPageSize:   et.Store.MaxPageSize,
		ExportMaxRows: et.Store.ExportMaxRows,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st}

	calc, err := a.buildCalculator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.backend, err = newCacheBackend(et.Cache, st)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc, err = priority.NewService(st, statcache.New(a.backend), calc, priority.Config{
		TTL: priority.TTLs{
			Summary:      et.Cache.TTL.Summary,
			Distribution: et.Cache.TTL.Distribution,
			Hourly:       et.Cache.TTL.Hourly,
			TopN:         et.Cache.TTL.TopN,
			Trend:        et.Cache.TTL.Trend,
			Heatmap:      et.Cache.TTL.Heatmap,
			KPI:          et.Cache.TTL.KPI,
		},
		MaxRange:         et.Filter.MaxRange,
		KPIMaxRange:      et.Filter.KPIMaxRange,
		ScoreWorkers:     et.Service.ScoreWorkers,
		RescoreBatchSize: et.Service.RescoreBatchSize,
		TablesPath:       et.Scoring.TablesPath,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Infof("eventtriage ready: store=%s cache=%s scheme=%s", et.Store.Path, cacheLabel(et.Cache), calc.Scheme())
	return a, nil
}

func (a *app) buildCalculator(ctx context.Context) (*scoring.Calculator, error) {
	sc := a.cfg.EventTriage.Scoring

	scheme, err := scoring.ParseScheme(sc.Scheme)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", sc.Timezone, err)
	}

	if a.cfg.EventTriage.Store.SeedTables {
		if err := a.seedTables(ctx, sc.TablesPath); err != nil {
			return nil, err
		}
	}
	tables, err := priority.BuildTables(ctx, a.store, sc.TablesPath)
	if err != nil {
		return nil, err
	}
	if sc.DefaultAttackSeverity > 0 {
		tables.DefaultAttackSeverity = sc.DefaultAttackSeverity
	}

	return scoring.NewCalculator(scoring.Config{
		Scheme: scheme,
		Thresholds: scoring.Thresholds{
			Critical: sc.Thresholds.Critical,
			High:     sc.Thresholds.High,
			Medium:   sc.Thresholds.Medium,
		},
		Weights: scoring.Weights{
			AttackType:      sc.Weights.AttackType,
			TrafficVolume:   sc.Weights.TrafficVolume,
			PortCriticality: sc.Weights.PortCriticality,
			Frequency:       sc.Weights.Frequency,
			TimeFactor:      sc.Weights.TimeFactor,
		},
		WorkStart: sc.WorkingHours.Start,
		WorkEnd:   sc.WorkingHours.End,
		Location:  loc,
	}, tables)
}

// seedTables fills empty lookup tables from the file tables (or defaults).
func (a *app) seedTables(ctx context.Context, path string) error {
	existing, err := a.store.LoadTables(ctx)
	if err != nil {
		return err
	}
	if len(existing.AttackTypes) > 0 || len(existing.Ports) > 0 {
		return nil
	}
	tables := scoring.DefaultTables()
	if path != "" {
		if tables, err = scoring.LoadTables(path); err != nil {
			return err
		}
	}
	if err := a.store.SeedTables(ctx, tables); err != nil {
		return err
	}
	logger.Infof("Seeded lookup tables: attack_types=%d ports=%d", len(tables.AttackTypes), len(tables.Ports))
	return nil
}

func newCacheBackend(cfg config.CacheConfig, st *store.Store) (statcache.Backend, error) {
	if !cfg.CacheEnabled() {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return statcache.NewMemoryBackend(), nil
	case "redis":
		rb, err := statcache.NewRedisBackend(statcache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return rb, nil
	case "sql":
		sb, err := statcache.NewSQLBackend(st.DB())
		if err != nil {
			return nil, err
		}
		return sb, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func cacheLabel(cfg config.CacheConfig) string {
	if !cfg.CacheEnabled() {
		return "disabled"
	}
	return cfg.Backend
}

func (a *app) Close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			logger.Warnf("Failed to close cache backend: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("Failed to close store: %v", err)
		}
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "eventtriage",
		Short: "Prioritize classified network security events",
		Long: `eventtriage scores classified network flow events, keeps them in a
SQLite store and serves a ranked triage queue plus dashboard aggregates
over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	root.CompletionOptions.DisableDefaultCmd = true

	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		newServeCmd(withApp),
		newScoreCmd(withApp),
		newRescoreCmd(withApp),
		newImportCmd(withApp),
		newConsumeCmd(withApp),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
