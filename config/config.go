package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	EventTriage EventTriageConfig `yaml:"eventtriage"`
}

// EventTriageConfig is the project configuration.
type EventTriageConfig struct {
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Scoring ScoringConfig `yaml:"scoring"`
	Filter  FilterConfig  `yaml:"filter"`
	Service ServiceConfig `yaml:"service"`
	Input   InputConfig   `yaml:"input"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig controls the SQLite event store.
type StoreConfig struct {
	Path            string        `yaml:"path"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	DefaultPageSize int           `yaml:"default_page_size"`
	MaxPageSize     int           `yaml:"max_page_size"`
	ExportMaxRows   int           `yaml:"export_max_rows"`
	SeedTables      bool          `yaml:"seed_tables"`
}

// CacheConfig controls the aggregate stat cache.
type CacheConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool          `yaml:"enabled"`
	Backend string         `yaml:"backend"` // memory|redis|sql|none
	Redis   RedisConfig    `yaml:"redis"`
	TTL     CacheTTLConfig `yaml:"ttl"`
}

// RedisConfig controls the Redis cache backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CacheTTLConfig sets the freshness window per aggregation.
type CacheTTLConfig struct {
	Summary      time.Duration `yaml:"summary"`
	Distribution time.Duration `yaml:"distribution"`
	Hourly       time.Duration `yaml:"hourly"`
	TopN         time.Duration `yaml:"top_n"`
	Trend        time.Duration `yaml:"trend"`
	Heatmap      time.Duration `yaml:"heatmap"`
	KPI          time.Duration `yaml:"kpi"`
}

// ScoringConfig selects and tunes the score calculator.
type ScoringConfig struct {
	Scheme                string           `yaml:"scheme"` // five_factor|normalized
	Timezone              string           `yaml:"timezone"`
	TablesPath            string           `yaml:"tables_path"`
	WatchTables           bool             `yaml:"watch_tables"`
	DefaultAttackSeverity float64          `yaml:"default_attack_severity"`
	Thresholds            ThresholdsConfig `yaml:"thresholds"`
	Weights               WeightsConfig    `yaml:"weights"`
	WorkingHours          HoursConfig      `yaml:"working_hours"`
}

// ThresholdsConfig holds the minimum score of each level.
type ThresholdsConfig struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// WeightsConfig holds the five-factor weights; they must sum to 100.
type WeightsConfig struct {
	AttackType      float64 `yaml:"attack_type"`
	TrafficVolume   float64 `yaml:"traffic_volume"`
	PortCriticality float64 `yaml:"port_criticality"`
	Frequency       float64 `yaml:"frequency"`
	TimeFactor      float64 `yaml:"time_factor"`
}

// HoursConfig is a [start, end) hour range.
type HoursConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// FilterConfig bounds filter requests.
type FilterConfig struct {
	MaxRange    time.Duration `yaml:"max_range"`
	KPIMaxRange time.Duration `yaml:"kpi_max_range"`
}

// ServiceConfig tunes the prioritization service.
type ServiceConfig struct {
	ScoreWorkers     int `yaml:"score_workers"`
	RescoreBatchSize int `yaml:"rescore_batch_size"`
}

// InputConfig controls the streaming event source.
type InputConfig struct {
	Redis QueueConfig `yaml:"redis"`
}

// QueueConfig controls the Redis list that producers push events onto.
type QueueConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// IngestConfig controls the streaming ingest pipeline.
type IngestConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

// AlertsConfig controls escalation of urgent events from one source.
type AlertsConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Window      time.Duration     `yaml:"window"`
	Threshold   int               `yaml:"threshold"`
	MinLevel    string            `yaml:"min_level"`
	MaxEvidence int               `yaml:"max_evidence"`
	Cooldown    time.Duration     `yaml:"cooldown"`
	Output      AlertOutputConfig `yaml:"output"`
}

// AlertOutputConfig selects where alerts go.
type AlertOutputConfig struct {
	// Mode is a comma list of file, http and clickhouse; both means file,http.
	Mode       string                 `yaml:"mode"`
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// FileOutputConfig config for local JSON lines output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for a webhook.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	Mode         string        `yaml:"mode"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	et := &cfg.EventTriage

	if et.Store.Path == "" {
		et.Store.Path = "data/eventtriage.db"
	}
	if et.Store.QueryTimeout <= 0 {
		et.Store.QueryTimeout = 5 * time.Second
	}
	if et.Store.DefaultPageSize <= 0 {
		et.Store.DefaultPageSize = 25
	}
	if et.Store.MaxPageSize <= 0 {
		et.Store.MaxPageSize = 100
	}
	if et.Store.ExportMaxRows <= 0 {
		et.Store.ExportMaxRows = 50000
	}

	if et.Cache.Enabled == nil {
		enabled := true
		et.Cache.Enabled = &enabled
	}
	et.Cache.Backend = strings.ToLower(strings.TrimSpace(et.Cache.Backend))
	if et.Cache.Backend == "" {
		et.Cache.Backend = "memory"
	}
	if et.Cache.Redis.Addr == "" {
		et.Cache.Redis.Addr = "127.0.0.1:6379"
	}
	if et.Cache.Redis.KeyPrefix == "" {
		et.Cache.Redis.KeyPrefix = "eventtriage:stats"
	}
	ttl := &et.Cache.TTL
	if ttl.Summary <= 0 {
		ttl.Summary = 60 * time.Second
	}
	if ttl.Distribution <= 0 {
		ttl.Distribution = 5 * time.Minute
	}
	if ttl.Hourly <= 0 {
		ttl.Hourly = 5 * time.Minute
	}
	if ttl.TopN <= 0 {
		ttl.TopN = 5 * time.Minute
	}
	if ttl.Trend <= 0 {
		ttl.Trend = 5 * time.Minute
	}
	if ttl.Heatmap <= 0 {
		ttl.Heatmap = 10 * time.Minute
	}
	if ttl.KPI <= 0 {
		ttl.KPI = 5 * time.Minute
	}

	if et.Scoring.Scheme == "" {
		et.Scoring.Scheme = "five_factor"
	}
	if et.Scoring.Timezone == "" {
		et.Scoring.Timezone = "UTC"
	}
	if et.Scoring.Thresholds == (ThresholdsConfig{}) {
		et.Scoring.Thresholds = ThresholdsConfig{Critical: 80, High: 60, Medium: 40}
	}
	if et.Scoring.Weights == (WeightsConfig{}) {
		et.Scoring.Weights = WeightsConfig{AttackType: 40, TrafficVolume: 25, PortCriticality: 20, Frequency: 10, TimeFactor: 5}
	}
	if et.Scoring.WorkingHours == (HoursConfig{}) {
		et.Scoring.WorkingHours = HoursConfig{Start: 9, End: 18}
	}

	if et.Filter.KPIMaxRange <= 0 {
		et.Filter.KPIMaxRange = 30 * 24 * time.Hour
	}

	if et.Service.ScoreWorkers <= 0 {
		et.Service.ScoreWorkers = 4
	}
	if et.Service.RescoreBatchSize <= 0 {
		et.Service.RescoreBatchSize = 500
	}

	if et.Input.Redis.Addr == "" {
		et.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if et.Input.Redis.Key == "" {
		et.Input.Redis.Key = "eventtriage:events"
	}
	if et.Input.Redis.BlockTimeout <= 0 {
		et.Input.Redis.BlockTimeout = 5 * time.Second
	}
	if et.Ingest.Workers <= 0 {
		et.Ingest.Workers = 4
	}
	if et.Ingest.BatchSize <= 0 {
		et.Ingest.BatchSize = 500
	}
	if et.Ingest.FlushInterval <= 0 {
		et.Ingest.FlushInterval = 2 * time.Second
	}
	if et.Ingest.MaxRetries <= 0 {
		et.Ingest.MaxRetries = 3
	}

	if et.Alerts.Window <= 0 {
		et.Alerts.Window = 5 * time.Minute
	}
	if et.Alerts.Threshold <= 0 {
		et.Alerts.Threshold = 7
	}
	if et.Alerts.MinLevel == "" {
		et.Alerts.MinLevel = "high"
	}
	if et.Alerts.MaxEvidence <= 0 {
		et.Alerts.MaxEvidence = 50
	}
	if et.Alerts.Cooldown <= 0 {
		et.Alerts.Cooldown = 2 * time.Minute
	}
	if et.Alerts.Output.Mode == "" {
		et.Alerts.Output.Mode = "file"
	}
	if et.Alerts.Output.File.Path == "" {
		et.Alerts.Output.File.Path = "output/alerts.jsonl"
	}

	if et.HTTP.Addr == "" {
		et.HTTP.Addr = ":8080"
	}
	if et.HTTP.Mode == "" {
		et.HTTP.Mode = "release"
	}
	if et.HTTP.ReadTimeout <= 0 {
		et.HTTP.ReadTimeout = 15 * time.Second
	}
	if et.HTTP.WriteTimeout <= 0 {
		et.HTTP.WriteTimeout = 60 * time.Second
	}

	if et.Logging.Level == "" {
		et.Logging.Level = "info"
	}
}

// CacheEnabled reports whether the stat cache is switched on.
func (c CacheConfig) CacheEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
