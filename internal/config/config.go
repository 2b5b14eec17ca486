// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/detail"
	"github.com/JakeFAU/jobpost-harvester/internal/listing"
	"github.com/JakeFAU/jobpost-harvester/internal/publisher/redis"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/gcs"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/local"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/s3"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_HARVEST_KEYWORD.
const EnvPrefix = "HARVESTER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Harvest   HarvestConfig     `mapstructure:"harvest"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
	Headless  HeadlessConfig    `mapstructure:"headless"`
	Listing   listing.Selectors `mapstructure:"listing"`
	Segmenter SegmenterConfig   `mapstructure:"segmenter"`
	Storage   StorageConfig     `mapstructure:"storage"`
	Archive   ArchiveConfig     `mapstructure:"archive"`
	Publisher PublisherConfig   `mapstructure:"publisher"`
}

// ServerConfig controls the control API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HarvestConfig describes the search and the bounds of a run.
type HarvestConfig struct {
	SearchURL    string        `mapstructure:"search_url"`
	Origin       string        `mapstructure:"origin"`
	Keyword      string        `mapstructure:"keyword"`
	PageSize     int           `mapstructure:"page_size"`
	Sort         string        `mapstructure:"sort"`
	LocationCode string        `mapstructure:"location_code"`
	JobType      string        `mapstructure:"job_type"`
	MaxPages     int           `mapstructure:"max_pages"`
	MaxPostings  int           `mapstructure:"max_postings"`
	Workers      int           `mapstructure:"workers"`
	PageDelayMin time.Duration `mapstructure:"page_delay_min"`
	PageDelayMax time.Duration `mapstructure:"page_delay_max"`
	RunBudget    time.Duration `mapstructure:"run_budget"`
}

// HTTPConfig configures the listing fetcher and shared request headers.
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	Referer        string        `mapstructure:"referer"`
}

// RateLimitConfig paces requests per host.
type RateLimitConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	MaxRPS   float64       `mapstructure:"max_rps"`
	Burst    int           `mapstructure:"burst"`
}

// HeadlessConfig configures the rendered detail fetcher.
type HeadlessConfig struct {
	MaxSessions       int              `mapstructure:"max_sessions"`
	ExecPath          string           `mapstructure:"exec_path"`
	NavigationTimeout time.Duration    `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration    `mapstructure:"settle_delay"`
	ReadyTimeout      time.Duration    `mapstructure:"ready_timeout"`
	FrameSelector     string           `mapstructure:"frame_selector"`
	ContentSelector   string           `mapstructure:"content_selector"`
	Summary           detail.Selectors `mapstructure:"summary"`
}

// SegmenterConfig overrides the section keyword tables. Empty values keep the defaults.
type SegmenterConfig struct {
	Noise          []string            `mapstructure:"noise"`
	LocationMarker string              `mapstructure:"location_marker"`
	Triggers       map[string][]string `mapstructure:"triggers"`
}

// StorageConfig selects the persistence gateway.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// ArchiveConfig selects where raw pages are kept.
type ArchiveConfig struct {
	Backend string       `mapstructure:"backend"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
	S3      s3.Config    `mapstructure:"s3"`
}

// PublisherConfig selects where posting events go.
type PublisherConfig struct {
	Backend   string       `mapstructure:"backend"`
	Topic     string       `mapstructure:"topic"`
	ProjectID string       `mapstructure:"project_id"`
	Redis     redis.Config `mapstructure:"redis"`
}

// Load builds a Config from an optional .env file, an optional config file and
// HARVESTER_* environment variables.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("harvest.search_url", "https://www.saramin.co.kr/zf_user/search/recruit")
	v.SetDefault("harvest.origin", "https://www.saramin.co.kr")
	v.SetDefault("harvest.keyword", "")
	v.SetDefault("harvest.page_size", 40)
	v.SetDefault("harvest.sort", "relation")
	v.SetDefault("harvest.location_code", "")
	v.SetDefault("harvest.job_type", "")
	v.SetDefault("harvest.max_pages", 10)
	v.SetDefault("harvest.max_postings", 100)
	v.SetDefault("harvest.workers", 4)
	v.SetDefault("harvest.page_delay_min", "2s")
	v.SetDefault("harvest.page_delay_max", "4s")
	v.SetDefault("harvest.run_budget", "0s")

	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("http.accept_language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	v.SetDefault("http.referer", "https://www.saramin.co.kr/")

	v.SetDefault("ratelimit.min_delay", "1s")
	v.SetDefault("ratelimit.max_delay", "2s")
	v.SetDefault("ratelimit.max_rps", 0)
	v.SetDefault("ratelimit.burst", 1)

	v.SetDefault("headless.max_sessions", 2)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.navigation_timeout", "45s")
	v.SetDefault("headless.settle_delay", "2s")
	v.SetDefault("headless.ready_timeout", "10s")
	v.SetDefault("headless.frame_selector", "iframe#iframe_content_0")
	v.SetDefault("headless.content_selector", ".user_content")
	summary := detail.DefaultSelectors()
	v.SetDefault("headless.summary.summary", summary.Summary)
	v.SetDefault("headless.summary.row", summary.Row)
	v.SetDefault("headless.summary.label", summary.Label)
	v.SetDefault("headless.summary.value", summary.Value)

	sel := listing.DefaultSelectors()
	v.SetDefault("listing.card", sel.Card)
	v.SetDefault("listing.title", sel.Title)
	v.SetDefault("listing.company", sel.Company)
	v.SetDefault("listing.condition", sel.Condition)
	v.SetDefault("listing.condition_item", sel.ConditionItem)
	v.SetDefault("listing.sector", sel.Sector)
	v.SetDefault("listing.deadline", sel.Deadline)

	v.SetDefault("segmenter.location_marker", "")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 8)
	v.SetDefault("storage.min_conns", 0)
	v.SetDefault("storage.max_conn_lifetime", "30m")
	v.SetDefault("storage.ensure_schema", true)

	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.local.base_dir", "data/raw")
	v.SetDefault("archive.gcs.bucket", "")
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.region", "")
	v.SetDefault("archive.s3.access_key_id", "")
	v.SetDefault("archive.s3.secret_access_key", "")
	v.SetDefault("archive.s3.use_ssl", true)

	v.SetDefault("publisher.backend", "none")
	v.SetDefault("publisher.topic", "posting.upserted")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.redis.addr", "localhost:6379")
	v.SetDefault("publisher.redis.password", "")
	v.SetDefault("publisher.redis.db", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := validURL("harvest.search_url", c.Harvest.SearchURL); err != nil {
		return err
	}
	if err := validURL("harvest.origin", c.Harvest.Origin); err != nil {
		return err
	}
	if c.Harvest.MaxPages <= 0 {
		return fmt.Errorf("harvest.max_pages must be > 0")
	}
	if c.Harvest.MaxPostings < 0 {
		return fmt.Errorf("harvest.max_postings must be >= 0")
	}
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be > 0")
	}
	if c.Harvest.PageDelayMin < 0 || c.Harvest.PageDelayMax < c.Harvest.PageDelayMin {
		return fmt.Errorf("harvest.page_delay_min/max must form a non-negative range")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.RateLimit.MinDelay < 0 || c.RateLimit.MaxDelay < c.RateLimit.MinDelay {
		return fmt.Errorf("ratelimit.min_delay/max_delay must form a non-negative range")
	}
	if c.Headless.MaxSessions <= 0 {
		return fmt.Errorf("headless.max_sessions must be > 0")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be memory or postgres, got %q", c.Storage.Driver)
	}
	switch c.Archive.Backend {
	case "none", "memory":
	case "local":
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket must be set for the gcs backend")
		}
	case "s3":
		if c.Archive.S3.Endpoint == "" || c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.endpoint and archive.s3.bucket must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("archive.backend must be none, memory, local, gcs or s3, got %q", c.Archive.Backend)
	}
	switch c.Publisher.Backend {
	case "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" {
			return fmt.Errorf("publisher.project_id must be set for the pubsub backend")
		}
	case "redis":
		if c.Publisher.Redis.Addr == "" {
			return fmt.Errorf("publisher.redis.addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("publisher.backend must be none, memory, pubsub or redis, got %q", c.Publisher.Backend)
	}
	if c.Publisher.Backend != "none" && c.Publisher.Topic == "" {
		return fmt.Errorf("publisher.topic must be set when a publisher is enabled")
	}
	return nil
}

func validURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}

// Query returns the listing query described by the harvest section.
func (h HarvestConfig) Query() crawler.ListingQuery {
	return crawler.ListingQuery{
		Keyword:      h.Keyword,
		PageSize:     h.PageSize,
		Sort:         h.Sort,
		LocationCode: h.LocationCode,
		JobType:      h.JobType,
	}
}

// Headers returns the request headers shared by both fetch backends.
func (h HTTPConfig) Headers() http.Header {
	headers := http.Header{}
	if h.AcceptLanguage != "" {
		headers.Set("Accept-Language", h.AcceptLanguage)
	}
	if h.Referer != "" {
		headers.Set("Referer", h.Referer)
	}
	return headers
}
