package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	BrightData BrightDataConfig `yaml:"brightdata" mapstructure:"brightdata"`
	Collect    CollectConfig    `yaml:"collect" mapstructure:"collect"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// BrightDataConfig holds Bright Data datasets API settings.
type BrightDataConfig struct {
	APIKey          string `yaml:"api_key" mapstructure:"api_key"`
	DatasetID       string `yaml:"dataset_id" mapstructure:"dataset_id"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PollIntervalSec int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollMaxWaitSecs int    `yaml:"poll_max_wait_secs" mapstructure:"poll_max_wait_secs"`
}

// CollectConfig configures the collection strategies.
type CollectConfig struct {
	DiscoverURLs     []string `yaml:"discover_urls" mapstructure:"discover_urls"`
	Hashtags         []string `yaml:"hashtags" mapstructure:"hashtags"`
	PostsPerSource   int      `yaml:"posts_per_source" mapstructure:"posts_per_source"`
	ProfilePath      string   `yaml:"profile_path" mapstructure:"profile_path"`
	SnapshotTTLHours int      `yaml:"snapshot_ttl_hours" mapstructure:"snapshot_ttl_hours"`
}

// FutureTimestampPolicy decides what happens to records whose created_at is
// after the run's reference timestamp.
type FutureTimestampPolicy string

const (
	// FutureClamp clamps hours_since_post to 0 and flags the record suspect.
	FutureClamp FutureTimestampPolicy = "clamp"
	// FutureReject drops the record under the time_window rejection reason.
	FutureReject FutureTimestampPolicy = "reject"
)

// FilterConfig is the immutable virality filter policy.
type FilterConfig struct {
	MinViews          int64                 `yaml:"min_views" mapstructure:"min_views"`
	TimeRangeHours    float64               `yaml:"time_range_hours" mapstructure:"time_range_hours"`
	ExcludeVerified   bool                  `yaml:"exclude_verified" mapstructure:"exclude_verified"`
	Languages         []string              `yaml:"languages" mapstructure:"languages"`
	TargetRegion      string                `yaml:"target_region" mapstructure:"target_region"`
	MinLanguageScore  float64               `yaml:"min_language_score" mapstructure:"min_language_score"`
	MinKeywordScore   float64               `yaml:"min_keyword_score" mapstructure:"min_keyword_score"`
	MinDescriptionLen int                   `yaml:"min_description_len" mapstructure:"min_description_len"`
	MinEngagementRate float64               `yaml:"min_engagement_rate" mapstructure:"min_engagement_rate"`
	FutureTimestamps  FutureTimestampPolicy `yaml:"future_timestamps" mapstructure:"future_timestamps"`
	RankBy            string                `yaml:"rank_by" mapstructure:"rank_by"`
}

// Validate rejects filter policies that would make a run meaningless.
// Called before any processing starts; a failure here is fatal.
func (f FilterConfig) Validate() error {
	if f.MinViews < 0 {
		return eris.Errorf("config: min_views must be >= 0, got %d", f.MinViews)
	}
	if f.TimeRangeHours <= 0 {
		return eris.Errorf("config: time_range_hours must be > 0, got %g", f.TimeRangeHours)
	}
	if f.MinLanguageScore < 0 || f.MinLanguageScore > 1 {
		return eris.Errorf("config: min_language_score must be within [0,1], got %g", f.MinLanguageScore)
	}
	if f.MinKeywordScore < 0 || f.MinKeywordScore > 1 {
		return eris.Errorf("config: min_keyword_score must be within [0,1], got %g", f.MinKeywordScore)
	}
	if len(f.Languages) == 0 {
		return eris.New("config: languages must not be empty")
	}
	switch f.FutureTimestamps {
	case FutureClamp, FutureReject:
	default:
		return eris.Errorf("config: future_timestamps must be %q or %q, got %q", FutureClamp, FutureReject, f.FutureTimestamps)
	}
	switch f.RankBy {
	case "views", "engagement", "recent":
	default:
		return eris.Errorf("config: rank_by must be views, engagement, or recent, got %q", f.RankBy)
	}
	return nil
}

// OutputConfig configures the export writers.
type OutputConfig struct {
	Dir             string `yaml:"dir" mapstructure:"dir"`
	XLSX            bool   `yaml:"xlsx" mapstructure:"xlsx"`
	CSV             bool   `yaml:"csv" mapstructure:"csv"`
	JSON            bool   `yaml:"json" mapstructure:"json"`
	SpreadsheetName string `yaml:"spreadsheet_name" mapstructure:"spreadsheet_name"`
}

// StoreConfig configures the run-history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VIRALSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("brightdata.base_url", "https://api.brightdata.com/datasets/v3")
	v.SetDefault("brightdata.timeout_secs", 300)
	v.SetDefault("brightdata.poll_interval_secs", 30)
	v.SetDefault("brightdata.poll_max_wait_secs", 1800)
	v.SetDefault("collect.discover_urls", []string{
		"https://www.tiktok.com/discover",
		"https://www.tiktok.com/trending",
		"https://www.tiktok.com/foryou",
		"https://www.tiktok.com/explore",
	})
	v.SetDefault("collect.hashtags", []string{
		"fyp", "foryou", "viral", "trending", "おすすめ",
		"バズ", "話題", "人気", "トレンド", "日本",
		"東京", "大阪", "グルメ", "ファッション", "音楽",
	})
	v.SetDefault("collect.posts_per_source", 100)
	v.SetDefault("collect.snapshot_ttl_hours", 6)
	v.SetDefault("filter.min_views", 500000)
	v.SetDefault("filter.time_range_hours", 24)
	v.SetDefault("filter.exclude_verified", true)
	v.SetDefault("filter.languages", []string{"ja"})
	v.SetDefault("filter.target_region", "JP")
	v.SetDefault("filter.min_language_score", 0.3)
	v.SetDefault("filter.min_keyword_score", 0)
	v.SetDefault("filter.min_description_len", 5)
	v.SetDefault("filter.min_engagement_rate", 0.001)
	v.SetDefault("filter.future_timestamps", string(FutureClamp))
	v.SetDefault("filter.rank_by", "views")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.xlsx", true)
	v.SetDefault("output.csv", true)
	v.SetDefault("output.json", true)
	v.SetDefault("output.spreadsheet_name", "Viral Videos")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "viralscan.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
