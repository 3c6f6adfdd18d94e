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
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Geometry GeometryConfig `yaml:"geometry" mapstructure:"geometry"`
	Overlays OverlaysConfig `yaml:"overlays" mapstructure:"overlays"`
	Map      MapConfig      `yaml:"map" mapstructure:"map"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	DataDir        string   `yaml:"data_dir" mapstructure:"data_dir"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxSessions    int      `yaml:"max_sessions" mapstructure:"max_sessions"`
	CacheEntries   int      `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLSecs   int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeometryConfig locates the tract boundary collection. Location is a
// GeoJSON file, a .shp, or a zipped shapefile bundle; relative paths resolve
// against server.data_dir.
type GeometryConfig struct {
	Location string `yaml:"location" mapstructure:"location"`
	TempDir  string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// OverlaysConfig selects the overlay definitions and reserved colors. An
// empty File uses the built-in overlay set.
type OverlaysConfig struct {
	File             string `yaml:"file" mapstructure:"file"`
	MissingColor     string `yaml:"missing_color" mapstructure:"missing_color"`
	NonPositiveColor string `yaml:"non_positive_color" mapstructure:"non_positive_color"`
}

// MapConfig configures the style document handed to map clients.
type MapConfig struct {
	StyleURL  string  `yaml:"style_url" mapstructure:"style_url"`
	CenterLon float64 `yaml:"center_lon" mapstructure:"center_lon"`
	CenterLat float64 `yaml:"center_lat" mapstructure:"center_lat"`
	Zoom      float64 `yaml:"zoom" mapstructure:"zoom"`
}

// FetchConfig configures dataset and geometry downloads.
type FetchConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// MaxRetries is the total number of attempts per download, first try
	// included.
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

// CensusConfig configures the ACS dataset fetcher.
type CensusConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Year    int    `yaml:"year" mapstructure:"year"`
	State   string `yaml:"state" mapstructure:"state"`
	County  string `yaml:"county" mapstructure:"county"`
	OutDir  string `yaml:"out_dir" mapstructure:"out_dir"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OVERLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "public/data")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_sessions", 256)
	v.SetDefault("server.cache_entries", 512)
	v.SetDefault("server.cache_ttl_secs", 600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geometry.location", "tracts.geojson")
	v.SetDefault("geometry.temp_dir", "/tmp/tract-overlays")
	v.SetDefault("overlays.file", "")
	v.SetDefault("overlays.missing_color", "#808080")
	v.SetDefault("overlays.non_positive_color", "#e7298a")
	v.SetDefault("map.style_url", "https://demotiles.maplibre.org/style.json")
	v.SetDefault("map.center_lon", -118.2437)
	v.SetDefault("map.center_lat", 34.0522)
	v.SetDefault("map.zoom", 8.0)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.retry_backoff_ms", 500)
	v.SetDefault("fetch.user_agent", "tract-overlays/1.0")
	v.SetDefault("census.key", "")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.year", 2022)
	v.SetDefault("census.state", "06")
	v.SetDefault("census.county", "037")
	v.SetDefault("census.out_dir", "public/data/census")

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

// Validate checks the fields a command needs. Mode is "serve", "census" or
// "overlays".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.DataDir == "" {
			errs = append(errs, "server.data_dir is required")
		}
		if c.Server.MaxSessions <= 0 {
			errs = append(errs, "server.max_sessions must be > 0")
		}
		if c.Server.CacheEntries <= 0 {
			errs = append(errs, "server.cache_entries must be > 0")
		}
		if c.Geometry.Location == "" {
			errs = append(errs, "geometry.location is required")
		}
		if c.Map.Zoom < 0 || c.Map.Zoom > 24 {
			errs = append(errs, "map.zoom must be between 0 and 24")
		}
		if c.Fetch.MaxRetries < 0 {
			errs = append(errs, "fetch.max_retries must be >= 0")
		}
		if c.Fetch.RetryBackoffMs < 0 {
			errs = append(errs, "fetch.retry_backoff_ms must be >= 0")
		}
	case "census":
		if c.Census.BaseURL == "" {
			errs = append(errs, "census.base_url is required")
		}
		if c.Census.Year < 2009 {
			errs = append(errs, "census.year must be 2009 or later")
		}
		if len(c.Census.State) != 2 {
			errs = append(errs, "census.state must be a 2-digit FIPS code")
		}
		if len(c.Census.County) != 3 {
			errs = append(errs, "census.county must be a 3-digit FIPS code")
		}
		if c.Census.OutDir == "" {
			errs = append(errs, "census.out_dir is required")
		}
	case "overlays":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Overlays.MissingColor == "" || c.Overlays.NonPositiveColor == "" {
		errs = append(errs, "overlays.missing_color and overlays.non_positive_color are required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
