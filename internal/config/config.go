package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig            `mapstructure:"server"`
	Regions       map[string]RegionConfig `mapstructure:"regions"`
	Argo          ArgoConfig              `mapstructure:"argo"`
	Cache         CacheConfig             `mapstructure:"cache"`
	Models        ModelsConfig            `mapstructure:"models"`
	Lifecycle     LifecycleConfig         `mapstructure:"lifecycle"`
	Visualization VisualizationConfig     `mapstructure:"visualization"`
	Gemini        GeminiConfig            `mapstructure:"gemini"`
	Telegram      TelegramConfig          `mapstructure:"telegram"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	VisualizationWait time.Duration `mapstructure:"visualization_wait"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// RegionConfig describes one ocean region
type RegionConfig struct {
	Name string `mapstructure:"name"`
	// Bounds is [lon_min, lon_max, lat_min, lat_max]
	Bounds   []float64    `mapstructure:"bounds"`
	PFZZones []ZoneConfig `mapstructure:"pfz_zones"`
}

// ZoneConfig is a potential fishing zone box. Zones are a list rather
// than a map because viper lowercases map keys.
type ZoneConfig struct {
	Name string    `mapstructure:"name"`
	Lat  []float64 `mapstructure:"lat"`
	Lon  []float64 `mapstructure:"lon"`
}

// ArgoConfig holds the ERDDAP Argo data source configuration
type ArgoConfig struct {
	ERDDAPURL         string        `mapstructure:"erddap_url"`
	DatasetID         string        `mapstructure:"dataset_id"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	Years             []int         `mapstructure:"years"`
	Months            []int         `mapstructure:"months"`
	MaxDepth          int           `mapstructure:"max_depth"`
	SyntheticFallback bool          `mapstructure:"synthetic_fallback"`
}

// CacheConfig holds raw data cache configuration
type CacheConfig struct {
	Dir             string        `mapstructure:"dir"`
	TTL             time.Duration `mapstructure:"ttl"`
	Compress        bool          `mapstructure:"compress"`
	FilePermissions os.FileMode   `mapstructure:"file_permissions"`
	DirPermissions  os.FileMode   `mapstructure:"dir_permissions"`
}

// ModelsConfig holds model store and trainer configuration
type ModelsConfig struct {
	Dir          string  `mapstructure:"dir"`
	MaxHistory   int     `mapstructure:"max_history"`
	TestFraction float64 `mapstructure:"test_fraction"`
	RandomSeed   int64   `mapstructure:"random_seed"`
	MinRecords   int     `mapstructure:"min_records"`
}

// LifecycleConfig holds region lifecycle manager configuration
type LifecycleConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	WarmOnStart      bool          `mapstructure:"warm_on_start"`
}

// VisualizationConfig holds chart payload configuration
type VisualizationConfig struct {
	SampleSize int `mapstructure:"sample_size"`
}

// GeminiConfig holds the chat assistant configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable override, e.g. OCEAN_ORACLE_SERVER_ADDR
	v.SetEnvPrefix("OCEAN_ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The chat credential keeps the conventional variable name
	if err := v.BindEnv("gemini.api_key", "OCEAN_ORACLE_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind gemini api key: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Regions replace the built-in set as a whole; viper would merge them
	if len(cfg.Regions) == 0 {
		cfg.Regions = DefaultRegions()
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.visualization_wait", "5s")
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:5173",
	})

	// Argo defaults
	v.SetDefault("argo.erddap_url", "https://erddap.ifremer.fr/erddap")
	v.SetDefault("argo.dataset_id", "ArgoFloats")
	v.SetDefault("argo.timeout", "60s")
	v.SetDefault("argo.max_retries", 3)
	v.SetDefault("argo.retry_delay_base", "1s")
	v.SetDefault("argo.years", []int{2022, 2023, 2024})
	v.SetDefault("argo.months", []int{6, 7, 8})
	v.SetDefault("argo.max_depth", 2000)
	v.SetDefault("argo.synthetic_fallback", true)

	// Cache defaults
	v.SetDefault("cache.dir", "./data_cache")
	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("cache.compress", true)
	v.SetDefault("cache.file_permissions", 0o644)
	v.SetDefault("cache.dir_permissions", 0o755)

	// Model defaults
	v.SetDefault("models.dir", "./models")
	v.SetDefault("models.max_history", 3)
	v.SetDefault("models.test_fraction", 0.2)
	v.SetDefault("models.random_seed", 42)
	v.SetDefault("models.min_records", 50)

	// Lifecycle defaults
	v.SetDefault("lifecycle.operation_timeout", "15m")
	v.SetDefault("lifecycle.warm_on_start", true)

	// Visualization defaults
	v.SetDefault("visualization.sample_size", 5000)

	// Gemini defaults
	v.SetDefault("gemini.model", "gemini-1.5-flash")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RequestTimeout < 1*time.Second {
		return fmt.Errorf("server.request_timeout must be at least 1 second")
	}
	if c.Server.VisualizationWait < 0 {
		return fmt.Errorf("server.visualization_wait must not be negative")
	}

	// Validate Regions config
	if len(c.Regions) == 0 {
		return fmt.Errorf("regions must contain at least one region")
	}
	for _, key := range c.RegionKeys() {
		region := c.Regions[key]
		if region.Name == "" {
			return fmt.Errorf("regions.%s.name is required", key)
		}
		if len(region.Bounds) != 4 {
			return fmt.Errorf("regions.%s.bounds must be [lon_min, lon_max, lat_min, lat_max]", key)
		}
		for i, zone := range region.PFZZones {
			if zone.Name == "" {
				return fmt.Errorf("regions.%s.pfz_zones[%d].name is required", key, i)
			}
			if len(zone.Lat) != 2 || len(zone.Lon) != 2 {
				return fmt.Errorf("regions.%s.pfz_zones[%d] must have 2 lat and 2 lon values", key, i)
			}
		}
	}

	// Validate Argo config
	if c.Argo.ERDDAPURL == "" {
		return fmt.Errorf("argo.erddap_url is required")
	}
	if c.Argo.DatasetID == "" {
		return fmt.Errorf("argo.dataset_id is required")
	}
	if len(c.Argo.Years) == 0 {
		return fmt.Errorf("argo.years must contain at least one year")
	}
	if len(c.Argo.Months) == 0 {
		return fmt.Errorf("argo.months must contain at least one month")
	}
	for _, m := range c.Argo.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("argo.months must be between 1 and 12, got %d", m)
		}
	}
	if c.Argo.MaxDepth < 1 {
		return fmt.Errorf("argo.max_depth must be at least 1")
	}
	if c.Argo.MaxRetries < 1 {
		return fmt.Errorf("argo.max_retries must be at least 1")
	}

	// Validate Cache config
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Cache.TTL < 1*time.Minute {
		return fmt.Errorf("cache.ttl must be at least 1 minute")
	}

	// Validate Models config
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if c.Models.MaxHistory < 0 {
		return fmt.Errorf("models.max_history must not be negative")
	}
	if c.Models.TestFraction <= 0.0 || c.Models.TestFraction >= 1.0 {
		return fmt.Errorf("models.test_fraction must be between 0.0 and 1.0")
	}
	if c.Models.MinRecords < 10 {
		return fmt.Errorf("models.min_records must be at least 10")
	}

	// Validate Lifecycle config
	if c.Lifecycle.OperationTimeout < 1*time.Second {
		return fmt.Errorf("lifecycle.operation_timeout must be at least 1 second")
	}

	// Validate Visualization config
	if c.Visualization.SampleSize < 1 {
		return fmt.Errorf("visualization.sample_size must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// DefaultRegions returns the built-in Indian Ocean regions
func DefaultRegions() map[string]RegionConfig {
	return map[string]RegionConfig{
		"arabian_sea": {
			Name:   "Arabian Sea",
			Bounds: []float64{50, 80, 5, 25},
			PFZZones: []ZoneConfig{
				{Name: "Gujarat Coast", Lat: []float64{20, 22}, Lon: []float64{68, 71}},
				{Name: "Goa-Karnataka Coast", Lat: []float64{13, 16}, Lon: []float64{73, 75}},
			},
		},
		"bay_of_bengal": {
			Name:   "Bay of Bengal",
			Bounds: []float64{80, 100, 5, 22},
			PFZZones: []ZoneConfig{
				{Name: "North Andhra Coast", Lat: []float64{17, 19}, Lon: []float64{84, 86}},
				{Name: "Odisha Coast", Lat: []float64{19, 21}, Lon: []float64{86, 88}},
			},
		},
		"north_indian_ocean": {
			Name:   "North Indian Ocean",
			Bounds: []float64{40, 100, 0, 30},
			PFZZones: []ZoneConfig{
				{Name: "Central Indian Ocean", Lat: []float64{5, 15}, Lon: []float64{60, 80}},
				{Name: "Western Indian Ocean", Lat: []float64{10, 20}, Lon: []float64{50, 70}},
			},
		},
	}
}

// RegionKeys returns the configured region keys in sorted order
func (c *Config) RegionKeys() []string {
	keys := make([]string, 0, len(c.Regions))
	for key := range c.Regions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ChatEnabled reports whether a chat credential is configured
func (c *Config) ChatEnabled() bool {
	return c.Gemini.APIKey != ""
}
