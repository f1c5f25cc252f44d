package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// TMDB
	TMDBAccessToken     string
	TMDBBaseURL         string
	TMDBImageBaseURL    string
	TMDBBackdropBaseURL string

	// VidSrc
	VidSrcBaseURL string

	// Outbound HTTP
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMultiplier   float64
	RequestsPerSecond float64

	// Database
	DBPoolSize    int
	DBMaxOverflow int
	DBPoolRecycle time.Duration
	DBBusyTimeout time.Duration

	// Cache durations
	CacheTMDB         time.Duration
	CacheVidSrc       time.Duration
	CachePoster       time.Duration
	CacheBackdrop     time.Duration
	ProviderCacheSize int

	// Sync
	SyncMoviePages    int
	SyncTVPages       int
	SyncTrendingPages int
	SyncPageWorkers   int
	SyncDetailWorkers int
	SyncSchedule      string
	SyncTimeout       time.Duration
	SyncOnStartup     bool

	// Pagination
	PerPage       int
	SearchPerPage int
	MaxPerPage    int
	TrendingLimit int

	// Server
	ServerPort string

	// Paths
	BlocklistFile string // $CONFIG_DIR/blocklist.txt
	DatabaseFile  string // $CONFIG_DIR/homeflix.db

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	setDefaults()

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "homeflix")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := fromViper(configDir)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults() {
	viper.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	viper.SetDefault("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/w500")
	viper.SetDefault("TMDB_BACKDROP_BASE_URL", "https://image.tmdb.org/t/p/w1280")
	viper.SetDefault("VIDSRC_BASE_URL", "https://vidsrc.xyz")

	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", 10)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_BASE_DELAY_MS", 1000)
	viper.SetDefault("RETRY_MULTIPLIER", 2.0)
	viper.SetDefault("REQUESTS_PER_SECOND", 8)

	viper.SetDefault("DB_POOL_SIZE", 10)
	viper.SetDefault("DB_MAX_OVERFLOW", 20)
	viper.SetDefault("DB_POOL_RECYCLE_MINUTES", 60)
	viper.SetDefault("DB_BUSY_TIMEOUT_MS", 10000)

	viper.SetDefault("CACHE_TMDB_SECONDS", 3600)
	viper.SetDefault("CACHE_VIDSRC_SECONDS", 600)
	viper.SetDefault("CACHE_POSTER_SECONDS", 7200)
	viper.SetDefault("CACHE_BACKDROP_SECONDS", 7200)
	viper.SetDefault("PROVIDER_CACHE_SIZE", 2048)

	viper.SetDefault("SYNC_MOVIE_PAGES", 5)
	viper.SetDefault("SYNC_TV_PAGES", 5)
	viper.SetDefault("SYNC_TRENDING_PAGES", 3)
	viper.SetDefault("SYNC_PAGE_WORKERS", 4)
	viper.SetDefault("SYNC_DETAIL_WORKERS", 10)
	viper.SetDefault("SYNC_SCHEDULE", "*/30 * * * *")
	viper.SetDefault("SYNC_TIMEOUT_MINUTES", 30)
	viper.SetDefault("SYNC_ON_STARTUP", true)

	viper.SetDefault("PER_PAGE", 16)
	viper.SetDefault("SEARCH_PER_PAGE", 15)
	viper.SetDefault("MAX_PER_PAGE", 50)
	viper.SetDefault("TRENDING_LIMIT", 16)

	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("LOG_LEVEL", "info")
}

func fromViper(configDir string) *Config {
	return &Config{
		// TMDB
		TMDBAccessToken:     viper.GetString("TMDB_ACCESS_TOKEN"),
		TMDBBaseURL:         viper.GetString("TMDB_BASE_URL"),
		TMDBImageBaseURL:    viper.GetString("TMDB_IMAGE_BASE_URL"),
		TMDBBackdropBaseURL: viper.GetString("TMDB_BACKDROP_BASE_URL"),

		// VidSrc
		VidSrcBaseURL: viper.GetString("VIDSRC_BASE_URL"),

		// Outbound HTTP
		RequestTimeout:    time.Duration(viper.GetInt("REQUEST_TIMEOUT_SECONDS")) * time.Second,
		MaxRetries:        viper.GetInt("MAX_RETRIES"),
		RetryBaseDelay:    time.Duration(viper.GetInt("RETRY_BASE_DELAY_MS")) * time.Millisecond,
		RetryMultiplier:   viper.GetFloat64("RETRY_MULTIPLIER"),
		RequestsPerSecond: viper.GetFloat64("REQUESTS_PER_SECOND"),

		// Database
		DBPoolSize:    viper.GetInt("DB_POOL_SIZE"),
		DBMaxOverflow: viper.GetInt("DB_MAX_OVERFLOW"),
		DBPoolRecycle: time.Duration(viper.GetInt("DB_POOL_RECYCLE_MINUTES")) * time.Minute,
		DBBusyTimeout: time.Duration(viper.GetInt("DB_BUSY_TIMEOUT_MS")) * time.Millisecond,

		// Cache durations
		CacheTMDB:         time.Duration(viper.GetInt("CACHE_TMDB_SECONDS")) * time.Second,
		CacheVidSrc:       time.Duration(viper.GetInt("CACHE_VIDSRC_SECONDS")) * time.Second,
		CachePoster:       time.Duration(viper.GetInt("CACHE_POSTER_SECONDS")) * time.Second,
		CacheBackdrop:     time.Duration(viper.GetInt("CACHE_BACKDROP_SECONDS")) * time.Second,
		ProviderCacheSize: viper.GetInt("PROVIDER_CACHE_SIZE"),

		// Sync
		SyncMoviePages:    viper.GetInt("SYNC_MOVIE_PAGES"),
		SyncTVPages:       viper.GetInt("SYNC_TV_PAGES"),
		SyncTrendingPages: viper.GetInt("SYNC_TRENDING_PAGES"),
		SyncPageWorkers:   viper.GetInt("SYNC_PAGE_WORKERS"),
		SyncDetailWorkers: viper.GetInt("SYNC_DETAIL_WORKERS"),
		SyncSchedule:      viper.GetString("SYNC_SCHEDULE"),
		SyncTimeout:       time.Duration(viper.GetInt("SYNC_TIMEOUT_MINUTES")) * time.Minute,
		SyncOnStartup:     viper.GetBool("SYNC_ON_STARTUP"),

		// Pagination
		PerPage:       viper.GetInt("PER_PAGE"),
		SearchPerPage: viper.GetInt("SEARCH_PER_PAGE"),
		MaxPerPage:    viper.GetInt("MAX_PER_PAGE"),
		TrendingLimit: viper.GetInt("TRENDING_LIMIT"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		BlocklistFile: filepath.Join(configDir, "blocklist.txt"),
		DatabaseFile:  filepath.Join(configDir, "homeflix.db"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
		LogFile:  viper.GetString("LOG_FILE"),
	}
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.TMDBAccessToken == "" {
		return fmt.Errorf("TMDB_ACCESS_TOKEN is required")
	}
	if c.DBPoolSize < 1 {
		return fmt.Errorf("DB_POOL_SIZE must be at least 1")
	}
	if c.DBMaxOverflow < 0 {
		return fmt.Errorf("DB_MAX_OVERFLOW must not be negative")
	}
	if c.SyncPageWorkers < 1 || c.SyncDetailWorkers < 1 {
		return fmt.Errorf("SYNC_PAGE_WORKERS and SYNC_DETAIL_WORKERS must be at least 1")
	}
	if c.PerPage < 1 || c.MaxPerPage < c.PerPage {
		return fmt.Errorf("PER_PAGE must be between 1 and MAX_PER_PAGE")
	}
	return nil
}
