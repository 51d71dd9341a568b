// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Analytics engine modes
const (
	AnalyticsLocal = "local"
	AnalyticsREST  = "rest"
)

// Due policies for the keep-alive sweep
const (
	DuePolicyWindow        = "window"
	DuePolicyWindowElapsed = "window_elapsed"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Analytics engine
	AnalyticsMode           string `mapstructure:"analyticsmode"`
	AnalyticsDataset        string `mapstructure:"analyticsdataset"`
	AnalyticsSite           string `mapstructure:"analyticssite"`
	AnalyticsSQLEndpoint    string `mapstructure:"analyticssqlendpoint"`
	AnalyticsWriteEndpoint  string `mapstructure:"analyticswriteendpoint"`
	AnalyticsAccountID      string `mapstructure:"analyticsaccountid"`
	AnalyticsAPIToken       string `mapstructure:"analyticsapitoken"`
	AnalyticsTimeoutSeconds int    `mapstructure:"analyticstimeoutseconds"`
	RankPageLimit           int    `mapstructure:"rankpagelimit"`
	ReportingTimezone       string `mapstructure:"reportingtimezone"`
	VisitorSalt             string `mapstructure:"visitorsalt"`
	PageViewsRetentionDays  int    `mapstructure:"pageviewsretentiondays"`

	// Keep-alive target
	KeepAliveEndpoint       string   `mapstructure:"keepaliveendpoint"`
	KeepAliveUserAgent      string   `mapstructure:"keepaliveuseragent"`
	KeepAliveReferrer       string   `mapstructure:"keepalivereferrer"`
	KeepAliveLoginMarkers   []string `mapstructure:"keepaliveloginmarkers"`
	KeepAliveTimeoutSeconds int      `mapstructure:"keepalivetimeoutseconds"`
	KeepAliveExcerptLimit   int      `mapstructure:"keepaliveexcerptlimit"`

	// Keep-alive scheduling
	CycleSeconds      int    `mapstructure:"cycleseconds"`
	WindowHalfSeconds int    `mapstructure:"windowhalfseconds"`
	DuePolicy         string `mapstructure:"duepolicy"`
	MinElapsedSeconds int    `mapstructure:"minelapsedseconds"`
	SweepSchedule     string `mapstructure:"sweepschedule"`
	SweepWorkers      int    `mapstructure:"sweepworkers"`

	// Keep-alive storage and auth
	ConfigKeyPrefix   string `mapstructure:"configkeyprefix"`
	AuthKeyPrefix     string `mapstructure:"authkeyprefix"`
	RequireUserToken  bool   `mapstructure:"requireusertoken"`
	TokenCacheSeconds int    `mapstructure:"tokencacheseconds"`

	// Notifications
	NATSURL           string `mapstructure:"natsurl"`
	NATSSubjectPrefix string `mapstructure:"natssubjectprefix"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "sitepulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "web/dist")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)

		v.SetDefault("analyticsmode", AnalyticsLocal)
		v.SetDefault("analyticsdataset", "blog_pageviews")
		v.SetDefault("analyticssite", "blog")
		v.SetDefault("analyticssqlendpoint", "")
		v.SetDefault("analyticswriteendpoint", "")
		v.SetDefault("analyticstimeoutseconds", 5)
		v.SetDefault("rankpagelimit", 200)
		v.SetDefault("reportingtimezone", "UTC")
		v.SetDefault("visitorsalt", "sitepulse")
		v.SetDefault("pageviewsretentiondays", 400)

		v.SetDefault("keepaliveendpoint", "")
		v.SetDefault("keepaliveuseragent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
		v.SetDefault("keepalivereferrer", "")
		v.SetDefault("keepaliveloginmarkers", []string{"not logged in", "login required"})
		v.SetDefault("keepalivetimeoutseconds", 8)
		v.SetDefault("keepaliveexcerptlimit", 100)

		v.SetDefault("cycleseconds", 300)
		v.SetDefault("windowhalfseconds", 90)
		v.SetDefault("duepolicy", DuePolicyWindowElapsed)
		v.SetDefault("minelapsedseconds", 210)
		v.SetDefault("sweepschedule", "@every 1m")
		v.SetDefault("sweepworkers", 4)

		v.SetDefault("configkeyprefix", "hangup")
		v.SetDefault("authkeyprefix", "hangup_auth")
		v.SetDefault("requireusertoken", true)
		v.SetDefault("tokencacheseconds", 60)

		v.SetDefault("natsurl", "")
		v.SetDefault("natssubjectprefix", "sitepulse")

		v.BindEnv("appname", "SITEPULSE_APP_NAME")
		v.BindEnv("appport", "SITEPULSE_APP_PORT")
		v.BindEnv("environment", "SITEPULSE_ENV")
		v.BindEnv("loglevel", "SITEPULSE_LOG_LEVEL")
		v.BindEnv("privatekey", "SITEPULSE_PRIVATE_KEY")
		v.BindEnv("storagepath", "SITEPULSE_STORAGE_PATH")
		v.BindEnv("publicdir", "SITEPULSE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "SITEPULSE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "SITEPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "SITEPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "SITEPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "SITEPULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "SITEPULSE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "SITEPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "SITEPULSE_DB_MAX_IDLE_CONNS")

		v.BindEnv("analyticsmode", "SITEPULSE_ANALYTICS_MODE")
		v.BindEnv("analyticsdataset", "SITEPULSE_ANALYTICS_DATASET")
		v.BindEnv("analyticssite", "SITEPULSE_ANALYTICS_SITE")
		v.BindEnv("analyticssqlendpoint", "SITEPULSE_ANALYTICS_SQL_ENDPOINT")
		v.BindEnv("analyticswriteendpoint", "SITEPULSE_ANALYTICS_WRITE_ENDPOINT")
		v.BindEnv("analyticsaccountid", "SITEPULSE_ANALYTICS_ACCOUNT_ID")
		v.BindEnv("analyticsapitoken", "SITEPULSE_ANALYTICS_API_TOKEN")
		v.BindEnv("analyticstimeoutseconds", "SITEPULSE_ANALYTICS_TIMEOUT_SECONDS")
		v.BindEnv("rankpagelimit", "SITEPULSE_RANK_PAGE_LIMIT")
		v.BindEnv("reportingtimezone", "SITEPULSE_REPORTING_TIMEZONE")
		v.BindEnv("visitorsalt", "SITEPULSE_VISITOR_SALT")
		v.BindEnv("pageviewsretentiondays", "SITEPULSE_PAGE_VIEWS_RETENTION_DAYS")

		v.BindEnv("keepaliveendpoint", "SITEPULSE_KEEPALIVE_ENDPOINT")
		v.BindEnv("keepaliveuseragent", "SITEPULSE_KEEPALIVE_USER_AGENT")
		v.BindEnv("keepalivereferrer", "SITEPULSE_KEEPALIVE_REFERRER")
		v.BindEnv("keepaliveloginmarkers", "SITEPULSE_KEEPALIVE_LOGIN_MARKERS")
		v.BindEnv("keepalivetimeoutseconds", "SITEPULSE_KEEPALIVE_TIMEOUT_SECONDS")
		v.BindEnv("keepaliveexcerptlimit", "SITEPULSE_KEEPALIVE_EXCERPT_LIMIT")

		v.BindEnv("cycleseconds", "SITEPULSE_CYCLE_SECONDS")
		v.BindEnv("windowhalfseconds", "SITEPULSE_WINDOW_HALF_SECONDS")
		v.BindEnv("duepolicy", "SITEPULSE_DUE_POLICY")
		v.BindEnv("minelapsedseconds", "SITEPULSE_MIN_ELAPSED_SECONDS")
		v.BindEnv("sweepschedule", "SITEPULSE_SWEEP_SCHEDULE")
		v.BindEnv("sweepworkers", "SITEPULSE_SWEEP_WORKERS")

		v.BindEnv("configkeyprefix", "SITEPULSE_CONFIG_KEY_PREFIX")
		v.BindEnv("authkeyprefix", "SITEPULSE_AUTH_KEY_PREFIX")
		v.BindEnv("requireusertoken", "SITEPULSE_REQUIRE_USER_TOKEN")
		v.BindEnv("tokencacheseconds", "SITEPULSE_TOKEN_CACHE_SECONDS")

		v.BindEnv("natsurl", "SITEPULSE_NATS_URL")
		v.BindEnv("natssubjectprefix", "SITEPULSE_NATS_SUBJECT_PREFIX")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique SITEPULSE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	switch c.AnalyticsMode {
	case AnalyticsLocal:
	case AnalyticsREST:
		if c.SQLEndpoint() == "" {
			return fmt.Errorf("analytics mode %q requires an SQL endpoint", c.AnalyticsMode)
		}
	default:
		return fmt.Errorf("invalid analytics mode: %s", c.AnalyticsMode)
	}

	if !identifierPattern.MatchString(c.AnalyticsDataset) {
		return fmt.Errorf("invalid analytics dataset name: %q", c.AnalyticsDataset)
	}

	if _, err := time.LoadLocation(c.ReportingTimezone); err != nil {
		return fmt.Errorf("invalid reporting timezone %q: %w", c.ReportingTimezone, err)
	}

	if c.DuePolicy != DuePolicyWindow && c.DuePolicy != DuePolicyWindowElapsed {
		return fmt.Errorf("invalid due policy: %s", c.DuePolicy)
	}

	if c.CycleSeconds <= 0 {
		return fmt.Errorf("cycle seconds must be positive, got %d", c.CycleSeconds)
	}
	if c.WindowHalfSeconds < 0 || c.WindowHalfSeconds*2 > c.CycleSeconds {
		return fmt.Errorf("window half-width %ds does not fit a %ds cycle", c.WindowHalfSeconds, c.CycleSeconds)
	}
	// Sweeps at both edges of one window are 2*half-width apart; the elapsed
	// guard must outlast that and still let the next cycle fire.
	if c.DuePolicy == DuePolicyWindowElapsed {
		if c.MinElapsedSeconds <= c.WindowHalfSeconds*2 {
			return fmt.Errorf("min elapsed %ds must exceed the %ds window width", c.MinElapsedSeconds, c.WindowHalfSeconds*2)
		}
		if c.MinElapsedSeconds >= c.CycleSeconds {
			return fmt.Errorf("min elapsed %ds must be shorter than the %ds cycle", c.MinElapsedSeconds, c.CycleSeconds)
		}
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Location returns the reporting timezone. validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SQLEndpoint returns the analytics SQL API URL, derived from the account ID
// when no explicit endpoint is configured.
func (c *Config) SQLEndpoint() string {
	if c.AnalyticsSQLEndpoint != "" {
		return c.AnalyticsSQLEndpoint
	}
	if c.AnalyticsAccountID != "" {
		return fmt.Sprintf("https://api.cloudflare.com/client/v4/accounts/%s/analytics_engine/sql", c.AnalyticsAccountID)
	}
	return ""
}

// AnalyticsTimeout returns the timeout applied to analytics engine calls.
func (c *Config) AnalyticsTimeout() time.Duration {
	return time.Duration(c.AnalyticsTimeoutSeconds) * time.Second
}

// KeepAliveTimeout returns the timeout applied to each outbound keep-alive request.
func (c *Config) KeepAliveTimeout() time.Duration {
	return time.Duration(c.KeepAliveTimeoutSeconds) * time.Second
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
