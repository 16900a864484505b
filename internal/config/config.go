package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "RADIOJOURNAL"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultLogLevel          = "info"
	defaultLogFormat         = LogFormatJSON
	defaultStoreDriver       = StoreDriverDynamoDB
	defaultStoreTable        = "radiojournal"
	defaultSQLitePath        = "radiojournal.db"
	defaultAWSRegion         = "us-east-1"
	defaultTokenTTLMinutes   = 60
	defaultPollerInterval    = time.Minute
	defaultPollerStations    = 100
	defaultFetcherTimeout    = 5 * time.Second
	defaultCoolismUsername   = "coolism"
	maxPollerStationsPerPass = 1000
)

const (
	StoreDriverDynamoDB = "dynamodb"
	StoreDriverSQLite   = "sqlite"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// AppConfig captures runtime configuration for every radiojournal command.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string
	LogFormat   string

	StoreDriver string
	StoreTable  string
	SQLitePath  string

	AWSRegion          string
	AWSEndpoint        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	SigningSecret string
	TokenTTL      time.Duration

	PollerInterval     time.Duration
	PollerStationLimit int

	FetcherTimeout  time.Duration
	CoolismUsername string
	CoolismPassword string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("store.driver", defaultStoreDriver)
	configViper.SetDefault("store.table", defaultStoreTable)
	configViper.SetDefault("store.sqlite_path", defaultSQLitePath)
	configViper.SetDefault("aws.region", defaultAWSRegion)
	configViper.SetDefault("aws.endpoint", "")
	configViper.SetDefault("aws.access_key_id", "")
	configViper.SetDefault("aws.secret_access_key", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("poller.interval", defaultPollerInterval)
	configViper.SetDefault("poller.station_limit", defaultPollerStations)
	configViper.SetDefault("fetchers.timeout", defaultFetcherTimeout)
	configViper.SetDefault("fetchers.coolism.username", defaultCoolismUsername)
	configViper.SetDefault("fetchers.coolism.password", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		StoreDriver:        strings.ToLower(strings.TrimSpace(configViper.GetString("store.driver"))),
		StoreTable:         strings.TrimSpace(configViper.GetString("store.table")),
		SQLitePath:         configViper.GetString("store.sqlite_path"),
		AWSRegion:          configViper.GetString("aws.region"),
		AWSEndpoint:        configViper.GetString("aws.endpoint"),
		AWSAccessKeyID:     configViper.GetString("aws.access_key_id"),
		AWSSecretAccessKey: configViper.GetString("aws.secret_access_key"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		PollerInterval:     configViper.GetDuration("poller.interval"),
		PollerStationLimit: configViper.GetInt("poller.station_limit"),
		FetcherTimeout:     configViper.GetDuration("fetchers.timeout"),
		CoolismUsername:    configViper.GetString("fetchers.coolism.username"),
		CoolismPassword:    configViper.GetString("fetchers.coolism.password"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireSigningSecret reports a missing auth.signing_secret for commands that
// issue or validate admin tokens.
func (c AppConfig) RequireSigningSecret() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	switch c.LogFormat {
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("log.format must be %s or %s", LogFormatJSON, LogFormatConsole)
	}
	if c.StoreTable == "" {
		return fmt.Errorf("store.table is required")
	}
	switch c.StoreDriver {
	case StoreDriverDynamoDB:
		if strings.TrimSpace(c.AWSRegion) == "" {
			return fmt.Errorf("aws.region is required for the dynamodb store")
		}
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			return fmt.Errorf("aws.access_key_id and aws.secret_access_key must be set together")
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("store.driver must be %s or %s", StoreDriverDynamoDB, StoreDriverSQLite)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.PollerInterval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if c.PollerStationLimit <= 0 || c.PollerStationLimit > maxPollerStationsPerPass {
		return fmt.Errorf("poller.station_limit must be between 1 and %d", maxPollerStationsPerPass)
	}
	if c.FetcherTimeout <= 0 {
		return fmt.Errorf("fetchers.timeout must be positive")
	}
	return nil
}
