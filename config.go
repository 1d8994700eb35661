package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/dnldd/tradeflow/fetch"
	"github.com/dnldd/tradeflow/ledger"
	"github.com/dnldd/tradeflow/shared"
	"github.com/dnldd/tradeflow/store"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	defaultMarket     = "BTC/USDT"
	defaultCadence    = "30m"
	defaultOffset     = 10
	defaultSinceHours = 10
	defaultLogLevel   = "info"
	defaultLogFormat  = "console"
)

// Config is the configuration struct for the service.
type Config struct {
	// Market represents the tracked market.
	Market string
	// ExchangeURL is the binance api base url.
	ExchangeURL string
	// Cadence is the candle cadence label.
	Cadence string
	// Offset is the delay, in seconds, past each cadence boundary before a cycle runs.
	Offset int
	// SinceHours is the trailing window, in hours, features are computed over.
	SinceHours int
	// DatabaseURL is the postgres connection string.
	DatabaseURL string
	// Schema is the postgres schema holding candle tables.
	Schema string
	// LedgerPath is the trade ledger file path.
	LedgerPath string
	// RqliteEndpoint is the optional trade archive endpoint.
	RqliteEndpoint string
	// RqliteUser is the trade archive user.
	RqliteUser string
	// RqlitePass is the trade archive user pass.
	RqlitePass string
	// StatusAddr is the optional status server address.
	StatusAddr string
	// Maintenance enables hourly partition maintenance.
	Maintenance bool
	// LogLevel is the minimum log level.
	LogLevel string
	// LogFormat is the log output format, console or json.
	LogFormat string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	_, err := shared.ParseCadence(cfg.Cadence)
	if err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.Offset < 0 {
		errs = errors.Join(errs, fmt.Errorf("offset cannot be negative"))
	}
	if cfg.SinceHours <= 0 {
		errs = errors.Join(errs, fmt.Errorf("since hours must be positive"))
	}
	if cfg.DatabaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("database url cannot be an empty string"))
	}
	if cfg.LedgerPath == "" {
		errs = errors.Join(errs, fmt.Errorf("ledger path cannot be an empty string"))
	}
	_, err = zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid log level %q", cfg.LogLevel))
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		errs = errors.Join(errs, fmt.Errorf("log format must be console or json, got %q", cfg.LogFormat))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
// Environment values take precedence over the provided fallback default.
func (cfg *Config) registerFlag(name string, value interface{}, fallback string, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	if defValue == "" {
		defValue = fallback
	}

	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	flags := []struct {
		name     string
		value    interface{}
		fallback string
		usage    string
	}{
		{"market", &cfg.Market, defaultMarket, "the tracked market"},
		{"exchangeurl", &cfg.ExchangeURL, fetch.BaseURL, "the binance api base url"},
		{"cadence", &cfg.Cadence, defaultCadence, "the candle cadence"},
		{"offset", &cfg.Offset, strconv.Itoa(defaultOffset), "the seconds past each cadence boundary before a cycle runs"},
		{"sincehour", &cfg.SinceHours, strconv.Itoa(defaultSinceHours), "the trailing feature window in hours"},
		{"databaseurl", &cfg.DatabaseURL, "", "the postgres connection string"},
		{"schema", &cfg.Schema, store.DefaultSchema, "the postgres candle schema"},
		{"ledgerpath", &cfg.LedgerPath, ledger.DefaultPath, "the trade ledger filepath"},
		{"rqliteendpoint", &cfg.RqliteEndpoint, "", "the trade archive endpoint"},
		{"rqliteuser", &cfg.RqliteUser, "", "the trade archive user"},
		{"rqlitepass", &cfg.RqlitePass, "", "the trade archive user pass"},
		{"statusaddr", &cfg.StatusAddr, "", "the status server address"},
		{"maintenance", &cfg.Maintenance, "true", "the hourly partition maintenance flag"},
		{"loglevel", &cfg.LogLevel, defaultLogLevel, "the minimum log level"},
		{"logformat", &cfg.LogFormat, defaultLogFormat, "the log format, console or json"},
	}

	// Register command line arguments using loaded environment variables as defaults.
	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.fallback, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
