package config

import (
	"os"
	"strings"

	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/logger"
	"github.com/jadujoel/pressure-observer/internal/pressure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval = 1000
	configName      = "pressured"
	configEnvVar    = "PRESSURED_CONFIG"
	envPrefix       = "PRESSURED"
)

type Config struct {
	// Sources the daemon observes at startup.
	Sources []string `mapstructure:"sources"`
	// Allowed is the permission policy handed to the sampler; empty
	// allows every supported source.
	Allowed []string `mapstructure:"allowed"`
	// Interval is the requested sample interval in milliseconds.
	Interval    int    `mapstructure:"interval"`
	LogLevel    string `mapstructure:"log_level"`
	Telemetry   bool   `mapstructure:"telemetry"`
	TelemetryDB string `mapstructure:"database"`
	Debug       bool   `mapstructure:"debug"`
	Verbose     bool   `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("sources", []string{"cpu", "thermals"})
	v.SetDefault("allowed", []string{})
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", "/var/lib/pressured/telemetry.db")

	fs := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Int("interval", defaultInterval, "Sample interval in milliseconds")
	fs.StringSlice("sources", []string{"cpu", "thermals"}, "Pressure sources to observe")
	fs.Bool("telemetry", false, "Persist delivered records to the telemetry database")
	fs.String("database", "", "Path to the telemetry database")
	fs.String("log-level", "", "Log level (debug, info, warning, error)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	for key, flagName := range map[string]string{
		"debug":     "debug",
		"verbose":   "verbose",
		"interval":  "interval",
		"sources":   "sources",
		"telemetry": "telemetry",
		"database":  "database",
		"log_level": "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(configEnvVar); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if !validLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	for _, source := range append(append([]string{}, c.Sources...), c.Allowed...) {
		if !pressure.Source(source).Valid() {
			return errFactory.WithData(errors.ErrInvalidConfig, source)
		}
	}

	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "error":
		return true
	default:
		return false
	}
}

// ToLogLevel maps the configured level onto the logger's levels, with the
// debug and verbose flags taking precedence.
func (c *Config) ToLogLevel() logger.LogLevel {
	if c.Debug {
		return logger.DebugLevel
	}
	if c.Verbose {
		return logger.InfoLevel
	}

	switch c.LogLevel {
	case "debug":
		return logger.DebugLevel
	case "info":
		return logger.InfoLevel
	case "warning":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}
