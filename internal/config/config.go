// Package config loads server settings from a config file, environment
// variables and flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"expense-approval/internal/currency"

	"github.com/spf13/viper"
)

// Config holds everything the server needs to start.
type Config struct {
	Addr              string
	DBPath            string
	SessionDuration   time.Duration
	ReportingCurrency string
	Rates             currency.Snapshot
	LogLevel          string
	LogFormat         string
	AdminEmail        string
	AdminPassword     string
}

// defaultRates is the built-in rate snapshot into USD, used when the
// config file supplies none.
var defaultRates = map[string]string{
	"USD": "1",
	"EUR": "1.08",
	"GBP": "1.27",
	"INR": "0.012",
	"JPY": "0.0067",
	"CAD": "0.73",
	"AUD": "0.65",
}

// Load reads configuration. If cfgFile is empty, config.yaml is searched
// in the working directory and $HOME/.config/expense-approval. Environment
// variables override the file with the EXPENSE prefix, e.g.
// EXPENSE_SERVER_ADDR or EXPENSE_DB_PATH.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("db.path", "expenses.db")
	v.SetDefault("session.duration", "12h")
	v.SetDefault("currency.reporting", "USD")
	v.SetDefault("currency.rates", defaultRates)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/expense-approval")
		}
	}

	v.SetEnvPrefix("EXPENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	duration, err := time.ParseDuration(v.GetString("session.duration"))
	if err != nil {
		return nil, fmt.Errorf("invalid session.duration: %w", err)
	}

	// Viper lowercases map keys read from files; normalize so lookups and
	// defaults agree.
	rates := make(currency.Snapshot)
	for code, raw := range v.GetStringMapString("currency.rates") {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", code, err)
		}
		rates[strings.ToUpper(code)] = rate
	}

	return &Config{
		Addr:              v.GetString("server.addr"),
		DBPath:            v.GetString("db.path"),
		SessionDuration:   duration,
		ReportingCurrency: v.GetString("currency.reporting"),
		Rates:             rates,
		LogLevel:          v.GetString("logging.level"),
		LogFormat:         v.GetString("logging.format"),
		AdminEmail:        v.GetString("admin.email"),
		AdminPassword:     v.GetString("admin.password"),
	}, nil
}
