// Package config handles configuration loading and validation for the
// grid trading engine.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"gridtrader/internal/core"
)

// Config is the complete configuration structure loaded from YAML.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Grid        GridConfigFile    `yaml:"grid"`
	System      SystemConfig      `yaml:"system"`
	Timing      TimingConfig      `yaml:"timing"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name         string `yaml:"name"`
	DatabasePath string `yaml:"database_path" validate:"required"`
}

// ExchangeConfig contains exchange connectivity settings. BaseURL and
// WSURL default to the live exchange endpoints when empty; tests and the
// in-memory fake leave them unset.
type ExchangeConfig struct {
	Name      string `yaml:"name" validate:"required,oneof=binance fake"`
	APIKey    Secret `yaml:"api_key"`
	SecretKey Secret `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
	WSURL     string `yaml:"ws_url"`
}

// GridConfigFile mirrors core.GridConfig as the on-disk shape, since
// decimal.Decimal does not round-trip through YAML the way a plain
// string does.
type GridConfigFile struct {
	Market         string `yaml:"market" validate:"required"`
	MinPrice       string `yaml:"min_price" validate:"required"`
	MaxPrice       string `yaml:"max_price" validate:"required"`
	GridInterval   string `yaml:"grid_interval" validate:"required"`
	AmountPerGrid  string `yaml:"amount_per_grid" validate:"required"`
	ProfitInterval string `yaml:"profit_interval" validate:"required"`
}

// SystemConfig contains system-level settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// TimingConfig contains interval knobs. cmd/gridbot passes
// MonitorTickSeconds and ReconciliationEveryTicks to the engine;
// WebsocketReconnectDelay and OrderStatusPollSeconds are loaded and
// defaulted but not read by any other package.
type TimingConfig struct {
	MonitorTickSeconds       int `yaml:"monitor_tick_seconds" validate:"min=1,max=300"`
	ReconciliationEveryTicks int `yaml:"reconciliation_every_ticks" validate:"min=1,max=1000"`
	WebsocketReconnectDelay  int `yaml:"websocket_reconnect_delay" validate:"min=1,max=300"`
	OrderStatusPollSeconds   int `yaml:"order_status_poll_seconds" validate:"min=1,max=300"`
}

// ConcurrencyConfig contains worker pool sizing.
type ConcurrencyConfig struct {
	ProbePoolSize   int `yaml:"probe_pool_size" validate:"min=1,max=64"`
	ProbePoolBuffer int `yaml:"probe_pool_buffer" validate:"min=1,max=4096"`
}

// ValidationError reports one invalid or missing configuration field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// Load reads, expands, and validates a YAML config file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), lookupEnv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func lookupEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "${" + key + "}"
	}
	return v
}

func applyDefaults(cfg *Config) {
	if cfg.Timing.MonitorTickSeconds == 0 {
		cfg.Timing.MonitorTickSeconds = 5
	}
	if cfg.Timing.ReconciliationEveryTicks == 0 {
		cfg.Timing.ReconciliationEveryTicks = 30
	}
	if cfg.Timing.WebsocketReconnectDelay == 0 {
		cfg.Timing.WebsocketReconnectDelay = 5
	}
	if cfg.Timing.OrderStatusPollSeconds == 0 {
		cfg.Timing.OrderStatusPollSeconds = 5
	}
	if cfg.Concurrency.ProbePoolSize == 0 {
		cfg.Concurrency.ProbePoolSize = 8
	}
	if cfg.Concurrency.ProbePoolBuffer == 0 {
		cfg.Concurrency.ProbePoolBuffer = 64
	}
	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = "INFO"
	}
}

// Validate checks app.database_path, the exchange name and binance
// credentials, the presence of every grid field, and system.log_level,
// joining the error of each failing section rather than stopping at the
// first one. Timing and concurrency values are not checked, and the
// `validate` struct tags are not read by anything.
func (c *Config) Validate() error {
	var errs []string

	if c.App.DatabasePath == "" {
		errs = append(errs, ValidationError{Field: "app.database_path", Message: "required"}.Error())
	}

	if err := c.validateExchange(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateGrid(); err != nil {
		errs = append(errs, err.Error())
	}

	switch c.System.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: "must be one of DEBUG INFO WARN ERROR"}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateExchange() error {
	switch c.Exchange.Name {
	case "binance", "fake":
	default:
		return ValidationError{Field: "exchange.name", Value: c.Exchange.Name, Message: "must be one of: binance, fake"}
	}
	if c.Exchange.Name == "binance" {
		// An unset ${VAR} is left as its literal placeholder by lookupEnv,
		// so treat that the same as an empty credential.
		missing := func(s Secret) bool {
			v := string(s)
			return v == "" || (strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}"))
		}
		if missing(c.Exchange.APIKey) {
			return ValidationError{Field: "exchange.api_key", Message: "required for exchange binance"}
		}
		if missing(c.Exchange.SecretKey) {
			return ValidationError{Field: "exchange.secret_key", Message: "required for exchange binance"}
		}
	}
	return nil
}

// ToGridConfig parses the on-disk string fields into a core.GridConfig of
// exact decimals. Validate only confirms the fields are present; a
// malformed decimal is reported here, as is any core.GridConfig.Validate
// failure.
func (g GridConfigFile) ToGridConfig() (core.GridConfig, error) {
	parse := func(field, value string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, ValidationError{Field: field, Value: value, Message: "not a valid decimal"}
		}
		return d, nil
	}

	minPrice, err := parse("grid.min_price", g.MinPrice)
	if err != nil {
		return core.GridConfig{}, err
	}
	maxPrice, err := parse("grid.max_price", g.MaxPrice)
	if err != nil {
		return core.GridConfig{}, err
	}
	gridInterval, err := parse("grid.grid_interval", g.GridInterval)
	if err != nil {
		return core.GridConfig{}, err
	}
	amountPerGrid, err := parse("grid.amount_per_grid", g.AmountPerGrid)
	if err != nil {
		return core.GridConfig{}, err
	}
	profitInterval, err := parse("grid.profit_interval", g.ProfitInterval)
	if err != nil {
		return core.GridConfig{}, err
	}

	gc := core.GridConfig{
		Market:         g.Market,
		MinPrice:       minPrice,
		MaxPrice:       maxPrice,
		GridInterval:   gridInterval,
		AmountPerGrid:  amountPerGrid,
		ProfitInterval: profitInterval,
	}
	return gc, gc.Validate()
}

func (c *Config) validateGrid() error {
	g := c.Grid
	required := map[string]string{
		"grid.market":          g.Market,
		"grid.min_price":       g.MinPrice,
		"grid.max_price":       g.MaxPrice,
		"grid.grid_interval":   g.GridInterval,
		"grid.amount_per_grid": g.AmountPerGrid,
		"grid.profit_interval": g.ProfitInterval,
	}
	for field, value := range required {
		if value == "" {
			return ValidationError{Field: field, Message: "required"}
		}
	}
	return nil
}
