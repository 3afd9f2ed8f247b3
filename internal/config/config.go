// internal/config/config.go
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tamzrod/sdm-poller/internal/register"
)

// ModelAuto asks for the model to be detected at startup.
const ModelAuto = "auto"

// Defaults applied by Load for omitted fields.
const (
	DefaultPort                = 502
	DefaultUnitID              = 1
	DefaultTimeoutMs           = 3000
	DefaultScanIntervalSeconds = 10
	DefaultNormalDivisor       = 3
	DefaultSlowDivisor         = 30
	DefaultRetryAttempts       = 3
	DefaultRetryBaseDelayMs    = 1000
	DefaultListen              = ":9105"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "console"
)

type Config struct {
	Log     LogConfig   `yaml:"log"`
	HTTP    HTTPConfig  `yaml:"http"`
	State   StateConfig `yaml:"state"`
	Devices []Device    `yaml:"devices"`
}

// ---- AMBIENT ----

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the HTTP surface
}

type StateConfig struct {
	// SQLitePath enables runtime unit-id overrides in SQLite instead of
	// rewriting the config file.
	SQLitePath string `yaml:"sqlite_path"`
}

// ---- DEVICE ----

type Device struct {
	ID        string `yaml:"id"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	UnitID    int    `yaml:"unit_id"`
	Model     string `yaml:"model"` // SDM120 | SDM630 | auto
	TimeoutMs int    `yaml:"timeout_ms"`

	ScanIntervalSeconds int `yaml:"scan_interval_seconds"`
	NormalDivisor       int `yaml:"normal_divisor"`
	SlowDivisor         int `yaml:"slow_divisor"`

	EnableAdvanced   bool `yaml:"enable_advanced"`
	EnableDiagnostic bool `yaml:"enable_diagnostic"`
	EnableTwoWay     bool `yaml:"enable_two_way"`
	EnableConfig     bool `yaml:"enable_config"`

	Retry RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	Attempts    int `yaml:"attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
}

// Endpoint returns host:port.
func (d Device) Endpoint() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Flags returns the category toggles.
func (d Device) Flags() register.Flags {
	return register.Flags{
		Advanced:   d.EnableAdvanced,
		Diagnostic: d.EnableDiagnostic,
		TwoWay:     d.EnableTwoWay,
		Config:     d.EnableConfig,
	}
}

func (d Device) Interval() time.Duration {
	return time.Duration(d.ScanIntervalSeconds) * time.Second
}

func (d Device) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

func (d Device) RetryBaseDelay() time.Duration {
	return time.Duration(d.Retry.BaseDelayMs) * time.Millisecond
}

// Load reads a YAML config file and applies defaults.
// It does not validate.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML config bytes and applies defaults.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultListen
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Port == 0 {
			d.Port = DefaultPort
		}
		if d.UnitID == 0 {
			d.UnitID = DefaultUnitID
		}
		if d.Model == "" {
			d.Model = register.ModelSDM120
		}
		if d.TimeoutMs == 0 {
			d.TimeoutMs = DefaultTimeoutMs
		}
		if d.ScanIntervalSeconds == 0 {
			d.ScanIntervalSeconds = DefaultScanIntervalSeconds
		}
		if d.NormalDivisor == 0 {
			d.NormalDivisor = DefaultNormalDivisor
		}
		if d.SlowDivisor == 0 {
			d.SlowDivisor = DefaultSlowDivisor
		}
		if d.Retry.Attempts == 0 {
			d.Retry.Attempts = DefaultRetryAttempts
		}
		if d.Retry.BaseDelayMs == 0 {
			d.Retry.BaseDelayMs = DefaultRetryBaseDelayMs
		}
	}
}
