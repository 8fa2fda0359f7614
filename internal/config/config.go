package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/perchlabs/buslink/internal/link"
)

type DaemonConfig struct {
	Name        string       `toml:"name"`
	Endpoint    string       `toml:"endpoint"`
	AdminAddr   string       `toml:"admin_addr"`
	CorsOrigins []string     `toml:"cors_origins"`
	Link        LinkConfig   `toml:"link"`
	Bridge      BridgeConfig `toml:"bridge"`
}

type LinkConfig struct {
	ConnectTimeoutMS  int64   `toml:"connect_timeout_ms"`
	WriteTimeoutMS    int64   `toml:"write_timeout_ms"`
	PollIntervalMS    int64   `toml:"poll_interval_ms"`
	KeepaliveMS       int64   `toml:"keepalive_ms"`
	MaxPayloadBytes   int     `toml:"max_payload_bytes"`
	BackoffInitialMS  int64   `toml:"backoff_initial_ms"`
	BackoffMaxMS      int64   `toml:"backoff_max_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	ContinuationDepth int     `toml:"continuation_depth"`
}

type BridgeConfig struct {
	Topics   []string `toml:"topics"`
	Services []string `toml:"services"`
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "buslinkd"
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":9600"
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("daemon config missing name")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return fmt.Errorf("daemon config missing endpoint")
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("daemon config missing admin_addr")
	}
	for i, name := range cfg.Bridge.Topics {
		if strings.TrimSpace(name) == "" || strings.HasPrefix(name, "__") {
			return fmt.Errorf("bridge topic[%d] invalid: %q", i, name)
		}
	}
	for i, name := range cfg.Bridge.Services {
		if strings.TrimSpace(name) == "" || strings.HasPrefix(name, "__") {
			return fmt.Errorf("bridge service[%d] invalid: %q", i, name)
		}
	}
	if cfg.Link.BackoffMultiplier < 0 {
		return fmt.Errorf("link backoff_multiplier must not be negative")
	}
	return nil
}

// LinkSettings converts the TOML durations into a link.Config, leaving
// defaults in place for every unset field.
func (cfg DaemonConfig) LinkSettings() link.Config {
	out := link.DefaultConfig()
	if cfg.Link.ConnectTimeoutMS > 0 {
		out.ConnectTimeout = time.Duration(cfg.Link.ConnectTimeoutMS) * time.Millisecond
	}
	if cfg.Link.WriteTimeoutMS > 0 {
		out.WriteTimeout = time.Duration(cfg.Link.WriteTimeoutMS) * time.Millisecond
	}
	if cfg.Link.PollIntervalMS > 0 {
		out.PollInterval = time.Duration(cfg.Link.PollIntervalMS) * time.Millisecond
	}
	if cfg.Link.KeepaliveMS > 0 {
		out.KeepaliveInterval = time.Duration(cfg.Link.KeepaliveMS) * time.Millisecond
	}
	if cfg.Link.MaxPayloadBytes > 0 {
		out.Limits.MaxPayloadBytes = int32(cfg.Link.MaxPayloadBytes)
	}
	if cfg.Link.BackoffInitialMS > 0 {
		out.Backoff.InitialDelay = time.Duration(cfg.Link.BackoffInitialMS) * time.Millisecond
	}
	if cfg.Link.BackoffMaxMS > 0 {
		out.Backoff.MaxDelay = time.Duration(cfg.Link.BackoffMaxMS) * time.Millisecond
	}
	if cfg.Link.BackoffMultiplier > 0 {
		out.Backoff.Multiplier = cfg.Link.BackoffMultiplier
	}
	return out
}
