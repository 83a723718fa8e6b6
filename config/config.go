// Package config loads the octosite configuration from a YAML file and
// OCTOSITE_* environment variables.
package config

import (
	"time"
)

// Config is the top-level configuration.
type Config struct {
	// Debug bypasses the edge cache and exposes error text in 500 answers.
	// Meant for development only.
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	FormProxy FormProxyConfig `yaml:"formproxy" mapstructure:"formproxy"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the public listener and request routing.
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	// TLSCert and TLSKey make the public listener serve TLS itself.
	TLSCert string `yaml:"tls_cert" mapstructure:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey  string `yaml:"tls_key" mapstructure:"tls_key" validate:"required_with=TLSCert"`
	// TrustForwardedProto takes the scheme from X-Forwarded-Proto. Forced on
	// when no TLS listener is configured.
	TrustForwardedProto bool `yaml:"trust_forwarded_proto" mapstructure:"trust_forwarded_proto"`
	// PreserveQuery keeps the query string on https redirects.
	PreserveQuery  bool   `yaml:"preserve_query" mapstructure:"preserve_query"`
	FallbackPolicy string `yaml:"fallback_policy" mapstructure:"fallback_policy" validate:"oneof=any_error not_found"`
	FallbackPath   string `yaml:"fallback_path" mapstructure:"fallback_path" validate:"required,startswith=/"`
	// AssetPrefix is removed from request paths before the store lookup.
	AssetPrefix string `yaml:"asset_prefix" mapstructure:"asset_prefix" validate:"omitempty,startswith=/"`
}

// TLSEnabled reports whether the public listener terminates TLS.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// StoreConfig selects the asset store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=memory sqlite"`
	// DSN is the SQLite database path, required for the sqlite driver.
	DSN string `yaml:"dsn" mapstructure:"dsn" validate:"required_if=Driver sqlite"`
	// Dir is a built site directory loaded into the store at startup.
	Dir           string `yaml:"dir" mapstructure:"dir"`
	CacheMaxFiles int    `yaml:"cache_max_files" mapstructure:"cache_max_files" validate:"gte=0"`
	CacheMaxSize  int64  `yaml:"cache_max_size" mapstructure:"cache_max_size" validate:"gte=0"`
	// CacheTTL bounds how long an updated asset keeps being served from
	// the edge cache.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"gte=0"`
}

// FormProxyConfig configures the ActiveCampaign form proxy.
type FormProxyConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	APIToken      string        `yaml:"api_token" mapstructure:"api_token" validate:"required_with=BaseURL"`
	AllowedOrigin string        `yaml:"allowed_origin" mapstructure:"allowed_origin"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// MetricsConfig configures the admin listener serving /metrics.
// An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// TracingConfig enables span export to stdout.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty" mapstructure:"pretty"`
}

// SetDefaults fills unset optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	// A plain text listener only ever sees https through a terminator.
	if !c.Server.TLSEnabled() {
		c.Server.TrustForwardedProto = true
	}
	if c.Server.FallbackPolicy == "" {
		c.Server.FallbackPolicy = "any_error"
	}
	if c.Server.FallbackPath == "" {
		c.Server.FallbackPath = "/index.html"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.CacheTTL == 0 {
		c.Store.CacheTTL = time.Minute
	}
	if c.FormProxy.AllowedOrigin == "" {
		c.FormProxy.AllowedOrigin = "*"
	}
	if c.FormProxy.Timeout == 0 {
		c.FormProxy.Timeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
		if c.Debug {
			c.Log.Level = "debug"
		}
	}
}
