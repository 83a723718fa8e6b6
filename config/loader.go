package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. OCTOSITE_SERVER_ADDR.
const EnvPrefix = "OCTOSITE"

// Loader wraps a viper instance bound to one config file.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. An empty configFile searches octosite.yaml
// or octosite.yml in the current directory, then /etc/octosite.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFileInPaths([]string{".", "/etc/octosite"}); found != "" {
		v.SetConfigFile(found)
	} else {
		// ReadInConfig then reports ConfigFileNotFoundError, which Load
		// tolerates.
		v.SetConfigName("octosite")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	return &Loader{v: v}
}

// findConfigFileInPaths returns the first octosite.yaml/.yml found in paths.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			p := filepath.Join(dir, "octosite"+ext)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// bindEnvKeys makes nested keys overridable even when absent from the file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"debug",
		"server.addr",
		"server.read_timeout",
		"server.write_timeout",
		"server.tls_cert",
		"server.tls_key",
		"server.trust_forwarded_proto",
		"server.preserve_query",
		"server.fallback_policy",
		"server.fallback_path",
		"server.asset_prefix",
		"store.driver",
		"store.dsn",
		"store.dir",
		"store.cache_max_files",
		"store.cache_max_size",
		"store.cache_ttl",
		"formproxy.base_url",
		"formproxy.api_token",
		"formproxy.allowed_origin",
		"formproxy.timeout",
		"metrics.addr",
		"tracing.enabled",
		"log.level",
		"log.pretty",
	} {
		_ = v.BindEnv(key)
	}
}

// Viper exposes the underlying instance so CLI flags can be bound to it.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFileUsed returns the path of the loaded file, empty in env-only mode.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load reads the file and environment, applies defaults and validates.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags and reports the first problems in a form
// naming the YAML key.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.server.addr"; drop the root type name.
		field := fe.Namespace()
		if idx := strings.IndexByte(field, '.'); idx >= 0 {
			field = field[idx+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.FormProxy.APIToken != "" {
		cp.FormProxy.APIToken = "REDACTED"
	}
	return &cp
}

// YAML renders the configuration with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
