// Package config loads the gateway's layered configuration: built-in
// defaults, overridden by a YAML file, overridden by environment
// variables (GATEWAY_*). Struct fields are tagged `conf`, decoded by
// viper with that tag name.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/teeinfer/gateway/internal/log"
)

// Config is the root configuration object, matching the keys listed in
// the gateway's configuration keys.
type Config struct {
	Name string `conf:"name" yaml:"name" json:"name"`
	Host string `conf:"host" yaml:"host" json:"host"`
	Port int    `conf:"port" yaml:"port" json:"port"`
	Debug bool  `conf:"debug" yaml:"debug" json:"debug"`

	ReadTimeout       time.Duration `conf:"read_timeout"        yaml:"read_timeout"        json:"read_timeout"`
	RequestTimeout    time.Duration `conf:"request_timeout"     yaml:"request_timeout"     json:"request_timeout"`
	LLMRequestTimeout time.Duration `conf:"llm_request_timeout" yaml:"llm_request_timeout" json:"llm_request_timeout"`

	Database  DatabaseConfig  `conf:"database"  yaml:"database"  json:"database"`
	Catalog   CatalogConfig   `conf:"catalog"   yaml:"catalog"   json:"catalog"`
	Discovery DiscoveryConfig `conf:"discovery" yaml:"discovery" json:"discovery"`
	Streaming StreamingConfig `conf:"streaming" yaml:"streaming" json:"streaming"`
	RateLimit RateLimitConfig `conf:"ratelimit" yaml:"ratelimit" json:"ratelimit"`
	Auth      AuthConfig      `conf:"auth"      yaml:"auth"      json:"auth"`
	Attestation AttestationConfig `conf:"attestation" yaml:"attestation" json:"attestation"`
	Log       log.Config      `conf:"log"       yaml:"log"       json:"log"`
	CORS      CORSConfig      `conf:"cors"      yaml:"cors"      json:"cors"`
}

type DatabaseConfig struct {
	DSN          string `conf:"dsn"            yaml:"dsn"            json:"dsn"`
	MaxOpenConns int    `conf:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`
}

// CatalogConfig governs how often the Model Catalog reloads its
// in-memory table from the database, expressed as a cron rule.
type CatalogConfig struct {
	CRON string `conf:"cron" yaml:"cron" json:"cron"`
}

// DiscoveryConfig governs the Provider Pool's backend discovery.
type DiscoveryConfig struct {
	BaseURL         string        `conf:"base_url"        yaml:"base_url"        json:"base_url"`
	RefreshInterval time.Duration `conf:"refresh_interval" yaml:"refresh_interval" json:"refresh_interval"`
	AuthToken       string        `conf:"auth_token"       yaml:"auth_token"       json:"auth_token"`
}

// StreamingConfig governs the Streaming Pipeline's deadlines.
type StreamingConfig struct {
	IdleTimeout   time.Duration `conf:"idle_timeout"   yaml:"idle_timeout"   json:"idle_timeout"`
	TotalDeadline time.Duration `conf:"total_deadline" yaml:"total_deadline" json:"total_deadline"`
}

// RateLimitConfig governs the rate limiter's two token buckets.
type RateLimitConfig struct {
	TextPerMinute  int `conf:"text_per_minute"  yaml:"text_per_minute"  json:"text_per_minute"`
	ImagePerMinute int `conf:"image_per_minute" yaml:"image_per_minute" json:"image_per_minute"`
}

// AuthConfig governs the auth front-door's admin allow-list.
type AuthConfig struct {
	AdminDomains []string `conf:"admin_domains" yaml:"admin_domains" json:"admin_domains"`
}

// AttestationConfig toggles attestation binding.
type AttestationConfig struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`
}

type CORSConfig struct {
	Enabled          bool          `conf:"enabled"           yaml:"enabled"           json:"enabled"`
	AllowedOrigins   []string      `conf:"allowed_origins"   yaml:"allowed_origins"   json:"allowed_origins"`
	AllowedMethods   []string      `conf:"allowed_methods"   yaml:"allowed_methods"   json:"allowed_methods"`
	AllowedHeaders   []string      `conf:"allowed_headers"   yaml:"allowed_headers"   json:"allowed_headers"`
	AllowCredentials bool          `conf:"allow_credentials" yaml:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `conf:"max_age"           yaml:"max_age"           json:"max_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "gatewayd")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("llm_request_timeout", 10*time.Minute)

	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("catalog.cron", "*/1 * * * *")

	v.SetDefault("discovery.refresh_interval", 5*time.Minute)

	v.SetDefault("streaming.idle_timeout", 60*time.Second)
	v.SetDefault("streaming.total_deadline", 10*time.Minute)

	v.SetDefault("ratelimit.text_per_minute", 1000)
	v.SetDefault("ratelimit.image_per_minute", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")

	v.SetDefault("attestation.enabled", true)
}

// Load reads gatewayd.yaml (if present) from the working directory or
// /etc/gatewayd, layers environment variables prefixed GATEWAY_ on
// top, and decodes into Config. It is registered as an fx provider.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("gatewayd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gatewayd")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("gateway")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config

	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
	})
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}
