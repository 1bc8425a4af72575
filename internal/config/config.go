// Package config loads the bridge configuration from a TOML file and
// PRINTBRIDGE_ environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     AppConfig
	Log     LogConfig
	Backend BackendConfig
	Agent   AgentConfig
	Store   StoreConfig
	API     APIConfig
}

type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// BackendConfig points at the POS backend that owns certificates, printers and receipts.
type BackendConfig struct {
	BaseURL       string
	Timeout       time.Duration
	ReceiptFormat string
}

// AgentConfig points at the local print agent.
type AgentConfig struct {
	URL              string        // websocket endpoint, ws:// or wss://
	Probe            bool          // dial the agent's TCP port before building the client
	HandshakeTimeout time.Duration
}

// StoreConfig selects where client-local values (cached printer, token) live.
type StoreConfig struct {
	Driver    string // file, redis, memory
	Path      string
	KeyPrefix string
	Redis     RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// APIConfig configures the loopback HTTP API used by the POS front end.
type APIConfig struct {
	Addr         string
	AllowOrigins []string // browser origins allowed to call the API; requests from any other Origin get 403
}

// Load reads configuration. Priority (highest to lowest):
// 1. Environment variables with PRINTBRIDGE_ prefix (e.g. PRINTBRIDGE_BACKEND_BASE_URL)
// 2. the TOML file (explicit path, or config.toml in . and ./config)
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PRINTBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Backend: BackendConfig{
			BaseURL:       strings.TrimRight(v.GetString("backend.base_url"), "/"),
			Timeout:       v.GetDuration("backend.timeout"),
			ReceiptFormat: v.GetString("backend.receipt_format"),
		},
		Agent: AgentConfig{
			URL:              v.GetString("agent.url"),
			Probe:            v.GetBool("agent.probe"),
			HandshakeTimeout: v.GetDuration("agent.handshake_timeout"),
		},
		Store: StoreConfig{
			Driver:    v.GetString("store.driver"),
			Path:      v.GetString("store.path"),
			KeyPrefix: v.GetString("store.key_prefix"),
			Redis: RedisConfig{
				Host:     v.GetString("store.redis.host"),
				Port:     v.GetInt("store.redis.port"),
				Password: v.GetString("store.redis.password"),
				DB:       v.GetInt("store.redis.db"),
			},
		},
		API: APIConfig{
			Addr:         v.GetString("api.addr"),
			AllowOrigins: v.GetStringSlice("api.allow_origins"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pos-print-bridge")
	v.SetDefault("app.env", "production")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("backend.base_url", "http://api.localhost")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.receipt_format", "raw-binary")

	v.SetDefault("agent.url", "ws://localhost:8182/agent")
	v.SetDefault("agent.probe", true)
	v.SetDefault("agent.handshake_timeout", 5*time.Second)

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "config/bridge.json")
	v.SetDefault("store.key_prefix", "printbridge:")
	v.SetDefault("store.redis.host", "localhost")
	v.SetDefault("store.redis.port", 6379)
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("api.addr", "127.0.0.1:9110")
	v.SetDefault("api.allow_origins", []string{})
}

// Validate checks the values the bridge cannot run without.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("invalid backend.base_url %q: %w", c.Backend.BaseURL, err)
	}
	u, err := url.Parse(c.Agent.URL)
	if err != nil {
		return fmt.Errorf("invalid agent.url %q: %w", c.Agent.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("agent.url must use ws or wss, got %q", c.Agent.URL)
	}
	switch c.Store.Driver {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Backend.ReceiptFormat == "" {
		return fmt.Errorf("backend.receipt_format must not be empty")
	}
	return nil
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}
