// Package config loads the process-wide configuration once at startup.
package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Places  PlacesConfig  `yaml:"places"`
	Redis   RedisConfig   `yaml:"redis"`
	Trigger TriggerConfig `yaml:"trigger"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds the HTTP and TCP listener settings.
type ServerConfig struct {
	HTTPPort        string        `yaml:"http_port"        env:"CELERIX_HTTP_PORT"        env-default:"7002"`
	TCPPort         string        `yaml:"tcp_port"         env:"CELERIX_PORT"             env-default:"7001"`
	DisableTLS      bool          `yaml:"disable_tls"      env:"CELERIX_DISABLE_TLS"      env-default:"false"`
	DisableTCP      bool          `yaml:"disable_tcp"      env:"CELERIX_DISABLE_TCP"      env-default:"false"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CELERIX_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Store backends.
const (
	BackendEmbedded  = "embedded"
	BackendRemote    = "remote"
	BackendFirestore = "firestore"
)

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Backend    string `yaml:"backend"     env:"STORE_BACKEND"        env-default:"embedded"`
	DataDir    string `yaml:"data_dir"    env:"CELERIX_DATA_DIR"     env-default:"./data"`
	RemoteAddr string `yaml:"remote_addr" env:"CELERIX_STORE_ADDR"`
	ProjectID  string `yaml:"project_id"  env:"FIRESTORE_PROJECT_ID"`
}

// PlacesConfig holds the places provider settings.
type PlacesConfig struct {
	APIKey   string        `yaml:"api_key"   env:"PLACES_API_KEY"   env-required:"true"`
	BaseURL  string        `yaml:"base_url"  env:"PLACES_BASE_URL"  env-default:"https://api.geoapify.com"`
	Timeout  time.Duration `yaml:"timeout"   env:"PLACES_TIMEOUT"   env-default:"5s"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"PLACES_CACHE_TTL" env-default:"0s"`
}

// RedisConfig holds the Redis connection. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB" env-default:"0"`
}

// TriggerConfig configures the deferred enrichment trigger.
type TriggerConfig struct {
	Collection   string `yaml:"collection"    env:"TRIGGER_COLLECTION"    env-default:"sensor-data"`
	Stream       string `yaml:"stream"        env:"TRIGGER_STREAM"        env-default:"telemetry:sensor-data:created"`
	Group        string `yaml:"group"         env:"TRIGGER_GROUP"         env-default:"enrichment"`
	Consumer     string `yaml:"consumer"      env:"TRIGGER_CONSUMER"      env-default:"celerix-telemetryd"`
	Buffer       int    `yaml:"buffer"        env:"TRIGGER_BUFFER"        env-default:"256"`
	SkipEnriched bool   `yaml:"skip_enriched" env:"TRIGGER_SKIP_ENRICHED" env-default:"false"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
