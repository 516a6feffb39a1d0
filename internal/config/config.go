package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr       string `mapstructure:"addr"`
	CORSOrigin string `mapstructure:"cors_origin"`

	// Store selects the document slot: memory, bolt, redis or postgres.
	Store         string `mapstructure:"store"`
	BoltPath      string `mapstructure:"bolt_path"`
	DatabaseURL   string `mapstructure:"database_url"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	RedisURL      string `mapstructure:"redis_url"`

	RoomSecret   string        `mapstructure:"room_secret"`
	RoomTokenTTL time.Duration `mapstructure:"room_token_ttl"`

	OpenAIKey      string        `mapstructure:"openai_api_key"`
	OpenAIModel    string        `mapstructure:"openai_model"`
	OpenAIBaseURL  string        `mapstructure:"openai_base_url"`
	RewriteTimeout time.Duration `mapstructure:"rewrite_timeout"`

	MeiliURL       string `mapstructure:"meili_url"`
	MeiliMasterKey string `mapstructure:"meili_master_key"`

	ReposDir string `mapstructure:"repos_dir"`

	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`

	// Advertise announces the relay on the local network over mDNS.
	Advertise    bool   `mapstructure:"advertise"`
	InstanceName string `mapstructure:"instance_name"`
}

var defaults = map[string]any{
	"addr":             ":8787",
	"cors_origin":      "*",
	"store":            "memory",
	"bolt_path":        "./data/moodpad.db",
	"database_url":     "",
	"migrations_dir":   "",
	"redis_url":        "",
	"room_secret":      "moodpad-dev-secret",
	"room_token_ttl":   "12h",
	"openai_api_key":   "",
	"openai_model":     "gpt-3.5-turbo",
	"openai_base_url":  "",
	"rewrite_timeout":  "30s",
	"meili_url":        "",
	"meili_master_key": "",
	"repos_dir":        "./data/repos",
	"minio_endpoint":   "",
	"minio_access_key": "",
	"minio_secret_key": "",
	"minio_bucket":     "moodpad-exports",
	"minio_use_ssl":    false,
	"advertise":        false,
	"instance_name":    "moodpad",
}

// unprefixed env names honoured alongside their MOODPAD_ form
var conventional = map[string]string{
	"database_url":     "DATABASE_URL",
	"redis_url":        "REDIS_URL",
	"openai_api_key":   "OPENAI_API_KEY",
	"meili_url":        "MEILI_URL",
	"meili_master_key": "MEILI_MASTER_KEY",
}

// Load reads defaults, then the optional TOML file named by MOODPAD_CONFIG,
// then MOODPAD_* environment variables.
func Load() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("MOODPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range conventional {
		if err := v.BindEnv(key, "MOODPAD_"+strings.ToUpper(key), env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path := os.Getenv("MOODPAD_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case "memory", "bolt", "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Store == "postgres" && c.DatabaseURL == "" {
		return Config{}, fmt.Errorf("store postgres needs DATABASE_URL")
	}
	if c.Store == "redis" && c.RedisURL == "" {
		return Config{}, fmt.Errorf("store redis needs REDIS_URL")
	}
	return c, nil
}
