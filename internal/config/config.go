package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"3000"`

	Prefix     string   `envconfig:"BOT_PREFIX" default:"."`
	AuthFolder string   `envconfig:"AUTH_FOLDER" default:"./auth_info_multi"`
	PublicDir  string   `envconfig:"PUBLIC_DIR" default:"./public"`
	Owners     []string `envconfig:"OWNERS"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath   string `envconfig:"DB_PATH" default:"./session.db"`
	DBDSN    string `envconfig:"DB_DSN"`

	ReconnectDelay       time.Duration `envconfig:"RECONNECT_DELAY" default:"10s"`
	LogoutDelay          time.Duration `envconfig:"LOGOUT_DELAY" default:"3s"`
	PresenceInterval     time.Duration `envconfig:"PRESENCE_INTERVAL" default:"10s"`
	HousekeepingInterval time.Duration `envconfig:"HOUSEKEEPING_INTERVAL" default:"5m"`
	NotifyOnConnect      bool          `envconfig:"NOTIFY_ON_CONNECT" default:"true"`
	PairClientName       string        `envconfig:"PAIR_CLIENT_NAME" default:"Chrome (Linux)"`

	PluginsDisabled []string `envconfig:"PLUGINS_DISABLED"`
	DispatchWorkers int      `envconfig:"DISPATCH_WORKERS" default:"64"`

	LogMode  string `envconfig:"LOG_MODE" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`
}

// LoadConfig reads .env (when present) and then the process environment.
func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg, err := Parse()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Parse fills a Config from the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.Owners = trimAll(cfg.Owners)
	cfg.PluginsDisabled = trimAll(cfg.PluginsDisabled)
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = 64
	}
	return &cfg, nil
}

func trimAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
