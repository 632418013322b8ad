package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	Relay    RelayConfig    `yaml:"relay"`
	Client   ClientConfig   `yaml:"client"`
	Provider ProviderConfig `yaml:"provider"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Idle     IdleConfig     `yaml:"idle"`
}

// RelayConfig configures the relay server. APIKey protects the session
// endpoints; empty disables the check.
type RelayConfig struct {
	Address     string         `yaml:"address" env:"RELAY_ADDRESS" env-default:""`
	APIKey      string         `yaml:"api_key" env:"RELAY_API_KEY" env-default:""`
	CORSOrigins []string       `yaml:"cors_origins"`
	Database    DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

// ClientConfig tunes the transport layer of the sync core.
type ClientConfig struct {
	RelayBase           string        `yaml:"relay_base" env:"RELAY_BASE" env-default:""`
	PollInterval        time.Duration `yaml:"poll_interval"`
	PresenceMinInterval time.Duration `yaml:"presence_min_interval"`
}

// ProviderConfig points at the external session provider.
type ProviderConfig struct {
	BaseURL         string `yaml:"base_url" env:"PROVIDER_BASE_URL" env-default:""`
	APIKey          string `yaml:"api_key" env:"PROVIDER_API_KEY" env-default:""`
	TimeoutAbsolute int    `yaml:"timeout_absolute"`
	TimeoutInactive int    `yaml:"timeout_inactive"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers"`
}

type IdleConfig struct {
	Threshold    time.Duration `yaml:"threshold"`
	WarningGrace time.Duration `yaml:"warning_grace"`
	CheckEvery   time.Duration `yaml:"check_every"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.SetDefaults()

	return &cfg
}

// Default returns a config with every tunable at its default, for embedding
// the client core without a config file.
func Default() *Config {
	var cfg Config
	cfg.Env = "local"
	cfg.SetDefaults()
	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) SetDefaults() {
	if c.Relay.Address == "" {
		c.Relay.Address = ":8080"
	}
	if c.Client.RelayBase == "" {
		c.Client.RelayBase = "http://localhost:8080"
	}
	if c.Client.PollInterval <= 0 {
		c.Client.PollInterval = 1200 * time.Millisecond
	}
	if c.Client.PresenceMinInterval <= 0 {
		c.Client.PresenceMinInterval = 240 * time.Millisecond
	}
	if c.Provider.TimeoutAbsolute <= 0 {
		c.Provider.TimeoutAbsolute = 3600
	}
	if c.Provider.TimeoutInactive <= 0 {
		c.Provider.TimeoutInactive = 1800
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}
	}
	if c.Idle.Threshold <= 0 {
		c.Idle.Threshold = 58 * time.Minute
	}
	if c.Idle.WarningGrace <= 0 {
		c.Idle.WarningGrace = 120 * time.Second
	}
	if c.Idle.CheckEvery <= 0 {
		c.Idle.CheckEvery = 30 * time.Second
	}
}
