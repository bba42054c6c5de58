package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/progrium/tapedeck/player"
	"github.com/progrium/tapedeck/shmem"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TAPEDECK_"

type Config struct {
	Listen          string        `yaml:"listen" env:"LISTEN"`
	ServiceURL      string        `yaml:"service_url" env:"SERVICE_URL"`
	TriggerInterval time.Duration `yaml:"trigger_interval" env:"TRIGGER_INTERVAL"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	NgrokToken      string        `yaml:"ngrok_token" env:"NGROK_TOKEN"`

	Channel Channel  `yaml:"channel" envPrefix:"CHANNEL_"`
	Sources []Source `yaml:"sources"`
	LiveKit LiveKit  `yaml:"livekit" envPrefix:"LIVEKIT_"`
	Otel    Otel     `yaml:"otel" envPrefix:"OTEL_"`
}

// Channel configures the shared-memory output.
type Channel struct {
	Dir      string `yaml:"dir" env:"DIR"`
	Name     string `yaml:"name" env:"NAME"`
	Disabled bool   `yaml:"disabled" env:"DISABLED"`
}

// Source is one recording to replay.
type Source struct {
	Kind   string `yaml:"kind"`
	Path   string `yaml:"path"`
	Stream string `yaml:"stream"`
}

const (
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// LiveKit configures the room broadcast sink. It is off unless URL is set.
type LiveKit struct {
	URL      string `yaml:"url" env:"URL"`
	Key      string `yaml:"key" env:"KEY"`
	Secret   string `yaml:"secret" env:"SECRET"`
	Room     string `yaml:"room" env:"ROOM"`
	Identity string `yaml:"identity" env:"IDENTITY"`
	Topic    string `yaml:"topic" env:"TOPIC"`
}

type Otel struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Enabled  string `yaml:"enabled" env:"ENABLED"`
}

func Default() Config {
	return Config{
		Listen:          ":8081",
		TriggerInterval: player.DefaultTriggerInterval,
		LogLevel:        "info",
		Channel: Channel{
			Dir:  shmem.DefaultDir,
			Name: "tapedeck",
		},
		LiveKit: LiveKit{
			Room:     "tapedeck",
			Identity: "tapedeck",
			Topic:    "records",
		},
	}
}

// Load builds a config from defaults, then the YAML file at path if path is
// not empty, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.NgrokToken == "" {
		cfg.NgrokToken = os.Getenv("NGROK_TOKEN")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.TriggerInterval <= 0 {
		errs = append(errs, fmt.Errorf("trigger_interval must be positive, got %s", c.TriggerInterval))
	}
	if !c.Channel.Disabled && c.Channel.Name == "" {
		errs = append(errs, errors.New("channel.name is required"))
	}
	for i, src := range c.Sources {
		switch src.Kind {
		case KindFile, "":
		case KindSQLite:
			if src.Stream == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: sqlite source needs a stream", i))
			}
		default:
			errs = append(errs, fmt.Errorf("sources[%d]: unknown kind %q", i, src.Kind))
		}
		if src.Path == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: path is required", i))
		}
	}
	if c.LiveKit.URL != "" && (c.LiveKit.Key == "" || c.LiveKit.Secret == "") {
		errs = append(errs, errors.New("livekit.key and livekit.secret are required with livekit.url"))
	}
	return errors.Join(errs...)
}
