package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"
)

// Duration decodes YAML values like "29s" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server  Server  `yaml:"server"`
	LiveKit LiveKit `yaml:"livekit"`
}

type Server struct {
	Listen           string   `yaml:"listen"`
	PingInterval     Duration `yaml:"pingInterval"`
	DialTimeout      Duration `yaml:"dialTimeout"`
	HistoryRetention Duration `yaml:"historyRetention"`
}

type LiveKit struct {
	APIKey    string   `yaml:"apiKey"`
	APISecret string   `yaml:"apiSecret"`
	URL       string   `yaml:"url"`
	TokenTTL  Duration `yaml:"tokenTTL"`
}

const (
	DefaultListen           = ":4002"
	DefaultPingInterval     = 29 * time.Second
	DefaultDialTimeout      = 30 * time.Second
	DefaultHistoryRetention = 1 * time.Hour
	DefaultTokenTTL         = 6 * time.Hour
)

// Load reads the YAML config at path and applies environment overrides.
// A missing file is not an error; the environment alone is enough to run.
func Load(path string) (Config, error) {
	var config Config

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, err
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	// The original deployment configured LiveKit through dotenv, so the
	// same variable names override the file.
	if v := os.Getenv("LIVEKIT_API_KEY"); v != "" {
		config.LiveKit.APIKey = v
	}
	if v := os.Getenv("LIVEKIT_API_SECRET"); v != "" {
		config.LiveKit.APISecret = v
	}
	if v := os.Getenv("LIVEKIT_URL"); v != "" {
		config.LiveKit.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		config.Server.Listen = ":" + v
	}

	if config.Server.Listen == "" {
		config.Server.Listen = DefaultListen
	}
	if config.Server.PingInterval <= 0 {
		config.Server.PingInterval = Duration(DefaultPingInterval)
	}
	if config.Server.DialTimeout <= 0 {
		config.Server.DialTimeout = Duration(DefaultDialTimeout)
	}
	if config.Server.HistoryRetention <= 0 {
		config.Server.HistoryRetention = Duration(DefaultHistoryRetention)
	}
	if config.LiveKit.TokenTTL <= 0 {
		config.LiveKit.TokenTTL = Duration(DefaultTokenTTL)
	}

	return config, nil
}
