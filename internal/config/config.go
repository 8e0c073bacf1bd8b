// Package config loads console settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds console settings. Command-line flags override these values.
type Config struct {
	APIURL         string        `env:"TIGERWATCH_API_URL" envDefault:"http://localhost:8000"`
	WSURL          string        `env:"TIGERWATCH_WS_URL"` // derived from APIURL when empty
	TokenFile      string        `env:"TIGERWATCH_TOKEN_FILE"`
	HTTPAddr       string        `env:"TIGERWATCH_HTTP_ADDR" envDefault:":8080"`
	MQTTBroker     string        `env:"TIGERWATCH_MQTT_BROKER"`
	Heartbeat      time.Duration `env:"TIGERWATCH_HEARTBEAT" envDefault:"15m"`
	SearchDebounce time.Duration `env:"TIGERWATCH_SEARCH_DEBOUNCE" envDefault:"500ms"`
	FeedSize       int           `env:"TIGERWATCH_FEED_SIZE" envDefault:"200"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the environment and fills derived defaults.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFile()
	}
	return cfg, nil
}

// Validate checks the settings and derives WSURL when unset.
func (c *Config) Validate() error {
	api, err := url.Parse(c.APIURL)
	if err != nil || api.Host == "" || (api.Scheme != "http" && api.Scheme != "https") {
		return fmt.Errorf("invalid api url %q", c.APIURL)
	}
	if c.WSURL == "" {
		c.WSURL = EventsURL(api)
	}
	ws, err := url.Parse(c.WSURL)
	if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") {
		return fmt.Errorf("invalid websocket url %q", c.WSURL)
	}
	if c.SearchDebounce < 0 {
		return errors.New("search debounce must not be negative")
	}
	if c.Heartbeat < 0 {
		return errors.New("heartbeat must not be negative")
	}
	if c.FeedSize <= 0 {
		return fmt.Errorf("feed size must be positive, got %d", c.FeedSize)
	}
	return nil
}

// EventsURL returns the event channel URL served alongside the API:
// ws(s)://host/ws/events.
func EventsURL(api *url.URL) string {
	u := *api
	u.Scheme = "ws"
	if api.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/events"
	u.RawQuery = ""
	return u.String()
}

// DefaultTokenFile is where the bearer token is kept between runs.
func DefaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".tigerwatch", "token")
	}
	return filepath.Join(dir, "tigerwatch", "token")
}
