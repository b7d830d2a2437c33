package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Auth struct {
	JWTSecret string `yaml:"jwtSecret"`
	TokenTTL  string `yaml:"tokenTTL"` // e.g. "24h"
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type WS struct {
	PingEvery  string `yaml:"pingEvery"`  // e.g. "15s"
	SendBuffer int    `yaml:"sendBuffer"` // outbound queue per connection
}

type Client struct {
	ReconnectAttempts int    `yaml:"reconnectAttempts"`
	ReconnectDelay    string `yaml:"reconnectDelay"` // e.g. "2s"
	TypingThrottle    string `yaml:"typingThrottle"` // e.g. "3s"
	TypingDebounce    string `yaml:"typingDebounce"` // e.g. "4s"
	UndoWindow        string `yaml:"undoWindow"`     // e.g. "6s"
	PageSize          int    `yaml:"pageSize"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Postgres Postgres `yaml:"postgres"`
	Auth     Auth     `yaml:"auth"`
	Logging  Logging  `yaml:"logging"`
	WS       WS       `yaml:"ws"`
	Client   Client   `yaml:"client"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "24h"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.WS.PingEvery == "" {
		c.WS.PingEvery = "15s"
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 256
	}
	if c.Client.ReconnectAttempts <= 0 {
		c.Client.ReconnectAttempts = 5
	}
	if c.Client.ReconnectDelay == "" {
		c.Client.ReconnectDelay = "2s"
	}
	if c.Client.TypingThrottle == "" {
		c.Client.TypingThrottle = "3s"
	}
	if c.Client.TypingDebounce == "" {
		c.Client.TypingDebounce = "4s"
	}
	if c.Client.UndoWindow == "" {
		c.Client.UndoWindow = "6s"
	}
	if c.Client.PageSize <= 0 {
		c.Client.PageSize = 20
	}
	return nil
}

func (c *Config) TokenTTL() time.Duration  { return parseDurationOr(24*time.Hour, c.Auth.TokenTTL) }
func (c *Config) PingEvery() time.Duration { return parseDurationOr(15*time.Second, c.WS.PingEvery) }

func (c *Client) ReconnectDelayD() time.Duration {
	return parseDurationOr(2*time.Second, c.ReconnectDelay)
}
func (c *Client) TypingThrottleD() time.Duration {
	return parseDurationOr(3*time.Second, c.TypingThrottle)
}
func (c *Client) TypingDebounceD() time.Duration {
	return parseDurationOr(4*time.Second, c.TypingDebounce)
}
func (c *Client) UndoWindowD() time.Duration {
	return parseDurationOr(6*time.Second, c.UndoWindow)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
