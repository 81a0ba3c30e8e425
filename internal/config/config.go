package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env"`

	HTTP struct {
		Addr string `yaml:"addr"` // ":7010"
	} `yaml:"http"`

	MySQL struct {
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnMaxLife  time.Duration `yaml:"conn_max_life"`
		ConnMaxIdle  time.Duration `yaml:"conn_max_idle"`
	} `yaml:"mysql"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		Database int    `yaml:"database"`
	} `yaml:"redis"`

	Auth struct {
		Token struct {
			Header       string `yaml:"header"`
			BearerPrefix string `yaml:"bearer_prefix"`
			QueryKey     string `yaml:"query_key"`
			RedisPrefix  string `yaml:"redis_prefix"`
			Secret       string `yaml:"secret"`
		} `yaml:"token"`
	} `yaml:"auth"`

	WS struct {
		WriteTimeout time.Duration `yaml:"write_timeout"`
		SendQueue    int           `yaml:"send_queue"`
	} `yaml:"ws"`

	Push struct {
		Enabled   string        `yaml:"enabled"` // Y/N
		Endpoint  string        `yaml:"endpoint"`
		ServerKey string        `yaml:"server_key"`
		Timeout   time.Duration `yaml:"timeout"`
		QueueSize int           `yaml:"queue_size"`
		Workers   int           `yaml:"workers"`
	} `yaml:"push"`

	Retention struct {
		Cron        string `yaml:"cron"`         // default daily 02:00
		HorizonDays int    `yaml:"horizon_days"` // messages older than this are purged
	} `yaml:"retention"`
}

// Load supports comma-separated config files: "-c common.yml,im-server.yml".
// Later files override earlier ones; defaults apply after the merge.
func Load(pathList string) (*Config, error) {
	if strings.TrimSpace(pathList) == "" {
		return nil, errors.New("config path required (e.g. -c ./config.yml or -c common.yml,im-server.yml)")
	}
	var c Config
	for _, p := range strings.Split(pathList, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":7010"
	}
	if c.WS.WriteTimeout == 0 {
		c.WS.WriteTimeout = 5 * time.Second
	}
	if c.WS.SendQueue <= 0 {
		c.WS.SendQueue = 256
	}
	if c.Auth.Token.Header == "" {
		c.Auth.Token.Header = "Authorization"
	}
	if c.Auth.Token.BearerPrefix == "" {
		c.Auth.Token.BearerPrefix = "Bearer "
	}
	if c.Auth.Token.QueryKey == "" {
		c.Auth.Token.QueryKey = "token"
	}
	if c.Auth.Token.RedisPrefix == "" {
		c.Auth.Token.RedisPrefix = "token:app:"
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = 3 * time.Second
	}
	if c.Push.QueueSize <= 0 {
		c.Push.QueueSize = 4096
	}
	if c.Push.Workers <= 0 {
		c.Push.Workers = 8
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = "0 2 * * *"
	}
	if c.Retention.HorizonDays <= 0 {
		c.Retention.HorizonDays = 3
	}
	return &c, nil
}

// Horizon returns the retention window as a duration. The catch-up sync
// replays the same window, so the two can never drift apart.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.Retention.HorizonDays) * 24 * time.Hour
}
