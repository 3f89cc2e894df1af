package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig    `yaml:"database"`
	Sources  map[string]string `yaml:"sources"`
	LLM      LLMConfig         `yaml:"llm"`
	Fetch    FetchConfig       `yaml:"fetch"`
	AMQP     AMQPConfig        `yaml:"amqp"`
	Schedule ScheduleConfig    `yaml:"schedule"`
	LogLevel string            `yaml:"log_level"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type FetchConfig struct {
	Delay     time.Duration `yaml:"delay"` // politeness delay between feeds
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// AMQPConfig enables publishing newly ingested articles to an exchange.
// Publishing is disabled when URL is empty.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "news.db"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Fetch.Delay == 0 {
		c.Fetch.Delay = 1 * time.Second
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.AMQP.URL != "" {
		if c.AMQP.Exchange == "" {
			c.AMQP.Exchange = "forcible"
		}
		if c.AMQP.RoutingKey == "" {
			c.AMQP.RoutingKey = "articles"
		}
		if c.AMQP.QueueName == "" {
			c.AMQP.QueueName = "new_articles"
		}
	}
	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = 15 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
