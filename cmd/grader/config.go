package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gradex/internal/common/cache"
	"gradex/internal/common/db"
	"gradex/internal/common/mq"
	"gradex/internal/common/storage"
	"gradex/internal/dispatch"
	"gradex/internal/grader/archive"
	gradesvc "gradex/internal/grader/service"
	"gradex/internal/grader/sandbox"
	"gradex/internal/grader/sandbox/engine"
	"gradex/internal/intake/ratelimit"
	intakesvc "gradex/internal/intake/service"
	"gradex/internal/scoring"
	"gradex/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8088"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig mirrors mq.KafkaConfig with yaml tags for the parts the
// grader configures.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientID"`
}

// AppConfig holds the grader configuration.
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Logger    logger.Config        `yaml:"logger"`
	Database  db.MySQLConfig       `yaml:"database"`
	Redis     cache.RedisConfig    `yaml:"redis"`
	Kafka     KafkaConfig          `yaml:"kafka"`
	MinIO     storage.MinIOConfig  `yaml:"minio"`
	Engine    engine.Config        `yaml:"engine"`
	Sandbox   sandbox.Config       `yaml:"sandbox"`
	Grading   gradesvc.Config      `yaml:"grading"`
	Queue     dispatch.Config      `yaml:"queue"`
	Worker    dispatch.WorkerConfig `yaml:"worker"`
	Intake    intakesvc.Config     `yaml:"intake"`
	RateLimit ratelimit.Config     `yaml:"rateLimit"`
	Archive   archive.Config       `yaml:"archive"`
	Scoring   scoring.Config       `yaml:"scoring"`
}

func (c *KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:  c.Brokers,
		ClientID: c.ClientID,
	}
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	return &cfg, nil
}
