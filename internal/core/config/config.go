package config

import (
	"github.com/vietddude/inboxd/internal/auth"
	"github.com/vietddude/inboxd/internal/faults"
	"github.com/vietddude/inboxd/internal/infra/graph"
	redisclient "github.com/vietddude/inboxd/internal/infra/redis"
	"github.com/vietddude/inboxd/internal/infra/storage/postgres"
	"github.com/vietddude/inboxd/internal/ingest"
	"github.com/vietddude/inboxd/internal/notify"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Auth     auth.Config        `yaml:"auth"`
	Graph    graph.Config       `yaml:"graph"`
	Ingest   ingest.Config      `yaml:"ingest"`
	Faults   faults.Config      `yaml:"faults"`
	Notify   notify.Config      `yaml:"notify"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
