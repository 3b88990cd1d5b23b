package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Ingest.PollInterval == 0 {
		cfg.Ingest.PollInterval = time.Minute
	}

	if cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" || cfg.Auth.TenantID == "" {
		return nil, fmt.Errorf("auth.client_id, auth.client_secret and auth.tenant_id are required")
	}
	if cfg.Graph.Mailbox == "" {
		return nil, fmt.Errorf("graph.mailbox is required")
	}

	return &cfg, nil
}
