package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the optional YAML-file settings. Everything here can also
// be supplied through environment variables, which win over the file.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Nats struct {
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Clock struct {
		SyncEverySec int `yaml:"sync_every_sec"`
	} `yaml:"clock"`
	Feed struct {
		FallbackIntervalSec int `yaml:"fallback_interval_sec"`
	} `yaml:"feed"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Environment overrides.
	config.Server.Port = getEnv("PORT", defaultStr(config.Server.Port, "8080"))
	config.Nats.URL = getEnv("NATS_URL", defaultStr(config.Nats.URL, "nats://localhost:4222"))
	config.Nats.StreamName = getEnv("NATS_STREAM", defaultStr(config.Nats.StreamName, "MATCH_STATE"))
	config.Nats.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", defaultStr(config.Nats.SubjectPrefix, "match.state"))
	config.Clock.SyncEverySec = getEnvAsInt("CLOCK_SYNC_EVERY_SEC", defaultInt(config.Clock.SyncEverySec, 5))
	config.Feed.FallbackIntervalSec = getEnvAsInt("FEED_FALLBACK_INTERVAL_SEC", defaultInt(config.Feed.FallbackIntervalSec, 30))

	return &config, nil
}

func (c *Config) FallbackInterval() time.Duration {
	return time.Duration(c.Feed.FallbackIntervalSec) * time.Second
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
