package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liftline/liftline/internal/attempt"
)

// Config is the YAML meet configuration: competition policy plus broker
// and snapshot settings. Database settings come from the environment.
type Config struct {
	Policy struct {
		RefereePanelSize          int `yaml:"referee_panel_size"`
		WeightChangeLockWindowSec int `yaml:"weight_change_lock_window_sec"`
		FlightBreakMin            int `yaml:"flight_break_min"`
		EventBreakMin             int `yaml:"event_break_min"`
		ChangeoverBufferSec       int `yaml:"changeover_buffer_sec"`
	} `yaml:"policy"`
	NATS struct {
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Snapshot struct {
		Dir string `yaml:"dir"`
	} `yaml:"snapshot"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
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

// loadConfig reads the YAML meet configuration. A missing file yields the
// defaults.
func loadConfig(path string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// policyFromConfig folds the YAML values over the default policy.
func policyFromConfig(config *Config) attempt.Policy {
	policy := attempt.DefaultPolicy()
	if config.Policy.RefereePanelSize > 0 {
		policy.RefereePanelSize = config.Policy.RefereePanelSize
	}
	if config.Policy.WeightChangeLockWindowSec > 0 {
		policy.WeightChangeLockWindow = time.Duration(config.Policy.WeightChangeLockWindowSec) * time.Second
	}
	if config.Policy.FlightBreakMin > 0 {
		policy.FlightBreak = time.Duration(config.Policy.FlightBreakMin) * time.Minute
	}
	if config.Policy.EventBreakMin > 0 {
		policy.EventBreak = time.Duration(config.Policy.EventBreakMin) * time.Minute
	}
	return policy
}
