// Package config loads the relay configuration.
package config

import (
	"encoding/json"
	"log"
	"os"
)

// VAPIDConfig holds the signing key pair and contact address for
// authenticated push delivery. When the keys are empty a fresh pair is
// generated at startup.
type VAPIDConfig struct {
	PublicKey  string `json:"public_key,omitempty" mapstructure:"public_key"`
	PrivateKey string `json:"private_key,omitempty" mapstructure:"private_key"`
	Subscriber string `json:"subscriber" mapstructure:"subscriber"`
}

// MediaConfig controls the temp media store.
type MediaConfig struct {
	// TTLSeconds is how long an unconsumed token stays resolvable.
	TTLSeconds int `json:"ttl_seconds" mapstructure:"ttl_seconds"`
	// MaxUploadBytes caps the encoded size of inline image uploads.
	MaxUploadBytes int `json:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// HealthcheckConfig controls the periodic outbound liveness ping.
type HealthcheckConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	URL      string `json:"url" mapstructure:"url"`
	Schedule string `json:"schedule" mapstructure:"schedule"`
}

// Config represents the relay configuration.
type Config struct {
	Port        int               `json:"port" mapstructure:"port"`
	StaticDir   string            `json:"static_dir" mapstructure:"static_dir"`
	VAPID       VAPIDConfig       `json:"vapid" mapstructure:"vapid"`
	Media       MediaConfig       `json:"media" mapstructure:"media"`
	Healthcheck HealthcheckConfig `json:"healthcheck" mapstructure:"healthcheck"`
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("Failed to close config file: %v", err)
		}
	}()

	var config Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	return &config, nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Port == 0 {
		config.Port = 3000
	}
	if config.StaticDir == "" {
		config.StaticDir = "./public"
	}
	if config.VAPID.Subscriber == "" {
		config.VAPID.Subscriber = "mailto:admin@example.com"
	}
	if config.Media.TTLSeconds == 0 {
		config.Media.TTLSeconds = 120
	}
	if config.Media.MaxUploadBytes == 0 {
		config.Media.MaxUploadBytes = 2_000_000
	}
	if config.Healthcheck.Schedule == "" {
		config.Healthcheck.Schedule = "@every 1m"
	}
}
