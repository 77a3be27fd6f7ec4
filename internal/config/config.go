// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	// Storage provider configuration
	StorageProvider string // "s3" or "gcs"

	// Bucket shared by all providers
	Bucket string

	// Prefix under which all of this agent's objects live in the bucket.
	// Lets multiple agents coexist in one bucket.
	Prefix string

	// S3-compatible configuration (Backblaze B2 via its S3 endpoint)
	KeyID          string
	ApplicationKey string
	S3Region       string
	S3Endpoint     string // Optional custom endpoint

	// GCS configuration
	GoogleProjectID          string
	GoogleServiceAccountJSON string

	// HTTP server
	MetricsPort int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		StorageProvider: os.Getenv("STORAGE_PROVIDER"),
		Bucket:          os.Getenv("BACKUP_BUCKET"),
		Prefix:          os.Getenv("BACKUP_PREFIX"),

		// S3 / B2
		KeyID:          os.Getenv("B2_KEY_ID"),
		ApplicationKey: os.Getenv("B2_APPLICATION_KEY"),
		S3Region:       os.Getenv("S3_REGION"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),

		// GCS
		GoogleProjectID:          os.Getenv("GOOGLE_PROJECT_ID"),
		GoogleServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
	}

	cfg.MetricsPort = getEnvInt("METRICS_PORT", 8080)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StorageProvider == "" {
		return fmt.Errorf("STORAGE_PROVIDER is required")
	}

	if c.Bucket == "" {
		return fmt.Errorf("BACKUP_BUCKET is required")
	}

	switch c.StorageProvider {
	case "s3":
		if err := c.validateS3(); err != nil {
			return err
		}
	case "gcs":
		if err := c.validateGCS(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid STORAGE_PROVIDER: %s (must be 's3' or 'gcs')", c.StorageProvider)
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be a valid port number")
	}

	return nil
}

func (c *Config) validateS3() error {
	if c.KeyID == "" {
		return fmt.Errorf("B2_KEY_ID is required for S3 storage")
	}
	if c.ApplicationKey == "" {
		return fmt.Errorf("B2_APPLICATION_KEY is required for S3 storage")
	}
	if c.S3Region == "" && c.S3Endpoint == "" {
		return fmt.Errorf("S3_REGION is required for S3 storage (unless S3_ENDPOINT is set)")
	}
	return nil
}

func (c *Config) validateGCS() error {
	if c.GoogleProjectID == "" {
		return fmt.Errorf("GOOGLE_PROJECT_ID is required for GCS storage")
	}
	if c.GoogleServiceAccountJSON == "" {
		return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is required for GCS storage")
	}
	return nil
}

// getEnvInt gets an integer from environment variable with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
