// Package config provides configuration for the Frndly TV bridge.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the application configuration.
type Config struct {
	// Required
	Username string
	Password string

	// Server
	BindAddr string
	Port     int
	LogLevel string
	LogFile  string

	// Storage
	DataDir string

	// Caching and session
	ChannelCacheTTL   time.Duration
	SessionTTL        time.Duration
	KeepAliveInterval time.Duration
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:          "0.0.0.0",
		Port:              8183,
		LogLevel:          "info",
		ChannelCacheTTL:   5 * time.Minute,
		SessionTTL:        5 * time.Hour,
		KeepAliveInterval: 30 * time.Minute,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Username == "" {
		return errors.New("--username is required")
	}

	if c.Password == "" {
		return errors.New("--password is required")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.ChannelCacheTTL <= 0 {
		return errors.New("channel cache TTL must be positive")
	}

	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}

	if c.KeepAliveInterval <= 0 {
		return errors.New("keep-alive interval must be positive")
	}

	return nil
}

// ListenAddr returns the full listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}
