package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

// ListenAddress returns the collector server's listen address
func (c *CollectorConfig) ListenAddress() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// DialAddress returns the address the collector client connects to
func (c *CollectorConfig) DialAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String renders the store section for startup logs.
func (c *StoreConfig) String() string {
	return fmt.Sprintf("log_dir=%s pattern=%s buffer=%d rotate=%.2gh/%.2gMB/%d lines retention=%.2gd",
		c.LogDir, c.FilenamePattern, c.BufferSize,
		c.RotateEveryHours, c.MaxSizeMB, c.RotateAfterLines, c.RetentionDays)
}
