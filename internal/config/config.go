package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Forward   ForwardConfig   `mapstructure:"forward"`
	Collector CollectorConfig `mapstructure:"collector"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort int    `mapstructure:"http_port"` // HTTP server port
}

// StoreConfig represents the log store configuration.
// Units follow the on-disk config format: hours, megabytes and days.
type StoreConfig struct {
	LogDir           string  `mapstructure:"log_dir"`
	FilenamePattern  string  `mapstructure:"filename_pattern"` // strftime directives, must end in .csv
	BufferSize       int     `mapstructure:"buffer_size"`      // Entries buffered before a flush
	RotateEveryHours float64 `mapstructure:"rotate_every_hours"`
	MaxSizeMB        float64 `mapstructure:"max_size_mb"`
	RotateAfterLines int     `mapstructure:"rotate_after_lines"`
	RetentionDays    float64 `mapstructure:"retention_days"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`  // Enable/disable API key authentication
	APIKeys []string `mapstructure:"api_keys"` // List of valid API keys
}

// QueueConfig represents message queue configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`   // Redis stream prefix (default: "sensorlog")
	RedisGroup    string `mapstructure:"redis_group"`    // Redis consumer group (default: "sensorlog-group")
	RedisConsumer string `mapstructure:"redis_consumer"` // Redis consumer name (default: hostname)

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// ForwardConfig controls publishing readings to the queue and ingesting them back.
type ForwardConfig struct {
	Enabled     bool   `mapstructure:"enabled"`     // Publish every reading to Subject
	Ingest      bool   `mapstructure:"ingest"`      // Consume Subject into the local store
	Subject     string `mapstructure:"subject"`     // Queue subject/topic
	Compression string `mapstructure:"compression"` // none, snappy, flate, zstd
	Codec       string `mapstructure:"codec"`       // json, proto
}

// CollectorConfig configures the line-delimited JSON TCP transport.
type CollectorConfig struct {
	// Server side
	Listen      bool          `mapstructure:"listen"`
	ListenHost  string        `mapstructure:"listen_host"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // Idle connections are closed after this

	// Client side
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Timeout   time.Duration `mapstructure:"timeout"` // Dial and ACK timeout
	Retries   int           `mapstructure:"retries"`
	KeepAlive bool          `mapstructure:"keep_alive"`
	Backoff   time.Duration `mapstructure:"backoff"` // Initial retry interval
}

// SimulatorConfig configures the sensor simulator tool.
type SimulatorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	TimeOfDay string        `mapstructure:"time_of_day"` // day, night, or empty for random
	Readings  int           `mapstructure:"readings"`    // Rounds to run, 0 runs until interrupted
	Send      bool          `mapstructure:"send"`        // Also send readings to the collector
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, UnixMs, etc
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Forward.Validate(); err != nil {
		return fmt.Errorf("forward config: %w", err)
	}

	if err := c.Collector.Validate(); err != nil {
		return fmt.Errorf("collector config: %w", err)
	}

	if err := c.Simulator.Validate(); err != nil {
		return fmt.Errorf("simulator config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates store configuration
func (c *StoreConfig) Validate() error {
	if c.LogDir == "" {
		return fmt.Errorf("log_dir is required")
	}

	if !strings.HasSuffix(c.FilenamePattern, ".csv") {
		return fmt.Errorf("filename_pattern must end in .csv")
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}

	if c.RotateEveryHours <= 0 {
		return fmt.Errorf("rotate_every_hours must be positive")
	}

	if c.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be positive")
	}

	if c.RotateAfterLines <= 0 {
		return fmt.Errorf("rotate_after_lines must be positive")
	}

	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive")
	}

	return nil
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	switch c.Type {
	case "", "nats", "redis", "kafka", "memory":
	default:
		return fmt.Errorf("queue.type must be one of: nats, redis, kafka, memory")
	}

	if c.Type == "kafka" && len(c.KafkaBrokers) == 0 && c.URL == "" {
		return fmt.Errorf("kafka requires kafka_brokers or url")
	}

	return nil
}

// Validate validates forward configuration
func (c *ForwardConfig) Validate() error {
	if (c.Enabled || c.Ingest) && c.Subject == "" {
		return fmt.Errorf("forward.subject is required")
	}

	switch c.Compression {
	case "", "none", "snappy", "flate", "zstd":
	default:
		return fmt.Errorf("forward.compression must be one of none, snappy, flate, zstd")
	}

	switch c.Codec {
	case "", "json", "proto":
	default:
		return fmt.Errorf("forward.codec must be 'json' or 'proto'")
	}

	return nil
}

// Validate validates collector configuration
func (c *CollectorConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid collector port: %d", c.Port)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("collector.timeout must be positive")
	}

	if c.Retries < 1 {
		return fmt.Errorf("collector.retries must be at least 1")
	}

	if c.Listen && c.ReadTimeout <= 0 {
		return fmt.Errorf("collector.read_timeout must be positive")
	}

	return nil
}

// Validate validates simulator configuration
func (c *SimulatorConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("simulator.interval must be positive")
	}

	switch c.TimeOfDay {
	case "", "day", "night":
	default:
		return fmt.Errorf("simulator.time_of_day must be 'day' or 'night'")
	}

	if c.Readings < 0 {
		return fmt.Errorf("simulator.readings cannot be negative")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
