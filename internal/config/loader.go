package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/sensorlog")
	}

	setDefaults(v)

	// SENSORLOG_STORE_LOG_DIR overrides store.log_dir, and so on.
	v.SetEnvPrefix("SENSORLOG")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)

	v.SetDefault("store.log_dir", d.Store.LogDir)
	v.SetDefault("store.filename_pattern", d.Store.FilenamePattern)
	v.SetDefault("store.buffer_size", d.Store.BufferSize)
	v.SetDefault("store.rotate_every_hours", d.Store.RotateEveryHours)
	v.SetDefault("store.max_size_mb", d.Store.MaxSizeMB)
	v.SetDefault("store.rotate_after_lines", d.Store.RotateAfterLines)
	v.SetDefault("store.retention_days", d.Store.RetentionDays)

	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.url", d.Queue.URL)
	v.SetDefault("queue.redis_stream", d.Queue.RedisStream)
	v.SetDefault("queue.redis_group", d.Queue.RedisGroup)
	v.SetDefault("queue.kafka_group_id", d.Queue.KafkaGroupID)

	v.SetDefault("forward.enabled", d.Forward.Enabled)
	v.SetDefault("forward.ingest", d.Forward.Ingest)
	v.SetDefault("forward.subject", d.Forward.Subject)
	v.SetDefault("forward.compression", d.Forward.Compression)
	v.SetDefault("forward.codec", d.Forward.Codec)

	v.SetDefault("collector.listen", d.Collector.Listen)
	v.SetDefault("collector.listen_host", d.Collector.ListenHost)
	v.SetDefault("collector.read_timeout", d.Collector.ReadTimeout)
	v.SetDefault("collector.host", d.Collector.Host)
	v.SetDefault("collector.port", d.Collector.Port)
	v.SetDefault("collector.timeout", d.Collector.Timeout)
	v.SetDefault("collector.retries", d.Collector.Retries)
	v.SetDefault("collector.keep_alive", d.Collector.KeepAlive)
	v.SetDefault("collector.backoff", d.Collector.Backoff)

	v.SetDefault("simulator.interval", d.Simulator.Interval)
	v.SetDefault("simulator.time_of_day", d.Simulator.TimeOfDay)
	v.SetDefault("simulator.readings", d.Simulator.Readings)
	v.SetDefault("simulator.send", d.Simulator.Send)

	v.SetDefault("auth.enabled", d.Auth.Enabled)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:  true,
			Host:     "0.0.0.0",
			HTTPPort: 5580,
		},
		Store: StoreConfig{
			LogDir:           "./logs",
			FilenamePattern:  "sensor_logs_%Y%m%d_%H%M%S.csv",
			BufferSize:       10,
			RotateEveryHours: 24,
			MaxSizeMB:        10,
			RotateAfterLines: 100000,
			RetentionDays:    30,
		},
		Queue: QueueConfig{
			Type:         "nats",
			URL:          "nats://localhost:4222",
			RedisStream:  "sensorlog",
			RedisGroup:   "sensorlog-group",
			KafkaGroupID: "sensorlog-group",
		},
		Forward: ForwardConfig{
			Subject:     "sensorlog.readings",
			Compression: "snappy",
			Codec:       "json",
		},
		Collector: CollectorConfig{
			Listen:      true,
			ListenHost:  "0.0.0.0",
			ReadTimeout: 30 * time.Second,
			Host:        "localhost",
			Port:        5000,
			Timeout:     5 * time.Second,
			Retries:     3,
			KeepAlive:   true,
			Backoff:     500 * time.Millisecond,
		},
		Simulator: SimulatorConfig{
			Interval: time.Second,
			Readings: 3,
			Send:     true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
