package domain

import "time"

// Config holds the complete Kestrel configuration. Fields carry
// ardanlabs/conf tags and are populated from flags and KESTREL_*
// environment variables in main.
type Config struct {
	Server     ServerConfig
	Detection  DetectionConfig
	Repository RepositoryConfig
	Cache      CacheConfig
	EventBus   EventBusConfig
	Logging    LoggingConfig
	Tracing    TracingConfig
	Upload     UploadConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `conf:"default:0.0.0.0"`
	Port         int           `conf:"default:8080"`
	ReadTimeout  time.Duration `conf:"default:30s"`
	WriteTimeout time.Duration `conf:"default:120s"`
}

// DetectionConfig exposes every search-space bound and threshold the
// detectors use. These constants materially change recall, precision
// and runtime, so they are configuration rather than literals.
type DetectionConfig struct {
	// Cycle detector bounds.
	MinCycleLength     int `conf:"default:3"`
	MaxCycleLength     int `conf:"default:5"`
	MaxCycleSources    int `conf:"default:30"`
	MinSourceOutDegree int `conf:"default:2"`
	MaxSuccessors      int `conf:"default:10"`
	MaxPathsPerTarget  int `conf:"default:3"`

	// Smurfing detector thresholds.
	FanThreshold    int           `conf:"default:10"`
	TemporalWindow  time.Duration `conf:"default:72h"`
	VolumeReference float64       `conf:"default:100000"`

	// Shell detector bounds.
	ShellMinDegree     int `conf:"default:2"`
	ShellMaxDegree     int `conf:"default:4"`
	MinShellPathLength int `conf:"default:4"`

	// Soft deadline applied to each detector individually. The
	// structural bounds above keep searches finite; the deadline is
	// the backstop for pathological graphs.
	DetectorTimeout time.Duration `conf:"default:30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `conf:"default:info"`
	Format string `conf:"default:json"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `conf:"default:false"`
	ServiceName string `conf:"default:kestrel"`
}

// UploadConfig holds CSV upload settings.
type UploadConfig struct {
	Dir         string `conf:"default:./uploads"`
	MaxSizeMB   int64  `conf:"default:50"`
	AsyncWorker bool   `conf:"default:false"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres".
	Driver string `conf:"default:sqlite"`

	// SQLite specific.
	SQLitePath string `conf:"default:./kestrel.db"`

	// PostgreSQL specific.
	PostgresHost     string `conf:"default:localhost"`
	PostgresPort     int    `conf:"default:5432"`
	PostgresUser     string `conf:"optional"`
	PostgresPassword string `conf:"optional,mask"`
	PostgresDB       string `conf:"default:kestrel"`
	PostgresSSLMode  string `conf:"default:disable"`

	// Connection pool settings.
	MaxOpenConns    int           `conf:"default:0"`
	MaxIdleConns    int           `conf:"default:0"`
	ConnMaxLifetime time.Duration `conf:"default:0s"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis".
	Type string `conf:"default:memory"`

	// Local LRU settings.
	LocalMaxSize int           `conf:"default:128"`
	LocalTTL     time.Duration `conf:"default:5m"`

	// Redis settings.
	RedisAddr     string `conf:"default:localhost:6379"`
	RedisPassword string `conf:"optional,mask"`
	RedisDB       int    `conf:"default:0"`

	// If true, check local first, then Redis.
	EnableTwoPhase bool `conf:"default:false"`
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats".
	Type string `conf:"default:channel"`

	// Channel settings.
	ChannelBufferSize int `conf:"default:1000"`

	// NATS settings.
	NATSUrl           string        `conf:"default:nats://localhost:4222"`
	NATSToken         string        `conf:"optional,mask"`
	NATSMaxReconnects int           `conf:"default:10"`
	NATSReconnectWait time.Duration `conf:"default:5s"`
}

// DefaultDetectionConfig returns the detector bounds used when no
// configuration is supplied (library callers, tests).
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MinCycleLength:     3,
		MaxCycleLength:     5,
		MaxCycleSources:    30,
		MinSourceOutDegree: 2,
		MaxSuccessors:      10,
		MaxPathsPerTarget:  3,
		FanThreshold:       10,
		TemporalWindow:     72 * time.Hour,
		VolumeReference:    100000,
		ShellMinDegree:     2,
		ShellMaxDegree:     4,
		MinShellPathLength: 4,
		DetectorTimeout:    30 * time.Second,
	}
}

// DefaultConfig returns a runnable single-node configuration:
// SQLite store, in-memory cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Detection: DefaultDetectionConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 128,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{ServiceName: "kestrel"},
		Upload:  UploadConfig{Dir: "./uploads", MaxSizeMB: 50},
	}
}
