// Package config provides configuration types and loading for transitwatch.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Store, Queue, Gateway, Scheduler, Decider.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Store     StoreConfig     `json:"store"`
	Queue     QueueConfig     `json:"queue"`
	Gateway   GatewayConfig   `json:"gateway"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Decider   DeciderConfig   `json:"decider"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	ConfigHome string `json:"configHome" envconfig:"CONFIG_HOME"`
}

// ---------------------------------------------------------------------------
// Store – SQLite-backed incident store
// ---------------------------------------------------------------------------

// StoreConfig configures the incident store.
type StoreConfig struct {
	DBPath string `json:"dbPath" envconfig:"DB_PATH"`
}

// ---------------------------------------------------------------------------
// Queue – report ingestion transport
// ---------------------------------------------------------------------------

// QueueConfig configures the report queue backend.
type QueueConfig struct {
	// Backend selects the Queue implementation: "kafka" or "memory".
	Backend       string   `json:"backend" envconfig:"QUEUE_BACKEND"`
	Brokers       []string `json:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic         string   `json:"topic" envconfig:"KAFKA_TOPIC"`
	ConsumerGroup string   `json:"consumerGroup" envconfig:"KAFKA_CONSUMER_GROUP"`
	MemCapacity   int      `json:"memCapacity" envconfig:"MEM_QUEUE_CAPACITY"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
}

// ---------------------------------------------------------------------------
// Scheduler – cron-based staleness sweep
// ---------------------------------------------------------------------------

// SchedulerConfig contains settings for the staleness-sweep cron job.
type SchedulerConfig struct {
	Enabled       bool          `json:"enabled" envconfig:"ENABLED"`
	SweepInterval time.Duration `json:"sweepInterval" envconfig:"SWEEP_INTERVAL"`
	LockPath      string        `json:"lockPath" envconfig:"LOCK_PATH"`
}

// ---------------------------------------------------------------------------
// Decider – acceptance thresholds
// ---------------------------------------------------------------------------

// DeciderConfig exposes the Decider's tunable thresholds so a deployment
// can adjust acceptance sensitivity without a code change.
type DeciderConfig struct {
	DistMaxKm      float64 `json:"distMaxKm" envconfig:"DIST_MAX_KM"`
	TimeMaxMinutes float64 `json:"timeMaxMinutes" envconfig:"TIME_MAX_MINUTES"`
	TrustMin       float64 `json:"trustMin" envconfig:"TRUST_MIN"`
	DecideMin      float64 `json:"decideMin" envconfig:"DECIDE_MIN"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			ConfigHome: "~/.transitwatch",
		},
		Store: StoreConfig{
			DBPath: "~/.transitwatch/transitwatch.db",
		},
		Queue: QueueConfig{
			Backend:       "memory",
			Brokers:       []string{"localhost:9092"},
			Topic:         "report_queue",
			ConsumerGroup: "transitwatch",
			MemCapacity:   256,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			SweepInterval: 5 * time.Minute,
			LockPath:      "~/.transitwatch/scheduler.lock",
		},
		Decider: DeciderConfig{
			DistMaxKm:      10.0,
			TimeMaxMinutes: 360.0,
			TrustMin:       0.7,
			DecideMin:      0.5,
		},
	}
}
