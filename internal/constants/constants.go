// Package constants holds the compile-time defaults referenced throughout
// the producer agent. Callers inject these as a Config struct rather than
// reaching for the package-level vars directly, so tests can exercise
// alternate timings without mutating global state.
package constants

import "time"

const (
	// PollingIntervalWatchAgent is how often the Config Watcher re-fetches
	// the remote producer config.
	PollingIntervalWatchAgent = 30 * time.Second

	// CollectJobTimeout bounds how long the Job Runner waits for the
	// pluggable worker to finish a batch before declaring a timeout.
	CollectJobTimeout = 5 * time.Minute

	// DefaultPollingIntervalSeconds is used when the remote config omits
	// pollingInterval, or reports a non-positive value.
	DefaultPollingIntervalSeconds = 60

	// DefaultProducerType is the producer type assumed when none is set
	// explicitly via Producer.SetType.
	DefaultProducerType = "SERVICE_AGENT_TYPE"

	// SecurityKeyHeader is the HTTP header carrying the security key on
	// every outbound control-plane and target-system request.
	SecurityKeyHeader = "X-Security-Key"

	// StateActive is the only system.state value that permits job
	// execution.
	StateActive = "ACTIVE"
)

// Config is the injectable bundle of the above defaults. Production code
// builds one from the constants above; tests build one with compressed
// timings so scenario tests don't take minutes to run.
type Config struct {
	PollingIntervalWatchAgent time.Duration
	CollectJobTimeout         time.Duration
	DefaultPollingInterval    time.Duration
	DefaultProducerType       string
	SecurityKeyHeader         string
}

// Default returns the production timing configuration.
func Default() Config {
	return Config{
		PollingIntervalWatchAgent: PollingIntervalWatchAgent,
		CollectJobTimeout:         CollectJobTimeout,
		DefaultPollingInterval:    DefaultPollingIntervalSeconds * time.Second,
		DefaultProducerType:       DefaultProducerType,
		SecurityKeyHeader:         SecurityKeyHeader,
	}
}
