// Package producer is the core of the producer agent: a small state
// machine that polls a control plane for configuration and work, hands
// batches to a pluggable Worker, and reports reconciled results to one
// or more destination systems.
//
// The whole state machine runs on a single goroutine (runLoop) that
// alternates between the Config Watcher's tick and the Job Loop's tick.
// Because both ticks are served by the same goroutine, a running job
// can never be preempted by a config change mid-flight — the watcher
// only gets to observe new configuration once the current job has torn
// down. All mutable Producer/RunningJob state is written exclusively
// from that goroutine; the mutex below exists only to publish those
// writes safely to readers calling the public accessor methods from
// other goroutines.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/bitskyai/producer-agent/internal/config"
	"github.com/bitskyai/producer-agent/internal/constants"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

// Producer is the façade described by the agent's public surface:
// start/stop, config overrides, the producer type tag, the pluggable
// worker, and read-only views of the current remote config, the last
// classified error, and the active job id.
type Producer struct {
	log          *logger.Logger
	cfgConstants constants.Config
	resolver     *config.Resolver
	controlPlane ControlPlaneClient
	soiClient    SOIClient
	metrics      Metrics

	mu sync.Mutex

	producerType string
	worker       Worker

	lastRemoteConfig *RemoteConfig
	lastError        *ClassifiedError

	job          *RunningJob
	ranJobNumber int

	jobLoopEnabled      bool
	currentPollInterval time.Duration

	watcherBackoff *backoff.ExponentialBackOff
	backoffUntil   time.Time
	watcherState   WatcherState

	started   bool
	runCancel context.CancelFunc
	stopped   chan struct{}
}

// New builds a Producer. metrics may be nil, in which case a no-op
// implementation is used.
func New(log *logger.Logger, cfgConstants constants.Config, resolver *config.Resolver, controlPlane ControlPlaneClient, soiClient SOIClient, metrics Metrics) *Producer {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0 // retry indefinitely; the control plane may come back
	b.Reset()

	return &Producer{
		log:                 log.With("component", "Producer"),
		cfgConstants:        cfgConstants,
		resolver:            resolver,
		controlPlane:        controlPlane,
		soiClient:           soiClient,
		metrics:             metrics,
		producerType:        cfgConstants.DefaultProducerType,
		worker:              WorkerFunc(noopWorker),
		currentPollInterval: cfgConstants.DefaultPollingInterval,
		watcherBackoff:      b,
	}
}

func noopWorker(_ context.Context, batch []Intelligence, _ string, _ RemoteConfig) (<-chan Outcome, error) {
	ch := make(chan Outcome, len(batch))
	for _, item := range batch {
		ch <- ErrOutcome(item.GlobalID, fmt.Errorf("no worker configured"))
	}
	close(ch)
	return ch, nil
}

// Start launches the background watch/job loop. Calling Start on an
// already-started Producer is a no-op.
func (p *Producer) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, cancel := context.WithCancel(context.Background())
	p.runCancel = cancel
	p.stopped = make(chan struct{})
	stopped := p.stopped
	p.mu.Unlock()

	go p.runLoop(ctx, stopped)
}

// Stop cancels the background loop and blocks until it has torn down
// any active job. Calling Stop when not started is a no-op.
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.runCancel
	stopped := p.stopped
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopped != nil {
		<-stopped
	}
}

// SetConfigs replaces the caller-override tier consulted by every
// subsequent Resolve call.
func (p *Producer) SetConfigs(o config.Overrides) {
	p.resolver.SetOverrides(o)
}

// Type returns the producer type tag used to validate remote config
// against (defaults to the compiled-in default producer type).
func (p *Producer) Type() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.producerType
}

// SetType replaces the producer type tag. Empty values are rejected.
func (p *Producer) SetType(t string) error {
	if t == "" {
		return fmt.Errorf("producer: type must not be empty")
	}
	p.mu.Lock()
	p.producerType = t
	p.mu.Unlock()
	return nil
}

// SetWorker replaces the pluggable execution collaborator. A nil worker
// is rejected.
func (p *Producer) SetWorker(w Worker) error {
	if w == nil {
		return fmt.Errorf("producer: worker must not be nil")
	}
	p.mu.Lock()
	p.worker = w
	p.mu.Unlock()
	return nil
}

func (p *Producer) currentWorker() Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.worker
}

// ProducerConfiguration returns the last remote config adopted by the
// Config Watcher, if any.
func (p *Producer) ProducerConfiguration() (RemoteConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRemoteConfig == nil {
		return RemoteConfig{}, false
	}
	return *p.lastRemoteConfig, true
}

func (p *Producer) currentRemoteConfigOrZero() RemoteConfig {
	cfg, _ := p.ProducerConfiguration()
	return cfg
}

// ProducerError returns the most recently classified error observed by
// either the watcher or the runner, if any.
func (p *Producer) ProducerError() *ClassifiedError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// JobID returns the id of the currently active job, if one is running.
func (p *Producer) JobID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job == nil {
		return "", false
	}
	return p.job.JobID, true
}

func (p *Producer) incrementRanJobNumber() {
	p.mu.Lock()
	p.ranJobNumber++
	p.mu.Unlock()
}

// RanJobNumber returns the count of jobs that have acquired a non-empty
// batch since the Producer started.
func (p *Producer) RanJobNumber() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ranJobNumber
}

// WatcherState returns the Config Watcher's current retry bookkeeping.
func (p *Producer) WatcherState() WatcherState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watcherState
}
