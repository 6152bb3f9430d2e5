package producer

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/bitskyai/producer-agent/internal/config"
	"github.com/bitskyai/producer-agent/internal/constants"
)

// watchTick runs one iteration of the Config Watcher: fetch the remote
// producer config, adopt it if it changed, and decide whether the Job
// Loop should be running. It never terminates the producer on failure —
// failures are classified, logged, counted, and backed off.
func (p *Producer) watchTick(ctx context.Context) {
	if !p.backoffElapsed() {
		return
	}

	local := p.resolver.Resolve()
	if local.BaseURL == "" {
		p.recordConfigError(ConfigMissing())
		p.setJobLoopEnabled(false, 0)
		return
	}

	remote, err := p.controlPlane.GetProducerConfig(ctx, local.BaseURL, local.GlobalID, p.Type(), local.SecurityKey)
	if err != nil {
		p.onWatchFailure(Classify(err, p.Type(), local.GlobalID))
		return
	}
	p.onWatchSuccess()

	if !p.adoptIfChanged(*remote) {
		// Unchanged: do nothing. The previous run/stop decision stands.
		return
	}

	enabled := p.preconditionsMet(local, *remote)
	p.setJobLoopEnabled(enabled, remote.PollingIntervalDuration(p.cfgConstants.DefaultPollingInterval))
}

// preconditionsMet implements the four gating checks: a resolvable base
// URL, a producer type that matches (case-insensitively), a resolvable
// global id, and a remote state of ACTIVE.
func (p *Producer) preconditionsMet(local config.Snapshot, remote RemoteConfig) bool {
	if local.BaseURL == "" {
		return false
	}
	if remote.Type == "" || !strings.EqualFold(remote.Type, p.Type()) {
		return false
	}
	if remote.GlobalID == "" {
		return false
	}
	if !strings.EqualFold(remote.System.State, constants.StateActive) {
		return false
	}
	return true
}

func (p *Producer) adoptIfChanged(remote RemoteConfig) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastRemoteConfig != nil {
		og, ov := p.lastRemoteConfig.Identity()
		ng, nv := remote.Identity()
		if og == ng && ov == nv {
			return false
		}
	}
	p.lastRemoteConfig = &remote
	return true
}

func (p *Producer) recordConfigError(cerr *ClassifiedError) {
	p.mu.Lock()
	p.lastError = cerr
	p.mu.Unlock()
}

func (p *Producer) onWatchFailure(cerr *ClassifiedError) {
	p.mu.Lock()
	p.lastError = cerr
	delay := p.watcherBackoff.NextBackOff()
	if delay == backoff.Stop {
		delay = p.cfgConstants.PollingIntervalWatchAgent
	}
	p.backoffUntil = time.Now().Add(delay)
	p.watcherState.ConsecutiveFailures++
	p.watcherState.BackoffInterval = delay
	consecutive := p.watcherState.ConsecutiveFailures
	p.mu.Unlock()

	p.metrics.WatcherFailure(consecutive)
	p.log.Warn("config watch failed",
		"kind", string(cerr.Kind),
		"error", cerr.Error(),
		"consecutive_failures", consecutive,
	)
}

func (p *Producer) onWatchSuccess() {
	p.mu.Lock()
	p.watcherBackoff.Reset()
	p.backoffUntil = time.Time{}
	p.watcherState = WatcherState{}
	p.mu.Unlock()
	p.metrics.WatcherSuccess()
}

func (p *Producer) backoffElapsed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().After(p.backoffUntil)
}

func (p *Producer) setJobLoopEnabled(enabled bool, interval time.Duration) {
	p.mu.Lock()
	p.jobLoopEnabled = enabled
	if interval > 0 {
		p.currentPollInterval = interval
	}
	p.mu.Unlock()
}
