package producer

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitskyai/producer-agent/internal/config"
)

func TestPreconditionsMet(t *testing.T) {
	p := &Producer{producerType: "SERVICE_AGENT_TYPE"}
	local := config.Snapshot{BaseURL: "https://cp"}

	cases := []struct {
		name   string
		remote RemoteConfig
		local  config.Snapshot
		want   bool
	}{
		{"all satisfied", RemoteConfig{GlobalID: "g1", Type: "service_agent_type", System: RemoteSystem{State: "active"}}, local, true},
		{"missing base url", RemoteConfig{GlobalID: "g1", Type: "SERVICE_AGENT_TYPE", System: RemoteSystem{State: "ACTIVE"}}, config.Snapshot{}, false},
		{"type mismatch", RemoteConfig{GlobalID: "g1", Type: "OTHER_TYPE", System: RemoteSystem{State: "ACTIVE"}}, local, false},
		{"missing global id", RemoteConfig{Type: "SERVICE_AGENT_TYPE", System: RemoteSystem{State: "ACTIVE"}}, local, false},
		{"not active", RemoteConfig{GlobalID: "g1", Type: "SERVICE_AGENT_TYPE", System: RemoteSystem{State: "PAUSED"}}, local, false},
	}

	for _, tc := range cases {
		got := p.preconditionsMet(tc.local, tc.remote)
		assert.Equalf(t, tc.want, got, tc.name)
	}
}

func TestAdoptIfChanged(t *testing.T) {
	p := &Producer{}

	changed := p.adoptIfChanged(RemoteConfig{GlobalID: "g1", System: RemoteSystem{Version: "v1"}})
	assert.True(t, changed, "first observation is always a change")

	changed = p.adoptIfChanged(RemoteConfig{GlobalID: "g1", System: RemoteSystem{Version: "v1"}})
	assert.False(t, changed, "identical (globalId, version) is not a change")

	changed = p.adoptIfChanged(RemoteConfig{GlobalID: "g1", System: RemoteSystem{Version: "v2"}})
	assert.True(t, changed, "a new version is a change")
}

func TestOnWatchFailure_SchedulesBackoff(t *testing.T) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	p := &Producer{watcherBackoff: b, metrics: noopMetrics{}, log: newTestLogger(t)}

	require.True(t, p.backoffElapsed())
	p.onWatchFailure(ConfigMissing())
	assert.False(t, p.backoffElapsed(), "a fresh failure should push the next allowed tick into the future")

	p.onWatchSuccess()
	assert.True(t, p.backoffElapsed(), "success clears the backoff window")
}
