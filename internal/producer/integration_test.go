package producer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bitskyai/producer-agent/internal/config"
	"github.com/bitskyai/producer-agent/internal/constants"
	"github.com/bitskyai/producer-agent/internal/controlplane"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
	"github.com/bitskyai/producer-agent/internal/producer"
	"github.com/bitskyai/producer-agent/internal/soi"
)

// TestProducer_EndToEndHappyPath exercises the full wiring: a real
// controlplane.Client and soi.Client against httptest servers, driven
// by the Producer façade's Start/Stop, with a Worker that resolves
// every item it's handed.
func TestProducer_EndToEndHappyPath(t *testing.T) {
	var soiMu sync.Mutex
	var soiReceived []map[string]any

	soiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var items []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
		soiMu.Lock()
		soiReceived = append(soiReceived, items...)
		soiMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer soiServer.Close()

	var fetched bool
	var cpMu sync.Mutex
	var reported []map[string]any

	cpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/apis/producers/g1":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"globalId": "g1",
				"type":     "SERVICE_AGENT_TYPE",
				"system":   map[string]any{"version": "v1", "state": "ACTIVE"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/apis/intelligences":
			cpMu.Lock()
			already := fetched
			fetched = true
			cpMu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			if already {
				_ = json.NewEncoder(w).Encode([]map[string]any{})
				return
			}
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{
					"globalId": "i1",
					"soi": map[string]any{
						"baseURL":  soiServer.URL,
						"callback": map[string]any{"method": "POST", "path": "/callback"},
					},
				},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/apis/intelligences":
			var items []map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
			cpMu.Lock()
			reported = append(reported, items...)
			cpMu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer cpServer.Close()

	log, err := logger.New("development")
	require.NoError(t, err)

	resolver := config.NewResolver(log, "", t.TempDir())
	base := cpServer.URL
	gid := "g1"
	resolver.SetOverrides(config.Overrides{BaseURL: &base, GlobalID: &gid})

	cfg := constants.Default()
	cfg.PollingIntervalWatchAgent = 20 * time.Millisecond
	cfg.DefaultPollingInterval = 20 * time.Millisecond
	cfg.CollectJobTimeout = 2 * time.Second

	cp := controlplane.New(log, controlplane.DefaultConfig())
	soiClient := soi.New(log, soi.DefaultConfig())

	p := producer.New(log, cfg, resolver, cp, soiClient, nil)
	require.NoError(t, p.SetWorker(producer.WorkerFunc(func(_ context.Context, batch []producer.Intelligence, _ string, _ producer.RemoteConfig) (<-chan producer.Outcome, error) {
		ch := make(chan producer.Outcome, len(batch))
		for _, item := range batch {
			ch <- producer.Ok(item.GlobalID, map[string]any{"done": true})
		}
		close(ch)
		return ch, nil
	})))

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		soiMu.Lock()
		defer soiMu.Unlock()
		return len(soiReceived) == 1
	}, 3*time.Second, 10*time.Millisecond, "target system should have received the batch")

	require.Eventually(t, func() bool {
		cpMu.Lock()
		defer cpMu.Unlock()
		return len(reported) == 1
	}, 3*time.Second, 10*time.Millisecond, "control plane should have been reported the reconciled batch")
}
