package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitskyai/producer-agent/internal/platform/apierr"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
	"github.com/bitskyai/producer-agent/internal/producer"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func TestGetProducerConfig_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/producers/g1", r.URL.Path)
		assert.Equal(t, "sk", r.Header.Get("X-Security-Key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"globalId": "g1", "type": "SERVICE_AGENT_TYPE"})
	}))
	defer srv.Close()

	c := New(newTestLogger(t), DefaultConfig())
	cfg, err := c.GetProducerConfig(context.Background(), srv.URL, "g1", "SERVICE_AGENT_TYPE", "sk")
	require.NoError(t, err)
	assert.Equal(t, "g1", cfg.GlobalID)
}

func TestDo_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]producer.Intelligence{{GlobalID: "i1"}})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxRetries = 4
	c := New(newTestLogger(t), cfg)

	items, err := c.GetIntelligences(context.Background(), srv.URL, "g1", "sk")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_DoesNotRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(newTestLogger(t), DefaultConfig())
	_, err := c.GetProducerConfig(context.Background(), srv.URL, "missing", "", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestDo_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	c := New(newTestLogger(t), cfg)

	_, err := c.GetIntelligences(context.Background(), srv.URL, "g1", "")
	require.Error(t, err)
}

func TestUpdateIntelligences_EmptyIsNoOp(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(newTestLogger(t), DefaultConfig())
	err := c.UpdateIntelligences(context.Background(), srv.URL, "", nil)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestClassifyVendorCode_ExtractsCode(t *testing.T) {
	got := classifyVendorCode([]byte(`{"code":"00144000002","message":"nope"}`))
	assert.Equal(t, "00144000002", got)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxRetries = 5
	c := New(newTestLogger(t), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetIntelligences(ctx, srv.URL, "g1", "")
	require.Error(t, err)
}
