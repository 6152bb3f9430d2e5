package producer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

type fakeSOIClient struct {
	mu       sync.Mutex
	sent     map[string][]Intelligence
	failFor  string
	failErr  error
}

func (f *fakeSOIClient) Send(_ context.Context, soi SOI, items []Intelligence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && soi.BaseURL == f.failFor {
		return f.failErr
	}
	if f.sent == nil {
		f.sent = map[string][]Intelligence{}
	}
	f.sent[soi.BaseURL] = append(f.sent[soi.BaseURL], items...)
	return nil
}

type fakeControlPlane struct {
	mu       sync.Mutex
	reported [][]Intelligence
}

func (f *fakeControlPlane) GetProducerConfig(context.Context, string, string, string, string) (*RemoteConfig, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeControlPlane) UpdateProducer(context.Context, string, string, string, RemoteConfig) error {
	return errors.New("not implemented")
}
func (f *fakeControlPlane) GetIntelligences(context.Context, string, string, string) ([]Intelligence, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeControlPlane) UpdateIntelligences(_ context.Context, _, _ string, items []Intelligence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]Intelligence(nil), items...)
	f.reported = append(f.reported, cp)
	return nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func TestGroupByDestination(t *testing.T) {
	items := []Intelligence{
		{GlobalID: "1", SOI: SOI{BaseURL: "https://a", Callback: SOICallback{Method: "post", Path: "/cb"}}},
		{GlobalID: "2", SOI: SOI{BaseURL: "https://a", Callback: SOICallback{Method: "POST", Path: "/cb"}}},
		{GlobalID: "3", SOI: SOI{BaseURL: "https://b", Callback: SOICallback{Method: "POST", Path: "/cb"}}},
	}

	buckets := groupByDestination(newTestLogger(t), items)
	require.Len(t, buckets, 2)

	keyA := routingKey(items[0].SOI)
	require.Contains(t, buckets, keyA)
	assert.Len(t, buckets[keyA].items, 2)
}

func TestGroupByDestination_SkipsIncompleteDescriptor(t *testing.T) {
	items := []Intelligence{
		{GlobalID: "1", SOI: SOI{BaseURL: "https://a", Callback: SOICallback{Method: "POST", Path: "/cb"}}},
		{GlobalID: "2", SOI: SOI{BaseURL: "https://a"}}, // missing callback method/path
	}

	buckets := groupByDestination(newTestLogger(t), items)
	require.Len(t, buckets, 1)

	var total int
	for _, b := range buckets {
		total += len(b.items)
	}
	assert.Equal(t, 1, total, "the incomplete item must be dropped, not bucketed")
}

func TestDispatch_PerBucketOnlyForwarding(t *testing.T) {
	items := []Intelligence{
		{GlobalID: "1", SOI: SOI{BaseURL: "https://a", Callback: SOICallback{Method: "POST", Path: "/cb"}}},
		{GlobalID: "2", SOI: SOI{BaseURL: "https://b", Callback: SOICallback{Method: "POST", Path: "/cb"}}},
	}

	soiClient := &fakeSOIClient{}
	cp := &fakeControlPlane{}

	dispatch(context.Background(), newTestLogger(t), noopMetrics{}, soiClient, cp, "https://control-plane", "key", items)

	require.Len(t, cp.reported, 2)
	for _, bucket := range cp.reported {
		assert.Len(t, bucket, 1, "each bucket must report only its own items, not the full batch")
	}
}

func TestDispatch_TargetFailureRewritesState(t *testing.T) {
	items := []Intelligence{
		{GlobalID: "1", SOI: SOI{BaseURL: "https://dead", Callback: SOICallback{Method: "POST", Path: "/cb"}}},
	}

	soiClient := &fakeSOIClient{failFor: "https://dead", failErr: errors.New("connection refused")}
	cp := &fakeControlPlane{}

	dispatch(context.Background(), newTestLogger(t), noopMetrics{}, soiClient, cp, "https://control-plane", "key", items)

	require.Len(t, cp.reported, 1)
	require.Len(t, cp.reported[0], 1)
	assert.Equal(t, StateFailed, cp.reported[0][0].System.State)
}
