package producer

import "context"

// ControlPlaneClient is the typed operations the Job Runner and Config
// Watcher perform against the Metadata Service. The concrete
// implementation lives in internal/controlplane; the core only depends
// on this narrow interface so tests can supply a fake.
type ControlPlaneClient interface {
	GetProducerConfig(ctx context.Context, baseURL, globalID, producerType, securityKey string) (*RemoteConfig, error)
	UpdateProducer(ctx context.Context, baseURL, globalID, securityKey string, cfg RemoteConfig) error
	GetIntelligences(ctx context.Context, baseURL, globalID, securityKey string) ([]Intelligence, error)
	UpdateIntelligences(ctx context.Context, baseURL, securityKey string, items []Intelligence) error
}

// SOIClient delivers a bucket's reconciled intelligences to its target
// system.
type SOIClient interface {
	Send(ctx context.Context, soi SOI, items []Intelligence) error
}
