package producer

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

// bucket groups the items destined for one SOI, keyed by routing key so
// call a destination is only hit once per dispatch even when several
// items carry (trivially) distinguishable SOI descriptors that resolve
// to the same URL and method.
type bucket struct {
	soi   SOI
	items []Intelligence
}

// routingKey identifies a destination by method + base URL + callback
// path, case-insensitively, which is all Send needs to reach it. The URL
// part joins base URL and path with exactly one slash between them.
func routingKey(s SOI) string {
	joined := strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(s.Callback.Path, "/")
	return strings.ToLower(s.Callback.Method) + ":" + strings.ToLower(joined)
}

// dispatch groups the reconciled batch by destination and fans the
// buckets out concurrently. Each bucket is delivered to its target
// system, then reported back to the control plane; both requests carry
// only the items that belong to that bucket, never the full input list.
//
// A target-system failure rewrites every item in that bucket to FAILED
// with the transport error as reason; a control-plane reporting failure
// is logged and tolerated, never escalated. Wait() always returns nil —
// dispatch failures are carried in the item states it already mutated,
// not in a returned error.
func dispatch(ctx context.Context, log *logger.Logger, metrics Metrics, soiClient SOIClient, controlPlane ControlPlaneClient, cpBaseURL, cpSecurityKey string, items []Intelligence) {
	buckets := groupByDestination(log, items)

	g, gCtx := errgroup.WithContext(ctx)
	for key, b := range buckets {
		key, b := key, b
		g.Go(func() error {
			dispatchBucket(gCtx, log, metrics, soiClient, controlPlane, cpBaseURL, cpSecurityKey, key, b)
			return nil
		})
	}
	_ = g.Wait()
}

// groupByDestination buckets items by routing key. An item whose SOI
// descriptor is missing baseURL, callback.method, or callback.path
// cannot be routed anywhere and is skipped entirely — it is neither
// dispatched to a target nor reported to the control plane.
func groupByDestination(log *logger.Logger, items []Intelligence) map[string]*bucket {
	buckets := map[string]*bucket{}
	for _, item := range items {
		if !item.SOI.Complete() {
			log.Debug("dropping item with incomplete destination descriptor", "global_id", item.GlobalID)
			continue
		}
		key := routingKey(item.SOI)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{soi: item.SOI}
			buckets[key] = b
		}
		b.items = append(b.items, item)
	}
	return buckets
}

func dispatchBucket(ctx context.Context, log *logger.Logger, metrics Metrics, soiClient SOIClient, controlPlane ControlPlaneClient, cpBaseURL, cpSecurityKey, key string, b *bucket) {
	toReport := b.items

	if err := soiClient.Send(ctx, b.soi, b.items); err != nil {
		metrics.DispatchTargetFailure()
		log.Warn("target system dispatch failed", "routing_key", key, "error", err.Error())
		rewritten := make([]Intelligence, len(b.items))
		for i, item := range b.items {
			setIntelligenceState(&item, StateFailed, err)
			rewritten[i] = item
		}
		toReport = rewritten
	}

	if cpBaseURL == "" {
		return
	}
	if err := controlPlane.UpdateIntelligences(ctx, cpBaseURL, cpSecurityKey, toReport); err != nil {
		metrics.DispatchControlPlaneFailure()
		log.Warn("control plane reporting failed", "routing_key", key, "error", err.Error())
	}
}
