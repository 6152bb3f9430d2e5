package producer

import "context"

// Worker is the pluggable execution collaborator: a black box that
// performs the actual intelligence collection. The core never assumes
// any particular concurrency primitive inside it — only that it
// eventually produces one Outcome per item in batch and closes the
// returned channel when done.
//
// Execute must return promptly; long-running work happens in goroutines
// the implementation owns, feeding results onto the channel as they
// become available. A nil error return means the channel is live; a
// non-nil error means the batch could not be started at all (treated by
// the runner the same as an immediately-closed empty channel).
type Worker interface {
	Execute(ctx context.Context, batch []Intelligence, jobID string, cfg RemoteConfig) (<-chan Outcome, error)
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context, batch []Intelligence, jobID string, cfg RemoteConfig) (<-chan Outcome, error)

func (f WorkerFunc) Execute(ctx context.Context, batch []Intelligence, jobID string, cfg RemoteConfig) (<-chan Outcome, error) {
	return f(ctx, batch, jobID, cfg)
}

// Outcome is the tagged variant {Ok(dataset) | Err(reason)} a worker
// emits per item. GlobalID identifies which item in the batch the
// outcome belongs to; outcomes with no resolvable GlobalID, or whose
// GlobalID doesn't match anything in the original batch, are logged and
// skipped by the runner. Dataset is only meaningful when Err is nil; the
// runner looks up the canonical Intelligence (and its SOI) from the
// original batch by GlobalID rather than trusting the worker to round
// it back.
type Outcome struct {
	GlobalID string
	Dataset  map[string]any
	Err      error
}

// Ok builds a fulfilled outcome carrying the worker's result payload.
func Ok(globalID string, dataset map[string]any) Outcome {
	return Outcome{GlobalID: globalID, Dataset: dataset}
}

// ErrOutcome builds a rejected outcome carrying a reason.
func ErrOutcome(globalID string, reason error) Outcome {
	return Outcome{GlobalID: globalID, Err: reason}
}

// Resolvable reports whether the outcome carries enough identity to be
// reconciled against a batch item.
func (o Outcome) Resolvable() bool {
	return o.GlobalID != ""
}
