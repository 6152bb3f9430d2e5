package producer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// runLoop is the single goroutine that owns every state mutation in the
// Producer. It alternates between the watch ticker and the job ticker;
// because both are served from the same select, a job in progress is
// never preempted by a config change — the watcher only runs again once
// jobLoopTick has returned.
func (p *Producer) runLoop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	watchTicker := time.NewTicker(p.cfgConstants.PollingIntervalWatchAgent)
	defer watchTicker.Stop()

	var jobTicker *time.Ticker
	defer func() {
		if jobTicker != nil {
			jobTicker.Stop()
		}
	}()

	// Run an immediate watch tick so the producer doesn't sit idle for a
	// full interval before its first config fetch.
	p.watchTick(ctx)
	jobTicker = p.syncJobTicker(ctx, jobTicker)

	for {
		var jobTickCh <-chan time.Time
		if jobTicker != nil {
			jobTickCh = jobTicker.C
		}

		select {
		case <-ctx.Done():
			p.terminateActiveJob()
			return
		case <-watchTicker.C:
			p.mu.Lock()
			prevEnabled, prevInterval := p.jobLoopEnabled, p.currentPollInterval
			p.mu.Unlock()
			p.watchTick(ctx)
			p.mu.Lock()
			changed := p.jobLoopEnabled != prevEnabled || p.currentPollInterval != prevInterval
			p.mu.Unlock()
			// Only touch the job ticker when the run/stop decision or the
			// interval moved; resetting it on every watch tick would keep
			// pushing its next tick out and starve the Job Loop.
			if changed {
				jobTicker = p.syncJobTicker(ctx, jobTicker)
			}
		case <-jobTickCh:
			p.jobLoopTick(ctx)
		}
	}
}

// syncJobTicker starts, stops, or re-intervals the job ticker to match
// the watcher's latest run/stop decision and polling interval.
func (p *Producer) syncJobTicker(ctx context.Context, current *time.Ticker) *time.Ticker {
	p.mu.Lock()
	enabled := p.jobLoopEnabled
	interval := p.currentPollInterval
	p.mu.Unlock()

	if !enabled {
		if current != nil {
			current.Stop()
			p.terminateActiveJob()
		}
		return nil
	}
	if interval <= 0 {
		interval = p.cfgConstants.DefaultPollingInterval
	}
	if current == nil {
		return time.NewTicker(interval)
	}
	current.Reset(interval)
	return current
}

// jobLoopTick runs jobs back to back for as long as the single-job
// guard lets a new one start, so a backlog drains without waiting for
// the next poll interval to elapse between jobs.
func (p *Producer) jobLoopTick(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !p.runJob(ctx) {
			return
		}
	}
}

// runJob executes one acquire-to-teardown cycle and reports whether it
// ran a non-empty batch (the caller immediately retries when true). A
// failed fetch or an empty batch returns false, so the next attempt
// waits for the next job tick.
func (p *Producer) runJob(ctx context.Context) (ran bool) {
	job, ok := p.acquire()
	if !ok {
		return false
	}
	p.metrics.JobStarted()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job runner recovered from panic", "job_id", job.JobID, "panic", r)
		}
		p.metrics.JobDuration(time.Since(job.StartTime).Seconds())
		p.teardown(job)
	}()

	items, err := p.fetch(ctx, job)
	if err != nil {
		local := p.resolver.Resolve()
		p.recordConfigError(Classify(err, p.Type(), local.GlobalID))
		p.log.Warn("fetch intelligences failed", "job_id", job.JobID, "error", err.Error())
		return false
	}

	if len(items) == 0 {
		p.invokeWorkerLiveness(ctx, job)
		return false
	}

	job.TotalIntelligences = items
	p.incrementRanJobNumber()

	p.execute(ctx, job)
	p.metrics.JobFinished(job.JobTimeout)

	final := p.reconcile(job)
	p.report(ctx, final)

	return true
}

func (p *Producer) acquire() (*RunningJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job != nil && (p.job.lockJob || p.job.ending) {
		return nil, false
	}

	job := &RunningJob{
		JobID:               uuid.NewString(),
		StartTime:           time.Now(),
		CollectedByGlobalID: map[string]Intelligence{},
		lockJob:             true,
	}
	p.job = job
	return job, true
}

func (p *Producer) fetch(ctx context.Context, job *RunningJob) ([]Intelligence, error) {
	local := p.resolver.Resolve()
	if local.BaseURL == "" || local.GlobalID == "" {
		return nil, ConfigMissing()
	}
	return p.controlPlane.GetIntelligences(ctx, local.BaseURL, local.GlobalID, local.SecurityKey)
}

// invokeWorkerLiveness calls the worker once with an empty batch when
// there is no work, so a worker that needs to observe liveness (warm a
// connection pool, renew a lease) gets the chance on every tick even
// when the queue is empty.
func (p *Producer) invokeWorkerLiveness(ctx context.Context, job *RunningJob) {
	w := p.currentWorker()
	cfg := p.currentRemoteConfigOrZero()

	ch, err := w.Execute(ctx, nil, job.JobID, cfg)
	if err != nil {
		p.log.Debug("worker liveness invocation returned an error", "job_id", job.JobID, "error", err.Error())
		return
	}
	if ch == nil {
		return
	}
	for range ch {
		// An empty batch shouldn't yield outcomes; drain defensively so a
		// worker that emits one anyway can't leak a goroutine.
	}
}

// execute hands the batch to the worker and races its completion
// against the collect-job timeout and the producer's shutdown context.
func (p *Producer) execute(ctx context.Context, job *RunningJob) {
	w := p.currentWorker()
	cfg := p.currentRemoteConfigOrZero()

	outcomeCh, err := w.Execute(ctx, job.TotalIntelligences, job.JobID, cfg)
	if err != nil {
		p.log.Warn("worker failed to start batch", "job_id", job.JobID, "error", err.Error())
		closed := make(chan Outcome)
		close(closed)
		outcomeCh = closed
	}
	if outcomeCh == nil {
		closed := make(chan Outcome)
		close(closed)
		outcomeCh = closed
	}

	timer := time.NewTimer(p.cfgConstants.CollectJobTimeout)
	defer timer.Stop()
	job.cancelTimeout = func() { timer.Stop() }

	for {
		select {
		case outcome, open := <-outcomeCh:
			if !open {
				return
			}
			if job.JobTimeout {
				continue
			}
			p.reconcileOutcome(job, outcome)
		case <-timer.C:
			job.JobTimeout = true
			p.markAllTimeout(job)
			return
		case <-ctx.Done():
			job.JobTimeout = true
			p.markAllTimeout(job)
			return
		}
	}
}

func (p *Producer) reconcileOutcome(job *RunningJob, o Outcome) {
	if !o.Resolvable() {
		p.log.Debug("worker outcome missing globalId; skipped", "job_id", job.JobID)
		return
	}
	item, found := findByGlobalID(job.TotalIntelligences, o.GlobalID)
	if !found {
		p.log.Debug("worker outcome globalId not in batch; skipped", "job_id", job.JobID, "global_id", o.GlobalID)
		return
	}

	if o.Err != nil {
		setIntelligenceState(&item, StateFailed, o.Err)
	} else {
		item.Dataset = o.Dataset
		setIntelligenceState(&item, StateFinished, nil)
	}
	job.CollectedByGlobalID[o.GlobalID] = item
	job.CollectedCount = len(job.CollectedByGlobalID)
}

// markAllTimeout overwrites the outcome of every item in the batch with
// TIMEOUT, including items already collected before the timeout fired:
// once the deadline is reached the whole batch's result is undefined
// from the caller's perspective, so every item is reported consistently.
func (p *Producer) markAllTimeout(job *RunningJob) {
	for _, orig := range job.TotalIntelligences {
		item := orig
		setIntelligenceState(&item, StateTimeout, errors.New("collect intelligences timeout"))
		job.CollectedByGlobalID[item.GlobalID] = item
	}
	job.CollectedCount = len(job.CollectedByGlobalID)
}

// reconcile builds the final ordered list reported back to the control
// plane and destination systems, applying the three-way rule: missing
// outcomes fail as unresolved, outcomes with no state fall back to the
// presence of a dataset, and anything else keeps its already-set state.
func (p *Producer) reconcile(job *RunningJob) []Intelligence {
	p.mu.Lock()
	job.ending = true
	p.mu.Unlock()

	final := make([]Intelligence, 0, len(job.TotalIntelligences))
	for _, orig := range job.TotalIntelligences {
		collected, ok := job.CollectedByGlobalID[orig.GlobalID]
		switch {
		case !ok:
			item := orig
			setIntelligenceState(&item, StateFailed, errors.New("timeout or not resolved"))
			final = append(final, item)
		case collected.System.State == "":
			item := collected
			if item.HasDataset() {
				setIntelligenceState(&item, StateFinished, nil)
			} else {
				setIntelligenceState(&item, StateFailed, nil)
			}
			final = append(final, item)
		default:
			final = append(final, collected)
		}
	}
	return final
}

func (p *Producer) report(ctx context.Context, final []Intelligence) {
	if len(final) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("result dispatch recovered from panic", "panic", r)
		}
	}()

	local := p.resolver.Resolve()
	dispatch(ctx, p.log, p.metrics, p.soiClient, p.controlPlane, local.BaseURL, local.SecurityKey, final)
}

func (p *Producer) teardown(job *RunningJob) {
	if job.cancelTimeout != nil {
		job.cancelTimeout()
	}
	p.mu.Lock()
	if p.job == job {
		p.job = nil
	}
	p.mu.Unlock()
}

// terminateActiveJob is invoked when the producer is stopping (either
// Stop() cancelled the context, or the watcher decided preconditions no
// longer hold). It clears the slot without attempting further network
// calls — the job's own in-flight operations will already be erroring
// out against the cancelled context.
func (p *Producer) terminateActiveJob() {
	p.mu.Lock()
	job := p.job
	p.job = nil
	p.mu.Unlock()

	if job != nil && job.cancelTimeout != nil {
		job.cancelTimeout()
	}
}
