package sync

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"sitesync/internal/events"
	"sitesync/internal/metrics"
	"sitesync/internal/models"
	"sitesync/internal/store"

	"github.com/rs/zerolog"
)

// Summary reports what one drain pass did.
type Summary struct {
	AlreadyDraining bool
	Offline         bool
	Succeeded       int
	Terminal        int
	Retried         int
	Deferred        int
	Exhausted       int
}

// Processor drains the mutation queue against the remote API. One Processor
// lives in each execution context; the draining guard only coalesces calls
// within that context.
type Processor struct {
	store    *store.Store
	auth     *AuthContext
	detector Detector
	exec     Executor
	bus      *events.Bus
	logger   zerolog.Logger

	draining atomic.Bool
}

func NewProcessor(st *store.Store, auth *AuthContext, detector Detector, exec Executor, bus *events.Bus, logger *zerolog.Logger) *Processor {
	return &Processor{
		store:    st,
		auth:     auth,
		detector: detector,
		exec:     exec,
		bus:      bus,
		logger:   logger.With().Str("component", "processor").Logger(),
	}
}

// Drain runs one pass over the queue in created_at order. A call arriving
// while a pass is in flight is a no-op, not queued. When the device is
// offline no entry is touched.
func (p *Processor) Drain(ctx context.Context) Summary {
	if !p.draining.CompareAndSwap(false, true) {
		return Summary{AlreadyDraining: true}
	}
	defer p.draining.Store(false)

	if !p.detector.Online(ctx) {
		return Summary{Offline: true}
	}

	muts, err := p.store.ListMutations(ctx)
	if err != nil {
		// A storage hiccup must not halt the scheduler loop; the next
		// trigger retries the snapshot.
		p.logger.Error().Err(err).Msg("queue snapshot failed")
		return Summary{}
	}

	metrics.IncDrain()
	metrics.SetQueueDepth(len(muts))
	if len(muts) == 0 {
		return Summary{}
	}

	var sum Summary
	for i := range muts {
		p.processOne(ctx, &muts[i], &sum)
	}

	p.logger.Info().
		Int("succeeded", sum.Succeeded).
		Int("terminal", sum.Terminal).
		Int("retried", sum.Retried).
		Int("deferred", sum.Deferred).
		Int("exhausted", sum.Exhausted).
		Msg("drain finished")
	return sum
}

func (p *Processor) processOne(ctx context.Context, m *models.QueuedMutation, sum *Summary) {
	// A failure in one entry never aborts the rest of the pass.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("mutation_id", m.ID).Interface("panic", r).Msg("entry processing panicked")
			sum.Deferred++
		}
	}()

	if m.Attempts >= m.MaxAttempts {
		// Budget already spent; drop without executing.
		p.dropExhausted(ctx, m, "retry budget exhausted")
		metrics.IncMutation("exhausted")
		sum.Exhausted++
		return
	}

	// The stored token snapshot is stale by definition; the current one
	// replaces it outright so rotation is always honored.
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	if token, ok := p.auth.Token(); ok {
		m.Headers["Authorization"] = "Bearer " + token
	}

	status, err := p.exec.Execute(ctx, m)
	if err == nil && status >= 200 && status < 300 {
		if rmErr := p.store.RemoveMutation(ctx, m.ID); rmErr != nil {
			p.logger.Error().Err(rmErr).Str("mutation_id", m.ID).Msg("remove after success failed")
		}
		metrics.IncMutation("succeeded")
		sum.Succeeded++
		return
	}

	switch Classify(status, err) {
	case Terminal:
		p.logger.Warn().Str("mutation_id", m.ID).Int("status", status).Msg("mutation rejected terminally")
		p.dropTerminal(ctx, m, status)
		metrics.IncMutation("terminal")
		sum.Terminal++

	case Retryable:
		// Connectivity may have dropped mid-drain. Budget is only spent on
		// a genuine server rejection while connectivity was confirmed.
		if !p.detector.Online(ctx) {
			metrics.IncMutation("deferred")
			sum.Deferred++
			return
		}
		m.Attempts++
		if m.Attempts >= m.MaxAttempts {
			p.dropExhausted(ctx, m, "retry budget exhausted")
			metrics.IncMutation("exhausted")
			sum.Exhausted++
			return
		}
		if upErr := p.store.UpdateMutationAttempts(ctx, m.ID, m.Attempts); upErr != nil {
			p.logger.Error().Err(upErr).Str("mutation_id", m.ID).Msg("persist attempts failed")
		}
		metrics.IncMutation("retried")
		sum.Retried++

	case DeferredOffline:
		metrics.IncMutation("deferred")
		sum.Deferred++
	}
}

func (p *Processor) dropTerminal(ctx context.Context, m *models.QueuedMutation, status int) {
	reason := "rejected with status " + http.StatusText(status)
	if reason == "rejected with status " {
		reason = "rejected"
	}
	p.drop(ctx, m, reason)
}

func (p *Processor) dropExhausted(ctx context.Context, m *models.QueuedMutation, reason string) {
	p.logger.Warn().Str("mutation_id", m.ID).Int("attempts", m.Attempts).Msg(reason)
	p.drop(ctx, m, reason)
}

func (p *Processor) drop(ctx context.Context, m *models.QueuedMutation, reason string) {
	if err := p.store.RemoveMutation(ctx, m.ID); err != nil {
		p.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("remove dropped mutation failed")
	}
	if err := p.store.RecordDeadLetter(ctx, models.DeadLetter{
		MutationID: m.ID,
		TargetURL:  m.TargetURL,
		Method:     m.Method,
		Reason:     reason,
		Attempts:   m.Attempts,
		FailedAt:   time.Now(),
	}); err != nil {
		p.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("record dead letter failed")
	}

	// Permanent data loss is the one outcome that must reach a human.
	_ = p.bus.PublishJSON(events.EventMutationDeadLettered, events.DeadLetterPayload{
		MutationID: m.ID,
		TargetURL:  m.TargetURL,
		Method:     m.Method,
		Reason:     reason,
		Attempts:   m.Attempts,
	})
}
