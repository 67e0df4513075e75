// Package forwarder implements the background replay loop that drains
// PENDING StoredRequests to their upstream target.
package forwarder

import (
	"context"
	"math/rand"
	"time"

	"frlproxy/core/internal/cache"
	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/infrastructure/telemetry/metrics"
	"frlproxy/core/internal/mode"
	"frlproxy/core/internal/pkg/uid"
	"frlproxy/core/internal/store"
	"frlproxy/core/internal/upstream"
)

const maxBackoff = 5 * time.Minute

// DrainResult summarizes one drain cycle, returned to the control surface
// and the `forward` CLI subcommand.
type DrainResult struct {
	Forwarded int
	Failed    int
	Remaining int
}

// Worker drains PENDING requests for a single upstream target. Two workers
// run per process, one per target.
type Worker struct {
	target    store.Target
	store     *store.Store
	client    *upstream.Client
	cache     *cache.Policy // only non-nil for the LICENSE worker
	modeState *mode.State
	log       logger.Logger
	metrics   metrics.Metrics

	backoff time.Duration
}

func NewWorker(target store.Target, s *store.Store, client *upstream.Client, cachePolicy *cache.Policy, modeState *mode.State, log logger.Logger, met metrics.Metrics) *Worker {
	return &Worker{
		target:    target,
		store:     s,
		client:    client,
		cache:     cachePolicy,
		modeState: modeState,
		log:       log.WithField("component", "forwarder").WithField("target", string(target)),
		metrics:   met,
	}
}

// Run loops forever, draining whenever mode is CONNECTED, until ctx is
// canceled. Cancellation is checked between items; the same ctx is also
// passed to the in-flight upstream call and store writes, so an item in
// flight when ctx is canceled is abandoned rather than completed and stays
// PENDING.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.modeState.Get() != mode.Connected {
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
			continue
		}

		result := w.drainOnce(ctx)
		if result.Forwarded == 0 && result.Failed == 0 {
			// Nothing to do; avoid a hot loop.
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
		}
	}
}

// Drain runs exactly one drain cycle to completion regardless of mode,
// used by the one-shot CLI/control trigger.
func (w *Worker) Drain(ctx context.Context) DrainResult {
	return w.drainOnce(ctx)
}

func (w *Worker) drainOnce(ctx context.Context) DrainResult {
	pending, err := w.store.ListPending(ctx, w.target)
	if err != nil {
		w.log.WithField("error", err.Error()).Error("failed to list pending requests")
		return DrainResult{}
	}

	var result DrainResult
	for _, req := range pending {
		select {
		case <-ctx.Done():
			result.Remaining = len(pending) - result.Forwarded - result.Failed
			return result
		default:
		}

		ok := w.forwardOne(ctx, req)
		if ok {
			result.Forwarded++
			w.backoff = 0
		} else {
			result.Failed++
			w.sleepBackoff(ctx)
		}
	}

	remaining, err := w.store.CountPending(ctx, w.target)
	if err == nil {
		result.Remaining = remaining
	}
	return result
}

// forwardOne replays a single StoredRequest. Idempotent: a request already
// transitioned away from PENDING by a concurrent caller is simply skipped.
func (w *Worker) forwardOne(ctx context.Context, req *store.StoredRequest) bool {
	current, err := w.store.GetRequest(ctx, req.ID)
	if err != nil {
		return false
	}
	if current.State != store.StatePending {
		return true // already resolved by another path; no-op replay
	}

	resp, err := w.client.Send(ctx, upstream.Request{
		Method: req.Method, Path: req.Path, Headers: req.Headers, Body: req.Body,
	})
	now := time.Now().UTC()

	if err != nil {
		upErr, _ := err.(*upstream.Error)
		message := err.Error()
		if upErr != nil {
			message = upErr.Message
		}
		_ = w.store.UpdateRequestState(ctx, req.ID, store.StatePending, req.Attempts+1, &now, message)
		if w.metrics != nil {
			w.metrics.Incr("forwarder.failed", map[string]string{"target": string(w.target)})
		}
		return false
	}

	storedResp := &store.StoredResponse{
		ID:          uid.New(),
		RequestID:   req.ID,
		ReceivedAt:  now,
		Status:      resp.Status,
		Body:        resp.Body,
		Headers:     resp.Headers,
		IsCacheable: req.Kind == store.KindFRLActivate && resp.Status >= 200 && resp.Status < 300,
	}
	if err := w.store.SaveResponse(ctx, storedResp); err != nil {
		w.log.WithField("error", err.Error()).Error("failed to journal forwarded response")
		return false
	}
	_ = w.store.UpdateRequestState(ctx, req.ID, store.StateForwarded, req.Attempts+1, &now, "")

	if w.cache != nil {
		if storedResp.IsCacheable {
			if err := w.cache.Store(ctx, req.Fingerprint, storedResp.ID, storedResp); err != nil {
				w.log.WithField("error", err.Error()).Error("cache store failed during forward")
			}
		} else if req.Kind == store.KindFRLDeactivate && resp.Status >= 200 && resp.Status < 300 {
			if err := w.cache.Invalidate(ctx, req.Fingerprint); err != nil {
				w.log.WithField("error", err.Error()).Error("cache invalidation failed during forward")
			}
		}
	}

	if w.metrics != nil {
		w.metrics.Incr("forwarder.forwarded", map[string]string{"target": string(w.target)})
	}
	return true
}

func (w *Worker) sleepBackoff(ctx context.Context) {
	if w.backoff == 0 {
		w.backoff = time.Second
	} else {
		w.backoff *= 2
		if w.backoff > maxBackoff {
			w.backoff = maxBackoff
		}
	}
	jitter := time.Duration(rand.Int63n(int64(w.backoff) / 4 + 1))
	sleepCtx(ctx, w.backoff+jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
