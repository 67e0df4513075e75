// Package handler implements the Request Handler: the ingress pipeline
// that classifies, journals, decides, and responds to every inbound
// request.
package handler

import (
	"context"
	"net/http"
	"time"

	"frlproxy/core/internal/cache"
	"frlproxy/core/internal/classify"
	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/mode"
	"frlproxy/core/internal/pkg/apperror"
	"frlproxy/core/internal/pkg/ptr"
	"frlproxy/core/internal/pkg/uid"
	"frlproxy/core/internal/store"
	"frlproxy/core/internal/upstream"
)

// Outcome is the terminal disposition of a handled request, mirroring the
// terminal states of the ingress decision table.
type Outcome string

const (
	OutcomeServedFromCache Outcome = "SERVED_FROM_CACHE"
	OutcomeForwardedOK     Outcome = "FORWARDED_OK"
	OutcomeForwardedFail   Outcome = "FORWARDED_FAIL"
	OutcomeDeferred        Outcome = "DEFERRED"
	OutcomeRejected        Outcome = "REJECTED"
)

// Result is what the ingress pipeline produces for the HTTP layer to turn
// into a response.
type Result struct {
	Outcome Outcome
	Status  int
	Headers map[string]string
	Body    []byte
}

// Handler wires the Classifier, Cache Policy, Durable Store, and Upstream
// Client into the ingress decision table.
type Handler struct {
	store       *store.Store
	cachePolicy *cache.Policy
	licenseCli  *upstream.Client
	logCli      *upstream.Client
	modeState   *mode.State
	log         logger.Logger
}

func New(s *store.Store, cachePolicy *cache.Policy, licenseCli, logCli *upstream.Client, modeState *mode.State, log logger.Logger) *Handler {
	return &Handler{
		store:       s,
		cachePolicy: cachePolicy,
		licenseCli:  licenseCli,
		logCli:      logCli,
		modeState:   modeState,
		log:         log.WithField("component", "handler"),
	}
}

// Inbound is the narrow view of an HTTP request the handler needs.
type Inbound struct {
	Method    string
	Path      string
	Headers   map[string]string
	Body      []byte
	RequestID string
}

func (h *Handler) clientFor(target store.Target) *upstream.Client {
	if target == store.TargetLog {
		return h.logCli
	}
	return h.licenseCli
}

// Handle runs the full classify → journal → decide → respond pipeline.
func (h *Handler) Handle(ctx context.Context, in Inbound) (*Result, error) {
	httpHeaders := http.Header{}
	for k, v := range in.Headers {
		httpHeaders.Set(k, v)
	}

	classified, err := classify.Classify(in.Method, in.Path, httpHeaders, in.Body)
	if err != nil {
		return &Result{Outcome: OutcomeRejected, Status: http.StatusBadRequest}, apperror.NewClient(apperror.CodeValidation, err.Error(), nil)
	}

	switch classified.Kind {
	case classify.KindHealth, classify.KindControl:
		// Handled by a dedicated router branch before reaching here; a
		// request of this kind reaching Handle is a routing bug.
		return &Result{Outcome: OutcomeRejected, Status: http.StatusNotFound}, apperror.NewClient(apperror.CodeUnknownEndpoint, "not a proxied endpoint", nil)
	case classify.KindUnknown:
		return &Result{Outcome: OutcomeRejected, Status: http.StatusNotFound}, apperror.NewClient(apperror.CodeUnknownEndpoint, "unrecognized endpoint", nil)
	}

	currentMode := h.modeState.Get()

	if currentMode == mode.Passthrough {
		return h.passthrough(ctx, classified, in)
	}

	switch classified.Kind {
	case classify.KindFRLActivate:
		return h.handleActivate(ctx, classified, in, currentMode)
	case classify.KindFRLDeactivate:
		return h.handleDeactivate(ctx, classified, in, currentMode)
	case classify.KindLogUpload:
		return h.handleLogUpload(ctx, classified, in, currentMode)
	default:
		return &Result{Outcome: OutcomeRejected, Status: http.StatusNotFound}, nil
	}
}

// passthrough forwards synchronously, never caching or journaling.
func (h *Handler) passthrough(ctx context.Context, classified classify.Result, in Inbound) (*Result, error) {
	resp, err := h.clientFor(classified.Target).Send(ctx, upstream.Request{
		Method: in.Method, Path: in.Path, Headers: in.Headers, Body: in.Body,
	})
	if err != nil {
		return h.upstreamErrorResult(err), nil
	}
	return &Result{Outcome: OutcomeForwardedOK, Status: resp.Status, Headers: resp.Headers, Body: resp.Body}, nil
}

func (h *Handler) journal(ctx context.Context, classified classify.Result, in Inbound, state store.State) (*store.StoredRequest, error) {
	req := &store.StoredRequest{
		ID:          uid.New(),
		Kind:        store.Kind(classified.Kind),
		Fingerprint: classified.Fingerprint,
		ReceivedAt:  time.Now().UTC(),
		Body:        in.Body,
		Headers:     in.Headers,
		Method:      in.Method,
		Path:        in.Path,
		Target:      classified.Target,
		State:       state,
	}
	if err := h.store.SaveRequest(ctx, req); err != nil {
		return nil, apperror.NewInternal(apperror.CodeStoreUnavailable, "failed to journal request", err)
	}
	return req, nil
}

func (h *Handler) handleActivate(ctx context.Context, classified classify.Result, in Inbound, m mode.Mode) (*Result, error) {
	cached, hit, err := h.cachePolicy.Lookup(ctx, classified.Fingerprint)
	if err != nil {
		return nil, apperror.NewInternal(apperror.CodeStoreUnavailable, "cache lookup failed", err)
	}

	if hit {
		req, jerr := h.journal(ctx, classified, in, store.StateAnsweredFromCache)
		if jerr != nil {
			return nil, jerr
		}
		if m == mode.Connected {
			go h.revalidateOutOfBand(req, in)
		}
		return &Result{Outcome: OutcomeServedFromCache, Status: cached.Status, Headers: cached.Headers, Body: cached.Body}, nil
	}

	if m == mode.Isolated {
		if _, jerr := h.journal(ctx, classified, in, store.StatePending); jerr != nil {
			return nil, jerr
		}
		return &Result{Outcome: OutcomeDeferred, Status: http.StatusBadGateway, Body: []byte("no cached activation available")}, nil
	}

	// CONNECTED, cache miss: forward synchronously, coalescing concurrent
	// callers for the same fingerprint onto a single upstream call.
	req, jerr := h.journal(ctx, classified, in, store.StatePending)
	if jerr != nil {
		return nil, jerr
	}

	v, err, _ := h.cachePolicy.Coalesce(classified.Fingerprint, func() (any, error) {
		return h.licenseCli.Send(ctx, upstream.Request{Method: in.Method, Path: in.Path, Headers: in.Headers, Body: in.Body})
	})
	if err != nil {
		_ = h.store.UpdateRequestState(ctx, req.ID, store.StatePending, req.Attempts+1, ptr.To(time.Now()), err.Error())
		return h.upstreamErrorResult(err), nil
	}

	resp := v.(*upstream.Response)
	storedResp := &store.StoredResponse{
		ID: uid.New(), RequestID: req.ID, ReceivedAt: time.Now().UTC(),
		Status: resp.Status, Body: resp.Body, Headers: resp.Headers, IsCacheable: resp.Status >= 200 && resp.Status < 300,
	}
	if err := h.store.SaveResponse(ctx, storedResp); err != nil {
		return nil, apperror.NewInternal(apperror.CodeStoreUnavailable, "failed to journal response", err)
	}

	if storedResp.IsCacheable {
		if err := h.cachePolicy.Store(ctx, classified.Fingerprint, storedResp.ID, storedResp); err != nil {
			h.log.WithField("error", err.Error()).Error("cache store failed after successful activation")
		}
		_ = h.store.UpdateRequestState(ctx, req.ID, store.StateForwarded, req.Attempts+1, ptr.To(time.Now()), "")
		return &Result{Outcome: OutcomeForwardedOK, Status: resp.Status, Headers: resp.Headers, Body: resp.Body}, nil
	}

	// Terminal 4xx: journaled as FORWARDED and returned verbatim.
	_ = h.store.UpdateRequestState(ctx, req.ID, store.StateForwarded, req.Attempts+1, ptr.To(time.Now()), "")
	return &Result{Outcome: OutcomeForwardedOK, Status: resp.Status, Headers: resp.Headers, Body: resp.Body}, nil
}

func (h *Handler) handleDeactivate(ctx context.Context, classified classify.Result, in Inbound, m mode.Mode) (*Result, error) {
	if m == mode.Isolated {
		if _, jerr := h.journal(ctx, classified, in, store.StatePending); jerr != nil {
			return nil, jerr
		}
		return &Result{Outcome: OutcomeDeferred, Status: http.StatusNoContent}, nil
	}

	req, jerr := h.journal(ctx, classified, in, store.StatePending)
	if jerr != nil {
		return nil, jerr
	}

	resp, err := h.licenseCli.Send(ctx, upstream.Request{Method: in.Method, Path: in.Path, Headers: in.Headers, Body: in.Body})
	if err != nil {
		_ = h.store.UpdateRequestState(ctx, req.ID, store.StatePending, req.Attempts+1, ptr.To(time.Now()), err.Error())
		return h.upstreamErrorResult(err), nil
	}

	storedResp := &store.StoredResponse{
		ID: uid.New(), RequestID: req.ID, ReceivedAt: time.Now().UTC(),
		Status: resp.Status, Body: resp.Body, Headers: resp.Headers,
	}
	if err := h.store.SaveResponse(ctx, storedResp); err != nil {
		return nil, apperror.NewInternal(apperror.CodeStoreUnavailable, "failed to journal response", err)
	}
	_ = h.store.UpdateRequestState(ctx, req.ID, store.StateForwarded, req.Attempts+1, ptr.To(time.Now()), "")

	if resp.Status >= 200 && resp.Status < 300 {
		if err := h.cachePolicy.Invalidate(ctx, classified.Fingerprint); err != nil {
			h.log.WithField("error", err.Error()).Error("cache invalidation failed after successful deactivation")
		}
	}

	return &Result{Outcome: OutcomeForwardedOK, Status: resp.Status, Headers: resp.Headers, Body: resp.Body}, nil
}

func (h *Handler) handleLogUpload(ctx context.Context, classified classify.Result, in Inbound, m mode.Mode) (*Result, error) {
	req, jerr := h.journal(ctx, classified, in, store.StatePending)
	if jerr != nil {
		return nil, jerr
	}

	if m == mode.Isolated {
		return &Result{Outcome: OutcomeDeferred, Status: http.StatusNoContent}, nil
	}

	resp, err := h.logCli.Send(ctx, upstream.Request{Method: in.Method, Path: in.Path, Headers: in.Headers, Body: in.Body})
	if err != nil {
		// Accept and defer: log uploads never fail synchronously to the client.
		_ = h.store.UpdateRequestState(ctx, req.ID, store.StatePending, req.Attempts+1, ptr.To(time.Now()), err.Error())
		return &Result{Outcome: OutcomeDeferred, Status: http.StatusNoContent}, nil
	}

	storedResp := &store.StoredResponse{
		ID: uid.New(), RequestID: req.ID, ReceivedAt: time.Now().UTC(),
		Status: resp.Status, Body: resp.Body, Headers: resp.Headers,
	}
	if err := h.store.SaveResponse(ctx, storedResp); err != nil {
		return nil, apperror.NewInternal(apperror.CodeStoreUnavailable, "failed to journal response", err)
	}
	_ = h.store.UpdateRequestState(ctx, req.ID, store.StateForwarded, req.Attempts+1, ptr.To(time.Now()), "")

	return &Result{Outcome: OutcomeForwardedOK, Status: resp.Status, Headers: resp.Headers, Body: resp.Body}, nil
}

// revalidateOutOfBand refreshes the cache without blocking the client
// response, per CONNECTED mode's cache-hit behavior.
func (h *Handler) revalidateOutOfBand(req *store.StoredRequest, in Inbound) {
	ctx := context.Background()
	resp, err := h.licenseCli.Send(ctx, upstream.Request{Method: in.Method, Path: in.Path, Headers: in.Headers, Body: in.Body})
	if err != nil {
		h.log.WithField("error", err.Error()).Warn("out-of-band revalidation failed")
		return
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return
	}
	storedResp := &store.StoredResponse{
		ID: uid.New(), RequestID: req.ID, ReceivedAt: time.Now().UTC(),
		Status: resp.Status, Body: resp.Body, Headers: resp.Headers, IsCacheable: true,
	}
	if err := h.store.SaveResponse(ctx, storedResp); err != nil {
		h.log.WithField("error", err.Error()).Error("failed to journal out-of-band revalidation response")
		return
	}
	if err := h.cachePolicy.Store(ctx, req.Fingerprint, storedResp.ID, storedResp); err != nil {
		h.log.WithField("error", err.Error()).Error("failed to refresh cache from out-of-band revalidation")
	}
}

func (h *Handler) upstreamErrorResult(err error) *Result {
	upErr, ok := err.(*upstream.Error)
	if !ok {
		return &Result{Outcome: OutcomeForwardedFail, Status: http.StatusBadGateway, Body: []byte(err.Error())}
	}
	return &Result{Outcome: OutcomeForwardedFail, Status: http.StatusBadGateway, Body: []byte(upErr.Message)}
}

