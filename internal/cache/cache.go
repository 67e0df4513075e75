// Package cache implements the Cache Policy: lookup/store/invalidate of
// FRL activation responses keyed by fingerprint, with coalescing of
// concurrent upstream calls for the same fingerprint.
package cache

import (
	"context"

	"frlproxy/core/internal/store"

	"golang.org/x/sync/singleflight"
)

// Policy is the Cache Policy, backed by the durable store (authoritative)
// and an optional read-through accelerator.
type Policy struct {
	store       *store.Store
	accelerator Accelerator
	group       singleflight.Group
}

// Accelerator is a read-through cache sitting in front of the store (e.g.
// Redis). It is never the source of truth: a miss always falls through to
// the store, and every store write is mirrored here best-effort.
type Accelerator interface {
	Get(ctx context.Context, fingerprint string) (*store.StoredResponse, bool)
	Set(ctx context.Context, fingerprint string, resp *store.StoredResponse)
	Delete(ctx context.Context, fingerprint string)
}

// New builds a Policy. accelerator may be nil to skip the read-through tier.
func New(s *store.Store, accelerator Accelerator) *Policy {
	return &Policy{store: s, accelerator: accelerator}
}

// Lookup returns the cached response for an FRL_ACTIVATE fingerprint, if
// any, checking the accelerator first and falling back to the store.
func (p *Policy) Lookup(ctx context.Context, fingerprint string) (*store.StoredResponse, bool, error) {
	if p.accelerator != nil {
		if resp, ok := p.accelerator.Get(ctx, fingerprint); ok {
			return resp, true, nil
		}
	}

	resp, ok, err := p.store.CacheLookup(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if ok && p.accelerator != nil {
		p.accelerator.Set(ctx, fingerprint, resp)
	}
	return resp, ok, nil
}

// Store upserts the cache entry for fingerprint to responseID after a
// successful (2xx) upstream activation.
func (p *Policy) Store(ctx context.Context, fingerprint, responseID string, resp *store.StoredResponse) error {
	if err := p.store.CacheStore(ctx, fingerprint, responseID); err != nil {
		return err
	}
	if p.accelerator != nil {
		p.accelerator.Set(ctx, fingerprint, resp)
	}
	return nil
}

// Invalidate removes the cache entry for fingerprint after a successful
// deactivation.
func (p *Policy) Invalidate(ctx context.Context, fingerprint string) error {
	if err := p.store.CacheInvalidate(ctx, fingerprint); err != nil {
		return err
	}
	if p.accelerator != nil {
		p.accelerator.Delete(ctx, fingerprint)
	}
	return nil
}

// Coalesce ensures at most one outstanding upstream call per fingerprint:
// concurrent callers for the same key block on the first caller's fn and
// share its result.
func (p *Policy) Coalesce(fingerprint string, fn func() (any, error)) (any, error, bool) {
	v, err, shared := p.group.Do(fingerprint, fn)
	return v, err, shared
}
