package cache_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"frlproxy/core/internal/cache"
	"frlproxy/core/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccelerator is an in-memory Accelerator double, avoiding a real Redis
// dependency in unit tests.
type fakeAccelerator struct {
	entries map[string]*store.StoredResponse
	gets    int32
	sets    int32
	deletes int32
}

func newFakeAccelerator() *fakeAccelerator {
	return &fakeAccelerator{entries: map[string]*store.StoredResponse{}}
}

func (f *fakeAccelerator) Get(ctx context.Context, fingerprint string) (*store.StoredResponse, bool) {
	atomic.AddInt32(&f.gets, 1)
	resp, ok := f.entries[fingerprint]
	return resp, ok
}

func (f *fakeAccelerator) Set(ctx context.Context, fingerprint string, resp *store.StoredResponse) {
	atomic.AddInt32(&f.sets, 1)
	f.entries[fingerprint] = resp
}

func (f *fakeAccelerator) Delete(ctx context.Context, fingerprint string) {
	atomic.AddInt32(&f.deletes, 1)
	delete(f.entries, fingerprint)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "frlproxy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRequestAndResponse(t *testing.T, s *store.Store, fingerprint string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveRequest(ctx, &store.StoredRequest{
		ID: "req-" + fingerprint, Kind: store.KindFRLActivate, Fingerprint: fingerprint,
		ReceivedAt: time.Now().UTC(), Body: []byte("{}"), Method: "POST", Path: "/x",
		Target: store.TargetLicense, State: store.StatePending,
	}))
	require.NoError(t, s.SaveResponse(ctx, &store.StoredResponse{
		ID: "resp-" + fingerprint, RequestID: "req-" + fingerprint, ReceivedAt: time.Now().UTC(),
		Status: 200, Body: []byte(`{"ok":true}`), IsCacheable: true,
	}))
}

func TestPolicy_Lookup_StoreOnlyMiss(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	policy := cache.New(s, nil)

	// Act
	_, hit, err := policy.Lookup(context.Background(), "missing-fp")

	// Assert
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPolicy_StoreThenLookup_BackfillsAccelerator(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	accel := newFakeAccelerator()
	policy := cache.New(s, accel)
	seedRequestAndResponse(t, s, "fp-1")
	ctx := context.Background()

	resp, err := s.GetResponse(ctx, "resp-fp-1")
	require.NoError(t, err)

	// Act
	require.NoError(t, policy.Store(ctx, "fp-1", "resp-fp-1", resp))

	// Assert — Store mirrors into the accelerator immediately
	assert.Equal(t, int32(1), accel.sets)

	// Act — a fresh Lookup must hit the accelerator, not fall through
	_, hit, err := policy.Lookup(ctx, "fp-1")

	// Assert
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), accel.gets)
}

func TestPolicy_Lookup_AcceleratorMissFallsThroughAndBackfills(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	accel := newFakeAccelerator()
	policy := cache.New(s, accel)
	seedRequestAndResponse(t, s, "fp-2")
	require.NoError(t, s.CacheStore(context.Background(), "fp-2", "resp-fp-2"))

	// Act — accelerator has nothing cached yet, store does
	resp, hit, err := policy.Lookup(context.Background(), "fp-2")

	// Assert
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "resp-fp-2", resp.ID)
	assert.Equal(t, int32(1), accel.sets) // backfilled after the store hit
}

func TestPolicy_Invalidate_RemovesFromBothTiers(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	accel := newFakeAccelerator()
	policy := cache.New(s, accel)
	seedRequestAndResponse(t, s, "fp-3")
	ctx := context.Background()
	resp, err := s.GetResponse(ctx, "resp-fp-3")
	require.NoError(t, err)
	require.NoError(t, policy.Store(ctx, "fp-3", "resp-fp-3", resp))

	// Act
	require.NoError(t, policy.Invalidate(ctx, "fp-3"))

	// Assert
	_, hit, err := policy.Lookup(ctx, "fp-3")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(1), accel.deletes)
}

func TestPolicy_Coalesce_SharesResultAcrossConcurrentCallers(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	policy := cache.New(s, nil)
	var calls int32

	fn := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "upstream-result", nil
	}

	// Act — fire two concurrent calls for the same fingerprint
	results := make(chan any, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, _, _ := policy.Coalesce("fp-shared", fn)
			results <- v
		}()
	}
	first := <-results
	second := <-results

	// Assert
	assert.Equal(t, "upstream-result", first)
	assert.Equal(t, "upstream-result", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
