package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"frlproxy/core/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "frlproxy.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRequest(id string) *store.StoredRequest {
	return &store.StoredRequest{
		ID:          id,
		Kind:        store.KindFRLActivate,
		Fingerprint: "fp-" + id,
		ReceivedAt:  time.Now().UTC(),
		Body:        []byte(`{"npdId":"x"}`),
		Headers:     map[string]string{"Content-Type": "application/json"},
		Method:      "POST",
		Path:        "/asnp/frl_connected/values/site1",
		Target:      store.TargetLicense,
		State:       store.StatePending,
	}
}

func TestStore_SaveAndGetRequest(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	req := sampleRequest("req-1")

	// Act
	require.NoError(t, s.SaveRequest(ctx, req))
	got, err := s.GetRequest(ctx, "req-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Kind, got.Kind)
	assert.Equal(t, req.Fingerprint, got.Fingerprint)
	assert.Equal(t, req.Body, got.Body)
	assert.Equal(t, req.Headers, got.Headers)
	assert.Equal(t, store.StatePending, got.State)
}

func TestStore_ListPending_FIFOOrder(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()

	first := sampleRequest("req-first")
	first.ReceivedAt = time.Now().Add(-time.Minute).UTC()
	second := sampleRequest("req-second")
	second.ReceivedAt = time.Now().UTC()

	require.NoError(t, s.SaveRequest(ctx, second))
	require.NoError(t, s.SaveRequest(ctx, first))

	// Act
	pending, err := s.ListPending(ctx, store.TargetLicense)

	// Assert
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "req-first", pending[0].ID)
	assert.Equal(t, "req-second", pending[1].ID)
}

func TestStore_UpdateRequestState(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	req := sampleRequest("req-1")
	require.NoError(t, s.SaveRequest(ctx, req))

	// Act
	now := time.Now().UTC()
	require.NoError(t, s.UpdateRequestState(ctx, "req-1", store.StateForwarded, 1, &now, ""))
	got, err := s.GetRequest(ctx, "req-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, store.StateForwarded, got.State)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastAttemptAt)
}

func TestStore_CountPending(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("req-1")))
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("req-2")))

	// Act
	n, err := s.CountPending(ctx, store.TargetLicense)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_CacheStoreLookupInvalidate(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	req := sampleRequest("req-1")
	require.NoError(t, s.SaveRequest(ctx, req))
	resp := &store.StoredResponse{
		ID: "resp-1", RequestID: "req-1", ReceivedAt: time.Now().UTC(),
		Status: 200, Body: []byte(`{"ok":true}`), IsCacheable: true,
	}
	require.NoError(t, s.SaveResponse(ctx, resp))

	// Act — store and look up
	require.NoError(t, s.CacheStore(ctx, "fp-req-1", "resp-1"))
	got, hit, err := s.CacheLookup(ctx, "fp-req-1")

	// Assert
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "resp-1", got.ID)

	// Act — invalidate
	require.NoError(t, s.CacheInvalidate(ctx, "fp-req-1"))
	_, hit, err = s.CacheLookup(ctx, "fp-req-1")

	// Assert
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStore_CacheStore_UpsertOverwritesPreviousResponse(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("req-1")))
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("req-2")))
	require.NoError(t, s.SaveResponse(ctx, &store.StoredResponse{ID: "resp-1", RequestID: "req-1", ReceivedAt: time.Now().UTC(), Status: 200, Body: []byte("a")}))
	require.NoError(t, s.SaveResponse(ctx, &store.StoredResponse{ID: "resp-2", RequestID: "req-2", ReceivedAt: time.Now().UTC(), Status: 200, Body: []byte("b")}))

	// Act
	require.NoError(t, s.CacheStore(ctx, "fp-shared", "resp-1"))
	require.NoError(t, s.CacheStore(ctx, "fp-shared", "resp-2"))
	got, hit, err := s.CacheLookup(ctx, "fp-shared")

	// Assert
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "resp-2", got.ID)
}

func TestStore_ClearRequestsAll(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("req-1")))

	// Act
	require.NoError(t, s.ClearRequests(ctx, 0))
	n, err := s.CountPending(ctx, store.TargetLicense)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_ClearAll(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("req-1")))
	require.NoError(t, s.SaveResponse(ctx, &store.StoredResponse{ID: "resp-1", RequestID: "req-1", ReceivedAt: time.Now().UTC(), Status: 200}))
	require.NoError(t, s.CacheStore(ctx, "fp-req-1", "resp-1"))

	// Act
	require.NoError(t, s.ClearAll(ctx))

	// Assert
	n, err := s.CountPending(ctx, store.TargetLicense)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, hit, err := s.CacheLookup(ctx, "fp-req-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStore_ListForwarded(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	pendingReq := sampleRequest("req-pending")
	forwardedReq := sampleRequest("req-forwarded")
	require.NoError(t, s.SaveRequest(ctx, pendingReq))
	require.NoError(t, s.SaveRequest(ctx, forwardedReq))
	require.NoError(t, s.UpdateRequestState(ctx, "req-forwarded", store.StateForwarded, 1, nil, ""))

	// Act
	forwarded, err := s.ListForwarded(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, forwarded, 1)
	assert.Equal(t, "req-forwarded", forwarded[0].ID)
}
