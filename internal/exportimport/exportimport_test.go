package exportimport_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"frlproxy/core/internal/exportimport"
	"frlproxy/core/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "frlproxy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExportPending_ImportRoundTrip(t *testing.T) {
	// Arrange — an isolated instance with two pending requests
	src := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, src.SaveRequest(ctx, &store.StoredRequest{
		ID: "req-1", Kind: store.KindFRLActivate, Fingerprint: "fp-1", ReceivedAt: time.Now().UTC(),
		Body: []byte(`{"npdId":"x"}`), Method: "POST", Path: "/asnp/frl_connected/values/site1",
		Target: store.TargetLicense, State: store.StatePending,
	}))
	require.NoError(t, src.SaveRequest(ctx, &store.StoredRequest{
		ID: "req-2", Kind: store.KindLogUpload, ReceivedAt: time.Now().UTC(),
		Body: []byte("log-bytes"), Method: "POST", Path: "/ulecs/v1/x",
		Target: store.TargetLog, State: store.StatePending,
	}))

	// Act
	blob, err := exportimport.ExportPending(ctx, src)
	require.NoError(t, err)

	dst := openTestStore(t)
	n, err := exportimport.Import(ctx, dst, blob)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got1, err := dst.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatePending, got1.State)
	assert.Equal(t, []byte(`{"npdId":"x"}`), got1.Body)

	got2, err := dst.GetRequest(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, store.TargetLog, got2.Target)
}

func TestImport_IsIdempotentOnReplay(t *testing.T) {
	// Arrange
	src := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, src.SaveRequest(ctx, &store.StoredRequest{
		ID: "req-1", Kind: store.KindFRLActivate, Fingerprint: "fp-1", ReceivedAt: time.Now().UTC(),
		Body: []byte("{}"), Method: "POST", Path: "/x", Target: store.TargetLicense, State: store.StatePending,
	}))
	blob, err := exportimport.ExportPending(ctx, src)
	require.NoError(t, err)

	dst := openTestStore(t)

	// Act — import the same blob twice
	first, err := exportimport.Import(ctx, dst, blob)
	require.NoError(t, err)
	second, err := exportimport.Import(ctx, dst, blob)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second) // second pass finds req-1 already present
}

func TestExportResponses_ImportMarksForwardedAndRestoresCache(t *testing.T) {
	// Arrange — a connected instance that drained an imported request
	src := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, src.SaveRequest(ctx, &store.StoredRequest{
		ID: "req-1", Kind: store.KindFRLActivate, Fingerprint: "fp-1", ReceivedAt: time.Now().UTC(),
		Body: []byte("{}"), Method: "POST", Path: "/x", Target: store.TargetLicense, State: store.StatePending,
	}))
	require.NoError(t, src.SaveResponse(ctx, &store.StoredResponse{
		ID: "resp-1", RequestID: "req-1", ReceivedAt: time.Now().UTC(),
		Status: 200, Body: []byte(`{"ok":true}`), IsCacheable: true,
	}))
	require.NoError(t, src.UpdateRequestState(ctx, "req-1", store.StateForwarded, 1, nil, ""))

	blob, err := exportimport.ExportResponses(ctx, src)
	require.NoError(t, err)

	// Act — import onto the originating (isolated) instance, which already
	// has the matching pending request
	dst := openTestStore(t)
	require.NoError(t, dst.SaveRequest(ctx, &store.StoredRequest{
		ID: "req-1", Kind: store.KindFRLActivate, Fingerprint: "fp-1", ReceivedAt: time.Now().UTC(),
		Body: []byte("{}"), Method: "POST", Path: "/x", Target: store.TargetLicense, State: store.StatePending,
	}))
	n, err := exportimport.Import(ctx, dst, blob)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := dst.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateForwarded, got.State)

	_, hit, err := dst.CacheLookup(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestImport_RejectsNewerSchemaVersion(t *testing.T) {
	// Arrange — a hand-built blob claiming a future schema version
	blob := []byte(`{"type":"header","schema_version":99,"origin_id":"x","exported_at":"2026-01-01T00:00:00Z"}` + "\n")
	dst := openTestStore(t)

	// Act
	_, err := exportimport.Import(context.Background(), dst, blob)

	// Assert
	require.Error(t, err)
}

func TestImport_RejectsBlobMissingHeader(t *testing.T) {
	// Arrange
	blob := []byte(`{"type":"request","id":"req-1","kind":"FRL_ACTIVATE","fingerprint":"fp","received_at":"2026-01-01T00:00:00Z","method":"POST","path":"/x","target":"LICENSE","body_base64":"e30="}` + "\n")
	dst := openTestStore(t)

	// Act
	_, err := exportimport.Import(context.Background(), dst, blob)

	// Assert
	require.Error(t, err)
}
