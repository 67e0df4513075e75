package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"frlproxy/core/internal/cache"
	"frlproxy/core/internal/classify"
	"frlproxy/core/internal/handler"
	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/mode"
	"frlproxy/core/internal/store"
	"frlproxy/core/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activationPath = "/asnp/frl_connected/values/site1"

func activationBody() []byte {
	return []byte(`{"npdId":"npd-1","deviceDetails":{"deviceId":"dev-1","osUserId":"user-1"},"appDetails":{"nglAppId":"app-1"}}`)
}

func newTestHandler(t *testing.T, licenseServer *httptest.Server, m mode.Mode) (*handler.Handler, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "frlproxy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	h := newTestHandlerOnStore(t, s, licenseServer, m)
	return h, s
}

func newTestHandlerOnStore(t *testing.T, s *store.Store, licenseServer *httptest.Server, m mode.Mode) *handler.Handler {
	t.Helper()

	cachePolicy := cache.New(s, nil)

	upCfg := &config.UpstreamConfig{Timeout: 2 * time.Second, MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffFactor: 2}
	licenseURL := "http://127.0.0.1:1" // unreachable unless overridden below
	if licenseServer != nil {
		licenseURL = licenseServer.URL
	}
	licenseCli, err := upstream.New(licenseURL, upCfg, false)
	require.NoError(t, err)
	logCli, err := upstream.New(licenseURL, upCfg, false)
	require.NoError(t, err)

	return handler.New(s, cachePolicy, licenseCli, logCli, mode.New(m), logger.NewNoop())
}

func TestHandle_Activate_ConnectedCacheMiss_ForwardsAndCaches(t *testing.T) {
	// Arrange
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"licensed":true}`))
	}))
	defer upstreamSrv.Close()
	h, _ := newTestHandler(t, upstreamSrv, mode.Connected)

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{
		Method: http.MethodPost, Path: activationPath, Body: activationBody(),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeForwardedOK, result.Outcome)
	assert.Equal(t, http.StatusOK, result.Status)
}

func TestHandle_Activate_ConnectedCacheHit_ServesFromCache(t *testing.T) {
	// Arrange — first call populates the cache
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"licensed":true}`))
	}))
	defer upstreamSrv.Close()
	h, _ := newTestHandler(t, upstreamSrv, mode.Connected)
	ctx := context.Background()
	_, err := h.Handle(ctx, handler.Inbound{Method: http.MethodPost, Path: activationPath, Body: activationBody()})
	require.NoError(t, err)

	// Act — second identical request must be served from cache
	result, err := h.Handle(ctx, handler.Inbound{Method: http.MethodPost, Path: activationPath, Body: activationBody()})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeServedFromCache, result.Outcome)
	assert.Equal(t, `{"licensed":true}`, string(result.Body))

	// give the out-of-band revalidation goroutine a moment so it doesn't
	// leak past the test
	time.Sleep(20 * time.Millisecond)
}

func TestHandle_Activate_IsolatedCacheMiss_Defers(t *testing.T) {
	// Arrange — isolated mode must never call upstream
	h, s := newTestHandler(t, nil, mode.Isolated)

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{
		Method: http.MethodPost, Path: activationPath, Body: activationBody(),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeDeferred, result.Outcome)
	assert.Equal(t, http.StatusBadGateway, result.Status)

	n, err := s.CountPending(context.Background(), store.TargetLicense)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandle_Activate_IsolatedCacheHit_ServesFromCache(t *testing.T) {
	// Arrange — prime the cache through a connected handler, then serve
	// the same fingerprint through a second, isolated handler sharing the
	// same store (disconnection must not affect an already-cached answer).
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"licensed":true}`))
	}))
	defer upstreamSrv.Close()
	s, err := store.Open(filepath.Join(t.TempDir(), "frlproxy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	connectedHandler := newTestHandlerOnStore(t, s, upstreamSrv, mode.Connected)
	ctx := context.Background()
	_, err = connectedHandler.Handle(ctx, handler.Inbound{Method: http.MethodPost, Path: activationPath, Body: activationBody()})
	require.NoError(t, err)

	isolatedHandler := newTestHandlerOnStore(t, s, nil, mode.Isolated)

	// Act
	result, err := isolatedHandler.Handle(ctx, handler.Inbound{Method: http.MethodPost, Path: activationPath, Body: activationBody()})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeServedFromCache, result.Outcome)
	assert.Equal(t, `{"licensed":true}`, string(result.Body))
}

func TestHandle_Deactivate_Connected_InvalidatesCache(t *testing.T) {
	// Arrange — activate first so there is something to invalidate
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"licensed":true}`))
	}))
	defer upstreamSrv.Close()
	h, s := newTestHandler(t, upstreamSrv, mode.Connected)
	ctx := context.Background()
	_, err := h.Handle(ctx, handler.Inbound{Method: http.MethodPost, Path: activationPath, Body: activationBody()})
	require.NoError(t, err)

	deactivationPath := activationPath + "?npdId=npd-1&deviceId=dev-1&osUserId=user-1&nglAppId=app-1"

	// Act
	result, err := h.Handle(ctx, handler.Inbound{Method: http.MethodDelete, Path: deactivationPath})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeForwardedOK, result.Outcome)

	// The activation's cache entry is gone, so a subsequent activation
	// must miss the cache and forward again
	fp := classify.Fingerprint(string(classify.KindFRLActivate), "npd-1", "dev-1", "user-1", "app-1")
	_, hit, err := s.CacheLookup(ctx, fp)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestHandle_Deactivate_Isolated_Defers(t *testing.T) {
	// Arrange
	h, _ := newTestHandler(t, nil, mode.Isolated)
	deactivationPath := activationPath + "?npdId=npd-1&deviceId=dev-1&osUserId=user-1&nglAppId=app-1"

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{Method: http.MethodDelete, Path: deactivationPath})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeDeferred, result.Outcome)
	assert.Equal(t, http.StatusNoContent, result.Status)
}

func TestHandle_LogUpload_Isolated_AcceptsAndDefers(t *testing.T) {
	// Arrange
	h, _ := newTestHandler(t, nil, mode.Isolated)
	headers := map[string]string{"X-Api-Key": "key-123"}

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{
		Method: http.MethodPost, Path: "/ulecs/v1/tenant/clients/c1/logs", Headers: headers, Body: []byte("log-bytes"),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeDeferred, result.Outcome)
	assert.Equal(t, http.StatusNoContent, result.Status)
}

func TestHandle_LogUpload_ConnectedUpstreamDown_AcceptsAndDefersRatherThanFail(t *testing.T) {
	// Arrange — log server unreachable
	h, _ := newTestHandler(t, nil, mode.Connected)
	headers := map[string]string{"X-Api-Key": "key-123"}

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{
		Method: http.MethodPost, Path: "/ulecs/v1/tenant/clients/c1/logs", Headers: headers, Body: []byte("log-bytes"),
	})

	// Assert — log uploads never fail synchronously to the client
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeDeferred, result.Outcome)
	assert.Equal(t, http.StatusNoContent, result.Status)
}

func TestHandle_UnknownEndpoint_Rejected(t *testing.T) {
	// Arrange
	h, _ := newTestHandler(t, nil, mode.Connected)

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{Method: http.MethodGet, Path: "/not/a/real/path"})

	// Assert
	require.Error(t, err)
	assert.Equal(t, handler.OutcomeRejected, result.Outcome)
	assert.Equal(t, http.StatusNotFound, result.Status)
}

func TestHandle_MalformedActivation_Rejected(t *testing.T) {
	// Arrange
	h, _ := newTestHandler(t, nil, mode.Connected)

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{
		Method: http.MethodPost, Path: activationPath, Body: []byte("{not json"),
	})

	// Assert
	require.Error(t, err)
	assert.Equal(t, handler.OutcomeRejected, result.Outcome)
	assert.Equal(t, http.StatusBadRequest, result.Status)
}

func TestHandle_Passthrough_ForwardsWithoutJournaling(t *testing.T) {
	// Arrange
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstreamSrv.Close()
	h, s := newTestHandler(t, upstreamSrv, mode.Passthrough)

	// Act
	result, err := h.Handle(context.Background(), handler.Inbound{
		Method: http.MethodPost, Path: activationPath, Body: activationBody(),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, handler.OutcomeForwardedOK, result.Outcome)

	n, err := s.CountPending(context.Background(), store.TargetLicense)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
