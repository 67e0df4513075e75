package control_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"frlproxy/core/internal/cache"
	"frlproxy/core/internal/control"
	"frlproxy/core/internal/forwarder"
	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/infrastructure/telemetry/metrics"
	"frlproxy/core/internal/mode"
	"frlproxy/core/internal/pkg/apperror"
	"frlproxy/core/internal/pkg/response"
	"frlproxy/core/internal/store"
	"frlproxy/core/internal/upstream"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := apperror.CodeInternal
	message := err.Error()
	if e, ok := err.(*apperror.AppError); ok {
		status = e.GetHTTPStatus()
		message = e.Message
		code = e.Code
	}
	return response.New(c).Error(status, code, message, false, nil)
}

func newTestSurface(t *testing.T, sharedSecret string) (*fiber.App, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "frlproxy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	client, err := upstream.New("http://127.0.0.1:1", &config.UpstreamConfig{Timeout: time.Second, MaxAttempts: 1}, false)
	require.NoError(t, err)
	modeState := mode.New(mode.Connected)
	cachePolicy := cache.New(s, nil)
	licenseWorker := forwarder.NewWorker(store.TargetLicense, s, client, cachePolicy, modeState, logger.NewNoop(), metrics.NewNoOp())
	logWorker := forwarder.NewWorker(store.TargetLog, s, client, nil, modeState, logger.NewNoop(), metrics.NewNoOp())

	surface := control.New(s, modeState, licenseWorker, logWorker, &config.ControlConfig{SharedSecret: sharedSecret})

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	surface.Register(app)
	return app, s
}

func TestStatus_PlainText_Ungated(t *testing.T) {
	// Arrange
	app, _ := newTestSurface(t, "secret-123")

	// Act
	resp, err := app.Test(httptest.NewRequest("GET", "/status", nil), -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestControlStatus_RequiresSecretWhenConfigured(t *testing.T) {
	// Arrange
	app, _ := newTestSurface(t, "secret-123")

	// Act — no secret header
	resp, err := app.Test(httptest.NewRequest("GET", "/control/status", nil), -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestControlStatus_AcceptsCorrectSecret(t *testing.T) {
	// Arrange
	app, _ := newTestSurface(t, "secret-123")
	req := httptest.NewRequest("GET", "/control/status", nil)
	req.Header.Set("X-Control-Secret", "secret-123")

	// Act
	resp, err := app.Test(req, -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestControlStatus_NoSecretConfiguredIsUngated(t *testing.T) {
	// Arrange
	app, _ := newTestSurface(t, "")

	// Act
	resp, err := app.Test(httptest.NewRequest("GET", "/control/status", nil), -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSetMode_Valid(t *testing.T) {
	// Arrange
	app, _ := newTestSurface(t, "")
	body, _ := json.Marshal(map[string]string{"mode": "isolated"})
	req := httptest.NewRequest("POST", "/control/mode", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	// Act
	resp, err := app.Test(req, -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "isolated")
}

func TestSetMode_Invalid(t *testing.T) {
	// Arrange
	app, _ := newTestSurface(t, "")
	body, _ := json.Marshal(map[string]string{"mode": "offline"})
	req := httptest.NewRequest("POST", "/control/mode", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	// Act
	resp, err := app.Test(req, -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestExportImport_RoundTripThroughControlSurface(t *testing.T) {
	// Arrange
	app, s := newTestSurface(t, "")
	require.NoError(t, s.SaveRequest(context.Background(), &store.StoredRequest{
		ID: "req-1", Kind: store.KindFRLActivate, Fingerprint: "fp-1", ReceivedAt: time.Now().UTC(),
		Body: []byte("{}"), Method: "POST", Path: "/x", Target: store.TargetLicense, State: store.StatePending,
	}))

	// Act — export
	exportResp, err := app.Test(httptest.NewRequest("POST", "/control/export", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, exportResp.StatusCode)
	blob, err := io.ReadAll(exportResp.Body)
	require.NoError(t, err)

	// Act — import into a second, empty surface
	app2, _ := newTestSurface(t, "")
	importReq := httptest.NewRequest("POST", "/control/import", bytes.NewReader(blob))
	importResp, err := app2.Test(importReq, -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 200, importResp.StatusCode)
	raw, _ := io.ReadAll(importResp.Body)
	assert.Contains(t, string(raw), `"imported":1`)
}
