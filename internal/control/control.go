// Package control implements the operator-facing HTTP surface: status,
// mode changes, manual forward triggers, and journal export/import.
package control

import (
	"crypto/subtle"
	"fmt"
	"time"

	"frlproxy/core/internal/exportimport"
	"frlproxy/core/internal/forwarder"
	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/mode"
	"frlproxy/core/internal/pkg/apperror"
	"frlproxy/core/internal/pkg/buildinfo"
	"frlproxy/core/internal/pkg/response"
	"frlproxy/core/internal/store"

	"github.com/gofiber/fiber/v2"
)

// Surface holds the dependencies the control endpoints need.
type Surface struct {
	store          *store.Store
	modeState      *mode.State
	licenseWorker  *forwarder.Worker
	logWorker      *forwarder.Worker
	sharedSecret   string
	startedAt      time.Time
}

func New(s *store.Store, modeState *mode.State, licenseWorker, logWorker *forwarder.Worker, cfg *config.ControlConfig) *Surface {
	return &Surface{
		store:         s,
		modeState:     modeState,
		licenseWorker: licenseWorker,
		logWorker:     logWorker,
		sharedSecret:  cfg.SharedSecret,
		startedAt:     time.Now().UTC(),
	}
}

// Register mounts status and control routes onto app.
func (s *Surface) Register(app *fiber.App) {
	app.Get("/status", s.handleStatusText)
	group := app.Group("/control", s.authGate)
	group.Get("/status", s.handleStatusJSON)
	group.Post("/mode", s.handleSetMode)
	group.Post("/forward", s.handleForward)
	group.Post("/export", s.handleExport)
	group.Post("/import", s.handleImport)
}

// authGate enforces the shared-secret header on /control/* routes (never
// on plain /status) when control.shared_secret is configured.
func (s *Surface) authGate(c *fiber.Ctx) error {
	if s.sharedSecret == "" {
		return c.Next()
	}
	provided := c.Get("X-Control-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.sharedSecret)) != 1 {
		return apperror.NewClient(apperror.CodeControlUnauthorized, "missing or invalid control secret", nil)
	}
	return c.Next()
}

func (s *Surface) handleStatusText(c *fiber.Ctx) error {
	ctx := c.UserContext()
	licensePending, _ := s.store.CountPending(ctx, store.TargetLicense)
	logPending, _ := s.store.CountPending(ctx, store.TargetLog)
	licenseLast, licenseOK, _ := s.store.LastForwardedAt(ctx, store.TargetLicense)
	logLast, logOK, _ := s.store.LastForwardedAt(ctx, store.TargetLog)

	body := fmt.Sprintf(
		"mode: %s\npending_license: %d\npending_log: %d\nlast_forward_license: %s\nlast_forward_log: %s\nversion: %s\n",
		s.modeState.Get(), licensePending, logPending, formatLast(licenseLast, licenseOK), formatLast(logLast, logOK), buildinfo.String(),
	)
	c.Set("Content-Type", "text/plain")
	return c.SendString(body)
}

func formatLast(t time.Time, ok bool) string {
	if !ok {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func (s *Surface) handleStatusJSON(c *fiber.Ctx) error {
	ctx := c.UserContext()
	licensePending, _ := s.store.CountPending(ctx, store.TargetLicense)
	logPending, _ := s.store.CountPending(ctx, store.TargetLog)
	licenseLast, licenseOK, _ := s.store.LastForwardedAt(ctx, store.TargetLicense)
	logLast, logOK, _ := s.store.LastForwardedAt(ctx, store.TargetLog)

	return response.New(c).OK(fiber.Map{
		"mode":    s.modeState.Get(),
		"version": buildinfo.Version,
		"pending": fiber.Map{"license": licensePending, "log": logPending},
		"last_forward": fiber.Map{
			"license": lastForwardField(licenseLast, licenseOK),
			"log":     lastForwardField(logLast, logOK),
		},
	})
}

func lastForwardField(t time.Time, ok bool) any {
	if !ok {
		return nil
	}
	return t.Format(time.RFC3339)
}

type setModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=connected isolated passthrough"`
}

func (s *Surface) handleSetMode(c *fiber.Ctx) error {
	var body setModeRequest
	if err := c.BodyParser(&body); err != nil {
		return apperror.NewClient(apperror.CodeMalformedBody, "malformed mode request body", err)
	}
	m, err := mode.Parse(body.Mode)
	if err != nil {
		return apperror.NewClient(apperror.CodeValidation, err.Error(), err)
	}
	s.modeState.Set(m)
	return response.New(c).OK(fiber.Map{"mode": m})
}

func (s *Surface) handleForward(c *fiber.Ctx) error {
	ctx := c.UserContext()
	licenseResult := s.licenseWorker.Drain(ctx)
	logResult := s.logWorker.Drain(ctx)

	return response.New(c).OK(fiber.Map{
		"license": fiber.Map{"forwarded": licenseResult.Forwarded, "failed": licenseResult.Failed, "remaining": licenseResult.Remaining},
		"log":     fiber.Map{"forwarded": logResult.Forwarded, "failed": logResult.Failed, "remaining": logResult.Remaining},
	})
}

func (s *Surface) handleExport(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var blob []byte
	var err error
	if c.Query("kind") == "responses" {
		blob, err = exportimport.ExportResponses(ctx, s.store)
	} else {
		blob, err = exportimport.ExportPending(ctx, s.store)
	}
	if err != nil {
		return apperror.NewInternal(apperror.CodeStoreUnavailable, "export failed", err)
	}
	c.Set("Content-Type", "application/x-ndjson")
	return c.Send(blob)
}

func (s *Surface) handleImport(c *fiber.Ctx) error {
	ctx := c.UserContext()
	count, err := exportimport.Import(ctx, s.store, c.Body())
	if err != nil {
		return apperror.NewClient(apperror.CodeMalformedBody, "import failed: "+err.Error(), err)
	}
	return response.New(c).OK(fiber.Map{"imported": count})
}
