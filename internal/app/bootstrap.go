// Package app wires every component — config, logger, telemetry, store,
// cache, upstream clients, handler, control surface, forwarder — into a
// running proxy instance.
package app

import (
	"context"
	"fmt"
	"net/http"

	"frlproxy/core/internal/cache"
	"frlproxy/core/internal/control"
	"frlproxy/core/internal/forwarder"
	"frlproxy/core/internal/handler"
	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/infrastructure/httpserver"
	"frlproxy/core/internal/infrastructure/httpserver/middleware"
	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/infrastructure/telemetry/metrics"
	"frlproxy/core/internal/infrastructure/telemetry/tracer"
	"frlproxy/core/internal/mode"
	"frlproxy/core/internal/pkg/apperror"
	"frlproxy/core/internal/store"
	"frlproxy/core/internal/upstream"

	"github.com/gofiber/fiber/v2"
)

// App is a fully wired proxy instance.
type App struct {
	cfg    *config.Config
	log    logger.Logger
	trc    tracer.Tracer
	met    metrics.Metrics
	store  *store.Store
	server *httpserver.Server

	modeState     *mode.State
	licenseWorker *forwarder.Worker
	logWorker     *forwarder.Worker

	cancelForwarders context.CancelFunc
}

// New builds every component from cfg but does not yet start serving or
// forwarding; call Run for that.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(cfg)

	env := cfg.App.Version
	trc, err := tracer.New(&cfg.Telemetry, env)
	if err != nil {
		return nil, apperror.NewInternal(apperror.CodeConfigError, "failed to initialize tracer", err)
	}
	met, err := metrics.New(&cfg.Telemetry)
	if err != nil {
		return nil, apperror.NewInternal(apperror.CodeConfigError, "failed to initialize metrics", err)
	}

	s, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return nil, apperror.NewInternal(apperror.CodeConfigError, "failed to open durable store", err)
	}

	accelerator := cache.NewRedisAccelerator(&cfg.Cache.Redis, log)
	cachePolicy := cache.New(s, accelerator)

	licenseCli, err := upstream.New(cfg.FRL.RemoteHost, &cfg.Upstream, cfg.SSL.InsecureSkip)
	if err != nil {
		return nil, apperror.NewInternal(apperror.CodeConfigError, "failed to build license upstream client", err)
	}
	logCli, err := upstream.New(cfg.Log.RemoteHost, &cfg.Upstream, cfg.SSL.InsecureSkip)
	if err != nil {
		return nil, apperror.NewInternal(apperror.CodeConfigError, "failed to build log upstream client", err)
	}

	initialMode, err := mode.Parse(cfg.Mode)
	if err != nil {
		return nil, apperror.NewInternal(apperror.CodeConfigError, err.Error(), err)
	}
	modeState := mode.New(initialMode)

	h := handler.New(s, cachePolicy, licenseCli, logCli, modeState, log)

	licenseWorker := forwarder.NewWorker(store.TargetLicense, s, licenseCli, cachePolicy, modeState, log, met)
	logWorker := forwarder.NewWorker(store.TargetLog, s, logCli, nil, modeState, log, met)

	srv := httpserver.New(cfg, log)
	telemetry := middleware.NewTelemetry(log, trc, met)
	srv.App.Use(middleware.RequestID())
	srv.App.Use(telemetry.Trace())
	srv.App.Use(telemetry.Metrics())
	srv.App.Use(telemetry.AccessLog())

	ctrl := control.New(s, modeState, licenseWorker, logWorker, &cfg.Control)
	ctrl.Register(srv.App)

	srv.App.Use(func(c *fiber.Ctx) error {
		return proxyRoute(c, h)
	})

	return &App{
		cfg: cfg, log: log, trc: trc, met: met, store: s, server: srv,
		modeState: modeState, licenseWorker: licenseWorker, logWorker: logWorker,
	}, nil
}

func proxyRoute(c *fiber.Ctx, h *handler.Handler) error {
	headers := map[string]string{}
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	result, err := h.Handle(c.UserContext(), handler.Inbound{
		Method:    c.Method(),
		Path:      c.OriginalURL(),
		Headers:   headers,
		Body:      c.Body(),
		RequestID: c.Get(fiber.HeaderXRequestID),
	})
	if err != nil {
		return err
	}

	for k, v := range result.Headers {
		c.Set(k, v)
	}
	status := result.Status
	if status == 0 {
		status = http.StatusOK
	}
	if len(result.Body) == 0 && status == http.StatusNoContent {
		return c.SendStatus(status)
	}
	return c.Status(status).Send(result.Body)
}

// Run starts the HTTP server and the two forwarder workers, blocking
// until the server stops.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelForwarders = cancel

	go a.licenseWorker.Run(ctx)
	go a.logWorker.Run(ctx)

	a.log.Info(fmt.Sprintf("proxy starting in %s mode", a.modeState.Get()))
	return a.server.Start()
}

// Shutdown drains the HTTP listener, stops the forwarders, and closes the
// durable store.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancelForwarders != nil {
		a.cancelForwarders()
	}
	if err := a.server.Stop(ctx); err != nil {
		a.log.WithField("error", err.Error()).Error("error during http shutdown")
	}
	if err := a.trc.Close(); err != nil {
		a.log.WithField("error", err.Error()).Warn("error closing tracer")
	}
	if err := a.met.Close(); err != nil {
		a.log.WithField("error", err.Error()).Warn("error closing metrics")
	}
	return a.store.Close()
}

// Store exposes the durable store. The export/import/clear subcommands do
// not use it; they open the store themselves without building an App.
func (a *App) Store() *store.Store { return a.store }

// ModeState exposes the mode holder.
func (a *App) ModeState() *mode.State { return a.modeState }

// LicenseWorker exposes the license forwarder for the `forward` CLI subcommand.
func (a *App) LicenseWorker() *forwarder.Worker { return a.licenseWorker }

// LogWorker exposes the log forwarder for the `forward` CLI subcommand.
func (a *App) LogWorker() *forwarder.Worker { return a.logWorker }
