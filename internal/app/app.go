// Package app assembles the server: storage, presence, hub, the chat
// service, both transports and the retention scheduler.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"chatsync/internal/retention"
	"chatsync/pkg/auth"
	"chatsync/pkg/banner"
	"chatsync/pkg/chat"
	"chatsync/pkg/config"
	"chatsync/pkg/hub"
	"chatsync/pkg/logger"
	"chatsync/pkg/migrate"
	"chatsync/pkg/presence"
	"chatsync/pkg/sensor"
	"chatsync/pkg/state"
	"chatsync/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	st   *store.Store
	hub  *hub.Hub
	reg  *presence.Registry
	svc  *chat.Service
	auth *auth.Service
	sns  *sensor.Sensor

	cancelRetention context.CancelFunc
	srv             *http.Server
}

// New opens the store and wires the service graph. It does not start the
// HTTP server; call Run to start it and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if _, err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("invalid db path %s: %w", eff.DBPath, err)
	}
	st, err := store.Open(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}
	if err := migrate.Sync(st, version); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, st: st}
	a.hub = hub.New(eff.Config.Live.SendBuffer)
	a.reg = presence.New(nil, st)
	a.svc = chat.New(st, a.hub, a.reg, eff.Config.History.PageSize)
	// presence edges fan out through the service, which needs the registry;
	// close the cycle after both exist
	a.reg.SetEdgeFunc(a.svc.PresenceEdge)
	a.auth = auth.New(st, time.Duration(eff.Config.Security.TokenTTL))
	a.sns = sensor.New(eff.DBPath, sensor.DefaultConfig())
	return a, nil
}

// Run starts retention and the HTTP server, and blocks until ctx is
// canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()
	a.sns.Start()

	cancel, err := retention.Start(ctx, a.st, a.eff.Config.Retention)
	if err != nil {
		return err
	}
	a.cancelRetention = cancel

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, retention and the store.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancelRetention != nil {
		a.cancelRetention()
	}
	if a.sns != nil {
		a.sns.Stop()
	}
	var err error
	if a.srv != nil {
		err = a.srv.Shutdown(ctx)
	}
	if cerr := a.st.Close(); cerr != nil && err == nil {
		err = cerr
	}
	logger.Info("server_stopped")
	return err
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}
