package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/api"
	"github.com/storylineapp/storyline-core/internal/auth"
	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/library"
	"github.com/storylineapp/storyline-core/internal/logger"
	"github.com/storylineapp/storyline-core/internal/mdns"
	"github.com/storylineapp/storyline-core/internal/reader"
	"github.com/storylineapp/storyline-core/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the control API server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	identity := do.MustInvoke[*Identity](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	bridge := do.MustInvoke[*sse.Bridge](i)

	services := &api.Services{
		Playback: do.MustInvoke[*PlaybackEngineHandle](i).Engine,
		Reader:   do.MustInvoke[*reader.Reconciler](i),
		Sync:     do.MustInvoke[*SyncEngineHandle](i).Engine,
		Library:  do.MustInvoke[*library.Service](i),
		Remote:   do.MustInvoke[*TransportHandle](i).Client,
		Tokens:   do.MustInvoke[*auth.TokenService](i),
		Stats:    do.MustInvoke[*StatsHandle](i).Store,
	}

	handler := api.NewServer(
		storeHandle.Store,
		services,
		sseHandle.Manager,
		bridge,
		identity.ID,
		identity.Name,
		log.Logger,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("Control API starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Control API error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.started && h.Service != nil {
		h.Stop()
	}
	return nil
}

// ProvideMDNSService provides the mDNS advertisement service.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	identity := do.MustInvoke[*Identity](i)

	if !cfg.Discovery.Advertise {
		log.Info("mDNS advertisement disabled by configuration")
		return &MDNSServiceHandle{Service: nil, started: false}, nil
	}

	svc := mdns.NewService(log.Logger)

	port := 7575
	if _, err := fmt.Sscanf(cfg.Server.Port, "%d", &port); err != nil {
		log.Warn("Failed to parse server port for mDNS, using default", "port", cfg.Server.Port)
	}

	if err := svc.Start(identity.ID, identity.Name, port); err != nil {
		// Non-fatal: the daemon works without mDNS (containers, VPNs)
		log.Warn("mDNS advertisement unavailable", "error", err)
		return &MDNSServiceHandle{Service: svc, started: false}, nil
	}

	log.Info("Advertising control API via mDNS", "instance", identity.Name, "port", port)

	return &MDNSServiceHandle{Service: svc, started: true}, nil
}
