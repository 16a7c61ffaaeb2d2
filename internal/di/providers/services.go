package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/audio"
	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/library"
	"github.com/storylineapp/storyline-core/internal/logger"
	"github.com/storylineapp/storyline-core/internal/media/covers"
	"github.com/storylineapp/storyline-core/internal/persist"
	"github.com/storylineapp/storyline-core/internal/playback"
	"github.com/storylineapp/storyline-core/internal/progress"
	"github.com/storylineapp/storyline-core/internal/ratelimit"
	"github.com/storylineapp/storyline-core/internal/reader"
	"github.com/storylineapp/storyline-core/internal/scanner"
	"github.com/storylineapp/storyline-core/internal/sse"
	"github.com/storylineapp/storyline-core/internal/transport"
)

// scanWorkers bounds concurrent file probing during a rescan.
const scanWorkers = 4

// ProvideScanner provides the local-book scanner.
func ProvideScanner(i do.Injector) (*scanner.Scanner, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return scanner.New(scanWorkers, log.Logger), nil
}

// CoverServices bundles the cover cache with its downloader.
type CoverServices struct {
	Cache      *covers.Cache
	Downloader *covers.Downloader
}

// ProvideCovers provides the cover cache and downloader.
func ProvideCovers(i do.Injector) (*CoverServices, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	cache, err := covers.NewCache(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}

	return &CoverServices{
		Cache:      cache,
		Downloader: covers.NewDownloader(cache, log.Logger),
	}, nil
}

// TransportHandle wraps the media-server client. The client has no
// goroutines of its own; the handle exists so observers registered
// here have a stable home.
type TransportHandle struct {
	*transport.Client
}

// ProvideTransportClient provides the media-server client. An empty
// remote URL yields a permanently offline client.
func ProvideTransportClient(i do.Injector) (*TransportHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	client := transport.New(cfg.Remote.URL, cfg.Remote.Token, transport.Options{
		UploadRPS:   cfg.Remote.UploadRPS,
		UploadBurst: cfg.Remote.UploadBurst,
	}, log.Logger)

	// Connection transitions go straight to connected companions
	manager := sseHandle.Manager
	client.SetStatusCallback(func(status domain.ConnectionStatus) {
		manager.Emit(sse.NewConnectionStatusEvent(status))
	})

	if cfg.Remote.URL == "" {
		log.Info("No media server configured, running offline")
	} else {
		log.Info("Media server configured", "url", cfg.Remote.URL)
	}

	return &TransportHandle{Client: client}, nil
}

// ProvideLibrary provides the library service and registers it as the
// transport's catalog consumer.
func ProvideLibrary(i do.Injector) (*library.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	coverSvcs := do.MustInvoke[*CoverServices](i)
	transportHandle := do.MustInvoke[*TransportHandle](i)
	fileScanner := do.MustInvoke[*scanner.Scanner](i)

	svc := library.New(library.Options{
		Store:      storeHandle.Store,
		Index:      indexHandle.Index,
		Scanner:    fileScanner,
		Client:     transportHandle.Client,
		CoverCache: coverSvcs.Cache,
		Downloader: coverSvcs.Downloader,
		BooksDir:   cfg.Library.BooksDir,
		Logger:     log.Logger,
	})

	transportHandle.SetLibraryHandler(svc)

	return svc, nil
}

// SyncEngineHandle wraps the position sync engine with its replay
// loop context.
type SyncEngineHandle struct {
	*progress.Engine
	limiter *ratelimit.KeyedRateLimiter
	cancel  context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SyncEngineHandle) Shutdown() error {
	h.cancel()
	h.Engine.Stop()
	h.limiter.Stop()
	return nil
}

// ProvideSyncEngine provides the position sync engine. The library is
// built first and attached as the engine's catalog; the engine is then
// attached back as the library's position sink.
func ProvideSyncEngine(i do.Injector) (*SyncEngineHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	transportHandle := do.MustInvoke[*TransportHandle](i)
	lib := do.MustInvoke[*library.Service](i)

	fileStore, err := persist.NewFileStore(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	limiter := ratelimit.New(cfg.Remote.UploadRPS, cfg.Remote.UploadBurst)

	engine := progress.NewEngine(ctx, progress.Options{
		Transport:    transportHandle.Client,
		Catalog:      lib,
		Persistence:  fileStore,
		Limiter:      limiter,
		SyncInterval: cfg.Remote.SyncInterval,
		Logger:       log.Logger,
	})
	engine.Start(ctx)

	lib.SetPositionSink(engine)

	// Sync transitions go straight to connected companions
	manager := sseHandle.Manager
	engine.Subscribe(func(ev progress.SyncEvent) {
		manager.Emit(sse.NewSyncUpdateEvent(ev))
	})

	log.Info("Sync engine started", "interval", cfg.Remote.SyncInterval)

	return &SyncEngineHandle{Engine: engine, limiter: limiter, cancel: cancel}, nil
}

// PlaybackEngineHandle wraps the playback engine with shutdown capability.
type PlaybackEngineHandle struct {
	*playback.Engine
}

// Shutdown implements do.Shutdownable.
func (h *PlaybackEngineHandle) Shutdown() error {
	return h.Engine.Close()
}

// ProvidePlaybackEngine provides the playback engine with the user's
// persisted rate and volume restored.
func ProvidePlaybackEngine(i do.Injector) (*PlaybackEngineHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	cfg := do.MustInvoke[*config.Config](i)

	settings, err := storeHandle.GetSettings(context.Background())
	if err != nil {
		return nil, err
	}

	// Config defaults apply until the user saves settings once
	rate, volume := settings.PlaybackRate, settings.Volume
	if settings.UpdatedAt.IsZero() {
		rate, volume = cfg.Playback.DefaultRate, cfg.Playback.DefaultVolume
	}

	engine := playback.NewEngine(&audio.ClockOpener{}, log.Logger, playback.Options{
		InitialRate:   rate,
		InitialVolume: volume,
	})

	// Snapshots go straight to connected companions
	manager := sseHandle.Manager
	engine.Subscribe(func(snap domain.PlaybackSnapshot) {
		manager.Emit(sse.NewSnapshotEvent(snap))
	})

	return &PlaybackEngineHandle{Engine: engine}, nil
}

// ProvideRendererBridge provides the renderer query bridge.
func ProvideRendererBridge(i do.Injector) (*sse.Bridge, error) {
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	return sse.NewBridge(sseHandle.Manager, log.Logger), nil
}

// ProvideReader provides the view/audio reconciler.
func ProvideReader(i do.Injector) (*reader.Reconciler, error) {
	log := do.MustInvoke[*logger.Logger](i)
	identity := do.MustInvoke[*Identity](i)
	engineHandle := do.MustInvoke[*PlaybackEngineHandle](i)
	bridge := do.MustInvoke[*sse.Bridge](i)
	syncHandle := do.MustInvoke[*SyncEngineHandle](i)
	statsHandle := do.MustInvoke[*StatsHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	settings, err := storeHandle.GetSettings(context.Background())
	if err != nil {
		return nil, err
	}

	return reader.New(
		engineHandle.Engine,
		bridge,
		syncHandle.Engine,
		statsHandle.Store,
		settings.SyncEnabled,
		reader.Options{DeviceID: identity.ID},
		log.Logger,
	), nil
}
