// Package di provides dependency injection configuration for the Storyline daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/auth"
	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/di/providers"
	"github.com/storylineapp/storyline-core/internal/library"
	"github.com/storylineapp/storyline-core/internal/logger"
	"github.com/storylineapp/storyline-core/internal/reader"
	"github.com/storylineapp/storyline-core/internal/scanner"
	"github.com/storylineapp/storyline-core/internal/sse"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideIdentity)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideStatsStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Library layer
	do.Provide(injector, providers.ProvideScanner)
	do.Provide(injector, providers.ProvideCovers)
	do.Provide(injector, providers.ProvideTransportClient)
	do.Provide(injector, providers.ProvideLibrary)

	// Playback and sync
	do.Provide(injector, providers.ProvideSyncEngine)
	do.Provide(injector, providers.ProvidePlaybackEngine)
	do.Provide(injector, providers.ProvideRendererBridge)
	do.Provide(injector, providers.ProvideReader)

	// Workers
	do.Provide(injector, providers.ProvideFileWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns once the daemon is
// fully wired. This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.Identity](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.StatsHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Library
	_ = do.MustInvoke[*scanner.Scanner](injector)
	_ = do.MustInvoke[*providers.CoverServices](injector)
	_ = do.MustInvoke[*providers.TransportHandle](injector)
	_ = do.MustInvoke[*library.Service](injector)

	// Playback and sync
	_ = do.MustInvoke[*providers.SyncEngineHandle](injector)
	_ = do.MustInvoke[*providers.PlaybackEngineHandle](injector)
	_ = do.MustInvoke[*sse.Bridge](injector)
	_ = do.MustInvoke[*reader.Reconciler](injector)

	// Workers
	_ = do.MustInvoke[*providers.FileWatcherHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	// Mint the loopback token the CLI reads from the data dir
	if err := providers.EnsureLocalToken(injector); err != nil {
		return err
	}

	// Startup scan and remote refresh run in the background so the
	// control API is reachable immediately
	providers.RunStartupSync(injector)

	return nil
}
