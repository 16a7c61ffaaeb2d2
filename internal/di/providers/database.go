package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/logger"
	"github.com/storylineapp/storyline-core/internal/search"
	"github.com/storylineapp/storyline-core/internal/sse"
	"github.com/storylineapp/storyline-core/internal/store"
	"github.com/storylineapp/storyline-core/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the library mirror with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the badger-backed library mirror.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	dbPath := filepath.Join(cfg.Data.Dir, "library")
	db, err := store.New(dbPath, log.Logger, sseHandle.Manager)
	if err != nil {
		return nil, err
	}

	log.Info("Library mirror opened", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}

// StatsHandle wraps the listening-stats database with shutdown capability.
type StatsHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StatsHandle) Shutdown() error {
	return h.Close()
}

// ProvideStatsStore provides the sqlite listening-stats database.
func ProvideStatsStore(i do.Injector) (*StatsHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Data.Dir, "stats.db")
	db, err := sqlite.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Stats database opened", "path", dbPath)

	return &StatsHandle{Store: db}, nil
}

// SearchIndexHandle wraps the bleve index with shutdown capability.
type SearchIndexHandle struct {
	*search.Index
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the full-text search index and hooks it
// into store writes.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	index, err := search.New(search.Options{
		DataPath: filepath.Join(cfg.Data.Dir, "search"),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	// Store writes fan out to the index from here on
	storeHandle.SetSearchIndexer(index)

	log.Info("Search index opened")

	return &SearchIndexHandle{Index: index}, nil
}
