package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/library"
	"github.com/storylineapp/storyline-core/internal/logger"
	"github.com/storylineapp/storyline-core/internal/watcher"
)

// FileWatcherHandle wraps the file watcher with shutdown capability.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideFileWatcher provides the books-directory watcher. Settled
// adds and changes import in place; removals trigger a reconciling
// rescan.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	lib := do.MustInvoke[*library.Service](i)

	if !cfg.Library.Watch || cfg.Library.BooksDir == "" {
		log.Info("File watching disabled")
		return &FileWatcherHandle{}, nil
	}

	w, err := watcher.New(log.Logger, watcher.Options{IgnoreHidden: true})
	if err != nil {
		return nil, err
	}

	if err := w.Watch(cfg.Library.BooksDir); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("File watcher error", "error", err)
		}
	}()

	go func() {
		for {
			select {
			case event := <-w.Events():
				handleBookEvent(ctx, lib, log, event)
			case err := <-w.Errors():
				log.Warn("file watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("File watcher started", "path", cfg.Library.BooksDir)

	return &FileWatcherHandle{
		Watcher: w,
		cancel:  cancel,
	}, nil
}

func handleBookEvent(ctx context.Context, lib *library.Service, log *logger.Logger, event watcher.Event) {
	switch event.Type {
	case watcher.EventAdded, watcher.EventModified:
		book, err := lib.ImportLocalBook(ctx, event.Path)
		if err != nil {
			// Partial copies and stray files land here; the next
			// settled event or rescan picks them up.
			log.Debug("import skipped",
				"path", event.Path,
				"error", err,
			)
			return
		}
		log.Info("Imported book from watch event", "book_id", book.ID, "title", book.Title)
	case watcher.EventRemoved:
		summary, err := lib.Rescan(ctx)
		if err != nil {
			log.Warn("rescan after removal failed", "error", err)
			return
		}
		if summary.Removed > 0 {
			log.Info("Removed books after watch event", "count", summary.Removed)
		}
	}
}
