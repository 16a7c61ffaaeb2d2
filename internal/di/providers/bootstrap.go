package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/auth"
	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/library"
	"github.com/storylineapp/storyline-core/internal/logger"
	"github.com/storylineapp/storyline-core/internal/store"
)

// localPairingID identifies the implicit pairing backing the CLI.
const localPairingID = "pair_local"

// EnsureLocalToken mints a device token for the loopback CLI and
// writes it to <dataDir>/cli.token. The CLI reads the file instead of
// going through the pairing handshake; it runs as the same user on
// the same machine, so possession of the data dir is the credential.
func EnsureLocalToken(i do.Injector) error {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)

	ctx := context.Background()

	pairing, err := storeHandle.GetPairing(ctx, localPairingID)
	if errors.Is(err, store.ErrNotFound) {
		pairing = &domain.Pairing{
			ID:         localPairingID,
			DeviceName: "local-cli",
			CreatedAt:  time.Now(),
			LastSeenAt: time.Now(),
		}
		if createErr := storeHandle.CreatePairing(ctx, pairing); createErr != nil && !errors.Is(createErr, store.ErrAlreadyExists) {
			return createErr
		}
	} else if err != nil {
		return err
	}

	token, err := tokens.GenerateDeviceToken(pairing)
	if err != nil {
		return err
	}

	tokenPath := filepath.Join(cfg.Data.Dir, "cli.token")
	if err := os.WriteFile(tokenPath, []byte(token+"\n"), 0o600); err != nil {
		return err
	}

	log.Debug("Local CLI token written", "path", tokenPath)
	return nil
}

// RunStartupSync performs the initial library work in the background:
// a books-directory scan, a remote catalog refresh, and a search
// reindex when the index is empty but the mirror is not.
func RunStartupSync(i do.Injector) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	lib := do.MustInvoke[*library.Service](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	transportHandle := do.MustInvoke[*TransportHandle](i)

	go func() {
		ctx := context.Background()

		if cfg.Library.ScanOnStart && cfg.Library.BooksDir != "" {
			summary, err := lib.Rescan(ctx)
			if err != nil {
				log.Warn("startup scan failed", "error", err)
			} else if summary.Created+summary.Updated+summary.Removed > 0 {
				log.Info("Startup scan complete",
					"created", summary.Created,
					"updated", summary.Updated,
					"removed", summary.Removed,
				)
			}
		}

		if !transportHandle.Offline() {
			if err := lib.RefreshFromServer(ctx); err != nil {
				log.Warn("startup catalog refresh failed", "error", err)
			}
		}

		reindexIfEmpty(ctx, log, storeHandle, indexHandle)
	}()
}

// reindexIfEmpty rebuilds the search index when a mapping change
// wiped it but the mirror still has books.
func reindexIfEmpty(ctx context.Context, log *logger.Logger, storeHandle *StoreHandle, indexHandle *SearchIndexHandle) {
	count, err := indexHandle.DocumentCount()
	if err != nil || count > 0 {
		return
	}

	books, err := storeHandle.ListBooks(ctx)
	if err != nil || len(books) == 0 {
		return
	}

	log.Info("Rebuilding empty search index", "books", len(books))
	if err := indexHandle.IndexBooks(ctx, books); err != nil {
		log.Warn("search reindex failed", "error", err)
	}
}
