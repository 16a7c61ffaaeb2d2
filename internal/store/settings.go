package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/storylineapp/storyline-core/internal/domain"
)

const keySettings = "settings:client"

// GetSettings retrieves the client settings.
// Returns default settings if none were saved yet.
func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	if err := ctx.Err(); err != nil {
		return domain.Settings{}, err
	}

	var settings domain.Settings

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySettings))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Return defaults if not set
			settings = domain.DefaultSettings()
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &settings)
		})
	})
	if err != nil {
		return domain.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings replaces the client settings and stamps UpdatedAt.
func (s *Store) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	settings.UpdatedAt = time.Now()
	if err := s.set([]byte(keySettings), settings); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}

	s.emit(SettingsUpdatedEvent{Settings: settings})
	return nil
}
