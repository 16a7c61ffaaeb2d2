package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/storylineapp/storyline-core/internal/domain"
)

const pairingPrefix = "pairing:"

// CreatePairing stores a new paired device.
func (s *Store) CreatePairing(ctx context.Context, pairing *domain.Pairing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(pairingPrefix + pairing.ID)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check pairing exists: %w", err)
	}
	if exists {
		return ErrAlreadyExists
	}

	if err := s.set(key, pairing); err != nil {
		return fmt.Errorf("create pairing: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "device paired",
			slog.String("id", pairing.ID),
			slog.String("device", pairing.DeviceName),
		)
	}
	return nil
}

// GetPairing retrieves a paired device by ID.
func (s *Store) GetPairing(ctx context.Context, id string) (*domain.Pairing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pairing domain.Pairing
	err := s.get([]byte(pairingPrefix+id), &pairing)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrPairingNotFound
		}
		return nil, fmt.Errorf("get pairing: %w", err)
	}
	return &pairing, nil
}

// ListPairings returns all paired devices, newest first.
func (s *Store) ListPairings(ctx context.Context) ([]*domain.Pairing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(pairingPrefix)
	var pairings []*domain.Pairing

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var pairing domain.Pairing
				if err := json.Unmarshal(val, &pairing); err != nil {
					return fmt.Errorf("unmarshal pairing: %w", err)
				}
				pairings = append(pairings, &pairing)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list pairings: %w", err)
	}

	sort.Slice(pairings, func(i, j int) bool {
		return pairings[i].CreatedAt.After(pairings[j].CreatedAt)
	})
	return pairings, nil
}

// TouchPairing updates a pairing's last-seen timestamp.
func (s *Store) TouchPairing(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(pairingPrefix + id)

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		var pairing domain.Pairing
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &pairing)
		}); err != nil {
			return err
		}

		pairing.LastSeenAt = time.Now()
		data, err := json.Marshal(pairing)
		if err != nil {
			return fmt.Errorf("marshal pairing: %w", err)
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrPairingNotFound
	}
	if err != nil {
		return fmt.Errorf("touch pairing: %w", err)
	}
	return nil
}

// DeletePairing revokes a paired device.
func (s *Store) DeletePairing(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(pairingPrefix + id)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check pairing exists: %w", err)
	}
	if !exists {
		return ErrPairingNotFound
	}

	if err := s.delete(key); err != nil {
		return fmt.Errorf("delete pairing: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "pairing revoked", slog.String("id", id))
	}
	return nil
}
