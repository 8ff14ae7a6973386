// Package badger provides an embedded BadgerDB implementation of the peak
// store port.
//
// Layout: "peak/<key>" holds an 8-byte big-endian sequence number followed by
// the value; "seq/<sequence>" maps back to the key so a prefix scan yields
// keys in insertion order.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
)

var (
	peakPrefix = []byte("peak/")
	seqPrefix  = []byte("seq/")
	seqCounter = []byte("meta/seq")
)

const (
	seqBandwidth    = 64
	conflictRetries = 3
)

// Store implements ports.PeakStore on top of BadgerDB.
type Store struct {
	db  *badgerdb.DB
	seq *badgerdb.Sequence
}

var _ ports.PeakStore = (*Store)(nil)

// Open opens (or creates) a store in dir. An empty dir opens an in-memory
// store.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger store: open: %w", err)
	}

	seq, err := db.GetSequence(seqCounter, seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger store: sequence: %w", err)
	}

	return &Store{db: db, seq: seq}, nil
}

// Close releases the leased sequence range and closes the database.
func (s *Store) Close() error {
	relErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger store: close: %w", err)
	}
	if relErr != nil {
		return fmt.Errorf("badger store: release sequence: %w", relErr)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(peakKey(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		_, value, err = splitEntry(raw)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger store: get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badgerdb.Txn) error {
			return s.put(txn, key, value)
		})
		if !errors.Is(err, badgerdb.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("badger store: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) put(txn *badgerdb.Txn, key string, value []byte) error {
	var seq uint64
	item, err := txn.Get(peakKey(key))
	switch {
	case err == nil:
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if seq, _, err = splitEntry(raw); err != nil {
			return err
		}
	case errors.Is(err, badgerdb.ErrKeyNotFound):
		if seq, err = s.seq.Next(); err != nil {
			return err
		}
		if err := txn.Set(indexKey(seq), []byte(key)); err != nil {
			return err
		}
	default:
		return err
	}

	entry := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(entry, seq)
	copy(entry[8:], value)
	return txn.Set(peakKey(key), entry)
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := []string{}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(seqPrefix); it.ValidForPrefix(seqPrefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			keys = append(keys, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger store: keys: %w", err)
	}
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(peakKey(key))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			seq, _, err := splitEntry(raw)
			if err != nil {
				return err
			}
			if err := txn.Delete(indexKey(seq)); err != nil {
				return err
			}
			if err := txn.Delete(peakKey(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger store: delete: %w", err)
	}
	return nil
}

func peakKey(key string) []byte {
	return append(append([]byte{}, peakPrefix...), key...)
}

func indexKey(seq uint64) []byte {
	k := make([]byte, len(seqPrefix)+8)
	copy(k, seqPrefix)
	binary.BigEndian.PutUint64(k[len(seqPrefix):], seq)
	return k
}

func splitEntry(raw []byte) (uint64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, fmt.Errorf("corrupt entry of %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw[:8]), raw[8:], nil
}
