package store

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// System keys sit outside the domain prefixes and carry process
// bookkeeping such as the schema version.

// GetSystemKey reads a system bookkeeping value. Missing keys return
// ErrNotFound.
func (s *Store) GetSystemKey(name string) (string, error) {
	v, closer, err := s.db.Get([]byte("system:" + name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}

// SetSystemKey writes a system bookkeeping value.
func (s *Store) SetSystemKey(name string, val []byte) error {
	return s.db.Set([]byte("system:"+name), val, pebble.Sync)
}

// DeleteSystemKey removes a system bookkeeping value.
func (s *Store) DeleteSystemKey(name string) error {
	return s.db.Delete([]byte("system:"+name), pebble.Sync)
}

// ReindexPairs rebuilds missing unordered-pair index rows from
// conversation metadata. Idempotent; returns the number of rows written.
func (s *Store) ReindexPairs() (int, error) {
	convs, err := s.ListConversations()
	if err != nil {
		return 0, err
	}
	written := 0
	for _, c := range convs {
		if len(c.Participants) != 2 {
			continue
		}
		pairKey := PairKey(c.Participants[0], c.Participants[1])
		if _, closer, err := s.db.Get([]byte(pairKey)); err == nil {
			closer.Close()
			continue
		} else if !errors.Is(err, pebble.ErrNotFound) {
			return written, err
		}
		if err := s.db.Set([]byte(pairKey), []byte(c.ID), pebble.Sync); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
