package make_cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/xxh3"

	"github.com/meysamhadeli/unitcache/models"
)

const flagStoreSchemaVersion uint16 = 1

// FlagStore persists extracted flags between sessions. Entries live under a
// directory named after the dump digest, so a regenerated database never
// sees flags from a previous one.
type FlagStore struct {
	mu  sync.RWMutex
	dir string
}

type flagPayload struct {
	Schema uint16
	Path   string
	Flags  []string
}

// NewFlagStore returns a store rooted at base for the dump generation digest.
func NewFlagStore(base string, digest uint64) *FlagStore {
	return &FlagStore{dir: filepath.Join(base, strconv.FormatUint(digest, 16))}
}

func (s *FlagStore) pathFor(file models.FileIdentity) string {
	return filepath.Join(s.dir, strconv.FormatUint(xxh3.HashString(file.Path), 16)+".mp")
}

// Put serializes and writes flags for file.
func (s *FlagStore) Put(file models.FileIdentity, flags models.FlagSet) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(s.dir, "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	err = msgpack.NewEncoder(f).Encode(&flagPayload{
		Schema: flagStoreSchemaVersion,
		Path:   file.Path,
		Flags:  flags,
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.pathFor(file)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Get reads flags for file. A missing or stale entry is not an error.
func (s *FlagStore) Get(file models.FileIdentity) (models.FlagSet, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.pathFor(file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload flagPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("failed to decode flags for %s: %w", file, err)
	}
	if payload.Schema != flagStoreSchemaVersion || payload.Path != file.Path {
		return nil, false, nil
	}
	if payload.Flags == nil {
		payload.Flags = []string{}
	}
	return payload.Flags, true, nil
}

// PruneOthers removes stores of every other dump generation under base.
func (s *FlagStore) PruneOthers() error {
	if s == nil {
		return nil
	}
	base := filepath.Dir(s.dir)
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || filepath.Join(base, e.Name()) == s.dir {
			continue
		}
		if err := os.RemoveAll(filepath.Join(base, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
