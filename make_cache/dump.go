package make_cache

import (
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
)

// Dump is a read-only, memory-mapped make database ("make -p -n -s" output).
// Its bytes never change after Open, so scans need no locking.
type Dump struct {
	path    string
	data    []byte
	digest  uint64
	release func() error
}

// OpenDump maps path and validates that it is non-empty UTF-8.
func OpenDump(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMmap, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMmap, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDump, path)
	}

	data, release, err := mapFile(f, int(info.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMmap, path, err)
	}
	if !utf8.Valid(data) {
		_ = release()
		return nil, fmt.Errorf("%w: %s", ErrInvalidDump, path)
	}

	return &Dump{
		path:    path,
		data:    data,
		digest:  xxh3.Hash(data),
		release: release,
	}, nil
}

func (d *Dump) Path() string {
	return d.path
}

// Digest identifies this generation of the database.
func (d *Dump) Digest() uint64 {
	return d.digest
}

func (d *Dump) Len() int {
	return len(d.data)
}

// Bytes exposes the mapped content. It must not be modified or retained
// past Close.
func (d *Dump) Bytes() []byte {
	return d.data
}

func (d *Dump) Close() error {
	if d.release == nil {
		return nil
	}
	err := d.release()
	d.release = nil
	d.data = nil
	return err
}
