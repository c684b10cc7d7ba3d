// Package unsaved_files tracks editor content that has not been written to
// disk yet, stamping every change with a monotonically increasing sequence.
package unsaved_files

import (
	"os"
	"sync"

	"github.com/pterm/pterm"

	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/task_scheduler"
	"github.com/meysamhadeli/unitcache/utils"
)

type Options struct {
	// ProjectRoot resolves file identities read back from the drafts manifest.
	ProjectRoot string
	// DraftsDir holds persisted drafts. Empty disables persistence.
	DraftsDir string
	Scheduler *task_scheduler.Scheduler
	Logger    *pterm.Logger
}

// Store is the single source of truth for in-editor content. One Store
// exists per project session and owns that session's sequence counter.
type Store struct {
	mu       sync.Mutex
	files    []*models.UnsavedFile // most recently updated first
	sequence int64

	projectRoot string
	draftsDir   string
	sched       *task_scheduler.Scheduler
	logger      *pterm.Logger
}

func NewStore(opts Options) *Store {
	sched := opts.Scheduler
	if sched == nil {
		sched = task_scheduler.New(nil, opts.Logger)
	}
	return &Store{
		projectRoot: opts.ProjectRoot,
		draftsDir:   opts.DraftsDir,
		sched:       sched,
		logger:      utils.LoggerOr(opts.Logger),
	}
}

func (s *Store) indexOfLocked(file models.FileIdentity) int {
	for i, f := range s.files {
		if f.File == file {
			return i
		}
	}
	return -1
}

// Update records content for file and bumps the sequence. A nil content
// means the buffer matches disk again: the entry and any draft are dropped.
// It returns the new sequence.
func (s *Store) Update(file models.FileIdentity, content []byte) int64 {
	s.mu.Lock()
	s.sequence++
	seq := s.sequence

	i := s.indexOfLocked(file)
	if content == nil {
		if i >= 0 {
			s.files = append(s.files[:i], s.files[i+1:]...)
		}
		s.mu.Unlock()
		s.removeDraft(file)
		return seq
	}

	entry := &models.UnsavedFile{
		File:     file,
		Content:  append([]byte{}, content...),
		Sequence: seq,
	}
	if i >= 0 {
		entry.TempPath = s.files[i].TempPath
		s.files = append(s.files[:i], s.files[i+1:]...)
	}
	s.files = append([]*models.UnsavedFile{entry}, s.files...)
	s.mu.Unlock()
	return seq
}

// Get returns a private copy of the unsaved content for file.
func (s *Store) Get(file models.FileIdentity) (models.UnsavedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(file); i >= 0 {
		return s.files[i].Clone(), true
	}
	return models.UnsavedFile{}, false
}

func (s *Store) Contains(file models.FileIdentity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(file) >= 0
}

// Sequence returns the current counter value.
func (s *Store) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Snapshot copies every tracked file together with the sequence they
// represent. Both are captured under the same lock.
func (s *Store) Snapshot() ([]models.UnsavedFile, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UnsavedFile, len(s.files))
	for i, f := range s.files {
		out[i] = f.Clone()
	}
	return out, s.sequence
}

// Clear drops every entry as if each buffer had been reverted.
func (s *Store) Clear() {
	s.mu.Lock()
	files := make([]models.FileIdentity, len(s.files))
	for i, f := range s.files {
		files[i] = f.File
	}
	s.mu.Unlock()

	for _, f := range files {
		s.Update(f, nil)
	}
	if s.draftsDir != "" {
		if err := os.Remove(s.manifestPath()); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove drafts manifest", s.logger.Args("error", err))
		}
	}
}
