package unsaved_files

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/task_scheduler"
)

const manifestName = "manifest"

var (
	ErrNoDraftsDir     = errors.New("no drafts directory configured")
	ErrCorruptManifest = errors.New("corrupt drafts manifest")
)

// DraftName is the on-disk name of the draft for uri: its SHA-1 hex digest.
func DraftName(uri string) string {
	sum := sha1.Sum([]byte(uri))
	return hex.EncodeToString(sum[:])
}

func (s *Store) draftPath(file models.FileIdentity) string {
	return filepath.Join(s.draftsDir, DraftName(file.URI()))
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.draftsDir, manifestName)
}

func (s *Store) removeDraft(file models.FileIdentity) {
	if s.draftsDir == "" {
		return
	}
	if err := os.Remove(s.draftPath(file)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove draft", s.logger.Args("file", file.String(), "error", err))
	}
}

// SaveAll writes every tracked file into the drafts directory followed by the
// manifest. The first failing write aborts the batch; drafts written before
// it stay on disk.
func (s *Store) SaveAll(ctx context.Context) *task_scheduler.Future[int] {
	if s.draftsDir == "" {
		return task_scheduler.Resolved(0, ErrNoDraftsDir)
	}
	files, _ := s.Snapshot()

	return task_scheduler.Go(s.sched, ctx, task_scheduler.CategoryIO, func(ctx context.Context) (int, error) {
		if err := os.MkdirAll(s.draftsDir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create drafts directory: %w", err)
		}

		var manifest bytes.Buffer
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return i, err
			}
			path := s.draftPath(f.File)
			if err := os.WriteFile(path, f.Content, 0o644); err != nil {
				return i, fmt.Errorf("failed to save draft for %s: %w", f.File, err)
			}
			s.rememberDraft(f, path)
			manifest.WriteString(f.File.URI())
			manifest.WriteByte('\n')
		}

		if err := writeFileAtomic(s.manifestPath(), manifest.Bytes()); err != nil {
			return len(files), fmt.Errorf("failed to write drafts manifest: %w", err)
		}
		s.logger.Debug("saved drafts", s.logger.Args("count", len(files), "dir", s.draftsDir))
		return len(files), nil
	})
}

// rememberDraft records the draft location on the live entry if it still
// holds the content that was written.
func (s *Store) rememberDraft(f models.UnsavedFile, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(f.File); i >= 0 && s.files[i].Sequence == f.Sequence {
		s.files[i].TempPath = path
	}
}

// RestoreAll loads drafts listed in the manifest back into the store. A
// missing manifest restores nothing; a malformed one fails. Drafts whose file
// vanished or whose content cannot be read are skipped.
func (s *Store) RestoreAll(ctx context.Context) *task_scheduler.Future[int] {
	if s.draftsDir == "" {
		return task_scheduler.Resolved(0, ErrNoDraftsDir)
	}

	return task_scheduler.Go(s.sched, ctx, task_scheduler.CategoryIO, func(ctx context.Context) (int, error) {
		data, err := os.ReadFile(s.manifestPath())
		if os.IsNotExist(err) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read drafts manifest: %w", err)
		}

		files, err := parseManifest(s.projectRoot, data)
		if err != nil {
			return 0, err
		}

		restored := 0
		// manifest lists most recent first; replay oldest first so recency survives
		for i := len(files) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				return restored, err
			}
			f := files[i]
			if _, err := os.Stat(f.Path); err != nil {
				s.logger.Info("skipping draft for missing file", s.logger.Args("file", f.String(), "error", err))
				continue
			}
			content, err := os.ReadFile(s.draftPath(f))
			if err != nil {
				s.logger.Warn("skipping unreadable draft", s.logger.Args("file", f.String(), "error", err))
				continue
			}
			s.Update(f, content)
			restored++
		}
		return restored, nil
	})
}

func parseManifest(root string, data []byte) ([]models.FileIdentity, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrCorruptManifest)
	}

	var files []models.FileIdentity
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		uri := strings.TrimSpace(scanner.Text())
		if uri == "" {
			continue
		}
		f, err := models.FileIdentityFromURI(root, uri)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptManifest, line, err)
		}
		files = append(files, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	return files, nil
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
