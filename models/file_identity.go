package models

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var (
	ErrNoProject       = errors.New("no project root configured")
	ErrNotLocal        = errors.New("file is not local")
	ErrInvalidFilename = errors.New("invalid filename")
)

// FileIdentity identifies a project source file independent of its content.
// Root and Path are cleaned absolute paths, so two identities compare equal
// iff they name the same on-disk file.
type FileIdentity struct {
	Root string
	Path string
}

// NewFileIdentity builds an identity for path inside root. A relative path
// is resolved against root.
func NewFileIdentity(root, path string) (FileIdentity, error) {
	if root == "" {
		return FileIdentity{}, ErrNoProject
	}
	if path == "" || strings.ContainsRune(path, 0) {
		return FileIdentity{}, fmt.Errorf("%w: %q", ErrInvalidFilename, path)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return FileIdentity{}, fmt.Errorf("%w: %v", ErrNoProject, err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	return FileIdentity{Root: filepath.Clean(absRoot), Path: filepath.Clean(path)}, nil
}

// FileIdentityFromURI parses a file:// URI produced by URI.
func FileIdentityFromURI(root, uri string) (FileIdentity, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return FileIdentity{}, fmt.Errorf("%w: %v", ErrInvalidFilename, err)
	}
	if u.Scheme != "file" {
		return FileIdentity{}, fmt.Errorf("%w: %s", ErrNotLocal, uri)
	}
	if u.Path == "" {
		return FileIdentity{}, fmt.Errorf("%w: %s", ErrInvalidFilename, uri)
	}
	return NewFileIdentity(root, filepath.FromSlash(u.Path))
}

// URI returns the file:// form of the identity.
func (f FileIdentity) URI() string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(f.Path)}).String()
}

// Rel returns the path relative to the project root, or the absolute path
// when the file lives outside of it.
func (f FileIdentity) Rel() string {
	rel, err := filepath.Rel(f.Root, f.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return f.Path
	}
	return rel
}

func (f FileIdentity) Base() string {
	return filepath.Base(f.Path)
}

func (f FileIdentity) IsZero() bool {
	return f.Path == ""
}

func (f FileIdentity) String() string {
	return f.Rel()
}
