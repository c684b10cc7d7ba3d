package utils

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// IgnoreFileName lists extra path patterns, one per line, to skip when
// walking a project.
const IgnoreFileName = ".unitcache-ignore"

type ignoreCacheEntry struct {
	patterns []string
	modTime  time.Time
}

var (
	ignoreCache = make(map[string]*ignoreCacheEntry)
	ignoreMutex sync.RWMutex
)

var sourceExtensions = map[string]bool{
	".c": true, ".h": true,
	".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".hh": true, ".hpp": true, ".hxx": true,
}

// IsSourceFile reports whether path has a C or C++ source extension.
func IsSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

// GetIgnorePatterns reads the project's ignore file. A missing file yields no
// patterns. Results are cached until the file's modification time changes.
func GetIgnorePatterns(root string) ([]string, error) {
	ignorePath := filepath.Join(root, IgnoreFileName)

	fileInfo, err := os.Stat(ignorePath)
	if os.IsNotExist(err) {
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("error checking %s: %w", IgnoreFileName, err)
	}

	ignoreMutex.RLock()
	if cached, exists := ignoreCache[ignorePath]; exists && fileInfo.ModTime().Equal(cached.modTime) {
		ignoreMutex.RUnlock()
		return cached.patterns, nil
	}
	ignoreMutex.RUnlock()

	f, err := os.Open(ignorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, filepath.FromSlash(strings.TrimSuffix(line, "/")))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}

	ignoreMutex.Lock()
	ignoreCache[ignorePath] = &ignoreCacheEntry{patterns: patterns, modTime: fileInfo.ModTime()}
	ignoreMutex.Unlock()

	return patterns, nil
}

// IsDefaultIgnored reports whether any component of a relative path is a
// directory no project walk should enter.
func IsDefaultIgnored(path string) bool {
	ignored := []string{".git", ".svn", ".hg", ".cache", ".idea", ".vscode", "node_modules", "_build", ".deps", ".libs"}
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		for _, name := range ignored {
			if part == name {
				return true
			}
		}
	}
	return false
}

func isIgnored(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
		if strings.HasPrefix(rel, pattern+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ListSourceFiles returns every C/C++ source below root, sorted, skipping
// default-ignored directories and the project's ignore patterns.
func ListSourceFiles(root string) ([]string, error) {
	patterns, err := GetIgnorePatterns(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if IsDefaultIgnored(rel) || isIgnored(rel, patterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsSourceFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
