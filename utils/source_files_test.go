package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSourceFiles(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"main.c", "lib/util.h", "lib/util.cpp", "README.md", ".git/x.c", "vendor/skip.c", "gen/out.c"} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("# generated\nvendor/\ngen/*.c\n"), 0o644))

	files, err := ListSourceFiles(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, _ := filepath.Rel(root, f)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"lib/util.cpp", "lib/util.h", "main.c"}, rel)
}

func TestGetIgnorePatterns_MissingFile(t *testing.T) {
	patterns, err := GetIgnorePatterns(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, patterns)
}
