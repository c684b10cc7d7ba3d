package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meysamhadeli/unitcache/config"
	"github.com/meysamhadeli/unitcache/models"
)

func TestParsePosition(t *testing.T) {
	pos, err := parsePosition("3:7")
	require.NoError(t, err)
	assert.Equal(t, models.Position{Line: 2, Column: 6}, pos)

	for _, bad := range []string{"3", "0:1", "1:0", "a:b", ""} {
		_, err := parsePosition(bad)
		assert.Error(t, err, bad)
	}
}

func TestHasMakefile(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, hasMakefile(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GNUmakefile"), []byte("all:\n"), 0o644))
	assert.True(t, hasMakefile(dir))
}

func TestFileArgResolvesAgainstWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	deps := &RootDependencies{
		Cwd:    filepath.Join(root, "src"),
		Config: &config.Config{ProjectRoot: root},
	}
	file, err := deps.fileArg("main.c")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "main.c"), file.Path)
	assert.Equal(t, "src/main.c", filepath.ToSlash(file.Rel()))
}

func TestFormatDiagnostic(t *testing.T) {
	root := t.TempDir()
	file, err := models.NewFileIdentity(root, "a.c")
	require.NoError(t, err)
	out := formatDiagnostic(models.Diagnostic{
		File:     file,
		Start:    models.Position{Line: 1, Column: 4},
		Severity: models.SeverityError,
		Message:  "expected ';'",
	})
	assert.Contains(t, out, "a.c:2:5:")
	assert.Contains(t, out, "expected ';'")
}
