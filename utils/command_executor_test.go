package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandExecutor_Output(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	out, err := NewCommandExecutor().Output(context.Background(), t.TempDir(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestCommandExecutor_Errors(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ce := NewCommandExecutor()

	_, err := ce.Output(context.Background(), "", "definitely-not-a-real-binary-xyz")
	assert.ErrorIs(t, err, ErrSpawn)

	_, err = ce.Output(context.Background(), "", "sh", "-c", "echo boom >&2; exit 3")
	assert.ErrorIs(t, err, ErrSubprocess)
	assert.Contains(t, err.Error(), "boom")
}

func TestCommandExecutor_RunToFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, NewCommandExecutor().RunToFile(context.Background(), dir, path, "sh", "-c", "printf 'a\\nb'"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", string(data))
}
