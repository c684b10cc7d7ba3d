package make_cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meysamhadeli/unitcache/models"
)

func TestNormalizeFlags_KeepsParsingFlags(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "src")
	flags := NormalizeFlags([]string{"-DFOO", "-Ibar", "-std=c11", "-pthread"}, dir)
	assert.Equal(t, models.FlagSet{"-DFOO", "-I" + filepath.Join(dir, "bar"), "-std=c11"}, flags)
}

func TestNormalizeFlags_SeparateArguments(t *testing.T) {
	flags := NormalizeFlags([]string{"-I", "/abs/inc", "-D", "X=1", "-x", "c++", "-o", "out.o", "-f", "-W", "-m64", "-MD"}, "/b")
	assert.Equal(t, models.FlagSet{"-I/abs/inc", "-DX=1", "-xc++", "-m64"}, flags)
}

func TestParseCompilerArgs_Idempotent(t *testing.T) {
	out := []byte("libtool: compile: __unitcache_cc__ -DA='\"q u\"' -I../inc -O2 -Wextra -c a.c\n")
	args, cxx, ok := FindCompilerLine(out)
	require.True(t, ok)
	assert.False(t, cxx)

	first, err := ParseCompilerArgs(args, cxx, "/build/sub")
	require.NoError(t, err)
	second, err := ParseCompilerArgs(args, cxx, "/build/sub")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, models.FlagSet{`-DA="q u"`, "-I" + filepath.Join("/build/sub", "../inc"), "-Wextra"}, first)
}

func TestParseCompilerArgs_UnbalancedQuote(t *testing.T) {
	_, err := ParseCompilerArgs(` -DX="oops`, false, "/b")
	assert.Error(t, err)
}

func TestFindCompilerLine_NoSentinel(t *testing.T) {
	_, _, ok := FindCompilerLine([]byte("gcc -c a.c\nld a.o\n"))
	assert.False(t, ok)
}
