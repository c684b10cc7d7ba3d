package make_cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/utils"
)

const testDatabase = `# GNU Make 4.3
# Variables
subdir = .
top_srcdir = .
CLEANFILES := util.c

# Files
main.o: main.c config.h
	$(COMPILE) -c main.c

subdir = src
libcore_la-util.lo: util.c util.h
libcore_la-util.lo: util.c util.h
unittest-util.o: ../src/util.c
.PHONY: util.c
# util.c is mentioned in a comment
libutility.o: libutil.c
`

const utilCompileOutput = `echo "  CC       libcore_la-util.lo"
/bin/bash ../libtool  --tag=CC   --mode=compile __unitcache_cc__ -DHAVE_CONFIG_H -I. -I.. -I "/usr/include/glib 2.0" -pthread -O2 -g -std=gnu11 -Wall -fPIC -MT libcore_la-util.lo -MD -MP -c -o libcore_la-util.lo util.c
mv -f .deps/libcore_la-util.Tpo .deps/libcore_la-util.Plo
`

type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	dump    []byte
	calls   []string
	gates   map[string]chan struct{}
	started chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{
			"cc -print-file-name=include": "/usr/lib/gcc/x86_64-linux-gnu/13/include\n",
		},
		errs: map[string]error{},
		dump: []byte(testDatabase),
	}
}

func (r *fakeRunner) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	key := name + " " + args[len(args)-1]
	r.mu.Lock()
	r.calls = append(r.calls, dir+"|"+key)
	gate, started := r.gates[key], r.started
	r.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return []byte(r.outputs[key]), r.errs[key]
}

// block holds calls for key until gate closes, signalling started on entry.
func (r *fakeRunner) block(key string, gate, started chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gates == nil {
		r.gates = map[string]chan struct{}{}
	}
	r.gates[key] = gate
	r.started = started
}

func (r *fakeRunner) RunToFile(ctx context.Context, dir string, stdoutPath string, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dir+"|"+name+" "+strings.Join(args, " "))
	return os.WriteFile(stdoutPath, r.dump, 0o644)
}

func (r *fakeRunner) set(key, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if output == "" {
		delete(r.outputs, key)
		return
	}
	r.outputs[key] = output
}

func (r *fakeRunner) countCalls(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

type fixture struct {
	root   string
	runner *fakeRunner
	opts   Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	runner := newFakeRunner()
	return &fixture{
		root:   root,
		runner: runner,
		opts: Options{
			ProjectName: "demo",
			SourceDir:   root,
			CacheDir:    filepath.Join(t.TempDir(), "unitcache"),
			Runner:      runner,
			Logger:      utils.QuietLogger(),
		},
	}
}

func (f *fixture) file(t *testing.T, rel string) models.FileIdentity {
	t.Helper()
	id, err := models.NewFileIdentity(f.root, rel)
	require.NoError(t, err)
	return id
}

func (f *fixture) generate(t *testing.T) *MakeCache {
	t.Helper()
	mc, err := Generate(context.Background(), f.opts).Await(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { mc.Close() })
	return mc
}

func TestScanTargets(t *testing.T) {
	targets := ScanTargets([]byte(testDatabase), "util.c")
	assert.Equal(t, []models.BuildTarget{
		{Subdir: "src", Target: "libcore_la-util.lo"},
		{Subdir: "src", Target: "unittest-util.o"},
	}, targets)

	assert.Equal(t, []models.BuildTarget{{Target: "main.o"}}, ScanTargets([]byte(testDatabase), "main.c"))
	assert.Empty(t, ScanTargets([]byte(testDatabase), "missing.c"))
	assert.Empty(t, ScanTargets([]byte(testDatabase), ""))
}

func TestGenerate_WritesAndMapsDatabase(t *testing.T) {
	f := newFixture(t)
	mc := f.generate(t)

	data, err := os.ReadFile(DumpPath(f.opts))
	require.NoError(t, err)
	assert.Equal(t, testDatabase, string(data))
	assert.Equal(t, filepath.Join(f.opts.CacheDir, "makecache", "demo.makecache"), DumpPath(f.opts))
	assert.Equal(t, 1, f.runner.countCalls("make -p -n -s"))

	entries, err := os.ReadDir(filepath.Dir(DumpPath(f.opts)))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temporary dump left behind")
	}
	assert.NotZero(t, mc.dump.Digest())
}

func TestGenerate_RejectsBadDatabases(t *testing.T) {
	f := newFixture(t)

	f.runner.dump = nil
	_, err := Generate(context.Background(), f.opts).Await(context.Background())
	assert.ErrorIs(t, err, ErrEmptyDump)

	f.runner.dump = []byte{'a', 0xff, 0xfe}
	_, err = Generate(context.Background(), f.opts).Await(context.Background())
	assert.ErrorIs(t, err, ErrInvalidDump)
}

func TestGenerate_RequiresProject(t *testing.T) {
	f := newFixture(t)
	f.opts.SourceDir = ""
	_, err := Generate(context.Background(), f.opts).Await(context.Background())
	assert.ErrorIs(t, err, models.ErrNoProject)
}

func TestTargets_NegativeResultIsCached(t *testing.T) {
	f := newFixture(t)
	mc := f.generate(t)
	missing := f.file(t, "src/missing.c")

	for i := 0; i < 5; i++ {
		_, err := mc.GetTargets(context.Background(), missing).Await(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int64(1), mc.ScanCount())

	regenerated := f.generate(t)
	_, err := regenerated.Targets(missing)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(1), regenerated.ScanCount())
}

func TestTargets_PositiveResultIsCached(t *testing.T) {
	f := newFixture(t)
	mc := f.generate(t)
	util := f.file(t, "src/util.c")

	first, err := mc.Targets(util)
	require.NoError(t, err)
	first[0].Target = "mutated"

	second, err := mc.Targets(util)
	require.NoError(t, err)
	assert.Equal(t, "libcore_la-util.lo", second[0].Target)
	assert.Equal(t, int64(1), mc.ScanCount())
}

func TestFlags_ExtractsAndNormalizes(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["make libcore_la-util.lo"] = utilCompileOutput
	mc := f.generate(t)
	util := f.file(t, "src/util.c")

	flags, err := mc.GetFlags(context.Background(), util).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FlagSet{
		"-DHAVE_CONFIG_H",
		"-I" + filepath.Join(f.root, "src"),
		"-I" + f.root,
		"-I/usr/include/glib 2.0",
		"-std=gnu11",
		"-Wall",
		"-fPIC",
	}, flags)

	_, err = mc.Flags(context.Background(), util)
	require.NoError(t, err)
	assert.Equal(t, 1, f.runner.countCalls("make libcore_la-util.lo"))
	assert.Equal(t, 0, f.runner.countCalls("make unittest-util.o"))
}

func TestFlags_CancelledCallerDoesNotFailJoiners(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["make libcore_la-util.lo"] = utilCompileOutput
	mc := f.generate(t)
	util := f.file(t, "src/util.c")

	gate := make(chan struct{})
	started := make(chan struct{}, 4)
	f.runner.block("make libcore_la-util.lo", gate, started)

	ctx, cancel := context.WithCancel(context.Background())
	first := mc.GetFlags(ctx, util)
	<-started
	second := mc.GetFlags(context.Background(), util)
	// give the joiner time to reach the shared extraction
	time.Sleep(50 * time.Millisecond)

	cancel()
	_, err := first.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	close(gate)
	flags, err := second.Await(context.Background())
	require.NoError(t, err)
	assert.Contains(t, flags, "-DHAVE_CONFIG_H")
	assert.Equal(t, 1, f.runner.countCalls("make libcore_la-util.lo"))
}

func TestFlags_CloseAbortsExtraction(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["make libcore_la-util.lo"] = utilCompileOutput
	mc := f.generate(t)
	util := f.file(t, "src/util.c")

	gate := make(chan struct{})
	defer close(gate)
	started := make(chan struct{}, 4)
	f.runner.block("make libcore_la-util.lo", gate, started)

	pending := mc.GetFlags(context.Background(), util)
	<-started
	require.NoError(t, mc.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := pending.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlags_TriesNextTarget(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["make libcore_la-util.lo"] = "nothing to see\n"
	f.runner.outputs["make unittest-util.o"] = "g++ -c x\n__unitcache_cxx__ -DTEST=1 -c ../src/util.c\n"
	mc := f.generate(t)

	flags, err := mc.Flags(context.Background(), f.file(t, "src/util.c"))
	require.NoError(t, err)
	assert.Equal(t, models.FlagSet{"-xc++", "-DTEST=1"}, flags)
}

func TestFlags_ExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.errs["make libcore_la-util.lo"] = ErrSpawn
	mc := f.generate(t)
	util := f.file(t, "src/util.c")

	_, err := mc.Flags(context.Background(), util)
	assert.ErrorIs(t, err, ErrExtractFlags)
	assert.ErrorIs(t, err, ErrSpawn)

	main := f.file(t, "main.c")
	f.runner.set("make main.o", "__unitcache_cc__ -DMAIN -c main.c\n")
	flags, err := mc.Flags(context.Background(), main)
	require.NoError(t, err)
	assert.Equal(t, models.FlagSet{"-DMAIN"}, flags)
}

func TestFlags_FallbackForUntrackedFile(t *testing.T) {
	f := newFixture(t)
	mc := f.generate(t)

	flags, err := mc.Flags(context.Background(), f.file(t, "scratch.c"))
	require.NoError(t, err)
	assert.Equal(t, models.FlagSet{"-I/usr/lib/gcc/x86_64-linux-gnu/13/include"}, flags)
	assert.Equal(t, 1, f.runner.countCalls("cc -print-file-name=include"))

	_, err = mc.Flags(context.Background(), f.file(t, "scratch2.c"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.runner.countCalls("cc -print-file-name=include"))
}

func TestFlags_FallbackWithoutDefaultInclude(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["cc -print-file-name=include"] = "include\n"
	mc := f.generate(t)

	flags, err := mc.Flags(context.Background(), f.file(t, "scratch.c"))
	require.NoError(t, err)
	assert.Empty(t, flags)
	assert.Equal(t, "", mc.DefaultInclude(context.Background()))
}

func TestFlags_PersistedAcrossInstances(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["make libcore_la-util.lo"] = utilCompileOutput
	mc := f.generate(t)
	util := f.file(t, "src/util.c")

	want, err := mc.Flags(context.Background(), util)
	require.NoError(t, err)
	require.NoError(t, mc.Close())

	f.runner.set("make libcore_la-util.lo", "")
	reopened, err := Open(f.opts)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Flags(context.Background(), util)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, f.runner.countCalls("make libcore_la-util.lo"))
}

func TestClosedCacheRefusesScans(t *testing.T) {
	f := newFixture(t)
	mc := f.generate(t)
	require.NoError(t, mc.Close())

	_, err := mc.Targets(f.file(t, "main.c"))
	assert.ErrorIs(t, err, ErrClosed)
}
