// Package make_cache discovers the compiler flags a make-based project uses
// for each source file.
//
// A MakeCache wraps one generation of the project's make database. Lookups
// go file -> targets -> flags, with both positive and negative results
// cached. Regenerating the database produces a new MakeCache; there is no
// per-file invalidation.
package make_cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/pterm/pterm"
	"golang.org/x/sync/singleflight"

	"github.com/meysamhadeli/unitcache/cache_stats"
	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/task_scheduler"
	"github.com/meysamhadeli/unitcache/utils"
)

type Options struct {
	ProjectName string
	// SourceDir is the project root; BuildDir is where make runs and
	// defaults to SourceDir.
	SourceDir string
	BuildDir  string
	// CacheDir is the per-program cache directory, e.g. ~/.cache/unitcache.
	CacheDir    string
	MakeCommand string
	CCCommand   string
	// DisableFlagStore keeps extracted flags in memory only.
	DisableFlagStore bool

	Runner    utils.CommandRunner
	Scheduler *task_scheduler.Scheduler
	Logger    *pterm.Logger
}

func (o Options) withDefaults() Options {
	if o.BuildDir == "" {
		o.BuildDir = o.SourceDir
	}
	if o.MakeCommand == "" {
		o.MakeCommand = "make"
	}
	if o.CCCommand == "" {
		o.CCCommand = "cc"
	}
	if o.ProjectName == "" && o.SourceDir != "" {
		o.ProjectName = filepath.Base(o.SourceDir)
	}
	if o.Runner == nil {
		o.Runner = utils.NewCommandExecutor()
	}
	if o.Scheduler == nil {
		o.Scheduler = task_scheduler.New(nil, o.Logger)
	}
	return o
}

// DumpPath is where the make database for opts lives:
// <cache-dir>/makecache/<project-name>.makecache.
func DumpPath(opts Options) string {
	opts = opts.withDefaults()
	return filepath.Join(opts.CacheDir, "makecache", opts.ProjectName+".makecache")
}

// FlagStoreDir holds the flag sets persisted for opts' project.
func FlagStoreDir(opts Options) string {
	opts = opts.withDefaults()
	return filepath.Join(opts.CacheDir, "makecache", "flags", opts.ProjectName)
}

// entry is either a hit carrying a value or a confirmed miss.
type entry[T any] struct {
	value T
	miss  bool
}

// MakeCache serves targets and flags for one make database generation.
type MakeCache struct {
	opts   Options
	logger *pterm.Logger

	dumpMu sync.RWMutex
	dump   *Dump

	mu      sync.RWMutex
	targets map[models.FileIdentity]entry[[]models.BuildTarget]
	flags   map[models.FileIdentity]models.FlagSet

	flights singleflight.Group
	store   *FlagStore
	scans   atomic.Int64
	stats   *cache_stats.Stats

	// ctx bounds shared extractions; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	defaultInclude *task_scheduler.Future[string]
}

// New wraps an opened dump. The cache owns dump from here on.
func New(dump *Dump, opts Options) *MakeCache {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	mc := &MakeCache{
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		logger:  utils.LoggerOr(opts.Logger),
		dump:    dump,
		targets: make(map[models.FileIdentity]entry[[]models.BuildTarget]),
		flags:   make(map[models.FileIdentity]models.FlagSet),
		stats:   cache_stats.New(),
	}
	if !opts.DisableFlagStore && opts.CacheDir != "" {
		mc.store = NewFlagStore(FlagStoreDir(opts), dump.Digest())
	}
	// Flag lookups holding a build-system slot wait on this, so it must not
	// compete for one.
	mc.defaultInclude = task_scheduler.Go(opts.Scheduler, ctx, task_scheduler.CategoryDefault, mc.discoverDefaultInclude)
	return mc
}

// Open loads the existing make database for opts.
func Open(opts Options) (*MakeCache, error) {
	dump, err := OpenDump(DumpPath(opts))
	if err != nil {
		return nil, err
	}
	return New(dump, opts), nil
}

// Generate runs make in database mode, moves its output into place and
// opens the result. Flags persisted for older databases are pruned.
func Generate(ctx context.Context, opts Options) *task_scheduler.Future[*MakeCache] {
	opts = opts.withDefaults()
	logger := utils.LoggerOr(opts.Logger)

	return task_scheduler.Go(opts.Scheduler, ctx, task_scheduler.CategoryBuildSystem, func(ctx context.Context) (*MakeCache, error) {
		if opts.SourceDir == "" {
			return nil, models.ErrNoProject
		}
		path := DumpPath(opts)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create makecache directory: %w", err)
		}

		tmp, err := os.CreateTemp(filepath.Dir(path), opts.ProjectName+".makecache.tmp-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary make database: %w", err)
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		logger.Debug("generating make database", logger.Args("dir", opts.BuildDir, "output", path))
		if err := opts.Runner.RunToFile(ctx, opts.BuildDir, tmpPath, opts.MakeCommand, "-p", "-n", "-s"); err != nil {
			return nil, err
		}
		if err := os.Rename(tmpPath, path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRename, err)
		}

		dump, err := OpenDump(path)
		if err != nil {
			return nil, err
		}
		mc := New(dump, opts)
		if err := mc.store.PruneOthers(); err != nil {
			logger.Warn("failed to prune stale flag stores", logger.Args("error", err))
		}
		logger.Info("make database ready", logger.Args("path", path, "bytes", dump.Len()))
		return mc, nil
	})
}

// Close releases the mapped database. Pending lookups fail with ErrClosed.
func (mc *MakeCache) Close() error {
	mc.cancel()
	mc.dumpMu.Lock()
	defer mc.dumpMu.Unlock()
	if mc.dump == nil {
		return nil
	}
	err := mc.dump.Close()
	mc.dump = nil
	return err
}

// ScanCount reports how many times the database has been scanned.
func (mc *MakeCache) ScanCount() int64 {
	return mc.scans.Load()
}

func (mc *MakeCache) Stats() *cache_stats.Stats {
	return mc.stats
}

// GetTargets resolves the make targets that build file. A confirmed absence
// is reported as ErrNotFound and is remembered for the life of mc.
func (mc *MakeCache) GetTargets(ctx context.Context, file models.FileIdentity) *task_scheduler.Future[[]models.BuildTarget] {
	return task_scheduler.Go(mc.opts.Scheduler, ctx, task_scheduler.CategoryBuildSystem, func(ctx context.Context) ([]models.BuildTarget, error) {
		return mc.Targets(file)
	})
}

// Targets is the blocking form of GetTargets.
func (mc *MakeCache) Targets(file models.FileIdentity) ([]models.BuildTarget, error) {
	mc.mu.RLock()
	e, ok := mc.targets[file]
	mc.mu.RUnlock()
	if ok {
		mc.stats.RecordHit()
		if e.miss {
			return nil, ErrNotFound
		}
		return cloneTargets(e.value), nil
	}
	mc.stats.RecordMiss()

	v, err, _ := mc.flights.Do("targets\x00"+file.Path, func() (interface{}, error) {
		mc.mu.RLock()
		e, ok := mc.targets[file]
		mc.mu.RUnlock()
		if ok {
			return e, nil
		}

		mc.dumpMu.RLock()
		if mc.dump == nil {
			mc.dumpMu.RUnlock()
			return nil, ErrClosed
		}
		mc.scans.Add(1)
		mc.stats.RecordCompute()
		found := ScanTargets(mc.dump.Bytes(), file.Base())
		mc.dumpMu.RUnlock()

		e = entry[[]models.BuildTarget]{value: found, miss: len(found) == 0}
		mc.mu.Lock()
		mc.targets[file] = e
		mc.mu.Unlock()

		mc.logger.Debug("scanned make database", mc.logger.Args("file", file.String(), "targets", len(found)))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	e = v.(entry[[]models.BuildTarget])
	if e.miss {
		return nil, ErrNotFound
	}
	return cloneTargets(e.value), nil
}

// GetFlags resolves the compiler flags for file. Files no target claims get
// the fallback set holding only the compiler's default include directory.
func (mc *MakeCache) GetFlags(ctx context.Context, file models.FileIdentity) *task_scheduler.Future[models.FlagSet] {
	return task_scheduler.Go(mc.opts.Scheduler, ctx, task_scheduler.CategoryBuildSystem, func(ctx context.Context) (models.FlagSet, error) {
		return mc.Flags(ctx, file)
	})
}

// Flags is the blocking form of GetFlags.
func (mc *MakeCache) Flags(ctx context.Context, file models.FileIdentity) (models.FlagSet, error) {
	mc.mu.RLock()
	cached, ok := mc.flags[file]
	mc.mu.RUnlock()
	if ok {
		mc.stats.RecordHit()
		return cached.Clone(), nil
	}

	if stored, ok, err := mc.store.Get(file); err != nil {
		mc.logger.Warn("ignoring unreadable stored flags", mc.logger.Args("file", file.String(), "error", err))
	} else if ok {
		mc.stats.RecordHit()
		mc.putFlags(file, stored)
		return stored.Clone(), nil
	}
	mc.stats.RecordMiss()

	targets, err := mc.Targets(file)
	if errors.Is(err, ErrNotFound) {
		return mc.fallbackFlags(ctx)
	}
	if err != nil {
		return nil, err
	}

	// Waiters share one extraction. It outlives any single waiter and ends
	// early only when the cache is closed.
	flight := mc.flights.DoChan("flags\x00"+file.Path, func() (interface{}, error) {
		ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(mc.ctx, cancel)
		defer stop()
		return mc.extractFlags(ctx, file, targets)
	})
	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		mc.stats.RecordFailure()
		return nil, res.Err
	}
	return res.Val.(models.FlagSet).Clone(), nil
}

// BuildFlags satisfies the build-system contract used by the unit cache.
// Extraction runs on a build-system slot; callers must not hold one.
func (mc *MakeCache) BuildFlags(ctx context.Context, file models.FileIdentity) (models.FlagSet, error) {
	return mc.GetFlags(ctx, file).Await(ctx)
}

func (mc *MakeCache) putFlags(file models.FileIdentity, flags models.FlagSet) {
	mc.mu.Lock()
	mc.flags[file] = flags.Clone()
	mc.mu.Unlock()
}

func (mc *MakeCache) extractFlags(ctx context.Context, file models.FileIdentity, targets []models.BuildTarget) (models.FlagSet, error) {
	var lastErr error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := target.Dir(mc.opts.BuildDir)
		rel, err := filepath.Rel(dir, file.Path)
		if err != nil {
			rel = file.Path
		}

		mc.stats.RecordCompute()
		out, runErr := mc.opts.Runner.Output(ctx, dir, mc.opts.MakeCommand,
			"-s", "-i", "-a", "-n", "-W", rel, "V=1",
			"CC="+CCSentinel, "CXX="+CXXSentinel,
			target.Target,
		)
		// with -i make may report failure and still print the line we want
		if runErr != nil && !errors.Is(runErr, ErrSubprocess) {
			mc.logger.Debug("flag extraction failed", mc.logger.Args("file", file.String(), "target", target.String(), "error", runErr))
			lastErr = runErr
			continue
		}
		if !utf8.Valid(out) {
			lastErr = fmt.Errorf("%w: make %s", ErrInvalidOutput, target)
			continue
		}

		args, cxx, ok := FindCompilerLine(out)
		if !ok {
			if runErr != nil {
				lastErr = runErr
			}
			continue
		}
		flags, err := ParseCompilerArgs(args, cxx, dir)
		if err != nil {
			lastErr = fmt.Errorf("failed to tokenize compiler line for %s: %w", file, err)
			continue
		}

		mc.putFlags(file, flags)
		if err := mc.store.Put(file, flags); err != nil {
			mc.logger.Warn("failed to persist flags", mc.logger.Args("file", file.String(), "error", err))
		}
		mc.logger.Debug("extracted flags", mc.logger.Args("file", file.String(), "target", target.String(), "flags", strings.Join(flags, " ")))
		return flags, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrExtractFlags, file, lastErr)
	}
	return nil, fmt.Errorf("%w for %s", ErrExtractFlags, file)
}

func (mc *MakeCache) fallbackFlags(ctx context.Context) (models.FlagSet, error) {
	include, err := mc.defaultInclude.Await(ctx)
	if err != nil || include == "" {
		return models.FlagSet{}, nil
	}
	return models.FlagSet{"-I" + include}, nil
}

// DefaultInclude returns the compiler's builtin include directory, or "" if
// it could not be discovered.
func (mc *MakeCache) DefaultInclude(ctx context.Context) string {
	include, _ := mc.defaultInclude.Await(ctx)
	return include
}

func (mc *MakeCache) discoverDefaultInclude(ctx context.Context) (string, error) {
	out, err := mc.opts.Runner.Output(ctx, mc.opts.SourceDir, mc.opts.CCCommand, "-print-file-name=include")
	if err != nil {
		mc.logger.Debug("default include discovery failed", mc.logger.Args("cc", mc.opts.CCCommand, "error", err))
		return "", err
	}
	path := strings.TrimSpace(string(out))
	// compilers echo the bare name back when they have no such file
	if !filepath.IsAbs(path) {
		return "", nil
	}
	return path, nil
}

func cloneTargets(t []models.BuildTarget) []models.BuildTarget {
	return append([]models.BuildTarget(nil), t...)
}
