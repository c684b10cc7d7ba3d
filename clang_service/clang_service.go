// Package clang_service keeps one compiled unit per source file up to date
// with the editor's unsaved content.
//
// A request names the minimum edit sequence its result must reflect. Cached
// units at least that fresh are returned as is; anything older is recompiled
// in the background from a snapshot of every unsaved buffer and the file's
// build flags. Each compile also produces a symbol index for highlighting.
package clang_service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pterm/pterm"
	"golang.org/x/sync/singleflight"

	"github.com/meysamhadeli/unitcache/cache_stats"
	"github.com/meysamhadeli/unitcache/clang_service/contracts"
	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/symbol_index"
	"github.com/meysamhadeli/unitcache/task_scheduler"
	"github.com/meysamhadeli/unitcache/unsaved_files"
	"github.com/meysamhadeli/unitcache/utils"
)

var (
	// ErrCreateTranslationUnit wraps every backend failure; the backend's
	// own error stays reachable through errors.Is.
	ErrCreateTranslationUnit = errors.New("failed to create translation unit")
	ErrServiceStopped        = errors.New("compiler service is not running")
)

type Options struct {
	Store     *unsaved_files.Store
	Flags     contracts.IBuildFlagsProvider
	Backend   contracts.IBackend
	Scheduler *task_scheduler.Scheduler
	Logger    *pterm.Logger
}

// CompiledUnit is an immutable compile result. Units are shared with every
// reader; replacing a cache entry only drops the cache's reference.
type CompiledUnit struct {
	File     models.FileIdentity
	TU       contracts.ITranslationUnit
	Flags    models.FlagSet
	Symbols  *symbol_index.Index
	Sequence int64
}

// Source is the main file content the unit was compiled from.
func (u *CompiledUnit) Source() []byte {
	if u == nil || u.TU == nil {
		return nil
	}
	return u.TU.Source()
}

func (u *CompiledUnit) Diagnostics() []models.Diagnostic {
	if u == nil || u.TU == nil {
		return nil
	}
	return u.TU.Diagnostics()
}

type Service struct {
	store     *unsaved_files.Store
	flags     contracts.IBuildFlagsProvider
	backend   contracts.IBackend
	scheduler *task_scheduler.Scheduler
	logger    *pterm.Logger

	lifeMu sync.Mutex
	index  contracts.IIndex
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards units, generation and running. A compile may only insert
	// its result while the generation it started under is still current.
	mu         sync.RWMutex
	units      map[models.FileIdentity]*CompiledUnit
	generation uint64
	running    bool

	flights singleflight.Group
	stats   *cache_stats.Stats
}

func New(opts Options) *Service {
	if opts.Store == nil {
		opts.Store = unsaved_files.NewStore(unsaved_files.Options{Scheduler: opts.Scheduler, Logger: opts.Logger})
	}
	if opts.Scheduler == nil {
		opts.Scheduler = task_scheduler.New(nil, opts.Logger)
	}
	return &Service{
		store:     opts.Store,
		flags:     opts.Flags,
		backend:   opts.Backend,
		scheduler: opts.Scheduler,
		logger:    utils.LoggerOr(opts.Logger),
		units:     make(map[models.FileIdentity]*CompiledUnit),
		stats:     cache_stats.New(),
	}
}

func (s *Service) Store() *unsaved_files.Store {
	return s.store
}

func (s *Service) Stats() *cache_stats.Stats {
	return s.stats
}

// Start creates the shared backend index. Starting a running service is a
// no-op.
func (s *Service) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.index != nil {
		return nil
	}
	if s.backend == nil {
		return fmt.Errorf("%w: no compiler backend", ErrCreateTranslationUnit)
	}
	index, err := s.backend.NewIndex(contracts.IndexOptions{BackgroundPriority: true})
	if err != nil {
		return fmt.Errorf("failed to create compiler index: %w", err)
	}
	s.index = index
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.mu.Lock()
	s.generation++
	s.running = true
	s.mu.Unlock()

	s.logger.Debug("compiler service started", s.logger.Args("generation", s.generation))
	return nil
}

// Stop cancels in-flight compiles and drops every cached unit. Compiles that
// finish after Stop are discarded.
func (s *Service) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.index == nil {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	s.generation++
	s.running = false
	dropped := len(s.units)
	s.units = make(map[models.FileIdentity]*CompiledUnit)
	s.mu.Unlock()

	err := s.index.Close()
	s.index = nil
	s.logger.Debug("compiler service stopped", s.logger.Args("dropped_units", dropped))
	return err
}

// GetCached returns whatever unit is cached for file without compiling.
func (s *Service) GetCached(file models.FileIdentity) (*CompiledUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[file]
	return u, ok
}

// Evict drops the cached unit for file, if any.
func (s *Service) Evict(file models.FileIdentity) {
	s.mu.Lock()
	delete(s.units, file)
	s.mu.Unlock()
}

// Len reports how many files have a cached unit.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

// GetUnit returns a unit for file reflecting at least minSequence. A
// minSequence of zero or less means "the latest known edits".
func (s *Service) GetUnit(ctx context.Context, file models.FileIdentity, minSequence int64) *task_scheduler.Future[*CompiledUnit] {
	if minSequence <= 0 {
		minSequence = s.store.Sequence()
	}
	if u, ok := s.GetCached(file); ok && u.Sequence >= minSequence {
		s.stats.RecordHit()
		return task_scheduler.Resolved(u, nil)
	}
	s.stats.RecordMiss()

	return task_scheduler.Go(s.scheduler, ctx, task_scheduler.CategoryDefault, func(ctx context.Context) (*CompiledUnit, error) {
		return s.compileAtLeast(ctx, file, minSequence)
	})
}

// GetDiagnostics compiles file if needed and returns its diagnostics.
func (s *Service) GetDiagnostics(ctx context.Context, file models.FileIdentity) *task_scheduler.Future[[]models.Diagnostic] {
	unit := s.GetUnit(ctx, file, 0)
	return task_scheduler.Go(s.scheduler, ctx, task_scheduler.CategoryDefault, func(ctx context.Context) ([]models.Diagnostic, error) {
		u, err := unit.Await(ctx)
		if err != nil {
			return nil, err
		}
		return u.Diagnostics(), nil
	})
}

// compileAtLeast joins or starts the compile for file. Concurrent misses
// share one compile; a caller that needs newer content than the shared
// result captured starts another.
//
// The shared compile is detached from every caller's cancellation and ends
// only with the service. A caller that gives up stops waiting without
// failing the others.
func (s *Service) compileAtLeast(ctx context.Context, file models.FileIdentity, minSequence int64) (*CompiledUnit, error) {
	for {
		if u, ok := s.GetCached(file); ok && u.Sequence >= minSequence {
			return u, nil
		}
		flight := s.flights.DoChan(file.Path, func() (interface{}, error) {
			return s.compile(context.WithoutCancel(ctx), file)
		})
		var res singleflight.Result
		select {
		case res = <-flight:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		u := res.Val.(*CompiledUnit)
		if u.Sequence >= minSequence || u.Sequence >= s.store.Sequence() {
			return u, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (s *Service) current() (context.Context, contracts.IIndex, uint64, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.index == nil {
		return nil, nil, 0, ErrServiceStopped
	}
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()
	return s.ctx, s.index, gen, nil
}

func (s *Service) compile(ctx context.Context, file models.FileIdentity) (*CompiledUnit, error) {
	svcCtx, index, gen, err := s.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(svcCtx, cancel)
	defer stop()

	flags := models.FlagSet{}
	if s.flags != nil {
		resolved, err := s.flags.BuildFlags(ctx, file)
		switch {
		case err == nil:
			flags = resolved
		case ctx.Err() != nil:
			return nil, s.interrupted(ctx, svcCtx)
		default:
			s.logger.Warn("compiling without build flags", s.logger.Args("file", file.String(), "error", err))
		}
	}

	// The snapshot and its sequence are captured together; edits arriving
	// after this point make the result stale, never wrong.
	overlays, sequence := s.store.Snapshot()

	tu, err := task_scheduler.Go(s.scheduler, ctx, task_scheduler.CategoryCompiler, func(ctx context.Context) (contracts.ITranslationUnit, error) {
		s.stats.RecordCompute()
		return index.Parse(ctx, contracts.ParseRequest{File: file, Flags: flags, Overlays: overlays})
	}).Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.interrupted(ctx, svcCtx)
		}
		s.stats.RecordFailure()
		s.logger.Debug("compile failed", s.logger.Args("file", file.String(), "error", err))
		return nil, fmt.Errorf("%w for %s: %w", ErrCreateTranslationUnit, file, err)
	}

	unit := &CompiledUnit{
		File:     file,
		TU:       tu,
		Flags:    flags,
		Symbols:  BuildSymbolIndex(tu),
		Sequence: sequence,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.generation != gen {
		tu.Close()
		return nil, ErrServiceStopped
	}
	if prev, ok := s.units[file]; ok && prev.Sequence > unit.Sequence {
		tu.Close()
		return prev, nil
	}
	s.units[file] = unit
	s.logger.Debug("compiled unit", s.logger.Args("file", file.String(), "sequence", sequence, "symbols", unit.Symbols.Len()))
	return unit, nil
}

func (s *Service) interrupted(ctx, svcCtx context.Context) error {
	if svcCtx.Err() != nil {
		return ErrServiceStopped
	}
	return ctx.Err()
}

// BuildSymbolIndex classifies the unit's typedefs, functions and macros.
func BuildSymbolIndex(tu contracts.ITranslationUnit) *symbol_index.Index {
	b := symbol_index.NewBuilder()
	tu.Visit(func(c contracts.Cursor) bool {
		switch c.Kind {
		case contracts.CursorTypedefDecl, contracts.CursorTypeAliasDecl:
			b.Insert(c.Spelling, symbol_index.KindTypeName)
		case contracts.CursorFunctionDecl:
			b.Insert(c.Spelling, symbol_index.KindFunctionName)
		case contracts.CursorMacroDefinition, contracts.CursorMacroExpansion:
			b.Insert(c.Spelling, symbol_index.KindMacroName)
		}
		return true
	})
	return b.Build()
}
