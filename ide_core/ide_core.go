// Package ide_core is the boundary between editor front ends and the
// compiler-service caches. Every operation either returns immediately or
// hands back a future; nothing here blocks the caller on a compile.
package ide_core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/meysamhadeli/unitcache/clang_service"
	"github.com/meysamhadeli/unitcache/ide_core/contracts"
	"github.com/meysamhadeli/unitcache/make_cache"
	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/symbol_index"
	"github.com/meysamhadeli/unitcache/task_scheduler"
	"github.com/meysamhadeli/unitcache/utils"
)

// DefaultBuildSystem knows nothing about any file.
type DefaultBuildSystem struct{}

func (DefaultBuildSystem) BuildFlags(context.Context, models.FileIdentity) (models.FlagSet, error) {
	return models.FlagSet{}, nil
}

type IdeCore struct {
	service     *clang_service.Service
	buildSystem contracts.IBuildSystem
	scheduler   *task_scheduler.Scheduler
	logger      *pterm.Logger

	mu     sync.RWMutex
	active models.FileIdentity
}

type Options struct {
	Service *clang_service.Service
	// BuildSystem answers RequestBuildFlags; nil means DefaultBuildSystem.
	BuildSystem contracts.IBuildSystem
	Scheduler   *task_scheduler.Scheduler
	Logger      *pterm.Logger
}

func New(opts Options) contracts.IIdeCore {
	return newIdeCore(opts)
}

func newIdeCore(opts Options) *IdeCore {
	if opts.BuildSystem == nil {
		opts.BuildSystem = DefaultBuildSystem{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = task_scheduler.New(nil, opts.Logger)
	}
	return &IdeCore{
		service:     opts.Service,
		buildSystem: opts.BuildSystem,
		scheduler:   opts.Scheduler,
		logger:      utils.LoggerOr(opts.Logger),
	}
}

// NotifyEdit forwards editor content into the unsaved-file store. nil
// content means the buffer was reverted or closed.
func (c *IdeCore) NotifyEdit(file models.FileIdentity, content []byte) int64 {
	return c.service.Store().Update(file, content)
}

func (c *IdeCore) SetActiveFile(file models.FileIdentity) {
	c.mu.Lock()
	c.active = file
	c.mu.Unlock()
}

// QuerySymbolKind classifies word using whatever unit is cached for the
// active file. It never compiles.
func (c *IdeCore) QuerySymbolKind(word string) (symbol_index.Kind, bool) {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if active.IsZero() {
		return symbol_index.KindNone, false
	}
	unit, ok := c.service.GetCached(active)
	if !ok {
		return symbol_index.KindNone, false
	}
	return unit.Symbols.Lookup(word)
}

// RequestBuildFlags asks the configured build system for file's flags. A
// confirmed miss from the build system yields an empty set.
func (c *IdeCore) RequestBuildFlags(ctx context.Context, file models.FileIdentity) *task_scheduler.Future[models.FlagSet] {
	return task_scheduler.Go(c.scheduler, ctx, task_scheduler.CategoryDefault, func(ctx context.Context) (models.FlagSet, error) {
		flags, err := c.buildSystem.BuildFlags(ctx, file)
		if errors.Is(err, make_cache.ErrNotFound) {
			return models.FlagSet{}, nil
		}
		if err != nil {
			return nil, err
		}
		if flags == nil {
			flags = models.FlagSet{}
		}
		return flags, nil
	})
}

func (c *IdeCore) RequestDiagnostics(ctx context.Context, file models.FileIdentity) *task_scheduler.Future[[]models.Diagnostic] {
	return c.service.GetDiagnostics(ctx, file)
}

// RequestCompletion completes at pos using the freshest unit for file and
// keeps only proposals extending the word before the cursor.
func (c *IdeCore) RequestCompletion(ctx context.Context, file models.FileIdentity, pos models.Position) *task_scheduler.Future[[]models.CompletionItem] {
	unit := c.service.GetUnit(ctx, file, 0)
	return task_scheduler.Go(c.scheduler, ctx, task_scheduler.CategoryDefault, func(ctx context.Context) ([]models.CompletionItem, error) {
		u, err := unit.Await(ctx)
		if err != nil {
			return nil, err
		}
		items, err := u.TU.CompleteAt(ctx, pos)
		if err != nil {
			return nil, err
		}
		src := u.Source()
		if current, ok := c.service.Store().Get(file); ok {
			src = current.Content
		}
		prefix := utils.WordBefore(src, utils.OffsetForPosition(src, pos.Line, pos.Column))
		c.logger.Trace("completion", c.logger.Args("file", file.String(), "prefix", prefix, "candidates", len(items)))
		return FilterCompletions(items, prefix), nil
	})
}

// FilterCompletions keeps items whose text starts with prefix, dropping
// duplicates, ordered by text.
func FilterCompletions(items []models.CompletionItem, prefix string) []models.CompletionItem {
	seen := make(map[string]bool, len(items))
	out := make([]models.CompletionItem, 0, len(items))
	for _, item := range items {
		if item.Text == "" || seen[item.Text] {
			continue
		}
		if !strings.HasPrefix(item.Text, prefix) {
			continue
		}
		seen[item.Text] = true
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Text < out[j].Text
	})
	return out
}
