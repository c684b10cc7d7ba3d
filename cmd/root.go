package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/meysamhadeli/unitcache/clang_service"
	"github.com/meysamhadeli/unitcache/config"
	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/ide_core"
	ide_contracts "github.com/meysamhadeli/unitcache/ide_core/contracts"
	"github.com/meysamhadeli/unitcache/make_cache"
	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/task_scheduler"
	"github.com/meysamhadeli/unitcache/tree_sitter_backend"
	"github.com/meysamhadeli/unitcache/unsaved_files"
	"github.com/meysamhadeli/unitcache/utils"
)

var version = "0.1.0"

// RootDependencies is everything a subcommand needs, wired from config.
type RootDependencies struct {
	Cwd       string
	Config    *config.Config
	CacheDir  string
	Logger    *pterm.Logger
	Scheduler *task_scheduler.Scheduler
	Store     *unsaved_files.Store
	Service   *clang_service.Service
	Core      ide_contracts.IIdeCore
	// MakeCache is nil until a subcommand asks for build flags.
	MakeCache *make_cache.MakeCache
	Runner    utils.CommandRunner
}

var rootCmd = &cobra.Command{
	Use:   "unitcache",
	Short: "Incremental compile cache for C and C++ projects",
	Long: `unitcache keeps parsed translation units, build flags and symbol indexes for a
make-based C/C++ project up to date with unsaved edits, and answers completion,
diagnostics and highlighting queries from them.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println(version)
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	config.InitFlags(rootCmd)
}

// Execute runs the root command.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, lipgloss.Red.Render(err.Error()))
		os.Exit(1)
	}
}

// handleRootCommand loads configuration and wires the caches. Drafts left by
// an earlier session are restored so queries see unsaved content.
func handleRootCommand(cmd *cobra.Command) (*RootDependencies, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.LoadConfigWithCache(rootCmd, cwd)
	if err != nil {
		return nil, err
	}

	logger := utils.NewLogger(cfg.LogLevel, os.Stderr)
	utils.SetLogLevel(cfg.LogLevel)

	cacheDir, err := cfg.ResolvedCacheDir()
	if err != nil {
		return nil, err
	}
	draftsDir, err := cfg.ResolvedDraftsDir()
	if err != nil {
		return nil, err
	}

	deps := &RootDependencies{
		Cwd:       cwd,
		Config:    cfg,
		CacheDir:  cacheDir,
		Logger:    logger,
		Scheduler: task_scheduler.New(cfg.SchedulerLimits(), logger),
		Runner:    utils.NewCommandExecutor(),
	}
	deps.Store = unsaved_files.NewStore(unsaved_files.Options{
		ProjectRoot: cfg.ProjectRoot,
		DraftsDir:   draftsDir,
		Scheduler:   deps.Scheduler,
		Logger:      logger,
	})
	if n, err := deps.Store.RestoreAll(cmd.Context()).Await(cmd.Context()); err != nil {
		logger.Warn("failed to restore drafts", logger.Args("dir", draftsDir, "error", err))
	} else if n > 0 {
		logger.Debug("restored drafts", logger.Args("count", n))
	}
	return deps, nil
}

// makeOptions maps configuration onto make cache options.
func (deps *RootDependencies) makeOptions() make_cache.Options {
	return make_cache.Options{
		ProjectName: deps.Config.ProjectName,
		SourceDir:   deps.Config.ProjectRoot,
		BuildDir:    deps.Config.BuildDir,
		CacheDir:    deps.CacheDir,
		MakeCommand: deps.Config.MakeCommand,
		CCCommand:   deps.Config.CCCommand,
		Runner:      deps.Runner,
		Scheduler:   deps.Scheduler,
		Logger:      deps.Logger,
	}
}

// ensureMakeCache opens the make database, generating it on first use.
func (deps *RootDependencies) ensureMakeCache(ctx context.Context) (*make_cache.MakeCache, error) {
	if deps.MakeCache != nil {
		return deps.MakeCache, nil
	}
	mc, err := make_cache.Open(deps.makeOptions())
	if errors.Is(err, fs.ErrNotExist) {
		mc, err = generateMakeCache(ctx, deps)
	}
	if err != nil {
		return nil, err
	}
	deps.MakeCache = mc
	return mc, nil
}

func generateMakeCache(ctx context.Context, deps *RootDependencies) (*make_cache.MakeCache, error) {
	spinner, _ := newSpinner().Start("Generating make database...")
	mc, err := make_cache.Generate(ctx, deps.makeOptions()).Await(ctx)
	spinner.Stop()
	fmt.Print("\r")
	return mc, err
}

// startService wires the unit cache and the collaborator surface. Build
// flags come from make unless the project has no Makefile.
func (deps *RootDependencies) startService(ctx context.Context) error {
	var buildSystem ide_contracts.IBuildSystem = ide_core.DefaultBuildSystem{}
	if hasMakefile(deps.Config.BuildDir) {
		mc, err := deps.ensureMakeCache(ctx)
		if err != nil {
			deps.Logger.Warn("build flags unavailable", deps.Logger.Args("error", err))
		} else {
			buildSystem = mc
		}
	}

	deps.Service = clang_service.New(clang_service.Options{
		Store:     deps.Store,
		Flags:     buildSystem,
		Backend:   tree_sitter_backend.New(deps.Logger),
		Scheduler: deps.Scheduler,
		Logger:    deps.Logger,
	})
	if err := deps.Service.Start(); err != nil {
		return err
	}
	deps.Core = ide_core.New(ide_core.Options{
		Service:     deps.Service,
		BuildSystem: buildSystem,
		Scheduler:   deps.Scheduler,
		Logger:      deps.Logger,
	})
	return nil
}

func (deps *RootDependencies) Close() {
	if deps.Service != nil {
		_ = deps.Service.Stop()
	}
	if deps.MakeCache != nil {
		_ = deps.MakeCache.Close()
	}
	deps.Scheduler.Wait()
}

func hasMakefile(dir string) bool {
	for _, name := range []string{"GNUmakefile", "makefile", "Makefile"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// fileArg resolves a command-line path against the working directory.
func (deps *RootDependencies) fileArg(arg string) (models.FileIdentity, error) {
	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(deps.Cwd, path)
	}
	return models.NewFileIdentity(deps.Config.ProjectRoot, path)
}

// parsePosition reads a one-based "line:column" argument.
func parsePosition(arg string) (models.Position, error) {
	lineStr, colStr, ok := strings.Cut(arg, ":")
	if !ok {
		return models.Position{}, fmt.Errorf("position %q is not line:column", arg)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return models.Position{}, fmt.Errorf("invalid line in %q", arg)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return models.Position{}, fmt.Errorf("invalid column in %q", arg)
	}
	return models.Position{Line: line - 1, Column: col - 1}, nil
}

func newSpinner() *pterm.SpinnerPrinter {
	return pterm.DefaultSpinner.WithStyle(pterm.NewStyle(pterm.FgLightBlue)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(100).WithRemoveWhenDone(true)
}
