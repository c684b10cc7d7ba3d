package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/meysamhadeli/unitcache/clang_service"
	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/models"
	"github.com/meysamhadeli/unitcache/task_scheduler"
	"github.com/meysamhadeli/unitcache/utils"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Compile every source file in the project and report cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		paths, err := utils.ListSourceFiles(deps.Config.ProjectRoot)
		if err != nil {
			return err
		}
		if err := deps.startService(cmd.Context()); err != nil {
			return err
		}

		spinner, _ := newSpinner().Start(fmt.Sprintf("Compiling %d files...", len(paths)))
		pending := make([]*task_scheduler.Future[*clang_service.CompiledUnit], 0, len(paths))
		files := make([]models.FileIdentity, 0, len(paths))
		for _, p := range paths {
			file, err := models.NewFileIdentity(deps.Config.ProjectRoot, p)
			if err != nil {
				continue
			}
			files = append(files, file)
			pending = append(pending, deps.Service.GetUnit(cmd.Context(), file, 0))
		}

		var failed []error
		diagnostics := 0
		for i, f := range pending {
			unit, err := f.Await(cmd.Context())
			if err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", files[i].Rel(), err))
				continue
			}
			diagnostics += len(unit.Diagnostics())
		}
		spinner.Stop()
		fmt.Print("\r")

		for _, err := range failed {
			fmt.Println(lipgloss.Red.Render(err.Error()))
		}
		fmt.Println(lipgloss.Green.Render(fmt.Sprintf("✓ %d units cached, %d failed, %d diagnostics", deps.Service.Len(), len(failed), diagnostics)))

		if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
			printStats("Compiler service", deps.Service.Stats().Snapshot())
			if deps.MakeCache != nil {
				printStats("Make cache", deps.MakeCache.Stats().Snapshot())
			}
		}
		return errors.Join(failed...)
	},
}

func printStats(title string, stats map[string]interface{}) {
	fmt.Println(lipgloss.Info.Render(title + ":"))
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := stats[k].(type) {
		case float64:
			fmt.Printf("  %s: %.1f\n", k, v)
		default:
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
}

func init() {
	warmCmd.Flags().BoolP("stats", "s", false, "Show cache statistics after warming")
	rootCmd.AddCommand(warmCmd)
}
