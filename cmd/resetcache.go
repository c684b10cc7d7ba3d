package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meysamhadeli/unitcache/config"
	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/make_cache"
)

// resetCacheCmd represents the reset-cache command
var resetCacheCmd = &cobra.Command{
	Use:   "reset-cache",
	Short: "Reset the make database and stored flags for the project",
	Long: `The 'reset-cache' command removes the project's make database and every build-flag
set persisted for it. Drafts are kept; use 'drafts clear' for those.
Use this command when the build description changed in ways make cannot see.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		stats, _ := cmd.Flags().GetBool("stats")
		return handleResetCacheCommand(force, stats, cmd)
	},
}

func init() {
	resetCacheCmd.Flags().BoolP("force", "f", false, "Force cache reset without confirmation")
	resetCacheCmd.Flags().BoolP("stats", "s", false, "Show cache statistics instead of resetting")
	rootCmd.AddCommand(resetCacheCmd)
}

func handleResetCacheCommand(force bool, showStats bool, cmd *cobra.Command) error {
	rootDependencies, err := handleRootCommand(cmd)
	if err != nil {
		return err
	}
	defer rootDependencies.Close()

	opts := rootDependencies.makeOptions()
	dumpPath := make_cache.DumpPath(opts)
	flagsDir := make_cache.FlagStoreDir(opts)

	if showStats {
		fmt.Println(lipgloss.Info.Render("Cache Statistics:"))
		fmt.Printf("  Cache Directory: %s\n", rootDependencies.CacheDir)
		if info, err := os.Stat(dumpPath); err == nil {
			fmt.Printf("  Make Database: %s (%.2f MB)\n", dumpPath, float64(info.Size())/(1024*1024))
		} else {
			fmt.Println("  Make Database: not generated")
		}
		stored, size := dirUsage(flagsDir)
		fmt.Printf("  Stored Flag Sets: %d (%.2f KB)\n", stored, float64(size)/1024)
		fmt.Printf("  Unsaved Drafts: %d\n", rootDependencies.Store.Len())
		return nil
	}

	if !force {
		reader := bufio.NewReader(cmd.InOrStdin())
		fmt.Print("Are you sure you want to reset the project cache? (y/N): ")
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println(lipgloss.Yellow.Render("Cache reset cancelled."))
			return nil
		}
	}

	spinner, _ := newSpinner().Start("Resetting project cache...")
	err = removeAll(dumpPath, flagsDir)
	spinner.Stop()
	fmt.Print("\r")
	if err != nil {
		return fmt.Errorf("error resetting cache: %w", err)
	}
	config.ClearConfigCache()

	fmt.Println(lipgloss.Green.Render("✓ Project cache has been successfully reset!"))
	return nil
}

func removeAll(paths ...string) error {
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
}

func dirUsage(dir string) (files int, size int64) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}
