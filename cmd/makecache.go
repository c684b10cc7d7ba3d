package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/make_cache"
)

var makecacheCmd = &cobra.Command{
	Use:   "makecache",
	Short: "Regenerate the make database used for build-flag discovery",
	Long: `The 'makecache' command runs make in print-database, no-exec mode and stores the
result under the cache directory. Every cached target and flag lookup belongs to
one database generation, so regenerating drops them all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		mc, err := generateMakeCache(cmd.Context(), deps)
		if err != nil {
			return err
		}
		deps.MakeCache = mc

		fmt.Println(lipgloss.Green.Render("✓ Make database regenerated"))
		fmt.Printf("  Path: %s\n", make_cache.DumpPath(deps.makeOptions()))
		if include := mc.DefaultInclude(cmd.Context()); include != "" {
			fmt.Printf("  Default include: %s\n", include)
		}
		return nil
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets <file>",
	Short: "List the make targets that build a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		file, err := deps.fileArg(args[0])
		if err != nil {
			return err
		}
		mc, err := deps.ensureMakeCache(cmd.Context())
		if err != nil {
			return err
		}
		targets, err := mc.GetTargets(cmd.Context(), file).Await(cmd.Context())
		if errors.Is(err, make_cache.ErrNotFound) {
			fmt.Println(lipgloss.Yellow.Render(fmt.Sprintf("No make target builds %s", file.Rel())))
			return nil
		}
		if err != nil {
			return err
		}
		for _, t := range targets {
			fmt.Println(t.String())
		}
		return nil
	},
}

var flagsCmd = &cobra.Command{
	Use:   "flags <file>",
	Short: "Print the compiler flags used for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		file, err := deps.fileArg(args[0])
		if err != nil {
			return err
		}
		if err := deps.startService(cmd.Context()); err != nil {
			return err
		}
		flags, err := deps.Core.RequestBuildFlags(cmd.Context(), file).Await(cmd.Context())
		if err != nil {
			return err
		}
		if len(flags) == 0 {
			fmt.Println(lipgloss.Dim.Render("(no flags)"))
			return nil
		}
		fmt.Println(strings.Join(flags, " "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(makecacheCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(flagsCmd)
}
