package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/meysamhadeli/unitcache/constants/lipgloss"
)

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Manage unsaved drafts persisted for the project",
	Long: `Drafts stand in for editor buffers that have not been written to disk. Every
other command compiles against them instead of the on-disk files.`,
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List files with a persisted draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		files, _ := deps.Store.Snapshot()
		if len(files) == 0 {
			fmt.Println(lipgloss.Dim.Render("(no drafts)"))
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %s\n", f.File.Rel(), lipgloss.Dim.Render(fmt.Sprintf("%d bytes", len(f.Content))))
		}
		return nil
	},
}

var draftsSetCmd = &cobra.Command{
	Use:   "set <file> [content-file]",
	Short: "Record a draft for a file, read from content-file or stdin",
	Args:  cobra.RangeArgs(1, 2),
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
		var content []byte
		if len(args) == 2 {
			content, err = os.ReadFile(args[1])
		} else {
			content, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}

		seq := deps.Store.Update(file, content)
		n, err := deps.Store.SaveAll(cmd.Context()).Await(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(lipgloss.Green.Render(fmt.Sprintf("✓ Draft recorded for %s (sequence %d, %d drafts saved)", file.Rel(), seq, n)))
		return nil
	},
}

var draftsDropCmd = &cobra.Command{
	Use:   "drop <file>",
	Short: "Discard the draft for a file",
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
		if !deps.Store.Contains(file) {
			fmt.Println(lipgloss.Yellow.Render(fmt.Sprintf("No draft for %s", file.Rel())))
			return nil
		}
		deps.Store.Update(file, nil)
		if _, err := deps.Store.SaveAll(cmd.Context()).Await(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(lipgloss.Green.Render(fmt.Sprintf("✓ Draft for %s discarded", file.Rel())))
		return nil
	},
}

var draftsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := handleRootCommand(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		n := deps.Store.Len()
		deps.Store.Clear()
		fmt.Println(lipgloss.Green.Render(fmt.Sprintf("✓ %d drafts discarded", n)))
		return nil
	},
}

func init() {
	draftsCmd.AddCommand(draftsListCmd, draftsSetCmd, draftsDropCmd, draftsClearCmd)
	rootCmd.AddCommand(draftsCmd)
}
