package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/models"
)

var completeCmd = &cobra.Command{
	Use:   "complete <file> <line:column>",
	Short: "Complete the word before a position",
	Args:  cobra.ExactArgs(2),
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
		pos, err := parsePosition(args[1])
		if err != nil {
			return err
		}
		if err := deps.startService(cmd.Context()); err != nil {
			return err
		}

		items, err := deps.Core.RequestCompletion(cmd.Context(), file, pos).Await(cmd.Context())
		if err != nil {
			return err
		}
		for _, item := range items {
			line := fmt.Sprintf("%-32s %s", item.Text, lipgloss.Dim.Render(item.Kind.String()))
			if item.Detail != "" {
				line += "  " + lipgloss.Dim.Render(item.Detail)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <file>",
	Short: "Report syntax errors in a file",
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

		diags, err := deps.Core.RequestDiagnostics(cmd.Context(), file).Await(cmd.Context())
		if err != nil {
			return err
		}
		if len(diags) == 0 {
			fmt.Println(lipgloss.Green.Render(fmt.Sprintf("✓ %s: no problems", file.Rel())))
			return nil
		}
		for _, d := range diags {
			fmt.Println(formatDiagnostic(d))
		}
		return nil
	},
}

func formatDiagnostic(d models.Diagnostic) string {
	severity := lipgloss.Yellow.Render(d.Severity.String())
	if d.Severity == models.SeverityError {
		severity = lipgloss.Red.Render(d.Severity.String())
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File.Rel(), d.Start.Line+1, d.Start.Column+1, severity, d.Message)
}

func init() {
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(diagnoseCmd)
}
