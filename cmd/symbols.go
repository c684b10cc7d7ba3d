package cmd

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/symbol_index"
	"github.com/meysamhadeli/unitcache/utils"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file>",
	Short: "Compile a file and list its classified symbols",
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
		unit, err := deps.Service.GetUnit(cmd.Context(), file, 0).Await(cmd.Context())
		if err != nil {
			return err
		}

		rows := [][]string{{"Symbol", "Kind"}}
		unit.Symbols.Each(func(word string, kind symbol_index.Kind) bool {
			rows = append(rows, []string{word, kind.String()})
			return true
		})
		if len(rows) == 1 {
			fmt.Println(lipgloss.Yellow.Render("No symbols found"))
			return nil
		}
		fmt.Println(lipgloss.Info.Render(fmt.Sprintf("%s (sequence %d)", file.Rel(), unit.Sequence)))
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

var highlightCmd = &cobra.Command{
	Use:   "highlight <file>",
	Short: "Print a file with identifiers colored by symbol kind",
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

		if theme, _ := cmd.Flags().GetString("theme"); theme != "" {
			src, err := os.ReadFile(file.Path)
			if err != nil {
				return err
			}
			if draft, ok := deps.Store.Get(file); ok {
				src = draft.Content
			}
			return utils.HighlightTheme(os.Stdout, file.Path, src, theme)
		}

		if err := deps.startService(cmd.Context()); err != nil {
			return err
		}
		deps.Core.SetActiveFile(file)
		unit, err := deps.Service.GetUnit(cmd.Context(), file, 0).Await(cmd.Context())
		if err != nil {
			return err
		}
		spans, err := utils.ClassifySource(file.Path, unit.Source(), deps.Core.QuerySymbolKind)
		if err != nil {
			return err
		}
		return utils.RenderSpans(os.Stdout, spans)
	},
}

func init() {
	highlightCmd.Flags().String("theme", "", "Render with a chroma theme (e.g. 'dracula') instead of symbol kinds")
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(highlightCmd)
}
