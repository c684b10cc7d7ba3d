package lipgloss

import "github.com/charmbracelet/lipgloss"

var (
	Red    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	Green  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787"))
	Yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))
	Info   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF")).Bold(true)
	Dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5FAFFF")).
			Padding(0, 1)

	// Symbol kinds as shown by the highlight command.
	TypeName     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD7D7"))
	FunctionName = lipgloss.NewStyle().Foreground(lipgloss.Color("#87AFFF"))
	MacroName    = lipgloss.NewStyle().Foreground(lipgloss.Color("#D787D7"))
	Keyword      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF5F")).Bold(true)
	Comment      = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Italic(true)
	String       = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFD787"))
)
