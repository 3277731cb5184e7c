package terminal

import "github.com/charmbracelet/lipgloss"

var (
	infoSymbolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true).
			SetString("ⓘ")

	errorSymbolStyle = lipgloss.NewStyle().
				SetString("❌")

	warningSymbolStyle = lipgloss.NewStyle().
				SetString("⚠️")

	successSymbolStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10")).
				Bold(true).
				SetString("✔")

	questionSymbolStyle = lipgloss.NewStyle().
				SetString("❓")

	actionSymbolStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				SetString("▶")

	linkSymbolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			SetString("→")

	tipSymbolStyle = lipgloss.NewStyle().
			SetString("💡")
)

var (
	// InfoSymbol (ⓘ)
	InfoSymbol = infoSymbolStyle.String()

	// WarningSymbol (⚠️)
	WarningSymbol = warningSymbolStyle.String()

	// ErrorSymbol (❌)
	ErrorSymbol = errorSymbolStyle.String()

	// SuccessSymbol (✔)
	SuccessSymbol = successSymbolStyle.String()

	// QuestionSymbol (❓)
	QuestionSymbol = questionSymbolStyle.String()

	// ActionSymbol (▶)
	ActionSymbol = actionSymbolStyle.String()

	// LinkSymbol (→)
	LinkSymbol = linkSymbolStyle.String()

	// TipSymbol (💡)
	TipSymbol = tipSymbolStyle.String()
)

var (
	boldStyle    = lipgloss.NewStyle().Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func Bold(s string) string {
	return boldStyle.Render(s)
}

func Title(s string) string {
	return titleStyle.Render(s)
}

func Subtle(s string) string {
	return subtleStyle.Render(s)
}

func Warning(s string) string {
	return warningStyle.Render(s)
}

func Prompt(s string) string {
	return promptStyle.Render(s)
}
