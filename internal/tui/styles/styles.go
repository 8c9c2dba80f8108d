package styles

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Amber     = lipgloss.Color("#F59E0B")
	SlateDark = lipgloss.Color("#1F2937")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Red       = lipgloss.Color("#EF4444")
	Blue      = lipgloss.Color("#3B82F6")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(Amber)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)
)

// Schedule styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(SlateDark).
			Bold(true).
			Padding(0, 1)

	TimeStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Width(6)

	SourceStyle = lipgloss.NewStyle().
			Foreground(Blue)

	NoteStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Italic(true)

	FlagStyle = lipgloss.NewStyle().
			Foreground(SlateDark).
			Background(LightGray).
			Padding(0, 1)
)

// Progress styles
var (
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Amber)

	StageStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true).
			Width(10)
)

// Progress bar gradient endpoints
const (
	ProgressStart = "#F59E0B"
	ProgressEnd   = "#10B981"
)

// Truncate truncates a string to the given width with ellipsis
func Truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
