package styles

import (
	"github.com/charmbracelet/lipgloss"

	"stocksim/internal/memorystore"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7C3AED") // Purple
	SuccessColor = lipgloss.Color("#10B981") // Green
	WarningColor = lipgloss.Color("#F59E0B") // Amber
	ErrorColor   = lipgloss.Color("#EF4444") // Red
	InfoColor    = lipgloss.Color("#3B82F6") // Blue

	BorderColor        = lipgloss.Color("#374151")
	TextColor          = lipgloss.Color("#F9FAFB")
	TextSecondaryColor = lipgloss.Color("#9CA3AF")
	TextMutedColor     = lipgloss.Color("#6B7280")
)

var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextSecondaryColor)

	RowStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	MutedStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor)

	ConnectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(SuccessColor)

	DisconnectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ErrorColor)

	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("240")).
			Foreground(lipgloss.Color("0"))
)

// ToastStyle returns the style for a notification severity.
func ToastStyle(t memorystore.NotificationType) lipgloss.Style {
	color := InfoColor
	switch t {
	case memorystore.NotificationSuccess:
		color = SuccessColor
	case memorystore.NotificationWarning:
		color = WarningColor
	case memorystore.NotificationError:
		color = ErrorColor
	}
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(color).
		Foreground(color).
		PaddingLeft(1)
}
