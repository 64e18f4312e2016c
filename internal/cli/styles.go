package cli

import (
	"bilancio/internal/dashboard"

	"github.com/charmbracelet/lipgloss"
)

var (
	positiveColor = lipgloss.Color("#4ECDC4")
	negativeColor = lipgloss.Color("#FF6B6B")
	subtleColor   = lipgloss.Color("#666666")

	titleStyle    = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	positiveStyle = lipgloss.NewStyle().Foreground(positiveColor)
	negativeStyle = lipgloss.NewStyle().Foreground(negativeColor)
	subtleStyle   = lipgloss.NewStyle().Foreground(subtleColor)
	successStyle  = lipgloss.NewStyle().Foreground(positiveColor)
)

// variantStyle colors a stat value by its variant.
func variantStyle(variant string) lipgloss.Style {
	switch variant {
	case dashboard.VariantPositive:
		return positiveStyle
	case dashboard.VariantNegative:
		return negativeStyle
	default:
		return lipgloss.NewStyle()
	}
}
