package ui

import "github.com/charmbracelet/lipgloss"

// ViewCode renders the code phrase display block the sender shows once a
// phrase has been generated.
func ViewCode(phrase string) string {
	return lipgloss.JoinVertical(lipgloss.Center,
		"Share this code with the receiver (copied to clipboard):",
		CodeStyle.Render(phrase),
	)
}
