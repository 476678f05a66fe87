package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Counts renders an imported/updated pair, dimming zero values.
func Counts(label string, imported, updated int) string {
	num := func(n int, what string) string {
		s := fmt.Sprintf("%d %s", n, what)
		if n == 0 {
			return RenderMuted(s)
		}
		return RenderAccent(s)
	}
	return KeyValue(label, num(imported, "imported")+", "+num(updated, "updated"))
}

// Box frames lines with a rounded border.
func Box(lines ...string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
