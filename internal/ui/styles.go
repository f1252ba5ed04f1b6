// Package ui styles the human-facing output of arka. Stdout carries the
// event stream, so everything here renders for stderr.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu palette, adaptive light/dark.
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

// Prefix starts every runner diagnostic line.
const Prefix = "[ARKA-RUNNER]"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header in upper case.
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderStatus colors a delivery or action status word with its icon.
func RenderStatus(status string) string {
	switch status {
	case "success", "ok", "pass":
		return PassStyle.Render(IconPass + " " + status)
	case "skipped":
		return MutedStyle.Render(IconSkip + " " + status)
	case "timeout":
		return WarnStyle.Render(IconWarn + " " + status)
	default:
		return FailStyle.Render(IconFail + " " + status)
	}
}

// ErrorLine formats a fatal message.
func ErrorLine(msg string) string {
	return FailStyle.Render(Prefix+" ERROR:") + " " + msg
}

// WarnLine formats a recoverable problem.
func WarnLine(msg string) string {
	return WarnStyle.Render(Prefix+" WARN:") + " " + msg
}
