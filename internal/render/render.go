// Package render turns a view.View into terminal text.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	bar "charm.land/bubbles/v2/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/progress"
	"github.com/roshanis/shopagent/internal/view"
)

// Theme holds the color scheme.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// DefaultTheme is used when no theme is given.
var DefaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warning: lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// Renderer draws views. The zero value is not usable; call New.
type Renderer struct {
	theme Theme
	bar   bar.Model
	// Hint is shown under the observing view.
	Hint string
}

// New creates a Renderer with a 40 column progress bar.
func New(theme Theme) *Renderer {
	return &Renderer{
		theme: theme,
		bar: bar.New(
			bar.WithDefaultBlend(),
			bar.WithWidth(40),
		),
		Hint: "Press Ctrl+C to cancel the evaluation",
	}
}

// Render returns the text for v.
func (r *Renderer) Render(v view.View) string {
	switch v.State {
	case view.StateObserving:
		return r.observing(v)
	case view.StateResults:
		return r.results(v)
	default:
		return r.submission(v)
	}
}

func (r *Renderer) submission(v view.View) string {
	if v.Message == "" {
		return r.theme.hintStyle().Render("Ready to evaluate a product.") + "\n"
	}
	return r.theme.errorStyle().Render("✗ "+v.Message) + "\n"
}

func (r *Renderer) observing(v view.View) string {
	if v.Status == nil {
		return r.theme.statusStyle().Render("[submitted]") + " waiting for first status...\n"
	}
	s := v.Summary

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %3d%%\n",
		r.theme.statusStyle().Render(fmt.Sprintf("[%s]", v.Status.Status)),
		r.bar.ViewAs(s.Overall),
		s.Percent,
	)
	for _, w := range s.Workers {
		fmt.Fprintf(&b, "  %s %-20s %3d%%\n", workerIcon(w.State), w.Name, w.Percent)
	}
	fmt.Fprintf(&b, "  elapsed %s", formatDuration(s.Elapsed))
	if s.EstimatedRemaining > 0 {
		fmt.Fprintf(&b, ", about %s left", formatDuration(s.EstimatedRemaining))
	}
	b.WriteString("\n")
	if r.Hint != "" {
		b.WriteString(r.theme.hintStyle().Render(r.Hint) + "\n")
	}
	return b.String()
}

func (r *Renderer) results(v view.View) string {
	res := v.Result
	var b strings.Builder

	fmt.Fprintf(&b, "%s  overall %d/100, confidence %d%%\n\n",
		r.recommendation(res.OverallRecommendation),
		res.OverallScore,
		res.Confidence,
	)

	names := make([]string, 0, len(res.AgentResults))
	for name := range res.AgentResults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ar := res.AgentResults[name]
		fmt.Fprintf(&b, "  %-20s %3d  %s\n", name, ar.Score, r.recommendation(ar.Recommendation))
	}

	if len(res.KeyStrengths) > 0 {
		b.WriteString("\n" + r.theme.successStyle().Render("Strengths") + "\n")
		for _, s := range res.KeyStrengths {
			fmt.Fprintf(&b, "  • %s\n", s)
		}
	}
	if len(res.KeyConcerns) > 0 {
		b.WriteString("\n" + r.theme.warningStyle().Render("Concerns") + "\n")
		for _, c := range res.KeyConcerns {
			fmt.Fprintf(&b, "  • %s\n", c)
		}
	}
	return b.String()
}

func (r *Renderer) recommendation(rec evaluation.Recommendation) string {
	label := strings.ToUpper(string(rec))
	switch rec {
	case evaluation.RecommendationBuy:
		return r.theme.successStyle().Render("✓ " + label)
	case evaluation.RecommendationAvoid:
		return r.theme.errorStyle().Render("✗ " + label)
	case evaluation.RecommendationError:
		return r.theme.errorStyle().Render("! " + label)
	default:
		return r.theme.warningStyle().Render("~ " + label)
	}
}

func workerIcon(s progress.WorkerState) string {
	switch s {
	case progress.WorkerCompleted:
		return "●"
	case progress.WorkerRunning:
		return "◐"
	default:
		return "○"
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
