package observer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"focusgate/internal/snapshot"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	breakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F7DC6F")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)
)

// FormatDuration renders d as h:mm:ss
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// RenderCard draws the live activity card for a view
func RenderCard(v View) string {
	lines := []string{titleStyle.Render("focusgate")}

	switch v.State {
	case StateIdle:
		lines = append(lines, idleStyle.Render("No focus session"))
	case StateUnavailable:
		lines = append(lines, warnStyle.Render("Session state unavailable"))
	default:
		name := v.ProfileName
		if v.StaleProfile {
			name += warnStyle.Render(" (profile removed)")
		}
		lines = append(lines, name)

		if v.State == StateOnBreak {
			lines = append(lines,
				breakStyle.Render("On break  "+FormatDuration(v.Elapsed)),
				"Break left "+FormatDuration(v.BreakRemaining),
			)
		} else {
			lines = append(lines, activeStyle.Render("Focusing  "+FormatDuration(v.Elapsed)))
		}

		var badges []string
		if v.Strategy != "" {
			badges = append(badges, v.Strategy)
		}
		if v.Scheduled {
			badges = append(badges, "scheduled")
		}
		if v.Forced {
			badges = append(badges, "forced")
		}
		if v.StrictMode {
			badges = append(badges, "strict")
		}
		if v.Targets > 0 {
			badges = append(badges, fmt.Sprintf("%d targets", v.Targets))
		}
		if len(badges) > 0 {
			lines = append(lines, idleStyle.Render(strings.Join(badges, " · ")))
		}
	}

	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// RenderProfiles draws the profile directory as a list
func RenderProfiles(profiles []snapshot.ProfileSnapshot) string {
	if len(profiles) == 0 {
		return idleStyle.Render("no profiles")
	}

	var b strings.Builder
	for _, p := range profiles {
		flags := p.Strategy
		if len(p.Schedule) > 0 {
			flags += fmt.Sprintf(", %d windows", len(p.Schedule))
		}
		if p.EnableBreaks {
			flags += fmt.Sprintf(", %dm break", p.BreakDurationMinutes)
		}
		if p.EnableStrictMode {
			flags += ", strict"
		}
		fmt.Fprintf(&b, "%s  %s  %s\n", activeStyle.Render(p.Name), idleStyle.Render(p.ID), flags)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderHistory draws completed sessions, newest first. names maps profile
// IDs to display names; unknown IDs are shown as is.
func RenderHistory(sessions []snapshot.SessionSnapshot, names map[string]string, loc *time.Location) string {
	if len(sessions) == 0 {
		return idleStyle.Render("no completed sessions")
	}
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		name, ok := names[s.BlockedProfileID]
		if !ok {
			name = s.BlockedProfileID
		}
		fmt.Fprintf(&b, "%s  %-20s  %s\n",
			s.StartTime.In(loc).Format("2006-01-02 15:04"),
			name,
			FormatDuration(s.DisplayElapsed(s.StartTime)),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// CardRenderer writes the card to w on every render
type CardRenderer struct {
	w io.Writer
	// ClearScreen redraws in place on terminals
	ClearScreen bool
}

// NewCardRenderer creates a renderer writing to w
func NewCardRenderer(w io.Writer, clearScreen bool) *CardRenderer {
	return &CardRenderer{w: w, ClearScreen: clearScreen}
}

func (r *CardRenderer) Render(v View) error {
	prefix := ""
	if r.ClearScreen {
		prefix = "\033[H\033[2J"
	}
	_, err := fmt.Fprintf(r.w, "%s%s\n", prefix, RenderCard(v))
	return err
}
