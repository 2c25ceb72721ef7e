// Package notify builds the notification payloads (daily brief and summary,
// conflict alerts, block reminders, weekly digests) and delivers notify.*
// events to configured webhooks.
package notify

import (
	"fmt"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

type BlockLine struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Label   string `json:"label"`
	Source  string `json:"source"`
	Skipped bool   `json:"skipped,omitempty"`
}

type Brief struct {
	Date           string              `json:"date"`
	Status         domain.DayStatus    `json:"status"`
	Blocks         []BlockLine         `json:"blocks"`
	SignalTasks    []string            `json:"signal_tasks"`
	NeedsAttention []string            `json:"needs_attention,omitempty"`
	Diagnostics    []domain.Diagnostic `json:"diagnostics,omitempty"`
}

type Summary struct {
	Date     string   `json:"date"`
	Worked   []string `json:"worked"`
	Skipped  []string `json:"skipped,omitempty"`
	Tomorrow *Brief   `json:"tomorrow,omitempty"`
}

type Alert struct {
	Date      string              `json:"date"`
	Conflicts []domain.Diagnostic `json:"conflicts"`
}

// NewBrief flattens a day into display lines using project display names.
func NewBrief(day domain.ScheduleDay, projects []domain.Project, attention []domain.Project) Brief {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.DisplayName
	}
	b := Brief{
		Date:        day.Date,
		Status:      day.Status,
		SignalTasks: append([]string{}, day.SignalTasks...),
		Diagnostics: day.Diagnostics,
	}
	for _, blk := range day.Blocks {
		b.Blocks = append(b.Blocks, BlockLine{
			Start:   blk.Start.String(),
			End:     blk.End.String(),
			Label:   Label(blk.Occupant, names),
			Source:  string(blk.Source),
			Skipped: blk.Skipped,
		})
	}
	for _, p := range attention {
		b.NeedsAttention = append(b.NeedsAttention, p.DisplayName)
	}
	return b
}

// Label names a block's occupant for people.
func Label(o domain.Occupant, names map[string]string) string {
	switch o.Kind {
	case domain.OccupantProject:
		if n, ok := names[o.Ref]; ok && n != "" {
			return n
		}
		return o.Ref
	case domain.OccupantBooking:
		if o.Label != "" {
			return "Booking: " + o.Label
		}
		return "Booking"
	case domain.OccupantOpen:
		return "Open"
	default:
		if o.Label != "" {
			return o.Label
		}
		return o.Ref
	}
}

// Markdown renders the brief as a markdown document.
func (b Brief) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Schedule for %s (%s)\n\n", b.Date, b.Status)
	sb.WriteString("| Time | Block | Source |\n|---|---|---|\n")
	for _, l := range b.Blocks {
		label := l.Label
		if l.Skipped {
			label = "~~" + label + "~~"
		}
		fmt.Fprintf(&sb, "| %s-%s | %s | %s |\n", l.Start, l.End, label, l.Source)
	}
	if len(b.SignalTasks) > 0 {
		sb.WriteString("\n## Signal tasks\n\n")
		for i, t := range b.SignalTasks {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, t)
		}
	}
	if len(b.NeedsAttention) > 0 {
		sb.WriteString("\n## Needs attention\n\n")
		for _, n := range b.NeedsAttention {
			fmt.Fprintf(&sb, "- %s\n", n)
		}
	}
	writeDiagnostics(&sb, "Notes", b.Diagnostics)
	return sb.String()
}

func (s Summary) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Wrap-up for %s\n\n", s.Date)
	if len(s.Worked) == 0 {
		sb.WriteString("No project blocks were worked.\n")
	} else {
		fmt.Fprintf(&sb, "Worked: %s\n", strings.Join(s.Worked, ", "))
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&sb, "\nSkipped: %s\n", strings.Join(s.Skipped, ", "))
	}
	if s.Tomorrow != nil {
		sb.WriteString("\n")
		sb.WriteString(s.Tomorrow.Markdown())
	}
	return sb.String()
}

func (a Alert) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Conflicts on %s\n", a.Date)
	writeDiagnostics(&sb, "Needs a decision", a.Conflicts)
	return sb.String()
}

func writeDiagnostics(sb *strings.Builder, title string, diags []domain.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s\n\n", title)
	for _, d := range diags {
		fmt.Fprintf(sb, "- %s-%s %s: %s\n", d.Start, d.End, d.Code, d.Message)
	}
}

// Conflicts returns the diagnostics that need a human decision.
func Conflicts(day domain.ScheduleDay) []domain.Diagnostic {
	var out []domain.Diagnostic
	for _, d := range day.Diagnostics {
		if d.Code == domain.DiagConflictUnresolved || d.Code == domain.DiagBookingOverlap {
			out = append(out, d)
		}
	}
	return out
}
