package notify

import (
	"fmt"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// Reminder announces a block of the active day as it starts.
type Reminder struct {
	Date    string              `json:"date"`
	BlockID string              `json:"block_id"`
	Start   string              `json:"start"`
	End     string              `json:"end"`
	Kind    domain.OccupantKind `json:"kind"`
	Label   string              `json:"label"`
	Signal  bool                `json:"signal,omitempty"`
	// Suggestions lists projects needing attention for rotation and open blocks.
	Suggestions []string `json:"suggestions,omitempty"`
}

// NewReminder describes blk; attention is only used for rotation-filled
// and open blocks.
func NewReminder(day domain.ScheduleDay, blk domain.TimeBlock, names map[string]string, attention []domain.Project) Reminder {
	r := Reminder{
		Date:    day.Date,
		BlockID: blk.ID,
		Start:   blk.Start.String(),
		End:     blk.End.String(),
		Kind:    blk.Occupant.Kind,
		Label:   Label(blk.Occupant, names),
	}
	for _, id := range day.SignalTasks {
		if id == blk.ID {
			r.Signal = true
		}
	}
	if blk.Occupant.Kind == domain.OccupantOpen || (blk.Source == domain.SourceRotation && !blk.Always) {
		for _, p := range attention {
			if p.ID != blk.Occupant.Ref {
				r.Suggestions = append(r.Suggestions, p.DisplayName)
			}
		}
	}
	return r
}

func (r Reminder) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s-%s %s\n\n", r.Start, r.End, r.Label)
	switch r.Kind {
	case domain.OccupantPersonal:
		fmt.Fprintf(&sb, "Step away until %s.\n", r.End)
	case domain.OccupantOpen:
		sb.WriteString("Nothing is assigned to this window.\n")
	default:
		fmt.Fprintf(&sb, "Starts now, runs until %s.\n", r.End)
	}
	if r.Signal {
		sb.WriteString("\nThis is a signal block.\n")
	}
	if len(r.Suggestions) > 0 {
		fmt.Fprintf(&sb, "\nNeeds attention: %s\n", strings.Join(r.Suggestions, ", "))
	}
	return sb.String()
}

// DayOutline is one day of the week-ahead preview. An empty Status means
// the day has not been planned yet.
type DayOutline struct {
	Date     string           `json:"date"`
	Weekday  string           `json:"weekday"`
	Status   domain.DayStatus `json:"status,omitempty"`
	Projects []string         `json:"projects,omitempty"`
	Bookings []string         `json:"bookings,omitempty"`
}

type WeekAhead struct {
	From           string       `json:"from"`
	To             string       `json:"to"`
	Days           []DayOutline `json:"days"`
	Always         string       `json:"always,omitempty"`
	Rotation       []string     `json:"rotation"`
	NeedsAttention []string     `json:"needs_attention,omitempty"`
}

// NewDayOutline lists the distinct projects and bookings of a stored day.
func NewDayOutline(date, weekday string, day *domain.ScheduleDay, names map[string]string) DayOutline {
	o := DayOutline{Date: date, Weekday: weekday}
	if day == nil {
		return o
	}
	o.Status = day.Status
	seen := map[string]bool{}
	for _, blk := range day.Blocks {
		switch {
		case blk.Skipped:
		case blk.Occupant.IsProject() && !seen[blk.Occupant.Ref]:
			seen[blk.Occupant.Ref] = true
			o.Projects = append(o.Projects, Label(blk.Occupant, names))
		case blk.Occupant.Kind == domain.OccupantBooking:
			o.Bookings = append(o.Bookings, fmt.Sprintf("%s %s", blk.Start, Label(blk.Occupant, names)))
		}
	}
	return o
}

func (w WeekAhead) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Week ahead: %s to %s\n\n", w.From, w.To)
	sb.WriteString("| Day | Status | Projects | Bookings |\n|---|---|---|---|\n")
	for _, d := range w.Days {
		status := string(d.Status)
		if status == "" {
			status = "not planned"
		}
		fmt.Fprintf(&sb, "| %s %s | %s | %s | %s |\n", d.Weekday, d.Date, status, strings.Join(d.Projects, ", "), strings.Join(d.Bookings, ", "))
	}
	if w.Always != "" {
		fmt.Fprintf(&sb, "\n%s keeps its daily block.\n", w.Always)
	}
	if len(w.Rotation) > 0 {
		sb.WriteString("\n## Rotation order\n\n")
		for i, n := range w.Rotation {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, n)
		}
	}
	if len(w.NeedsAttention) > 0 {
		sb.WriteString("\n## Needs attention\n\n")
		for _, n := range w.NeedsAttention {
			fmt.Fprintf(&sb, "- %s\n", n)
		}
	}
	return sb.String()
}

type ProjectTime struct {
	Project string `json:"project"`
	Minutes int    `json:"minutes"`
	Days    int    `json:"days"`
}

// WeeklyReview looks back over the active and archived days of the last
// seven days.
type WeeklyReview struct {
	From      string        `json:"from"`
	To        string        `json:"to"`
	Days      int           `json:"days"`
	Worked    []ProjectTime `json:"worked"`
	Skipped   []string      `json:"skipped,omitempty"`
	Untouched []string      `json:"untouched,omitempty"`
	Completed int           `json:"items_completed"`
}

func (r WeeklyReview) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Weekly review: %s to %s\n\n", r.From, r.To)
	fmt.Fprintf(&sb, "%d days tracked, %d roadmap items completed.\n", r.Days, r.Completed)
	if len(r.Worked) == 0 {
		sb.WriteString("\nNo project time was logged.\n")
	} else {
		sb.WriteString("\n| Project | Hours | Days |\n|---|---|---|\n")
		for _, w := range r.Worked {
			fmt.Fprintf(&sb, "| %s | %.1f | %d |\n", w.Project, float64(w.Minutes)/60, w.Days)
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&sb, "\nSkipped: %s\n", strings.Join(r.Skipped, ", "))
	}
	if len(r.Untouched) > 0 {
		fmt.Fprintf(&sb, "\nNot touched: %s\n", strings.Join(r.Untouched, ", "))
	}
	return sb.String()
}
