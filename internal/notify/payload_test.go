package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

func sampleDay() domain.ScheduleDay {
	return domain.ScheduleDay{
		Date:   "2026-03-10",
		Status: domain.DayProposed,
		Blocks: []domain.TimeBlock{
			{Start: domain.NewClock(5, 0), End: domain.NewClock(6, 0), Occupant: domain.Occupant{Kind: domain.OccupantPersonal, Label: "Wake"}, Source: domain.SourceTemplate},
			{Start: domain.NewClock(12, 0), End: domain.NewClock(13, 0), Occupant: domain.Occupant{Kind: domain.OccupantBooking, Ref: "b1", Label: "Sales call"}, Source: domain.SourceBooking},
			{Start: domain.NewClock(13, 0), End: domain.NewClock(15, 0), Occupant: domain.ProjectOccupant("sigmavue"), Source: domain.SourceRotation, Skipped: true},
			{Start: domain.NewClock(15, 30), End: domain.NewClock(17, 0), Occupant: domain.Occupant{Kind: domain.OccupantOpen}, Source: domain.SourceRotation},
		},
		SignalTasks: []string{"sigmavue: ship auth"},
		Diagnostics: []domain.Diagnostic{
			{Code: domain.DiagRemainderDropped, Start: domain.NewClock(15, 0), End: domain.NewClock(15, 10), Message: "remainder too short"},
			{Code: domain.DiagConflictUnresolved, Start: domain.NewClock(5, 30), End: domain.NewClock(6, 0), BookingID: "b2", Message: "booking overlaps wake"},
		},
	}
}

func TestNewBriefUsesDisplayNames(t *testing.T) {
	projects := []domain.Project{{ID: "sigmavue", DisplayName: "Sigmavue"}, {ID: "acme", DisplayName: "Acme"}}
	b := NewBrief(sampleDay(), projects, projects[1:])

	require.Len(t, b.Blocks, 4)
	assert.Equal(t, "Wake", b.Blocks[0].Label)
	assert.Equal(t, "Booking: Sales call", b.Blocks[1].Label)
	assert.Equal(t, "Sigmavue", b.Blocks[2].Label)
	assert.True(t, b.Blocks[2].Skipped)
	assert.Equal(t, "Open", b.Blocks[3].Label)
	assert.Equal(t, "13:00", b.Blocks[2].Start)
	assert.Equal(t, []string{"Acme"}, b.NeedsAttention)

	md := b.Markdown()
	assert.Contains(t, md, "# Schedule for 2026-03-10 (proposed)")
	assert.Contains(t, md, "| 13:00-15:00 | ~~Sigmavue~~ | rotation |")
	assert.Contains(t, md, "1. sigmavue: ship auth")
	assert.Contains(t, md, "- Acme")
	assert.Contains(t, md, "conflict_unresolved: booking overlaps wake")
}

func TestSummaryMarkdown(t *testing.T) {
	b := NewBrief(sampleDay(), nil, nil)
	s := Summary{Date: "2026-03-09", Worked: []string{"Sigmavue", "Acme"}, Skipped: []string{"Projb"}, Tomorrow: &b}
	md := s.Markdown()
	assert.Contains(t, md, "# Wrap-up for 2026-03-09")
	assert.Contains(t, md, "Worked: Sigmavue, Acme")
	assert.Contains(t, md, "Skipped: Projb")
	assert.Contains(t, md, "# Schedule for 2026-03-10")

	empty := Summary{Date: "2026-03-09"}.Markdown()
	assert.Contains(t, empty, "No project blocks were worked.")
}

func TestConflictsAndAlert(t *testing.T) {
	day := sampleDay()
	conflicts := Conflicts(day)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "b2", conflicts[0].BookingID)

	md := Alert{Date: day.Date, Conflicts: conflicts}.Markdown()
	assert.Contains(t, md, "# Conflicts on 2026-03-10")
	assert.Contains(t, md, "## Needs a decision")
	assert.NotContains(t, md, "remainder too short")
}
