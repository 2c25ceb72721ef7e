package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

func slot(name string, start, end string, kind domain.SlotKind) domain.TemplateSlot {
	s, err := domain.ParseClock(start)
	if err != nil {
		panic(err)
	}
	e, err := domain.ParseClock(end)
	if err != nil {
		panic(err)
	}
	return domain.TemplateSlot{Name: name, Start: s, End: e, Kind: kind}
}

func sampleTemplate() domain.RoutineTemplate {
	primary := slot("primary", "12:00", "15:00", domain.SlotWorkWindow)
	primary.Always = true
	return domain.RoutineTemplate{Slots: []domain.TemplateSlot{
		slot("rotation-late", "15:30", "17:00", domain.SlotWorkWindow),
		slot("wake", "05:00", "06:00", domain.SlotFixedPersonal),
		primary,
		slot("rotation-early", "09:00", "11:00", domain.SlotWorkWindow),
		slot("break", "15:00", "15:30", domain.SlotFixedPersonal),
	}}
}

func sampleProjects() []domain.Project {
	return []domain.Project{
		{ID: "projb", Tier: domain.TierRotating, LastWorkedDate: "2026-03-09", Active: true},
		{ID: "sigmavue", Tier: domain.TierAlways, LastWorkedDate: "2026-03-09", Active: true},
		{ID: "proja", Tier: domain.TierRotating, LastWorkedDate: "2026-03-07", Active: true},
	}
}

func occupants(day domain.ScheduleDay) []string {
	var out []string
	for _, b := range day.Blocks {
		out = append(out, b.Start.String()+" "+b.Occupant.Ref)
	}
	return out
}

func TestPlanRotationOrder(t *testing.T) {
	day, err := Plan("2026-03-10", sampleProjects(), sampleTemplate(), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.DayDraft, day.Status)
	assert.Equal(t, []string{
		"05:00 wake",
		"09:00 proja",
		"12:00 sigmavue",
		"15:00 break",
		"15:30 projb",
	}, occupants(day))
	assert.Empty(t, day.Diagnostics)

	primary := day.Blocks[2]
	assert.True(t, primary.Always)
	assert.Equal(t, domain.SourceRotation, primary.Source)
	assert.Equal(t, domain.SourceTemplate, day.Blocks[0].Source)
	assert.Equal(t, day.Blocks, day.Base)
}

func TestPlanAlwaysProjectHoldsDesignatedSlotRegardlessOfState(t *testing.T) {
	projects := sampleProjects()
	statuses := map[string]domain.PRDStatus{
		"proja":    {ProjectID: "proja", PhasePriority: domain.PhaseP0},
		"sigmavue": {ProjectID: "sigmavue", PhasePriority: domain.PhaseP2},
	}
	projects[1].LastWorkedDate = ""
	day, err := Plan("2026-03-10", projects, sampleTemplate(), statuses, Options{})
	require.NoError(t, err)

	var always []domain.TimeBlock
	for _, b := range day.Blocks {
		if b.Occupant.Ref == "sigmavue" {
			always = append(always, b)
		}
	}
	require.Len(t, always, 1)
	assert.Equal(t, "12:00", always[0].Start.String())
}

func TestPlanFirstWindowDesignatedWithoutFlag(t *testing.T) {
	tmpl := domain.RoutineTemplate{Slots: []domain.TemplateSlot{
		slot("a", "09:00", "10:00", domain.SlotWorkWindow),
		slot("b", "10:00", "11:00", domain.SlotWorkWindow),
	}}
	day, err := Plan("2026-03-10", sampleProjects(), tmpl, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 sigmavue", "10:00 proja"}, occupants(day))
}

func TestPlanIsDeterministic(t *testing.T) {
	a, err := Plan("2026-03-10", sampleProjects(), sampleTemplate(), nil, Options{})
	require.NoError(t, err)
	b, err := Plan("2026-03-10", sampleProjects(), sampleTemplate(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ids := map[string]bool{}
	for _, blk := range a.Blocks {
		require.NotEmpty(t, blk.ID)
		assert.False(t, ids[blk.ID], "duplicate block id")
		ids[blk.ID] = true
	}
}

func TestPlanRepeatsLowestRankedWhenShortOfProjects(t *testing.T) {
	tmpl := sampleTemplate()
	tmpl.Slots = append(tmpl.Slots, slot("rotation-evening", "18:00", "19:00", domain.SlotWorkWindow))

	day, err := Plan("2026-03-10", sampleProjects(), tmpl, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "projb", day.Blocks[len(day.Blocks)-1].Occupant.Ref)
	assert.Equal(t, "projb", day.Blocks[len(day.Blocks)-2].Occupant.Ref)
	assert.False(t, day.HasDiagnostic(domain.DiagSlotUnfillable))
}

func TestPlanFlagsUnfillableSlots(t *testing.T) {
	projects := []domain.Project{{ID: "sigmavue", Tier: domain.TierAlways, Active: true}}
	day, err := Plan("2026-03-10", projects, sampleTemplate(), nil, Options{})
	require.NoError(t, err)

	assert.True(t, day.HasDiagnostic(domain.DiagSlotUnfillable))
	var open int
	for _, b := range day.Blocks {
		if b.Occupant.Kind == domain.OccupantOpen {
			open++
		}
	}
	assert.Equal(t, 2, open)
}

func TestPlanWithoutWorkWindows(t *testing.T) {
	tmpl := domain.RoutineTemplate{Slots: []domain.TemplateSlot{
		slot("wake", "05:00", "06:00", domain.SlotFixedPersonal),
	}}
	day, err := Plan("2026-03-10", sampleProjects(), tmpl, nil, Options{})
	require.NoError(t, err)
	assert.True(t, day.HasDiagnostic(domain.DiagNoWorkWindows))
	assert.Len(t, day.Blocks, 1)
	assert.Empty(t, day.SignalTasks)
}

func TestPlanSkipsInactiveProjects(t *testing.T) {
	projects := sampleProjects()
	projects[2].Active = false
	day, err := Plan("2026-03-10", projects, sampleTemplate(), nil, Options{})
	require.NoError(t, err)
	for _, b := range day.Blocks {
		assert.NotEqual(t, "proja", b.Occupant.Ref)
	}
}

func TestPlanHonoursWeekdays(t *testing.T) {
	tmpl := sampleTemplate()
	gym := slot("gym", "06:00", "07:00", domain.SlotFixedPersonal)
	gym.Days = []string{"mon", "wed", "fri"}
	tmpl.Slots = append(tmpl.Slots, gym)

	// 2026-03-09 is a Monday, 2026-03-10 a Tuesday
	mon, err := Plan("2026-03-09", sampleProjects(), tmpl, nil, Options{})
	require.NoError(t, err)
	tue, err := Plan("2026-03-10", sampleProjects(), tmpl, nil, Options{})
	require.NoError(t, err)
	assert.Len(t, mon.Blocks, len(tue.Blocks)+1)
}

func TestSignalTasks(t *testing.T) {
	tmpl := sampleTemplate()
	tmpl.Slots = append(tmpl.Slots, slot("rotation-evening", "18:00", "19:00", domain.SlotWorkWindow))
	projects := append(sampleProjects(), domain.Project{ID: "client", Tier: domain.TierClient, Active: true})

	day, err := Plan("2026-03-10", projects, tmpl, nil, Options{})
	require.NoError(t, err)
	require.Len(t, day.SignalTasks, 3)

	first, ok := day.Block(day.SignalTasks[0])
	require.True(t, ok)
	assert.Equal(t, "sigmavue", first.Occupant.Ref)
	second, _ := day.Block(day.SignalTasks[1])
	assert.Equal(t, "client", second.Occupant.Ref)
	third, _ := day.Block(day.SignalTasks[2])
	assert.Equal(t, "proja", third.Occupant.Ref)

	day, err = Plan("2026-03-10", projects, tmpl, nil, Options{SignalLimit: 1})
	require.NoError(t, err)
	assert.Len(t, day.SignalTasks, 1)
}

func TestPlanRejectsBadDate(t *testing.T) {
	_, err := Plan("10/03/2026", sampleProjects(), sampleTemplate(), nil, Options{})
	assert.Error(t, err)
}
