package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/planner"
	"github.com/Dallionking/donna-assistant/internal/resolver"
)

func clock(s string) domain.Clock {
	c, err := domain.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func testMachine() Machine {
	projects := []domain.Project{
		{ID: "sigmavue", Tier: domain.TierAlways, Active: true},
		{ID: "proja", Tier: domain.TierRotating, LastWorkedDate: "2026-03-07", Active: true},
		{ID: "projb", Tier: domain.TierRotating, LastWorkedDate: "2026-03-09", Active: true},
	}
	primary := domain.TemplateSlot{Name: "primary", Start: clock("12:00"), End: clock("15:00"), Kind: domain.SlotWorkWindow, Always: true}
	tmpl := domain.RoutineTemplate{Slots: []domain.TemplateSlot{
		{Name: "wake", Start: clock("05:00"), End: clock("06:00"), Kind: domain.SlotFixedPersonal},
		{Name: "early", Start: clock("09:00"), End: clock("11:00"), Kind: domain.SlotWorkWindow},
		primary,
		{Name: "late", Start: clock("15:30"), End: clock("17:00"), Kind: domain.SlotWorkWindow},
	}}
	return Machine{
		Plan: func(date string) (domain.ScheduleDay, error) {
			return planner.Plan(date, projects, tmpl, nil, planner.Options{})
		},
		Resolve: func(day domain.ScheduleDay, bookings []domain.BookingEvent) (domain.ScheduleDay, error) {
			return resolver.Resolve(day, bookings, resolver.Options{Projects: projects})
		},
	}
}

func isInvalidTransition(t *testing.T, err error) domain.InvalidTransitionError {
	t.Helper()
	var inv domain.InvalidTransitionError
	require.True(t, errors.As(err, &inv), "expected InvalidTransitionError, got %v", err)
	return inv
}

func approvedDay(t *testing.T, m Machine, book *Book, date string) {
	t.Helper()
	_, err := m.Replan(book, date)
	require.NoError(t, err)
	_, err = m.Propose(book, date, nil)
	require.NoError(t, err)
	_, err = m.Approve(book, date)
	require.NoError(t, err)
}

func TestLifecycle(t *testing.T) {
	m := testMachine()
	book := NewBook()

	day, err := m.Replan(book, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, domain.DayDraft, day.Status)
	assert.Equal(t, 1, day.Version)

	day, err = m.Propose(book, "2026-03-10", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DayProposed, day.Status)

	day, err = m.Approve(book, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, domain.DayApproved, day.Status)

	day, err = m.Activate(book, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, domain.DayActive, day.Status)

	day, worked, err := m.Archive(book, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, domain.DayArchived, day.Status)
	assert.Equal(t, []string{"proja", "projb", "sigmavue"}, worked)
	assert.Equal(t, 5, day.Version)
}

func TestDraftAndProposedRegenerateInPlace(t *testing.T) {
	m := testMachine()
	book := NewBook()
	for i := 0; i < 3; i++ {
		_, err := m.Replan(book, "2026-03-10")
		require.NoError(t, err)
		_, err = m.Propose(book, "2026-03-10", nil)
		require.NoError(t, err)
	}
	day, ok := book.Day("2026-03-10")
	require.True(t, ok)
	assert.Equal(t, domain.DayProposed, day.Status)
}

func TestBackwardMovesAreRejected(t *testing.T) {
	m := testMachine()
	book := NewBook()
	approvedDay(t, m, book, "2026-03-10")
	_, err := m.Activate(book, "2026-03-10")
	require.NoError(t, err)
	before := book.Days()

	_, err = m.Replan(book, "2026-03-10")
	inv := isInvalidTransition(t, err)
	assert.Equal(t, domain.DayActive, inv.From)
	assert.Equal(t, domain.DayDraft, inv.To)

	_, err = m.Approve(book, "2026-03-10")
	isInvalidTransition(t, err)

	assert.Equal(t, before, book.Days())
}

func TestApproveRequiresProposed(t *testing.T) {
	m := testMachine()
	book := NewBook()
	_, err := m.Approve(book, "2026-03-10")
	isInvalidTransition(t, err)

	_, err = m.Replan(book, "2026-03-10")
	require.NoError(t, err)
	_, err = m.Approve(book, "2026-03-10")
	isInvalidTransition(t, err)
}

func TestApproveWhileActiveQueuesTomorrow(t *testing.T) {
	m := testMachine()
	book := NewBook()
	approvedDay(t, m, book, "2026-03-10")
	_, err := m.Activate(book, "2026-03-10")
	require.NoError(t, err)

	approvedDay(t, m, book, "2026-03-11")
	active, ok := book.Active()
	require.True(t, ok)
	assert.Equal(t, "2026-03-10", active.Date)
	queued, ok := book.Approved()
	require.True(t, ok)
	assert.Equal(t, "2026-03-11", queued.Date)

	// a second queued day is refused
	_, err = m.Replan(book, "2026-03-12")
	require.NoError(t, err)
	_, err = m.Propose(book, "2026-03-12", nil)
	require.NoError(t, err)
	_, err = m.Approve(book, "2026-03-12")
	isInvalidTransition(t, err)

	// tomorrow cannot go live while today is active
	_, err = m.Activate(book, "2026-03-11")
	isInvalidTransition(t, err)

	_, _, err = m.Archive(book, "2026-03-10")
	require.NoError(t, err)
	day, err := m.Activate(book, "2026-03-11")
	require.NoError(t, err)
	assert.Equal(t, domain.DayActive, day.Status)
}

func TestProposeKeepsApprovedStatus(t *testing.T) {
	m := testMachine()
	book := NewBook()
	approvedDay(t, m, book, "2026-03-10")

	call := domain.BookingEvent{
		SourceID: "call",
		Start:    time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		End:      time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC),
		Status:   domain.BookingConfirmed,
	}
	day, err := m.Propose(book, "2026-03-10", []domain.BookingEvent{call})
	require.NoError(t, err)
	assert.Equal(t, domain.DayApproved, day.Status)
	assert.Len(t, day.Bookings, 1)
	require.NoError(t, resolver.Validate(day.Blocks))
}

func TestOverrideDraftsMissingDay(t *testing.T) {
	m := testMachine()
	book := NewBook()
	day, err := m.Override(book, "2026-03-11", domain.TimeBlock{
		Start:    clock("12:00"),
		End:      clock("14:00"),
		Occupant: domain.ProjectOccupant("sigmavue"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DayDraft, day.Status)
	require.Len(t, day.Overrides, 1)

	var found bool
	for _, b := range day.Blocks {
		if b.Source == domain.SourceManualOverride {
			found = true
			assert.Equal(t, "12:00", b.Start.String())
			assert.Equal(t, "14:00", b.End.String())
			assert.Equal(t, "sigmavue", b.Occupant.Ref)
		}
	}
	assert.True(t, found)
}

func TestOverrideOnActiveDay(t *testing.T) {
	m := testMachine()
	book := NewBook()
	approvedDay(t, m, book, "2026-03-10")
	_, err := m.Activate(book, "2026-03-10")
	require.NoError(t, err)

	day, err := m.Override(book, "2026-03-10", domain.TimeBlock{
		Start:    clock("09:00"),
		End:      clock("11:00"),
		Occupant: domain.ProjectOccupant("projb"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DayActive, day.Status)

	_, err = m.Override(book, "2026-03-10", domain.TimeBlock{Start: clock("10:00"), End: clock("10:00"), Occupant: domain.ProjectOccupant("projb")})
	assert.Error(t, err)
}

func TestArchiveSkipsUnworkedProjects(t *testing.T) {
	m := testMachine()
	book := NewBook()
	approvedDay(t, m, book, "2026-03-10")
	_, err := m.Activate(book, "2026-03-10")
	require.NoError(t, err)

	_, err = m.Skip(book, "2026-03-10", "projb")
	require.NoError(t, err)
	_, err = m.Skip(book, "2026-03-10", "ghost")
	assert.ErrorIs(t, err, ErrNotScheduled)
	_, err = m.Skip(book, "2026-03-12", "proja")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotScheduled))

	// skips survive a booking re-sync
	_, err = m.Propose(book, "2026-03-10", nil)
	require.NoError(t, err)

	_, worked, err := m.Archive(book, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"proja", "sigmavue"}, worked)
}

func TestArchiveRequiresActive(t *testing.T) {
	m := testMachine()
	book := NewBook()
	approvedDay(t, m, book, "2026-03-10")
	_, _, err := m.Archive(book, "2026-03-10")
	isInvalidTransition(t, err)
}

func TestTouchedTracksWrites(t *testing.T) {
	m := testMachine()
	seed, err := m.Plan("2026-03-09")
	require.NoError(t, err)
	book := NewBook(seed)
	_, err = m.Replan(book, "2026-03-10")
	require.NoError(t, err)

	touched := book.Touched()
	require.Len(t, touched, 1)
	assert.Equal(t, "2026-03-10", touched[0].Date)
}
