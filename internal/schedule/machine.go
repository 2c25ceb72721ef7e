package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// ErrNotScheduled is returned by Skip when the project holds no block on
// the day.
var ErrNotScheduled = errors.New("project has no blocks")

// PlanFunc produces a fresh DRAFT for a date.
type PlanFunc func(date string) (domain.ScheduleDay, error)

// ResolveFunc recomputes a day's blocks from its base, overrides and the
// given bookings.
type ResolveFunc func(day domain.ScheduleDay, bookings []domain.BookingEvent) (domain.ScheduleDay, error)

type Machine struct {
	Plan    PlanFunc
	Resolve ResolveFunc
}

// Replan discards a DRAFT or PROPOSED day (or creates a missing one) and
// replaces it with a fresh DRAFT. Known bookings are kept for the next
// Propose; manual overrides and skips are discarded with the old plan.
func (m Machine) Replan(book *Book, date string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := book.Mutate(func(b *Book) error {
		cur, ok := b.Day(date)
		if err := ensureTransition(date, cur.Status, domain.DayDraft); err != nil {
			return err
		}
		draft, err := m.Plan(date)
		if err != nil {
			return err
		}
		if ok {
			draft.Version = cur.Version
			draft.Bookings = cur.Bookings
		}
		b.put(draft)
		out, _ = b.Day(date)
		return nil
	})
	return out, err
}

// Propose resolves the day against bookings. DRAFT and PROPOSED days become
// PROPOSED; APPROVED and ACTIVE days are re-resolved in place and keep their
// status. A missing day is planned first.
func (m Machine) Propose(book *Book, date string, bookings []domain.BookingEvent) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := book.Mutate(func(b *Book) error {
		cur, err := m.ensureDay(b, date)
		if err != nil {
			return err
		}
		status := cur.Status
		switch status {
		case domain.DayDraft, domain.DayProposed:
			status = domain.DayProposed
		case domain.DayApproved, domain.DayActive:
		default:
			return domain.InvalidTransitionError{Date: date, From: cur.Status, To: domain.DayProposed}
		}
		resolved, err := m.Resolve(cur, bookings)
		if err != nil {
			return err
		}
		resolved.Status = status
		applySkips(&resolved)
		b.put(resolved)
		out, _ = b.Day(date)
		return nil
	})
	return out, err
}

// Approve moves a PROPOSED day to APPROVED. When another day is ACTIVE the
// approved day waits as the next day; it never replaces the active one.
func (m Machine) Approve(book *Book, date string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := book.Mutate(func(b *Book) error {
		cur, ok := b.Day(date)
		if !ok {
			return domain.InvalidTransitionError{Date: date, To: domain.DayApproved, Reason: "no schedule for this date"}
		}
		if cur.Status == domain.DayApproved {
			return domain.InvalidTransitionError{Date: date, From: cur.Status, To: domain.DayApproved, Reason: "already approved"}
		}
		if err := ensureTransition(date, cur.Status, domain.DayApproved); err != nil {
			return err
		}
		if other, ok := b.Approved(); ok && other.Date != date {
			return domain.InvalidTransitionError{
				Date: date, From: cur.Status, To: domain.DayApproved,
				Reason: fmt.Sprintf("%s is already approved", other.Date),
			}
		}
		if active, ok := b.Active(); ok && date < active.Date {
			return domain.InvalidTransitionError{
				Date: date, From: cur.Status, To: domain.DayApproved,
				Reason: fmt.Sprintf("%s is active and later", active.Date),
			}
		}
		cur.Status = domain.DayApproved
		b.put(cur)
		out, _ = b.Day(date)
		return nil
	})
	return out, err
}

// Activate makes an APPROVED day the single ACTIVE day.
func (m Machine) Activate(book *Book, date string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := book.Mutate(func(b *Book) error {
		cur, _ := b.Day(date)
		if err := ensureTransition(date, cur.Status, domain.DayActive); err != nil {
			return err
		}
		if active, ok := b.Active(); ok && active.Date != date {
			return domain.InvalidTransitionError{
				Date: date, From: cur.Status, To: domain.DayActive,
				Reason: fmt.Sprintf("%s is already active", active.Date),
			}
		}
		cur.Status = domain.DayActive
		b.put(cur)
		out, _ = b.Day(date)
		return nil
	})
	return out, err
}

// Override adds a MANUAL_OVERRIDE block and recomputes the day's blocks.
// The day keeps its status; ACTIVE days accept overrides even though they
// no longer accept replans. A missing day is planned first.
func (m Machine) Override(book *Book, date string, block domain.TimeBlock) (domain.ScheduleDay, error) {
	if block.End <= block.Start {
		return domain.ScheduleDay{}, fmt.Errorf("override %s-%s has an empty span", block.Start, block.End)
	}
	if block.Occupant.Kind == "" {
		return domain.ScheduleDay{}, fmt.Errorf("override needs an occupant")
	}
	block.Source = domain.SourceManualOverride
	var out domain.ScheduleDay
	err := book.Mutate(func(b *Book) error {
		cur, err := m.ensureDay(b, date)
		if err != nil {
			return err
		}
		if cur.Status == domain.DayArchived {
			return domain.InvalidTransitionError{Date: date, From: cur.Status, To: cur.Status, Reason: "archived days are read-only"}
		}
		cur.Overrides = append(cur.Overrides, block)
		resolved, err := m.Resolve(cur, cur.Bookings)
		if err != nil {
			return err
		}
		resolved.Status = cur.Status
		applySkips(&resolved)
		b.put(resolved)
		out, _ = b.Day(date)
		return nil
	})
	return out, err
}

// Skip marks a project's blocks on a day as not worked.
func (m Machine) Skip(book *Book, date, projectID string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := book.Mutate(func(b *Book) error {
		cur, ok := b.Day(date)
		if !ok {
			return fmt.Errorf("no schedule for %s", date)
		}
		if cur.Status == domain.DayArchived {
			return domain.InvalidTransitionError{Date: date, From: cur.Status, To: cur.Status, Reason: "archived days are read-only"}
		}
		found := false
		for _, blk := range cur.Blocks {
			if blk.Occupant.IsProject() && blk.Occupant.Ref == projectID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s on %s", ErrNotScheduled, projectID, date)
		}
		if !contains(cur.Skipped, projectID) {
			cur.Skipped = append(cur.Skipped, projectID)
			sort.Strings(cur.Skipped)
		}
		applySkips(&cur)
		b.put(cur)
		out, _ = b.Day(date)
		return nil
	})
	return out, err
}

// Archive closes the ACTIVE day and returns the projects that occupied a
// worked block on it.
func (m Machine) Archive(book *Book, date string) (domain.ScheduleDay, []string, error) {
	var (
		out    domain.ScheduleDay
		worked []string
	)
	err := book.Mutate(func(b *Book) error {
		cur, _ := b.Day(date)
		if err := ensureTransition(date, cur.Status, domain.DayArchived); err != nil {
			return err
		}
		worked = Worked(cur)
		cur.Status = domain.DayArchived
		b.put(cur)
		out, _ = b.Day(date)
		return nil
	})
	return out, worked, err
}

// Worked lists the distinct projects holding a non-skipped block.
func Worked(day domain.ScheduleDay) []string {
	seen := map[string]bool{}
	var out []string
	for _, blk := range day.Blocks {
		if !blk.Occupant.IsProject() || blk.Skipped || seen[blk.Occupant.Ref] {
			continue
		}
		seen[blk.Occupant.Ref] = true
		out = append(out, blk.Occupant.Ref)
	}
	sort.Strings(out)
	return out
}

func (m Machine) ensureDay(b *Book, date string) (domain.ScheduleDay, error) {
	if cur, ok := b.Day(date); ok {
		return cur, nil
	}
	draft, err := m.Plan(date)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	draft.Status = domain.DayDraft
	return draft, nil
}

func ensureTransition(date string, from, to domain.DayStatus) error {
	switch from {
	case "":
		if to == domain.DayDraft {
			return nil
		}
	case domain.DayDraft:
		if to == domain.DayDraft || to == domain.DayProposed {
			return nil
		}
	case domain.DayProposed:
		if to == domain.DayDraft || to == domain.DayProposed || to == domain.DayApproved {
			return nil
		}
	case domain.DayApproved:
		if to == domain.DayActive {
			return nil
		}
	case domain.DayActive:
		if to == domain.DayArchived {
			return nil
		}
	}
	err := domain.InvalidTransitionError{Date: date, From: from, To: to}
	switch {
	case from == "":
		err.Reason = "no schedule for this date"
	case to.Order() < from.Order():
		err.Reason = "schedules never move backward"
	}
	return err
}

func applySkips(day *domain.ScheduleDay) {
	for i, blk := range day.Blocks {
		day.Blocks[i].Skipped = blk.Occupant.IsProject() && contains(day.Skipped, blk.Occupant.Ref)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
