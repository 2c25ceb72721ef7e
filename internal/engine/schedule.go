package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
	"github.com/Dallionking/donna-assistant/internal/notify"
	"github.com/Dallionking/donna-assistant/internal/schedule"
)

// OverrideInput describes a manual block. Project is a project reference;
// leave it empty and set Label for personal time.
type OverrideInput struct {
	Date    string
	Start   domain.Clock
	End     domain.Clock
	Project string
	Label   string
}

func (e Engine) GetDay(ctx context.Context, date string) (domain.ScheduleDay, error) {
	if err := validDate(date); err != nil {
		return domain.ScheduleDay{}, err
	}
	return e.Repo.GetDay(ctx, nil, date)
}

func (e Engine) ListDays(ctx context.Context, from, to string) ([]domain.ScheduleDay, error) {
	return e.Repo.ListDays(ctx, nil, from, to)
}

func (e Engine) prepare(ctx context.Context, tx *sql.Tx, dates ...string) (state, *schedule.Book, error) {
	for _, d := range dates {
		if err := validDate(d); err != nil {
			return state{}, nil, err
		}
	}
	st, err := e.load(ctx, tx)
	if err != nil {
		return st, nil, err
	}
	book, err := e.book(ctx, tx, dates...)
	return st, book, err
}

// PlanDay discards date's DRAFT or PROPOSED plan and builds a fresh DRAFT.
func (e Engine) PlanDay(ctx context.Context, date, actorID string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, book, err := e.prepare(ctx, tx, date)
		if err != nil {
			return err
		}
		if out, err = e.machine(st).Replan(book, date); err != nil {
			return err
		}
		return e.persist(ctx, tx, &out, events.DayPlanned, actorID, nil)
	})
	return out, err
}

// ProposeDay resolves date against the stored bookings, planning it first
// when absent.
func (e Engine) ProposeDay(ctx context.Context, date, actorID string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, book, err := e.prepare(ctx, tx, date)
		if err != nil {
			return err
		}
		out, err = e.proposeDay(ctx, tx, st, book, date, actorID)
		return err
	})
	return out, err
}

func (e Engine) proposeDay(ctx context.Context, tx *sql.Tx, st state, book *schedule.Book, date, actorID string) (domain.ScheduleDay, error) {
	prev, _ := book.Day(date)
	bookings, err := e.bookingsFor(ctx, tx, date)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	day, err := e.machine(st).Propose(book, date, bookings)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	if err := e.persist(ctx, tx, &day, events.DayProposed, actorID, events.EventPayload{"bookings": len(day.Bookings)}); err != nil {
		return domain.ScheduleDay{}, err
	}
	return day, e.alertNewConflicts(ctx, tx, prev, day)
}

// alertNewConflicts queues a conflict alert for diagnostics that need a
// decision and were not already reported on the previous version.
func (e Engine) alertNewConflicts(ctx context.Context, tx *sql.Tx, prev, day domain.ScheduleDay) error {
	seen := map[string]bool{}
	for _, d := range notify.Conflicts(prev) {
		seen[conflictKey(d)] = true
	}
	alert := notify.Alert{Date: day.Date}
	for _, d := range notify.Conflicts(day) {
		if !seen[conflictKey(d)] {
			alert.Conflicts = append(alert.Conflicts, d)
		}
	}
	if len(alert.Conflicts) == 0 {
		return nil
	}
	e.Log.Warn().Str("date", day.Date).Int("conflicts", len(alert.Conflicts)).Msg("schedule conflict needs a decision")
	return e.appendEvent(ctx, tx, events.NotifyConflictAlert, "schedule_day", day.Date, "", events.EventPayload{
		"alert":    alert,
		"markdown": alert.Markdown(),
	})
}

func conflictKey(d domain.Diagnostic) string {
	return fmt.Sprintf("%s|%s|%s|%s", d.Code, d.BookingID, d.Start, d.End)
}

// refresh rebuilds an unapproved day from the current registry and template,
// keeping its manual overrides and skips, then resolves it.
func (e Engine) refresh(ctx context.Context, tx *sql.Tx, st state, book *schedule.Book, date, actorID string) (domain.ScheduleDay, error) {
	m := e.machine(st)
	cur, ok := book.Day(date)
	if ok && cur.Status != domain.DayDraft && cur.Status != domain.DayProposed {
		return e.proposeDay(ctx, tx, st, book, date, actorID)
	}
	if _, err := m.Replan(book, date); err != nil {
		return domain.ScheduleDay{}, err
	}
	for _, o := range cur.Overrides {
		if _, err := m.Override(book, date, o); err != nil {
			return domain.ScheduleDay{}, err
		}
	}
	for _, id := range cur.Skipped {
		// A skipped project may no longer hold a block after replanning.
		if _, err := m.Skip(book, date, id); err != nil && !errors.Is(err, schedule.ErrNotScheduled) {
			return domain.ScheduleDay{}, err
		}
	}
	return e.proposeDay(ctx, tx, st, book, date, actorID)
}

// ApproveDay approves date. A DRAFT or missing day is proposed first; when
// date is today and nothing is active the day is activated as well.
func (e Engine) ApproveDay(ctx context.Context, date, actorID string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.approveDay(ctx, tx, date, actorID)
		return err
	})
	return out, err
}

func (e Engine) approveDay(ctx context.Context, tx *sql.Tx, date, actorID string) (domain.ScheduleDay, error) {
	st, book, err := e.prepare(ctx, tx, date)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	today := e.Today()
	cur, ok := book.Day(date)
	if date < today {
		return domain.ScheduleDay{}, domain.InvalidTransitionError{Date: date, From: cur.Status, To: domain.DayApproved, Reason: "date is in the past"}
	}
	if !ok || cur.Status == domain.DayDraft {
		if _, err := e.proposeDay(ctx, tx, st, book, date, actorID); err != nil {
			return domain.ScheduleDay{}, err
		}
	}
	m := e.machine(st)
	day, err := m.Approve(book, date)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	if err := e.persist(ctx, tx, &day, events.DayApproved, actorID, nil); err != nil {
		return domain.ScheduleDay{}, err
	}
	if date != today {
		return day, nil
	}
	if _, active := book.Active(); active {
		return day, nil
	}
	if day, err = m.Activate(book, date); err != nil {
		return domain.ScheduleDay{}, err
	}
	return day, e.persist(ctx, tx, &day, events.DayActivated, actorID, nil)
}

// ActivateDay makes an APPROVED day the active one.
func (e Engine) ActivateDay(ctx context.Context, date, actorID string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, book, err := e.prepare(ctx, tx, date)
		if err != nil {
			return err
		}
		if out, err = e.machine(st).Activate(book, date); err != nil {
			return err
		}
		return e.persist(ctx, tx, &out, events.DayActivated, actorID, nil)
	})
	return out, err
}

// OverrideBlock places a MANUAL_OVERRIDE block, drafting the day if absent.
func (e Engine) OverrideBlock(ctx context.Context, in OverrideInput, actorID string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.overrideBlock(ctx, tx, in, actorID)
		return err
	})
	return out, err
}

func (e Engine) overrideBlock(ctx context.Context, tx *sql.Tx, in OverrideInput, actorID string) (domain.ScheduleDay, error) {
	st, book, err := e.prepare(ctx, tx, in.Date)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	block := domain.TimeBlock{Start: in.Start, End: in.End}
	switch {
	case in.Project != "":
		p, err := st.reg.Get(in.Project)
		if err != nil {
			return domain.ScheduleDay{}, err
		}
		if !p.Active {
			return domain.ScheduleDay{}, fmt.Errorf("project %s is inactive", p.ID)
		}
		block.Occupant = domain.ProjectOccupant(p.ID)
	case in.Label != "":
		block.Occupant = domain.Occupant{Kind: domain.OccupantPersonal, Label: in.Label}
	default:
		return domain.ScheduleDay{}, fmt.Errorf("override needs a project or a label")
	}
	day, err := e.machine(st).Override(book, in.Date, block)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	err = e.persist(ctx, tx, &day, events.DayOverridden, actorID, events.EventPayload{
		"start":    in.Start.String(),
		"end":      in.End.String(),
		"occupant": block.Occupant,
	})
	return day, err
}

// SkipProject marks a project's blocks on date as not worked.
func (e Engine) SkipProject(ctx context.Context, date, ref, actorID string) (domain.ScheduleDay, error) {
	var out domain.ScheduleDay
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.skipProject(ctx, tx, date, ref, actorID)
		return err
	})
	return out, err
}

func (e Engine) skipProject(ctx context.Context, tx *sql.Tx, date, ref, actorID string) (domain.ScheduleDay, error) {
	st, book, err := e.prepare(ctx, tx, date)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	p, err := st.reg.Get(ref)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	day, err := e.machine(st).Skip(book, date, p.ID)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	return day, e.persist(ctx, tx, &day, events.DaySkipped, actorID, events.EventPayload{"project_id": p.ID})
}

// archiveDay closes the ACTIVE day and advances last_worked_date for every
// project that held a worked block on it. Only the evening rollover calls it.
func (e Engine) archiveDay(ctx context.Context, tx *sql.Tx, st state, book *schedule.Book, date, actorID string) (domain.ScheduleDay, []string, error) {
	day, worked, err := e.machine(st).Archive(book, date)
	if err != nil {
		return domain.ScheduleDay{}, nil, err
	}
	if err := e.persist(ctx, tx, &day, events.DayArchived, actorID, events.EventPayload{"worked": worked}); err != nil {
		return domain.ScheduleDay{}, nil, err
	}
	for _, id := range worked {
		moved, err := st.reg.AdvanceLastWorked(id, date)
		if err != nil {
			return domain.ScheduleDay{}, nil, err
		}
		if !moved {
			continue
		}
		p, err := st.reg.Get(id)
		if err != nil {
			return domain.ScheduleDay{}, nil, err
		}
		if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
			return domain.ScheduleDay{}, nil, err
		}
		if err := e.appendEvent(ctx, tx, events.ProjectWorked, "project", id, actorID, events.EventPayload{"date": date}); err != nil {
			return domain.ScheduleDay{}, nil, err
		}
	}
	return day, worked, nil
}
