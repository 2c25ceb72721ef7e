package engine

import (
	"context"
	"database/sql"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
	"github.com/Dallionking/donna-assistant/internal/notify"
	"github.com/Dallionking/donna-assistant/internal/schedule"
)

type RolloverResult struct {
	Archived []domain.ScheduleDay `json:"archived"`
	Worked   []string             `json:"worked"`
	Tomorrow domain.ScheduleDay   `json:"tomorrow"`
	Summary  notify.Summary       `json:"summary"`
}

// EveningRollover archives the active day (and any missed earlier one),
// advances last-worked dates, then plans and proposes tomorrow and queues
// the evening summary.
func (e Engine) EveningRollover(ctx context.Context, actorID string) (RolloverResult, error) {
	var res RolloverResult
	today, tomorrow := e.Today(), e.Tomorrow()
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, book, err := e.prepare(ctx, tx, today, tomorrow)
		if err != nil {
			return err
		}
		var skipped []string
		res.Archived, res.Worked, skipped, err = e.catchUp(ctx, tx, st, book, today, actorID)
		if err != nil {
			return err
		}
		// Archiving moved last_worked_date; plan tomorrow from the new rotation.
		if st, err = e.load(ctx, tx); err != nil {
			return err
		}
		if res.Tomorrow, err = e.refresh(ctx, tx, st, book, tomorrow, actorID); err != nil {
			return err
		}
		attention, err := e.needingAttention(st.projects)
		if err != nil {
			return err
		}
		brief := notify.NewBrief(res.Tomorrow, st.projects, attention)
		res.Summary = notify.Summary{Date: today, Worked: names(st, res.Worked), Skipped: names(st, skipped), Tomorrow: &brief}
		e.Log.Info().Str("date", today).Strs("worked", res.Worked).Str("tomorrow", string(res.Tomorrow.Status)).Msg("evening rollover")
		return e.appendEvent(ctx, tx, events.NotifyEveningSummary, "schedule_day", today, actorID, events.EventPayload{
			"summary":  res.Summary,
			"markdown": res.Summary.Markdown(),
		})
	})
	return res, err
}

// catchUp archives every ACTIVE day up to cutoff. APPROVED days up to
// cutoff were never activated; they are activated and archived in turn.
func (e Engine) catchUp(ctx context.Context, tx *sql.Tx, st state, book *schedule.Book, cutoff, actorID string) ([]domain.ScheduleDay, []string, []string, error) {
	var (
		archived        []domain.ScheduleDay
		worked, skipped []string
	)
	m := e.machine(st)
	for _, day := range book.Days() {
		if day.Date > cutoff {
			break
		}
		switch day.Status {
		case domain.DayApproved:
			act, err := m.Activate(book, day.Date)
			if err != nil {
				return nil, nil, nil, err
			}
			if err := e.persist(ctx, tx, &act, events.DayActivated, actorID, nil); err != nil {
				return nil, nil, nil, err
			}
		case domain.DayActive:
		default:
			continue
		}
		out, w, err := e.archiveDay(ctx, tx, st, book, day.Date, actorID)
		if err != nil {
			return nil, nil, nil, err
		}
		archived = append(archived, out)
		worked = appendUnique(worked, w...)
		skipped = appendUnique(skipped, out.Skipped...)
	}
	return archived, worked, skipped, nil
}

// MorningBrief activates today's APPROVED day, or plans and proposes a fresh
// one when nothing was approved, and queues the morning brief.
func (e Engine) MorningBrief(ctx context.Context, actorID string) (notify.Brief, error) {
	var brief notify.Brief
	today := e.Today()
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, book, err := e.prepare(ctx, tx, today)
		if err != nil {
			return err
		}
		yesterday, _ := domain.AddDays(today, -1)
		if _, _, _, err := e.catchUp(ctx, tx, st, book, yesterday, actorID); err != nil {
			return err
		}
		if st, err = e.load(ctx, tx); err != nil {
			return err
		}
		var day domain.ScheduleDay
		cur, _ := book.Day(today)
		switch cur.Status {
		case domain.DayApproved:
			if day, err = e.machine(st).Activate(book, today); err != nil {
				return err
			}
			if err := e.persist(ctx, tx, &day, events.DayActivated, actorID, nil); err != nil {
				return err
			}
		case domain.DayActive, domain.DayArchived:
			day = cur
		default:
			if day, err = e.refresh(ctx, tx, st, book, today, actorID); err != nil {
				return err
			}
		}
		attention, err := e.needingAttention(st.projects)
		if err != nil {
			return err
		}
		brief = notify.NewBrief(day, st.projects, attention)
		e.Log.Info().Str("date", today).Str("status", string(day.Status)).Msg("morning brief")
		return e.appendEvent(ctx, tx, events.NotifyMorningBrief, "schedule_day", today, actorID, events.EventPayload{
			"brief":    brief,
			"markdown": brief.Markdown(),
		})
	})
	return brief, err
}

// Resync re-resolves today and tomorrow against the stored bookings. Days
// not planned yet are left alone.
func (e Engine) Resync(ctx context.Context, actorID string) ([]domain.ScheduleDay, error) {
	var out []domain.ScheduleDay
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, book, err := e.prepare(ctx, tx)
		if err != nil {
			return err
		}
		out, err = e.resync(ctx, tx, st, book, actorID, e.Today(), e.Tomorrow())
		return err
	})
	return out, err
}

func (e Engine) resync(ctx context.Context, tx *sql.Tx, st state, book *schedule.Book, actorID string, dates ...string) ([]domain.ScheduleDay, error) {
	var out []domain.ScheduleDay
	for _, date := range dates {
		cur, ok := book.Day(date)
		if !ok || cur.Status == domain.DayArchived {
			continue
		}
		day, err := e.proposeDay(ctx, tx, st, book, date, actorID)
		if err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, nil
}

func names(st state, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, err := st.reg.Get(id); err == nil {
			out = append(out, p.DisplayName)
			continue
		}
		out = append(out, id)
	}
	return out
}

func appendUnique(list []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, have := range list {
			if have == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
