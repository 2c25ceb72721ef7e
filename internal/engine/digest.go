package engine

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
	"github.com/Dallionking/donna-assistant/internal/notify"
	"github.com/Dallionking/donna-assistant/internal/registry"
	"github.com/Dallionking/donna-assistant/internal/repo"
)

// BlockReminders queues one reminder for every block of today's ACTIVE day
// that is running now and has not been announced yet. Booking blocks and
// skipped blocks are left to the calendar.
func (e Engine) BlockReminders(ctx context.Context, actorID string) ([]notify.Reminder, error) {
	var out []notify.Reminder
	today := e.Today()
	err := e.write(ctx, func(tx *sql.Tx) error {
		day, err := e.Repo.GetDay(ctx, tx, today)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if day.Status != domain.DayActive {
			return nil
		}
		midnight, err := domain.ParseDate(today, e.location())
		if err != nil {
			return err
		}
		now := domain.ClockOf(e.now(), midnight)
		st, err := e.load(ctx, tx)
		if err != nil {
			return err
		}
		attention, err := e.needingAttention(st.projects)
		if err != nil {
			return err
		}
		display := displayNames(st.projects)
		for _, blk := range day.Blocks {
			if blk.Skipped || blk.Occupant.Kind == domain.OccupantBooking {
				continue
			}
			if blk.Start > now || now >= blk.End {
				continue
			}
			sent, err := e.Repo.HasEvent(ctx, tx, events.NotifyBlockReminder, blk.ID)
			if err != nil {
				return err
			}
			if sent {
				continue
			}
			r := notify.NewReminder(day, blk, display, attention)
			if err := e.appendEvent(ctx, tx, events.NotifyBlockReminder, "time_block", blk.ID, actorID, events.EventPayload{
				"reminder": r,
				"markdown": r.Markdown(),
			}); err != nil {
				return err
			}
			e.Log.Info().Str("date", today).Str("block", r.Label).Str("start", r.Start).Msg("block reminder")
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// WeekAhead previews the seven days from today: what is already planned,
// the rotation order new plans will follow, and who needs attention.
func (e Engine) WeekAhead(ctx context.Context, actorID string) (notify.WeekAhead, error) {
	var w notify.WeekAhead
	today := e.Today()
	err := e.write(ctx, func(tx *sql.Tx) error {
		to, err := domain.AddDays(today, 6)
		if err != nil {
			return err
		}
		st, err := e.load(ctx, tx)
		if err != nil {
			return err
		}
		stored, err := e.Repo.ListDays(ctx, tx, today, to)
		if err != nil {
			return err
		}
		byDate := make(map[string]domain.ScheduleDay, len(stored))
		for _, d := range stored {
			byDate[d.Date] = d
		}
		display := displayNames(st.projects)
		w = notify.WeekAhead{From: today, To: to}
		for i := 0; i < 7; i++ {
			date, _ := domain.AddDays(today, i)
			t, err := domain.ParseDate(date, e.location())
			if err != nil {
				return err
			}
			var day *domain.ScheduleDay
			if d, ok := byDate[date]; ok {
				day = &d
			}
			w.Days = append(w.Days, notify.NewDayOutline(date, t.Weekday().String()[:3], day, display))
		}
		if p, ok := st.reg.Always(); ok {
			w.Always = p.DisplayName
		}
		w.Rotation = []string{}
		for _, p := range registry.Rank(st.reg.Eligible(), st.statuses) {
			w.Rotation = append(w.Rotation, p.DisplayName)
		}
		attention, err := e.needingAttention(st.projects)
		if err != nil {
			return err
		}
		for _, p := range attention {
			w.NeedsAttention = append(w.NeedsAttention, p.DisplayName)
		}
		e.Log.Info().Str("from", today).Str("to", to).Msg("week ahead")
		return e.appendEvent(ctx, tx, events.NotifyWeekAhead, "week", today, actorID, events.EventPayload{
			"week_ahead": w,
			"markdown":   w.Markdown(),
		})
	})
	return w, err
}

// WeeklyReview sums the project time of the ACTIVE and ARCHIVED days of the
// seven days ending today, and names the active projects that got none.
func (e Engine) WeeklyReview(ctx context.Context, actorID string) (notify.WeeklyReview, error) {
	var r notify.WeeklyReview
	today := e.Today()
	err := e.write(ctx, func(tx *sql.Tx) error {
		from, err := domain.AddDays(today, -6)
		if err != nil {
			return err
		}
		st, err := e.load(ctx, tx)
		if err != nil {
			return err
		}
		days, err := e.Repo.ListDays(ctx, tx, from, today)
		if err != nil {
			return err
		}
		display := displayNames(st.projects)
		r = notify.WeeklyReview{From: from, To: today, Worked: []notify.ProjectTime{}}
		minutes := map[string]int{}
		dayCount := map[string]int{}
		var skipped []string
		for _, day := range days {
			if day.Status != domain.DayActive && day.Status != domain.DayArchived {
				continue
			}
			r.Days++
			seen := map[string]bool{}
			for _, blk := range day.Blocks {
				if !blk.Occupant.IsProject() || blk.Skipped {
					continue
				}
				minutes[blk.Occupant.Ref] += int(blk.Duration() / time.Minute)
				if !seen[blk.Occupant.Ref] {
					seen[blk.Occupant.Ref] = true
					dayCount[blk.Occupant.Ref]++
				}
			}
			skipped = appendUnique(skipped, day.Skipped...)
		}
		for id, m := range minutes {
			r.Worked = append(r.Worked, notify.ProjectTime{Project: notify.Label(domain.ProjectOccupant(id), display), Minutes: m, Days: dayCount[id]})
		}
		sort.Slice(r.Worked, func(i, j int) bool {
			if r.Worked[i].Minutes != r.Worked[j].Minutes {
				return r.Worked[i].Minutes > r.Worked[j].Minutes
			}
			return r.Worked[i].Project < r.Worked[j].Project
		})
		r.Skipped = names(st, skipped)
		for _, p := range st.reg.List() {
			if p.Active && minutes[p.ID] == 0 {
				r.Untouched = append(r.Untouched, p.DisplayName)
			}
		}
		start, err := domain.ParseDate(from, e.location())
		if err != nil {
			return err
		}
		if r.Completed, err = e.Repo.CountEvents(ctx, tx, events.ProjectCompleted, start.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		e.Log.Info().Str("from", from).Str("to", today).Int("days", r.Days).Msg("weekly review")
		return e.appendEvent(ctx, tx, events.NotifyWeeklyReview, "week", today, actorID, events.EventPayload{
			"review":   r,
			"markdown": r.Markdown(),
		})
	})
	return r, err
}

func displayNames(projects []domain.Project) map[string]string {
	out := make(map[string]string, len(projects))
	for _, p := range projects {
		out[p.ID] = p.DisplayName
	}
	return out
}
