package gcal

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/notify"
)

const (
	Source = "google"

	// BlockProperty and DateProperty tag mirrored events so they are found
	// again and never read back as bookings.
	BlockProperty = "donna_block_id"
	DateProperty  = "donna_date"
)

type Calendar struct {
	srv        *calendar.Service
	calendarID string
	loc        *time.Location
}

func New(srv *calendar.Service, calendarID string, loc *time.Location) *Calendar {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{srv: srv, calendarID: calendarID, loc: loc}
}

// Bookings lists timed events in [from, to) as booking events. Deleted
// events come back cancelled so a removed meeting frees its time.
// Mirrored blocks, all-day events and events marked free are skipped.
func (c *Calendar) Bookings(ctx context.Context, from, to time.Time) ([]domain.BookingEvent, error) {
	var out []domain.BookingEvent
	err := c.srv.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(true).
		Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				b, ok := toBooking(ev)
				if ok {
					out = append(out, b)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}
	return out, nil
}

func toBooking(ev *calendar.Event) (domain.BookingEvent, bool) {
	if ev.ExtendedProperties != nil && ev.ExtendedProperties.Private[BlockProperty] != "" {
		return domain.BookingEvent{}, false
	}
	if ev.Transparency == "transparent" || ev.Start == nil || ev.End == nil || ev.Start.DateTime == "" {
		return domain.BookingEvent{}, false
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return domain.BookingEvent{}, false
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil || !end.After(start) {
		return domain.BookingEvent{}, false
	}
	status := domain.BookingConfirmed
	if ev.Status == "cancelled" {
		status = domain.BookingCancelled
	}
	return domain.BookingEvent{
		SourceID: "gcal/" + ev.Id,
		Source:   Source,
		Title:    ev.Summary,
		Start:    start.UTC(),
		End:      end.UTC(),
		Status:   status,
	}, true
}

type MirrorResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

// Mirror makes the calendar's donna events for the day match its blocks.
// Booking blocks are already on a calendar and are not copied.
func (c *Calendar) Mirror(ctx context.Context, day domain.ScheduleDay, names map[string]string) (MirrorResult, error) {
	var res MirrorResult
	date, err := domain.ParseDate(day.Date, c.loc)
	if err != nil {
		return res, err
	}
	existing := map[string]*calendar.Event{}
	err = c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(DateProperty+"="+day.Date).
		SingleEvents(true).
		Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				if ev.ExtendedProperties == nil {
					continue
				}
				if id := ev.ExtendedProperties.Private[BlockProperty]; id != "" {
					existing[id] = ev
				}
			}
			return nil
		})
	if err != nil {
		return res, fmt.Errorf("list mirrored events: %w", err)
	}

	for _, blk := range day.Blocks {
		if blk.Source == domain.SourceBooking || blk.Skipped {
			continue
		}
		want := c.eventFor(day.Date, date, blk, names)
		have, ok := existing[blk.ID]
		delete(existing, blk.ID)
		if !ok {
			if _, err := c.srv.Events.Insert(c.calendarID, want).Context(ctx).Do(); err != nil {
				return res, fmt.Errorf("insert block %s: %w", blk.ID, err)
			}
			res.Inserted++
			continue
		}
		if sameEvent(have, want) {
			continue
		}
		patch := &calendar.Event{Summary: want.Summary, Description: want.Description, Start: want.Start, End: want.End}
		if _, err := c.srv.Events.Patch(c.calendarID, have.Id, patch).Context(ctx).Do(); err != nil {
			return res, fmt.Errorf("patch block %s: %w", blk.ID, err)
		}
		res.Updated++
	}
	for _, stale := range existing {
		if err := c.srv.Events.Delete(c.calendarID, stale.Id).Context(ctx).Do(); err != nil {
			return res, fmt.Errorf("delete stale event %s: %w", stale.Id, err)
		}
		res.Deleted++
	}
	return res, nil
}

func (c *Calendar) eventFor(dateStr string, date time.Time, blk domain.TimeBlock, names map[string]string) *calendar.Event {
	return &calendar.Event{
		Summary:     notify.Label(blk.Occupant, names),
		Description: "Planned by donna (" + string(blk.Source) + ")",
		Start:       &calendar.EventDateTime{DateTime: blk.Start.On(date, c.loc).Format(time.RFC3339), TimeZone: c.loc.String()},
		End:         &calendar.EventDateTime{DateTime: blk.End.On(date, c.loc).Format(time.RFC3339), TimeZone: c.loc.String()},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{BlockProperty: blk.ID, DateProperty: dateStr},
		},
		Transparency: "opaque",
	}
}

func sameEvent(have, want *calendar.Event) bool {
	if have.Summary != want.Summary || have.Description != want.Description {
		return false
	}
	return sameTime(have.Start, want.Start) && sameTime(have.End, want.End)
}

func sameTime(a, b *calendar.EventDateTime) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, errA := time.Parse(time.RFC3339, a.DateTime)
	tb, errB := time.Parse(time.RFC3339, b.DateTime)
	return errA == nil && errB == nil && ta.Equal(tb)
}
