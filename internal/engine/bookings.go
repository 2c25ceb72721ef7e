package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
)

type IngestResult struct {
	Received int                  `json:"received"`
	Changed  int                  `json:"changed"`
	Days     []domain.ScheduleDay `json:"days"`
}

// IngestBookings stores a batch of booking events and re-resolves every
// planned day from today on that a changed booking touches. Replaying the
// same batch changes nothing.
func (e Engine) IngestBookings(ctx context.Context, source string, batch []domain.BookingEvent, actorID string) (IngestResult, error) {
	res := IngestResult{Received: len(batch)}
	for i := range batch {
		if err := normalizeBooking(&batch[i], source); err != nil {
			return res, err
		}
	}
	err := e.write(ctx, func(tx *sql.Tx) error {
		affected := map[string]bool{}
		for _, b := range batch {
			prev, changed, err := e.Repo.UpsertBooking(ctx, tx, b, e.stamp())
			if err != nil {
				return fmt.Errorf("store booking %s: %w", b.SourceID, err)
			}
			if !changed {
				continue
			}
			res.Changed++
			for _, d := range e.datesSpanned(b) {
				affected[d] = true
			}
			// a moved booking must also leave the days it used to cover
			if prev != nil {
				for _, d := range e.datesSpanned(*prev) {
					affected[d] = true
				}
			}
		}
		if res.Changed == 0 {
			return nil
		}
		dates := make([]string, 0, len(affected))
		today := e.Today()
		for d := range affected {
			if d >= today {
				dates = append(dates, d)
			}
		}
		sort.Strings(dates)
		st, book, err := e.prepare(ctx, tx)
		if err != nil {
			return err
		}
		if res.Days, err = e.resync(ctx, tx, st, book, actorID, dates...); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.BookingsIngested, "booking", source, actorID, events.EventPayload{
			"received": res.Received,
			"changed":  res.Changed,
			"dates":    dates,
		})
	})
	if err == nil && res.Changed > 0 {
		e.Log.Info().Str("source", source).Int("changed", res.Changed).Int("days", len(res.Days)).Msg("bookings ingested")
	}
	return res, err
}

func normalizeBooking(b *domain.BookingEvent, source string) error {
	b.SourceID = strings.TrimSpace(b.SourceID)
	if b.SourceID == "" {
		return fmt.Errorf("booking source_id is required")
	}
	if b.Source == "" {
		b.Source = source
	}
	if b.Source == "" {
		b.Source = "manual"
	}
	if b.Status == "" {
		b.Status = domain.BookingConfirmed
	}
	if b.Status != domain.BookingConfirmed && b.Status != domain.BookingCancelled {
		return fmt.Errorf("booking %s has invalid status %q", b.SourceID, b.Status)
	}
	if !b.End.After(b.Start) {
		return fmt.Errorf("booking %s ends before it starts", b.SourceID)
	}
	return nil
}

// datesSpanned lists the local calendar dates a booking overlaps.
func (e Engine) datesSpanned(b domain.BookingEvent) []string {
	loc := e.location()
	last := domain.FormatDate(b.End.Add(-time.Nanosecond), loc)
	var out []string
	for d := domain.FormatDate(b.Start, loc); d <= last; d, _ = domain.AddDays(d, 1) {
		out = append(out, d)
	}
	return out
}

// Bookings returns the stored bookings overlapping a date.
func (e Engine) Bookings(ctx context.Context, date string) ([]domain.BookingEvent, error) {
	var out []domain.BookingEvent
	err := e.read(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.bookingsFor(ctx, tx, date)
		return err
	})
	return out, err
}
