package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// UpsertBooking stores the latest known state of an external booking.
// It returns the previously stored record, if any, and whether anything
// changed.
func (r Repo) UpsertBooking(ctx context.Context, tx *sql.Tx, b domain.BookingEvent, now string) (*domain.BookingEvent, bool, error) {
	var previous *domain.BookingEvent
	prev, err := r.GetBooking(ctx, tx, b.SourceID)
	switch {
	case err == nil:
		if prev.Status == b.Status && prev.Start.Equal(b.Start) && prev.End.Equal(b.End) && prev.Title == b.Title {
			return &prev, false, nil
		}
		previous = &prev
	case err != ErrNotFound:
		return nil, false, err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO bookings(source_id,source,title,start_at,end_at,status,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(source_id) DO UPDATE SET source=excluded.source, title=excluded.title, start_at=excluded.start_at, end_at=excluded.end_at,
status=excluded.status, updated_at=excluded.updated_at`,
		b.SourceID, b.Source, nullable(b.Title), formatTS(b.Start), formatTS(b.End), string(b.Status), now)
	if err != nil {
		return nil, false, err
	}
	return previous, true, nil
}

const bookingColumns = `source_id,source,COALESCE(title,''),start_at,end_at,status`

func scanBooking(row scanner) (domain.BookingEvent, error) {
	var (
		b          domain.BookingEvent
		start, end string
		status     string
	)
	err := row.Scan(&b.SourceID, &b.Source, &b.Title, &start, &end, &status)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if b.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return b, err
	}
	if b.End, err = time.Parse(time.RFC3339, end); err != nil {
		return b, err
	}
	b.Status = domain.BookingStatus(status)
	return b, nil
}

func (r Repo) GetBooking(ctx context.Context, tx *sql.Tx, sourceID string) (domain.BookingEvent, error) {
	return scanBooking(r.q(tx).QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE source_id=?`, sourceID))
}

// BookingsBetween returns bookings of any status overlapping [from, to).
func (r Repo) BookingsBetween(ctx context.Context, tx *sql.Tx, from, to time.Time) ([]domain.BookingEvent, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE start_at<? AND end_at>? ORDER BY start_at, end_at, source_id`,
		formatTS(to), formatTS(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BookingEvent
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
