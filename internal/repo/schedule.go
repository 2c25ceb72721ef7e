package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// GetTemplate returns the stored routine template.
func (r Repo) GetTemplate(ctx context.Context, tx *sql.Tx) (domain.RoutineTemplate, error) {
	var (
		payload string
		t       domain.RoutineTemplate
	)
	err := r.q(tx).QueryRowContext(ctx, `SELECT slots_json, updated_at FROM routine_template WHERE id=1`).Scan(&payload, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(payload), &t.Slots); err != nil {
		return t, fmt.Errorf("decode template: %w", err)
	}
	return t, nil
}

func (r Repo) SaveTemplate(ctx context.Context, tx *sql.Tx, t domain.RoutineTemplate) error {
	payload, err := json.Marshal(t.Slots)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO routine_template(id,slots_json,updated_at) VALUES (1,?,?)
ON CONFLICT(id) DO UPDATE SET slots_json=excluded.slots_json, updated_at=excluded.updated_at`, string(payload), t.UpdatedAt)
	return err
}

func (r Repo) GetDay(ctx context.Context, tx *sql.Tx, date string) (domain.ScheduleDay, error) {
	var payload string
	err := r.q(tx).QueryRowContext(ctx, `SELECT day_json FROM schedule_days WHERE date=?`, date).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.ScheduleDay{}, ErrNotFound
	}
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	return decodeDay(payload)
}

// OpenDays returns the days still in play: every non-archived day from
// `from` on, APPROVED and ACTIVE days of any date, plus any day listed in
// extra. Older drafts and proposals stay in history but no longer take part
// in approval or activation.
func (r Repo) OpenDays(ctx context.Context, tx *sql.Tx, from string, extra ...string) ([]domain.ScheduleDay, error) {
	query := `SELECT day_json FROM schedule_days WHERE (status<>'archived' AND (date>=? OR status IN ('approved','active')))`
	args := []any{from}
	if len(extra) > 0 {
		query += ` OR date IN (?` + strings.Repeat(",?", len(extra)-1) + `)`
		for _, d := range extra {
			args = append(args, d)
		}
	}
	query += ` ORDER BY date`
	return r.queryDays(ctx, tx, query, args...)
}

// ListDays returns days between from and to inclusive; empty bounds are open.
func (r Repo) ListDays(ctx context.Context, tx *sql.Tx, from, to string) ([]domain.ScheduleDay, error) {
	query := `SELECT day_json FROM schedule_days WHERE 1=1`
	var args []any
	if from != "" {
		query += ` AND date>=?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date<=?`
		args = append(args, to)
	}
	query += ` ORDER BY date`
	return r.queryDays(ctx, tx, query, args...)
}

func (r Repo) queryDays(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.ScheduleDay, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ScheduleDay
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		d, err := decodeDay(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveDay upserts a day.
func (r Repo) SaveDay(ctx context.Context, tx *sql.Tx, d domain.ScheduleDay) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO schedule_days(date,status,day_json,version,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(date) DO UPDATE SET status=excluded.status, day_json=excluded.day_json, version=excluded.version, updated_at=excluded.updated_at`,
		d.Date, string(d.Status), string(payload), d.Version, d.UpdatedAt)
	return err
}

func decodeDay(payload string) (domain.ScheduleDay, error) {
	var d domain.ScheduleDay
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return d, fmt.Errorf("decode schedule day: %w", err)
	}
	return d, nil
}
