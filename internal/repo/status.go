package repo

import (
	"context"
	"database/sql"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

func (r Repo) UpsertStatus(ctx context.Context, tx *sql.Tx, st domain.PRDStatus) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO prd_status(project_id,current_item_id,current_item_progress,next_item_id,phase_priority,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET current_item_id=excluded.current_item_id, current_item_progress=excluded.current_item_progress,
next_item_id=excluded.next_item_id, phase_priority=excluded.phase_priority, updated_at=excluded.updated_at`,
		st.ProjectID, nullable(st.CurrentItemID), st.CurrentItemProgress, nullable(st.NextItemID), string(st.PhasePriority), st.UpdatedAt)
	return err
}

const statusColumns = `project_id,COALESCE(current_item_id,''),current_item_progress,COALESCE(next_item_id,''),phase_priority,updated_at`

func scanStatus(row scanner) (domain.PRDStatus, error) {
	var (
		st    domain.PRDStatus
		phase string
	)
	err := row.Scan(&st.ProjectID, &st.CurrentItemID, &st.CurrentItemProgress, &st.NextItemID, &phase, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	st.PhasePriority = domain.Phase(phase)
	return st, err
}

func (r Repo) GetStatus(ctx context.Context, tx *sql.Tx, projectID string) (domain.PRDStatus, error) {
	return scanStatus(r.q(tx).QueryRowContext(ctx, `SELECT `+statusColumns+` FROM prd_status WHERE project_id=?`, projectID))
}

// Statuses returns every stored status keyed by project id.
func (r Repo) Statuses(ctx context.Context, tx *sql.Tx) (map[string]domain.PRDStatus, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+statusColumns+` FROM prd_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]domain.PRDStatus{}
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out[st.ProjectID] = st
	}
	return out, rows.Err()
}
