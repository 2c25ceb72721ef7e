package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/Dallionking/donna-assistant/internal/command"
)

// GetPending returns the mutation staged for an actor, or nil.
func (r Repo) GetPending(ctx context.Context, tx *sql.Tx, actorID string) (*command.Pending, error) {
	var (
		p       command.Pending
		payload string
	)
	err := r.q(tx).QueryRowContext(ctx, `SELECT id, command_json, created_at FROM pending_commands WHERE actor_id=?`, actorID).
		Scan(&p.ID, &payload, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &p.Command); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePending replaces the actor's staged mutation; nil clears it.
func (r Repo) SavePending(ctx context.Context, tx *sql.Tx, actorID string, p *command.Pending) error {
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM pending_commands WHERE actor_id=?`, actorID); err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(p.Command)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO pending_commands(id,actor_id,command_json,created_at) VALUES (?,?,?,?)`,
		p.ID, actorID, string(payload), p.CreatedAt)
	return err
}
