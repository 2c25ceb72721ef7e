package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q runs against tx when one is given, else directly on the database.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

const projectColumns = `id,display_name,COALESCE(root_path,''),priority_tier,COALESCE(last_worked_date,''),active,created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (domain.Project, error) {
	var (
		p    domain.Project
		tier string
	)
	err := row.Scan(&p.ID, &p.DisplayName, &p.RootPath, &tier, &p.LastWorkedDate, &p.Active, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Tier = domain.Tier(tier)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,display_name,root_path,priority_tier,last_worked_date,active,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.DisplayName, nullable(p.RootPath), string(p.Tier), nullable(p.LastWorkedDate), p.Active, p.CreatedAt)
	return err
}

// UpdateProject rewrites the mutable project fields.
func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET display_name=?, root_path=?, priority_tier=?, last_worked_date=?, active=? WHERE id=?`,
		p.DisplayName, nullable(p.RootPath), string(p.Tier), nullable(p.LastWorkedDate), p.Active, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// ListProjects returns every project, active or not, ordered by id.
func (r Repo) ListProjects(ctx context.Context, tx *sql.Tx) ([]domain.Project, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
