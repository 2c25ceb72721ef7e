// Package app wires a workspace: it opens and migrates the database, builds
// the engine and seeds the template and projects named in donna.yml.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/db"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/migrate"
	"github.com/Dallionking/donna-assistant/internal/prdstatus"
	"github.com/Dallionking/donna-assistant/internal/repo"
)

// Open loads the workspace config (defaults when donna.yml is absent),
// opens and migrates the database and returns a ready engine. Close the
// returned *sql.DB when done.
func Open(workspace, dbFile string, log zerolog.Logger) (engine.Engine, *sql.DB, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, File: dbFile})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	applied, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	for _, m := range applied {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("migration applied")
	}
	return engine.New(conn, cfg, log), conn, nil
}

type SeedResult struct {
	TemplateSeeded bool             `json:"template_seeded"`
	Registered     []domain.Project `json:"registered"`
}

// Seed stores the configured template when none is stored yet and registers
// configured projects that are not registered. Existing state is never
// overwritten.
func Seed(ctx context.Context, e engine.Engine, actorID string) (SeedResult, error) {
	var res SeedResult
	if _, err := e.Repo.GetTemplate(ctx, nil); errors.Is(err, repo.ErrNotFound) {
		if _, err := e.SetTemplate(ctx, e.Config.RoutineTemplate(), actorID); err != nil {
			return res, fmt.Errorf("seed template: %w", err)
		}
		res.TemplateSeeded = true
	} else if err != nil {
		return res, err
	}
	for _, seed := range e.Config.Projects {
		_, err := e.Repo.GetProject(ctx, nil, seed.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return res, err
		}
		p, err := e.RegisterProject(ctx, engine.ProjectInput{
			ID:          seed.ID,
			DisplayName: seed.DisplayName,
			RootPath:    seed.RootPath,
			Tier:        domain.Tier(seed.Tier),
		}, actorID)
		if err != nil {
			return res, fmt.Errorf("seed project %s: %w", seed.ID, err)
		}
		res.Registered = append(res.Registered, p)
	}
	return res, nil
}

type SyncResult struct {
	ProjectID string            `json:"project_id"`
	Path      string            `json:"path"`
	Status    *domain.PRDStatus `json:"status,omitempty"`
	Skipped   string            `json:"skipped,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// SyncStatuses reads each active project's status file and stores the
// snapshot. A failing project is reported and does not stop the others.
func SyncStatuses(ctx context.Context, e engine.Engine, actorID string) ([]SyncResult, error) {
	projects, err := e.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	files := map[string]string{}
	for _, seed := range e.Config.Projects {
		files[seed.ID] = seed.StatusFile
	}
	var out []SyncResult
	for _, p := range projects {
		if !p.Active {
			continue
		}
		res := SyncResult{ProjectID: p.ID}
		if p.RootPath == "" && files[p.ID] == "" {
			res.Skipped = "no root path or status file"
			out = append(out, res)
			continue
		}
		res.Path = prdstatus.Resolve(p.RootPath, files[p.ID])
		snap, err := prdstatus.Read(res.Path, p.ID)
		switch {
		case errors.Is(err, os.ErrNotExist):
			res.Skipped = "status file not found"
		case err != nil:
			res.Error = err.Error()
		default:
			stored, err := e.UpdateStatus(ctx, p.ID, snap, actorID)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Status = &stored
			}
		}
		if res.Error != "" {
			e.Log.Warn().Str("project", p.ID).Str("path", res.Path).Str("error", res.Error).Msg("status sync failed")
		}
		out = append(out, res)
	}
	return out, nil
}
