package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
	"github.com/Dallionking/donna-assistant/internal/registry"
	"github.com/Dallionking/donna-assistant/internal/repo"
)

// ProjectInput are parameters for registering a project.
type ProjectInput struct {
	ID          string
	DisplayName string
	RootPath    string
	Tier        domain.Tier
}

// RegisterProject adds an active project. The display name defaults to a
// title-cased id.
func (e Engine) RegisterProject(ctx context.Context, in ProjectInput, actorID string) (domain.Project, error) {
	var out domain.Project
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.registerProject(ctx, tx, in, actorID)
		return err
	})
	return out, err
}

func (e Engine) registerProject(ctx context.Context, tx *sql.Tx, in ProjectInput, actorID string) (domain.Project, error) {
	st, err := e.load(ctx, tx)
	if err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:          strings.TrimSpace(in.ID),
		DisplayName: strings.TrimSpace(in.DisplayName),
		RootPath:    in.RootPath,
		Tier:        in.Tier,
		Active:      true,
		CreatedAt:   e.stamp(),
	}
	if p.DisplayName == "" {
		p.DisplayName = displayName(p.ID)
	}
	if err := st.reg.Register(p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.ProjectRegistered, "project", p.ID, actorID, events.EventPayload{"tier": p.Tier}); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func displayName(id string) string {
	words := strings.NewReplacer("-", " ", "_", " ").Replace(id)
	return cases.Title(language.English).String(words)
}

// DeactivateProject removes a project from rotation. Its history stays.
func (e Engine) DeactivateProject(ctx context.Context, ref, actorID string) (domain.Project, error) {
	var out domain.Project
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, err := e.load(ctx, tx)
		if err != nil {
			return err
		}
		if out, err = st.reg.Deactivate(ref); err != nil {
			return err
		}
		if err := e.Repo.UpdateProject(ctx, tx, out); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.ProjectDeactivated, "project", out.ID, actorID, nil)
	})
	return out, err
}

// SetTier moves a project to another priority tier.
func (e Engine) SetTier(ctx context.Context, ref string, tier domain.Tier, actorID string) (domain.Project, error) {
	var out domain.Project
	err := e.write(ctx, func(tx *sql.Tx) error {
		st, err := e.load(ctx, tx)
		if err != nil {
			return err
		}
		prev, err := st.reg.Get(ref)
		if err != nil {
			return err
		}
		if out, err = st.reg.SetTier(prev.ID, tier); err != nil {
			return err
		}
		if err := e.Repo.UpdateProject(ctx, tx, out); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.ProjectTierChanged, "project", out.ID, actorID,
			events.EventPayload{"from": prev.Tier, "to": out.Tier})
	})
	return out, err
}

// UpdateStatus stores a PRD status snapshot for a project. Progress on the
// same current item never decreases.
func (e Engine) UpdateStatus(ctx context.Context, ref string, next domain.PRDStatus, actorID string) (domain.PRDStatus, error) {
	var out domain.PRDStatus
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.updateStatus(ctx, tx, ref, next, actorID)
		return err
	})
	return out, err
}

func (e Engine) updateStatus(ctx context.Context, tx *sql.Tx, ref string, next domain.PRDStatus, actorID string) (domain.PRDStatus, error) {
	st, err := e.load(ctx, tx)
	if err != nil {
		return domain.PRDStatus{}, err
	}
	p, err := st.reg.Get(ref)
	if err != nil {
		return domain.PRDStatus{}, err
	}
	next.ProjectID = p.ID
	var prev *domain.PRDStatus
	if cur, ok := st.statuses[p.ID]; ok {
		prev = &cur
	}
	out, err := registry.ApplyStatus(prev, next)
	if err != nil {
		return domain.PRDStatus{}, err
	}
	out.UpdatedAt = e.stamp()
	if err := e.Repo.UpsertStatus(ctx, tx, out); err != nil {
		return domain.PRDStatus{}, err
	}
	err = e.appendEvent(ctx, tx, events.ProjectStatusUpdated, "project", p.ID, actorID, events.EventPayload{
		"current_item_id":       out.CurrentItemID,
		"current_item_progress": out.CurrentItemProgress,
		"phase_priority":        out.PhasePriority,
	})
	return out, err
}

// MarkComplete finishes a project's current item.
func (e Engine) MarkComplete(ctx context.Context, ref, actorID string) (domain.PRDStatus, error) {
	var out domain.PRDStatus
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.markComplete(ctx, tx, ref, actorID)
		return err
	})
	return out, err
}

func (e Engine) markComplete(ctx context.Context, tx *sql.Tx, ref, actorID string) (domain.PRDStatus, error) {
	st, err := e.load(ctx, tx)
	if err != nil {
		return domain.PRDStatus{}, err
	}
	p, err := st.reg.Get(ref)
	if err != nil {
		return domain.PRDStatus{}, err
	}
	cur, ok := st.statuses[p.ID]
	if !ok || cur.CurrentItemID == "" {
		return domain.PRDStatus{}, fmt.Errorf("project %s has no current item", p.ID)
	}
	done := cur.CurrentItemID
	out := registry.MarkComplete(cur)
	out.UpdatedAt = e.stamp()
	if err := e.Repo.UpsertStatus(ctx, tx, out); err != nil {
		return domain.PRDStatus{}, err
	}
	err = e.appendEvent(ctx, tx, events.ProjectCompleted, "project", p.ID, actorID, events.EventPayload{
		"completed_item_id": done,
		"current_item_id":   out.CurrentItemID,
	})
	return out, err
}

func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, nil)
}

// GetProject resolves a project by id or display name.
func (e Engine) GetProject(ctx context.Context, ref string) (domain.Project, error) {
	projects, err := e.Repo.ListProjects(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	reg, err := registry.New(projects...)
	if err != nil {
		return domain.Project{}, err
	}
	return reg.Get(ref)
}

// ProjectStatus returns the stored status, or an empty P2 status when none
// has been reported yet.
func (e Engine) ProjectStatus(ctx context.Context, ref string) (domain.PRDStatus, error) {
	p, err := e.GetProject(ctx, ref)
	if err != nil {
		return domain.PRDStatus{}, err
	}
	st, err := e.Repo.GetStatus(ctx, nil, p.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.PRDStatus{ProjectID: p.ID, PhasePriority: domain.PhaseP2}, nil
	}
	return st, err
}

// NeedingAttention lists projects not worked for the configured number of days.
func (e Engine) NeedingAttention(ctx context.Context) ([]domain.Project, error) {
	projects, err := e.Repo.ListProjects(ctx, nil)
	if err != nil {
		return nil, err
	}
	return e.needingAttention(projects)
}

func (e Engine) needingAttention(projects []domain.Project) ([]domain.Project, error) {
	reg, err := registry.New(projects...)
	if err != nil {
		return nil, err
	}
	return reg.NeedingAttention(e.Today(), e.Config.Planning.AttentionDays)
}
