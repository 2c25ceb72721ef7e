// Package registry holds the tracked projects and the ranking rule shared by
// the rotation planner and the conflict resolver.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

type Registry struct {
	projects map[string]domain.Project
}

// New builds a registry, enforcing the same invariants as Register.
func New(projects ...domain.Project) (*Registry, error) {
	r := &Registry{projects: make(map[string]domain.Project, len(projects))}
	for _, p := range projects {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a project. Only one active project may hold the ALWAYS tier.
func (r *Registry) Register(p domain.Project) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	if !p.Tier.Valid() {
		return fmt.Errorf("invalid priority tier %q for project %s", p.Tier, p.ID)
	}
	if _, exists := r.projects[p.ID]; exists {
		return fmt.Errorf("project %s already registered", p.ID)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	if p.Active && p.Tier == domain.TierAlways {
		if holder, ok := r.Always(); ok {
			return domain.TierConflictError{ProjectID: p.ID, HolderID: holder.ID}
		}
	}
	r.projects[p.ID] = p
	return nil
}

// Get resolves a reference by id or display name, case-insensitively.
// Unknown references are reported, never guessed.
func (r *Registry) Get(ref string) (domain.Project, error) {
	ref = strings.TrimSpace(ref)
	if p, ok := r.projects[ref]; ok {
		return p, nil
	}
	var match []domain.Project
	for _, p := range r.projects {
		if strings.EqualFold(p.ID, ref) || strings.EqualFold(p.DisplayName, ref) {
			match = append(match, p)
		}
	}
	if len(match) == 1 {
		return match[0], nil
	}
	return domain.Project{}, domain.AmbiguousProjectReferenceError{Reference: ref, Known: r.ids()}
}

func (r *Registry) Deactivate(id string) (domain.Project, error) {
	p, err := r.Get(id)
	if err != nil {
		return p, err
	}
	p.Active = false
	r.projects[p.ID] = p
	return p, nil
}

// SetTier moves a project to a new tier, keeping ALWAYS unique.
func (r *Registry) SetTier(id string, tier domain.Tier) (domain.Project, error) {
	p, err := r.Get(id)
	if err != nil {
		return p, err
	}
	if !tier.Valid() {
		return p, fmt.Errorf("invalid priority tier %q", tier)
	}
	if tier == domain.TierAlways && p.Active {
		if holder, ok := r.Always(); ok && holder.ID != p.ID {
			return p, domain.TierConflictError{ProjectID: p.ID, HolderID: holder.ID}
		}
	}
	p.Tier = tier
	r.projects[p.ID] = p
	return p, nil
}

// List returns every project ordered by id.
func (r *Registry) List() []domain.Project {
	out := make([]domain.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Always returns the active ALWAYS-tier project, if any.
func (r *Registry) Always() (domain.Project, bool) {
	for _, p := range r.projects {
		if p.Active && p.Tier == domain.TierAlways {
			return p, true
		}
	}
	return domain.Project{}, false
}

// Eligible returns active CLIENT and ROTATING projects ordered by id.
func (r *Registry) Eligible() []domain.Project {
	var out []domain.Project
	for _, p := range r.List() {
		if p.Active && p.Tier != domain.TierAlways {
			out = append(out, p)
		}
	}
	return out
}

// AdvanceLastWorked moves last_worked_date forward to date; it never moves backward.
func (r *Registry) AdvanceLastWorked(id, date string) (bool, error) {
	p, ok := r.projects[id]
	if !ok {
		return false, domain.AmbiguousProjectReferenceError{Reference: id, Known: r.ids()}
	}
	if p.LastWorkedDate >= date {
		return false, nil
	}
	p.LastWorkedDate = date
	r.projects[id] = p
	return true, nil
}

// NeedingAttention lists active non-ALWAYS projects not worked for at least
// threshold days before today. Never-worked projects are included.
func (r *Registry) NeedingAttention(today string, threshold int) ([]domain.Project, error) {
	var out []domain.Project
	for _, p := range r.Eligible() {
		if p.LastWorkedDate == "" {
			out = append(out, p)
			continue
		}
		days, err := domain.DaysBetween(p.LastWorkedDate, today)
		if err != nil {
			return nil, err
		}
		if days >= threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastWorkedDate < out[j].LastWorkedDate })
	return out, nil
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.projects))
	for id := range r.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
