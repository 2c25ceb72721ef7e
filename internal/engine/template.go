package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
)

// GetTemplate returns the stored routine template, falling back to the
// configured one before anything was saved.
func (e Engine) GetTemplate(ctx context.Context) (domain.RoutineTemplate, error) {
	var out domain.RoutineTemplate
	err := e.read(ctx, func(tx *sql.Tx) error {
		st, err := e.load(ctx, tx)
		out = st.template
		return err
	})
	return out, err
}

// SetTemplate replaces every slot. Existing days keep the plan they were
// built from; the new template applies from the next plan.
func (e Engine) SetTemplate(ctx context.Context, tmpl domain.RoutineTemplate, actorID string) (domain.RoutineTemplate, error) {
	var out domain.RoutineTemplate
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.saveTemplate(ctx, tx, tmpl, actorID, events.EventPayload{"slots": len(tmpl.Slots)})
		return err
	})
	return out, err
}

// SetSlot adds a slot or replaces the slot with the same name.
func (e Engine) SetSlot(ctx context.Context, slot domain.TemplateSlot, actorID string) (domain.RoutineTemplate, error) {
	var out domain.RoutineTemplate
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.setSlot(ctx, tx, slot, actorID)
		return err
	})
	return out, err
}

func (e Engine) setSlot(ctx context.Context, tx *sql.Tx, slot domain.TemplateSlot, actorID string) (domain.RoutineTemplate, error) {
	st, err := e.load(ctx, tx)
	if err != nil {
		return domain.RoutineTemplate{}, err
	}
	tmpl := domain.RoutineTemplate{}
	replaced := false
	for _, s := range st.template.Slots {
		if s.Name == slot.Name {
			s, replaced = slot, true
		}
		tmpl.Slots = append(tmpl.Slots, s)
	}
	if !replaced {
		tmpl.Slots = append(tmpl.Slots, slot)
	}
	return e.saveTemplate(ctx, tx, tmpl, actorID, events.EventPayload{"set": slot.Name})
}

// RemoveSlot deletes a slot by name.
func (e Engine) RemoveSlot(ctx context.Context, name, actorID string) (domain.RoutineTemplate, error) {
	var out domain.RoutineTemplate
	err := e.write(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.removeSlot(ctx, tx, name, actorID)
		return err
	})
	return out, err
}

func (e Engine) removeSlot(ctx context.Context, tx *sql.Tx, name, actorID string) (domain.RoutineTemplate, error) {
	st, err := e.load(ctx, tx)
	if err != nil {
		return domain.RoutineTemplate{}, err
	}
	tmpl := domain.RoutineTemplate{}
	for _, s := range st.template.Slots {
		if s.Name != name {
			tmpl.Slots = append(tmpl.Slots, s)
		}
	}
	if len(tmpl.Slots) == len(st.template.Slots) {
		return domain.RoutineTemplate{}, fmt.Errorf("template has no slot %q", name)
	}
	return e.saveTemplate(ctx, tx, tmpl, actorID, events.EventPayload{"removed": name})
}

func (e Engine) saveTemplate(ctx context.Context, tx *sql.Tx, tmpl domain.RoutineTemplate, actorID string, payload events.EventPayload) (domain.RoutineTemplate, error) {
	if err := config.ValidateTemplate(tmpl); err != nil {
		return domain.RoutineTemplate{}, err
	}
	tmpl.UpdatedAt = e.stamp()
	if err := e.Repo.SaveTemplate(ctx, tx, tmpl); err != nil {
		return domain.RoutineTemplate{}, err
	}
	if err := e.appendEvent(ctx, tx, events.TemplateUpdated, "template", "routine", actorID, payload); err != nil {
		return domain.RoutineTemplate{}, err
	}
	return tmpl, nil
}
