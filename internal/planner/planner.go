// Package planner builds the draft schedule for a day from the routine
// template and the project registry.
package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/registry"
)

const DefaultSignalLimit = 3

type Options struct {
	SignalLimit int
}

func (o Options) signalLimit() int {
	if o.SignalLimit <= 0 {
		return DefaultSignalLimit
	}
	return o.SignalLimit
}

// Plan produces the DRAFT day. It is a pure function of its inputs.
func Plan(date string, projects []domain.Project, tmpl domain.RoutineTemplate, statuses map[string]domain.PRDStatus, opts Options) (domain.ScheduleDay, error) {
	day, err := domain.ParseDate(date, nil)
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	slots := SlotsFor(tmpl, day.Weekday())

	var (
		blocks  []domain.TimeBlock
		windows []domain.TemplateSlot
		diags   []domain.Diagnostic
	)
	for _, s := range slots {
		if s.Kind == domain.SlotFixedPersonal {
			label := s.Label
			if label == "" {
				label = s.Name
			}
			blocks = append(blocks, domain.TimeBlock{
				Start:    s.Start,
				End:      s.End,
				Occupant: domain.Occupant{Kind: domain.OccupantPersonal, Ref: s.Name, Label: label},
				Source:   domain.SourceTemplate,
				Window:   domain.SlotFixedPersonal,
			})
			continue
		}
		windows = append(windows, s)
	}

	if len(windows) == 0 {
		diags = append(diags, domain.Diagnostic{
			Code:    domain.DiagNoWorkWindows,
			Message: fmt.Sprintf("template has no work windows on %s", day.Weekday()),
		})
	}

	always, hasAlways := alwaysProject(projects)
	designated := designatedWindow(windows)
	rotationSlots := windows
	if hasAlways && designated >= 0 {
		s := windows[designated]
		blocks = append(blocks, domain.TimeBlock{
			Start:    s.Start,
			End:      s.End,
			Occupant: domain.ProjectOccupant(always.ID),
			Source:   domain.SourceRotation,
			Window:   domain.SlotWorkWindow,
			Always:   true,
		})
		rotationSlots = make([]domain.TemplateSlot, 0, len(windows)-1)
		rotationSlots = append(rotationSlots, windows[:designated]...)
		rotationSlots = append(rotationSlots, windows[designated+1:]...)
	}

	ranked := Candidates(projects, statuses, nil)
	for i, s := range rotationSlots {
		b := domain.TimeBlock{Start: s.Start, End: s.End, Source: domain.SourceRotation, Window: domain.SlotWorkWindow}
		if len(ranked) == 0 {
			b.Occupant = domain.Occupant{Kind: domain.OccupantOpen, Ref: s.Name}
			diags = append(diags, domain.Diagnostic{
				Code:    domain.DiagSlotUnfillable,
				Start:   s.Start,
				End:     s.End,
				Message: fmt.Sprintf("no eligible project for slot %s", s.Name),
			})
		} else {
			// fewer projects than slots: the lowest-ranked project repeats
			idx := i
			if idx >= len(ranked) {
				idx = len(ranked) - 1
			}
			b.Occupant = domain.ProjectOccupant(ranked[idx].ID)
		}
		blocks = append(blocks, b)
	}

	blocks = Finalize(date, blocks)
	return domain.ScheduleDay{
		Date:        date,
		Status:      domain.DayDraft,
		Blocks:      blocks,
		Base:        append([]domain.TimeBlock(nil), blocks...),
		SignalTasks: Signals(blocks, projects, statuses, opts.signalLimit()),
		Diagnostics: diags,
	}, nil
}

// SlotsFor returns the template slots active on a weekday, ordered by start.
func SlotsFor(tmpl domain.RoutineTemplate, wd time.Weekday) []domain.TemplateSlot {
	var out []domain.TemplateSlot
	for _, s := range tmpl.Slots {
		if !s.ActiveOn(wd) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Candidates ranks active CLIENT/ROTATING projects best-first, skipping exclude.
func Candidates(projects []domain.Project, statuses map[string]domain.PRDStatus, exclude map[string]bool) []domain.Project {
	var eligible []domain.Project
	for _, p := range projects {
		if !p.Active || p.Tier == domain.TierAlways || exclude[p.ID] {
			continue
		}
		eligible = append(eligible, p)
	}
	return registry.Rank(eligible, statuses)
}

// Signals picks the day's signal blocks: the ALWAYS block first, then the
// best-ranked distinct project assignments, capped at limit.
func Signals(blocks []domain.TimeBlock, projects []domain.Project, statuses map[string]domain.PRDStatus, limit int) []string {
	byID := make(map[string]domain.Project, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}
	var out []string
	for _, b := range blocks {
		if b.Always && b.Occupant.IsProject() {
			out = append(out, b.ID)
			break
		}
	}
	type candidate struct {
		block domain.TimeBlock
		key   registry.RankKey
	}
	var cands []candidate
	seen := map[string]bool{}
	for _, b := range blocks {
		if b.Always || !b.Occupant.IsProject() || seen[b.Occupant.Ref] {
			continue
		}
		if b.Source != domain.SourceRotation && b.Source != domain.SourceManualOverride {
			continue
		}
		p, ok := byID[b.Occupant.Ref]
		if !ok {
			continue
		}
		seen[b.Occupant.Ref] = true
		cands = append(cands, candidate{block: b, key: registry.Key(p, statuses)})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].key.Less(cands[j].key) })
	for _, c := range cands {
		if len(out) >= limit {
			break
		}
		out = append(out, c.block.ID)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Finalize orders blocks by start and stamps their deterministic ids.
func Finalize(date string, blocks []domain.TimeBlock) []domain.TimeBlock {
	out := append([]domain.TimeBlock(nil), blocks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	for i := range out {
		out[i].ID = domain.BlockID(date, out[i])
	}
	return out
}

func alwaysProject(projects []domain.Project) (domain.Project, bool) {
	for _, p := range projects {
		if p.Active && p.Tier == domain.TierAlways {
			return p, true
		}
	}
	return domain.Project{}, false
}

// designatedWindow is the slot flagged always, else the first work window.
func designatedWindow(windows []domain.TemplateSlot) int {
	for i, s := range windows {
		if s.Always {
			return i
		}
	}
	if len(windows) > 0 {
		return 0
	}
	return -1
}
