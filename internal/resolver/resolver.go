// Package resolver merges manual overrides and external bookings into a
// planned day.
package resolver

import (
	"fmt"
	"sort"
	"time"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/planner"
)

const DefaultMinUsable = 30 * time.Minute

type AlwaysPolicy string

const (
	// AlwaysYield lets a booking split the ALWAYS block like any work window.
	AlwaysYield AlwaysPolicy = "yield"
	// AlwaysProtect treats the ALWAYS block like fixed personal time.
	AlwaysProtect AlwaysPolicy = "protect"
)

func (p AlwaysPolicy) Valid() bool {
	return p == "" || p == AlwaysYield || p == AlwaysProtect
}

type Options struct {
	MinUsable    time.Duration
	AlwaysPolicy AlwaysPolicy
	Location     *time.Location
	SignalLimit  int
	// Projects and Statuses feed the ranking used to re-offer open time.
	Projects []domain.Project
	Statuses map[string]domain.PRDStatus
}

func (o Options) minUsable() domain.Clock {
	d := o.MinUsable
	if d <= 0 {
		d = DefaultMinUsable
	}
	return domain.Clock(d / time.Minute)
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Resolve derives the PROPOSED day from day.Base, day.Overrides and the
// given bookings. The result depends only on those inputs, so resolving a
// resolved day against the same bookings changes nothing.
func Resolve(day domain.ScheduleDay, bookings []domain.BookingEvent, opts Options) (domain.ScheduleDay, error) {
	dayStart, err := domain.ParseDate(day.Date, opts.location())
	if err != nil {
		return domain.ScheduleDay{}, err
	}
	r := &resolution{min: opts.minUsable(), policy: opts.AlwaysPolicy}
	r.blocks = append([]domain.TimeBlock(nil), day.Base...)

	for _, o := range day.Overrides {
		r.applyOverride(o)
	}
	for _, b := range sortBookings(bookings) {
		if b.Status != domain.BookingConfirmed {
			continue
		}
		start, end := domain.ClockOf(b.Start, dayStart), domain.ClockOf(b.End, dayStart)
		if end <= start {
			continue
		}
		r.applyBooking(b, start, end)
	}
	r.reoffer(opts.Projects, opts.Statuses)

	out := day.Clone()
	out.Status = domain.DayProposed
	out.Blocks = planner.Finalize(day.Date, r.blocks)
	out.Bookings = sortBookings(bookings)
	out.Diagnostics = append(plannerDiagnostics(day.Diagnostics, out.Blocks), r.diags...)
	limit := opts.SignalLimit
	if limit <= 0 {
		limit = planner.DefaultSignalLimit
	}
	out.SignalTasks = planner.Signals(out.Blocks, opts.Projects, opts.Statuses, limit)
	if err := Validate(out.Blocks); err != nil {
		return domain.ScheduleDay{}, err
	}
	return out, nil
}

// Validate checks that blocks are ordered and pairwise non-overlapping.
func Validate(blocks []domain.TimeBlock) error {
	for i, b := range blocks {
		if b.End <= b.Start {
			return fmt.Errorf("block %s has empty span %s-%s", b.ID, b.Start, b.End)
		}
		if i > 0 && blocks[i-1].End > b.Start {
			return fmt.Errorf("blocks overlap at %s-%s", b.Start, blocks[i-1].End)
		}
	}
	return nil
}

type resolution struct {
	min    domain.Clock
	policy AlwaysPolicy
	blocks []domain.TimeBlock
	diags  []domain.Diagnostic
}

func (r *resolution) applyOverride(o domain.TimeBlock) {
	if o.End <= o.Start {
		return
	}
	o.Source = domain.SourceManualOverride
	o.ID = ""
	for _, b := range r.blocks {
		if b.Window == domain.SlotFixedPersonal && b.Overlaps(o.Start, o.End) {
			r.diags = append(r.diags, domain.Diagnostic{
				Code:    domain.DiagOverrideReplacedFix,
				Start:   o.Start,
				End:     o.End,
				Message: fmt.Sprintf("manual override replaced %s", b.Occupant.Label),
			})
		}
	}
	// overrides are kept at full length; a later override wins its span
	if o.Window == "" {
		o.Window = r.windowAt(o.Start, o.End)
	}
	r.carve(o.Start, o.End)
	r.blocks = append(r.blocks, o)
}

func (r *resolution) applyBooking(b domain.BookingEvent, start, end domain.Clock) {
	for _, blk := range r.blocks {
		if !blk.Overlaps(start, end) {
			continue
		}
		switch {
		case blk.Source == domain.SourceBooking || blk.Source == domain.SourceManualOverride:
			r.diags = append(r.diags, domain.Diagnostic{
				Code:      domain.DiagBookingOverlap,
				Start:     start,
				End:       end,
				BookingID: b.SourceID,
				Message:   fmt.Sprintf("booking %q overlaps %s block %s-%s", b.Title, blk.Source, blk.Start, blk.End),
			})
			return
		case blk.Window == domain.SlotFixedPersonal, blk.Always && r.policy == AlwaysProtect:
			diag := domain.Diagnostic{
				Code:      domain.DiagConflictUnresolved,
				Start:     start,
				End:       end,
				BookingID: b.SourceID,
				Message:   fmt.Sprintf("booking %q overlaps protected block %s-%s", b.Title, blk.Start, blk.End),
			}
			if blk.Occupant.IsProject() {
				diag.ProjectID = blk.Occupant.Ref
			}
			r.diags = append(r.diags, diag)
			return
		}
	}
	window := r.windowAt(start, end)
	r.carve(start, end)
	label := b.Title
	if label == "" {
		label = "booking"
	}
	r.blocks = append(r.blocks, domain.TimeBlock{
		Start:    start,
		End:      end,
		Occupant: domain.Occupant{Kind: domain.OccupantBooking, Ref: b.SourceID, Label: label},
		Source:   domain.SourceBooking,
		Window:   window,
	})
}

// carve removes [start,end) from every block, keeping the remainders that
// are still usable.
func (r *resolution) carve(start, end domain.Clock) {
	var out []domain.TimeBlock
	for _, b := range r.blocks {
		if !b.Overlaps(start, end) {
			out = append(out, b)
			continue
		}
		if b.Start < start {
			out = r.keep(out, b, b.Start, start)
		}
		if end < b.End {
			out = r.keep(out, b, end, b.End)
		}
	}
	r.blocks = out
}

func (r *resolution) keep(out []domain.TimeBlock, b domain.TimeBlock, start, end domain.Clock) []domain.TimeBlock {
	rem := b
	rem.Start, rem.End = start, end
	rem.ID = ""
	workLike := b.Occupant.Kind == domain.OccupantProject || b.Occupant.Kind == domain.OccupantOpen
	if workLike && end-start < r.min {
		diag := domain.Diagnostic{
			Code:    domain.DiagRemainderDropped,
			Start:   start,
			End:     end,
			Message: fmt.Sprintf("remainder %s-%s shorter than %d minutes", start, end, int(r.min)),
		}
		if b.Occupant.IsProject() {
			diag.ProjectID = b.Occupant.Ref
		}
		r.diags = append(r.diags, diag)
		return out
	}
	return append(out, rem)
}

func (r *resolution) windowAt(start, end domain.Clock) domain.SlotKind {
	for _, b := range r.blocks {
		if b.Overlaps(start, end) && b.Window != "" {
			return b.Window
		}
	}
	return ""
}

// reoffer fills open blocks with the best-ranked projects not yet on the day.
func (r *resolution) reoffer(projects []domain.Project, statuses map[string]domain.PRDStatus) {
	sort.SliceStable(r.blocks, func(i, j int) bool { return r.blocks[i].Start < r.blocks[j].Start })
	scheduled := map[string]bool{}
	for _, b := range r.blocks {
		if b.Occupant.IsProject() {
			scheduled[b.Occupant.Ref] = true
		}
	}
	for _, p := range projects {
		if p.Tier == domain.TierAlways {
			scheduled[p.ID] = true
		}
	}
	for i, b := range r.blocks {
		if b.Occupant.Kind != domain.OccupantOpen {
			continue
		}
		cands := planner.Candidates(projects, statuses, scheduled)
		if len(cands) == 0 {
			continue
		}
		r.blocks[i].Occupant = domain.ProjectOccupant(cands[0].ID)
		scheduled[cands[0].ID] = true
	}
}

// plannerDiagnostics keeps the diagnostics the planner produced, dropping
// SlotUnfillable entries whose span is no longer open.
func plannerDiagnostics(in []domain.Diagnostic, blocks []domain.TimeBlock) []domain.Diagnostic {
	var out []domain.Diagnostic
	for _, d := range in {
		switch d.Code {
		case domain.DiagNoWorkWindows:
			out = append(out, d)
		case domain.DiagSlotUnfillable:
			for _, b := range blocks {
				if b.Occupant.Kind == domain.OccupantOpen && b.Overlaps(d.Start, d.End) {
					out = append(out, d)
					break
				}
			}
		}
	}
	return out
}

func sortBookings(in []domain.BookingEvent) []domain.BookingEvent {
	out := append([]domain.BookingEvent(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.SourceID < b.SourceID
	})
	return out
}
