package domain

import "time"

// DateLayout is the calendar-date format used for schedule days and last-worked dates.
const DateLayout = "2006-01-02"

type Tier string

const (
	TierAlways   Tier = "always"
	TierClient   Tier = "client"
	TierRotating Tier = "rotating"
)

// Rank orders tiers so that ascending sorts put ALWAYS first.
func (t Tier) Rank() int {
	switch t {
	case TierAlways:
		return 0
	case TierClient:
		return 1
	case TierRotating:
		return 2
	default:
		return 3
	}
}

func (t Tier) Valid() bool {
	return t.Rank() < 3
}

type Phase string

const (
	PhaseP0 Phase = "P0"
	PhaseP1 Phase = "P1"
	PhaseP2 Phase = "P2"
)

func (p Phase) Rank() int {
	switch p {
	case PhaseP0:
		return 0
	case PhaseP1:
		return 1
	default:
		return 2
	}
}

type Project struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	RootPath       string `json:"root_path,omitempty"`
	Tier           Tier   `json:"priority_tier" enum:"always,client,rotating"`
	LastWorkedDate string `json:"last_worked_date,omitempty" format:"date"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type PRDStatus struct {
	ProjectID           string `json:"project_id"`
	CurrentItemID       string `json:"current_item_id,omitempty"`
	CurrentItemProgress int    `json:"current_item_progress"`
	NextItemID          string `json:"next_item_id,omitempty"`
	PhasePriority       Phase  `json:"phase_priority" enum:"P0,P1,P2"`
	UpdatedAt           string `json:"updated_at,omitempty" format:"date-time"`
}

type SlotKind string

const (
	SlotFixedPersonal SlotKind = "fixed_personal"
	SlotWorkWindow    SlotKind = "work_window"
)

type TemplateSlot struct {
	Name   string   `json:"name" yaml:"name"`
	Start  Clock    `json:"start" yaml:"start"`
	End    Clock    `json:"end" yaml:"end"`
	Kind   SlotKind `json:"kind" yaml:"kind" enum:"fixed_personal,work_window"`
	Label  string   `json:"label,omitempty" yaml:"label,omitempty"`
	Always bool     `json:"always,omitempty" yaml:"always,omitempty"`
	Days   []string `json:"days,omitempty" yaml:"days,omitempty"`
}

// ActiveOn reports whether the slot applies on the given weekday.
func (s TemplateSlot) ActiveOn(day time.Weekday) bool {
	if len(s.Days) == 0 {
		return true
	}
	for _, d := range s.Days {
		if wd, ok := ParseWeekday(d); ok && wd == day {
			return true
		}
	}
	return false
}

type RoutineTemplate struct {
	Slots     []TemplateSlot `json:"slots" yaml:"slots"`
	UpdatedAt string         `json:"updated_at,omitempty" yaml:"-"`
}

type BlockSource string

const (
	SourceTemplate       BlockSource = "template"
	SourceRotation       BlockSource = "rotation"
	SourceBooking        BlockSource = "booking"
	SourceManualOverride BlockSource = "manual_override"
)

type OccupantKind string

const (
	OccupantProject  OccupantKind = "project"
	OccupantPersonal OccupantKind = "personal"
	OccupantBooking  OccupantKind = "booking"
	// OccupantOpen marks a work window nobody could be assigned to.
	OccupantOpen OccupantKind = "open"
)

type Occupant struct {
	Kind  OccupantKind `json:"kind" enum:"project,personal,booking,open"`
	Ref   string       `json:"ref,omitempty"`
	Label string       `json:"label,omitempty"`
}

func ProjectOccupant(id string) Occupant {
	return Occupant{Kind: OccupantProject, Ref: id}
}

func (o Occupant) IsProject() bool { return o.Kind == OccupantProject && o.Ref != "" }

type TimeBlock struct {
	ID       string      `json:"id"`
	Start    Clock       `json:"start"`
	End      Clock       `json:"end"`
	Occupant Occupant    `json:"occupant"`
	Source   BlockSource `json:"source" enum:"template,rotation,booking,manual_override"`
	Window   SlotKind    `json:"window,omitempty"`
	Always   bool        `json:"always,omitempty"`
	Skipped  bool        `json:"skipped,omitempty"`
}

func (b TimeBlock) Duration() time.Duration {
	return time.Duration(b.End-b.Start) * time.Minute
}

// Overlaps reports whether two half-open intervals [start,end) intersect.
func (b TimeBlock) Overlaps(start, end Clock) bool {
	return b.Start < end && start < b.End
}

type DayStatus string

const (
	DayDraft    DayStatus = "draft"
	DayProposed DayStatus = "proposed"
	DayApproved DayStatus = "approved"
	DayActive   DayStatus = "active"
	DayArchived DayStatus = "archived"
)

// Order gives the lifecycle position; transitions may never decrease it.
func (s DayStatus) Order() int {
	switch s {
	case DayDraft:
		return 0
	case DayProposed:
		return 1
	case DayApproved:
		return 2
	case DayActive:
		return 3
	case DayArchived:
		return 4
	default:
		return -1
	}
}

type DiagnosticCode string

const (
	DiagSlotUnfillable      DiagnosticCode = "slot_unfillable"
	DiagNoWorkWindows       DiagnosticCode = "no_work_windows"
	DiagConflictUnresolved  DiagnosticCode = "conflict_unresolved"
	DiagRemainderDropped    DiagnosticCode = "remainder_dropped"
	DiagBookingOverlap      DiagnosticCode = "booking_overlap"
	DiagOverrideReplacedFix DiagnosticCode = "override_replaced_fixed"
)

type Diagnostic struct {
	Code      DiagnosticCode `json:"code"`
	Start     Clock          `json:"start"`
	End       Clock          `json:"end"`
	ProjectID string         `json:"project_id,omitempty"`
	BookingID string         `json:"booking_id,omitempty"`
	Message   string         `json:"message"`
}

type ScheduleDay struct {
	Date        string         `json:"date" format:"date"`
	Status      DayStatus      `json:"status" enum:"draft,proposed,approved,active,archived"`
	Blocks      []TimeBlock    `json:"blocks"`
	SignalTasks []string       `json:"signal_tasks"`
	Base        []TimeBlock    `json:"base"`
	Overrides   []TimeBlock    `json:"overrides,omitempty"`
	Bookings    []BookingEvent `json:"bookings,omitempty"`
	Skipped     []string       `json:"skipped,omitempty"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	Version     int            `json:"version"`
	UpdatedAt   string         `json:"updated_at,omitempty" format:"date-time"`
}

// Block returns the block with the given id.
func (d ScheduleDay) Block(id string) (TimeBlock, bool) {
	for _, b := range d.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return TimeBlock{}, false
}

// HasDiagnostic reports whether any diagnostic carries the code.
func (d ScheduleDay) HasDiagnostic(code DiagnosticCode) bool {
	for _, diag := range d.Diagnostics {
		if diag.Code == code {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (d ScheduleDay) Clone() ScheduleDay {
	out := d
	out.Blocks = append([]TimeBlock(nil), d.Blocks...)
	out.SignalTasks = append([]string(nil), d.SignalTasks...)
	out.Base = append([]TimeBlock(nil), d.Base...)
	out.Overrides = append([]TimeBlock(nil), d.Overrides...)
	out.Bookings = append([]BookingEvent(nil), d.Bookings...)
	out.Skipped = append([]string(nil), d.Skipped...)
	out.Diagnostics = append([]Diagnostic(nil), d.Diagnostics...)
	return out
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type BookingEvent struct {
	SourceID string        `json:"source_id"`
	Source   string        `json:"source,omitempty"`
	Title    string        `json:"title,omitempty"`
	Start    time.Time     `json:"start" format:"date-time"`
	End      time.Time     `json:"end" format:"date-time"`
	Status   BookingStatus `json:"status" enum:"confirmed,cancelled"`
}

type Intent string

const (
	IntentQuery    Intent = "query"
	IntentMutation Intent = "mutation"
)

type Target string

const (
	TargetSchedule Target = "schedule"
	TargetProject  Target = "project"
	TargetTemplate Target = "template"
)

type Command struct {
	Intent          Intent            `json:"intent" enum:"query,mutation"`
	Target          Target            `json:"target" enum:"schedule,project,template"`
	Action          string            `json:"action"`
	TriggerDetected bool              `json:"trigger_detected"`
	Payload         map[string]string `json:"payload,omitempty"`
	Channel         string            `json:"channel,omitempty"`
	Text            string            `json:"text,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey lets a channel adapter (chat bot, voice bridge) call the API as ActorID.
type APIKey struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	Name       string `json:"name,omitempty"`
	KeyHash    string `json:"-"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	LastUsedAt string `json:"last_used_at,omitempty" format:"date-time"`
}
