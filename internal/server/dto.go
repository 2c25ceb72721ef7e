package server

import (
	"encoding/json"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// Request payloads

type ProjectCreateRequest struct {
	ID          string      `json:"id" minLength:"1"`
	DisplayName string      `json:"display_name,omitempty"`
	RootPath    string      `json:"root_path,omitempty"`
	Tier        domain.Tier `json:"priority_tier,omitempty" enum:"always,client,rotating"`
}

type TierRequest struct {
	Tier domain.Tier `json:"priority_tier" enum:"always,client,rotating"`
}

type StatusRequest struct {
	CurrentItemID       string       `json:"current_item_id,omitempty"`
	CurrentItemProgress int          `json:"current_item_progress,omitempty" minimum:"0" maximum:"100"`
	NextItemID          string       `json:"next_item_id,omitempty"`
	PhasePriority       domain.Phase `json:"phase_priority,omitempty" enum:"P0,P1,P2"`
}

// SlotBody carries clock positions as "HH:MM" strings.
type SlotBody struct {
	Name   string          `json:"name,omitempty"`
	Start  string          `json:"start" example:"08:00"`
	End    string          `json:"end" example:"11:00"`
	Kind   domain.SlotKind `json:"kind" enum:"fixed_personal,work_window"`
	Label  string          `json:"label,omitempty"`
	Always bool            `json:"always,omitempty"`
	Days   []string        `json:"days,omitempty"`
}

type TemplateBody struct {
	Slots     []SlotBody `json:"slots"`
	UpdatedAt string     `json:"updated_at,omitempty" format:"date-time"`
}

type OverrideRequest struct {
	Start   string `json:"start" example:"12:00"`
	End     string `json:"end" example:"14:00"`
	Project string `json:"project,omitempty"`
	Label   string `json:"label,omitempty"`
}

type SkipRequest struct {
	Project string `json:"project" minLength:"1"`
}

type BookingsRequest struct {
	Source   string                `json:"source,omitempty"`
	Bookings []domain.BookingEvent `json:"bookings"`
}

type APIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type ProjectDetail struct {
	Project domain.Project    `json:"project"`
	Status  *domain.PRDStatus `json:"status,omitempty"`
}

type APIKeyCreated struct {
	Key       domain.APIKey `json:"key"`
	Plaintext string        `json:"plaintext"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func (s SlotBody) toDomain() (domain.TemplateSlot, error) {
	start, err := domain.ParseClock(s.Start)
	if err != nil {
		return domain.TemplateSlot{}, err
	}
	end, err := domain.ParseClock(s.End)
	if err != nil {
		return domain.TemplateSlot{}, err
	}
	return domain.TemplateSlot{
		Name:   s.Name,
		Start:  start,
		End:    end,
		Kind:   s.Kind,
		Label:  s.Label,
		Always: s.Always,
		Days:   s.Days,
	}, nil
}

func slotBody(s domain.TemplateSlot) SlotBody {
	return SlotBody{
		Name:   s.Name,
		Start:  s.Start.String(),
		End:    s.End.String(),
		Kind:   s.Kind,
		Label:  s.Label,
		Always: s.Always,
		Days:   s.Days,
	}
}

func templateBody(t domain.RoutineTemplate) TemplateBody {
	out := TemplateBody{Slots: make([]SlotBody, 0, len(t.Slots)), UpdatedAt: t.UpdatedAt}
	for _, s := range t.Slots {
		out.Slots = append(out.Slots, slotBody(s))
	}
	return out
}

func (t TemplateBody) toDomain() (domain.RoutineTemplate, error) {
	out := domain.RoutineTemplate{Slots: make([]domain.TemplateSlot, 0, len(t.Slots))}
	for _, s := range t.Slots {
		slot, err := s.toDomain()
		if err != nil {
			return domain.RoutineTemplate{}, err
		}
		out.Slots = append(out.Slots, slot)
	}
	return out, nil
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
