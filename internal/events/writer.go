package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the log. notify.* events are the outbound
// notifications picked up by the webhook dispatcher.
const (
	ProjectRegistered    = "project.registered"
	ProjectDeactivated   = "project.deactivated"
	ProjectTierChanged   = "project.tier_changed"
	ProjectStatusUpdated = "project.status_updated"
	ProjectCompleted     = "project.item_completed"
	ProjectWorked        = "project.last_worked_advanced"
	TemplateUpdated      = "template.updated"
	DayPlanned           = "schedule.planned"
	DayProposed          = "schedule.proposed"
	DayApproved          = "schedule.approved"
	DayActivated         = "schedule.activated"
	DayOverridden        = "schedule.overridden"
	DaySkipped           = "schedule.skipped"
	DayArchived          = "schedule.archived"
	BookingsIngested     = "bookings.ingested"
	CommandStaged        = "command.staged"
	CommandApplied       = "command.applied"
	CommandCancelled     = "command.cancelled"
	APIKeyCreated        = "api_key.created"
	NotifyMorningBrief   = "notify.morning_brief"
	NotifyEveningSummary = "notify.evening_summary"
	NotifyConflictAlert  = "notify.conflict_alert"
	NotifyBlockReminder  = "notify.block_reminder"
	NotifyWeekAhead      = "notify.week_ahead"
	NotifyWeeklyReview   = "notify.weekly_review"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside tx so it commits or rolls back with the
// state change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
