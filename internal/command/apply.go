package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// Executor answers queries and performs mutations against current state.
// Execute must either apply the whole command or leave state untouched.
// Check rejects a mutation whose references cannot resolve, before it is
// staged.
type Executor interface {
	Query(ctx context.Context, cmd domain.Command) (any, error)
	Check(ctx context.Context, cmd domain.Command) error
	Execute(ctx context.Context, cmd domain.Command) (any, error)
}

// Pending is a mutation waiting for an affirmative follow-up.
type Pending struct {
	ID        string         `json:"id"`
	Command   domain.Command `json:"command"`
	CreatedAt string         `json:"created_at" format:"date-time"`
}

// Session carries the staged mutation between commands. Callers load and
// store it; Apply only changes it.
type Session struct {
	Pending *Pending
	Now     func() time.Time
}

type Status string

const (
	StatusAnswered             Status = "answered"
	StatusApplied              Status = "applied"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCancelled            Status = "cancelled"
)

type Outcome struct {
	Status    Status         `json:"status" enum:"answered,applied,awaiting_confirmation,cancelled"`
	Command   domain.Command `json:"command"`
	PendingID string         `json:"pending_id,omitempty"`
	Result    any            `json:"result,omitempty"`
}

// Apply runs a classified command. Queries are answered directly; triggered
// mutations execute immediately; other mutations are staged on the session
// until a confirm (executes) or cancel (drops) arrives.
func Apply(ctx context.Context, cmd domain.Command, sess *Session, ex Executor) (Outcome, error) {
	switch cmd.Action {
	case ActionConfirm:
		if sess.Pending == nil {
			return Outcome{}, domain.ErrNothingPending
		}
		pending := *sess.Pending
		res, err := ex.Execute(ctx, pending.Command)
		if err != nil {
			return Outcome{}, err
		}
		sess.Pending = nil
		return Outcome{Status: StatusApplied, Command: pending.Command, PendingID: pending.ID, Result: res}, nil
	case ActionCancel:
		if sess.Pending == nil {
			return Outcome{}, domain.ErrNothingPending
		}
		pending := *sess.Pending
		sess.Pending = nil
		return Outcome{Status: StatusCancelled, Command: pending.Command, PendingID: pending.ID}, nil
	}

	switch cmd.Intent {
	case domain.IntentQuery:
		res, err := ex.Query(ctx, cmd)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusAnswered, Command: cmd, Result: res}, nil
	case domain.IntentMutation:
		if cmd.TriggerDetected {
			res, err := ex.Execute(ctx, cmd)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Status: StatusApplied, Command: cmd, Result: res}, nil
		}
		if err := ex.Check(ctx, cmd); err != nil {
			return Outcome{}, err
		}
		now := time.Now
		if sess.Now != nil {
			now = sess.Now
		}
		sess.Pending = &Pending{
			ID:        uuid.NewString(),
			Command:   cmd,
			CreatedAt: now().UTC().Format(time.RFC3339),
		}
		return Outcome{Status: StatusAwaitingConfirmation, Command: cmd, PendingID: sess.Pending.ID}, nil
	}
	return Outcome{}, domain.UnrecognizedCommandError{Input: cmd.Text, Reason: "unknown intent " + string(cmd.Intent)}
}
