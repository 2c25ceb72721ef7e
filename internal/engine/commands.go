package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/command"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
)

// ApplyCommand interprets and applies a command for actorID. The actor's
// staged mutation lives in the database, so a confirmation may arrive on a
// later request or another channel. Everything runs in one transaction:
// a failing mutation leaves state and the staged command untouched.
func (e Engine) ApplyCommand(ctx context.Context, raw command.Raw, actorID string) (command.Outcome, error) {
	cmd, err := command.Interpret(raw)
	if err != nil {
		return command.Outcome{}, err
	}
	if cmd, err = e.pinDates(cmd); err != nil {
		return command.Outcome{}, err
	}
	var out command.Outcome
	err = e.write(ctx, func(tx *sql.Tx) error {
		pending, err := e.Repo.GetPending(ctx, tx, actorID)
		if err != nil {
			return err
		}
		sess := &command.Session{Pending: pending, Now: e.now}
		out, err = command.Apply(ctx, cmd, sess, executor{e: e, tx: tx, actorID: actorID})
		if err != nil {
			return err
		}
		if err := e.Repo.SavePending(ctx, tx, actorID, sess.Pending); err != nil {
			return err
		}
		evt := ""
		switch out.Status {
		case command.StatusApplied:
			evt = events.CommandApplied
		case command.StatusAwaitingConfirmation:
			evt = events.CommandStaged
		case command.StatusCancelled:
			evt = events.CommandCancelled
		default:
			return nil
		}
		return e.appendEvent(ctx, tx, evt, "command", out.Command.Action, actorID, events.EventPayload{
			"action":     out.Command.Action,
			"payload":    out.Command.Payload,
			"channel":    out.Command.Channel,
			"pending_id": out.PendingID,
		})
	})
	if err != nil {
		e.Log.Debug().Err(err).Str("actor", actorID).Str("action", cmd.Action).Msg("command rejected")
		return command.Outcome{}, err
	}
	e.Log.Info().Str("actor", actorID).Str("action", cmd.Action).Str("status", string(out.Status)).Msg("command")
	return out, nil
}

// PendingCommand returns the mutation staged for actorID, or nil.
func (e Engine) PendingCommand(ctx context.Context, actorID string) (*command.Pending, error) {
	return e.Repo.GetPending(ctx, nil, actorID)
}

// pinDates turns relative day words into calendar dates when the command
// arrives, so a staged "tomorrow" still means the same day when confirmed.
func (e Engine) pinDates(cmd domain.Command) (domain.Command, error) {
	raw, ok := cmd.Payload["date"]
	if !ok {
		return cmd, nil
	}
	date, err := command.ResolveDate(raw, e.Today())
	if err != nil {
		return cmd, domain.UnrecognizedCommandError{Input: cmd.Text, Reason: err.Error()}
	}
	payload := make(map[string]string, len(cmd.Payload))
	for k, v := range cmd.Payload {
		payload[k] = v
	}
	payload["date"] = date
	cmd.Payload = payload
	return cmd, nil
}

// executor runs commands inside the caller's transaction.
type executor struct {
	e       Engine
	tx      *sql.Tx
	actorID string
}

func (x executor) date(cmd domain.Command, fallback string) string {
	if d := cmd.Payload["date"]; d != "" {
		return d
	}
	return fallback
}

func (x executor) Query(ctx context.Context, cmd domain.Command) (any, error) {
	e, tx := x.e, x.tx
	switch cmd.Action {
	case command.ActionShowDay:
		return e.Repo.GetDay(ctx, tx, x.date(cmd, e.Today()))
	case command.ActionListProjects:
		return e.Repo.ListProjects(ctx, tx)
	case command.ActionNeedsAttention:
		projects, err := e.Repo.ListProjects(ctx, tx)
		if err != nil {
			return nil, err
		}
		return e.needingAttention(projects)
	case command.ActionShowTemplate:
		st, err := e.load(ctx, tx)
		return st.template, err
	}
	return nil, domain.UnrecognizedCommandError{Input: cmd.Text, Reason: "no query handler for " + cmd.Action}
}

// Check resolves the project a mutation names, so an unknown reference is
// reported when the command arrives rather than when it is confirmed.
func (x executor) Check(ctx context.Context, cmd domain.Command) error {
	ref, ok := cmd.Payload["project"]
	if !ok || strings.TrimSpace(ref) == "" {
		return nil
	}
	st, err := x.e.load(ctx, x.tx)
	if err != nil {
		return err
	}
	_, err = st.reg.Get(ref)
	return err
}

func (x executor) Execute(ctx context.Context, cmd domain.Command) (any, error) {
	e, tx := x.e, x.tx
	p := cmd.Payload
	switch cmd.Action {
	case command.ActionOverrideBlock:
		start, err := domain.ParseClock(p["start"])
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseClock(p["end"])
		if err != nil {
			return nil, err
		}
		return e.overrideBlock(ctx, tx, OverrideInput{
			Date:    x.date(cmd, e.Today()),
			Start:   start,
			End:     end,
			Project: p["project"],
			Label:   p["label"],
		}, x.actorID)
	case command.ActionApproveDay:
		return e.approveDay(ctx, tx, x.date(cmd, e.Tomorrow()), x.actorID)
	case command.ActionReplanDay:
		date := x.date(cmd, e.Tomorrow())
		st, book, err := e.prepare(ctx, tx, date)
		if err != nil {
			return nil, err
		}
		if _, err := e.machine(st).Replan(book, date); err != nil {
			return nil, err
		}
		return e.proposeDay(ctx, tx, st, book, date, x.actorID)
	case command.ActionSkipProject:
		return e.skipProject(ctx, tx, x.date(cmd, e.Today()), p["project"], x.actorID)
	case command.ActionMarkComplete:
		return e.markComplete(ctx, tx, p["project"], x.actorID)
	case command.ActionSetSlot:
		slot, err := slotFromPayload(p)
		if err != nil {
			return nil, err
		}
		return e.setSlot(ctx, tx, slot, x.actorID)
	case command.ActionRemoveSlot:
		return e.removeSlot(ctx, tx, p["name"], x.actorID)
	}
	return nil, domain.UnrecognizedCommandError{Input: cmd.Text, Reason: "no handler for " + cmd.Action}
}

func slotFromPayload(p map[string]string) (domain.TemplateSlot, error) {
	start, err := domain.ParseClock(p["start"])
	if err != nil {
		return domain.TemplateSlot{}, err
	}
	end, err := domain.ParseClock(p["end"])
	if err != nil {
		return domain.TemplateSlot{}, err
	}
	slot := domain.TemplateSlot{
		Name:  p["name"],
		Start: start,
		End:   end,
		Kind:  domain.SlotKind(p["kind"]),
		Label: p["label"],
	}
	if v := p["always"]; v != "" {
		if slot.Always, err = strconv.ParseBool(v); err != nil {
			return domain.TemplateSlot{}, fmt.Errorf("always: %w", err)
		}
	}
	if v := strings.TrimSpace(p["days"]); v != "" {
		for _, d := range strings.Split(v, ",") {
			slot.Days = append(slot.Days, strings.TrimSpace(d))
		}
	}
	return slot, nil
}
