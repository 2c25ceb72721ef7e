// Package command classifies incoming commands and applies them, staging
// mutations that were not explicitly triggered until they are confirmed.
package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// Actions understood by the interpreter.
const (
	ActionShowDay        = "show_day"
	ActionListProjects   = "list_projects"
	ActionNeedsAttention = "needs_attention"
	ActionShowTemplate   = "show_template"

	ActionOverrideBlock = "override_block"
	ActionApproveDay    = "approve_day"
	ActionReplanDay     = "replan_day"
	ActionSkipProject   = "skip_project"
	ActionMarkComplete  = "mark_complete"
	ActionSetSlot       = "set_slot"
	ActionRemoveSlot    = "remove_slot"

	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
)

type spec struct {
	intent   domain.Intent
	target   domain.Target
	required []string
}

var catalog = map[string]spec{
	ActionShowDay:        {intent: domain.IntentQuery, target: domain.TargetSchedule},
	ActionListProjects:   {intent: domain.IntentQuery, target: domain.TargetProject},
	ActionNeedsAttention: {intent: domain.IntentQuery, target: domain.TargetProject},
	ActionShowTemplate:   {intent: domain.IntentQuery, target: domain.TargetTemplate},

	ActionOverrideBlock: {intent: domain.IntentMutation, target: domain.TargetSchedule, required: []string{"date", "start", "end", "project"}},
	ActionApproveDay:    {intent: domain.IntentMutation, target: domain.TargetSchedule},
	ActionReplanDay:     {intent: domain.IntentMutation, target: domain.TargetSchedule},
	ActionSkipProject:   {intent: domain.IntentMutation, target: domain.TargetSchedule, required: []string{"project"}},
	ActionMarkComplete:  {intent: domain.IntentMutation, target: domain.TargetProject, required: []string{"project"}},
	ActionSetSlot:       {intent: domain.IntentMutation, target: domain.TargetTemplate, required: []string{"name", "start", "end", "kind"}},
	ActionRemoveSlot:    {intent: domain.IntentMutation, target: domain.TargetTemplate, required: []string{"name"}},

	ActionConfirm: {intent: domain.IntentMutation, target: domain.TargetSchedule},
	ActionCancel:  {intent: domain.IntentMutation, target: domain.TargetSchedule},
}

// Raw is a command as delivered by a channel adapter. Either Action or Text
// must be set; Text alone is parsed with ParseText.
type Raw struct {
	Intent  string            `json:"intent,omitempty"`
	Target  string            `json:"target,omitempty"`
	Action  string            `json:"action,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Text    string            `json:"text,omitempty"`
	Channel string            `json:"channel,omitempty"`
}

// Actions lists the known actions in name order.
func Actions() []string {
	out := make([]string, 0, len(catalog))
	for a := range catalog {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Interpret turns a raw command into a classified Command. Unknown actions
// and intents are rejected with UnrecognizedCommandError.
func Interpret(raw Raw) (domain.Command, error) {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		text = strings.TrimSpace(raw.Payload["text"])
	}
	stripped, trigger := DetectTrigger(text)

	action := strings.ToLower(strings.TrimSpace(raw.Action))
	payload := map[string]string{}
	if action == "" {
		if text == "" {
			return domain.Command{}, domain.UnrecognizedCommandError{Reason: "empty command"}
		}
		parsed, err := ParseText(stripped)
		if err != nil {
			return domain.Command{}, domain.UnrecognizedCommandError{Input: text, Reason: err.Error()}
		}
		action = parsed.Action
		for k, v := range parsed.Payload {
			payload[k] = v
		}
	}
	for k, v := range raw.Payload {
		if k == "text" {
			continue
		}
		payload[k] = strings.TrimSpace(v)
	}

	sp, ok := catalog[action]
	if !ok {
		return domain.Command{}, domain.UnrecognizedCommandError{Input: orText(text, action), Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if raw.Intent != "" && domain.Intent(strings.ToLower(raw.Intent)) != sp.intent {
		return domain.Command{}, domain.UnrecognizedCommandError{
			Input:  orText(text, action),
			Reason: fmt.Sprintf("action %s is a %s, not a %s", action, sp.intent, raw.Intent),
		}
	}
	if raw.Target != "" && domain.Target(strings.ToLower(raw.Target)) != sp.target {
		return domain.Command{}, domain.UnrecognizedCommandError{
			Input:  orText(text, action),
			Reason: fmt.Sprintf("action %s targets %s, not %s", action, sp.target, raw.Target),
		}
	}
	for _, key := range sp.required {
		if payload[key] == "" {
			return domain.Command{}, domain.UnrecognizedCommandError{
				Input:  orText(text, action),
				Reason: fmt.Sprintf("%s needs %q", action, key),
			}
		}
	}
	if len(payload) == 0 {
		payload = nil
	}
	return domain.Command{
		Intent:          sp.intent,
		Target:          sp.target,
		Action:          action,
		TriggerDetected: trigger && sp.intent == domain.IntentMutation,
		Payload:         payload,
		Channel:         raw.Channel,
		Text:            text,
	}, nil
}

func orText(text, action string) string {
	if text != "" {
		return text
	}
	return action
}
