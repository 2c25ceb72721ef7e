package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

func TestDetectTrigger(t *testing.T) {
	cases := []struct {
		in      string
		rest    string
		trigger bool
	}{
		{"block tomorrow 12-2 for Sigmavue, go do", "block tomorrow 12-2 for Sigmavue", true},
		{"skip Straße Go Do!", "skip Straße", true},
		{"approve tomorrow. Do it!", "approve tomorrow", true},
		{"replan MAKE IT HAPPEN", "replan", true},
		{"go do", "", true},
		{"undo it", "undo it", false},
		{"do it later", "do it later", false},
		{"block tomorrow 12-2 for Sigmavue", "block tomorrow 12-2 for Sigmavue", false},
	}
	for _, tc := range cases {
		rest, ok := DetectTrigger(tc.in)
		assert.Equal(t, tc.trigger, ok, tc.in)
		assert.Equal(t, tc.rest, rest, tc.in)
	}
}

func TestParseText(t *testing.T) {
	raw, err := ParseText("block tomorrow 12-2 for sigmavue")
	require.NoError(t, err)
	assert.Equal(t, ActionOverrideBlock, raw.Action)
	assert.Equal(t, map[string]string{"date": "tomorrow", "start": "12:00", "end": "14:00", "project": "sigmavue"}, raw.Payload)

	raw, err = ParseText("block 2026-03-12 9:30 to 11 for proj a")
	require.NoError(t, err)
	assert.Equal(t, "09:30", raw.Payload["start"])
	assert.Equal(t, "11:00", raw.Payload["end"])
	assert.Equal(t, "proj a", raw.Payload["project"])

	raw, err = ParseText("block today 3 for proja")
	require.NoError(t, err)
	assert.Equal(t, "15:00", raw.Payload["start"])
	assert.Equal(t, "16:00", raw.Payload["end"])

	raw, err = ParseText("skip proja tomorrow")
	require.NoError(t, err)
	assert.Equal(t, ActionSkipProject, raw.Action)
	assert.Equal(t, "proja", raw.Payload["project"])
	assert.Equal(t, "tomorrow", raw.Payload["date"])

	raw, err = ParseText("mark sigmavue complete")
	require.NoError(t, err)
	assert.Equal(t, ActionMarkComplete, raw.Action)

	raw, err = ParseText("approve")
	require.NoError(t, err)
	assert.Equal(t, "tomorrow", raw.Payload["date"])

	raw, err = ParseText("yes")
	require.NoError(t, err)
	assert.Equal(t, ActionConfirm, raw.Action)

	_, err = ParseText("block tomorrow 14-12 for sigmavue")
	assert.Error(t, err)
	_, err = ParseText("order pizza")
	assert.Error(t, err)
}

func TestInterpret(t *testing.T) {
	cmd, err := Interpret(Raw{Text: "block tomorrow 12-2 for Sigmavue, go do", Channel: "telegram"})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentMutation, cmd.Intent)
	assert.Equal(t, domain.TargetSchedule, cmd.Target)
	assert.True(t, cmd.TriggerDetected)
	assert.Equal(t, "Sigmavue", cmd.Payload["project"])

	cmd, err = Interpret(Raw{Text: "Skip Straße Tomorrow, do it"})
	require.NoError(t, err)
	assert.Equal(t, ActionSkipProject, cmd.Action)
	assert.Equal(t, "Straße", cmd.Payload["project"])
	assert.Equal(t, "tomorrow", cmd.Payload["date"])
	assert.True(t, cmd.TriggerDetected)

	cmd, err = Interpret(Raw{Action: "show_day", Payload: map[string]string{"date": "today", "text": "do it"}})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentQuery, cmd.Intent)
	assert.False(t, cmd.TriggerDetected)

	cmd, err = Interpret(Raw{Action: "mark_complete", Payload: map[string]string{"project": "proja"}})
	require.NoError(t, err)
	assert.Equal(t, domain.TargetProject, cmd.Target)
	assert.False(t, cmd.TriggerDetected)
}

func TestInterpretRejectsUnknown(t *testing.T) {
	for _, raw := range []Raw{
		{},
		{Text: "order pizza"},
		{Action: "delete_everything"},
		{Action: "show_day", Intent: "mutation"},
		{Action: "mark_complete", Target: "schedule", Payload: map[string]string{"project": "a"}},
		{Action: "override_block", Payload: map[string]string{"date": "today"}},
	} {
		_, err := Interpret(raw)
		var unrec domain.UnrecognizedCommandError
		assert.True(t, errors.As(err, &unrec), "%+v: %v", raw, err)
	}
}

type recorder struct {
	executed []domain.Command
	queried  []domain.Command
	known    map[string]bool
	err      error
}

func (r *recorder) Check(_ context.Context, cmd domain.Command) error {
	ref, ok := cmd.Payload["project"]
	if !ok || r.known == nil || r.known[ref] {
		return nil
	}
	return domain.AmbiguousProjectReferenceError{Reference: ref}
}

func (r *recorder) Query(_ context.Context, cmd domain.Command) (any, error) {
	r.queried = append(r.queried, cmd)
	return "answer", nil
}

func (r *recorder) Execute(_ context.Context, cmd domain.Command) (any, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.executed = append(r.executed, cmd)
	return "done", nil
}

func interpret(t *testing.T, text string) domain.Command {
	t.Helper()
	cmd, err := Interpret(Raw{Text: text})
	require.NoError(t, err)
	return cmd
}

func TestApplyTriggeredMutationRunsImmediately(t *testing.T) {
	ex := &recorder{}
	sess := &Session{}
	out, err := Apply(context.Background(), interpret(t, "block tomorrow 12-2 for Sigmavue, go do"), sess, ex)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Len(t, ex.executed, 1)
	assert.Nil(t, sess.Pending)
}

func TestApplyStagesUntriggeredMutation(t *testing.T) {
	ex := &recorder{}
	sess := &Session{}
	out, err := Apply(context.Background(), interpret(t, "block tomorrow 12-2 for Sigmavue"), sess, ex)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingConfirmation, out.Status)
	assert.Empty(t, ex.executed)
	require.NotNil(t, sess.Pending)
	assert.Equal(t, out.PendingID, sess.Pending.ID)

	out, err = Apply(context.Background(), interpret(t, "yes"), sess, ex)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	require.Len(t, ex.executed, 1)
	assert.Equal(t, ActionOverrideBlock, ex.executed[0].Action)
	assert.Nil(t, sess.Pending)

	_, err = Apply(context.Background(), interpret(t, "yes"), sess, ex)
	assert.ErrorIs(t, err, domain.ErrNothingPending)
}

func TestApplyRejectsUnknownProjectBeforeStaging(t *testing.T) {
	ex := &recorder{known: map[string]bool{"sigmavue": true}}
	sess := &Session{}
	_, err := Apply(context.Background(), interpret(t, "block tomorrow 12-2 for nobody"), sess, ex)
	var refErr domain.AmbiguousProjectReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "nobody", refErr.Reference)
	assert.Nil(t, sess.Pending)
	assert.Empty(t, ex.executed)
}

func TestApplyCancelDropsPending(t *testing.T) {
	ex := &recorder{}
	sess := &Session{}
	_, err := Apply(context.Background(), interpret(t, "replan"), sess, ex)
	require.NoError(t, err)
	out, err := Apply(context.Background(), interpret(t, "cancel"), sess, ex)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Nil(t, sess.Pending)
	assert.Empty(t, ex.executed)
}

func TestApplyFailedConfirmKeepsPending(t *testing.T) {
	ex := &recorder{err: errors.New("boom")}
	sess := &Session{}
	_, err := Apply(context.Background(), interpret(t, "approve"), sess, ex)
	require.NoError(t, err)
	_, err = Apply(context.Background(), interpret(t, "confirm"), sess, ex)
	assert.Error(t, err)
	assert.NotNil(t, sess.Pending)
}

func TestApplyQueryNeverStages(t *testing.T) {
	ex := &recorder{}
	sess := &Session{}
	out, err := Apply(context.Background(), interpret(t, "show tomorrow"), sess, ex)
	require.NoError(t, err)
	assert.Equal(t, StatusAnswered, out.Status)
	assert.Equal(t, "answer", out.Result)
	assert.Nil(t, sess.Pending)
	assert.Len(t, ex.queried, 1)
}

func TestResolveDate(t *testing.T) {
	d, err := ResolveDate("tomorrow", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-04-01", d)
	d, err = ResolveDate("", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-31", d)
	_, err = ResolveDate("someday", "2026-03-31")
	assert.Error(t, err)
}
