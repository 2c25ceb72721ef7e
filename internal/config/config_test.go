package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, 30*time.Minute, cfg.MinUsable())
	assert.Equal(t, "yield", cfg.Planning.AlwaysBlockPolicy)
	assert.Equal(t, 3, cfg.Boundaries.BookingResyncHours)

	var primary *domain.TemplateSlot
	for i, s := range cfg.Template.Slots {
		if s.Always {
			primary = &cfg.Template.Slots[i]
		}
	}
	require.NotNil(t, primary)
	assert.Equal(t, "12:00", primary.Start.String())
	assert.Equal(t, "America/New_York", cfg.Location().String())
}

func TestFromYAMLAppliesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
timezone: Europe/Paris
template:
  slots:
    - {name: deep, start: "09:00", end: "11:00", kind: work_window}
projects:
  - {id: sigmavue, tier: always}
`))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Planning.MinUsableMinutes)
	assert.Equal(t, "05:00", cfg.Boundaries.MorningBrief)
	assert.Equal(t, 5, cfg.Boundaries.ReminderMinutes)
	assert.Equal(t, "mon 05:00", cfg.Boundaries.WeekAhead)
	assert.Equal(t, "sun 19:00", cfg.Boundaries.WeeklyReview)
	assert.Equal(t, "primary", cfg.Integrations.Google.CalendarID)
	require.Len(t, cfg.Projects, 1)
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	_, err := FromYAML([]byte(`
timezone: Mars/Olympus
planning:
  always_block_policy: sometimes
boundaries:
  morning_brief: "25:00"
  weekly_review: "someday 19:00"
projects:
  - {id: a, tier: always}
  - {id: b, tier: always}
  - {id: c, tier: weekly}
webhooks:
  - {url: ""}
`))
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)

	fields := map[string]bool{}
	for _, fe := range fieldErrs {
		fields[fe.Field] = true
	}
	for _, f := range []string{
		"timezone",
		"planning.always_block_policy",
		"boundaries.morning_brief",
		"boundaries.weekly_review",
		"projects",
		"projects[2].tier",
		"webhooks[0].url",
	} {
		assert.True(t, fields[f], "missing field error for %s", f)
	}
}

func TestParseWeekly(t *testing.T) {
	wd, at, err := ParseWeekly("Sunday 19:00")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, wd)
	assert.Equal(t, "19:00", at.String())

	for _, bad := range []string{"", "19:00", "sun", "sun 7pm", "funday 19:00"} {
		_, _, err := ParseWeekly(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateTemplate(t *testing.T) {
	slot := func(name, start, end string, days ...string) domain.TemplateSlot {
		s, _ := domain.ParseClock(start)
		e, _ := domain.ParseClock(end)
		return domain.TemplateSlot{Name: name, Start: s, End: e, Kind: domain.SlotWorkWindow, Days: days}
	}

	// same hours on disjoint weekdays are fine
	ok := domain.RoutineTemplate{Slots: []domain.TemplateSlot{
		slot("gym", "06:00", "07:00", "mon", "wed"),
		slot("swim", "06:00", "07:00", "tue"),
	}}
	assert.NoError(t, ValidateTemplate(ok))

	overlap := domain.RoutineTemplate{Slots: []domain.TemplateSlot{
		slot("a", "09:00", "11:00"),
		slot("b", "10:00", "12:00", "fri"),
	}}
	assert.ErrorContains(t, ValidateTemplate(overlap), "overlap on Friday")

	backwards := domain.RoutineTemplate{Slots: []domain.TemplateSlot{slot("a", "11:00", "09:00")}}
	assert.Error(t, ValidateTemplate(backwards))

	badDay := domain.RoutineTemplate{Slots: []domain.TemplateSlot{slot("a", "09:00", "10:00", "someday")}}
	assert.Error(t, ValidateTemplate(badDay))
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Template.Slots)

	_, err = Load(dir)
	assert.ErrorContains(t, err, "donna init")

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("UTC")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Timezone)
}
