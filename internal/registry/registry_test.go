package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

func project(id string, tier domain.Tier, lastWorked string) domain.Project {
	return domain.Project{ID: id, DisplayName: id, Tier: tier, LastWorkedDate: lastWorked, Active: true}
}

func TestRegisterEnforcesSingleAlways(t *testing.T) {
	r, err := New(project("sigmavue", domain.TierAlways, ""))
	require.NoError(t, err)

	err = r.Register(project("other", domain.TierAlways, ""))
	var tierErr domain.TierConflictError
	require.True(t, errors.As(err, &tierErr))
	assert.Equal(t, "sigmavue", tierErr.HolderID)

	// a deactivated ALWAYS project frees the tier
	_, err = r.Deactivate("sigmavue")
	require.NoError(t, err)
	require.NoError(t, r.Register(project("other", domain.TierAlways, "")))
}

func TestRegisterValidation(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	assert.Error(t, r.Register(domain.Project{Tier: domain.TierClient}))
	assert.Error(t, r.Register(domain.Project{ID: "x", Tier: "weekly"}))
	require.NoError(t, r.Register(project("x", domain.TierClient, "")))
	assert.Error(t, r.Register(project("x", domain.TierRotating, "")))
}

func TestGetIsExactNotFuzzy(t *testing.T) {
	p := project("sigmavue", domain.TierAlways, "")
	p.DisplayName = "SigmaVue"
	r, err := New(p)
	require.NoError(t, err)

	got, err := r.Get("Sigmavue")
	require.NoError(t, err)
	assert.Equal(t, "sigmavue", got.ID)

	_, err = r.Get("sigma")
	var ref domain.AmbiguousProjectReferenceError
	require.True(t, errors.As(err, &ref))
	assert.Equal(t, []string{"sigmavue"}, ref.Known)
}

func TestSetTier(t *testing.T) {
	r, err := New(project("a", domain.TierAlways, ""), project("b", domain.TierRotating, ""))
	require.NoError(t, err)
	_, err = r.SetTier("b", domain.TierAlways)
	assert.Error(t, err)
	b, err := r.SetTier("b", domain.TierClient)
	require.NoError(t, err)
	assert.Equal(t, domain.TierClient, b.Tier)
}

func TestAdvanceLastWorkedOnlyForward(t *testing.T) {
	r, err := New(project("a", domain.TierRotating, "2026-03-05"))
	require.NoError(t, err)

	moved, err := r.AdvanceLastWorked("a", "2026-03-01")
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = r.AdvanceLastWorked("a", "2026-03-06")
	require.NoError(t, err)
	assert.True(t, moved)
	got, _ := r.Get("a")
	assert.Equal(t, "2026-03-06", got.LastWorkedDate)

	_, err = r.AdvanceLastWorked("ghost", "2026-03-06")
	assert.Error(t, err)
}

func TestRankOrdering(t *testing.T) {
	statuses := map[string]domain.PRDStatus{
		"p0-old":   {ProjectID: "p0-old", PhasePriority: domain.PhaseP0},
		"p0-new":   {ProjectID: "p0-new", PhasePriority: domain.PhaseP0},
		"p1":       {ProjectID: "p1", PhasePriority: domain.PhaseP1},
		"client":   {ProjectID: "client", PhasePriority: domain.PhaseP2},
		"never-p1": {ProjectID: "never-p1", PhasePriority: domain.PhaseP1},
	}
	projects := []domain.Project{
		project("p1", domain.TierRotating, "2026-01-01"),
		project("p0-new", domain.TierRotating, "2026-03-01"),
		project("nostatus", domain.TierRotating, ""),
		project("client", domain.TierClient, "2026-03-09"),
		project("p0-old", domain.TierRotating, "2026-02-01"),
		project("never-p1", domain.TierRotating, ""),
	}
	ranked := Rank(projects, statuses)
	var ids []string
	for _, p := range ranked {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"client", "p0-old", "p0-new", "never-p1", "p1", "nostatus"}, ids)
}

func TestNeedingAttention(t *testing.T) {
	r, err := New(
		project("sig", domain.TierAlways, ""),
		project("stale", domain.TierRotating, "2026-03-01"),
		project("fresh", domain.TierRotating, "2026-03-09"),
		project("never", domain.TierClient, ""),
	)
	require.NoError(t, err)
	got, err := r.NeedingAttention("2026-03-10", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "never", got[0].ID)
	assert.Equal(t, "stale", got[1].ID)
}

func TestApplyStatus(t *testing.T) {
	prev := &domain.PRDStatus{ProjectID: "a", CurrentItemID: "prd-1", CurrentItemProgress: 60, PhasePriority: domain.PhaseP1}

	_, err := ApplyStatus(prev, domain.PRDStatus{ProjectID: "a", CurrentItemID: "prd-1", CurrentItemProgress: 40})
	var reg domain.ProgressRegressionError
	require.True(t, errors.As(err, &reg))

	next, err := ApplyStatus(prev, domain.PRDStatus{ProjectID: "a", CurrentItemID: "prd-2", CurrentItemProgress: 0})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseP2, next.PhasePriority)

	_, err = ApplyStatus(nil, domain.PRDStatus{ProjectID: "a", CurrentItemProgress: 120})
	assert.Error(t, err)
	_, err = ApplyStatus(nil, domain.PRDStatus{ProjectID: "a", PhasePriority: "P7"})
	assert.Error(t, err)
}

func TestMarkComplete(t *testing.T) {
	st := MarkComplete(domain.PRDStatus{CurrentItemID: "prd-1", CurrentItemProgress: 70, NextItemID: "prd-2"})
	assert.Equal(t, "prd-2", st.CurrentItemID)
	assert.Equal(t, 0, st.CurrentItemProgress)
	assert.Empty(t, st.NextItemID)

	st = MarkComplete(domain.PRDStatus{CurrentItemID: "prd-2", CurrentItemProgress: 10})
	assert.Equal(t, "prd-2", st.CurrentItemID)
	assert.Equal(t, 100, st.CurrentItemProgress)
}
