package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/booking/calendly"
	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/db"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/migrate"
	"github.com/Dallionking/donna-assistant/internal/notify"
)

const (
	testSecret   = "test-secret"
	hookSecret   = "whsec"
	testTomorrow = "2026-03-10"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
	bearer map[string]string
	kicked chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Timezone = "UTC"
	primary := domain.TemplateSlot{Name: "primary", Start: domain.NewClock(12, 0), End: domain.NewClock(15, 0), Kind: domain.SlotWorkWindow, Always: true}
	cfg.Template.Slots = []domain.TemplateSlot{
		{Name: "early", Start: domain.NewClock(9, 0), End: domain.NewClock(11, 0), Kind: domain.SlotWorkWindow},
		primary,
		{Name: "late", Start: domain.NewClock(15, 30), End: domain.NewClock(18, 0), Kind: domain.SlotWorkWindow},
	}
	e := engine.New(conn, cfg, zerolog.Nop())
	e.Now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, p := range []engine.ProjectInput{
		{ID: "sigmavue", DisplayName: "Sigmavue", Tier: domain.TierAlways},
		{ID: "acme", DisplayName: "Acme", Tier: domain.TierClient},
		{ID: "proja", Tier: domain.TierRotating},
		{ID: "projb", Tier: domain.TierRotating},
	} {
		_, err := e.RegisterProject(ctx, p, "tester")
		require.NoError(t, err)
	}

	kicked := make(chan struct{}, 4)
	handler, err := New(Config{
		Engine:         e,
		Auth:           AuthConfig{JWTSecret: testSecret, Logger: zerolog.Nop()},
		CalendlySecret: hookSecret,
		OnBooking:      func() { kicked <- struct{}{} },
	})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)

	token, err := SignToken(testSecret, "dal", time.Hour)
	require.NoError(t, err)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		bearer: map[string]string{"Authorization": "Bearer " + token},
		kicked: kicked,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func (s *testServer) call(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	res, data := doJSON(t, s.client, method, s.URL+"/v1"+path, body, s.bearer)
	return res.StatusCode, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestHealthIsPublicAndEverythingElseNeedsAuth(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", errorCode(t, data))

	forged, err := SignToken("other-secret", "dal", time.Hour)
	require.NoError(t, err)
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	status, data := srv.call(t, http.MethodGet, "/projects", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Len(t, decode[[]domain.Project](t, data), 4)
}

func TestDayLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.call(t, http.MethodPost, "/days/tomorrow/plan", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	day := decode[domain.ScheduleDay](t, data)
	assert.Equal(t, testTomorrow, day.Date)
	assert.Equal(t, domain.DayDraft, day.Status)
	assert.NotEmpty(t, day.Blocks)

	status, data = srv.call(t, http.MethodPost, "/days/"+testTomorrow+"/propose", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, domain.DayProposed, decode[domain.ScheduleDay](t, data).Status)

	status, data = srv.call(t, http.MethodPost, "/days/tomorrow/approve", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, domain.DayApproved, decode[domain.ScheduleDay](t, data).Status)

	status, data = srv.call(t, http.MethodPost, "/days/tomorrow/approve", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_transition", errorCode(t, data))

	status, data = srv.call(t, http.MethodGet, "/days/"+testTomorrow, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, domain.DayApproved, decode[domain.ScheduleDay](t, data).Status)

	status, data = srv.call(t, http.MethodGet, "/days/2026-04-01", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorCode(t, data))

	status, data = srv.call(t, http.MethodGet, "/days/someday", nil)
	assert.Equal(t, http.StatusBadRequest, status, string(data))
}

func TestArchiveOnlyAtRollover(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.call(t, http.MethodPost, "/days/today/approve", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, domain.DayActive, decode[domain.ScheduleDay](t, data).Status)

	status, _ = srv.call(t, http.MethodPost, "/days/today/archive", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, data = srv.call(t, http.MethodPost, "/boundary/rollover", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	res := decode[engine.RolloverResult](t, data)
	require.Len(t, res.Archived, 1)
	assert.Equal(t, domain.DayArchived, res.Archived[0].Status)
	assert.Equal(t, testTomorrow, res.Tomorrow.Date)
	assert.Equal(t, domain.DayProposed, res.Tomorrow.Status)
}

func TestRemindersAndWeeklyDigests(t *testing.T) {
	srv := newTestServer(t)
	status, data := srv.call(t, http.MethodPost, "/days/today/approve", nil)
	require.Equal(t, http.StatusOK, status, string(data))

	// 08:00 is before the first block
	status, data = srv.call(t, http.MethodPost, "/boundary/remind", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Empty(t, decode[[]notify.Reminder](t, data))

	status, data = srv.call(t, http.MethodPost, "/boundary/week-ahead", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	w := decode[notify.WeekAhead](t, data)
	require.Len(t, w.Days, 7)
	assert.Equal(t, domain.DayActive, w.Days[0].Status)
	assert.Equal(t, "Sigmavue", w.Always)

	status, data = srv.call(t, http.MethodPost, "/boundary/weekly-review", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	r := decode[notify.WeeklyReview](t, data)
	assert.Equal(t, 1, r.Days)
	require.NotEmpty(t, r.Worked)
	assert.Equal(t, notify.ProjectTime{Project: "Sigmavue", Minutes: 180, Days: 1}, r.Worked[0])
}

func TestOverrideAndSkip(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.call(t, http.MethodPost, "/days/tomorrow/overrides", map[string]any{
		"start": "09:00", "end": "10:00", "project": "projb",
	})
	require.Equal(t, http.StatusOK, status, string(data))
	day := decode[domain.ScheduleDay](t, data)
	var (
		b  domain.TimeBlock
		ok bool
	)
	for _, blk := range day.Blocks {
		if blk.Start == domain.NewClock(9, 0) {
			b, ok = blk, true
		}
	}
	require.True(t, ok)
	assert.Equal(t, domain.SourceManualOverride, b.Source)
	assert.Equal(t, "projb", b.Occupant.Ref)

	status, data = srv.call(t, http.MethodPost, "/days/tomorrow/overrides", map[string]any{
		"start": "25:00", "end": "26:00", "label": "x",
	})
	assert.Equal(t, http.StatusBadRequest, status, string(data))

	status, data = srv.call(t, http.MethodPost, "/days/tomorrow/skips", map[string]any{"project": "nobody"})
	assert.Equal(t, http.StatusNotFound, status, string(data))
	assert.Equal(t, "unknown_project", errorCode(t, data))

	status, data = srv.call(t, http.MethodPost, "/days/tomorrow/skips", map[string]any{"project": "projb"})
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Contains(t, decode[domain.ScheduleDay](t, data).Skipped, "projb")
}

func TestProjectErrorsUseEnvelope(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.call(t, http.MethodPut, "/projects/acme/tier", map[string]any{"priority_tier": "always"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "tier_conflict", errorCode(t, data))

	status, data = srv.call(t, http.MethodGet, "/projects/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_project", errorCode(t, data))

	status, data = srv.call(t, http.MethodPost, "/projects", map[string]any{"id": "proja"})
	assert.Equal(t, http.StatusConflict, status, string(data))

	status, data = srv.call(t, http.MethodPut, "/projects/acme/status", map[string]any{
		"current_item_id": "api", "current_item_progress": 40, "phase_priority": "P1",
	})
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, 40, decode[domain.PRDStatus](t, data).CurrentItemProgress)

	status, data = srv.call(t, http.MethodPut, "/projects/Acme/status", map[string]any{
		"current_item_id": "api", "current_item_progress": 10,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "progress_regression", errorCode(t, data))

	status, data = srv.call(t, http.MethodGet, "/projects/acme", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	detail := decode[ProjectDetail](t, data)
	require.NotNil(t, detail.Status)
	assert.Equal(t, "api", detail.Status.CurrentItemID)
}

func TestTemplateSlots(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.call(t, http.MethodGet, "/template", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Len(t, decode[TemplateBody](t, data).Slots, 3)

	status, data = srv.call(t, http.MethodPut, "/template/slots/gym", map[string]any{
		"start": "06:00", "end": "07:00", "kind": "fixed_personal", "label": "Gym",
	})
	require.Equal(t, http.StatusOK, status, string(data))
	tmpl := decode[TemplateBody](t, data)
	require.Len(t, tmpl.Slots, 4)
	names := []string{}
	for _, s := range tmpl.Slots {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "gym")

	status, data = srv.call(t, http.MethodDelete, "/template/slots/gym", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Len(t, decode[TemplateBody](t, data).Slots, 3)
}

func TestCommandsStageUntilConfirmedWithAPIKey(t *testing.T) {
	srv := newTestServer(t)
	_, plain, err := srv.Engine.CreateAPIKey(context.Background(), "voice", "voice bridge")
	require.NoError(t, err)
	headers := map[string]string{"X-Api-Key": plain}
	post := func(text string) (int, []byte) {
		res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/commands", map[string]any{"text": text}, headers)
		return res.StatusCode, data
	}

	status, data := post("block tomorrow 9-10 for proja")
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, "awaiting_confirmation", decode[map[string]any](t, data)["status"])

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/commands/pending", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	// the staged command belongs to the key's actor only
	status, data = srv.call(t, http.MethodGet, "/commands/pending", nil)
	assert.Equal(t, http.StatusNotFound, status, string(data))

	status, data = post("yes")
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, "applied", decode[map[string]any](t, data)["status"])

	status, data = post("yes")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "nothing_pending", errorCode(t, data))

	status, data = post("make me a sandwich")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "clarification_needed", errorCode(t, data))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me/keys", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	keys := decode[[]map[string]any](t, data)
	require.Len(t, keys, 1)
	assert.NotEmpty(t, keys[0]["last_used_at"])

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"X-Api-Key": "dk_wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestCalendlyWebhook(t *testing.T) {
	srv := newTestServer(t)
	body := []byte(`{
  "event": "invitee.created",
  "payload": {
    "uri": "https://api.calendly.com/scheduled_events/EV1/invitees/IN1",
    "name": "Jane Doe",
    "scheduled_event": {
      "uri": "https://api.calendly.com/scheduled_events/EV1",
      "name": "Discovery Call",
      "status": "active",
      "start_time": "2026-03-10T17:00:00.000000Z",
      "end_time": "2026-03-10T17:30:00.000000Z"
    }
  }
}`)
	url := srv.URL + "/v1/webhooks/calendly"

	res, data := doJSON(t, srv.client, http.MethodPost, url, body, map[string]string{
		calendly.SignatureHeader: calendly.Sign("wrong", body, time.Now()),
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_signature", errorCode(t, data))

	headers := map[string]string{calendly.SignatureHeader: calendly.Sign(hookSecret, body, time.Now())}
	res, data = doJSON(t, srv.client, http.MethodPost, url, body, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	out := decode[map[string]any](t, data)
	assert.Equal(t, "accepted", out["status"])
	assert.EqualValues(t, 1, out["changed"])
	select {
	case <-srv.kicked:
	case <-time.After(time.Second):
		t.Fatal("booking hook not called")
	}

	// replay changes nothing and does not kick
	res, data = doJSON(t, srv.client, http.MethodPost, url, body, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.EqualValues(t, 0, decode[map[string]any](t, data)["changed"])
	assert.Empty(t, srv.kicked)

	status, data := srv.call(t, http.MethodGet, "/days/"+testTomorrow+"/bookings", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	bookings := decode[[]domain.BookingEvent](t, data)
	require.Len(t, bookings, 1)
	assert.Equal(t, "https://api.calendly.com/scheduled_events/EV1", bookings[0].SourceID)
}

func TestEventsPaging(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.call(t, http.MethodGet, "/events?type=project.registered&limit=3", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	page := decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 3)
	require.NotEmpty(t, page.NextCursor)
	assert.Equal(t, "projb", page.Items[0].EntityID)

	status, data = srv.call(t, http.MethodGet, "/events?type=project.registered&limit=3&cursor="+page.NextCursor, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	next := decode[paginatedEvents](t, data)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "sigmavue", next.Items[0].EntityID)
	assert.Empty(t, next.NextCursor)

	status, _ = srv.call(t, http.MethodGet, "/events?cursor=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOpenAPIListsPublicRoutesWithoutSecurity(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc struct {
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc.Paths, "/v1/webhooks/calendly")
	assert.Empty(t, doc.Paths["/v1/webhooks/calendly"]["post"].Security)
	assert.NotEmpty(t, doc.Paths["/v1/days/{date}/plan"]["post"].Security)
}
