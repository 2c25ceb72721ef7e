package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/domain"
)

type memSource struct {
	events  []domain.Event
	cursors map[string]int64
}

func (m *memSource) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range m.events {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memSource) LatestEventID(context.Context) (int64, error) {
	if len(m.events) == 0 {
		return 0, nil
	}
	return m.events[len(m.events)-1].ID, nil
}

func (m *memSource) WebhookCursor(_ context.Context, url string) (int64, bool, error) {
	cur, ok := m.cursors[url]
	return cur, ok, nil
}

func (m *memSource) SetWebhookCursor(_ context.Context, url string, id int64, _ string) error {
	m.cursors[url] = id
	return nil
}

func (m *memSource) add(typ, payload string) {
	m.events = append(m.events, domain.Event{ID: int64(len(m.events) + 1), Type: typ, EntityKind: "schedule_day", ActorID: "system", Payload: payload})
}

type capture struct {
	mu      sync.Mutex
	types   []string
	sigs    []string
	bodies  [][]byte
	failing bool
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	c.types = append(c.types, r.Header.Get("X-Donna-Event"))
	c.sigs = append(c.sigs, r.Header.Get(SignatureHeader))
	c.bodies = append(c.bodies, body)
	w.WriteHeader(http.StatusNoContent)
}

func TestDispatcherDeliversNewMatchingEvents(t *testing.T) {
	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	src := &memSource{cursors: map[string]int64{}}
	src.add("notify.morning_brief", `{"markdown":"old"}`)

	d := NewDispatcher(src, []config.Webhook{{URL: srv.URL, Events: []string{"notify.*"}, Secret: "s3cret"}}, zerolog.Nop())
	ctx := context.Background()

	// A new webhook starts at the end of the log.
	d.DispatchAll(ctx)
	assert.Empty(t, rec.types)
	assert.Equal(t, int64(1), src.cursors[srv.URL])

	src.add("schedule.approved", `{}`)
	src.add("notify.evening_summary", `{"markdown":"# Wrap-up"}`)
	d.DispatchAll(ctx)

	require.Equal(t, []string{"notify.evening_summary"}, rec.types)
	assert.Equal(t, Sign("s3cret", rec.bodies[0]), rec.sigs[0])
	var got webhookEvent
	require.NoError(t, json.Unmarshal(rec.bodies[0], &got))
	assert.Equal(t, int64(3), got.ID)
	assert.JSONEq(t, `{"markdown":"# Wrap-up"}`, string(got.Payload))
	assert.Equal(t, int64(3), src.cursors[srv.URL])

	// Nothing new: nothing re-sent.
	d.DispatchAll(ctx)
	assert.Len(t, rec.types, 1)
}

func TestDispatcherRetriesAfterFailure(t *testing.T) {
	rec := &capture{failing: true}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	src := &memSource{cursors: map[string]int64{srv.URL: 0}}
	src.add("notify.conflict_alert", `{}`)

	d := NewDispatcher(src, []config.Webhook{{URL: srv.URL}}, zerolog.Nop())
	d.DispatchAll(context.Background())
	assert.Equal(t, int64(0), src.cursors[srv.URL])

	rec.mu.Lock()
	rec.failing = false
	rec.mu.Unlock()
	d.DispatchAll(context.Background())
	assert.Equal(t, []string{"notify.conflict_alert"}, rec.types)
	assert.Equal(t, int64(1), src.cursors[srv.URL])
	assert.Empty(t, rec.sigs[0])
}

func TestDispatcherSkipsDisabledHooks(t *testing.T) {
	off := false
	src := &memSource{cursors: map[string]int64{}}
	src.add("notify.morning_brief", `{}`)
	d := NewDispatcher(src, []config.Webhook{{URL: "http://127.0.0.1:1/never", Enabled: &off}}, zerolog.Nop())
	d.DispatchAll(context.Background())
	assert.Empty(t, src.cursors)
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"notify.*", "schedule.approved"})
	assert.True(t, f.match("notify.morning_brief"))
	assert.True(t, f.match("schedule.approved"))
	assert.False(t, f.match("schedule.proposed"))
	assert.False(t, f.match("notifyx"))

	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{"*"}).match("anything"))
}
