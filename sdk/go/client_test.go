package donnasdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSayStagesAndConfirmApplies(t *testing.T) {
	var calls []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/commands", r.URL.Path)
		assert.Equal(t, "dk_test", r.Header.Get("X-Api-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, body)
		w.Header().Set("Content-Type", "application/json")
		if body["action"] == "confirm" {
			_, _ = w.Write([]byte(`{"status":"applied","command":{"intent":"mutation","target":"schedule","action":"override_block"},"result":{"date":"2026-03-10","status":"proposed","blocks":[{"id":"b1","start":"12:00","end":"14:00","occupant":{"kind":"project","ref":"acme"},"source":"manual_override"}],"signal_tasks":[],"version":3}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"awaiting_confirmation","command":{"intent":"mutation","target":"schedule","action":"override_block"},"pending_id":"p-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1/", "dk_test")
	c.Channel = "telegram"

	out, err := c.Say(context.Background(), "put acme 12-2 tomorrow")
	require.NoError(t, err)
	assert.True(t, out.Awaiting())
	assert.Equal(t, "p-1", out.PendingID)
	assert.Equal(t, "telegram", calls[0]["channel"])

	out, err = c.Confirm(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Awaiting())
	var day Day
	require.NoError(t, out.DecodeResult(&day))
	require.Len(t, day.Blocks, 1)
	assert.Equal(t, "12:00", day.Blocks[0].Start)
	assert.Equal(t, "acme", day.Blocks[0].Occupant.Ref)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_transition","message":"cannot approve an active day"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "")
	c.BearerToken = "tok"
	_, err := c.ApproveDay(context.Background(), "today")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
}

func TestEventsPageSendsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/events", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "42", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"items":[{"id":41,"type":"day.proposed","entity_kind":"schedule_day","payload":{}}],"next_cursor":"41"}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL+"/v1", "k").EventsPage(context.Background(), 5, "42")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(41), page.Items[0].ID)
	assert.Equal(t, "41", page.NextCursor)
}
