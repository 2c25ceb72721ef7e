package calendly

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

const createdBody = `{
  "event": "invitee.created",
  "payload": {
    "uri": "https://api.calendly.com/scheduled_events/EV1/invitees/IN1",
    "name": "Jane Doe",
    "email": "jane@example.com",
    "status": "active",
    "scheduled_event": {
      "uri": "https://api.calendly.com/scheduled_events/EV1",
      "name": "Discovery Call",
      "status": "active",
      "start_time": "2026-03-10T17:00:00.000000Z",
      "end_time": "2026-03-10T17:30:00.000000Z"
    }
  }
}`

func TestVerifyTimestamped(t *testing.T) {
	now := time.Unix(1_773_000_000, 0)
	body := []byte(createdBody)
	header := Sign("whsec", body, now)

	require.NoError(t, Verify("whsec", body, header, now.Add(time.Minute), DefaultTolerance))
	assert.ErrorIs(t, Verify("other", body, header, now, DefaultTolerance), ErrSignature)
	assert.ErrorIs(t, Verify("whsec", []byte(createdBody+" "), header, now, DefaultTolerance), ErrSignature)
	assert.ErrorIs(t, Verify("whsec", body, header, now.Add(time.Hour), DefaultTolerance), ErrSignature)
	assert.NoError(t, Verify("whsec", body, header, now.Add(time.Hour), 0))
	assert.ErrorIs(t, Verify("whsec", body, "", now, DefaultTolerance), ErrSignature)
	assert.ErrorIs(t, Verify("whsec", body, "v1=abc", now, DefaultTolerance), ErrSignature)
}

func TestVerifyBareHex(t *testing.T) {
	body := []byte(createdBody)
	m := hmac.New(sha256.New, []byte("whsec"))
	m.Write(body)
	sig := hex.EncodeToString(m.Sum(nil))

	assert.NoError(t, Verify("whsec", body, sig, time.Now(), DefaultTolerance))
	assert.ErrorIs(t, Verify("whsec", body, "zz"+sig[2:], time.Now(), DefaultTolerance), ErrSignature)
}

func TestParseWebhookCreated(t *testing.T) {
	evt, b, err := ParseWebhook([]byte(createdBody))
	require.NoError(t, err)
	assert.Equal(t, EventInviteeCreated, evt)
	assert.Equal(t, "https://api.calendly.com/scheduled_events/EV1", b.SourceID)
	assert.Equal(t, Source, b.Source)
	assert.Equal(t, "Discovery Call with Jane Doe", b.Title)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Equal(t, time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC), b.Start)
	assert.Equal(t, 30*time.Minute, b.End.Sub(b.Start))
}

func TestParseWebhookCanceledSharesID(t *testing.T) {
	_, created, err := ParseWebhook([]byte(createdBody))
	require.NoError(t, err)

	canceled := `{"event":"invitee.canceled","payload":{"name":"Jane Doe","status":"canceled","scheduled_event":{"uri":"https://api.calendly.com/scheduled_events/EV1","name":"Discovery Call","start_time":"2026-03-10T17:00:00Z","end_time":"2026-03-10T17:30:00Z"}}}`
	_, b, err := ParseWebhook([]byte(canceled))
	require.NoError(t, err)
	assert.Equal(t, created.SourceID, b.SourceID)
	assert.Equal(t, domain.BookingCancelled, b.Status)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	evt, _, err := ParseWebhook([]byte(`{"event":"routing_form_submission.created","payload":{}}`))
	assert.Equal(t, "routing_form_submission.created", evt)
	assert.ErrorIs(t, err, ErrIgnoredEvent)

	_, _, err = ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestClientScheduledEventsPaginates(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/users/me":
			fmt.Fprint(w, `{"resource":{"uri":"https://api.calendly.com/users/U1"}}`)
		case r.URL.Path == "/scheduled_events" && r.URL.Query().Get("page_token") == "":
			assert.Equal(t, "https://api.calendly.com/users/U1", r.URL.Query().Get("user"))
			assert.Equal(t, "2026-03-09T00:00:00Z", r.URL.Query().Get("min_start_time"))
			fmt.Fprintf(w, `{"collection":[{"uri":"ev/1","name":"Call","status":"active","start_time":"2026-03-10T15:00:00Z","end_time":"2026-03-10T16:00:00Z"}],"pagination":{"next_page":"%s/scheduled_events?page_token=p2"}}`, srv.URL)
		case r.URL.Path == "/scheduled_events":
			fmt.Fprint(w, `{"collection":[{"uri":"ev/2","name":"Demo","status":"canceled","start_time":"2026-03-11T15:00:00Z","end_time":"2026-03-11T15:30:00Z"}],"pagination":{"next_page":""}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("tok", "", srv.URL)
	from := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	got, err := c.ScheduledEvents(context.Background(), from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ev/1", got[0].SourceID)
	assert.Equal(t, domain.BookingConfirmed, got[0].Status)
	assert.Equal(t, "ev/2", got[1].SourceID)
	assert.Equal(t, domain.BookingCancelled, got[1].Status)
	assert.Equal(t, "https://api.calendly.com/users/U1", c.UserURI)
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"title":"Unauthenticated"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewClient("bad", "https://api.calendly.com/users/U1", srv.URL)
	_, err := c.ScheduledEvents(context.Background(), time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
