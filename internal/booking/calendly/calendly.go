// Package calendly turns Calendly webhooks and scheduled events into
// booking events.
package calendly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

const (
	Source          = "calendly"
	SignatureHeader = "Calendly-Webhook-Signature"

	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"

	// DefaultTolerance bounds how old a timestamped signature may be.
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrSignature    = errors.New("invalid calendly signature")
	ErrIgnoredEvent = errors.New("calendly event does not affect bookings")
)

// Verify checks a webhook signature. Two formats are accepted: Calendly's
// "t=<unix>,v1=<hex>" signing over "<t>.<body>", and a bare hex HMAC over
// the body. With tolerance > 0 a timestamped signature older than that is
// rejected.
func Verify(secret string, body []byte, header string, now time.Time, tolerance time.Duration) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%w: missing %s", ErrSignature, SignatureHeader)
	}
	if !strings.Contains(header, "v1=") {
		if !equalHex(header, mac(secret, body)) {
			return ErrSignature
		}
		return nil
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrSignature)
	}
	if tolerance > 0 {
		var unix int64
		if _, err := fmt.Sscan(ts, &unix); err != nil {
			return fmt.Errorf("%w: bad timestamp", ErrSignature)
		}
		if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
		}
	}
	signed := append([]byte(ts+"."), body...)
	if !equalHex(sig, mac(secret, signed)) {
		return ErrSignature
	}
	return nil
}

// Sign produces a timestamped signature header for body.
func Sign(secret string, body []byte, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac(secret, append([]byte(ts+"."), body...)))
}

func mac(secret string, data []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)
}

func equalHex(got string, want []byte) bool {
	raw, err := hex.DecodeString(strings.TrimSpace(got))
	if err != nil {
		return false
	}
	return hmac.Equal(raw, want)
}

type webhook struct {
	Event   string  `json:"event"`
	Payload invitee `json:"payload"`
}

type invitee struct {
	URI            string         `json:"uri"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Status         string         `json:"status"`
	ScheduledEvent scheduledEvent `json:"scheduled_event"`
	Invitee        *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"invitee,omitempty"`
}

type scheduledEvent struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ParseWebhook maps an invitee.created or invitee.canceled delivery to a
// booking event keyed by the scheduled event URI, so a cancellation
// replaces the booking it cancels. Other event types return ErrIgnoredEvent.
func ParseWebhook(body []byte) (string, domain.BookingEvent, error) {
	var w webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return "", domain.BookingEvent{}, fmt.Errorf("decode calendly webhook: %w", err)
	}
	var status domain.BookingStatus
	switch w.Event {
	case EventInviteeCreated:
		status = domain.BookingConfirmed
	case EventInviteeCanceled:
		status = domain.BookingCancelled
	default:
		return w.Event, domain.BookingEvent{}, ErrIgnoredEvent
	}
	p := w.Payload
	id := p.ScheduledEvent.URI
	if id == "" {
		id = p.URI
	}
	if id == "" {
		return w.Event, domain.BookingEvent{}, errors.New("calendly webhook has no event uri")
	}
	if p.ScheduledEvent.StartTime.IsZero() || p.ScheduledEvent.EndTime.IsZero() {
		return w.Event, domain.BookingEvent{}, errors.New("calendly webhook has no start or end time")
	}
	name := p.Name
	if name == "" && p.Invitee != nil {
		name = p.Invitee.Name
	}
	return w.Event, domain.BookingEvent{
		SourceID: id,
		Source:   Source,
		Title:    title(p.ScheduledEvent.Name, name),
		Start:    p.ScheduledEvent.StartTime.UTC(),
		End:      p.ScheduledEvent.EndTime.UTC(),
		Status:   status,
	}, nil
}

func title(event, who string) string {
	if event == "" {
		event = "Call"
	}
	if who == "" {
		return event
	}
	return event + " with " + who
}

func fromScheduled(ev scheduledEvent) domain.BookingEvent {
	status := domain.BookingConfirmed
	if ev.Status == "canceled" {
		status = domain.BookingCancelled
	}
	return domain.BookingEvent{
		SourceID: ev.URI,
		Source:   Source,
		Title:    title(ev.Name, ""),
		Start:    ev.StartTime.UTC(),
		End:      ev.EndTime.UTC(),
		Status:   status,
	}
}
