package donnasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Donna HTTP API client for channel adapters (chat
// bots, voice bridges) that relay the user's commands.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// Channel is sent with free-text commands.
	Channel    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/v1.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	}
}

// Occupant names what fills a block: a project, personal time, a booking
// or nothing (open).
type Occupant struct {
	Kind  string `json:"kind"`
	Ref   string `json:"ref,omitempty"`
	Label string `json:"label,omitempty"`
}

// Block is one scheduled interval. Times are HH:MM in the server's zone.
type Block struct {
	ID       string   `json:"id"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Occupant Occupant `json:"occupant"`
	Source   string   `json:"source"`
	Always   bool     `json:"always,omitempty"`
	Skipped  bool     `json:"skipped,omitempty"`
}

type Diagnostic struct {
	Code      string `json:"code"`
	Start     string `json:"start"`
	End       string `json:"end"`
	ProjectID string `json:"project_id,omitempty"`
	Message   string `json:"message"`
}

// Day is a schedule day (partial).
type Day struct {
	Date        string       `json:"date"`
	Status      string       `json:"status"`
	Blocks      []Block      `json:"blocks"`
	SignalTasks []string     `json:"signal_tasks"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Version     int          `json:"version"`
}

// Command is the interpreted form of a request.
type Command struct {
	Intent          string            `json:"intent"`
	Target          string            `json:"target"`
	Action          string            `json:"action"`
	TriggerDetected bool              `json:"trigger_detected"`
	Payload         map[string]string `json:"payload,omitempty"`
}

// Outcome reports what a command did. Result is left raw; decode it with
// DecodeResult when the action is known.
type Outcome struct {
	Status    string          `json:"status"`
	Command   Command         `json:"command"`
	PendingID string          `json:"pending_id,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Awaiting reports whether the command was staged for confirmation.
func (o Outcome) Awaiting() bool { return o.Status == "awaiting_confirmation" }

// DecodeResult unmarshals the outcome result into out.
func (o Outcome) DecodeResult(out any) error {
	if len(o.Result) == 0 {
		return fmt.Errorf("outcome %s has no result", o.Status)
	}
	return json.Unmarshal(o.Result, out)
}

// Booking is an external calendar booking.
type Booking struct {
	SourceID string    `json:"source_id"`
	Source   string    `json:"source,omitempty"`
	Title    string    `json:"title,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Status   string    `json:"status"`
}

type IngestResult struct {
	Received int   `json:"received"`
	Changed  int   `json:"changed"`
	Days     []Day `json:"days"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body has one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Say sends a free-text command, e.g. "go do put acme 12-2 tomorrow".
func (c *Client) Say(ctx context.Context, text string) (Outcome, error) {
	body := map[string]any{"text": text}
	if c.Channel != "" {
		body["channel"] = c.Channel
	}
	var resp Outcome
	err := c.do(ctx, http.MethodPost, "commands", body, &resp)
	return resp, err
}

// Confirm applies the staged command.
func (c *Client) Confirm(ctx context.Context) (Outcome, error) {
	var resp Outcome
	err := c.do(ctx, http.MethodPost, "commands", map[string]any{"action": "confirm"}, &resp)
	return resp, err
}

// Cancel drops the staged command.
func (c *Client) Cancel(ctx context.Context) (Outcome, error) {
	var resp Outcome
	err := c.do(ctx, http.MethodPost, "commands", map[string]any{"action": "cancel"}, &resp)
	return resp, err
}

// Day fetches a day; date is YYYY-MM-DD, "today" or "tomorrow".
func (c *Client) Day(ctx context.Context, date string) (Day, error) {
	var resp Day
	err := c.do(ctx, http.MethodGet, "days/"+url.PathEscape(date), nil, &resp)
	return resp, err
}

// ApproveDay approves a proposed day.
func (c *Client) ApproveDay(ctx context.Context, date string) (Day, error) {
	var resp Day
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("days/%s/approve", url.PathEscape(date)), nil, &resp)
	return resp, err
}

// IngestBookings posts a batch of bookings from source.
func (c *Client) IngestBookings(ctx context.Context, source string, bookings []Booking) (IngestResult, error) {
	body := map[string]any{"source": source, "bookings": bookings}
	var resp IngestResult
	err := c.do(ctx, http.MethodPost, "bookings", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
