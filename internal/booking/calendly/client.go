package calendly

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

const DefaultBaseURL = "https://api.calendly.com"

// Client polls the Calendly REST API with a personal access token.
type Client struct {
	BaseURL string
	Token   string
	UserURI string
	HTTP    *http.Client
}

func NewClient(token, userURI, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		UserURI: userURI,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ScheduledEvents returns every scheduled event starting in [from, to),
// cancelled ones included so a missed cancellation webhook is still seen.
func (c *Client) ScheduledEvents(ctx context.Context, from, to time.Time) ([]domain.BookingEvent, error) {
	user := c.UserURI
	if user == "" {
		var err error
		if user, err = c.currentUser(ctx); err != nil {
			return nil, err
		}
	}
	q := url.Values{}
	q.Set("user", user)
	q.Set("min_start_time", from.UTC().Format(time.RFC3339))
	q.Set("max_start_time", to.UTC().Format(time.RFC3339))
	q.Set("count", "100")
	next := c.BaseURL + "/scheduled_events?" + q.Encode()

	var out []domain.BookingEvent
	for next != "" {
		var page struct {
			Collection []scheduledEvent `json:"collection"`
			Pagination struct {
				NextPage string `json:"next_page"`
			} `json:"pagination"`
		}
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, ev := range page.Collection {
			if ev.URI == "" || !ev.EndTime.After(ev.StartTime) {
				continue
			}
			out = append(out, fromScheduled(ev))
		}
		next = page.Pagination.NextPage
	}
	return out, nil
}

func (c *Client) currentUser(ctx context.Context) (string, error) {
	var me struct {
		Resource struct {
			URI string `json:"uri"`
		} `json:"resource"`
	}
	if err := c.get(ctx, c.BaseURL+"/users/me", &me); err != nil {
		return "", err
	}
	if me.Resource.URI == "" {
		return "", fmt.Errorf("calendly: current user has no uri")
	}
	c.UserURI = me.Resource.URI
	return c.UserURI, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calendly request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("calendly %s: status %d: %s", req.URL.Path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(res.Body).Decode(out)
}
