// Package calendly is a thin client for the Calendly v2 API: hosted event
// lookups and scheduling-link creation. Tokens are personal access tokens
// resolved per account key.
package calendly

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

	"github.com/Kaif10/multi-agent-assistant/datewindow"
)

const defaultBaseURL = "https://api.calendly.com"

// TokenSource yields a PAT for an account key; an empty key selects the
// process-wide default token.
type TokenSource interface {
	CalendlyPAT(key string) (string, error)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
	// PreferredEventType optionally pins scheduling links to one event type
	// URI instead of auto-picking the first active one.
	PreferredEventType string
}

func New(tokens TokenSource) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Tokens:  tokens,
	}
}

// ListEventsBetween returns the events the token owner hosts in [start, end],
// each enriched with its invitees.
func (c *Client) ListEventsBetween(ctx context.Context, accountKey string, start, end time.Time) ([]Event, error) {
	me, err := c.currentUser(ctx, accountKey)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("organization", me.Organization)
	params.Set("min_start_time", start.Format(time.RFC3339))
	params.Set("max_start_time", end.Format(time.RFC3339))
	params.Set("count", "100")
	rawEvents, err := c.followPages(ctx, accountKey, "/scheduled_events", params)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(rawEvents))
	for _, raw := range rawEvents {
		var ev struct {
			URI       string `json:"uri"`
			Name      string `json:"name"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			Status    string `json:"status"`
			Location  struct {
				Location string `json:"location"`
			} `json:"location"`
		}
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("calendly decode event: %w", err)
		}

		inviteeParams := url.Values{}
		inviteeParams.Set("event", ev.URI)
		inviteeParams.Set("count", "100")
		rawInvitees, err := c.followPages(ctx, accountKey, "/scheduled_events/invitees", inviteeParams)
		if err != nil {
			return nil, err
		}
		invitees := make([]Invitee, 0, len(rawInvitees))
		for _, ri := range rawInvitees {
			var inv Invitee
			if err := json.Unmarshal(ri, &inv); err != nil {
				return nil, fmt.Errorf("calendly decode invitee: %w", err)
			}
			invitees = append(invitees, inv)
		}

		events = append(events, Event{
			Name:      ev.Name,
			StartTime: ev.StartTime,
			EndTime:   ev.EndTime,
			Status:    ev.Status,
			Location:  ev.Location.Location,
			Invitees:  invitees,
		})
	}
	return events, nil
}

// ListEventsOn lists hosted events on one day, optionally narrowed to a
// daypart (morning, afternoon, evening).
func (c *Client) ListEventsOn(ctx context.Context, accountKey string, day time.Time, daypart string, loc *time.Location) ([]Event, error) {
	start, end := datewindow.DaypartRange(day, daypart, loc)
	return c.ListEventsBetween(ctx, accountKey, start, end)
}

// CreateSchedulingLink creates a booking link for the account's event type.
// When no preferred event type is configured, the first active one is used.
func (c *Client) CreateSchedulingLink(ctx context.Context, accountKey, ownerType string, maxCount int) (Link, error) {
	me, err := c.currentUser(ctx, accountKey)
	if err != nil {
		return Link{}, err
	}

	etURI := c.PreferredEventType
	if etURI == "" {
		etURI, err = c.pickEventType(ctx, accountKey, me.URI)
		if err != nil {
			return Link{}, err
		}
	}
	if ownerType == "" {
		ownerType = "EventType"
	}
	if maxCount <= 0 {
		maxCount = 1
	}

	payload := map[string]any{
		"owner":           etURI,
		"owner_type":      ownerType,
		"max_event_count": maxCount,
	}
	var resp struct {
		Resource struct {
			BookingURL string `json:"booking_url"`
			URL        string `json:"url"`
			Owner      string `json:"owner"`
			OwnerType  string `json:"owner_type"`
		} `json:"resource"`
	}
	if err := c.post(ctx, accountKey, "/scheduling_links", payload, &resp); err != nil {
		return Link{}, err
	}
	link := Link{
		URL:       resp.Resource.BookingURL,
		Owner:     resp.Resource.Owner,
		OwnerType: resp.Resource.OwnerType,
	}
	if link.URL == "" {
		link.URL = resp.Resource.URL
	}
	if link.URL == "" {
		return Link{}, fmt.Errorf("calendly did not return a booking url")
	}
	return link, nil
}

type currentUser struct {
	URI          string
	Organization string
}

func (c *Client) currentUser(ctx context.Context, accountKey string) (currentUser, error) {
	var resp struct {
		Resource struct {
			URI                 string `json:"uri"`
			CurrentOrganization string `json:"current_organization"`
		} `json:"resource"`
	}
	if err := c.get(ctx, accountKey, "/users/me", nil, &resp); err != nil {
		return currentUser{}, err
	}
	return currentUser{URI: resp.Resource.URI, Organization: resp.Resource.CurrentOrganization}, nil
}

// pickEventType returns the first active event type owned by the user.
func (c *Client) pickEventType(ctx context.Context, accountKey, userURI string) (string, error) {
	params := url.Values{}
	params.Set("user", userURI)
	params.Set("count", "100")
	raw, err := c.followPages(ctx, accountKey, "/event_types", params)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("no calendly event types found; create at least one event type first")
	}
	type eventType struct {
		URI       string  `json:"uri"`
		Active    *bool   `json:"active"`
		DeletedAt *string `json:"deleted_at"`
	}
	var first string
	for _, r := range raw {
		var et eventType
		if err := json.Unmarshal(r, &et); err != nil {
			continue
		}
		if first == "" {
			first = et.URI
		}
		active := et.Active == nil || *et.Active
		if active && et.DeletedAt == nil {
			return et.URI, nil
		}
	}
	return first, nil
}

// followPages walks Calendly's pagination, concatenating every collection item.
func (c *Client) followPages(ctx context.Context, accountKey, path string, params url.Values) ([]json.RawMessage, error) {
	var items []json.RawMessage
	nextURL := c.BaseURL + path
	if len(params) > 0 {
		nextURL += "?" + params.Encode()
	}
	for nextURL != "" {
		var page struct {
			Collection []json.RawMessage `json:"collection"`
			Pagination struct {
				NextPage string `json:"next_page"`
			} `json:"pagination"`
		}
		if err := c.getURL(ctx, accountKey, nextURL, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Collection...)
		nextURL = page.Pagination.NextPage
		if strings.HasPrefix(nextURL, "/") {
			nextURL = c.BaseURL + nextURL
		}
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, accountKey, path string, params url.Values, out any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.getURL(ctx, accountKey, u, out)
}

func (c *Client) getURL(ctx context.Context, accountKey, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return c.do(req, accountKey, out)
}

func (c *Client) post(ctx context.Context, accountKey, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, accountKey, out)
}

func (c *Client) do(req *http.Request, accountKey string, out any) error {
	pat, err := c.Tokens.CalendlyPAT(accountKey)
	if err != nil {
		return fmt.Errorf("calendly credentials: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+pat)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("calendly request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("calendly read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendly http %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("calendly decode response: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
