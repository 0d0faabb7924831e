package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/roach88/notesync/internal/model"
)

// Calendar defaults.
const (
	DefaultBaseURL      = "https://www.googleapis.com/calendar/v3"
	DefaultCalendarID   = "primary"
	DefaultDuration     = 30 * time.Minute
	reminderDescription = "NoteSync Task Reminder"
)

// Calendar is an Adapter backed by the Google Calendar v3 REST API.
type Calendar struct {
	tokens     *TokenSource
	client     *http.Client
	baseURL    string
	calendarID string
	location   *time.Location
	duration   time.Duration
}

var _ Adapter = (*Calendar)(nil)

// CalendarOption configures NewCalendar.
type CalendarOption func(*Calendar)

// WithBaseURL points the adapter at a different API root (tests, proxies).
func WithBaseURL(u string) CalendarOption {
	return func(c *Calendar) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) CalendarOption {
	return func(c *Calendar) { c.client = client }
}

// WithCalendarID selects the target calendar.
func WithCalendarID(id string) CalendarOption {
	return func(c *Calendar) { c.calendarID = id }
}

// WithLocation sets the time zone events are created in.
func WithLocation(loc *time.Location) CalendarOption {
	return func(c *Calendar) { c.location = loc }
}

// NewCalendar creates a calendar adapter.
func NewCalendar(tokens *TokenSource, opts ...CalendarOption) *Calendar {
	c := &Calendar{
		tokens:     tokens,
		client:     http.DefaultClient,
		baseURL:    DefaultBaseURL,
		calendarID: DefaultCalendarID,
		location:   time.Local,
		duration:   DefaultDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type reminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type eventReminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []reminderOverride `json:"overrides"`
}

type eventRequest struct {
	Summary     string         `json:"summary"`
	Description string         `json:"description"`
	Start       eventTime      `json:"start"`
	End         eventTime      `json:"end"`
	Reminders   eventReminders `json:"reminders"`
}

type eventResponse struct {
	ID string `json:"id"`
}

// EnsureAuthorized implements Adapter.
func (c *Calendar) EnsureAuthorized(ctx context.Context) (*oauth2.Token, error) {
	return c.tokens.Token(ctx)
}

// Create implements Adapter. The event starts at the due date, lasts thirty
// minutes and pops up ten minutes before and at the start.
func (c *Calendar) Create(ctx context.Context, task model.Task) (string, error) {
	if task.DueAt == nil {
		return "", &SyncError{Op: "create", Err: errors.New("task has no due date")}
	}

	start := task.DueAt.In(c.location)
	body := eventRequest{
		Summary:     task.Label,
		Description: reminderDescription,
		Start:       eventTime{DateTime: start.Format(time.RFC3339), TimeZone: c.location.String()},
		End:         eventTime{DateTime: start.Add(c.duration).Format(time.RFC3339), TimeZone: c.location.String()},
		Reminders: eventReminders{
			UseDefault: false,
			Overrides: []reminderOverride{
				{Method: "popup", Minutes: 10},
				{Method: "popup", Minutes: 0},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &SyncError{Op: "create", Err: err}
	}

	resp, err := c.do(ctx, "create", http.MethodPost, c.eventsURL(""), payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.statusError("create", resp)
	}

	var created eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &SyncError{Op: "create", Err: fmt.Errorf("decode event: %w", err)}
	}
	if created.ID == "" {
		return "", &SyncError{Op: "create", Err: errors.New("calendar returned no event id")}
	}
	return created.ID, nil
}

// Delete implements Adapter. 404 and 410 mean the event is already gone.
func (c *Calendar) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}

	resp, err := c.do(ctx, "delete", http.MethodDelete, c.eventsURL(eventID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return c.statusError("delete", resp)
	}
	return nil
}

func (c *Calendar) eventsURL(eventID string) string {
	u := c.baseURL + "/calendars/" + url.PathEscape(c.calendarID) + "/events"
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

func (c *Calendar) do(ctx context.Context, op, method, target string, payload []byte) (*http.Response, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		var se *SyncError
		if errors.As(err, &se) {
			return nil, &SyncError{Op: op, Err: se.Err}
		}
		return nil, &SyncError{Op: op, Err: err}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &SyncError{Op: op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tok.SetAuthHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &SyncError{Op: op, Err: err}
	}
	return resp, nil
}

// statusError builds the error for a non-2xx answer. A 401 drops the cached
// token so the next call reauthorizes.
func (c *Calendar) statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusUnauthorized {
		_ = c.tokens.Forget()
	}
	return &SyncError{
		Op:     op,
		Status: resp.StatusCode,
		Err:    fmt.Errorf("%s", bytes.TrimSpace(msg)),
	}
}
