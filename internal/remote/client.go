// Package remote implements gateway.Gateway against a notesync server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/server"
)

// Client talks to a notesync server over HTTP and WebSocket.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	log    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

var _ gateway.Gateway = (*Client)(nil)

// New returns a client for the server at baseURL, e.g. http://127.0.0.1:8750.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   http.DefaultClient,
		dialer: websocket.DefaultDialer,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ListNotes(ctx context.Context, ownerID string) ([]model.Note, error) {
	var notes []model.Note
	err := c.do(ctx, "list notes", http.MethodGet, "v1/notes", url.Values{"user_id": {ownerID}}, nil, &notes)
	return notes, err
}

func (c *Client) InsertNote(ctx context.Context, draft model.NoteDraft) (model.Note, error) {
	var n model.Note
	err := c.do(ctx, "insert note", http.MethodPost, "v1/notes", nil, draft, &n)
	return n, err
}

func (c *Client) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (model.Note, error) {
	var n model.Note
	err := c.do(ctx, "update note", http.MethodPatch, "v1/notes/"+url.PathEscape(id), nil, patch, &n)
	return n, err
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, "delete note", http.MethodDelete, "v1/notes/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListTasks(ctx context.Context, q model.TaskQuery) ([]model.Task, error) {
	query := url.Values{}
	if q.NoteID != "" {
		query.Set("note_id", q.NoteID)
	}
	if q.OwnerID != "" {
		query.Set("user_id", q.OwnerID)
	}
	var tasks []model.Task
	err := c.do(ctx, "list tasks", http.MethodGet, "v1/tasks", query, nil, &tasks)
	return tasks, err
}

func (c *Client) InsertTask(ctx context.Context, draft model.TaskDraft) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, "insert task", http.MethodPost, "v1/tasks", nil, draft, &t)
	return t, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, "update task", http.MethodPatch, "v1/tasks/"+url.PathEscape(id), nil, patch, &t)
	return t, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "delete task", http.MethodDelete, "v1/tasks/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) GetPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	var p model.Preferences
	err := c.do(ctx, "get preferences", http.MethodGet, "v1/preferences/"+url.PathEscape(userID), nil, nil, &p)
	return p, err
}

func (c *Client) UpsertPreferences(ctx context.Context, prefs model.Preferences) (model.Preferences, error) {
	var p model.Preferences
	err := c.do(ctx, "upsert preferences", http.MethodPut, "v1/preferences/"+url.PathEscape(prefs.UserID), nil, prefs, &p)
	return p, err
}

// do sends one JSON request. Non-2xx responses are decoded into *gateway.Error;
// anything that never produced a response is a transport error.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return gateway.Invalid(op, err.Error())
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return gateway.Transport(op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gateway.Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gateway.Transport(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	var body server.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return gateway.Transport(op, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if body.Op == "" {
		body.Op = op
	}
	return &gateway.Error{Code: body.Code, Op: body.Op, ID: body.ID, Message: body.Message}
}

// Subscribe opens a WebSocket change stream. The stream ends when Close is
// called or the connection drops; either way the channel is closed.
func (c *Client) Subscribe(ctx context.Context, topic model.Topic) (*gateway.Subscription, error) {
	u := c.base.JoinPath("v1/realtime")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	query := url.Values{}
	if topic.Table != "" {
		query.Set("table", string(topic.Table))
	}
	if topic.OwnerID != "" {
		query.Set("user_id", topic.OwnerID)
	}
	u.RawQuery = query.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			defer resp.Body.Close()
			return nil, decodeError("subscribe", resp)
		}
		return nil, gateway.Transport("subscribe", fmt.Errorf("failed to dial: %w", err))
	}

	changes := make(chan model.Change, 64)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		defer close(changes)
		for {
			var ch model.Change
			if err := conn.ReadJSON(&ch); err != nil {
				select {
				case <-done:
				default:
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						c.log.Warn("change stream dropped", "topic", topic.Pattern(), "error", err)
					}
				}
				return
			}
			select {
			case changes <- ch:
			case <-done:
				return
			}
		}
	}()

	return gateway.NewSubscription(changes, func() error {
		close(done)
		err := conn.Close()
		<-stopped
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	}), nil
}
