package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const Path = "api/query"

type Request struct {
	Q         string `json:"q"`
	SessionID string `json:"session_id"`
}

type Response struct {
	Answer string `json:"answer"`
}

// errorBody is the shape of a failed (or unparsable) reply.
type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

type Client struct {
	base      string
	sessionID string
	http      *http.Client
}

// NewSessionID returns the per-process token the backend uses to group a
// user's queries into one conversation.
func NewSessionID() string {
	return "session-" + uuid.NewString()
}

func NewClient(base, sessionID string, httpClient *http.Client) *Client {
	if base == "" {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		base:      base,
		sessionID: sessionID,
		http:      httpClient,
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) URL() string {
	return c.base + Path
}

// Send posts q to the backend once. There is no retry: a failed call is
// reported to the caller as is.
func (c *Client) Send(ctx context.Context, q string) (Response, error) {
	payload, err := json.Marshal(Request{Q: q, SessionID: c.sessionID})
	if err != nil {
		return Response{}, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Sending query", "url", c.URL(), "session", c.sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read query response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	generic := fmt.Sprintf("Server returned %d", resp.StatusCode)

	var out Response
	var eb errorBody
	if err := json.Unmarshal(raw, &out); err != nil {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			text = generic
		}
		eb = errorBody{Error: text}
	} else if !ok {
		_ = json.Unmarshal(raw, &eb)
	}

	if !ok {
		msg := eb.Detail
		if msg == "" {
			msg = eb.Error
		}
		if msg == "" {
			msg = generic
		}
		return Response{}, &APIError{Status: resp.StatusCode, Message: msg}
	}

	if eb.Error != "" {
		// 2xx with a body that is not JSON
		return Response{}, &APIError{Status: resp.StatusCode, Message: eb.Error}
	}

	return out, nil
}
