// ABOUTME: HTTP client for the widget API used by the terminal host
// ABOUTME: Mounts a session, sends commands and follows the SSE state stream

package main

import (
	"bufio"
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

// message mirrors a log entry in the widget state.
type message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// widgetState mirrors the state document served by the gateway.
type widgetState struct {
	SessionID string    `json:"session_id"`
	Messages  []message `json:"messages"`
	Pending   bool      `json:"pending"`
	PanelOpen bool      `json:"panel_open"`
	Unread    bool      `json:"unread"`
	Draft     string    `json:"draft"`
	Version   uint64    `json:"version"`
}

type mountResponse struct {
	SessionID string      `json:"session_id"`
	Token     string      `json:"token"`
	State     widgetState `json:"state"`
}

type submitResponse struct {
	Outcome string      `json:"outcome"`
	State   widgetState `json:"state"`
}

// widgetClient talks to one mounted session.
type widgetClient struct {
	base  string
	http  *http.Client
	token string
}

func newWidgetClient(base string) *widgetClient {
	return &widgetClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

// do sends a JSON request and decodes a JSON reply into out when non-nil.
func (c *widgetClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok {
				return fmt.Errorf("%s", msg)
			}
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *widgetClient) mount(ctx context.Context) (*widgetState, error) {
	var resp mountResponse
	if err := c.do(ctx, http.MethodPost, "/api/widget/sessions", nil, &resp); err != nil {
		return nil, fmt.Errorf("mounting widget: %w", err)
	}
	c.token = resp.Token
	return &resp.State, nil
}

func (c *widgetClient) unmount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/widget/session", nil, nil)
}

func (c *widgetClient) setDraft(ctx context.Context, text string) error {
	return c.do(ctx, http.MethodPut, "/api/widget/draft", map[string]string{"text": text}, nil)
}

// submitDraft submits whatever the draft holds, tagged for dedupe.
func (c *widgetClient) submitDraft(ctx context.Context, clientMessageID string) (string, error) {
	var resp submitResponse
	body := map[string]string{"client_message_id": clientMessageID}
	if err := c.do(ctx, http.MethodPost, "/api/widget/submit", body, &resp); err != nil {
		return "", err
	}
	return resp.Outcome, nil
}

func (c *widgetClient) togglePanel(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/widget/panel/toggle", nil, nil)
}

func (c *widgetClient) closePanel(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/widget/panel/close", nil, nil)
}

func (c *widgetClient) state(ctx context.Context) (*widgetState, error) {
	var st widgetState
	if err := c.do(ctx, http.MethodGet, "/api/widget/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// follow opens the state stream and calls onState for every state event
// until ctx ends or the server closes the stream.
func (c *widgetClient) follow(ctx context.Context, onState func(*widgetState)) error {
	u := c.base + "/api/widget/stream?token=" + url.QueryEscape(c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	return streamSSE(resp.Body, func(event, data string) error {
		if event != "state" {
			return nil
		}
		var st widgetState
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return fmt.Errorf("parsing state event: %w", err)
		}
		onState(&st)
		return nil
	})
}

// maxEventLine bounds one SSE line. Every state event carries the whole log
// and its rendered HTML on a single data line.
const maxEventLine = 256 * 1024 * 1024

// streamSSE parses an event stream and calls handle for each event.
func streamSSE(body io.Reader, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if eventType != "" && len(dataLines) > 0 {
				if err := handle(eventType, strings.Join(dataLines, "\n")); err != nil {
					return err
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment (heartbeat)
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	return scanner.Err()
}
