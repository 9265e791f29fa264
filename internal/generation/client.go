// ABOUTME: HTTP client for the Gemini generateContent endpoint
// ABOUTME: Composes prompts, posts them and decodes replies; any failure is an error

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the public Gemini REST base URL.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the model the widget talks to.
	DefaultModel = "gemini-2.0-flash"

	// DefaultInstruction is prepended to every prompt.
	DefaultInstruction = "Responde como un agente profesional de atención al cliente. Sé conciso, educado y claro, utilizando un lenguaje neutro y profesional."

	// userLabel separates the instruction from the user's text.
	userLabel = "\n\nUsuario: "

	// maxErrorBody caps how much of a failed response body is kept.
	maxErrorBody = 4096
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("generation: api key is required")

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned status %d: %s", e.StatusCode, e.Body)
}

// ComposePrompt joins the instruction and the user's text.
// The text is used verbatim, without trimming.
func ComposePrompt(instruction, text string) string {
	return instruction + userLabel + text
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Endpoint   string
	Model      string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls generateContent.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   endpoint,
		model:      model,
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		logger:     logger.With("component", "generation", "model", model),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate posts prompt and returns the decoded response.
func (c *Client) Generate(ctx context.Context, prompt string) (*Response, error) {
	body, err := json.Marshal(newRequest(prompt))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("generation request rejected", "status", resp.StatusCode, "elapsed", time.Since(start))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug("generation request completed",
		"prompt_len", len(prompt),
		"candidates", len(out.Candidates),
		"elapsed", time.Since(start),
	)
	return &out, nil
}

func (c *Client) url() string {
	return c.endpoint + "/models/" + url.PathEscape(c.model) + ":generateContent?key=" + url.QueryEscape(c.apiKey)
}
