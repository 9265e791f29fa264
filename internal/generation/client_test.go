// ABOUTME: Tests for the generateContent client
// ABOUTME: Uses httptest servers to cover success, status and decoding failures

package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{Endpoint: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	return c
}

func TestComposePrompt(t *testing.T) {
	got := ComposePrompt("Be brief.", "  Hola  ")
	assert.Equal(t, "Be brief.\n\nUsuario:   Hola  ", got)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Options{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultEndpoint+"/models/gemini-2.0-flash:generateContent?key=k", c.url())
}

func TestGenerate_Success(t *testing.T) {
	var gotReq Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hi there"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 3, "totalTokenCount": 15}
		}`))
	})

	resp, err := c.Generate(t.Context(), "prompt text")
	require.NoError(t, err)

	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 1)
	assert.Equal(t, "prompt text", gotReq.Contents[0].Parts[0].Text)

	text, ok := resp.ReplyText()
	assert.True(t, ok)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, UsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 3, TotalTokenCount: 15}, resp.Usage())
}

func TestGenerate_NonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	})

	resp, err := c.Generate(t.Context(), "p")
	require.Error(t, err)
	assert.Nil(t, resp)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "quota")
}

func TestGenerate_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [`))
	})

	_, err := c.Generate(t.Context(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestGenerate_TransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c, err := New(Options{Endpoint: endpoint, APIKey: "secret-key"})
	require.NoError(t, err)

	_, err = c.Generate(t.Context(), "p")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestResponse_ReplyText(t *testing.T) {
	tests := []struct {
		name   string
		resp   *Response
		want   string
		wantOK bool
	}{
		{name: "nil response", resp: nil},
		{name: "no candidates", resp: &Response{}},
		{name: "nil content", resp: &Response{Candidates: []Candidate{{}}}},
		{name: "no parts", resp: &Response{Candidates: []Candidate{{Content: &Content{}}}}},
		{name: "empty text", resp: &Response{Candidates: []Candidate{{Content: &Content{Parts: []Part{{Text: ""}}}}}}},
		{
			name: "first part of first candidate",
			resp: &Response{Candidates: []Candidate{
				{Content: &Content{Parts: []Part{{Text: "one"}, {Text: "two"}}}},
				{Content: &Content{Parts: []Part{{Text: "other"}}}},
			}},
			want:   "one",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.resp.ReplyText()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
