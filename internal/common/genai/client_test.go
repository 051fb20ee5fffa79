package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{
		BaseURL:   url,
		APIKey:    "test-key",
		LowModel:  "small",
		HighModel: "large",
		Timeout:   time.Second,
	})
}

func TestGenerate_SendsTierModelAndJSONMode(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"ok\":true}  "}}]}`))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL+"/").Generate(context.Background(), Request{
		Tier:     TierHigh,
		Messages: []Message{{Role: "user", Content: "hi"}},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "large", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		retryable bool
	}{
		{name: "empty choices", status: 200, body: `{"choices":[]}`, wantErr: ErrEmptyResponse},
		{name: "blank content", status: 200, body: `{"choices":[{"message":{"content":"   "}}]}`, wantErr: ErrEmptyResponse},
		{name: "rate limited", status: 429, body: `{}`, wantErr: ErrUnavailable, retryable: true},
		{name: "server error", status: 503, body: `{}`, wantErr: ErrUnavailable, retryable: true},
		{name: "bad request", status: 400, body: `{}`, wantErr: ErrUnavailable, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Generate(context.Background(), Request{Tier: TierLow})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var r interface{ Retryable() bool }
			if errors.As(err, &r) {
				assert.Equal(t, tt.retryable, r.Retryable())
			}
		})
	}
}

func TestModel_FallsBackToLow(t *testing.T) {
	c := NewClient(&Config{LowModel: "small"})
	assert.Equal(t, "small", c.Model(TierHigh))
	assert.Equal(t, "small", c.Model(TierLow))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		open byte
		want string
		ok   bool
	}{
		{"fenced array", "```json\n[{\"name\":\"A\"}]\n```", '[', `[{"name":"A"}]`, true},
		{"prose around array", "Here you go: [{\"name\":\"A]\"}] hope it helps", '[', `[{"name":"A]"}]`, true},
		{"object", "{\"results\":[1,2]}", '{', `{"results":[1,2]}`, true},
		{"nested", `{"a":{"b":"}"}}`, '{', `{"a":{"b":"}"}}`, true},
		{"unterminated", `[{"name":"A"`, '[', "", false},
		{"none", "no data available", '[', "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in, tt.open)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
