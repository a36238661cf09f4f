// ABOUTME: Tests for the completion client
// ABOUTME: Verifies precondition checks, fixed request parameters, and status-code mapping

package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, cfg Config, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithEndpoint(cfg, srv.URL, srv.Client(), nil)
}

func TestSend_MissingKeyFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.Send(context.Background(), "Salut")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, int32(0), calls.Load(), "no network call may happen without a key")
}

func TestSend_CarriesFixedParameters(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, Config{APIKey: "pplx-test", Model: "llama-3.1-sonar-small-128k-online", Temperature: 0.4, SystemPrompt: "prompt"},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer pplx-test", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
		})

	_, err := client.Send(context.Background(), "Question")
	require.NoError(t, err)

	assert.Equal(t, "llama-3.1-sonar-small-128k-online", got["model"])
	assert.Equal(t, 0.4, got["temperature"])
	assert.Equal(t, 0.9, got["top_p"])
	assert.Equal(t, float64(1000), got["max_tokens"])
	assert.Equal(t, false, got["return_images"])
	assert.Equal(t, false, got["return_related_questions"])
	assert.Equal(t, "month", got["search_recency_filter"])
	assert.Equal(t, float64(1), got["frequency_penalty"])
	assert.Equal(t, float64(0), got["presence_penalty"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	user := messages[1].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "prompt", system["content"])
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "Question", user["content"])
}

func TestSend_ReturnsFirstChoice(t *testing.T) {
	client := newTestClient(t, Config{APIKey: "k"}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Bonjour"}},{"message":{"content":"ignored"}}]}`))
	})

	got, err := client.Send(context.Background(), "Salut")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", got)
}

func TestSend_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"401 is an authentication error", http.StatusUnauthorized, func(t *testing.T, err error) {
			var e *AuthenticationError
			assert.ErrorAs(t, err, &e)
		}},
		{"429 is a rate limit error", http.StatusTooManyRequests, func(t *testing.T, err error) {
			var e *RateLimitError
			assert.ErrorAs(t, err, &e)
		}},
		{"500 is an unknown service error", http.StatusInternalServerError, func(t *testing.T, err error) {
			var e *UnknownServiceError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, Config{APIKey: "k"}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.Send(context.Background(), "Salut")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSend_EmptyChoices(t *testing.T) {
	client := newTestClient(t, Config{APIKey: "k"}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Send(context.Background(), "Salut")
	var e *EmptyResponseError
	assert.ErrorAs(t, err, &e)
}

func TestSend_TransportFailureIsConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // server gone before the call

	client := NewClientWithEndpoint(Config{APIKey: "k"}, url, nil, nil)
	_, err := client.Send(context.Background(), "Salut")
	var e *ConnectivityError
	require.ErrorAs(t, err, &e)
	assert.NotNil(t, e.Unwrap())
}

func TestUpdateSettings_NextCallUsesNewValues(t *testing.T) {
	var lastAuth atomic.Value
	client := newTestClient(t, Config{APIKey: "old-key"}, func(w http.ResponseWriter, r *http.Request) {
		lastAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	_, err := client.Send(context.Background(), "un")
	require.NoError(t, err)
	assert.Equal(t, "Bearer old-key", lastAuth.Load())

	client.UpdateSettings("new-key", "llama-3.1-sonar-large-128k-online", 0.8, "nouveau prompt")
	_, err = client.Send(context.Background(), "deux")
	require.NoError(t, err)
	assert.Equal(t, "Bearer new-key", lastAuth.Load())
}

func TestUpdateSettings_EmptyFieldsFallBackToDefaults(t *testing.T) {
	client := NewClient(Config{}, nil)
	client.UpdateSettings("key", "", 0.2, "")

	client.mu.RLock()
	defer client.mu.RUnlock()
	assert.Equal(t, DefaultModel, client.cfg.Model)
	assert.Equal(t, DefaultSystemPrompt, client.cfg.SystemPrompt)
}

func TestConfigured(t *testing.T) {
	client := NewClient(Config{}, nil)
	assert.False(t, client.Configured())
	client.UpdateSettings("key", "", 0.2, "")
	assert.True(t, client.Configured())
}
