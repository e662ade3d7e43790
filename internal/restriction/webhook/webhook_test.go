package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusgate/internal/core"
)

func testProfile() *core.Profile {
	return &core.Profile{
		ID:      "prof_1",
		Name:    "Deep work",
		Targets: []string{"com.example.social", "news.example.com"},
	}
}

func TestAuthority_ApplyAndRemove(t *testing.T) {
	var received []Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = append(received, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New(Config{URL: server.URL, APIKey: "test-api-key"}, nil)
	assert.Equal(t, AuthorityName, a.Name())

	require.NoError(t, a.Apply(context.Background(), testProfile()))
	require.NoError(t, a.Remove(context.Background(), testProfile()))

	require.Len(t, received, 2)
	assert.Equal(t, ActionApply, received[0].Action)
	assert.Equal(t, "prof_1", received[0].ProfileID)
	assert.Equal(t, []string{"com.example.social", "news.example.com"}, received[0].Targets)
	assert.NotEmpty(t, received[0].ActionID)
	assert.Equal(t, ActionRemove, received[1].Action)
	assert.NotEqual(t, received[0].ActionID, received[1].ActionID)
}

func TestAuthority_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	a := New(Config{
		URL:          server.URL,
		RetryMax:     3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, nil)

	require.NoError(t, a.Apply(context.Background(), testProfile()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAuthority_ClientErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer server.Close()

	a := New(Config{URL: server.URL, RetryMax: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond}, nil)

	err := a.Apply(context.Background(), testProfile())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "bad key")
}
