package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/config"
)

func setupEnv(t *testing.T, handler http.HandlerFunc) *HTTPEnvironment {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"session_id":"desk-42"}`)
	})
	if handler != nil {
		mux.HandleFunc("/sessions/desk-42/", handler)
		mux.HandleFunc("/sessions/desk-42", handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := config.RemoteConfig{
		Endpoint:    server.URL,
		APIKey:      "desk-key",
		CallTimeout: 5 * time.Second,
	}
	env, err := NewHTTPEnvironment(context.Background(), cfg, schemas.PlatformTwitter, zaptest.NewLogger(t))
	require.NoError(t, err)
	return env
}

func TestNewHTTPEnvironmentOpensSession(t *testing.T) {
	env := setupEnv(t, nil)
	assert.Equal(t, "desk-42", env.sessionID)
}

func TestNewHTTPEnvironmentSendsProjectID(t *testing.T) {
	var got sessionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"session_id":"desk-7"}`)
	}))
	t.Cleanup(server.Close)

	cfg := config.RemoteConfig{
		Endpoint:    server.URL,
		CallTimeout: time.Second,
		ProjectIDs:  map[string]string{"linkedin": "vm-li-01"},
	}
	env, err := NewHTTPEnvironment(context.Background(), cfg, schemas.PlatformLinkedIn, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "vm-li-01", got.ProjectID)
	assert.Equal(t, "desk-7", env.sessionID)
}

func TestNewHTTPEnvironmentRejectsEmptySessionID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(server.Close)

	cfg := config.RemoteConfig{Endpoint: server.URL, CallTimeout: time.Second}
	_, err := NewHTTPEnvironment(context.Background(), cfg, schemas.PlatformTwitter, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestScreenshot(t *testing.T) {
	env := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer desk-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"image":"iVBORw0KGgo="}`)
	})

	img, err := env.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "iVBORw0KGgo=", img)
}

func TestScreenshotEmptyImage(t *testing.T) {
	env := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"image":""}`)
	})

	_, err := env.Screenshot(context.Background())
	assert.Error(t, err)
}

func TestExecSendsValidatedAction(t *testing.T) {
	var got execRequest
	env := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, env.Exec(context.Background(), "click 120,300"))
	assert.Equal(t, "click 120,300", got.Action)
}

func TestExecRejectsMalformedActionLocally(t *testing.T) {
	var calls atomic.Int32
	env := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	err := env.Exec(context.Background(), "summon the post fairy")
	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load(), "malformed actions must never reach the wire")
}

func TestRoundTripRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	env := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"image":"aGVsbG8="}`)
	})

	img, err := env.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", img)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRoundTripConnectivitySentinel(t *testing.T) {
	env := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := env.Screenshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrConnectivity), "remote failures must carry the connectivity sentinel, got: %v", err)
}

func TestCloseReleasesSession(t *testing.T) {
	var method atomic.Value
	env := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, env.Close())
	assert.Equal(t, http.MethodDelete, method.Load())
}
