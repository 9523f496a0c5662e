package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/config"
	"github.com/xkilldash9x/prism-cli/internal/credentials"
)

// -- Test doubles --

type yesDecision struct {
	mu    sync.Mutex
	calls int
}

func (d *yesDecision) Predict(_ context.Context, instruction string, _ schemas.Observation) (schemas.ProposedAction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if strings.Contains(instruction, "Answer yes or no") {
		return schemas.ProposedAction{RawAction: "yes"}, nil
	}
	return schemas.ProposedAction{RawAction: fmt.Sprintf("click %d,%d", 100+d.calls, 200+d.calls)}, nil
}

type stubRemote struct {
	screenB64 string
}

func (r *stubRemote) Screenshot(context.Context) (string, error) { return r.screenB64, nil }
func (r *stubRemote) Exec(context.Context, string) error         { return nil }
func (r *stubRemote) Close() error                               { return nil }

type nopSink struct{}

func (nopSink) Emit(schemas.Event) {}

type memoryStore struct {
	mu      sync.Mutex
	results []*schemas.PublishResult
	err     error
}

func (s *memoryStore) PersistResult(_ context.Context, result *schemas.PublishResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, result)
	return nil
}

// -- Helpers --

func testScreenB64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = 0xee
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func fastConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Session.SettleDelays = nil
	cfg.Session.DefaultSettleDelay = 0
	cfg.RateLimit.MinIntervalSingle = 0
	cfg.RateLimit.MinIntervalPooled = 0
	cfg.RateLimit.HitPenalty = 0
	return cfg
}

func newTestCoordinator(t *testing.T, store schemas.ResultStore, newRemote func(ctx context.Context, p schemas.Platform) (schemas.RemoteEnvironment, error)) *Coordinator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	pool, err := credentials.NewPool([]string{"sk-a", "sk-b"}, logger)
	require.NoError(t, err)

	newDecision := func(credentials.Credential) (schemas.DecisionService, error) {
		return &yesDecision{}, nil
	}
	return NewCoordinator(fastConfig(), pool, newDecision, newRemote, nopSink{}, store, logger)
}

// -- Tests --

func TestPublishFanOut(t *testing.T) {
	screen := testScreenB64(t)
	newRemote := func(_ context.Context, _ schemas.Platform) (schemas.RemoteEnvironment, error) {
		return &stubRemote{screenB64: screen}, nil
	}
	c := newTestCoordinator(t, nil, newRemote)

	platforms := []schemas.Platform{schemas.PlatformTwitter, schemas.PlatformLinkedIn}
	results := c.Publish(context.Background(), "release day", []string{"golang"}, platforms)

	require.Len(t, results, 2)
	for _, p := range platforms {
		res := results[p]
		require.NotNil(t, res, "platform %s missing from results", p)
		assert.True(t, res.Success, "platform %s error: %s", p, res.Error)
		assert.Equal(t, p, res.Platform)
		assert.Contains(t, res.Content, "#golang", "hashtags must be adapted into the content")
	}
}

func TestPublishIsolatesFailures(t *testing.T) {
	screen := testScreenB64(t)
	newRemote := func(_ context.Context, p schemas.Platform) (schemas.RemoteEnvironment, error) {
		if p == schemas.PlatformInstagram {
			panic("desktop allocator exploded")
		}
		return &stubRemote{screenB64: screen}, nil
	}
	c := newTestCoordinator(t, nil, newRemote)

	results := c.Publish(context.Background(), "content", nil,
		[]schemas.Platform{schemas.PlatformTwitter, schemas.PlatformInstagram})

	require.Len(t, results, 2)

	failed := results[schemas.PlatformInstagram]
	require.NotNil(t, failed)
	assert.False(t, failed.Success)
	assert.Equal(t, schemas.ReasonExceptionOccurred, failed.CompletionReason)
	assert.Contains(t, failed.Error, "desktop allocator exploded")

	ok := results[schemas.PlatformTwitter]
	require.NotNil(t, ok)
	assert.True(t, ok.Success, "one platform's panic must not abort another's session")
}

func TestPublishPersistsResults(t *testing.T) {
	screen := testScreenB64(t)
	newRemote := func(_ context.Context, _ schemas.Platform) (schemas.RemoteEnvironment, error) {
		return &stubRemote{screenB64: screen}, nil
	}
	store := &memoryStore{}
	c := newTestCoordinator(t, store, newRemote)

	c.Publish(context.Background(), "persist me", nil, []schemas.Platform{schemas.PlatformTwitter})

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.results, 1)
	assert.Equal(t, schemas.PlatformTwitter, store.results[0].Platform)
}

func TestPublishSurvivesStoreErrors(t *testing.T) {
	screen := testScreenB64(t)
	newRemote := func(_ context.Context, _ schemas.Platform) (schemas.RemoteEnvironment, error) {
		return &stubRemote{screenB64: screen}, nil
	}
	store := &memoryStore{err: fmt.Errorf("connection refused")}
	c := newTestCoordinator(t, store, newRemote)

	results := c.Publish(context.Background(), "content", nil, []schemas.Platform{schemas.PlatformTwitter})
	require.Len(t, results, 1)
	assert.True(t, results[schemas.PlatformTwitter].Success)
}
