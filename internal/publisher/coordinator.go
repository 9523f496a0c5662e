// File: internal/publisher/coordinator.go
// Description: Fans one publish request out to concurrent per-platform
// sessions and collects their results. One platform blowing up never takes
// another down with it.

package publisher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/config"
	"github.com/xkilldash9x/prism-cli/internal/content"
	"github.com/xkilldash9x/prism-cli/internal/credentials"
	"github.com/xkilldash9x/prism-cli/internal/session"
)

// Coordinator launches one session per requested platform.
type Coordinator struct {
	cfg         *config.Config
	pool        *credentials.Pool
	newDecision session.DecisionFactory
	newRemote   func(ctx context.Context, platform schemas.Platform) (schemas.RemoteEnvironment, error)
	sink        schemas.EventSink
	store       schemas.ResultStore
	logger      *zap.Logger
}

// NewCoordinator wires the publishing fan-out. store may be nil when result
// persistence is disabled.
func NewCoordinator(
	cfg *config.Config,
	pool *credentials.Pool,
	newDecision session.DecisionFactory,
	newRemote func(ctx context.Context, platform schemas.Platform) (schemas.RemoteEnvironment, error),
	sink schemas.EventSink,
	store schemas.ResultStore,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		pool:        pool,
		newDecision: newDecision,
		newRemote:   newRemote,
		sink:        sink,
		store:       store,
		logger:      logger.Named("publisher"),
	}
}

// Publish runs all platform sessions concurrently and returns one result
// per platform. A panicking session becomes a Failed result; the map always
// holds an entry for every requested platform.
func (c *Coordinator) Publish(ctx context.Context, text string, hashtags []string, platforms []schemas.Platform) map[schemas.Platform]*schemas.PublishResult {
	results := make(map[schemas.Platform]*schemas.PublishResult, len(platforms))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for _, platform := range platforms {
		g.Go(func() error {
			result := c.runPlatform(gctx, platform, text, hashtags)

			mu.Lock()
			results[platform] = result
			mu.Unlock()

			// Session failures are results, not errors: returning non-nil
			// here would cancel the sibling sessions.
			return nil
		})
	}

	_ = g.Wait()

	c.persist(ctx, results)
	return results
}

// runPlatform adapts the content and drives one session, converting a panic
// into a Failed result.
func (c *Coordinator) runPlatform(ctx context.Context, platform schemas.Platform, text string, hashtags []string) (result *schemas.PublishResult) {
	adapted := content.Adapt(platform, text, hashtags)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Session panicked",
				zap.String("platform", string(platform)),
				zap.Any("panic", r),
			)
			result = &schemas.PublishResult{
				Platform:         platform,
				Content:          adapted,
				Success:          false,
				CompletionReason: schemas.ReasonExceptionOccurred,
				Error:            fmt.Sprintf("session panic: %v", r),
			}
		}
	}()

	orch := session.NewOrchestrator(
		platform,
		adapted,
		c.cfg,
		c.pool,
		c.newDecision,
		func(ctx context.Context) (schemas.RemoteEnvironment, error) {
			return c.newRemote(ctx, platform)
		},
		c.sink,
		c.logger,
	)
	return orch.Run(ctx)
}

// persist writes results through the store when one is configured. Storage
// trouble is logged, never surfaced to the publish caller.
func (c *Coordinator) persist(ctx context.Context, results map[schemas.Platform]*schemas.PublishResult) {
	if c.store == nil {
		return
	}
	for platform, result := range results {
		if err := c.store.PersistResult(ctx, result); err != nil {
			c.logger.Warn("Failed to persist publish result",
				zap.String("platform", string(platform)),
				zap.Error(err),
			)
		}
	}
}
