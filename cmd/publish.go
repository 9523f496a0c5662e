package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/credentials"
	"github.com/xkilldash9x/prism-cli/internal/decision"
	"github.com/xkilldash9x/prism-cli/internal/events"
	"github.com/xkilldash9x/prism-cli/internal/observability"
	"github.com/xkilldash9x/prism-cli/internal/publisher"
	"github.com/xkilldash9x/prism-cli/internal/remote"
	"github.com/xkilldash9x/prism-cli/internal/session"
	"github.com/xkilldash9x/prism-cli/internal/store"
)

// newPublishCmd creates and configures the `publish` command.
func newPublishCmd() *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publishes content to the configured social platforms",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// flags correctly override values from the config file and
			// environment variables.
			if err := viper.BindPFlag("remote.mode", cmd.Flags().Lookup("remote-mode")); err != nil {
				return err
			}
			if err := viper.BindPFlag("session.max_steps", cmd.Flags().Lookup("max-steps")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// A publish run can sit in settle waits for minutes; make it
			// interruptible.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := observability.GetLogger()
			cfg := appConfig

			// Re-apply flag overrides bound in PreRunE.
			cfg.Remote.Mode = viper.GetString("remote.mode")
			cfg.Session.MaxSteps = viper.GetInt("session.max_steps")
			if err := cfg.Validate(); err != nil {
				return err
			}

			content, _ := cmd.Flags().GetString("content")
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("--content must not be empty")
			}
			hashtags, _ := cmd.Flags().GetStringSlice("hashtags")

			requested, _ := cmd.Flags().GetStringSlice("platforms")
			platforms, err := resolvePlatforms(requested, cfg.Platforms.Enabled)
			if err != nil {
				return err
			}

			cfg.Publish.Content = content
			cfg.Publish.Hashtags = hashtags
			for _, p := range platforms {
				cfg.Publish.Platforms = append(cfg.Publish.Platforms, string(p))
			}

			logger.Info("Starting publish run",
				zap.Strings("platforms", cfg.Publish.Platforms),
				zap.Int("content_length", len(content)),
				zap.Int("hashtags", len(hashtags)),
				zap.String("remote_mode", cfg.Remote.Mode),
			)

			components, err := initializePublishComponents(ctx, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize publish components: %w", err)
			}
			defer components.Shutdown()

			results := components.Coordinator.Publish(ctx, content, hashtags, platforms)

			if ctx.Err() != nil {
				logger.Warn("Publish run aborted", zap.Error(ctx.Err()))
			}
			return reportResults(results, platforms)
		},
	}

	publishCmd.Flags().String("content", "", "Content to publish (required)")
	publishCmd.Flags().StringSliceP("hashtags", "t", nil, "Hashtags to append, with or without the leading '#'")
	publishCmd.Flags().StringSliceP("platforms", "p", nil, "Platforms to publish to. Defaults to platforms.enabled from config.")

	// Configuration override flags.
	publishCmd.Flags().String("remote-mode", "http", "Remote environment mode ('http' or 'browser'). (Overrides config/env)")
	publishCmd.Flags().Int("max-steps", 12, "Maximum steps per session, recovery included. (Overrides config/env)")

	_ = publishCmd.MarkFlagRequired("content")

	return publishCmd
}

// publishComponents holds initialized services.
type publishComponents struct {
	Coordinator *publisher.Coordinator
	RelayServer *http.Server
	RelayCancel context.CancelFunc
	DBPool      *pgxpool.Pool
}

// Shutdown gracefully closes all components.
func (pc *publishComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if pc.RelayServer != nil {
		if err := pc.RelayServer.Shutdown(shutdownCtx); err != nil {
			observability.GetLogger().Warn("Error during event relay shutdown", zap.Error(err))
		}
	}
	if pc.RelayCancel != nil {
		pc.RelayCancel()
	}
	if pc.DBPool != nil {
		pc.DBPool.Close()
	}
}

// initializePublishComponents handles dependency injection.
func initializePublishComponents(ctx context.Context, logger *zap.Logger) (*publishComponents, error) {
	cfg := appConfig
	components := &publishComponents{}

	// 1. Credential pool. Tokens come from the environment only.
	pool, err := credentials.NewPool(cfg.Decision.Credentials, logger)
	if err != nil {
		return components, fmt.Errorf("no decision credentials available (set PRISM_DECISION_API_KEY): %w", err)
	}

	// 2. Decision service factory. Each session binds its own client so
	// credential rotation never crosses session boundaries.
	newDecision := session.DecisionFactory(func(cred credentials.Credential) (schemas.DecisionService, error) {
		return decision.NewClient(cfg.Decision, cred, logger)
	})

	// 3. Remote environment factory.
	newRemote := func(ctx context.Context, platform schemas.Platform) (schemas.RemoteEnvironment, error) {
		if cfg.Remote.Mode == "browser" {
			return remote.NewBrowserEnvironment(ctx, cfg.Remote, logger)
		}
		return remote.NewHTTPEnvironment(ctx, cfg.Remote, platform, logger)
	}

	// 4. Event sinks. The zap sink always runs; the websocket relay is
	// opt-in for external progress watchers.
	mux := events.NewMultiplexer(events.NewZapSink(logger))
	if cfg.Events.RelayEnabled {
		relay := events.NewWSRelay(logger)
		relayCtx, relayCancel := context.WithCancel(context.Background())
		components.RelayCancel = relayCancel
		go relay.Run(relayCtx)

		components.RelayServer = &http.Server{
			Addr:    cfg.Events.RelayAddr,
			Handler: http.HandlerFunc(relay.HandleWS),
		}
		go func() {
			if err := components.RelayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Event relay server stopped", zap.Error(err))
			}
		}()
		mux.Attach(relay)
		logger.Info("Event relay listening", zap.String("addr", cfg.Events.RelayAddr))
	}

	// 5. Optional result store.
	var resultStore schemas.ResultStore
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize result store: %w", err)
		}
		if err := dbStore.Migrate(ctx); err != nil {
			return components, fmt.Errorf("failed to migrate result store: %w", err)
		}
		resultStore = dbStore
	}

	components.Coordinator = publisher.NewCoordinator(cfg, pool, newDecision, newRemote, mux, resultStore, logger)
	return components, nil
}

// resolvePlatforms turns the requested platform names into validated targets,
// falling back to the configured enabled set when none were requested.
func resolvePlatforms(requested, enabled []string) ([]schemas.Platform, error) {
	names := requested
	if len(names) == 0 {
		names = enabled
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no platforms requested and none enabled in config")
	}

	known := map[string]schemas.Platform{
		"twitter":   schemas.PlatformTwitter,
		"linkedin":  schemas.PlatformLinkedIn,
		"instagram": schemas.PlatformInstagram,
	}

	seen := make(map[schemas.Platform]bool, len(names))
	var platforms []schemas.Platform
	for _, name := range names {
		platform, ok := known[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown platform %q (known: twitter, linkedin, instagram)", name)
		}
		if seen[platform] {
			continue
		}
		seen[platform] = true
		platforms = append(platforms, platform)
	}
	return platforms, nil
}

// reportResults prints a per-platform summary and returns an error when any
// session failed, so the process exit code reflects the run.
func reportResults(results map[schemas.Platform]*schemas.PublishResult, platforms []schemas.Platform) error {
	failed := 0
	fmt.Println()
	for _, platform := range platforms {
		result, ok := results[platform]
		if !ok || result == nil {
			failed++
			fmt.Printf("  %-10s FAILED (no result)\n", platform)
			continue
		}
		if result.Success {
			fmt.Printf("  %-10s OK     steps=%d time=%s ref=%s\n",
				platform, len(result.Steps), result.TotalTime.Round(time.Millisecond), result.PostReference)
			continue
		}
		failed++
		fmt.Printf("  %-10s FAILED reason=%s steps=%d", platform, result.CompletionReason, len(result.Steps))
		if result.Error != "" {
			fmt.Printf(" error=%s", result.Error)
		}
		fmt.Println()
	}
	fmt.Println()

	if failed > 0 {
		return fmt.Errorf("%d of %d platform sessions failed", failed, len(platforms))
	}
	fmt.Println("Publish complete.")
	return nil
}
