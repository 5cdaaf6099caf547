package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/agent"
	"github.com/xiaot623/supportdesk/internal/policy"
	"github.com/xiaot623/supportdesk/internal/ratelimit"
	"github.com/xiaot623/supportdesk/internal/repository"
	"github.com/xiaot623/supportdesk/internal/service"
	"github.com/xiaot623/supportdesk/internal/tools"
	httptransport "github.com/xiaot623/supportdesk/internal/transport/http"
	"github.com/xiaot623/supportdesk/internal/transport/rpc"
	"github.com/xiaot623/supportdesk/internal/transport/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP, WebSocket and JSON-RPC servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting supportdesk",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("rpc_port", cfg.RPCPort),
		zap.String("db_driver", cfg.DatabaseDriver),
		zap.String("llm_base_url", cfg.LLMBaseURL),
		zap.String("mode", cfg.Mode),
	)

	store, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	if seed, _ := cmd.Flags().GetBool("seed"); seed {
		seeded, err := repository.Seed(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
		if seeded {
			logger.Info("demo data seeded", zap.String("user_id", repository.DemoUserID))
		}
	}

	llmClient := llm.NewLLMClient(cfg.Mode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout, logger)

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	engine := agent.NewEngine(agent.Options{
		LLM:          llmClient,
		Model:        cfg.LLMModel,
		Profiles:     agent.NewProfileSet(cfg.Prompts),
		Tools:        tools.NewBuiltinRegistry(store),
		Policy:       policyEngine,
		ModelTimeout: cfg.ModelTimeout,
		ToolTimeout:  cfg.ToolTimeout,
		Logger:       logger,
	})
	classifier := agent.NewClassifier(llmClient, cfg.LLMModel, cfg.ModelTimeout, logger)
	svc := service.New(store, agent.NewOrchestrator(classifier, engine), llmClient, cfg, logger)

	limitStore, closeLimits, err := newLimitStore(ctx)
	if err != nil {
		return err
	}
	defer closeLimits()

	e := httptransport.NewServer(svc, httptransport.Options{
		DefaultUserID: cfg.DefaultUserID,
		APILimiter:    ratelimit.NewLimiter("api", cfg.RateLimitAPI, limitStore, logger),
		ChatLimiter:   ratelimit.NewLimiter("chat", cfg.RateLimitChat, limitStore, logger),
		Logger:        logger,
	})

	hub := ws.NewHub(logger)
	wsServer := ws.NewServer(ws.Options{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		DefaultUserID:  cfg.DefaultUserID,
	}, hub, svc, logger)
	wsServer.RegisterRoutes(e)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("http api listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var rpcServer *rpc.Server
	if noRPC, _ := cmd.Flags().GetBool("no-rpc"); !noRPC {
		rpcServer, err = rpc.NewServer(svc, cfg.DefaultUserID, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			addr := fmt.Sprintf(":%d", cfg.RPCPort)
			logger.Info("json-rpc listening", zap.String("addr", addr))
			if err := rpcServer.Start(addr); err != nil {
				return fmt.Errorf("rpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down supportdesk")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("websocket replies did not finish before shutdown", zap.Error(err))
		}
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
		}
		if rpcServer != nil {
			if err := rpcServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to shutdown rpc server gracefully", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("supportdesk stopped")
	return nil
}

// newLimitStore picks Redis when REDIS_URL is set and the in-process
// window store otherwise.
func newLimitStore(ctx context.Context) (ratelimit.Store, func(), error) {
	if cfg.RedisURL != "" {
		rs, err := ratelimit.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("rate limits backed by redis")
		return rs, func() { _ = rs.Close() }, nil
	}

	ms := ratelimit.NewMemoryStore()
	if err := ms.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start rate limit sweeper: %w", err)
	}
	return ms, ms.Stop, nil
}
