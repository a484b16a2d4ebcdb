package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/warp/splitledger/activity"
	"github.com/warp/splitledger/api"
	"github.com/warp/splitledger/ledger"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Start the HTTP API with the activity worker and the pending
settlement sweeper. On SIGINT/SIGTERM the server stops accepting
connections, waits for active requests, then drains queued activity.`,
		RunE: runServe,
	}
	cmd.Flags().Int("port", 0, "HTTP port (overrides server.port)")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	// Initialize store
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	// Activity sinks
	sinks := []activity.Sink{st, activity.LogSink{Logger: logger}}
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		opts := activity.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			List:     cfg.Redis.List,
			Channel:  cfg.Redis.Channel,
			MaxLen:   cfg.Redis.MaxLen,
		}
		rdb, err = activity.NewRedisClient(ctx, opts)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		sinks = append(sinks, activity.NewRedisSink(rdb, opts))
		logger.Info("publishing activity to redis", "addr", cfg.Redis.Addr, "list", opts.List)
	}

	worker := activity.NewWorker(cfg.Activity.Buffer, logger, sinks...)
	worker.Start()
	defer worker.Shutdown()

	svc := ledger.NewService(st, st,
		ledger.WithNotifier(worker),
		ledger.WithLogger(logger),
	)

	sweeper := api.NewPendingSettlementSweeper(svc, cfg.Settlements.SweepInterval, cfg.Settlements.PendingTimeout, logger)
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.NewHandler(svc, st, st)
	handler.Sweeper = sweeper
	handler.FeedLimit = cfg.Activity.FeedLimit
	handler.Logger = logger

	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		Auth:           api.NewAuthenticator(cfg.Auth.JWTSecret),
		RequestTimeout: cfg.Server.WriteTimeout,
		Ping:           st.Ping,
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty, trusting the " + api.PartyHeader + " header")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "dialect", st.Dialect())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
