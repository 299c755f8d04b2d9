package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SLAMon/SLAMon/internal/broker"
	"github.com/SLAMon/SLAMon/internal/events"
	"github.com/SLAMon/SLAMon/internal/handlers"
	"github.com/SLAMon/SLAMon/internal/postgres"
	redisstore "github.com/SLAMon/SLAMon/internal/redis"
	"github.com/SLAMon/SLAMon/pkg/telemetry"
	"github.com/SLAMon/SLAMon/services/agent"
	"github.com/SLAMon/SLAMon/services/agent/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("broker-url", "http://localhost:8080", "base URL of the broker (agent fleet manager)")
	serveCmd.Flags().String("agent-id", "", "agent id sent to the broker (default: random UUID)")
	serveCmd.Flags().String("agent-name", "slamon-go-agent", "human-readable agent name")
	serveCmd.Flags().Int("concurrency", 2, "number of tasks executed in parallel")
	serveCmd.Flags().Duration("backoff", agent.DefaultBackoff, "wait after a temporary broker error")
	serveCmd.Flags().Duration("task-timeout", 0, "per-task execution timeout; 0 disables it")
	serveCmd.Flags().String("result-policy", "discard", "what a rejected result post does: discard | escalate")
	serveCmd.Flags().Duration("result-retry-base", 100*time.Millisecond, "first delay between result post retries")
	serveCmd.Flags().Duration("result-retry-max", 5*time.Second, "longest delay between result post retries")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "how long to wait for in-flight tasks on shutdown")
	serveCmd.Flags().Duration("http-timeout", 15*time.Second, "timeout of url_http_status probes")
	serveCmd.Flags().Bool("state-store", false, "mirror task status and agent state into Redis")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("broker_url", serveCmd.Flags(), "broker-url")
	bindFlag("agent_id", serveCmd.Flags(), "agent-id")
	bindFlag("agent_name", serveCmd.Flags(), "agent-name")
	bindFlag("concurrency", serveCmd.Flags(), "concurrency")
	bindFlag("backoff", serveCmd.Flags(), "backoff")
	bindFlag("task_timeout", serveCmd.Flags(), "task-timeout")
	bindFlag("result_policy", serveCmd.Flags(), "result-policy")
	bindFlag("result_retry_base", serveCmd.Flags(), "result-retry-base")
	bindFlag("result_retry_max", serveCmd.Flags(), "result-retry-max")
	bindFlag("shutdown_timeout", serveCmd.Flags(), "shutdown-timeout")
	bindFlag("http_timeout", serveCmd.Flags(), "http-timeout")
	bindFlag("state_store", serveCmd.Flags(), "state-store")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.New().String()
	}
	policy, err := agent.ParseResultPolicy(cfg.ResultPolicy)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.LogLevel, "agent", cfg.LogFile)

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "slamon-agent", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	bc, err := broker.New(cfg.BrokerURL, broker.WithLogger(logger))
	if err != nil {
		return err
	}

	registry := handlers.NewRegistry(
		handlers.NewWaitHandler(),
		handlers.NewHTTPStatusHandler(&http.Client{Timeout: cfg.HTTPTimeout}),
	)

	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithBackoff(cfg.Backoff),
		agent.WithTaskTimeout(cfg.TaskTimeout),
		agent.WithResultPolicy(policy),
		agent.WithResultRetry(cfg.ResultRetryBase, cfg.ResultRetryMax),
		agent.WithListener(events.NewLogListener(logger)),
		agent.WithListener(events.MetricsListener{}),
	}
	if loc := cfg.Location; loc != nil {
		bl := &broker.Location{Country: loc.Country, Region: loc.Region}
		if loc.Latitude != nil {
			bl.Latitude, bl.Longitude = *loc.Latitude, *loc.Longitude
		}
		opts = append(opts, agent.WithLocation(bl))
	}

	bus, err := events.NewBus(busConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	if bus != nil {
		defer func() { _ = bus.Close() }()
		busListener := events.NewBusListener(bus, events.Subject(cfg.EventPrefix), cfg.AgentID, logger)
		// Deferred after bus.Close, so it runs first and flushes.
		defer busListener.Close()
		opts = append(opts, agent.WithListener(busListener))
	}

	var store redisstore.StateStore
	if cfg.StateStore {
		redisClient, err := redisstore.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		store = redisstore.NewStateStore(redisClient)
		opts = append(opts, agent.WithRecorder(store))
	}

	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		opts = append(opts, agent.WithRecorder(postgres.NewRepository(pool)))
	}

	a := agent.New(cfg.AgentID, cfg.AgentName, bc, registry, opts...)
	if store != nil {
		a.AddListener(redisstore.NewStateListener(store, cfg.AgentID, a.ConnectionState, logger))
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, func() bool {
		return a.ConnectionState() == events.Connected
	}, logger)

	// Tasks get their own context so stopping the loop leaves them running.
	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()
	if err := a.Start(taskCtx, cfg.Concurrency); err != nil {
		return err
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- a.Join() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	var loopErr error
	select {
	case <-quit:
		logger.Info("shutting down, draining in-flight tasks...")
	case loopErr = <-loopDone:
		if loopErr != nil {
			logger.Error("agent loop ended", slog.String("error", loopErr.Error()))
		}
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutCancel()
	if err := a.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", slog.String("error", err.Error()))
	}
	if err := a.Drain(shutCtx); err != nil {
		logger.Warn("in-flight tasks did not finish in time, cancelling them",
			slog.String("error", err.Error()))
		cancelTasks()
	}

	if loopErr != nil {
		return fmt.Errorf("agent: %w", loopErr)
	}
	logger.Info("stopped cleanly")
	return nil
}

func busConfig(cfg config.Config) events.BusConfig {
	return events.BusConfig{
		Kind:         cfg.EventBus,
		RedisURL:     cfg.RedisURL,
		NATSURL:      cfg.NATSURL,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaGroupID: cfg.KafkaGroupID,
	}
}
