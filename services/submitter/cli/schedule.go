package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	redisstore "github.com/SLAMon/SLAMon/internal/redis"
	"github.com/SLAMon/SLAMon/internal/submitter"
	"github.com/SLAMon/SLAMon/pkg/telemetry"
	"github.com/SLAMon/SLAMon/services/scheduler"
	"github.com/SLAMon/SLAMon/services/submitter/config"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Submit probe tasks on cron schedules",
	Long: `Run SLA probes: submit each configured task on its cron schedule and log
every outcome. Probes come from the "probes" list in the config file, or
from --cron plus the task flags for a single ad-hoc probe.

With --leader-election, replicas sharing a Redis elect one instance to fire
probes. With --max-per-window, a Redis sliding window caps submissions per
probe across replicas.`,
	Example: `  slamon-submit schedule --cron '*/5 * * * *' --type url_http_status --data '{"url": "https://example.com"}'`,
	RunE:    runSchedule,
}

func init() {
	fs := scheduleCmd.Flags()
	addTaskFlags(fs)
	fs.String("cron", "", "cron expression of an ad-hoc probe (overrides the config probes)")
	fs.String("name", "adhoc", "name of the ad-hoc probe")
	fs.Duration("run-timeout", 5*time.Minute, "abort a probe that has no outcome after this long")
	fs.String("redis-url", "redis://localhost:6379", "Redis URL for leader election and rate limiting")
	fs.Bool("leader-election", false, "fire probes from one replica only")
	fs.Duration("leader-ttl", 2*time.Minute, "leader lease duration")
	fs.Int("max-per-window", 0, "cap submissions per probe in each rate window; 0 disables")
	fs.Duration("rate-window", time.Minute, "rate limit window")
	fs.String("metrics-addr", ":9092", "Prometheus metrics server address; empty disables it")

	bindFlag("run_timeout", fs, "run-timeout")
	bindFlag("redis_url", fs, "redis-url")
	bindFlag("leader_election", fs, "leader-election")
	bindFlag("leader_ttl", fs, "leader-ttl")
	bindFlag("max_per_window", fs, "max-per-window")
	bindFlag("rate_window", fs, "rate-window")
	bindFlag("metrics_addr", fs, "metrics-addr")
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	probes, err := probesFor(cmd)
	if err != nil {
		return err
	}

	instanceID := "scheduler-" + uuid.New().String()[:8]
	logger := buildLogger(cfg.LogLevel, "submitter", cfg.LogFile).With(slog.String("instance_id", instanceID))

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "slamon-scheduler", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	registry := submitter.NewRegistry(
		submitter.WithLogger(logger),
		submitter.WithPollInterval(cfg.PollInterval),
		submitter.WithRequestTimeout(cfg.RequestTimeout),
	)
	defer func() { _ = registry.Close() }()
	client, err := registry.Get(cfg.BrokerURL)
	if err != nil {
		return err
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithRunTimeout(cfg.RunTimeout),
		scheduler.WithReporter(func(r scheduler.Result) { printResult(r) }),
	}

	if cfg.LeaderElection || cfg.MaxPerWindow > 0 {
		var redisClient *redis.Client
		redisClient, err = redisstore.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		if cfg.LeaderElection {
			opts = append(opts, scheduler.WithLeader(
				scheduler.NewRedisLeader(redisClient, "", instanceID, cfg.LeaderTTL, logger)))
		}
		if cfg.MaxPerWindow > 0 {
			opts = append(opts, scheduler.WithLimiter(
				redisstore.NewRateLimiter(redisClient, cfg.MaxPerWindow, cfg.RateWindow)))
		}
	}

	sched, err := scheduler.New(client, probes, opts...)
	if err != nil {
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if cfg.MetricsAddr != "" {
		telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, nil, logger)
	}

	if err := sched.Start(runCtx); err != nil {
		return err
	}
	logger.Info("scheduler started", slog.Int("probes", len(probes)), slog.String("broker_url", client.URL()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit
	logger.Info("shutting down...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Error("scheduler stop", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}

func probesFor(cmd *cobra.Command) ([]scheduler.Probe, error) {
	expr, _ := cmd.Flags().GetString("cron")
	if expr == "" {
		probes, err := config.LoadProbes(viper.GetViper())
		if err != nil {
			return nil, err
		}
		if len(probes) == 0 {
			return nil, fmt.Errorf("no probes configured (add a probes list or pass --cron)")
		}
		return probes, nil
	}

	tf, err := readTaskFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	name, _ := cmd.Flags().GetString("name")
	return []scheduler.Probe{{
		Name:    name,
		Cron:    expr,
		TestID:  tf.TestID,
		Type:    tf.Type,
		Version: tf.Version,
		Data:    tf.Data,
	}}, nil
}

func printResult(r scheduler.Result) {
	ts := r.Started.Local().Format(time.DateTime)
	switch {
	case r.Skipped != "":
		dim.Fprintf(os.Stdout, "%s %-20s skipped: %s\n", ts, r.Probe, r.Skipped)
	case r.Err != nil:
		failLabel.Fprintf(os.Stdout, "%s %-20s ERROR", ts, r.Probe)
		fmt.Fprintf(os.Stdout, " %s\n", r.Err)
	case r.Succeeded():
		okLabel.Fprintf(os.Stdout, "%s %-20s OK", ts, r.Probe)
		fmt.Fprintf(os.Stdout, " %s in %s\n", r.TaskID, r.Duration.Round(time.Millisecond))
	default:
		failLabel.Fprintf(os.Stdout, "%s %-20s FAILED", ts, r.Probe)
		fmt.Fprintf(os.Stdout, " %s: %s\n", r.TaskID, r.Task.Error)
	}
}
