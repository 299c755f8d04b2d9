package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/internal/submitter"
	"github.com/SLAMon/SLAMon/pkg/telemetry"
	"github.com/SLAMon/SLAMon/services/submitter/config"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit one task and wait for its outcome",
	Long: `Post a task to the broker, then poll until an agent reports its outcome.

Ctrl-C stops waiting and aborts the task locally; the broker is not told.
Exits non-zero when the task fails.`,
	Example: `  slamon-submit submit --type wait --data '{"time": 2}'
  slamon-submit submit --type url_http_status --data '{"url": "https://example.com"}' --timeout 2m`,
	RunE: runSubmit,
}

func init() {
	addTaskFlags(submitCmd.Flags())
	submitCmd.Flags().String("id", "", "task id (default: random UUID)")
	submitCmd.Flags().Duration("timeout", 0, "give up waiting after this long; 0 waits until interrupted")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	tf, err := readTaskFlags(cmd.Flags())
	if err != nil {
		return err
	}
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.New().String()
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	logger := buildLogger(cfg.LogLevel, "submitter", cfg.LogFile)
	shutdownTracer, err := telemetry.InitTracer(context.Background(), "slamon-submitter", cfg.OTelEndpoint)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	task := &domain.Task{ID: id, TestID: tf.TestID, Type: tf.Type, Version: domain.Version(tf.Version), Data: tf.Data}
	fut, err := client.Submit(ctx, task, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "submitted %s (%s v%d) to %s\n", id, tf.Type, tf.Version, client.URL())

	result, err := fut.Wait(ctx)
	if err != nil {
		client.Abort(id)
		if errors.Is(err, context.DeadlineExceeded) {
			warnLabel.Fprint(os.Stdout, "TIMEOUT")
			fmt.Fprintf(os.Stdout, " %s: no outcome after %s\n", id, timeout.Round(time.Second))
			return fmt.Errorf("task %s timed out", id)
		}
		warnLabel.Fprint(os.Stdout, "ABORTED")
		fmt.Fprintf(os.Stdout, " %s\n", id)
		return fmt.Errorf("task %s aborted", id)
	}

	printOutcome(os.Stdout, result)
	if !result.Succeeded() {
		return fmt.Errorf("task %s failed", id)
	}
	return nil
}
