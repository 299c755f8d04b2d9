package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/internal/postgres"
	redisstore "github.com/SLAMon/SLAMon/internal/redis"
)

var historyCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "List recorded task executions from PostgreSQL",
	Long: `Without arguments, list the most recent executions (optionally for one
agent). With a task id, list every execution of that task.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show live task status or agent state from Redis",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	historyCmd.Flags().String("agent", "", "only list executions by this agent id")
	historyCmd.Flags().Int("limit", 20, "maximum number of executions to list")
	statusCmd.Flags().String("agent", "", "show the connection state of this agent id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dsn := viper.GetString("postgres_dsn")
	if dsn == "" {
		return errors.New("postgres_dsn is not set")
	}
	agentID, _ := cmd.Flags().GetString("agent")
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	var execs []*domain.TaskExecution
	if len(args) == 1 {
		execs, err = repo.ListByTask(ctx, args[0])
	} else {
		execs, err = repo.ListRecent(ctx, agentID, limit)
	}
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Println("no executions recorded")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXECUTED\tTASK\tTYPE\tAGENT\tSTATUS\tDURATION\tPOSTED\tERROR")
	for _, e := range execs {
		fmt.Fprintf(tw, "%s\t%s\t%s/%d\t%s\t%s\t%s\t%t\t%s\n",
			e.ExecutedAt.Local().Format(time.DateTime), e.TaskID, e.TaskType, e.TaskVersion,
			e.AgentID, statusText(e.Status), e.Duration.Round(time.Millisecond), e.ResultPosted, e.Error)
	}
	return tw.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	agentID, _ := cmd.Flags().GetString("agent")
	if len(args) == 0 && agentID == "" {
		return errors.New("give a task id or --agent")
	}

	client, err := redisstore.NewClient(viper.GetString("redis_url"))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	store := redisstore.NewStateStore(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if agentID != "" {
		state, err := store.GetAgentState(ctx, agentID)
		if err != nil {
			return err
		}
		fmt.Printf("agent %s: %s\n", agentID, state)
	}
	if len(args) == 1 {
		exec, err := store.GetExecution(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("task %s: %s (%s/%d on %s, %s)\n", exec.TaskID, statusText(exec.Status),
			exec.TaskType, exec.TaskVersion, exec.AgentID, exec.Duration.Round(time.Millisecond))
		if exec.Error != "" {
			fmt.Printf("  error: %s\n", exec.Error)
		}
	}
	return nil
}

func statusText(s domain.Status) string {
	if s == domain.StatusCompleted {
		return color.GreenString(string(s))
	}
	return color.RedString(string(s))
}
