package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SLAMon/SLAMon/internal/events"
	"github.com/SLAMon/SLAMon/services/agent/config"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect agent events on the event bus",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print agent events as they are published",
	Long: `Subscribe to <event-prefix>.agent.events on the configured bus and print
every event until interrupted. Use --source to follow a single agent.`,
	RunE: runEventsTail,
}

func init() {
	eventsTailCmd.Flags().String("source", "", "only show events from this agent id")
	eventsCmd.AddCommand(eventsTailCmd)
}

func runEventsTail(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	source, _ := cmd.Flags().GetString("source")
	logger := buildLogger(cfg.LogLevel, "agent-events", cfg.LogFile)

	bus, err := events.NewBus(busConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	if bus == nil {
		return errors.New("no event bus configured (set --event-bus)")
	}
	defer func() { _ = bus.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subject := events.Subject(cfg.EventPrefix)
	ch, unsubscribe, err := bus.Subscribe(ctx, subject)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer unsubscribe()

	fmt.Fprintf(os.Stderr, "tailing %s on %s bus\n", subject, cfg.EventBus)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if source != "" && ev.Source != source {
				continue
			}
			printEvent(os.Stdout, ev)
		}
	}
}

var (
	eventOK   = color.New(color.FgGreen)
	eventWarn = color.New(color.FgYellow)
	eventErr  = color.New(color.FgRed, color.Bold)
	eventInfo = color.New(color.FgCyan)
)

func printEvent(w io.Writer, ev events.Event) {
	ts := ev.Timestamp.Local().Format("15:04:05.000")
	var c *color.Color
	detail := ev.Message
	switch ev.Type {
	case events.TypeConnectionState:
		detail = ev.State
		c = eventInfo
		if ev.State == events.Connected.String() {
			c = eventOK
		}
	case events.TypeTaskCompleted:
		c = eventOK
	case events.TypeTemporaryError:
		c = eventWarn
	case events.TypeFatalError, events.TypeTaskError:
		c = eventErr
	case events.TypePollScheduled:
		c = eventInfo
		if ev.NextPoll != nil {
			detail = "next poll in " + time.Until(*ev.NextPoll).Round(time.Millisecond).String()
		}
	default:
		c = eventInfo
	}
	fmt.Fprintf(w, "%s %-36s ", ts, ev.Source)
	c.Fprintf(w, "%-16s", ev.Type)
	if detail != "" {
		fmt.Fprintf(w, " %s", detail)
	}
	fmt.Fprintln(w)
}
