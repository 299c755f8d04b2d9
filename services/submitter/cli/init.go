package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultSubmitterYAML = `# SLAMon submitter config
# Priority: CLI flag > SLAMON_* env var > this file > default.

broker_url:      "http://localhost:8080"
poll_interval:   "1s"
request_timeout: "30s"
log_level:       "warn"
# otel_endpoint: "localhost:4318"

# --- schedule ---
run_timeout:     "5m"     # abort a probe that has no outcome by then
metrics_addr:    ":9092"  # empty disables the metrics server
redis_url:       "redis://localhost:6379"
leader_election: false     # only one scheduler replica fires probes
leader_ttl:      "2m"
max_per_window:  0         # 0 disables the cross-replica rate limit
rate_window:     "1m"

probes:
  - name: homepage
    cron: "*/5 * * * *"
    task_type: url_http_status
    task_version: 1
    test_id: sla-homepage
    task_data:
      url: "https://example.com"
  - name: heartbeat
    cron: "@every 1m"
    task_type: wait
    task_version: 1
    timeout: "30s"
    task_data:
      time: 1
`

func newInitCmd(serviceName, defaultYAML string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: fmt.Sprintf(`Write default configuration for %s.

If --config is given the file is written to that path.
Otherwise it is written to ~/.slamon/%s.yaml.
Fails if the file already exists unless --force is passed.`, serviceName, serviceName),
		RunE: func(_ *cobra.Command, _ []string) error {
			dest := cfgFile
			if dest == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("home dir: %w", err)
				}
				dest = filepath.Join(home, ".slamon", serviceName+".yaml")
			}

			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}

			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", dest, err)
				}
			}

			if err := os.WriteFile(dest, []byte(defaultYAML), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("config written to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}
