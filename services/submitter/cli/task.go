package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/SLAMon/SLAMon/internal/domain"
)

func addTaskFlags(fs *pflag.FlagSet) {
	fs.String("type", "", "task type, e.g. wait or url_http_status")
	fs.Int("version", 1, "task (handler) version")
	fs.String("data", "{}", "task_data as a JSON object")
	fs.String("test-id", "", "test id the task belongs to")
}

type taskFlags struct {
	Type    string
	Version int
	Data    map[string]any
	TestID  string
}

func readTaskFlags(fs *pflag.FlagSet) (taskFlags, error) {
	var tf taskFlags
	tf.Type, _ = fs.GetString("type")
	tf.Version, _ = fs.GetInt("version")
	tf.TestID, _ = fs.GetString("test-id")
	if tf.Type == "" {
		return tf, fmt.Errorf("--type is required")
	}
	if tf.Version < 0 {
		return tf, fmt.Errorf("--version must not be negative")
	}
	raw, _ := fs.GetString("data")
	data, err := parseData(raw)
	if err != nil {
		return tf, err
	}
	tf.Data = data
	return tf, nil
}

// parseData decodes a task_data object, keeping numbers exact.
func parseData(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("--data: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

var (
	okLabel   = color.New(color.FgGreen, color.Bold)
	failLabel = color.New(color.FgRed, color.Bold)
	warnLabel = color.New(color.FgYellow, color.Bold)
	dim       = color.New(color.Faint)
)

// printOutcome writes a terminal task in human-readable form.
func printOutcome(w io.Writer, task *domain.Task) {
	if task.Succeeded() {
		okLabel.Fprint(w, "COMPLETED")
		dim.Fprintf(w, " %s %s\n", task.ID, task.Completed)
		out, err := json.MarshalIndent(task.Result, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "%v\n", task.Result)
			return
		}
		fmt.Fprintln(w, string(out))
		return
	}
	failLabel.Fprint(w, "FAILED")
	dim.Fprintf(w, " %s %s\n", task.ID, task.Failed)
	fmt.Fprintln(w, task.Error)
}
