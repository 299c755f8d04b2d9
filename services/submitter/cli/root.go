package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "slamon-submit",
	Short:        "SLAMon submitter: posts tasks to a broker and waits for their outcome",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/submit/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file path (default: ./submitter.yaml)")
	pf.String("log-level", "warn", "log level: debug | info | warn | error")
	pf.String("log-file", "", "also write logs to this file, rotated by size")
	pf.String("broker-url", "http://localhost:8080", "base URL of the broker (agent fleet manager)")
	pf.Duration("poll-interval", time.Second, "delay between result polls")
	pf.Duration("request-timeout", 30*time.Second, "timeout of a single broker request")
	pf.String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	bindFlag("log_level", pf, "log-level")
	bindFlag("log_file", pf, "log-file")
	bindFlag("broker_url", pf, "broker-url")
	bindFlag("poll_interval", pf, "poll-interval")
	bindFlag("request_timeout", pf, "request-timeout")
	bindFlag("otel_endpoint", pf, "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(newInitCmd("submitter", defaultSubmitterYAML))
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.SetConfigName("submitter")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(home + "/.slamon")
		viper.AddConfigPath("/etc/slamon")
	}

	viper.SetEnvPrefix("slamon")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "error reading config file:", err)
			os.Exit(1)
		}
	}
}

// buildLogger logs to stderr; stdout carries task outcomes.
func buildLogger(level, service, file string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})).
		With(slog.String("service", service))
}

func bindFlag(viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := viper.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, viperKey, err))
	}
}
