package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "slamon-agent",
	Short:        "SLAMon agent: polls a broker for tasks and runs them",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/agent/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./agent.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file, rotated by size")
	bindFlag("log_level", rootCmd.PersistentFlags(), "log-level")
	bindFlag("log_file", rootCmd.PersistentFlags(), "log-file")

	// Connection settings shared by serve and the inspection commands.
	pf := rootCmd.PersistentFlags()
	pf.String("postgres-dsn", "", "PostgreSQL DSN for execution records; empty disables them")
	pf.String("redis-url", "redis://localhost:6379", "Redis URL for the state store and the redis event bus")
	pf.String("event-bus", "none", "event bus: none | memory | redis | nats | kafka")
	pf.String("event-prefix", "slamon", "prefix of the event bus subject")
	pf.String("nats-url", "nats://localhost:4222", "NATS server URL")
	pf.String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	pf.String("kafka-group-id", "", "Kafka consumer group for events tail; empty tails from the newest event")
	bindFlag("postgres_dsn", pf, "postgres-dsn")
	bindFlag("redis_url", pf, "redis-url")
	bindFlag("event_bus", pf, "event-bus")
	bindFlag("event_prefix", pf, "event-prefix")
	bindFlag("nats_url", pf, "nats-url")
	bindFlag("kafka_brokers", pf, "kafka-brokers")
	bindFlag("kafka_group_id", pf, "kafka-group-id")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newInitCmd("agent", defaultAgentYAML))
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.SetConfigName("agent")
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
	} else {
		fmt.Fprintln(os.Stderr, "config:", viper.ConfigFileUsed())
	}
}

func buildLogger(level, service, file string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	var out io.Writer = os.Stdout
	if file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
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
