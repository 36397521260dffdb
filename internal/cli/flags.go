package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/userhub/userhub/internal/constants"
	"github.com/userhub/userhub/internal/database"
	"github.com/userhub/userhub/internal/messaging"
	"github.com/userhub/userhub/internal/server"
)

// AddLogFlags installs the logging flags on cmd. They are persistent so that subcommands log the same way.
func AddLogFlags(cmd *cobra.Command, cfg *LogConfig) {
	cmd.PersistentFlags().CountVarP(&cfg.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&cfg.JSONLogs, "json-logs", false, "enable JSON formatted logs")
	cmd.PersistentFlags().StringVar(&cfg.File, "log-file", "", "also write logs to this file, rotated by size")
	cmd.PersistentFlags().IntVar(&cfg.MaxSizeMB, "log-max-size", 10, "size in megabytes after which the log file is rotated")
	cmd.PersistentFlags().IntVar(&cfg.MaxBackups, "log-max-backups", 5, "number of rotated log files to keep")

	if err := cmd.MarkPersistentFlagFilename("log-file"); err != nil {
		panic(fmt.Sprintf("failed to mark log-file flag as filename: %v", err))
	}
}

// AddDatabaseFlags installs the PostgreSQL connection flags on cmd.
func AddDatabaseFlags(cmd *cobra.Command, cfg *database.Config) {
	cmd.PersistentFlags().StringVar(&cfg.Host, "db-host", "postgres", "database host")
	cmd.PersistentFlags().IntVarP(&cfg.Port, "db-port", "p", 5432, "database port")
	cmd.PersistentFlags().StringVarP(&cfg.User, "db-user", "u", "postgres", "database user")
	cmd.PersistentFlags().StringVarP(&cfg.Password, "db-password", "P", "", "database password")
	cmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "n", "", "database name")
	cmd.PersistentFlags().StringVarP(&cfg.SSLMode, "db-sslmode", "s", "disable", "database SSL mode")
}

// AddBrokerFlags installs the RabbitMQ connection flags on cmd.
func AddBrokerFlags(cmd *cobra.Command, cfg *messaging.Config) {
	d := messaging.DefaultConfig()

	cmd.Flags().StringVar(&cfg.Host, "broker-host", d.Host, "RabbitMQ host")
	cmd.Flags().IntVar(&cfg.Port, "broker-port", d.Port, "RabbitMQ port")
	cmd.Flags().StringVar(&cfg.User, "broker-user", d.User, "RabbitMQ user")
	cmd.Flags().StringVar(&cfg.Password, "broker-password", d.Password, "RabbitMQ password")
	cmd.Flags().StringVar(&cfg.VHost, "broker-vhost", d.VHost, "RabbitMQ virtual host")
	cmd.Flags().IntVar(&cfg.RetryCount, "broker-retries", d.RetryCount, "connection attempts before giving up")
	cmd.Flags().DurationVar(&cfg.RetryBackoff, "broker-retry-backoff", d.RetryBackoff, "wait after the first failed connection attempt, doubled after each attempt")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "w", d.Workers, "number of messages handled concurrently")
}

// AddServerFlags installs the API server flags on cmd.
func AddServerFlags(cmd *cobra.Command, cfg *server.Config, defaultPort int) {
	cmd.Flags().StringVar(&cfg.Host, "listen-host", constants.DefaultListenHost, "host to listen on")
	cmd.Flags().IntVar(&cfg.Port, "listen-port", defaultPort, "port to listen on")
	cmd.Flags().DurationVar(&cfg.ReadTimeout, "read-timeout", 5*time.Second, "read timeout of the API server")
	cmd.Flags().DurationVar(&cfg.WriteTimeout, "write-timeout", 10*time.Second, "write timeout of the API server")
	cmd.Flags().DurationVar(&cfg.RequestTimeout, "request-timeout", 5*time.Second, "maximum time to handle a request, 0 to disable")
	cmd.Flags().IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", 1<<20, "maximum size of request headers")
}

// AddMetricsFlags installs the metrics server flags on cmd.
func AddMetricsFlags(cmd *cobra.Command, cfg *server.Config, defaultPort int) {
	cmd.Flags().StringVar(&cfg.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&cfg.Port, "metrics-port", defaultPort, "port for the metrics endpoint")
}
