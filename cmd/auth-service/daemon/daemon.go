// Package daemon provides the auth-service daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/userhub/userhub/internal/api"
	"github.com/userhub/userhub/internal/auth"
	"github.com/userhub/userhub/internal/cli"
	"github.com/userhub/userhub/internal/config"
	"github.com/userhub/userhub/internal/constants"
	"github.com/userhub/userhub/internal/database"
	"github.com/userhub/userhub/internal/messaging"
	"github.com/userhub/userhub/internal/server"
	"github.com/userhub/userhub/internal/service"
	"github.com/userhub/userhub/migrations"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon   *service.Service
	api      *server.Server
	closeLog func() error

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Log     cli.LogConfig
	DB      database.Config
	Broker  messaging.Config
	API     server.Config
	Metrics server.Config

	ReservedConfig string // File listing reserved usernames, reloaded on change.
	MigrationsDir  string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{
		ready:    make(chan struct{}),
		closeLog: func() error { return nil },
	}

	a.cmd = &cobra.Command{
		Use:           constants.AuthServiceCmdName,
		Short:         "User accounts authentication service",
		Long:          "The auth service stores user accounts and asks the user service to create the matching users.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(cli.LogConfig{Verbosity: a.config.Log.Verbosity, JSONLogs: a.config.Log.JSONLogs}) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.AuthServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := cli.Unmarshal(a.viper, &a.config); err != nil {
				return err
			}
			a.closeLog = cli.SetSlog(a.config.Log) // Update logging after loading config if necessary
			slog.Info("got app config", "log", a.config.Log, "api", a.config.API, "broker", a.config.Broker.Redacted())

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cli.AddLogFlags(cmd, &app.config.Log)
	cli.AddDatabaseFlags(cmd, &app.config.DB)
	cli.AddBrokerFlags(cmd, &app.config.Broker)
	cli.AddServerFlags(cmd, &app.config.API, constants.AuthServiceDefaultPort)
	cli.AddMetricsFlags(cmd, &app.config.Metrics, constants.AuthServiceDefaultMetricsPort)

	cmd.Flags().StringVarP(&app.config.ReservedConfig, "reserved-config", "c", "", "path to the reserved usernames file (JSON or TOML)")
	if err := cmd.MarkFlagFilename("reserved-config", "json", "toml"); err != nil {
		panic(fmt.Sprintf("failed to mark reserved-config flag as filename: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	defer func() {
		if cErr := a.closeLog(); cErr != nil {
			slog.Warn("Failed to close log file", "err", cErr)
		}
	}()

	if os.Geteuid() == 0 {
		slog.Warn("Running as root, consider running as an unprivileged user")
	}

	cleanup, err := a.setup(context.Background())
	close(a.ready)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cleanup()) }()

	return a.daemon.Run()
}

// setup creates the daemon and returns a function releasing its resources.
func (a *App) setup(ctx context.Context) (cleanup func() error, err error) {
	if a.config.ReservedConfig != "" {
		a.config.ReservedConfig, err = filepath.Abs(a.config.ReservedConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for reserved usernames file: %v", err)
		}
	}
	cm := config.New(a.config.ReservedConfig)
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load reserved usernames: %v", err)
	}

	if err := database.MigrateFromFS(a.config.DB, migrations.FS, migrations.AuthDir); err != nil {
		return nil, err
	}
	db, err := database.New(ctx, a.config.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	registry := prometheus.NewRegistry()
	broker := messaging.New(a.config.Broker, messaging.WithRegistry(registry))
	if err := broker.Connect(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	store := auth.NewStore(db)

	router := api.NewRouter(registry)
	router.RegisterProbes(constants.Version, db, broker)
	auth.NewHandlers(store, broker, cm).Register(router)

	a.api = server.New("api", a.config.API, router)
	runners := map[string]service.Runner{
		"consumer": auth.NewConsumer(store, broker),
	}
	if cm.Path() != "" {
		runners["reserved-config"] = cm
	}

	a.daemon = service.New(ctx, constants.AuthServiceCmdName,
		[]service.HTTPServer{a.api, server.NewMetrics(a.config.Metrics, registry)},
		runners)

	return func() error {
		return errors.Join(broker.Close(), db.Close())
	}, nil
}
