package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Daemon is a command line application running until it is asked to quit.
type Daemon interface {
	Run() error
	UsageError() bool
	Hup() (shouldQuit bool)
	Quit()
}

// Exit codes returned by Execute.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Execute runs d and returns the process exit code.
//
// While d runs, SIGINT and SIGTERM make it quit. SIGHUP calls Hup, and quits only if Hup asks for it.
func Execute(d Daemon) int {
	defer forwardSignals(d)()

	if err := d.Run(); err != nil {
		slog.Error(err.Error())

		if d.UsageError() {
			return ExitUsage
		}
		return ExitError
	}

	return ExitOK
}

func forwardSignals(d Daemon) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for sig := range sigs {
			if sig == syscall.SIGHUP && !d.Hup() {
				continue
			}
			d.Quit()
			return
		}
		slog.Debug("Signal channel closed")
	}()

	return func() {
		signal.Stop(sigs)
		close(sigs)
		wg.Wait()
	}
}
