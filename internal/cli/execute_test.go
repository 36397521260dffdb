package cli_test

import (
	"errors"
	"os"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/userhub/userhub/internal/cli"
)

type fakeDaemon struct {
	done     chan struct{}
	quitOnce sync.Once

	runErr     bool
	usageErr   bool
	hupReturns bool
}

func (d *fakeDaemon) Run() error {
	<-d.done
	if d.runErr {
		return errors.New("error requested by test")
	}
	return nil
}

func (d *fakeDaemon) UsageError() bool {
	return d.usageErr
}

func (d *fakeDaemon) Hup() bool {
	return d.hupReturns
}

func (d *fakeDaemon) Quit() {
	d.quitOnce.Do(func() { close(d.done) })
}

//nolint:tparallel // Signal handlers tests: subtests can't be parallel
func TestExecute(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		runErr     bool
		usageErr   bool
		hupReturns bool
		sig        syscall.Signal

		wantCode int
	}{
		"Exits successfully":                 {wantCode: cli.ExitOK},
		"Returns error code":                 {runErr: true, wantCode: cli.ExitError},
		"Returns usage code":                 {runErr: true, usageErr: true, wantCode: cli.ExitUsage},
		"Usage error without error succeeds": {usageErr: true, wantCode: cli.ExitOK},
		"SIGINT quits":                       {sig: syscall.SIGINT},
		"SIGTERM quits":                      {sig: syscall.SIGTERM},
		"SIGHUP does not quit":               {sig: syscall.SIGHUP},
		"SIGHUP quits when Hup requests to":  {sig: syscall.SIGHUP, hupReturns: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if runtime.GOOS == "windows" && tc.sig != 0 {
				t.Skip("Skipping signal test on Windows")
			}

			d := &fakeDaemon{
				done:       make(chan struct{}),
				runErr:     tc.runErr,
				usageErr:   tc.usageErr,
				hupReturns: tc.hupReturns,
			}

			var code int
			exited := make(chan struct{})
			go func() {
				code = cli.Execute(d)
				close(exited)
			}()
			time.Sleep(100 * time.Millisecond)

			wantQuit := tc.sig == syscall.SIGINT || tc.sig == syscall.SIGTERM || tc.hupReturns
			if tc.sig != 0 {
				p, err := os.FindProcess(os.Getpid())
				require.NoError(t, err, "Setup: could not find own process")
				require.NoError(t, p.Signal(tc.sig), "Setup: could not send signal")

				var quit bool
				select {
				case <-exited:
					quit = true
				case <-time.After(200 * time.Millisecond):
				}
				require.Equal(t, wantQuit, quit, "Daemon should quit only on the expected signals")
			}

			d.Quit()
			<-exited
			require.Equal(t, tc.wantCode, code, "Exit code should match")
		})
	}
}
