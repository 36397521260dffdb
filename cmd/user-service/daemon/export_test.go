package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig = appConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// APIAddr returns the address the API server listens on, once started.
func (a *App) APIAddr() string {
	a.WaitReady()
	if a.api == nil {
		return ""
	}
	return a.api.Addr()
}

// NewForTests creates a new App instance for testing purposes.
func NewForTests(t *testing.T, conf *AppConfig, args ...string) *App {
	t.Helper()

	p := GenerateTestConfig(t, conf)
	argsWithConf := []string{"--config", p}
	argsWithConf = append(argsWithConf, args...)

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")
	a.cmd.SetArgs(argsWithConf)
	return a
}

// GenerateTestConfig generates a temporary config file for testing.
func GenerateTestConfig(t *testing.T, origConf *AppConfig) string {
	t.Helper()

	var conf appConfig

	if origConf != nil {
		conf = *origConf
	}

	if conf.Log.Verbosity == 0 {
		conf.Log.Verbosity = 2
	}

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}
