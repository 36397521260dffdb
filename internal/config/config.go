// Package config provides a configuration manager that loads and watches the reserved user names file.
//
// The file is either JSON or TOML, selected by its extension:
//
//	{"reservedUsernames": ["support", "billing"]}
//
//	reservedUsernames = ["support", "billing"]
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/userhub/userhub/internal/username"
)

// Provider is an interface that defines methods to access configuration values.
type Provider interface {
	IsReserved(name string) bool
}

// Conf represents the configuration structure.
type Conf struct {
	ReservedUsernames []string `json:"reservedUsernames" toml:"reservedUsernames"`
}

// builtinReserved are always reserved, whatever the configuration file says.
var builtinReserved = []string{"admin", "appuser", "root", "system"}

// Manager is a struct that manages the configuration.
type Manager struct {
	reserved    []string
	reservedSet map[string]struct{}
	lock        sync.RWMutex
	configPath  string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a new configuration manager with the specified path.
// An empty path means that only the built-in reserved names apply.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	cm := &Manager{
		configPath: path,
		log:        opts.Logger,
	}
	cm.set(nil)
	return cm
}

// Load reads the configuration from the specified file and updates the internal state.
func (cm *Manager) Load() error {
	if cm.configPath == "" {
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}

	var newConfig Conf
	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &newConfig); err != nil {
			return fmt.Errorf("decoding config TOML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &newConfig); err != nil {
			return fmt.Errorf("decoding config JSON: %w", err)
		}
	}

	cm.set(newConfig.ReservedUsernames)

	cm.log.Info("Configuration loaded", "config", newConfig)
	return nil
}

func (cm *Manager) set(names []string) {
	list := make([]string, 0, len(names)+len(builtinReserved))
	set := make(map[string]struct{}, len(names)+len(builtinReserved))
	for _, n := range slices.Concat(builtinReserved, names) {
		folded := username.Fold(n)
		if folded == "" {
			continue
		}
		if _, ok := set[folded]; ok {
			continue
		}
		set[folded] = struct{}{}
		list = append(list, folded)
	}
	slices.Sort(list)

	cm.lock.Lock()
	defer cm.lock.Unlock()
	cm.reserved = list
	cm.reservedSet = set
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	if cm.configPath == "" {
		return nil, nil, fmt.Errorf("no configuration file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	// Initial load of the configuration
	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if filepath.Clean(event.Name) != filepath.Clean(cm.configPath) {
					continue
				}

				cm.log.Debug("Configuration file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading config", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Path returns the watched configuration file, or an empty string if there is none.
func (cm *Manager) Path() string {
	return cm.configPath
}

// ReservedNames returns the sorted, case-folded reserved user names, built-in ones included.
func (cm *Manager) ReservedNames() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return slices.Clone(cm.reserved)
}

// IsReserved reports whether name may not be registered. The comparison ignores case.
func (cm *Manager) IsReserved(name string) bool {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	_, ok := cm.reservedSet[username.Fold(name)]
	return ok
}

// Run watches the configuration file and reloads it on change until ctx is done.
// It returns an error if the watcher fails.
func (cm *Manager) Run(ctx context.Context) error {
	changes, errs, err := cm.Watch(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			cm.log.Info("Reserved usernames reloaded", "count", len(cm.ReservedNames()))
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			return err
		}
	}
}
