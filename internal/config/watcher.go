package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"chatline/internal/constants"
	"chatline/internal/metrics"
	"chatline/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches the configuration file and reloads it on change
type ConfigWatcher struct {
	configPath string
	debounce   time.Duration
	registry   *metrics.Registry
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

// NewConfigWatcher creates a new configuration watcher
func NewConfigWatcher(configPath string, registry *metrics.Registry, logger *logrus.Logger) *ConfigWatcher {
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	return &ConfigWatcher{
		configPath: filepath.Clean(configPath),
		debounce:   constants.DefaultConfigReloadDebounceMs * time.Millisecond,
		registry:   registry,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the configuration and watches for changes until ctx is done
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return err
	}

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	var timerMu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(cw.debounce, cw.reloadConfig)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != cw.configPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				cw.logger.WithField("op", event.Op.String()).Debug("Configuration file changed")
				scheduleReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.WithError(err).Warn("Configuration watch error")
		}
	}
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// reloadConfig reloads the configuration from file. A file that fails to load keeps the old configuration.
func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.registry.IncrementCounter(metrics.ConfigReloads, map[string]string{"result": "error"}, "Configuration reloads")
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}
	cw.registry.IncrementCounter(metrics.ConfigReloads, map[string]string{"result": "ok"}, "Configuration reloads")

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

// logConfigChanges logs notable configuration changes
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.Typing.IsEnabled() != new.Typing.IsEnabled() {
		cw.logger.WithField("enabled", new.Typing.IsEnabled()).Info("Typing simulation toggled")
	}

	if old.Broker.Endpoint != new.Broker.Endpoint {
		cw.logger.WithField("endpoint", new.Broker.Endpoint).Warn("Broker endpoint changed; restart to apply")
	}
}
