package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chatline/internal/metrics"
	"chatline/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets callback goroutines log while the test reads
type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func newWatcherLogger() (*logrus.Logger, *syncBuffer) {
	out := &syncBuffer{}
	logger := logrus.New()
	logger.SetOutput(out)
	return logger, out
}

func TestNewConfigWatcher(t *testing.T) {
	logger := logrus.New()
	registry := metrics.NewRegistry()

	watcher := NewConfigWatcher("/path/to/../to/config.json", registry, logger)

	assert.Equal(t, "/path/to/config.json", watcher.configPath)
	assert.Equal(t, registry, watcher.registry)
	assert.Empty(t, watcher.callbacks)
	assert.Nil(t, watcher.GetConfig())
}

func TestConfigWatcher_Start_InvalidPath(t *testing.T) {
	watcher := NewConfigWatcher(filepath.Join(t.TempDir(), "missing.json"), metrics.NewRegistry(), logrus.New())

	err := watcher.Start(context.Background())
	assert.Error(t, err)
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, "config.json", validJSON)
	logger, _ := newWatcherLogger()
	registry := metrics.NewRegistry()

	watcher := NewConfigWatcher(configPath, registry, logger)
	watcher.debounce = 10 * time.Millisecond

	changes := make(chan *models.Config, 4)
	watcher.OnConfigChange(func(c *models.Config) { changes <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "debug", watcher.GetConfig().LogLevel)

	updated := strings.Replace(validJSON, `"log_level": "debug"`, `"log_level": "warn"`, 1)
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0644))

	select {
	case c := <-changes:
		assert.Equal(t, "warn", c.LogLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("config change callback not called")
	}
	assert.Equal(t, "warn", watcher.GetConfig().LogLevel)
	assert.GreaterOrEqual(t, registry.CounterValue(metrics.ConfigReloads), 1.0)

	cancel()
	assert.NoError(t, <-done)
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, "config.json", validJSON)
	logger, _ := newWatcherLogger()
	registry := metrics.NewRegistry()

	watcher := NewConfigWatcher(configPath, registry, logger)
	watcher.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Start(ctx) }()
	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(configPath), "notes.txt"), []byte("hi"), 0644))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0.0, registry.CounterValue(metrics.ConfigReloads))
}

func TestConfigWatcher_ReloadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, "config.json", validJSON)
	logger, out := newWatcherLogger()
	registry := metrics.NewRegistry()

	watcher := NewConfigWatcher(configPath, registry, logger)
	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	watcher.config = config

	require.NoError(t, os.WriteFile(configPath, []byte(`invalid json`), 0644))
	watcher.reloadConfig()

	assert.Contains(t, out.String(), "Failed to reload configuration")
	assert.Same(t, config, watcher.GetConfig())
	assert.Equal(t, 1.0, registry.CounterValue(metrics.ConfigReloads))
}

func TestConfigWatcher_CallbackPanic(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, "config.json", validJSON)
	logger, out := newWatcherLogger()

	watcher := NewConfigWatcher(configPath, metrics.NewRegistry(), logger)
	watcher.OnConfigChange(func(*models.Config) {
		panic("test panic")
	})

	watcher.reloadConfig()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Config change callback panicked")
	}, time.Second, 5*time.Millisecond)
}

func TestConfigWatcher_LogConfigChanges(t *testing.T) {
	logger, out := newWatcherLogger()
	watcher := NewConfigWatcher("/path/to/config.json", metrics.NewRegistry(), logger)

	off := false
	oldConfig := &models.Config{LogLevel: "info", Broker: models.BrokerConfig{Endpoint: "ws://a/ws"}}
	newConfig := &models.Config{LogLevel: "debug", Broker: models.BrokerConfig{Endpoint: "ws://b/ws"}, Typing: models.TypingConfig{Enabled: &off}}

	watcher.logConfigChanges(oldConfig, newConfig)

	logStr := out.String()
	assert.Contains(t, logStr, "Log level changed")
	assert.Contains(t, logStr, "Typing simulation toggled")
	assert.Contains(t, logStr, "Broker endpoint changed")
}

func TestConfigWatcher_LogConfigChanges_NilOldConfig(t *testing.T) {
	logger, out := newWatcherLogger()
	watcher := NewConfigWatcher("/path/to/config.json", metrics.NewRegistry(), logger)

	watcher.logConfigChanges(nil, &models.Config{LogLevel: "debug"})

	assert.Equal(t, "", out.String())
}
