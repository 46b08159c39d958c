package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chatline/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
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

// setupTestEnv points the client at a closed local port and keeps the status server off
func setupTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvEndpoint, "ws://127.0.0.1:1/ws")
	t.Setenv(config.EnvUsername, "tester")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvStatusAddr, "")
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestRootCommand_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader(""), io.Discard, io.Discard)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "chatline version "+Version)
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand(strings.NewReader(""), io.Discard, io.Discard)

	for _, name := range []string{"config", "env-file", "verbose"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, ".env", cmd.Flags().Lookup("env-file").DefValue)
}

func TestRun_QuitsOnCommand(t *testing.T) {
	setupTestEnv(t)

	out := &syncBuffer{}
	cmd := newRootCommand(strings.NewReader("/quit\n"), out, io.Discard)
	cmd.SetArgs([]string{"--env-file", missingEnvFile(t)})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Joined Public Group as tester")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	setupTestEnv(t)

	// A pipe that never yields input keeps the console waiting.
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, &options{envFile: missingEnvFile(t)}, reader, io.Discard, io.Discard)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_WithConfigFile(t *testing.T) {
	setupTestEnv(t)

	configPath := filepath.Join(t.TempDir(), "chatline.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
chat:
  room_name: Night Shift
typing:
  enabled: false
`), 0644))

	out := &syncBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx, &options{configPath: configPath, envFile: missingEnvFile(t)}, strings.NewReader("/quit\n"), out, io.Discard)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Joined Night Shift as tester")
}

func TestRun_InvalidConfig(t *testing.T) {
	setupTestEnv(t)

	err := run(context.Background(), &options{
		configPath: filepath.Join(t.TempDir(), "missing.json"),
		envFile:    missingEnvFile(t),
	}, strings.NewReader(""), io.Discard, io.Discard)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_InvalidEnvFile(t *testing.T) {
	setupTestEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BAD-KEY=1\n"), 0644))

	err := run(context.Background(), &options{envFile: envFile}, strings.NewReader(""), io.Discard, io.Discard)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file")
}

func TestApplyLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		verbose  bool
		expected logrus.Level
	}{
		{"configured", "warn", false, logrus.WarnLevel},
		{"verbose wins", "error", true, logrus.DebugLevel},
		{"invalid falls back to info", "loud", false, logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			logger.SetOutput(io.Discard)

			applyLogLevel(logger, tt.level, tt.verbose)

			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestLoadConfig_DefaultWhenNoPath(t *testing.T) {
	setupTestEnv(t)

	cfg, err := loadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:1/ws", cfg.Broker.Endpoint)
	assert.Equal(t, "tester", cfg.Chat.Username)
	assert.Empty(t, cfg.Server.Addr)
}
