package config

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"chatline/internal/constants"
	"chatline/internal/errors"
	"chatline/internal/models"
	"chatline/internal/security"
	"chatline/internal/validation"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvEndpoint   = "CHATLINE_ENDPOINT"
	EnvUsername   = "CHATLINE_USERNAME"
	EnvLogLevel   = "CHATLINE_LOG_LEVEL"
	EnvStatusAddr = "CHATLINE_STATUS_ADDR"
)

const (
	defaultServiceName = "chatline"
	defaultLogLevel    = "info"
)

// LoadDotEnv loads variables from a .env file into the process environment.
// A missing file is not an error and existing variables win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to load env file").
			WithContext("path", path)
	}
	return nil
}

// Default returns the configuration used when no file is given
func Default() (*models.Config, error) {
	var config models.Config
	return finish(&config)
}

// LoadConfig reads a JSON or YAML file, applies defaults and environment overrides and validates the result
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid config path").
			WithContext("path", path)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("config file", path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to read config file").
			WithContext("path", path)
	}

	var config models.Config
	if err := decode(path, file, &config); err != nil {
		return nil, err
	}

	return finish(&config)
}

func finish(config *models.Config) (*models.Config, error) {
	applyDefaults(config)
	applyEnvironmentOverrides(config)

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

func decode(path string, data []byte, config *models.Config) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json", "":
		err = json.Unmarshal(data, config)
	default:
		return errors.NewConfigError("path", fmt.Sprintf("unsupported config format %q (use .json, .yaml or .yml)", ext))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to parse config file").
			WithContext("path", path).
			WithUserMessage("Configuration error")
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Broker.Endpoint == "" {
		c.Broker.Endpoint = constants.DefaultEndpoint
	}
	if c.Broker.InboundTopic == "" {
		c.Broker.InboundTopic = constants.DefaultInboundTopic
	}
	if c.Broker.SendDestination == "" {
		c.Broker.SendDestination = constants.DefaultSendDestination
	}
	if c.Broker.JoinDestination == "" {
		c.Broker.JoinDestination = constants.DefaultJoinDestination
	}
	if c.Broker.ConnectTimeoutSec <= 0 {
		c.Broker.ConnectTimeoutSec = constants.DefaultConnectTimeoutSec
	}

	if c.Reconnect.FloorMs <= 0 {
		c.Reconnect.FloorMs = constants.DefaultReconnectFloorMs
	}
	if c.Reconnect.Factor == 0 {
		c.Reconnect.Factor = constants.DefaultReconnectFactor
	}
	if c.Reconnect.CeilingMs <= 0 {
		c.Reconnect.CeilingMs = constants.DefaultReconnectCeilingMs
	}
	if c.Reconnect.MaxRetries <= 0 {
		c.Reconnect.MaxRetries = constants.DefaultReconnectMaxRetries
	}

	if c.Chat.Username == "" {
		c.Chat.Username = fmt.Sprintf("%s%d", constants.DefaultUsernamePrefix, rand.IntN(constants.DefaultUsernameSuffixRange))
	}
	if c.Chat.RoomName == "" {
		c.Chat.RoomName = constants.DefaultRoomName
	}
	if len(c.Chat.Participants) == 0 {
		c.Chat.Participants = append([]string(nil), constants.DefaultParticipants...)
	}

	if c.Status.SentDelayMs <= 0 {
		c.Status.SentDelayMs = constants.DefaultStatusSentDelayMs
	}
	if c.Status.DeliveredDelayMs <= 0 {
		c.Status.DeliveredDelayMs = constants.DefaultStatusDeliveredDelayMs
	}
	if c.Status.ReadDelayMs <= 0 {
		c.Status.ReadDelayMs = constants.DefaultStatusReadDelayMs
	}

	if c.Typing.IntervalMs <= 0 {
		c.Typing.IntervalMs = constants.DefaultTypingIntervalMs
	}
	if c.Typing.Probability == 0 {
		c.Typing.Probability = constants.DefaultTypingProbability
	}
	if c.Typing.DisplayMs <= 0 {
		c.Typing.DisplayMs = constants.DefaultTypingDisplayMs
	}

	if c.Media.MaxSizeMB <= 0 {
		c.Media.MaxSizeMB = constants.DefaultMediaMaxSizeMB
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaultServiceName
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" {
		c.Broker.Endpoint = endpoint
	}
	if username := os.Getenv(EnvUsername); username != "" {
		c.Chat.Username = username
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if addr, ok := os.LookupEnv(EnvStatusAddr); ok {
		c.Server.Addr = addr
	}
}

func validate(c *models.Config) error {
	checks := []struct {
		key string
		err error
	}{
		{"broker.endpoint", validation.ValidateEndpoint(c.Broker.Endpoint)},
		{"broker.inbound_topic", validation.ValidateDestination(c.Broker.InboundTopic, "inbound_topic")},
		{"broker.send_destination", validation.ValidateDestination(c.Broker.SendDestination, "send_destination")},
		{"broker.join_destination", validation.ValidateDestination(c.Broker.JoinDestination, "join_destination")},
		{"broker.connect_timeout_sec", validation.ValidateTimeout(c.Broker.ConnectTimeoutSec, "connect_timeout_sec")},
		{"chat.username", validation.ValidateUsername(c.Chat.Username)},
	}
	for _, check := range checks {
		if check.err != nil {
			return invalid(check.key, check.err)
		}
	}

	if c.Reconnect.Factor < 1 {
		return errors.NewConfigError("reconnect.factor", "factor must be at least 1")
	}
	if c.Reconnect.CeilingMs < c.Reconnect.FloorMs {
		return errors.NewConfigError("reconnect.ceiling_ms", "ceiling must not be below the floor")
	}

	if c.Status.DeliveredDelayMs < c.Status.SentDelayMs || c.Status.ReadDelayMs < c.Status.DeliveredDelayMs {
		return errors.NewConfigError("status", "status offsets must not decrease from sent to delivered to read")
	}

	if c.Typing.Probability < 0 || c.Typing.Probability > 1 {
		return errors.NewConfigError("typing.probability", "probability must be between 0 and 1")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.NewConfigError("tracing.sample_rate", "sample rate must be between 0 and 1")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", err)
	}

	return nil
}

func invalid(key string, err error) error {
	return errors.Wrap(err, errors.ErrCodeInvalidConfig, fmt.Sprintf("invalid %s", key)).
		WithContext("config_key", key).
		WithUserMessage(fmt.Sprintf("Configuration error in %s", key))
}
