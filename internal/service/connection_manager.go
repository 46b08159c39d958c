package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatline/internal/errors"
	"chatline/internal/metrics"
	"chatline/internal/models"
	"chatline/internal/notify"
	"chatline/internal/privacy"
	"chatline/internal/retry"
	"chatline/internal/scheduler"
	"chatline/internal/tracing"
	"chatline/pkg/broker/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// User-facing connection messages
const (
	MessageConnecting       = "Connecting to chat server..."
	MessageConnected        = "Connected"
	MessageDisconnected     = "Disconnected"
	MessageCannotConnect    = "Cannot connect to chat server"
	notifyConnected         = "Connected to chat"
	notifyConnectionLost    = "Connection lost. Reconnecting in %s"
	notifyConnectionFailure = "Connection failed. Retrying in %s (attempt %d/%d)"
)

// ConnectionConfig holds the routing a ConnectionManager needs
type ConnectionConfig struct {
	Endpoint        string
	InboundTopic    string
	SendDestination string
	JoinDestination string
	Username        string
}

// ConnectionManager owns the broker connection lifecycle: connect, subscribe, announce,
// detect loss, and reconnect with bounded backoff.
//
// All methods except Status and State must run on the timeline. Transport callbacks are
// posted to the timeline and tagged with the generation of the handle that produced them,
// so events from a discarded handle are ignored.
type ConnectionManager struct {
	transport types.Transport
	timeline  scheduler.Timeline
	backoff   *retry.Backoff
	sink      notify.Sink
	logger    *logrus.Logger
	errLogger *errors.Logger
	registry  *metrics.Registry
	config    ConnectionConfig

	state       models.ConnectionState
	message     string
	attempts    int
	generation  uint64
	handle      types.Handle
	sub         types.Subscription
	retryCancel scheduler.CancelFunc
	onMessage   func(body []byte)
	listeners   []func(models.ConnectionStatus)

	connectCtx   context.Context
	connectSpan  oteltrace.Span
	connectStart time.Time

	statusMu sync.RWMutex
	status   models.ConnectionStatus
}

// NewConnectionManager creates a manager in the Disconnected state
func NewConnectionManager(
	transport types.Transport,
	timeline scheduler.Timeline,
	backoff *retry.Backoff,
	sink notify.Sink,
	registry *metrics.Registry,
	logger *logrus.Logger,
	config ConnectionConfig,
) *ConnectionManager {
	if sink == nil {
		sink = notify.Discard
	}
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	if backoff == nil {
		backoff = retry.NewBackoff(retry.DefaultBackoffConfig())
	}

	cm := &ConnectionManager{
		transport: transport,
		timeline:  timeline,
		backoff:   backoff,
		sink:      sink,
		logger:    logger,
		errLogger: errors.FromLogrus(logger),
		registry:  registry,
		config:    config,
		state:     models.StateDisconnected,
		message:   MessageDisconnected,
	}
	cm.status = models.ConnectionStatus{State: cm.state, Message: cm.message}
	return cm
}

// OnMessage sets the handler for inbound frame bodies. It runs on the timeline.
func (cm *ConnectionManager) OnMessage(fn func(body []byte)) {
	cm.onMessage = fn
}

// OnStateChange registers a listener called on the timeline after every state change
func (cm *ConnectionManager) OnStateChange(fn func(models.ConnectionStatus)) {
	cm.listeners = append(cm.listeners, fn)
}

// Status returns the latest connection status. Safe from any goroutine.
func (cm *ConnectionManager) Status() models.ConnectionStatus {
	cm.statusMu.RLock()
	defer cm.statusMu.RUnlock()
	return cm.status
}

// State returns the current connection state. Safe from any goroutine.
func (cm *ConnectionManager) State() models.ConnectionState {
	return cm.Status().State
}

// Username returns the sender name used on the wire
func (cm *ConnectionManager) Username() string {
	return cm.config.Username
}

// Connect starts a fresh connection attempt. Any pending retry is cancelled, any prior
// handle is discarded and the retry budget is reset.
func (cm *ConnectionManager) Connect() {
	cm.cancelRetry()
	cm.attempts = 0
	cm.open()
}

// Disconnect tears the connection down, announcing LEAVE first when connected. The returned
// channel closes once the transport handle has finished closing.
func (cm *ConnectionManager) Disconnect() <-chan struct{} {
	done := make(chan struct{})

	cm.cancelRetry()
	if cm.state == models.StateConnected {
		leave := types.Payload{Sender: cm.config.Username, Type: types.TypeLeave}
		if err := cm.Publish(cm.config.SendDestination, leave); err != nil {
			cm.errLogger.LogWarn(err, "Failed to announce leave")
		}
	}

	handle := cm.detach()
	cm.endConnectSpan(nil)
	cm.attempts = 0
	cm.setState(models.StateDisconnected, MessageDisconnected)

	if handle == nil {
		close(done)
		return done
	}
	handle.Close(func() { close(done) })
	return done
}

// Publish encodes payload and sends it to destination. Nothing is queued when the
// connection is down; the caller gets a PUBLISH_WHILE_DISCONNECTED error instead.
func (cm *ConnectionManager) Publish(destination string, payload types.Payload) error {
	if cm.state != models.StateConnected || cm.handle == nil {
		cm.registry.IncrementCounter(metrics.PublishSkipped, nil, "Publishes skipped while disconnected")
		return errors.NewPublishWhileDisconnectedError(destination, cm.state.String())
	}

	body, err := types.Encode(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode chat payload")
	}

	_, span := tracing.StartSpan(context.Background(), tracing.SpanPublish)
	defer span.End()

	if err := cm.handle.Send(destination, nil, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cm.registry.IncrementCounter(metrics.PublishFailures, nil, "Frames the transport failed to send")
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to send frame").
			WithContext("destination", destination)
	}

	cm.registry.IncrementCounter(metrics.MessagesSent, map[string]string{"type": string(payload.Type)}, "Frames published to the broker")
	cm.logger.WithFields(logrus.Fields{
		LogFieldDestination: destination,
		LogFieldEvent:       string(payload.Type),
	}).Debug("Published frame")
	return nil
}

func (cm *ConnectionManager) open() {
	if handle := cm.detach(); handle != nil {
		handle.Close(nil)
	}

	cm.generation++
	gen := cm.generation
	attempt := cm.attempts + 1

	cm.setState(models.StateConnecting, MessageConnecting)
	cm.endConnectSpan(nil)
	cm.connectCtx, cm.connectSpan = tracing.StartConnectSpan(context.Background(), privacy.MaskEndpoint(cm.config.Endpoint), attempt)
	cm.connectStart = cm.timeline.Now()

	cm.logger.WithFields(logrus.Fields{
		LogFieldEndpoint: privacy.MaskEndpoint(cm.config.Endpoint),
		LogFieldAttempt:  attempt,
	}).Info("Starting connection to chat server")

	handle, err := cm.transport.Open(cm.config.Endpoint, types.Events{
		OnOpen: func() {
			cm.timeline.Post(func() { cm.handleOpen(gen) })
		},
		OnError: func(err error) {
			cm.timeline.Post(func() { cm.handleFailure(gen, err) })
		},
		OnClose: func(err error) {
			cm.timeline.Post(func() { cm.handleFailure(gen, err) })
		},
	})
	if err != nil {
		cm.handleFailure(gen, errors.NewTransportOpenError(privacy.MaskEndpoint(cm.config.Endpoint), err))
		return
	}
	cm.handle = handle
}

func (cm *ConnectionManager) handleOpen(gen uint64) {
	if gen != cm.generation || cm.handle == nil || cm.state != models.StateConnecting {
		return
	}

	sub, err := cm.handle.Subscribe(cm.config.InboundTopic, func(body []byte) {
		cm.timeline.Post(func() { cm.handleInbound(gen, body) })
	})
	if err != nil {
		cm.handleFailure(gen, errors.Wrap(err, errors.ErrCodeTransportOpen, "failed to subscribe").
			WithContext("topic", cm.config.InboundTopic))
		return
	}
	cm.sub = sub

	cm.registry.RecordTimer(metrics.ConnectDuration, cm.timeline.Now().Sub(cm.connectStart), nil, "Time from open to CONNECTED")
	cm.endConnectSpan(nil)

	cm.attempts = 0
	cm.setState(models.StateConnected, MessageConnected)

	cm.logger.WithFields(logrus.Fields{
		LogFieldSubscription: sub.ID(),
		LogFieldGeneration:   gen,
	}).Debug("Subscribed to inbound topic")

	join := types.Payload{Sender: cm.config.Username, Type: types.TypeJoin}
	if err := cm.Publish(cm.config.JoinDestination, join); err != nil {
		cm.errLogger.LogWarn(err, "Failed to announce join")
	}
	cm.sink.Notify(notifyConnected, notify.LevelSuccess)
}

func (cm *ConnectionManager) handleInbound(gen uint64, body []byte) {
	if gen != cm.generation || cm.onMessage == nil {
		return
	}
	cm.onMessage(body)
}

func (cm *ConnectionManager) handleFailure(gen uint64, cause error) {
	if gen != cm.generation {
		return
	}
	switch cm.state {
	case models.StateConnecting, models.StateConnected:
	default:
		return
	}

	wasConnected := cm.state == models.StateConnected
	if handle := cm.detach(); handle != nil {
		handle.Close(nil)
	}
	cm.endConnectSpan(cause)

	cm.attempts++
	cm.registry.IncrementCounter(metrics.ReconnectAttempts, nil, "Connection failures counted against the retry budget")

	fields := logrus.Fields{
		LogFieldEndpoint: privacy.MaskEndpoint(cm.config.Endpoint),
		LogFieldAttempt:  cm.attempts,
	}

	delay, ok := cm.backoff.Delay(cm.attempts)
	if !ok {
		err := errors.NewRetryBudgetExhaustedError(cm.attempts-1, cause)
		cm.errLogger.LogError(err, "Failed to connect to chat server", fields)
		cm.setState(models.StateFailed, MessageCannotConnect)
		cm.sink.Notify(MessageCannotConnect, notify.LevelError)
		return
	}

	var notice string
	if wasConnected {
		notice = fmt.Sprintf(notifyConnectionLost, delay)
	} else {
		notice = fmt.Sprintf(notifyConnectionFailure, delay, cm.attempts, cm.backoff.MaxAttempts())
	}

	fields[LogFieldDelay] = delay.Milliseconds()
	if cause == nil || errors.GetCode(cause) == errors.ErrCodeInternalError {
		cause = errors.NewTransportOpenError(privacy.MaskEndpoint(cm.config.Endpoint), cause)
	}
	cm.errLogger.LogRetryableError(cause, "Connection lost, reconnect scheduled", fields)

	cm.setState(models.StateReconnecting, notice)
	cm.sink.Notify(notice, notify.LevelError)
	cm.retryCancel = cm.timeline.After(delay, func() {
		cm.retryCancel = nil
		if cm.state == models.StateReconnecting {
			cm.open()
		}
	})
}

// detach forgets the current handle and bumps the generation so late events are dropped
func (cm *ConnectionManager) detach() types.Handle {
	handle := cm.handle
	cm.handle = nil
	cm.sub = nil
	if handle != nil {
		cm.generation++
	}
	return handle
}

func (cm *ConnectionManager) cancelRetry() {
	if cm.retryCancel != nil {
		cm.retryCancel()
		cm.retryCancel = nil
	}
}

func (cm *ConnectionManager) endConnectSpan(err error) {
	if cm.connectSpan == nil {
		return
	}
	if err != nil {
		tracing.RecordError(cm.connectCtx, err)
	} else {
		tracing.SetSpanStatus(cm.connectCtx, codes.Ok, "")
	}
	cm.connectSpan.End()
	cm.connectSpan = nil
	cm.connectCtx = nil
}

func (cm *ConnectionManager) setState(state models.ConnectionState, message string) {
	previous := cm.state
	cm.state = state
	cm.message = message

	status := models.ConnectionStatus{State: state, Message: message, Attempts: cm.attempts}
	cm.statusMu.Lock()
	cm.status = status
	cm.statusMu.Unlock()

	cm.registry.SetGauge(metrics.ConnectionState, float64(state), nil, "Connection state (0=Disconnected 1=Connecting 2=Connected 3=Reconnecting 4=Failed)")

	if previous != state {
		cm.logger.WithFields(logrus.Fields{
			LogFieldPrevState: previous.String(),
			LogFieldState:     state.String(),
			LogFieldAttempt:   cm.attempts,
		}).Info("Connection state changed")
	}

	for _, fn := range cm.listeners {
		fn(status)
	}
}
