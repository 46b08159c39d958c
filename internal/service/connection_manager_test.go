package service

import (
	"errors"
	"testing"
	"time"

	apperrors "chatline/internal/errors"
	"chatline/internal/metrics"
	"chatline/internal/models"
	"chatline/internal/notify"
	"chatline/pkg/broker/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConnectionManager_InitialState(t *testing.T) {
	f := newConnFixture(t)

	status := f.manager.Status()
	assert.Equal(t, models.StateDisconnected, status.State)
	assert.Equal(t, MessageDisconnected, status.Message)
	assert.Equal(t, 0, f.transport.opens())
}

func TestConnectionManager_ConnectSubscribesAndAnnounces(t *testing.T) {
	f := newConnFixture(t)

	f.manager.Connect()
	assert.Equal(t, models.StateConnecting, f.manager.State())
	require.Equal(t, 1, f.transport.opens())

	h := f.transport.last()
	assert.Equal(t, testEndpoint, h.endpoint)
	h.open()
	f.clock.Flush()

	assert.Equal(t, models.StateConnected, f.manager.State())
	assert.True(t, h.subscribed(testTopic))

	frames := h.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, testJoinDest, frames[0].Destination)
	assert.JSONEq(t, `{"sender":"User_42","type":"JOIN"}`, frames[0].Body)

	last, ok := f.sink.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Notification{Message: "Connected to chat", Level: notify.LevelSuccess}, last)

	gauge, ok := f.registry.GaugeValue(metrics.ConnectionState)
	require.True(t, ok)
	assert.Equal(t, float64(models.StateConnected), gauge)
}

func TestConnectionManager_ReconnectsAfterClose(t *testing.T) {
	f := newConnFixture(t)
	first := f.connect()

	first.dropped(errSocketClosed)
	f.clock.Flush()

	status := f.manager.Status()
	assert.Equal(t, models.StateReconnecting, status.State)
	assert.Equal(t, 1, status.Attempts)
	assert.True(t, first.isClosed())
	assert.Equal(t, 1, f.sink.Count(notify.LevelError))

	delay, ok := f.clock.NextDelay()
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)

	f.clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, 1, f.transport.opens(), "retry must wait for the full delay")

	f.clock.Advance(time.Millisecond)
	require.Equal(t, 2, f.transport.opens())
	assert.Equal(t, models.StateConnecting, f.manager.State())

	second := f.transport.last()
	second.open()
	f.clock.Flush()

	status = f.manager.Status()
	assert.Equal(t, models.StateConnected, status.State)
	assert.Equal(t, 0, status.Attempts)
	assert.True(t, second.subscribed(testTopic), "subscription must be re-issued")
	assert.Equal(t, float64(1), f.registry.CounterValue(metrics.ReconnectAttempts))
}

func TestConnectionManager_FailsAfterBudget(t *testing.T) {
	f := newConnFixture(t)
	expected := []time.Duration{
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10125 * time.Millisecond,
		15187500 * time.Microsecond,
	}

	f.manager.Connect()
	for failure := 1; failure <= len(expected)+1; failure++ {
		f.transport.last().fail(errors.New("refused"))
		f.clock.Flush()

		if failure > len(expected) {
			break
		}
		status := f.manager.Status()
		require.Equal(t, models.StateReconnecting, status.State, "failure %d", failure)
		assert.Equal(t, failure, status.Attempts)

		delay, ok := f.clock.NextDelay()
		require.True(t, ok)
		assert.Equal(t, expected[failure-1], delay, "failure %d", failure)
		require.True(t, f.clock.RunNext())
	}

	status := f.manager.Status()
	assert.Equal(t, models.StateFailed, status.State)
	assert.Equal(t, MessageCannotConnect, status.Message)
	assert.Equal(t, 6, f.transport.opens())
	assert.Equal(t, 0, f.clock.Pending(), "no automatic attempt after Failed")

	last, ok := f.sink.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
	assert.Equal(t, MessageCannotConnect, last.Message)

	f.clock.Advance(time.Hour)
	assert.Equal(t, 6, f.transport.opens())
}

func TestConnectionManager_ManualConnectResetsBudget(t *testing.T) {
	f := newConnFixture(t)
	f.manager.Connect()
	for f.manager.State() != models.StateFailed {
		f.transport.last().fail(errors.New("refused"))
		f.clock.Flush()
		f.clock.RunNext()
	}

	f.manager.Connect()
	status := f.manager.Status()
	assert.Equal(t, models.StateConnecting, status.State)
	assert.Equal(t, 0, status.Attempts)

	f.transport.last().open()
	f.clock.Flush()
	assert.Equal(t, models.StateConnected, f.manager.State())
}

func TestConnectionManager_ManualConnectCancelsPendingRetry(t *testing.T) {
	f := newConnFixture(t)
	h := f.connect()
	h.dropped(nil)
	f.clock.Flush()
	require.Equal(t, models.StateReconnecting, f.manager.State())
	require.Equal(t, 1, f.clock.Pending())

	f.manager.Connect()
	assert.Equal(t, 0, f.clock.Pending())
	opens := f.transport.opens()

	f.clock.Advance(time.Minute)
	assert.Equal(t, opens, f.transport.opens(), "cancelled retry must not open a second handle")
}

func TestConnectionManager_IgnoresStaleHandleEvents(t *testing.T) {
	f := newConnFixture(t)
	var inbound [][]byte
	f.manager.OnMessage(func(body []byte) { inbound = append(inbound, body) })

	first := f.connect()
	first.fail(errors.New("boom"))
	first.dropped(errSocketClosed)
	f.clock.Flush()

	assert.Equal(t, 1, f.manager.Status().Attempts, "close after error on the same handle counts once")

	f.clock.RunNext()
	second := f.transport.last()
	second.open()
	f.clock.Flush()
	require.Equal(t, models.StateConnected, f.manager.State())

	first.deliver(testTopic, `{"sender":"B","content":"late","type":"CHAT"}`)
	first.open()
	first.dropped(errSocketClosed)
	f.clock.Flush()

	assert.Empty(t, inbound)
	assert.Equal(t, models.StateConnected, f.manager.State())
}

func TestConnectionManager_DispatchesInbound(t *testing.T) {
	f := newConnFixture(t)
	var inbound []string
	f.manager.OnMessage(func(body []byte) { inbound = append(inbound, string(body)) })

	h := f.connect()
	h.deliver(testTopic, `{"sender":"B","content":"hi","type":"CHAT"}`)
	assert.Empty(t, inbound, "inbound frames run on the timeline")

	f.clock.Flush()
	assert.Equal(t, []string{`{"sender":"B","content":"hi","type":"CHAT"}`}, inbound)
}

func TestConnectionManager_OpenErrorSchedulesRetry(t *testing.T) {
	f := newConnFixture(t)
	f.transport.openErr = errors.New("dial refused")

	f.manager.Connect()

	status := f.manager.Status()
	assert.Equal(t, models.StateReconnecting, status.State)
	assert.Equal(t, 1, status.Attempts)

	f.transport.openErr = nil
	f.clock.RunNext()
	f.transport.last().open()
	f.clock.Flush()
	assert.Equal(t, models.StateConnected, f.manager.State())
}

func TestConnectionManager_SubscribeFailureCountsAsFailure(t *testing.T) {
	f := newConnFixture(t)
	f.manager.Connect()

	h := f.transport.last()
	h.subscribeErr = errors.New("not connected")
	h.open()
	f.clock.Flush()

	assert.Equal(t, models.StateReconnecting, f.manager.State())
	assert.Empty(t, h.frames(), "no JOIN without a subscription")
}

func TestConnectionManager_Publish(t *testing.T) {
	t.Run("while disconnected", func(t *testing.T) {
		f := newConnFixture(t)

		err := f.manager.Publish(testSendDest, types.Payload{Sender: testUsername, Content: "hi", Type: types.TypeChat})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodePublishWhileDisconnected, apperrors.GetCode(err))
		assert.Equal(t, float64(1), f.registry.CounterValue(metrics.PublishSkipped))
		assert.Equal(t, 0, f.transport.opens())
	})

	t.Run("while connected", func(t *testing.T) {
		f := newConnFixture(t)
		h := f.connect()

		err := f.manager.Publish(testSendDest, types.Payload{Sender: testUsername, Content: "hi", Type: types.TypeChat})
		require.NoError(t, err)

		frames := h.frames()
		require.Len(t, frames, 2)
		assert.Equal(t, testSendDest, frames[1].Destination)
		assert.JSONEq(t, `{"sender":"User_42","content":"hi","type":"CHAT"}`, frames[1].Body)
	})

	t.Run("transport send error", func(t *testing.T) {
		f := newConnFixture(t)
		h := f.connect()
		h.sendErr = errors.New("broken pipe")

		err := f.manager.Publish(testSendDest, types.Payload{Sender: testUsername, Content: "hi", Type: types.TypeChat})
		require.Error(t, err)
		assert.Equal(t, float64(1), f.registry.CounterValue(metrics.PublishFailures))
	})

	t.Run("invalid payload", func(t *testing.T) {
		f := newConnFixture(t)
		f.connect()

		err := f.manager.Publish(testSendDest, types.Payload{Sender: testUsername, Type: "PING"})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}

func TestConnectionManager_DisconnectAnnouncesLeave(t *testing.T) {
	f := newConnFixture(t)
	h := f.connect()

	done := f.manager.Disconnect()

	select {
	case <-done:
	default:
		t.Fatal("disconnect did not complete")
	}

	frames := h.frames()
	require.Len(t, frames, 2)
	assert.Equal(t, testSendDest, frames[1].Destination)
	assert.JSONEq(t, `{"sender":"User_42","type":"LEAVE"}`, frames[1].Body)
	assert.True(t, h.isClosed())
	assert.Equal(t, models.StateDisconnected, f.manager.State())

	h.dropped(nil)
	f.clock.Flush()
	assert.Equal(t, models.StateDisconnected, f.manager.State())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestConnectionManager_DisconnectWhileReconnecting(t *testing.T) {
	f := newConnFixture(t)
	h := f.connect()
	h.dropped(errSocketClosed)
	f.clock.Flush()
	require.Equal(t, 1, f.clock.Pending())

	<-f.manager.Disconnect()

	assert.Equal(t, models.StateDisconnected, f.manager.State())
	assert.Equal(t, 0, f.clock.Pending())
	assert.Len(t, h.frames(), 1, "no LEAVE when not connected")
}

func TestConnectionManager_StateListeners(t *testing.T) {
	f := newConnFixture(t)
	var states []models.ConnectionState
	f.manager.OnStateChange(func(s models.ConnectionStatus) { states = append(states, s.State) })

	h := f.connect()
	h.dropped(errSocketClosed)
	f.clock.Flush()

	assert.Equal(t, []models.ConnectionState{
		models.StateConnecting,
		models.StateConnected,
		models.StateReconnecting,
	}, states)
}

func TestConnectionManager_NotifiesSink(t *testing.T) {
	f := newConnFixture(t)
	sink := &mockSink{}
	sink.On("Notify", "Connected to chat", notify.LevelSuccess).Once()
	sink.On("Notify", mock.MatchedBy(func(msg string) bool {
		return msg == "Connection lost. Reconnecting in 3s"
	}), notify.LevelError).Once()
	f.manager.sink = sink

	h := f.connect()
	h.dropped(errSocketClosed)
	f.clock.Flush()

	sink.AssertExpectations(t)
}
