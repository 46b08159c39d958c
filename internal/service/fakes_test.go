package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"chatline/internal/metrics"
	"chatline/internal/notify"
	"chatline/internal/retry"
	"chatline/internal/scheduler"
	"chatline/pkg/broker/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

var errSocketClosed = errors.New("socket closed")

const (
	testEndpoint = "ws://broker.test/ws"
	testTopic    = "/topic/public-chat"
	testSendDest = "/app/chat.sendMessage"
	testJoinDest = "/app/chat.addUser"
	testUsername = "User_42"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// sentFrame is one Send call observed by a fake handle
type sentFrame struct {
	Destination string
	Body        string
}

// fakeTransport hands out fakeHandles and lets tests drive their events
type fakeTransport struct {
	mu      sync.Mutex
	handles []*fakeHandle
	openErr error
}

func (t *fakeTransport) Open(endpoint string, events types.Events) (types.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	h := &fakeHandle{endpoint: endpoint, events: events}
	t.handles = append(t.handles, h)
	return h, nil
}

func (t *fakeTransport) opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

func (t *fakeTransport) last() *fakeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.handles) == 0 {
		return nil
	}
	return t.handles[len(t.handles)-1]
}

type fakeHandle struct {
	mu           sync.Mutex
	endpoint     string
	events       types.Events
	subs         map[string]func([]byte)
	subscribeErr error
	sendErr      error
	sent         []sentFrame
	closed       bool
}

func (h *fakeHandle) Subscribe(topic string, fn func(body []byte)) (types.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribeErr != nil {
		return nil, h.subscribeErr
	}
	if h.subs == nil {
		h.subs = make(map[string]func([]byte))
	}
	h.subs[topic] = fn
	return fakeSubscription{id: "sub-" + topic}, nil
}

func (h *fakeHandle) Send(destination string, _ map[string]string, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, sentFrame{Destination: destination, Body: body})
	return nil
}

func (h *fakeHandle) Close(done func()) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	if done != nil {
		done()
	}
}

func (h *fakeHandle) open()             { h.events.OnOpen() }
func (h *fakeHandle) fail(err error)    { h.events.OnError(err) }
func (h *fakeHandle) dropped(err error) { h.events.OnClose(err) }

func (h *fakeHandle) deliver(topic, body string) {
	h.mu.Lock()
	fn := h.subs[topic]
	h.mu.Unlock()
	if fn != nil {
		fn([]byte(body))
	}
}

func (h *fakeHandle) subscribed(topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[topic]
	return ok
}

func (h *fakeHandle) frames() []sentFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sentFrame(nil), h.sent...)
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeSubscription struct {
	id string
}

func (s fakeSubscription) ID() string         { return s.id }
func (s fakeSubscription) Unsubscribe() error { return nil }

// mockSink records notifications through testify expectations
type mockSink struct {
	mock.Mock
}

func (m *mockSink) Notify(message string, level notify.Level) {
	m.Called(message, level)
}

// connFixture wires a ConnectionManager to a fake transport and a manual clock
type connFixture struct {
	clock     *scheduler.Manual
	transport *fakeTransport
	sink      *notify.Recorder
	registry  *metrics.Registry
	manager   *ConnectionManager
}

func newConnFixture(t *testing.T) *connFixture {
	t.Helper()
	f := &connFixture{
		clock:     scheduler.NewManual(testEpoch),
		transport: &fakeTransport{},
		sink:      &notify.Recorder{},
		registry:  metrics.NewRegistry(),
	}
	f.manager = NewConnectionManager(
		f.transport,
		f.clock,
		retry.NewBackoff(retry.DefaultBackoffConfig()),
		f.sink,
		f.registry,
		newTestLogger(),
		ConnectionConfig{
			Endpoint:        testEndpoint,
			InboundTopic:    testTopic,
			SendDestination: testSendDest,
			JoinDestination: testJoinDest,
			Username:        testUsername,
		},
	)
	return f
}

// connect opens the current handle and flushes the timeline
func (f *connFixture) connect() *fakeHandle {
	f.manager.Connect()
	h := f.transport.last()
	h.open()
	f.clock.Flush()
	return h
}
