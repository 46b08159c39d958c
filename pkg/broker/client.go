// Package broker implements a STOMP 1.2 client carried over WebSocket.
package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatline/pkg/broker/types"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	acceptVersions    = "1.2,1.1"
	jsonContentType   = "application/json"
	defaultReadLimit  = 1 << 20
	defaultWriteLimit = 5 * time.Second
)

var subprotocols = []string{"v12.stomp", "v11.stomp"}

var (
	// ErrNotConnected is returned by Subscribe and Send before CONNECTED arrives or after close
	ErrNotConnected = errors.New("stomp session not connected")
	// ErrInvalidEndpoint is returned by Open for endpoints that cannot be dialed
	ErrInvalidEndpoint = errors.New("invalid broker endpoint")
)

// BrokerError carries the contents of a STOMP ERROR frame
type BrokerError struct {
	Message string
	Body    string
}

func (e *BrokerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("broker error: %s", e.Message)
	}
	return fmt.Sprintf("broker error: %s: %s", e.Message, e.Body)
}

// ClientConfig configures the STOMP client
type ClientConfig struct {
	// Host is sent in the CONNECT frame. Defaults to the endpoint host.
	Host           string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

// Client opens STOMP sessions over WebSocket. It implements types.Transport.
type Client struct {
	config ClientConfig
	logger *logrus.Logger
}

var _ types.Transport = (*Client)(nil)

// NewClient creates a new STOMP client
func NewClient(config ClientConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteLimit
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = defaultReadLimit
	}
	return &Client{config: config, logger: logger}
}

// Open starts connecting to endpoint in the background. The outcome is reported through events.
func (c *Client) Open(endpoint string, events types.Events) (types.Handle, error) {
	host, err := endpointHost(endpoint)
	if err != nil {
		return nil, err
	}
	if c.config.Host != "" {
		host = c.config.Host
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		client: c,
		events: events,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
		done:   make(chan struct{}),
	}
	go s.run(endpoint, host)
	return s, nil
}

func endpointHost(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return u.Hostname(), nil
}

type session struct {
	client *Client
	events types.Events
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	closing   bool
	subs      map[string]*subscription

	reportOnce sync.Once
}

func (s *session) logger() *logrus.Logger {
	return s.client.logger
}

func (s *session) run(endpoint, host string) {
	defer close(s.done)

	dialCtx, cancel := context.WithTimeout(s.ctx, s.client.config.ConnectTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{Subprotocols: subprotocols})
	if err != nil {
		s.reportError(fmt.Errorf("dial %s: %w", endpoint, err))
		return
	}
	ws.SetReadLimit(s.client.config.ReadLimit)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ws.CloseNow()
		return
	}
	s.ws = ws
	s.mu.Unlock()

	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, acceptVersions,
		frame.Host, host,
		frame.HeartBeat, "0,0",
	)
	if err := s.writeFrame(dialCtx, connect); err != nil {
		s.reportError(fmt.Errorf("send CONNECT: %w", err))
		s.closeSocket(websocket.StatusProtocolError)
		return
	}

	reply, err := s.readFrame(dialCtx)
	if err != nil {
		s.reportError(fmt.Errorf("await CONNECTED: %w", err))
		s.closeSocket(websocket.StatusProtocolError)
		return
	}
	switch reply.Command {
	case frame.CONNECTED:
	case frame.ERROR:
		s.reportError(brokerError(reply))
		s.closeSocket(websocket.StatusNormalClosure)
		return
	default:
		s.reportError(fmt.Errorf("expected CONNECTED, got %s", reply.Command))
		s.closeSocket(websocket.StatusProtocolError)
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.connected = true
	s.mu.Unlock()

	s.logger().WithFields(logrus.Fields{
		"endpoint": endpoint,
		"version":  reply.Header.Get(frame.Version),
	}).Debug("STOMP session established")

	if s.events.OnOpen != nil {
		s.events.OnOpen()
	}
	s.readLoop()
}

func (s *session) readLoop() {
	for {
		f, err := s.readFrame(s.ctx)
		if err != nil {
			s.reportClose(err)
			return
		}

		switch f.Command {
		case frame.MESSAGE:
			s.dispatch(f)
		case frame.ERROR:
			s.reportError(brokerError(f))
			s.closeSocket(websocket.StatusNormalClosure)
			return
		case frame.RECEIPT:
		default:
			s.logger().WithField("command", f.Command).Debug("Ignoring unexpected STOMP frame")
		}
	}
}

func (s *session) dispatch(f *frame.Frame) {
	id := f.Header.Get(frame.Subscription)

	s.mu.Lock()
	sub, ok := s.subs[id]
	s.mu.Unlock()

	if !ok {
		s.logger().WithFields(logrus.Fields{
			"subscription": id,
			"destination":  f.Header.Get(frame.Destination),
		}).Debug("Dropping MESSAGE for unknown subscription")
		return
	}
	sub.fn(f.Body)
}

// readFrame returns the next non-heartbeat frame
func (s *session) readFrame(ctx context.Context) (*frame.Frame, error) {
	for {
		_, data, err := s.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		f, err := frame.NewReader(bytes.NewReader(data)).Read()
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		if f == nil {
			continue
		}
		return f, nil
	}
}

func (s *session) writeFrame(ctx context.Context, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return s.ws.Write(ctx, websocket.MessageText, buf.Bytes())
}

func (s *session) send(f *frame.Frame) error {
	s.mu.Lock()
	ready := s.connected && !s.closing
	s.mu.Unlock()
	if !ready {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.client.config.WriteTimeout)
	defer cancel()
	return s.writeFrame(ctx, f)
}

// Subscribe registers fn for MESSAGE frames arriving on topic
func (s *session) Subscribe(topic string, fn func(body []byte)) (types.Subscription, error) {
	sub := &subscription{
		id:      "sub-" + uuid.NewString(),
		topic:   topic,
		fn:      fn,
		session: s,
	}

	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		frame.Id, sub.id,
		frame.Destination, topic,
		frame.Ack, "auto",
	)
	if err := s.send(f); err != nil {
		s.mu.Lock()
		delete(s.subs, sub.id)
		s.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

// Send publishes body to destination. content-type defaults to JSON.
func (s *session) Send(destination string, headers map[string]string, body string) error {
	f := frame.New(frame.SEND, frame.Destination, destination)
	for k, v := range headers {
		f.Header.Set(k, v)
	}
	if _, ok := f.Header.Contains(frame.ContentType); !ok {
		f.Header.Set(frame.ContentType, jsonContentType)
	}
	f.Header.Set(frame.ContentLength, fmt.Sprintf("%d", len(body)))
	f.Body = []byte(body)
	return s.send(f)
}

// Close sends DISCONNECT when possible and closes the socket. Close events are not reported
// for a session closed by its owner.
func (s *session) Close(done func()) {
	s.mu.Lock()
	alreadyClosing := s.closing
	s.closing = true
	wasConnected := s.connected
	s.connected = false
	ws := s.ws
	s.mu.Unlock()

	if alreadyClosing {
		if done != nil {
			go func() {
				<-s.done
				done()
			}()
		}
		return
	}

	go func() {
		if wasConnected && ws != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.client.config.WriteTimeout)
			if err := s.writeFrame(ctx, frame.New(frame.DISCONNECT)); err != nil {
				s.logger().WithError(err).Debug("DISCONNECT not delivered")
			}
			cancel()
		}
		if ws != nil {
			if err := ws.Close(websocket.StatusNormalClosure, ""); err != nil {
				s.logger().WithError(err).Debug("WebSocket close returned error")
			}
		}
		s.cancel()
		<-s.done
		if done != nil {
			done()
		}
	}()
}

func (s *session) closeSocket(code websocket.StatusCode) {
	s.mu.Lock()
	s.connected = false
	ws := s.ws
	s.mu.Unlock()
	if ws != nil {
		_ = ws.Close(code, "")
	}
	s.cancel()
}

func (s *session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *session) reportError(err error) {
	if s.isClosing() {
		return
	}
	s.reportOnce.Do(func() {
		if s.events.OnError != nil {
			s.events.OnError(err)
		}
	})
}

func (s *session) reportClose(err error) {
	if s.isClosing() {
		return
	}
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		err = nil
	}
	s.reportOnce.Do(func() {
		if s.events.OnClose != nil {
			s.events.OnClose(err)
		}
	})
}

func brokerError(f *frame.Frame) error {
	return &BrokerError{
		Message: f.Header.Get(frame.Message),
		Body:    strings.TrimSpace(string(f.Body)),
	}
}

type subscription struct {
	id      string
	topic   string
	fn      func(body []byte)
	session *session
}

func (s *subscription) ID() string {
	return s.id
}

// Unsubscribe stops delivery and tells the broker when the session is still up
func (s *subscription) Unsubscribe() error {
	s.session.mu.Lock()
	delete(s.session.subs, s.id)
	s.session.mu.Unlock()

	err := s.session.send(frame.New(frame.UNSUBSCRIBE, frame.Id, s.id))
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}
