package types

// Events are the callbacks a transport handle reports its lifecycle through.
// They may be invoked from any goroutine; OnClose fires at most once per handle.
type Events struct {
	OnOpen  func()
	OnError func(err error)
	OnClose func(err error)
}

// Transport opens broker connections. Open returns immediately; the outcome is
// reported through events.
type Transport interface {
	Open(endpoint string, events Events) (Handle, error)
}

// Handle is one open (or opening) broker connection
type Handle interface {
	Subscribe(topic string, fn func(body []byte)) (Subscription, error)
	Send(destination string, headers map[string]string, body string) error
	// Close tears the connection down and calls done, if non-nil, once finished.
	// It is safe to call on an already closed handle.
	Close(done func())
}

// Subscription is an active topic subscription
type Subscription interface {
	ID() string
	Unsubscribe() error
}
