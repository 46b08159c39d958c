package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"chatline/internal/constants"
	"chatline/internal/errors"
	"chatline/internal/media"
	"chatline/internal/metrics"
	"chatline/internal/models"
	"chatline/internal/notify"
	"chatline/internal/privacy"
	"chatline/internal/scheduler"
	"chatline/internal/security"
	"chatline/internal/store"
	"chatline/internal/tracing"
	"chatline/internal/validation"
	"chatline/pkg/broker/types"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Direction values for message logging
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

const voiceNoteContent = "Voice message"

// ChatService is the boundary between the chat engine and any view.
// Read methods are safe from any goroutine. Write methods run on the timeline and block
// until applied.
type ChatService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Listeners run on the timeline and must be registered before Start.
	OnMessage(fn func(models.Message))
	OnStateChange(fn func(models.ConnectionStatus))
	OnTyping(fn func(typing string))

	Username() string
	RoomName() string
	Now() time.Time
	State() models.ConnectionState
	ConnectionStatus() models.ConnectionStatus
	ConnectionMessage() string
	Messages() []models.Message
	Message(id int64) (models.Message, bool)
	Typing() string
	Participants() []string
	Search(text string) []models.Message
	Starred() []models.Message
	GroupByDate() []store.DateGroup
	ResolveReply(id int64) (models.Message, bool)
	PendingReply() (int64, bool)

	SendMessage(ctx context.Context, text string) (int64, error)
	StartEdit(ctx context.Context, id int64) error
	EditMessage(ctx context.Context, id int64, text string) error
	CancelEdit(ctx context.Context, id int64) error
	DeleteMessage(ctx context.Context, id int64) error
	ToggleReaction(ctx context.Context, id int64, emoji string) error
	ToggleStar(ctx context.Context, id int64) error
	ForwardMessage(ctx context.Context, id int64) (int64, error)
	ReplyTo(ctx context.Context, id int64) error
	CancelReply(ctx context.Context) error
	RetryConnection(ctx context.Context) error
	ClearChat(ctx context.Context) error
	AttachFile(ctx context.Context, path string) (int64, error)
	SendVoiceNote(ctx context.Context, duration time.Duration) (int64, error)
	SetTypingEnabled(ctx context.Context, enabled bool) error
}

// ChatServiceConfig holds the identity and routing used by the chat service
type ChatServiceConfig struct {
	Username        string
	RoomName        string
	SendDestination string
	MediaBaseDir    string
	Verbose         bool
}

type chatService struct {
	runner    scheduler.Runner
	conn      *ConnectionManager
	store     *store.Store
	status    *StatusSimulator
	typing    *TypingSimulator
	media     media.Router
	sink      notify.Sink
	registry  *metrics.Registry
	logger    *logrus.Logger
	errLogger *errors.Logger
	config    ChatServiceConfig
	logCtx    context.Context

	listeners []func(models.Message)

	mu      sync.RWMutex
	replyTo *int64
}

// NewChatService wires the connection manager, store and simulators together
func NewChatService(
	runner scheduler.Runner,
	conn *ConnectionManager,
	st *store.Store,
	status *StatusSimulator,
	typing *TypingSimulator,
	mediaRouter media.Router,
	sink notify.Sink,
	registry *metrics.Registry,
	logger *logrus.Logger,
	config ChatServiceConfig,
) ChatService {
	if sink == nil {
		sink = notify.Discard
	}
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	if config.SendDestination == "" {
		config.SendDestination = constants.DefaultSendDestination
	}
	if config.RoomName == "" {
		config.RoomName = constants.DefaultRoomName
	}

	s := &chatService{
		runner:    runner,
		conn:      conn,
		store:     st,
		status:    status,
		typing:    typing,
		media:     mediaRouter,
		sink:      sink,
		registry:  registry,
		logger:    logger,
		errLogger: errors.FromLogrus(logger),
		config:    config,
		logCtx:    WithVerbose(context.Background(), config.Verbose),
	}
	conn.OnMessage(s.receive)
	return s
}

func (s *chatService) Start(ctx context.Context) error {
	return s.do(ctx, "start", func() error {
		s.logger.WithFields(logrus.Fields{
			LogFieldUsername: privacy.MaskSender(s.config.Username),
			LogFieldRoom:     s.config.RoomName,
		}).Info("Starting chat service")
		s.conn.Connect()
		s.typing.Start()
		return nil
	})
}

func (s *chatService) Stop(ctx context.Context) error {
	var closed <-chan struct{}
	err := s.do(ctx, "stop", func() error {
		s.status.Stop()
		s.typing.Stop()
		closed = s.conn.Disconnect()
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case <-closed:
		s.logger.Info("Chat service stopped")
		return nil
	case <-ctx.Done():
		return errors.NewTimeoutError("disconnect", "context deadline")
	}
}

func (s *chatService) OnMessage(fn func(models.Message)) {
	s.listeners = append(s.listeners, fn)
}

func (s *chatService) OnStateChange(fn func(models.ConnectionStatus)) {
	s.conn.OnStateChange(fn)
}

func (s *chatService) OnTyping(fn func(typing string)) {
	s.typing.OnChange(fn)
}

// appended reports a newly stored message to listeners
func (s *chatService) appended(id int64) {
	s.recordStoreSize()
	if len(s.listeners) == 0 {
		return
	}
	msg, ok := s.store.Get(id)
	if !ok {
		return
	}
	for _, fn := range s.listeners {
		fn(msg)
	}
}

func (s *chatService) Username() string { return s.config.Username }
func (s *chatService) RoomName() string { return s.config.RoomName }
func (s *chatService) Now() time.Time   { return s.runner.Now() }

func (s *chatService) State() models.ConnectionState {
	return s.conn.State()
}

func (s *chatService) ConnectionStatus() models.ConnectionStatus {
	return s.conn.Status()
}

func (s *chatService) ConnectionMessage() string {
	return s.conn.Status().Message
}

func (s *chatService) Messages() []models.Message {
	return s.store.Snapshot()
}

func (s *chatService) Message(id int64) (models.Message, bool) {
	return s.store.Get(id)
}

func (s *chatService) Typing() string {
	return s.typing.Typing()
}

func (s *chatService) Participants() []string {
	return s.typing.Roster()
}

func (s *chatService) Search(text string) []models.Message {
	return s.store.Search(text)
}

func (s *chatService) Starred() []models.Message {
	return s.store.Starred()
}

func (s *chatService) GroupByDate() []store.DateGroup {
	return s.store.GroupByDate(s.runner.Now())
}

func (s *chatService) ResolveReply(id int64) (models.Message, bool) {
	return s.store.ResolveReply(id)
}

func (s *chatService) PendingReply() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.replyTo == nil {
		return 0, false
	}
	return *s.replyTo, true
}

func (s *chatService) SendMessage(ctx context.Context, text string) (int64, error) {
	if err := validation.ValidateContent(text); err != nil {
		return 0, err
	}

	var id int64
	err := s.do(ctx, "send message", func() error {
		id = s.store.Append(models.Message{
			Sender:  s.config.Username,
			Content: text,
			Kind:    models.KindChat,
			Origin:  models.OriginLocal,
			Status:  models.StatusSending,
			ReplyTo: s.takeReply(),
		})
		s.appended(id)

		msg, _ := s.store.Get(id)
		LogMessageProcessing(s.logCtx, s.logger, DirectionOutbound, msg)

		s.publishChat(id, text)
		return nil
	})
	return id, err
}

// publishChat sends a CHAT frame for a stored local message and starts its status
// simulation. A message that cannot be published stays at Sending.
func (s *chatService) publishChat(id int64, text string) {
	payload := types.Payload{Sender: s.config.Username, Content: text, Type: types.TypeChat}
	if err := s.conn.Publish(s.config.SendDestination, payload); err != nil {
		if errors.HasCode(err, errors.ErrCodePublishWhileDisconnected) {
			s.errLogger.LogWarn(err, "Message kept locally", logrus.Fields{LogFieldMessageID: id})
		} else {
			s.errLogger.LogError(err, "Failed to publish message", logrus.Fields{LogFieldMessageID: id})
		}
		s.sink.Notify(errors.GetUserMessage(err), notify.LevelError)
		return
	}
	s.status.Track(id)
}

func (s *chatService) StartEdit(ctx context.Context, id int64) error {
	return s.do(ctx, "start edit", func() error {
		if err := s.requireEditable(id); err != nil {
			return err
		}
		s.store.StartEdit(id)
		return nil
	})
}

// EditMessage replaces content. Blank text just leaves edit mode.
func (s *chatService) EditMessage(ctx context.Context, id int64, text string) error {
	return s.do(ctx, "edit message", func() error {
		if err := s.requireEditable(id); err != nil {
			return err
		}
		if !s.store.Edit(id, text) {
			s.store.CancelEdit(id)
			return nil
		}
		s.logger.WithField(LogFieldMessageID, id).Debug("Message edited")
		return nil
	})
}

func (s *chatService) CancelEdit(ctx context.Context, id int64) error {
	return s.do(ctx, "cancel edit", func() error {
		if _, ok := s.store.Get(id); !ok {
			return errors.NewNotFoundError("message", id)
		}
		s.store.CancelEdit(id)
		return nil
	})
}

func (s *chatService) requireEditable(id int64) error {
	m, ok := s.store.Get(id)
	if !ok {
		return errors.NewNotFoundError("message", id)
	}
	if m.Kind.IsPresence() {
		return errors.NewValidationError("message", "join and leave notices cannot be edited")
	}
	return nil
}

func (s *chatService) DeleteMessage(ctx context.Context, id int64) error {
	return s.do(ctx, "delete message", func() error {
		s.status.Cancel(id)
		if !s.store.Delete(id) {
			return errors.NewNotFoundError("message", id)
		}

		s.mu.Lock()
		if s.replyTo != nil && *s.replyTo == id {
			s.replyTo = nil
		}
		s.mu.Unlock()

		s.recordStoreSize()
		s.logger.WithField(LogFieldMessageID, id).Debug("Message deleted")
		return nil
	})
}

func (s *chatService) ToggleReaction(ctx context.Context, id int64, emoji string) error {
	if err := validation.ValidateEmoji(emoji); err != nil {
		return err
	}
	return s.do(ctx, "toggle reaction", func() error {
		if !s.store.ToggleReaction(id, emoji, s.config.Username) {
			return errors.NewNotFoundError("message", id)
		}
		return nil
	})
}

func (s *chatService) ToggleStar(ctx context.Context, id int64) error {
	return s.do(ctx, "toggle star", func() error {
		if !s.store.ToggleStar(id) {
			return errors.NewNotFoundError("message", id)
		}
		return nil
	})
}

// ForwardMessage copies a message as our own. Chat text is also published so the room
// sees it; attachments and voice notes stay local. A chat copy that could not be
// published stays at Sending.
func (s *chatService) ForwardMessage(ctx context.Context, id int64) (int64, error) {
	var fwd int64
	err := s.do(ctx, "forward message", func() error {
		src, ok := s.store.Get(id)
		if !ok {
			return errors.NewNotFoundError("message", id)
		}
		if src.Kind.IsPresence() {
			return errors.NewValidationError("message", "join and leave notices cannot be forwarded")
		}

		fwd, _ = s.store.Forward(id, s.config.Username)
		s.appended(fwd)

		if src.Kind == models.KindChat {
			payload := types.Payload{Sender: s.config.Username, Content: src.Content, Type: types.TypeChat}
			if err := s.conn.Publish(s.config.SendDestination, payload); err != nil {
				s.errLogger.LogWarn(err, "Forwarded message kept locally", logrus.Fields{LogFieldMessageID: fwd})
				return nil
			}
		}
		s.status.Track(fwd)
		return nil
	})
	return fwd, err
}

func (s *chatService) ReplyTo(ctx context.Context, id int64) error {
	return s.do(ctx, "reply", func() error {
		if _, ok := s.store.Get(id); !ok {
			return errors.NewNotFoundError("message", id)
		}
		s.mu.Lock()
		s.replyTo = &id
		s.mu.Unlock()
		return nil
	})
}

func (s *chatService) CancelReply(ctx context.Context) error {
	return s.do(ctx, "cancel reply", func() error {
		s.takeReply()
		return nil
	})
}

func (s *chatService) takeReply() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.replyTo
	s.replyTo = nil
	return target
}

func (s *chatService) RetryConnection(ctx context.Context) error {
	return s.do(ctx, "retry connection", func() error {
		s.logger.Info("Manual reconnect requested")
		s.conn.Connect()
		return nil
	})
}

func (s *chatService) ClearChat(ctx context.Context) error {
	return s.do(ctx, "clear chat", func() error {
		s.status.Stop()
		s.store.Clear()
		s.takeReply()
		s.recordStoreSize()
		s.sink.Notify("Chat cleared", notify.LevelInfo)
		return nil
	})
}

type fileCheck struct {
	header []byte
	size   int64
	err    error
}

// AttachFile reads the file header off the timeline, then appends a local File message.
func (s *chatService) AttachFile(ctx context.Context, path string) (int64, error) {
	resolved, err := security.ValidateFilePathWithBase(path, s.config.MediaBaseDir)
	if err != nil {
		return 0, errors.NewValidationError("path", err.Error())
	}
	if !s.media.IsAllowed(resolved) {
		return 0, errors.NewValidationError("path", "file type not allowed")
	}

	readCtx, cancel := context.WithTimeout(ctx, constants.DefaultAttachReadTimeoutMs*time.Millisecond)
	defer cancel()

	checks := make(chan fileCheck, 1)
	go func() {
		checks <- inspectFile(resolved)
	}()

	var check fileCheck
	select {
	case check = <-checks:
	case <-readCtx.Done():
		return 0, errors.NewTimeoutError("attach file", (constants.DefaultAttachReadTimeoutMs * time.Millisecond).String())
	}
	if check.err != nil {
		s.errLogger.LogWarn(check.err, "Attachment rejected", logrus.Fields{LogFieldFilePath: privacy.MaskFilePath(resolved)})
		return 0, check.err
	}
	if check.size > s.media.MaxSize() {
		return 0, errors.NewValidationError("path",
			fmt.Sprintf("file is %s, limit is %s", humanize.IBytes(uint64(check.size)), humanize.IBytes(uint64(s.media.MaxSize()))))
	}

	desc := s.media.Describe(resolved, check.header)

	var id int64
	err = s.do(ctx, "attach file", func() error {
		id = s.store.Append(models.Message{
			Sender:  s.config.Username,
			Content: desc.Name,
			Kind:    models.KindFile,
			Origin:  models.OriginLocal,
			Status:  models.StatusSending,
			Media:   &desc,
			ReplyTo: s.takeReply(),
		})
		s.appended(id)
		s.status.Track(id)

		s.logger.WithFields(logrus.Fields{
			LogFieldMessageID: id,
			LogFieldFilePath:  privacy.MaskFilePath(resolved),
			LogFieldMediaType: string(desc.Kind),
			LogFieldFileSize:  check.size,
		}).Info("File attached")
		return nil
	})
	return id, err
}

func inspectFile(path string) fileCheck {
	f, err := os.Open(path)
	if err != nil {
		return fileCheck{err: fileError(path, err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fileCheck{err: fileError(path, err)}
	}
	if info.IsDir() {
		return fileCheck{err: errors.NewValidationError("path", "path is a directory")}
	}

	header := make([]byte, constants.MimeSniffLength)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fileCheck{err: fileError(path, err)}
	}
	return fileCheck{header: header[:n], size: info.Size()}
}

func fileError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.NewNotFoundError("file", privacy.MaskFilePath(path))
	case os.IsPermission(err):
		return errors.NewPermissionDeniedError("file", err)
	default:
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to read file")
	}
}

// SendVoiceNote appends a local voice message of the given length
func (s *chatService) SendVoiceNote(ctx context.Context, duration time.Duration) (int64, error) {
	seconds := int(duration.Round(time.Second) / time.Second)
	if err := validation.ValidateNumericRange(seconds, "duration", 1, constants.MaxVoiceSeconds); err != nil {
		return 0, err
	}

	var id int64
	err := s.do(ctx, "send voice note", func() error {
		id = s.store.Append(models.Message{
			Sender:  s.config.Username,
			Content: voiceNoteContent,
			Kind:    models.KindVoice,
			Origin:  models.OriginLocal,
			Status:  models.StatusSending,
			Voice:   &models.Voice{DurationLabel: VoiceLabel(duration)},
			ReplyTo: s.takeReply(),
		})
		s.appended(id)
		s.status.Track(id)
		return nil
	})
	return id, err
}

// VoiceLabel renders a duration as m:ss
func VoiceLabel(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func (s *chatService) SetTypingEnabled(ctx context.Context, enabled bool) error {
	return s.do(ctx, "toggle typing", func() error {
		s.typing.SetEnabled(enabled)
		return nil
	})
}

// receive handles an inbound frame body on the timeline
func (s *chatService) receive(body []byte) {
	_, span := tracing.StartSpan(context.Background(), tracing.SpanReceive,
		attribute.Int("body.size", len(body)))
	defer span.End()

	receipt, err := s.store.ReceiveRemote(body, s.config.Username)
	if err != nil {
		span.RecordError(err)
		s.registry.IncrementCounter(metrics.DecodeFailures, nil, "Inbound frames that failed to decode")
		s.errLogger.LogWarn(err, "Dropped inbound frame")
		return
	}
	span.SetAttributes(attribute.String("message.kind", string(receipt.Kind)))

	if receipt.Discarded {
		s.registry.IncrementCounter(metrics.MessagesDeduplicated, nil, "Echoes of our own messages discarded")
		return
	}

	s.registry.IncrementCounter(metrics.MessagesReceived, map[string]string{"kind": string(receipt.Kind)}, "Inbound messages appended")
	s.appended(receipt.ID)

	switch receipt.Kind {
	case models.KindJoin:
		if receipt.Sender != s.config.Username {
			s.typing.Join(receipt.Sender)
		}
	case models.KindLeave:
		s.typing.Leave(receipt.Sender)
	}

	if msg, ok := s.store.Get(receipt.ID); ok {
		LogMessageProcessing(s.logCtx, s.logger, DirectionInbound, msg)
	}
}

func (s *chatService) recordStoreSize() {
	s.registry.SetGauge(metrics.StoreMessages, float64(s.store.Len()), nil, "Messages held in the chat log")
}

// do runs fn on the timeline and returns its error
func (s *chatService) do(ctx context.Context, op string, fn func() error) error {
	ctx, span := tracing.StartAction(ctx, op)
	defer span.End()

	var opErr error
	if err := s.runner.Do(ctx, func() { opErr = fn() }); err != nil {
		if ctx.Err() != nil {
			opErr = errors.NewTimeoutError(op, "context deadline")
		} else {
			opErr = errors.Wrap(err, errors.ErrCodeInternalError, op+" did not run")
		}
	}
	if opErr != nil {
		tracing.RecordError(ctx, opErr, attribute.String("error.code", string(errors.GetCode(opErr))))
	}
	return opErr
}
