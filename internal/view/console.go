// Package view renders the chat in a terminal and turns typed lines into chat actions.
package view

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatline/internal/errors"
	"chatline/internal/models"
	"chatline/internal/notify"
	"chatline/internal/service"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	timeLayout         = "15:04"
	unavailableMessage = "message unavailable"
	previewLength      = 40
)

const helpText = `Commands:
  <text>                 send a message
  /reply <id>            reply to a message with your next send
  /edit <id> [text]      start editing, or replace the text
  /cancel                cancel reply, edit or open menu
  /delete <id>           delete a message (asks to confirm)
  /react <id> [emoji]    toggle a reaction, or pick one
  /menu <id>             show actions for a message
  /star <id>             star or unstar a message
  /forward <id>          forward a message as your own
  /search <text>         search messages
  /starred               list starred messages
  /history               show the whole conversation
  /who                   list participants
  /attach <path>         attach a file
  /voice <seconds>       send a voice note
  /retry                 reconnect now
  /clear                 clear the chat
  /about                 about this room
  /quit                  leave the chat`

// Console is a line-oriented terminal view over a ChatService
type Console struct {
	svc     service.ChatService
	in      io.Reader
	logger  *logrus.Logger
	overlay *OverlayState

	editing int64

	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console reading commands from in and writing to out
func NewConsole(svc service.ChatService, in io.Reader, out io.Writer, logger *logrus.Logger) *Console {
	return &Console{
		svc:     svc,
		in:      in,
		out:     out,
		logger:  logger,
		overlay: NewOverlayState(),
	}
}

// Attach registers the console as a listener. Call it before the service starts.
func (c *Console) Attach() {
	c.svc.OnMessage(func(m models.Message) {
		if m.Origin == models.OriginRemote {
			c.println(c.FormatMessage(m))
		}
	})
	c.svc.OnStateChange(func(status models.ConnectionStatus) {
		c.println(fmt.Sprintf("* %s", status.Message))
	})
	c.svc.OnTyping(func(typing string) {
		if typing != "" {
			c.println(fmt.Sprintf("* %s is typing...", typing))
		}
	})
}

// Notify implements notify.Sink
func (c *Console) Notify(message string, level notify.Level) {
	c.println(fmt.Sprintf("[%s] %s", level, message))
}

// Overlay exposes the overlay state
func (c *Console) Overlay() *OverlayState {
	return c.overlay
}

// Run reads lines until /quit, end of input or ctx is done
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.println(fmt.Sprintf("Joined %s as %s. Type /help for commands.", c.svc.RoomName(), c.svc.Username()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if c.Handle(ctx, line) {
				return nil
			}
		}
	}
}

// Handle processes one input line and reports whether the user asked to quit
func (c *Console) Handle(ctx context.Context, line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		if c.overlay.IsOpen() {
			c.handleOverlayInput(ctx, strings.TrimSpace(line))
			return false
		}
		c.send(ctx, line)
		return false
	}

	cmd, rest, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return true
	case "help":
		c.println(helpText)
	case "reply":
		c.withID(rest, func(id int64, _ string) error {
			if err := c.svc.ReplyTo(ctx, id); err != nil {
				return err
			}
			c.println(fmt.Sprintf("Replying to %s", c.preview(id)))
			return nil
		})
	case "edit":
		c.withID(rest, func(id int64, text string) error {
			if text == "" {
				if err := c.svc.StartEdit(ctx, id); err != nil {
					return err
				}
				c.editing = id
				c.println(fmt.Sprintf("Editing #%d. Use /edit %d <text> to save or /cancel.", id, id))
				return nil
			}
			c.editing = 0
			return c.svc.EditMessage(ctx, id, text)
		})
	case "cancel", "no":
		c.cancel(ctx)
	case "yes":
		c.confirmDelete(ctx)
	case "delete":
		c.withID(rest, func(id int64, _ string) error {
			if _, ok := c.svc.Message(id); !ok {
				return errors.NewNotFoundError("message", id)
			}
			c.overlay.OpenModal(ModalDeleteConfirm, id)
			c.println(fmt.Sprintf("Delete %s? /yes or /no", c.preview(id)))
			return nil
		})
	case "react":
		c.withID(rest, func(id int64, emoji string) error {
			if emoji == "" {
				if _, ok := c.svc.Message(id); !ok {
					return errors.NewNotFoundError("message", id)
				}
				c.overlay.OpenReactionPicker(id)
				c.println(c.reactionChoices())
				return nil
			}
			return c.svc.ToggleReaction(ctx, id, emoji)
		})
	case "menu":
		c.withID(rest, func(id int64, _ string) error {
			if _, ok := c.svc.Message(id); !ok {
				return errors.NewNotFoundError("message", id)
			}
			c.overlay.OpenContextMenu(0, 0, id)
			c.println(c.menuChoices(id))
			return nil
		})
	case "star":
		c.withID(rest, func(id int64, _ string) error {
			return c.svc.ToggleStar(ctx, id)
		})
	case "forward":
		c.withID(rest, func(id int64, _ string) error {
			fwd, err := c.svc.ForwardMessage(ctx, id)
			if err != nil {
				return err
			}
			c.printMessage(fwd)
			return nil
		})
	case "search":
		c.printList(c.svc.Search(rest), "No messages match")
	case "starred":
		c.printList(c.svc.Starred(), "No starred messages")
	case "history":
		c.Render()
	case "who":
		c.println("Participants: " + strings.Join(c.svc.Participants(), ", "))
	case "attach":
		id, err := c.svc.AttachFile(ctx, rest)
		if c.report(err) {
			c.printMessage(id)
		}
	case "voice":
		seconds, err := strconv.Atoi(rest)
		if err != nil {
			c.println("Usage: /voice <seconds>")
			return false
		}
		id, err := c.svc.SendVoiceNote(ctx, time.Duration(seconds)*time.Second)
		if c.report(err) {
			c.printMessage(id)
		}
	case "retry":
		c.report(c.svc.RetryConnection(ctx))
	case "clear":
		c.report(c.svc.ClearChat(ctx))
	case "about":
		c.overlay.OpenModal(ModalAbout, 0)
		c.println(c.about())
	default:
		c.println(fmt.Sprintf("Unknown command /%s. Type /help.", cmd))
	}
	return false
}

func (c *Console) send(ctx context.Context, text string) {
	id, err := c.svc.SendMessage(ctx, text)
	if c.report(err) {
		c.printMessage(id)
	}
}

func (c *Console) cancel(ctx context.Context) {
	if c.overlay.IsOpen() {
		c.overlay.Dismiss()
		c.println("Cancelled")
		return
	}
	if c.editing != 0 {
		c.report(c.svc.CancelEdit(ctx, c.editing))
		c.editing = 0
		c.println("Edit cancelled")
		return
	}
	if _, ok := c.svc.PendingReply(); ok {
		c.report(c.svc.CancelReply(ctx))
		c.println("Reply cancelled")
	}
}

func (c *Console) confirmDelete(ctx context.Context) {
	id, ok := c.overlay.ConfirmDelete()
	if !ok {
		c.println("Nothing to confirm")
		return
	}
	if c.report(c.svc.DeleteMessage(ctx, id)) {
		c.println(fmt.Sprintf("Deleted #%d", id))
	}
}

// handleOverlayInput interprets a plain line as an answer to the open overlay
func (c *Console) handleOverlayInput(ctx context.Context, input string) {
	switch o := c.overlay.Current().(type) {
	case ContextMenu:
		action := MenuAction(strings.ToLower(input))
		if !validAction(action) {
			c.println(c.menuChoices(o.Target))
			return
		}
		c.overlay.Choose(action)
		c.applyAction(ctx, action, o.Target)
	case ReactionPicker:
		index, err := strconv.Atoi(input)
		if err != nil {
			c.println(c.reactionChoices())
			return
		}
		target, emoji, ok := c.overlay.PickReaction(index)
		if !ok {
			c.println(c.reactionChoices())
			return
		}
		c.report(c.svc.ToggleReaction(ctx, target, emoji))
	case Modal:
		switch {
		case o.Kind == ModalDeleteConfirm && strings.EqualFold(input, "yes"):
			c.confirmDelete(ctx)
		case o.Kind == ModalDeleteConfirm:
			c.overlay.Dismiss()
			c.println("Cancelled")
		default:
			c.overlay.Dismiss()
			c.send(ctx, input)
		}
	}
}

func (c *Console) applyAction(ctx context.Context, action MenuAction, target int64) {
	switch action {
	case ActionReply:
		c.Handle(ctx, fmt.Sprintf("/reply %d", target))
	case ActionEdit:
		c.Handle(ctx, fmt.Sprintf("/edit %d", target))
	case ActionStar:
		c.Handle(ctx, fmt.Sprintf("/star %d", target))
	case ActionForward:
		c.Handle(ctx, fmt.Sprintf("/forward %d", target))
	case ActionDelete:
		c.println(fmt.Sprintf("Delete %s? /yes or /no", c.preview(target)))
	case ActionReact:
		c.println(c.reactionChoices())
	}
}

func validAction(action MenuAction) bool {
	for _, a := range MenuActions {
		if a == action {
			return true
		}
	}
	return false
}

// withID parses "<id> [rest]" and runs fn, printing any error
func (c *Console) withID(args string, fn func(id int64, rest string) error) {
	idText, rest, _ := strings.Cut(args, " ")
	id, err := strconv.ParseInt(strings.TrimPrefix(idText, "#"), 10, 64)
	if err != nil || id <= 0 {
		c.println("Expected a message id, e.g. 12")
		return
	}
	c.report(fn(id, strings.TrimSpace(rest)))
}

// report prints err for the user and reports whether the action succeeded
func (c *Console) report(err error) bool {
	if err == nil {
		return true
	}
	c.logger.WithError(err).Debug("Console action failed")
	c.println("! " + errors.GetUserMessage(err))
	return false
}

// Render prints the whole conversation with date separators
func (c *Console) Render() {
	groups := c.svc.GroupByDate()
	if len(groups) == 0 {
		c.println("No messages yet")
		return
	}

	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "-- %s --\n", g.Label)
		for _, m := range g.Messages {
			b.WriteString(c.FormatMessage(m))
			b.WriteByte('\n')
		}
	}
	if typing := c.svc.Typing(); typing != "" {
		fmt.Fprintf(&b, "* %s is typing...\n", typing)
	}
	c.print(b.String())
}

// FormatMessage renders one message, with its reply preview when it has one
func (c *Console) FormatMessage(m models.Message) string {
	now := c.svc.Now()
	stamp := fmt.Sprintf("#%d %s, %s", m.ID, m.CreatedAt.In(now.Location()).Format(timeLayout),
		humanize.RelTime(m.CreatedAt, now, "ago", "from now"))

	if m.Kind.IsPresence() {
		return fmt.Sprintf("[%s] * %s", stamp, m.Content)
	}

	var b strings.Builder
	if m.ReplyTo != nil {
		fmt.Fprintf(&b, "    > %s\n", c.replyPreview(m.ID))
	}

	sender := m.Sender
	if m.Origin == models.OriginLocal {
		sender = "You"
	}
	fmt.Fprintf(&b, "[%s] %s: ", stamp, sender)
	if m.Forwarded {
		b.WriteString("(forwarded) ")
	}
	b.WriteString(body(m))
	if m.Editing {
		b.WriteString(" (editing)")
	}
	if m.Starred {
		b.WriteString(" *")
	}
	if m.Origin == models.OriginLocal {
		b.WriteString(" " + statusTicks(m.Status))
	}
	if len(m.Reactions) > 0 {
		b.WriteString("  " + reactions(m.Reactions))
	}
	return b.String()
}

func body(m models.Message) string {
	switch m.Kind {
	case models.KindFile:
		if m.Media != nil {
			return fmt.Sprintf("[%s] %s (%s)", m.Media.Kind, m.Media.Name, m.Media.MimeType)
		}
	case models.KindVoice:
		if m.Voice != nil {
			return fmt.Sprintf("[voice %s]", m.Voice.DurationLabel)
		}
	}
	return m.Content
}

func statusTicks(s models.DeliveryStatus) string {
	switch s {
	case models.StatusSent:
		return "✓"
	case models.StatusDelivered:
		return "✓✓"
	case models.StatusRead:
		return "✓✓ read"
	default:
		return "…"
	}
}

func reactions(r map[string][]string) string {
	keys := make([]string, 0, len(r))
	for emoji := range r {
		keys = append(keys, emoji)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, emoji := range keys {
		parts = append(parts, fmt.Sprintf("%s%d", emoji, len(r[emoji])))
	}
	return strings.Join(parts, " ")
}

func (c *Console) replyPreview(id int64) string {
	target, ok := c.svc.ResolveReply(id)
	if !ok {
		return unavailableMessage
	}
	return fmt.Sprintf("%s: %s", target.Sender, truncate(body(target), previewLength))
}

func (c *Console) preview(id int64) string {
	m, ok := c.svc.Message(id)
	if !ok {
		return fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("#%d %s: %s", id, m.Sender, truncate(body(m), previewLength))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (c *Console) reactionChoices() string {
	parts := make([]string, len(QuickReactions))
	for i, emoji := range QuickReactions {
		parts[i] = fmt.Sprintf("%d) %s", i+1, emoji)
	}
	return "React with: " + strings.Join(parts, "  ")
}

func (c *Console) menuChoices(id int64) string {
	names := make([]string, len(MenuActions))
	for i, a := range MenuActions {
		names[i] = string(a)
	}
	return fmt.Sprintf("%s\nActions: %s", c.preview(id), strings.Join(names, ", "))
}

func (c *Console) about() string {
	status := c.svc.ConnectionStatus()
	return fmt.Sprintf("%s\nSigned in as %s\nConnection: %s\nParticipants: %s\nMessages: %s",
		c.svc.RoomName(),
		c.svc.Username(),
		status.Message,
		strings.Join(c.svc.Participants(), ", "),
		humanize.Comma(int64(len(c.svc.Messages()))))
}

func (c *Console) printMessage(id int64) {
	if m, ok := c.svc.Message(id); ok {
		c.println(c.FormatMessage(m))
	}
}

func (c *Console) printList(msgs []models.Message, empty string) {
	if len(msgs) == 0 {
		c.println(empty)
		return
	}
	for _, m := range msgs {
		c.println(c.FormatMessage(m))
	}
}

func (c *Console) println(s string) {
	c.print(s + "\n")
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, s)
}
