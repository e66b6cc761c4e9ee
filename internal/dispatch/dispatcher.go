// Package dispatch routes inbound chat events to command handlers and the
// registration dialogue, one sequential queue per chat identity.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/contrabot-io/contrabot/internal/booking"
	"github.com/contrabot-io/contrabot/internal/connector"
	"github.com/contrabot-io/contrabot/internal/dialogue"
	"github.com/contrabot-io/contrabot/internal/directory"
	"github.com/contrabot-io/contrabot/internal/history"
	"github.com/contrabot-io/contrabot/internal/userstore"
)

// inboxSize bounds the per-identity queue. When an identity's turn is
// occupied (a booking wait can hold it for days), excess messages are
// answered with a busy notice instead of blocking the connector.
const inboxSize = 16

// Sender delivers outbound messages for one connector channel.
type Sender interface {
	Send(ctx context.Context, msg connector.OutboundMessage) error
}

// Executor drives one validated booking attempt to completion.
type Executor interface {
	Execute(ctx context.Context, profile userstore.Profile, from, to directory.City, travel time.Time) (string, error)
}

// CityLister fetches the current stop list.
type CityLister interface {
	List(ctx context.Context) []directory.City
}

// Recorder persists booking-attempt audit records. May be nil.
type Recorder interface {
	Save(a history.Attempt) error
	SetStatus(id string, status history.Status, detail string) error
	ListRecent(identity string, limit int) ([]history.Attempt, error)
}

// Dispatcher owns command routing and the per-identity event queues.
type Dispatcher struct {
	Cities  CityLister
	Users   *userstore.Store
	States  *dialogue.Store
	Exec    Executor
	Waiter  *booking.Waiter
	History Recorder
	Logger  *slog.Logger
	Now     func() time.Time // injectable clock, defaults to time.Now

	mu      sync.Mutex
	senders map[string]Sender
	inboxes map[string]chan connector.InboundMessage
	pending map[string]*pendingBooking
	baseCtx context.Context
}

// New creates a dispatcher. Senders are registered separately per connector.
func New(cities CityLister, users *userstore.Store, states *dialogue.Store, exec Executor, waiter *booking.Waiter, hist Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Cities:  cities,
		Users:   users,
		States:  states,
		Exec:    exec,
		Waiter:  waiter,
		History: hist,
		Logger:  logger,
		senders: make(map[string]Sender),
		inboxes: make(map[string]chan connector.InboundMessage),
		pending: make(map[string]*pendingBooking),
	}
}

// RegisterSender binds a connector channel name to its outbound sender.
func (d *Dispatcher) RegisterSender(channel string, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[channel] = s
}

// Start sets the lifetime context for identity workers and blocks until it
// is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	d.baseCtx = ctx
	d.mu.Unlock()

	d.Logger.Info("dispatcher started")
	<-ctx.Done()
	d.Logger.Info("dispatcher stopped")
	return ctx.Err()
}

// HandleInbound enqueues one chat event for its identity's sequential queue.
// Events for the same identity are processed strictly in arrival order;
// identities never block each other.
//
// /cancel is special-cased here: while a booking wait occupies the
// identity's turn, the queue cannot reach a cancel command, so a pending
// wait is cancelled at intake. Every other event goes through the queue.
func (d *Dispatcher) HandleInbound(ctx context.Context, msg connector.InboundMessage) error {
	if strings.TrimSpace(msg.Content) == "/cancel" && d.CancelPending(msg.SenderID) {
		return nil // the occupied booking turn reports the cancellation
	}

	inbox := d.inbox(msg.SenderID)
	select {
	case inbox <- msg:
		return nil
	default:
		d.Logger.Warn("inbox full, rejecting event", "identity", msg.SenderID)
		d.reply(ctx, msg, "⏳ Still working on your previous request. Use /cancel to abort a pending booking.", "")
		return nil
	}
}

// inbox returns the identity's queue, starting its worker on first use.
func (d *Dispatcher) inbox(identity string) chan connector.InboundMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.inboxes[identity]; ok {
		return ch
	}
	ch := make(chan connector.InboundMessage, inboxSize)
	d.inboxes[identity] = ch

	ctx := d.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go d.runWorker(ctx, identity, ch)
	return ch
}

func (d *Dispatcher) runWorker(ctx context.Context, identity string, inbox <-chan connector.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("identity worker panicked", "identity", identity, "panic", r)
		}
	}()

	d.Logger.Debug("identity worker started", "identity", identity)
	for {
		select {
		case msg := <-inbox:
			d.handleEvent(ctx, msg)
		case <-ctx.Done():
			d.Logger.Debug("identity worker stopped", "identity", identity)
			return
		}
	}
}

// handleEvent processes one event: commands first, then dialogue free text.
func (d *Dispatcher) handleEvent(ctx context.Context, msg connector.InboundMessage) {
	state := d.States.Get(msg.SenderID)

	// Non-text message (empty content).
	if msg.Content == "" {
		if state.Stage.Awaiting() {
			d.reply(ctx, msg, "Send me plain text.", "")
		}
		return
	}

	// Commands always take precedence over dialogue text.
	if strings.HasPrefix(msg.Content, "/") {
		name, args := splitCommand(msg.Content)
		d.handleCommand(ctx, msg, name, args)
		return
	}

	if state.Stage.Awaiting() {
		d.advanceDialogue(ctx, msg, state)
		return
	}

	d.reply(ctx, msg, "⚠️ Please use commands to interact with me!\n\nAvailable commands:\n/help - Show all commands", "")
}

// splitCommand separates "/name args..." into name and the argument rest.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "/"))
	name, args, _ := strings.Cut(text, " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func (d *Dispatcher) reply(ctx context.Context, msg connector.InboundMessage, text, asset string) {
	d.mu.Lock()
	sender := d.senders[msg.Channel]
	d.mu.Unlock()

	if sender == nil {
		d.Logger.Warn("no sender for channel", "channel", msg.Channel)
		return
	}
	out := connector.OutboundMessage{ChatID: msg.ChatID, Content: text, Asset: asset}
	if err := sender.Send(ctx, out); err != nil {
		d.Logger.Error("send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
