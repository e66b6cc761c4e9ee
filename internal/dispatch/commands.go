package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contrabot-io/contrabot/internal/booking"
	"github.com/contrabot-io/contrabot/internal/connector"
	"github.com/contrabot-io/contrabot/internal/dialogue"
	"github.com/contrabot-io/contrabot/internal/directory"
	"github.com/contrabot-io/contrabot/internal/history"
	"github.com/contrabot-io/contrabot/internal/userstore"
)

const helpText = `Available commands:
/start - Welcome message
/createuser - Register your traveler data
/getuser - Show your registered data
/deleteuser - Delete your registered data
/getcities - List bookable cities and their IDs
/bookticket <from_id> <to_id> <YYYY-MM-DD> - Book a ticket
/status - Show your recent booking attempts
/cancel - Cancel the current operation
/help - Show this message`

const invalidSyntaxText = "⚠️ Invalid command syntax. Use /help for command usage."

func (d *Dispatcher) handleCommand(ctx context.Context, msg connector.InboundMessage, name, args string) {
	switch name {
	case "start":
		d.States.Reset(msg.SenderID)
		d.reply(ctx, msg, "👋 Welcome! I can book your bus tickets as soon as the booking window opens.\n\nUse /help to see what I can do.", "")

	case "help":
		d.reply(ctx, msg, helpText, "")

	case "createuser":
		d.handleCreateUser(ctx, msg)

	case "getuser":
		d.handleGetUser(ctx, msg)

	case "deleteuser":
		d.handleDeleteUser(ctx, msg)

	case "getcities":
		d.handleGetCities(ctx, msg)

	case "bookticket":
		d.handleBookTicket(ctx, msg, args)

	case "status":
		d.handleStatus(ctx, msg)

	case "cancel":
		d.handleCancel(ctx, msg)

	default:
		d.reply(ctx, msg, invalidSyntaxText, "error_cat_invalid_syntax")
	}
}

func (d *Dispatcher) handleCreateUser(ctx context.Context, msg connector.InboundMessage) {
	state, prompt := dialogue.Begin()
	d.States.Set(msg.SenderID, state)
	d.reply(ctx, msg, prompt, "")
}

// advanceDialogue feeds one free-text answer into the registration
// conversation; the final answer persists the profile.
func (d *Dispatcher) advanceDialogue(ctx context.Context, msg connector.InboundMessage, state dialogue.State) {
	next, prompt, profile := dialogue.Advance(state, strings.TrimSpace(msg.Content))
	d.States.Set(msg.SenderID, next)

	if profile == nil {
		d.reply(ctx, msg, prompt, "")
		return
	}

	if err := d.Users.Put(msg.SenderID, *profile); err != nil {
		d.Logger.Error("profile save failed", "identity", msg.SenderID, "error", err)
		d.reply(ctx, msg, "❌ Failed to save your data. Please try again later.", "error_cat")
		return
	}
	d.Logger.Info("user registered", "identity", msg.SenderID)
	d.reply(ctx, msg, "✅ User created successfully!\n\n"+profile.String(), "success_cat")
}

func (d *Dispatcher) handleGetUser(ctx context.Context, msg connector.InboundMessage) {
	profile, err := d.Users.Get(msg.SenderID)
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		d.reply(ctx, msg, "❌ No user registered yet!\nUse /createuser to register.", "error_cat")
	case err != nil:
		d.Logger.Error("profile read failed", "identity", msg.SenderID, "error", err)
		d.reply(ctx, msg, "❌ Failed to access user data. Please try again later.", "error_cat")
	default:
		d.reply(ctx, msg, "Your registered data:\n\n"+profile.String(), "")
	}
}

func (d *Dispatcher) handleDeleteUser(ctx context.Context, msg connector.InboundMessage) {
	err := d.Users.Delete(msg.SenderID)
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		d.reply(ctx, msg, "❌ No user registered yet!\nUse /createuser to register.", "error_cat")
	case err != nil:
		d.Logger.Error("profile delete failed", "identity", msg.SenderID, "error", err)
		d.reply(ctx, msg, "❌ Failed to access user data. Please try again later.", "error_cat")
	default:
		d.Logger.Info("user deleted", "identity", msg.SenderID)
		d.reply(ctx, msg, "✅ User deleted successfully. Goodbye!", "bye")
	}
}

func (d *Dispatcher) handleGetCities(ctx context.Context, msg connector.InboundMessage) {
	cities := d.Cities.List(ctx)
	var b strings.Builder
	b.WriteString("🏙 Bookable cities:\n\n")
	for _, c := range cities {
		fmt.Fprintf(&b, "%d. %s\n", c.ID, c.Name)
	}
	b.WriteString("\nUse /bookticket <from_id> <to_id> <YYYY-MM-DD> to book.")
	d.reply(ctx, msg, b.String(), "")
}

func (d *Dispatcher) handleCancel(ctx context.Context, msg connector.InboundMessage) {
	// A pending wait is cancelled at intake before the event reaches the
	// queue; reaching this handler means the turn was free.
	if d.States.Get(msg.SenderID).Stage.Awaiting() {
		d.States.Reset(msg.SenderID)
		d.reply(ctx, msg, "✅ Operation cancelled. All progress has been reset.", "")
		return
	}
	d.reply(ctx, msg, "ℹ️ No active operation to cancel.", "sleepy_cat")
}

func (d *Dispatcher) handleStatus(ctx context.Context, msg connector.InboundMessage) {
	if d.History == nil {
		d.reply(ctx, msg, "ℹ️ Booking history is not enabled.", "")
		return
	}
	attempts, err := d.History.ListRecent(msg.SenderID, 5)
	if err != nil {
		d.Logger.Error("history read failed", "identity", msg.SenderID, "error", err)
		d.reply(ctx, msg, "❌ Failed to read booking history.", "error_cat")
		return
	}
	if len(attempts) == 0 {
		d.reply(ctx, msg, "ℹ️ No booking attempts yet.", "")
		return
	}

	var b strings.Builder
	b.WriteString("📋 Your recent booking attempts:\n\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "%s → %s on %s: %s", a.Origin, a.Destination, a.TravelDate, a.Status)
		if a.Detail != "" && a.Status == history.StatusFailed {
			fmt.Fprintf(&b, " (%s)", a.Detail)
		}
		b.WriteString("\n")
	}
	d.reply(ctx, msg, b.String(), "")
}

// handleBookTicket validates "/bookticket <from_id> <to_id> <date>" and runs
// the full attempt: local checks first, then city lookup, then the window
// wait, then the executor. Nothing touches the network until the arguments
// and date format have passed.
func (d *Dispatcher) handleBookTicket(ctx context.Context, msg connector.InboundMessage, args string) {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		d.reply(ctx, msg, invalidSyntaxText+"\n\nUsage: /bookticket <from_id> <to_id> <YYYY-MM-DD>", "error_cat_invalid_syntax")
		return
	}

	fromID, err := parseCityID(parts[0])
	if err != nil {
		d.reply(ctx, msg, "❌ Invalid departure city ID: "+parts[0], "error_cat_invalid_syntax")
		return
	}
	toID, err := parseCityID(parts[1])
	if err != nil {
		d.reply(ctx, msg, "❌ Invalid arrival city ID: "+parts[1], "error_cat_invalid_syntax")
		return
	}

	travel, err := booking.ParseDate(parts[2])
	if err != nil {
		d.reply(ctx, msg, "❌ Invalid date format. Use YYYY-MM-DD.", "error_cat_invalid_syntax")
		return
	}

	profile, err := d.Users.Get(msg.SenderID)
	if errors.Is(err, userstore.ErrNotFound) {
		d.reply(ctx, msg, "❌ No user registered yet!\nUse /createuser to register.", "error_cat")
		return
	}
	if err != nil {
		d.Logger.Error("profile read failed", "identity", msg.SenderID, "error", err)
		d.reply(ctx, msg, "❌ Failed to access user data. Please try again later.", "error_cat")
		return
	}

	cities := d.Cities.List(ctx)
	fromName, err := directory.Lookup(cities, fromID)
	if err != nil {
		d.reply(ctx, msg, fmt.Sprintf("❌ Departure city ID %d not found. Use /getcities for the list.", fromID), "error_cat")
		return
	}
	toName, err := directory.Lookup(cities, toID)
	if err != nil {
		d.reply(ctx, msg, fmt.Sprintf("❌ Arrival city ID %d not found. Use /getcities for the list.", toID), "error_cat")
		return
	}

	win := booking.ComputeWindow(travel)
	if err := win.Validate(d.now()); err != nil {
		d.reply(ctx, msg, "❌ Invalid travel date: bookings need more than one day of notice.", "error_cat")
		return
	}

	d.reply(ctx, msg, fmt.Sprintf("🚌 Booking ticket from %s to %s on %s.\nPlease wait... ⏳", fromName, toName, parts[2]), "")

	attemptID := uuid.NewString()
	d.recordAttempt(history.Attempt{
		ID:            attemptID,
		Identity:      msg.SenderID,
		Channel:       msg.Channel,
		OriginID:      fromID,
		DestinationID: toID,
		Origin:        fromName,
		Destination:   toName,
		TravelDate:    parts[2],
		Status:        history.StatusWaiting,
		CreatedAt:     d.now(),
	})

	waitCtx := d.trackPending(ctx, PendingInfo{
		AttemptID:   attemptID,
		Identity:    msg.SenderID,
		Channel:     msg.Channel,
		Origin:      fromName,
		Destination: toName,
		TravelDate:  parts[2],
		OpensAt:     win.OpensAt,
		StartedAt:   d.now(),
	})
	err = d.Waiter.Wait(waitCtx, win, func(opensAt time.Time) {
		d.reply(ctx, msg, fmt.Sprintf("Booking is not open yet. Waiting until %s to book your ticket... ⏳",
			opensAt.Format("2006-01-02 15:04")), "hourglass")
	})
	d.untrackPending(msg.SenderID)
	if err != nil {
		d.recordStatus(attemptID, history.StatusCancelled, "cancelled while waiting for the window")
		d.reply(ctx, msg, "🛑 Booking cancelled.", "sleepy_cat")
		return
	}

	d.recordStatus(attemptID, history.StatusRunning, "")
	from := directory.City{Name: fromName, ID: fromID}
	to := directory.City{Name: toName, ID: toID}

	result, err := d.Exec.Execute(ctx, profile, from, to, travel)
	if err != nil {
		d.Logger.Error("booking failed",
			"identity", msg.SenderID,
			"attempt_id", attemptID,
			"from", fromName,
			"to", toName,
			"error", err,
		)
		d.recordStatus(attemptID, history.StatusFailed, err.Error())
		d.reply(ctx, msg, fmt.Sprintf("❌ Booking failed: %v", err), "error_cat")
		return
	}

	d.Logger.Info("booking succeeded", "identity", msg.SenderID, "attempt_id", attemptID)
	d.recordStatus(attemptID, history.StatusSucceeded, "")
	d.reply(ctx, msg, "🎉 "+result, "success_cat")
}

func parseCityID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

func (d *Dispatcher) recordAttempt(a history.Attempt) {
	if d.History == nil {
		return
	}
	if err := d.History.Save(a); err != nil {
		d.Logger.Error("attempt record failed", "attempt_id", a.ID, "error", err)
	}
}

func (d *Dispatcher) recordStatus(id string, status history.Status, detail string) {
	if d.History == nil {
		return
	}
	if err := d.History.SetStatus(id, status, detail); err != nil {
		d.Logger.Error("attempt status update failed", "attempt_id", id, "error", err)
	}
}
