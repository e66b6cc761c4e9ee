package dispatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/contrabot-io/contrabot/internal/booking"
	"github.com/contrabot-io/contrabot/internal/connector"
	"github.com/contrabot-io/contrabot/internal/dialogue"
	"github.com/contrabot-io/contrabot/internal/directory"
	"github.com/contrabot-io/contrabot/internal/userstore"
)

type sentMessage struct {
	Text  string
	Asset string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(_ context.Context, msg connector.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Text: msg.Content, Asset: msg.Asset})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeSender) last() sentMessage {
	msgs := f.messages()
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

type fakeCities struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCities) List(context.Context) []directory.City {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	cities := directory.Fallback()
	return cities
}

func (f *fakeCities) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExec struct {
	mu     sync.Mutex
	calls  int
	from   directory.City
	to     directory.City
	result string
	err    error
}

func (f *fakeExec) Execute(_ context.Context, _ userstore.Profile, from, to directory.City, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.from, f.to = from, to
	return f.result, f.err
}

func (f *fakeExec) execCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fixedNow is inside the already-open booking window for travel 2099-01-01
// (the window opens at 2098-12-25 midnight Rome time).
var fixedNow = time.Date(2098, 12, 26, 12, 0, 0, 0, booking.Timezone())

type harness struct {
	d      *Dispatcher
	sender *fakeSender
	cities *fakeCities
	exec   *fakeExec
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))

	cities := &fakeCities{}
	exec := &fakeExec{result: "Ticket booked from Camerino to Ancona Piazza Cavour on 2099-01-01\nAn email will be sent to: mario@unicam.it"}
	users := userstore.NewStore(filepath.Join(t.TempDir(), "users.json"))
	waiter := &booking.Waiter{
		Interval: 10 * time.Millisecond,
		Buffer:   0,
		Now:      func() time.Time { return fixedNow },
		Logger:   logger,
	}

	d := New(cities, users, dialogue.NewStore(), exec, waiter, nil, logger)
	d.Now = func() time.Time { return fixedNow }

	sender := &fakeSender{}
	d.RegisterSender("test", sender)
	return &harness{d: d, sender: sender, cities: cities, exec: exec}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func (h *harness) registerProfile(t *testing.T, identity string) {
	t.Helper()
	err := h.d.Users.Put(identity, userstore.Profile{
		PersonalEmail: "mario.rossi@gmail.com",
		FirstName:     "Mario",
		LastName:      "Rossi",
		Email:         "mario@unicam.it",
		Phone:         "3331234567",
	})
	if err != nil {
		t.Fatalf("register profile: %v", err)
	}
}

func (h *harness) event(text string) connector.InboundMessage {
	return connector.InboundMessage{Channel: "test", SenderID: "u1", ChatID: "c1", Content: text}
}

func TestBookTicketSuccess(t *testing.T) {
	h := newHarness(t)
	h.registerProfile(t, "u1")

	h.d.handleEvent(context.Background(), h.event("/bookticket 24 38 2099-01-01"))

	if got := h.exec.execCalls(); got != 1 {
		t.Fatalf("executor calls = %d, want 1", got)
	}
	if h.exec.from.ID != 24 || h.exec.to.ID != 38 {
		t.Errorf("executor cities = %d → %d, want 24 → 38", h.exec.from.ID, h.exec.to.ID)
	}
	last := h.sender.last()
	if !strings.Contains(last.Text, "Ticket booked") {
		t.Errorf("final reply = %q, want booking confirmation", last.Text)
	}
	if last.Asset != "success_cat" {
		t.Errorf("final asset = %q, want success_cat", last.Asset)
	}
}

func TestBookTicketUnknownCity(t *testing.T) {
	h := newHarness(t)
	h.registerProfile(t, "u1")

	h.d.handleEvent(context.Background(), h.event("/bookticket 1 38 2099-01-01"))

	if got := h.exec.execCalls(); got != 0 {
		t.Fatalf("executor calls = %d, want 0", got)
	}
	if last := h.sender.last(); !strings.Contains(last.Text, "not found") {
		t.Errorf("reply = %q, want city-not-found message", last.Text)
	}
}

func TestBookTicketBadDateSkipsNetwork(t *testing.T) {
	h := newHarness(t)
	h.registerProfile(t, "u1")

	h.d.handleEvent(context.Background(), h.event("/bookticket 24 38 99-1-1"))

	if got := h.exec.execCalls(); got != 0 {
		t.Errorf("executor calls = %d, want 0", got)
	}
	if got := h.cities.listCalls(); got != 0 {
		t.Errorf("city list calls = %d, want 0 (date check comes first)", got)
	}
	if last := h.sender.last(); !strings.Contains(last.Text, "Invalid date format") {
		t.Errorf("reply = %q, want date-format error", last.Text)
	}
}

func TestBookTicketBadArity(t *testing.T) {
	h := newHarness(t)
	h.d.handleEvent(context.Background(), h.event("/bookticket 24 38"))

	last := h.sender.last()
	if !strings.Contains(last.Text, "Invalid command syntax") {
		t.Errorf("reply = %q, want syntax error", last.Text)
	}
	if last.Asset != "error_cat_invalid_syntax" {
		t.Errorf("asset = %q, want error_cat_invalid_syntax", last.Asset)
	}
}

func TestBookTicketTooSoon(t *testing.T) {
	h := newHarness(t)
	h.registerProfile(t, "u1")

	h.d.handleEvent(context.Background(), h.event("/bookticket 24 38 2098-12-27"))

	if got := h.exec.execCalls(); got != 0 {
		t.Errorf("executor calls = %d, want 0", got)
	}
	if last := h.sender.last(); !strings.Contains(last.Text, "one day of notice") {
		t.Errorf("reply = %q, want too-soon error", last.Text)
	}
}

func TestBookTicketNoProfile(t *testing.T) {
	h := newHarness(t)
	h.d.handleEvent(context.Background(), h.event("/bookticket 24 38 2099-01-01"))

	if got := h.exec.execCalls(); got != 0 {
		t.Errorf("executor calls = %d, want 0", got)
	}
	if last := h.sender.last(); !strings.Contains(last.Text, "/createuser") {
		t.Errorf("reply = %q, want register hint", last.Text)
	}
}

func TestBookTicketExecutorFailure(t *testing.T) {
	h := newHarness(t)
	h.registerProfile(t, "u1")
	h.exec.err = context.DeadlineExceeded

	h.d.handleEvent(context.Background(), h.event("/bookticket 24 38 2099-01-01"))

	last := h.sender.last()
	if !strings.Contains(last.Text, "Booking failed") {
		t.Errorf("reply = %q, want failure message", last.Text)
	}
	if last.Asset != "error_cat" {
		t.Errorf("asset = %q, want error_cat", last.Asset)
	}
}

func TestDialogueRegistersProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.handleEvent(ctx, h.event("/createuser"))
	for _, answer := range []string{"Mario", "Rossi", "3331234567", "mario.rossi@gmail.com", "mario@unicam.it"} {
		h.d.handleEvent(ctx, h.event(answer))
	}

	profile, err := h.d.Users.Get("u1")
	if err != nil {
		t.Fatalf("profile not saved: %v", err)
	}
	if profile.FirstName != "Mario" || profile.Email != "mario@unicam.it" || profile.Phone != "3331234567" {
		t.Errorf("saved profile = %+v", profile)
	}
	if last := h.sender.last(); !strings.Contains(last.Text, "User created successfully") {
		t.Errorf("reply = %q, want creation confirmation", last.Text)
	}
	if h.d.States.Get("u1").Stage.Awaiting() {
		t.Error("dialogue state should be reset after completion")
	}
}

func TestDialogueNonTextAnswer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.handleEvent(ctx, h.event("/createuser"))
	h.d.handleEvent(ctx, h.event("")) // sticker, photo, etc.

	if last := h.sender.last(); last.Text != "Send me plain text." {
		t.Errorf("reply = %q, want plain-text prompt", last.Text)
	}
	if h.d.States.Get("u1").Stage != dialogue.StageFirstName {
		t.Error("non-text answer must not advance the dialogue")
	}
}

func TestNonTextOutsideDialogueIgnored(t *testing.T) {
	h := newHarness(t)
	h.d.handleEvent(context.Background(), h.event(""))

	if got := len(h.sender.messages()); got != 0 {
		t.Errorf("sent %d messages, want 0", got)
	}
}

func TestCommandInterruptsDialogue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.handleEvent(ctx, h.event("/createuser"))
	h.d.handleEvent(ctx, h.event("/getcities"))

	if last := h.sender.last(); !strings.Contains(last.Text, "Bookable cities") {
		t.Errorf("reply = %q, want city list", last.Text)
	}
}

func TestCancelResetsDialogue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.handleEvent(ctx, h.event("/createuser"))
	h.d.handleEvent(ctx, h.event("Mario"))
	h.d.handleEvent(ctx, h.event("/cancel"))

	if h.d.States.Get("u1").Stage.Awaiting() {
		t.Error("cancel must reset the dialogue")
	}
	if last := h.sender.last(); !strings.Contains(last.Text, "Operation cancelled") {
		t.Errorf("reply = %q, want cancellation confirmation", last.Text)
	}
}

func TestCancelWithNothingActive(t *testing.T) {
	h := newHarness(t)
	h.d.handleEvent(context.Background(), h.event("/cancel"))

	last := h.sender.last()
	if !strings.Contains(last.Text, "No active operation") {
		t.Errorf("reply = %q, want no-op notice", last.Text)
	}
	if last.Asset != "sleepy_cat" {
		t.Errorf("asset = %q, want sleepy_cat", last.Asset)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	h.d.handleEvent(context.Background(), h.event("/frobnicate now"))

	if last := h.sender.last(); !strings.Contains(last.Text, "Invalid command syntax") {
		t.Errorf("reply = %q, want syntax error", last.Text)
	}
}

func TestFreeTextOutsideDialogue(t *testing.T) {
	h := newHarness(t)
	h.d.handleEvent(context.Background(), h.event("hello there"))

	if last := h.sender.last(); !strings.Contains(last.Text, "use commands") {
		t.Errorf("reply = %q, want command notice", last.Text)
	}
}

func TestGetAndDeleteUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.handleEvent(ctx, h.event("/getuser"))
	if last := h.sender.last(); !strings.Contains(last.Text, "No user registered yet") {
		t.Errorf("reply = %q, want not-registered message", last.Text)
	}

	h.registerProfile(t, "u1")
	h.d.handleEvent(ctx, h.event("/getuser"))
	if last := h.sender.last(); !strings.Contains(last.Text, "First Name: Mario") {
		t.Errorf("reply = %q, want profile display", last.Text)
	}

	h.d.handleEvent(ctx, h.event("/deleteuser"))
	if last := h.sender.last(); !strings.Contains(last.Text, "deleted successfully") {
		t.Errorf("reply = %q, want deletion confirmation", last.Text)
	}
	if _, err := h.d.Users.Get("u1"); err == nil {
		t.Error("profile should be gone after /deleteuser")
	}
}

// TestCancelPendingWait drives the real async path: the booking wait occupies
// the identity's turn, and /cancel arriving through HandleInbound aborts it
// at intake.
func TestCancelPendingWait(t *testing.T) {
	h := newHarness(t)
	h.registerProfile(t, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.d.Start(ctx)

	// Travel date whose window has not opened yet at fixedNow.
	if err := h.d.HandleInbound(ctx, h.event("/bookticket 24 38 2099-01-10")); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(h.d.Pending()) == 0 {
		select {
		case <-deadline:
			t.Fatal("booking never became pending")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := h.d.HandleInbound(ctx, h.event("/cancel")); err != nil {
		t.Fatalf("HandleInbound cancel: %v", err)
	}

	deadline = time.After(2 * time.Second)
	for {
		if last := h.sender.last(); strings.Contains(last.Text, "Booking cancelled") {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no cancellation reply; got %v", h.sender.messages())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := h.exec.execCalls(); got != 0 {
		t.Errorf("executor calls = %d, want 0 after cancel", got)
	}
	if got := len(h.d.Pending()); got != 0 {
		t.Errorf("pending bookings = %d, want 0", got)
	}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in, name, args string
	}{
		{"/bookticket 24 38 2099-01-01", "bookticket", "24 38 2099-01-01"},
		{"/help", "help", ""},
		{"/HELP", "help", ""},
		{"/cancel  ", "cancel", ""},
	}
	for _, tc := range cases {
		name, args := splitCommand(tc.in)
		if name != tc.name || args != tc.args {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", tc.in, name, args, tc.name, tc.args)
		}
	}
}
