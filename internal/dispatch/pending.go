package dispatch

import (
	"context"
	"time"
)

// pendingBooking is a booking attempt blocked in the open-window wait. At
// most one exists per identity, because the wait occupies the identity's
// sequential turn.
type pendingBooking struct {
	info   PendingInfo
	cancel context.CancelFunc
}

// PendingInfo describes one waiting booking for status surfaces.
type PendingInfo struct {
	AttemptID   string    `json:"attempt_id"`
	Identity    string    `json:"identity"`
	Channel     string    `json:"channel"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	TravelDate  string    `json:"travel_date"`
	OpensAt     time.Time `json:"opens_at"`
	StartedAt   time.Time `json:"started_at"`
}

// trackPending registers a waiting booking and returns the context the wait
// must run under.
func (d *Dispatcher) trackPending(ctx context.Context, info PendingInfo) context.Context {
	waitCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.pending[info.Identity] = &pendingBooking{info: info, cancel: cancel}
	d.mu.Unlock()
	return waitCtx
}

// untrackPending removes the identity's waiting booking, if any.
func (d *Dispatcher) untrackPending(identity string) {
	d.mu.Lock()
	p := d.pending[identity]
	delete(d.pending, identity)
	d.mu.Unlock()
	if p != nil {
		p.cancel()
	}
}

// CancelPending aborts the identity's waiting booking. It reports whether
// there was one to cancel.
func (d *Dispatcher) CancelPending(identity string) bool {
	d.mu.Lock()
	p := d.pending[identity]
	delete(d.pending, identity)
	d.mu.Unlock()

	if p == nil {
		return false
	}
	p.cancel()
	d.Logger.Info("pending booking cancelled", "identity", identity, "attempt_id", p.info.AttemptID)
	return true
}

// Pending lists all bookings currently blocked on their window.
func (d *Dispatcher) Pending() []PendingInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PendingInfo, 0, len(d.pending))
	for _, p := range d.pending {
		out = append(out, p.info)
	}
	return out
}
