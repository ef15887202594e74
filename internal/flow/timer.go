package flow

import (
	"sync"
	"time"
)

// NudgeDelay is how long after the payment link goes out the one-shot
// re-engagement reminder fires, unless cancelled by a reply or a payment.
const NudgeDelay = 60 * time.Second

// Timer abstracts one-shot scheduling so tests can fire timers synchronously.
type Timer interface {
	// ScheduleAfter runs fn after delay and returns a cancel function.
	ScheduleAfter(delay time.Duration, fn func()) (cancel func())
}

// SimpleTimer implements Timer with time.AfterFunc.
type SimpleTimer struct{}

// NewSimpleTimer creates a SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{}
}

var _ Timer = (*SimpleTimer)(nil)

// ScheduleAfter runs fn after delay on a new goroutine.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) func() {
	timer := time.AfterFunc(delay, fn)
	return func() { timer.Stop() }
}

// NudgeRegistry keeps at most one pending re-engagement reminder per phone.
// Arming replaces any pending reminder; any inbound message or payment for
// the phone cancels it.
type NudgeRegistry struct {
	timer Timer
	delay time.Duration

	mu      sync.Mutex
	pending map[string]func()
}

// NewNudgeRegistry creates a registry firing after the default delay.
func NewNudgeRegistry(timer Timer) *NudgeRegistry {
	return &NudgeRegistry{timer: timer, delay: NudgeDelay, pending: make(map[string]func())}
}

// WithDelay overrides the reminder delay (tests).
func (r *NudgeRegistry) WithDelay(d time.Duration) *NudgeRegistry {
	r.delay = d
	return r
}

// Arm schedules fn for phone, replacing any pending reminder. The reminder
// disarms itself before running so it fires at most once.
func (r *NudgeRegistry) Arm(phone string, fn func()) {
	r.mu.Lock()
	if cancel, ok := r.pending[phone]; ok {
		cancel()
	}
	r.pending[phone] = r.timer.ScheduleAfter(r.delay, func() {
		r.Cancel(phone)
		fn()
	})
	r.mu.Unlock()
}

// Cancel disarms the pending reminder for phone, if any.
func (r *NudgeRegistry) Cancel(phone string) {
	r.mu.Lock()
	if cancel, ok := r.pending[phone]; ok {
		cancel()
		delete(r.pending, phone)
	}
	r.mu.Unlock()
}

// Pending reports whether a reminder is armed for phone.
func (r *NudgeRegistry) Pending(phone string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[phone]
	return ok
}
