package payments

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/store"
)

// DefaultMatchWindow bounds how long after assignment an expected amount
// remains matchable.
const DefaultMatchWindow = 30 * time.Minute

// Reconciler matches verified payment notifications to pending sessions and
// marks them paid exactly once.
type Reconciler struct {
	store  store.Store
	window time.Duration
	now    func() time.Time

	// mu serializes matching so a duplicate webhook delivery cannot claim the
	// same session twice.
	mu sync.Mutex
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithMatchWindow overrides the matching time window.
func WithMatchWindow(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.window = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(st store.Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{store: st, window: DefaultMatchWindow, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Match finds the unique pending session the payment event satisfies and
// marks it paid. It returns the matched phone number, or "" when no eligible
// session exists (including duplicate deliveries, which find the session
// already paid).
//
// A provider-supplied external reference that resolves through the reference
// store takes priority; amount matching within the time window is the
// fallback when no reference is present. A reference that resolves to an
// ineligible session ends the match without the amount fallback. First match
// wins; session iteration order is unspecified.
func (r *Reconciler) Match(ev models.PaymentEvent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ExternalRef != "" {
		phone, err := r.store.PhoneByRef(ev.ExternalRef)
		if err != nil {
			return "", fmt.Errorf("ref lookup failed: %w", err)
		}
		if phone != "" {
			matched, err := r.claim(phone)
			if err != nil {
				return "", err
			}
			if matched {
				slog.Info("Reconciler matched payment by reference", "phone", phone, "amount_cents", ev.AmountCents)
				return phone, nil
			}
			// The reference named a specific customer. Falling back to the
			// amount scan here could credit a different customer's payment,
			// so an ineligible referenced session ends the match.
			slog.Debug("Reconciler reference resolved but session not eligible", "phone", phone)
			return "", nil
		}
	}

	if ev.AmountCents <= 0 {
		return "", nil
	}

	sessions, err := r.store.ListSessions()
	if err != nil {
		return "", fmt.Errorf("session scan failed: %w", err)
	}

	cutoff := r.now().Add(-r.window)
	for _, sess := range sessions {
		if !sess.PaymentEligible() {
			continue
		}
		if sess.ExpectedAmountCents != ev.AmountCents {
			continue
		}
		if sess.PreviewCreatedAt.Before(cutoff) {
			slog.Debug("Reconciler amount matched outside window", "phone", sess.Phone, "assigned_at", sess.PreviewCreatedAt)
			continue
		}
		matched, err := r.claim(sess.Phone)
		if err != nil {
			return "", err
		}
		if matched {
			slog.Info("Reconciler matched payment by amount", "phone", sess.Phone, "amount_cents", ev.AmountCents)
			return sess.Phone, nil
		}
	}

	slog.Debug("Reconciler found no eligible session", "amount_cents", ev.AmountCents, "ref_set", ev.ExternalRef != "")
	return "", nil
}

// claim re-reads the session under the lock and flips it to paid if still
// eligible. Returns false when another delivery already claimed it.
func (r *Reconciler) claim(phone string) (bool, error) {
	sess, err := r.store.GetSession(phone)
	if err != nil {
		return false, fmt.Errorf("session load for %s failed: %w", phone, err)
	}
	if sess == nil || !sess.PaymentEligible() {
		return false, nil
	}
	sess.PreviewPaid = true
	sess.PreviewPaymentPending = false
	sess.UpdatedAt = r.now()
	if err := r.store.SaveSession(*sess); err != nil {
		return false, fmt.Errorf("session save for %s failed: %w", phone, err)
	}
	return true, nil
}
