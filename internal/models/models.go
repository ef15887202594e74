// Package models defines the core data structures for the 3DFANS bot.
//
// It includes the per-customer session record, the inbound/outbound event
// types exchanged between the webhook layer and the conversation flow, and
// shared API response helpers.
package models

import (
	"errors"
	"time"
)

// Mode identifies the top-level conversation branch a customer is in.
type Mode string

const (
	// ModeNone means the customer has not chosen a branch yet.
	ModeNone Mode = ""
	// ModeMascot means the customer is browsing team mascots (catalog search).
	ModeMascot Mode = "mascote"
	// ModeFigurine means the customer is in the custom figurine flow.
	ModeFigurine Mode = "miniatura"
)

// MiniStyle identifies the figurine rendering style chosen by the customer.
type MiniStyle string

const (
	// StyleNone means no style has been chosen yet.
	StyleNone MiniStyle = ""
	// StyleRealistic is a premium realistic finish.
	StyleRealistic MiniStyle = "realista"
	// StylePixar is a stylized Pixar-like finish.
	StylePixar MiniStyle = "pixar"
	// StylePixarRealistic blends Pixar proportions with realistic texture.
	StylePixarRealistic MiniStyle = "pixar-realista"
	// StyleCartoon is a flat cartoon finish.
	StyleCartoon MiniStyle = "cartoon"
	// StyleAnime is an anime-inspired finish.
	StyleAnime MiniStyle = "anime"
)

// IsValidMiniStyle checks whether the given style is one of the supported options.
func IsValidMiniStyle(s MiniStyle) bool {
	switch s {
	case StyleRealistic, StylePixar, StylePixarRealistic, StyleCartoon, StyleAnime:
		return true
	default:
		return false
	}
}

// MiniSize identifies the figurine size chosen after the preview.
type MiniSize string

const (
	// SizeNone means no size has been chosen yet.
	SizeNone MiniSize = ""
	// Size16 is the 16cm figurine.
	Size16 MiniSize = "16cm"
	// Size21 is the 21cm figurine.
	Size21 MiniSize = "21cm"
)

// Error variables shared across modules for better error handling and testability.
var (
	ErrEmptyPhone       = errors.New("phone cannot be empty")
	ErrEmptyRef         = errors.New("reference token cannot be empty")
	ErrSessionNotFound  = errors.New("session not found")
	ErrRefNotFound      = errors.New("reference token not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNoImageReturned  = errors.New("image service returned no image data")
	ErrServiceStopped   = errors.New("messaging service has been stopped")
)

// Session is the per-customer conversation and payment state record.
//
// A session is keyed by the normalized phone number and owned exclusively by
// the session store. It is created on first inbound message, mutated on every
// transition and reset to defaults on a menu command; it is never deleted.
type Session struct {
	Phone         string `json:"phone"`
	Greeted       bool   `json:"greeted"`
	Mode          Mode   `json:"mode"`
	PhotoReceived bool   `json:"photo_received"`
	LastImageURL  string `json:"last_image_url,omitempty"`

	MiniStyle     MiniStyle `json:"mini_style,omitempty"`
	AwaitingStyle bool      `json:"awaiting_style"`
	MiniSize      MiniSize  `json:"mini_size,omitempty"`

	PreviewPaymentPending bool `json:"preview_payment_pending"`
	PreviewPaid           bool `json:"preview_paid"`
	PreviewSent           bool `json:"preview_sent"`

	// ExpectedAmountCents is the unique charge amount assigned to this
	// session, used to match anonymous payment notifications. Zero means
	// unassigned.
	ExpectedAmountCents int       `json:"expected_amount_cents,omitempty"`
	PreviewCreatedAt    time.Time `json:"preview_created_at,omitempty"`

	PreviewChargeSends  int       `json:"preview_charge_sends"`
	LastPreviewChargeAt time.Time `json:"last_preview_charge_at,omitempty"`

	PreviewRef         string `json:"preview_ref,omitempty"`
	PreviewCheckoutURL string `json:"preview_checkout_url,omitempty"`
	HumanHandoff       bool   `json:"human_handoff"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns a fresh session for the given normalized phone number.
func NewSession(phone string) Session {
	now := time.Now()
	return Session{Phone: phone, CreatedAt: now, UpdatedAt: now}
}

// Reset returns the session to its initial defaults, keeping only the phone
// identity and creation timestamp. Used by the menu command.
func (s *Session) Reset() {
	created := s.CreatedAt
	phone := s.Phone
	*s = Session{Phone: phone, Greeted: true, CreatedAt: created, UpdatedAt: time.Now()}
}

// PaymentEligible reports whether the session is waiting for a payment that
// reconciliation may match: payment pending, not yet paid, amount assigned.
func (s *Session) PaymentEligible() bool {
	return s.PreviewPaymentPending && !s.PreviewPaid && s.ExpectedAmountCents > 0
}

// Validate checks the session invariants that must hold after every
// transition. A paid session must carry both a style and a photo.
func (s *Session) Validate() error {
	if s.Phone == "" {
		return ErrEmptyPhone
	}
	if s.PreviewPaid {
		if s.MiniStyle == StyleNone {
			return errors.New("paid session missing style")
		}
		if s.LastImageURL == "" {
			return errors.New("paid session missing image")
		}
	}
	return nil
}

// InboundMessage is a chat event after payload extraction and normalization.
type InboundMessage struct {
	Phone    string `json:"phone"`     // normalized phone number
	Text     string `json:"text"`      // raw message text (may be empty)
	ImageURL string `json:"image_url"` // first usable image URL, if any
	Name     string `json:"name"`      // sender first name, if known
	IsAdmin  bool   `json:"is_admin"`  // sender listed in ADMIN_PHONES
}

// HasImage reports whether the message carries a usable image.
func (m InboundMessage) HasImage() bool {
	return m.ImageURL != ""
}

// PaymentEvent is a verified payment-provider notification.
type PaymentEvent struct {
	AmountCents int    `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"`
	Event       string `json:"event,omitempty"`
	Status      string `json:"status,omitempty"`
}

// EffectKind identifies an outbound action produced by a state transition.
type EffectKind string

const (
	// EffectSendText sends a plain text message.
	EffectSendText EffectKind = "send_text"
	// EffectSendImage sends an image with a caption.
	EffectSendImage EffectKind = "send_image"
	// EffectSendPaymentLink sends the preview payment link with instructions.
	EffectSendPaymentLink EffectKind = "send_payment_link"
	// EffectSendDelayedText sends a text message after a delay.
	EffectSendDelayedText EffectKind = "send_delayed_text"
	// EffectScheduleNudge arms the one-shot re-engagement timer.
	EffectScheduleNudge EffectKind = "schedule_nudge"
	// EffectStartPreview requests the single-flight preview generation job.
	EffectStartPreview EffectKind = "start_preview"
	// EffectCatalogSearch runs a catalog search and sends the results.
	EffectCatalogSearch EffectKind = "catalog_search"
	// EffectRecordContact appends the sender to the contact log.
	EffectRecordContact EffectKind = "record_contact"
	// EffectTeachMemory stores a taught answer in the free-text memory.
	EffectTeachMemory EffectKind = "teach_memory"
)

// Effect is a single outbound action produced by the conversation state
// machine. The machine itself performs no I/O; effects are executed by the
// flow coordinator.
type Effect struct {
	Kind        EffectKind    `json:"kind"`
	Body        string        `json:"body,omitempty"`    // text body or image caption
	Image       string        `json:"image,omitempty"`   // image URL or data URI
	URL         string        `json:"url,omitempty"`     // payment/checkout link
	Term        string        `json:"term,omitempty"`    // catalog search term
	Name        string        `json:"name,omitempty"`    // contact display name
	Question    string        `json:"question,omitempty"`
	Answer      string        `json:"answer,omitempty"`
	AmountCents int           `json:"amount_cents,omitempty"`
	Delay       time.Duration `json:"delay,omitempty"`
}

// SendText builds a plain text effect.
func SendText(body string) Effect {
	return Effect{Kind: EffectSendText, Body: body}
}

// SendImage builds an image-with-caption effect.
func SendImage(image, caption string) Effect {
	return Effect{Kind: EffectSendImage, Image: image, Body: caption}
}
