// Package flow implements the conversation state machine and its runtime
// coordinator.
//
// The state machine itself (Machine.Transition) is a pure function over a
// session and an inbound message: it mutates the session and returns the
// outbound effects, but performs no I/O. The coordinator executes effects
// against the messaging, payment and preview services.
package flow

import (
	"regexp"
	"strings"
	"time"

	"github.com/michelskapp-design/3DFANS/internal/memory"
	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/payments"
	"github.com/michelskapp-design/3DFANS/internal/prompts"
	"github.com/michelskapp-design/3DFANS/internal/util"
)

// Conversation timing and throttling constants.
const (
	// ResendCap is the maximum number of times the preview payment link is
	// sent to one customer.
	ResendCap = 3
	// ResendCooldown is the minimum gap between payment link resends.
	ResendCooldown = 60 * time.Second
	// PendingCheckDelay is how long after a "paguei" claim the bot follows up
	// when the payment has still not been confirmed.
	PendingCheckDelay = 10 * time.Second
)

var (
	size16Pattern = regexp.MustCompile(`(^|\D)16(\D|$)`)
	size21Pattern = regexp.MustCompile(`(^|\D)21(\D|$)`)
)

// Machine is the pure conversation state machine. All environmental inputs
// (clock, charge amount generator, payment links, taught answers) are
// injected so transitions are deterministic under test.
type Machine struct {
	lib         *prompts.Library
	now         func() time.Time
	newAmount   func() int
	checkoutURL string
	link16      string
	link21      string
	lookup      func(question string) (string, bool)
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock overrides the machine's time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// WithAmountFunc overrides the preview charge amount generator.
func WithAmountFunc(f func() int) MachineOption {
	return func(m *Machine) { m.newAmount = f }
}

// WithCheckoutURL sets the preview fee payment link.
func WithCheckoutURL(url string) MachineOption {
	return func(m *Machine) { m.checkoutURL = url }
}

// WithSizeLinks sets the 16cm and 21cm checkout links sent after the preview.
func WithSizeLinks(link16, link21 string) MachineOption {
	return func(m *Machine) { m.link16 = link16; m.link21 = link21 }
}

// WithAnswerLookup wires the taught-answer store into free-text fallback.
func WithAnswerLookup(f func(question string) (string, bool)) MachineOption {
	return func(m *Machine) { m.lookup = f }
}

// NewMachine creates a Machine backed by the given dialogue script.
func NewMachine(lib *prompts.Library, opts ...MachineOption) *Machine {
	m := &Machine{
		lib:       lib,
		now:       time.Now,
		newAmount: payments.NewChargeAmount,
		lookup:    func(string) (string, bool) { return "", false },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition advances the session for one inbound message and returns the
// effects to execute. The session is mutated in place; the caller persists it.
func (m *Machine) Transition(s *models.Session, msg models.InboundMessage) []models.Effect {
	text := util.NormalizeText(msg.Text)
	s.UpdatedAt = m.now()

	// First contact: greet and record, nothing else.
	if !s.Greeted {
		s.Greeted = true
		return []models.Effect{
			{Kind: models.EffectRecordContact, Name: msg.Name},
			models.SendText(prompts.Render(m.lib.Get("welcome"), map[string]string{"nome": msg.Name})),
		}
	}

	// Global commands work in every state.
	if strings.Contains(text, "humano") || strings.Contains(text, "atendente") {
		s.HumanHandoff = true
		return []models.Effect{models.SendText(m.lib.Get("humano"))}
	}
	if text == "menu" || text == "voltar" || text == "inicio" || text == "início" || text == "comecar" || text == "começar" {
		s.Reset()
		return []models.Effect{models.SendText(prompts.Render(m.lib.Get("welcome"), map[string]string{"nome": msg.Name}))}
	}
	if msg.IsAdmin {
		if taught := memory.ParseTeach(msg.Text); taught != nil {
			return []models.Effect{
				{Kind: models.EffectTeachMemory, Question: taught.Question, Answer: taught.Answer},
				models.SendText(m.lib.Get("ensinado")),
			}
		}
	}

	// A photo restarts the figurine pipeline from the style step, whatever
	// state the customer was in.
	if msg.HasImage() {
		return m.onPhoto(s, msg)
	}

	if s.AwaitingStyle {
		return m.onStyleChoice(s, text)
	}

	if s.PaymentEligible() {
		return m.onPaymentPending(s, text)
	}

	if s.PreviewPaid && !s.PreviewSent {
		return []models.Effect{
			models.SendText(m.lib.Get("previaAguarde")),
			{Kind: models.EffectStartPreview},
		}
	}

	if s.PreviewSent && s.MiniSize == models.SizeNone {
		return m.onSizeChoice(s, text)
	}

	if s.MiniSize != models.SizeNone {
		return []models.Effect{models.SendText(m.lib.Get("encerramento"))}
	}

	switch s.Mode {
	case models.ModeNone:
		return m.onProductChoice(s, text)
	case models.ModeMascot:
		if text == "" {
			return []models.Effect{models.SendText(m.lib.Get("menuMascote"))}
		}
		return []models.Effect{{Kind: models.EffectCatalogSearch, Term: msg.Text}}
	case models.ModeFigurine:
		return m.onFigurineChat(text)
	}
	return nil
}

// onPhoto records the customer photo and asks for a rendering style.
func (m *Machine) onPhoto(s *models.Session, msg models.InboundMessage) []models.Effect {
	// A paid customer re-sending a photo is retrying a failed preview, not
	// starting a new order: keep the style, never assign a new charge.
	if s.PreviewPaid && !s.PreviewSent {
		s.LastImageURL = msg.ImageURL
		return []models.Effect{
			models.SendText(m.lib.Get("previaAguarde")),
			{Kind: models.EffectStartPreview},
		}
	}

	s.Mode = models.ModeFigurine
	s.PhotoReceived = true
	s.LastImageURL = msg.ImageURL
	s.AwaitingStyle = true
	s.MiniStyle = models.StyleNone
	return []models.Effect{models.SendText(m.lib.Get("styleMenu"))}
}

// onStyleChoice resolves the style answer; an unrecognized answer re-prompts
// without leaving the state. A valid choice assigns the unique charge amount
// and sends the payment link.
func (m *Machine) onStyleChoice(s *models.Session, text string) []models.Effect {
	style, ok := ParseStyle(text)
	if !ok {
		return []models.Effect{models.SendText(m.lib.Get("styleMenu"))}
	}

	now := m.now()
	s.MiniStyle = style
	s.AwaitingStyle = false
	s.PreviewPaymentPending = true
	s.ExpectedAmountCents = m.newAmount()
	s.PreviewCreatedAt = now
	s.PreviewChargeSends = 1
	s.LastPreviewChargeAt = now
	s.PreviewCheckoutURL = m.checkoutURL

	valor := payments.FormatBRL(s.ExpectedAmountCents)
	return []models.Effect{
		models.SendText(prompts.Render(m.lib.Get("fotoRecebida"), map[string]string{"valor": valor})),
		{
			Kind:        models.EffectSendPaymentLink,
			Body:        prompts.Render(m.lib.Get("pagamentoLink"), map[string]string{"valor": valor, "link": m.checkoutURL}),
			URL:         m.checkoutURL,
			AmountCents: s.ExpectedAmountCents,
		},
		{Kind: models.EffectScheduleNudge},
	}
}

// onPaymentPending handles messages while the preview fee is unpaid. Claims
// of payment are acknowledged but never trusted; confirmation only comes from
// the payment webhook. Other messages resend the link under a cap and
// cooldown.
func (m *Machine) onPaymentPending(s *models.Session, text string) []models.Effect {
	if isPaidClaim(text) {
		return []models.Effect{
			models.SendText(m.lib.Get("pagueiAck")),
			{Kind: models.EffectSendDelayedText, Body: m.lib.Get("pagueiPendente"), Delay: PendingCheckDelay},
		}
	}

	now := m.now()
	if s.PreviewChargeSends >= ResendCap || now.Sub(s.LastPreviewChargeAt) < ResendCooldown {
		return []models.Effect{models.SendText(m.lib.Get("pagamentoJaEnviado"))}
	}

	s.PreviewChargeSends++
	s.LastPreviewChargeAt = now
	valor := payments.FormatBRL(s.ExpectedAmountCents)
	return []models.Effect{
		{
			Kind:        models.EffectSendPaymentLink,
			Body:        prompts.Render(m.lib.Get("pagamentoReenvio"), map[string]string{"valor": valor, "link": s.PreviewCheckoutURL}),
			URL:         s.PreviewCheckoutURL,
			AmountCents: s.ExpectedAmountCents,
		},
	}
}

// onSizeChoice resolves the 16cm/21cm answer after the preview was delivered
// and sends the matching checkout link.
func (m *Machine) onSizeChoice(s *models.Session, text string) []models.Effect {
	var size models.MiniSize
	switch {
	case size16Pattern.MatchString(text):
		size = models.Size16
	case size21Pattern.MatchString(text):
		size = models.Size21
	default:
		return []models.Effect{models.SendText(m.lib.Get("escolhaTamanho"))}
	}

	s.MiniSize = size
	link := m.link16
	valor := "R$ 399,00"
	tamanho := "16cm"
	if size == models.Size21 {
		link = m.link21
		valor = "R$ 699,00"
		tamanho = "21cm"
	}
	return []models.Effect{
		models.SendText(prompts.Render(m.lib.Get("orcamento"), map[string]string{
			"tamanho": tamanho, "valor": valor, "link": link,
		})),
	}
}

// onProductChoice resolves the 1/2 top-level menu answer.
func (m *Machine) onProductChoice(s *models.Session, text string) []models.Effect {
	switch text {
	case "1", "mascote", "mascotes":
		s.Mode = models.ModeMascot
		return []models.Effect{models.SendText(m.lib.Get("menuMascote"))}
	case "2", "miniatura", "miniaturas":
		s.Mode = models.ModeFigurine
		return []models.Effect{models.SendText(m.lib.Get("menuMiniatura"))}
	}
	if answer, ok := m.lookup(text); ok {
		return []models.Effect{models.SendText(answer)}
	}
	return []models.Effect{models.SendText(prompts.Render(m.lib.Get("welcome"), map[string]string{"nome": ""}))}
}

// onFigurineChat answers free text in figurine mode before a photo arrived.
func (m *Machine) onFigurineChat(text string) []models.Effect {
	if answer, ok := m.lookup(text); ok {
		return []models.Effect{models.SendText(answer)}
	}
	return []models.Effect{models.SendText(m.lib.Get("fotoPrompt"))}
}

// ParseStyle maps a customer answer (menu number or style name) to a figurine
// style. The compound "pixar realista" must win over its two substrings.
func ParseStyle(text string) (models.MiniStyle, bool) {
	t := util.NormalizeText(text)
	switch t {
	case "1":
		return models.StyleRealistic, true
	case "2":
		return models.StylePixar, true
	case "3":
		return models.StylePixarRealistic, true
	case "4":
		return models.StyleCartoon, true
	case "5":
		return models.StyleAnime, true
	}
	switch {
	case strings.Contains(t, "pixar realista") || strings.Contains(t, "pixar-realista"):
		return models.StylePixarRealistic, true
	case strings.Contains(t, "pixar"):
		return models.StylePixar, true
	case strings.Contains(t, "realista"):
		return models.StyleRealistic, true
	case strings.Contains(t, "cartoon") || strings.Contains(t, "desenho"):
		return models.StyleCartoon, true
	case strings.Contains(t, "anime"):
		return models.StyleAnime, true
	}
	return models.StyleNone, false
}

// isPaidClaim reports whether the text asserts the preview fee was paid.
func isPaidClaim(text string) bool {
	for _, kw := range []string{"paguei", "pago", "pagamento feito", "fiz o pix", "comprovante", "transferi"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
