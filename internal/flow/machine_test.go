package flow

import (
	"strings"
	"testing"
	"time"

	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/prompts"
)

func testMachine(now *time.Time) *Machine {
	return NewMachine(prompts.New(""),
		WithClock(func() time.Time { return *now }),
		WithAmountFunc(func() int { return 1007 }),
		WithCheckoutURL("https://pay.example/previa"),
		WithSizeLinks("https://pay.example/16", "https://pay.example/21"),
	)
}

func effectKinds(effects []models.Effect) []models.EffectKind {
	kinds := make([]models.EffectKind, len(effects))
	for i, e := range effects {
		kinds[i] = e.Kind
	}
	return kinds
}

func hasKind(effects []models.Effect, kind models.EffectKind) bool {
	for _, e := range effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func textBodies(effects []models.Effect) string {
	var b strings.Builder
	for _, e := range effects {
		b.WriteString(e.Body)
		b.WriteString("\n")
	}
	return b.String()
}

// walkToPaymentPending drives a fresh session to the payment-pending state.
func walkToPaymentPending(t *testing.T, m *Machine) *models.Session {
	t.Helper()
	s := models.NewSession("5511999998888")
	s.Greeted = true

	m.Transition(&s, models.InboundMessage{Phone: s.Phone, ImageURL: "https://img.example/foto.jpg"})
	if !s.AwaitingStyle {
		t.Fatalf("photo should put the session in style selection")
	}
	effects := m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: "2"})
	if !s.PaymentEligible() {
		t.Fatalf("style choice should make the session payment eligible: %+v", s)
	}
	if !hasKind(effects, models.EffectSendPaymentLink) || !hasKind(effects, models.EffectScheduleNudge) {
		t.Fatalf("style choice effects = %v", effectKinds(effects))
	}
	return &s
}

func TestFirstContactGreeting(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	s := models.NewSession("5511999998888")
	effects := m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: "oi", Name: "Maria"})

	if !s.Greeted {
		t.Errorf("first contact should mark the session greeted")
	}
	if !hasKind(effects, models.EffectRecordContact) {
		t.Errorf("first contact should record the contact: %v", effectKinds(effects))
	}
	if !strings.Contains(textBodies(effects), "Maria") {
		t.Errorf("greeting should address the customer by name: %q", textBodies(effects))
	}
}

func TestMenuResetsSession(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)

	effects := m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "MENU"})

	if s.Mode != models.ModeNone || s.PreviewPaymentPending || s.PhotoReceived {
		t.Errorf("menu should reset the session: %+v", s)
	}
	if !s.Greeted {
		t.Errorf("menu reset should not re-trigger the first-contact greeting")
	}
	if len(effects) != 1 || effects[0].Kind != models.EffectSendText {
		t.Errorf("menu should answer with the welcome text: %v", effectKinds(effects))
	}

	for _, cmd := range []string{"voltar", "início", "começar"} {
		s2 := walkToPaymentPending(t, m)
		m.Transition(s2, models.InboundMessage{Phone: s2.Phone, Text: cmd})
		if s2.PreviewPaymentPending {
			t.Errorf("%q should reset the session", cmd)
		}
	}
}

func TestHumanHandoff(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	for _, text := range []string{"humano", "quero falar com um humano", "tem atendente ai?"} {
		s := models.NewSession("5511999998888")
		s.Greeted = true
		m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: text})

		if !s.HumanHandoff {
			t.Errorf("%q should flag the session for human handoff", text)
		}
	}
}

func TestProductChoice(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	s := models.NewSession("5511999998888")
	s.Greeted = true
	m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: "1"})
	if s.Mode != models.ModeMascot {
		t.Errorf("answer 1 should enter mascot mode, got %q", s.Mode)
	}

	s2 := models.NewSession("5511888887777")
	s2.Greeted = true
	m.Transition(&s2, models.InboundMessage{Phone: s2.Phone, Text: "2"})
	if s2.Mode != models.ModeFigurine {
		t.Errorf("answer 2 should enter figurine mode, got %q", s2.Mode)
	}
}

func TestMascotModeSearchesCatalog(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	s := models.NewSession("5511999998888")
	s.Greeted = true
	s.Mode = models.ModeMascot

	effects := m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: "galo forte"})
	if len(effects) != 1 || effects[0].Kind != models.EffectCatalogSearch || effects[0].Term != "galo forte" {
		t.Errorf("mascot text should trigger a catalog search: %+v", effects)
	}
}

func TestFigurineWithoutPhotoPrompts(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	s := models.NewSession("5511999998888")
	s.Greeted = true
	s.Mode = models.ModeFigurine

	effects := m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: "quanto custa?"})
	if len(effects) != 1 || effects[0].Kind != models.EffectSendText {
		t.Fatalf("expected a single text reply, got %v", effectKinds(effects))
	}
}

func TestTaughtAnswerWinsFallback(t *testing.T) {
	now := time.Now()
	m := NewMachine(prompts.New(""),
		WithClock(func() time.Time { return now }),
		WithAnswerLookup(func(q string) (string, bool) {
			if q == "quanto custa?" {
				return "A partir de R$ 399.", true
			}
			return "", false
		}),
	)

	s := models.NewSession("5511999998888")
	s.Greeted = true
	s.Mode = models.ModeFigurine

	effects := m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: "Quanto custa?"})
	if len(effects) != 1 || effects[0].Body != "A partir de R$ 399." {
		t.Errorf("taught answer should be used: %+v", effects)
	}
}

func TestPhotoStartsStyleSelection(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	s := models.NewSession("5511999998888")
	s.Greeted = true

	m.Transition(&s, models.InboundMessage{Phone: s.Phone, ImageURL: "https://img.example/foto.jpg"})

	if s.Mode != models.ModeFigurine || !s.PhotoReceived || !s.AwaitingStyle {
		t.Errorf("photo should start the figurine pipeline: %+v", s)
	}
	if s.LastImageURL != "https://img.example/foto.jpg" {
		t.Errorf("photo URL not retained: %q", s.LastImageURL)
	}
}

func TestStyleChoiceByNumberAndName(t *testing.T) {
	tests := []struct {
		input    string
		expected models.MiniStyle
	}{
		{"1", models.StyleRealistic},
		{"3", models.StylePixarRealistic},
		{"5", models.StyleAnime},
		{"Pixar Realista", models.StylePixarRealistic},
		{"quero pixar", models.StylePixar},
		{"realista por favor", models.StyleRealistic},
		{"cartoon", models.StyleCartoon},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			style, ok := ParseStyle(tt.input)
			if !ok || style != tt.expected {
				t.Errorf("ParseStyle(%q) = %q/%v, want %q", tt.input, style, ok, tt.expected)
			}
		})
	}

	if _, ok := ParseStyle("abacaxi"); ok {
		t.Errorf("ParseStyle should reject unknown styles")
	}
}

func TestStyleChoiceAssignsCharge(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)

	if s.MiniStyle != models.StylePixar {
		t.Errorf("style = %q, want pixar", s.MiniStyle)
	}
	if s.ExpectedAmountCents != 1007 {
		t.Errorf("ExpectedAmountCents = %d, want 1007", s.ExpectedAmountCents)
	}
	if !s.PreviewCreatedAt.Equal(now) {
		t.Errorf("PreviewCreatedAt not stamped")
	}
	if s.PreviewChargeSends != 1 {
		t.Errorf("PreviewChargeSends = %d, want 1", s.PreviewChargeSends)
	}
	if s.PreviewCheckoutURL != "https://pay.example/previa" {
		t.Errorf("checkout URL = %q", s.PreviewCheckoutURL)
	}
}

func TestInvalidStyleRepromptsWithoutTransition(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	s := models.NewSession("5511999998888")
	s.Greeted = true
	m.Transition(&s, models.InboundMessage{Phone: s.Phone, ImageURL: "https://img.example/foto.jpg"})

	effects := m.Transition(&s, models.InboundMessage{Phone: s.Phone, Text: "abacaxi"})

	if !s.AwaitingStyle || s.MiniStyle != models.StyleNone || s.PreviewPaymentPending {
		t.Errorf("invalid style answer should not advance the session: %+v", s)
	}
	if len(effects) != 1 || effects[0].Kind != models.EffectSendText {
		t.Errorf("invalid style should re-prompt once: %v", effectKinds(effects))
	}
}

func TestPaidClaimNeverMarksPaid(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)

	effects := m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "já paguei!"})

	if s.PreviewPaid {
		t.Errorf("a payment claim must never mark the session paid")
	}
	if !hasKind(effects, models.EffectSendDelayedText) {
		t.Errorf("payment claim should schedule a delayed follow-up: %v", effectKinds(effects))
	}
}

func TestPaymentLinkResendCapAndCooldown(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)

	// Inside the cooldown the link is not resent.
	effects := m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "e aí?"})
	if hasKind(effects, models.EffectSendPaymentLink) {
		t.Errorf("resend inside cooldown should be suppressed")
	}
	if s.PreviewChargeSends != 1 {
		t.Errorf("suppressed resend should not count: %d", s.PreviewChargeSends)
	}

	// After the cooldown the link goes out again, up to the cap.
	now = now.Add(2 * time.Minute)
	effects = m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "oi"})
	if !hasKind(effects, models.EffectSendPaymentLink) {
		t.Errorf("resend after cooldown should send the link")
	}
	if s.PreviewChargeSends != 2 {
		t.Errorf("PreviewChargeSends = %d, want 2", s.PreviewChargeSends)
	}

	now = now.Add(2 * time.Minute)
	m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "oi"})
	if s.PreviewChargeSends != 3 {
		t.Errorf("PreviewChargeSends = %d, want 3", s.PreviewChargeSends)
	}

	// The cap is reached; further chatter only gets the already-sent notice.
	now = now.Add(2 * time.Minute)
	effects = m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "oi de novo"})
	if hasKind(effects, models.EffectSendPaymentLink) {
		t.Errorf("resend past the cap should be suppressed")
	}
	if s.PreviewChargeSends != 3 {
		t.Errorf("cap exceeded: %d sends", s.PreviewChargeSends)
	}
}

func TestPaidSessionRequestsPreview(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)
	s.PreviewPaid = true
	s.PreviewPaymentPending = false

	effects := m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "cadê?"})
	if !hasKind(effects, models.EffectStartPreview) {
		t.Errorf("paid session without preview should request generation: %v", effectKinds(effects))
	}
}

func TestSizeChoiceAfterPreview(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)
	s.PreviewPaid = true
	s.PreviewPaymentPending = false
	s.PreviewSent = true

	// Unrecognized answer re-prompts.
	effects := m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "grande"})
	if s.MiniSize != models.SizeNone {
		t.Errorf("unrecognized size should not be assigned: %q", s.MiniSize)
	}
	if len(effects) != 1 {
		t.Errorf("size re-prompt effects = %v", effectKinds(effects))
	}

	effects = m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "quero o de 16 cm"})
	if s.MiniSize != models.Size16 {
		t.Errorf("size = %q, want 16cm", s.MiniSize)
	}
	body := textBodies(effects)
	if !strings.Contains(body, "R$ 399,00") || !strings.Contains(body, "https://pay.example/16") {
		t.Errorf("16cm budget message incomplete: %q", body)
	}

	// A 21cm customer gets the other price and link.
	s2 := walkToPaymentPending(t, m)
	s2.PreviewPaid = true
	s2.PreviewPaymentPending = false
	s2.PreviewSent = true
	effects = m.Transition(s2, models.InboundMessage{Phone: s2.Phone, Text: "21"})
	body = textBodies(effects)
	if s2.MiniSize != models.Size21 || !strings.Contains(body, "R$ 699,00") || !strings.Contains(body, "https://pay.example/21") {
		t.Errorf("21cm budget message incomplete: %q", body)
	}
}

func TestTerminalStateAnswersClosing(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)
	s.PreviewPaid = true
	s.PreviewPaymentPending = false
	s.PreviewSent = true
	s.MiniSize = models.Size16

	effects := m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "obrigado"})
	if len(effects) != 1 || effects[0].Kind != models.EffectSendText {
		t.Errorf("terminal state should answer with the closing text: %v", effectKinds(effects))
	}
}

func TestAdminTeachCommand(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)

	s := models.NewSession("5511999998888")
	s.Greeted = true

	effects := m.Transition(&s, models.InboundMessage{
		Phone:   s.Phone,
		Text:    "ensinar: prazo => Até 15 dias úteis",
		IsAdmin: true,
	})

	if !hasKind(effects, models.EffectTeachMemory) {
		t.Fatalf("admin teach should emit a teach effect: %v", effectKinds(effects))
	}
	for _, e := range effects {
		if e.Kind == models.EffectTeachMemory {
			if e.Question != "prazo" || e.Answer != "Até 15 dias úteis" {
				t.Errorf("teach effect = %q/%q", e.Question, e.Answer)
			}
		}
	}

	// The same text from a non-admin is ordinary chatter.
	s2 := models.NewSession("5511888887777")
	s2.Greeted = true
	effects = m.Transition(&s2, models.InboundMessage{Phone: s2.Phone, Text: "ensinar: prazo => hack"})
	if hasKind(effects, models.EffectTeachMemory) {
		t.Errorf("non-admin must not teach answers")
	}
}

func TestPhotoRetryAfterPaymentKeepsCharge(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)
	s.PreviewPaid = true
	s.PreviewPaymentPending = false

	effects := m.Transition(s, models.InboundMessage{Phone: s.Phone, ImageURL: "https://img.example/nova.jpg"})

	if s.PreviewPaymentPending {
		t.Errorf("paid customer must never be asked to pay again")
	}
	if s.AwaitingStyle || s.MiniStyle == models.StyleNone {
		t.Errorf("retry photo must keep the chosen style: %+v", s)
	}
	if s.LastImageURL != "https://img.example/nova.jpg" {
		t.Errorf("retry photo not retained: %q", s.LastImageURL)
	}
	if hasKind(effects, models.EffectSendPaymentLink) {
		t.Errorf("retry photo must not send a payment link")
	}
	if !hasKind(effects, models.EffectStartPreview) {
		t.Errorf("retry photo should restart the preview pipeline: %v", effectKinds(effects))
	}

	// The style menu must not reappear either, so a style answer cannot
	// assign a fresh amount.
	m.Transition(s, models.InboundMessage{Phone: s.Phone, Text: "pixar"})
	if s.PreviewPaymentPending || s.ExpectedAmountCents != 1007 {
		t.Errorf("paid session re-charged: %+v", s)
	}
}

func TestPhotoWhilePaymentPendingRestartsStyle(t *testing.T) {
	now := time.Now()
	m := testMachine(&now)
	s := walkToPaymentPending(t, m)

	m.Transition(s, models.InboundMessage{Phone: s.Phone, ImageURL: "https://img.example/nova.jpg"})

	if !s.AwaitingStyle || s.LastImageURL != "https://img.example/nova.jpg" {
		t.Errorf("new photo should restart style selection: %+v", s)
	}
}
