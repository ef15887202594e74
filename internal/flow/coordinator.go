package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/michelskapp-design/3DFANS/internal/catalog"
	"github.com/michelskapp-design/3DFANS/internal/contacts"
	"github.com/michelskapp-design/3DFANS/internal/memory"
	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/payments"
	"github.com/michelskapp-design/3DFANS/internal/prompts"
	"github.com/michelskapp-design/3DFANS/internal/store"
	"github.com/michelskapp-design/3DFANS/internal/util"
)

// PaymentLinkSender is an optional upgrade over Messenger: backends that can
// render a copy-paste payment button implement it, others fall back to text.
type PaymentLinkSender interface {
	SendPaymentLink(ctx context.Context, to, body, link string) error
}

// Coordinator wires the pure state machine to its runtime: session storage,
// guards, the nudge timer, payment reconciliation, the preview pipeline and
// the messaging backend. It is the single entry point for the webhook layer.
type Coordinator struct {
	store    store.Store
	machine  *Machine
	lib      *prompts.Library
	msgr     Messenger
	dups     *DuplicateGuard
	busy     *BusyGuard
	nudges   *NudgeRegistry
	timer    Timer
	preview  *PreviewRunner
	recon    *payments.Reconciler
	catalog  catalog.Searcher
	memory   *memory.Store
	contacts *contacts.Log
	admins   map[string]bool

	recheckMu sync.Mutex
	rechecks  map[string]bool
}

// CoordinatorOpts carries the collaborators a Coordinator needs. All fields
// except Catalog, Memory and Contacts are required.
type CoordinatorOpts struct {
	Store       store.Store
	Machine     *Machine
	Library     *prompts.Library
	Messenger   Messenger
	Timer       Timer
	Preview     *PreviewRunner
	Reconciler  *payments.Reconciler
	Catalog     catalog.Searcher
	Memory      *memory.Store
	Contacts    *contacts.Log
	AdminPhones []string
}

// NewCoordinator assembles a Coordinator and its guards.
func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if opts.Store == nil || opts.Machine == nil || opts.Library == nil || opts.Messenger == nil {
		return nil, fmt.Errorf("coordinator requires store, machine, library and messenger")
	}
	if opts.Timer == nil {
		opts.Timer = NewSimpleTimer()
	}
	admins := make(map[string]bool, len(opts.AdminPhones))
	for _, p := range opts.AdminPhones {
		if n := util.NormalizePhone(p); n != "" {
			admins[n] = true
		}
	}
	c := &Coordinator{
		store:    opts.Store,
		machine:  opts.Machine,
		lib:      opts.Library,
		msgr:     opts.Messenger,
		dups:     NewDuplicateGuard(),
		busy:     NewBusyGuard(),
		nudges:   NewNudgeRegistry(opts.Timer),
		timer:    opts.Timer,
		preview:  opts.Preview,
		recon:    opts.Reconciler,
		catalog:  opts.Catalog,
		memory:   opts.Memory,
		contacts: opts.Contacts,
		admins:   admins,
		rechecks: make(map[string]bool),
	}
	if c.preview != nil {
		// Once a preview finishes the customer may talk again without the
		// busy notice throttle carrying over from the previous run.
		c.preview.OnJobDone(func(phone string) {
			c.busy.Clear(phone)
		})
	}
	return c, nil
}

// Nudges exposes the reminder registry (tests).
func (c *Coordinator) Nudges() *NudgeRegistry {
	return c.nudges
}

// HandleInbound processes one chat webhook event end to end: guards, state
// transition, persistence, effect execution.
func (c *Coordinator) HandleInbound(ctx context.Context, msg models.InboundMessage) error {
	msg.Phone = util.NormalizePhone(msg.Phone)
	if msg.Phone == "" {
		return models.ErrEmptyPhone
	}
	msg.IsAdmin = c.admins[msg.Phone]

	if c.dups.IsDuplicate(msg.Phone, msg.Text+"\x00"+msg.ImageURL) {
		slog.Debug("Coordinator.HandleInbound: duplicate delivery dropped", "phone", msg.Phone)
		return nil
	}

	// Any reply disarms the pending re-engagement reminder.
	c.nudges.Cancel(msg.Phone)

	if c.preview != nil && c.preview.Running(msg.Phone) {
		if c.busy.ShouldNotify(msg.Phone) {
			return c.msgr.SendText(ctx, msg.Phone, c.lib.Get("previaEmAndamento"))
		}
		return nil
	}

	session, err := c.store.GetSession(msg.Phone)
	if err != nil {
		return fmt.Errorf("failed to load session for %s: %w", msg.Phone, err)
	}
	if session == nil {
		s := models.NewSession(msg.Phone)
		session = &s
	}

	effects := c.machine.Transition(session, msg)

	// The reference token is minted as soon as the photo arrives so the
	// whole payment leg carries it.
	if session.PhotoReceived && session.PreviewRef == "" {
		ref, err := store.GetOrCreateRef(c.store, msg.Phone)
		if err != nil {
			slog.Error("Coordinator.HandleInbound: failed to assign payment ref", "phone", msg.Phone, "error", err)
		} else {
			session.PreviewRef = ref
		}
	}
	if session.PreviewRef != "" {
		// Carry the ref on the checkout link so the provider echoes it back
		// in the webhook and reconciliation can match by reference. The
		// stored URL stays plain; the ref is appended per send.
		for i := range effects {
			if effects[i].Kind == models.EffectSendPaymentLink {
				refURL := appendRefParam(effects[i].URL, session.PreviewRef)
				effects[i].Body = strings.ReplaceAll(effects[i].Body, effects[i].URL, refURL)
				effects[i].URL = refURL
			}
		}
	}

	if err := c.store.SaveSession(*session); err != nil {
		return fmt.Errorf("failed to save session for %s: %w", msg.Phone, err)
	}

	c.execute(ctx, msg.Phone, effects)
	return nil
}

// HandlePayment processes a verified payment notification: reconcile it to a
// session, confirm to the customer and start the preview pipeline.
func (c *Coordinator) HandlePayment(ctx context.Context, ev models.PaymentEvent) error {
	if c.recon == nil {
		return fmt.Errorf("payment reconciliation not configured")
	}
	phone, err := c.recon.Match(ev)
	if err != nil {
		return err
	}
	if phone == "" {
		return models.ErrSessionNotFound
	}

	c.nudges.Cancel(phone)

	if err := c.msgr.SendText(ctx, phone, c.lib.Get("pagamentoConfirmado")); err != nil {
		slog.Error("Coordinator.HandlePayment: confirmation send failed", "phone", phone, "error", err)
	}
	if c.preview != nil {
		c.preview.Generate(ctx, phone)
	}
	slog.Info("Coordinator.HandlePayment: payment matched", "phone", phone, "amount_cents", ev.AmountCents)
	return nil
}

// execute runs the machine's effects in order. Send failures are logged, not
// propagated: the session state already advanced and the gateway retries are
// the customer's recovery path.
func (c *Coordinator) execute(ctx context.Context, phone string, effects []models.Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case models.EffectSendText:
			if err := c.msgr.SendText(ctx, phone, eff.Body); err != nil {
				slog.Error("Coordinator.execute: text send failed", "phone", phone, "error", err)
			}
		case models.EffectSendImage:
			if err := c.msgr.SendImage(ctx, phone, eff.Image, eff.Body); err != nil {
				slog.Error("Coordinator.execute: image send failed", "phone", phone, "error", err)
			}
		case models.EffectSendPaymentLink:
			c.sendPaymentLink(ctx, phone, eff)
		case models.EffectSendDelayedText:
			c.scheduleDelayedText(phone, eff)
		case models.EffectScheduleNudge:
			c.armNudge(phone)
		case models.EffectStartPreview:
			if c.preview != nil {
				c.preview.Generate(ctx, phone)
			}
		case models.EffectCatalogSearch:
			c.searchCatalog(ctx, phone, eff.Term)
		case models.EffectRecordContact:
			c.recordContact(phone, eff.Name)
		case models.EffectTeachMemory:
			if c.memory != nil {
				if err := c.memory.Teach(eff.Question, eff.Answer); err != nil {
					slog.Error("Coordinator.execute: teach failed", "error", err)
				}
			}
		default:
			slog.Warn("Coordinator.execute: unknown effect kind", "kind", eff.Kind)
		}
	}
}

func (c *Coordinator) sendPaymentLink(ctx context.Context, phone string, eff models.Effect) {
	if ls, ok := c.msgr.(PaymentLinkSender); ok {
		if err := ls.SendPaymentLink(ctx, phone, eff.Body, eff.URL); err == nil {
			return
		} else {
			slog.Warn("Coordinator.sendPaymentLink: button send failed, falling back to text", "phone", phone, "error", err)
		}
	}
	if err := c.msgr.SendText(ctx, phone, eff.Body); err != nil {
		slog.Error("Coordinator.sendPaymentLink: text send failed", "phone", phone, "error", err)
	}
}

func (c *Coordinator) scheduleDelayedText(phone string, eff models.Effect) {
	// One recheck per phone at a time: a customer repeating "paguei" must
	// not stack a follow-up message per claim.
	c.recheckMu.Lock()
	if c.rechecks[phone] {
		c.recheckMu.Unlock()
		return
	}
	c.rechecks[phone] = true
	c.recheckMu.Unlock()

	body := eff.Body
	c.timer.ScheduleAfter(eff.Delay, func() {
		c.recheckMu.Lock()
		delete(c.rechecks, phone)
		c.recheckMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// Only follow up if the payment still has not landed.
		session, err := c.store.GetSession(phone)
		if err != nil || session == nil || session.PreviewPaid {
			return
		}
		if err := c.msgr.SendText(ctx, phone, body); err != nil {
			slog.Error("Coordinator.scheduleDelayedText: send failed", "phone", phone, "error", err)
		}
	})
}

// armNudge schedules the one-shot payment reminder. The reminder re-checks
// the session when it fires so a payment or reset in the meantime silences it.
func (c *Coordinator) armNudge(phone string) {
	c.nudges.Arm(phone, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		session, err := c.store.GetSession(phone)
		if err != nil || session == nil || !session.PaymentEligible() {
			return
		}
		if err := c.msgr.SendText(ctx, phone, c.lib.Get("pagamentoLembrete")); err != nil {
			slog.Error("Coordinator.armNudge: reminder send failed", "phone", phone, "error", err)
		}
	})
}

func (c *Coordinator) searchCatalog(ctx context.Context, phone, term string) {
	if c.catalog == nil {
		if err := c.msgr.SendText(ctx, phone, c.lib.Get("mascoteVazio")); err != nil {
			slog.Error("Coordinator.searchCatalog: send failed", "phone", phone, "error", err)
		}
		return
	}
	products, err := c.catalog.Search(ctx, term)
	if err != nil {
		slog.Error("Coordinator.searchCatalog: search failed", "term", term, "error", err)
	}
	if len(products) == 0 {
		if err := c.msgr.SendText(ctx, phone, c.lib.Get("mascoteVazio")); err != nil {
			slog.Error("Coordinator.searchCatalog: send failed", "phone", phone, "error", err)
		}
		return
	}
	for _, p := range products {
		caption := formatProduct(p)
		if p.Image != "" {
			if err := c.msgr.SendImage(ctx, phone, p.Image, caption); err != nil {
				slog.Error("Coordinator.searchCatalog: product image send failed", "phone", phone, "error", err)
			}
			continue
		}
		if err := c.msgr.SendText(ctx, phone, caption); err != nil {
			slog.Error("Coordinator.searchCatalog: product text send failed", "phone", phone, "error", err)
		}
	}
}

// formatProduct renders one catalog hit as a WhatsApp caption.
func formatProduct(p catalog.Product) string {
	var b strings.Builder
	b.WriteString("⚽ " + p.Title)
	if p.Price != "" {
		b.WriteString("\n💰 " + p.Currency + " " + p.Price)
	}
	if p.URL != "" {
		b.WriteString("\n🛒 " + p.URL)
	}
	return b.String()
}

// appendRefParam adds the reference token as a ref query parameter.
func appendRefParam(link, ref string) string {
	if link == "" || ref == "" {
		return link
	}
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	return link + sep + "ref=" + url.QueryEscape(ref)
}

func (c *Coordinator) recordContact(phone, name string) {
	if c.contacts == nil {
		return
	}
	added, err := c.contacts.Record(phone, name)
	if err != nil {
		slog.Error("Coordinator.recordContact: contact log write failed", "phone", phone, "error", err)
		return
	}
	if added {
		slog.Info("Coordinator.recordContact: new contact recorded", "phone", phone)
	}
}
