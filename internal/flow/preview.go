package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/michelskapp-design/3DFANS/internal/genai"
	"github.com/michelskapp-design/3DFANS/internal/prompts"
	"github.com/michelskapp-design/3DFANS/internal/store"
)

// Messenger is the outbound delivery surface the flow layer needs. It is
// satisfied by every messaging backend (Z-API gateway, direct WhatsApp,
// Twilio).
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, image, caption string) error
	SendTyping(ctx context.Context, to string) error
}

// DefaultStepDelay paces the progress messages during preview generation so
// the customer sees the pipeline advance rather than a long silence.
const DefaultStepDelay = 6 * time.Second

// previewSteps are the staged progress messages sent while the image
// pipeline runs.
var previewSteps = []string{
	"🟦 Analisando a foto… 25%",
	"🟨 Modelando em 3D… 50%",
	"🟧 Aplicando acabamento… 75%",
	"🟩 Finalizando sua PRÉVIA… 100%",
}

// PreviewRunner generates and delivers the paid figurine preview. Generation
// is single-flight per phone: a second request while a job runs is a no-op,
// and the coordinator uses Running to decide on the busy notice instead.
type PreviewRunner struct {
	store     store.Store
	gen       genai.ImageGenerator
	msgr      Messenger
	lib       *prompts.Library
	stepDelay time.Duration
	onDone    func(phone string)

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPreviewRunner creates a runner with the default step pacing.
func NewPreviewRunner(st store.Store, gen genai.ImageGenerator, msgr Messenger, lib *prompts.Library) *PreviewRunner {
	return &PreviewRunner{
		store:     st,
		gen:       gen,
		msgr:      msgr,
		lib:       lib,
		stepDelay: DefaultStepDelay,
		running:   make(map[string]struct{}),
	}
}

// WithStepDelay overrides the progress pacing (tests).
func (p *PreviewRunner) WithStepDelay(d time.Duration) *PreviewRunner {
	p.stepDelay = d
	return p
}

// OnJobDone registers a callback invoked after each job leaves the running
// set, success or failure.
func (p *PreviewRunner) OnJobDone(fn func(phone string)) {
	p.onDone = fn
}

// Running reports whether a preview job is in flight for phone.
func (p *PreviewRunner) Running(phone string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[phone]
	return ok
}

// Generate starts the preview pipeline for phone unless one is already in
// flight. It reports whether a new job was started.
func (p *PreviewRunner) Generate(ctx context.Context, phone string) bool {
	p.mu.Lock()
	if _, ok := p.running[phone]; ok {
		p.mu.Unlock()
		return false
	}
	p.running[phone] = struct{}{}
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.running, phone)
			p.mu.Unlock()
			if p.onDone != nil {
				p.onDone(phone)
			}
		}()
		p.run(ctx, phone)
	}()
	return true
}

// run executes the pipeline: background removal, statue render, delivery.
// Failures leave the session untouched so the customer can retry with a new
// photo.
func (p *PreviewRunner) run(ctx context.Context, phone string) {
	session, err := p.store.GetSession(phone)
	if err != nil || session == nil {
		slog.Error("PreviewRunner.run: failed to load session", "phone", phone, "error", err)
		return
	}
	if !session.PreviewPaid || session.PreviewSent || session.LastImageURL == "" {
		slog.Debug("PreviewRunner.run: session not eligible for preview", "phone", phone,
			"paid", session.PreviewPaid, "sent", session.PreviewSent)
		return
	}

	progressDone := make(chan struct{})
	go p.sendProgress(ctx, phone, progressDone)

	cutout, err := p.gen.RemoveBackground(ctx, session.LastImageURL)
	if err != nil {
		close(progressDone)
		slog.Error("PreviewRunner.run: background removal failed", "phone", phone, "error", err)
		p.fail(ctx, phone)
		return
	}

	image, err := p.gen.GenerateStatue(ctx, cutout, session.MiniStyle)
	if err != nil {
		close(progressDone)
		slog.Error("PreviewRunner.run: statue render failed", "phone", phone, "style", session.MiniStyle, "error", err)
		p.fail(ctx, phone)
		return
	}
	close(progressDone)

	if err := p.msgr.SendImage(ctx, phone, image, p.lib.Get("previaCaption")); err != nil {
		slog.Error("PreviewRunner.run: preview delivery failed", "phone", phone, "error", err)
		p.fail(ctx, phone)
		return
	}

	session.PreviewSent = true
	session.UpdatedAt = time.Now()
	if err := p.store.SaveSession(*session); err != nil {
		slog.Error("PreviewRunner.run: failed to persist preview state", "phone", phone, "error", err)
	}
	slog.Info("PreviewRunner.run: preview delivered", "phone", phone, "style", session.MiniStyle)
}

// sendProgress paces the staged progress messages until done closes or the
// steps run out.
func (p *PreviewRunner) sendProgress(ctx context.Context, phone string, done <-chan struct{}) {
	for _, step := range previewSteps {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-time.After(p.stepDelay):
		}
		if err := p.msgr.SendText(ctx, phone, step); err != nil {
			slog.Warn("PreviewRunner.sendProgress: progress send failed", "phone", phone, "error", err)
			return
		}
	}
}

func (p *PreviewRunner) fail(ctx context.Context, phone string) {
	if err := p.msgr.SendText(ctx, phone, p.lib.Get("previaErro")); err != nil {
		slog.Error("PreviewRunner.fail: error notice send failed", "phone", phone, "error", err)
	}
}
