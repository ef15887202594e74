// Package prompts loads the customer-facing dialogue script and the system
// prompt from disk, with built-in fallbacks and hot reload on file changes.
package prompts

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// File names inside the prompts directory.
const (
	RepliesFileName = "replies.json"
	SystemFileName  = "system.txt"
)

// DefaultPollInterval is how often the watcher checks the script files for
// changes.
const DefaultPollInterval = 5 * time.Second

// FallbackSystem is used when system.txt is missing or empty.
const FallbackSystem = "Você é o atendente da 3DFANS no WhatsApp."

// fallbackReplies is the built-in dialogue script, overridable per key via
// replies.json.
var fallbackReplies = map[string]string{
	"welcome": "Olá{nome}! 😊 O que você procura hoje?\n\n1️⃣ Mascotes de time de futebol\n2️⃣ Miniaturas personalizadas\n\nResponda com 1 ou 2.",
	"menuMascote": "Show! ⚽ Temos mascotes 10cm, 16cm e 21cm.\n📸 As fotos são reais do produto.\nMe diga qual time você quer.",
	"menuMiniatura": "Perfeito 😊 Conte-me o que você quer transformar em miniatura.\n📸 Envie a foto por aqui mesmo.\nTamanhos: 16cm ou 21cm.",
	"fotoPrompt": "📸 Me envie uma foto por aqui para eu criar sua miniatura 😊",
	"fotoRecebida": "📸 Foto recebida! 😊\n\nPara eu criar a *PRÉVIA*, é necessário pagar a taxa de *{valor}*.\n\nVou te mandar o link de pagamento agora.",
	"styleMenu": "🎨 Agora escolha o estilo da sua miniatura:\n\n1️⃣ Realista\n2️⃣ Pixar\n3️⃣ Pixar Realista\n4️⃣ Cartoon\n5️⃣ Anime\n\nResponda com o número ou o nome do estilo.",
	"pagamentoLink": "💳 Para liberar a *PRÉVIA*, pague exatamente *{valor}* no link abaixo:\n\n✅ Pague aqui:\n{link}\n\nAssim que o pagamento for confirmado, eu gero a prévia automaticamente. 😊",
	"pagamentoReenvio": "💳 Falta só pagar a taxa da PRÉVIA 😊\nPague exatamente *{valor}* aqui:\n{link}",
	"pagamentoJaEnviado": "✅ O link de pagamento já foi enviado. A confirmação é automática assim que o pagamento cair — aguarde um instante 😊",
	"pagamentoLembrete": "👋 Ainda está aí? Falta só pagar a taxa da *PRÉVIA* para eu gerar sua miniatura 😊",
	"pagueiAck": "⏳ Recebi! Estou conferindo seu pagamento…",
	"pagueiPendente": "Ainda não identifiquei o pagamento 😕 A confirmação é automática assim que o PIX cair. Se precisar, digite *humano*.",
	"pagamentoConfirmado": "✅ Pagamento confirmado! Vou gerar sua PRÉVIA agora 😊🎨",
	"previaEmAndamento": "Já estou gerando sua prévia 😊 Só um instante…",
	"previaAguarde": "⏳ Estou preparando sua prévia, só um instante 😊",
	"previaCaption": "✨ Aqui está a PRÉVIA da sua estatueta!\n\nAgora escolha o tamanho para liberar o pagamento:\n👉 16cm ou 21cm",
	"previaErro": "❌ Deu um erro ao gerar a prévia.\nPode reenviar a foto? Se preferir, digite *humano*.",
	"escolhaTamanho": "✨ Agora escolha o tamanho para continuar:\n👉 16cm ou 21cm",
	"orcamento": "🎉 Ótima escolha! Sua miniatura de {tamanho} fica por *{valor}*.\n\n✅ Garanta a sua aqui:\n{link}",
	"encerramento": "Qualquer dúvida é só chamar 😊 Digite *menu* para voltar ao início.",
	"humano": "👤 Certo! Vou te transferir para um atendente humano. Aguarde um instante 😊",
	"mascoteVazio": "Não encontrei mascotes com esse termo 😕 Me diga o nome do time que você procura.",
	"ensinado": "✅ Aprendi! Vou usar essa resposta a partir de agora.",
}

// Library holds the loaded script and serves it to the conversation flow. It
// is safe for concurrent use.
type Library struct {
	dir string

	mu      sync.RWMutex
	replies map[string]string
	system  string
	mtimes  map[string]time.Time
}

// New creates a Library rooted at dir and performs the initial load. Missing
// or unparsable files fall back to the built-in script.
func New(dir string) *Library {
	l := &Library{dir: dir, mtimes: make(map[string]time.Time)}
	l.Reload()
	return l
}

// Get returns the reply template for a key, falling back to the built-in
// script when the key is not overridden on disk.
func (l *Library) Get(key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.replies[key]; ok && v != "" {
		return v
	}
	return fallbackReplies[key]
}

// System returns the system prompt text.
func (l *Library) System() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.system
}

// Reload re-reads both script files from disk.
func (l *Library) Reload() {
	replies := make(map[string]string)
	if l.dir != "" {
		raw, err := os.ReadFile(filepath.Join(l.dir, RepliesFileName))
		if err == nil {
			if err := json.Unmarshal(raw, &replies); err != nil {
				slog.Warn("prompts replies.json unparsable, using fallbacks", "error", err)
				replies = make(map[string]string)
			}
		}
	}

	system := FallbackSystem
	if l.dir != "" {
		raw, err := os.ReadFile(filepath.Join(l.dir, SystemFileName))
		if err == nil {
			if s := strings.TrimSpace(string(raw)); s != "" {
				system = s
			}
		}
	}

	l.mu.Lock()
	l.replies = replies
	l.system = system
	l.mu.Unlock()
	slog.Debug("prompts library reloaded", "dir", l.dir, "override_count", len(replies))
}

// Watch polls the script files for modification-time changes until the
// context is cancelled, reloading on change. One goroutine per Library.
func (l *Library) Watch(ctx context.Context, interval time.Duration) {
	if l.dir == "" {
		return
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if l.changed() {
					slog.Info("prompts files changed on disk, reloading")
					l.Reload()
				}
			}
		}
	}()
}

// changed reports whether any watched file's mtime moved since last check.
func (l *Library) changed() bool {
	dirty := false
	for _, name := range []string{RepliesFileName, SystemFileName} {
		info, err := os.Stat(filepath.Join(l.dir, name))
		if err != nil {
			continue
		}
		l.mu.Lock()
		if !info.ModTime().Equal(l.mtimes[name]) {
			l.mtimes[name] = info.ModTime()
			dirty = true
		}
		l.mu.Unlock()
	}
	return dirty
}

// Render substitutes template variables of the form {key}. The {nome}
// variable gets a leading space when non-empty so greetings read naturally
// with or without a known name.
func Render(tpl string, vars map[string]string) string {
	out := tpl
	for k, v := range vars {
		if k == "nome" && v != "" {
			v = " " + v
		}
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
