package api

import (
	"strings"

	"github.com/michelskapp-design/3DFANS/internal/util"
)

// Chat gateway webhook payloads have drifted across gateway versions: the
// phone, text and image fields have each lived under several names. The
// extractors below try every known spelling so a gateway upgrade does not
// silently drop messages.

// chatPayload is the decoded webhook body. Gateways nest fields arbitrarily,
// so it stays a generic map and the extractors walk candidate paths.
type chatPayload map[string]any

func (p chatPayload) str(keys ...string) string {
	for _, key := range keys {
		if v, ok := p[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (p chatPayload) sub(key string) chatPayload {
	if v, ok := p[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return chatPayload(m)
		}
	}
	return nil
}

// extractPhone finds the sender phone under its historical field names,
// including the nested data/message/text envelopes older gateways used.
func extractPhone(p chatPayload) string {
	if s := p.str("phone", "from", "sender", "participantPhone", "chatId"); s != "" {
		return strings.TrimSuffix(s, "@c.us")
	}
	for _, key := range []string{"data", "message", "text"} {
		if env := p.sub(key); env != nil {
			if s := env.str("phone", "from"); s != "" {
				return strings.TrimSuffix(s, "@c.us")
			}
		}
	}
	return ""
}

// extractText finds the message text. Newer gateway versions nest it under
// text.message; older ones sent it flat.
func extractText(p chatPayload) string {
	if t := p.sub("text"); t != nil {
		if s := t.str("message", "body", "text"); s != "" {
			return s
		}
	}
	if s := p.str("message", "body", "content"); s != "" {
		return s
	}
	if d := p.sub("data"); d != nil {
		if s := d.str("message"); s != "" {
			return s
		}
		if t := d.sub("text"); t != nil {
			if s := t.str("message"); s != "" {
				return s
			}
		}
	}
	// Image captions count as text when no body is present.
	if img := p.sub("image"); img != nil {
		return img.str("caption")
	}
	return ""
}

// extractImageURL finds the first usable image URL across payload variants.
func extractImageURL(p chatPayload) string {
	if img := p.sub("image"); img != nil {
		if s := img.str("imageUrl", "url"); s != "" {
			return s
		}
	}
	if s := p.str("imageUrl", "photo", "mediaUrl"); s != "" {
		return s
	}
	for _, key := range []string{"message", "data"} {
		if env := p.sub(key); env != nil {
			if img := env.sub("image"); img != nil {
				if s := img.str("imageUrl", "url"); s != "" {
					return s
				}
			}
		}
	}
	if med := p.sub("media"); med != nil {
		if s := med.str("url"); s != "" {
			return s
		}
	}
	if doc := p.sub("document"); doc != nil {
		if s := doc.str("documentUrl"); s != "" && looksLikeImage(s, doc.str("mimeType")) {
			return s
		}
	}
	return ""
}

// extractName finds the sender display name. Only the first name is used in
// greetings; blank or whitespace-only values fall through to the next
// candidate.
func extractName(p chatPayload) string {
	for _, key := range []string{"senderName", "pushName", "chatName", "name"} {
		if first := util.FirstName(p.str(key)); first != "" {
			return first
		}
	}
	if d := p.sub("data"); d != nil {
		if first := util.FirstName(d.str("senderName")); first != "" {
			return first
		}
	}
	for _, key := range []string{"sender", "contact"} {
		if env := p.sub(key); env != nil {
			if first := util.FirstName(env.str("name")); first != "" {
				return first
			}
		}
	}
	return ""
}

// isFromSelf reports whether the event echoes the bot's own outbound message.
func isFromSelf(p chatPayload) bool {
	if v, ok := p["fromMe"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// isGroupMessage reports whether the event comes from a group chat.
func isGroupMessage(p chatPayload) bool {
	if v, ok := p["isGroup"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return strings.Contains(p.str("chatId"), "@g.us")
}

// looksLikeImage guards document attachments: customers sometimes send the
// photo as a file.
func looksLikeImage(url, mime string) bool {
	if strings.HasPrefix(mime, "image/") {
		return true
	}
	lower := strings.ToLower(url)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}
