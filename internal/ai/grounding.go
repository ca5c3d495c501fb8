// Package ai produces auto-replies grounded in the business knowledge base.
package ai

import (
	"fmt"
	"strings"

	"github.com/matheus3301/wabot/internal/settings"
)

// Grounding is the context supplied with every generation call. There is no
// conversation memory; each call carries the full knowledge base.
type Grounding struct {
	Bot settings.BotConfig
}

// KnowledgeLine renders one knowledge item for the system instruction.
func KnowledgeLine(k settings.KnowledgeItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ID: %s][Category: %s]: %s", k.ID, k.Category, k.Content)
	if k.MediaURL != "" {
		fmt.Fprintf(&b, " (Media Available: %s)", k.MediaType)
	}
	if len(k.Buttons) > 0 {
		fmt.Fprintf(&b, " (Buttons Available: %s)", strings.Join(k.Buttons, ", "))
	}
	return b.String()
}

// SystemInstruction builds the assistant's instructions from the bot config.
func (g Grounding) SystemInstruction() string {
	lines := make([]string, 0, len(g.Bot.KnowledgeBase))
	for _, k := range g.Bot.KnowledgeBase {
		lines = append(lines, KnowledgeLine(k))
	}
	knowledge := strings.Join(lines, "\n")
	if knowledge == "" {
		knowledge = "Tidak ada data khusus yang tersimpan."
	}

	return fmt.Sprintf(`Anda adalah asisten WhatsApp resmi untuk %q.
Profil Bisnis: %s.
Gaya Bicara: %s.

DATA RESMI TOKO (KNOWLEDGE BASE):
%s

TUGAS ANDA:
1. Jawab pertanyaan pelanggan dengan ramah dan singkat.
2. Utamakan informasi dari DATA RESMI TOKO bila relevan.
3. Balas HANYA dengan objek JSON mentah (tanpa markdown) berbentuk:
{"text": "jawaban", "knowledgeId": "ID item data resmi yang dipakai atau kosong", "disclaimer": true atau false}
Isi disclaimer dengan true bila jawaban memakai pengetahuan umum di luar data resmi.`,
		g.Bot.BusinessName, g.Bot.Description, g.Bot.AutoReplyPrompt, knowledge)
}
