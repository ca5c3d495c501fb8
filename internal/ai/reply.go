package ai

import (
	"encoding/json"
	"strings"

	"github.com/matheus3301/wabot/internal/settings"
)

// DisclaimerNote is appended to replies built from general knowledge.
const DisclaimerNote = "\n\n---\n(Catatan: Jawaban ini dihasilkan oleh AI asisten. Mohon hubungi admin jika memerlukan info resmi.)"

// Result is a usable reply. Media and buttons come from the referenced
// knowledge item, if any.
type Result struct {
	Text        string
	KnowledgeID string
	Disclaimer  bool
	MediaURL    string
	MediaType   string
	Buttons     []string
}

type structuredReply struct {
	Text        string `json:"text"`
	KnowledgeID string `json:"knowledgeId"`
	Disclaimer  bool   `json:"disclaimer"`
}

// ParseReply interprets raw model output. Structured JSON replies may
// reference a knowledge item; anything else is taken as plain text. Returns
// nil when there is nothing to send.
func ParseReply(raw string, bot settings.BotConfig) *Result {
	raw = strings.TrimSpace(stripFence(raw))
	if raw == "" {
		return nil
	}

	var sr structuredReply
	if err := json.Unmarshal([]byte(raw), &sr); err != nil {
		// Broken or non-object JSON is malformed output, not prose.
		if strings.ContainsAny(raw[:1], `{["`) {
			return nil
		}
		return &Result{Text: raw}
	}
	sr.Text = strings.TrimSpace(sr.Text)
	if sr.Text == "" {
		return nil
	}

	res := &Result{Text: sr.Text, KnowledgeID: sr.KnowledgeID, Disclaimer: sr.Disclaimer}
	if item, ok := bot.FindKnowledge(sr.KnowledgeID); ok {
		res.MediaURL = item.MediaURL
		res.MediaType = item.MediaType
		res.Buttons = append([]string(nil), item.Buttons...)
	} else {
		res.KnowledgeID = ""
	}
	if res.Disclaimer {
		res.Text += DisclaimerNote
	}
	return res
}

// stripFence removes a surrounding markdown code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
