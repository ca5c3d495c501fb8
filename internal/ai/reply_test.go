package ai

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/matheus3301/wabot/internal/settings"
)

func pricedBot() settings.BotConfig {
	bot := settings.DefaultBotConfig()
	bot.KnowledgeBase = []settings.KnowledgeItem{
		{ID: "k1", Category: "Harga", Content: "Paket A Rp 50.000", MediaURL: "https://cdn.example/a.jpg", MediaType: "image", Buttons: []string{"Pesan", "Tanya"}},
		{ID: "k2", Category: "Jam Buka", Content: "08.00 - 17.00"},
	}
	return bot
}

func TestParseReply(t *testing.T) {
	bot := pricedBot()
	tests := []struct {
		name string
		raw  string
		want *Result
	}{
		{"empty", "   ", nil},
		{"plain text", "Halo kak!", &Result{Text: "Halo kak!"}},
		{
			"knowledge reference attaches media",
			`{"text":"Paket A harganya Rp 50.000","knowledgeId":"k1","disclaimer":false}`,
			&Result{Text: "Paket A harganya Rp 50.000", KnowledgeID: "k1", MediaURL: "https://cdn.example/a.jpg", MediaType: "image", Buttons: []string{"Pesan", "Tanya"}},
		},
		{
			"unknown knowledge id is dropped",
			`{"text":"Maaf","knowledgeId":"nope"}`,
			&Result{Text: "Maaf"},
		},
		{
			"disclaimer",
			`{"text":"Mungkin sekitar jam 9","disclaimer":true}`,
			&Result{Text: "Mungkin sekitar jam 9" + DisclaimerNote, Disclaimer: true},
		},
		{
			"fenced json",
			"```json\n{\"text\":\"Buka jam 8\",\"knowledgeId\":\"k2\"}\n```",
			&Result{Text: "Buka jam 8", KnowledgeID: "k2"},
		},
		{"json without text", `{"knowledgeId":"k1"}`, nil},
		{"broken json", `{"text": "unterminated`, nil},
		{"json array", `["Halo kak"]`, nil},
		{"json string", `"Halo kak"`, nil},
		{"fenced array", "```json\n[{\"text\":\"x\"}]\n```", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReply(tt.raw, bot)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseReply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSystemInstruction(t *testing.T) {
	g := Grounding{Bot: pricedBot()}
	si := g.SystemInstruction()
	for _, want := range []string{
		`"Toko Saya"`,
		"UMKM Bergerak di bidang jasa/produk",
		"Ramah dan membantu",
		"[ID: k1][Category: Harga]: Paket A Rp 50.000 (Media Available: image) (Buttons Available: Pesan, Tanya)",
		"[ID: k2][Category: Jam Buka]: 08.00 - 17.00\n",
	} {
		if !strings.Contains(si, want) {
			t.Errorf("system instruction missing %q", want)
		}
	}

	empty := Grounding{Bot: settings.DefaultBotConfig()}.SystemInstruction()
	if !strings.Contains(empty, "Tidak ada data khusus yang tersimpan.") {
		t.Error("empty knowledge base should say so")
	}
}
