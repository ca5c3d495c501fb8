package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/matheus3301/wabot/internal/settings"
)

// fakeGemini answers generateContent calls with a fixed model text.
func fakeGemini(t *testing.T, reply string, calls *atomic.Int32, lastBody *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": reply}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenAIGenerate(t *testing.T) {
	var calls atomic.Int32
	var body atomic.Value
	srv := fakeGemini(t, `{"text":"Paket A Rp 50.000","knowledgeId":"k1","disclaimer":false}`, &calls, &body)

	g := NewGenAI(GenAIConfig{Model: "test-model", Temperature: 0.7, BaseURL: srv.URL + "/"})
	res, err := g.Generate(context.Background(), "harga berapa?", Grounding{Bot: pricedBot()}, settings.Credentials{APIKey: "k"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res == nil || res.Text != "Paket A Rp 50.000" || res.MediaURL != "https://cdn.example/a.jpg" {
		t.Fatalf("Generate = %+v", res)
	}
	sent := body.Load().(string)
	for _, want := range []string{"harga berapa?", "application/json", "Paket A Rp 50.000"} {
		if !strings.Contains(sent, want) {
			t.Errorf("request body missing %q", want)
		}
	}

	// The client for a key is reused.
	if _, err := g.Generate(context.Background(), "lagi", Grounding{Bot: pricedBot()}, settings.Credentials{APIKey: "k"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(g.clients) != 1 {
		t.Errorf("clients = %d, want 1", len(g.clients))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGenAINoCredentials(t *testing.T) {
	g := NewGenAI(GenAIConfig{})
	_, err := g.Generate(context.Background(), "hi", Grounding{}, settings.Credentials{})
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestGenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":400,"message":"boom"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewGenAI(GenAIConfig{BaseURL: srv.URL + "/"})
	res, err := g.Generate(context.Background(), "hi", Grounding{}, settings.Credentials{APIKey: "k"})
	if err == nil {
		t.Fatalf("expected error, got %+v", res)
	}
}
