package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/wabot/internal/settings"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ErrNoCredentials is returned when no API key is configured.
var ErrNoCredentials = errors.New("ai: no API key configured")

// Generator produces a reply for one inbound text. A nil result with a nil
// error means there is nothing to send.
type Generator interface {
	Generate(ctx context.Context, text string, g Grounding, creds settings.Credentials) (*Result, error)
}

// GenAIConfig configures a GenAI generator.
type GenAIConfig struct {
	Model       string
	Temperature float32
	// BaseURL overrides the API endpoint.
	BaseURL string
	Logger  *zap.Logger
}

// GenAI generates replies with the Gemini API. One client is kept per API key.
type GenAI struct {
	cfg    GenAIConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

var _ Generator = (*GenAI)(nil)

// NewGenAI creates a Gemini-backed generator.
func NewGenAI(cfg GenAIConfig) *GenAI {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenAI{cfg: cfg, logger: logger.Named("ai"), clients: make(map[string]*genai.Client)}
}

func (g *GenAI) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if g.cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = g.cfg.BaseURL
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

// Generate asks the model for a JSON reply and parses it.
func (g *GenAI) Generate(ctx context.Context, text string, gr Grounding, creds settings.Credentials) (*Result, error) {
	if creds.APIKey == "" {
		return nil, ErrNoCredentials
	}
	client, err := g.client(ctx, creds.APIKey)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, g.cfg.Model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(gr.SystemInstruction(), genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr(g.cfg.Temperature),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	g.logger.Debug("model replied", zap.String("model", g.cfg.Model), zap.Int("bytes", len(raw)))
	return ParseReply(raw, gr.Bot), nil
}
