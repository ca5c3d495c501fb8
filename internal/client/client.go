// Package client talks to a running wabotd: the operator API over HTTP and
// the health service over the instance socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/wabot/internal/conn"
	"github.com/matheus3301/wabot/internal/settings"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/txlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// APIError is a non-2xx answer from the operator API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Code)
}

// Client wraps the daemon's HTTP API and its gRPC health socket.
type Client struct {
	base   string
	http   *http.Client
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// New prepares a client for the API at addr (host:port or URL) and the
// health service at socketPath. Nothing is dialed until the first call.
func New(addr, socketPath string) (*Client, error) {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	cc, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		conn:   cc,
		health: healthpb.NewHealthClient(cc),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Health reports the serving status of a health service ("" = the daemon).
func (c *Client) Health(ctx context.Context, service string) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", err
	}
	return resp.Status.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status is the daemon's view of the session and cache.
type Status struct {
	Session  conn.Snapshot `json:"session"`
	Contacts int64         `json:"contacts"`
	Messages int64         `json:"messages"`
	Syncing  bool          `json:"syncing"`
	Dropped  uint64        `json:"dropped_events"`
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	return &s, c.do(ctx, http.MethodGet, "/api/status", nil, &s)
}

// QR returns the pending pairing challenge.
func (c *Client) QR(ctx context.Context) (string, error) {
	var r struct {
		Code string `json:"code"`
	}
	err := c.do(ctx, http.MethodGet, "/api/session/qr", nil, &r)
	return r.Code, err
}

func (c *Client) Open(ctx context.Context, endpoint string) (*conn.Snapshot, error) {
	var s conn.Snapshot
	return &s, c.do(ctx, http.MethodPost, "/api/session/open", map[string]string{"endpoint": endpoint}, &s)
}

func (c *Client) Switch(ctx context.Context) (*conn.Snapshot, error) {
	var s conn.Snapshot
	return &s, c.do(ctx, http.MethodPost, "/api/session/switch", nil, &s)
}

// Contacts lists cached contacts, filtered by query when non-empty.
func (c *Client) Contacts(ctx context.Context, query string) ([]store.Contact, error) {
	path := "/api/contacts"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out []store.Contact
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) SyncContacts(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/contacts/sync", nil, nil)
}

// Send queues a manual message to jid (a JID or bare phone number).
func (c *Client) Send(ctx context.Context, jid, text string) (*store.Message, error) {
	var m store.Message
	return &m, c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(jid)+"/messages", map[string]string{"text": text}, &m)
}

func (c *Client) Messages(ctx context.Context, jid string, limit int) ([]store.Message, error) {
	var out []store.Message
	path := fmt.Sprintf("/api/conversations/%s/messages?limit=%d", url.PathEscape(jid), limit)
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Blast dispatches text to a group, or to every contact when groupID is empty.
func (c *Client) Blast(ctx context.Context, text, groupID string) (*store.BlastRecord, error) {
	var r store.BlastRecord
	return &r, c.do(ctx, http.MethodPost, "/api/blasts", map[string]string{"text": text, "group_id": groupID}, &r)
}

func (c *Client) History(ctx context.Context) ([]store.BlastRecord, error) {
	var out []store.BlastRecord
	return out, c.do(ctx, http.MethodGet, "/api/blasts", nil, &out)
}

func (c *Client) Resend(ctx context.Context, id string) (*store.BlastRecord, error) {
	var r store.BlastRecord
	return &r, c.do(ctx, http.MethodPost, "/api/blasts/"+url.PathEscape(id)+"/resend", nil, &r)
}

func (c *Client) Groups(ctx context.Context) ([]store.CampaignGroup, error) {
	var out []store.CampaignGroup
	return out, c.do(ctx, http.MethodGet, "/api/groups", nil, &out)
}

func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (*store.CampaignGroup, error) {
	var g store.CampaignGroup
	body := map[string]any{"name": name, "contacts": members}
	return &g, c.do(ctx, http.MethodPost, "/api/groups", body, &g)
}

func (c *Client) TxLog(ctx context.Context) ([]txlog.Entry, error) {
	var out []txlog.Entry
	return out, c.do(ctx, http.MethodGet, "/api/txlog", nil, &out)
}

func (c *Client) Bot(ctx context.Context) (*settings.BotConfig, error) {
	var b settings.BotConfig
	return &b, c.do(ctx, http.MethodGet, "/api/bot", nil, &b)
}

func (c *Client) SetBot(ctx context.Context, b settings.BotConfig) error {
	return c.do(ctx, http.MethodPut, "/api/bot", b, nil)
}

func (c *Client) SetCredentials(ctx context.Context, apiKey string) error {
	return c.do(ctx, http.MethodPut, "/api/credentials", settings.Credentials{APIKey: apiKey}, nil)
}
