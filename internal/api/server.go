// Package api exposes the orchestrator to operators as JSON over HTTP, with
// a server-sent event stream of bus events.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/campaign"
	"github.com/matheus3301/wabot/internal/conn"
	"github.com/matheus3301/wabot/internal/outbox"
	"github.com/matheus3301/wabot/internal/settings"
	"github.com/matheus3301/wabot/internal/store"
	intsync "github.com/matheus3301/wabot/internal/sync"
	"github.com/matheus3301/wabot/internal/txlog"
	"go.uber.org/zap"
)

// Deps are the components the API drives.
type Deps struct {
	DB         *store.DB
	Bus        *bus.Bus
	Conn       *conn.Manager
	Engine     *intsync.Engine
	Reconciler *intsync.Reconciler
	Outbox     *outbox.Sender
	Campaigns  *campaign.Service
	Settings   *settings.Store
	TxLog      *txlog.Log
	Logger     *zap.Logger
}

// Server is the operator HTTP API.
type Server struct {
	Deps
	engine *gin.Engine

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
}

// New builds the router.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.Named("api")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{Deps: d, engine: router, ctx: ctx, cancel: cancel}
	s.registerRoutes(router)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.Logger.Info("operator API listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("operator API stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Shutdown ends event streams and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/status", s.handleStatus)
	api.POST("/session/open", s.handleOpen)
	api.POST("/session/switch", s.handleSwitch)
	api.GET("/session/qr", s.handleQR)
	api.GET("/session/qr.png", s.handleQRPNG)

	api.GET("/contacts", s.handleListContacts)
	api.POST("/contacts/sync", s.handleSyncContacts)
	api.DELETE("/contacts/:jid", s.handleDeleteContact)

	api.GET("/conversations/:jid/messages", s.handleListMessages)
	api.POST("/conversations/:jid/messages", s.handleSend)
	api.POST("/conversations/:jid/read", s.handleMarkRead)
	api.DELETE("/conversations/:jid", s.handleClearConversation)

	api.GET("/bot", s.handleGetBot)
	api.PUT("/bot", s.handlePutBot)
	api.POST("/knowledge", s.handleAddKnowledge)
	api.DELETE("/knowledge/:id", s.handleRemoveKnowledge)
	api.GET("/credentials", s.handleGetCredentials)
	api.PUT("/credentials", s.handlePutCredentials)
	api.GET("/tab", s.handleGetTab)
	api.PUT("/tab", s.handlePutTab)
	api.GET("/identity", s.handleGetIdentity)
	api.PUT("/identity", s.handlePutIdentity)
	api.DELETE("/identity", s.handleClearIdentity)

	api.GET("/groups", s.handleListGroups)
	api.POST("/groups", s.handleCreateGroup)
	api.PUT("/groups/:id", s.handleUpdateGroup)
	api.DELETE("/groups/:id", s.handleDeleteGroup)

	api.GET("/blasts", s.handleHistory)
	api.POST("/blasts", s.handleDispatch)
	api.POST("/blasts/:id/resend", s.handleResend)
	api.DELETE("/blasts/:id", s.handleDeleteBlast)

	api.GET("/txlog", s.handleTxLog)
	api.GET("/events", s.handleEvents)
}
