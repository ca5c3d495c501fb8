package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabot/internal/conn"
	"github.com/skip2/go-qrcode"
)

type statusResponse struct {
	Session  conn.Snapshot `json:"session"`
	Contacts int64         `json:"contacts"`
	Messages int64         `json:"messages"`
	Syncing  bool          `json:"syncing"`
	Dropped  uint64        `json:"dropped_events"`
}

func (s *Server) handleStatus(c *gin.Context) {
	contacts, err := s.DB.ContactCount()
	if err != nil {
		s.fail(c, err)
		return
	}
	messages, err := s.DB.MessageCount()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Session:  s.Conn.Current(),
		Contacts: contacts,
		Messages: messages,
		Syncing:  s.Reconciler.Syncing(),
		Dropped:  s.Bus.Dropped(),
	})
}

type openRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		s.fail(c, errMissingField)
		return
	}
	if err := s.Conn.Open(c.Request.Context(), endpoint); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.Conn.Current())
}

func (s *Server) handleSwitch(c *gin.Context) {
	if err := s.Conn.RequestAccountSwitch(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.Conn.Current())
}

func (s *Server) handleQR(c *gin.Context) {
	snap := s.Conn.Current()
	if snap.Status != conn.QRPending || snap.Challenge == "" {
		s.fail(c, errNoChallenge)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": snap.Challenge})
}

func (s *Server) handleQRPNG(c *gin.Context) {
	snap := s.Conn.Current()
	if snap.Status != conn.QRPending || snap.Challenge == "" {
		s.fail(c, errNoChallenge)
		return
	}
	png, err := qrcode.Encode(snap.Challenge, qrcode.Medium, 256)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
