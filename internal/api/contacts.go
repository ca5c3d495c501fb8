package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabot/internal/outbox"
	"github.com/matheus3301/wabot/internal/store"
)

func (s *Server) handleListContacts(c *gin.Context) {
	var (
		contacts []store.Contact
		err      error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		contacts, err = s.DB.SearchContacts(q)
	} else {
		contacts, err = s.DB.ListContacts()
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

func (s *Server) handleSyncContacts(c *gin.Context) {
	if err := s.Conn.RequestContacts(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"syncing": true})
}

func (s *Server) handleDeleteContact(c *gin.Context) {
	ok, err := s.Reconciler.DeleteContact(c.Param("jid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		s.fail(c, errNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	msgs, err := s.DB.ListMessages(c.Param("jid"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

type sendRequest struct {
	Text      string   `json:"text"`
	MediaURL  string   `json:"media_url"`
	MediaType string   `json:"media_type"`
	Buttons   []string `json:"buttons"`
}

func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.Conn.Ready(); err != nil {
		s.fail(c, err)
		return
	}
	msg, err := s.Outbox.Enqueue(c.Request.Context(), outbox.Outbound{
		ChatJID:   c.Param("jid"),
		Text:      req.Text,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
		Buttons:   req.Buttons,
		Origin:    outbox.OriginManual,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, msg)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	if err := s.Engine.MarkRead(c.Param("jid")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearConversation(c *gin.Context) {
	n, err := s.Engine.ClearConversation(c.Param("jid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
