package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabot/internal/settings"
)

func (s *Server) handleGetBot(c *gin.Context) {
	bot, err := s.Settings.Bot()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) handlePutBot(c *gin.Context) {
	var bot settings.BotConfig
	if err := c.ShouldBindJSON(&bot); err != nil {
		s.badRequest(c, err)
		return
	}
	if bot.KnowledgeBase == nil {
		bot.KnowledgeBase = []settings.KnowledgeItem{}
	}
	if err := s.Settings.SetBot(bot); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) handleAddKnowledge(c *gin.Context) {
	var item settings.KnowledgeItem
	if err := c.ShouldBindJSON(&item); err != nil {
		s.badRequest(c, err)
		return
	}
	added, err := s.Settings.AddKnowledge(item)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

func (s *Server) handleRemoveKnowledge(c *gin.Context) {
	if err := s.Settings.RemoveKnowledge(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetCredentials(c *gin.Context) {
	creds, err := s.Settings.Credentials()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": creds.APIKey != ""})
}

func (s *Server) handlePutCredentials(c *gin.Context) {
	var creds settings.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.Settings.SetCredentials(creds); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": creds.APIKey != ""})
}

func (s *Server) handleGetTab(c *gin.Context) {
	tab, err := s.Settings.Tab()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tab": tab})
}

func (s *Server) handlePutTab(c *gin.Context) {
	var req struct {
		Tab string `json:"tab"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.Settings.SetTab(req.Tab); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tab": req.Tab})
}

func (s *Server) handleGetIdentity(c *gin.Context) {
	id, ok, err := s.Settings.Identity()
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		s.fail(c, errNoIdentity)
		return
	}
	c.JSON(http.StatusOK, id)
}

func (s *Server) handlePutIdentity(c *gin.Context) {
	var id settings.Identity
	if err := c.ShouldBindJSON(&id); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.Settings.SetIdentity(id); err != nil {
		s.fail(c, err)
		return
	}
	stored, _, err := s.Settings.Identity()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *Server) handleClearIdentity(c *gin.Context) {
	if err := s.Settings.ClearIdentity(); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
