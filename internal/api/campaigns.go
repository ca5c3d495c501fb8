package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabot/internal/campaign"
	"github.com/matheus3301/wabot/internal/store"
)

type groupRequest struct {
	Name     string   `json:"name"`
	Contacts []string `json:"contacts"`
}

func (s *Server) handleListGroups(c *gin.Context) {
	groups, err := s.Campaigns.ListGroups()
	if err != nil {
		s.fail(c, err)
		return
	}
	if groups == nil {
		groups = []store.CampaignGroup{}
	}
	c.JSON(http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	g, err := s.Campaigns.CreateGroup(req.Name, req.Contacts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (s *Server) handleUpdateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	g, err := s.Campaigns.UpdateGroup(c.Param("id"), req.Name, req.Contacts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleDeleteGroup(c *gin.Context) {
	if err := s.Campaigns.DeleteGroup(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type dispatchRequest struct {
	Text    string `json:"text"`
	GroupID string `json:"group_id"`
}

func (s *Server) handleDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	rec, err := s.Campaigns.Dispatch(c.Request.Context(), req.Text, campaign.Target{GroupID: req.GroupID})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleHistory(c *gin.Context) {
	hist, err := s.Campaigns.History()
	if err != nil {
		s.fail(c, err)
		return
	}
	if hist == nil {
		hist = []store.BlastRecord{}
	}
	c.JSON(http.StatusOK, hist)
}

func (s *Server) handleResend(c *gin.Context) {
	rec, err := s.Campaigns.Resend(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleDeleteBlast(c *gin.Context) {
	if err := s.Campaigns.DeleteRecord(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTxLog(c *gin.Context) {
	c.JSON(http.StatusOK, s.TxLog.Entries())
}
