package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabot/internal/campaign"
	"github.com/matheus3301/wabot/internal/conn"
	"github.com/matheus3301/wabot/internal/outbox"
	"github.com/matheus3301/wabot/internal/settings"
	"go.uber.org/zap"
)

var (
	errNotFound     = errors.New("not found")
	errNoChallenge  = errors.New("no pairing challenge pending")
	errNoIdentity   = errors.New("no operator signed in")
	errMissingField = errors.New("missing required field")
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, conn.ErrNotConnected),
		errors.Is(err, conn.ErrSwitchInProgress),
		errors.Is(err, conn.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrEmptyMessage),
		errors.Is(err, campaign.ErrEmptyRecipients),
		errors.Is(err, campaign.ErrEmptyGroupName),
		errors.Is(err, outbox.ErrEmptyText),
		errors.Is(err, outbox.ErrInvalidTarget),
		errors.Is(err, settings.ErrInvalidTab),
		errors.Is(err, settings.ErrInvalidKnowledge),
		errors.Is(err, settings.ErrIdentityIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errMissingField):
		return http.StatusBadRequest
	case errors.Is(err, campaign.ErrGroupNotFound),
		errors.Is(err, campaign.ErrRecordNotFound),
		errors.Is(err, settings.ErrKnowledgeNotFound),
		errors.Is(err, errNotFound),
		errors.Is(err, errNoChallenge),
		errors.Is(err, errNoIdentity):
		return http.StatusNotFound
	case errors.Is(err, conn.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
