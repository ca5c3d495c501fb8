package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

type eventView struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload,omitempty"`
}

// handleEvents streams bus events as server-sent events. ?kind= narrows the
// stream to a namespace prefix.
func (s *Server) handleEvents(c *gin.Context) {
	ch, unsub := s.Bus.Subscribe(c.Query("kind"), 256)
	defer unsub()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("connected", gin.H{"type": "connected"})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-s.ctx.Done():
			return false
		case evt := <-ch:
			c.SSEvent(evt.Kind, eventView{Kind: evt.Kind, Timestamp: evt.Timestamp, Payload: evt.Payload})
			return true
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": t.UTC().Format(time.RFC3339)})
			return true
		}
	})
}
