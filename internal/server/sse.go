package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	sseBuffer    = 512
	sseKeepAlive = 15 * time.Second
)

// handleEvents streams bus events as server-sent events named after their
// type. The first event is a "status" snapshot so clients never start blind.
func (r *Router) handleEvents(c *gin.Context) {
	ch, cancel := r.cfg.Events.Subscribe(sseBuffer)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("status", r.cfg.Supervisor.Status())
	c.Writer.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-ctx.Done():
			return false
		}
	})
}
