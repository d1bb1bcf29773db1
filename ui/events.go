package ui

import (
	"io"
	"time"

	"gosegment/internal/wizard"
	"gosegment/ui/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// keepAlive is the interval of ping events on an idle stream.
const keepAlive = 30 * time.Second

// wizardEvent is the wire form of a controller event.
type wizardEvent struct {
	Kind       wizard.EventKind `json:"kind"`
	Step       wizard.StepID    `json:"step"`
	Generation uint64           `json:"generation"`
	Error      string           `json:"error,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// handleEvents streams the wizard's events as server-sent events until the
// client disconnects or the wizard closes.
func (s *Server) handleEvents(c *gin.Context) {
	w := middleware.Wizard(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events := make(chan wizardEvent, 16)
	unsubscribe := w.Subscribe(func(ev wizard.Event) {
		out := wizardEvent{Kind: ev.Kind, Step: ev.Step, Generation: ev.Generation, Timestamp: time.Now()}
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
		select {
		case events <- out:
		default:
			s.logger.Warn("event stream full, dropping event",
				zap.String("wizard_id", w.ID().String()), zap.String("kind", string(ev.Kind)))
		}
	})
	defer unsubscribe()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case ev := <-events:
			c.SSEvent(string(ev.Kind), ev)
			return ev.Kind != wizard.EventClosed
		case <-time.After(keepAlive):
			c.SSEvent("ping", gin.H{"timestamp": time.Now()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
