package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natebag/MLG-BETA/internal/gate/events"
)

const sseHeartbeatInterval = 15 * time.Second

// StreamAuthorizationEvents streams finished authorizations of one action
// kind as server-sent events.
func (s *Server) StreamAuthorizationEvents(c *gin.Context) {
	if s.events == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	actionKind := strings.TrimSpace(c.Param("actionKind"))
	kind, err := s.catalog.Lookup(actionKind)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("action_kind", kind.Name)

	subscription, backlog, err := s.events.Subscribe(kind.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeAuthorizationEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeAuthorizationEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeAuthorizationEvent(w io.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: authorization\ndata: %s\n\n", data)
	return err
}
