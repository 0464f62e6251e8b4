package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/shared/realtime"
)

// RealtimeHandler mo_update 推送（SSE 与 websocket）
type RealtimeHandler struct {
	hub *realtime.Hub
}

// Stream handles the SSE endpoint
// GET /api/v1/mes/events?token=xxx
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID := GetUserID(c)
	client := realtime.NewClient(fmt.Sprintf("sse_%s_%d", userID, time.Now().UnixNano()), userID)
	h.hub.Register(client)
	defer h.hub.Unregister(client.ID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString("event: connected\ndata: {\"client_id\":\"" + client.ID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			c.Writer.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, event.Data))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}

// WebSocket GET /api/v1/mes/ws?token=xxx
func (h *RealtimeHandler) WebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request, GetUserID(c))
}
