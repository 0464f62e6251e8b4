package realtime

import (
	"fmt"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Upgrader is the default WebSocket upgrader.
var Upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and streams hub events to it until either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := NewClient(fmt.Sprintf("ws_%s_%d", userID, time.Now().UnixNano()), userID)
	h.Register(client)

	// 读循环只处理 pong 和关闭帧
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			h.Unregister(client.ID)
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.Unregister(client.ID)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.Unregister(client.ID)
				return
			}
		}
	}
}
