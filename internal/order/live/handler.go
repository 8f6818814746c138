package live

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smallbiznis/paysync/internal/order/domain"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	hub      *Hub
	orderSvc domain.Service
	log      *zap.Logger
}

func NewHandler(hub *Hub, orderSvc domain.Service, log *zap.Logger) *Handler {
	return &Handler{hub: hub, orderSvc: orderSvc, log: log.Named("order.live")}
}

// Serve upgrades the connection, writes the order's current status and then
// every committed transition until either side closes. The order is looked
// up before upgrading so unknown refs get a plain HTTP error.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, orderRef string) error {
	order, err := h.orderSvc.Get(r.Context(), orderRef)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	c, ok := h.hub.subscribe(order.ProviderOrderRef)
	if !ok {
		_ = conn.Close()
		return nil
	}

	snapshot, _ := json.Marshal(domain.NewStatusUpdate(order, order.UpdatedAt))
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
		h.hub.unsubscribe(c)
		_ = conn.Close()
		return nil
	}

	go h.writePump(conn, c)
	go h.readPump(conn, c)
	return nil
}

func (h *Handler) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		h.hub.unsubscribe(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
