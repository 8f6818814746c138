package live

import (
	"context"
	"encoding/json"

	"github.com/smallbiznis/paysync/internal/order/domain"
	"go.uber.org/zap"
)

const clientBuffer = 16

type client struct {
	orderRef string
	send     chan []byte
}

// Hub fans committed order transitions out to websocket subscribers keyed
// by provider order ref. All map access happens on the Run goroutine.
type Hub struct {
	log        *zap.Logger
	register   chan *client
	unregister chan *client
	broadcast  chan domain.StatusUpdate
	clients    map[string]map[*client]struct{}
	done       chan struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log.Named("order.live"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan domain.StatusUpdate, 64),
		clients:    make(map[string]map[*client]struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.orderRef]
			if !ok {
				set = make(map[*client]struct{})
				h.clients[c.orderRef] = set
			}
			set[c] = struct{}{}
		case c := <-h.unregister:
			h.remove(c)
		case upd := <-h.broadcast:
			msg, err := json.Marshal(upd)
			if err != nil {
				continue
			}
			for c := range h.clients[upd.OrderRef] {
				select {
				case c.send <- msg:
				default:
					// Slow subscriber: drop it rather than block the hub.
					h.remove(c)
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = map[string]map[*client]struct{}{}
			return
		}
	}
}

// Publish never blocks the caller; updates are dropped when the hub is
// saturated or stopped.
func (h *Hub) Publish(update domain.StatusUpdate) {
	select {
	case h.broadcast <- update:
	case <-h.done:
	default:
		h.log.Warn("live update dropped", zap.String("provider_order_ref", update.OrderRef))
	}
}

func (h *Hub) subscribe(orderRef string) (*client, bool) {
	c := &client{orderRef: orderRef, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
		return c, true
	case <-h.done:
		return nil, false
	}
}

func (h *Hub) unsubscribe(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *client) {
	set, ok := h.clients[c.orderRef]
	if !ok {
		return
	}
	if _, exists := set[c]; exists {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.orderRef)
	}
}
