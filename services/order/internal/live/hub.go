// Package live pushes order and menu changes to websocket subscribers of a
// restaurant.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	middleware "github.com/Skotchmaster/restaurant_orders/pkg/middleware/auth"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type subscription struct {
	conn   *websocket.Conn
	tenant string
	send   chan []byte
}

type message struct {
	tenant  string
	payload []byte
}

// Hub fans messages out per restaurant. Run owns the subscriber set; every
// other method talks to it over channels.
type Hub struct {
	clients    map[string]map[*subscription]struct{}
	broadcast  chan message
	register   chan *subscription
	unregister chan *subscription
	done       chan struct{}

	mu       sync.RWMutex
	counts   map[string]int
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*subscription]struct{}),
		broadcast:  make(chan message, 256),
		register:   make(chan *subscription),
		unregister: make(chan *subscription),
		done:       make(chan struct{}),
		counts:     make(map[string]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "live"),
	}
}

// Run serves register, unregister and broadcast until ctx is done, then
// closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for tenant, subs := range h.clients {
				for sub := range subs {
					close(sub.send)
				}
				delete(h.clients, tenant)
			}
			h.setCounts()
			return

		case sub := <-h.register:
			if h.clients[sub.tenant] == nil {
				h.clients[sub.tenant] = make(map[*subscription]struct{})
			}
			h.clients[sub.tenant][sub] = struct{}{}
			h.setCounts()

		case sub := <-h.unregister:
			h.drop(sub)

		case msg := <-h.broadcast:
			for sub := range h.clients[msg.tenant] {
				select {
				case sub.send <- msg.payload:
				default:
					h.logger.Warn("live_subscriber_slow", "restaurant_id", sub.tenant)
					h.drop(sub)
				}
			}
		}
	}
}

func (h *Hub) drop(sub *subscription) {
	subs, ok := h.clients[sub.tenant]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.clients, sub.tenant)
	}
	h.setCounts()
}

func (h *Hub) setCounts() {
	counts := make(map[string]int, len(h.clients))
	for tenant, subs := range h.clients {
		counts[tenant] = len(subs)
	}
	h.mu.Lock()
	h.counts = counts
	h.mu.Unlock()
}

// Subscribers reports how many connections listen to tenant.
func (h *Hub) Subscribers(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[tenant]
}

// Broadcast queues msg for every subscriber of tenant. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) Broadcast(tenant string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("live_marshal_error", "error", err)
		return
	}
	select {
	case h.broadcast <- message{tenant: tenant, payload: payload}:
	default:
		h.logger.Warn("live_broadcast_dropped", "restaurant_id", tenant)
	}
}

// ServeWS upgrades an authenticated request and subscribes it to the
// caller's restaurant.
func (h *Hub) ServeWS(c echo.Context) error {
	tenant, _ := c.Get(middleware.CtxRestaurantID).(string)
	if tenant == "" {
		return echo.NewHTTPError(http.StatusForbidden, "token is not bound to a restaurant")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("live_upgrade_error", "error", err)
		return nil
	}

	sub := &subscription{conn: conn, tenant: tenant, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- sub:
	case <-h.done:
		_ = conn.Close()
		return nil
	case <-c.Request().Context().Done():
		_ = conn.Close()
		return nil
	}

	go h.writePump(sub)
	h.readPump(sub)
	return nil
}

// readPump only watches for the peer going away; clients do not send.
func (h *Hub) readPump(sub *subscription) {
	defer func() {
		select {
		case h.unregister <- sub:
		case <-h.done:
		}
	}()

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("live_read_error", "restaurant_id", sub.tenant, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("live_write_error", "restaurant_id", sub.tenant, "error", err)
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
