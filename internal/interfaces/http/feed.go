package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans appended events out to websocket monitor clients, one
// subscription set per chain. Slow clients are dropped, never waited on;
// the feed is a convenience view, the chain itself is the source of truth.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*websocket.Conn]struct{}
	metrics *Metrics
}

func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		subs:    make(map[string]map[*websocket.Conn]struct{}),
		metrics: metrics,
	}
}

func (h *Hub) subscribe(chainID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[chainID] == nil {
		h.subs[chainID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[chainID][conn] = struct{}{}
	h.metrics.StreamClients.Inc()
}

func (h *Hub) unsubscribe(chainID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[chainID][conn]; ok {
		delete(h.subs[chainID], conn)
		h.metrics.StreamClients.Dec()
	}
	conn.Close()
}

// Publish sends v to every subscriber of the chain.
func (h *Hub) Publish(chainID string, v interface{}) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs[chainID]))
	for conn := range h.subs[chainID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			log.Debug().Err(err).Str("chain_id", chainID).Msg("dropping slow stream client")
			h.unsubscribe(chainID, conn)
		}
	}
}

// serve upgrades the request and holds the connection until the client goes
// away. The read loop exists only to observe the close.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, chainID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.subscribe(chainID, conn)
	defer h.unsubscribe(chainID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
