package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	diag "github.com/coreman2200/funtimes-ptycho/internal/diagnostics"
)

const writeWait = 200 * time.Millisecond

// Hub mirrors the host-link event lines and diagnostics to websocket
// clients and serves a JSON health snapshot.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
	// wmu serializes writes; a websocket allows one writer at a time.
	wmu sync.Mutex

	status    func() any
	control   func(msg map[string]any)
	startTime time.Time
	events    uint64
	log       zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
		startTime:   time.Now(),
		log:         logger,
	}
}

// SetStatus installs the snapshot served by /health. f must be safe to call
// from HTTP goroutines.
func (h *Hub) SetStatus(f func() any) {
	h.mu.Lock()
	h.status = f
	h.mu.Unlock()
}

// SetControl installs the handler for JSON messages received on /control.
func (h *Hub) SetControl(f func(msg map[string]any)) {
	h.mu.Lock()
	h.control = f
	h.mu.Unlock()
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.HandleEventsWS)
	mux.HandleFunc("/diag", h.HandleDiagWS)
	mux.HandleFunc("/control", h.HandleControlWS)
	mux.HandleFunc("/health", h.HandleHealth)
	return mux
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (h *Hub) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, h.clients)
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, h.diagClients)
}

// serveFeed registers a write-only client and drops it once reads fail.
func (h *Hub) serveFeed(w http.ResponseWriter, r *http.Request, set map[*websocket.Conn]bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	set[conn] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(set, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			h.PushDiag(diag.Diagnostic{Severity: diag.Warn, Code: "CONTROL.BAD_JSON", Summary: "Control message is not a JSON object"})
			continue
		}
		h.mu.RLock()
		f := h.control
		h.mu.RUnlock()
		if f != nil {
			f(msg)
		}
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := map[string]any{
		"uptime_s": time.Since(h.startTime).Seconds(),
		"events":   h.events,
		"clients":  len(h.clients),
	}
	status := h.status
	h.mu.RUnlock()
	if status != nil {
		resp["status"] = status()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Publish sends one event line to every /events client.
func (h *Hub) Publish(line string) {
	h.mu.Lock()
	h.events++
	h.mu.Unlock()
	h.broadcast(h.clients, []byte(line))
}

func (h *Hub) PushDiag(d diag.Diagnostic) {
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	h.broadcast(h.diagClients, b)
}

func (h *Hub) broadcast(set map[*websocket.Conn]bool, b []byte) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			h.log.Debug().Err(err).Msg("websocket write")
		}
	}
}

// Clients is the number of connected /events and /diag clients.
func (h *Hub) Clients() (events, diags int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.diagClients)
}
