package main

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/577fkj/powermust-ups/powermust"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// webEvent is one published value as sent to websocket clients.
type webEvent struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type commandRequest struct {
	Command string `json:"command"`
	Switch  string `json:"switch"`
	On      bool   `json:"on"`
}

const (
	webWriteWait  = 5 * time.Second
	webSendBuffer = 128
)

// webClient owns one websocket. Only writePump writes to conn.
type webClient struct {
	conn *websocket.Conn
	send chan webEvent
}

func (c *webClient) writePump() {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(webWriteWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			Logger.Debugf("web: client gone: %v", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(webWriteWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// webHub keeps the latest value of every field and streams changes to
// connected websocket clients. Publishing never waits on a client: a
// client whose buffer is full is dropped.
type webHub struct {
	commands chan<- string

	stateMu sync.Mutex
	state   map[string]webEvent

	// clientsMu is taken after stateMu when both are held.
	clientsMu sync.Mutex
	clients   map[*webClient]bool

	broadcast chan webEvent
}

func newWebHub(commands chan<- string) *webHub {
	return &webHub{
		commands:  commands,
		state:     map[string]webEvent{},
		clients:   map[*webClient]bool{},
		broadcast: make(chan webEvent, 64),
	}
}

func (h *webHub) update(kind, name string, value any) {
	ev := webEvent{Kind: kind, Name: name, Value: value}
	h.stateMu.Lock()
	h.state[name] = ev
	h.stateMu.Unlock()
	select {
	case h.broadcast <- ev:
	default:
		Logger.Debugf("web: broadcast full, dropping %s", name)
	}
}

func (h *webHub) PublishNumber(field powermust.Field, v float64) {
	var value any = v
	if math.IsNaN(v) || math.IsInf(v, 0) {
		value = nil
	}
	h.update("number", string(field), value)
}

func (h *webHub) PublishBinary(field powermust.Field, v bool) {
	h.update("binary", string(field), v)
}

func (h *webHub) PublishText(field powermust.Field, v string) {
	h.update("text", string(field), v)
}

func (h *webHub) PublishSwitch(sw powermust.Switch, on bool) {
	h.update("switch", string(sw), on)
}

func (h *webHub) snapshot() []webEvent {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	out := make([]webEvent, 0, len(h.state))
	for _, ev := range h.state {
		out = append(out, ev)
	}
	return out
}

// drop unregisters c. Callers hold clientsMu.
func (h *webHub) drop(c *webClient) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
}

func (h *webHub) clientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// run fans events out to clients until ctx is done.
func (h *webHub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.clientsMu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.clientsMu.Unlock()
			return
		case ev := <-h.broadcast:
			h.clientsMu.Lock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					Logger.Warnf("web: client %s too slow, dropping", c.conn.RemoteAddr())
					h.drop(c)
				}
			}
			h.clientsMu.Unlock()
		}
	}
}

func (h *webHub) handleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Warnf("web: upgrade: %v", err)
		return
	}
	c := &webClient{conn: ws, send: make(chan webEvent, webSendBuffer)}

	// The snapshot is queued ahead of any later broadcast.
	h.stateMu.Lock()
	h.clientsMu.Lock()
	for _, ev := range h.state {
		select {
		case c.send <- ev:
		default:
		}
	}
	h.clients[c] = true
	h.clientsMu.Unlock()
	h.stateMu.Unlock()

	go c.writePump()

	for {
		// Inbound messages are ignored; reading detects the close.
		if _, _, err := ws.ReadMessage(); err != nil {
			h.clientsMu.Lock()
			h.drop(c)
			h.clientsMu.Unlock()
			return
		}
	}
}

func (h *webHub) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := req.Command
	if req.Switch != "" {
		var ok bool
		cmd, ok = powermust.SwitchCommand(powermust.Switch(req.Switch), req.On)
		if !ok {
			http.Error(w, "unknown switch: "+req.Switch, http.StatusBadRequest)
			return
		}
	}
	if cmd == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	select {
	case h.commands <- cmd:
	default:
		http.Error(w, "command channel full", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"queued": cmd})
}

func (h *webHub) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.snapshot())
}

func newRouter(h *webHub, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleConnections)
	mux.HandleFunc("/command", h.handleCommand)
	mux.HandleFunc("/status", h.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}
