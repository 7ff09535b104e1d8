package web

import (
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/idilsaglam/livetodo/internal/logging"
	"github.com/idilsaglam/livetodo/internal/metrics"
	"github.com/idilsaglam/livetodo/internal/model"
)

// Messages pushed to browsers.
const (
	msgList  = "list"
	msgError = "error"
)

type serverMessage struct {
	Type    string `json:"type"`
	HTML    string `json:"html,omitempty"`
	Message string `json:"message,omitempty"`
}

// clientSendBuffer bounds queued pushes per browser; a client that falls this
// far behind is dropped.
const clientSendBuffer = 16

type client struct {
	send chan []byte
	once sync.Once
}

func newClient() *client {
	return &client{send: make(chan []byte, clientSendBuffer)}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans rendered lists out to every connected browser.
type Hub struct {
	logger  *log.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

func newHub(logger *log.Logger, m *metrics.Recorder) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{logger: logger, metrics: m, clients: make(map[*client]struct{})}
}

func (h *Hub) register(c *client, items []model.TodoItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.metrics.ClientConnected()

	msg := h.last
	if msg == nil {
		var err error
		if msg, err = encodeList(items); err != nil {
			h.logger.Error("render list", "err", err)
			return
		}
	}
	c.send <- msg
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.metrics.ClientDisconnected()
	c.close()
}

// Broadcast renders items once and queues the markup for every client.
func (h *Hub) Broadcast(items []model.TodoItem) {
	msg, err := encodeList(items)
	if err != nil {
		h.logger.Error("render list", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	for c := range h.clients {
		h.queueLocked(c, msg)
	}
}

// BroadcastError tells every client about a sync failure.
func (h *Hub) BroadcastError(text string) {
	msg, err := json.Marshal(serverMessage{Type: msgError, Message: text})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.queueLocked(c, msg)
	}
}

// sendError tells one client about a failed write.
func (h *Hub) sendError(c *client, text string) {
	msg, err := json.Marshal(serverMessage{Type: msgError, Message: text})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.queueLocked(c, msg)
	}
}

func (h *Hub) queueLocked(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("dropping slow client")
		delete(h.clients, c)
		h.metrics.ClientDisconnected()
		c.close()
	}
}

func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func encodeList(items []model.TodoItem) ([]byte, error) {
	html, err := renderListString(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(serverMessage{Type: msgList, HTML: html})
}
