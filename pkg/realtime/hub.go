package realtime

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Message is what subscribers receive over SSE or WebSocket.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	Group     string      `json:"group,omitempty"`
}

type Client struct {
	id     string
	groups map[string]bool
	ch     chan []byte
	done   chan struct{}
}

func (c *Client) ID() string { return c.id }

// C yields encoded messages for the client.
func (c *Client) C() <-chan []byte { return c.ch }

// Done is closed when the hub drops the client.
func (c *Client) Done() <-chan struct{} { return c.done }

type Config struct {
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 每个客户端的发送缓冲
	BufferSize int
	// SSE 重连间隔
	RetryMs int
	// 读取超时时间
	ConnectionTimeout time.Duration
	// 最大消息大小
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		BufferSize:        64,
		RetryMs:           5000,
		ConnectionTimeout: 60 * time.Second,
		MaxMessageSize:    512,
	}
}

// Hub fans messages out to subscribers grouped by topic. Slow clients
// drop messages rather than block publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]bool // group -> clientID set
	cfg     Config
	seq     atomic.Int64
	dropped atomic.Int64
}

func NewHub(cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.RetryMs <= 0 {
		cfg.RetryMs = def.RetryMs
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = def.ConnectionTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	return &Hub{clients: make(map[string]*Client), groups: make(map[string]map[string]bool), cfg: cfg}
}

func (h *Hub) AddClient(id string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[id]; ok {
		h.removeLocked(old)
	}
	c := &Client{id: id, groups: make(map[string]bool), ch: make(chan []byte, h.cfg.BufferSize), done: make(chan struct{})}
	h.clients[id] = c
	return c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *Client) {
	close(c.done)
	for g := range c.groups {
		delete(h.groups[g], c.id)
		if len(h.groups[g]) == 0 {
			delete(h.groups, g)
		}
	}
	delete(h.clients, c.id)
}

func (h *Hub) Join(id, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	c.groups[group] = true
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]bool)
	}
	h.groups[group][id] = true
}

func (h *Hub) Leave(id, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(c.groups, group)
	if h.groups[group] != nil {
		delete(h.groups[group], id)
	}
}

// Publish encodes v as a Message and delivers it to every member of group.
// It returns the number of clients that accepted the message.
func (h *Hub) Publish(group, typ string, v interface{}) int {
	b, err := json.Marshal(Message{Type: typ, Data: v, Timestamp: time.Now().Unix(), Group: group})
	if err != nil {
		logrus.Errorf("realtime: encode %s for %s: %v", typ, group, err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for id := range h.groups[group] {
		if c := h.clients[id]; c != nil && h.offer(c, b) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SendTo(id string, b []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c := h.clients[id]; c != nil {
		return h.offer(c, b)
	}
	return false
}

func (h *Hub) offer(c *Client, b []byte) bool {
	select {
	case c.ch <- b:
		return true
	default:
		h.dropped.Add(1)
		logrus.Warnf("realtime: client %s buffer full, message dropped", c.id)
		return false
	}
}

func (h *Hub) nextID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(h.seq.Add(1), 10)
}

type Stats struct {
	Clients int   `json:"clients"`
	Groups  int   `json:"groups"`
	Dropped int64 `json:"dropped"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Clients: len(h.clients), Groups: len(h.groups), Dropped: h.dropped.Load()}
}
