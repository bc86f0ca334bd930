package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxloop/voxloop/internal/logging"
	"github.com/voxloop/voxloop/internal/orchestrator"
)

// subscriberQueue bounds each client's pending events. A monitoring client
// that cannot keep up loses events rather than stalling turn processing.
const subscriberQueue = 64

// subscriber is one connected monitoring client with its own send queue.
type subscriber struct {
	id     string
	conn   *websocket.Conn
	sendCh chan orchestrator.TurnEvent
	done   chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Hub fans turn events out to WebSocket subscribers. It satisfies the
// orchestrator's event sink contract; TurnCompleted never blocks.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	log  *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{subs: make(map[string]*subscriber), log: log}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// TurnCompleted queues an event to every subscriber, dropping it for any
// subscriber whose queue is full.
func (h *Hub) TurnCompleted(ev orchestrator.TurnEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.sendCh <- ev:
		default:
			h.log.Debug().Str("connId", sub.id).Msg("subscriber queue full, event dropped")
		}
	}
}

// Run serves one WebSocket subscriber until it disconnects or the hub is
// closed. It blocks, so the HTTP handler calls it on the request goroutine.
func (h *Hub) Run(conn *websocket.Conn) {
	sub := &subscriber{
		id:     uuid.New().String(),
		conn:   conn,
		sendCh: make(chan orchestrator.TurnEvent, subscriberQueue),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	h.log.Info().Str("connId", sub.id).Msg("subscriber connected")

	defer func() {
		h.mu.Lock()
		delete(h.subs, sub.id)
		h.mu.Unlock()
		sub.close()
		h.log.Info().Str("connId", sub.id).Msg("subscriber disconnected")
	}()

	// Reader drains control frames and detects disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.close()
				return
			}
		}
	}()

	for {
		select {
		case ev := <-sub.sendCh:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		sub.close()
		delete(h.subs, id)
	}
}
