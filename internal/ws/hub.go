package ws

import (
	"log"
	"sync"
)

type broadcastMsg struct {
	tabID   string
	payload []byte
}

// Hub fans notifications out to the websocket clients of one originating
// tab. A tab may have several clients (popup plus content script).
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan broadcastMsg
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	logger     *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan broadcastMsg, 1024),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		logger:     logger,
	}
}

func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.closeAll()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			room := h.rooms[client.tabID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[client.tabID] = room
			}
			room[client] = true
			total := len(room)
			h.mutex.Unlock()
			if h.logger != nil {
				h.logger.Printf("WS connected | tab=%s tab_clients=%d", client.tabID, total)
			}

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			h.remove(client)

		case msg := <-h.broadcast:
			h.mutex.RLock()
			snapshot := make([]*Client, 0, len(h.rooms[msg.tabID]))
			for c := range h.rooms[msg.tabID] {
				snapshot = append(snapshot, c)
			}
			h.mutex.RUnlock()

			for _, client := range snapshot {
				select {
				case client.send <- msg.payload:
				default:
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	room := h.rooms[client.tabID]
	_, ok := room[client]
	if ok {
		delete(room, client)
		close(client.send)
		if len(room) == 0 {
			delete(h.rooms, client.tabID)
		}
	}
	h.mutex.Unlock()
	if ok && h.logger != nil {
		h.logger.Printf("WS disconnected | tab=%s", client.tabID)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for tab, room := range h.rooms {
		for c := range room {
			close(c.send)
		}
		delete(h.rooms, tab)
	}
}

func (h *Hub) Register(client *Client) {
	if h == nil {
		return
	}
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	if h == nil {
		return
	}
	h.unregister <- client
}

func (h *Hub) Broadcast(tabID string, message []byte) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- broadcastMsg{tabID: tabID, payload: message}:
	default:
		if h.logger != nil {
			h.logger.Printf("WS broadcast dropped | tab=%s reason=buffer_full", tabID)
		}
	}
}

func (h *Hub) ClientCount(tabID string) int {
	if h == nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[tabID])
}
