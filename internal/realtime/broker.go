package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

// Message types pushed to portal clients.
const (
	TypeCalendarUpdated   = "calendar.updated"
	TypeAttendanceUpdated = "attendance.updated"
	TypeImportFinished    = "import.finished"
)

// Message defines the shape of the real-time data sent to the frontend.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// client is one open stream. A member may hold several (one per tab).
type client struct {
	memberID int64
	ch       chan []byte
}

// Broker is the central hub for managing SSE client connections.
type Broker struct {
	clients map[uint64]*client
	nextID  uint64
	mu      sync.RWMutex
}

// NewBroker creates a new Broker instance.
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[uint64]*client),
	}
}

// AddClient registers a new stream for memberID and returns its handle and
// the channel messages arrive on.
func (b *Broker) AddClient(memberID int64) (uint64, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	c := &client{memberID: memberID, ch: make(chan []byte, 16)}
	b.clients[b.nextID] = c
	log.Printf("INFO: SSE client %d connected for member %d", b.nextID, memberID)
	return b.nextID, c.ch
}

// RemoveClient unregisters a stream and closes its channel.
func (b *Broker) RemoveClient(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(c.ch)
		log.Printf("INFO: SSE client %d disconnected for member %d", id, c.memberID)
	}
}

// ClientCount returns the number of open streams.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends message to every connected stream.
func (b *Broker) Broadcast(message Message) {
	b.send(message, func(*client) bool { return true })
}

// NotifyMember sends message to all streams of one member.
func (b *Broker) NotifyMember(memberID int64, message Message) {
	b.send(message, func(c *client) bool { return c.memberID == memberID })
}

func (b *Broker) send(message Message, match func(*client) bool) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("ERROR: could not marshal SSE message %q: %v", message.Type, err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, c := range b.clients {
		if !match(c) {
			continue
		}
		// Never block a handler on a slow client.
		select {
		case c.ch <- jsonMsg:
		default:
			log.Printf("WARN: SSE channel %d is full. Dropping %s message.", id, message.Type)
		}
	}
}
