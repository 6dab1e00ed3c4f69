package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransactionEvent is the websocket payload emitted once per finished
// /infer request.
type TransactionEvent struct {
	Type          string    `json:"type"`
	TransactionID string    `json:"transaction_id"`
	QuestionUUID  string    `json:"question_uuid"`
	CourseID      string    `json:"course_id"`
	ResponseType  string    `json:"response_type"`
	Answered      bool      `json:"answered"`
	DurationMs    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// TransactionNotifier tracks websocket subscribers and broadcasts one event
// per completed transaction.
type TransactionNotifier struct {
	mu        sync.Mutex
	clients   map[*wsClient]struct{}
	lastEvent *TransactionEvent
}

// NewTransactionNotifier constructs a notifier instance.
func NewTransactionNotifier() *TransactionNotifier {
	return &TransactionNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and replays the latest event so
// late subscribers see current activity immediately.
func (n *TransactionNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	last := n.lastEvent
	n.mu.Unlock()

	if last != nil {
		_ = client.writeJSON(*last)
	}
	return client
}

// Unregister removes the websocket client and closes the socket.
func (n *TransactionNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the event to all subscribers, dropping any whose write
// fails.
func (n *TransactionNotifier) Broadcast(event TransactionEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	snapshot := event
	n.lastEvent = &snapshot
	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// LastEvent returns a copy of the most recent broadcast, if any.
func (n *TransactionNotifier) LastEvent() *TransactionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastEvent == nil {
		return nil
	}
	event := *n.lastEvent
	return &event
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
