package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout bounds a single write to an SSE client.
	WriteTimeout = 2 * time.Second

	// DefaultKeepAlive is the interval of comment frames sent to idle
	// clients so proxies keep the stream open.
	DefaultKeepAlive = 15 * time.Second
)

var errClientClosed = errors.New("sse client closed")

// SSE event names.
const (
	EventCommunication = "communication"
	EventConnection    = "connection"
	EventSession       = "session"
)

// Client represents a connected SSE client.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// send writes one complete frame and flushes it. Frames never interleave.
func (c *Client) send(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.Done:
		return errClientClosed
	default:
	}
	if _, err := c.Writer.Write([]byte(frame)); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// Broadcaster fans named events out to SSE clients. Every event carries a
// monotonically increasing id.
type Broadcaster struct {
	clients   map[string]*Client
	mu        sync.RWMutex
	nextID    int
	seq       atomic.Uint64
	keepAlive time.Duration
}

// NewBroadcaster creates a Broadcaster with DefaultKeepAlive.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:   make(map[string]*Client),
		keepAlive: DefaultKeepAlive,
	}
}

// AddClient adds a new SSE client connection.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("client-%d", b.nextID)
	client := &Client{
		ID:      id,
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[id] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", id).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient removes a client connection.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.removeClientByID(client.ID)
	closeDone(client)
}

// removeClientByID removes a client by ID (for dead client cleanup).
func (b *Broadcaster) removeClientByID(id string) {
	b.mu.Lock()
	client, exists := b.clients[id]
	if exists {
		delete(b.clients, id)
	}
	clientCount := len(b.clients)
	b.mu.Unlock()

	if exists {
		closeDone(client)
	}

	log.Debug().
		Str("clientId", id).
		Int("totalClients", clientCount).
		Msg("SSE client removed")
}

func closeDone(client *Client) {
	client.closeOnce.Do(func() { close(client.Done) })
}

// Broadcast sends one named event to all connected clients. A client whose
// write fails or exceeds WriteTimeout is dropped.
func (b *Broadcaster) Broadcast(event string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal SSE data")
		return
	}

	message := formatEvent(b.seq.Add(1), event, jsonData)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	// Use a channel to collect dead clients from concurrent writes
	deadClientsCh := make(chan string, len(clients))
	var wg sync.WaitGroup

	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				b.writeToClient(c, message, deadClientsCh)
			}(client)
		}
	}

	wg.Wait()
	close(deadClientsCh)

	for clientID := range deadClientsCh {
		b.removeClientByID(clientID)
	}
}

// formatEvent renders one SSE frame. Empty event names and zero ids are
// omitted.
func formatEvent(id uint64, event string, data []byte) string {
	var sb strings.Builder
	if event != "" {
		sb.WriteString("event: ")
		sb.WriteString(event)
		sb.WriteByte('\n')
	}
	sb.WriteString("data: ")
	sb.Write(data)
	sb.WriteByte('\n')
	if id > 0 {
		sb.WriteString("id: ")
		sb.WriteString(strconv.FormatUint(id, 10))
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	return sb.String()
}

// writeToClient writes a message to a single client with timeout.
func (b *Broadcaster) writeToClient(client *Client, message string, deadCh chan<- string) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := client.send(message)
		if err != nil && !errors.Is(err, errClientClosed) {
			log.Debug().
				Str("clientId", client.ID).
				Err(err).
				Msg("Failed to write to SSE client, marking for removal")
			deadCh <- client.ID
		}
	}()

	select {
	case <-done:
	case <-time.After(WriteTimeout):
		log.Warn().
			Str("clientId", client.ID).
			Dur("timeout", WriteTimeout).
			Msg("SSE write timed out, marking client for removal")
		deadCh <- client.ID
	case <-client.Done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE handles an SSE connection request.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		b.RemoveClient(client)
		// Wait out an in-flight write; later writes see Done and skip.
		client.writeMu.Lock()
		client.writeMu.Unlock()
	}()

	hello := fmt.Sprintf(`{"clientId":%q}`, client.ID)
	if err := client.send(formatEvent(0, "connected", []byte(hello))); err != nil {
		return
	}

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-ticker.C:
			if err := client.send(": keepalive\n\n"); err != nil {
				return
			}
		}
	}
}
