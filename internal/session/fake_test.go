package session

import (
	"context"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/thebtf/lobbywatch/internal/transport"
	"github.com/thebtf/lobbywatch/pkg/models"
)

// fakeTransport records calls and routes delivered messages to handlers.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	startErr   error
	stopErr    error
	starts     int
	stops      int
	connects   int
	sessionID  string
	handlers   map[string]transport.Handler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true, handlers: make(map[string]transport.Handler)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) StartInvestigation(ctx context.Context, company, bill, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return "", f.startErr
	}
	f.sessionID = "session-1"
	return f.sessionID, nil
}

func (f *fakeTransport) CurrentSessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func (f *fakeTransport) StopInvestigation(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeTransport) OnMessage(id string, h transport.Handler) {
	f.mu.Lock()
	f.handlers[id] = h
	f.mu.Unlock()
}

func (f *fakeTransport) OffMessage(id string) {
	f.mu.Lock()
	delete(f.handlers, id)
	f.mu.Unlock()
}

func (f *fakeTransport) deliver(msg models.WireMessage) {
	f.mu.Lock()
	hs := make([]transport.Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		_ = h(msg)
	}
}

// startingTransport runs onStart after the session id is assigned and before
// StartInvestigation returns.
type startingTransport struct {
	*fakeTransport
	onStart func()
}

func (t *startingTransport) StartInvestigation(ctx context.Context, company, bill, description string) (string, error) {
	t.mu.Lock()
	t.sessionID = "session-1"
	t.mu.Unlock()
	if t.onStart != nil {
		t.onStart()
	}
	return t.fakeTransport.StartInvestigation(ctx, company, bill, description)
}

// countingParser records every parse call and returns table.
type countingParser struct {
	mu    sync.Mutex
	texts []string
	table *models.ParsedTable
	panic bool
}

func (p *countingParser) Parse(text string) *models.ParsedTable {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
	if p.panic {
		panic("parser exploded")
	}
	return p.table
}

func (p *countingParser) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.texts)
}

// recorder collects published communications.
type recorder struct {
	mu    sync.Mutex
	comms []models.Communication
}

func (r *recorder) add(c models.Communication) {
	r.mu.Lock()
	r.comms = append(r.comms, c)
	r.mu.Unlock()
}

func (r *recorder) all() []models.Communication {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Communication, len(r.comms))
	copy(out, r.comms)
	return out
}

// msg builds a wire message with data marshalled from v.
func msg(t models.MessageType, v interface{}) models.WireMessage {
	m := models.WireMessage{Type: t, Timestamp: "2024-05-01T12:00:00Z", SessionID: "session-1"}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		m.Data = data
	}
	return m
}

const rankedTable = `Here are the results for S. 383-116.

| Congress Member | Chamber | State/District | Involvement Rank | Reason |
|---|---|---|---|---|
| John Barrasso (R-WY) | Senate | WY | 2 | Sponsored the bill |
| Joe Manchin (D) | Senate | WV | 1 | Chaired the committee |
| David Trone (D) | House | MD-06 | 3 | Received donations |

TERMINATE`

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
