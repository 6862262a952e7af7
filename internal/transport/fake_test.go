package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/lobbywatch/pkg/models"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeConn is an in-memory Conn driven by the test.
type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written [][]byte
	onWrite func(data []byte)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		return nil, errFakeClosed
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}
	f.mu.Lock()
	f.written = append(f.written, append([]byte(nil), data...))
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(data)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// drop simulates the server going away.
func (f *fakeConn) drop() { _ = f.Close() }

func (f *fakeConn) push(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.inbound <- data
}

func (f *fakeConn) pushRaw(s string) { f.inbound <- []byte(s) }

func (f *fakeConn) Written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func (f *fakeConn) setOnWrite(fn func(data []byte)) {
	f.mu.Lock()
	f.onWrite = fn
	f.mu.Unlock()
}

// fakeDialer hands out conns in order; once exhausted every dial fails.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		if d.err != nil {
			return nil, d.err
		}
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) add(c *fakeConn) {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
}

// recordingInterceptor keeps copies of every frame.
type recordingInterceptor struct {
	mu       sync.Mutex
	inbound  []string
	outbound []string
}

func (r *recordingInterceptor) Inbound(raw []byte) {
	r.mu.Lock()
	r.inbound = append(r.inbound, string(raw))
	r.mu.Unlock()
}

func (r *recordingInterceptor) Outbound(raw []byte) {
	r.mu.Lock()
	r.outbound = append(r.outbound, string(raw))
	r.mu.Unlock()
}

func (r *recordingInterceptor) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inbound), len(r.outbound)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func wire(t models.MessageType, sessionID string) models.WireMessage {
	return models.WireMessage{Type: t, Timestamp: now(), SessionID: sessionID}
}
