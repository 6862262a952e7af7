// Package transport owns the WebSocket connection to the investigation
// backend: connection lifecycle, reconnection, envelope validation, handler
// dispatch and start/stop request correlation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/lobbywatch/internal/config"
	"github.com/thebtf/lobbywatch/internal/telemetry"
	"github.com/thebtf/lobbywatch/internal/textutil"
	"github.com/thebtf/lobbywatch/pkg/models"
)

// Handler receives every validated inbound message. A handler that returns
// an error or panics is removed from the registry.
type Handler func(msg models.WireMessage) error

// startAckTypes are the message types accepted as proof that a start request
// took effect. The backend does not reliably send investigation_started, so
// any sign of life for the session counts.
var startAckTypes = map[models.MessageType]bool{
	models.MsgInvestigationStarted:     true,
	models.MsgFullInvestigationStarted: true,
	models.MsgAgentCommunication:       true,
	models.MsgToolCallStart:            true,
}

// Client is the backend WebSocket client.
type Client struct {
	url          string
	dialer       Dialer
	interceptors []Interceptor
	reconnect    ReconnectPolicy
	startAck     StartAckPolicy
	stopTimeout  time.Duration
	metrics      *telemetry.Metrics

	connectMu sync.Mutex // serializes dials
	writeMu   sync.Mutex // one writer at a time

	mu             sync.Mutex
	conn           Conn
	state          models.ConnectionState
	attempts       int
	manualClose    bool
	reconnectTimer *time.Timer
	sessionID      string
	onStateChange  func(models.ConnectionState)

	handlersMu sync.Mutex
	handlers   map[string]Handler
	order      []string
	waiters    map[string]*ackWaiter
}

// ackWaiter resolves a pending request when match reports done.
type ackWaiter struct {
	match  func(msg models.WireMessage) (done bool, err error)
	result chan error
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the default gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithInterceptor adds a frame interceptor.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) { c.interceptors = append(c.interceptors, i) }
}

// WithReconnectPolicy replaces the reconnect policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Client) { c.reconnect = p }
}

// WithStartAckPolicy replaces the start acknowledgement policy.
func WithStartAckPolicy(p StartAckPolicy) Option {
	return func(c *Client) { c.startAck = p }
}

// WithStopTimeout replaces the stop acknowledgement timeout.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Client) { c.stopTimeout = d }
}

// WithMetrics replaces the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client for url. The connection is not opened until Connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		dialer:      WebSocketDialer{},
		reconnect:   DefaultReconnectPolicy(),
		startAck:    DefaultStartAckPolicy(),
		stopTimeout: DefaultStopTimeout,
		metrics:     telemetry.Get(),
		state:       models.StateDisconnected,
		handlers:    make(map[string]Handler),
		waiters:     make(map[string]*ackWaiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a Client using the URL, reconnect and timeout settings in cfg.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithReconnectPolicy(ReconnectPolicy{
			MaxAttempts: cfg.MaxReconnectAttempts,
			BaseDelay:   cfg.ReconnectDelay,
			MaxDelay:    DefaultReconnectPolicy().MaxDelay,
		}),
		WithStartAckPolicy(StartAckPolicy{Timeout: cfg.StartTimeout, Optimistic: true}),
		WithStopTimeout(cfg.StopTimeout),
	}
	return New(cfg.WebSocketURL, append(base, opts...)...)
}

// SetOnStateChange sets the callback invoked on every connection state change.
func (c *Client) SetOnStateChange(fn func(models.ConnectionState)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

// Connect opens the connection. It returns immediately when already open.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.conn != nil && c.state == models.StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.manualClose = false
	c.stopReconnectTimerLocked()
	c.mu.Unlock()

	return c.dial(ctx)
}

// dial opens a connection and starts its read loop. Caller holds connectMu.
func (c *Client) dial(ctx context.Context) error {
	c.setState(models.StateConnecting)

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.setState(models.StateError)
		log.Error().Err(err).Str("url", c.url).Msg("WebSocket connection failed")
		return fmt.Errorf("connect %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.manualClose {
		// Disconnect raced with the dial.
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(models.StateDisconnected)
		return ErrDisconnected
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.setState(models.StateConnected)
	log.Info().Str("url", c.url).Msg("WebSocket connected")

	go c.readLoop(conn)
	return nil
}

// Disconnect closes the connection and suppresses reconnection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.manualClose = true
	c.stopReconnectTimerLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancelWaiters(ErrDisconnected)
	c.setState(models.StateDisconnected)

	if conn == nil {
		return nil
	}
	log.Info().Str("url", c.url).Msg("WebSocket disconnected")
	return conn.Close()
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.state == models.StateConnected
}

// State returns the connection state.
func (c *Client) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentSessionID returns the id of the last started session, or "".
func (c *Client) CurrentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ReconnectAttempts returns the number of reconnects scheduled since the last
// successful connection.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) setState(state models.ConnectionState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	fn := c.onStateChange
	c.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// readLoop reads frames until the connection fails, dispatching each in order.
func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

// handleClose reacts to the end of conn's read loop.
func (c *Client) handleClose(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Replaced or closed by Disconnect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	manual := c.manualClose
	c.mu.Unlock()

	_ = conn.Close()
	c.setState(models.StateDisconnected)

	if manual {
		return
	}
	log.Warn().Err(err).Str("url", c.url).Msg("WebSocket closed unexpectedly")
	c.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer unless attempts are exhausted or
// the client was closed on purpose.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manualClose {
		return
	}
	next := c.attempts + 1
	if !c.reconnect.ShouldRetry(next) {
		log.Warn().
			Int("attempts", c.attempts).
			Msg("Reconnect attempts exhausted, giving up")
		return
	}
	c.attempts = next
	delay := c.reconnect.NextDelay(next)
	c.metrics.Reconnect(next)

	log.Info().
		Int("attempt", next).
		Int("maxAttempts", c.reconnect.MaxAttempts).
		Dur("delay", delay).
		Msg("Scheduling reconnect")

	c.reconnectTimer = time.AfterFunc(delay, c.reconnectNow)
}

// reconnectNow runs one reconnect attempt and schedules the next on failure.
func (c *Client) reconnectNow() {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	c.reconnectTimer = nil
	if c.manualClose || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		if errors.Is(err, ErrDisconnected) {
			return
		}
		c.scheduleReconnect()
	}
}

// handleFrame validates one raw frame and dispatches it.
func (c *Client) handleFrame(data []byte) {
	c.metrics.FrameReceived()
	for _, i := range c.interceptors {
		i.Inbound(data)
	}

	msg, err := DecodeEnvelope(data)
	switch {
	case errors.Is(err, ErrMalformedJSON):
		c.metrics.FrameDropped("malformed_json")
		log.Error().Int("bytes", len(data)).Msg("Failed to parse WebSocket frame")
		c.dispatch(parseErrorMessage(err))
		return
	case err != nil:
		c.metrics.FrameDropped("invalid_envelope")
		log.Warn().Err(err).Str("frame", textutil.Truncate(string(data), 200)).Msg("Dropping invalid message")
		return
	}

	log.Debug().
		Str("type", string(msg.Type)).
		Str("sessionId", msg.SessionID).
		Msg("Message received")

	c.dispatch(msg)
}

// OnMessage registers handler under id, replacing any handler with that id.
func (c *Client) OnMessage(id string, handler Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if _, exists := c.handlers[id]; !exists {
		c.order = append(c.order, id)
	}
	c.handlers[id] = handler
}

// OffMessage removes the handler registered under id.
func (c *Client) OffMessage(id string) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.removeHandlerLocked(id)
}

// HandlerCount returns the number of registered handlers.
func (c *Client) HandlerCount() int {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	return len(c.handlers)
}

func (c *Client) removeHandlerLocked(id string) {
	if _, exists := c.handlers[id]; !exists {
		return
	}
	delete(c.handlers, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// dispatch feeds msg to pending waiters, then to every handler in
// registration order. Faulty handlers are removed.
func (c *Client) dispatch(msg models.WireMessage) {
	c.handlersMu.Lock()
	type resolved struct {
		w   *ackWaiter
		err error
	}
	var done []resolved
	for id, w := range c.waiters {
		if ok, err := w.match(msg); ok {
			delete(c.waiters, id)
			done = append(done, resolved{w, err})
		}
	}
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = c.handlers[id]
	}
	c.handlersMu.Unlock()

	for _, r := range done {
		r.w.result <- r.err
	}

	for i, h := range handlers {
		if err := c.invoke(h, msg); err != nil {
			log.Error().
				Err(err).
				Str("handlerId", ids[i]).
				Str("type", string(msg.Type)).
				Msg("Message handler failed, removing it")
			c.OffMessage(ids[i])
		}
	}
}

// invoke runs h, converting a panic into an error.
func (c *Client) invoke(h Handler, msg models.WireMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(msg)
}

// addWaiter registers a pending request and returns its id.
func (c *Client) addWaiter(match func(models.WireMessage) (bool, error)) (string, *ackWaiter) {
	w := &ackWaiter{match: match, result: make(chan error, 1)}
	id := uuid.NewString()
	c.handlersMu.Lock()
	c.waiters[id] = w
	c.handlersMu.Unlock()
	return id, w
}

func (c *Client) removeWaiter(id string) {
	c.handlersMu.Lock()
	delete(c.waiters, id)
	c.handlersMu.Unlock()
}

// cancelWaiters resolves every pending request with err.
func (c *Client) cancelWaiters(err error) {
	c.handlersMu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]*ackWaiter)
	c.handlersMu.Unlock()

	for _, w := range waiters {
		w.result <- err
	}
}

// Send marshals v and writes it as one text frame.
func (c *Client) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for _, i := range c.interceptors {
		i.Outbound(data)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// StartInvestigation asks the backend to investigate company and bill and
// waits for any sign that the session is running.
func (c *Client) StartInvestigation(ctx context.Context, company, bill, description string) (string, error) {
	if !c.IsConnected() {
		return "", ErrNotConnected
	}

	sessionID := uuid.NewString()
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	waiterID, w := c.addWaiter(func(msg models.WireMessage) (bool, error) {
		switch {
		case startAckTypes[msg.Type] && msg.SessionID == sessionID:
			return true, nil
		case msg.Type == models.MsgInvestigationError && (msg.SessionID == "" || msg.SessionID == sessionID):
			return true, &InvestigationError{SessionID: sessionID, Reason: msg.Text()}
		case msg.Type == models.MsgError && msg.Mentions("investigation"):
			return true, &InvestigationError{SessionID: sessionID, Reason: msg.Text()}
		}
		return false, nil
	})

	req := models.StartRequest{
		Type:        models.ReqStartInvestigation,
		SessionID:   sessionID,
		Company:     company,
		Bill:        bill,
		Description: description,
	}
	if err := c.Send(req); err != nil {
		c.removeWaiter(waiterID)
		c.clearSession(sessionID)
		return "", err
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("company", company).
		Str("bill", bill).
		Msg("Start investigation requested")

	timer := time.NewTimer(c.startAck.Timeout)
	defer timer.Stop()

	select {
	case err := <-w.result:
		if err != nil {
			c.clearSession(sessionID)
			return "", err
		}
		return sessionID, nil
	case <-timer.C:
		c.removeWaiter(waiterID)
		if c.startAck.AcceptOnTimeout(c.IsConnected(), c.CurrentSessionID()) {
			log.Warn().
				Str("sessionId", sessionID).
				Dur("timeout", c.startAck.Timeout).
				Msg("No start acknowledgement, assuming investigation is running")
			return sessionID, nil
		}
		c.clearSession(sessionID)
		return "", ErrStartTimeout
	case <-ctx.Done():
		c.removeWaiter(waiterID)
		c.clearSession(sessionID)
		return "", ctx.Err()
	}
}

// StopInvestigation asks the backend to stop the current session and waits
// for the acknowledgement.
func (c *Client) StopInvestigation(ctx context.Context) error {
	sessionID := c.CurrentSessionID()
	if sessionID == "" {
		return ErrNoSession
	}

	waiterID, w := c.addWaiter(func(msg models.WireMessage) (bool, error) {
		switch {
		case msg.Type == models.MsgInvestigationStopped && (msg.SessionID == "" || msg.SessionID == sessionID):
			return true, nil
		case msg.Type == models.MsgError:
			return true, fmt.Errorf("stop investigation: %s", msg.Text())
		}
		return false, nil
	})

	if err := c.Send(models.StopRequest{Type: models.ReqStopInvestigation, SessionID: sessionID}); err != nil {
		c.removeWaiter(waiterID)
		return err
	}

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()

	select {
	case err := <-w.result:
		if err != nil {
			return err
		}
		c.clearSession(sessionID)
		log.Info().Str("sessionId", sessionID).Msg("Investigation stopped")
		return nil
	case <-timer.C:
		c.removeWaiter(waiterID)
		return ErrStopTimeout
	case <-ctx.Done():
		c.removeWaiter(waiterID)
		return ctx.Err()
	}
}

func (c *Client) clearSession(sessionID string) {
	c.mu.Lock()
	if c.sessionID == sessionID {
		c.sessionID = ""
	}
	c.mu.Unlock()
}
