// Package session turns the backend message stream into normalized
// communications and owns the lifecycle of the single active investigation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/lobbywatch/internal/config"
	"github.com/thebtf/lobbywatch/internal/tableparser"
	"github.com/thebtf/lobbywatch/internal/telemetry"
	"github.com/thebtf/lobbywatch/internal/textutil"
	"github.com/thebtf/lobbywatch/internal/transport"
	"github.com/thebtf/lobbywatch/pkg/models"
)

// ErrSessionActive is returned by StartSession while another session runs.
var ErrSessionActive = errors.New("an investigation session is already active")

// handlerID is the id the orchestrator registers on the transport.
const handlerID = "session-orchestrator"

// defaultSubscriberID is used by OnCommunication.
const defaultSubscriberID = "default"

// State is the lifecycle state of the orchestrator.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateActive     State = "active"
	StateCompleting State = "completing"
	StateErroring   State = "erroring"
	StateStopping   State = "stopping"
)

// Transport is the subset of the backend client the orchestrator drives.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	CurrentSessionID() string
	StartInvestigation(ctx context.Context, company, bill, description string) (string, error)
	StopInvestigation(ctx context.Context) error
	OnMessage(id string, h transport.Handler)
	OffMessage(id string)
}

// Orchestrator maps wire messages to communications and publishes them.
type Orchestrator struct {
	transport   Transport
	parser      TableParser
	bus         *Bus
	digestLimit int
	metrics     *telemetry.Metrics

	mu      sync.Mutex
	state   State
	session models.Session
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParser replaces the table parser used by the enrichment pass.
func WithParser(p TableParser) Option {
	return func(o *Orchestrator) { o.parser = p }
}

// WithBus publishes communications on an existing bus.
func WithBus(b *Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithDigestLimit caps the number of ranked entries in table digests.
func WithDigestLimit(n int) Option {
	return func(o *Orchestrator) { o.digestLimit = n }
}

// WithMetrics replaces the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator and registers it as a handler on t.
func New(t Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport:   t,
		parser:      tableparser.New(tableparser.AlignedFirst),
		digestLimit: config.DefaultDigestLimit,
		metrics:     telemetry.Get(),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = NewBus()
	}
	if t != nil {
		t.OnMessage(handlerID, func(msg models.WireMessage) error {
			o.HandleMessage(msg)
			return nil
		})
	}
	return o
}

// NewFromConfig creates an Orchestrator using the dual-table order and
// digest limit in cfg.
func NewFromConfig(t Transport, cfg *config.Config, opts ...Option) *Orchestrator {
	base := []Option{
		WithParser(tableparser.New(tableparser.ParseDualTableOrder(cfg.DualTableOrder))),
		WithDigestLimit(cfg.DigestLimit),
	}
	return New(t, append(base, opts...)...)
}

// Close detaches the orchestrator from its transport.
func (o *Orchestrator) Close() {
	if o.transport != nil {
		o.transport.OffMessage(handlerID)
	}
}

// Subscribe registers fn under id on the orchestrator's bus.
func (o *Orchestrator) Subscribe(id string, fn Subscriber) {
	o.bus.Subscribe(id, fn)
}

// Unsubscribe removes the subscriber registered under id.
func (o *Orchestrator) Unsubscribe(id string) {
	o.bus.Unsubscribe(id)
}

// OnCommunication sets the single default callback, replacing the previous one.
func (o *Orchestrator) OnCommunication(fn Subscriber) {
	o.bus.Subscribe(defaultSubscriberID, fn)
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ActiveSession returns the current session and whether it is active.
func (o *Orchestrator) ActiveSession() (models.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session, o.session.Active
}

// StartSession connects if needed and starts an investigation. It fails with
// ErrSessionActive, leaving the running session untouched, when a session is
// not idle.
func (o *Orchestrator) StartSession(ctx context.Context, company, bill, description string) (models.Session, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return models.Session{}, ErrSessionActive
	}
	o.state = StateStarting
	o.mu.Unlock()

	if !o.transport.IsConnected() {
		if err := o.transport.Connect(ctx); err != nil {
			o.setState(StateIdle)
			return models.Session{}, fmt.Errorf("start session: %w", err)
		}
	}

	id, err := o.transport.StartInvestigation(ctx, company, bill, description)
	if err != nil {
		o.setState(StateIdle)
		return models.Session{}, fmt.Errorf("start session: %w", err)
	}

	sess := models.Session{
		ID:          id,
		Company:     company,
		Bill:        bill,
		Description: description,
		Active:      true,
		StartedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	o.mu.Lock()
	if o.state == StateStarting {
		o.state = StateActive
		o.session = sess
	} else {
		// A terminal event arrived before the acknowledgement.
		sess.Active = false
		o.session = sess
	}
	o.mu.Unlock()

	log.Info().
		Str("sessionId", id).
		Str("company", company).
		Str("bill", bill).
		Msg("Investigation session started")
	return sess, nil
}

// StopSession marks the session inactive immediately and asks the backend to
// stop it. The local state is idle afterwards even when the request fails.
func (o *Orchestrator) StopSession(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopping
	o.session.Active = false
	id := o.session.ID
	o.mu.Unlock()

	err := o.transport.StopInvestigation(ctx)
	o.setState(StateIdle)

	if err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("Stop request failed")
		return fmt.Errorf("stop session: %w", err)
	}
	log.Info().Str("sessionId", id).Msg("Investigation session stopped")
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// beginEnd marks the session inactive and enters the terminal state via.
// It reports whether a transition happened.
func (o *Orchestrator) beginEnd(via State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.Active = false
	if o.state == StateIdle {
		return false
	}
	o.state = via
	return true
}

// finishEnd returns to idle unless something else moved the state on.
func (o *Orchestrator) finishEnd(via State) {
	o.mu.Lock()
	if o.state == via {
		o.state = StateIdle
	}
	o.mu.Unlock()
}

// HandleMessage maps one wire message to zero or more communications and
// publishes them. It never panics; failures become a failed communication.
func (o *Orchestrator) HandleMessage(msg models.WireMessage) {
	if msg.Type == "" || msg.Timestamp == "" {
		log.Warn().Str("type", string(msg.Type)).Msg("Ignoring message without type or timestamp")
		return
	}

	// The backend broadcasts every session's events to all clients.
	if o.foreign(msg) {
		log.Debug().
			Str("type", string(msg.Type)).
			Str("sessionId", msg.SessionID).
			Msg("Ignoring message for another session")
		return
	}

	out, ending, err := o.dispatch(msg)
	if err != nil {
		log.Error().
			Err(err).
			Str("type", string(msg.Type)).
			Str("sessionId", msg.SessionID).
			Str("data", textutil.Truncate(string(msg.Data), 500)).
			Msg("Failed to handle backend message")
		out = []models.Communication{criticalError(msg, err)}
	}

	ended := ending != "" && o.beginEnd(ending)
	for _, c := range out {
		o.metrics.Communication(string(c.Type))
		o.bus.Publish(c)
	}
	if ended {
		o.finishEnd(ending)
	}
}

// foreign reports whether msg is tagged with a session other than the one
// being started or run. Untagged messages and messages received while idle
// are never foreign.
func (o *Orchestrator) foreign(msg models.WireMessage) bool {
	if msg.SessionID == "" {
		return false
	}
	o.mu.Lock()
	state, own := o.state, o.session.ID
	o.mu.Unlock()

	switch state {
	case StateIdle:
		return false
	case StateStarting:
		own = o.transport.CurrentSessionID()
	}
	return own != "" && msg.SessionID != own
}

// dispatch converts msg, recovering panics into an error. ending is the
// terminal state the message moves the session through, or "".
func (o *Orchestrator) dispatch(msg models.WireMessage) (out []models.Communication, ending State, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, ending = nil, ""
			err = fmt.Errorf("panic handling %s: %v", msg.Type, r)
		}
	}()

	switch msg.Type {
	case models.MsgAgentCommunication:
		c, err := fromAgentCommunication(msg)
		if err != nil {
			return nil, "", err
		}
		return []models.Communication{o.enrich(c)}, "", nil

	case models.MsgToolCallStart:
		c, err := fromToolCallStart(msg)
		if err != nil {
			return nil, "", err
		}
		return []models.Communication{o.enrich(c)}, "", nil

	case models.MsgToolCallResult:
		c, err := fromToolCallResult(msg)
		if err != nil {
			return nil, "", err
		}
		return []models.Communication{o.enrich(c)}, "", nil

	case models.MsgInvestigationComplete:
		c, err := fromInvestigationComplete(msg)
		if err != nil {
			return nil, "", err
		}
		return []models.Communication{o.enrich(c)}, StateCompleting, nil

	case models.MsgInvestigationConcluded:
		table, summary, err := fromInvestigationConcluded(msg)
		if err != nil {
			return nil, "", err
		}
		var comms []models.Communication
		if table != nil {
			// Already structured by the backend; the parser is not involved.
			results := withTable(models.Communication{
				ID:        summary.ID + "_table",
				Timestamp: msg.Timestamp,
				Agent:     summary.Agent,
			}, table, o.digestLimit)
			comms = append(comms, results)
		}
		return append(comms, o.enrich(summary)), StateCompleting, nil

	case models.MsgInvestigationError:
		return []models.Communication{fromInvestigationError(msg)}, StateErroring, nil

	case models.MsgError:
		return []models.Communication{fromConnectionError(msg)}, "", nil

	case models.MsgInvestigationStopped:
		return []models.Communication{statusMessage(msg, "Investigation stopped")}, StateStopping, nil

	case models.MsgInvestigationStarted, models.MsgFullInvestigationStarted, models.MsgConnectionEstablished:
		log.Debug().Str("type", string(msg.Type)).Str("sessionId", msg.SessionID).Msg("Backend status message")
		return nil, "", nil

	default:
		log.Debug().Str("type", string(msg.Type)).Msg("Ignoring unknown message type")
		return nil, "", nil
	}
}

func (o *Orchestrator) enrich(c models.Communication) models.Communication {
	return Enrich(c, o.parser, o.digestLimit)
}
