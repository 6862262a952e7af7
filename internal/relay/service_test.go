package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/lobbywatch/internal/session"
	"github.com/thebtf/lobbywatch/pkg/models"
)

// fakeSessions is an in-memory Sessions implementation.
type fakeSessions struct {
	mu       sync.Mutex
	sess     models.Session
	state    session.State
	startErr error
	stopErr  error
	subs     map[string]session.Subscriber
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{state: session.StateIdle, subs: make(map[string]session.Subscriber)}
}

func (f *fakeSessions) StartSession(ctx context.Context, company, bill, description string) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StateIdle {
		return models.Session{}, session.ErrSessionActive
	}
	if f.startErr != nil {
		return models.Session{}, f.startErr
	}
	f.sess = models.Session{ID: "s1", Company: company, Bill: bill, Description: description, Active: true}
	f.state = session.StateActive
	return f.sess, nil
}

func (f *fakeSessions) StopSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = session.StateIdle
	f.sess.Active = false
	return f.stopErr
}

func (f *fakeSessions) ActiveSession() (models.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.sess.Active
}

func (f *fakeSessions) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSessions) Subscribe(id string, fn session.Subscriber) {
	f.mu.Lock()
	f.subs[id] = fn
	f.mu.Unlock()
}

func (f *fakeSessions) Unsubscribe(id string) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

func (f *fakeSessions) publish(c models.Communication) {
	f.mu.Lock()
	fn := f.subs[subscriberID]
	f.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

type fixedConnection models.ConnectionState

func (c fixedConnection) State() models.ConnectionState { return models.ConnectionState(c) }

func testService(t *testing.T) (*Service, *fakeSessions) {
	t.Helper()
	sessions := newFakeSessions()
	svc := NewService("test-version", sessions, fixedConnection(models.StateConnected))
	svc.MarkReady()
	return svc, sessions
}

func do(svc *Service, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	svc, _ := testService(t)

	rec := do(svc, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "ready", response["status"])
	assert.Equal(t, "test-version", response["version"])
	assert.Equal(t, "connected", response["connection"])
}

func TestRequireReady_Blocks(t *testing.T) {
	svc := NewService("v", newFakeSessions(), nil)

	assert.Equal(t, http.StatusServiceUnavailable, do(svc, http.MethodGet, "/api/ready", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(svc, http.MethodGet, "/api/investigations/current", "").Code)

	svc.MarkReady()
	assert.Equal(t, http.StatusOK, do(svc, http.MethodGet, "/api/ready", "").Code)
}

func TestHandleStartInvestigation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		setup    func(f *fakeSessions)
		wantCode int
	}{
		{name: "created", body: `{"company":"ExxonMobil","bill":"s383-116"}`, wantCode: http.StatusCreated},
		{name: "bad json", body: `{oops`, wantCode: http.StatusBadRequest},
		{name: "missing bill", body: `{"company":"ExxonMobil","bill":"  "}`, wantCode: http.StatusBadRequest},
		{
			name:     "already active",
			body:     `{"company":"A","bill":"hr1-117"}`,
			setup:    func(f *fakeSessions) { f.state = session.StateActive },
			wantCode: http.StatusConflict,
		},
		{
			name:     "backend failure",
			body:     `{"company":"A","bill":"hr1-117"}`,
			setup:    func(f *fakeSessions) { f.startErr = errors.New("timed out") },
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sessions := testService(t)
			if tt.setup != nil {
				tt.setup(sessions)
			}

			rec := do(svc, http.MethodPost, "/api/investigations", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCode == http.StatusCreated {
				var sess models.Session
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
				assert.Equal(t, "s1", sess.ID)
				assert.Equal(t, "ExxonMobil", sess.Company)
				assert.True(t, sess.Active)
			}
		})
	}
}

func TestHandleCurrentInvestigation(t *testing.T) {
	svc, sessions := testService(t)

	rec := do(svc, http.MethodGet, "/api/investigations/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CurrentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Active)
	assert.Nil(t, resp.Session)
	assert.Equal(t, session.StateIdle, resp.State)

	_, err := sessions.StartSession(context.Background(), "Acme", "hr1-117", "")
	require.NoError(t, err)

	rec = do(svc, http.MethodGet, "/api/investigations/current", "")
	resp = CurrentResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Active)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "Acme", resp.Session.Company)
}

func TestHandleStopInvestigation(t *testing.T) {
	svc, sessions := testService(t)
	_, err := sessions.StartSession(context.Background(), "Acme", "hr1-117", "")
	require.NoError(t, err)

	rec := do(svc, http.MethodDelete, "/api/investigations/current", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, session.StateIdle, sessions.State())

	sessions.stopErr = errors.New("timed out waiting for investigation to stop")
	rec = do(svc, http.MethodDelete, "/api/investigations/current", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "timed out")
}

func TestCommunicationsReachSSEClients(t *testing.T) {
	svc, sessions := testService(t)
	w := newMockResponseWriter()
	_, err := svc.Broadcaster().AddClient(w)
	require.NoError(t, err)

	sessions.publish(models.Communication{ID: "c1", Type: models.CommMessage, Simplified: "hello", Status: models.StatusCompleted})
	svc.ConnectionChanged(models.StateError)

	body := w.GetBody()
	assert.Contains(t, body, "event: communication")
	assert.Contains(t, body, `"simplified":"hello"`)
	assert.Contains(t, body, "event: connection")
	assert.Contains(t, body, `"state":"error"`)
}

func TestShutdownUnsubscribes(t *testing.T) {
	svc, sessions := testService(t)
	require.NoError(t, svc.Shutdown(context.Background()))

	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	assert.Empty(t, sessions.subs)
}

func TestListenAndServe_AfterShutdown(t *testing.T) {
	svc, _ := testService(t)
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.NoError(t, svc.ListenAndServe("127.0.0.1:0"))
}
