package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-panel-service/benchmarks/mocks"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/logger"
	"gitlab.com/timkado/api/daisi-panel-service/internal/application"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

type panelServer struct {
	srv      *httptest.Server
	auth     *application.AuthService
	panels   *application.PanelManager
	contacts *mocks.MockContactRepository
}

func newPanelServer(t *testing.T) *panelServer {
	t.Helper()
	log := logger.NewNop()
	cfg := mocks.NewMockConfigProvider()
	contacts := mocks.NewMockContactRepository()
	contacts.SetContacts("t1", []domain.Contact{
		{ID: "a", Name: "Ann", Platform: "whatsapp", ClientID: "t1"},
		{ID: "b", Name: "Ben", Platform: "telegram", ClientID: "t1"},
	})

	auth := application.NewAuthService(log, cfg)
	panels := application.NewPanelManager(log, cfg, contacts, mocks.NewMockMessageRepository(nil), mocks.NewMockUnreadStore(), mocks.NewMockChangeSubscriber())
	mux := http.NewServeMux()
	NewRouter(log, auth, NewHandler(log, cfg, panels, auth)).RegisterRoutes(context.Background(), mux)

	ps := &panelServer{srv: httptest.NewServer(mux), auth: auth, panels: panels, contacts: contacts}
	t.Cleanup(func() {
		ps.srv.Close()
		panels.CloseAll()
	})
	return ps
}

func (ps *panelServer) token(t *testing.T, info domain.CurrentUserInfo) string {
	t.Helper()
	token, _, err := ps.auth.MintSessionToken(context.Background(), info)
	require.NoError(t, err)
	return token
}

func (ps *panelServer) url(query string) string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http") + "/ws/panels?" + query
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads messages until match returns true for one of them.
func readUntil(t *testing.T, c *websocket.Conn, match func(received) bool) received {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var msg received
		require.NoError(t, wsjson.Read(ctx, c, &msg))
		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string) func(received) bool {
	return func(m received) bool { return m.Type == typ }
}

var clientOperator = domain.CurrentUserInfo{ID: "op-1", Table: domain.SessionTableClients, TenantID: "t1"}

func TestHandler_SessionLifecycle(t *testing.T) {
	ps := newPanelServer(t)
	ctx := context.Background()

	c, _, err := websocket.Dial(ctx, ps.url("token="+ps.token(t, clientOperator)), &websocket.DialOptions{Subprotocols: []string{Subprotocol}})
	require.NoError(t, err)
	defer c.CloseNow()

	ready := readUntil(t, c, ofType(domain.MessageTypeReady))
	var rp ReadyPayload
	require.NoError(t, json.Unmarshal(ready.Payload, &rp))
	assert.Equal(t, "t1", rp.TenantID)
	assert.NotEmpty(t, rp.SessionID)
	assert.Equal(t, 1, ps.panels.Count())

	readUntil(t, c, func(m received) bool {
		if m.Type != domain.MessageTypeContacts {
			return false
		}
		var p domain.ContactsPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		return len(p.Items) == 2
	})

	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": domain.MessageTypeSetFilter, "payload": map[string]string{"platform": "telegram"}}))
	readUntil(t, c, func(m received) bool {
		if m.Type != domain.MessageTypeContacts {
			return false
		}
		var p domain.ContactsPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		return len(p.Items) == 1 && p.Items[0].ID == "b"
	})

	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": domain.MessageTypeSetFilter, "payload": map[string]string{"status": "Busy"}}))
	errMsg := readUntil(t, c, ofType(domain.MessageTypeError))
	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(errMsg.Payload, &errResp))
	assert.Equal(t, domain.ErrInvalidFilterCode, errResp.Code)

	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": domain.MessageTypeSelectContact, "payload": map[string]string{"contact_id": "missing"}}))
	errMsg = readUntil(t, c, ofType(domain.MessageTypeError))
	require.NoError(t, json.Unmarshal(errMsg.Payload, &errResp))
	assert.Equal(t, domain.ErrNotFound, errResp.Code)

	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": domain.MessageTypeSetTenant, "payload": map[string]string{"tenant_id": "t2"}}))
	errMsg = readUntil(t, c, ofType(domain.MessageTypeError))
	require.NoError(t, json.Unmarshal(errMsg.Payload, &errResp))
	assert.Equal(t, domain.ErrForbidden, errResp.Code)

	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": "dance"}))
	errMsg = readUntil(t, c, ofType(domain.MessageTypeError))
	require.NoError(t, json.Unmarshal(errMsg.Payload, &errResp))
	assert.Equal(t, domain.ErrBadRequest, errResp.Code)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return ps.panels.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	ps := newPanelServer(t)
	ctx := context.Background()
	opts := &websocket.DialOptions{Subprotocols: []string{Subprotocol}}

	_, resp, err := websocket.Dial(ctx, ps.url(""), opts)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, ps.url("token=garbage"), opts)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, ps.url("tenant=t2&token="+ps.token(t, clientOperator)), opts)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, ps.url("status=Busy&token="+ps.token(t, clientOperator)), opts)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, ps.panels.Count())
}

func TestHandler_RequiresSubprotocol(t *testing.T) {
	ps := newPanelServer(t)
	ctx := context.Background()

	c, _, err := websocket.Dial(ctx, ps.url("token="+ps.token(t, clientOperator)), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _, err = c.Read(readCtx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestCloseCode(t *testing.T) {
	assert.Equal(t, websocket.StatusCode(4403), CloseCode(domain.ErrInvalidToken))
	assert.Equal(t, websocket.StatusCode(4403), CloseCode(domain.ErrForbidden))
	assert.Equal(t, websocket.StatusInternalError, CloseCode(domain.ErrInternal))
	assert.Equal(t, websocket.StatusPolicyViolation, CloseCode(domain.ErrBadRequest))
}

func TestFiltersFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/panels?platform=whatsapp&status=Online&q=ann", nil)
	assert.Equal(t, domain.Filters{Platform: "whatsapp", Status: "Online", Query: "ann"}, FiltersFromQuery(r))
}

func TestDecodePayload(t *testing.T) {
	p := domain.SetTenantPayload{TenantID: "keep"}
	require.NoError(t, decodePayload(nil, &p))
	require.NoError(t, decodePayload(json.RawMessage("null"), &p))
	assert.Equal(t, "keep", p.TenantID)
	require.NoError(t, decodePayload(json.RawMessage(`{"tenant_id":"t9"}`), &p))
	assert.Equal(t, "t9", p.TenantID)
	assert.Error(t, decodePayload(json.RawMessage(`[`), &p))
}
