package socket_test

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
	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/internal/testkit"
	"github.com/jrsteele09/go-tenant-auth/socket"
	"github.com/stretchr/testify/require"
)

type ack struct {
	Event   string          `json:"event"`
	ID      json.RawMessage `json:"id"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Payload struct {
		Result json.RawMessage   `json:"result"`
		Error  map[string]string `json:"error"`
	} `json:"payload"`
}

type testFixture struct {
	ctx   context.Context
	stack *testkit.Stack
	http  *httptest.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	stack := testkit.NewStack(t, nil)
	srv, err := socket.New(stack.Service, stack.Gatekeeper)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("GET /socket/auth", srv.AuthHandler())
	mux.Handle("GET /socket/session", srv.SessionHandler())
	httpServer := httptest.NewServer(mux)
	t.Cleanup(httpServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return &testFixture{ctx: ctx, stack: stack, http: httpServer}
}

func (f *testFixture) dial(t *testing.T, path string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, err := f.dialErr(path, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.CloseNow() })
	return ws
}

func (f *testFixture) dialErr(path string, header http.Header) (*websocket.Conn, error) {
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + path
	ws, _, err := websocket.Dial(f.ctx, url, &websocket.DialOptions{HTTPHeader: header})
	return ws, err
}

func (f *testFixture) send(t *testing.T, ws *websocket.Conn, event string, id int, data any) ack {
	t.Helper()
	frame := map[string]any{"event": event, "id": id}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, wsjson.Write(f.ctx, ws, frame))

	var reply ack
	require.NoError(t, wsjson.Read(f.ctx, ws, &reply))
	require.Equal(t, socket.EventAck, reply.Event)
	require.JSONEq(t, string(mustJSON(t, id)), string(reply.ID))
	return reply
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func (f *testFixture) account(t *testing.T) *accounts.Account {
	t.Helper()
	repo, err := f.stack.Service.Store(f.ctx, auth.Global())
	require.NoError(t, err)
	account, err := repo.GetByEmail(f.ctx, testkit.Email)
	require.NoError(t, err)
	return account
}

func credentials() map[string]string {
	return map[string]string{"name": testkit.Name, "email": testkit.Email, "password": testkit.Password}
}

func TestNew_RequiresDeps(t *testing.T) {
	stack := testkit.NewStack(t, nil)

	_, err := socket.New(nil, stack.Gatekeeper)
	require.Error(t, err)
	_, err = socket.New(stack.Service, nil)
	require.Error(t, err)
}

func TestAuthNamespace_RegisterLoginRefresh(t *testing.T) {
	f := setupTestFixture(t)
	ws := f.dial(t, "/socket/auth", nil)

	reply := f.send(t, ws, socket.EventRegister, 1, credentials())
	require.True(t, reply.Success)
	require.Equal(t, socket.MessageRegistered, reply.Message)

	reply = f.send(t, ws, socket.EventRegister, 2, credentials())
	require.False(t, reply.Success)
	require.Equal(t, "user_already_registered", reply.Message)

	reply = f.send(t, ws, socket.EventLogin, 3, map[string]string{"email": testkit.Email, "password": testkit.Password})
	require.True(t, reply.Success)
	require.Equal(t, socket.MessageLoggedIn, reply.Message)

	var login struct {
		User         accounts.Account `json:"user"`
		AccessToken  string           `json:"access_token"`
		RefreshToken string           `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(reply.Payload.Result, &login))
	require.NotEmpty(t, login.AccessToken)
	require.True(t, login.User.IsOnline)
	require.NotEmpty(t, login.User.SocketID)

	// Without data the refresh token stored by the login is used.
	reply = f.send(t, ws, socket.EventRefreshToken, 4, nil)
	require.True(t, reply.Success, reply.Message)
	require.Equal(t, socket.MessageTokenRefreshed, reply.Message)

	reply = f.send(t, ws, socket.EventRefreshToken, 5, map[string]string{"refresh_token_old": login.RefreshToken})
	require.True(t, reply.Success)

	reply = f.send(t, ws, socket.EventRefreshToken, 6, map[string]string{"refresh_token_old": "garbage"})
	require.False(t, reply.Success)
	require.Equal(t, "token_is_invalid", reply.Message)
}

func TestAuthNamespace_ValidationIsAcked(t *testing.T) {
	f := setupTestFixture(t)
	ws := f.dial(t, "/socket/auth", nil)

	reply := f.send(t, ws, socket.EventRegister, 1, map[string]string{"name": "al"})
	require.False(t, reply.Success)
	require.Equal(t, "validation_error", reply.Message)
	require.Equal(t, `"name" length must be at least 3 characters long`, reply.Payload.Error["name"])
	require.Contains(t, reply.Payload.Error, "email")

	reply = f.send(t, ws, socket.EventLogin, 2, "not an object")
	require.False(t, reply.Success)
	require.Contains(t, reply.Payload.Error, "data")

	reply = f.send(t, ws, socket.EventRefreshToken, 3, nil)
	require.False(t, reply.Success)
	require.Contains(t, reply.Payload.Error, "refresh_token_old")

	reply = f.send(t, ws, "subscribe", 4, nil)
	require.False(t, reply.Success)
	require.Equal(t, socket.MessageUnknownEvent, reply.Message)

	require.NoError(t, ws.Write(f.ctx, websocket.MessageText, []byte("{broken")))
	var frame socket.ErrorFrame
	require.NoError(t, wsjson.Read(f.ctx, ws, &frame))
	require.Equal(t, socket.EventError, frame.Event)
	require.Equal(t, socket.MessageInvalidFrame, frame.Message)

	// The connection survives all of the above.
	reply = f.send(t, ws, socket.EventRegister, 5, credentials())
	require.True(t, reply.Success)
}

func TestAuthNamespace_Logout(t *testing.T) {
	f := setupTestFixture(t)
	f.stack.Register(t, auth.Global())
	ws := f.dial(t, "/socket/auth", nil)

	reply := f.send(t, ws, socket.EventLogin, 1, map[string]string{"email": testkit.Email, "password": testkit.Password})
	require.True(t, reply.Success)
	require.True(t, f.account(t).IsOnline)

	reply = f.send(t, ws, socket.EventLogout, 2, nil)
	require.True(t, reply.Success)
	require.Equal(t, socket.MessageLoggedOut, reply.Message)

	account := f.account(t)
	require.False(t, account.IsOnline)
	require.NotNil(t, account.LastSeen)
}

func TestAuthNamespace_DisconnectLogsOut(t *testing.T) {
	f := setupTestFixture(t)
	f.stack.Register(t, auth.Global())
	ws := f.dial(t, "/socket/auth", nil)

	reply := f.send(t, ws, socket.EventLogin, 1, map[string]string{"email": testkit.Email, "password": testkit.Password})
	require.True(t, reply.Success)
	require.True(t, f.account(t).IsOnline)

	require.NoError(t, ws.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return !f.account(t).IsOnline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionNamespace(t *testing.T) {
	f := setupTestFixture(t)
	registered := f.stack.Register(t, auth.Global())

	// Sign in over /auth so the session is bound to that connection.
	authWS := f.dial(t, "/socket/auth", nil)
	reply := f.send(t, authWS, socket.EventLogin, 1, map[string]string{"email": testkit.Email, "password": testkit.Password})
	require.True(t, reply.Success)
	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(reply.Payload.Result, &tokens))
	require.True(t, f.account(t).IsOnline)

	ws := f.dial(t, "/socket/session?access_token="+tokens.AccessToken, nil)
	reply = f.send(t, ws, socket.EventMe, 1, nil)
	require.True(t, reply.Success)
	require.Equal(t, socket.MessageAuthenticated, reply.Message)

	var me accounts.Account
	require.NoError(t, json.Unmarshal(reply.Payload.Result, &me))
	require.Equal(t, registered.ID, me.ID)

	header := http.Header{"Authorization": {"Bearer " + tokens.AccessToken}}
	other := f.dial(t, "/socket/session", header)
	reply = f.send(t, other, socket.EventMe, 2, nil)
	require.True(t, reply.Success)

	reply = f.send(t, other, socket.EventLogout, 3, nil)
	require.True(t, reply.Success)
	require.Equal(t, socket.MessageLoggedOut, reply.Message)
	_, _, err := other.Read(f.ctx)
	require.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	require.False(t, f.account(t).IsOnline)
}

func TestSessionNamespace_LogoutWithoutSocketLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.stack.Register(t, auth.Global())
	tokens := f.stack.Login(t, auth.Global())

	ws := f.dial(t, "/socket/session?access_token="+tokens.AccessToken, nil)
	reply := f.send(t, ws, socket.EventLogout, 1, nil)
	require.False(t, reply.Success)
	require.Equal(t, "no_active_session", reply.Message)

	// The connection stays open after a failed logout.
	reply = f.send(t, ws, socket.EventMe, 2, nil)
	require.True(t, reply.Success)
}

func TestSessionNamespace_RejectsHandshake(t *testing.T) {
	f := setupTestFixture(t)
	f.stack.Register(t, auth.Global())
	tenantTokens := func() string {
		_, err := f.stack.Service.Register(f.ctx, auth.Tenant("acme"), auth.RegisterRequest{Name: testkit.Name, Email: testkit.Email, Password: testkit.Password})
		require.NoError(t, err)
		return f.stack.Login(t, auth.Tenant("acme")).AccessToken
	}()

	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"no token", "/socket/session", "access_token_is_required"},
		{"garbage token", "/socket/session?access_token=garbage", "token_is_invalid"},
		{"tenant token", "/socket/session?access_token=" + tenantTokens, "token_is_invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := f.dial(t, tt.path, nil)

			var frame socket.ErrorFrame
			require.NoError(t, wsjson.Read(f.ctx, ws, &frame))
			require.Equal(t, socket.EventError, frame.Event)
			require.Equal(t, tt.message, frame.Message)

			_, _, err := ws.Read(f.ctx)
			require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
		})
	}
}
