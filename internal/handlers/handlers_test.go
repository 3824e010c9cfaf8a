package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quickchat/internal/api"
	"quickchat/internal/database"
	"quickchat/internal/engine"
	"quickchat/internal/fanout"
	"quickchat/internal/middleware"
	"quickchat/internal/models"
	"quickchat/internal/presence"
	"quickchat/internal/utils"
	"quickchat/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	*httptest.Server
	registry *presence.Registry
	hub      *websocket.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	metrics := utils.NewMetricsCollector()
	hub := websocket.NewHub(log)
	registry := presence.NewRegistry(hub, log)

	eng := engine.NewEngine(actor.NewActorSystem(), engine.Options{
		Store:          database.NewMemoryDB(),
		Dispatcher:     fanout.NewDispatcher(registry, metrics, log),
		Registry:       registry,
		Metrics:        metrics,
		RequestTimeout: 5 * time.Second,
		StoreTimeout:   time.Second,
		PasswordCost:   bcrypt.MinCost,
		Log:            log,
	})

	srv := NewServer(Options{
		Engine:         eng,
		Tokens:         middleware.NewTokenManager("test-secret", time.Hour),
		Metrics:        metrics,
		Hub:            hub,
		Registry:       registry,
		AllowedOrigins: []string{"*"},
		MetricsEnabled: true,
		MaxBodyBytes:   1 << 10,
		SendBuffer:     16,
		Log:            log,
	})

	ts := &testServer{Server: httptest.NewServer(srv.Routes()), registry: registry, hub: hub}
	t.Cleanup(func() {
		hub.Shutdown()
		ts.Close()
		eng.Shutdown()
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) signup(t *testing.T, name string) (*models.User, string) {
	t.Helper()
	var res api.AuthResponse
	status := ts.do(t, http.MethodPost, "/api/auth/signup", "", SignupRequest{
		FullName: name,
		Email:    name + "@example.com",
		Password: "pw-" + name,
		Bio:      "hi, I am " + name,
	}, &res)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, res.Success)
	require.NotEmpty(t, res.Token)
	return res.UserData, res.Token
}

func (ts *testServer) dial(t *testing.T, token string) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *ws.Conn, event string) api.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env api.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Event == event {
			return env
		}
	}
}

func TestStatusAndHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", nil, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 0, health["onlineUsers"])

	metrics, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestSignupAndLogin(t *testing.T) {
	ts := newTestServer(t)
	alice, _ := ts.signup(t, "alice")
	assert.Equal(t, "alice@example.com", alice.Email)

	var res api.Response
	status := ts.do(t, http.MethodPost, "/api/auth/signup", "", SignupRequest{
		FullName: "alice", Email: "alice@example.com", Password: "x", Bio: "y",
	}, &res)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, utils.ErrDuplicate, res.Code)

	res = api.Response{}
	status = ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "no bio", "email": "nobio@example.com", "password": "x",
	}, &res)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bio is required", res.Message)

	var login api.AuthResponse
	status = ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "alice@example.com", Password: "pw-alice"}, &login)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, alice.ID, login.UserData.ID)

	res = api.Response{}
	status = ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "alice@example.com", Password: "nope"}, &res)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, utils.ErrInvalidCredentials, res.Code)

	var check api.UserResponse
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/auth/check", login.Token, nil, &check))
	assert.Equal(t, alice.ID, check.User.ID)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/auth/check", "", nil, nil))
}

func TestPasswordNeverSerialized(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.signup(t, "alice")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/check", nil)
	require.NoError(t, err)
	req.Header.Set("token", token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw struct {
		User map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.NotEmpty(t, raw.User)
	assert.NotContains(t, raw.User, "password")
	assert.NotContains(t, raw.User, "HashedPassword")
}

func TestUpdateProfileAlwaysResponds(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.signup(t, "alice")

	var res api.UserResponse
	status := ts.do(t, http.MethodPut, "/api/auth/update-profile", token, UpdateProfileRequest{FullName: "Alice", Bio: "new bio"}, &res)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, res.Success)
	assert.Equal(t, "new bio", res.User.Bio)
	assert.Empty(t, res.User.ProfilePic)

	res = api.UserResponse{}
	status = ts.do(t, http.MethodPut, "/api/auth/update-profile", token, UpdateProfileRequest{
		FullName: "Alice", Bio: "with pic", ProfilePic: "https://cdn.example.com/a.png",
	}, &res)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://cdn.example.com/a.png", res.User.ProfilePic)
}

func TestMessagingFlow(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.signup(t, "alice")
	bob, bobToken := ts.signup(t, "bob")

	bobConn := ts.dial(t, bobToken)
	readEnvelope(t, bobConn, api.EventOnlineUsers)

	var sent api.NewMessageResponse
	status := ts.do(t, http.MethodPost, "/api/message/send/"+bob.ID.String(), aliceToken, SendMessageRequest{Text: "hi"}, &sent)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, sent.Success)

	env := readEnvelope(t, bobConn, api.EventNewMessage)
	var pushed models.Message
	require.NoError(t, json.Unmarshal(env.Data, &pushed))
	assert.Equal(t, sent.NewMessage.ID, pushed.ID)
	assert.Equal(t, "hi", pushed.Text)

	status = ts.do(t, http.MethodPost, "/api/message/send/"+alice.ID.String(), bobToken, SendMessageRequest{Text: "yo"}, nil)
	require.Equal(t, http.StatusCreated, status)

	var sidebar api.SidebarResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/message/users", aliceToken, nil, &sidebar))
	require.Len(t, sidebar.Users, 1)
	assert.Equal(t, bob.ID, sidebar.Users[0].ID)
	assert.Equal(t, map[string]int{bob.ID.String(): 1}, sidebar.UnseenMessages)

	var thread api.MessagesResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/message/"+bob.ID.String(), aliceToken, nil, &thread))
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "hi", thread.Messages[0].Text)
	assert.Equal(t, "yo", thread.Messages[1].Text)

	sidebar = api.SidebarResponse{}
	ts.do(t, http.MethodGet, "/api/message/users", aliceToken, nil, &sidebar)
	assert.Empty(t, sidebar.UnseenMessages)

	sidebar = api.SidebarResponse{}
	ts.do(t, http.MethodGet, "/api/message/users", bobToken, nil, &sidebar)
	assert.Equal(t, map[string]int{alice.ID.String(): 1}, sidebar.UnseenMessages)

	var ack api.Response
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/messages/mark/"+sent.NewMessage.ID.String(), bobToken, nil, &ack))
	assert.True(t, ack.Success)

	sidebar = api.SidebarResponse{}
	ts.do(t, http.MethodGet, "/api/message/users", bobToken, nil, &sidebar)
	assert.Empty(t, sidebar.UnseenMessages)
}

func TestSendValidation(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.signup(t, "alice")
	bob, _ := ts.signup(t, "bob")

	var res api.Response
	status := ts.do(t, http.MethodPost, "/api/message/send/"+bob.ID.String(), aliceToken, SendMessageRequest{Text: "  "}, &res)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, utils.ErrInvalidInput, res.Code)

	status = ts.do(t, http.MethodPost, "/api/message/send/not-a-uuid", aliceToken, SendMessageRequest{Text: "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = ts.do(t, http.MethodPost, "/api/message/send/"+bob.ID.String(), aliceToken, SendMessageRequest{Text: strings.Repeat("x", 2048)}, nil)
	assert.Equal(t, http.StatusBadRequest, status, "body over the limit")

	status = ts.do(t, http.MethodPut, "/api/message/mark/"+bob.ID.String(), aliceToken, nil, &res)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMessageRoutePaths(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.signup(t, "alice")
	bob, bobToken := ts.signup(t, "bob")

	var sent api.NewMessageResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/message/send/"+bob.ID.String(), aliceToken, SendMessageRequest{Text: "hi"}, &sent))
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/message/users", aliceToken, nil, nil))
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/message/"+alice.ID.String(), bobToken, nil, nil))
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/message/mark/"+sent.NewMessage.ID.String(), bobToken, nil, nil))
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/messages/mark/"+sent.NewMessage.ID.String(), bobToken, nil, nil))

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/messages/users", aliceToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/messages/send/"+bob.ID.String(), aliceToken, SendMessageRequest{Text: "hi"}, nil))
}

func TestOnlineUsersAndAnonymousSocket(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.signup(t, "alice")

	anon := ts.dial(t, "not-a-valid-token")
	snapshot := readEnvelope(t, anon, api.EventOnlineUsers)
	assert.JSONEq(t, `[]`, string(snapshot.Data))

	ts.dial(t, aliceToken)
	env := readEnvelope(t, anon, api.EventOnlineUsers)
	assert.JSONEq(t, `["`+alice.ID.String()+`"]`, string(env.Data))

	var online api.OnlineUsersResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/users/online", aliceToken, nil, &online))
	assert.Equal(t, []string{alice.ID.String()}, online.OnlineUsers)
	assert.Equal(t, 1, ts.registry.Len())
}
