package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/quillgame/quill/backend/go/internal/v1/auth"
	"github.com/quillgame/quill/backend/go/internal/v1/bus"
	"github.com/quillgame/quill/backend/go/internal/v1/config"
	"github.com/quillgame/quill/backend/go/internal/v1/events"
	"github.com/quillgame/quill/backend/go/internal/v1/game"
	"github.com/quillgame/quill/backend/go/internal/v1/ratelimit"
	"github.com/quillgame/quill/backend/go/internal/v1/realtime"
	"github.com/quillgame/quill/backend/go/internal/v1/users"
)

// fakeUsers is an in-memory UserDirectory. The password column stores
// whatever the handler puts there, so login tests get real bcrypt hashes
// while socket tests can skip hashing entirely.
type fakeUsers struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*users.User
	byName map[string]*users.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:   make(map[uuid.UUID]*users.User),
		byName: make(map[string]*users.User),
	}
}

func (f *fakeUsers) Create(_ context.Context, username, password string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[username]; ok {
		return nil, users.ErrUsernameTaken
	}
	u := &users.User{ID: uuid.New(), Username: username, Password: password, CreatedAt: time.Now()}
	f.byID[u.ID] = u
	f.byName[u.Username] = u
	return u, nil
}

func (f *fakeUsers) ByUsername(_ context.Context, username string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName[username]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) ByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return u, nil
}

// wordBankFixture backs the word bank in every test environment; game tests
// assert drawn answers against it.
var wordBankFixture = []string{"sailboat", "volcano", "penguin"}

// testEnv is the fully wired API over miniredis, with an in-memory user
// directory and session store.
type testEnv struct {
	mr       *miniredis.Miniredis
	bus      *bus.Service
	users    *fakeUsers
	sessions auth.Store
	ts       *httptest.Server
}

func newTestEnv(t *testing.T, loopCfg realtime.LoopConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	svc, err := bus.NewService("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	reg := realtime.NewRegistry()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, reg.Shutdown(ctx))
	})

	limiter, err := ratelimit.NewRateLimiter(&config.Config{
		RateLimitApiGlobal: "1000-M",
		RateLimitApiAuth:   "1000-M",
		RateLimitApiRooms:  "1000-M",
		RateLimitWsIp:      "1000-M",
	}, nil)
	require.NoError(t, err)

	env := &testEnv{
		mr:       mr,
		bus:      svc,
		users:    newFakeUsers(),
		sessions: auth.NewMemoryStore(),
	}

	server := New(Deps{
		Users:    env.users,
		Sessions: env.sessions,
		Bus:      svc,
		Registry: reg,
		Words:    realtime.NewWordBank(wordBankFixture),
		Limiter:  limiter,
		Loop:     loopCfg,
	})
	engine := gin.New()
	server.Register(engine)

	env.ts = httptest.NewServer(engine)
	t.Cleanup(env.ts.Close)
	return env
}

// fastLoop keeps games snappy: turns end the moment everyone guessed, and
// the 5s ceiling only matters if a test deadlocks.
func fastLoop() realtime.LoopConfig {
	return realtime.LoopConfig{
		Rounds:       1,
		TurnDuration: 5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		LobbyTimeout: time.Hour,
	}
}

// createUser registers a user directly against the directory and opens a
// session, bypassing the HTTP signup and its bcrypt cost.
func createUser(t *testing.T, env *testEnv, username string) (game.Member, string) {
	t.Helper()
	u, err := env.users.Create(context.Background(), username, "not-a-real-hash")
	require.NoError(t, err)
	sess, err := env.sessions.Create(context.Background(), u.ID)
	require.NoError(t, err)
	return u.Member(), sess.ID
}

// createRoom persists a lobby and spawns nothing; tests that need the game
// loop go through POST /room instead.
func createRoom(t *testing.T, env *testEnv, owner game.Member) *game.Room {
	t.Helper()
	room := game.New(env.bus.Client(), owner)
	require.NoError(t, room.Save(context.Background()))
	return room
}

func doRequest(t *testing.T, env *testEnv, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.ts.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, env *testEnv, path, token string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return doRequest(t, env, http.MethodPost, path, token, strings.NewReader(string(data)), "application/json")
}

func postForm(t *testing.T, env *testEnv, path string, form url.Values) *http.Response {
	t.Helper()
	return doRequest(t, env, http.MethodPost, path, "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func getJSON(t *testing.T, env *testEnv, path, token string) *http.Response {
	t.Helper()
	return doRequest(t, env, http.MethodGet, path, token, nil, "")
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// dialRoom opens a websocket on the room route. The dial itself succeeds
// even for rooms that are about to reject; the refusal arrives as a close
// frame.
func dialRoom(t *testing.T, env *testEnv, roomID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/room/" + roomID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendAuth(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"Authorization": "Bearer " + token}))
}

// connectMember dials, authenticates and drains the CONNECT snapshot plus
// the member's own join announcement, leaving the socket at a clean point.
func connectMember(t *testing.T, env *testEnv, roomID, token string, username string) *websocket.Conn {
	t.Helper()
	conn := dialRoom(t, env, roomID)
	sendAuth(t, conn, token)

	connect := readEvent(t, conn)
	require.Equal(t, events.TypeConnect, connect.Type)

	joined := readEvent(t, conn)
	require.Equal(t, events.TypeMemberJoin, joined.Type)
	var who game.Member
	require.NoError(t, json.Unmarshal(joined.Data, &who))
	require.Equal(t, username, who.Username)
	return conn
}

// observedEvent is one decoded envelope off the socket.
type observedEvent struct {
	Type events.Type     `json:"event_type"`
	Data json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) observedEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev observedEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

// expectClose asserts the server closes the socket with the code and reason.
func expectClose(t *testing.T, conn *websocket.Conn, code int, reason string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	closeErr := &websocket.CloseError{}
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, code, closeErr.Code)
	require.Equal(t, reason, closeErr.Text)
}
