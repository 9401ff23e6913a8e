package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatserver/internal/config"
	"chatserver/internal/domain"
	"chatserver/internal/httpserver"
	"chatserver/internal/security"
	"chatserver/internal/service"
	"chatserver/internal/store/sqlite"
	"chatserver/internal/ws"
)

const testOrigin = "http://localhost:3000"

func newRealtimeServer(t *testing.T, requestTimeout time.Duration) (*httptest.Server, *security.TokenService, *domain.User) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	users := sqlite.NewUserRepo(db)
	messages := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	adminUser := &domain.User{Name: "Admin", Email: "admin@example.com", HashedPassword: "x", Role: domain.RoleAdmin}
	require.NoError(t, users.Create(ctx, adminUser))
	regular := &domain.User{Name: "Alice", Email: "alice@example.com", HashedPassword: "x", Role: domain.RoleUser}
	require.NoError(t, users.Create(ctx, regular))

	cfg := &config.Config{
		CORSOrigins:     []string{testOrigin},
		MaxAttachmentMB: 50,
		RequestTimeout:  requestTimeout,
	}
	tokens := security.NewTokenService("test-secret", time.Hour)
	hub := ws.NewHub()

	authSvc := service.NewAuthService(users, tokens, security.NewPasswordHasher(0))
	userSvc := service.NewUserService(users)
	chatSvc := service.NewChatService(users, messages, hub, cfg.MaxAttachmentBytes())
	historySvc := service.NewHistoryService(users, messages, hub)
	uploadSvc := service.NewUploadService(chatSvc, t.TempDir(), time.Minute)

	router := httpserver.NewRouter(cfg, users, hub, tokens, authSvc, userSvc, chatSvc, historySvc, uploadSvc)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, tokens, regular
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{
		"Authorization": {"Bearer " + token},
		"Origin":        {testOrigin},
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readAck(t *testing.T, conn *websocket.Conn, ackID int64) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env ws.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event != "ack" || env.AckID != ackID {
			continue
		}
		var data map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &data))
		return data
	}
}

func TestWebsocketOutlivesRequestTimeout(t *testing.T) {
	srv, tokens, regular := newRealtimeServer(t, 200*time.Millisecond)

	token, err := tokens.CreateForUser(regular.ID, regular.Role, regular.Name)
	require.NoError(t, err)
	conn := dialWS(t, srv, token)

	send := func(ackID int64, content string) {
		data, err := json.Marshal(service.TextMessageInput{Content: content})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(ws.Envelope{Event: "chat message", Data: data, AckID: ackID}))
	}

	send(1, "first")
	ack := readAck(t, conn, 1)
	require.Equal(t, true, ack["success"])

	// Wait out the REST request timeout; the connection must keep working.
	time.Sleep(300 * time.Millisecond)

	send(2, "second")
	ack = readAck(t, conn, 2)
	require.Equal(t, true, ack["success"])
}

func TestProtectedRoutesStillMounted(t *testing.T) {
	srv, _, _ := newRealtimeServer(t, 200*time.Millisecond)

	for _, path := range []string{"/api/users/admin", "/api/users/all"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}
