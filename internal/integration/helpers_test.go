package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"callboard/internal/app"
	"callboard/internal/auth"
	"callboard/internal/config"
	"callboard/pkg/types"
)

const (
	jwtSecret      = "integration-jwt-secret"
	classroomToken = "integration-display-token"
)

var (
	parent      = types.Identity{UserID: "p1", Role: types.RoleParent}
	otherParent = types.Identity{UserID: "p2", Role: types.RoleParent}
	teacher     = types.Identity{UserID: "t1", Role: types.RoleTeacher, SchoolID: "s1"}
	foreignTch  = types.Identity{UserID: "t2", Role: types.RoleTeacher, SchoolID: "s2"}
)

// testEnv is a running application with a seeded directory.
type testEnv struct {
	app      *app.Application
	base     string
	resolver *auth.Resolver
}

func startApp(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "callboard.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.WebSocket.ClassroomToken = classroomToken
	cfg.Auth.JWTSecret = jwtSecret

	application, err := app.NewApplication(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	seed(t, application)

	resolver, err := auth.NewResolver(jwtSecret)
	require.NoError(t, err)

	return &testEnv{
		app:      application,
		base:     "http://" + application.GetAddr(),
		resolver: resolver,
	}
}

func seed(t *testing.T, application *app.Application) {
	t.Helper()
	store := application.Store()
	ctx := context.Background()

	require.NoError(t, store.UpsertSchool(ctx, types.School{ID: "s1", Name: "School One"}))
	require.NoError(t, store.UpsertSchool(ctx, types.School{ID: "s2", Name: "School Two"}))
	require.NoError(t, store.UpsertClass(ctx, types.Class{ID: "c1", SchoolID: "s1", ClassName: "5A"}))
	require.NoError(t, store.UpsertClass(ctx, types.Class{ID: "c2", SchoolID: "s1", ClassName: "3B"}))
	require.NoError(t, store.UpsertStudent(ctx, types.Student{ID: "st1", SchoolID: "s1", ClassID: "c1", FullName: "Ada Lovelace", StudentNumber: "1001"}))
	require.NoError(t, store.UpsertStudent(ctx, types.Student{ID: "st2", SchoolID: "s1", ClassID: "c2", FullName: "Bora Kim"}))
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: "p1", FullName: "Parent One", Role: types.RoleParent}))
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: "p2", FullName: "Parent Two", Role: types.RoleParent}))
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: "t1", FullName: "Teacher One", Role: types.RoleTeacher, SchoolID: "s1"}))
	require.NoError(t, store.LinkParent(ctx, "p1", "st1"))
	require.NoError(t, store.LinkParent(ctx, "p2", "st2"))
}

func (e *testEnv) token(t *testing.T, identity types.Identity) string {
	t.Helper()
	token, err := e.resolver.Issue(identity, time.Hour)
	require.NoError(t, err)
	return token
}

// request sends a JSON request and decodes a JSON response into out when non-nil.
func (e *testEnv) request(t *testing.T, method, path string, identity types.Identity, body, out interface{}) int {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, e.base+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, identity))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// display is a classroom screen subscribed to one channel.
type display struct {
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T, channel, token string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws/%s?token=%s", e.app.GetAddr(), channel, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connectDisplay dials a channel and waits until the registry has counted it.
func (e *testEnv) connectDisplay(t *testing.T, channel string) *display {
	t.Helper()
	before := e.app.Registry().Stats().TotalConnections
	conn := e.dial(t, channel, classroomToken)
	require.Eventually(t, func() bool {
		return e.app.Registry().Stats().TotalConnections > before
	}, 2*time.Second, 10*time.Millisecond)
	return &display{conn: conn}
}

func (d *display) next(t *testing.T) types.Envelope {
	t.Helper()
	require.NoError(t, d.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var envelope types.Envelope
	require.NoError(t, d.conn.ReadJSON(&envelope))
	return envelope
}

// expectSilence asserts nothing arrives within a short window.
func (d *display) expectSilence(t *testing.T) {
	t.Helper()
	require.NoError(t, d.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var envelope types.Envelope
	err := d.conn.ReadJSON(&envelope)
	require.Error(t, err, "unexpected envelope %+v", envelope)
}
