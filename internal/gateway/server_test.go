package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botrelay/internal/activity"
	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/facade"
	"github.com/soyeahso/botrelay/internal/history"
	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/orchestrator"
	"github.com/soyeahso/botrelay/internal/pipeline"
	"github.com/soyeahso/botrelay/internal/reqctx"
	"github.com/soyeahso/botrelay/internal/stream"
	"github.com/soyeahso/botrelay/internal/version"
)

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	hub     *stream.Hub
	configs *chatconfig.Cache
	history *history.Memory
	engine  *pipeline.Engine
}

func newTestEnv(t *testing.T, gw config.GatewayConfig) *testEnv {
	t.Helper()
	log := logging.New(nil, "silent")
	configs := chatconfig.NewCache(chatconfig.MapSource{
		"default": {"bot-name": "Relay", "typing-interval": 1, "default-orchestrator": "support"},
		"support": {"type": "echo", "description": "Support desk", "echo-prefix": "you said: "},
		"hidden":  {"type": "echo", "public": false},
	}, log)
	hub := stream.NewHub(log)
	hist := history.NewMemory()
	orchs := orchestrator.NewRegistry(orchestrator.Deps{Log: log})

	fdeps := facade.Deps{
		Streams:       stream.NewFactory(config.StreamConfig{Mode: "hub"}, hub, nil, log),
		Orchestrators: orchs,
		Configs:       configs,
		Log:           log,
	}
	engine := pipeline.NewEngine(pipeline.NewMemoryStore(), log)
	off := false
	facade.Steps{
		Deps:    fdeps,
		Session: reqctx.Deps{Configs: configs, History: hist, Log: log},
	}.Register(engine, config.PipelineConfig{Suggestions: &off})

	srv := New(gw, log, Deps{
		Facade:        fdeps,
		History:       hist,
		Hub:           hub,
		Pipeline:      engine,
		Orchestrators: orchs,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		engine.Wait()
		hub.CloseAll()
		ts.Close()
	})
	return &testEnv{srv: srv, ts: ts, hub: hub, configs: configs, history: hist, engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// listen subscribes a websocket to streamID and waits until the hub has it.
func (e *testEnv) listen(t *testing.T, streamID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/stream?stream-id=" + streamID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.hub.Count(streamID) == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

// readUntil reads activities from conn until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(*activity.Activity) bool) *activity.Activity {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(data, &payload))
		b, err := activity.BatchFromMap(payload)
		require.NoError(t, err)
		for _, a := range b.Activities {
			if match(a) {
				return a
			}
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, body := e.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, version.Version, body["version"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNotFoundEndpoint(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, body := e.do(t, "GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "/nope", body["path"])
}

func TestStartConversationMintsThread(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, body := e.do(t, "POST", "/api/webchat/conversations", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	id, _ := body["conversationId"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, id, body["streamId"])

	unpacked, err := reqctx.UnpackContext(body["context"].(string))
	require.NoError(t, err)
	assert.Equal(t, id, unpacked)
}

func TestRejoinConversationWithContextToken(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	_, first := e.do(t, "GET", "/api/webchat/conversations/conv-7", nil)
	assert.Equal(t, "conv-7", first["conversationId"])

	_, again := e.do(t, "POST", "/api/webchat/conversations", map[string]any{"context": first["context"]})
	assert.Equal(t, "conv-7", again["conversationId"])
}

func TestConversationRoundTrip(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	conn := e.listen(t, "conv-1")

	resp, _ := e.do(t, "POST", "/api/webchat/conversations/conv-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	welcome := readUntil(t, conn, func(a *activity.Activity) bool { return a.Type == activity.TypeMessage })
	assert.Contains(t, welcome.Text, "Relay")

	resp, body := e.do(t, "POST", "/api/webchat/conversations/conv-1/activities", map[string]any{"text": "hello"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/pipelines/"+id, body["statusUrl"])

	reply := readUntil(t, conn, func(a *activity.Activity) bool {
		return a.Type == activity.TypeMessage && a.Text == "you said: hello"
	})
	require.NotNil(t, reply.From)
	assert.Equal(t, facade.DefaultBotID, reply.From.ID)

	e.engine.Wait()
	resp, status := e.do(t, "GET", "/api/pipelines/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inst := status["instance"].(map[string]any)
	assert.Equal(t, string(pipeline.StatusComplete), inst["status"])
	assert.NotEmpty(t, status["steps"])

	msgs, err := e.history.Load(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestPostActivityValidation(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{"no prompt", "/api/webchat/conversations/conv-1/activities", map[string]any{"text": "  "}},
		{"no thread", "/api/webchat/conversations/undefined/activities", map[string]any{"text": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.do(t, "POST", tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestPostActivityUsesPromptField(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, _ := e.do(t, "POST", "/api/webchat/conversations/conv-2/activities", map[string]any{"prompt": "status?"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestPostActivityRateLimited(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{RateLimit: config.RateLimitConfig{PerSecond: 0.001, Burst: 1}})
	resp, _ := e.do(t, "POST", "/api/webchat/conversations/conv-1/activities", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = e.do(t, "POST", "/api/webchat/conversations/conv-1/activities", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// other routes are not limited
	resp, _ = e.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMessagesNotImplemented(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, _ := e.do(t, "GET", "/api/webchat/conversations/conv-1/messages", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestPipelineStatusUnknown(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, _ := e.do(t, "GET", "/api/pipelines/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateStream(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, body := e.do(t, "POST", "/api/create-stream", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	id, _ := body["stream-id"].(string)
	require.NotEmpty(t, id)
	wantURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/stream?stream-id=" + id
	assert.Equal(t, wantURL, body["stream-url"])

	conn, _, err := websocket.DefaultDialer.Dial(body["stream-url"].(string), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool { return e.hub.Count(id) == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return e.hub.Count(id) == 0 }, time.Second, 5*time.Millisecond)
}

func TestStreamURLUsesPublicURL(t *testing.T) {
	tests := []struct {
		public string
		want   string
	}{
		{"https://chat.example.com/", "wss://chat.example.com/api/stream?stream-id=s+1"},
		{"http://10.0.0.5:8080", "ws://10.0.0.5:8080/api/stream?stream-id=s+1"},
	}
	for _, tt := range tests {
		t.Run(tt.public, func(t *testing.T) {
			s := &Server{cfg: config.GatewayConfig{PublicURL: tt.public}}
			r := httptest.NewRequest("GET", "/api/create-stream", nil)
			assert.Equal(t, tt.want, s.streamURL(r, "s 1"))
		})
	}
}

func TestStreamRequiresID(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, _ := e.do(t, "GET", "/api/stream", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshCaches(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	var mu sync.Mutex
	refreshed := 0
	e.configs.OnRefresh(func() {
		mu.Lock()
		refreshed++
		mu.Unlock()
	})
	_, err := e.configs.Get(context.Background(), "support")
	require.NoError(t, err)

	resp, body := e.do(t, "POST", "/api/refresh-caches", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, e.configs.Names())
	mu.Lock()
	assert.Equal(t, 1, refreshed)
	mu.Unlock()
}

func TestListOrchestrators(t *testing.T) {
	e := newTestEnv(t, config.GatewayConfig{})
	resp, err := http.Get(e.ts.URL + "/api/list-orchestrators")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []orchestrator.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, []orchestrator.Info{
		{Name: "support", Description: "Support desk", Pattern: "echo", Default: true},
	}, list)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		bind string
		host string
		port int
		want string
	}{
		{"loopback", "", 18790, "127.0.0.1:18790"},
		{"lan", "", 9999, "0.0.0.0:9999"},
		{"auto", "", 8080, "0.0.0.0:8080"},
		{"custom", "", 3000, "0.0.0.0:3000"},
		{"custom", "10.1.2.3", 3000, "10.1.2.3:3000"},
		{"unknown", "", 5000, "127.0.0.1:5000"},
	}
	for _, tt := range tests {
		t.Run(tt.bind+tt.host, func(t *testing.T) {
			addr := resolveBindAddr(config.GatewayConfig{Bind: tt.bind, CustomBindHost: tt.host, Port: tt.port})
			assert.Equal(t, tt.want, addr)
		})
	}
}

func TestServerStartEmitsLifecycleHooks(t *testing.T) {
	log := logging.New(nil, "silent")
	mgr := hooks.NewManager(log)
	var mu sync.Mutex
	var events []string
	for _, ev := range []string{hooks.EventGatewayStart, hooks.EventGatewayStop} {
		mgr.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			mu.Lock()
			events = append(events, p.Event)
			mu.Unlock()
			return nil
		})
	}

	srv := New(config.GatewayConfig{Bind: "loopback", Port: 0}, log, Deps{Facade: facade.Deps{Hooks: mgr}})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, events)
	mu.Unlock()
}
