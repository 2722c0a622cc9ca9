package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainwatch/internal/config"
	"chainwatch/internal/di"
)

const rotterdamState = `{
  "region": "Rotterdam",
  "timestamp": "2025-03-01T08:00:00",
  "aggregated_risk": {
    "risk_score": 3.0,
    "risk_level": "Medium",
    "breakdown": {
      "news": {"weight": 0.4, "severity": 3, "contribution": 1.2},
      "weather": {"weight": 0.3, "severity": 4, "contribution": 1.2},
      "port": {"weight": 0.3, "severity": 2, "contribution": 0.6}
    }
  },
  "status": "completed"
}`

func riskService(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/regions":
			_, _ = io.WriteString(w, `{"regions": ["Shanghai", "Rotterdam"]}`)
		case r.URL.Path == "/state":
			_, _ = io.WriteString(w, "null")
		case r.URL.Path == "/analyze/Rotterdam":
			_, _ = io.WriteString(w, rotterdamState)
		case r.URL.Path == "/analyze/Shanghai":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail": "upstream exploded"}`)
		case r.URL.Path == "/chat":
			var body struct {
				Message string `json:"message"`
				Region  string `json:"region"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Message == "fail" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, `{"response": "Region `+body.Region+` looks stable.", "based_on_data": true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestServer(t *testing.T, capacity int, opts ...config.Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := riskService(t)
	cfg, _, err := config.Load(append([]config.Option{
		config.WithEnv(func(string) (string, bool) { return "", false }),
		config.WithSearchPaths(t.TempDir()),
		config.WithOverride("service.base_url", backend.URL),
		config.WithOverride("server.session_capacity", capacity),
	}, opts...)...)
	require.NoError(t, err)

	container, err := di.BuildContainer(cfg, di.WithLogOutput(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Cleanup(context.Background()) })

	server, err := NewServer(container)
	require.NoError(t, err)
	return server
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec, env := call(t, s, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.ID)
	return session.ID
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 4)

	rec, env := call(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"breaker":"closed"`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metrics := httptest.NewRecorder()
	s.Handler().ServeHTTP(metrics, req)
	assert.Equal(t, http.StatusOK, metrics.Code)
}

func TestRegionsServesRemoteCatalog(t *testing.T) {
	s := newTestServer(t, 4)

	rec, env := call(t, s, http.MethodGet, "/api/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(logIDHeader))

	var regions RegionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &regions))
	assert.Equal(t, "remote", string(regions.Source))
	assert.Equal(t, "Shanghai", string(regions.Default))
	assert.Len(t, regions.Regions, 2)
}

func TestAnalyzeFlow(t *testing.T) {
	s := newTestServer(t, 4)
	id := createSession(t, s)

	rec, _ := call(t, s, http.MethodPut, "/api/sessions/"+id+"/region", `{"region": "Atlantis"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, s, http.MethodPut, "/api/sessions/"+id+"/region", `{"region": "Rotterdam"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := call(t, s, http.MethodPost, "/api/sessions/"+id+"/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"risk_level":"Medium"`)
	assert.Contains(t, string(env.Data), `"phase":"idle"`)

	// A failed analysis keeps the previous assessment on display.
	rec, _ = call(t, s, http.MethodPut, "/api/sessions/"+id+"/region", `{"region": "Shanghai"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = call(t, s, http.MethodPost, "/api/sessions/"+id+"/analyze", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream exploded", env.Error)
	assert.Contains(t, string(env.Data), `"region":"Rotterdam"`)
	assert.Contains(t, string(env.Data), `"error":"upstream exploded"`)
}

func TestChatFlow(t *testing.T) {
	s := newTestServer(t, 4)
	id := createSession(t, s)

	rec, env := call(t, s, http.MethodGet, "/api/sessions/"+id+"/chat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "suggestions")

	rec, _ = call(t, s, http.MethodPost, "/api/sessions/"+id+"/chat/open", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, s, http.MethodPost, "/api/sessions/"+id+"/chat", `{"message": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = call(t, s, http.MethodPost, "/api/sessions/"+id+"/chat", `{"message": "Any port disruptions today?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, string(env.Data), `"outcome":"answered"`)
	assert.Contains(t, string(env.Data), "Region Shanghai looks stable.")

	rec, env = call(t, s, http.MethodPost, "/api/sessions/"+id+"/chat", `{"message": "fail"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"outcome":"fallback"`)
	assert.Contains(t, string(env.Data), "Sorry, I encountered an error.")
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, 1)
	first := createSession(t, s)
	second := createSession(t, s)

	rec, _ := call(t, s, http.MethodGet, "/api/sessions/"+first, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "capacity of one evicts the older session")

	rec, _ = call(t, s, http.MethodDelete, "/api/sessions/"+second, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = call(t, s, http.MethodDelete, "/api/sessions/"+second, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJSONMiddlewareRejectsOtherBodies(t *testing.T) {
	s := newTestServer(t, 4)
	id := createSession(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/chat", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestChatWebSocket(t *testing.T) {
	s := newTestServer(t, 4)
	id := createSession(t, s)

	httpServer := httptest.NewServer(s.Handler())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/sessions/" + id + "/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello WebSocketMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "snapshot", hello.Type)
	assert.Equal(t, id, hello.SessionID)

	require.NoError(t, conn.WriteJSON(ChatRequest{Message: "What is the main risk factor?"}))
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "chat", frame.Type)
	assert.Contains(t, string(frame.Data), "looks stable")

	require.NoError(t, conn.WriteJSON(ChatRequest{Message: ""}))
	var rejected WebSocketMessage
	require.NoError(t, conn.ReadJSON(&rejected))
	assert.Equal(t, "error", rejected.Type)
	assert.Equal(t, "message is empty", rejected.Error)
}

func TestChatWebSocketSameOriginWithoutCORS(t *testing.T) {
	s := newTestServer(t, 4, config.WithOverride("server.enable_cors", false))
	id := createSession(t, s)

	httpServer := httptest.NewServer(s.Handler())
	defer httpServer.Close()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/sessions/" + id + "/chat"

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {httpServer.URL}})
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var hello WebSocketMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "snapshot", hello.Type)
	_ = conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	request := func(origin string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "http://dashboard.local/ws/sessions/x/chat", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	assert.Nil(t, originChecker(false, []string{"http://app.example"}))

	open := originChecker(true, nil)
	assert.True(t, open(request("http://anywhere.example")))

	restricted := originChecker(true, []string{"http://app.example"})
	assert.True(t, restricted(request("http://app.example")))
	assert.True(t, restricted(request("http://dashboard.local")))
	assert.True(t, restricted(request("")))
	assert.False(t, restricted(request("http://other.example")))
}

func TestRequestsCompleteAfterClientDisconnects(t *testing.T) {
	s := newTestServer(t, 4)
	id := createSession(t, s)
	rec, _ := call(t, s, http.MethodPut, "/api/sessions/"+id+"/region", `{"region": "Rotterdam"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	post := func(path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(http.MethodPost, path, reader).WithContext(gone)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec = post("/api/sessions/"+id+"/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"region":"Rotterdam"`)
	assert.NotContains(t, rec.Body.String(), "context canceled")

	rec = post("/api/sessions/"+id+"/chat", `{"message": "Any port disruptions today?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"outcome":"answered"`)
	assert.Contains(t, rec.Body.String(), "Region Rotterdam looks stable.")
}
