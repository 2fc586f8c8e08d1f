package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"botsim/pkg/config"
	"botsim/pkg/engine"
	"botsim/pkg/fleet"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:ABC-DEF"

func newTestServer(t *testing.T, tweak func(*config.Config)) (*httptest.Server, *fleet.Manager) {
	t.Helper()
	cfg := config.DefaultConfig()
	if tweak != nil {
		tweak(cfg)
	}
	reg := prometheus.NewRegistry()
	opts := fleet.DefaultOptions()
	opts.Delays = fleet.Delays{}
	opts.CrashProbability = 0
	opts.Registerer = reg
	fm := fleet.NewManager(opts)
	t.Cleanup(fm.Close)

	srv := NewServer(cfg, fm, engine.NewSet(engine.SandboxOptions{}), reg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, fm
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func createRunningBot(t *testing.T, ts *httptest.Server, fm *fleet.Manager, lang string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/bots", `{"language":"`+lang+`","token":"`+testToken+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	require.Eventually(t, func() bool {
		b, err := fm.Get(id)
		return err == nil && b.Status == fleet.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)
	return id
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSimulateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/simulate", `{"language":"python","code":`+quote(engine.PythonTemplate)+`,"message":"/start"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := body["reply"].(map[string]interface{})
	assert.Equal(t, "Hello! I am your new bot. Choose an option:", reply["text"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/simulate", `{"language":"js","code":"const x = 1;","message":"/start"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "no_bot_instance", body["kind"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/simulate", `{"language":"ruby"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/simulate", `{"language":"python","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBotLifecycleOverHTTP(t *testing.T) {
	ts, fm := newTestServer(t, nil)
	id := createRunningBot(t, ts, fm, "javascript")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/bots/"+id+"/messages", `{"text":"/start"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := body["reply"].(map[string]interface{})
	assert.Equal(t, "Welcome! I am your new bot. Choose an option:", reply["text"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/bots/"+id+"/buttons", `{"row":0,"col":0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/bots/"+id+"/buttons", `{"row":5,"col":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/bots/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["messages"], 3)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/bots/"+id+"/logs?tail=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["lines"], 2)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/bots/"+id+"/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", body["status"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/bots/"+id+"/messages", `{"text":"hi"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/api/bots/"+id, `{"name":"Echo Bot","language":"python","token":"`+testToken+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Echo Bot", body["name"])

	dl, err := http.Get(ts.URL + "/api/bots/Echo%20Bot/download")
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Contains(t, dl.Header.Get("Content-Disposition"), `filename="echo_bot.py"`)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/bots/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/bots/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBotsListFilter(t *testing.T) {
	ts, fm := newTestServer(t, nil)
	createRunningBot(t, ts, fm, "python")
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/bots", `{"language":"python","token":"bad"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, body := doJSON(t, http.MethodGet, ts.URL+"/api/bots?status=running", "")
	assert.Len(t, body["bots"], 1)
	_, body = doJSON(t, http.MethodGet, ts.URL+"/api/bots", "")
	assert.Len(t, body["bots"], 2)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/bots", `{"language":"cobol"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessageRateLimit(t *testing.T) {
	ts, fm := newTestServer(t, func(c *config.Config) {
		c.Gateway.MessageRate = 0.001
		c.Gateway.MessageBurst = 1
	})
	id := createRunningBot(t, ts, fm, "python")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/bots/"+id+"/messages", `{"text":"/start"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/bots/"+id+"/messages", `{"text":"/start"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestTemplateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/api/templates/js")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/templates/perl")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestBotSocketStreamsEvents(t *testing.T) {
	ts, fm := newTestServer(t, nil)
	id := createRunningBot(t, ts, fm, "python")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/bots/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot map[string]interface{}
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot["type"])

	_, err = fm.SendMessage(id, "/start")
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev fleet.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, id, ev.BotID)
		if ev.Type == fleet.EventMessage && ev.Message.Sender == "bot" {
			assert.Equal(t, 3, ev.Message.Buttons.Count())
			break
		}
	}
}

func TestParseTail(t *testing.T) {
	assert.Equal(t, 200, parseTail(""))
	assert.Equal(t, 200, parseTail("abc"))
	assert.Equal(t, 200, parseTail("-1"))
	assert.Equal(t, 12, parseTail("12"))
	assert.Equal(t, 5000, parseTail("90000"))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
