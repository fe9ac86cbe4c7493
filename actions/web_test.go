package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relloyd/etl-engine/engine"
	"github.com/relloyd/etl-engine/execution"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/scenario"
)

const ordersYaml = `
name: orders
driver: mock
sources:
  - name: orders
    connection: src
    sql: select ID from orders
destinations:
  - name: orders
    connection: dst
    object: dw.orders
`

type executorFunc func(ctx context.Context, req *engine.Request) *engine.Response

func (f executorFunc) Execute(ctx context.Context, req *engine.Request) *engine.Response {
	return f(ctx, req)
}

type testServer struct {
	srv      *httptest.Server
	launcher *execution.Launcher
	chanStop chan string
}

func newTestServer(t *testing.T, f executorFunc) *testServer {
	t.Helper()
	log := logger.NewLogger("actions test", "error", false)
	repo := scenario.NewMemoryRepository()
	require.NoError(t, repo.AddYaml([]byte(ordersYaml)))
	launcher := execution.NewLauncher(log, f, execution.NewSafeMapExecutionInfo(), 0)
	ts := &testServer{launcher: launcher, chanStop: make(chan string, 1)}
	ts.srv = httptest.NewServer(newRouter(log, launcher, repo, ts.chanStop))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method string, path string, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) launch(t *testing.T, body string) string {
	t.Helper()
	out := struct {
		Status      string `json:"status"`
		ExecutionID string `json:"executionId"`
	}{}
	code := ts.do(t, http.MethodPost, "/launch", body, &out)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", out.Status)
	require.NotEmpty(t, out.ExecutionID)
	return out.ExecutionID
}

func (ts *testServer) status(t *testing.T, id string) string {
	out := struct {
		ExecutionStatus struct {
			Status string `json:"executionStatus"`
		} `json:"executionStatus"`
	}{}
	ts.do(t, http.MethodGet, "/executions/"+id+"/status", "", &out)
	return out.ExecutionStatus.Status
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	out := map[string]string{}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", &out))
	require.Equal(t, "ok", out["status"])
}

func TestLaunchRunsTheNamedScenarioWithVariables(t *testing.T) {
	got := make(chan *engine.Request, 1)
	ts := newTestServer(t, func(ctx context.Context, req *engine.Request) *engine.Response {
		got <- req
		return &engine.Response{ExecutionID: req.ExecutionID, Scenario: req.ScenarioName, ReturnCode: engine.ReturnOK}
	})
	id := ts.launch(t, `{"scenario": "orders", "variables": {"region": "EU"}}`)
	req := <-got
	require.Equal(t, id, req.ExecutionID)
	require.NotNil(t, req.Scenario)
	require.Equal(t, "orders", req.Scenario.Name)
	require.Equal(t, map[string]string{"region": "EU"}, req.Variables)
	require.Eventually(t, func() bool { return ts.status(t, id) == "complete" }, 5*time.Second, 10*time.Millisecond)

	list := struct {
		Executions []struct {
			ExecutionID string `json:"executionId"`
			Scenario    string `json:"scenario"`
			Status      string `json:"executionStatus"`
		} `json:"executions"`
	}{}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/executions", "", &list))
	require.Len(t, list.Executions, 1)
	require.Equal(t, id, list.Executions[0].ExecutionID)
	require.Equal(t, "orders", list.Executions[0].Scenario)
	require.Equal(t, "complete", list.Executions[0].Status)

	stats := map[string]interface{}{}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/executions/"+id+"/stats", "", &stats))
	require.Equal(t, "ok", stats["status"])

	out := map[string]string{}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/executions/"+id+"/stop", "", &out))
	require.Equal(t, "error", out["status"])
	require.Equal(t, "execution already ended", out["message"])
	require.Equal(t, id, out["executionId"])
}

func TestLaunchRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, req *engine.Request) *engine.Response {
		t.Error("nothing should be launched")
		return &engine.Response{}
	})
	out := map[string]string{}
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/launch", `{"scenario": "missing"}`, &out))
	require.Equal(t, "error", out["status"])
	require.Contains(t, out["message"], "missing")
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/launch", `{"scenario": `, nil))
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/launch", `{"variables": {}}`, nil))
	require.Empty(t, ts.launcher.Executions().List())
}

func TestUnknownExecutions(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/executions/nope/status", "/executions/nope/stats"} {
		out := map[string]string{}
		require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, path, "", &out), path)
		require.Equal(t, "error", out["status"], path)
	}
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/executions/nope/stop", "", nil))
}

func TestStopShutsDownARunningExecution(t *testing.T) {
	started := make(chan struct{})
	ts := newTestServer(t, func(ctx context.Context, req *engine.Request) *engine.Response {
		close(started)
		<-ctx.Done()
		return &engine.Response{ReturnCode: engine.ReturnError, Error: ctx.Err().Error()}
	})
	id := ts.launch(t, `{"scenario": "orders"}`)
	<-started
	require.Eventually(t, func() bool { return ts.status(t, id) == "running" }, 5*time.Second, 10*time.Millisecond)
	out := map[string]string{}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/executions/"+id+"/stop", "", &out))
	require.Equal(t, "ok", out["status"])
	require.Eventually(t, func() bool { return ts.status(t, id) == "shutdown by user" }, 5*time.Second, 10*time.Millisecond)
}

func TestStopExecutionsWaitsForRunningExecutions(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, req *engine.Request) *engine.Response {
		<-ctx.Done()
		return &engine.Response{ReturnCode: engine.ReturnError}
	})
	ts.launch(t, `{"scenario": "orders"}`)
	ts.launch(t, `{"scenario": "orders"}`)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopExecutions(ctx, logger.NewLogger("actions test", "error", false), ts.launcher.Executions())
	require.NoError(t, ctx.Err())
	for _, ei := range ts.launcher.Executions().List() {
		require.True(t, ei.Status.IsFinished(), ei.ID)
	}
}

func TestStopServerSignalsOnce(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/stop", "", nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/stop", "", nil))
	require.Equal(t, "stop", <-ts.chanStop)
	require.Len(t, ts.chanStop, 0)
}
