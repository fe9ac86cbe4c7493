package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/engine"
	"github.com/relloyd/etl-engine/rdbms/shared"
)

func mockConnections(names ...string) config.MapConnections {
	m := config.MapConnections{}
	for _, n := range names {
		m[n] = shared.ConnectionDetails{Type: constants.ConnectionTypeMock, LogicalName: n}
	}
	return m
}

func writeScenario(t *testing.T, dir string, name string, body string) string {
	t.Helper()
	fn := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(fn, []byte(body), 0600))
	return fn
}

func TestRunScenarioFromFile(t *testing.T) {
	dir := t.TempDir()
	fn := writeScenario(t, dir, "orders.yaml", ordersYaml)
	out := &bytes.Buffer{}
	resp, err := RunScenario(context.Background(), &RunConfig{
		LogLevel:     "error",
		Scenario:     fn,
		Connections:  mockConnections("src", "dst"),
		Output:       out,
		OutputFormat: OutputJson,
	})
	require.NoError(t, err)
	require.Empty(t, resp.Error)
	require.True(t, resp.OK())
	require.Equal(t, "orders", resp.Scenario)
	require.Equal(t, "orders.yaml", resp.FileName)
	got := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "OK", got["returnCode"])
	require.Equal(t, resp.ExecutionID, got["executionId"])
}

func TestRunScenarioByNameFromTheScenarioDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "orders.yaml", ordersYaml)
	var got *engine.Request
	out := &bytes.Buffer{}
	resp, err := RunScenario(context.Background(), &RunConfig{
		LogLevel:    "error",
		Scenario:    "orders",
		Variables:   map[string]string{"region": "EU"},
		Connections: mockConnections(),
		Defaults:    config.Defaults{ScenarioDir: dir},
		Output:      out,
		Executor: executorFunc(func(ctx context.Context, req *engine.Request) *engine.Response {
			got = req
			return &engine.Response{Scenario: req.ScenarioName, ReturnCode: engine.ReturnError, Error: "boom"}
		}),
	})
	require.NoError(t, err)
	require.False(t, resp.OK())
	require.NotNil(t, got)
	require.Equal(t, "orders", got.Scenario.Name)
	require.Equal(t, "EU", got.Variables["region"])
	require.Contains(t, out.String(), "Return code: ERROR")
	require.Contains(t, out.String(), "Error:       boom")
}

func TestRunScenarioReportsMissingConnections(t *testing.T) {
	dir := t.TempDir()
	fn := writeScenario(t, dir, "orders.yaml", ordersYaml)
	resp, err := RunScenario(context.Background(), &RunConfig{
		LogLevel:    "error",
		Scenario:    fn,
		Connections: mockConnections("src"),
	})
	require.NoError(t, err)
	require.Equal(t, engine.ReturnNoConfig, resp.ReturnCode)
	require.Equal(t, 2, resp.ReturnCode.ExitCode())
}

func TestRunScenarioErrors(t *testing.T) {
	_, err := RunScenario(context.Background(), nil)
	require.Error(t, err)
	_, err = RunScenario(context.Background(), &RunConfig{LogLevel: "error", Connections: mockConnections()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "scenario file or name")
	_, err = RunScenario(context.Background(), &RunConfig{
		LogLevel:    "error",
		Scenario:    "nope",
		Connections: mockConnections(),
		Defaults:    config.Defaults{ScenarioDir: t.TempDir()},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unable to load scenario nope")
}

func TestWriteResponseFormats(t *testing.T) {
	r := &engine.Response{ExecutionID: "x1", Scenario: "s", ReturnCode: engine.ReturnOK, Variables: map[string]string{"b": "2", "a": "1"}}
	buf := &bytes.Buffer{}
	require.NoError(t, writeResponse(buf, r, OutputYaml))
	require.Contains(t, buf.String(), "executionId: x1")
	buf.Reset()
	require.NoError(t, writeResponse(buf, r, OutputText))
	require.Contains(t, buf.String(), "Variables:\n  a = 1\n  b = 2\n")
	require.Error(t, writeResponse(buf, r, "xml"))
}
