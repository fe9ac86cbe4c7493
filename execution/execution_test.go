package execution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relloyd/etl-engine/engine"
	"github.com/relloyd/etl-engine/logger"
)

type executorFunc func(ctx context.Context, req *engine.Request) *engine.Response

func (f executorFunc) Execute(ctx context.Context, req *engine.Request) *engine.Response {
	return f(ctx, req)
}

func TestStatusMarshalJSON(t *testing.T) {
	b, err := json.Marshal(ExecutionStatus{Status: StatusCompleteWithError})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"executionStatus":"complete with error"`)
	_, err = json.Marshal(Status(99))
	assert.Error(t, err)
	s := ExecutionStatus{Status: StatusRunning}
	assert.False(t, s.IsFinished())
	s.Status = StatusShutdown
	assert.True(t, s.IsFinished())
}

func TestCloserClosesOnce(t *testing.T) {
	chanStatus := make(chan ExecutionStatus, 1)
	chanStop := make(chan error, 1)
	c := NewCloser(chanStatus, chanStop)
	assert.True(t, c.ChannelsAreOpen())
	assert.True(t, c.Stop(nil))
	assert.False(t, c.Stop(nil), "a stop is already pending")
	<-chanStop
	go c.CloseChannels(&ExecutionStatus{Status: StatusComplete})
	s, ok := <-chanStatus
	require.True(t, ok)
	assert.Equal(t, StatusComplete, s.Status)
	_, ok = <-chanStatus
	assert.False(t, ok)
	_, ok = <-chanStop
	assert.False(t, ok)
	assert.False(t, c.ChannelsAreOpen())
	c.CloseChannels(nil) // must not panic.
	assert.False(t, c.Stop(nil))
	assert.False(t, c.SendStatus(ExecutionStatus{Status: StatusRunning}))
}

func newTestLauncher(f executorFunc) *Launcher {
	return NewLauncher(logger.NewLogger("execution test", "error", false), f, NewSafeMapExecutionInfo(), 0)
}

func TestLaunchBlockingRecordsTheResponse(t *testing.T) {
	l := newTestLauncher(func(ctx context.Context, req *engine.Request) *engine.Response {
		assert.NotNil(t, req.Stats)
		return &engine.Response{ExecutionID: req.ExecutionID, ReturnCode: engine.ReturnOK}
	})
	id := l.Launch(&engine.Request{ScenarioName: "customers"}, true)
	ei, ok := l.Executions().Load(id)
	require.True(t, ok)
	assert.Equal(t, "customers", ei.Scenario)
	assert.Equal(t, StatusComplete, ei.Status.Status)
	require.NotNil(t, ei.Status.Response)
	assert.Equal(t, id, ei.Status.Response.ExecutionID)
	assert.False(t, ei.Status.EndTime.IsZero())
	assert.False(t, ei.Closer.ChannelsAreOpen())
}

func TestLaunchRecordsFailures(t *testing.T) {
	l := newTestLauncher(func(ctx context.Context, req *engine.Request) *engine.Response {
		return &engine.Response{ReturnCode: engine.ReturnError, Error: "boom"}
	})
	id := l.Launch(&engine.Request{ScenarioName: "failing", ExecutionID: "fixed"}, true)
	assert.Equal(t, "fixed", id)
	ei, _ := l.Executions().Load(id)
	assert.Equal(t, StatusCompleteWithError, ei.Status.Status)
	assert.Equal(t, "boom", ei.Status.Error)
}

func TestLaunchRecoversFromPanics(t *testing.T) {
	l := newTestLauncher(func(ctx context.Context, req *engine.Request) *engine.Response {
		panic(errors.New("unexpected"))
	})
	id := l.Launch(&engine.Request{ScenarioName: "panicky"}, true)
	ei, _ := l.Executions().Load(id)
	assert.Equal(t, StatusCompleteWithError, ei.Status.Status)
	assert.Equal(t, "unexpected", ei.Status.Error)
}

func TestStopCancelsARunningExecution(t *testing.T) {
	started := make(chan struct{})
	l := newTestLauncher(func(ctx context.Context, req *engine.Request) *engine.Response {
		close(started)
		<-ctx.Done()
		return &engine.Response{ReturnCode: engine.ReturnError, Error: ctx.Err().Error()}
	})
	id := l.Launch(&engine.Request{ScenarioName: "slow"}, false)
	<-started
	ei, ok := l.Executions().Load(id)
	require.True(t, ok)
	assert.False(t, ei.Status.IsFinished())
	assert.True(t, ei.Closer.Stop(nil))
	assert.Eventually(t, func() bool {
		ei, _ := l.Executions().Load(id)
		return ei.Status.Status == StatusShutdown
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, l.Executions().List(), 1)
}
