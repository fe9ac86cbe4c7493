package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/relloyd/etl-engine/engine"
	h "github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/stats"
)

// Executor runs one request. *engine.EtlProcess implements it.
type Executor interface {
	Execute(ctx context.Context, req *engine.Request) *engine.Response
}

// Launcher starts executions and records their progress in a SafeMapExecutionInfo.
type Launcher struct {
	log                       logger.Logger
	proc                      Executor
	all                       *SafeMapExecutionInfo
	statsDumpFrequencySeconds int
}

func NewLauncher(log logger.Logger, proc Executor, all *SafeMapExecutionInfo, statsDumpFrequencySeconds int) *Launcher {
	return &Launcher{log: log, proc: proc, all: all, statsDumpFrequencySeconds: statsDumpFrequencySeconds}
}

func (l *Launcher) Executions() *SafeMapExecutionInfo {
	return l.all
}

// Launch registers req under a new execution id and runs it.
// If blockUntilComplete is false the execution runs in a goroutine and Launch returns straight away.
// The execution can be stopped through the Closer saved with its ExecutionInfo.
func (l *Launcher) Launch(req *engine.Request, blockUntilComplete bool) (id string) {
	id = req.ExecutionID
	if id == "" {
		id = xid.New().String()
	}
	req.ExecutionID = id
	log := l.log.WithField("execution", id)
	s := stats.NewManager(log, stats.SetStatsDumpFrequency(l.statsDumpFrequencySeconds))
	req.Stats = s
	chanStatus := make(chan ExecutionStatus, 1)
	chanStop := make(chan error, 1)
	c := NewCloser(chanStatus, chanStop)
	name := req.ScenarioName
	if req.Scenario != nil {
		name = req.Scenario.Name
	}
	l.all.Store(id, ExecutionInfo{
		ID:       id,
		Scenario: name,
		Closer:   c,
		Stats:    s,
		Status:   ExecutionStatus{Status: StatusStarting, StartTime: time.Now()},
	})
	consumed := make(chan struct{})
	go func() {
		l.all.ConsumeStatusChanges(id, chanStatus)
		close(consumed)
	}()
	log.Info("launching execution of ", name)
	if blockUntilComplete {
		l.run(log, req, c, chanStop)
		<-consumed
	} else {
		go l.run(log, req, c, chanStop)
	}
	return id
}

// run executes req until it completes or a stop request cancels its context.
func (l *Launcher) run(log logger.Logger, req *engine.Request, c *Closer, chanStop chan error) {
	defer getPanicHandlerWithCloserFunc(log, c)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stopped h.AtomBool
	go func() {
		select {
		case cause, ok := <-chanStop:
			if ok { // if a stop was requested rather than the channel being closed...
				if cause != nil {
					log.Error(cause)
				}
				stopped.Set(true)
				log.Info("stopping execution ", req.ExecutionID)
				cancel()
			}
		case <-ctx.Done():
		}
	}()
	c.SendStatus(ExecutionStatus{Status: StatusRunning})
	resp := l.proc.Execute(ctx, req)
	final := ExecutionStatus{Status: StatusComplete, Response: resp}
	switch {
	case stopped.Get():
		final.Status = StatusShutdown
	case !resp.OK():
		final.Status = StatusCompleteWithError
		final.Error = resp.Error
	}
	c.CloseChannels(&final)
	log.Info("execution ", req.ExecutionID, " ", final.Status)
}

// getPanicHandlerWithCloserFunc returns a func to defer that turns a panic into a final
// COMPLETE WITH ERROR status.
func getPanicHandlerWithCloserFunc(log logger.Logger, c *Closer) func() {
	return func() {
		if r := recover(); r != nil { // if there was a panic...
			var msg string
			switch x := r.(type) {
			case *logrus.Entry:
				msg = x.Message
			case error:
				msg = x.Error()
			default:
				msg = fmt.Sprint(x)
			}
			log.Error("execution panicked: ", msg)
			c.CloseChannels(&ExecutionStatus{Status: StatusCompleteWithError, Error: msg})
		}
	}
}
