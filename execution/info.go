package execution

import (
	"sort"
	"sync"
	"time"

	"github.com/relloyd/etl-engine/stats"
)

type ExecutionInfo struct {
	ID       string             `json:"executionId"`
	Scenario string             `json:"scenario"`
	Status   ExecutionStatus    `json:"executionStatus"`
	Closer   *Closer            `json:"-"`
	Stats    stats.StatsFetcher `json:"-"`
}

// SafeMapExecutionInfo wraps a map of execution id to ExecutionInfo with locking, via Load() and Store() methods.
type SafeMapExecutionInfo struct {
	sync.RWMutex
	Internal map[string]ExecutionInfo
}

func NewSafeMapExecutionInfo() *SafeMapExecutionInfo {
	return &SafeMapExecutionInfo{Internal: make(map[string]ExecutionInfo)}
}

func (t *SafeMapExecutionInfo) Load(key string) (ei ExecutionInfo, ok bool) {
	t.RLock()
	ei, ok = t.Internal[key]
	t.RUnlock()
	return
}

func (t *SafeMapExecutionInfo) Store(key string, value ExecutionInfo) {
	t.Lock()
	t.Internal[key] = value
	t.Unlock()
}

func (t *SafeMapExecutionInfo) Delete(key string) {
	t.Lock()
	delete(t.Internal, key)
	t.Unlock()
}

// List returns a copy of every execution, oldest first.
func (t *SafeMapExecutionInfo) List() []ExecutionInfo {
	t.RLock()
	retval := make([]ExecutionInfo, 0, len(t.Internal))
	for _, v := range t.Internal {
		retval = append(retval, v)
	}
	t.RUnlock()
	sort.Slice(retval, func(i, j int) bool {
		if retval[i].Status.StartTime.Equal(retval[j].Status.StartTime) {
			return retval[i].ID < retval[j].ID
		}
		return retval[i].Status.StartTime.Before(retval[j].Status.StartTime)
	})
	return retval
}

// ConsumeStatusChanges loops until chanStatus is closed
// and updates t.Internal[id] with any statuses received.
func (t *SafeMapExecutionInfo) ConsumeStatusChanges(id string, chanStatus chan ExecutionStatus) {
	for status := range chanStatus {
		ei, _ := t.Load(id)
		switch status.Status {
		case StatusRunning:
			ei.Status.Status = status.Status
			ei.Status.StartTime = time.Now()
		case StatusComplete, StatusShutdown:
			ei.Status.Status = status.Status
			ei.Status.EndTime = time.Now()
			ei.Status.Response = status.Response
		case StatusCompleteWithError:
			ei.Status.Status = status.Status
			ei.Status.EndTime = time.Now()
			ei.Status.Error = status.Error
			ei.Status.Response = status.Response
		}
		t.Store(id, ei)
	}
}
