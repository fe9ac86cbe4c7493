package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	h "github.com/relloyd/etl-engine/helper"
)

// BlockWatcher counts the rows processed by one source or destination.
// Blocks call StartWatching and StopWatching around each phase and AddRows as they go.
type BlockWatcher struct {
	mu              sync.Mutex
	blockName       string
	rowCount        int64
	buffered        int64
	startTime       time.Time
	endTime         time.Time
	rowsPerSecDelta int64
	rowsPerSecAvg   int64
	priorRowCount   int64     // allows us to calculate delta rows per sec between dumps.
	priorTime       time.Time // allows us to calculate delta rows per sec between dumps.
	isRunning       h.AtomBool
}

type Stats struct {
	BlockName          string `json:"blockName"`
	StatusText         string `json:"statusText"`
	StatusEmoji        string `json:"statusEmoji"`
	ElapsedTimeSec     int    `json:"elapsedTimeSec"`
	TotalRowsProcessed int    `json:"totalRowsProcessed"`
	RowsPerSecondAvg   int    `json:"rowsPerSecondAvg"`
	RowsPerSecondDelta int    `json:"rowsPerSecondDelta"`
	MaxBufferedRows    int    `json:"maxBufferedRows"`
}

func NewBlockWatcher(blockName string) *BlockWatcher {
	return &BlockWatcher{blockName: blockName}
}

// StartWatching may be called repeatedly, e.g. once per loop iteration; row counts accumulate.
func (n *BlockWatcher) StartWatching() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.startTime.IsZero() {
		n.startTime = time.Now()
	}
	n.priorTime = time.Now()
	n.isRunning.Set(true)
}

func (n *BlockWatcher) StopWatching() {
	n.CalculateStats() // force final stats calculation.
	n.mu.Lock()
	n.endTime = time.Now()
	n.mu.Unlock()
	n.isRunning.Set(false)
}

// AddRows adds delta to the row count.
func (n *BlockWatcher) AddRows(delta int64) {
	atomic.AddInt64(&n.rowCount, delta)
}

func (n *BlockWatcher) RowCount() int64 {
	return atomic.LoadInt64(&n.rowCount)
}

// SetBuffered records the number of rows held in memory if it is a new high.
func (n *BlockWatcher) SetBuffered(rows int) {
	for {
		cur := atomic.LoadInt64(&n.buffered)
		if int64(rows) <= cur || atomic.CompareAndSwapInt64(&n.buffered, cur, int64(rows)) {
			return
		}
	}
}

func (n *BlockWatcher) CalculateStats() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.startTime.IsZero() { // if we never started...
		return
	}
	// Calculate time delta since we last captured stats.
	deltaTime := int64(time.Since(n.priorTime).Seconds())
	if deltaTime < 1 { // if we will cause divide by 0 error...
		deltaTime = 1 // force div by 1.
	}
	rowCount := atomic.LoadInt64(&n.rowCount)
	deltaRowCount := rowCount - n.priorRowCount
	atomic.StoreInt64(&n.rowsPerSecDelta, deltaRowCount/deltaTime)
	n.priorRowCount = rowCount
	n.priorTime = time.Now()
	atomic.StoreInt64(&n.rowsPerSecAvg, rowCount/getNumSecondsSinceTimeOrOne(n.startTime))
}

// RenderStats gets a struct filled with stats at the point of time it is called.
func (n *BlockWatcher) RenderStats() Stats {
	var statusText, statusEmoji string
	if n.isRunning.Get() {
		statusText = "running"
		statusEmoji = "\U0000231B" // hour glass
	} else {
		statusText = "complete"
		statusEmoji = "\U00002705" // green tick
	}
	n.mu.Lock()
	var elapsed time.Duration
	if !n.startTime.IsZero() {
		if n.endTime.IsZero() || n.isRunning.Get() {
			elapsed = time.Since(n.startTime)
		} else {
			elapsed = n.endTime.Sub(n.startTime)
		}
	}
	n.mu.Unlock()
	return Stats{
		BlockName:          n.blockName,
		StatusText:         statusText,
		StatusEmoji:        statusEmoji,
		ElapsedTimeSec:     int(elapsed.Seconds()),
		TotalRowsProcessed: int(atomic.LoadInt64(&n.rowCount)),
		RowsPerSecondAvg:   int(atomic.LoadInt64(&n.rowsPerSecAvg)),
		RowsPerSecondDelta: int(atomic.LoadInt64(&n.rowsPerSecDelta)),
		MaxBufferedRows:    int(atomic.LoadInt64(&n.buffered)),
	}
}

// String will format the stats for general logging.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v %v "+
			"elapsedTimeSec=%v "+
			"totalRowsProcessed=%v "+
			"rowsPerSecondAvg=%v "+
			"rowsPerSecondDelta=%v "+
			"maxBufferedRows=%v",
		s.BlockName, s.StatusText, s.StatusEmoji,
		s.ElapsedTimeSec,
		s.TotalRowsProcessed,
		s.RowsPerSecondAvg,
		s.RowsPerSecondDelta,
		s.MaxBufferedRows,
	)
}

func getNumSecondsSinceTimeOrOne(t time.Time) (seconds int64) {
	seconds = int64(time.Since(t).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return
}
