package stats

import (
	"sync"
	"time"

	"github.com/cevaris/ordered_map"

	"github.com/relloyd/etl-engine/logger"
)

type StatsFetcher interface {
	GetStats() []Stats
}

// StatsManager is used by the engine to create watchers and dump their stats.
type StatsManager interface {
	StatsFetcher
	AddBlockWatcher(blockName string) *BlockWatcher
	StartDumping()
	StopDumping()
}

const DefaultStatsDumpFrequencySeconds = 5

// Manager saves stats from each block added via calls to AddBlockWatcher.
// It is safe for concurrent use.
type Manager struct {
	mu              sync.Mutex
	ticker          *time.Ticker
	tickerDone      chan struct{}
	tickerFrequency int
	log             logger.Logger
	watchers        *ordered_map.OrderedMap // block name -> *BlockWatcher
}

// SetStatsDumpFrequency returns a function that can be supplied as an option to constructor NewManager().
// Zero disables periodic dumping.
func SetStatsDumpFrequency(seconds int) func(m *Manager) {
	return func(m *Manager) {
		m.tickerFrequency = seconds
	}
}

// NewManager creates a Manager.
// Optionally supply func SetStatsDumpFrequency() to override the default stats dump frequency.
func NewManager(log logger.Logger, options ...func(m *Manager)) *Manager {
	m := &Manager{log: log, tickerFrequency: DefaultStatsDumpFrequencySeconds, watchers: ordered_map.NewOrderedMap()}
	for _, option := range options {
		option(m)
	}
	return m
}

// AddBlockWatcher returns the watcher for blockName, creating it on first use.
func (m *Manager) AddBlockWatcher(blockName string) *BlockWatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.watchers.Get(blockName); ok {
		return v.(*BlockWatcher)
	}
	bw := NewBlockWatcher(blockName)
	m.watchers.Set(blockName, bw)
	return bw
}

func (m *Manager) StartDumping() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticker != nil { // if we're already dumping stats...
		m.log.Debug("stats dumper ticker already running")
		return
	}
	if m.tickerFrequency <= 0 {
		m.log.Debug("stats dumper disabled")
		return
	}
	m.ticker = time.NewTicker(time.Second * time.Duration(m.tickerFrequency))
	m.tickerDone = make(chan struct{})
	go func(t *time.Ticker, done chan struct{}) {
		m.log.Debug("stats dumper ticker started")
		for {
			select {
			case <-done:
				m.log.Debug("stats dumper ticker stopped")
				return
			case <-t.C:
				m.logStats(true)
			}
		}
	}(m.ticker, m.tickerDone)
}

// StopDumping will stop the ticker and dump the current stats,
// only if the ticker was already running via a call to StartDumping().
func (m *Manager) StopDumping() {
	m.mu.Lock()
	if m.ticker == nil {
		m.mu.Unlock()
		return
	}
	m.ticker.Stop()
	close(m.tickerDone)
	m.ticker = nil
	m.mu.Unlock()
	m.logStats(true)
}

func (m *Manager) watcherList() []*BlockWatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	retval := make([]*BlockWatcher, 0, m.watchers.Len())
	iter := m.watchers.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Value.(*BlockWatcher))
	}
	return retval
}

// logStats outputs stats of each registered block.
func (m *Manager) logStats(recalculate bool) {
	for _, bw := range m.watcherList() {
		if recalculate {
			bw.CalculateStats()
		}
		m.log.Info(bw.RenderStats().String())
	}
}

// GetStats implements interface StatsFetcher{}.
func (m *Manager) GetStats() []Stats {
	list := m.watcherList()
	retval := make([]Stats, 0, len(list))
	for _, bw := range list {
		retval = append(retval, bw.RenderStats())
	}
	return retval
}
