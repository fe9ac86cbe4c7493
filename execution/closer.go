package execution

import (
	"sync"
	"sync/atomic"
)

// Closer tracks the channels used to report an execution's status and to stop it.
// The channels are closed once only, and nothing is sent on them afterwards.
type Closer struct {
	flagClosed int32 // 0 = open; 1 = closed
	mu         sync.Mutex
	chanStatus chan ExecutionStatus
	chanStop   chan error
}

func NewCloser(chanStatus chan ExecutionStatus, chanStop chan error) *Closer {
	return &Closer{chanStatus: chanStatus, chanStop: chanStop}
}

// SendStatus sends status unless the channels have been closed.
func (c *Closer) SendStatus(status ExecutionStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.LoadInt32(&c.flagClosed) != 0 {
		return false
	}
	c.chanStatus <- status
	return true
}

// Stop asks the execution to stop with cause.
// It returns false if the execution has finished or a stop is already pending.
func (c *Closer) Stop(cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.LoadInt32(&c.flagClosed) != 0 {
		return false
	}
	select {
	case c.chanStop <- cause:
		return true
	default:
		return false
	}
}

// CloseChannels sends the final status, if there is one, then closes both channels.
func (c *Closer) CloseChannels(statusToSend *ExecutionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.LoadInt32(&c.flagClosed) == 0 { // if the channels are still open...
		if statusToSend != nil {
			c.chanStatus <- *statusToSend
		}
		close(c.chanStatus) // causes the status consumer to exit.
		close(c.chanStop)
		atomic.StoreInt32(&c.flagClosed, 1)
	}
}

func (c *Closer) ChannelsAreOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return atomic.LoadInt32(&c.flagClosed) == 0
}
