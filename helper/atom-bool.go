package helper

import "sync/atomic"

// AtomBool is a bool that is safe to read and write from multiple goroutines.
type AtomBool struct {
	flag int32
}

func (b *AtomBool) Set(value bool) {
	var i int32 = 0
	if value {
		i = 1
	}
	atomic.StoreInt32(&(b.flag), i)
}

func (b *AtomBool) Get() bool {
	return atomic.LoadInt32(&(b.flag)) != 0
}

// SetIfFalse sets the flag and returns true only for the first caller.
func (b *AtomBool) SetIfFalse() bool {
	return atomic.CompareAndSwapInt32(&(b.flag), 0, 1)
}
