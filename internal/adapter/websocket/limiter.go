package websocket

import "sync/atomic"

// ConnectionLimiter caps concurrent WebSocket connections per instance.
type ConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func NewConnectionLimiter(max int64) *ConnectionLimiter {
	return &ConnectionLimiter{max: max}
}

// Acquire takes a slot, returning false at capacity.
func (l *ConnectionLimiter) Acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimiter) Release() {
	l.current.Add(-1)
}

func (l *ConnectionLimiter) Current() int64 {
	return l.current.Load()
}

func (l *ConnectionLimiter) Max() int64 {
	return l.max
}
