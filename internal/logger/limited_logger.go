package logger

import (
	"sync"
	"time"
)

// rateLimitedLogInterval bounds how often a rateLimitedLogger forwards to
// its underlying Writer; a capture or replay pipeline that starts erroring
// on every packet would otherwise flood the log at wire rate.
const rateLimitedLogInterval = 1 * time.Second

type rateLimitedLogger struct {
	next Writer

	mu   sync.Mutex
	last time.Time
}

// NewLimitedLogger wraps a Writer so that calls to Log are dropped unless
// at least rateLimitedLogInterval has elapsed since the last one that was
// actually forwarded. Used around the per-packet error paths in
// internal/asyncwriter, where a stuck disk or closed socket would
// otherwise log once per dropped write.
func NewLimitedLogger(w Writer) Writer {
	return &rateLimitedLogger{next: w}
}

func (l *rateLimitedLogger) Log(level Level, format string, args ...interface{}) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.last) < rateLimitedLogInterval {
		return
	}
	l.last = now
	l.next.Log(level, format, args...)
}
