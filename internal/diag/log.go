// Package diag is the ambient logging and diagnostic-rate-limiting layer.
//
// The teacher's log.go/textcolor.go hand-rolled a dw_printf + text_color_set
// colorized console logger with one shared global. We keep the same shape —
// one shared logger, small wrapper functions per domain — but back it with
// charmbracelet/log, which the teacher already depends on directly.
package diag

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	base = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})

	Audio   = base.WithPrefix("audio")
	Control = base.WithPrefix("control")
	REPL    = base.WithPrefix("repl")
	Clock   = base.WithPrefix("clock")
)

// SetLevel adjusts verbosity for every domain logger at once.
func SetLevel(level log.Level) {
	base.SetLevel(level)
}

// Limiter is a simple token-bucket rate limiter for diagnostic lines, used
// so a stuck overrun condition logs at most N lines per second instead of
// flooding the diagnostic log output on stderr (spec §4.10, §7).
type Limiter struct {
	mu       sync.Mutex
	perSec   int
	tokens   int
	lastFill time.Time
}

func NewLimiter(perSecond int) *Limiter {
	if perSecond < 1 {
		perSecond = 1
	}
	return &Limiter{perSec: perSecond, tokens: perSecond, lastFill: time.Now()}
}

// Allow reports whether a line may be emitted right now, refilling tokens
// once per elapsed second.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var now = time.Now()
	if elapsed := now.Sub(l.lastFill); elapsed >= time.Second {
		var refills = int(elapsed / time.Second)
		l.tokens = min(l.perSec, l.tokens+refills*l.perSec)
		l.lastFill = now
	}

	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	return true
}
