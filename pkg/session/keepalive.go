package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/scheduler"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// keepAlive pings the peer on the control side-channel. A ping still
// unanswered at the next tick counts as missed.
type keepAlive struct {
	s      *Session
	config KeepAliveConfig

	sequence atomic.Uint32

	mu          sync.Mutex
	repeating   *scheduler.Repeating
	pendingPing uint32
	hasPending  bool
	missedPongs int
	lastPing    time.Time
	lastRTT     time.Duration
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	MissedPongs int
	CurrentSeq  uint32
	LastRTT     time.Duration
}

func newKeepAlive(s *Session, config KeepAliveConfig) *keepAlive {
	return &keepAlive{s: s, config: config}
}

func (ka *keepAlive) start() error {
	r, err := ka.s.sched.ScheduleRepeating(ka.tick, time.Now().Add(ka.config.Interval), ka.config.Interval)
	if err != nil {
		return err
	}
	ka.mu.Lock()
	ka.repeating = r
	ka.mu.Unlock()
	return nil
}

func (ka *keepAlive) stop() {
	ka.mu.Lock()
	r := ka.repeating
	ka.mu.Unlock()
	if r != nil {
		r.Stop()
	}
}

// tick runs on the scheduler. Returning false ends the repetition.
func (ka *keepAlive) tick() bool {
	if !ka.s.IsOpen() {
		return false
	}

	ka.mu.Lock()
	if ka.hasPending {
		ka.missedPongs++
	}
	missed := ka.missedPongs
	ka.mu.Unlock()

	if missed >= ka.config.MaxMissedPongs {
		ka.s.raise(fmt.Errorf("%w: %d pings unanswered", ErrKeepAliveTimeout, missed))
		return false
	}

	seq := ka.sequence.Add(1)
	ka.mu.Lock()
	ka.pendingPing = seq
	ka.hasPending = true
	ka.lastPing = time.Now()
	ka.mu.Unlock()

	if err := ka.s.sendControl(wire.ControlMessage{Type: wire.ControlPing, Sequence: seq}); err != nil {
		ka.s.logger.Debug("ping not sent", "error", err)
	}
	return true
}

func (ka *keepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.hasPending || seq != ka.pendingPing {
		return
	}
	ka.hasPending = false
	ka.missedPongs = 0
	ka.lastRTT = time.Since(ka.lastPing)
}

func (ka *keepAlive) stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		MissedPongs: ka.missedPongs,
		CurrentSeq:  ka.sequence.Load(),
		LastRTT:     ka.lastRTT,
	}
}

// KeepAliveStats returns keep-alive statistics. ok is false when keep-alive
// is disabled.
func (s *Session) KeepAliveStats() (stats KeepAliveStats, ok bool) {
	if s.keepAlive == nil {
		return KeepAliveStats{}, false
	}
	return s.keepAlive.stats(), true
}
