package session

import (
	"time"

	"github.com/park285/xiangqi-server/internal/xiangqi"
)

func (s *Session) clockEnabled() bool { return s.opts.Clock > 0 }

func (s *Session) resetClocks() {
	s.clocks[xiangqi.Red] = s.opts.Clock
	s.clocks[xiangqi.Black] = s.opts.Clock
}

// remaining is side's time left at now. Only the side to move is running,
// and only while the game is in progress.
func (s *Session) remaining(side xiangqi.Side, now time.Time) time.Duration {
	left := s.clocks[side]
	if s.clockEnabled() && s.status == StatusPlaying && side == s.turn && !s.turnStarted.IsZero() {
		if elapsed := now.Sub(s.turnStarted); elapsed > 0 {
			left -= elapsed
		}
	}
	if left < 0 {
		left = 0
	}
	return left
}

// chargeClock books the running side's elapsed time. Must run before the
// status or turn changes.
func (s *Session) chargeClock(now time.Time) {
	if !s.clockEnabled() || s.status != StatusPlaying {
		return
	}
	s.clocks[s.turn] = s.remaining(s.turn, now)
	s.turnStarted = now
}
