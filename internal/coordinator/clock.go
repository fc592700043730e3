package coordinator

import (
	"fmt"
	"math"
	"time"

	"github.com/onetalk/support-chat/internal/domain"
)

// UrgentThreshold is the remaining time below which the clock is shown as
// urgent and the seeker may request an extension.
const UrgentThreshold = 5 * 60

// Countdown is the remaining session time in whole seconds. It is derived
// once from server time at entry and then decremented locally.
type Countdown struct {
	remaining int
	expired   bool
}

// NewCountdown computes the remaining seconds of s at serverNow. The result
// may be zero or negative; call Expire to check it before the first tick.
func NewCountdown(s *domain.Session, serverNow time.Time) *Countdown {
	elapsed := int(math.Floor(serverNow.Sub(s.CreatedAt).Seconds()))
	return &Countdown{remaining: s.TotalMinutes()*60 - elapsed}
}

// Tick removes one second. It returns true exactly once, on the tick that
// reaches zero.
func (c *Countdown) Tick() bool {
	if c.expired {
		return false
	}
	c.remaining--
	return c.Expire()
}

// Expire clamps a non-positive remainder to zero and reports whether this
// call observed the expiry for the first time.
func (c *Countdown) Expire() bool {
	if c.expired || c.remaining > 0 {
		return false
	}
	c.remaining = 0
	c.expired = true
	return true
}

// Extend adds minutes to the remaining time. An expired countdown stays
// expired.
func (c *Countdown) Extend(minutes int) {
	if c.expired || minutes <= 0 {
		return
	}
	c.remaining += minutes * 60
}

// Remaining returns the remaining seconds, never negative once expired.
func (c *Countdown) Remaining() int { return c.remaining }

// Expired reports whether the countdown has reached zero.
func (c *Countdown) Expired() bool { return c.expired }

// Urgent reports whether less than five minutes remain.
func (c *Countdown) Urgent() bool {
	return c.remaining > 0 && c.remaining < UrgentThreshold
}

// FormatTime renders seconds as zero padded MM:SS. Minutes are not wrapped
// into hours.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
