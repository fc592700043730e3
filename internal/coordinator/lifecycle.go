package coordinator

import (
	"context"
	"log"

	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/metrics"
)

// Trigger names what started the end routine.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerRemote Trigger = "remote"
	TriggerClock  Trigger = "clock"
)

// Outcome describes how a coordinator finished.
type Outcome struct {
	Trigger Trigger
	Route   string
}

// end runs the session end routine at most once per coordinator: mark the
// row completed unless it already is, optionally toast, then navigate.
func (c *Coordinator) end(trigger Trigger, toast bool) {
	if c.ending {
		return
	}
	c.ending = true
	c.typing.stop()
	c.stopSettlement()
	c.outcome = Outcome{Trigger: trigger, Route: c.exitRoute()}
	metrics.SessionEndsTotal.WithLabelValues(string(trigger)).Inc()
	log.Printf("[coordinator] session=%s ending trigger=%s", c.sessionID, trigger)

	leave := func() {
		if toast {
			c.toast(Toast{Title: "Chat Ended", Description: "The session has been completed."})
		}
		c.view.Navigate(c.outcome.Route)
		c.finished = true
	}

	if c.session.Status == domain.StatusCompleted {
		leave()
		return
	}
	c.session.Status = domain.StatusCompleted
	id := c.sessionID
	c.spawn(func(ctx context.Context) func() {
		err := c.gw.UpdateSessionStatus(ctx, id, domain.StatusCompleted)
		return func() {
			if err != nil {
				log.Printf("[coordinator] session=%s mark completed: %v", id, err)
			}
			leave()
		}
	})
}

func (c *Coordinator) exitRoute() string {
	if c.session.IsSeeker(c.self.ProfileID) {
		return RateRoute(c.sessionID)
	}
	return RouteDashboard
}

// timeUp handles the clock reaching zero.
func (c *Coordinator) timeUp() {
	if c.ending {
		return
	}
	c.toast(Toast{Title: "Time's up!", Description: "The session has ended automatically."})
	c.end(TriggerClock, false)
}

// remoteEnded handles the counterpart completing the session.
func (c *Coordinator) remoteEnded() {
	if c.ending {
		return
	}
	c.session.Status = domain.StatusCompleted
	c.toast(Toast{Title: "Chat Ended", Description: "The other user has ended the session."})
	c.end(TriggerRemote, false)
}
