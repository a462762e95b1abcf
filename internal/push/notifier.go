package push

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/override"
	"github.com/dukerupert/happenings/internal/schedule"
	"github.com/dukerupert/happenings/internal/store"
)

type sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

const dateLayout = "Mon Jan 2"

// sentRetentionDays is how long dedup records outlive their date.
const sentRetentionDays = 7

// Notifier decides which followers hear about which occurrence.
type Notifier struct {
	sender    sender
	push      *store.PushStore
	events    *store.EventStore
	overrides *store.OverrideStore
	cal       *civil.Calendar
	now       func() time.Time
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewNotifier(s sender, ps *store.PushStore, es *store.EventStore, ovs *store.OverrideStore, cal *civil.Calendar, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:    s,
		push:      ps,
		events:    es,
		overrides: ovs,
		cal:       cal,
		now:       time.Now,
		logger:    logger,
	}
}

// OverrideSaved tells the event's followers about a cancelled or changed
// date. Delivery happens in the background.
func (n *Notifier) OverrideSaved(ev model.Event, o model.OverrideRecord) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.notifyOverride(ev, o)
	}()
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) notifyOverride(ev model.Event, o model.OverrideRecord) int {
	if o.Date.Before(n.cal.Today(n.now())) {
		return 0
	}

	if o.Status == model.OverrideCancelled {
		first, err := n.push.RecordSent(ev.ID, o.Date, model.NotifyCancelled)
		if err != nil {
			n.logger.Error("record cancellation", "event_id", ev.ID, "date", o.Date.String(), "error", err)
			return 0
		}
		if !first {
			return 0
		}
		return n.broadcast(ev.ID, Payload{
			Title:  ev.Title,
			Body:   "Cancelled on " + o.Date.Format(dateLayout),
			URL:    eventURL(ev.ID),
			Tag:    tag(ev.ID, o.Date),
			Urgent: true,
		})
	}

	// Reinstated or edited; a later cancellation should notify again.
	if err := n.push.ForgetSent(ev.ID, o.Date, model.NotifyCancelled); err != nil {
		n.logger.Error("forget cancellation", "event_id", ev.ID, "date", o.Date.String(), "error", err)
	}
	merged, _ := override.Merge(ev.Definition().Record, &o)
	return n.broadcast(ev.ID, Payload{
		Title: ev.Title,
		Body:  "Updated for " + describe(o.Date, merged),
		URL:   eventURL(ev.ID),
		Tag:   tag(ev.ID, o.Date),
	})
}

// Reminders notifies followers of every event occurring tomorrow, once per
// occurrence, and returns how many notifications were delivered.
func (n *Notifier) Reminders() (int, error) {
	today := n.cal.Today(n.now())
	tomorrow := today.AddDays(1)

	ids, err := n.push.FollowedEventIDs()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	byID := make(map[int64]*model.Event, len(ids))
	defs := make([]model.EventDefinition, 0, len(ids))
	for _, id := range ids {
		ev, err := n.events.GetByID(id)
		if err != nil {
			return 0, err
		}
		if ev == nil {
			continue
		}
		byID[id] = ev
		defs = append(defs, ev.Definition())
	}
	if len(defs) == 0 {
		return 0, nil
	}

	ovs, err := n.overrides.ListInRange(tomorrow, tomorrow)
	if err != nil {
		return 0, err
	}
	days, _, err := schedule.Timeline(defs, ovs, schedule.Upcoming(tomorrow, 0), 1, len(defs))
	if err != nil {
		return 0, fmt.Errorf("expand reminders: %w", err)
	}

	sent := 0
	for _, day := range days {
		for _, occ := range day.Occurrences {
			if occ.Cancelled {
				continue
			}
			first, err := n.push.RecordSent(occ.EventID, occ.Date, model.NotifyReminder)
			if err != nil {
				return sent, err
			}
			if !first {
				continue
			}
			sent += n.broadcast(occ.EventID, Payload{
				Title: "Tomorrow: " + byID[occ.EventID].Title,
				Body:  describe(occ.Date, occ.Record),
				URL:   eventURL(occ.EventID),
				Tag:   tag(occ.EventID, occ.Date),
			})
		}
	}

	if _, err := n.push.CleanupSent(today.AddDays(-sentRetentionDays)); err != nil {
		n.logger.Warn("cleanup sent notifications", "error", err)
	}
	return sent, nil
}

// RunReminders is the cron entry point for Reminders.
func (n *Notifier) RunReminders() {
	sent, err := n.Reminders()
	if err != nil {
		n.logger.Error("send reminders", "error", err)
		return
	}
	n.logger.Info("reminders sent", "count", sent)
}

// broadcast sends payload to every follower of eventID, dropping expired
// subscriptions, and returns the number of successful deliveries.
func (n *Notifier) broadcast(eventID int64, payload Payload) int {
	subs, err := n.push.Followers(eventID)
	if err != nil {
		n.logger.Error("list followers", "event_id", eventID, "error", err)
		return 0
	}

	delivered := 0
	for i := range subs {
		err := n.sender.Send(&subs[i], payload)
		switch {
		case errors.Is(err, ErrExpired):
			if err := n.push.DeleteByEndpoint(subs[i].Endpoint); err != nil {
				n.logger.Error("delete expired subscription", "error", err)
			}
		case err != nil:
			n.logger.Warn("send push", "event_id", eventID, "subscription", subs[i].ID, "error", err)
		default:
			delivered++
		}
	}
	return delivered
}

func describe(date civil.Date, rec model.Record) string {
	parts := []string{date.Format(dateLayout)}
	if start, _ := rec[model.FieldStartTime].(string); start != "" {
		parts[0] += " at " + start
	}
	if venue, _ := rec[model.FieldVenueName].(string); venue != "" {
		parts = append(parts, venue)
	}
	return strings.Join(parts, ", ")
}

func eventURL(id int64) string {
	return fmt.Sprintf("/events/%d", id)
}

func tag(id int64, date civil.Date) string {
	return fmt.Sprintf("event-%d-%s", id, date)
}
