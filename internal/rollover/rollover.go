// Package rollover tells connected pages when the civil date changes in the
// reference zone so they can refetch their windows.
package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/happenings/internal/civil"
	ws "github.com/dukerupert/happenings/internal/websocket"
)

// Broadcaster is the part of the websocket hub the scheduler needs.
type Broadcaster interface {
	Broadcast(msg ws.Message)
}

// Scheduler runs the day rollover and any housekeeping jobs on a cron
// schedule evaluated in the calendar's zone.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	cal    *civil.Calendar
	hub    Broadcaster
	now    func() time.Time
	last   civil.Date
	logger *slog.Logger
}

// New schedules the rollover at spec, a standard five-field cron
// expression such as "0 0 * * *".
func New(cal *civil.Calendar, spec string, hub Broadcaster, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(cal.Location())),
		cal:    cal,
		hub:    hub,
		now:    time.Now,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.fire); err != nil {
		return nil, fmt.Errorf("schedule rollover %q: %w", spec, err)
	}
	return s, nil
}

// Every registers a housekeeping job, e.g. rate limiter cleanup.
func (s *Scheduler) Every(spec, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("running job", "job", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

// Start runs the scheduler until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.last = s.cal.Today(s.now())
	s.mu.Unlock()

	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// fire broadcasts the new date. A schedule that fires twice on the same
// civil date broadcasts once.
func (s *Scheduler) fire() {
	today := s.cal.Today(s.now())

	s.mu.Lock()
	if today == s.last {
		s.mu.Unlock()
		return
	}
	s.last = today
	s.mu.Unlock()

	s.logger.Info("day rollover", "date", today.String(), "zone", s.cal.Location().String())
	s.hub.Broadcast(ws.DayRollover(today))
}
