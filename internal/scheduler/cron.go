package scheduler

import (
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// Cron runs the periodic housekeeping jobs of the serve command: a headless
// poll so stale data refreshes without visitors, and a purge of expired
// cache entries.
type Cron struct {
	scheduler  *gocron.Scheduler
	poll       func()
	purge      func()
	pollEvery  time.Duration
	purgeEvery time.Duration
}

// NewCron creates a Cron. Jobs with a nil func or non-positive interval are not scheduled.
func NewCron(loc *time.Location, pollEvery time.Duration, poll func(), purgeEvery time.Duration, purge func()) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	return &Cron{
		scheduler:  s,
		poll:       poll,
		purge:      purge,
		pollEvery:  pollEvery,
		purgeEvery: purgeEvery,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (c *Cron) Start() error {
	scheduled := 0

	if c.poll != nil && c.pollEvery > 0 {
		if _, err := c.scheduler.Every(c.pollEvery).Tag("poll").Do(func() {
			log.Debug("cron: polling for stale data")
			c.poll()
		}); err != nil {
			return err
		}
		scheduled++
	}

	if c.purge != nil && c.purgeEvery > 0 {
		if _, err := c.scheduler.Every(c.purgeEvery).Tag("purge").Do(c.purge); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled == 0 {
		return errors.New("cron: nothing to schedule")
	}

	c.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (c *Cron) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
}
