// Package boundary fires the timed jobs: the daily brief and rollover, the
// weekly digests, block reminders and the periodic booking resync.
package boundary

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// Job is one recurring task. Next returns the first fire time strictly
// after now.
type Job struct {
	Name string
	Next func(now time.Time) time.Time
	Run  func(ctx context.Context) error
	// OnKick runs the job when Kick is called, e.g. after a booking webhook.
	OnKick bool
}

// Daily fires once a day at the wall-clock time in loc.
func Daily(at domain.Clock, loc *time.Location) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		now = now.In(loc)
		next := at.On(now, loc)
		if !next.After(now) {
			next = at.On(now.AddDate(0, 0, 1), loc)
		}
		return next
	}
}

// Weekly fires once a week on wd at the wall-clock time in loc.
func Weekly(wd time.Weekday, at domain.Clock, loc *time.Location) func(time.Time) time.Time {
	daily := Daily(at, loc)
	return func(now time.Time) time.Time {
		next := daily(now)
		for next.Weekday() != wd {
			next = at.On(next.AddDate(0, 0, 1), loc)
		}
		return next
	}
}

// Every fires on multiples of d counted from local midnight.
func Every(d time.Duration, loc *time.Location) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		now = now.In(loc)
		y, m, day := now.Date()
		midnight := time.Date(y, m, day, 0, 0, 0, 0, loc)
		n := now.Sub(midnight)/d + 1
		next := midnight.Add(n * d)
		if tomorrow := midnight.AddDate(0, 0, 1); !next.Before(tomorrow) {
			return tomorrow
		}
		return next
	}
}

type Runner struct {
	Jobs []Job
	Log  zerolog.Logger
	Now  func() time.Time

	once sync.Once
	kick chan struct{}
}

func (r *Runner) init() {
	r.once.Do(func() { r.kick = make(chan struct{}, 1) })
}

// Kick asks the runner to run the OnKick jobs soon. It never blocks.
func (r *Runner) Kick() {
	r.init()
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, firing each job at its next time.
func (r *Runner) Run(ctx context.Context) {
	r.init()
	now := r.Now
	if now == nil {
		now = time.Now
	}
	if len(r.Jobs) == 0 {
		<-ctx.Done()
		return
	}
	next := make([]time.Time, len(r.Jobs))
	for i, j := range r.Jobs {
		next[i] = j.Next(now())
		r.Log.Debug().Str("job", j.Name).Time("next", next[i]).Msg("scheduled")
	}
	for {
		idx := 0
		for i := range next {
			if next[i].Before(next[idx]) {
				idx = i
			}
		}
		wait := time.Until(next[idx])
		if r.Now != nil {
			wait = next[idx].Sub(now())
		}
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.kick:
			timer.Stop()
			for _, j := range r.Jobs {
				if j.OnKick {
					r.run(ctx, j)
				}
			}
		case <-timer.C:
			r.run(ctx, r.Jobs[idx])
			next[idx] = r.Jobs[idx].Next(now())
			r.Log.Debug().Str("job", r.Jobs[idx].Name).Time("next", next[idx]).Msg("scheduled")
		}
	}
}

func (r *Runner) run(ctx context.Context, j Job) {
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		r.Log.Error().Err(err).Str("job", j.Name).Msg("boundary job failed")
		return
	}
	r.Log.Info().Str("job", j.Name).Dur("took", time.Since(start)).Msg("boundary job done")
}
