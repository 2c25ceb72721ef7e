// Package engine applies every state change in one transaction: it loads
// the registry, template and open days, runs the schedule machine, and
// persists the touched days together with their events.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/events"
	"github.com/Dallionking/donna-assistant/internal/planner"
	"github.com/Dallionking/donna-assistant/internal/registry"
	"github.com/Dallionking/donna-assistant/internal/repo"
	"github.com/Dallionking/donna-assistant/internal/resolver"
	"github.com/Dallionking/donna-assistant/internal/schedule"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time

	// mu serializes writers; schedule state has a single writer.
	mu *sync.Mutex
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
		mu:     &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) location() *time.Location {
	return e.Config.Location()
}

// Today is the current calendar date in the configured time zone.
func (e Engine) Today() string {
	return domain.FormatDate(e.now(), e.location())
}

func (e Engine) Tomorrow() string {
	d, _ := domain.AddDays(e.Today(), 1)
	return d
}

// write runs fn in a transaction under the writer lock and commits when fn
// succeeds. Inside fn every repo call must pass tx: the pool holds a single
// connection.
func (e Engine) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if e.mu != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// read runs fn in a transaction that is always rolled back.
func (e Engine) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

// state is the planning input read at the start of a transaction.
type state struct {
	reg      *registry.Registry
	projects []domain.Project
	statuses map[string]domain.PRDStatus
	template domain.RoutineTemplate
}

func (e Engine) load(ctx context.Context, tx *sql.Tx) (state, error) {
	var st state
	projects, err := e.Repo.ListProjects(ctx, tx)
	if err != nil {
		return st, fmt.Errorf("load projects: %w", err)
	}
	st.reg, err = registry.New(projects...)
	if err != nil {
		return st, fmt.Errorf("load registry: %w", err)
	}
	st.projects = projects
	if st.statuses, err = e.Repo.Statuses(ctx, tx); err != nil {
		return st, fmt.Errorf("load statuses: %w", err)
	}
	st.template, err = e.Repo.GetTemplate(ctx, tx)
	if errors.Is(err, repo.ErrNotFound) {
		st.template, err = e.Config.RoutineTemplate(), nil
	}
	if err != nil {
		return st, fmt.Errorf("load template: %w", err)
	}
	return st, nil
}

func (e Engine) machine(st state) schedule.Machine {
	return schedule.Machine{
		Plan: func(date string) (domain.ScheduleDay, error) {
			return planner.Plan(date, st.projects, st.template, st.statuses, planner.Options{
				SignalLimit: e.Config.Planning.SignalLimit,
			})
		},
		Resolve: func(day domain.ScheduleDay, bookings []domain.BookingEvent) (domain.ScheduleDay, error) {
			return resolver.Resolve(day, bookings, e.resolveOptions(st))
		},
	}
}

func (e Engine) resolveOptions(st state) resolver.Options {
	return resolver.Options{
		MinUsable:    e.Config.MinUsable(),
		AlwaysPolicy: resolver.AlwaysPolicy(e.Config.Planning.AlwaysBlockPolicy),
		Location:     e.location(),
		SignalLimit:  e.Config.Planning.SignalLimit,
		Projects:     st.projects,
		Statuses:     st.statuses,
	}
}

// book loads the open days from today on plus the given dates.
func (e Engine) book(ctx context.Context, tx *sql.Tx, dates ...string) (*schedule.Book, error) {
	days, err := e.Repo.OpenDays(ctx, tx, e.Today(), dates...)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return schedule.NewBook(days...), nil
}

// bookingsFor returns the stored bookings overlapping a calendar date.
func (e Engine) bookingsFor(ctx context.Context, tx *sql.Tx, date string) ([]domain.BookingEvent, error) {
	start, err := domain.ParseDate(date, e.location())
	if err != nil {
		return nil, err
	}
	return e.Repo.BookingsBetween(ctx, tx, start, start.AddDate(0, 0, 1))
}

// persist stores one day and records evtType for it.
func (e Engine) persist(ctx context.Context, tx *sql.Tx, day *domain.ScheduleDay, evtType, actorID string, payload events.EventPayload) error {
	day.UpdatedAt = e.stamp()
	if err := e.Repo.SaveDay(ctx, tx, *day); err != nil {
		return fmt.Errorf("save %s: %w", day.Date, err)
	}
	p := events.EventPayload{"status": day.Status, "version": day.Version}
	for k, v := range payload {
		p[k] = v
	}
	if err := e.appendEvent(ctx, tx, evtType, "schedule_day", day.Date, actorID, p); err != nil {
		return err
	}
	e.Log.Debug().Str("date", day.Date).Str("status", string(day.Status)).Int("version", day.Version).Msg(evtType)
	return nil
}

// save persists every day the book touched.
func (e Engine) save(ctx context.Context, tx *sql.Tx, book *schedule.Book, evtType, actorID string, payload events.EventPayload) error {
	for _, day := range book.Touched() {
		if err := e.persist(ctx, tx, &day, evtType, actorID, payload); err != nil {
			return err
		}
	}
	return nil
}

func validDate(date string) error {
	_, err := domain.ParseDate(date, nil)
	return err
}
