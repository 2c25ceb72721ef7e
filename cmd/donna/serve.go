package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dallionking/donna-assistant/internal/app"
	"github.com/Dallionking/donna-assistant/internal/boundary"
	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/notify"
	"github.com/Dallionking/donna-assistant/internal/server"
)

// schedulerActor is recorded on events written by timed jobs.
const schedulerActor = "donna"

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noJobs, allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, boundary jobs and webhook delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			e, conn, err := app.Open(viper.GetString("workspace"), viper.GetString("db"), log)
			if err != nil {
				return err
			}
			defer conn.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := app.Seed(ctx, e, schedulerActor); err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv(jwtSecretEnv),
				AllowActorHeader: allowActorHeader,
				Logger:           log,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("%s is required for bearer auth", jwtSecretEnv)
			}

			runner, err := newRunner(e, log)
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Engine:         e,
				BasePath:       basePath,
				Auth:           authCfg,
				CalendlySecret: os.Getenv(e.Config.Integrations.Calendly.WebhookSecretEnv),
				OnBooking:      runner.Kick,
			})
			if err != nil {
				return err
			}

			if !noJobs {
				go runner.Run(ctx)
				if len(e.Config.Webhooks) > 0 {
					go notify.NewDispatcher(e.Repo, e.Config.Webhooks, log).Run(ctx)
				}
			}

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Donna API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "serve the API only; no boundary jobs or webhook delivery")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust X-Actor-Id without credentials (local use only)")
	return cmd
}

// newRunner wires the daily and weekly boundaries, block reminders, the
// booking resync and, when enabled, the calendar mirror.
func newRunner(e engine.Engine, log zerolog.Logger) (*boundary.Runner, error) {
	cfg := e.Config
	loc := cfg.Location()
	morning, err := domain.ParseClock(cfg.Boundaries.MorningBrief)
	if err != nil {
		return nil, fmt.Errorf("boundaries.morning_brief: %w", err)
	}
	evening, err := domain.ParseClock(cfg.Boundaries.EveningRollover)
	if err != nil {
		return nil, fmt.Errorf("boundaries.evening_rollover: %w", err)
	}
	aheadDay, aheadAt, err := config.ParseWeekly(cfg.Boundaries.WeekAhead)
	if err != nil {
		return nil, fmt.Errorf("boundaries.week_ahead: %w", err)
	}
	reviewDay, reviewAt, err := config.ParseWeekly(cfg.Boundaries.WeeklyReview)
	if err != nil {
		return nil, fmt.Errorf("boundaries.weekly_review: %w", err)
	}
	resyncEvery := time.Duration(cfg.Boundaries.BookingResyncHours) * time.Hour
	mirror := cfg.Integrations.Google.Mirror && cfg.Integrations.Google.CredentialsFile != ""

	runner := &boundary.Runner{Log: log.With().Str("component", "boundary").Logger()}
	runner.Jobs = []boundary.Job{
		{
			Name: "morning-brief",
			Next: boundary.Daily(morning, loc),
			Run: func(ctx context.Context) error {
				if _, err := e.MorningBrief(ctx, schedulerActor); err != nil {
					return err
				}
				if mirror {
					runner.Kick()
				}
				return nil
			},
		},
		{
			Name: "evening-rollover",
			Next: boundary.Daily(evening, loc),
			Run: func(ctx context.Context) error {
				if _, err := e.EveningRollover(ctx, schedulerActor); err != nil {
					return err
				}
				if mirror {
					runner.Kick()
				}
				return nil
			},
		},
		{
			Name: "booking-resync",
			Next: boundary.Every(resyncEvery, loc),
			Run: func(ctx context.Context) error {
				if _, err := pollBookings(ctx, e, schedulerActor); err != nil {
					log.Warn().Err(err).Msg("booking poll incomplete")
				}
				_, err := e.Resync(ctx, schedulerActor)
				return err
			},
		},
	}
	runner.Jobs = append(runner.Jobs,
		boundary.Job{
			Name: "week-ahead",
			Next: boundary.Weekly(aheadDay, aheadAt, loc),
			Run: func(ctx context.Context) error {
				_, err := e.WeekAhead(ctx, schedulerActor)
				return err
			},
		},
		boundary.Job{
			Name: "weekly-review",
			Next: boundary.Weekly(reviewDay, reviewAt, loc),
			Run: func(ctx context.Context) error {
				_, err := e.WeeklyReview(ctx, schedulerActor)
				return err
			},
		},
	)
	if every := cfg.Boundaries.ReminderMinutes; every > 0 {
		runner.Jobs = append(runner.Jobs, boundary.Job{
			Name: "block-reminders",
			Next: boundary.Every(time.Duration(every)*time.Minute, loc),
			Run: func(ctx context.Context) error {
				_, err := e.BlockReminders(ctx, schedulerActor)
				return err
			},
		})
	}
	if mirror {
		runner.Jobs = append(runner.Jobs, boundary.Job{
			Name:   "calendar-mirror",
			Next:   boundary.Every(resyncEvery, loc),
			OnKick: true,
			Run: func(ctx context.Context) error {
				res, err := mirrorDays(ctx, e, e.Today(), e.Tomorrow())
				if err != nil {
					return err
				}
				for date, r := range res {
					log.Info().Str("date", date).Int("inserted", r.Inserted).Int("updated", r.Updated).Int("deleted", r.Deleted).Msg("calendar mirrored")
				}
				return nil
			},
		})
	}
	return runner, nil
}
