package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dallionking/donna-assistant/internal/booking/calendly"
	"github.com/Dallionking/donna-assistant/internal/booking/gcal"
	"github.com/Dallionking/donna-assistant/internal/command"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/repo"
)

const (
	gcalSource   = "gcal"
	pollLookback = 24 * time.Hour
	pollAhead    = 14 * 24 * time.Hour
)

// workspacePath resolves p against the workspace unless it is absolute.
func workspacePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(viper.GetString("workspace"), p)
}

func googleFiles(e engine.Engine) (cred, token string) {
	g := e.Config.Integrations.Google
	cred = workspacePath(g.CredentialsFile)
	token = workspacePath(g.TokenFile)
	if token == "" {
		token = filepath.Join(viper.GetString("workspace"), ".donna", "google_token.json")
	}
	return cred, token
}

func googleCalendar(ctx context.Context, e engine.Engine) (*gcal.Calendar, error) {
	cred, token := googleFiles(e)
	if cred == "" {
		return nil, errors.New("integrations.google.credentials_file is not set")
	}
	srv, err := gcal.NewService(ctx, cred, token)
	if err != nil {
		return nil, err
	}
	return gcal.New(srv, e.Config.Integrations.Google.CalendarID, e.Config.Location()), nil
}

func calendlyClient(e engine.Engine) *calendly.Client {
	c := e.Config.Integrations.Calendly
	token := os.Getenv(c.TokenEnv)
	if token == "" {
		return nil
	}
	return calendly.NewClient(token, c.UserURI, c.BaseURL)
}

// pollBookings pulls bookings from every configured source and ingests
// them. A source that fails is logged and the others still run.
func pollBookings(ctx context.Context, e engine.Engine, actorID string) (map[string]engine.IngestResult, error) {
	now := time.Now()
	from, to := now.Add(-pollLookback), now.Add(pollAhead)
	out := map[string]engine.IngestResult{}
	var errs []error

	if c := calendlyClient(e); c != nil {
		batch, err := c.ScheduledEvents(ctx, from, to)
		if err == nil {
			var res engine.IngestResult
			if res, err = e.IngestBookings(ctx, calendly.Source, batch, actorID); err == nil {
				out[calendly.Source] = res
			}
		}
		if err != nil {
			e.Log.Warn().Err(err).Msg("calendly poll failed")
			errs = append(errs, fmt.Errorf("calendly: %w", err))
		}
	}
	if e.Config.Integrations.Google.CredentialsFile != "" {
		cal, err := googleCalendar(ctx, e)
		if err == nil {
			var batch []domain.BookingEvent
			if batch, err = cal.Bookings(ctx, from, to); err == nil {
				var res engine.IngestResult
				if res, err = e.IngestBookings(ctx, gcalSource, batch, actorID); err == nil {
					out[gcalSource] = res
				}
			}
		}
		if err != nil {
			e.Log.Warn().Err(err).Msg("google calendar poll failed")
			errs = append(errs, fmt.Errorf("google: %w", err))
		}
	}
	return out, errors.Join(errs...)
}

// mirrorDays pushes each stored day's blocks to Google Calendar.
func mirrorDays(ctx context.Context, e engine.Engine, dates ...string) (map[string]gcal.MirrorResult, error) {
	cal, err := googleCalendar(ctx, e)
	if err != nil {
		return nil, err
	}
	names := projectNames(ctx, e)
	out := map[string]gcal.MirrorResult{}
	for _, date := range dates {
		day, err := e.GetDay(ctx, date)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return out, err
		}
		res, err := cal.Mirror(ctx, day, names)
		if err != nil {
			return out, fmt.Errorf("mirror %s: %w", date, err)
		}
		out[date] = res
	}
	return out, nil
}

func bookingCmd() *cobra.Command {
	b := &cobra.Command{Use: "booking", Short: "Ingest and inspect bookings"}
	b.AddCommand(bookingAddCmd())
	b.AddCommand(bookingListCmd())
	b.AddCommand(&cobra.Command{
		Use:   "poll",
		Short: "Pull bookings from Calendly and Google Calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := pollBookings(ctx, e, actorID())
				if perr := printResult(res); perr != nil {
					return perr
				}
				return err
			})
		},
	})
	return b
}

func bookingAddCmd() *cobra.Command {
	var id, title, source string
	var cancelled bool
	cmd := &cobra.Command{
		Use:   "add <date> <start> <end>",
		Short: "Record a booking by hand",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := domain.ParseClock(args[1])
			if err != nil {
				return err
			}
			end, err := domain.ParseClock(args[2])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				date, err := command.ResolveDate(args[0], e.Today())
				if err != nil {
					return err
				}
				loc := e.Config.Location()
				d, err := domain.ParseDate(date, loc)
				if err != nil {
					return err
				}
				if id == "" {
					id = fmt.Sprintf("manual:%s:%s-%s", date, start, end)
				}
				status := domain.BookingConfirmed
				if cancelled {
					status = domain.BookingCancelled
				}
				res, err := e.IngestBookings(ctx, source, []domain.BookingEvent{{
					SourceID: id,
					Source:   source,
					Title:    title,
					Start:    start.On(d, loc),
					End:      end.On(d, loc),
					Status:   status,
				}}, actorID())
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "source id (default derived from the time range)")
	cmd.Flags().StringVar(&title, "title", "", "booking title")
	cmd.Flags().StringVar(&source, "source", "manual", "booking source")
	cmd.Flags().BoolVar(&cancelled, "cancel", false, "record a cancellation")
	return cmd
}

func bookingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [date]",
		Short: "Bookings touching a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				date, err := dateArg(e, args, e.Today())
				if err != nil {
					return err
				}
				items, err := e.Bookings(ctx, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				loc := e.Config.Location()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Start", "End", "Title", "Source", "Status", "ID"})
				for _, b := range items {
					tw.AppendRow(table.Row{
						b.Start.In(loc).Format("01-02 15:04"),
						b.End.In(loc).Format("15:04"),
						b.Title, b.Source, b.Status, b.SourceID,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func calendarCmd() *cobra.Command {
	c := &cobra.Command{Use: "calendar", Short: "Google Calendar link"}
	c.AddCommand(&cobra.Command{
		Use:   "auth [code]",
		Short: "Authorize access; run without a code to get the consent URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cred, token := googleFiles(e)
				if cred == "" {
					return errors.New("integrations.google.credentials_file is not set")
				}
				cfg, err := gcal.OAuthConfig(cred)
				if err != nil {
					return err
				}
				code := ""
				if len(args) == 1 {
					code = args[0]
				} else {
					fmt.Printf("Open this link and paste the authorization code:\n%s\n> ", gcal.AuthURL(cfg))
					line, err := bufio.NewReader(os.Stdin).ReadString('\n')
					if err != nil && line == "" {
						return err
					}
					code = strings.TrimSpace(line)
				}
				if code == "" {
					return errors.New("authorization code is required")
				}
				if err := gcal.Exchange(ctx, cfg, code, token); err != nil {
					return err
				}
				fmt.Printf("token saved to %s\n", token)
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Ingest bookings from Google Calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cal, err := googleCalendar(ctx, e)
				if err != nil {
					return err
				}
				now := time.Now()
				batch, err := cal.Bookings(ctx, now.Add(-pollLookback), now.Add(pollAhead))
				if err != nil {
					return err
				}
				res, err := e.IngestBookings(ctx, gcalSource, batch, actorID())
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "mirror [date]",
		Short: "Push a day's blocks to Google Calendar (default: today and tomorrow)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				dates := []string{e.Today(), e.Tomorrow()}
				if len(args) == 1 {
					date, err := command.ResolveDate(args[0], e.Today())
					if err != nil {
						return err
					}
					dates = []string{date}
				}
				res, err := mirrorDays(ctx, e, dates...)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	})
	return c
}
