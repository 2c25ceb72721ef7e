package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dallionking/donna-assistant/internal/command"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
)

// dateArg resolves an optional date argument (today, tomorrow or
// YYYY-MM-DD). fallback applies when no argument is given.
func dateArg(e engine.Engine, args []string, fallback string) (string, error) {
	if len(args) == 0 {
		return fallback, nil
	}
	return command.ResolveDate(args[0], e.Today())
}

// dayTransitionCmd builds the plan/propose/approve/activate subcommands,
// which all take an optional date and print the resulting day.
func dayTransitionCmd(use, short string, tomorrowDefault bool, fn func(engine.Engine, context.Context, string, string) (domain.ScheduleDay, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [date]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fallback := e.Today()
				if tomorrowDefault {
					fallback = e.Tomorrow()
				}
				date, err := dateArg(e, args, fallback)
				if err != nil {
					return err
				}
				day, err := fn(e, ctx, date, actorID())
				if err != nil {
					return err
				}
				return printDay(day, projectNames(ctx, e))
			})
		},
	}
}

func dayCmd() *cobra.Command {
	day := &cobra.Command{Use: "day", Short: "Plan and move schedule days through their lifecycle"}
	day.AddCommand(dayTransitionCmd("plan", "Build (or rebuild) a draft day", true, engine.Engine.PlanDay))
	day.AddCommand(dayTransitionCmd("propose", "Plan and propose a day for approval", true, engine.Engine.ProposeDay))
	day.AddCommand(dayTransitionCmd("approve", "Approve a proposed day", true, engine.Engine.ApproveDay))
	day.AddCommand(dayTransitionCmd("activate", "Activate an approved day", false, engine.Engine.ActivateDay))
	day.AddCommand(dayShowCmd())
	day.AddCommand(dayListCmd())
	day.AddCommand(dayOverrideCmd())
	day.AddCommand(daySkipCmd())
	return day
}

func dayShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [date]",
		Short: "Show a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				date, err := dateArg(e, args, e.Today())
				if err != nil {
					return err
				}
				day, err := e.GetDay(ctx, date)
				if err != nil {
					return err
				}
				return printDay(day, projectNames(ctx, e))
			})
		},
	}
}

func dayListCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var err error
				if from != "" {
					if from, err = command.ResolveDate(from, e.Today()); err != nil {
						return err
					}
				}
				if to != "" {
					if to, err = command.ResolveDate(to, e.Today()); err != nil {
						return err
					}
				}
				days, err := e.ListDays(ctx, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Status", "Version", "Blocks", "Diagnostics"})
				for _, d := range days {
					tw.AppendRow(table.Row{d.Date, d.Status, d.Version, len(d.Blocks), len(d.Diagnostics)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "last date (inclusive)")
	return cmd
}

func dayOverrideCmd() *cobra.Command {
	var project, label string
	cmd := &cobra.Command{
		Use:   "override <date> <start> <end>",
		Short: "Put a project (or personal time) into a time range",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" && label == "" {
				return errors.New("one of --project or --label is required")
			}
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
				day, err := e.OverrideBlock(ctx, engine.OverrideInput{
					Date:    date,
					Start:   start,
					End:     end,
					Project: project,
					Label:   label,
				}, actorID())
				if err != nil {
					return err
				}
				return printDay(day, projectNames(ctx, e))
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id or name")
	cmd.Flags().StringVar(&label, "label", "", "personal block label")
	return cmd
}

func daySkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip <date> <project>",
		Short: "Release a project's blocks for a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				date, err := command.ResolveDate(args[0], e.Today())
				if err != nil {
					return err
				}
				day, err := e.SkipProject(ctx, date, args[1], actorID())
				if err != nil {
					return err
				}
				return printDay(day, projectNames(ctx, e))
			})
		},
	}
}

func applyCommand(ctx context.Context, raw command.Raw) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		out, err := e.ApplyCommand(ctx, raw, actorID())
		if err != nil {
			var unrecognized domain.UnrecognizedCommandError
			if errors.As(err, &unrecognized) && !viper.GetBool("json") {
				fmt.Printf("I didn't catch that: %s\n", unrecognized.Error())
				fmt.Printf("Known actions: %s\n", strings.Join(command.Actions(), ", "))
				return nil
			}
			return err
		}
		if viper.GetBool("json") {
			return printJSON(out)
		}
		switch out.Status {
		case command.StatusAwaitingConfirmation:
			fmt.Printf("staged %s (%s); run 'donna confirm' to apply or 'donna cancel' to drop\n", out.Command.Action, out.PendingID)
			return nil
		case command.StatusCancelled:
			fmt.Println("cancelled")
			return nil
		}
		if day, ok := out.Result.(domain.ScheduleDay); ok {
			return printDay(day, projectNames(ctx, e))
		}
		if out.Result == nil {
			fmt.Println(out.Status)
			return nil
		}
		return printResult(out.Result)
	})
}

func sayCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "say <text...>",
		Short: "Send a free-text command (e.g. \"put acme 12-2 tomorrow\")",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyCommand(cmd.Context(), command.Raw{Text: strings.Join(args, " "), Channel: channel})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "cli", "originating channel")
	return cmd
}

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm",
		Short: "Apply the staged command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyCommand(cmd.Context(), command.Raw{Action: command.ActionConfirm, Channel: "cli"})
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Drop the staged command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyCommand(cmd.Context(), command.Raw{Action: command.ActionCancel, Channel: "cli"})
		},
	}
}

func boundaryCmd() *cobra.Command {
	b := &cobra.Command{Use: "boundary", Short: "Run the timed boundaries and digests by hand"}
	b.AddCommand(&cobra.Command{
		Use:   "rollover",
		Short: "Archive today, plan and propose tomorrow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.EveningRollover(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				return printMarkdown(res.Summary.Markdown())
			})
		},
	})
	b.AddCommand(&cobra.Command{
		Use:   "brief",
		Short: "Activate today and print the morning brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				brief, err := e.MorningBrief(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(brief)
				}
				return printMarkdown(brief.Markdown())
			})
		},
	})
	b.AddCommand(&cobra.Command{
		Use:   "remind",
		Short: "Announce the blocks of the active day that are running now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reminders, err := e.BlockReminders(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reminders)
				}
				if len(reminders) == 0 {
					fmt.Println("Nothing new has started.")
					return nil
				}
				for _, r := range reminders {
					if err := printMarkdown(r.Markdown()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})
	b.AddCommand(&cobra.Command{
		Use:   "week-ahead",
		Short: "Preview the next seven days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.WeekAhead(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				return printMarkdown(w.Markdown())
			})
		},
	})
	b.AddCommand(&cobra.Command{
		Use:   "weekly-review",
		Short: "Sum up project time over the last seven days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.WeeklyReview(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				return printMarkdown(r.Markdown())
			})
		},
	})
	b.AddCommand(&cobra.Command{
		Use:   "resync",
		Short: "Re-resolve planned days against stored bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				days, err := e.Resync(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				for _, d := range days {
					fmt.Printf("%s %s v%d\n", d.Date, d.Status, d.Version)
				}
				return nil
			})
		},
	})
	return b
}
