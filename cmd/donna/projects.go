package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dallionking/donna-assistant/internal/app"
	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/repo"
)

func initCmd() *cobra.Command {
	var timezone string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write donna.yml and seed the template and projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists; keeping it\n", path)
			} else {
				if timezone == "" {
					timezone = time.Local.String()
					if timezone == "Local" {
						timezone = "UTC"
					}
				}
				if _, err := time.LoadLocation(timezone); err != nil {
					return fmt.Errorf("invalid timezone %q: %w", timezone, err)
				}
				if err := os.MkdirAll(workspace, 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(config.GenerateDefault(timezone)), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := app.Seed(ctx, e, actorID())
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone (default: system zone)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing donna.yml")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage the project registry"}
	prj.AddCommand(projectAddCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectTierCmd())
	prj.AddCommand(projectDeactivateCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectSyncCmd())
	prj.AddCommand(projectCompleteCmd())
	prj.AddCommand(projectAttentionCmd())
	return prj
}

func projectAddCmd() *cobra.Command {
	var in engine.ProjectInput
	var tier string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ID = args[0]
			in.Tier = domain.Tier(tier)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterProject(ctx, in, actorID())
				if err != nil {
					return err
				}
				return printResult(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&in.RootPath, "root", "", "project root path (for the status file)")
	cmd.Flags().StringVar(&tier, "tier", string(domain.TierRotating), "always, client or rotating")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				statuses, err := e.Repo.Statuses(ctx, nil)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Tier", "Last worked", "Active", "Current item", "Phase"})
				for _, p := range items {
					st := statuses[p.ID]
					current := st.CurrentItemID
					if current != "" {
						current = fmt.Sprintf("%s (%d%%)", current, st.CurrentItemProgress)
					}
					tw.AppendRow(table.Row{p.ID, p.DisplayName, p.Tier, p.LastWorkedDate, p.Active, current, st.PhasePriority})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show a project and its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]any{"project": p}
				st, err := e.Repo.GetStatus(ctx, nil, p.ID)
				switch {
				case err == nil:
					out["status"] = st
				case !errors.Is(err, repo.ErrNotFound):
					return err
				}
				return printResult(out)
			})
		},
	}
}

func projectTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tier <project> <always|client|rotating>",
		Short: "Change a project's priority tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetTier(ctx, args[0], domain.Tier(args[1]), actorID())
				if err != nil {
					return err
				}
				return printResult(p)
			})
		},
	}
}

func projectDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <project>",
		Short: "Stop scheduling a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.DeactivateProject(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printResult(p)
			})
		},
	}
}

func projectStatusCmd() *cobra.Command {
	var st domain.PRDStatus
	var phase string
	cmd := &cobra.Command{
		Use:   "status <project>",
		Short: "Show or report a project's PRD status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if !cmd.Flags().Changed("item") && !cmd.Flags().Changed("progress") && !cmd.Flags().Changed("next") && !cmd.Flags().Changed("phase") {
					cur, err := e.ProjectStatus(ctx, args[0])
					if err != nil {
						return err
					}
					return printResult(cur)
				}
				st.PhasePriority = domain.Phase(phase)
				out, err := e.UpdateStatus(ctx, args[0], st, actorID())
				if err != nil {
					return err
				}
				return printResult(out)
			})
		},
	}
	cmd.Flags().StringVar(&st.CurrentItemID, "item", "", "current item id")
	cmd.Flags().IntVar(&st.CurrentItemProgress, "progress", 0, "current item progress (0-100)")
	cmd.Flags().StringVar(&st.NextItemID, "next", "", "next item id")
	cmd.Flags().StringVar(&phase, "phase", string(domain.PhaseP2), "P0, P1 or P2")
	return cmd
}

func projectSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status-sync",
		Short: "Read every project's status file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := app.SyncStatuses(ctx, e, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project", "Current", "Progress", "Phase", "Note"})
				for _, r := range res {
					note := r.Skipped
					if r.Error != "" {
						note = r.Error
					}
					if r.Status == nil {
						tw.AppendRow(table.Row{r.ProjectID, "", "", "", note})
						continue
					}
					tw.AppendRow(table.Row{r.ProjectID, r.Status.CurrentItemID, r.Status.CurrentItemProgress, r.Status.PhasePriority, note})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <project>",
		Short: "Mark the current item complete and advance to the next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.MarkComplete(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printResult(st)
			})
		},
	}
}

func projectAttentionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attention",
		Short: "Projects not worked recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.NeedingAttention(ctx)
				if err != nil {
					return err
				}
				return printResult(items)
			})
		},
	}
}

func templateCmd() *cobra.Command {
	tmpl := &cobra.Command{Use: "template", Short: "Manage the routine template"}
	tmpl.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTemplate(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Start", "End", "Kind", "Label", "Always", "Days"})
				for _, s := range t.Slots {
					tw.AppendRow(table.Row{s.Name, s.Start, s.End, s.Kind, s.Label, s.Always, s.Days})
				}
				tw.Render()
				return nil
			})
		},
	})
	tmpl.AddCommand(templateSetSlotCmd())
	tmpl.AddCommand(&cobra.Command{
		Use:   "remove-slot <name>",
		Short: "Remove a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveSlot(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printResult(t)
			})
		},
	})
	return tmpl
}

func templateSetSlotCmd() *cobra.Command {
	var start, end, kind, label string
	var always bool
	var days []string
	cmd := &cobra.Command{
		Use:   "set-slot <name>",
		Short: "Add or replace a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := domain.ParseClock(start)
			if err != nil {
				return err
			}
			en, err := domain.ParseClock(end)
			if err != nil {
				return err
			}
			slot := domain.TemplateSlot{
				Name:   args[0],
				Start:  s,
				End:    en,
				Kind:   domain.SlotKind(kind),
				Label:  label,
				Always: always,
				Days:   days,
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetSlot(ctx, slot, actorID())
				if err != nil {
					return err
				}
				return printResult(t)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start time HH:MM")
	cmd.Flags().StringVar(&end, "end", "", "end time HH:MM")
	cmd.Flags().StringVar(&kind, "kind", string(domain.SlotWorkWindow), "fixed_personal or work_window")
	cmd.Flags().StringVar(&label, "label", "", "label shown for personal slots")
	cmd.Flags().BoolVar(&always, "always", false, "reserve this window for the ALWAYS project")
	cmd.Flags().StringSliceVar(&days, "days", nil, "weekdays the slot applies to (default: every day)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
