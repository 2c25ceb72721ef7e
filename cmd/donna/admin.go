package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dallionking/donna-assistant/internal/db"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/migrate"
	"github.com/Dallionking/donna-assistant/internal/repo"
	"github.com/Dallionking/donna-assistant/internal/server"
)

const jwtSecretEnv = "DONNA_JWT_SECRET"

func keyCmd() *cobra.Command {
	k := &cobra.Command{Use: "key", Short: "API keys for channel adapters"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key for --actor-id; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, actorID(), name)
				if err != nil {
					return err
				}
				return printResult(map[string]any{"key": key, "plaintext": plain})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label, e.g. telegram")
	k.AddCommand(create)
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				return printResult(keys)
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	})
	return k
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for --actor-id with " + jwtSecretEnv,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := server.SignToken(os.Getenv(jwtSecretEnv), actorID(), ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					entity := evt.EntityKind
					if evt.EntityID != "" {
						entity += ":" + evt.EntityID
					}
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, entity, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.TypePrefix, "prefix", "", "event type prefix, e.g. notify.")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func dbCmd() *cobra.Command {
	d := &cobra.Command{Use: "db", Short: "Database maintenance"}
	d.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the database path and migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := db.Config{Workspace: viper.GetString("workspace"), File: viper.GetString("db")}
			conn, err := db.Open(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			migrations, err := migrate.Status(conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"path": db.Path(cfg), "migrations": migrations})
			}
			fmt.Println(db.Path(cfg))
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Version", "Name", "Applied"})
			for _, m := range migrations {
				applied := m.AppliedAt
				if applied == "" {
					applied = "pending"
				}
				tw.AppendRow(table.Row{m.Version, m.Name, applied})
			}
			tw.Render()
			return nil
		},
	})
	return d
}
