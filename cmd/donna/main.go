package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/Dallionking/donna-assistant/internal/app"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/notify"
)

var rootCmd = &cobra.Command{
	Use:   "donna",
	Short: "Donna daily schedule assistant",
	Long: `Donna plans each day from a routine template and a registry of projects.
Core concepts:
- Template: fixed personal slots (gym, meals, pickup) and work windows.
- Projects: one ALWAYS project holds the primary window every day; CLIENT
  and ROTATING projects share the rest, least recently worked first.
- Schedule days move draft -> proposed -> approved -> active -> archived.
- Bookings from Calendly or Google Calendar displace work blocks; personal
  slots are never moved.
- Commands: mutations wait for "confirm" unless they carry a trigger phrase
  such as "go do".
- Event log: every change, view with 'donna log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DONNA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory holding donna.yml")
	rootCmd.PersistentFlags().String("db", "", "database file (default <workspace>/.donna/donna.db)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "db", "json", "actor-id", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(sayCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(boundaryCmd())
	rootCmd.AddCommand(bookingCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func actorID() string {
	return viper.GetString("actor-id")
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, conn, err := app.Open(viper.GetString("workspace"), viper.GetString("db"), newLogger())
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

// printResult writes v as JSON with --json and as YAML otherwise. The YAML
// keys are the JSON field names.
func printResult(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printMarkdown renders md for a terminal and prints it raw otherwise.
func printMarkdown(md string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fmt.Print(md)
		return nil
	}
	width := 80
	if w, _, err := term.GetSize(fd); err == nil && w > 20 && w < width {
		width = w
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		fmt.Print(md)
		return nil
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Print(out)
	return nil
}

func printDay(day domain.ScheduleDay, names map[string]string) error {
	if viper.GetBool("json") {
		return printJSON(day)
	}
	fmt.Printf("%s  %s  (v%d)\n", day.Date, strings.ToUpper(string(day.Status)), day.Version)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Start", "End", "Occupant", "Source", "Notes"})
	for _, b := range day.Blocks {
		notes := []string{}
		if b.Always {
			notes = append(notes, "always")
		}
		if b.Skipped {
			notes = append(notes, "skipped")
		}
		tw.AppendRow(table.Row{b.Start, b.End, notify.Label(b.Occupant, names), b.Source, strings.Join(notes, ",")})
	}
	tw.Render()
	if len(day.SignalTasks) > 0 {
		fmt.Println("Signal tasks:")
		for i, s := range day.SignalTasks {
			fmt.Printf("  %d. %s\n", i+1, s)
		}
	}
	for _, d := range day.Diagnostics {
		fmt.Printf("! %s %s-%s %s\n", d.Code, d.Start, d.End, d.Message)
	}
	return nil
}

func projectNames(ctx context.Context, e engine.Engine) map[string]string {
	names := map[string]string{}
	projects, err := e.ListProjects(ctx)
	if err != nil {
		return names
	}
	for _, p := range projects {
		names[p.ID] = p.DisplayName
	}
	return names
}
