package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

const FileName = "donna.yml"

// Config models donna.yml.
type Config struct {
	Timezone     string        `yaml:"timezone"`
	Planning     Planning      `yaml:"planning"`
	Boundaries   Boundaries    `yaml:"boundaries"`
	Template     Template      `yaml:"template"`
	Projects     []ProjectSeed `yaml:"projects"`
	Integrations Integrations  `yaml:"integrations"`
	Webhooks     []Webhook     `yaml:"webhooks"`
}

type Planning struct {
	MinUsableMinutes  int    `yaml:"min_usable_minutes"`
	AlwaysBlockPolicy string `yaml:"always_block_policy"`
	SignalLimit       int    `yaml:"signal_limit"`
	AttentionDays     int    `yaml:"attention_days"`
}

type Boundaries struct {
	MorningBrief       string `yaml:"morning_brief"`
	EveningRollover    string `yaml:"evening_rollover"`
	BookingResyncHours int    `yaml:"booking_resync_hours"`
	// ReminderMinutes is how often the active day is checked for blocks
	// that just started. Zero keeps the default; negative turns reminders off.
	ReminderMinutes int `yaml:"reminder_minutes"`
	// WeekAhead and WeeklyReview are "<weekday> HH:MM".
	WeekAhead    string `yaml:"week_ahead"`
	WeeklyReview string `yaml:"weekly_review"`
}

// ParseWeekly reads a "<weekday> HH:MM" boundary such as "sun 19:00".
func ParseWeekly(s string) (time.Weekday, domain.Clock, error) {
	day, at, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return 0, 0, fmt.Errorf("want \"<weekday> HH:MM\", got %q", s)
	}
	wd, ok := domain.ParseWeekday(day)
	if !ok {
		return 0, 0, fmt.Errorf("unknown weekday %q", day)
	}
	clock, err := domain.ParseClock(strings.TrimSpace(at))
	if err != nil {
		return 0, 0, err
	}
	return wd, clock, nil
}

type Template struct {
	Slots []domain.TemplateSlot `yaml:"slots"`
}

type ProjectSeed struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	RootPath    string `yaml:"root_path"`
	Tier        string `yaml:"tier"`
	StatusFile  string `yaml:"status_file"`
}

type Integrations struct {
	Calendly Calendly `yaml:"calendly"`
	Google   Google   `yaml:"google"`
}

type Calendly struct {
	TokenEnv         string `yaml:"token_env"`
	WebhookSecretEnv string `yaml:"webhook_secret_env"`
	UserURI          string `yaml:"user_uri"`
	BaseURL          string `yaml:"base_url"`
}

type Google struct {
	CalendarID      string `yaml:"calendar_id"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	Mirror          bool   `yaml:"mirror"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) MinUsable() time.Duration {
	return time.Duration(c.Planning.MinUsableMinutes) * time.Minute
}

func (c *Config) RoutineTemplate() domain.RoutineTemplate {
	return domain.RoutineTemplate{Slots: append([]domain.TemplateSlot(nil), c.Template.Slots...)}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if _, err := time.LoadLocation(c.Timezone); c.Timezone == "" || err != nil {
		errs = errs.Append("timezone", fmt.Errorf("unknown time zone %q", c.Timezone))
	}
	if c.Planning.MinUsableMinutes < 0 {
		errs = errs.Append("planning.min_usable_minutes", errors.New("must not be negative"))
	}
	switch c.Planning.AlwaysBlockPolicy {
	case "", "yield", "protect":
	default:
		errs = errs.Append("planning.always_block_policy", fmt.Errorf("must be yield or protect, got %q", c.Planning.AlwaysBlockPolicy))
	}
	if c.Planning.SignalLimit < 0 || c.Planning.SignalLimit > 3 {
		errs = errs.Append("planning.signal_limit", errors.New("must be within 0..3"))
	}
	if _, err := domain.ParseClock(c.Boundaries.MorningBrief); err != nil {
		errs = errs.Append("boundaries.morning_brief", err)
	}
	if _, err := domain.ParseClock(c.Boundaries.EveningRollover); err != nil {
		errs = errs.Append("boundaries.evening_rollover", err)
	}
	if c.Boundaries.BookingResyncHours < 0 {
		errs = errs.Append("boundaries.booking_resync_hours", errors.New("must not be negative"))
	}
	if _, _, err := ParseWeekly(c.Boundaries.WeekAhead); err != nil {
		errs = errs.Append("boundaries.week_ahead", err)
	}
	if _, _, err := ParseWeekly(c.Boundaries.WeeklyReview); err != nil {
		errs = errs.Append("boundaries.weekly_review", err)
	}
	if err := ValidateTemplate(domain.RoutineTemplate{Slots: c.Template.Slots}); err != nil {
		errs = errs.Append("template.slots", err)
	}
	always := 0
	seen := map[string]bool{}
	for i, p := range c.Projects {
		field := fmt.Sprintf("projects[%d]", i)
		if strings.TrimSpace(p.ID) == "" {
			errs = errs.Append(field+".id", errors.New("is required"))
		}
		if seen[p.ID] {
			errs = errs.Append(field+".id", fmt.Errorf("duplicate project %s", p.ID))
		}
		seen[p.ID] = true
		tier := domain.Tier(p.Tier)
		if !tier.Valid() {
			errs = errs.Append(field+".tier", fmt.Errorf("must be always, client or rotating, got %q", p.Tier))
		}
		if tier == domain.TierAlways {
			always++
		}
	}
	if always > 1 {
		errs = errs.Append("projects", errors.New("only one project may hold tier always"))
	}
	for i, w := range c.Webhooks {
		if strings.TrimSpace(w.URL) == "" {
			errs = errs.Append(fmt.Sprintf("webhooks[%d].url", i), errors.New("is required"))
		}
		if w.TimeoutSeconds < 0 {
			errs = errs.Append(fmt.Sprintf("webhooks[%d].timeout_seconds", i), errors.New("must not be negative"))
		}
	}
	return errs.ToError()
}

// ValidateTemplate checks slot spans and that no two slots sharing a
// weekday overlap.
func ValidateTemplate(t domain.RoutineTemplate) error {
	names := map[string]bool{}
	for i, s := range t.Slots {
		if s.Name == "" {
			return fmt.Errorf("slot %d has no name", i)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate slot name %s", s.Name)
		}
		names[s.Name] = true
		if s.End <= s.Start {
			return fmt.Errorf("slot %s ends before it starts", s.Name)
		}
		if s.Kind != domain.SlotFixedPersonal && s.Kind != domain.SlotWorkWindow {
			return fmt.Errorf("slot %s has unknown kind %q", s.Name, s.Kind)
		}
		if s.Always && s.Kind != domain.SlotWorkWindow {
			return fmt.Errorf("slot %s: only work windows can be marked always", s.Name)
		}
		for _, d := range s.Days {
			if _, ok := domain.ParseWeekday(d); !ok {
				return fmt.Errorf("slot %s has unknown day %q", s.Name, d)
			}
		}
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		var active []domain.TemplateSlot
		for _, s := range t.Slots {
			if s.ActiveOn(wd) {
				active = append(active, s)
			}
		}
		for i := range active {
			for j := i + 1; j < len(active); j++ {
				a, b := active[i], active[j]
				if a.Start < b.End && b.Start < a.End {
					return fmt.Errorf("slots %s and %s overlap on %s", a.Name, b.Name, wd)
				}
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(timezone string) string {
	return fmt.Sprintf(defaultTemplate, timezone)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with donna init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to the defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("America/New_York"))).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted
// planning and boundary settings take their default values.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Planning.MinUsableMinutes == 0 {
		c.Planning.MinUsableMinutes = 30
	}
	if c.Planning.AlwaysBlockPolicy == "" {
		c.Planning.AlwaysBlockPolicy = "yield"
	}
	if c.Planning.SignalLimit == 0 {
		c.Planning.SignalLimit = 3
	}
	if c.Planning.AttentionDays == 0 {
		c.Planning.AttentionDays = 3
	}
	if c.Boundaries.MorningBrief == "" {
		c.Boundaries.MorningBrief = "05:00"
	}
	if c.Boundaries.EveningRollover == "" {
		c.Boundaries.EveningRollover = "21:00"
	}
	if c.Boundaries.BookingResyncHours == 0 {
		c.Boundaries.BookingResyncHours = 3
	}
	if c.Boundaries.ReminderMinutes == 0 {
		c.Boundaries.ReminderMinutes = 5
	}
	if c.Boundaries.WeekAhead == "" {
		c.Boundaries.WeekAhead = "mon 05:00"
	}
	if c.Boundaries.WeeklyReview == "" {
		c.Boundaries.WeeklyReview = "sun 19:00"
	}
	if c.Integrations.Calendly.TokenEnv == "" {
		c.Integrations.Calendly.TokenEnv = "CALENDLY_API_KEY"
	}
	if c.Integrations.Calendly.WebhookSecretEnv == "" {
		c.Integrations.Calendly.WebhookSecretEnv = "CALENDLY_WEBHOOK_SECRET"
	}
	if c.Integrations.Google.CalendarID == "" {
		c.Integrations.Google.CalendarID = "primary"
	}
}

const defaultTemplate = `timezone: %s

planning:
  min_usable_minutes: 30
  always_block_policy: yield
  signal_limit: 3
  attention_days: 3

boundaries:
  morning_brief: "05:00"
  evening_rollover: "21:00"
  booking_resync_hours: 3
  reminder_minutes: 5
  week_ahead: "mon 05:00"
  weekly_review: "sun 19:00"

template:
  slots:
    - {name: wake, start: "05:00", end: "06:00", kind: fixed_personal, label: "Wake up, hydrate, review brief"}
    - {name: gym, start: "06:00", end: "07:30", kind: fixed_personal, label: "Gym", days: [mon, wed, fri]}
    - {name: morning-deep-work, start: "08:00", end: "10:00", kind: work_window}
    - {name: client-window, start: "10:00", end: "12:00", kind: work_window}
    - {name: primary, start: "12:00", end: "15:00", kind: work_window, always: true}
    - {name: break, start: "15:00", end: "15:30", kind: fixed_personal, label: "Break / recovery"}
    - {name: rotation, start: "15:30", end: "17:00", kind: work_window}
    - {name: dinner, start: "18:00", end: "19:00", kind: fixed_personal, label: "Dinner"}
    - {name: evening-review, start: "21:00", end: "21:30", kind: fixed_personal, label: "Evening review and approve tomorrow"}

projects: []

integrations:
  calendly:
    token_env: CALENDLY_API_KEY
    webhook_secret_env: CALENDLY_WEBHOOK_SECRET
  google:
    calendar_id: primary
    mirror: false

webhooks: []
`
