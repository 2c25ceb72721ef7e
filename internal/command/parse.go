package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

const dayPattern = `today|tomorrow|\d{4}-\d{2}-\d{2}`

var (
	blockRe    = regexp.MustCompile(`(?i)^block\s+(?:(` + dayPattern + `)\s+)?(\d{1,2}(?::\d{2})?)(?:\s*(?:-|to)\s*(\d{1,2}(?::\d{2})?))?\s+for\s+(.+)$`)
	approveRe  = regexp.MustCompile(`(?i)^approve(?:\s+(` + dayPattern + `))?$`)
	showRe     = regexp.MustCompile(`(?i)^(?:show|what'?s on)(?:\s+(` + dayPattern + `))?$`)
	replanRe   = regexp.MustCompile(`(?i)^replan(?:\s+(` + dayPattern + `))?$`)
	skipRe     = regexp.MustCompile(`(?i)^skip\s+(.+?)(?:\s+(` + dayPattern + `))?$`)
	completeRe = regexp.MustCompile(`(?i)^mark\s+(.+?)\s+(?:complete|done)$`)
)

// ParseText reads the fixed chat grammar, ignoring case. Input is expected
// with any trigger phrase already removed (see DetectTrigger). Project
// references keep the case they were written in.
func ParseText(text string) (Raw, error) {
	text = strings.Join(strings.Fields(text), " ")
	switch strings.ToLower(text) {
	case "yes", "y", "confirm", "ok":
		return Raw{Action: ActionConfirm}, nil
	case "no", "n", "cancel":
		return Raw{Action: ActionCancel}, nil
	case "projects", "list projects":
		return Raw{Action: ActionListProjects}, nil
	case "needs attention", "what needs attention":
		return Raw{Action: ActionNeedsAttention}, nil
	case "template", "show template":
		return Raw{Action: ActionShowTemplate}, nil
	}

	if m := blockRe.FindStringSubmatch(text); m != nil {
		start, end, err := parseHours(m[2], m[3])
		if err != nil {
			return Raw{}, err
		}
		return Raw{Action: ActionOverrideBlock, Payload: map[string]string{
			"date":    orDefault(m[1], "today"),
			"start":   start.String(),
			"end":     end.String(),
			"project": strings.TrimSpace(m[4]),
		}}, nil
	}
	if m := approveRe.FindStringSubmatch(text); m != nil {
		return Raw{Action: ActionApproveDay, Payload: map[string]string{"date": orDefault(m[1], "tomorrow")}}, nil
	}
	if m := showRe.FindStringSubmatch(text); m != nil {
		return Raw{Action: ActionShowDay, Payload: map[string]string{"date": orDefault(m[1], "today")}}, nil
	}
	if m := replanRe.FindStringSubmatch(text); m != nil {
		return Raw{Action: ActionReplanDay, Payload: map[string]string{"date": orDefault(m[1], "tomorrow")}}, nil
	}
	if m := completeRe.FindStringSubmatch(text); m != nil {
		return Raw{Action: ActionMarkComplete, Payload: map[string]string{"project": m[1]}}, nil
	}
	if m := skipRe.FindStringSubmatch(text); m != nil {
		return Raw{Action: ActionSkipProject, Payload: map[string]string{"project": m[1], "date": orDefault(m[2], "today")}}, nil
	}
	return Raw{}, fmt.Errorf("no command matches %q", text)
}

// parseHours reads a spoken hour range. Bare hours 1-7 are afternoon
// ("12-2" is 12:00-14:00) and a missing end means one hour.
func parseHours(from, to string) (domain.Clock, domain.Clock, error) {
	start, err := parseHour(from)
	if err != nil {
		return 0, 0, err
	}
	end := start + 60
	if to != "" {
		end, err = parseHour(to)
		if err != nil {
			return 0, 0, err
		}
		if end <= start && end < domain.NewClock(12, 0) {
			end += domain.NewClock(12, 0)
		}
	}
	if end <= start || end > domain.EndOfDay {
		return 0, 0, fmt.Errorf("invalid time range %s-%s", from, to)
	}
	return start, end, nil
}

func parseHour(s string) (domain.Clock, error) {
	c, err := domain.ParseClock(s)
	if err != nil {
		return 0, err
	}
	if !strings.Contains(s, ":") && c >= domain.NewClock(1, 0) && c < domain.NewClock(8, 0) {
		c += domain.NewClock(12, 0)
	}
	return c, nil
}

// ResolveDate turns "today", "tomorrow" or an explicit date into YYYY-MM-DD.
func ResolveDate(token, today string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "today":
		return today, nil
	case "tomorrow":
		return domain.AddDays(today, 1)
	}
	if _, err := domain.ParseDate(token, nil); err != nil {
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// orDefault returns the day token v lowercased, or def when it is empty.
func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.ToLower(v)
}
