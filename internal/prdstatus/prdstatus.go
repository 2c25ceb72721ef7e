// Package prdstatus reads a project's status file into a PRDStatus snapshot.
//
// Two layouts are understood, in YAML or JSON:
//
//	current_item_id: auth
//	current_item_progress: 40
//	next_item_id: billing
//	phase_priority: P0
//
// or a list of work items, where the first in-progress item is current and
// the first not-started item is next:
//
//	{"prds": [{"id": "auth", "status": "in_progress", "priority": "P0", "progress": 40}, ...]}
package prdstatus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// DefaultFile is looked up under a project's root path when no explicit
// status file is configured.
const DefaultFile = ".prd-status.json"

var ErrNoStatus = errors.New("status file has no items")

type item struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Status   string `yaml:"status"`
	Priority string `yaml:"priority"`
	Progress *int   `yaml:"progress"`
}

type file struct {
	CurrentItemID       string `yaml:"current_item_id"`
	CurrentItemProgress int    `yaml:"current_item_progress"`
	NextItemID          string `yaml:"next_item_id"`
	PhasePriority       string `yaml:"phase_priority"`
	Items               []item `yaml:"prds"`
}

// Resolve picks the status file path for a project.
func Resolve(rootPath, statusFile string) string {
	if statusFile == "" {
		statusFile = DefaultFile
	}
	if filepath.IsAbs(statusFile) || rootPath == "" {
		return statusFile
	}
	return filepath.Join(rootPath, statusFile)
}

// Read loads and parses a status file.
func Read(path, projectID string) (domain.PRDStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PRDStatus{}, err
	}
	st, err := Parse(data, projectID)
	if err != nil {
		return domain.PRDStatus{}, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}

// Parse decodes YAML or JSON status content.
func Parse(data []byte, projectID string) (domain.PRDStatus, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.PRDStatus{}, fmt.Errorf("decode status: %w", err)
	}
	if f.CurrentItemID != "" || f.NextItemID != "" {
		return domain.PRDStatus{
			ProjectID:           projectID,
			CurrentItemID:       f.CurrentItemID,
			CurrentItemProgress: clamp(f.CurrentItemProgress),
			NextItemID:          f.NextItemID,
			PhasePriority:       phase(f.PhasePriority),
		}, nil
	}
	if len(f.Items) == 0 {
		return domain.PRDStatus{}, ErrNoStatus
	}
	st := domain.PRDStatus{ProjectID: projectID, PhasePriority: phase(f.PhasePriority)}
	var current *item
	for i := range f.Items {
		it := &f.Items[i]
		switch normalize(it.Status) {
		case "in_progress", "partial":
			if current == nil {
				current = it
			}
		case "not_started":
			if st.NextItemID == "" {
				st.NextItemID = it.ID
			}
		}
	}
	if current != nil {
		st.CurrentItemID = current.ID
		st.CurrentItemProgress = progress(*current)
		if current.Priority != "" {
			st.PhasePriority = phase(current.Priority)
		}
	} else if st.NextItemID != "" {
		for _, it := range f.Items {
			if it.ID == st.NextItemID && it.Priority != "" {
				st.PhasePriority = phase(it.Priority)
			}
		}
	}
	return st, nil
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

func progress(it item) int {
	if it.Progress != nil {
		return clamp(*it.Progress)
	}
	if normalize(it.Status) == "partial" {
		return 50
	}
	return 0
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// phase maps P0/P1/P2 and high/medium/low; anything else is P2.
func phase(s string) domain.Phase {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p0", "high", "critical":
		return domain.PhaseP0
	case "p1", "medium":
		return domain.PhaseP1
	}
	return domain.PhaseP2
}
