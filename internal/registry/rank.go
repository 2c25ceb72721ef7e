package registry

import (
	"sort"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// RankKey orders projects for rotation: tier, then phase priority, then the
// least recently worked, then id. Lower keys win.
type RankKey struct {
	Tier       int
	Phase      int
	LastWorked string
	ID         string
}

func (k RankKey) Less(o RankKey) bool {
	if k.Tier != o.Tier {
		return k.Tier < o.Tier
	}
	if k.Phase != o.Phase {
		return k.Phase < o.Phase
	}
	// "" (never worked) sorts before every date
	if k.LastWorked != o.LastWorked {
		return k.LastWorked < o.LastWorked
	}
	return k.ID < o.ID
}

// Key computes the rank key; a project without a status record ranks as P2.
func Key(p domain.Project, statuses map[string]domain.PRDStatus) RankKey {
	phase := domain.PhaseP2
	if st, ok := statuses[p.ID]; ok && st.PhasePriority != "" {
		phase = st.PhasePriority
	}
	return RankKey{
		Tier:       p.Tier.Rank(),
		Phase:      phase.Rank(),
		LastWorked: p.LastWorkedDate,
		ID:         p.ID,
	}
}

// Rank returns a copy of projects sorted best-first by Key.
func Rank(projects []domain.Project, statuses map[string]domain.PRDStatus) []domain.Project {
	out := append([]domain.Project(nil), projects...)
	sort.SliceStable(out, func(i, j int) bool {
		return Key(out[i], statuses).Less(Key(out[j], statuses))
	})
	return out
}
