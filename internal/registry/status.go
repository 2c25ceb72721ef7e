package registry

import (
	"fmt"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// ApplyStatus validates an incoming status snapshot against the stored one.
// Progress may not decrease while the current item is unchanged; a new
// current item always starts from the progress it reports (0 when omitted).
func ApplyStatus(prev *domain.PRDStatus, next domain.PRDStatus) (domain.PRDStatus, error) {
	if next.CurrentItemProgress < 0 || next.CurrentItemProgress > 100 {
		return next, fmt.Errorf("current_item_progress must be within 0..100, got %d", next.CurrentItemProgress)
	}
	if next.PhasePriority == "" {
		next.PhasePriority = domain.PhaseP2
	}
	switch next.PhasePriority {
	case domain.PhaseP0, domain.PhaseP1, domain.PhaseP2:
	default:
		return next, fmt.Errorf("invalid phase_priority %q", next.PhasePriority)
	}
	if prev == nil {
		return next, nil
	}
	if prev.CurrentItemID == next.CurrentItemID && next.CurrentItemProgress < prev.CurrentItemProgress {
		return next, domain.ProgressRegressionError{
			ProjectID: next.ProjectID,
			ItemID:    next.CurrentItemID,
			From:      prev.CurrentItemProgress,
			To:        next.CurrentItemProgress,
		}
	}
	return next, nil
}

// MarkComplete finishes the current item: the next item becomes current at
// progress 0, or progress is pinned at 100 when nothing is queued.
func MarkComplete(st domain.PRDStatus) domain.PRDStatus {
	if st.NextItemID == "" {
		st.CurrentItemProgress = 100
		return st
	}
	st.CurrentItemID = st.NextItemID
	st.CurrentItemProgress = 0
	st.NextItemID = ""
	return st
}
