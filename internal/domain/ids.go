package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// BlockID derives a stable id from a block's date, span, occupant and source,
// so re-planning or re-resolving identical inputs yields identical ids.
func BlockID(date string, b TimeBlock) string {
	key := fmt.Sprintf("%s|%s|%s|%s:%s|%s", date, b.Start, b.End, b.Occupant.Kind, b.Occupant.Ref, b.Source)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
