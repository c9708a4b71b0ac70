package conversation

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
)

// UTC offsets in use span -12:00 to +14:00.
const maxOffsetMinutes = 14 * 60

// LearnerLocation resolves the zone a client reports: an IANA name, or minutes east of UTC.
// The name wins when both are set. Neither yields nil, which leaves the controller default.
func LearnerLocation(zone string, offsetMinutes *int) (*time.Location, error) {
	if zone = strings.TrimSpace(zone); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil || zone == "Local" {
			return nil, pkgerrors.Invalid(fmt.Sprintf("unknown time zone %q", zone))
		}
		return loc, nil
	}
	if offsetMinutes == nil {
		return nil, nil
	}
	m := *offsetMinutes
	if m < -maxOffsetMinutes || m > maxOffsetMinutes {
		return nil, pkgerrors.Invalid("utcOffsetMinutes must be between -840 and 840")
	}
	sign, abs := "+", m
	if m < 0 {
		sign, abs = "-", -m
	}
	return time.FixedZone(fmt.Sprintf("UTC%s%02d:%02d", sign, abs/60, abs%60), m*60), nil
}
