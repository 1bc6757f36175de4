package detector

import (
	"math"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
)

// ShouldRun reproduces Detection._should_run exactly: it compares now
// against the rule's next scheduled run (LastRun + Interval) and, once
// any mute window (LastHit + MutePeriod) has also cleared, decides how
// far back the run must look. When the gap since the scheduled run
// exceeds catchupPeriod, Lookbehind is widened by catchupPeriod; when it
// only exceeds the current Lookbehind, Lookbehind is widened by the gap;
// otherwise Lookbehind is left unchanged. Returns
// ErrDetectionMissingLastRun if the rule has never run (LastRun is zero),
// matching the original's ValueError on a missing last_run attribute.
func (r *Rule) ShouldRun(catchupPeriod int, now time.Time) (bool, error) {
	if r.LastRun.IsZero() {
		return false, agenterrors.ErrDetectionMissingLastRun
	}

	nextRun := r.LastRun.Add(time.Duration(r.Interval) * time.Minute)

	muteTime := now
	if r.MutePeriod > 0 && !r.LastHit.IsZero() {
		muteTime = r.LastHit.Add(time.Duration(r.MutePeriod) * time.Minute)
	}

	if now.After(nextRun) && !now.Before(muteTime) {
		minutesSince := now.Sub(nextRun).Minutes()

		switch {
		case minutesSince > float64(catchupPeriod):
			r.Lookbehind = int(math.Ceil(float64(r.Lookbehind) + float64(catchupPeriod)))
		case minutesSince > float64(r.Lookbehind):
			r.Lookbehind = int(math.Ceil(float64(r.Lookbehind) + minutesSince))
		}

		return true, nil
	}

	return false, nil
}
