package repository

import (
	"fmt"
	"time"

	"github.com/okian/framecoach/internal/domain/telemetry"
)

const landscapeDoc = `{
  "horizon_tilt_deg": 3.5,
  "horizon_y_pct": 48,
  "saliency_subject_bbox": [0.4, 0.3, 0.2, 0.3],
  "foreground_saliency": 0.7,
  "composition_score": 64,
  "technical_issues": ["horizon_tilt"],
  "exif_like": {"aperture": 8, "shutter_s": 0.004},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": false}
}`

func mustLandscape() telemetry.Telemetry {
	t, err := telemetry.Parse([]byte(landscapeDoc), telemetry.ModeLandscape)
	if err != nil {
		panic(err)
	}
	return t
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	base := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

// seqIDs returns deterministic template IDs.
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tpl-%02d", n)
	}
}
