package telemetry

import (
	"encoding/json"
	"fmt"
)

// wire is the snake_case document exchanged with the analyzer and stored
// with templates.
type wire struct {
	HorizonTiltDeg     float64       `json:"horizon_tilt_deg"`
	HorizonYPct        float64       `json:"horizon_y_pct"`
	SubjectBBox        [4]float64    `json:"saliency_subject_bbox"`
	RuleOfThirdsOffset float64       `json:"rule_of_thirds_offset"`
	ForegroundSaliency float64       `json:"foreground_saliency"`
	BackgroundClutter  float64       `json:"background_clutter"`
	CompositionScore   float64       `json:"composition_score"`
	TechnicalIssues    []Issue       `json:"technical_issues"`
	ColorAnalysis      wireColor     `json:"color_analysis"`
	AIRationale        string        `json:"ai_rationale,omitempty"`
	Faces              *[]wireFace   `json:"faces,omitempty"`
	Motion             *wireMotion   `json:"motion,omitempty"`
	ExifLike           *wireExif     `json:"exif_like,omitempty"`
	Lighting           *wireLighting `json:"lighting,omitempty"`
}

type wireColor struct {
	WhiteBalanceShift float64 `json:"white_balance_shift"`
	ContrastRatio     float64 `json:"contrast_ratio"`
	ColorCast         *string `json:"color_cast"`
}

type wireFace struct {
	BBox             [4]float64 `json:"bbox"`
	GazeDirDeg       float64    `json:"gaze_dir_deg"`
	HeadTiltDeg      float64    `json:"head_tilt_deg"`
	SkinToneExposure float64    `json:"skin_tone_exposure"`
}

type wireMotion struct {
	SubjectSpeedPxS  float64  `json:"subject_speed_px_s"`
	PanningCandidate bool     `json:"panning_candidate"`
	PeakActionETA    *float64 `json:"peak_action_eta"`
}

type wireExif struct {
	Aperture float64 `json:"aperture"`
	ShutterS float64 `json:"shutter_s"`
}

type wireLighting struct {
	GoldenHour           bool     `json:"golden_hour"`
	OptimalLightETA      *float64 `json:"optimal_light_eta"`
	ShadowRecoveryNeeded bool     `json:"shadow_recovery_needed"`
}

func bboxFromWire(b [4]float64) BBox { return BBox{X: b[0], Y: b[1], W: b[2], H: b[3]} }
func (b BBox) wire() [4]float64      { return [4]float64{b.X, b.Y, b.W, b.H} }

// MarshalJSON writes the snake_case wire document.
func (t Telemetry) MarshalJSON() ([]byte, error) {
	issues := []Issue(t.TechnicalIssues)
	if issues == nil {
		issues = []Issue{}
	}
	w := wire{
		HorizonTiltDeg:     t.HorizonTiltDeg,
		HorizonYPct:        t.HorizonYPct,
		SubjectBBox:        t.SubjectBBox.wire(),
		RuleOfThirdsOffset: t.RuleOfThirdsOffset,
		ForegroundSaliency: t.ForegroundSaliency,
		BackgroundClutter:  t.BackgroundClutter,
		CompositionScore:   t.CompositionScore,
		TechnicalIssues:    issues,
		ColorAnalysis: wireColor{
			WhiteBalanceShift: t.ColorAnalysis.WhiteBalanceShiftK,
			ContrastRatio:     t.ColorAnalysis.ContrastRatio,
		},
		AIRationale: t.AIRationale,
	}
	if c := t.ColorAnalysis.ColorCast; c != CastNone {
		s := string(c)
		w.ColorAnalysis.ColorCast = &s
	}
	if t.Details != nil {
		exif, light := t.Exif(), t.Lighting()
		w.ExifLike = &wireExif{Aperture: exif.Aperture, ShutterS: exif.ShutterS}
		w.Lighting = &wireLighting{
			GoldenHour:           light.GoldenHour,
			OptimalLightETA:      light.OptimalLightETA,
			ShadowRecoveryNeeded: light.ShadowRecoveryNeeded,
		}
	}
	switch d := t.Details.(type) {
	case PortraitDetails:
		faces := make([]wireFace, len(d.Faces))
		for i, f := range d.Faces {
			faces[i] = wireFace{
				BBox:             f.BBox.wire(),
				GazeDirDeg:       f.GazeDirDeg,
				HeadTiltDeg:      f.HeadTiltDeg,
				SkinToneExposure: f.SkinToneExposure,
			}
		}
		w.Faces = &faces
	case ActionDetails:
		w.Motion = &wireMotion{
			SubjectSpeedPxS:  d.Motion.SubjectSpeedPxS,
			PanningCandidate: d.Motion.PanningCandidate,
			PeakActionETA:    d.Motion.PeakActionETA,
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a wire document and infers the variant from the
// sub-records present. Use Parse when the mode is known.
func (t *Telemetry) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	mode := ModeLandscape
	switch {
	case w.Motion != nil:
		mode = ModeAction
	case w.Faces != nil:
		mode = ModePortrait
	}
	out, err := w.telemetry(mode)
	if err != nil {
		return err
	}
	*t = out
	return nil
}

// telemetry converts the wire document into the record for mode.
func (w wire) telemetry(mode Mode) (Telemetry, error) {
	if w.ExifLike == nil || w.Lighting == nil {
		return Telemetry{}, fmt.Errorf("%w: exif_like and lighting are required", ErrInvalid)
	}
	t := Telemetry{
		HorizonTiltDeg:     w.HorizonTiltDeg,
		HorizonYPct:        w.HorizonYPct,
		RuleOfThirdsOffset: w.RuleOfThirdsOffset,
		ForegroundSaliency: w.ForegroundSaliency,
		BackgroundClutter:  w.BackgroundClutter,
		CompositionScore:   w.CompositionScore,
		SubjectBBox:        bboxFromWire(w.SubjectBBox),
		TechnicalIssues:    Issues(w.TechnicalIssues),
		ColorAnalysis: ColorAnalysis{
			WhiteBalanceShiftK: w.ColorAnalysis.WhiteBalanceShift,
			ContrastRatio:      w.ColorAnalysis.ContrastRatio,
		},
		AIRationale: w.AIRationale,
	}
	if w.ColorAnalysis.ColorCast != nil {
		t.ColorAnalysis.ColorCast = ColorCast(*w.ColorAnalysis.ColorCast)
	}
	exif := ExifLike{Aperture: w.ExifLike.Aperture, ShutterS: w.ExifLike.ShutterS}
	light := Lighting{
		GoldenHour:           w.Lighting.GoldenHour,
		OptimalLightETA:      w.Lighting.OptimalLightETA,
		ShadowRecoveryNeeded: w.Lighting.ShadowRecoveryNeeded,
	}

	switch mode {
	case ModeLandscape:
		t.Details = LandscapeDetails{Exif: exif, Lighting: light}
	case ModePortrait:
		if w.Faces == nil {
			return Telemetry{}, fmt.Errorf("%w: faces are required for %s", ErrInvalid, mode)
		}
		faces := make([]Face, len(*w.Faces))
		for i, f := range *w.Faces {
			faces[i] = Face{
				BBox:             bboxFromWire(f.BBox),
				GazeDirDeg:       f.GazeDirDeg,
				HeadTiltDeg:      f.HeadTiltDeg,
				SkinToneExposure: f.SkinToneExposure,
			}
		}
		t.Details = PortraitDetails{Faces: faces, Exif: exif, Lighting: light}
	case ModeAction:
		if w.Motion == nil {
			return Telemetry{}, fmt.Errorf("%w: motion is required for %s", ErrInvalid, mode)
		}
		t.Details = ActionDetails{
			Motion: Motion{
				SubjectSpeedPxS:  w.Motion.SubjectSpeedPxS,
				PanningCandidate: w.Motion.PanningCandidate,
				PeakActionETA:    w.Motion.PeakActionETA,
			},
			Exif:     exif,
			Lighting: light,
		}
	default:
		return Telemetry{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return t, nil
}
