// Package rules turns telemetry into a short ranked list of corrections.
package rules

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

// Rule identifiers carried on every command.
const (
	RuleTemplateTilt     model.RuleID = "template_tilt"
	RuleTemplateHorizon  model.RuleID = "template_horizon"
	RuleTemplateSubject  model.RuleID = "template_subject"
	RuleWhiteBalance     model.RuleID = "white_balance"
	RuleContrast         model.RuleID = "contrast"
	RuleTilt             model.RuleID = "horizon_tilt"
	RuleHorizonPlacement model.RuleID = "horizon_placement"
	RuleForeground       model.RuleID = "foreground"
	RuleGoldenHour       model.RuleID = "golden_hour"
	RuleGaze             model.RuleID = "gaze"
	RuleShadowLift       model.RuleID = "shadow_lift"
	RuleAperture         model.RuleID = "aperture"
	RuleShutterFreeze    model.RuleID = "shutter_freeze"
	RulePanning          model.RuleID = "panning"
	RulePeakWait         model.RuleID = "peak_wait"
)

const (
	priorityTemplate   = 0
	priorityCorrection = 1
	priorityRefinement = 2
)

// Engine evaluates telemetry against fixed thresholds. It holds no state
// between calls and is safe for concurrent use.
type Engine struct {
	th Thresholds
}

// NewEngine creates an engine with DefaultThresholds adjusted by opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{th: DefaultThresholds()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the active tuning.
func (e *Engine) Thresholds() Thresholds { return e.th }

// Evaluate returns at most MaxCommands commands ordered by priority.
//
// A template is used only when its mode equals mode. If any template
// deviation exceeds tolerance only the template directives are returned.
func (e *Engine) Evaluate(t telemetry.Telemetry, mode telemetry.Mode, tmpl *model.Template) ([]model.Command, error) {
	if err := t.Validate(mode); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	if tmpl.ActiveFor(mode) {
		if cmds := e.templateDirectives(t, mode, tmpl.Telemetry); len(cmds) > 0 {
			return e.truncate(cmds), nil
		}
	}

	cmds := e.colorRules(t)
	switch d := t.Details.(type) {
	case telemetry.LandscapeDetails:
		cmds = append(cmds, e.landscapeRules(t, d)...)
	case telemetry.PortraitDetails:
		cmds = append(cmds, e.portraitRules(t, d)...)
	case telemetry.ActionDetails:
		cmds = append(cmds, e.actionRules(d)...)
	}

	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Priority < cmds[j].Priority })
	return e.truncate(cmds), nil
}

func (e *Engine) truncate(cmds []model.Command) []model.Command {
	limit := e.th.MaxCommands
	if limit <= 0 || limit > MaxSurfaced {
		limit = MaxSurfaced
	}
	if len(cmds) > limit {
		cmds = cmds[:limit]
	}
	if cmds == nil {
		cmds = []model.Command{}
	}
	return cmds
}

func (e *Engine) templateDirectives(cur telemetry.Telemetry, mode telemetry.Mode, target telemetry.Telemetry) []model.Command {
	var cmds []model.Command

	if d := cur.HorizonTiltDeg - target.HorizonTiltDeg; math.Abs(d) > e.th.TemplateTiltTolerance {
		cmds = append(cmds, model.Command{
			Rule:     RuleTemplateTilt,
			Verb:     "Match",
			Detail:   fmt.Sprintf("rotate the camera %s° %s to match the saved angle", fixed(math.Abs(d), 1), rotation(d)),
			Priority: priorityTemplate,
			Icon:     model.IconTarget,
		})
	}

	if d := cur.HorizonYPct - target.HorizonYPct; mode == telemetry.ModeLandscape && math.Abs(d) > e.th.TemplateHorizonTolerance {
		dir := "up"
		if d > 0 {
			dir = "down"
		}
		cmds = append(cmds, model.Command{
			Rule:     RuleTemplateHorizon,
			Verb:     "Adjust",
			Detail:   fmt.Sprintf("the camera height %s to match the saved horizon (%s%%)", dir, fixed(target.HorizonYPct, 0)),
			Priority: priorityTemplate,
			Icon:     model.IconRuler,
		})
	}

	if d := cur.SubjectBBox.Y - target.SubjectBBox.Y; mode != telemetry.ModeLandscape && math.Abs(d) > e.th.TemplateSubjectTolerance {
		dir := "down"
		if d > 0 {
			dir = "up"
		}
		cmds = append(cmds, model.Command{
			Rule:     RuleTemplateSubject,
			Verb:     "Reposition",
			Detail:   fmt.Sprintf("move the main subject %s to match the saved framing", dir),
			Priority: priorityTemplate,
			Icon:     model.IconPerson,
		})
	}
	return cmds
}

func (e *Engine) colorRules(t telemetry.Telemetry) []model.Command {
	var cmds []model.Command
	if t.TechnicalIssues.Has(telemetry.IssueWhiteBalance) {
		preset := "cloudy"
		if math.Abs(t.ColorAnalysis.WhiteBalanceShiftK) > e.th.WhiteBalancePresetShiftK {
			preset = "shade"
		}
		cast := string(t.ColorAnalysis.ColorCast)
		if cast == "" {
			cast = "colour"
		}
		cmds = append(cmds, model.Command{
			Rule:     RuleWhiteBalance,
			Verb:     "Set",
			Detail:   fmt.Sprintf("white balance to %s to correct the %s cast", preset, cast),
			Priority: priorityCorrection,
			Icon:     model.IconPalette,
		})
	}
	if t.TechnicalIssues.Has(telemetry.IssueLowContrast) {
		cmds = append(cmds, model.Command{
			Rule:     RuleContrast,
			Verb:     "Increase",
			Detail:   "contrast by +0.5 EV for more punch",
			Priority: priorityRefinement,
			Icon:     model.IconSun,
		})
	}
	return cmds
}

func (e *Engine) landscapeRules(t telemetry.Telemetry, d telemetry.LandscapeDetails) []model.Command {
	var cmds []model.Command

	tilt := t.HorizonTiltDeg
	if t.TechnicalIssues.Has(telemetry.IssueHorizonTilt) || math.Abs(tilt) > e.th.TiltTolerance {
		cmds = append(cmds, model.Command{
			Rule:     RuleTilt,
			Verb:     "Rotate",
			Detail:   fmt.Sprintf("the camera %s° %s to level the horizon", fixed(math.Abs(tilt), 1), rotation(tilt)),
			Priority: priorityCorrection,
			Icon:     model.IconRotate,
		})
	}

	y := t.HorizonYPct
	if math.Abs(y-e.th.ThirdsLower) > e.th.ThirdsBand && math.Abs(y-e.th.ThirdsUpper) > e.th.ThirdsBand {
		target := math.Round(e.th.ThirdsUpper)
		if t.ForegroundSaliency > e.th.ForegroundThirdsCutoff {
			target = math.Round(e.th.ThirdsLower)
		}
		dir := "up"
		if y > target {
			dir = "down"
		}
		cmds = append(cmds, model.Command{
			Rule:     RuleHorizonPlacement,
			Verb:     "Move",
			Detail:   fmt.Sprintf("the horizon %s to %s%% for the rule of thirds", dir, fixed(target, 0)),
			Priority: priorityCorrection,
			Icon:     model.IconGrid,
		})
	}

	if t.ForegroundSaliency < e.th.ForegroundEnrichMax {
		cmds = append(cmds, model.Command{
			Rule:     RuleForeground,
			Verb:     "Lower",
			Detail:   "the camera to knee height to add depth with foreground elements",
			Priority: priorityRefinement,
			Icon:     model.IconDown,
		})
	}

	if eta := d.Lighting.OptimalLightETA; d.Lighting.GoldenHour && positive(eta) {
		cmds = append(cmds, model.Command{
			Rule:     RuleGoldenHour,
			Verb:     "Wait",
			Detail:   fmt.Sprintf("%s minutes for golden-hour light", plain(*eta)),
			Priority: priorityRefinement,
			Icon:     model.IconClock,
		})
	}
	return cmds
}

func (e *Engine) portraitRules(t telemetry.Telemetry, d telemetry.PortraitDetails) []model.Command {
	var cmds []model.Command

	if len(d.Faces) > 0 {
		face := d.Faces[0]
		if math.Abs(face.GazeDirDeg) > e.th.GazeMaxDeg {
			side := "left"
			if face.GazeDirDeg > 0 {
				side = "right"
			}
			cmds = append(cmds, model.Command{
				Rule:     RuleGaze,
				Verb:     "Ask",
				Detail:   fmt.Sprintf("the model to turn their gaze %s° to the %s to lead the eye", fixed(math.Abs(face.GazeDirDeg/e.th.GazeCorrectionDivisor), 0), side),
				Priority: priorityCorrection,
				Icon:     model.IconEyes,
			})
		}
		if face.SkinToneExposure < e.th.SkinExposureMin && d.Lighting.ShadowRecoveryNeeded {
			cmds = append(cmds, model.Command{
				Rule:     RuleShadowLift,
				Verb:     "Lift",
				Detail:   "the shadows by +1.5 EV for better skin tones",
				Priority: priorityCorrection,
				Icon:     model.IconBulb,
			})
		}
	}

	if d.Exif.Aperture > e.th.ApertureMax && t.BackgroundClutter > e.th.ClutterMax {
		next := math.Max(e.th.ApertureFloor, d.Exif.Aperture-e.th.ApertureStep)
		cmds = append(cmds, model.Command{
			Rule:     RuleAperture,
			Verb:     "Open",
			Detail:   fmt.Sprintf("the aperture to f/%s for better background separation (bokeh)", fixed(next, 1)),
			Priority: priorityCorrection,
			Icon:     model.IconCamera,
		})
	}
	return cmds
}

func (e *Engine) actionRules(d telemetry.ActionDetails) []model.Command {
	var cmds []model.Command
	shutter := d.Exif.ShutterS

	if d.Motion.SubjectSpeedPxS > e.th.FastSubjectSpeed && shutter > e.th.FreezeShutterS {
		cmds = append(cmds, model.Command{
			Rule:     RuleShutterFreeze,
			Verb:     "Switch",
			Detail:   fmt.Sprintf("to shutter priority at %s for sharp detail", shutterLabel(e.th.FreezeSuggestShutterS)),
			Priority: priorityCorrection,
			Icon:     model.IconBolt,
		})
	}

	if d.Motion.PanningCandidate && shutter > e.th.PanningShutterS {
		cmds = append(cmds, model.Command{
			Rule:     RulePanning,
			Verb:     "Pan",
			Detail:   fmt.Sprintf("with the subject at %s for dynamic motion blur", shutterLabel(e.th.PanningSuggestShutterS)),
			Priority: priorityCorrection,
			Icon:     model.IconPan,
		})
	}

	if eta := d.Motion.PeakActionETA; positive(eta) {
		cmds = append(cmds, model.Command{
			Rule:     RulePeakWait,
			Verb:     "Wait",
			Detail:   fmt.Sprintf("%s seconds for the peak moment", plain(*eta)),
			Priority: priorityCorrection,
			Icon:     model.IconClock,
		})
	}
	return cmds
}

// HasPanning reports whether cmds contains a panning suggestion.
func HasPanning(cmds []model.Command) bool {
	for _, c := range cmds {
		if c.Rule == RulePanning {
			return true
		}
	}
	return false
}

// rotation names the correction direction for a signed tilt.
func rotation(deg float64) string {
	if deg > 0 {
		return "counter-clockwise"
	}
	return "clockwise"
}

func positive(v *float64) bool {
	return v != nil && !math.IsInf(*v, 0) && !math.IsNaN(*v) && *v > 0
}

// fixed formats v with half-away-from-zero rounding.
func fixed(v float64, places int) string {
	p := math.Pow(10, float64(places))
	return strconv.FormatFloat(math.Round(v*p)/p, 'f', places, 64)
}

func plain(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func shutterLabel(s float64) string {
	if s < 1 {
		return "1/" + fixed(1/s, 0) + "s"
	}
	return plain(s) + "s"
}
