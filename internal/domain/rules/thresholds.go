package rules

// MaxSurfaced is the hard limit on commands shown to the photographer.
const MaxSurfaced = 3

// Thresholds holds every tolerance and heuristic the engine applies.
// Angles are degrees, positions percentage points, shutter values seconds.
type Thresholds struct {
	TemplateTiltTolerance    float64
	TemplateHorizonTolerance float64
	TemplateSubjectTolerance float64

	TiltTolerance            float64
	WhiteBalancePresetShiftK float64

	ThirdsLower            float64
	ThirdsUpper            float64
	ThirdsBand             float64
	ForegroundThirdsCutoff float64 // uncalibrated heuristic
	ForegroundEnrichMax    float64

	GazeMaxDeg            float64
	GazeCorrectionDivisor float64
	SkinExposureMin       float64
	ApertureMax           float64
	ClutterMax            float64
	ApertureStep          float64
	ApertureFloor         float64

	FastSubjectSpeed       float64
	FreezeShutterS         float64
	FreezeSuggestShutterS  float64
	PanningShutterS        float64
	PanningSuggestShutterS float64

	MaxCommands int
}

// DefaultThresholds returns the production tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TemplateTiltTolerance:    1.5,
		TemplateHorizonTolerance: 5,
		TemplateSubjectTolerance: 0.05,

		TiltTolerance:            1.5,
		WhiteBalancePresetShiftK: 500,

		ThirdsLower:            33.3,
		ThirdsUpper:            66.7,
		ThirdsBand:             8,
		ForegroundThirdsCutoff: 0.6,
		ForegroundEnrichMax:    0.4,

		GazeMaxDeg:            20,
		GazeCorrectionDivisor: 4,
		SkinExposureMin:       0.5,
		ApertureMax:           4,
		ClutterMax:            0.4,
		ApertureStep:          2,
		ApertureFloor:         1.8,

		FastSubjectSpeed:       250,
		FreezeShutterS:         1.0 / 500,
		FreezeSuggestShutterS:  1.0 / 1000,
		PanningShutterS:        1.0 / 250,
		PanningSuggestShutterS: 1.0 / 125,

		MaxCommands: 3,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds replaces the whole threshold set.
func WithThresholds(th Thresholds) Option {
	return func(e *Engine) {
		e.th = th
	}
}

// WithForegroundCutoff sets the saliency above which the horizon is moved
// to the upper third.
func WithForegroundCutoff(v float64) Option {
	return func(e *Engine) {
		if v > 0 && v < 1 {
			e.th.ForegroundThirdsCutoff = v
		}
	}
}

// WithGazeDivisor sets the divisor applied to the gaze angle.
func WithGazeDivisor(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.th.GazeCorrectionDivisor = v
		}
	}
}

// WithShutterThresholds sets the action-mode shutter limits in seconds.
// Non-positive values keep the current setting.
func WithShutterThresholds(freeze, panning, panningSuggest float64) Option {
	return func(e *Engine) {
		if freeze > 0 {
			e.th.FreezeShutterS = freeze
		}
		if panning > 0 {
			e.th.PanningShutterS = panning
		}
		if panningSuggest > 0 {
			e.th.PanningSuggestShutterS = panningSuggest
		}
	}
}

// WithMaxCommands caps the surfaced list. Values outside [1, MaxSurfaced]
// keep the current setting.
func WithMaxCommands(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= MaxSurfaced {
			e.th.MaxCommands = n
		}
	}
}
