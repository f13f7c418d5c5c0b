// Package telemetry defines the composition record produced by the vision
// analyzer and its mode-aware parser.
package telemetry

import "fmt"

// Issue is a technical problem flagged by the analyzer.
type Issue string

const (
	IssueHorizonTilt       Issue = "horizon_tilt"
	IssueBackgroundClutter Issue = "background_clutter"
	IssueWhiteBalance      Issue = "white_balance"
	IssueLowContrast       Issue = "low_contrast"
)

// Issues is the set of flagged issues in analyzer order.
type Issues []Issue

// Has reports whether i is flagged.
func (is Issues) Has(i Issue) bool {
	for _, v := range is {
		if v == i {
			return true
		}
	}
	return false
}

// ColorCast names a dominant colour cast. Empty means none.
type ColorCast string

const (
	CastNone    ColorCast = ""
	CastBlue    ColorCast = "blue"
	CastYellow  ColorCast = "yellow"
	CastMagenta ColorCast = "magenta"
	CastGreen   ColorCast = "green"
)

// BBox is a normalized rectangle with a top-left origin.
type BBox struct {
	X, Y, W, H float64
}

// Center returns the normalized centre point.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

type ColorAnalysis struct {
	WhiteBalanceShiftK float64
	ContrastRatio      float64
	ColorCast          ColorCast
}

// ExifLike holds the recommended exposure. ShutterS is in seconds.
type ExifLike struct {
	Aperture float64
	ShutterS float64
}

// Lighting describes available light. OptimalLightETA is in minutes.
type Lighting struct {
	GoldenHour           bool
	OptimalLightETA      *float64
	ShadowRecoveryNeeded bool
}

type Face struct {
	BBox             BBox
	GazeDirDeg       float64
	HeadTiltDeg      float64
	SkinToneExposure float64
}

// Motion describes the moving subject. PeakActionETA is in seconds.
type Motion struct {
	SubjectSpeedPxS  float64
	PanningCandidate bool
	PeakActionETA    *float64
}

// ModeDetails holds the sub-records that exist only for one mode.
// Implementations are LandscapeDetails, PortraitDetails and ActionDetails.
type ModeDetails interface {
	Mode() Mode
	modeDetails()
}

type LandscapeDetails struct {
	Exif     ExifLike
	Lighting Lighting
}

type PortraitDetails struct {
	Faces    []Face
	Exif     ExifLike
	Lighting Lighting
}

type ActionDetails struct {
	Motion   Motion
	Exif     ExifLike
	Lighting Lighting
}

func (LandscapeDetails) Mode() Mode { return ModeLandscape }
func (PortraitDetails) Mode() Mode  { return ModePortrait }
func (ActionDetails) Mode() Mode    { return ModeAction }

func (LandscapeDetails) modeDetails() {}
func (PortraitDetails) modeDetails()  {}
func (ActionDetails) modeDetails()    {}

// Telemetry is one photograph's composition description.
type Telemetry struct {
	HorizonTiltDeg     float64 // positive means a counter-clockwise correction is needed
	HorizonYPct        float64
	RuleOfThirdsOffset float64
	ForegroundSaliency float64
	BackgroundClutter  float64
	CompositionScore   float64
	SubjectBBox        BBox
	TechnicalIssues    Issues
	ColorAnalysis      ColorAnalysis
	AIRationale        string
	Details            ModeDetails
}

// Mode returns the mode of the attached details, or "" when there are none.
func (t Telemetry) Mode() Mode {
	if t.Details == nil {
		return ""
	}
	return t.Details.Mode()
}

// Validate fails when t does not carry the details for mode.
func (t Telemetry) Validate(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if t.Details == nil || t.Details.Mode() != mode {
		return fmt.Errorf("%w %s: got %q", ErrModeMismatch, mode, t.Mode())
	}
	return nil
}

func (t Telemetry) Landscape() (LandscapeDetails, bool) {
	d, ok := t.Details.(LandscapeDetails)
	return d, ok
}

func (t Telemetry) Portrait() (PortraitDetails, bool) {
	d, ok := t.Details.(PortraitDetails)
	return d, ok
}

func (t Telemetry) Action() (ActionDetails, bool) {
	d, ok := t.Details.(ActionDetails)
	return d, ok
}

// Exif returns the exposure block of any variant.
func (t Telemetry) Exif() ExifLike {
	switch d := t.Details.(type) {
	case LandscapeDetails:
		return d.Exif
	case PortraitDetails:
		return d.Exif
	case ActionDetails:
		return d.Exif
	}
	return ExifLike{}
}

// Lighting returns the lighting block of any variant.
func (t Telemetry) Lighting() Lighting {
	switch d := t.Details.(type) {
	case LandscapeDetails:
		return d.Lighting
	case PortraitDetails:
		return d.Lighting
	case ActionDetails:
		return d.Lighting
	}
	return Lighting{}
}

// PrimaryFace returns the first detected face of a portrait record.
func (t Telemetry) PrimaryFace() (Face, bool) {
	d, ok := t.Details.(PortraitDetails)
	if !ok || len(d.Faces) == 0 {
		return Face{}, false
	}
	return d.Faces[0], true
}
