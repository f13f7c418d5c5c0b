package telemetry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/framecoach/internal/domain/fault"
	. "github.com/smartystreets/goconvey/convey"
)

const landscapeDoc = `{
  "horizon_tilt_deg": 4.0,
  "horizon_y_pct": 50,
  "saliency_subject_bbox": [0.4, 0.3, 0.2, 0.3],
  "rule_of_thirds_offset": 0.2,
  "foreground_saliency": 0.2,
  "background_clutter": 0.3,
  "composition_score": 62,
  "technical_issues": ["horizon_tilt"],
  "color_analysis": {"white_balance_shift": 0, "contrast_ratio": 0.6, "color_cast": null},
  "exif_like": {"aperture": 8, "shutter_s": 0.004},
  "lighting": {"golden_hour": true, "optimal_light_eta": 25, "shadow_recovery_needed": false}
}`

const portraitDoc = `{
  "horizon_tilt_deg": 0,
  "horizon_y_pct": 40,
  "saliency_subject_bbox": [0.3, 0.2, 0.4, 0.6],
  "composition_score": 70,
  "background_clutter": 0.5,
  "technical_issues": [],
  "faces": [{"bbox": [0.4, 0.2, 0.2, 0.25], "gaze_dir_deg": 30, "head_tilt_deg": 2, "skin_tone_exposure": 0.3}],
  "exif_like": {"aperture": 5.6, "shutter_s": 0.008},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": true}
}`

const actionDoc = `{
  "horizon_tilt_deg": 1,
  "horizon_y_pct": 55,
  "saliency_subject_bbox": [0.1, 0.4, 0.2, 0.3],
  "composition_score": 55,
  "technical_issues": ["white_balance"],
  "color_analysis": {"white_balance_shift": -700, "contrast_ratio": 0.4, "color_cast": "blue"},
  "motion": {"subject_speed_px_s": 400, "panning_candidate": true, "peak_action_eta": 1.5},
  "exif_like": {"aperture": 4, "shutter_s": 0.01},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": false}
}`

func TestParseMode(t *testing.T) {
	Convey("Given mode labels", t, func() {
		cases := map[string]Mode{
			"LANDSCAPE": ModeLandscape,
			"landscape": ModeLandscape,
			"LANDSKAP":  ModeLandscape,
			"Porträtt":  ModePortrait,
			"PORTRATT":  ModePortrait,
			" action ":  ModeAction,
		}
		for in, want := range cases {
			got, err := ParseMode(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}

		_, err := ParseMode("MACRO")
		So(errors.Is(err, ErrUnknownMode), ShouldBeTrue)
	})

	Convey("Modes decode from JSON through aliases", t, func() {
		var m Mode
		So(json.Unmarshal([]byte(`"LANDSKAP"`), &m), ShouldBeNil)
		So(m, ShouldEqual, ModeLandscape)
	})
}

func TestParse(t *testing.T) {
	Convey("Given analyzer output", t, func() {
		Convey("When landscape JSON is wrapped in prose", func() {
			raw := []byte("Here is the analysis:\n```json\n" + landscapeDoc + "\n```\nHope it helps.")
			tel, err := Parse(raw, ModeLandscape)

			Convey("Then the landscape variant is decoded", func() {
				So(err, ShouldBeNil)
				So(tel.HorizonTiltDeg, ShouldEqual, 4.0)
				So(tel.SubjectBBox, ShouldResemble, BBox{X: 0.4, Y: 0.3, W: 0.2, H: 0.3})
				So(tel.TechnicalIssues.Has(IssueHorizonTilt), ShouldBeTrue)
				d, ok := tel.Landscape()
				So(ok, ShouldBeTrue)
				So(d.Lighting.GoldenHour, ShouldBeTrue)
				So(*d.Lighting.OptimalLightETA, ShouldEqual, 25.0)
				So(tel.Validate(ModeLandscape), ShouldBeNil)
			})
		})

		Convey("When the document sits in a telemetry envelope", func() {
			tel, err := Parse([]byte(`{"telemetry": `+portraitDoc+`}`), ModePortrait)
			So(err, ShouldBeNil)
			face, ok := tel.PrimaryFace()
			So(ok, ShouldBeTrue)
			So(face.GazeDirDeg, ShouldEqual, 30.0)
			So(tel.Exif().Aperture, ShouldEqual, 5.6)
			So(tel.Lighting().OptimalLightETA, ShouldBeNil)
		})

		Convey("When action output carries motion", func() {
			tel, err := Parse([]byte(actionDoc), ModeAction)
			So(err, ShouldBeNil)
			d, ok := tel.Action()
			So(ok, ShouldBeTrue)
			So(d.Motion.PanningCandidate, ShouldBeTrue)
			So(tel.ColorAnalysis.ColorCast, ShouldEqual, CastBlue)
			So(tel.ColorAnalysis.WhiteBalanceShiftK, ShouldEqual, -700.0)
		})

		Convey("When there is no JSON object", func() {
			_, err := Parse([]byte("I could not analyze this image."), ModeLandscape)
			So(errors.Is(err, ErrNoPayload), ShouldBeTrue)
			So(errors.Is(err, fault.ErrParse), ShouldBeTrue)
		})

		Convey("When the braces do not hold valid JSON", func() {
			_, err := Parse([]byte("{ horizon: tilted }"), ModeLandscape)
			So(errors.Is(err, ErrInvalid), ShouldBeTrue)
		})

		Convey("When a required field is missing", func() {
			_, err := Parse([]byte(`{"horizon_tilt_deg": 2}`), ModeLandscape)
			So(errors.Is(err, ErrInvalid), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "composition_score")
		})

		Convey("When the mode's sub-record is absent", func() {
			_, err := Parse([]byte(landscapeDoc), ModeAction)
			So(errors.Is(err, fault.ErrParse), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "motion")

			_, err = Parse([]byte(landscapeDoc), ModePortrait)
			So(errors.Is(err, fault.ErrParse), ShouldBeTrue)
		})

		Convey("When white balance is flagged without colour analysis", func() {
			doc := `{"horizon_tilt_deg": 0, "horizon_y_pct": 33, "saliency_subject_bbox": [0,0,1,1],
				"composition_score": 80, "foreground_saliency": 0.5, "technical_issues": ["white_balance"],
				"exif_like": {}, "lighting": {"golden_hour": false}}`
			_, err := Parse([]byte(doc), ModeLandscape)
			So(errors.Is(err, ErrInvalid), ShouldBeTrue)
		})

		Convey("When white balance is flagged with an empty colour analysis", func() {
			doc := `{"horizon_tilt_deg": 0, "horizon_y_pct": 33, "saliency_subject_bbox": [0,0,1,1],
				"composition_score": 80, "foreground_saliency": 0.5, "technical_issues": ["white_balance"],
				"color_analysis": {}, "exif_like": {}, "lighting": {"golden_hour": false}}`
			_, err := Parse([]byte(doc), ModeLandscape)
			So(errors.Is(err, ErrInvalid), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "white_balance_shift")
		})

		Convey("When colour analysis lacks the shift but white balance is not flagged", func() {
			doc := `{"horizon_tilt_deg": 0, "horizon_y_pct": 33, "saliency_subject_bbox": [0,0,1,1],
				"composition_score": 80, "foreground_saliency": 0.5, "technical_issues": ["low_contrast"],
				"color_analysis": {}, "exif_like": {}, "lighting": {"golden_hour": false}}`
			_, err := Parse([]byte(doc), ModeLandscape)
			So(err, ShouldBeNil)
		})

		Convey("When the mode is not known", func() {
			_, err := Parse([]byte(landscapeDoc), Mode("MACRO"))
			So(errors.Is(err, ErrUnknownMode), ShouldBeTrue)
		})
	})
}

func TestWireRoundTrip(t *testing.T) {
	Convey("Given parsed telemetry for each mode", t, func() {
		docs := map[Mode]string{ModeLandscape: landscapeDoc, ModePortrait: portraitDoc, ModeAction: actionDoc}
		for mode, doc := range docs {
			tel, err := Parse([]byte(doc), mode)
			So(err, ShouldBeNil)

			b, err := json.Marshal(tel)
			So(err, ShouldBeNil)

			Convey("Then re-parsing the marshalled "+string(mode)+" form is lossless", func() {
				again, err := Parse(b, mode)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, tel)

				var inferred Telemetry
				So(json.Unmarshal(b, &inferred), ShouldBeNil)
				So(inferred.Mode(), ShouldEqual, mode)
			})
		}
	})
}

func TestValidate(t *testing.T) {
	Convey("A record without details fails every mode", t, func() {
		So(errors.Is(Telemetry{}.Validate(ModeLandscape), ErrModeMismatch), ShouldBeTrue)
	})
	Convey("A record with another variant fails", t, func() {
		tel := Telemetry{Details: ActionDetails{}}
		So(errors.Is(tel.Validate(ModePortrait), ErrModeMismatch), ShouldBeTrue)
		So(tel.Validate(ModeAction), ShouldBeNil)
	})
}
