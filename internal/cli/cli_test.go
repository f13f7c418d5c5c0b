package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"
)

const tiltedLandscape = `{
  "horizon_tilt_deg": 3.5,
  "horizon_y_pct": 48,
  "saliency_subject_bbox": [0.4, 0.3, 0.2, 0.3],
  "foreground_saliency": 0.7,
  "composition_score": 64,
  "technical_issues": ["horizon_tilt"],
  "exif_like": {"aperture": 8, "shutter_s": 0.004},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": false}
}`

const pannedAction = `{
  "horizon_tilt_deg": 0,
  "horizon_y_pct": 50,
  "saliency_subject_bbox": [0.1, 0.4, 0.2, 0.3],
  "foreground_saliency": 0.5,
  "composition_score": 58,
  "technical_issues": [],
  "exif_like": {"aperture": 4, "shutter_s": 0.02},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": false},
  "motion": {"subject_speed_px_s": 400, "panning_candidate": true, "peak_action_eta": null}
}`

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(stdin string, args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEvaluateCmd(t *testing.T) {
	Convey("Given a saved landscape frame", t, func() {
		path := writeDoc(t, tiltedLandscape)

		Convey("When evaluating it as JSON", func() {
			out, err := execute("", "evaluate", "--mode", "landskap", "--telemetry", path)
			So(err, ShouldBeNil)

			var ev evaluation
			So(json.Unmarshal([]byte(out), &ev), ShouldBeNil)
			So(ev.Mode, ShouldEqual, "LANDSCAPE")
			So(len(ev.Commands), ShouldBeBetweenOrEqual, 1, 3)
			So(ev.Rationale, ShouldNotBeEmpty)
			So(ev.Template, ShouldBeFalse)
		})

		Convey("When the command cap is lowered", func() {
			out, err := execute("", "evaluate", "-m", "LANDSCAPE", "-t", path, "--max-commands", "1")
			So(err, ShouldBeNil)
			var ev evaluation
			So(json.Unmarshal([]byte(out), &ev), ShouldBeNil)
			So(ev.Commands, ShouldHaveLength, 1)
		})

		Convey("When reading from stdin with YAML output", func() {
			out, err := execute(tiltedLandscape, "evaluate", "-m", "landscape", "-t", "-", "-o", "yaml")
			So(err, ShouldBeNil)

			var doc map[string]any
			So(yaml.Unmarshal([]byte(out), &doc), ShouldBeNil)
			So(doc["mode"], ShouldEqual, "LANDSCAPE")
			So(doc, ShouldContainKey, "commands")
		})

		Convey("When comparing against a template", func() {
			out, err := execute("", "evaluate", "-m", "landscape", "-t", path, "--template", path)
			So(err, ShouldBeNil)
			var ev evaluation
			So(json.Unmarshal([]byte(out), &ev), ShouldBeNil)
			So(ev.Template, ShouldBeTrue)
		})

		Convey("When the mode is unknown", func() {
			_, err := execute("", "evaluate", "-m", "macro", "-t", path)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "--mode")
		})

		Convey("When the document does not match the mode", func() {
			_, err := execute("", "evaluate", "-m", "action", "-t", path)
			So(err, ShouldNotBeNil)
		})

		Convey("When both documents read stdin", func() {
			_, err := execute("", "evaluate", "-m", "landscape", "-t", "-", "--template", "-")
			So(errors.Is(err, ErrStdinTwice), ShouldBeTrue)
		})

		Convey("When the output format is unknown", func() {
			_, err := execute("", "evaluate", "-m", "landscape", "-t", path, "-o", "toml")
			So(errors.Is(err, ErrOutputFormat), ShouldBeTrue)
		})
	})
}

func TestOverlayCmd(t *testing.T) {
	Convey("Given a saved landscape frame", t, func() {
		path := writeDoc(t, tiltedLandscape)

		Convey("When rendering an overlay", func() {
			out, err := execute("", "overlay", "-m", "landscape", "-t", path, "--width", "400", "--height", "300")
			So(err, ShouldBeNil)

			var res struct {
				Width      float64          `json:"width"`
				Primitives []map[string]any `json:"primitives"`
			}
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
			So(res.Width, ShouldEqual, 400.0)
			So(len(res.Primitives), ShouldBeGreaterThan, 0)
			So(res.Primitives[0], ShouldContainKey, "kind")
		})

		Convey("When the size is missing", func() {
			_, err := execute("", "overlay", "-m", "landscape", "-t", path)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestEngineFlagsShared(t *testing.T) {
	Convey("Given an action frame that earns freeze and panning advice", t, func() {
		path := writeDoc(t, pannedAction)

		motionLayer := func(out string) bool {
			var res struct {
				Primitives []map[string]any `json:"primitives"`
			}
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
			for _, p := range res.Primitives {
				if p["layer"] == "motion" {
					return true
				}
			}
			return false
		}

		Convey("When both commands use default tuning", func() {
			out, err := execute("", "evaluate", "-m", "action", "-t", path)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"panning"`)

			out, err = execute("", "overlay", "-m", "action", "-t", path, "--width", "400", "--height", "300")
			So(err, ShouldBeNil)
			So(motionLayer(out), ShouldBeTrue)
		})

		Convey("When the command cap drops the panning advice", func() {
			out, err := execute("", "evaluate", "-m", "action", "-t", path, "--max-commands", "1")
			So(err, ShouldBeNil)
			So(out, ShouldNotContainSubstring, `"panning"`)

			out, err = execute("", "overlay", "-m", "action", "-t", path, "--width", "400", "--height", "300", "--max-commands", "1")
			So(err, ShouldBeNil)
			So(motionLayer(out), ShouldBeFalse)
		})

		Convey("When the cap exceeds the surfaced limit", func() {
			_, err := execute("", "evaluate", "-m", "action", "-t", path, "--max-commands", "5")
			So(errors.Is(err, ErrEngineFlag), ShouldBeTrue)

			_, err = execute("", "overlay", "-m", "action", "-t", path, "--width", "4", "--height", "3", "--max-commands", "5")
			So(errors.Is(err, ErrEngineFlag), ShouldBeTrue)
		})
	})
}

func TestRootCmd(t *testing.T) {
	Convey("The root command lists its subcommands", t, func() {
		out, err := execute("", "--help")
		So(err, ShouldBeNil)
		for _, name := range []string{"evaluate", "overlay", "load"} {
			So(out, ShouldContainSubstring, name)
		}
	})
}
