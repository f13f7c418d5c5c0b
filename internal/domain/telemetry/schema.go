package telemetry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type obj = map[string]any

// schemas holds one compiled draft-07 schema per mode. Each lists as
// required every field the rule engine and overlay read in that mode.
var schemas = compileSchemas()

func compileSchemas() map[Mode]*gojsonschema.Schema {
	out := make(map[Mode]*gojsonschema.Schema, len(Modes))
	for _, m := range Modes {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaFor(m)))
		if err != nil {
			panic(fmt.Sprintf("telemetry: compile %s schema: %v", m, err))
		}
		out[m] = s
	}
	return out
}

func schemaFor(mode Mode) obj {
	number := obj{"type": "number"}
	unit := obj{"type": "number", "minimum": 0, "maximum": 1}
	pct := obj{"type": "number", "minimum": 0, "maximum": 100}
	nullableNumber := obj{"type": []string{"number", "null"}}
	bbox := obj{"type": "array", "items": number, "minItems": 4, "maxItems": 4}

	exif := obj{
		"type": "object",
		"properties": obj{
			"aperture":  obj{"type": "number", "exclusiveMinimum": 0},
			"shutter_s": obj{"type": "number", "exclusiveMinimum": 0},
		},
	}
	lighting := obj{
		"type": "object",
		"properties": obj{
			"golden_hour":            obj{"type": "boolean"},
			"optimal_light_eta":      nullableNumber,
			"shadow_recovery_needed": obj{"type": "boolean"},
		},
	}
	props := obj{
		"horizon_tilt_deg":      obj{"type": "number", "exclusiveMinimum": -90, "exclusiveMaximum": 90},
		"horizon_y_pct":         pct,
		"saliency_subject_bbox": bbox,
		"rule_of_thirds_offset": unit,
		"foreground_saliency":   unit,
		"background_clutter":    unit,
		"composition_score":     pct,
		"technical_issues": obj{
			"type": "array",
			"items": obj{"enum": []string{
				string(IssueHorizonTilt), string(IssueBackgroundClutter),
				string(IssueWhiteBalance), string(IssueLowContrast),
			}},
		},
		"color_analysis": obj{
			"type": "object",
			"properties": obj{
				"white_balance_shift": number,
				"contrast_ratio":      number,
				"color_cast":          obj{"type": []string{"string", "null"}},
			},
		},
		"ai_rationale": obj{"type": []string{"string", "null"}},
		"exif_like":    exif,
		"lighting":     lighting,
	}
	required := []string{
		"horizon_tilt_deg", "horizon_y_pct", "saliency_subject_bbox",
		"composition_score", "exif_like", "lighting",
	}

	switch mode {
	case ModeLandscape:
		required = append(required, "foreground_saliency")
		lighting["required"] = []string{"golden_hour"}
	case ModePortrait:
		required = append(required, "background_clutter", "faces")
		exif["required"] = []string{"aperture"}
		lighting["required"] = []string{"shadow_recovery_needed"}
		props["faces"] = obj{
			"type": "array",
			"items": obj{
				"type":     "object",
				"required": []string{"bbox", "gaze_dir_deg", "skin_tone_exposure"},
				"properties": obj{
					"bbox":               bbox,
					"gaze_dir_deg":       number,
					"head_tilt_deg":      number,
					"skin_tone_exposure": unit,
				},
			},
		}
	case ModeAction:
		required = append(required, "motion")
		exif["required"] = []string{"shutter_s"}
		props["motion"] = obj{
			"type":     "object",
			"required": []string{"subject_speed_px_s", "panning_candidate"},
			"properties": obj{
				"subject_speed_px_s": obj{"type": "number", "minimum": 0},
				"panning_candidate":  obj{"type": "boolean"},
				"peak_action_eta":    nullableNumber,
			},
		}
	}

	return obj{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"required":   required,
		"properties": props,
		// the white balance rule reads color_analysis only when the tag is set
		"if": obj{
			"required":   []string{"technical_issues"},
			"properties": obj{"technical_issues": obj{"contains": obj{"const": string(IssueWhiteBalance)}}},
		},
		"then": obj{
			"required": []string{"color_analysis"},
			"properties": obj{
				"color_analysis": obj{"required": []string{"white_balance_shift"}},
			},
		},
	}
}

// validate checks doc against the schema for mode.
func validate(doc []byte, mode Mode) error {
	s, ok := schemas[mode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
