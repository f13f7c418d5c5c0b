// Package overlay projects telemetry onto a canvas as drawable guides.
package overlay

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/rules"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

var ErrInvalidCanvas = errors.New("canvas width and height must be positive")

const (
	TargetLabel   = "target"
	MotionCaption = "Track the subject (panning)"

	glyphPositiveTilt = "↻"
	glyphNegativeTilt = "↺"
)

func rgba(r, g, b uint8, a float64) *RGBA { return &RGBA{R: r, G: g, B: b, A: a} }

// Projector computes overlay primitives. It is stateless and safe for
// concurrent use.
type Projector struct {
	engine *rules.Engine
}

// Option configures a Projector.
type Option func(*Projector)

// WithEngine sets the rule engine consulted for the motion guide. It
// should be the engine that produced the commands shown to the user.
func WithEngine(e *rules.Engine) Option {
	return func(p *Projector) {
		if e != nil {
			p.engine = e
		}
	}
}

func NewProjector(opts ...Option) *Projector {
	p := &Projector{engine: rules.NewEngine()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project returns the guides for t on a w×h canvas in drawing order:
// grid, horizon, template markers, motion guide, face box. A template
// saved in another mode is ignored.
func (p *Projector) Project(t telemetry.Telemetry, mode telemetry.Mode, tmpl *model.Template, w, h float64) ([]Primitive, error) {
	if !(w > 0) || !(h > 0) || math.IsInf(w, 0) || math.IsInf(h, 0) {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidCanvas, w, h)
	}
	if err := t.Validate(mode); err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}

	out := grid(w, h)
	out = append(out, horizon(t, w, h, p.engine.Thresholds().TiltTolerance)...)
	if tmpl.ActiveFor(mode) {
		out = append(out, templateMarkers(tmpl.Telemetry, w, h)...)
	}
	if mode == telemetry.ModeAction {
		cmds, err := p.engine.Evaluate(t, mode, tmpl)
		if err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
		if rules.HasPanning(cmds) {
			out = append(out, motionGuide(w, h)...)
		}
	}
	if face, ok := t.PrimaryFace(); ok {
		out = append(out, faceBox(face, w, h))
	}
	return out, nil
}

func grid(w, h float64) []Primitive {
	style := func() Style { return Style{Stroke: rgba(0, 255, 0, 0.5), Width: h * 0.002} }
	return []Primitive{
		Line{Layer: LayerGrid, From: Point{w / 3, 0}, To: Point{w / 3, h}, Style: style()},
		Line{Layer: LayerGrid, From: Point{2 * w / 3, 0}, To: Point{2 * w / 3, h}, Style: style()},
		Line{Layer: LayerGrid, From: Point{0, h / 3}, To: Point{w, h / 3}, Style: style()},
		Line{Layer: LayerGrid, From: Point{0, 2 * h / 3}, To: Point{w, 2 * h / 3}, Style: style()},
	}
}

// HorizonDelta is the vertical offset of each horizon endpoint from the
// centre line for a canvas of width w.
func HorizonDelta(tiltDeg, w float64) float64 {
	return (w / 2) * math.Tan(tiltDeg*math.Pi/180)
}

func horizon(t telemetry.Telemetry, w, h, tolerance float64) []Primitive {
	tilt := t.HorizonTiltDeg
	if math.Abs(tilt) <= tolerance {
		return nil
	}
	y := t.HorizonYPct / 100 * h
	d := HorizonDelta(tilt, w)
	glyph := glyphPositiveTilt
	if tilt < 0 {
		glyph = glyphNegativeTilt
	}
	abs := math.Round(math.Abs(tilt)*10) / 10
	return []Primitive{
		Line{
			Layer: LayerHorizon,
			From:  Point{0, y - d},
			To:    Point{w, y + d},
			Style: Style{Stroke: rgba(255, 0, 0, 0.8), Width: h * 0.003, Dash: []float64{h * 0.02, h * 0.01}},
		},
		Text{
			Layer: LayerHorizon,
			At:    Point{w * 0.02, y - h*0.03},
			Text:  glyph + " " + strconv.FormatFloat(abs, 'f', 1, 64) + "°",
			Size:  h * 0.03,
			Align: AlignStart,
			Style: Style{Fill: rgba(255, 0, 0, 0.9)},
		},
	}
}

func templateMarkers(target telemetry.Telemetry, w, h float64) []Primitive {
	y := target.HorizonYPct / 100 * h
	nx, ny := target.SubjectBBox.Center()
	c := Point{nx * w, ny * h}
	return []Primitive{
		Line{
			Layer: LayerTemplate,
			From:  Point{0, y},
			To:    Point{w, y},
			Style: Style{Stroke: rgba(150, 0, 255, 0.9), Width: h * 0.005},
		},
		Arc{
			Layer:  LayerTemplate,
			Center: c,
			Radius: h * 0.03,
			Start:  0,
			End:    2 * math.Pi,
			Style:  Style{Stroke: rgba(150, 0, 255, 1), Fill: rgba(150, 0, 255, 0.5)},
		},
		Text{
			Layer: LayerTemplate,
			At:    Point{c.X, c.Y + h*0.005},
			Text:  TargetLabel,
			Size:  h * 0.02,
			Align: AlignCenter,
			Style: Style{Fill: rgba(255, 255, 255, 1)},
		},
	}
}

func motionGuide(w, h float64) []Primitive {
	y := h * 0.5
	head := h * 0.02
	left, right := w*0.05, w*0.95
	fill := func() Style { return Style{Fill: rgba(0, 150, 255, 0.9)} }
	return []Primitive{
		Line{
			Layer: LayerMotion,
			From:  Point{left, y},
			To:    Point{right, y},
			Style: Style{Stroke: rgba(0, 150, 255, 0.9), Width: h * 0.005, Dash: []float64{h * 0.02, h * 0.01}},
		},
		Polygon{
			Layer:  LayerMotion,
			Points: []Point{{left, y}, {left + head, y - head/2}, {left + head, y + head/2}},
			Style:  fill(),
		},
		Polygon{
			Layer:  LayerMotion,
			Points: []Point{{right, y}, {right - head, y - head/2}, {right - head, y + head/2}},
			Style:  fill(),
		},
		Text{
			Layer: LayerMotion,
			At:    Point{w / 2, y - h*0.03},
			Text:  MotionCaption,
			Size:  h * 0.03,
			Align: AlignCenter,
			Style: Style{Fill: rgba(0, 150, 255, 1)},
		},
	}
}

func faceBox(f telemetry.Face, w, h float64) Primitive {
	return Rect{
		Layer:  LayerFace,
		Origin: Point{f.BBox.X * w, f.BBox.Y * h},
		Width:  f.BBox.W * w,
		Height: f.BBox.H * h,
		Style:  Style{Stroke: rgba(255, 255, 0, 0.8), Width: h * 0.004},
	}
}
