package overlay

import (
	"encoding/json"
	"strconv"
)

// Kind tags a primitive in its serialized form.
type Kind string

const (
	KindLine    Kind = "line"
	KindArc     Kind = "arc"
	KindPolygon Kind = "polygon"
	KindRect    Kind = "rect"
	KindText    Kind = "text"
)

// Layer groups primitives by the guide they belong to.
type Layer string

const (
	LayerGrid     Layer = "grid"
	LayerHorizon  Layer = "horizon"
	LayerTemplate Layer = "template"
	LayerMotion   Layer = "motion"
	LayerFace     Layer = "face"
)

// Align is the horizontal text anchor.
type Align string

const (
	AlignStart  Align = "start"
	AlignCenter Align = "center"
)

// RGBA is a colour with 8-bit channels and a unit alpha. It serializes as a
// CSS rgba() string.
type RGBA struct {
	R, G, B uint8
	A       float64
}

func (c RGBA) String() string {
	return "rgba(" + strconv.Itoa(int(c.R)) + ", " + strconv.Itoa(int(c.G)) + ", " +
		strconv.Itoa(int(c.B)) + ", " + strconv.FormatFloat(c.A, 'f', -1, 64) + ")"
}

func (c RGBA) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Point is a pixel-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style describes how a primitive is painted. A nil colour is not painted.
type Style struct {
	Stroke *RGBA     `json:"stroke,omitempty"`
	Fill   *RGBA     `json:"fill,omitempty"`
	Width  float64   `json:"width,omitempty"`
	Dash   []float64 `json:"dash,omitempty"`
}

// Primitive is one drawable element. Implementations are Line, Arc,
// Polygon, Rect and Text.
type Primitive interface {
	Kind() Kind
	layer() Layer
}

// LayerOf returns the layer p belongs to.
func LayerOf(p Primitive) Layer { return p.layer() }

type Line struct {
	Layer Layer `json:"layer"`
	From  Point `json:"from"`
	To    Point `json:"to"`
	Style Style `json:"style"`
}

// Arc spans Start to End radians clockwise around Center.
type Arc struct {
	Layer  Layer   `json:"layer"`
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Style  Style   `json:"style"`
}

// Polygon is a closed path through Points.
type Polygon struct {
	Layer  Layer   `json:"layer"`
	Points []Point `json:"points"`
	Style  Style   `json:"style"`
}

type Rect struct {
	Layer  Layer   `json:"layer"`
	Origin Point   `json:"origin"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Style  Style   `json:"style"`
}

// Text is a label anchored at At. Size is the font height in pixels.
type Text struct {
	Layer Layer   `json:"layer"`
	At    Point   `json:"at"`
	Text  string  `json:"text"`
	Size  float64 `json:"size"`
	Align Align   `json:"align"`
	Style Style   `json:"style"`
}

func (Line) Kind() Kind    { return KindLine }
func (Arc) Kind() Kind     { return KindArc }
func (Polygon) Kind() Kind { return KindPolygon }
func (Rect) Kind() Kind    { return KindRect }
func (Text) Kind() Kind    { return KindText }

func (p Line) layer() Layer    { return p.Layer }
func (p Arc) layer() Layer     { return p.Layer }
func (p Polygon) layer() Layer { return p.Layer }
func (p Rect) layer() Layer    { return p.Layer }
func (p Text) layer() Layer    { return p.Layer }

// Dashed reports whether the line has a dash pattern.
func (p Line) Dashed() bool { return len(p.Style.Dash) > 0 }

func (p Line) MarshalJSON() ([]byte, error) {
	type line Line
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		line
	}{KindLine, line(p)})
}

func (p Arc) MarshalJSON() ([]byte, error) {
	type arc Arc
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		arc
	}{KindArc, arc(p)})
}

func (p Polygon) MarshalJSON() ([]byte, error) {
	type polygon Polygon
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		polygon
	}{KindPolygon, polygon(p)})
}

func (p Rect) MarshalJSON() ([]byte, error) {
	type rect Rect
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		rect
	}{KindRect, rect(p)})
}

func (p Text) MarshalJSON() ([]byte, error) {
	type text Text
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		text
	}{KindText, text(p)})
}
