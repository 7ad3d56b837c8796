package preprocess

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Document is the preprocessed output: object layers keyed by name, kept in
// source order.
type Document struct {
	layers []Layer
	index  map[string]int
}

type Layer struct {
	Name    string
	Objects []Object
}

func NewDocument() *Document {
	return &Document{index: map[string]int{}}
}

// Layers returns the layers in output order.
func (d *Document) Layers() []Layer {
	if d == nil {
		return nil
	}
	return d.layers
}

// Layer returns the objects stored under name.
func (d *Document) Layer(name string) ([]Object, bool) {
	if d == nil {
		return nil, false
	}
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.layers[i].Objects, true
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.layers)
}

// Add stores objs under name, resolving a clash with an existing layer
// according to policy.
func (d *Document) Add(name string, objs []Object, policy DuplicatePolicy) error {
	if objs == nil {
		objs = []Object{}
	}
	i, exists := d.index[name]
	if !exists {
		d.index[name] = len(d.layers)
		d.layers = append(d.layers, Layer{Name: name, Objects: objs})
		return nil
	}
	switch policy {
	case DuplicateMerge:
		d.layers[i].Objects = append(d.layers[i].Objects, objs...)
	case DuplicateError:
		return fmt.Errorf("%w: %q", ErrDuplicateLayer, name)
	default:
		d.layers[i].Objects = objs
	}
	return nil
}

// MarshalJSON writes the layers as a single object whose keys keep the
// document order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, l := range d.Layers() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshal(l.Name)
		if err != nil {
			return nil, err
		}
		objs := l.Objects
		if objs == nil {
			objs = []Object{}
		}
		val, err := marshal(objs)
		if err != nil {
			return nil, fmt.Errorf("preprocess: marshal layer %q: %w", l.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode writes the document followed by a newline. indent <= 0 writes
// compact JSON.
func (d *Document) Encode(w io.Writer, indent int) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", spaces(indent))
	}
	return enc.Encode(d)
}

// marshal is json.Marshal without HTML escaping, so names like "a&b" stay
// readable in the output.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func spaces(n int) string {
	return string(bytes.Repeat([]byte{' '}, n))
}

// Object is a single output entry. Shape objects (polylines and polygons)
// carry Dots in absolute coordinates instead of X/Y.
type Object struct {
	Name       string
	Width      float64
	Height     float64
	Dots       [][2]float64
	X          float64
	Y          float64
	Type       string
	Shape      string
	Closed     bool
	Image      *Image
	Properties map[string]any
	Metrics    *Metrics
	Extra      map[string]any
}

// IsShape reports whether the object came from a polyline or polygon.
func (o Object) IsShape() bool { return o.Dots != nil }

type objectJSON struct {
	Name       string         `json:"name"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Dots       *[][2]float64  `json:"dots,omitempty"`
	X          *float64       `json:"x,omitempty"`
	Y          *float64       `json:"y,omitempty"`
	Type       string         `json:"type,omitempty"`
	Shape      string         `json:"shape,omitempty"`
	Closed     bool           `json:"closed,omitempty"`
	Image      *Image         `json:"image,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Metrics    *Metrics       `json:"metrics,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func (o Object) MarshalJSON() ([]byte, error) {
	out := objectJSON{
		Name:       o.Name,
		Width:      o.Width,
		Height:     o.Height,
		Type:       o.Type,
		Shape:      o.Shape,
		Closed:     o.Closed,
		Image:      o.Image,
		Properties: o.Properties,
		Metrics:    o.Metrics,
		Extra:      o.Extra,
	}
	if o.Dots != nil {
		out.Dots = &o.Dots
	} else {
		out.X, out.Y = &o.X, &o.Y
	}
	return marshal(out)
}

// Image references the picture a tile object draws, relative to the map
// file.
type Image struct {
	Path    string `json:"path"`
	Tileset string `json:"tileset,omitempty"`
	Index   int    `json:"index"`
	SrcX    int    `json:"src_x"`
	SrcY    int    `json:"src_y"`
	TileW   int    `json:"tile_w"`
	TileH   int    `json:"tile_h"`
	FlipH   bool   `json:"flip_h,omitempty"`
	FlipV   bool   `json:"flip_v,omitempty"`
	FlipD   bool   `json:"flip_d,omitempty"`
}

// Metrics holds derived geometry. Bounds is [left, top, right, bottom].
type Metrics struct {
	Area     float64    `json:"area"`
	Length   float64    `json:"length,omitempty"`
	Centroid [2]float64 `json:"centroid"`
	Bounds   [4]float64 `json:"bounds"`
}
