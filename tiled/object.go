package tiled

// Shape is the geometric kind of an object.
type Shape string

const (
	ShapeRectangle Shape = "rectangle"
	ShapeEllipse   Shape = "ellipse"
	ShapePoint     Shape = "point"
	ShapePolygon   Shape = "polygon"
	ShapePolyline  Shape = "polyline"
	ShapeTile      Shape = "tile"
	ShapeText      Shape = "text"
)

// Object is an entry of an object layer.
//
// Polygon and Polyline are nil when the key is absent from the export and
// non-nil (possibly empty) when present.
type Object struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type,omitempty"`
	Class      string     `json:"class,omitempty"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Rotation   float64    `json:"rotation,omitempty"`
	Visible    *bool      `json:"visible,omitempty"`
	GID        GID        `json:"gid,omitempty"`
	Ellipse    bool       `json:"ellipse,omitempty"`
	Point      bool       `json:"point,omitempty"`
	Polygon    []Point    `json:"polygon,omitempty"`
	Polyline   []Point    `json:"polyline,omitempty"`
	Text       *Text      `json:"text,omitempty"`
	Template   string     `json:"template,omitempty"`
	Properties []Property `json:"properties,omitempty"`
}

// Point is a vertex of a polygon or polyline, relative to the object origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Text struct {
	Text       string `json:"text"`
	FontFamily string `json:"fontfamily,omitempty"`
	PixelSize  int    `json:"pixelsize,omitempty"`
	Wrap       bool   `json:"wrap,omitempty"`
	Color      string `json:"color,omitempty"`
	HAlign     string `json:"halign,omitempty"`
	VAlign     string `json:"valign,omitempty"`
}

// Shape reports the object's kind. A polyline takes precedence over a
// polygon when an export somehow carries both.
func (o *Object) Shape() Shape {
	switch {
	case o.Polyline != nil:
		return ShapePolyline
	case o.Polygon != nil:
		return ShapePolygon
	case o.GID != 0:
		return ShapeTile
	case o.Text != nil:
		return ShapeText
	case o.Ellipse:
		return ShapeEllipse
	case o.Point:
		return ShapePoint
	default:
		return ShapeRectangle
	}
}

// Points returns the polyline or polygon vertices, or nil for other shapes.
func (o *Object) Points() []Point {
	if o.Polyline != nil {
		return o.Polyline
	}
	return o.Polygon
}

// Kind returns the object's type, falling back to the class field written
// by Tiled 1.9 and later.
func (o *Object) Kind() string {
	if o.Type != "" {
		return o.Type
	}
	return o.Class
}

func (o *Object) IsVisible() bool {
	return o.Visible == nil || *o.Visible
}
