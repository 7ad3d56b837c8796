package preprocess

import (
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/tiledprep/tiled"
)

// rotation returns the unit vector for a clockwise rotation in degrees, in
// Tiled's y-down space.
func rotation(degrees float64) cp.Vector {
	return cp.ForAngle(degrees * math.Pi / 180)
}

// worldPoints converts points relative to origin into absolute coordinates,
// rotating them around origin first when rotate is set.
func worldPoints(origin cp.Vector, pts []tiled.Point, degrees float64, rotate bool) []cp.Vector {
	rot := rotation(degrees)
	out := make([]cp.Vector, len(pts))
	for i, p := range pts {
		v := cp.Vector{X: p.X, Y: p.Y}
		if rotate && degrees != 0 {
			v = v.Rotate(rot)
		}
		out[i] = origin.Add(v)
	}
	return out
}

func dots(verts []cp.Vector) [][2]float64 {
	out := make([][2]float64, len(verts))
	for i, v := range verts {
		out[i] = [2]float64{v.X, v.Y}
	}
	return out
}

// outline returns the corners of the object's box in world space. Tile
// objects are anchored bottom-left in Tiled, everything else top-left.
func outline(o *tiled.Object, rotate bool) []cp.Vector {
	top := 0.0
	if o.Shape() == tiled.ShapeTile {
		top = -o.Height
	}
	corners := []tiled.Point{
		{X: 0, Y: top},
		{X: o.Width, Y: top},
		{X: o.Width, Y: top + o.Height},
		{X: 0, Y: top + o.Height},
	}
	return worldPoints(cp.Vector{X: o.X, Y: o.Y}, corners, o.Rotation, rotate)
}

func bounds(verts []cp.Vector) [4]float64 {
	if len(verts) == 0 {
		return [4]float64{}
	}
	// cp boxes are y-up: B holds the smallest y, which is the top in map space.
	bb := cp.BB{L: verts[0].X, B: verts[0].Y, R: verts[0].X, T: verts[0].Y}
	for _, v := range verts[1:] {
		bb.L = math.Min(bb.L, v.X)
		bb.R = math.Max(bb.R, v.X)
		bb.B = math.Min(bb.B, v.Y)
		bb.T = math.Max(bb.T, v.Y)
	}
	return [4]float64{bb.L, bb.B, bb.R, bb.T}
}

func mean(verts []cp.Vector) cp.Vector {
	var sum cp.Vector
	for _, v := range verts {
		sum = sum.Add(v)
	}
	return sum.Mult(1 / float64(len(verts)))
}

// metricsFor derives area, length, centroid and bounds for an object. verts
// are the world-space dots for shape objects and nil otherwise.
func metricsFor(o *tiled.Object, verts []cp.Vector, rotate bool) *Metrics {
	switch o.Shape() {
	case tiled.ShapePolygon:
		if len(verts) == 0 {
			return nil
		}
		m := &Metrics{Bounds: bounds(verts)}
		area := cp.AreaForPoly(len(verts), verts, 0)
		m.Area = math.Abs(area)
		m.Length = perimeter(verts, true)
		c := mean(verts)
		if area != 0 {
			c = cp.CentroidForPoly(len(verts), verts)
		}
		m.Centroid = [2]float64{c.X, c.Y}
		return m
	case tiled.ShapePolyline:
		if len(verts) == 0 {
			return nil
		}
		c := mean(verts)
		return &Metrics{
			Length:   perimeter(verts, false),
			Centroid: [2]float64{c.X, c.Y},
			Bounds:   bounds(verts),
		}
	case tiled.ShapePoint:
		return &Metrics{
			Centroid: [2]float64{o.X, o.Y},
			Bounds:   [4]float64{o.X, o.Y, o.X, o.Y},
		}
	}

	box := outline(o, rotate)
	c := mean(box)
	m := &Metrics{
		Centroid: [2]float64{c.X, c.Y},
		Bounds:   bounds(box),
	}
	if o.Shape() == tiled.ShapeEllipse {
		m.Area = math.Pi * (o.Width / 2) * (o.Height / 2)
	} else {
		m.Area = o.Width * o.Height
	}
	return m
}

func perimeter(verts []cp.Vector, closed bool) float64 {
	var total float64
	for i := 1; i < len(verts); i++ {
		total += verts[i-1].Distance(verts[i])
	}
	if closed && len(verts) > 2 {
		total += verts[len(verts)-1].Distance(verts[0])
	}
	return total
}
