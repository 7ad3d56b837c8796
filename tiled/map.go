package tiled

// Map is a Tiled Map Editor JSON export (.tmj / .json).
type Map struct {
	Type         string       `json:"type,omitempty"`
	Version      any          `json:"version,omitempty"`
	TiledVersion string       `json:"tiledversion,omitempty"`
	Orientation  string       `json:"orientation,omitempty"`
	RenderOrder  string       `json:"renderorder,omitempty"`
	Infinite     bool         `json:"infinite,omitempty"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	TileWidth    int          `json:"tilewidth"`
	TileHeight   int          `json:"tileheight"`
	Layers       []Layer      `json:"layers"`
	Tilesets     []TilesetRef `json:"tilesets,omitempty"`
	Properties   []Property   `json:"properties,omitempty"`

	// dir is the directory of the map file; image and tileset paths in the
	// export are relative to it.
	dir string
}

// Dir returns the directory the map was loaded from, or "" for maps decoded
// from a reader.
func (m *Map) Dir() string {
	if m == nil {
		return ""
	}
	return m.dir
}

// Layer types as written by Tiled.
const (
	LayerTile   = "tilelayer"
	LayerObject = "objectgroup"
	LayerImage  = "imagelayer"
	LayerGroup  = "group"
)

// Layer is any layer of a map. Only the fields relevant to its Type are set.
type Layer struct {
	ID         int        `json:"id,omitempty"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Class      string     `json:"class,omitempty"`
	Visible    *bool      `json:"visible,omitempty"`
	Opacity    float64    `json:"opacity,omitempty"`
	OffsetX    float64    `json:"offsetx,omitempty"`
	OffsetY    float64    `json:"offsety,omitempty"`
	DrawOrder  string     `json:"draworder,omitempty"`
	Objects    []Object   `json:"objects,omitempty"`
	Layers     []Layer    `json:"layers,omitempty"`
	Image      string     `json:"image,omitempty"`
	Properties []Property `json:"properties,omitempty"`
}

// IsVisible reports the layer's own visibility flag. Exports always carry
// the flag; a missing one is treated as visible.
func (l *Layer) IsVisible() bool {
	return l.Visible == nil || *l.Visible
}

// LayerPath is an object layer found by ObjectLayers together with the names
// of the group layers enclosing it, outermost first.
type LayerPath struct {
	Layer   *Layer
	Groups  []string
	Visible bool
}

// ObjectLayers walks the layer tree depth first in document order and
// returns every object layer, descending into group layers.
func (m *Map) ObjectLayers() []LayerPath {
	if m == nil {
		return nil
	}
	var out []LayerPath
	var walk func(layers []Layer, groups []string, visible bool)
	walk = func(layers []Layer, groups []string, visible bool) {
		for i := range layers {
			l := &layers[i]
			vis := visible && l.IsVisible()
			switch l.Type {
			case LayerObject:
				out = append(out, LayerPath{
					Layer:   l,
					Groups:  append([]string(nil), groups...),
					Visible: vis,
				})
			case LayerGroup:
				walk(l.Layers, append(groups, l.Name), vis)
			}
		}
	}
	walk(m.Layers, nil, true)
	return out
}

// Property is a custom property attached to a map, layer, object or tile.
type Property struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	PropertyType string `json:"propertytype,omitempty"`
	Value        any    `json:"value"`
}

// PropertyMap flattens a property list into name -> value. Later entries win.
func PropertyMap(props []Property) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for _, p := range props {
		out[p.Name] = p.Value
	}
	return out
}
