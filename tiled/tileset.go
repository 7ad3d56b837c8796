package tiled

import (
	"path"
)

// GID is a global tile id as stored on tile objects. The upper bits carry
// flip flags.
type GID uint32

const (
	FlagFlippedHorizontally GID = 0x80000000
	FlagFlippedVertically   GID = 0x40000000
	FlagFlippedDiagonally   GID = 0x20000000
	FlagRotatedHexagonal120 GID = 0x10000000

	gidFlagMask = FlagFlippedHorizontally | FlagFlippedVertically | FlagFlippedDiagonally | FlagRotatedHexagonal120
)

// ID returns the gid with the flip flags cleared.
func (g GID) ID() uint32 { return uint32(g &^ gidFlagMask) }

func (g GID) FlippedH() bool { return g&FlagFlippedHorizontally != 0 }
func (g GID) FlippedV() bool { return g&FlagFlippedVertically != 0 }
func (g GID) FlippedD() bool { return g&FlagFlippedDiagonally != 0 }

// Tileset holds the fields shared by embedded and external tilesets.
// Atlas tilesets set Image; image-collection tilesets set Tiles[i].Image.
type Tileset struct {
	Name        string     `json:"name,omitempty"`
	Class       string     `json:"class,omitempty"`
	Image       string     `json:"image,omitempty"`
	ImageWidth  int        `json:"imagewidth,omitempty"`
	ImageHeight int        `json:"imageheight,omitempty"`
	TileWidth   int        `json:"tilewidth,omitempty"`
	TileHeight  int        `json:"tileheight,omitempty"`
	TileCount   int        `json:"tilecount,omitempty"`
	Columns     int        `json:"columns,omitempty"`
	Margin      int        `json:"margin,omitempty"`
	Spacing     int        `json:"spacing,omitempty"`
	Tiles       []Tile     `json:"tiles,omitempty"`
	Properties  []Property `json:"properties,omitempty"`
}

// TilesetRef is an entry of Map.Tilesets. External tilesets only carry
// FirstGID and Source until LoadMap resolves them.
type TilesetRef struct {
	FirstGID GID    `json:"firstgid"`
	Source   string `json:"source,omitempty"`
	Tileset

	// dir is where the tileset's own relative paths start, relative to the
	// map directory.
	dir string
}

type Tile struct {
	ID          int        `json:"id"`
	Type        string     `json:"type,omitempty"`
	Class       string     `json:"class,omitempty"`
	Image       string     `json:"image,omitempty"`
	ImageWidth  int        `json:"imagewidth,omitempty"`
	ImageHeight int        `json:"imageheight,omitempty"`
	Properties  []Property `json:"properties,omitempty"`
}

// TileImage locates the image a gid draws from. Path is relative to the map
// directory using forward slashes. For atlas tilesets SrcX/SrcY locate the
// tile inside the image; for collections they are zero.
type TileImage struct {
	Path    string
	Tileset string
	Index   int
	SrcX    int
	SrcY    int
	Width   int
	Height  int
}

// TileImage resolves gid against the map's tilesets. It reports false when
// no tileset covers the id or the tileset has no image for it.
func (m *Map) TileImage(gid GID) (TileImage, bool) {
	id := GID(gid.ID())
	if m == nil || id == 0 {
		return TileImage{}, false
	}

	var ts *TilesetRef
	for i := range m.Tilesets {
		ref := &m.Tilesets[i]
		if ref.FirstGID <= id && (ts == nil || ref.FirstGID > ts.FirstGID) {
			ts = ref
		}
	}
	if ts == nil {
		return TileImage{}, false
	}

	local := int(id - ts.FirstGID)
	if ts.TileCount > 0 && local >= ts.TileCount {
		return TileImage{}, false
	}

	if ts.Image != "" {
		cols := ts.columns()
		if cols <= 0 {
			return TileImage{}, false
		}
		return TileImage{
			Path:    ts.resolve(ts.Image),
			Tileset: ts.Name,
			Index:   local,
			SrcX:    ts.Margin + (local%cols)*(ts.TileWidth+ts.Spacing),
			SrcY:    ts.Margin + (local/cols)*(ts.TileHeight+ts.Spacing),
			Width:   ts.TileWidth,
			Height:  ts.TileHeight,
		}, true
	}

	for _, t := range ts.Tiles {
		if t.ID != local || t.Image == "" {
			continue
		}
		return TileImage{
			Path:    ts.resolve(t.Image),
			Tileset: ts.Name,
			Index:   local,
			Width:   t.ImageWidth,
			Height:  t.ImageHeight,
		}, true
	}
	return TileImage{}, false
}

func (ts *TilesetRef) columns() int {
	if ts.Columns > 0 {
		return ts.Columns
	}
	step := ts.TileWidth + ts.Spacing
	if step <= 0 {
		return 0
	}
	return (ts.ImageWidth - 2*ts.Margin + ts.Spacing) / step
}

func (ts *TilesetRef) resolve(p string) string {
	if p == "" || path.IsAbs(p) || ts.dir == "" {
		return path.Clean(p)
	}
	return path.Join(ts.dir, p)
}
