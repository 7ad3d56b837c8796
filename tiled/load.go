package tiled

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotTiledMap is returned for JSON documents without a layers array.
	ErrNotTiledMap = errors.New("tiled: document has no layers")
	// ErrUnsupportedTileset is returned for external tilesets that are not
	// JSON (.tsx).
	ErrUnsupportedTileset = errors.New("tiled: unsupported external tileset format")
)

func DecodeMap(r io.Reader) (*Map, error) {
	var m Map
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("tiled: decode map: %w", err)
	}
	if m.Layers == nil {
		return nil, ErrNotTiledMap
	}
	return &m, nil
}

// LoadMap reads a map export from disk and resolves its external tilesets
// relative to the map file.
func LoadMap(filename string) (*Map, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("tiled: open map %s: %w", filename, err)
	}
	defer f.Close()

	m, err := DecodeMap(f)
	if err != nil {
		return nil, fmt.Errorf("tiled: load %s: %w", filename, err)
	}
	m.dir = filepath.Dir(filename)

	for i := range m.Tilesets {
		ref := &m.Tilesets[i]
		if ref.Source == "" {
			continue
		}
		if err := ref.loadExternal(m.dir); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (ref *TilesetRef) loadExternal(mapDir string) error {
	ext := strings.ToLower(filepath.Ext(ref.Source))
	if ext != ".tsj" && ext != ".json" {
		return fmt.Errorf("tiled: tileset %s: %w", ref.Source, ErrUnsupportedTileset)
	}

	full := filepath.Join(mapDir, filepath.FromSlash(ref.Source))
	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("tiled: read tileset %s: %w", ref.Source, err)
	}
	var ts Tileset
	if err := json.Unmarshal(data, &ts); err != nil {
		return fmt.Errorf("tiled: unmarshal tileset %s: %w", ref.Source, err)
	}
	ref.Tileset = ts
	ref.dir = path.Dir(filepath.ToSlash(ref.Source))
	if ref.dir == "." {
		ref.dir = ""
	}
	return nil
}

// TilesetFiles reads the map at filename and returns the paths of the
// external tilesets it references, joined to the map directory. The tilesets
// themselves are not opened.
func TilesetFiles(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("tiled: open map %s: %w", filename, err)
	}
	defer f.Close()

	m, err := DecodeMap(f)
	if err != nil {
		return nil, fmt.Errorf("tiled: load %s: %w", filename, err)
	}
	var out []string
	for _, ref := range m.Tilesets {
		if ref.Source != "" {
			out = append(out, filepath.Join(filepath.Dir(filename), filepath.FromSlash(ref.Source)))
		}
	}
	return out, nil
}
