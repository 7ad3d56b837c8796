package preprocess

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/tiledprep/tiled"
)

// Convert builds the output document for m. Only object layers are
// converted; other layer types are skipped.
func Convert(ctx context.Context, m *tiled.Map, opts Options) (*Document, error) {
	if m == nil {
		return nil, fmt.Errorf("preprocess: nil map")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	c := &converter{m: m, opts: opts}
	if opts.Script != "" {
		s, err := loadObjectScript(opts.Script)
		if err != nil {
			return nil, err
		}
		c.script = s
	}
	if opts.VerifyImages {
		c.images = newImageChecker(m.Dir())
	}
	return c.run(ctx)
}

type converter struct {
	m      *tiled.Map
	opts   Options
	script *objectScript
	images *imageChecker
}

func (c *converter) run(ctx context.Context) (*Document, error) {
	if skipped := countSkipped(c.m.Layers); skipped > 0 {
		log.Printf("preprocess: skipped %d non-object layer(s)", skipped)
	}

	doc := NewDocument()
	for _, lp := range c.m.ObjectLayers() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := c.layerName(lp)
		if !c.opts.keepLayer(lp.Layer.Name, name) {
			continue
		}
		if !lp.Visible && !c.opts.IncludeHidden {
			continue
		}

		objs := make([]Object, 0, len(lp.Layer.Objects))
		for i := range lp.Layer.Objects {
			src := &lp.Layer.Objects[i]
			if !src.IsVisible() && !c.opts.IncludeHidden {
				continue
			}
			obj, keep, err := c.object(ctx, name, src)
			if err != nil {
				return nil, err
			}
			if keep {
				objs = append(objs, obj)
			}
		}

		if _, exists := doc.Layer(name); exists && c.opts.Duplicates == DuplicateReplace {
			log.Printf("preprocess: layer %q appears more than once, keeping the last one", name)
		}
		if err := doc.Add(name, objs, c.opts.Duplicates); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (c *converter) layerName(lp tiled.LayerPath) string {
	if len(lp.Groups) == 0 {
		return lp.Layer.Name
	}
	parts := append(append([]string(nil), lp.Groups...), lp.Layer.Name)
	return strings.Join(parts, c.opts.GroupSeparator)
}

func (c *converter) object(ctx context.Context, layer string, src *tiled.Object) (Object, bool, error) {
	obj := Object{
		Name:   src.Name,
		Width:  src.Width,
		Height: src.Height,
	}

	var verts []cp.Vector
	if pts := src.Points(); pts != nil {
		verts = worldPoints(cp.Vector{X: src.X, Y: src.Y}, pts, src.Rotation, c.opts.ApplyRotation)
		obj.Dots = dots(verts)
	} else {
		obj.X, obj.Y = src.X, src.Y
	}

	if c.opts.IncludeType {
		obj.Type = src.Kind()
	}
	if c.opts.IncludeShape {
		obj.Shape = string(src.Shape())
		obj.Closed = src.Shape() == tiled.ShapePolygon
	}
	if c.opts.IncludeProperties {
		obj.Properties = tiled.PropertyMap(src.Properties)
	}
	if c.opts.IncludeMetrics {
		obj.Metrics = metricsFor(src, verts, c.opts.ApplyRotation)
	}
	if src.GID != 0 && (c.opts.IncludeImage || c.images != nil) {
		img, err := c.image(src.GID)
		if err != nil {
			return Object{}, false, fmt.Errorf("preprocess: layer %q object %d: %w", layer, src.ID, err)
		}
		if c.opts.IncludeImage {
			obj.Image = img
		}
	}

	if c.script != nil {
		keep, err := c.script.apply(ctx, layer, &obj, src)
		if err != nil || !keep {
			return Object{}, false, err
		}
	}
	return obj, true, nil
}

func (c *converter) image(gid tiled.GID) (*Image, error) {
	ti, ok := c.m.TileImage(gid)
	if !ok {
		log.Printf("preprocess: no tileset image for gid %d", gid.ID())
		return nil, nil
	}
	img := &Image{
		Path:    ti.Path,
		Tileset: ti.Tileset,
		Index:   ti.Index,
		SrcX:    ti.SrcX,
		SrcY:    ti.SrcY,
		TileW:   ti.Width,
		TileH:   ti.Height,
		FlipH:   gid.FlippedH(),
		FlipV:   gid.FlippedV(),
		FlipD:   gid.FlippedD(),
	}
	if c.images == nil {
		return img, nil
	}

	cfg, err := c.images.check(ti.Path)
	if err != nil {
		return nil, err
	}
	if img.TileW == 0 && img.TileH == 0 {
		img.TileW, img.TileH = cfg.Width, cfg.Height
	}
	return img, nil
}

func countSkipped(layers []tiled.Layer) int {
	n := 0
	for _, l := range layers {
		switch l.Type {
		case tiled.LayerObject:
		case tiled.LayerGroup:
			n += countSkipped(l.Layers)
		default:
			n++
		}
	}
	return n
}
