package preprocess

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrBadImage = errors.New("preprocess: image cannot be decoded")

type imageInfo struct {
	cfg image.Config
	err error
}

// imageChecker decodes image headers relative to the map directory and
// remembers the result per path.
type imageChecker struct {
	dir  string
	seen map[string]imageInfo
}

func newImageChecker(dir string) *imageChecker {
	return &imageChecker{dir: dir, seen: map[string]imageInfo{}}
}

func (c *imageChecker) check(rel string) (image.Config, error) {
	if info, ok := c.seen[rel]; ok {
		return info.cfg, info.err
	}
	info := c.decode(rel)
	c.seen[rel] = info
	return info.cfg, info.err
}

func (c *imageChecker) decode(rel string) imageInfo {
	full := filepath.FromSlash(rel)
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.dir, full)
	}
	f, err := os.Open(full)
	if err != nil {
		return imageInfo{err: fmt.Errorf("preprocess: open image %s: %w", rel, err)}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return imageInfo{err: fmt.Errorf("%w: %s: %v", ErrBadImage, rel, err)}
	}
	return imageInfo{cfg: cfg}
}
