package preprocess

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/milk9111/tiledprep/tiled"
)

// Preprocessor converts one Tiled export into the simplified document and
// stores it.
type Preprocessor struct {
	path string
	opts Options
	doc  *Document

	// In and Out are used to ask before replacing an existing output file.
	In  io.Reader
	Out io.Writer
	// MkdirAll creates a missing destination directory instead of failing.
	MkdirAll bool
}

// New returns a preprocessor for the export at path. Relative paths are
// resolved against the working directory.
func New(path string, opts Options) *Preprocessor {
	return &Preprocessor{
		path: absPath(path),
		opts: opts,
		In:   os.Stdin,
		Out:  os.Stdout,
	}
}

func (p *Preprocessor) Path() string { return p.path }

// Read loads the export and rebuilds the document, discarding any earlier
// result.
func (p *Preprocessor) Read(ctx context.Context) error {
	p.doc = nil
	m, err := tiled.LoadMap(p.path)
	if err != nil {
		return err
	}
	doc, err := Convert(ctx, m, p.opts)
	if err != nil {
		return err
	}
	p.doc = doc
	log.Printf("preprocess: read %d object layer(s) from %s", doc.Len(), p.path)
	return nil
}

// Document returns the result of the last successful Read, or nil.
func (p *Preprocessor) Document() *Document {
	return p.doc
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Join(wd, path)
}
