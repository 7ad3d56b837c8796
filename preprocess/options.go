package preprocess

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DuplicatePolicy decides what happens when two object layers end up with
// the same output name.
type DuplicatePolicy string

const (
	// DuplicateReplace keeps the position of the first layer but the objects
	// of the last one.
	DuplicateReplace DuplicatePolicy = "replace"
	DuplicateMerge   DuplicatePolicy = "merge"
	DuplicateError   DuplicatePolicy = "error"
)

var ErrDuplicateLayer = errors.New("preprocess: duplicate layer name")

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DuplicateReplace, nil
	case DuplicateReplace, DuplicateMerge, DuplicateError:
		return p, nil
	default:
		return "", fmt.Errorf("preprocess: unknown duplicate policy %q", s)
	}
}

// Options controls which parts of each object reach the output document.
type Options struct {
	Indent            int             `yaml:"indent"`
	IncludeType       bool            `yaml:"include_type"`
	IncludeImage      bool            `yaml:"include_image"`
	IncludeShape      bool            `yaml:"include_shape"`
	IncludeProperties bool            `yaml:"include_properties"`
	IncludeMetrics    bool            `yaml:"include_metrics"`
	IncludeHidden     bool            `yaml:"include_hidden"`
	ApplyRotation     bool            `yaml:"apply_rotation"`
	Layers            []string        `yaml:"layers"`
	GroupSeparator    string          `yaml:"group_separator"`
	Duplicates        DuplicatePolicy `yaml:"duplicates"`
	Script            string          `yaml:"script"`
	VerifyImages      bool            `yaml:"verify_images"`
}

func DefaultOptions() Options {
	return Options{
		Indent:         2,
		IncludeType:    true,
		IncludeImage:   true,
		IncludeHidden:  true,
		GroupSeparator: "/",
		Duplicates:     DuplicateReplace,
	}
}

// Validate normalizes policy strings and rejects impossible settings.
func (o *Options) Validate() error {
	if o.Indent < 0 {
		return fmt.Errorf("preprocess: negative indent %d", o.Indent)
	}
	p, err := ParseDuplicatePolicy(string(o.Duplicates))
	if err != nil {
		return err
	}
	o.Duplicates = p
	if o.GroupSeparator == "" {
		o.GroupSeparator = "/"
	}
	return nil
}

// keepLayer matches the layer filter against either the plain layer name or
// its group-qualified output name.
func (o *Options) keepLayer(names ...string) bool {
	if len(o.Layers) == 0 {
		return true
	}
	for _, n := range names {
		if slices.Contains(o.Layers, n) {
			return true
		}
	}
	return false
}
