package preprocess

import (
	"context"
	"fmt"
	"os"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/milk9111/tiledprep/tiled"
)

// objectDispatchScript is appended to user scripts. The script must define
// process(layer, object); returning false drops the object and returning a
// map rewrites it.
const objectDispatchScript = `
__result := process(__layer, __object)
`

// Keys a script cannot add as extras because they are already output fields
// or read-only inputs.
var reservedScriptKeys = map[string]bool{
	"id": true, "name": true, "type": true, "shape": true, "x": true, "y": true,
	"width": true, "height": true, "rotation": true, "dots": true,
	"properties": true, "image": true, "extra": true,
}

type objectScript struct {
	path     string
	compiled *tengo.Compiled
}

func loadObjectScript(path string) (*objectScript, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preprocess: read script %s: %w", path, err)
	}
	return compileObjectScript(path, src)
}

func compileObjectScript(name string, src []byte) (*objectScript, error) {
	full := string(src) + "\n" + objectDispatchScript
	script := tengo.NewScript([]byte(full))
	_ = script.Add("__layer", "")
	_ = script.Add("__object", map[string]any{})
	script.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("preprocess: compile script %s: %w", name, err)
	}
	return &objectScript{path: name, compiled: compiled}, nil
}

// apply runs the script for one object. It reports false when the script
// dropped the object.
func (s *objectScript) apply(ctx context.Context, layer string, obj *Object, src *tiled.Object) (bool, error) {
	id := src.ID
	if err := s.compiled.Set("__layer", layer); err != nil {
		return false, err
	}
	if err := s.compiled.Set("__object", scriptObject(obj, src)); err != nil {
		return false, err
	}
	if err := s.compiled.RunContext(ctx); err != nil {
		return false, fmt.Errorf("preprocess: script %s: layer %q object %d: %w", s.path, layer, id, err)
	}

	switch res := s.compiled.Get("__result").Value().(type) {
	case nil:
		return true, nil
	case bool:
		return res, nil
	case map[string]any:
		mergeScriptResult(obj, res)
		return true, nil
	default:
		return false, fmt.Errorf("preprocess: script %s: process returned %T, want bool or map", s.path, res)
	}
}

func scriptObject(obj *Object, src *tiled.Object) map[string]any {
	m := map[string]any{
		"id":     src.ID,
		"name":   obj.Name,
		"type":   obj.Type,
		"shape":  string(src.Shape()),
		"width":  obj.Width,
		"height": obj.Height,
	}
	if obj.Dots != nil {
		pts := make([]any, len(obj.Dots))
		for i, d := range obj.Dots {
			pts[i] = []any{d[0], d[1]}
		}
		m["dots"] = pts
	} else {
		m["x"] = obj.X
		m["y"] = obj.Y
	}
	if obj.Image != nil {
		m["image"] = obj.Image.Path
	}
	if obj.Properties != nil {
		m["properties"] = obj.Properties
	}
	return m
}

func mergeScriptResult(obj *Object, res map[string]any) {
	if v, ok := res["name"].(string); ok {
		obj.Name = v
	}
	if v, ok := res["type"].(string); ok {
		obj.Type = v
	}

	extra, _ := res["extra"].(map[string]any)
	for k, v := range res {
		if reservedScriptKeys[k] {
			continue
		}
		setExtra(obj, k, v)
	}
	for k, v := range extra {
		setExtra(obj, k, v)
	}
}

func setExtra(obj *Object, k string, v any) {
	if obj.Extra == nil {
		obj.Extra = map[string]any{}
	}
	obj.Extra[k] = v
}
