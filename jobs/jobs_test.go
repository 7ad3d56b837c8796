package jobs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/milk9111/tiledprep/preprocess"
)

const simpleMap = `{"layers": [{"name": "walls", "type": "objectgroup", "objects": [
  {"id": 1, "name": "%s", "x": 1, "y": 2, "width": 3, "height": 4}
]}]}`

func mapWithName(name string) string {
	return strings.Replace(simpleMap, "%s", name, 1)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid", "jobs:\n  - input: maps/a.json\n", false},
		{"output_is_input", "jobs:\n  - input: a.json\n", true},
		{"output_is_input_explicit", "jobs:\n  - input: maps/a.json\n    output: a.json\n    dir: maps\n", true},
		{"renamed_beside_input", "jobs:\n  - input: a.json\n    output: a_out\n", false},
		{"no_jobs", "jobs: []\n", true},
		{"missing_input", "jobs:\n  - output: a\n", true},
		{"bad_policy", "jobs:\n  - input: a.json\n    overwrite: sometimes\n", true},
		{"bad_duplicates", "jobs:\n  - input: a.json\n    options: {duplicates: drop}\n", true},
		{"unknown_option", "jobs:\n  - input: a.json\n    options: {include_everything: true}\n", true},
		{"bad_defaults", "defaults: {indent: lots}\njobs:\n  - input: a.json\n", true},
		{"malformed", "jobs: [\n", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := writeFile(t, t.TempDir(), "jobs.yaml", c.yaml)
			_, err := Load(p)
			if (err != nil) != c.wantErr {
				t.Fatalf("expected error=%v, got %v", c.wantErr, err)
			}
		})
	}
}

func TestOptionsLayering(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "jobs.yaml", `
defaults:
  indent: 4
  include_shape: true
jobs:
  - input: maps/a.json
    options:
      indent: 0
      script: scripts/filter.tengo
  - input: maps/b.json
`)
	f, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	a, err := f.Options(&f.Jobs[0])
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if a.Indent != 0 || !a.IncludeShape || !a.IncludeType {
		t.Fatalf("unexpected options for a: %+v", a)
	}
	if a.Script != filepath.Join(dir, "scripts", "filter.tengo") {
		t.Fatalf("expected script relative to job file, got %s", a.Script)
	}

	b, _ := f.Options(&f.Jobs[1])
	if b.Indent != 4 || !b.IncludeShape {
		t.Fatalf("expected defaults for b: %+v", b)
	}
	if f.Jobs[1].OutputName() != "b" {
		t.Fatalf("expected output name b, got %s", f.Jobs[1].OutputName())
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "maps/a.json", mapWithName("alpha"))
	writeFile(t, dir, "maps/b.json", mapWithName("beta"))
	p := writeFile(t, dir, "jobs.yaml", `
defaults:
  indent: 0
jobs:
  - input: maps/a.json
    dir: out
    mkdir: true
  - name: broken
    input: maps/missing.json
  - input: maps/b.json
    output: bravo
    dir: out
    mkdir: true
`)
	f, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := &Runner{}
	err = r.Run(context.Background(), f)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected the missing input to be reported, got %v", err)
	}

	cases := []struct {
		file string
		want string
	}{
		{"out/a.json", `{"walls":[{"name":"alpha","width":3,"height":4,"x":1,"y":2}]}` + "\n"},
		{"out/bravo.json", `{"walls":[{"name":"beta","width":3,"height":4,"x":1,"y":2}]}` + "\n"},
	}
	for _, c := range cases {
		t.Run(c.file, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(c.file)))
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			if string(data) != c.want {
				t.Fatalf("expected %s, got %s", c.want, data)
			}
		})
	}
}

func TestRunJobKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", mapWithName("alpha"))
	existing := writeFile(t, dir, "out.json", "old")
	p := writeFile(t, dir, "jobs.yaml", "jobs:\n  - input: a.json\n    output: out\n    overwrite: prompt\n")
	f, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var prompt bytes.Buffer
	r := &Runner{In: strings.NewReader("n\n"), Out: &prompt}
	if _, err := r.RunJob(context.Background(), f, &f.Jobs[0]); err != nil {
		t.Fatalf("declining should not be an error, got %v", err)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "old" {
		t.Fatalf("existing output should be kept, got %q", data)
	}
	if !strings.Contains(prompt.String(), "replace the file") {
		t.Fatalf("expected prompt, got %q", prompt.String())
	}
}

func TestRunJobDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "maps/a.json", mapWithName("alpha"))
	p := writeFile(t, dir, "jobs.yaml", "jobs:\n  - input: maps/a.json\n")
	f, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	target, err := (&Runner{}).RunJob(context.Background(), f, &f.Jobs[0])
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if want := filepath.Join(dir, "a.json"); target != want {
		t.Fatalf("expected output next to the job file at %s, got %s", want, target)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), `"name": "alpha"`) {
		t.Fatalf("unexpected output %s", data)
	}
}

const tileMap = `{"layers": [{"name": "items", "type": "objectgroup", "objects": [
  {"id": 1, "name": "coin", "x": 0, "y": 16, "width": 16, "height": 16, "gid": 1}
]}], "tilesets": [{"firstgid": 1, "source": "tilesets/props.tsj"}]}`

func propsTileset(image string) string {
	return `{"name": "props", "image": "` + image + `", "imagewidth": 32, "imageheight": 16,
  "tilewidth": 16, "tileheight": 16, "tilecount": 2, "columns": 2}`
}

func TestAffected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "maps/a.json", tileMap)
	writeFile(t, dir, "maps/tilesets/props.tsj", propsTileset("props.png"))
	writeFile(t, dir, "maps/b.json", mapWithName("beta"))
	p := writeFile(t, dir, "jobs.yaml", `
jobs:
  - input: maps/a.json
    options: {script: s.tengo}
  - input: maps/b.json
`)
	f, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ws := newWatchSet(f)

	wantDirs := []string{dir, filepath.Join(dir, "maps"), filepath.Join(dir, "maps", "tilesets")}
	if strings.Join(ws.dirs, ",") != strings.Join(wantDirs, ",") {
		t.Fatalf("expected watched dirs %v, got %v", wantDirs, ws.dirs)
	}

	cases := []struct {
		name string
		path string
		want []string
	}{
		{"input", filepath.Join(dir, "maps", "b.json"), []string{"maps/b.json"}},
		{"script", filepath.Join(dir, "s.tengo"), []string{"maps/a.json"}},
		{"tileset", filepath.Join(dir, "maps", "tilesets", "props.tsj"), []string{"maps/a.json"}},
		{"unreferenced_tileset", filepath.Join(dir, "maps", "tilesets", "other.tsj"), nil},
		{"unrelated", filepath.Join(dir, "maps", "c.json"), nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var got []string
			for _, j := range ws.affected(f, c.path) {
				got = append(got, j.Input)
			}
			if strings.Join(got, ",") != strings.Join(c.want, ",") {
				t.Fatalf("expected %v, got %v", c.want, got)
			}
		})
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	writeFile(t, dir, "ignored.txt", "x")
	target := writeFile(t, dir, "level.json", "{}")

	select {
	case got := <-w.Events:
		if got != target {
			t.Fatalf("expected event for %s, got %s", target, got)
		}
	case err := <-w.Errors:
		t.Fatalf("watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestWatcherReportsLastWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	target := writeFile(t, dir, "level.json", `{"layers": [`)
	time.Sleep(30 * time.Millisecond)
	writeFile(t, dir, "level.json", `{"layers": []}`)

	var seen []string
	timeout := time.After(5 * time.Second)
	for len(seen) == 0 {
		select {
		case got := <-w.Events:
			data, _ := os.ReadFile(got)
			seen = append(seen, string(data))
		case err := <-w.Errors:
			t.Fatalf("watch error: %v", err)
		case <-timeout:
			t.Fatalf("timed out waiting for event")
		}
	}
	quiet := time.After(500 * time.Millisecond)
collect:
	for {
		select {
		case <-w.Events:
			seen = append(seen, "extra")
		case <-quiet:
			break collect
		}
	}

	if len(seen) != 1 {
		t.Fatalf("expected one event for %s, got %d", target, len(seen))
	}
	if seen[0] != `{"layers": []}` {
		t.Fatalf("event fired before the final write, saw %q", seen[0])
	}
}

// waitForOutput polls output until it contains want, calling touch between
// polls so changes made before the watcher is up are repeated.
func waitForOutput(t *testing.T, output, want string, touch func()) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if data, err := os.ReadFile(output); err == nil && strings.Contains(string(data), want) {
			return
		}
		if time.Now().After(deadline) {
			data, _ := os.ReadFile(output)
			t.Fatalf("output never contained %q, last %s", want, data)
		}
		if touch != nil {
			touch()
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func TestWatch(t *testing.T) {
	cases := []struct {
		name   string
		files  map[string]string
		before string
		after  string
		change func(t *testing.T, dir string)
	}{
		{
			name:   "input",
			files:  map[string]string{"maps/a.json": mapWithName("before")},
			before: "before",
			after:  "after",
			change: func(t *testing.T, dir string) {
				writeFile(t, dir, "maps/a.json", mapWithName("after"))
			},
		},
		{
			name:   "save_in_two_steps",
			files:  map[string]string{"maps/a.json": mapWithName("before")},
			before: "before",
			after:  "after",
			change: func(t *testing.T, dir string) {
				writeFile(t, dir, "maps/a.json", `{"layers": [`)
				time.Sleep(30 * time.Millisecond)
				writeFile(t, dir, "maps/a.json", mapWithName("after"))
			},
		},
		{
			name: "tileset_in_subdirectory",
			files: map[string]string{
				"maps/a.json":             tileMap,
				"maps/tilesets/props.tsj": propsTileset("before.png"),
			},
			before: "tilesets/before.png",
			after:  "tilesets/after.png",
			change: func(t *testing.T, dir string) {
				writeFile(t, dir, "maps/tilesets/props.tsj", propsTileset("after.png"))
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range c.files {
				writeFile(t, dir, name, content)
			}
			p := writeFile(t, dir, "jobs.yaml", "defaults: {indent: 0}\njobs:\n  - input: maps/a.json\n    dir: out\n    mkdir: true\n")
			f, err := Load(p)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- (&Runner{}).Watch(ctx, f) }()

			output := filepath.Join(dir, "out", "a.json")
			waitForOutput(t, output, c.before, nil)
			waitForOutput(t, output, c.after, func() { c.change(t, dir) })

			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("Watch: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("Watch did not stop after cancel")
			}
		})
	}
}

func TestDecodeOptions(t *testing.T) {
	base := preprocess.DefaultOptions()
	got, err := decodeOptions(base, map[string]any{"layers": []any{"a", "b"}, "verify_images": true})
	if err != nil {
		t.Fatalf("decodeOptions: %v", err)
	}
	if !got.VerifyImages || len(got.Layers) != 2 || got.Indent != base.Indent {
		t.Fatalf("unexpected options %+v", got)
	}
}
