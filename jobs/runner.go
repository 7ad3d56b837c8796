package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"

	"github.com/milk9111/tiledprep/preprocess"
	"github.com/milk9111/tiledprep/tiled"
)

// Runner executes job files.
type Runner struct {
	// In and Out answer overwrite prompts for jobs using the prompt policy.
	In  io.Reader
	Out io.Writer
}

// Run executes every job in order. A failing job does not stop the others;
// all failures are returned joined.
func (r *Runner) Run(ctx context.Context, f *File) error {
	var errs []error
	for i := range f.Jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := r.RunJob(ctx, f, &f.Jobs[i]); err != nil {
			log.Printf("jobs: %s: %v", f.Jobs[i].Label(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunJob converts and stores a single job, returning the written path.
func (r *Runner) RunJob(ctx context.Context, f *File, j *Job) (string, error) {
	opts, err := f.Options(j)
	if err != nil {
		return "", fmt.Errorf("jobs: %s: %w", j.Label(), err)
	}
	policy, err := j.policy()
	if err != nil {
		return "", fmt.Errorf("jobs: %s: %w", j.Label(), err)
	}

	p := preprocess.New(f.resolve(j.Input), opts)
	p.In, p.Out = r.In, r.Out
	p.MkdirAll = j.Mkdir
	if err := p.Read(ctx); err != nil {
		return "", err
	}

	target, err := p.Store(j.OutputName(), f.OutputDir(j), policy)
	if errors.Is(err, preprocess.ErrNotReplaced) {
		log.Printf("jobs: %s: kept existing %s", j.Label(), target)
		return target, nil
	}
	return target, err
}

// Watch runs the file once and then again for every change to a job input,
// script or external tileset until ctx is cancelled. Editing the job file
// reloads it.
func (r *Runner) Watch(ctx context.Context, f *File) error {
	if err := r.Run(ctx, f); err != nil {
		log.Printf("jobs: initial run: %v", err)
	}

	for {
		ws := newWatchSet(f)
		w, err := NewWatcher(ws.dirs...)
		if err != nil {
			return fmt.Errorf("jobs: watch: %w", err)
		}
		next, err := r.watchLoop(ctx, f, ws, w)
		_ = w.Close()
		if err != nil || next == nil {
			return err
		}
		f = next
	}
}

// watchLoop handles events until ctx ends (nil, nil) or the watched
// directories need to change (file to watch next, nil): the job file was
// reloaded or a map now references tilesets elsewhere.
func (r *Runner) watchLoop(ctx context.Context, f *File, ws *watchSet, w *Watcher) (*File, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil, nil
			}
			log.Printf("jobs: watch error: %v", err)
		case path, ok := <-w.Events:
			if !ok {
				return nil, nil
			}
			if samePath(path, f.Path()) {
				next, err := Load(f.Path())
				if err != nil {
					log.Printf("jobs: reload %s: %v", f.Path(), err)
					continue
				}
				log.Printf("jobs: reloaded %s", f.Path())
				if err := r.Run(ctx, next); err != nil {
					log.Printf("jobs: run: %v", err)
				}
				return next, nil
			}

			jobs := ws.affected(f, path)
			for _, j := range jobs {
				if _, err := r.RunJob(ctx, f, j); err != nil {
					log.Printf("jobs: %s: %v", j.Label(), err)
				}
			}
			if len(jobs) == 0 {
				continue
			}
			fresh := newWatchSet(f)
			if !slices.Equal(fresh.dirs, ws.dirs) {
				return f, nil
			}
			ws = fresh
		}
	}
}

// watchSet is what a job file depends on: the directories to watch and,
// per job, the external tilesets its map references.
type watchSet struct {
	dirs     []string
	tilesets [][]string
}

func newWatchSet(f *File) *watchSet {
	ws := &watchSet{tilesets: make([][]string, len(f.Jobs))}
	seen := map[string]bool{}
	add := func(p string) {
		d := filepath.Dir(p)
		if seen[d] {
			return
		}
		seen[d] = true
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			return
		}
		ws.dirs = append(ws.dirs, d)
	}

	add(f.Path())
	for i := range f.Jobs {
		j := &f.Jobs[i]
		input := f.resolve(j.Input)
		add(input)
		if opts, err := f.Options(j); err == nil && opts.Script != "" {
			add(opts.Script)
		}
		// An unreadable input is picked up through its directory once fixed.
		files, err := tiled.TilesetFiles(input)
		if err != nil {
			continue
		}
		ws.tilesets[i] = files
		for _, ts := range files {
			add(ts)
		}
	}
	return ws
}

// affected lists the jobs to re-run after path changed: those whose input,
// script or one of whose tilesets it is.
func (ws *watchSet) affected(f *File, path string) []*Job {
	var out []*Job
	for i := range f.Jobs {
		j := &f.Jobs[i]
		if samePath(path, f.resolve(j.Input)) || ws.usesTileset(i, path) {
			out = append(out, j)
			continue
		}
		if opts, err := f.Options(j); err == nil && opts.Script != "" && samePath(path, opts.Script) {
			out = append(out, j)
		}
	}
	return out
}

func (ws *watchSet) usesTileset(job int, path string) bool {
	if job >= len(ws.tilesets) {
		return false
	}
	return slices.ContainsFunc(ws.tilesets[job], func(ts string) bool {
		return samePath(ts, path)
	})
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
