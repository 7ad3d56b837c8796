package jobs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/milk9111/tiledprep/preprocess"
	"gopkg.in/yaml.v3"
)

var ErrInvalidJob = errors.New("jobs: invalid job")

// File is a YAML job file: shared option defaults plus a list of
// conversions to run in order.
type File struct {
	Defaults map[string]any `yaml:"defaults"`
	Jobs     []Job          `yaml:"jobs"`

	path string
}

// Job converts one Tiled export into one output document. Paths are
// relative to the job file.
type Job struct {
	Name      string         `yaml:"name"`
	Input     string         `yaml:"input"`
	Output    string         `yaml:"output"`
	Dir       string         `yaml:"dir"`
	Overwrite string         `yaml:"overwrite"`
	Mkdir     bool           `yaml:"mkdir"`
	Options   map[string]any `yaml:"options"`
}

// Load reads and validates a job file.
func Load(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("jobs: load %s: %w", filename, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("jobs: unmarshal %s: %w", filename, err)
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("jobs: resolve %s: %w", filename, err)
	}
	f.path = abs
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Path() string { return f.path }

// Dir is the directory job paths are relative to.
func (f *File) Dir() string {
	if f.path == "" {
		return "."
	}
	return filepath.Dir(f.path)
}

func (f *File) Validate() error {
	if len(f.Jobs) == 0 {
		return fmt.Errorf("%w: no jobs in %s", ErrInvalidJob, f.path)
	}
	if _, err := decodeOptions(preprocess.DefaultOptions(), f.Defaults); err != nil {
		return fmt.Errorf("%w: defaults: %v", ErrInvalidJob, err)
	}
	for i := range f.Jobs {
		j := &f.Jobs[i]
		if j.Input == "" {
			return fmt.Errorf("%w: job %d: input is required", ErrInvalidJob, i)
		}
		if _, err := j.policy(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidJob, j.Label(), err)
		}
		if _, err := f.Options(j); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidJob, j.Label(), err)
		}
		if samePath(f.OutputPath(j), f.resolve(j.Input)) {
			return fmt.Errorf("%w: %s: output would replace the input, set output or dir", ErrInvalidJob, j.Label())
		}
	}
	return nil
}

// Label names a job in logs.
func (j *Job) Label() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Input
}

// OutputName defaults to the input's base name without extension.
func (j *Job) OutputName() string {
	if j.Output != "" {
		return strings.TrimSuffix(j.Output, ".json")
	}
	base := filepath.Base(j.Input)
	return base[:len(base)-len(filepath.Ext(base))]
}

// OutputDir is the job's dir resolved against the job file, defaulting to
// the job file's own directory.
func (f *File) OutputDir(j *Job) string {
	if j.Dir == "" {
		return f.Dir()
	}
	return f.resolve(j.Dir)
}

func (f *File) OutputPath(j *Job) string {
	return filepath.Join(f.OutputDir(j), j.OutputName()+".json")
}

// policy defaults to overwrite: batch runs have nobody to answer a prompt.
func (j *Job) policy() (preprocess.OverwritePolicy, error) {
	if j.Overwrite == "" {
		return preprocess.Overwrite, nil
	}
	return preprocess.ParseOverwritePolicy(j.Overwrite)
}

// Options layers the job's options over the file defaults over the package
// defaults, and resolves the script path against the job file.
func (f *File) Options(j *Job) (preprocess.Options, error) {
	opts, err := decodeOptions(preprocess.DefaultOptions(), f.Defaults)
	if err != nil {
		return opts, err
	}
	opts, err = decodeOptions(opts, j.Options)
	if err != nil {
		return opts, err
	}
	if opts.Script != "" {
		opts.Script = f.resolve(opts.Script)
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (f *File) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.Dir(), filepath.FromSlash(p))
}

// decodeOptions overlays raw YAML values onto base.
func decodeOptions(base preprocess.Options, raw map[string]any) (preprocess.Options, error) {
	if len(raw) == 0 {
		return base, nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return base, err
	}
	out := base
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return base, err
	}
	return out, nil
}
