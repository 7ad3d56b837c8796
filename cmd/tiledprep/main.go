package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/milk9111/tiledprep/jobs"
	"github.com/milk9111/tiledprep/preprocess"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("tiledprep: .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	switch {
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, preprocess.ErrNotReplaced):
		fmt.Println("End of processing.")
	case err != nil:
		log.Fatal(err)
	}
}

type config struct {
	name     string
	out      string
	force    bool
	noClob   bool
	failIf   bool
	mkdir    bool
	layers   string
	dup      string
	jobsFile string
	watch    bool
	opts     preprocess.Options
	// set lists the flags given on the command line.
	set []string
}

func parseFlags(args []string, stderr io.Writer) (*config, []string, error) {
	defaults := preprocess.DefaultOptions()
	cfg := &config{opts: defaults}

	fset := flag.NewFlagSet("tiledprep", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() {
		fmt.Fprintln(stderr, "usage: tiledprep [flags] <map.json>")
		fmt.Fprintln(stderr, "       tiledprep -jobs jobs.yaml [-watch]")
		fset.PrintDefaults()
	}

	fset.StringVar(&cfg.name, "name", "", "output name without extension (default: input base name)")
	fset.StringVar(&cfg.out, "out", envOr("TILEDPREP_OUT_DIR", "."), "output directory")
	fset.IntVar(&cfg.opts.Indent, "indent", envInt("TILEDPREP_INDENT", defaults.Indent), "JSON indentation, 0 for compact")
	fset.BoolVar(&cfg.force, "force", false, "overwrite an existing output without asking")
	fset.BoolVar(&cfg.noClob, "no-clobber", false, "never overwrite an existing output")
	fset.BoolVar(&cfg.failIf, "fail-exists", false, "fail when the output already exists")
	fset.BoolVar(&cfg.mkdir, "mkdir", false, "create the output directory if missing")
	fset.BoolVar(&cfg.opts.IncludeType, "type", defaults.IncludeType, "emit object types")
	fset.BoolVar(&cfg.opts.IncludeImage, "image", defaults.IncludeImage, "emit tile object images")
	fset.BoolVar(&cfg.opts.IncludeShape, "shape", defaults.IncludeShape, "emit object shape kinds")
	fset.BoolVar(&cfg.opts.IncludeProperties, "props", defaults.IncludeProperties, "emit custom properties")
	fset.BoolVar(&cfg.opts.IncludeMetrics, "metrics", defaults.IncludeMetrics, "emit area, centroid and bounds")
	fset.BoolVar(&cfg.opts.IncludeHidden, "hidden", defaults.IncludeHidden, "keep hidden layers and objects")
	fset.BoolVar(&cfg.opts.ApplyRotation, "rotate", defaults.ApplyRotation, "apply object rotation to shape points")
	fset.BoolVar(&cfg.opts.VerifyImages, "verify-images", defaults.VerifyImages, "check that referenced images decode")
	fset.StringVar(&cfg.layers, "layers", "", "comma separated layer names to keep")
	fset.StringVar(&cfg.dup, "dup", string(defaults.Duplicates), "duplicate layer names: replace, merge or error")
	fset.StringVar(&cfg.opts.GroupSeparator, "sep", defaults.GroupSeparator, "separator between group and layer names")
	fset.StringVar(&cfg.opts.Script, "script", "", "tengo script defining process(layer, object)")
	fset.StringVar(&cfg.jobsFile, "jobs", os.Getenv("TILEDPREP_JOBS"), "YAML job file to run instead of a single input")
	fset.BoolVar(&cfg.watch, "watch", false, "with -jobs, re-run jobs when their inputs change")

	if err := fset.Parse(args); err != nil {
		return nil, nil, err
	}
	fset.Visit(func(f *flag.Flag) { cfg.set = append(cfg.set, f.Name) })

	dup, err := preprocess.ParseDuplicatePolicy(cfg.dup)
	if err != nil {
		return nil, nil, err
	}
	cfg.opts.Duplicates = dup
	if cfg.layers != "" {
		for _, l := range strings.Split(cfg.layers, ",") {
			if l = strings.TrimSpace(l); l != "" {
				cfg.opts.Layers = append(cfg.opts.Layers, l)
			}
		}
	}
	return cfg, fset.Args(), nil
}

func (c *config) policy() (preprocess.OverwritePolicy, error) {
	n := 0
	policy := preprocess.Prompt
	for _, f := range []struct {
		set bool
		p   preprocess.OverwritePolicy
	}{{c.force, preprocess.Overwrite}, {c.noClob, preprocess.Skip}, {c.failIf, preprocess.Fail}} {
		if f.set {
			n++
			policy = f.p
		}
	}
	if n > 1 {
		return policy, fmt.Errorf("tiledprep: -force, -no-clobber and -fail-exists are exclusive")
	}
	return policy, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, rest, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	if cfg.jobsFile != "" {
		if err := cfg.checkJobMode(rest); err != nil {
			return err
		}
		f, err := jobs.Load(cfg.jobsFile)
		if err != nil {
			return err
		}
		r := &jobs.Runner{In: stdin, Out: stdout}
		if cfg.watch {
			log.Printf("tiledprep: watching %s", f.Path())
			return r.Watch(ctx, f)
		}
		return r.Run(ctx, f)
	}

	if cfg.watch {
		return fmt.Errorf("tiledprep: -watch needs -jobs")
	}
	if len(rest) != 1 {
		return fmt.Errorf("tiledprep: expected exactly one input file, got %d", len(rest))
	}
	policy, err := cfg.policy()
	if err != nil {
		return err
	}

	input := rest[0]
	name := cfg.name
	if name == "" {
		base := filepath.Base(input)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	p := preprocess.New(input, cfg.opts)
	p.In, p.Out = stdin, stdout
	p.MkdirAll = cfg.mkdir
	if err := p.Read(ctx); err != nil {
		return err
	}
	if _, err := p.Store(name, cfg.out, policy); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "End of processing.")
	return nil
}

// checkJobMode rejects inputs and flags that a job file controls.
func (c *config) checkJobMode(rest []string) error {
	if len(rest) > 0 {
		return fmt.Errorf("tiledprep: -jobs takes its inputs from the job file, got %q", rest)
	}
	var ignored []string
	for _, name := range c.set {
		if name != "jobs" && name != "watch" {
			ignored = append(ignored, "-"+name)
		}
	}
	if len(ignored) > 0 {
		return fmt.Errorf("tiledprep: %s cannot be combined with -jobs, set them in the job file", strings.Join(ignored, ", "))
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("tiledprep: ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}
