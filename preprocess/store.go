package preprocess

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNoDocument          = errors.New("preprocess: nothing read yet")
	ErrDestinationNotFound = errors.New("preprocess: destination directory not found")
	ErrOutputExists        = errors.New("preprocess: output file already exists")
	ErrOutputIsInput       = errors.New("preprocess: output would replace the input map")
	// ErrNotReplaced means an existing output was kept, by policy or because
	// the user declined.
	ErrNotReplaced = errors.New("preprocess: existing output kept")
)

// OverwritePolicy decides what Store does when the output file exists.
type OverwritePolicy int

const (
	Prompt OverwritePolicy = iota
	Overwrite
	Skip
	Fail
)

func (p OverwritePolicy) String() string {
	switch p {
	case Prompt:
		return "prompt"
	case Overwrite:
		return "overwrite"
	case Skip:
		return "skip"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prompt", "ask":
		return Prompt, nil
	case "overwrite", "replace", "force":
		return Overwrite, nil
	case "skip", "keep":
		return Skip, nil
	case "fail", "error":
		return Fail, nil
	default:
		return Prompt, fmt.Errorf("preprocess: unknown overwrite policy %q", s)
	}
}

// Store writes the document to dir/name.json and returns the written path.
// dir is relative to the working directory unless absolute.
func (p *Preprocessor) Store(name, dir string, policy OverwritePolicy) (string, error) {
	if p.doc == nil {
		return "", ErrNoDocument
	}
	name = strings.TrimSuffix(name, ".json")
	if name == "" {
		return "", fmt.Errorf("preprocess: empty output name")
	}

	dest := absPath(dir)
	target := filepath.Join(dest, name+".json")
	if target == p.path {
		return "", fmt.Errorf("%w: %s", ErrOutputIsInput, target)
	}

	info, err := os.Stat(dest)
	switch {
	case errors.Is(err, os.ErrNotExist) && p.MkdirAll:
		if err := os.MkdirAll(dest, 0755); err != nil {
			return "", fmt.Errorf("preprocess: create %s: %w", dest, err)
		}
	case errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("%w: %s", ErrDestinationNotFound, target)
	case err != nil:
		return "", fmt.Errorf("preprocess: stat %s: %w", dest, err)
	case !info.IsDir():
		return "", fmt.Errorf("%w: %s is not a directory", ErrDestinationNotFound, dest)
	}

	if _, err := os.Stat(target); err == nil {
		if err := p.confirmReplace(name, policy); err != nil {
			return target, err
		}
	}

	if err := p.write(target); err != nil {
		return "", err
	}
	log.Printf("preprocess: wrote %s", target)
	return target, nil
}

func (p *Preprocessor) confirmReplace(name string, policy OverwritePolicy) error {
	switch policy {
	case Overwrite:
		return nil
	case Skip:
		return ErrNotReplaced
	case Fail:
		return fmt.Errorf("%w: %s.json", ErrOutputExists, name)
	}

	out := p.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintf(out, "The file %q already exists.\n", name)
	if p.In == nil {
		return ErrNotReplaced
	}

	reader := bufio.NewReader(p.In)
	for {
		fmt.Fprint(out, "Do you want to replace the file? [ y | n ] ")
		line, err := reader.ReadString('\n')
		switch strings.TrimSpace(line) {
		case "y", "Y":
			return nil
		case "n", "N":
			return ErrNotReplaced
		}
		if err != nil {
			fmt.Fprintln(out)
			return ErrNotReplaced
		}
		fmt.Fprintln(out)
	}
}

// write encodes into a temporary file next to target and renames it into
// place so readers never see a partial document.
func (p *Preprocessor) write(target string) error {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+"-*")
	if err != nil {
		return fmt.Errorf("preprocess: create temp for %s: %w", target, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := p.doc.Encode(f, p.opts.Indent); err != nil {
		f.Close()
		return fmt.Errorf("preprocess: encode %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("preprocess: close %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return fmt.Errorf("preprocess: chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("preprocess: rename %s: %w", target, err)
	}
	return nil
}
