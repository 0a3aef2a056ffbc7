package transferclient

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/aircode-dev/aircode/internal/aircodeerr"
)

// maxFileSize is the spec's 10 GiB pre-size and mid-stream cap.
const maxFileSize uint64 = 10 * 1024 * 1024 * 1024

// Prompter asks the user a free-text question during conflict resolution.
// An empty answer means "declined."
type Prompter interface {
	Prompt(question string) (string, error)
}

// sink resolves sender-supplied file names into on-disk paths under root,
// tracking the directory-rename map across files in one transfer so nested
// files from the same source directory land in the same place.
type sink struct {
	root      string
	canonRoot string
	prompt    Prompter
	renames   map[string]string // orig top-level -> chosen top-level
}

func newSink(root string, prompt Prompter) (*sink, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sink: resolve destination: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create destination: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sink: canonicalize destination: %w", err)
	}
	return &sink{root: abs, canonRoot: canon, prompt: prompt, renames: make(map[string]string)}, nil
}

// sanitize splits name on both separators, drops "." and empty components,
// and rejects the whole name outright if it contains a ".." component or an
// absolute path root — a sender naming a file that way is attempting path
// traversal, not naming a real relative path, so the transfer aborts rather
// than silently discarding the ".." and writing somewhere the sender chose.
func sanitize(name string) ([]string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return nil, &aircodeerr.Transfer{Msg: fmt.Sprintf("file name %q is an absolute path", name)}
	}

	normalized := strings.ReplaceAll(name, "\\", "/")
	parts := strings.Split(normalized, "/")

	var out []string
	for _, p := range parts {
		switch p {
		case "":
			continue
		case ".":
			continue
		case "..":
			return nil, &aircodeerr.Transfer{Msg: fmt.Sprintf("file name %q attempts path traversal", name)}
		default:
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, &aircodeerr.Transfer{Msg: fmt.Sprintf("file name %q sanitizes to nothing", name)}
	}
	return out, nil
}

// resolvePath runs the full sanitize -> rename -> conflict -> containment
// pipeline and returns the final absolute path to write to.
func (s *sink) resolvePath(name string) (string, error) {
	parts, err := sanitize(name)
	if err != nil {
		return "", err
	}

	origTop := parts[0]
	_, alreadyRemapped := s.renames[origTop]
	if alreadyRemapped {
		parts[0] = s.renames[origTop]
	}

	parts, err = s.resolveConflict(parts, origTop, alreadyRemapped)
	if err != nil {
		return "", err
	}

	target := filepath.Join(append([]string{s.root}, parts...)...)
	if err := s.validateContainment(target); err != nil {
		return "", err
	}
	return target, nil
}

func (s *sink) resolveConflict(parts []string, origTop string, alreadyRemapped bool) ([]string, error) {
	if len(parts) == 1 {
		candidate := filepath.Join(s.root, parts[0])
		if !exists(candidate) {
			return parts, nil
		}
		for {
			answer, err := s.ask(fmt.Sprintf("%q already exists. New name (blank to cancel): ", parts[0]))
			if err != nil {
				return nil, err
			}
			if answer == "" {
				return nil, &aircodeerr.User{Msg: "declined to rename conflicting file"}
			}
			sanitized, err := sanitize(answer)
			if err != nil || len(sanitized) != 1 {
				continue
			}
			if exists(filepath.Join(s.root, sanitized[0])) {
				continue
			}
			return sanitized, nil
		}
	}

	if !alreadyRemapped && exists(filepath.Join(s.root, origTop)) {
		for {
			answer, err := s.ask(fmt.Sprintf("directory %q already exists. New directory name (blank to cancel): ", origTop))
			if err != nil {
				return nil, err
			}
			if answer == "" {
				return nil, &aircodeerr.User{Msg: "declined to rename conflicting directory"}
			}
			if strings.ContainsAny(answer, "/\\") || answer == "." || answer == ".." {
				continue
			}
			if exists(filepath.Join(s.root, answer)) {
				continue
			}
			s.renames[origTop] = answer
			parts[0] = answer
			return parts, nil
		}
	}

	return parts, nil
}

func (s *sink) ask(question string) (string, error) {
	if s.prompt == nil {
		return "", &aircodeerr.User{Msg: "no interactive prompt available to resolve conflict"}
	}
	return s.prompt.Prompt(question)
}

func (s *sink) validateContainment(target string) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sink: create directories for %q: %w", target, err)
	}
	canonDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("sink: canonicalize %q: %w", dir, err)
	}
	canonTarget := filepath.Join(canonDir, filepath.Base(abs))

	rel, err := filepath.Rel(s.canonRoot, canonTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &aircodeerr.Transfer{Msg: fmt.Sprintf("path traversal: %q escapes destination root", target)}
	}
	return nil
}

// writeStream writes r to target, enforcing the 10 GiB cap mid-stream; on
// overflow it deletes the partial file and returns an error. An advisory
// lock on target is held for the duration of the write, the write-side
// counterpart of the catalog's read-side lock.
func writeStream(target string, size uint64, r io.Reader) error {
	if size > maxFileSize {
		return &aircodeerr.Transfer{Msg: fmt.Sprintf("file size %d exceeds the 10 GiB cap", size)}
	}

	lock := flock.New(target)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("sink: lock %q: %w", target, err)
	}
	defer lock.Unlock()

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("sink: create %q: %w", target, err)
	}

	limited := io.LimitReader(r, int64(maxFileSize)+1)
	received, err := io.Copy(f, limited)
	if err != nil {
		f.Close()
		os.Remove(target)
		return &aircodeerr.Transfer{Msg: "write failed mid-stream", Err: err}
	}

	if uint64(received) > maxFileSize {
		f.Close()
		os.Remove(target)
		return &aircodeerr.Transfer{Msg: "stream exceeded the 10 GiB cap"}
	}

	if err := f.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("sink: close %q: %w", target, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
