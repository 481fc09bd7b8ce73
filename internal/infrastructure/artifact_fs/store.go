package artifact_fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/davarch/ci-runner/internal/domain"
)

// Store archives artifacts under <base>/<run-id>/<stage>/ and writes the run
// report next to them.
type Store struct {
	base string
}

func New(base string) *Store { return &Store{base: base} }

// Collect copies every file matching the patterns (relative to workspace)
// into the stage's archive directory, preserving relative paths. Matched
// directories are copied recursively. Patterns that match nothing are not an
// error: a failed test run may legitimately leave some reports unwritten.
func (s *Store) Collect(_ context.Context, runID, stage, workspace string, patterns []string) ([]string, error) {
	if s.base == "" {
		return nil, errors.New("archive base is empty")
	}
	dest := filepath.Join(s.base, runID, stage)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}

	var archived []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(workspace, pat))
		if err != nil {
			return archived, fmt.Errorf("pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(workspace, m)
			if err != nil {
				rel = filepath.Base(m)
			}
			copied, err := copyTree(m, filepath.Join(dest, rel))
			if err != nil {
				return archived, fmt.Errorf("archive %s: %w", m, err)
			}
			archived = append(archived, copied...)
		}
	}
	return archived, nil
}

func (s *Store) WriteReport(_ context.Context, r domain.RunReport) error {
	if s.base == "" {
		return errors.New("archive base is empty")
	}
	dir := filepath.Join(s.base, r.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "report.json"))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(reportOut(r))
}

type stageOut struct {
	Stage     string   `json:"stage"`
	Status    string   `json:"status"`
	Reason    string   `json:"reason,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
	Commands  int      `json:"commands"`
	Duration  string   `json:"duration"`
}

type runOut struct {
	RunID    string     `json:"run_id"`
	Branch   string     `json:"branch,omitempty"`
	Tag      string     `json:"tag,omitempty"`
	Failed   bool       `json:"failed"`
	Started  string     `json:"started"`
	Duration string     `json:"duration"`
	Stages   []stageOut `json:"stages"`
}

func reportOut(r domain.RunReport) runOut {
	out := runOut{
		RunID:    r.RunID,
		Branch:   r.Branch,
		Tag:      r.Tag,
		Failed:   r.Failed,
		Started:  r.Started.UTC().Format("2006-01-02T15:04:05Z"),
		Duration: r.Finished.Sub(r.Started).Round(1e6).String(),
	}
	for _, s := range r.Stages {
		out.Stages = append(out.Stages, stageOut{
			Stage:     s.Stage,
			Status:    string(s.Status),
			Reason:    s.Reason,
			Artifacts: s.Artifacts,
			Commands:  len(s.Commands),
			Duration:  s.Finished.Sub(s.Started).Round(1e6).String(),
		})
	}
	return out
}

func copyTree(src, dst string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if err := copyFile(src, dst); err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}

	var copied []string
	err = filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := copyFile(p, target); err != nil {
			return err
		}
		copied = append(copied, target)
		return nil
	})
	return copied, err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
