package domain

import (
	"context"
	"path/filepath"
)

type MockRunner struct {
	// ExitCodes maps a command string to its exit code; unlisted commands
	// exit 0.
	ExitCodes map[string]int
	Err       error
	Commands  []string
}

func (m *MockRunner) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	m.Commands = append(m.Commands, spec.Command)
	if m.Err != nil {
		return CommandResult{Command: spec.Command}, m.Err
	}
	return CommandResult{Command: spec.Command, ExitCode: m.ExitCodes[spec.Command], Output: "mock"}, nil
}

type MockStore struct {
	Collected [][]string
	Reports   []RunReport
	Err       error
}

func (s *MockStore) Collect(ctx context.Context, runID, stage, workspace string, patterns []string) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.Collected = append(s.Collected, patterns)
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, filepath.Join(runID, stage, p))
	}
	return out, nil
}

func (s *MockStore) WriteReport(ctx context.Context, r RunReport) error {
	if s.Err != nil {
		return s.Err
	}
	s.Reports = append(s.Reports, r)
	return nil
}

type MockUploader struct {
	Uploads []string
	Err     error
}

func (u *MockUploader) Upload(ctx context.Context, localDir, tag string) error {
	u.Uploads = append(u.Uploads, localDir+"|"+tag)
	return u.Err
}

type MockPublisher struct {
	Dirs  []string
	Count int
	Err   error
}

func (p *MockPublisher) Publish(ctx context.Context, distDir string) (int, error) {
	p.Dirs = append(p.Dirs, distDir)
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Count, nil
}
