package domain

import "context"

// CommandSpec is one shell command to run inside a stage.
type CommandSpec struct {
	Stage   string
	Command string
	Dir     string
	Env     map[string]string
}

// CommandRunner executes a single command. A non-zero exit code is reported
// in the result, not as an error; the error is reserved for commands that
// could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// ArtifactStore archives files produced by a run and persists the run report.
type ArtifactStore interface {
	Collect(ctx context.Context, runID, stage, workspace string, patterns []string) ([]string, error)
	WriteReport(ctx context.Context, r RunReport) error
}

// ReportUploader pushes a generated report directory to a remote location
// keyed by the release tag.
type ReportUploader interface {
	Upload(ctx context.Context, localDir, tag string) error
}

// PackagePublisher uploads built distribution files to a package index and
// returns how many files were uploaded.
type PackagePublisher interface {
	Publish(ctx context.Context, distDir string) (int, error)
}
