package domain

import "time"

type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusSkipped   StageStatus = "skipped"
	StatusPassed    StageStatus = "passed"
	StatusTolerated StageStatus = "tolerated"
	StatusFailed    StageStatus = "failed"
)

// FailurePolicy decides what a non-zero exit code does to a stage.
type FailurePolicy string

const (
	// FailAbort stops the stage and fails the run on any non-zero exit.
	FailAbort FailurePolicy = "fail"
	// FailTolerateTests treats exit code 1 as "some tests failed": the
	// result is recorded, the stage keeps going and the run stays green.
	// Any other non-zero exit still fails the stage.
	FailTolerateTests FailurePolicy = "tests"
	// FailIgnore records failures without ever aborting.
	FailIgnore FailurePolicy = "ignore"
)

// RunContext is the source-control and filesystem context of one run.
type RunContext struct {
	RunID     string
	Branch    string
	Tag       string
	Workspace string
	Env       map[string]string
}

// ReportSpec publishes a generated report directory to a remote server,
// keyed by the release tag.
type ReportSpec struct {
	Dir      string
	Host     string
	BasePath string
}

// PublishSpec uploads built distribution files to a package index.
type PublishSpec struct {
	DistDir  string
	IndexURL string
}

type Stage struct {
	Name      string
	Commands  []string
	Env       map[string]string
	Artifacts []string
	When      Gate
	Tolerate  FailurePolicy
	Timeout   time.Duration
	// Always runs the stage even after an earlier stage failed (cleanup).
	Always  bool
	Report  *ReportSpec
	Publish *PublishSpec
}

func (s Stage) Policy() FailurePolicy {
	if s.Tolerate == "" {
		return FailAbort
	}
	return s.Tolerate
}

type CommandResult struct {
	Command  string
	ExitCode int
	Output   string
	Duration time.Duration
}

type StageResult struct {
	Stage     string
	Status    StageStatus
	Reason    string
	Commands  []CommandResult
	Artifacts []string
	Started   time.Time
	Finished  time.Time
}

type RunReport struct {
	RunID    string
	Branch   string
	Tag      string
	Stages   []StageResult
	Started  time.Time
	Finished time.Time
	Failed   bool
}
