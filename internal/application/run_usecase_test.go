package application

import (
	"context"
	"testing"

	"github.com/davarch/ci-runner/internal/domain"
	"go.uber.org/zap"
)

func newStageRunner(run *domain.MockRunner, store *domain.MockStore,
	up *domain.MockUploader, pub *domain.MockPublisher) *StageRunner {
	return NewStageRunner(zap.NewNop(), run, store, up, pub)
}

func TestRunStage_ToleratesTestFailuresAndArchives(t *testing.T) {
	run := &domain.MockRunner{ExitCodes: map[string]int{"pytest": 1}}
	store := &domain.MockStore{}
	r := newStageRunner(run, store, &domain.MockUploader{}, &domain.MockPublisher{})

	res := r.RunStage(context.Background(), domain.RunContext{RunID: "r1"}, domain.Stage{
		Name:      "api-test",
		Commands:  []string{"pytest", "coverage xml"},
		Artifacts: []string{"report/*.html", "coverage.xml"},
		Tolerate:  domain.FailTolerateTests,
	})

	if res.Status != domain.StatusTolerated {
		t.Fatalf("expected tolerated, got %s (%s)", res.Status, res.Reason)
	}
	if len(run.Commands) != 2 {
		t.Errorf("expected both commands to run, got %d", len(run.Commands))
	}
	if len(store.Collected) != 1 {
		t.Errorf("expected artifacts archived, got %d collections", len(store.Collected))
	}
}

func TestRunStage_ToleranceDoesNotCoverHardErrors(t *testing.T) {
	run := &domain.MockRunner{ExitCodes: map[string]int{"pytest": 2}}
	store := &domain.MockStore{}
	r := newStageRunner(run, store, &domain.MockUploader{}, &domain.MockPublisher{})

	res := r.RunStage(context.Background(), domain.RunContext{RunID: "r1"}, domain.Stage{
		Name:      "api-test",
		Commands:  []string{"pytest"},
		Artifacts: []string{"coverage.xml"},
		Tolerate:  domain.FailTolerateTests,
	})

	if res.Status != domain.StatusFailed {
		t.Fatalf("exit code 2 must fail the stage, got %s", res.Status)
	}
	if len(store.Collected) != 1 {
		t.Errorf("artifacts must be archived even on failure")
	}
}

func TestRunStage_FatalStageStopsAtFirstFailure(t *testing.T) {
	run := &domain.MockRunner{ExitCodes: map[string]int{"pytest -m full_train": 1}}
	r := newStageRunner(run, &domain.MockStore{}, &domain.MockUploader{}, &domain.MockPublisher{})

	res := r.RunStage(context.Background(), domain.RunContext{RunID: "r1"}, domain.Stage{
		Name:     "full-train",
		Commands: []string{"pytest -m full_train", "echo done"},
	})

	if res.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if len(run.Commands) != 1 {
		t.Errorf("expected run to stop at first failure, ran %d commands", len(run.Commands))
	}
}

func TestRunStage_StampsTimings(t *testing.T) {
	r := newStageRunner(&domain.MockRunner{}, &domain.MockStore{}, &domain.MockUploader{}, &domain.MockPublisher{})

	res := r.RunStage(context.Background(), domain.RunContext{RunID: "r1"}, domain.Stage{
		Name:     "provision",
		Commands: []string{"pip install ."},
	})

	if res.Started.IsZero() || res.Finished.IsZero() {
		t.Fatalf("timings not stamped: started=%v finished=%v", res.Started, res.Finished)
	}
	if res.Finished.Before(res.Started) {
		t.Errorf("finished %v before started %v", res.Finished, res.Started)
	}
}

func TestRunStage_SkippedByGate(t *testing.T) {
	g := domain.Gate{TagPattern: "release"}
	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	run := &domain.MockRunner{}
	r := newStageRunner(run, &domain.MockStore{}, &domain.MockUploader{}, &domain.MockPublisher{})

	res := r.RunStage(context.Background(), domain.RunContext{Branch: "main"}, domain.Stage{
		Name:     "deploy-package",
		Commands: []string{"twine upload dist/*"},
		When:     g,
	})

	if res.Status != domain.StatusSkipped {
		t.Fatalf("expected skipped, got %s", res.Status)
	}
	if len(run.Commands) != 0 {
		t.Errorf("skipped stage must not run commands")
	}
}

func TestRunStage_ActionsRunOnlyWhenNotFailed(t *testing.T) {
	up := &domain.MockUploader{}
	pub := &domain.MockPublisher{Count: 2}

	run := &domain.MockRunner{ExitCodes: map[string]int{"make dist": 3}}
	r := newStageRunner(run, &domain.MockStore{}, up, pub)
	res := r.RunStage(context.Background(), domain.RunContext{Tag: "v1.0.0"}, domain.Stage{
		Name:     "deploy-package",
		Commands: []string{"make dist"},
		Publish:  &domain.PublishSpec{DistDir: "dist"},
	})
	if res.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if len(pub.Dirs) != 0 {
		t.Error("publish must not run after a failed stage")
	}

	run = &domain.MockRunner{}
	r = newStageRunner(run, &domain.MockStore{}, up, pub)
	res = r.RunStage(context.Background(), domain.RunContext{Tag: "v1.0.0"}, domain.Stage{
		Name:    "deploy-report",
		Report:  &domain.ReportSpec{Dir: "report"},
		Publish: &domain.PublishSpec{DistDir: "dist"},
	})
	if res.Status != domain.StatusPassed {
		t.Fatalf("expected passed, got %s (%s)", res.Status, res.Reason)
	}
	if len(up.Uploads) != 1 || up.Uploads[0] != "report|v1.0.0" {
		t.Errorf("report upload keyed by tag, got %v", up.Uploads)
	}
	if len(pub.Dirs) != 1 {
		t.Errorf("expected one publish, got %v", pub.Dirs)
	}
}
