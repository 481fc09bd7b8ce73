package application

import (
	"context"
	"time"

	"github.com/davarch/ci-runner/internal/domain"
	"go.uber.org/zap"
)

type StageRunner struct {
	log     *zap.Logger
	run     domain.CommandRunner
	store   domain.ArtifactStore
	report  domain.ReportUploader
	publish domain.PackagePublisher
}

func NewStageRunner(l *zap.Logger, run domain.CommandRunner, store domain.ArtifactStore,
	report domain.ReportUploader, publish domain.PackagePublisher) *StageRunner {
	return &StageRunner{log: l, run: run, store: store, report: report, publish: publish}
}

// RunStage executes one stage: gate, commands, artifact collection, typed
// actions. Artifacts are collected whatever the commands did; actions run
// only when the stage has not failed. The result is named so the deferred
// Finished stamp lands on the returned value.
func (r *StageRunner) RunStage(ctx context.Context, rc domain.RunContext, stage domain.Stage) (res domain.StageResult) {
	res = domain.StageResult{Stage: stage.Name, Status: domain.StatusPending, Started: time.Now()}
	defer func() { res.Finished = time.Now() }()

	if ok, reason := stage.When.Allows(rc); !ok {
		res.Status = domain.StatusSkipped
		res.Reason = reason
		r.log.Info("stage skipped", zap.String("stage", stage.Name), zap.String("reason", reason))
		return res
	}

	res.Status = r.runCommands(ctx, rc, stage, &res)
	r.collect(ctx, rc, stage, &res)

	if res.Status != domain.StatusFailed {
		if err := r.runActions(ctx, rc, stage); err != nil {
			res.Status = domain.StatusFailed
			res.Reason = err.Error()
		}
	}
	return res
}

func (r *StageRunner) runCommands(ctx context.Context, rc domain.RunContext, stage domain.Stage, res *domain.StageResult) domain.StageStatus {
	status := domain.StatusPassed

	cctx := ctx
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	env := mergeEnv(rc.Env, stage.Env)
	for _, command := range stage.Commands {
		r.log.Info("run", zap.String("stage", stage.Name), zap.String("cmd", command))

		cr, err := r.run.Run(cctx, domain.CommandSpec{
			Stage:   stage.Name,
			Command: command,
			Dir:     rc.Workspace,
			Env:     env,
		})
		if err != nil {
			res.Reason = err.Error()
			r.log.Error("command could not run", zap.String("stage", stage.Name), zap.Error(err))
			return domain.StatusFailed
		}
		res.Commands = append(res.Commands, cr)
		if cr.ExitCode == 0 {
			continue
		}

		switch stage.Policy() {
		case domain.FailTolerateTests:
			if cr.ExitCode == 1 {
				status = domain.StatusTolerated
				r.log.Warn("test failures tolerated", zap.String("stage", stage.Name), zap.String("cmd", command))
				continue
			}
			res.Reason = cr.Command
			return domain.StatusFailed
		case domain.FailIgnore:
			status = domain.StatusTolerated
			continue
		default:
			res.Reason = cr.Command
			r.log.Error("command failed",
				zap.String("stage", stage.Name),
				zap.String("cmd", command),
				zap.Int("exit", cr.ExitCode),
			)
			return domain.StatusFailed
		}
	}
	return status
}

func (r *StageRunner) collect(ctx context.Context, rc domain.RunContext, stage domain.Stage, res *domain.StageResult) {
	if len(stage.Artifacts) == 0 {
		return
	}
	files, err := r.store.Collect(ctx, rc.RunID, stage.Name, rc.Workspace, stage.Artifacts)
	if err != nil {
		r.log.Warn("artifact collection failed", zap.String("stage", stage.Name), zap.Error(err))
		return
	}
	res.Artifacts = files
	r.log.Info("artifacts archived", zap.String("stage", stage.Name), zap.Int("files", len(files)))
}

func (r *StageRunner) runActions(ctx context.Context, rc domain.RunContext, stage domain.Stage) error {
	if stage.Report != nil {
		if err := r.report.Upload(ctx, stage.Report.Dir, rc.Tag); err != nil {
			return err
		}
		r.log.Info("report uploaded", zap.String("stage", stage.Name), zap.String("tag", rc.Tag))
	}
	if stage.Publish != nil {
		n, err := r.publish.Publish(ctx, stage.Publish.DistDir)
		if err != nil {
			return err
		}
		r.log.Info("packages published", zap.String("stage", stage.Name), zap.Int("files", n))
	}
	return nil
}

func mergeEnv(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
