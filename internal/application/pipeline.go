package application

import (
	"context"
	"time"

	"github.com/davarch/ci-runner/internal/domain"
	"go.uber.org/zap"
)

// Pipeline runs stages strictly in order. A failed stage aborts the rest of
// the run, except stages marked Always (cleanup), which run regardless and
// survive cancellation of the run context.
type Pipeline struct {
	log    *zap.Logger
	runner *StageRunner
	store  domain.ArtifactStore
	stages []domain.Stage
}

func NewPipeline(l *zap.Logger, runner *StageRunner, store domain.ArtifactStore, stages []domain.Stage) *Pipeline {
	return &Pipeline{log: l, runner: runner, store: store, stages: stages}
}

func (p *Pipeline) Run(ctx context.Context, rc domain.RunContext) domain.RunReport {
	report := domain.RunReport{
		RunID:   rc.RunID,
		Branch:  rc.Branch,
		Tag:     rc.Tag,
		Started: time.Now(),
	}

	aborted := false
	for _, stage := range p.stages {
		if aborted && !stage.Always {
			now := time.Now()
			report.Stages = append(report.Stages, domain.StageResult{
				Stage:    stage.Name,
				Status:   domain.StatusSkipped,
				Reason:   "earlier stage failed",
				Started:  now,
				Finished: now,
			})
			continue
		}

		sctx := ctx
		if stage.Always {
			sctx = context.WithoutCancel(ctx)
		}

		res := p.runner.RunStage(sctx, rc, stage)
		report.Stages = append(report.Stages, res)

		if res.Status == domain.StatusFailed {
			aborted = true
			p.log.Error("stage failed, aborting run",
				zap.String("stage", stage.Name),
				zap.String("reason", res.Reason),
			)
		}
	}

	report.Finished = time.Now()
	report.Failed = aborted

	if err := p.store.WriteReport(context.WithoutCancel(ctx), report); err != nil {
		p.log.Warn("run report not persisted", zap.Error(err))
	}
	p.log.Info("run finished",
		zap.String("run", rc.RunID),
		zap.Bool("failed", report.Failed),
		zap.Duration("took", report.Finished.Sub(report.Started)),
	)
	return report
}
