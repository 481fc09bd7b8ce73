package cli

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davarch/ci-runner/internal/application"
	"github.com/davarch/ci-runner/internal/domain"
	"github.com/davarch/ci-runner/internal/infrastructure/artifact_fs"
	"github.com/davarch/ci-runner/internal/infrastructure/config"
	"github.com/davarch/ci-runner/internal/infrastructure/exec_shell"
	"github.com/davarch/ci-runner/internal/infrastructure/logging"
	"github.com/davarch/ci-runner/internal/infrastructure/pkgindex_http"
	"github.com/davarch/ci-runner/internal/infrastructure/report_scp"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchBranch string
	watchTag    string
	watchRun    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-plan (or re-run with --run) whenever pipeline.yaml changes",
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		// Evaluate once on startup, then on every change.
		onChange(ctx, log)

		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Fatal("fsnotify init failed", zap.Error(err))
		}
		defer func() { _ = w.Close() }()

		dir := filepath.Dir(cfgPath)
		base := filepath.Base(cfgPath)
		if err := w.Add(dir); err != nil {
			log.Fatal("fsnotify add dir failed", zap.String("dir", dir), zap.Error(err))
		}
		log.Info("watching", zap.String("file", cfgPath))

		var timer *time.Timer
		fire := func() { onChange(ctx, log) }

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if timer == nil {
						timer = time.AfterFunc(300*time.Millisecond, fire)
					} else {
						if !timer.Stop() {
							select {
							case <-timer.C:
							default:
							}
						}
						timer.Reset(300 * time.Millisecond)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	},
}

func onChange(ctx context.Context, log *zap.Logger) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Warn("pipeline reload failed", zap.Error(err))
		return
	}
	stages, err := cfg.DomainStages()
	if err != nil {
		log.Warn("pipeline reload failed", zap.Error(err))
		return
	}

	rc := domain.RunContext{Branch: watchBranch, Tag: watchTag}
	for _, s := range stages {
		ok, reason := s.When.Allows(rc)
		log.Info("plan",
			zap.String("stage", s.Name),
			zap.Bool("run", ok),
			zap.String("reason", reason),
		)
	}

	if !watchRun {
		return
	}

	rc.RunID = time.Now().Format("20060102_150405")
	rc.Workspace = cfg.Workspace
	rc.Env = map[string]string{"CI_BRANCH": rc.Branch, "CI_TAG": rc.Tag, "CI_RUN_ID": rc.RunID}

	store := artifact_fs.New(cfg.Archive)
	runner := application.NewStageRunner(log,
		exec_shell.New(),
		store,
		// Report uploads are soft in watch mode.
		report_scp.NewSoft(cfg.Report.Host, cfg.Report.BasePath, time.Duration(cfg.Report.Timeout)),
		pkgindex_http.New(cfg.PkgIndex.URL, cfg.PkgIndex.Username, cfg.PkgIndex.Password, time.Duration(cfg.PkgIndex.Timeout)),
	)
	report := application.NewPipeline(log, runner, store, stages).Run(ctx, rc)
	log.Info("watch run finished", zap.String("run", rc.RunID), zap.Bool("failed", report.Failed))
}

func init() {
	watchCmd.Flags().StringVar(&watchBranch, "branch", "", "branch to evaluate gates against")
	watchCmd.Flags().StringVar(&watchTag, "tag", "", "tag to evaluate gates against")
	watchCmd.Flags().BoolVar(&watchRun, "run", false, "execute the pipeline on every change")

	rootCmd.AddCommand(watchCmd)
}
