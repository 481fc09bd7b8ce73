package cli

import (
	"os"
	"os/signal"
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
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runBranch string
	runTag    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline for the current branch/tag",
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatal("config", zap.Error(err))
		}

		stages, err := cfg.DomainStages()
		if err != nil {
			log.Fatal("stages", zap.Error(err))
		}

		rc := runContext(cfg)

		store := artifact_fs.New(cfg.Archive)
		runner := application.NewStageRunner(log,
			exec_shell.New(),
			store,
			report_scp.New(cfg.Report.Host, cfg.Report.BasePath, time.Duration(cfg.Report.Timeout)),
			pkgindex_http.New(cfg.PkgIndex.URL, cfg.PkgIndex.Username, cfg.PkgIndex.Password, time.Duration(cfg.PkgIndex.Timeout)),
		)
		pipe := application.NewPipeline(log, runner, store, stages)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log.Info("start",
			zap.String("version", version),
			zap.String("run", rc.RunID),
			zap.String("branch", rc.Branch),
			zap.String("tag", rc.Tag),
			zap.Int("stages", len(stages)),
			zap.String("archive", cfg.Archive),
		)

		report := pipe.Run(ctx, rc)
		if report.Failed {
			_ = log.Sync()
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runBranch, "branch", "", "branch under build (default $CI_BRANCH)")
	runCmd.Flags().StringVar(&runTag, "tag", "", "tag under build (default $CI_TAG)")

	rootCmd.AddCommand(runCmd)
}

func runContext(cfg config.Config) domain.RunContext {
	branch := runBranch
	if branch == "" {
		branch = os.Getenv("CI_BRANCH")
	}
	tag := runTag
	if tag == "" {
		tag = os.Getenv("CI_TAG")
	}

	rc := domain.RunContext{
		RunID:     time.Now().Format("20060102_150405"),
		Branch:    branch,
		Tag:       tag,
		Workspace: cfg.Workspace,
		Env:       make(map[string]string, len(cfg.Env)+3),
	}
	for k, v := range cfg.Env {
		rc.Env[k] = v
	}
	rc.Env["CI_BRANCH"] = branch
	rc.Env["CI_TAG"] = tag
	rc.Env["CI_RUN_ID"] = rc.RunID
	return rc
}
